// Command keepkeyctl is a small interactive client for a running
// keepkeyd, generalizing the teacher's cmd/cli entrypoint (a
// bubbletea-driven menu talking to hasher-host over HTTP) into a
// device-session client talking to the bridge over gRPC.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/atotto/clipboard"

	"keepkeycore/internal/bridge"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8761", "keepkeyd bridge address")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := bridge.Dial(ctx, *addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "keepkeyctl: dial %s: %v\n", *addr, err)
		os.Exit(1)
	}
	defer client.Close()

	fmt.Println("keepkeyctl connected to", *addr)
	repl(client)
}

func repl(client *bridge.Client) {
	scanner := bufio.NewScanner(os.Stdin)
	printHelp()
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "help":
			printHelp()
		case "list":
			doList(client)
		case "features":
			doFeatures(client, fields)
		case "address":
			doAddress(client, fields)
		case "quit", "exit":
			return
		default:
			fmt.Println("unknown command, type 'help'")
		}
	}
}

func printHelp() {
	fmt.Println("commands: list | features <canonical_id> | address <canonical_id> <coin> <path,comma,separated> [show] | quit")
}

func doList(client *bridge.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := client.ListDevices(ctx)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	if len(resp.CanonicalIDs) == 0 {
		fmt.Println("no devices attached")
		return
	}
	for _, id := range resp.CanonicalIDs {
		fmt.Println(" -", id)
	}
}

func doFeatures(client *bridge.Client, fields []string) {
	if len(fields) < 2 {
		fmt.Println("usage: features <canonical_id>")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	resp, err := client.GetFeatures(ctx, fields[1])
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	if resp.Err != nil {
		fmt.Println("device error:", resp.Err.Msg)
		return
	}
	f := resp.Features
	fmt.Printf("vendor=%s firmware=%d.%d.%d bootloader_mode=%v initialized=%v\n",
		f.VendorString, f.FirmwareVersion.Major, f.FirmwareVersion.Minor, f.FirmwareVersion.Patch,
		f.BootloaderMode, f.Initialized)
}

func doAddress(client *bridge.Client, fields []string) {
	if len(fields) < 4 {
		fmt.Println("usage: address <canonical_id> <coin> <path,comma,separated> [show]")
		return
	}
	pathParts := strings.Split(fields[3], ",")
	addressN := make([]uint32, 0, len(pathParts))
	for _, p := range pathParts {
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			fmt.Println("bad path component:", p)
			return
		}
		addressN = append(addressN, uint32(n))
	}
	show := len(fields) > 4 && fields[4] == "show"

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()
	resp, err := client.GetAddress(ctx, &bridge.GetAddressRequest{
		CanonicalID: fields[1],
		CoinName:    fields[2],
		AddressN:    addressN,
		ShowDisplay: show,
	})
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	if resp.Err != nil {
		fmt.Println("device error:", resp.Err.Msg)
		return
	}
	fmt.Println("address:", resp.Address)
	if err := clipboard.WriteAll(resp.Address); err == nil {
		fmt.Println("(copied to clipboard)")
	}
}
