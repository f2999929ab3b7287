// Command keepkeyd runs the device core as a standalone daemon: it
// owns USB/HID access directly, drives the registry and hotplug
// watcher, and exposes the queue API to UI processes over the gRPC
// bridge (internal/bridge). This generalizes the teacher's
// cmd/driver/hasher-server entrypoint (open the device directly, serve
// it over gRPC) from a single ASIC device to the registry's
// many-devices-at-once model.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/gousb"
	"google.golang.org/grpc"

	"keepkeycore/internal/bridge"
	"keepkeycore/internal/config"
	"keepkeycore/internal/deviceinfo"
	"keepkeycore/internal/events"
	"keepkeycore/internal/hostdiag"
	"keepkeycore/internal/registry"
	"keepkeycore/internal/status"
	"keepkeycore/internal/transport"
)

// VendorID is KeepKey's USB vendor id.
const VendorID = 0x2b24

func main() {
	addr := flag.String("listen", "127.0.0.1:8761", "bridge listen address")
	httpAddr := flag.String("http-listen", "127.0.0.1:8762", "health/diagnostics HTTP listen address")
	pollMs := flag.Int("poll-ms", 0, "hotplug poll interval override in ms (0 = config default)")
	flag.Parse()

	startTime := time.Now()
	cfg := config.Default()
	thresholds := status.Thresholds{
		MinBootloaderVersion: cfg.MinBootloaderVersion,
		MinFirmwareVersion:   cfg.MinFirmwareVersion,
	}

	bus := events.NewBus()
	reg := registry.New(bus, thresholds, unsupportedHIDOpener, cfg.ExchangeDeadline)

	usbCtx := gousb.NewContext()
	defer usbCtx.Close()

	interval := cfg.HotplugPollInterval
	if *pollMs > 0 {
		interval = time.Duration(*pollMs) * time.Millisecond
	}
	watcher := registry.NewWatcher(reg, &usbEnumerator{ctx: usbCtx}, interval, registry.DefaultConcurrency)
	go watcher.Run()

	lis, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatalf("keepkeyd: listen %s: %v", *addr, err)
	}
	grpcServer := grpc.NewServer()
	bridge.RegisterService(grpcServer, bridge.NewServer(reg, bus))

	httpServer := &http.Server{Addr: *httpAddr, Handler: newHTTPRouter(reg, startTime)}

	log.Printf("keepkeyd: bridge listening on %s", *addr)
	errCh := make(chan error, 1)
	go func() { errCh <- grpcServer.Serve(lis) }()

	log.Printf("keepkeyd: health/diagnostics listening on %s", *httpAddr)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	select {
	case <-ctx.Done():
		log.Printf("keepkeyd: shutting down")
	case err := <-errCh:
		log.Printf("keepkeyd: server stopped: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)

	grpcServer.GracefulStop()
	watcher.Stop()
	reg.Shutdown()
}

// unsupportedHIDOpener is the seam documented in
// internal/transport/reportdevice.go: no HID binding ships with this
// module, so opening a legacy-bootloader-pid device fails at once
// (the error is not an access-contention error, so it is not retried)
// with a host diagnostic instead of silently hanging.
func unsupportedHIDOpener(d deviceinfo.Descriptor) (transport.ReportDevice, error) {
	diag := hostdiag.Collect()
	return nil, fmt.Errorf("%s", diag.Annotate(fmt.Sprintf(
		"no HID binding configured for legacy device %s", d.CanonicalID())))
}

// usbEnumerator lists every KeepKey-vendor device (any product id)
// over gousb, the same binding the USB bulk carrier itself uses (spec
// §4.7: "polls...OS events" abstracted behind registry.Enumerator).
// Legacy-pid devices are listed too, but their carrier is the HID one,
// which fails to open without a HID binding.
type usbEnumerator struct {
	ctx *gousb.Context
}

func (e *usbEnumerator) Enumerate() ([]deviceinfo.Descriptor, error) {
	var out []deviceinfo.Descriptor
	devs, err := e.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if desc.Vendor != gousb.ID(VendorID) {
			return false
		}
		out = append(out, deviceinfo.Descriptor{
			VendorID:  VendorID,
			ProductID: uint16(desc.Product),
			Bus:       desc.Bus,
			Address:   desc.Address,
		})
		return false
	})
	for _, d := range devs {
		d.Close()
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}
