// Package hostdiag attaches host-level diagnostic context to the
// user-actionable message spec §4.2.3 requires for device_busy errors:
// "enumerates likely causes (other wallet apps, bridge processes,
// stale connections)". The teacher's CLI (internal/cli/ui) reads
// gopsutil cpu/mem stats purely for a status line; we reuse the same
// library to instead count other processes that plausibly hold the
// device open, which is a question gopsutil can actually answer and
// stdlib cannot without shelling out per platform.
package hostdiag

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// candidateNames are process name substrings that commonly hold a
// KeepKey-class device open: other wallet apps or bridge daemons.
var candidateNames = []string{
	"keepkey",
	"trezor",
	"bridge",
	"electrum",
}

// Summary describes the host environment at the moment a device_busy
// error was raised.
type Summary struct {
	OS             string   `json:"os"`
	Arch           string   `json:"arch"`
	CandidateProcs []string `json:"candidate_procs,omitempty"`
}

// Collect inspects the running process list for likely contenders for
// the device handle. Errors from gopsutil (permission issues walking
// /proc, etc.) are swallowed — this is best-effort diagnostic color,
// never load-bearing for the retry/error path itself.
func Collect() Summary {
	s := Summary{OS: runtime.GOOS, Arch: runtime.GOARCH}

	procs, err := process.Processes()
	if err != nil {
		return s
	}
	for _, p := range procs {
		name, err := p.Name()
		if err != nil || name == "" {
			continue
		}
		lower := strings.ToLower(name)
		for _, candidate := range candidateNames {
			if strings.Contains(lower, candidate) {
				s.CandidateProcs = append(s.CandidateProcs, name)
				break
			}
		}
	}
	return s
}

// Annotate appends the summary to a device_busy message, giving the
// user something more actionable than "device busy" when other wallet
// software is actually running.
func (s Summary) Annotate(message string) string {
	if len(s.CandidateProcs) == 0 {
		return message
	}
	return fmt.Sprintf("%s (running processes that may hold the device: %s)",
		message, strings.Join(dedupe(s.CandidateProcs), ", "))
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
