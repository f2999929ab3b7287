package transport

import (
	"fmt"
	"strings"
	"time"

	"keepkeycore/internal/coreerr"
	"keepkeycore/internal/hostdiag"
)

// accessContentionMarkers are the substrings (case-insensitive) an OS
// open error must contain to be treated as contention rather than a
// permanent failure (spec §4.2.3).
var accessContentionMarkers = []string{
	"access",
	"permission",
	"in use",
	"busy",
	"claimed",
	"cannot open",
	"exclusive access",
}

// RetryBackoff is the fixed delay schedule spec §4.2.3 mandates.
var RetryBackoff = []time.Duration{
	100 * time.Millisecond,
	200 * time.Millisecond,
	400 * time.Millisecond,
	800 * time.Millisecond,
	1600 * time.Millisecond,
}

// IsAccessContention reports whether err's text matches one of the
// OS-reported contention patterns spec §4.2.3 names. Any other error
// (including on Windows, whose HID write errors may not match any
// pattern — spec §9 Open Questions) is treated as permanent.
func IsAccessContention(err error) bool {
	if err == nil {
		return false
	}
	if errnoIsContention(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range accessContentionMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// errnoIsContention is platform-specific: on Linux it inspects a
// wrapped syscall.Errno directly (retry_linux.go) instead of relying
// on gousb/libusb's error text, which isn't guaranteed to contain any
// of accessContentionMarkers. Other platforms fall back to text
// matching only (spec §9 Open Question: Windows HID write errors with
// no matching text are treated as permanent).
var errnoIsContention = func(error) bool { return false }

// sleepFunc is overridden in tests to avoid real delays.
var sleepFunc = time.Sleep

// OpenWithRetry calls open() and, on an access-contention error, retries
// up to len(RetryBackoff) times, sleeping RetryBackoff[i] before retry
// i+1, so open() runs at most len(RetryBackoff)+1 times. A
// non-contention error fails immediately without retry (spec §4.2.3).
// The final failure is wrapped as coreerr.ErrDeviceBusy with a
// user-actionable message annotated by hostdiag.
func OpenWithRetry(open func() error) error {
	var lastErr error
	for attempt := 0; attempt < len(RetryBackoff)+1; attempt++ {
		err := open()
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsAccessContention(err) {
			return err
		}
		if attempt < len(RetryBackoff) {
			sleepFunc(RetryBackoff[attempt])
		}
	}
	return &coreerr.BusyError{
		Attempts: len(RetryBackoff) + 1,
		Message: hostdiag.Collect().Annotate(fmt.Sprintf(
			"device busy after %d attempts (%v): close other wallet apps, "+
				"bridge processes, or stale device connections and retry",
			len(RetryBackoff)+1, lastErr)),
	}
}
