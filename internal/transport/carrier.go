// Package transport implements the two physical carriers (spec §4.2):
// HID reports and USB bulk transfers, both exposing the same blocking
// exchange(frame) -> frame contract, plus the access-contention retry
// (§4.2.3) and carrier-selection factory (§4.2.4, §4.3).
package transport

import (
	"context"

	"keepkeycore/internal/deviceinfo"
)

// Carrier is the narrow, uniform capability both physical substrates
// expose (spec §9: "a closed sum with a narrow uniform capability...
// not deep inheritance"). Carriers are not thread-safe: they are held
// exclusively by one device worker (spec §4.2).
type Carrier interface {
	// Open claims the OS handle for d. Implementations retry on
	// access-contention errors via OpenWithRetry (spec §4.2.3).
	Open(d deviceinfo.Descriptor) error
	// Exchange sends one frame and blocks for the matching reply or
	// until ctx is done. Exactly one Exchange is in flight at a time
	// (spec §8 invariant).
	Exchange(ctx context.Context, typeCode uint16, body []byte) (uint16, []byte, error)
	// Close releases the OS handle. Safe to call on an unopened or
	// already-closed carrier.
	Close() error
	// MTU is the maximum body chunk size this carrier's wire chunks
	// carry, used only by callers that want to size upload batches;
	// the carrier itself always reassembles the full frame internally.
	MTU() int
}
