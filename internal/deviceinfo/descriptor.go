// Package deviceinfo holds the immutable facts about a physical device
// (spec §3): its USB descriptor, the canonical id derived from it, and
// the features snapshot parsed off the wire. It has no dependency on
// transport, queue, or session so every other package can import it
// without creating cycles.
package deviceinfo

import "fmt"

// Legacy and modern product ids (spec §4.2.4, §GLOSSARY "PID transition").
const (
	PIDLegacyBootloader = 0x0001
	PIDModern           = 0x0002
)

// Descriptor is the immutable, OS-reported identity of a device. It is
// created by the hotplug watcher and referenced (read-only) by the
// worker that owns the device's transport.
type Descriptor struct {
	VendorID     uint16
	ProductID    uint16
	Serial       string
	Bus          int
	Address      int
	Manufacturer string
	Product      string
	// Path is an OS device node or USB bus path, carried for logging
	// only (never used for identity).
	Path string
}

// CanonicalID computes the stable per-device id (spec §3): prefer the
// device-reported serial number, falling back to a vid/pid/bus/addr
// composite when no serial is available. A device that disconnects and
// reconnects under a different product id but the same serial keeps
// its canonical id, because the serial branch never looks at the pid.
func (d Descriptor) CanonicalID() string {
	if d.Serial != "" {
		return "serial:" + d.Serial
	}
	return fmt.Sprintf("vpba:%04x_%04x_%d_%d", d.VendorID, d.ProductID, d.Bus, d.Address)
}

// RawID is the OS-level identifier that changes across a pid change
// (e.g. "vpba:2b24_0001_3_7" for vendor 0x2b24, pid 1, bus 3, address
// 7); it always includes the pid, even when a serial exists. The registry's alias map
// resolves these back to a CanonicalID that survives the change.
func (d Descriptor) RawID() string {
	return fmt.Sprintf("vpba:%04x_%04x_%d_%d", d.VendorID, d.ProductID, d.Bus, d.Address)
}

// WithProductID returns a copy of the descriptor with ProductID
// replaced, used after a bootloader/firmware update PID transition
// (spec §4.4) or after USB identity reissue during recovery (§4.5.3).
func (d Descriptor) WithProductID(pid uint16) Descriptor {
	d.ProductID = pid
	return d
}

// SameVendor reports whether other is a candidate PID-transition match
// for d: same vendor and same serial. Descriptors where either serial
// is empty never match.
func (d Descriptor) SameVendor(other Descriptor) bool {
	if d.VendorID != other.VendorID {
		return false
	}
	if d.Serial != "" && other.Serial != "" {
		return d.Serial == other.Serial
	}
	return false
}
