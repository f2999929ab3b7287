package transport

// ReportDevice is the narrow capability the HID carrier needs from
// the underlying OS HID binding: write one fixed-size report, read one
// fixed-size report. No HID library appears anywhere in the example
// pack this module was grounded on (gousb only speaks USB bulk/control
// transfers, not HID reports), so rather than fabricate a dependency
// we define the capability our carrier actually needs and let a real
// binding (e.g. a karalabe/hid or hidapi-cgo wrapper) satisfy it at
// the call site that opens real hardware. See DESIGN.md.
type ReportDevice interface {
	WriteReport(report []byte) (int, error)
	ReadReport(buf []byte, timeoutMs int) (int, error)
	Close() error
}
