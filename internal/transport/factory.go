package transport

import "keepkeycore/internal/deviceinfo"

// Select picks the physical carrier for d's product id (spec §4.2.4):
// the legacy bootloader pid speaks HID reports only, the modern pid
// speaks USB bulk transfers only. A pid this factory doesn't recognize
// for d's vendor is accepted on the assumption the device just crossed
// a firmware/bootloader boundary (spec §4.4 pid-transition handling);
// the caller is responsible for re-resolving Descriptor.ProductID
// after the transition and calling Select again.
func Select(d deviceinfo.Descriptor, open HIDOpener) Carrier {
	switch d.ProductID {
	case deviceinfo.PIDLegacyBootloader:
		return NewHID(open)
	case deviceinfo.PIDModern:
		return NewUSB()
	default:
		return NewUSB()
	}
}
