package queue

import (
	"context"

	"keepkeycore/internal/deviceinfo"
	"keepkeycore/internal/protocol"
	"keepkeycore/internal/transport"
)

// doFirmwareUpdate drives a firmware or bootloader upload and then
// records the product-id transition the device will reboot into
// (spec §4.4 "PID transition during bootloader/firmware update"). The
// device may not even acknowledge success since it reboots mid-
// transfer; either way the worker drops its transport afterward and
// defers reattachment to the hotplug watcher.
func (w *Worker) doFirmwareUpdate(ctx context.Context, image []byte, nextPID uint16) error {
	eraseMsg, err := w.exchange(ctx, protocol.FirmwareErase{Length: uint32(len(image))})
	if err != nil {
		return err
	}
	if err := expectSuccess(eraseMsg); err != nil {
		return err
	}

	_, _ = w.exchange(ctx, protocol.FirmwareUpload{Payload: image})
	// A transport error here is expected (spec §4.4): the device may
	// reboot before acknowledging. Any error from this exchange is
	// intentionally discarded; the transition below happens either way.

	w.descriptor = w.descriptor.WithProductID(nextPID)
	if w.carrier != nil {
		_ = w.carrier.Close()
	}
	w.carrier = nil
	return nil
}

// HasTransport reports whether the worker currently holds an open
// carrier. The registry checks it when a device attaches whose
// canonical id (serial-based when a serial exists) is already
// tracked; if it is false, the registry opens a carrier for the new
// descriptor and calls AdoptTransport. Nothing polls it, and a device
// without a serial is not matched across pids.
func (w *Worker) HasTransport() bool {
	return w.carrier != nil
}

// AdoptTransport installs a freshly opened carrier and descriptor
// after the registry re-discovers this device under a new pid.
func (w *Worker) AdoptTransport(d deviceinfo.Descriptor, carrier transport.Carrier) {
	w.descriptor = d
	w.carrier = carrier
}
