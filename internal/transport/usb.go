//go:build !mips && !mipsle
// +build !mips,!mipsle

package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/gousb"

	"keepkeycore/internal/coreerr"
	"keepkeycore/internal/deviceinfo"
)

const (
	usbConfigNum   = 1
	usbInterfaceID = 0
	usbAltSetting  = 0
	usbEndpointOut = 0x01
	usbEndpointIn  = 0x81
	usbBulkMTU     = 63
)

// usbCarrier is the modern-firmware carrier (pid 0x0002, spec §4.2.4),
// a thin wrapper over gousb claiming a single bulk in/out endpoint pair.
type usbCarrier struct {
	ctx    *gousb.Context
	device *gousb.Device
	config *gousb.Config
	intf   *gousb.Interface
	out    *gousb.OutEndpoint
	in     *gousb.InEndpoint
}

// NewUSB builds a Carrier for the modern product id.
func NewUSB() Carrier {
	return &usbCarrier{}
}

func (c *usbCarrier) Open(d deviceinfo.Descriptor) error {
	return OpenWithRetry(func() error {
		ctx := gousb.NewContext()
		device, err := ctx.OpenDeviceWithVIDPID(gousb.ID(d.VendorID), gousb.ID(d.ProductID))
		if err != nil {
			ctx.Close()
			return fmt.Errorf("open usb device: %w", err)
		}
		if device == nil {
			ctx.Close()
			return fmt.Errorf("usb device not found (vid:0x%04x pid:0x%04x)", d.VendorID, d.ProductID)
		}

		config, err := device.Config(usbConfigNum)
		if err != nil {
			device.Close()
			ctx.Close()
			return fmt.Errorf("set usb config: %w", err)
		}

		intf, err := config.Interface(usbInterfaceID, usbAltSetting)
		if err != nil {
			config.Close()
			device.Close()
			ctx.Close()
			return fmt.Errorf("claim usb interface: %w", err)
		}

		out, err := intf.OutEndpoint(usbEndpointOut)
		if err != nil {
			intf.Close()
			config.Close()
			device.Close()
			ctx.Close()
			return fmt.Errorf("open out endpoint: %w", err)
		}

		in, err := intf.InEndpoint(usbEndpointIn)
		if err != nil {
			intf.Close()
			config.Close()
			device.Close()
			ctx.Close()
			return fmt.Errorf("open in endpoint: %w", err)
		}

		c.ctx, c.device, c.config, c.intf, c.out, c.in = ctx, device, config, intf, out, in
		return nil
	})
}

func (c *usbCarrier) Close() error {
	if c.intf != nil {
		c.intf.Close()
	}
	if c.config != nil {
		c.config.Close()
	}
	if c.device != nil {
		c.device.Close()
	}
	if c.ctx != nil {
		c.ctx.Close()
	}
	c.intf, c.config, c.device, c.ctx = nil, nil, nil, nil
	return nil
}

func (c *usbCarrier) MTU() int {
	return usbBulkMTU
}

// Exchange writes the header+body chunked to usbBulkMTU (no report-id
// byte, unlike the HID carrier) and reads back a frame the same way.
func (c *usbCarrier) Exchange(ctx context.Context, typeCode uint16, body []byte) (uint16, []byte, error) {
	if c.out == nil || c.in == nil {
		return 0, nil, fmt.Errorf("%w: carrier not open", coreerr.ErrDisconnected)
	}

	frame := make([]byte, 9+len(body))
	frame[0], frame[1], frame[2] = 0x3F, 0x23, 0x23
	binary.BigEndian.PutUint16(frame[3:5], typeCode)
	binary.BigEndian.PutUint32(frame[5:9], uint32(len(body)))
	copy(frame[9:], body)

	for off := 0; off < len(frame); off += usbBulkMTU {
		end := off + usbBulkMTU
		if end > len(frame) {
			end = len(frame)
		}
		if _, err := c.out.Write(frame[off:end]); err != nil {
			return 0, nil, fmt.Errorf("%w: %v", coreerr.ErrDisconnected, err)
		}
	}

	return c.readFrame(ctx)
}

func (c *usbCarrier) readFrame(ctx context.Context) (uint16, []byte, error) {
	deadline := hidDefaultDeadline
	if d, ok := ctx.Deadline(); ok {
		if remaining := time.Until(d); remaining < deadline {
			deadline = remaining
		}
	}

	header := make([]byte, 9)
	if err := c.readChunk(ctx, header, deadline); err != nil {
		return 0, nil, err
	}
	if header[0] != 0x3F || header[1] != 0x23 || header[2] != 0x23 {
		return 0, nil, coreerr.ErrProtocolViolation
	}
	typeCode := binary.BigEndian.Uint16(header[3:5])
	length := binary.BigEndian.Uint32(header[5:9])

	body := make([]byte, 0, length)
	for uint32(len(body)) < length {
		chunkLen := usbBulkMTU
		if need := length - uint32(len(body)); uint32(chunkLen) > need {
			chunkLen = int(need)
		}
		chunk := make([]byte, chunkLen)
		if err := c.readChunk(ctx, chunk, deadline); err != nil {
			return 0, nil, err
		}
		body = append(body, chunk...)
	}

	return typeCode, body, nil
}

func (c *usbCarrier) readChunk(parent context.Context, buf []byte, deadline time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, deadline)
	defer cancel()
	n, err := c.in.ReadContext(ctx, buf)
	if err != nil {
		return fmt.Errorf("%w: %v", coreerr.ErrDisconnected, err)
	}
	if n < len(buf) {
		return coreerr.ErrTimeout
	}
	return nil
}
