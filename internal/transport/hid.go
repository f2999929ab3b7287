package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"keepkeycore/internal/coreerr"
	"keepkeycore/internal/deviceinfo"
)

// HID report framing constants (spec §4.2.1). The first report's body
// capacity (55) and every continuation report's body capacity (63)
// are taken verbatim from the spec's explicit byte counts and from
// §8's boundary tests ("body length exactly 55 requires one report;
// 56 requires two"; "a Features body of length 691 requires 12
// reports"), which only hold with these two capacities. The first
// report buffer is therefore 65 bytes (report id, 9-byte header, 55
// body bytes) and each continuation report buffer 64 bytes (report id,
// 63 body bytes).
const (
	HIDReportSize          = 64
	hidFirstBodyCap        = 55
	hidContinuationBodyCap = 63
	hidMaxContinuation     = 20
	hidDefaultDeadline     = 2 * time.Second
)

// HIDOpener produces a ReportDevice for a given descriptor, the seam
// where a real hidapi-style binding attaches (see reportdevice.go).
type HIDOpener func(d deviceinfo.Descriptor) (ReportDevice, error)

type hidCarrier struct {
	open HIDOpener
	dev  ReportDevice
}

// NewHID builds a Carrier for the legacy-bootloader / legacy-firmware
// product id (spec §4.2.4: pid 0x0001 -> HID carrier only).
func NewHID(open HIDOpener) Carrier {
	return &hidCarrier{open: open}
}

func (c *hidCarrier) Open(d deviceinfo.Descriptor) error {
	return OpenWithRetry(func() error {
		dev, err := c.open(d)
		if err != nil {
			return err
		}
		c.dev = dev
		return nil
	})
}

func (c *hidCarrier) Close() error {
	if c.dev == nil {
		return nil
	}
	err := c.dev.Close()
	c.dev = nil
	return err
}

func (c *hidCarrier) MTU() int {
	return hidContinuationBodyCap
}

func (c *hidCarrier) Exchange(ctx context.Context, typeCode uint16, body []byte) (uint16, []byte, error) {
	if c.dev == nil {
		return 0, nil, fmt.Errorf("%w: carrier not open", coreerr.ErrDisconnected)
	}

	if err := c.writeFrame(typeCode, body); err != nil {
		return 0, nil, err
	}
	return c.readFrame(ctx)
}

func (c *hidCarrier) writeFrame(typeCode uint16, body []byte) error {
	first := make([]byte, 1+9+hidFirstBodyCap)
	first[0] = 0x00 // report id
	first[1], first[2], first[3] = 0x3F, 0x23, 0x23
	binary.BigEndian.PutUint16(first[4:6], typeCode)
	binary.BigEndian.PutUint32(first[6:10], uint32(len(body)))
	n := copy(first[10:], body)
	if _, err := c.dev.WriteReport(first); err != nil {
		return fmt.Errorf("%w: %v", coreerr.ErrDisconnected, err)
	}

	remaining := body[n:]
	for len(remaining) > 0 {
		rep := make([]byte, 1+hidContinuationBodyCap)
		m := copy(rep[1:], remaining)
		remaining = remaining[m:]
		if _, err := c.dev.WriteReport(rep); err != nil {
			return fmt.Errorf("%w: %v", coreerr.ErrDisconnected, err)
		}
	}
	return nil
}

func (c *hidCarrier) readFrame(ctx context.Context) (uint16, []byte, error) {
	deadline := time.Now().Add(hidDefaultDeadline)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	first := make([]byte, 1+9+hidFirstBodyCap)
	if err := c.readReportWithDeadline(first, deadline); err != nil {
		return 0, nil, err
	}
	if first[1] != 0x3F || first[2] != 0x23 || first[3] != 0x23 {
		return 0, nil, coreerr.ErrProtocolViolation
	}
	typeCode := binary.BigEndian.Uint16(first[4:6])
	length := binary.BigEndian.Uint32(first[6:10])

	body := make([]byte, 0, length)
	body = append(body, first[10:]...)
	if uint32(len(body)) > length {
		body = body[:length]
	}

	reports := 0
	for uint32(len(body)) < length {
		if reports >= hidMaxContinuation {
			return 0, nil, fmt.Errorf("%w: exceeded %d continuation reports", coreerr.ErrTimeout, hidMaxContinuation)
		}
		cont := make([]byte, 1+hidContinuationBodyCap)
		if err := c.readReportWithDeadline(cont, deadline); err != nil {
			return 0, nil, err
		}
		need := length - uint32(len(body))
		chunk := cont[1:]
		if uint32(len(chunk)) > need {
			chunk = chunk[:need]
		}
		body = append(body, chunk...)
		reports++
	}

	return typeCode, body, nil
}

func (c *hidCarrier) readReportWithDeadline(buf []byte, deadline time.Time) error {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return coreerr.ErrTimeout
	}
	n, err := c.dev.ReadReport(buf, int(remaining/time.Millisecond))
	if err != nil {
		return fmt.Errorf("%w: %v", coreerr.ErrDisconnected, err)
	}
	if n < len(buf) {
		return coreerr.ErrTimeout
	}
	return nil
}
