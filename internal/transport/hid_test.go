package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReportDevice is an in-memory ReportDevice that replays a fixed
// sequence of inbound reports and records outbound writes.
type fakeReportDevice struct {
	writes  [][]byte
	inbound [][]byte
	pos     int
	closed  bool
}

func (f *fakeReportDevice) WriteReport(report []byte) (int, error) {
	cp := make([]byte, len(report))
	copy(cp, report)
	f.writes = append(f.writes, cp)
	return len(report), nil
}

func (f *fakeReportDevice) ReadReport(buf []byte, timeoutMs int) (int, error) {
	if f.pos >= len(f.inbound) {
		return 0, context.DeadlineExceeded
	}
	n := copy(buf, f.inbound[f.pos])
	f.pos++
	return n, nil
}

func (f *fakeReportDevice) Close() error {
	f.closed = true
	return nil
}

func buildInboundReports(typeCode uint16, body []byte) [][]byte {
	first := make([]byte, 1+9+hidFirstBodyCap)
	first[1], first[2], first[3] = 0x3F, 0x23, 0x23
	first[4] = byte(typeCode >> 8)
	first[5] = byte(typeCode)
	l := uint32(len(body))
	first[6] = byte(l >> 24)
	first[7] = byte(l >> 16)
	first[8] = byte(l >> 8)
	first[9] = byte(l)
	n := copy(first[10:], body)

	reports := [][]byte{first}
	remaining := body[n:]
	for len(remaining) > 0 {
		rep := make([]byte, 1+hidContinuationBodyCap)
		m := copy(rep[1:], remaining)
		remaining = remaining[m:]
		reports = append(reports, rep)
	}
	return reports
}

func TestHID_BodyLength55_OneReport(t *testing.T) {
	body := make([]byte, 55)
	dev := &fakeReportDevice{inbound: buildInboundReports(7, body)}
	c := &hidCarrier{dev: dev}

	_, out, err := c.Exchange(context.Background(), 7, body)
	require.NoError(t, err)
	assert.Equal(t, body, out)
	assert.Len(t, c.dev.(*fakeReportDevice).writes, 1)
}

func TestHID_BodyLength56_TwoReports(t *testing.T) {
	body := make([]byte, 56)
	dev := &fakeReportDevice{inbound: buildInboundReports(7, body)}
	c := &hidCarrier{dev: dev}

	_, out, err := c.Exchange(context.Background(), 7, body)
	require.NoError(t, err)
	assert.Equal(t, body, out)
	assert.Len(t, c.dev.(*fakeReportDevice).writes, 2)
}

func TestHID_FeaturesBody691_Uses12Reports(t *testing.T) {
	body := make([]byte, 691)
	dev := &fakeReportDevice{inbound: buildInboundReports(3, body)}
	c := &hidCarrier{dev: dev}

	_, out, err := c.Exchange(context.Background(), 3, body)
	require.NoError(t, err)
	assert.Equal(t, body, out)
	assert.Len(t, c.dev.(*fakeReportDevice).writes, 12)
}

func TestHID_ExceedsMaxContinuation_Errors(t *testing.T) {
	body := make([]byte, hidFirstBodyCap+hidMaxContinuation*hidContinuationBodyCap+1)
	dev := &fakeReportDevice{inbound: buildInboundReports(3, body)}
	c := &hidCarrier{dev: dev}

	_, _, err := c.Exchange(context.Background(), 3, body)
	require.Error(t, err)
}

func TestHID_Deadline_TimesOutOnIncompleteReply(t *testing.T) {
	dev := &fakeReportDevice{inbound: nil}
	c := &hidCarrier{dev: dev}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, _, err := c.Exchange(ctx, 3, []byte("hi"))
	require.Error(t, err)
}
