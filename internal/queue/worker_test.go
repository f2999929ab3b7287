package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"keepkeycore/internal/deviceinfo"
	"keepkeycore/internal/events"
	"keepkeycore/internal/protocol"
	"keepkeycore/internal/status"
)

// scriptedCarrier replays a fixed sequence of encoded replies,
// ignoring what was actually sent, for deterministic worker tests.
type scriptedCarrier struct {
	replies [][]byte
	codes   []uint16
	pos     int
	sent    []protocol.Message
}

func scriptReply(t *testing.T, m protocol.Message) (uint16, []byte) {
	t.Helper()
	tc, body := protocol.Encode(m)
	return tc, body
}

func (c *scriptedCarrier) Open(deviceinfo.Descriptor) error { return nil }
func (c *scriptedCarrier) Close() error                     { return nil }
func (c *scriptedCarrier) MTU() int                          { return 63 }
func (c *scriptedCarrier) Exchange(ctx context.Context, typeCode uint16, body []byte) (uint16, []byte, error) {
	msg, _ := protocol.Decode(typeCode, body)
	c.sent = append(c.sent, msg)
	if c.pos >= len(c.replies) {
		return 0, nil, context.DeadlineExceeded
	}
	tc, b := c.codes[c.pos], c.replies[c.pos]
	c.pos++
	return tc, b, nil
}

func newTestWorker(t *testing.T, carrier *scriptedCarrier) (*Worker, *events.Bus) {
	t.Helper()
	bus := events.NewBus()
	th := status.Thresholds{
		MinBootloaderVersion: deviceinfo.Version{Major: 2, Minor: 1},
		MinFirmwareVersion:   deviceinfo.Version{Major: 7},
	}
	w := New(deviceinfo.Descriptor{Serial: "dev1", ProductID: deviceinfo.PIDModern}, carrier, bus, th, time.Second)
	go w.Run()
	t.Cleanup(w.Stop)
	return w, bus
}

func enqueueReply(tc uint16, body []byte, c *scriptedCarrier) {
	c.codes = append(c.codes, tc)
	c.replies = append(c.replies, body)
}

func TestWorker_ColdReadFeatures(t *testing.T) {
	c := &scriptedCarrier{}
	features := protocol.Features{Vendor: "keepkey.com", Major: 7, PinCached: true}
	tc, body := scriptReply(t, features)
	enqueueReply(tc, body, c)

	w, _ := newTestWorker(t, c)
	replyCh := make(chan Response, 1)
	w.Submit(&Request{Op: OpGetFeatures, ReplyCh: replyCh})

	select {
	case resp := <-replyCh:
		require.NoError(t, resp.Err)
		require.NotNil(t, resp.Features)
		assert.Equal(t, "keepkey.com", resp.Features.VendorString)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}

func TestWorker_PinThenPassphrase_NoErrorOnTransition(t *testing.T) {
	c := &scriptedCarrier{}
	pinTC, pinBody := scriptReply(t, protocol.PinMatrixRequest{})
	enqueueReply(pinTC, pinBody, c)
	passTC, passBody := scriptReply(t, protocol.PassphraseRequest{})
	enqueueReply(passTC, passBody, c)
	pkTC, pkBody := scriptReply(t, protocol.PublicKey{Xpub: "xpub6abc"})
	enqueueReply(pkTC, pkBody, c)

	w, bus := newTestWorker(t, c)
	sub := bus.Subscribe(8)

	replyCh := make(chan Response, 1)
	w.Submit(&Request{Op: OpGetXpub, GetAddress: &GetAddressInput{AddressN: []uint32{0x8000002C}}, ReplyCh: replyCh})

	pinEv := waitForPrompt(t, sub)
	pinPayload := pinEv.Payload.(events.SessionPromptPayload)
	w.SubmitReply(&Request{Op: OpSessionReply, SessionReply: &SessionReplyInput{SessionID: pinPayload.SessionID, PinPositions: []int{5, 2, 8, 1}}, ReplyCh: make(chan Response, 1)})

	passEv := waitForPrompt(t, sub)
	passPayload := passEv.Payload.(events.SessionPromptPayload)
	require.Equal(t, events.KindSessionPrompt, passEv.Kind)
	w.SubmitReply(&Request{Op: OpSessionReply, SessionReply: &SessionReplyInput{SessionID: passPayload.SessionID, Passphrase: ""}, ReplyCh: make(chan Response, 1)})

	select {
	case resp := <-replyCh:
		require.NoError(t, resp.Err)
		assert.Equal(t, "xpub6abc", resp.Xpub)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for final reply")
	}
}

func TestWorker_CorruptedPolicyAutoRecovery(t *testing.T) {
	c := &scriptedCarrier{}
	// First get_features reply is a Features message with a corrupted
	// policy name (invalid UTF-8 in field 16), built by hand to force
	// the decode error path without a public constructor for it.
	var body []byte
	body = protowire.AppendTag(body, 1, protowire.BytesType)
	body = protowire.AppendBytes(body, []byte("keepkey.com"))
	body = protowire.AppendTag(body, 2, protowire.VarintType)
	body = protowire.AppendVarint(body, 7)
	body = protowire.AppendTag(body, 16, protowire.BytesType)
	body = protowire.AppendBytes(body, []byte{0xff, 0xfe})
	enqueueReply(protocol.TypeFeatures, body, c)

	wipeTC, wipeBody := scriptReply(t, protocol.Success{})
	enqueueReply(wipeTC, wipeBody, c)

	featuresTC, featuresBody := scriptReply(t, protocol.Features{Vendor: "keepkey.com", Initialized: false})
	enqueueReply(featuresTC, featuresBody, c)

	w, _ := newTestWorker(t, c)
	replyCh := make(chan Response, 1)
	w.Submit(&Request{Op: OpGetFeatures, ReplyCh: replyCh})

	select {
	case resp := <-replyCh:
		require.NoError(t, resp.Err)
		require.NotNil(t, resp.Features)
		assert.False(t, resp.Features.Initialized)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}

func waitForPrompt(t *testing.T, sub *events.Subscription) events.Event {
	t.Helper()
	select {
	case ev := <-sub.Events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for prompt event")
		return events.Event{}
	}
}
