package queue

import (
	"context"
	"fmt"
	"log"
	"time"

	"keepkeycore/internal/coreerr"
	"keepkeycore/internal/corelog"
	"keepkeycore/internal/deviceinfo"
	"keepkeycore/internal/events"
	"keepkeycore/internal/protocol"
	"keepkeycore/internal/session"
	"keepkeycore/internal/status"
	"keepkeycore/internal/transport"
)

// sessionIDFunc generates session ids; the default numbers them
// "sess-1", "sess-2", ... from a package-level counter.
var sessionIDFunc = defaultSessionID

var sessionCounter int

func defaultSessionID() string {
	sessionCounter++
	return fmt.Sprintf("sess-%d", sessionCounter)
}

// Worker owns the exclusive transport handle for one device and
// processes requests strictly in arrival order, except that session-
// reply operations may interleave with the head-of-queue operation
// whose session they answer (spec §4.4).
type Worker struct {
	CanonicalID string
	descriptor  deviceinfo.Descriptor
	carrier     transport.Carrier
	bus         *events.Bus
	thresholds  status.Thresholds
	timeout     time.Duration
	log         *log.Logger

	requests chan *Request
	replies  chan *Request
	control  chan func()
	quit     chan struct{}
	done     chan struct{}

	pin            *session.PinSession
	passphrase     *session.PassphraseSession
	passphraseText string
	recovery       *session.RecoverySession
}

// New constructs a Worker for d, communicating over carrier (already
// opened by the caller via transport.Select + Carrier.Open).
func New(d deviceinfo.Descriptor, carrier transport.Carrier, bus *events.Bus, thresholds status.Thresholds, timeout time.Duration) *Worker {
	return &Worker{
		CanonicalID: d.CanonicalID(),
		descriptor:  d,
		carrier:     carrier,
		bus:         bus,
		thresholds:  thresholds,
		timeout:     timeout,
		log:         corelog.For("queue." + d.CanonicalID()),
		requests:    make(chan *Request, 16),
		replies:     make(chan *Request, 4),
		control:     make(chan func()),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Submit enqueues a non-reply request. Session-reply requests must go
// through SubmitReply instead so they bypass the FIFO ordering.
func (w *Worker) Submit(req *Request) {
	w.requests <- req
}

// SubmitReply enqueues a session-reply request on the priority lane.
func (w *Worker) SubmitReply(req *Request) {
	w.replies <- req
}

// Descriptor returns the worker's current device descriptor. Safe to
// call from any goroutine: it is only ever mutated by the worker
// goroutine itself, and callers only read a recent snapshot.
func (w *Worker) Descriptor() deviceinfo.Descriptor {
	return w.descriptor
}

// Stop signals the worker to exit after its current request.
func (w *Worker) Stop() {
	close(w.quit)
	<-w.done
}

// Run is the worker's goroutine body; call it with `go w.Run()`.
func (w *Worker) Run() {
	defer close(w.done)
	for {
		select {
		case <-w.quit:
			return
		case fn := <-w.control:
			fn()
		case req := <-w.replies:
			w.handle(req)
		case req := <-w.requests:
			w.handle(req)
		}
	}
}

func (w *Worker) handle(req *Request) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	resp := Response{}
	switch req.Op {
	case OpGetFeatures:
		resp.Features, resp.Err = w.doGetFeatures(ctx)
	case OpGetAddress:
		resp.Address, resp.Err = w.doGetAddress(ctx, req.GetAddress)
	case OpGetXpub:
		resp.Xpub, resp.Err = w.doGetXpub(ctx, req.GetAddress)
	case OpSignTx:
		resp.Signed, resp.Err = w.doSignTx(ctx, req.SignTx)
	case OpChangePin:
		resp.Err = w.doChangePin(ctx, req.ChangePin)
	case OpResetDevice, OpRecoveryDevice:
		resp.Err = w.doRecovery(ctx, req.Recovery)
	case OpWipeDevice:
		resp.Err = w.doWipe(ctx)
	case OpUpdateFirmware:
		resp.Err = w.doFirmwareUpdate(ctx, req.Firmware, deviceinfo.PIDModern)
	case OpUpdateBootloader:
		resp.Err = w.doFirmwareUpdate(ctx, req.Firmware, deviceinfo.PIDModern)
	case OpSessionReply:
		resp.Err = w.routeSessionReply(req.SessionReply)
	default:
		resp.Err = fmt.Errorf("queue: unknown operation %d", req.Op)
	}

	if req.ReplyCh != nil {
		req.ReplyCh <- resp
	}
}

// exchange sends one message and returns the device's decoded reply,
// the base primitive every operation in dispatch.go builds on.
func (w *Worker) exchange(ctx context.Context, m protocol.Message) (protocol.Message, error) {
	typeCode, body := protocol.Encode(m)
	rtc, rbody, err := w.carrier.Exchange(ctx, typeCode, body)
	if err != nil {
		return nil, err
	}
	return protocol.Decode(rtc, rbody)
}

// runInteractive drives a request/reply round that may be interrupted
// by PinMatrixRequest, PassphraseRequest, or ButtonRequest prompts,
// looping until a terminal (non-prompt) message comes back.
func (w *Worker) runInteractive(ctx context.Context, initial protocol.Message) (protocol.Message, error) {
	msg, err := w.exchange(ctx, initial)
	if err != nil {
		return nil, err
	}
	for {
		// A passphrase session left awaiting_input after NeedsPin means
		// the nested PIN dialog just concluded (msg is no longer a
		// PinMatrixRequest): the original passphrase must be resubmitted
		// before whatever the device just said can be treated as a
		// result (spec §4.5.2 invariant: passphrase-first ordering).
		if _, isPinPrompt := msg.(protocol.PinMatrixRequest); !isPinPrompt &&
			w.passphrase != nil && w.passphrase.State() == session.PassphraseAwaitingInput {
			ack, perr := w.passphrase.Resubmit(w.passphraseText)
			if perr != nil {
				return nil, perr
			}
			msg, err = w.exchange(ctx, ack)
			if err != nil {
				return nil, err
			}
			continue
		}

		switch m := msg.(type) {
		case protocol.PinMatrixRequest:
			ack, perr := w.handlePinPrompt(m)
			if perr != nil {
				return nil, perr
			}
			msg, err = w.exchange(ctx, ack)
		case protocol.PassphraseRequest:
			ack, perr := w.handlePassphrasePrompt(m)
			if perr != nil {
				return nil, perr
			}
			msg, err = w.exchange(ctx, ack)
		case protocol.ButtonRequest:
			ack, perr := w.handleButtonPrompt(m)
			if perr != nil {
				return nil, perr
			}
			msg, err = w.exchange(ctx, ack)
		default:
			w.pin, w.passphrase = nil, nil
			w.passphraseText = ""
			return msg, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func (w *Worker) handlePinPrompt(m protocol.PinMatrixRequest) (protocol.Message, error) {
	if w.pin != nil {
		if result := w.pin.HandleDeviceReply(m); result.Err != nil {
			return nil, result.Err
		}
	} else {
		w.pin = session.NewPinUnlockSession(sessionIDFunc(), w.timeout)
		// A submitted passphrase interrupted by a PIN request is the
		// passphrase-first ordering (spec §4.5.2): mark the passphrase
		// session as owed a resubmit once this nested PIN dialog ends.
		if w.passphrase != nil {
			w.passphrase.HandleDeviceReply(m)
		}
	}

	w.bus.Publish(events.Event{
		Kind:     events.KindSessionPrompt,
		DeviceID: w.CanonicalID,
		Payload:  events.SessionPromptPayload{SessionID: w.pin.ID, Prompt: w.pin.Prompt()},
	})

	reply, err := w.awaitReply(w.pin.ID)
	if err != nil {
		return nil, err
	}
	return w.pin.SubmitPositions(reply.PinPositions)
}

func (w *Worker) handlePassphrasePrompt(m protocol.PassphraseRequest) (protocol.Message, error) {
	if w.pin != nil {
		result := w.pin.HandleDeviceReply(m)
		w.pin = nil
		if result.Err != nil {
			return nil, result.Err
		}
	}
	if w.passphrase == nil {
		w.passphrase = session.NewPassphraseSession(sessionIDFunc(), w.timeout)
	}

	w.bus.Publish(events.Event{
		Kind:     events.KindSessionPrompt,
		DeviceID: w.CanonicalID,
		Payload:  events.SessionPromptPayload{SessionID: w.passphrase.ID, Prompt: w.passphrase.Prompt()},
	})

	reply, err := w.awaitReply(w.passphrase.ID)
	if err != nil {
		return nil, err
	}
	w.passphraseText = reply.Passphrase
	return w.passphrase.Submit(reply.Passphrase)
}

func (w *Worker) handleButtonPrompt(m protocol.ButtonRequest) (protocol.Message, error) {
	sessionID := sessionIDFunc()
	w.bus.Publish(events.Event{
		Kind:     events.KindSessionPrompt,
		DeviceID: w.CanonicalID,
		Payload: events.SessionPromptPayload{
			SessionID: sessionID,
			Prompt:    session.Prompt{SessionID: sessionID, Kind: session.PromptButton},
		},
	})

	reply, err := w.awaitReply(sessionID)
	if err != nil {
		return nil, err
	}
	if !reply.ButtonConfirmed {
		return nil, coreerr.ErrSessionCancelled
	}
	return protocol.ButtonAck{}, nil
}

// awaitReply blocks on the priority reply lane for the matching
// session id, or until the worker's overall timeout elapses. Replies
// for a different (stale) session id are discarded, since the worker
// only ever has one active prompt outstanding at a time.
func (w *Worker) awaitReply(sessionID string) (*SessionReplyInput, error) {
	deadline := time.After(w.timeout)
	for {
		select {
		case fn := <-w.control:
			// Control calls (e.g. the registry suspending this session
			// for a pending reconnect) must be serviced even while the
			// worker is parked here waiting on the user, since this is
			// the only place the goroutine blocks for most of a
			// session's lifetime.
			fn()
		case req := <-w.replies:
			if req.SessionReply == nil || req.SessionReply.SessionID != sessionID {
				if req.ReplyCh != nil {
					got := ""
					if req.SessionReply != nil {
						got = req.SessionReply.SessionID
					}
					req.ReplyCh <- Response{Err: fmt.Errorf("queue: no active session %q", got)}
				}
				continue
			}
			if req.ReplyCh != nil {
				req.ReplyCh <- Response{}
			}
			return req.SessionReply, nil
		case <-deadline:
			return nil, coreerr.ErrSessionTimeout
		case <-w.quit:
			return nil, coreerr.ErrSessionCancelled
		}
	}
}

func (w *Worker) routeSessionReply(reply *SessionReplyInput) error {
	return fmt.Errorf("queue: session reply for %q arrived with no request awaiting it", reply.SessionID)
}
