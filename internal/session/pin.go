package session

import (
	"fmt"
	"strconv"
	"time"

	"keepkeycore/internal/coreerr"
	"keepkeycore/internal/protocol"
)

// PinState is one row of the table in spec §4.5.1.
type PinState int

const (
	PinIdle PinState = iota
	PinAwaitingFirst
	PinAwaitingSecond
	PinAwaitingUnlock
	PinMismatch
	PinFailed
	PinComplete
)

func (s PinState) Terminal() bool {
	return s == PinMismatch || s == PinFailed || s == PinComplete
}

// PinSession drives a single PIN matrix dialog end to end.
type PinSession struct {
	ID       string
	state    PinState
	deadline time.Time
}

// NewPinChangeSession starts a session for ChangePin(remove=false):
// idle -> awaiting_first (spec §4.5.1 table).
func NewPinChangeSession(id string, timeout time.Duration) *PinSession {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &PinSession{ID: id, state: PinAwaitingFirst, deadline: time.Now().Add(timeout)}
}

// NewPinUnlockSession starts a session for an operation that needed
// unlock: idle -> awaiting_unlock.
func NewPinUnlockSession(id string, timeout time.Duration) *PinSession {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &PinSession{ID: id, state: PinAwaitingUnlock, deadline: time.Now().Add(timeout)}
}

func (s *PinSession) State() PinState { return s.state }

// Prompt returns the matrix prompt for the UI. Second is true only
// while confirming a new PIN during a change, not during unlock.
func (s *PinSession) Prompt() Prompt {
	return Prompt{
		SessionID: s.ID,
		Kind:      PromptPinMatrix,
		PinMatrix: &PinMatrixPrompt{Second: s.state == PinAwaitingSecond},
	}
}

// CheckTimeout fails the session if deadline has passed without a
// reply (spec §4.5.1 invariant 3). Returns true if it timed out.
func (s *PinSession) CheckTimeout(now time.Time) bool {
	if s.state.Terminal() {
		return false
	}
	if now.After(s.deadline) {
		s.state = PinFailed
		return true
	}
	return false
}

// SubmitPositions encodes the user's 1..9 scrambled-pad positions into
// a PinMatrixAck to send to the device. It does not advance state;
// the state advances only once the device's reply is observed via
// HandleDeviceReply, since until then the worker doesn't know whether
// the device accepted the entry.
func (s *PinSession) SubmitPositions(positions []int) (protocol.Message, error) {
	switch s.state {
	case PinAwaitingFirst, PinAwaitingSecond, PinAwaitingUnlock:
	default:
		return nil, fmt.Errorf("pin session %s: not awaiting input (state %d)", s.ID, s.state)
	}
	for _, p := range positions {
		if p < 1 || p > 9 {
			return nil, fmt.Errorf("pin session %s: position %d out of range 1..9", s.ID, p)
		}
	}
	return protocol.PinMatrixAck{Pin: encodePositions(positions)}, nil
}

// PinResult reports how a device reply advanced the session.
type PinResult struct {
	NextState       PinState
	StartPassphrase bool
	Complete        bool
	Err             error
}

// HandleDeviceReply advances the session from the device's response
// to a PinMatrixAck. A PassphraseRequest arriving while
// awaiting_unlock is the PIN phase's own success (spec §4.5.1
// invariant 1): it completes the PIN session and signals the worker
// to start a passphrase session next, never an error.
func (s *PinSession) HandleDeviceReply(m protocol.Message) PinResult {
	switch s.state {
	case PinAwaitingFirst:
		if f, ok := asFailure(m); ok {
			s.state = PinFailed
			return PinResult{NextState: PinFailed, Err: mapPinFailure(f)}
		}
		s.state = PinAwaitingSecond
		return PinResult{NextState: PinAwaitingSecond}

	case PinAwaitingSecond:
		if f, ok := asFailure(m); ok {
			if f.Code == protocol.FailurePinMismatch {
				s.state = PinMismatch
				return PinResult{NextState: PinMismatch, Err: coreerr.ErrSessionPinMismatch}
			}
			s.state = PinFailed
			return PinResult{NextState: PinFailed, Err: mapPinFailure(f)}
		}
		s.state = PinComplete
		return PinResult{NextState: PinComplete, Complete: true}

	case PinAwaitingUnlock:
		switch m.(type) {
		case protocol.PassphraseRequest:
			s.state = PinComplete
			return PinResult{NextState: PinComplete, Complete: true, StartPassphrase: true}
		case protocol.Success:
			s.state = PinComplete
			return PinResult{NextState: PinComplete, Complete: true}
		default:
			if f, ok := asFailure(m); ok {
				s.state = PinFailed
				return PinResult{NextState: PinFailed, Err: mapPinFailure(f)}
			}
			s.state = PinFailed
			return PinResult{NextState: PinFailed, Err: coreerr.ErrProtocolViolation}
		}

	default:
		return PinResult{NextState: s.state, Err: fmt.Errorf("pin session %s: not awaiting a device reply (state %d)", s.ID, s.state)}
	}
}

// IsDuplicateStartFailure reports whether f is the device's
// Failure(Unknown message) response to a racing duplicate session
// start, which the worker treats as success of the already-active
// session rather than an error (spec §4.5.1 invariant 2).
func IsDuplicateStartFailure(f protocol.Failure, sessionAlreadyActive bool) bool {
	return sessionAlreadyActive && f.Code == protocol.FailureUnknownMessage
}

func mapPinFailure(f protocol.Failure) error {
	if f.Code == protocol.FailurePinMismatch {
		return coreerr.ErrSessionPinMismatch
	}
	return fmt.Errorf("%w: %s", coreerr.ErrProtocolViolation, f.Message)
}

func encodePositions(positions []int) string {
	var b []byte
	for _, p := range positions {
		b = append(b, []byte(strconv.Itoa(p))...)
	}
	return string(b)
}
