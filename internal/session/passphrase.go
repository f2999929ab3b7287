package session

import (
	"fmt"
	"time"

	"keepkeycore/internal/coreerr"
	"keepkeycore/internal/protocol"
)

// PassphraseState is one state of spec §4.5.2.
type PassphraseState int

const (
	PassphraseAwaitingInput PassphraseState = iota
	PassphraseSubmitted
	PassphraseComplete
	PassphraseFailed
)

func (s PassphraseState) Terminal() bool {
	return s == PassphraseComplete || s == PassphraseFailed
}

// PassphraseSession drives a single passphrase dialog.
type PassphraseSession struct {
	ID       string
	state    PassphraseState
	deadline time.Time
}

func NewPassphraseSession(id string, timeout time.Duration) *PassphraseSession {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &PassphraseSession{ID: id, state: PassphraseAwaitingInput, deadline: time.Now().Add(timeout)}
}

func (s *PassphraseSession) State() PassphraseState { return s.state }

func (s *PassphraseSession) Prompt() Prompt {
	return Prompt{SessionID: s.ID, Kind: PromptPassphrase}
}

func (s *PassphraseSession) CheckTimeout(now time.Time) bool {
	if s.state.Terminal() {
		return false
	}
	if now.After(s.deadline) {
		s.state = PassphraseFailed
		return true
	}
	return false
}

// Submit builds the PassphraseAck to send the device. A second
// submission on an already-submitted session is a dedicated error
// (spec §4.5.2: "already submitted, confirm on device"), not a retry.
func (s *PassphraseSession) Submit(passphrase string) (protocol.Message, error) {
	if s.state == PassphraseSubmitted {
		return nil, coreerr.ErrAlreadySubmitted
	}
	if s.state != PassphraseAwaitingInput {
		return nil, fmt.Errorf("passphrase session %s: not awaiting input (state %d)", s.ID, s.state)
	}
	s.state = PassphraseSubmitted
	return protocol.PassphraseAck{Passphrase: passphrase}, nil
}

// PassphraseResult reports how a device reply advanced the session.
type PassphraseResult struct {
	NextState PassphraseState
	NeedsPin  bool
	Complete  bool
	Err       error
}

// HandleDeviceReply advances the session from the device's response
// to a PassphraseAck. A PinMatrixRequest here means the device wants
// the other factor first (spec §4.5.2): the worker must run a PIN
// session to completion and then call Resubmit to retry the same
// passphrase that was already accepted by the user.
func (s *PassphraseSession) HandleDeviceReply(m protocol.Message) PassphraseResult {
	if s.state != PassphraseSubmitted {
		return PassphraseResult{NextState: s.state, Err: fmt.Errorf("passphrase session %s: not awaiting a device reply (state %d)", s.ID, s.state)}
	}
	switch m.(type) {
	case protocol.PinMatrixRequest:
		s.state = PassphraseAwaitingInput
		return PassphraseResult{NextState: PassphraseAwaitingInput, NeedsPin: true}
	case protocol.Success, protocol.PublicKey, protocol.Address:
		s.state = PassphraseComplete
		return PassphraseResult{NextState: PassphraseComplete, Complete: true}
	default:
		if f, ok := asFailure(m); ok {
			s.state = PassphraseFailed
			return PassphraseResult{NextState: PassphraseFailed, Err: fmt.Errorf("%w: %s", coreerr.ErrProtocolViolation, f.Message)}
		}
		s.state = PassphraseComplete
		return PassphraseResult{NextState: PassphraseComplete, Complete: true}
	}
}

// Resubmit re-sends the same passphrase after a nested PIN session
// completed (spec §4.5.2). The caller is responsible for remembering
// the original passphrase text across the nested PIN dialog.
func (s *PassphraseSession) Resubmit(passphrase string) (protocol.Message, error) {
	return s.Submit(passphrase)
}
