package session

import (
	"fmt"
	"time"

	"keepkeycore/internal/coreerr"
	"keepkeycore/internal/protocol"
)

// RecoveryState is one state of spec §4.5.3.
type RecoveryState int

const (
	RecoveryAwaitingCharacter RecoveryState = iota
	RecoveryAwaitingReconnect
	RecoveryComplete
	RecoveryFailed
)

func (s RecoveryState) Terminal() bool {
	return s == RecoveryComplete || s == RecoveryFailed
}

// RecoveryAction is one of the three user actions the controller
// accepts between characters, plus the explicit done signal.
type RecoveryAction int

const (
	RecoverySubmitCharacter RecoveryAction = iota
	RecoveryDelete
	RecoverySpaceNextWord
	RecoveryDone
)

// RecoverySession drives recovery-phrase entry, tracking the
// (word_index, char_index) cursor the device reports progress with.
type RecoverySession struct {
	ID          string
	CanonicalID string
	state       RecoveryState
	wordIndex   int
	charIndex   int
	deadline    time.Time
	reconnectBy time.Time
}

// NewRecoverySession starts a session bound to the device identified
// by canonicalID (spec §4.7's alias used for reconnection matching).
func NewRecoverySession(id, canonicalID string, timeout time.Duration) *RecoverySession {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &RecoverySession{
		ID:          id,
		CanonicalID: canonicalID,
		state:       RecoveryAwaitingCharacter,
		deadline:    time.Now().Add(timeout),
	}
}

func (s *RecoverySession) State() RecoveryState  { return s.state }
func (s *RecoverySession) Cursor() (int, int)    { return s.wordIndex, s.charIndex }
func (s *RecoverySession) Suspended() bool       { return s.state == RecoveryAwaitingReconnect }

func (s *RecoverySession) Prompt() Prompt {
	return Prompt{
		SessionID: s.ID,
		Kind:      PromptRecoveryCharacter,
		Recovery:  &RecoveryPrompt{WordIndex: s.wordIndex, CharIndex: s.charIndex},
	}
}

func (s *RecoverySession) CheckTimeout(now time.Time) bool {
	if s.state.Terminal() || s.state == RecoveryAwaitingReconnect {
		return false
	}
	if now.After(s.deadline) {
		s.state = RecoveryFailed
		return true
	}
	return false
}

// BuildAck translates a user action into the CharacterAck to send.
func (s *RecoverySession) BuildAck(action RecoveryAction, character string) (protocol.Message, error) {
	if s.state != RecoveryAwaitingCharacter {
		return nil, fmt.Errorf("recovery session %s: not accepting input (state %d)", s.ID, s.state)
	}
	switch action {
	case RecoverySubmitCharacter:
		return protocol.CharacterAck{Character: character}, nil
	case RecoveryDelete:
		return protocol.CharacterAck{Delete: true}, nil
	case RecoverySpaceNextWord:
		return protocol.CharacterAck{Character: " "}, nil
	case RecoveryDone:
		return protocol.CharacterAck{Done: true}, nil
	default:
		return nil, fmt.Errorf("recovery session %s: unknown action %d", s.ID, action)
	}
}

// RecoveryResult reports how a device reply advanced the session.
type RecoveryResult struct {
	NextState RecoveryState
	Complete  bool
	Err       error
}

// HandleDeviceReply advances the cursor from the device's response to
// a CharacterAck. A mismatch reply keeps the session open for retry
// unless the caller marks it (isFinalCharacter) as the reply to the
// final character,
// in which case the phrase is wrong and recovery fails outright
// (spec §4.5.3).
func (s *RecoverySession) HandleDeviceReply(m protocol.Message, isFinalCharacter bool) RecoveryResult {
	if s.state != RecoveryAwaitingCharacter {
		return RecoveryResult{NextState: s.state, Err: fmt.Errorf("recovery session %s: not awaiting a device reply (state %d)", s.ID, s.state)}
	}

	switch msg := m.(type) {
	case protocol.CharacterRequest:
		s.wordIndex = int(msg.WordPos)
		s.charIndex = int(msg.CharacterPos)
		return RecoveryResult{NextState: RecoveryAwaitingCharacter}
	case protocol.Success:
		s.state = RecoveryComplete
		return RecoveryResult{NextState: RecoveryComplete, Complete: true}
	case protocol.Failure:
		if isFinalCharacter {
			s.state = RecoveryFailed
			return RecoveryResult{NextState: RecoveryFailed, Err: coreerr.ErrSessionSeedIncorrect}
		}
		// transient mismatch: stay open, same cursor, caller retries.
		return RecoveryResult{NextState: RecoveryAwaitingCharacter, Err: fmt.Errorf("character mismatch at word %d char %d: %s", s.wordIndex, s.charIndex, msg.Message)}
	default:
		s.state = RecoveryFailed
		return RecoveryResult{NextState: RecoveryFailed, Err: coreerr.ErrProtocolViolation}
	}
}

// SuspendForReconnect preserves session state across a USB identity
// reissue (spec §4.5.3: "USB identity reissue mid-session"). The
// worker calls this instead of tearing the session down when a
// detach is observed while recovery is active.
func (s *RecoverySession) SuspendForReconnect(window time.Duration) {
	if s.state.Terminal() {
		return
	}
	s.state = RecoveryAwaitingReconnect
	s.reconnectBy = time.Now().Add(window)
}

// Resume restores the session after the matching device reattaches
// within the reconnection window, continuing from the last known
// cursor (spec §4.5.3, scenario 6).
func (s *RecoverySession) Resume(newCanonicalID string) error {
	if s.state != RecoveryAwaitingReconnect {
		return fmt.Errorf("recovery session %s: not suspended", s.ID)
	}
	if time.Now().After(s.reconnectBy) {
		s.state = RecoveryFailed
		return coreerr.ErrSessionTimeout
	}
	s.CanonicalID = newCanonicalID
	s.state = RecoveryAwaitingCharacter
	return nil
}

// ReconnectDeadline reports when a suspended session gives up
// waiting for its device to reattach.
func (s *RecoverySession) ReconnectDeadline() time.Time {
	return s.reconnectBy
}
