// Package session implements the three interactive device dialogs
// (spec §4.5) as explicit state machines: PIN matrix entry, passphrase
// entry, and recovery-phrase entry. Each is a plain (state, pending
// reply) value advanced by device messages and user replies; none of
// them use goroutines or channels internally (spec §9: "no
// coroutines") — the owning queue worker drives them step by step and
// only the worker's request/reply channels cross goroutine
// boundaries.
package session

import (
	"time"

	"keepkeycore/internal/coreerr"
	"keepkeycore/internal/protocol"
)

// DefaultTimeout is the default bound a session waits for a user
// reply before failing with coreerr.ErrSessionTimeout (spec §4.5.1
// invariant 3).
const DefaultTimeout = 120 * time.Second

// Prompt is what a session asks the UI for. Kind determines which of
// the Xxx payload fields is meaningful; callers switch on Kind the
// same way internal/events callers switch on events.Kind.
type Prompt struct {
	SessionID string
	Kind      PromptKind
	PinMatrix *PinMatrixPrompt
	Recovery  *RecoveryPrompt
}

// PromptKind enumerates the distinct UI prompts a session can raise.
type PromptKind int

const (
	PromptPinMatrix PromptKind = iota
	PromptPassphrase
	PromptButton
	PromptRecoveryCharacter
)

// PinMatrixPrompt carries only whether this is the confirmation entry:
// the scrambled 3x3 layout is fixed (spec §4.5.1) and known to every
// UI already.
type PinMatrixPrompt struct {
	Second bool // true if this is the confirmation entry of a PIN change
}

// RecoveryPrompt reports the controller's current cursor so the UI
// can show progress.
type RecoveryPrompt struct {
	WordIndex int
	CharIndex int
}

// outcome is the common terminal result every controller reduces to.
type outcome struct {
	done bool
	err  error
}

func timeoutOutcome() outcome {
	return outcome{done: true, err: coreerr.ErrSessionTimeout}
}

// asFailure reports whether m is a device Failure message, returning
// the Failure when so.
func asFailure(m protocol.Message) (protocol.Failure, bool) {
	f, ok := m.(protocol.Failure)
	return f, ok
}
