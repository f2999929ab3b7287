// Package coreerr defines the semantic error kinds produced by the
// device core (spec §7). Callers use errors.Is/errors.As against these
// sentinels instead of matching on error text.
package coreerr

import "errors"

// Transport-level kinds.
var (
	ErrDeviceBusy          = errors.New("transport: device busy")
	ErrTimeout             = errors.New("transport: timeout")
	ErrDisconnected        = errors.New("transport: disconnected")
	ErrProtocolViolation   = errors.New("transport: protocol violation")
)

// Decode-level kinds.
var (
	ErrDecodePartialOK       = errors.New("decode: partial features recovered")
	ErrDecodeCorruptedPolicy = errors.New("decode: corrupted policy data")
)

// Session-level kinds.
var (
	ErrSessionCancelled    = errors.New("session: user cancelled")
	ErrSessionTimeout      = errors.New("session: timeout")
	ErrSessionPinMismatch  = errors.New("session: pin mismatch")
	ErrSessionSeedIncorrect = errors.New("session: seed incorrect")
	ErrAlreadySubmitted    = errors.New("session: already submitted, confirm on device")
)

// Device-mode kinds.
var (
	ErrBootloaderMode = errors.New("device: operation requires firmware mode, device is in bootloader mode")
	ErrNeedsUpdate    = errors.New("device: firmware/bootloader update required")
)

// BusyError carries the user-actionable detail for ErrDeviceBusy.
type BusyError struct {
	Attempts int
	Message  string
}

func (e *BusyError) Error() string {
	return e.Message
}

func (e *BusyError) Unwrap() error {
	return ErrDeviceBusy
}

// ButtonRequiredError signals that the corrupted-policy recovery step
// (spec §4.4) cannot continue automatically because the device wants a
// physical button confirmation.
type ButtonRequiredError struct {
	Reason string
}

func (e *ButtonRequiredError) Error() string {
	return "confirm on device: " + e.Reason
}
