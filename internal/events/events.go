package events

import "keepkeycore/internal/deviceinfo"

// Kind identifies the category of an Event (spec §6).
type Kind string

const (
	KindDeviceAttached     Kind = "device_attached"
	KindDeviceDetached     Kind = "device_detached"
	KindDeviceStateChanged Kind = "device_state_changed"
	KindSessionPrompt      Kind = "session_prompt"
	KindSessionProgress    Kind = "session_progress"
	KindSessionCompleted   Kind = "session_completed"
	KindRecoveryReconnect  Kind = "recovery_reconnected"
)

// Event is the single envelope type published on the Bus. Payload is
// one of the Xxx structs below depending on Kind; callers type-assert
// after checking Kind, the same shallow-union style the session
// package uses for prompts.
type Event struct {
	Kind     Kind
	DeviceID string
	Payload  interface{}
}

// DeviceAttachedPayload accompanies KindDeviceAttached.
type DeviceAttachedPayload struct {
	Descriptor deviceinfo.Descriptor
}

// DeviceDetachedPayload accompanies KindDeviceDetached.
type DeviceDetachedPayload struct {
	Descriptor deviceinfo.Descriptor
}

// DeviceStateChangedPayload accompanies KindDeviceStateChanged, fired
// whenever the evaluated status of a device changes (spec §4.6).
type DeviceStateChangedPayload struct {
	Ready   bool
	Message string
}

// SessionPromptPayload accompanies KindSessionPrompt, fired when an
// interactive session needs a PIN, passphrase, button ack, or
// character entry from the caller.
type SessionPromptPayload struct {
	SessionID string
	Prompt    interface{}
}

// SessionProgressPayload accompanies KindSessionProgress (e.g.
// firmware upload percent complete).
type SessionProgressPayload struct {
	SessionID string
	Percent   int
}

// SessionCompletedPayload accompanies KindSessionCompleted.
type SessionCompletedPayload struct {
	SessionID string
	Err       error
}

// RecoveryReconnectPayload accompanies KindRecoveryReconnect, fired
// when a device reappears under a new USB identity mid-recovery
// (spec §4.7).
type RecoveryReconnectPayload struct {
	OldCanonicalID string
	NewCanonicalID string
}
