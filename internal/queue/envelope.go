// Package queue implements the per-device command queue worker (spec
// §4.4): one goroutine owns the only transport handle to a device,
// drains a FIFO request channel, and drives the interactive session
// controllers from internal/session when an operation needs a PIN,
// passphrase, or button confirmation.
package queue

import "keepkeycore/internal/deviceinfo"

// Operation enumerates the worker's public contract (spec §4.4 table).
type Operation int

const (
	OpGetFeatures Operation = iota
	OpGetAddress
	OpGetXpub
	OpSignTx
	OpChangePin
	OpResetDevice
	OpRecoveryDevice
	OpWipeDevice
	OpUpdateFirmware
	OpUpdateBootloader
	OpSessionReply
)

// GetAddressInput is the input for OpGetAddress.
type GetAddressInput struct {
	AddressN    []uint32
	CoinName    string
	ScriptType  int32
	ShowDisplay bool
}

// SignTxInput is the input for OpSignTx. The template is left opaque
// (raw protobuf-encodable bytes) since the real transaction message
// schema is outside this core's scope (spec §9 Open Question on wire
// type codes applies equally to higher-level coin message sets).
type SignTxInput struct {
	Template []byte
}

// ChangePinInput is the input for OpChangePin.
type ChangePinInput struct {
	Remove bool
}

// RecoveryInput is the input for OpResetDevice / OpRecoveryDevice.
type RecoveryInput struct {
	WordCount            uint32
	PassphraseProtection bool
	PinProtection        bool
	Label                string
}

// SessionReplyInput carries a user's answer to an outstanding prompt
// (spec §4.4: "session-reply operations... routed to the active
// session"). Exactly one of the Xxx fields is populated, selected by
// which session.PromptKind the prompt named.
type SessionReplyInput struct {
	SessionID        string
	PinPositions     []int
	Passphrase       string
	ButtonConfirmed  bool
	RecoveryAction   int // session.RecoveryAction, kept as int to avoid an import cycle on the request struct
	RecoveryCharacter string
}

// Request is one FIFO entry. ReplyCh receives exactly one Response.
type Request struct {
	Op          Operation
	GetAddress  *GetAddressInput
	SignTx      *SignTxInput
	ChangePin   *ChangePinInput
	Recovery    *RecoveryInput
	Firmware    []byte
	SessionReply *SessionReplyInput
	ReplyCh     chan Response
}

// Response is the single result every Request eventually receives.
type Response struct {
	Features *deviceinfo.FeaturesSnapshot
	Address  string
	Xpub     string
	Signed   []byte
	Err      error
}
