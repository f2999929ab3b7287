package protocol

// Type codes for the messages the core's operation table (spec §4.4)
// and session controllers (§4.5) actually exchange.
//
// OPEN QUESTION (spec §9): "the full field schema of Features and the
// exact numeric type codes... are defined by the upstream device
// protocol descriptor; implementers MUST import them verbatim rather
// than invent values." No such descriptor is available to this
// module, so the values below are placeholders assigned in ascending
// declaration order — NOT the real wire values. Replace this table
// with a generated one (e.g. from the upstream .proto) before talking
// to a real device; nothing outside this file depends on the specific
// numbers, only on the symbolic constants.
const (
	TypeInitialize uint16 = iota + 1
	TypeGetFeatures
	TypeFeatures
	TypePing
	TypeButtonRequest
	TypeButtonAck
	TypePinMatrixRequest
	TypePinMatrixAck
	TypePassphraseRequest
	TypePassphraseAck
	TypeCancel
	TypeWipeDevice
	TypeSuccess
	TypeFailure
	TypeGetAddress
	TypeAddress
	TypeGetPublicKey
	TypePublicKey
	TypeChangePin
	TypeResetDevice
	TypeRecoveryDevice
	TypeCharacterRequest
	TypeCharacterAck
	TypeSignTx
	TypeTxRequest
	TypeTxAck
	TypeFirmwareErase
	TypeFirmwareUpload
	TypeEntropyRequest
	TypeEntropyAck
)

// FailureCode mirrors the device's Failure.code field for the
// messages the worker/session layer needs to branch on (spec §4.5.1,
// §4.4 corrupted-policy recovery).
type FailureCode int32

const (
	FailureUnknown FailureCode = iota
	FailureUnknownMessage
	FailurePinMismatch
	FailureActionCancelled
	FailureInvalidSignature
	FailureNotInitialized
	FailureFirmwareError
)
