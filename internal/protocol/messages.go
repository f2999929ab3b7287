package protocol

import (
	"keepkeycore/internal/deviceinfo"
)

// Message is any typed protocol message the framer can encode.
type Message interface {
	typeCode() uint16
	marshal() []byte
}

// Encode maps a typed message to its wire type code and serialized
// body (spec §4.1 encode contract).
func Encode(m Message) (uint16, []byte) {
	return m.typeCode(), m.marshal()
}

// Decode maps a wire type code and body back to a typed message (spec
// §4.1 decode contract). Invalid UTF-8 in a string field yields
// *DecodeError (or *CorruptedPolicyError for a policy name) so callers
// can distinguish "bad frame" from "transport dropped"; a malformed or
// truncated field yields a plain error.
func Decode(typeCode uint16, body []byte) (Message, error) {
	switch typeCode {
	case TypeInitialize:
		return Initialize{}, nil
	case TypeGetFeatures:
		return GetFeatures{}, nil
	case TypeFeatures:
		return decodeFeatures(body)
	case TypePing:
		return decodePing(body)
	case TypeButtonRequest:
		return decodeButtonRequest(body)
	case TypeButtonAck:
		return ButtonAck{}, nil
	case TypePinMatrixRequest:
		return decodePinMatrixRequest(body)
	case TypePinMatrixAck:
		return decodePinMatrixAck(body)
	case TypePassphraseRequest:
		return decodePassphraseRequest(body)
	case TypePassphraseAck:
		return decodePassphraseAck(body)
	case TypeCancel:
		return Cancel{}, nil
	case TypeWipeDevice:
		return WipeDevice{}, nil
	case TypeSuccess:
		return decodeSuccess(body)
	case TypeFailure:
		return decodeFailure(body)
	case TypeGetAddress:
		return decodeGetAddress(body)
	case TypeAddress:
		return decodeAddress(body)
	case TypeGetPublicKey:
		return decodeGetPublicKey(body)
	case TypePublicKey:
		return decodePublicKey(body)
	case TypeChangePin:
		return decodeChangePin(body)
	case TypeResetDevice:
		return decodeResetDevice(body)
	case TypeRecoveryDevice:
		return decodeRecoveryDevice(body)
	case TypeCharacterRequest:
		return decodeCharacterRequest(body)
	case TypeCharacterAck:
		return decodeCharacterAck(body)
	case TypeFirmwareErase:
		return decodeFirmwareErase(body)
	case TypeFirmwareUpload:
		return decodeFirmwareUpload(body)
	case TypeEntropyRequest:
		return EntropyRequest{}, nil
	case TypeEntropyAck:
		return decodeEntropyAck(body)
	default:
		return nil, &DecodeError{TypeCode: typeCode, Reason: "unknown type code"}
	}
}

// --- empty messages ---

type Initialize struct{}
type GetFeatures struct{}
type ButtonAck struct{}
type Cancel struct{}
type WipeDevice struct{}
type EntropyRequest struct{}

func (Initialize) typeCode() uint16    { return TypeInitialize }
func (Initialize) marshal() []byte     { return nil }
func (GetFeatures) typeCode() uint16   { return TypeGetFeatures }
func (GetFeatures) marshal() []byte    { return nil }
func (ButtonAck) typeCode() uint16     { return TypeButtonAck }
func (ButtonAck) marshal() []byte      { return nil }
func (Cancel) typeCode() uint16        { return TypeCancel }
func (Cancel) marshal() []byte         { return nil }
func (WipeDevice) typeCode() uint16    { return TypeWipeDevice }
func (WipeDevice) marshal() []byte     { return nil }
func (EntropyRequest) typeCode() uint16 { return TypeEntropyRequest }
func (EntropyRequest) marshal() []byte  { return nil }

// --- Features ---

// Features mirrors deviceinfo.FeaturesSnapshot field for field; it is
// the wire shape, deviceinfo.FeaturesSnapshot is the domain shape.
type Features struct {
	Vendor                string
	Major, Minor, Patch   uint32
	BootMajor, BootMinor, BootPatch uint32
	DeviceID              string
	BootloaderMode        bool
	Initialized           bool
	PinProtection         bool
	PinCached             bool
	PassphraseProtection  bool
	PassphraseCached      bool
	Label                 string
	Policies              []deviceinfo.Policy
}

func (Features) typeCode() uint16 { return TypeFeatures }

func (f Features) marshal() []byte {
	var b []byte
	b = appendString(b, 1, f.Vendor)
	b = appendUint32(b, 2, f.Major)
	b = appendUint32(b, 3, f.Minor)
	b = appendUint32(b, 4, f.Patch)
	b = appendBool(b, 5, f.BootloaderMode)
	b = appendBool(b, 6, f.Initialized)
	b = appendString(b, 7, f.DeviceID)
	b = appendBool(b, 8, f.PinProtection)
	b = appendBool(b, 9, f.PinCached)
	b = appendBool(b, 10, f.PassphraseProtection)
	b = appendBool(b, 11, f.PassphraseCached)
	b = appendString(b, 12, f.Label)
	b = appendUint32(b, 13, f.BootMajor)
	b = appendUint32(b, 14, f.BootMinor)
	b = appendUint32(b, 15, f.BootPatch)
	for _, p := range f.Policies {
		enc := p.Name
		if p.Enabled {
			enc = "1:" + p.Name
		} else {
			enc = "0:" + p.Name
		}
		b = appendString(b, 16, enc)
	}
	return b
}

func decodeFeatures(body []byte) (Message, error) {
	var f Features
	err := walkFields(body, func(fd field) error {
		switch fd.num {
		case 1:
			s, err := utf8Field(fd, -1)
			if err != nil {
				return err
			}
			f.Vendor = s
		case 2:
			f.Major = uint32(fd.u64)
		case 3:
			f.Minor = uint32(fd.u64)
		case 4:
			f.Patch = uint32(fd.u64)
		case 5:
			f.BootloaderMode = fd.u64 != 0
		case 6:
			f.Initialized = fd.u64 != 0
		case 7:
			s, err := utf8Field(fd, -1)
			if err != nil {
				return err
			}
			f.DeviceID = s
		case 8:
			f.PinProtection = fd.u64 != 0
		case 9:
			f.PinCached = fd.u64 != 0
		case 10:
			f.PassphraseProtection = fd.u64 != 0
		case 11:
			f.PassphraseCached = fd.u64 != 0
		case 12:
			s, err := utf8Field(fd, -1)
			if err != nil {
				return err
			}
			f.Label = s
		case 13:
			f.BootMajor = uint32(fd.u64)
		case 14:
			f.BootMinor = uint32(fd.u64)
		case 15:
			f.BootPatch = uint32(fd.u64)
		case 16:
			idx := len(f.Policies)
			s, err := utf8Field(fd, idx)
			if err != nil {
				return err
			}
			f.Policies = append(f.Policies, parsePolicy(s))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

func parsePolicy(enc string) deviceinfo.Policy {
	if len(enc) >= 2 && enc[1] == ':' {
		return deviceinfo.Policy{Name: enc[2:], Enabled: enc[0] == '1'}
	}
	return deviceinfo.Policy{Name: enc}
}

// ToSnapshot converts the wire Features message into the domain
// FeaturesSnapshot (spec §3).
func (f Features) ToSnapshot() deviceinfo.FeaturesSnapshot {
	return deviceinfo.FeaturesSnapshot{
		VendorString:         f.Vendor,
		BootloaderMode:       f.BootloaderMode,
		FirmwareVersion:      deviceinfo.Version{Major: f.Major, Minor: f.Minor, Patch: f.Patch},
		BootloaderVersion:    deviceinfo.Version{Major: f.BootMajor, Minor: f.BootMinor, Patch: f.BootPatch},
		DeviceID:             f.DeviceID,
		Initialized:          f.Initialized,
		PINProtection:        f.PinProtection,
		PINCached:            f.PinCached,
		PassphraseProtection: f.PassphraseProtection,
		PassphraseCached:     f.PassphraseCached,
		Label:                f.Label,
		Policies:             f.Policies,
	}
}

// utf8Field validates that a bytes-typed field is valid UTF-8, the
// structural check spec §4.1 requires the framer to surface as a
// recoverable decode error. policyIndex >= 0 marks this as a policy
// name field, producing a *CorruptedPolicyError instead of a generic
// *DecodeError (spec §7 decode.corrupted_policy).
func utf8Field(fd field, policyIndex int) (string, error) {
	if !isValidUTF8(fd.b) {
		if policyIndex >= 0 {
			return "", &CorruptedPolicyError{Index: policyIndex}
		}
		return "", &DecodeError{TypeCode: TypeFeatures, Reason: "invalid UTF-8 in field"}
	}
	return string(fd.b), nil
}

func isValidUTF8(b []byte) bool {
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c < 0x80:
			i++
		case c&0xE0 == 0xC0:
			if i+1 >= len(b) || b[i+1]&0xC0 != 0x80 {
				return false
			}
			i += 2
		case c&0xF0 == 0xE0:
			if i+2 >= len(b) || b[i+1]&0xC0 != 0x80 || b[i+2]&0xC0 != 0x80 {
				return false
			}
			i += 3
		case c&0xF8 == 0xF0:
			if i+3 >= len(b) || b[i+1]&0xC0 != 0x80 || b[i+2]&0xC0 != 0x80 || b[i+3]&0xC0 != 0x80 {
				return false
			}
			i += 4
		default:
			return false
		}
	}
	return true
}

// --- Ping / Success / Failure ---

type Ping struct{ Message string }
type Success struct{ Message string }
type Failure struct {
	Code    FailureCode
	Message string
}

func (Ping) typeCode() uint16    { return TypePing }
func (p Ping) marshal() []byte   { return appendString(nil, 1, p.Message) }
func (Success) typeCode() uint16 { return TypeSuccess }
func (s Success) marshal() []byte { return appendString(nil, 1, s.Message) }
func (Failure) typeCode() uint16  { return TypeFailure }
func (f Failure) marshal() []byte {
	b := appendInt32(nil, 1, int32(f.Code))
	return appendString(b, 2, f.Message)
}

func decodePing(body []byte) (Message, error) {
	var m Ping
	err := walkFields(body, func(fd field) error {
		if fd.num == 1 {
			m.Message = string(fd.b)
		}
		return nil
	})
	return m, err
}

func decodeSuccess(body []byte) (Message, error) {
	var m Success
	err := walkFields(body, func(fd field) error {
		if fd.num == 1 {
			m.Message = string(fd.b)
		}
		return nil
	})
	return m, err
}

func decodeFailure(body []byte) (Message, error) {
	var m Failure
	err := walkFields(body, func(fd field) error {
		switch fd.num {
		case 1:
			m.Code = FailureCode(int32(fd.u64))
		case 2:
			m.Message = string(fd.b)
		}
		return nil
	})
	return m, err
}

// --- Button ---

type ButtonRequest struct{ Code int32 }

func (ButtonRequest) typeCode() uint16   { return TypeButtonRequest }
func (b ButtonRequest) marshal() []byte { return appendInt32(nil, 1, b.Code) }

func decodeButtonRequest(body []byte) (Message, error) {
	var m ButtonRequest
	err := walkFields(body, func(fd field) error {
		if fd.num == 1 {
			m.Code = int32(fd.u64)
		}
		return nil
	})
	return m, err
}

// --- PIN matrix ---

type PinMatrixRequest struct{ Kind int32 }
type PinMatrixAck struct{ Pin string }

func (PinMatrixRequest) typeCode() uint16   { return TypePinMatrixRequest }
func (p PinMatrixRequest) marshal() []byte { return appendInt32(nil, 1, p.Kind) }
func (PinMatrixAck) typeCode() uint16       { return TypePinMatrixAck }
func (p PinMatrixAck) marshal() []byte     { return appendString(nil, 1, p.Pin) }

func decodePinMatrixRequest(body []byte) (Message, error) {
	var m PinMatrixRequest
	err := walkFields(body, func(fd field) error {
		if fd.num == 1 {
			m.Kind = int32(fd.u64)
		}
		return nil
	})
	return m, err
}

func decodePinMatrixAck(body []byte) (Message, error) {
	var m PinMatrixAck
	err := walkFields(body, func(fd field) error {
		if fd.num == 1 {
			m.Pin = string(fd.b)
		}
		return nil
	})
	return m, err
}

// --- Passphrase ---

type PassphraseRequest struct{ OnDevice bool }
type PassphraseAck struct{ Passphrase string }

func (PassphraseRequest) typeCode() uint16   { return TypePassphraseRequest }
func (p PassphraseRequest) marshal() []byte { return appendBool(nil, 1, p.OnDevice) }
func (PassphraseAck) typeCode() uint16       { return TypePassphraseAck }
func (p PassphraseAck) marshal() []byte     { return appendString(nil, 1, p.Passphrase) }

func decodePassphraseRequest(body []byte) (Message, error) {
	var m PassphraseRequest
	err := walkFields(body, func(fd field) error {
		if fd.num == 1 {
			m.OnDevice = fd.u64 != 0
		}
		return nil
	})
	return m, err
}

func decodePassphraseAck(body []byte) (Message, error) {
	var m PassphraseAck
	err := walkFields(body, func(fd field) error {
		if fd.num == 1 {
			m.Passphrase = string(fd.b)
		}
		return nil
	})
	return m, err
}

// --- Addresses / public keys ---

type GetAddress struct {
	AddressN    []uint32
	CoinName    string
	ScriptType  int32
	ShowDisplay bool
}
type Address struct{ Address string }
type GetPublicKey struct{ AddressN []uint32 }
type PublicKey struct{ Xpub string }

func (GetAddress) typeCode() uint16 { return TypeGetAddress }
func (g GetAddress) marshal() []byte {
	b := appendUint32Slice(nil, 1, g.AddressN)
	b = appendString(b, 2, g.CoinName)
	b = appendInt32(b, 3, g.ScriptType)
	return appendBool(b, 4, g.ShowDisplay)
}
func (Address) typeCode() uint16     { return TypeAddress }
func (a Address) marshal() []byte    { return appendString(nil, 1, a.Address) }
func (GetPublicKey) typeCode() uint16 { return TypeGetPublicKey }
func (g GetPublicKey) marshal() []byte { return appendUint32Slice(nil, 1, g.AddressN) }
func (PublicKey) typeCode() uint16    { return TypePublicKey }
func (p PublicKey) marshal() []byte   { return appendString(nil, 1, p.Xpub) }

func decodeGetAddress(body []byte) (Message, error) {
	var m GetAddress
	err := walkFields(body, func(fd field) error {
		switch fd.num {
		case 1:
			m.AddressN = append(m.AddressN, uint32(fd.u64))
		case 2:
			m.CoinName = string(fd.b)
		case 3:
			m.ScriptType = int32(fd.u64)
		case 4:
			m.ShowDisplay = fd.u64 != 0
		}
		return nil
	})
	return m, err
}

func decodeAddress(body []byte) (Message, error) {
	var m Address
	err := walkFields(body, func(fd field) error {
		if fd.num == 1 {
			m.Address = string(fd.b)
		}
		return nil
	})
	return m, err
}

func decodeGetPublicKey(body []byte) (Message, error) {
	var m GetPublicKey
	err := walkFields(body, func(fd field) error {
		if fd.num == 1 {
			m.AddressN = append(m.AddressN, uint32(fd.u64))
		}
		return nil
	})
	return m, err
}

func decodePublicKey(body []byte) (Message, error) {
	var m PublicKey
	err := walkFields(body, func(fd field) error {
		if fd.num == 1 {
			m.Xpub = string(fd.b)
		}
		return nil
	})
	return m, err
}

// --- Pin/reset/recovery configuration ---

type ChangePin struct{ Remove bool }
type ResetDevice struct {
	Strength      uint32
	Passphrase    bool
	PinProtection bool
	Label         string
}
type RecoveryDevice struct {
	WordCount            uint32
	PassphraseProtection bool
	PinProtection        bool
	Label                string
}

func (ChangePin) typeCode() uint16   { return TypeChangePin }
func (c ChangePin) marshal() []byte  { return appendBool(nil, 1, c.Remove) }
func (ResetDevice) typeCode() uint16 { return TypeResetDevice }
func (r ResetDevice) marshal() []byte {
	b := appendUint32(nil, 1, r.Strength)
	b = appendBool(b, 2, r.Passphrase)
	b = appendBool(b, 3, r.PinProtection)
	return appendString(b, 4, r.Label)
}
func (RecoveryDevice) typeCode() uint16 { return TypeRecoveryDevice }
func (r RecoveryDevice) marshal() []byte {
	b := appendUint32(nil, 1, r.WordCount)
	b = appendBool(b, 2, r.PassphraseProtection)
	b = appendBool(b, 3, r.PinProtection)
	return appendString(b, 4, r.Label)
}

func decodeChangePin(body []byte) (Message, error) {
	var m ChangePin
	err := walkFields(body, func(fd field) error {
		if fd.num == 1 {
			m.Remove = fd.u64 != 0
		}
		return nil
	})
	return m, err
}

func decodeResetDevice(body []byte) (Message, error) {
	var m ResetDevice
	err := walkFields(body, func(fd field) error {
		switch fd.num {
		case 1:
			m.Strength = uint32(fd.u64)
		case 2:
			m.Passphrase = fd.u64 != 0
		case 3:
			m.PinProtection = fd.u64 != 0
		case 4:
			m.Label = string(fd.b)
		}
		return nil
	})
	return m, err
}

func decodeRecoveryDevice(body []byte) (Message, error) {
	var m RecoveryDevice
	err := walkFields(body, func(fd field) error {
		switch fd.num {
		case 1:
			m.WordCount = uint32(fd.u64)
		case 2:
			m.PassphraseProtection = fd.u64 != 0
		case 3:
			m.PinProtection = fd.u64 != 0
		case 4:
			m.Label = string(fd.b)
		}
		return nil
	})
	return m, err
}

// --- Recovery character entry ---

type CharacterRequest struct {
	WordPos      uint32
	CharacterPos uint32
}
type CharacterAck struct {
	Character string
	Delete    bool
	Done      bool
}

func (CharacterRequest) typeCode() uint16 { return TypeCharacterRequest }
func (c CharacterRequest) marshal() []byte {
	b := appendUint32(nil, 1, c.WordPos)
	return appendUint32(b, 2, c.CharacterPos)
}
func (CharacterAck) typeCode() uint16 { return TypeCharacterAck }
func (c CharacterAck) marshal() []byte {
	b := appendString(nil, 1, c.Character)
	b = appendBool(b, 2, c.Delete)
	return appendBool(b, 3, c.Done)
}

func decodeCharacterRequest(body []byte) (Message, error) {
	var m CharacterRequest
	err := walkFields(body, func(fd field) error {
		switch fd.num {
		case 1:
			m.WordPos = uint32(fd.u64)
		case 2:
			m.CharacterPos = uint32(fd.u64)
		}
		return nil
	})
	return m, err
}

func decodeCharacterAck(body []byte) (Message, error) {
	var m CharacterAck
	err := walkFields(body, func(fd field) error {
		switch fd.num {
		case 1:
			m.Character = string(fd.b)
		case 2:
			m.Delete = fd.u64 != 0
		case 3:
			m.Done = fd.u64 != 0
		}
		return nil
	})
	return m, err
}

// --- Firmware / bootloader update ---

type FirmwareErase struct{ Length uint32 }
type FirmwareUpload struct {
	Payload []byte
	Hash    []byte
}

func (FirmwareErase) typeCode() uint16   { return TypeFirmwareErase }
func (f FirmwareErase) marshal() []byte { return appendUint32(nil, 1, f.Length) }
func (FirmwareUpload) typeCode() uint16  { return TypeFirmwareUpload }
func (f FirmwareUpload) marshal() []byte {
	b := appendBytes(nil, 1, f.Payload)
	return appendBytes(b, 2, f.Hash)
}

func decodeFirmwareErase(body []byte) (Message, error) {
	var m FirmwareErase
	err := walkFields(body, func(fd field) error {
		if fd.num == 1 {
			m.Length = uint32(fd.u64)
		}
		return nil
	})
	return m, err
}

func decodeFirmwareUpload(body []byte) (Message, error) {
	var m FirmwareUpload
	err := walkFields(body, func(fd field) error {
		switch fd.num {
		case 1:
			m.Payload = append([]byte(nil), fd.b...)
		case 2:
			m.Hash = append([]byte(nil), fd.b...)
		}
		return nil
	})
	return m, err
}

// --- Entropy ---

type EntropyAck struct{ Entropy []byte }

func (EntropyAck) typeCode() uint16 { return TypeEntropyAck }
func (e EntropyAck) marshal() []byte { return appendBytes(nil, 1, e.Entropy) }

func decodeEntropyAck(body []byte) (Message, error) {
	var m EntropyAck
	err := walkFields(body, func(fd field) error {
		if fd.num == 1 {
			m.Entropy = append([]byte(nil), fd.b...)
		}
		return nil
	})
	return m, err
}
