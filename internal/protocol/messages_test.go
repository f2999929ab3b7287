package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keepkeycore/internal/deviceinfo"
)

func roundTrip(t *testing.T, m Message) Message {
	t.Helper()
	typeCode, body := Encode(m)
	out, err := Decode(typeCode, body)
	require.NoError(t, err)
	return out
}

func TestRoundTrip_Features(t *testing.T) {
	in := Features{
		Vendor:         "keepkey.com",
		Major:          7, Minor: 2, Patch: 0,
		BootMajor: 2, BootMinor: 1, BootPatch: 4,
		DeviceID:       "abc123",
		BootloaderMode: false,
		Initialized:    true,
		PinCached:      true,
		Label:          "My KeepKey",
		Policies:       []deviceinfo.Policy{{Name: "ShapeShift", Enabled: true}},
	}
	out := roundTrip(t, in)
	got, ok := out.(Features)
	require.True(t, ok)
	assert.Equal(t, in.Vendor, got.Vendor)
	assert.Equal(t, in.DeviceID, got.DeviceID)
	assert.Equal(t, in.Initialized, got.Initialized)
	assert.Equal(t, in.Policies, got.Policies)
}

func TestRoundTrip_GetAddress(t *testing.T) {
	in := GetAddress{AddressN: []uint32{0x8000002C, 0x80000000, 0x80000000, 0, 0}, CoinName: "Bitcoin", ShowDisplay: true}
	out := roundTrip(t, in)
	got := out.(GetAddress)
	assert.Equal(t, in.AddressN, got.AddressN)
	assert.Equal(t, in.CoinName, got.CoinName)
	assert.True(t, got.ShowDisplay)
}

func TestRoundTrip_Failure(t *testing.T) {
	in := Failure{Code: FailurePinMismatch, Message: "PIN mismatch"}
	out := roundTrip(t, in)
	got := out.(Failure)
	assert.Equal(t, in.Code, got.Code)
	assert.Equal(t, in.Message, got.Message)
}

func TestRoundTrip_Empty(t *testing.T) {
	out := roundTrip(t, Initialize{})
	_, ok := out.(Initialize)
	assert.True(t, ok)
}

func TestDecode_InvalidUTF8InPolicyName_IsCorruptedPolicyError(t *testing.T) {
	var body []byte
	body = appendString(body, 1, "keepkey.com")
	body = appendUint32(body, 2, 7)
	body = appendUint32(body, 3, 0)
	body = appendUint32(body, 4, 0)
	body = appendString(body, 7, "dev1")
	body = appendBool(body, 5, false)
	body = appendBool(body, 6, true)
	body = appendBytes(body, 16, []byte{0xff, 0xfe, 0x00})

	_, err := Decode(TypeFeatures, body)
	require.Error(t, err)
	var cp *CorruptedPolicyError
	assert.ErrorAs(t, err, &cp)
}

func TestDecodeHeader_BadMagic(t *testing.T) {
	buf := make([]byte, HeaderSize)
	EncodeHeader(Header{TypeCode: 1, Length: 5}, buf)
	buf[0] = 0x00
	_, err := DecodeHeader(buf)
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestEncodeDecodeHeader_RoundTrip(t *testing.T) {
	buf := make([]byte, HeaderSize)
	h := Header{TypeCode: TypeFeatures, Length: 691}
	EncodeHeader(h, buf)
	got, err := DecodeHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestDecodeFeaturesForgiving_TruncatedAfterRequiredFields(t *testing.T) {
	var body []byte
	body = appendString(body, 1, "keepkey.com")
	body = appendUint32(body, 2, 7)
	body = appendUint32(body, 3, 1)
	body = appendUint32(body, 4, 0)
	body = appendBool(body, 5, false)
	body = appendBool(body, 6, true)
	body = appendString(body, 7, "dev1")
	// truncate mid next field's varint
	body = append(body, protowireTagOnly(8)...)

	snap, err := DecodeFeaturesForgiving(body)
	require.NoError(t, err)
	assert.True(t, snap.Partial)
	assert.Equal(t, "keepkey.com", snap.VendorString)
	assert.Equal(t, uint32(7), snap.FirmwareVersion.Major)
	assert.True(t, snap.Initialized)
}

func TestDecodeFeaturesForgiving_MissingRequiredField(t *testing.T) {
	var body []byte
	body = appendString(body, 1, "keepkey.com")
	_, err := DecodeFeaturesForgiving(body)
	assert.Error(t, err)
}

// protowireTagOnly builds a tag for field num with a varint wire type
// but no following value byte, to simulate a truncated frame.
func protowireTagOnly(num int32) []byte {
	// tag = (num << 3) | wiretype(0 = varint), encoded as a single-byte
	// varint since num is small.
	return []byte{byte(num << 3)}
}
