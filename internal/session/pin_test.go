package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keepkeycore/internal/coreerr"
	"keepkeycore/internal/protocol"
)

func TestPinSession_UnlockThenPassphraseRequest_IsNotAnError(t *testing.T) {
	s := NewPinUnlockSession("s1", time.Minute)
	_, err := s.SubmitPositions([]int{5, 2, 8, 1})
	require.NoError(t, err)

	result := s.HandleDeviceReply(protocol.PassphraseRequest{})
	assert.NoError(t, result.Err)
	assert.True(t, result.Complete)
	assert.True(t, result.StartPassphrase)
	assert.Equal(t, PinComplete, s.State())
}

func TestPinSession_ChangePin_SecondMismatch(t *testing.T) {
	s := NewPinChangeSession("s1", time.Minute)
	_, err := s.SubmitPositions([]int{1, 2, 3})
	require.NoError(t, err)
	r := s.HandleDeviceReply(protocol.Success{})
	require.NoError(t, r.Err)
	assert.Equal(t, PinAwaitingSecond, s.State())

	_, err = s.SubmitPositions([]int{4, 5, 6})
	require.NoError(t, err)
	r2 := s.HandleDeviceReply(protocol.Failure{Code: protocol.FailurePinMismatch})
	assert.ErrorIs(t, r2.Err, coreerr.ErrSessionPinMismatch)
	assert.Equal(t, PinMismatch, s.State())
}

func TestPinSession_Timeout(t *testing.T) {
	s := NewPinUnlockSession("s1", time.Millisecond)
	time.Sleep(2 * time.Millisecond)
	assert.True(t, s.CheckTimeout(time.Now()))
	assert.Equal(t, PinFailed, s.State())
}

func TestPinSession_RejectsOutOfRangePosition(t *testing.T) {
	s := NewPinUnlockSession("s1", time.Minute)
	_, err := s.SubmitPositions([]int{0, 10})
	assert.Error(t, err)
}

func TestIsDuplicateStartFailure(t *testing.T) {
	f := protocol.Failure{Code: protocol.FailureUnknownMessage}
	assert.True(t, IsDuplicateStartFailure(f, true))
	assert.False(t, IsDuplicateStartFailure(f, false))
}
