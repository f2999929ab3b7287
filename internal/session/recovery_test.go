package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keepkeycore/internal/coreerr"
	"keepkeycore/internal/protocol"
)

func TestRecoverySession_CursorAdvancesOnCharacterRequest(t *testing.T) {
	s := NewRecoverySession("r1", "canon1", time.Minute)
	_, err := s.BuildAck(RecoverySubmitCharacter, "a")
	require.NoError(t, err)

	r := s.HandleDeviceReply(protocol.CharacterRequest{WordPos: 5, CharacterPos: 2}, false)
	assert.NoError(t, r.Err)
	w, c := s.Cursor()
	assert.Equal(t, 5, w)
	assert.Equal(t, 2, c)
}

func TestRecoverySession_MismatchNotFinal_StaysOpen(t *testing.T) {
	s := NewRecoverySession("r1", "canon1", time.Minute)
	_, _ = s.BuildAck(RecoverySubmitCharacter, "x")
	r := s.HandleDeviceReply(protocol.Failure{Message: "mismatch"}, false)
	assert.Error(t, r.Err)
	assert.Equal(t, RecoveryAwaitingCharacter, s.State())
}

func TestRecoverySession_MismatchAtFinalCharacter_FailsSeedIncorrect(t *testing.T) {
	s := NewRecoverySession("r1", "canon1", time.Minute)
	_, _ = s.BuildAck(RecoveryDone, "")
	r := s.HandleDeviceReply(protocol.Failure{Message: "mismatch"}, true)
	assert.ErrorIs(t, r.Err, coreerr.ErrSessionSeedIncorrect)
	assert.Equal(t, RecoveryFailed, s.State())
}

func TestRecoverySession_SuspendAndResumeAfterReconnect(t *testing.T) {
	s := NewRecoverySession("r1", "canon1", time.Minute)
	_, _ = s.BuildAck(RecoverySubmitCharacter, "a")
	_ = s.HandleDeviceReply(protocol.CharacterRequest{WordPos: 5, CharacterPos: 2}, false)

	s.SuspendForReconnect(60 * time.Second)
	assert.True(t, s.Suspended())

	require.NoError(t, s.Resume("canon2"))
	assert.Equal(t, RecoveryAwaitingCharacter, s.State())
	assert.Equal(t, "canon2", s.CanonicalID)
	w, c := s.Cursor()
	assert.Equal(t, 5, w)
	assert.Equal(t, 2, c)
}

func TestRecoverySession_ResumeAfterWindowExpires_Fails(t *testing.T) {
	s := NewRecoverySession("r1", "canon1", time.Minute)
	s.SuspendForReconnect(time.Millisecond)
	time.Sleep(2 * time.Millisecond)

	err := s.Resume("canon2")
	assert.ErrorIs(t, err, coreerr.ErrSessionTimeout)
	assert.Equal(t, RecoveryFailed, s.State())
}
