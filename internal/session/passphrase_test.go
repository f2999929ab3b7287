package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keepkeycore/internal/coreerr"
	"keepkeycore/internal/protocol"
)

func TestPassphraseSession_DuplicateSubmitRejected(t *testing.T) {
	s := NewPassphraseSession("s1", time.Minute)
	_, err := s.Submit("hunter2")
	require.NoError(t, err)

	_, err = s.Submit("hunter2")
	assert.ErrorIs(t, err, coreerr.ErrAlreadySubmitted)
}

func TestPassphraseSession_PinRequestedFirst_ThenResubmit(t *testing.T) {
	s := NewPassphraseSession("s1", time.Minute)
	_, err := s.Submit("hunter2")
	require.NoError(t, err)

	r := s.HandleDeviceReply(protocol.PinMatrixRequest{})
	assert.True(t, r.NeedsPin)
	assert.Equal(t, PassphraseAwaitingInput, s.State())

	_, err = s.Resubmit("hunter2")
	require.NoError(t, err)
	r2 := s.HandleDeviceReply(protocol.Success{})
	assert.True(t, r2.Complete)
}

func TestPassphraseSession_CompletesOnPublicKey(t *testing.T) {
	s := NewPassphraseSession("s1", time.Minute)
	_, err := s.Submit("")
	require.NoError(t, err)
	r := s.HandleDeviceReply(protocol.PublicKey{Xpub: "xpub..."})
	assert.True(t, r.Complete)
	assert.Equal(t, PassphraseComplete, s.State())
}
