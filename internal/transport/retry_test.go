package transport

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keepkeycore/internal/coreerr"
)

func TestIsAccessContention_MatchesKnownPatterns(t *testing.T) {
	assert.True(t, IsAccessContention(errors.New("LIBUSB_ERROR_ACCESS: permission denied")))
	assert.True(t, IsAccessContention(errors.New("device or resource busy")))
	assert.False(t, IsAccessContention(errors.New("no such device")))
	assert.False(t, IsAccessContention(nil))
}

func TestOpenWithRetry_StopsAfterFifthRetry(t *testing.T) {
	orig := sleepFunc
	var slept []time.Duration
	sleepFunc = func(d time.Duration) { slept = append(slept, d) }
	defer func() { sleepFunc = orig }()

	attempts := 0
	err := OpenWithRetry(func() error {
		attempts++
		return errors.New("exclusive access denied")
	})

	require.Error(t, err)
	var busy *coreerr.BusyError
	require.ErrorAs(t, err, &busy)
	assert.Equal(t, 6, attempts)
	assert.Equal(t, RetryBackoff, slept)

	var total time.Duration
	for _, d := range slept {
		total += d
	}
	assert.LessOrEqual(t, total, 3100*time.Millisecond)
	assert.Equal(t, 3100*time.Millisecond, total)
}

func TestOpenWithRetry_NonContentionFailsImmediately(t *testing.T) {
	attempts := 0
	err := OpenWithRetry(func() error {
		attempts++
		return errors.New("no such device")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.NotErrorIs(t, err, coreerr.ErrDeviceBusy)
}

func TestOpenWithRetry_SucceedsAfterTransientContention(t *testing.T) {
	orig := sleepFunc
	sleepFunc = func(time.Duration) {}
	defer func() { sleepFunc = orig }()

	attempts := 0
	err := OpenWithRetry(func() error {
		attempts++
		if attempts < 3 {
			return errors.New("device busy")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}
