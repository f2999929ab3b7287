//go:build linux

package transport

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestIsAccessContention_MatchesErrnoWithoutMarkerText(t *testing.T) {
	err := fmt.Errorf("libusb_control_transfer: %w", unix.EBUSY)
	assert.True(t, IsAccessContention(err))

	err = fmt.Errorf("libusb_control_transfer: %w", unix.ENODEV)
	assert.False(t, IsAccessContention(err))
}
