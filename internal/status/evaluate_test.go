package status

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"keepkeycore/internal/deviceinfo"
)

var thresholds = Thresholds{
	MinBootloaderVersion: deviceinfo.Version{Major: 2, Minor: 1, Patch: 0},
	MinFirmwareVersion:   deviceinfo.Version{Major: 7, Minor: 0, Patch: 0},
}

func TestEvaluate_BootloaderModeNeverReady(t *testing.T) {
	f := deviceinfo.FeaturesSnapshot{
		BootloaderMode:    true,
		BootloaderVersion: deviceinfo.Version{Major: 9, Minor: 9, Patch: 9},
	}
	s := Evaluate(f, thresholds)
	assert.False(t, s.Ready)
	assert.True(t, s.BootloaderUpdateRequired)
	assert.Equal(t, "Device in bootloader mode", s.Message)
}

func TestEvaluate_LegacyBootloaderVersionFlagged(t *testing.T) {
	f := deviceinfo.FeaturesSnapshot{
		BootloaderMode:    true,
		BootloaderVersion: deviceinfo.Version{Major: 2, Minor: 1, Patch: 4},
	}
	s := Evaluate(f, thresholds)
	assert.True(t, s.BootloaderUpdateRequired)
	assert.False(t, s.Ready)
}

func TestEvaluate_ReadyPath(t *testing.T) {
	f := deviceinfo.FeaturesSnapshot{
		BootloaderMode:       false,
		BootloaderVersion:    deviceinfo.Version{Major: 2, Minor: 1, Patch: 4},
		FirmwareVersion:      deviceinfo.Version{Major: 7, Minor: 2, Patch: 0},
		Initialized:          true,
		PINProtection:        true,
		PINCached:            true,
		PassphraseProtection: false,
	}
	s := Evaluate(f, thresholds)
	assert.True(t, s.Ready)
	assert.False(t, s.PassphrasePending)
	assert.Empty(t, s.Message)
}

func TestEvaluate_PinLockedNotReady(t *testing.T) {
	f := deviceinfo.FeaturesSnapshot{
		BootloaderVersion: deviceinfo.Version{Major: 2, Minor: 1, Patch: 4},
		FirmwareVersion:   deviceinfo.Version{Major: 7, Minor: 2, Patch: 0},
		Initialized:       true,
		PINProtection:     true,
		PINCached:         false,
	}
	s := Evaluate(f, thresholds)
	assert.True(t, s.PINLocked)
	assert.False(t, s.Ready)
}

func TestEvaluate_ReadyImpliesInvariant(t *testing.T) {
	// spec §8: Ready implies !bootloader_mode && (pin_protection -> pin_cached)
	cases := []deviceinfo.FeaturesSnapshot{
		{BootloaderVersion: deviceinfo.Version{Major: 2, Minor: 1}, FirmwareVersion: deviceinfo.Version{Major: 7}, Initialized: true},
		{BootloaderVersion: deviceinfo.Version{Major: 2, Minor: 1}, FirmwareVersion: deviceinfo.Version{Major: 7}, Initialized: true, PINProtection: true, PINCached: true},
	}
	for _, f := range cases {
		s := Evaluate(f, thresholds)
		if s.Ready {
			assert.False(t, f.BootloaderMode)
			if f.PINProtection {
				assert.True(t, f.PINCached)
			}
		}
	}
}

func TestEvaluate_UninitializedRequiresInit(t *testing.T) {
	f := deviceinfo.FeaturesSnapshot{
		BootloaderVersion: deviceinfo.Version{Major: 2, Minor: 1},
		FirmwareVersion:   deviceinfo.Version{Major: 7},
		Initialized:       false,
	}
	s := Evaluate(f, thresholds)
	assert.True(t, s.InitializationRequired)
	assert.False(t, s.Ready)
}

func TestEvaluate_OldFirmwareRequiresUpdate(t *testing.T) {
	f := deviceinfo.FeaturesSnapshot{
		BootloaderVersion: deviceinfo.Version{Major: 2, Minor: 1},
		FirmwareVersion:   deviceinfo.Version{Major: 6, Minor: 9},
		Initialized:       true,
	}
	s := Evaluate(f, thresholds)
	assert.True(t, s.FirmwareUpdateRequired)
	assert.False(t, s.Ready)
}
