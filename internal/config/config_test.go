package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"keepkeycore/internal/deviceinfo"
)

func TestDefault_BaselineValues(t *testing.T) {
	cfg := Default()
	assert.Equal(t, deviceinfo.Version{Major: 7, Minor: 0, Patch: 0}, cfg.MinFirmwareVersion)
	assert.Greater(t, cfg.SessionTimeout.Seconds(), 0.0)
}

func TestApplyEnvOverrides_Firmware(t *testing.T) {
	t.Setenv("KEEPKEY_CORE_MIN_FIRMWARE", "8.1.2")
	cfg := Default()
	assert.Equal(t, deviceinfo.Version{Major: 8, Minor: 1, Patch: 2}, cfg.MinFirmwareVersion)
	os.Unsetenv("KEEPKEY_CORE_MIN_FIRMWARE")
}

func TestParseVersion_Invalid(t *testing.T) {
	_, ok := parseVersion("not-a-version")
	assert.False(t, ok)
}
