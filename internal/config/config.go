// Package config generalizes the teacher's .env-plus-environment
// loader into the deployment-time constants the spec explicitly calls
// out as Open Questions: minimum supported firmware/bootloader
// versions, transport deadlines, session timeouts, and the hotplug
// reconnection window.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"keepkeycore/internal/deviceinfo"
)

// Config holds every tunable the core needs that the spec deliberately
// leaves out of its own text.
type Config struct {
	MinBootloaderVersion deviceinfo.Version
	MinFirmwareVersion   deviceinfo.Version

	// ExchangeDeadline bounds a single carrier exchange (spec §4.2.1: "~2 seconds").
	ExchangeDeadline time.Duration
	// SessionTimeout bounds how long a session waits for a user reply (spec §4.5.1: default 120s).
	SessionTimeout time.Duration
	// ReconnectWindow bounds how long a detached device with an active
	// recovery session is retained before being shut down (spec §4.7: default 60s).
	ReconnectWindow time.Duration
	// HotplugPollInterval bounds the sleep between hotplug enumeration passes (spec §5: <=5ms).
	HotplugPollInterval time.Duration

	// PreferencesDir is where the optional per-device JSON preferences
	// file is written (spec §6, "optional and minimal").
	PreferencesDir string
}

// Default returns the built-in defaults, then applies any
// KEEPKEY_CORE_* environment variable overrides, mirroring the
// teacher's env-override-after-defaults order in LoadDeviceConfig.
func Default() Config {
	cfg := Config{
		MinBootloaderVersion: deviceinfo.Version{Major: 2, Minor: 1, Patch: 0},
		MinFirmwareVersion:   deviceinfo.Version{Major: 7, Minor: 0, Patch: 0},
		ExchangeDeadline:     2 * time.Second,
		SessionTimeout:       120 * time.Second,
		ReconnectWindow:      60 * time.Second,
		HotplugPollInterval:  5 * time.Millisecond,
		PreferencesDir:       defaultPreferencesDir(),
	}
	applyEnvOverrides(&cfg)
	return cfg
}

func defaultPreferencesDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".keepkeycore"
	}
	return filepath.Join(home, ".keepkeycore")
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KEEPKEY_CORE_MIN_FIRMWARE"); v != "" {
		if ver, ok := parseVersion(v); ok {
			cfg.MinFirmwareVersion = ver
		}
	}
	if v := os.Getenv("KEEPKEY_CORE_MIN_BOOTLOADER"); v != "" {
		if ver, ok := parseVersion(v); ok {
			cfg.MinBootloaderVersion = ver
		}
	}
	if v := os.Getenv("KEEPKEY_CORE_EXCHANGE_DEADLINE_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.ExchangeDeadline = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("KEEPKEY_CORE_SESSION_TIMEOUT_S"); v != "" {
		if s, err := strconv.Atoi(v); err == nil {
			cfg.SessionTimeout = time.Duration(s) * time.Second
		}
	}
	if v := os.Getenv("KEEPKEY_CORE_RECONNECT_WINDOW_S"); v != "" {
		if s, err := strconv.Atoi(v); err == nil {
			cfg.ReconnectWindow = time.Duration(s) * time.Second
		}
	}
	if v := os.Getenv("KEEPKEY_CORE_PREFERENCES_DIR"); v != "" {
		cfg.PreferencesDir = v
	}
}

func parseVersion(s string) (deviceinfo.Version, bool) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return deviceinfo.Version{}, false
	}
	var out [3]uint32
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return deviceinfo.Version{}, false
		}
		out[i] = uint32(n)
	}
	return deviceinfo.Version{Major: out[0], Minor: out[1], Patch: out[2]}, true
}
