// Package status implements the pure feature/status evaluator (spec
// §4.6): a deterministic function from a features snapshot plus the
// deployment's minimum-supported-version thresholds to a Status.
package status

import "keepkeycore/internal/deviceinfo"

// Status is computed from a FeaturesSnapshot. See spec §4.6 for the
// invariants every field must satisfy.
type Status struct {
	BootloaderUpdateRequired bool
	FirmwareUpdateRequired   bool
	InitializationRequired   bool
	PINLocked                bool
	PassphrasePending        bool
	Ready                    bool
	// Message is a short human-readable summary of why the device is
	// not ready, empty when Ready is true.
	Message string
}

// Thresholds are the deployment-time minimum supported versions (spec
// §9 Open Questions: these belong in configuration, not the spec).
type Thresholds struct {
	MinBootloaderVersion deviceinfo.Version
	MinFirmwareVersion   deviceinfo.Version
}

// Evaluate is the pure function described in spec §4.6. It never
// touches the network or a transport; it is driven entirely by its
// arguments, which makes it trivially table-testable against spec §8's
// quantified invariants.
func Evaluate(f deviceinfo.FeaturesSnapshot, t Thresholds) Status {
	var s Status

	// A device in bootloader mode always needs a bootloader update,
	// regardless of its reported version, since it must exit
	// bootloader mode before being usable (spec §4.6).
	if f.BootloaderMode {
		s.BootloaderUpdateRequired = true
	} else if f.BootloaderVersion.Less(t.MinBootloaderVersion) {
		s.BootloaderUpdateRequired = true
	}

	if !f.BootloaderMode && f.FirmwareVersion.Less(t.MinFirmwareVersion) {
		s.FirmwareUpdateRequired = true
	}

	if !f.Initialized && !f.BootloaderMode {
		s.InitializationRequired = true
	}

	if f.PINProtection && !f.PINCached {
		s.PINLocked = true
	}

	if f.PassphraseProtection && !f.PassphraseCached {
		s.PassphrasePending = true
	}

	s.Ready = !f.BootloaderMode &&
		!s.BootloaderUpdateRequired &&
		!s.FirmwareUpdateRequired &&
		!s.InitializationRequired &&
		!s.PINLocked

	s.Message = message(f, s)
	return s
}

func message(f deviceinfo.FeaturesSnapshot, s Status) string {
	switch {
	case s.Ready:
		return ""
	case f.BootloaderMode:
		return "Device in bootloader mode"
	case s.BootloaderUpdateRequired:
		return "Bootloader update required"
	case s.FirmwareUpdateRequired:
		return "Firmware update required"
	case s.InitializationRequired:
		return "Device is not initialized"
	case s.PINLocked:
		return "PIN required to unlock device"
	default:
		return "Device not ready"
	}
}
