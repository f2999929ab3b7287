package deviceinfo

// Version is a compiled firmware/bootloader version triple.
type Version struct {
	Major, Minor, Patch uint32
}

// Less reports whether v is strictly older than other.
func (v Version) Less(other Version) bool {
	if v.Major != other.Major {
		return v.Major < other.Major
	}
	if v.Minor != other.Minor {
		return v.Minor < other.Minor
	}
	return v.Patch < other.Patch
}

func (v Version) String() string {
	return itoa(v.Major) + "." + itoa(v.Minor) + "." + itoa(v.Patch)
}

func itoa(u uint32) string {
	if u == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for u > 0 {
		i--
		buf[i] = byte('0' + u%10)
		u /= 10
	}
	return string(buf[i:])
}

// Policy is one entry of a device's optional policy list. A policy
// name that is not valid UTF-8 fails the strict Features decode with
// decode.corrupted_policy (spec §7), after which the worker's
// auto-recovery wipes once and retries; the forgiving decode path
// drops such an entry instead.
type Policy struct {
	Name    string
	Enabled bool
}

// FeaturesSnapshot is the parsed contents of a device's Features
// response (spec §3). It drives all control flow in internal/status
// and internal/queue.
type FeaturesSnapshot struct {
	VendorString          string
	BootloaderMode        bool
	FirmwareVersion        Version
	BootloaderVersion      Version
	DeviceID               string
	Initialized            bool
	PINProtection          bool
	PINCached              bool
	PassphraseProtection   bool
	PassphraseCached       bool
	Label                  string
	Policies               []Policy
	// Partial is set by the framer's forgiving decode path (spec §4.1)
	// when only the required-minimum fields were recoverable from a
	// truncated frame. Callers should treat Policies/Label as possibly
	// absent when Partial is true.
	Partial bool
}
