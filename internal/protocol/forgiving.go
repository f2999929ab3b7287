package protocol

import (
	"fmt"

	"keepkeycore/internal/deviceinfo"
)

// requiredFeatureFields are the field numbers the forgiving decode
// path guarantees before declaring success (spec §4.1): vendor,
// version triple, device id, bootloader flag, initialized flag.
var requiredFeatureFields = []protowireNumber{1, 2, 3, 4, 7, 5, 6}

type protowireNumber = int32

// DecodeFeaturesForgiving walks a (possibly truncated) Features body
// field by field, same as decodeFeatures, but stops at the first
// malformed/short field instead of failing the whole decode, as long
// as every required field was already seen or was passed over as an
// omitted zero value (a higher field number was read). This is the partial
// feature recovery spec §4.1 and §7 (decode.partial_ok) describe: it
// never raises decode.corrupted_policy, because a truncated policy
// entry is simply dropped rather than treated as invalid UTF-8.
func DecodeFeaturesForgiving(body []byte) (deviceinfo.FeaturesSnapshot, error) {
	var f Features
	seen := make(map[int32]bool, len(requiredFeatureFields))
	var maxSeen int32

	b := body
	for len(b) > 0 {
		fd, n, ok := consumeField(b)
		if !ok {
			break // truncated mid-field: stop here, don't fail.
		}
		if n > len(b) {
			break
		}
		switch fd.num {
		case 1:
			f.Vendor = string(fd.b)
			seen[1] = true
		case 2:
			f.Major = uint32(fd.u64)
			seen[2] = true
		case 3:
			f.Minor = uint32(fd.u64)
			seen[3] = true
		case 4:
			f.Patch = uint32(fd.u64)
			seen[4] = true
		case 5:
			f.BootloaderMode = fd.u64 != 0
			seen[5] = true
		case 6:
			f.Initialized = fd.u64 != 0
			seen[6] = true
		case 7:
			f.DeviceID = string(fd.b)
			seen[7] = true
		case 8:
			f.PinProtection = fd.u64 != 0
		case 9:
			f.PinCached = fd.u64 != 0
		case 10:
			f.PassphraseProtection = fd.u64 != 0
		case 11:
			f.PassphraseCached = fd.u64 != 0
		case 12:
			f.Label = string(fd.b)
		case 13:
			f.BootMajor = uint32(fd.u64)
		case 14:
			f.BootMinor = uint32(fd.u64)
		case 15:
			f.BootPatch = uint32(fd.u64)
		case 16:
			// A malformed policy entry is not fatal here: skip it and
			// keep going, this is a best-effort recovery path.
			if isValidUTF8(fd.b) {
				f.Policies = append(f.Policies, parsePolicy(string(fd.b)))
			}
		}
		if int32(fd.num) > maxSeen {
			maxSeen = int32(fd.num)
		}
		b = b[n:]
	}

	for _, want := range requiredFeatureFields {
		// Fields are encoded in ascending number order with zero values
		// omitted, so reading a higher field shows an absent one was zero.
		if !seen[want] && want >= maxSeen {
			return deviceinfo.FeaturesSnapshot{}, fmt.Errorf("protocol: forgiving decode missing required field %d", want)
		}
	}

	snap := f.ToSnapshot()
	snap.Partial = true
	return snap, nil
}
