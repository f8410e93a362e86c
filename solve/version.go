package solve

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver"
)

// PackedVersion encodes major.minor.patch into a single uint64 as
// (major<<40)|(minor<<20)|patch, so ordinary integer comparison orders
// versions the same way semver precedence does. Prerelease and build
// metadata are dropped at packing time.
type PackedVersion uint64

const (
	partBits = 20
	partMask = 1<<partBits - 1
)

// MaxVersion is the upper sentinel used for unbounded ranges.
const MaxVersion = PackedVersion(^uint64(0))

// PackVersion builds a PackedVersion from its three components. Components
// larger than the 20-bit field are clamped to the field maximum.
func PackVersion(major, minor, patch uint64) PackedVersion {
	if major > partMask {
		major = partMask
	}
	if minor > partMask {
		minor = partMask
	}
	if patch > partMask {
		patch = partMask
	}
	return PackedVersion(major<<(2*partBits) | minor<<partBits | patch)
}

// Major returns the major component.
func (v PackedVersion) Major() uint64 { return uint64(v) >> (2 * partBits) }

// Minor returns the minor component.
func (v PackedVersion) Minor() uint64 { return (uint64(v) >> partBits) & partMask }

// Patch returns the patch component.
func (v PackedVersion) Patch() uint64 { return uint64(v) & partMask }

func (v PackedVersion) String() string {
	if v == MaxVersion {
		return "max"
	}
	return fmt.Sprintf("%d.%d.%d", v.Major(), v.Minor(), v.Patch())
}

// ParseError reports a version or range string that could not be understood.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed version %q: %s", e.Input, e.Reason)
}

// ParseVersion packs a version string. A leading "v" or "=" is tolerated,
// prerelease and build suffixes are ignored. Strings the fast scanner cannot
// handle fall back to a strict semver parse before being rejected.
func ParseVersion(s string) (PackedVersion, error) {
	parts, n, err := scanVersionParts(s)
	if err == nil && n > 0 && !partsWildcard(parts[:n]) {
		return PackVersion(partOr(parts, 0), partOr(parts, 1), partOr(parts, 2)), nil
	}

	sv, serr := semver.NewVersion(strings.TrimSpace(s))
	if serr != nil {
		if err == nil {
			err = &ParseError{Input: s, Reason: "not a concrete version"}
		}
		return 0, err
	}
	return PackVersion(uint64(sv.Major()), uint64(sv.Minor()), uint64(sv.Patch())), nil
}

const wildcardPart = ^uint64(0)

func partOr(parts [3]uint64, i int) uint64 {
	if parts[i] == wildcardPart {
		return 0
	}
	return parts[i]
}

func partsWildcard(parts []uint64) bool {
	for _, p := range parts {
		if p == wildcardPart {
			return true
		}
	}
	return false
}

// scanVersionParts reads up to three dot-separated numeric components,
// stopping at a prerelease or build suffix. Wildcard components ("x", "X",
// "*") are reported as wildcardPart. n is the count of components present.
func scanVersionParts(s string) ([3]uint64, int, error) {
	in := s
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "v")
	s = strings.TrimPrefix(s, "=")
	if s == "" {
		return [3]uint64{}, 0, &ParseError{Input: in, Reason: "empty version"}
	}

	var parts [3]uint64
	idx := 0
	cur := uint64(0)
	sawDigit := false
	sawWild := false

	flush := func() error {
		if idx >= 3 {
			return &ParseError{Input: in, Reason: "too many components"}
		}
		switch {
		case sawWild:
			parts[idx] = wildcardPart
		case sawDigit:
			parts[idx] = cur
		default:
			return &ParseError{Input: in, Reason: "missing numeric component"}
		}
		idx++
		cur = 0
		sawDigit = false
		sawWild = false
		return nil
	}

scan:
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
			if sawWild {
				return parts, 0, &ParseError{Input: in, Reason: "digits after wildcard"}
			}
			cur = cur*10 + uint64(c-'0')
			if cur > partMask {
				return parts, 0, &ParseError{Input: in, Reason: "component overflows 20 bits"}
			}
			sawDigit = true
		case c == '.':
			if err := flush(); err != nil {
				return parts, 0, err
			}
		case c == 'x' || c == 'X' || c == '*':
			if sawDigit {
				return parts, 0, &ParseError{Input: in, Reason: "wildcard after digits"}
			}
			sawWild = true
		case c == '-' || c == '+':
			// prerelease or build metadata
			break scan
		default:
			return parts, 0, &ParseError{Input: in, Reason: fmt.Sprintf("unexpected character %q", c)}
		}
	}
	if sawDigit || sawWild {
		if err := flush(); err != nil {
			return parts, 0, err
		}
	}
	if idx == 0 {
		return parts, 0, &ParseError{Input: in, Reason: "no numeric components"}
	}
	return parts, idx, nil
}
