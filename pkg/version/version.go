// Package version provides semantic version parsing and comparison for the
// update gates. Only the major.minor.patch triple participates in ordering;
// pre-release suffixes are stripped, not compared.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a parsed semantic version triple.
type Version struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
	Patch int `json:"patch"`
}

// Parse parses a semantic version string into a Version. A single leading
// "v" or "V" is tolerated, as is a pre-release suffix on the patch
// component (e.g. "3.1.0-beta.2").
func Parse(s string) (Version, error) {
	raw := strings.TrimSpace(s)
	trimmed := strings.TrimPrefix(strings.TrimPrefix(raw, "v"), "V")
	if trimmed == "" {
		return Version{}, fmt.Errorf("empty version string")
	}

	parts := strings.SplitN(trimmed, ".", 3)
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("invalid version %q: expected major.minor.patch", raw)
	}

	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return Version{}, fmt.Errorf("invalid major component in %q: %w", raw, err)
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return Version{}, fmt.Errorf("invalid minor component in %q: %w", raw, err)
	}

	// Strip pre-release/build suffix (e.g. "0-beta.2", "0+build.1").
	patchStr := strings.SplitN(parts[2], "-", 2)[0]
	patchStr = strings.SplitN(patchStr, "+", 2)[0]
	patch, err := strconv.Atoi(patchStr)
	if err != nil {
		return Version{}, fmt.Errorf("invalid patch component in %q: %w", raw, err)
	}

	if major < 0 || minor < 0 || patch < 0 {
		return Version{}, fmt.Errorf("invalid version %q: negative component", raw)
	}

	return Version{Major: major, Minor: minor, Patch: patch}, nil
}

// MustParse parses a version string and panics on failure. Intended for
// constants and tests.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Compare returns -1 if v is lower than other, 0 if equal, +1 if higher.
func (v Version) Compare(other Version) int {
	if v.Major != other.Major {
		return sign(v.Major - other.Major)
	}
	if v.Minor != other.Minor {
		return sign(v.Minor - other.Minor)
	}
	return sign(v.Patch - other.Patch)
}

// Equal reports whether the two versions have the same triple.
func (v Version) Equal(other Version) bool {
	return v.Compare(other) == 0
}

// Less reports whether v orders strictly before other.
func (v Version) Less(other Version) bool {
	return v.Compare(other) < 0
}

// SameMajor reports whether both versions share a major line.
func (v Version) SameMajor(other Version) bool {
	return v.Major == other.Major
}

// String renders the bare triple without a "v" prefix.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Normalize strips a leading "v"/"V" from a version string without
// validating the remainder. Used when echoing upstream tags verbatim.
func Normalize(s string) string {
	return strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "v"), "V")
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}
