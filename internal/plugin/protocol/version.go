// Package protocol checks plugin protocol versions and probes plugin binaries.
package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmylchreest/shutter/pkg/plugin"
)

// ErrIncompatibleProtocol is returned when a plugin speaks a protocol this host cannot use.
var ErrIncompatibleProtocol = errors.New("incompatible plugin protocol")

// Version represents a parsed protocol version.
type Version struct {
	Major int
	Minor int
	Patch int
}

// Parse parses a version string in "MAJOR.MINOR.PATCH" format.
func Parse(version string) (Version, error) {
	parts := strings.Split(strings.TrimPrefix(version, "v"), ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("invalid version format: %s (expected MAJOR.MINOR.PATCH)", version)
	}

	var nums [3]int
	for i, name := range []string{"major", "minor", "patch"} {
		n, err := strconv.Atoi(parts[i])
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("invalid %s version: %s", name, parts[i])
		}
		nums[i] = n
	}

	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// String returns the string representation of the version.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Less reports whether v is older than other.
func (v Version) Less(other Version) bool {
	if v.Major != other.Major {
		return v.Major < other.Major
	}
	if v.Minor != other.Minor {
		return v.Minor < other.Minor
	}
	return v.Patch < other.Patch
}

// Current returns the host protocol version.
func Current() Version {
	v, err := Parse(plugin.ProtocolVersion)
	if err != nil {
		panic(fmt.Sprintf("invalid ProtocolVersion constant: %v", err))
	}
	return v
}

// CheckCompatible returns nil if a plugin speaking pluginVersion can be loaded.
// The major version must match and the plugin must not be older than
// MinCompatibleVersion. Newer minor and patch versions are accepted.
func CheckCompatible(pluginVersion string) error {
	v, err := Parse(pluginVersion)
	if err != nil {
		return fmt.Errorf("%w: failed to parse plugin version: %w", ErrIncompatibleProtocol, err)
	}

	current := Current()
	if v.Major != current.Major {
		return fmt.Errorf("%w: plugin is %s, shutter requires %d.x.x", ErrIncompatibleProtocol, v, current.Major)
	}

	minimum, err := Parse(plugin.MinCompatibleVersion)
	if err != nil {
		return fmt.Errorf("failed to parse minimum compatible version: %w", err)
	}
	if v.Less(minimum) {
		return fmt.Errorf("%w: plugin version %s is too old, minimum required is %s", ErrIncompatibleProtocol, v, minimum)
	}

	return nil
}
