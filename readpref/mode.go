package readpref

import (
	"strings"

	"github.com/pkg/errors"
)

// Mode indicates the user's preference on reads.
type Mode uint8

// Mode constants
const (
	// PrimaryMode indicates that only a primary is
	// considered for reading. This is the default
	// mode.
	PrimaryMode Mode = iota
	// PrimaryPreferredMode indicates that if a primary
	// is available, use it; otherwise, eligible
	// secondaries will be considered.
	PrimaryPreferredMode
	// SecondaryMode indicates that only secondaries
	// should be considered.
	SecondaryMode
	// SecondaryPreferredMode indicates that only secondaries
	// should be considered when one is available. If none
	// are available, then a primary will be considered.
	SecondaryPreferredMode
	// NearestMode indicates that all primaries and secondaries
	// will be considered.
	NearestMode
)

// ModeFromString returns the mode named by mode. The match is case
// insensitive.
func ModeFromString(mode string) (Mode, error) {
	switch strings.ToLower(mode) {
	case "primary":
		return PrimaryMode, nil
	case "primarypreferred":
		return PrimaryPreferredMode, nil
	case "secondary":
		return SecondaryMode, nil
	case "secondarypreferred":
		return SecondaryPreferredMode, nil
	case "nearest":
		return NearestMode, nil
	}
	return PrimaryMode, errors.Errorf("unknown read preference %q", mode)
}

// String implements the fmt.Stringer interface.
func (m Mode) String() string {
	switch m {
	case PrimaryMode:
		return "primary"
	case PrimaryPreferredMode:
		return "primaryPreferred"
	case SecondaryMode:
		return "secondary"
	case SecondaryPreferredMode:
		return "secondaryPreferred"
	case NearestMode:
		return "nearest"
	}
	return "unknown"
}

// IsValid reports whether m is one of the defined modes.
func (m Mode) IsValid() bool {
	return m <= NearestMode
}

// SlaveOK reports whether reads in this mode may be served by a secondary,
// i.e. whether the slaveOk bit is set on the request.
func (m Mode) SlaveOK() bool {
	return m != PrimaryMode
}

// TagsAllowed reports whether tag sets may be combined with the mode.
func (m Mode) TagsAllowed() bool {
	return m != PrimaryMode
}
