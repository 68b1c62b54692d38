package geocoding

import (
	"github.com/couchcryptid/pinmap-service/internal/domain"
)

// Status is the lifecycle stage of a resolution.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusResolved
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusResolved:
		return "resolved"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions follow s.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusFailed
}

// State is a snapshot of a resolution. Location is set only when Resolved;
// Err only when Failed.
type State struct {
	Status   Status
	Location domain.ResolvedLocation
	Err      error
}

// User-facing labels for unresolved states.
const (
	LabelLoading     = "Loading…"
	LabelUnavailable = "Location unavailable"
	LabelInvalid     = "Invalid coordinates"
)

// Label renders a state for display. Errors are never shown verbatim.
func Label(s State) string {
	switch s.Status {
	case StatusResolved:
		return s.Location.String()
	case StatusFailed:
		if domain.IsInvalidCoordinate(s.Err) {
			return LabelInvalid
		}
		return LabelUnavailable
	default:
		return LabelLoading
	}
}
