// Package gesture separates taps on the map surface from pans, pinches and
// marker interactions, emitting a placement only for genuine taps.
package gesture

import (
	"github.com/couchcryptid/pinmap-service/internal/domain"
)

// Source identifies the input device stream an event belongs to.
type Source string

const (
	SourceMouse Source = "mouse"
	SourceTouch Source = "touch"
)

// Kind is the phase of a pointer or touch sequence an event reports.
type Kind string

const (
	KindDown   Kind = "down"
	KindMove   Kind = "move"
	KindUp     Kind = "up"
	KindCancel Kind = "cancel"
)

// Target classifies the element under the pointer.
type Target string

const (
	TargetMap    Target = "map"
	TargetMarker Target = "marker"
	TargetPopup  Target = "popup"
)

// ownsClicks reports whether the target handles its own clicks.
func (t Target) ownsClicks() bool {
	return t == TargetMarker || t == TargetPopup
}

// Point is a position in screen pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// LatLng is the geographic position under the pointer as sent by the map
// widget. Either field may be absent on the wire.
type LatLng struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

// At wraps a known coordinate.
func At(c domain.Coordinate) LatLng {
	return LatLng{Lat: &c.Lat, Lon: &c.Lon}
}

// Coordinate validates the position, reporting absent fields as missing.
func (l LatLng) Coordinate() (domain.Coordinate, error) {
	return domain.RequireCoordinate(l.Lat, l.Lon)
}

// Event is one normalized input event from the map widget.
type Event struct {
	Source Source `json:"source"`
	Kind   Kind   `json:"kind"`
	Target Target `json:"target"`
	Screen Point  `json:"screen"`
	LatLng LatLng `json:"latlng"`
	// Touches is the number of active touch points; ignored for mouse events.
	Touches int `json:"touches,omitempty"`
}

// Placement is a request to drop a pin where a tap was released.
type Placement struct {
	Source Source
	Screen Point
	LatLng LatLng
}
