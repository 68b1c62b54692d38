package domain

import (
	"context"
	"io"
	"strings"
	"time"
)

// Pin is a marker placed on the map by a user.
type Pin struct {
	ID        string     `json:"id"`
	PlaceName string     `json:"location"`
	AddedBy   string     `json:"addedBy"`
	Notes     string     `json:"notes"`
	Date      time.Time  `json:"date"`
	Position  Coordinate `json:"position"`
	CreatedAt time.Time  `json:"created_at"`
	ImageURL  string     `json:"image_url,omitempty"`
}

// NewPinInput is the user-supplied part of a pin.
type NewPinInput struct {
	PlaceName string    `json:"location"`
	AddedBy   string    `json:"addedBy"`
	Notes     string    `json:"notes"`
	Date      time.Time `json:"date"`
	Lat       *float64  `json:"latitude"`
	Lon       *float64  `json:"longitude"`
	ImageURL  string    `json:"image_url,omitempty"`
}

// NewPin validates input and builds a Pin with the given ID. Date defaults to
// the creation time when omitted. Latitude and longitude are required.
func NewPin(id string, in NewPinInput) (Pin, error) {
	pos, err := RequireCoordinate(in.Lat, in.Lon)
	if err != nil {
		return Pin{}, err
	}
	now := clock.Now().UTC()
	date := in.Date
	if date.IsZero() {
		date = now
	}
	return Pin{
		ID:        id,
		PlaceName: strings.TrimSpace(in.PlaceName),
		AddedBy:   strings.TrimSpace(in.AddedBy),
		Notes:     strings.TrimSpace(in.Notes),
		Date:      date,
		Position:  pos,
		CreatedAt: now,
		ImageURL:  in.ImageURL,
	}, nil
}

// PinStore persists pins. List returns newest first.
type PinStore interface {
	List(ctx context.Context) ([]Pin, error)
	Get(ctx context.Context, id string) (Pin, error)
	Create(ctx context.Context, pin Pin) (Pin, error)
	Delete(ctx context.Context, id string) error
}

// ImageStore persists pin photos and serves them from a public URL.
type ImageStore interface {
	Upload(ctx context.Context, name, contentType string, r io.Reader) (string, error)
	Delete(ctx context.Context, publicURL string) error
}

// PinEventType names a pin lifecycle event.
type PinEventType string

const (
	PinCreated PinEventType = "pin.created"
	PinDeleted PinEventType = "pin.deleted"
)

// PinEvent is published whenever a pin is created or deleted.
type PinEvent struct {
	Type       PinEventType `json:"type"`
	Pin        Pin          `json:"pin"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// NewPinEvent stamps an event with the current time.
func NewPinEvent(t PinEventType, pin Pin) PinEvent {
	return PinEvent{Type: t, Pin: pin, OccurredAt: clock.Now().UTC()}
}

// PinEventPublisher fans pin lifecycle events out to other systems.
type PinEventPublisher interface {
	Publish(ctx context.Context, events ...PinEvent) error
}
