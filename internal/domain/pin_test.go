package domain

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPin(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 26, 0, 0, time.UTC)
	SetClock(clockwork.NewFakeClockAt(now))
	t.Cleanup(func() { SetClock(nil) })

	pin, err := NewPin("pin-1", NewPinInput{
		PlaceName: "  Montmartre ",
		AddedBy:   "Camille",
		Notes:     "on the lamp post",
		Lat:       ptr(48.8867),
		Lon:       ptr(2.3431),
	})
	require.NoError(t, err)

	assert.Equal(t, "pin-1", pin.ID)
	assert.Equal(t, "Montmartre", pin.PlaceName)
	assert.Equal(t, Coordinate{Lat: 48.8867, Lon: 2.3431}, pin.Position)
	assert.Equal(t, now, pin.CreatedAt)
	assert.Equal(t, now, pin.Date, "date defaults to creation time")
}

func TestNewPin_KeepsExplicitDate(t *testing.T) {
	date := time.Date(2024, 12, 24, 0, 0, 0, 0, time.UTC)

	pin, err := NewPin("pin-2", NewPinInput{Lat: ptr(1), Lon: ptr(1), Date: date})
	require.NoError(t, err)
	assert.Equal(t, date, pin.Date)
}

func TestNewPin_InvalidCoordinate(t *testing.T) {
	_, err := NewPin("pin-3", NewPinInput{Lat: ptr(120), Lon: ptr(1)})
	require.Error(t, err)
	assert.True(t, IsInvalidCoordinate(err))
}

func TestNewPin_MissingCoordinate(t *testing.T) {
	tests := []struct {
		name  string
		in    NewPinInput
		field string
	}{
		{"both missing", NewPinInput{PlaceName: "Somewhere"}, "lat"},
		{"lat missing", NewPinInput{Lon: ptr(2.35)}, "lat"},
		{"lon missing", NewPinInput{Lat: ptr(48.85)}, "lon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPin("pin-4", tt.in)

			var invalid *InvalidCoordinateError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tt.field, invalid.Field)
			assert.Equal(t, "missing", invalid.Reason)
		})
	}
}

func TestNewPin_ZeroIsAValidCoordinate(t *testing.T) {
	pin, err := NewPin("pin-5", NewPinInput{Lat: ptr(0), Lon: ptr(0)})
	require.NoError(t, err)
	assert.Equal(t, Coordinate{}, pin.Position)
}

func ptr(v float64) *float64 { return &v }
