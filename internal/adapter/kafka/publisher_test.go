package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/goccy/go-json"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/pinmap-service/internal/domain"
)

type recordingWriter struct {
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func testPin() domain.Pin {
	return domain.Pin{
		ID:        "0191c1d2-0000-7000-8000-000000000001",
		PlaceName: "Eiffel Tower",
		AddedBy:   "Camille",
		Date:      time.Date(2024, 4, 26, 0, 0, 0, 0, time.UTC),
		Position:  domain.Coordinate{Lat: 48.8584, Lon: 2.2945},
		CreatedAt: time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC),
	}
}

func newTestPublisher(w messageWriter) *Publisher {
	return &Publisher{writer: w, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestSerializeToMessage(t *testing.T) {
	now := time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC)
	event := domain.PinEvent{Type: domain.PinCreated, Pin: testPin(), OccurredAt: now}

	msg, err := serializeToMessage(event)
	require.NoError(t, err)

	assert.Equal(t, []byte(event.Pin.ID), msg.Key)
	assert.Contains(t, string(msg.Value), `"type":"pin.created"`)
	assert.Contains(t, string(msg.Value), `"location":"Eiffel Tower"`)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, []byte("pin.created"), msg.Headers[0].Value)
	assert.Equal(t, "occurred_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[1].Value)

	var decoded domain.PinEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event.Pin.Position, decoded.Pin.Position)
}

func TestPublish_WritesAllEventsInOneCall(t *testing.T) {
	w := &recordingWriter{}
	p := newTestPublisher(w)
	pin := testPin()

	err := p.Publish(context.Background(),
		domain.PinEvent{Type: domain.PinCreated, Pin: pin},
		domain.PinEvent{Type: domain.PinDeleted, Pin: pin},
	)
	require.NoError(t, err)

	require.Len(t, w.msgs, 2)
	assert.Equal(t, w.msgs[0].Key, w.msgs[1].Key)
	assert.Equal(t, []byte("pin.deleted"), w.msgs[1].Headers[0].Value)
}

func TestPublish_NoEventsIsNoop(t *testing.T) {
	w := &recordingWriter{err: errors.New("should not be called")}
	p := newTestPublisher(w)

	require.NoError(t, p.Publish(context.Background()))
}

func TestPublish_WrapsWriterError(t *testing.T) {
	boom := errors.New("broker unavailable")
	p := newTestPublisher(&recordingWriter{err: boom})

	err := p.Publish(context.Background(), domain.PinEvent{Type: domain.PinCreated, Pin: testPin()})

	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "publish pin events")
}

func TestClose(t *testing.T) {
	w := &recordingWriter{}
	require.NoError(t, newTestPublisher(w).Close())
	assert.True(t, w.closed)
}
