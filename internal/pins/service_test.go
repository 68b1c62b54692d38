package pins

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/couchcryptid/pinmap-service/internal/adapter/memory"
	"github.com/couchcryptid/pinmap-service/internal/domain"
	"github.com/couchcryptid/pinmap-service/internal/observability"
)

const secret = "open sesame"

// --- fakes ---

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.PinEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, events ...domain.PinEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, events...)
	return nil
}

type failingImages struct {
	deleted []string
}

func (f *failingImages) Upload(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("bucket full")
}

func (f *failingImages) Delete(_ context.Context, url string) error {
	f.deleted = append(f.deleted, url)
	return errors.New("permission denied")
}

type fixture struct {
	svc     *Service
	store   *memory.PinStore
	images  *memory.ImageStore
	events  *recordingPublisher
	metrics *observability.Metrics
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.MinCost)
	require.NoError(t, err)

	f := fixture{
		store:   memory.NewPinStore(),
		images:  memory.NewImageStore("/api/v1/images", 0),
		events:  &recordingPublisher{},
		metrics: observability.NewMetricsForTesting(),
	}
	f.svc = NewService(f.store, f.images, f.events, string(hash), f.metrics, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return f
}

func validInput() domain.NewPinInput {
	lat, lon := 48.8867, 2.3431
	return domain.NewPinInput{PlaceName: " Sacré-Cœur ", AddedBy: "Léa", Lat: &lat, Lon: &lon}
}

// --- tests ---

func TestCreate(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC))
	domain.SetClock(clock)
	t.Cleanup(func() { domain.SetClock(nil) })

	f := newFixture(t)

	pin, err := f.svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	assert.NotEmpty(t, pin.ID)
	assert.Equal(t, "Sacré-Cœur", pin.PlaceName)
	assert.Equal(t, clock.Now(), pin.CreatedAt)

	stored, err := f.store.Get(context.Background(), pin.ID)
	require.NoError(t, err)
	assert.Equal(t, pin, stored)

	require.Len(t, f.events.events, 1)
	assert.Equal(t, domain.PinCreated, f.events.events[0].Type)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.PinsCreated), 0)
}

func TestCreate_InvalidCoordinate(t *testing.T) {
	f := newFixture(t)
	in := validInput()
	lat := 123.0
	in.Lat = &lat

	_, err := f.svc.Create(context.Background(), in)

	require.Error(t, err)
	assert.True(t, domain.IsInvalidCoordinate(err))
	assert.Empty(t, f.events.events)
}

func TestCreate_MissingCoordinate(t *testing.T) {
	f := newFixture(t)
	in := validInput()
	in.Lon = nil

	_, err := f.svc.Create(context.Background(), in)

	require.Error(t, err)
	assert.True(t, domain.IsInvalidCoordinate(err))
	pins, err := f.store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pins)
}

func TestCreate_PublishFailureDoesNotFail(t *testing.T) {
	f := newFixture(t)
	f.events.err = errors.New("broker down")

	_, err := f.svc.Create(context.Background(), validInput())

	require.NoError(t, err)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.PinEventErrors), 0)
}

func TestCreate_WithoutPublisher(t *testing.T) {
	f := newFixture(t)
	f.svc.events = nil

	_, err := f.svc.Create(context.Background(), validInput())
	require.NoError(t, err)
}

func TestAuthorize(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.svc.Authorize(secret))
	require.ErrorIs(t, f.svc.Authorize("wrong"), domain.ErrUnauthorized)
	require.ErrorIs(t, f.svc.Authorize(""), domain.ErrUnauthorized)

	f.svc.passwordHash = nil
	require.ErrorIs(t, f.svc.Authorize(secret), domain.ErrUnauthorized, "no configured hash disables deletion")
}

func TestDelete_RemovesPinAndImage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	url, err := f.svc.UploadImage(ctx, "photo.JPG", "image/jpeg", strings.NewReader("jpeg"))
	require.NoError(t, err)
	in := validInput()
	in.ImageURL = url
	pin, err := f.svc.Create(ctx, in)
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, pin.ID, secret))

	_, err = f.store.Get(ctx, pin.ID)
	require.ErrorIs(t, err, domain.ErrPinNotFound)
	name := strings.TrimPrefix(url, "/api/v1/images/")
	_, err = f.images.Open(name)
	require.ErrorIs(t, err, memory.ErrImageNotFound)

	require.Len(t, f.events.events, 2)
	assert.Equal(t, domain.PinDeleted, f.events.events[1].Type)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.PinsDeleted), 0)
}

func TestDelete_WrongPassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	pin, err := f.svc.Create(ctx, validInput())
	require.NoError(t, err)

	require.ErrorIs(t, f.svc.Delete(ctx, pin.ID, "guess"), domain.ErrUnauthorized)

	_, err = f.store.Get(ctx, pin.ID)
	require.NoError(t, err)
}

func TestDelete_NotFound(t *testing.T) {
	f := newFixture(t)
	require.ErrorIs(t, f.svc.Delete(context.Background(), "nope", secret), domain.ErrPinNotFound)
}

func TestDelete_ImageFailureStillDeletesPin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	images := &failingImages{}
	f.svc.images = images

	in := validInput()
	in.ImageURL = "https://storage.googleapis.com/pinmap/a.jpg"
	pin, err := f.svc.Create(ctx, in)
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, pin.ID, secret))
	assert.Equal(t, []string{in.ImageURL}, images.deleted)
}

func TestUploadImage(t *testing.T) {
	f := newFixture(t)

	url, err := f.svc.UploadImage(context.Background(), "Holiday.PNG", "image/png", strings.NewReader("png"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "/api/v1/images/"))
	assert.True(t, strings.HasSuffix(url, ".png"))

	other, err := f.svc.UploadImage(context.Background(), "Holiday.PNG", "image/png", strings.NewReader("png"))
	require.NoError(t, err)
	assert.NotEqual(t, url, other, "names are unique per upload")
}

func TestUploadImage_RejectsNonImages(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.UploadImage(context.Background(), "notes.txt", "text/plain", strings.NewReader("hi"))
	require.ErrorIs(t, err, ErrUnsupportedImage)
}

func TestUploadImage_StoreError(t *testing.T) {
	f := newFixture(t)
	f.svc.images = &failingImages{}

	_, err := f.svc.UploadImage(context.Background(), "a.png", "image/png", strings.NewReader("png"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket full")
}

func TestImageExt(t *testing.T) {
	tests := map[string]string{
		"photo.jpg":       ".jpg",
		"PHOTO.JPEG":      ".jpeg",
		"archive.tar.gz":  ".gz",
		"noext":           "",
		"weird.j p":       "",
		"long.extension1": "",
		"dot.":            "",
	}
	for in, want := range tests {
		assert.Equal(t, want, imageExt(in), in)
	}
}

func TestHashPassword(t *testing.T) {
	h, err := HashPassword(secret)
	require.NoError(t, err)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(h), []byte(secret)))
}
