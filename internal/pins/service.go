// Package pins implements the pin lifecycle on top of the pin, image and
// event ports.
package pins

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/couchcryptid/pinmap-service/internal/domain"
	"github.com/couchcryptid/pinmap-service/internal/observability"
)

// ErrUnsupportedImage is returned for uploads that are not images.
var ErrUnsupportedImage = errors.New("unsupported image type")

// Service creates, lists and deletes pins.
type Service struct {
	store        domain.PinStore
	images       domain.ImageStore
	events       domain.PinEventPublisher
	passwordHash []byte
	metrics      *observability.Metrics
	logger       *slog.Logger
}

// NewService wires a Service. events may be nil. An empty passwordHash
// disables deletion.
func NewService(store domain.PinStore, images domain.ImageStore, events domain.PinEventPublisher,
	passwordHash string, metrics *observability.Metrics, logger *slog.Logger,
) *Service {
	return &Service{
		store:        store,
		images:       images,
		events:       events,
		passwordHash: []byte(passwordHash),
		metrics:      metrics,
		logger:       logger,
	}
}

// HashPassword produces a value suitable for DELETE_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// List returns every pin, newest first.
func (s *Service) List(ctx context.Context) ([]domain.Pin, error) {
	return s.store.List(ctx)
}

// Get returns one pin.
func (s *Service) Get(ctx context.Context, id string) (domain.Pin, error) {
	return s.store.Get(ctx, id)
}

// Create validates input, assigns a time-ordered ID and stores the pin.
func (s *Service) Create(ctx context.Context, in domain.NewPinInput) (domain.Pin, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return domain.Pin{}, fmt.Errorf("generate pin id: %w", err)
	}
	pin, err := domain.NewPin(id.String(), in)
	if err != nil {
		return domain.Pin{}, err
	}
	pin, err = s.store.Create(ctx, pin)
	if err != nil {
		return domain.Pin{}, err
	}
	s.metrics.PinsCreated.Inc()
	s.logger.Info("pin created", "id", pin.ID, "lat", pin.Position.Lat, "lon", pin.Position.Lon)
	s.publish(ctx, domain.NewPinEvent(domain.PinCreated, pin))
	return pin, nil
}

// Authorize checks the shared deletion secret.
func (s *Service) Authorize(password string) error {
	if len(s.passwordHash) == 0 || password == "" {
		return domain.ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password)); err != nil {
		return domain.ErrUnauthorized
	}
	return nil
}

// Delete removes a pin and its photo once the password is verified. A photo
// that cannot be removed is logged and does not block the deletion.
func (s *Service) Delete(ctx context.Context, id, password string) error {
	if err := s.Authorize(password); err != nil {
		return err
	}
	pin, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if pin.ImageURL != "" && s.images != nil {
		if err := s.images.Delete(ctx, pin.ImageURL); err != nil {
			s.logger.Warn("pin image delete failed", "id", id, "url", pin.ImageURL, "error", err)
		}
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.metrics.PinsDeleted.Inc()
	s.logger.Info("pin deleted", "id", id)
	s.publish(ctx, domain.NewPinEvent(domain.PinDeleted, pin))
	return nil
}

// UploadImage stores a photo under a unique name and returns its public URL.
func (s *Service) UploadImage(ctx context.Context, filename, contentType string, r io.Reader) (string, error) {
	if !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedImage, contentType)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate image name: %w", err)
	}
	name := id.String() + imageExt(filename)
	url, err := s.images.Upload(ctx, name, contentType, r)
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	s.logger.Info("image uploaded", "name", name)
	return url, nil
}

// imageExt keeps a short alphanumeric extension from the client's filename.
func imageExt(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if len(ext) < 2 || len(ext) > 6 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}

func (s *Service) publish(ctx context.Context, event domain.PinEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.metrics.PinEventErrors.Inc()
		s.logger.Warn("pin event publish failed", "type", event.Type, "id", event.Pin.ID, "error", err)
	}
}
