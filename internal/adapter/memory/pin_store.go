// Package memory provides process-local pin and image stores for development
// and tests.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/couchcryptid/pinmap-service/internal/domain"
)

// PinStore implements domain.PinStore in memory.
type PinStore struct {
	mu   sync.RWMutex
	pins map[string]domain.Pin
}

func NewPinStore() *PinStore {
	return &PinStore{pins: make(map[string]domain.Pin)}
}

// List returns every pin, newest first.
func (s *PinStore) List(_ context.Context) ([]domain.Pin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pins := make([]domain.Pin, 0, len(s.pins))
	for _, p := range s.pins {
		pins = append(pins, p)
	}
	slices.SortFunc(pins, func(a, b domain.Pin) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return pins, nil
}

func (s *PinStore) Get(_ context.Context, id string) (domain.Pin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pins[id]
	if !ok {
		return domain.Pin{}, domain.ErrPinNotFound
	}
	return p, nil
}

func (s *PinStore) Create(_ context.Context, pin domain.Pin) (domain.Pin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pins[pin.ID]; exists {
		return domain.Pin{}, fmt.Errorf("pin %s already exists", pin.ID)
	}
	s.pins[pin.ID] = pin
	return pin, nil
}

func (s *PinStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pins[id]; !ok {
		return domain.ErrPinNotFound
	}
	delete(s.pins, id)
	return nil
}
