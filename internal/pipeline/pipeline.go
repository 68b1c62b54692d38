// Package pipeline warms the geocoding cache from stored pins at startup so
// list views render labels without waiting on providers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	sharedretry "github.com/couchcryptid/storm-data-shared/retry"

	"github.com/couchcryptid/pinmap-service/internal/domain"
	"github.com/couchcryptid/pinmap-service/internal/observability"
)

// PinLister reads the stored pins.
type PinLister interface {
	List(ctx context.Context) ([]domain.Pin, error)
}

// LocationResolver resolves a coordinate, filling its cache on success.
type LocationResolver interface {
	Resolve(ctx context.Context, lat, lon float64) (domain.ResolvedLocation, error)
}

// Warmer lists pins and resolves each distinct location once.
type Warmer struct {
	pins        PinLister
	resolver    LocationResolver
	logger      *slog.Logger
	metrics     *observability.Metrics
	ready       atomic.Bool
	maxAttempts int
	backoff     time.Duration
	maxBackoff  time.Duration
}

// New creates a Warmer.
func New(pins PinLister, resolver LocationResolver, logger *slog.Logger, metrics *observability.Metrics) *Warmer {
	return &Warmer{
		pins:        pins,
		resolver:    resolver,
		logger:      logger,
		metrics:     metrics,
		maxAttempts: 5,
		backoff:     200 * time.Millisecond,
		maxBackoff:  5 * time.Second,
	}
}

// CheckReadiness returns nil once a warm-up run has finished, successful or not.
func (w *Warmer) CheckReadiness(_ context.Context) error {
	if !w.ready.Load() {
		return errors.New("geocoding cache warm-up has not finished")
	}
	return nil
}

// Ready reports whether warm-up has finished.
func (w *Warmer) Ready() bool {
	return w.ready.Load()
}

// Run performs one warm-up pass. Listing is retried with exponential backoff;
// individual resolution failures are logged and skipped. Run returns nil when
// ctx is cancelled.
func (w *Warmer) Run(ctx context.Context) error {
	defer w.ready.Store(true)

	pins, err := w.listWithRetry(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	w.logger.Info("cache warm-up started", "pins", len(pins))
	seen := make(map[domain.CacheKey]struct{}, len(pins))
	resolved, failed := 0, 0

	for _, pin := range pins {
		if ctx.Err() != nil {
			w.logger.Info("cache warm-up stopping", "reason", ctx.Err())
			return nil
		}
		key := pin.Position.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		if _, err := w.resolver.Resolve(ctx, pin.Position.Lat, pin.Position.Lon); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failed++
			w.logger.Warn("cache warm-up resolve failed", "pin", pin.ID, "error", err)
			continue
		}
		resolved++
		w.metrics.WarmupPins.Inc()
	}

	w.logger.Info("cache warm-up finished", "resolved", resolved, "failed", failed)
	return nil
}

func (w *Warmer) listWithRetry(ctx context.Context) ([]domain.Pin, error) {
	backoff := w.backoff
	var lastErr error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		pins, err := w.pins.List(ctx)
		if err == nil {
			return pins, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		w.logger.Error("list pins failed", "attempt", attempt, "error", err)
		if attempt == w.maxAttempts {
			break
		}
		if !sharedretry.SleepWithContext(ctx, backoff) {
			return nil, ctx.Err()
		}
		backoff = sharedretry.NextBackoff(backoff, w.maxBackoff)
	}
	return nil, fmt.Errorf("list pins after %d attempts: %w", w.maxAttempts, lastErr)
}
