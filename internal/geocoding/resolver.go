package geocoding

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/pinmap-service/internal/domain"
	"github.com/couchcryptid/pinmap-service/internal/observability"
)

// Chain resolves a coordinate through one or more providers.
type Chain interface {
	Resolve(ctx context.Context, coord domain.Coordinate) (domain.RawLocation, error)
}

// Config tunes a Resolver.
type Config struct {
	// MaxConcurrent bounds simultaneous chain walks.
	MaxConcurrent int
	// RetryMin and RetryMax bound the jittered re-poll delay of a saturated limiter.
	RetryMin time.Duration
	RetryMax time.Duration
	// SettleMin and SettleMax bound the jittered delay before the first
	// provider attempt, spreading out bursts of lookups.
	SettleMin time.Duration
	SettleMax time.Duration

	Clock clockwork.Clock
}

// Resolver turns coordinates into normalized locations, consulting its cache
// before the provider chain.
type Resolver struct {
	chain     Chain
	cache     *Cache
	limiter   *Limiter
	clock     clockwork.Clock
	settleMin time.Duration
	settleMax time.Duration
	metrics   *observability.Metrics
	logger    *slog.Logger

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewResolver creates a Resolver owning a fresh cache and limiter.
func NewResolver(chain Chain, cfg Config, metrics *observability.Metrics, logger *slog.Logger) *Resolver {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	base, cancel := context.WithCancel(context.Background())
	return &Resolver{
		chain: chain,
		cache: NewCache(),
		limiter: NewLimiter(LimiterConfig{
			MaxConcurrent: cfg.MaxConcurrent,
			RetryMin:      cfg.RetryMin,
			RetryMax:      cfg.RetryMax,
			Clock:         cfg.Clock,
		}, metrics),
		clock:     cfg.Clock,
		settleMin: cfg.SettleMin,
		settleMax: cfg.SettleMax,
		metrics:   metrics,
		logger:    logger,
		base:      base,
		cancel:    cancel,
	}
}

// Resolve blocks until lat/lon is resolved, the chain is exhausted, or ctx is done.
// Invalid coordinates fail with *domain.InvalidCoordinateError before any
// cache or network access.
func (r *Resolver) Resolve(ctx context.Context, lat, lon float64) (domain.ResolvedLocation, error) {
	coord, err := r.validate(lat, lon)
	if err != nil {
		return domain.ResolvedLocation{}, err
	}
	if loc, ok := r.lookup(coord); ok {
		return loc, nil
	}
	if !r.sleep(ctx, jitter(r.settleMin, r.settleMax)) {
		r.metrics.GeocodeResolutions.WithLabelValues("abandoned").Inc()
		return domain.ResolvedLocation{}, ctx.Err()
	}
	return r.fetch(ctx, coord)
}

// Watch starts resolving lat/lon and returns a subscription to observe it.
// Cache hits and invalid coordinates settle before Watch returns.
func (r *Resolver) Watch(lat, lon float64) *Subscription {
	sub := newSubscription(r.base)

	coord, err := r.validate(lat, lon)
	if err != nil {
		sub.settle(State{Status: StatusFailed, Err: err})
		return sub
	}
	if loc, ok := r.lookup(coord); ok {
		sub.settle(State{Status: StatusResolved, Location: loc})
		return sub
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		if !r.sleep(sub.ctx, jitter(r.settleMin, r.settleMax)) {
			r.metrics.GeocodeResolutions.WithLabelValues("abandoned").Inc()
			// Only reaches a subscriber when the resolver itself shut down.
			sub.settle(State{Status: StatusFailed, Err: sub.ctx.Err()})
			return
		}

		// Past the settle delay the lookup belongs to the resolver, so a
		// subscriber leaving does not waste provider calls already queued.
		loc, err := r.fetch(r.base, coord)
		if err != nil {
			sub.settle(State{Status: StatusFailed, Err: err})
			return
		}
		sub.settle(State{Status: StatusResolved, Location: loc})
	}()
	return sub
}

// Cached reports the cached location for lat/lon without any network access.
func (r *Resolver) Cached(lat, lon float64) (domain.ResolvedLocation, bool) {
	coord, err := domain.ValidateCoordinate(lat, lon)
	if err != nil {
		return domain.ResolvedLocation{}, false
	}
	return r.cache.Get(coord.Key())
}

// CacheLen reports how many locations are cached.
func (r *Resolver) CacheLen() int {
	return r.cache.Len()
}

// Close abandons pending lookups and waits for background work to stop.
func (r *Resolver) Close() {
	r.cancel()
	r.wg.Wait()
}

func (r *Resolver) validate(lat, lon float64) (domain.Coordinate, error) {
	coord, err := domain.ValidateCoordinate(lat, lon)
	if err != nil {
		r.metrics.GeocodeResolutions.WithLabelValues("invalid").Inc()
		return domain.Coordinate{}, err
	}
	return coord, nil
}

func (r *Resolver) lookup(coord domain.Coordinate) (domain.ResolvedLocation, bool) {
	loc, ok := r.cache.Get(coord.Key())
	if ok {
		r.metrics.GeocodeCache.WithLabelValues("hit").Inc()
		return loc, true
	}
	r.metrics.GeocodeCache.WithLabelValues("miss").Inc()
	return domain.ResolvedLocation{}, false
}

// fetch takes a limiter slot, walks the chain, and caches a normalized success.
func (r *Resolver) fetch(ctx context.Context, coord domain.Coordinate) (domain.ResolvedLocation, error) {
	release, err := r.limiter.Acquire(ctx)
	if err != nil {
		r.metrics.GeocodeResolutions.WithLabelValues("abandoned").Inc()
		return domain.ResolvedLocation{}, err
	}
	defer release()

	raw, err := r.chain.Resolve(ctx, coord)
	if err != nil {
		outcome := "failed"
		if !errors.Is(err, domain.ErrAllProvidersExhausted) {
			outcome = "abandoned"
		}
		r.metrics.GeocodeResolutions.WithLabelValues(outcome).Inc()
		r.logger.Warn("location resolution failed", "lat", coord.Lat, "lon", coord.Lon, "error", err)
		return domain.ResolvedLocation{}, err
	}

	loc := r.cache.Put(coord.Key(), raw.Normalize())
	r.metrics.GeocodeResolutions.WithLabelValues("resolved").Inc()
	r.logger.Debug("location resolved", "lat", coord.Lat, "lon", coord.Lon, "city", loc.City, "country", loc.Country)
	return loc, nil
}

func (r *Resolver) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-r.clock.After(d):
		return true
	}
}
