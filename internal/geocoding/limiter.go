package geocoding

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/pinmap-service/internal/observability"
)

// LimiterConfig tunes admission control.
type LimiterConfig struct {
	MaxConcurrent int
	// A saturated Acquire sleeps a random duration in [RetryMin, RetryMax) before polling again.
	RetryMin time.Duration
	RetryMax time.Duration
	Clock    clockwork.Clock
}

// Limiter bounds the number of in-flight geocoding chain walks. Waiters
// re-poll after a jittered delay instead of queueing, so admission order
// among waiters is not defined.
type Limiter struct {
	mu       sync.Mutex
	inFlight int
	max      int
	retryMin time.Duration
	retryMax time.Duration
	clock    clockwork.Clock
	metrics  *observability.Metrics
}

// NewLimiter creates a limiter. MaxConcurrent below 1 is treated as 1.
func NewLimiter(cfg LimiterConfig, metrics *observability.Metrics) *Limiter {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.RetryMin <= 0 {
		cfg.RetryMin = time.Millisecond
	}
	if cfg.RetryMax < cfg.RetryMin {
		cfg.RetryMax = cfg.RetryMin
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Limiter{
		max:      cfg.MaxConcurrent,
		retryMin: cfg.RetryMin,
		retryMax: cfg.RetryMax,
		clock:    cfg.Clock,
		metrics:  metrics,
	}
}

// TryAcquire takes a slot if one is free. The returned release func is
// non-nil only when ok is true.
func (l *Limiter) TryAcquire() (release func(), ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.inFlight >= l.max {
		return nil, false
	}
	l.inFlight++
	l.metrics.LimiterInFlight.Set(float64(l.inFlight))

	var once sync.Once
	return func() { once.Do(l.release) }, true
}

// Acquire polls for a slot until one is free or ctx is done. The returned
// release func is idempotent and must be called on every exit path.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	for {
		if release, ok := l.TryAcquire(); ok {
			return release, nil
		}
		l.metrics.LimiterBackoffs.Inc()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-l.clock.After(l.backoff()):
		}
	}
}

// InFlight reports the number of held slots.
func (l *Limiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlight
}

func (l *Limiter) release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.inFlight--
	l.metrics.LimiterInFlight.Set(float64(l.inFlight))
}

func (l *Limiter) backoff() time.Duration {
	return jitter(l.retryMin, l.retryMax)
}

// jitter returns a random duration in [lo, hi), or lo when the range is empty.
func jitter(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo)
}
