package geocode

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/couchcryptid/pinmap-service/internal/domain"
	"github.com/couchcryptid/pinmap-service/internal/observability"
)

// maxBodyBytes caps how much of a provider response is read.
const maxBodyBytes = 1 << 20

// ChainConfig tunes the provider chain.
type ChainConfig struct {
	// Timeout bounds each provider attempt, not the whole walk.
	Timeout time.Duration
	// FallbackDelay is waited between a failed attempt and the next provider.
	FallbackDelay time.Duration
	// BreakerFailures consecutive failures open a provider's circuit.
	BreakerFailures uint32
	// BreakerCooldown is how long an open circuit stays open.
	BreakerCooldown time.Duration

	HTTPClient *http.Client
	Clock      clockwork.Clock
}

// Chain tries reverse-geocoding providers strictly in order until one answers.
type Chain struct {
	providers []Provider
	breakers  []*gobreaker.CircuitBreaker[domain.RawLocation]
	client    *http.Client
	clock     clockwork.Clock
	timeout   time.Duration
	fallback  time.Duration
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewChain creates a chain over providers. Each provider gets its own circuit breaker.
func NewChain(providers []Provider, cfg ChainConfig, metrics *observability.Metrics, logger *slog.Logger) *Chain {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = time.Minute
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	c := &Chain{
		providers: providers,
		client:    cfg.HTTPClient,
		clock:     cfg.Clock,
		timeout:   cfg.Timeout,
		fallback:  cfg.FallbackDelay,
		metrics:   metrics,
		logger:    logger,
	}
	for _, p := range providers {
		c.breakers = append(c.breakers, c.newBreaker(p.Name, cfg))
	}
	return c
}

func (c *Chain) newBreaker(name string, cfg ChainConfig) *gobreaker.CircuitBreaker[domain.RawLocation] {
	c.metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
	return gobreaker.NewCircuitBreaker[domain.RawLocation](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		// A caller giving up says nothing about the provider's health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Info("geocoding provider circuit changed", "provider", name, "from", from.String(), "to", to.String())
			c.metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})
}

// Providers returns the provider names in priority order.
func (c *Chain) Providers() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name
	}
	return names
}

// Resolve walks the chain for coord. Provider failures are logged and
// swallowed; only exhaustion or cancellation of ctx is returned.
func (c *Chain) Resolve(ctx context.Context, coord domain.Coordinate) (domain.RawLocation, error) {
	for i, p := range c.providers {
		if err := ctx.Err(); err != nil {
			return domain.RawLocation{}, err
		}

		loc, err := c.breakers[i].Execute(func() (domain.RawLocation, error) {
			return c.attempt(ctx, p, coord)
		})
		if err == nil {
			c.metrics.GeocodeRequests.WithLabelValues(p.Name, "success").Inc()
			return loc, nil
		}
		if ctx.Err() != nil {
			return domain.RawLocation{}, ctx.Err()
		}

		outcome := classify(err)
		c.metrics.GeocodeRequests.WithLabelValues(p.Name, outcome).Inc()
		c.logger.Warn("geocoding provider failed",
			"provider", p.Name,
			"lat", coord.Lat,
			"lon", coord.Lon,
			"outcome", outcome,
			"error", err,
		)

		if outcome != "rejected" && i < len(c.providers)-1 {
			if !c.sleep(ctx, c.fallback) {
				return domain.RawLocation{}, ctx.Err()
			}
		}
	}
	return domain.RawLocation{}, domain.ErrAllProvidersExhausted
}

// attempt issues one provider request under its own deadline.
func (c *Chain) attempt(ctx context.Context, p Provider, coord domain.Coordinate) (domain.RawLocation, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		c.metrics.GeocodeAPIDuration.WithLabelValues(p.Name).Observe(time.Since(start).Seconds())
	}()

	req, err := p.BuildRequest(attemptCtx, coord)
	if err != nil {
		return domain.RawLocation{}, &domain.ProviderHTTPError{Provider: p.Name, Err: err}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.RawLocation{}, c.transportError(attemptCtx, p.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.RawLocation{}, &domain.ProviderHTTPError{Provider: p.Name, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return domain.RawLocation{}, c.transportError(attemptCtx, p.Name, err)
	}

	loc, err := p.Extract(body)
	if err != nil {
		return domain.RawLocation{}, &domain.ProviderParseError{Provider: p.Name, Err: err}
	}
	return loc, nil
}

func (c *Chain) transportError(attemptCtx context.Context, provider string, err error) error {
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return &domain.ProviderTimeoutError{Provider: provider, Timeout: c.timeout}
	}
	return &domain.ProviderHTTPError{Provider: provider, Err: err}
}

func (c *Chain) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-ctx.Done():
		return false
	case <-c.clock.After(d):
		return true
	}
}

func classify(err error) string {
	var (
		timeoutErr *domain.ProviderTimeoutError
		httpErr    *domain.ProviderHTTPError
		parseErr   *domain.ProviderParseError
	)
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "rejected"
	case errors.As(err, &timeoutErr):
		return "timeout"
	case errors.As(err, &httpErr):
		return "http_error"
	case errors.As(err, &parseErr):
		return "parse_error"
	default:
		return "error"
	}
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
