package geocoding

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/pinmap-service/internal/domain"
	"github.com/couchcryptid/pinmap-service/internal/observability"
)

// --- fake chain ---

type fakeChain struct {
	mu      sync.Mutex
	results []chainResult // consumed in order; the last one repeats
	calls   atomic.Int32

	delay     time.Duration
	active    atomic.Int32
	maxActive atomic.Int32
	entered   chan struct{}
	unblock   chan struct{}
}

type chainResult struct {
	loc domain.RawLocation
	err error
}

func (f *fakeChain) Resolve(_ context.Context, _ domain.Coordinate) (domain.RawLocation, error) {
	f.calls.Add(1)
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		cur := f.maxActive.Load()
		if n <= cur || f.maxActive.CompareAndSwap(cur, n) {
			break
		}
	}

	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.unblock != nil {
		<-f.unblock
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.results) == 0 {
		return domain.RawLocation{}, domain.ErrAllProvidersExhausted
	}
	r := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return r.loc, r.err
}

func succeed(city, country string) chainResult {
	return chainResult{loc: domain.RawLocation{City: city, Country: country}}
}

func exhausted() chainResult {
	return chainResult{err: domain.ErrAllProvidersExhausted}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestResolver(t *testing.T, chain Chain, cfg Config) (*Resolver, *observability.Metrics) {
	t.Helper()
	if cfg.RetryMin == 0 {
		cfg.RetryMin = time.Millisecond
		cfg.RetryMax = 3 * time.Millisecond
	}
	m := observability.NewMetricsForTesting()
	r := NewResolver(chain, cfg, m, discardLogger())
	t.Cleanup(r.Close)
	return r, m
}

func waitSettled(t *testing.T, sub *Subscription) State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := sub.Wait(ctx)
	require.NoError(t, err, "subscription never settled")
	return st
}

// --- Resolve ---

func TestResolve_NormalizesAndCaches(t *testing.T) {
	chain := &fakeChain{results: []chainResult{succeed("Paris (75)", "")}}
	r, m := newTestResolver(t, chain, Config{})

	got, err := r.Resolve(context.Background(), 48.85661, 2.35221)
	require.NoError(t, err)
	assert.Equal(t, domain.ResolvedLocation{City: "Paris", Country: domain.Unknown}, got)

	again, err := r.Resolve(context.Background(), 48.85661, 2.35221)
	require.NoError(t, err)
	if diff := cmp.Diff(got, again); diff != "" {
		t.Errorf("cached result mismatch (-first +second):\n%s", diff)
	}

	assert.Equal(t, int32(1), chain.calls.Load(), "second lookup must not reach the chain")
	assert.InDelta(t, 1, testutil.ToFloat64(m.GeocodeCache.WithLabelValues("hit")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.GeocodeResolutions.WithLabelValues("resolved")), 0)
}

func TestResolve_NearDuplicatesShareCacheEntry(t *testing.T) {
	chain := &fakeChain{results: []chainResult{succeed("Paris", "France")}}
	r, _ := newTestResolver(t, chain, Config{})

	_, err := r.Resolve(context.Background(), 48.85661, 2.35221)
	require.NoError(t, err)
	got, err := r.Resolve(context.Background(), 48.85664, 2.35223)
	require.NoError(t, err)

	assert.Equal(t, "Paris", got.City)
	assert.Equal(t, int32(1), chain.calls.Load())
	assert.Equal(t, 1, r.CacheLen())
}

func TestResolve_InvalidCoordinateNeverReachesChainOrCache(t *testing.T) {
	chain := &fakeChain{results: []chainResult{succeed("Paris", "France")}}
	r, m := newTestResolver(t, chain, Config{})

	for _, c := range [][2]float64{{math.NaN(), 2}, {48, math.NaN()}, {95, 2}, {48, 200}} {
		_, err := r.Resolve(context.Background(), c[0], c[1])
		require.Error(t, err)
		assert.True(t, domain.IsInvalidCoordinate(err))
	}

	assert.Equal(t, int32(0), chain.calls.Load())
	assert.Equal(t, 0, r.CacheLen())
	assert.InDelta(t, 0, testutil.ToFloat64(m.GeocodeCache.WithLabelValues("miss")), 0, "validation runs before the cache")
}

func TestResolve_FailureIsNotCached(t *testing.T) {
	chain := &fakeChain{results: []chainResult{exhausted(), succeed("Lyon", "France")}}
	r, m := newTestResolver(t, chain, Config{})

	_, err := r.Resolve(context.Background(), 45.764, 4.8357)
	require.ErrorIs(t, err, domain.ErrAllProvidersExhausted)
	assert.Equal(t, 0, r.CacheLen())

	got, err := r.Resolve(context.Background(), 45.764, 4.8357)
	require.NoError(t, err)
	assert.Equal(t, "Lyon", got.City)
	assert.Equal(t, int32(2), chain.calls.Load(), "providers are retried after a failure")
	assert.InDelta(t, 1, testutil.ToFloat64(m.GeocodeResolutions.WithLabelValues("failed")), 0)
}

func TestResolve_SettleDelayPrecedesChain(t *testing.T) {
	clock := clockwork.NewFakeClock()
	chain := &fakeChain{results: []chainResult{succeed("Paris", "France")}}
	r, _ := newTestResolver(t, chain, Config{SettleMin: time.Second, SettleMax: 3 * time.Second, Clock: clock})

	done := make(chan error, 1)
	go func() {
		_, err := r.Resolve(context.Background(), 48.8566, 2.3522)
		done <- err
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, int32(0), chain.calls.Load())

	clock.Advance(3 * time.Second)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), chain.calls.Load())
}

// With one slot, two lookups for different places never overlap inside the chain.
func TestResolve_LimiterSerializesChainWalks(t *testing.T) {
	chain := &fakeChain{
		results: []chainResult{succeed("Somewhere", "France")},
		delay:   20 * time.Millisecond,
	}
	r, _ := newTestResolver(t, chain, Config{MaxConcurrent: 1})

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, c := range [][2]float64{{48.8566, 2.3522}, {45.764, 4.8357}} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Resolve(context.Background(), c[0], c[1])
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), chain.calls.Load())
	assert.Equal(t, int32(1), chain.maxActive.Load())
}

// Identical concurrent lookups are not coalesced.
func TestResolve_ConcurrentIdenticalLookupsWalkIndependently(t *testing.T) {
	chain := &fakeChain{
		results: []chainResult{succeed("Paris", "France")},
		delay:   10 * time.Millisecond,
	}
	r, _ := newTestResolver(t, chain, Config{MaxConcurrent: 2})

	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.Resolve(context.Background(), 48.8566, 2.3522)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(2), chain.calls.Load())
}

func TestResolve_ResolvedKeyStaysResolved(t *testing.T) {
	chain := &fakeChain{
		results: []chainResult{succeed("Paris", "France"), succeed("Lutèce", "Gaule")},
		delay:   10 * time.Millisecond,
	}
	r, _ := newTestResolver(t, chain, Config{MaxConcurrent: 2})

	var wg sync.WaitGroup
	got := make([]domain.ResolvedLocation, 2)
	for i := range got {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[i], _ = r.Resolve(context.Background(), 48.8566, 2.3522)
		}()
	}
	wg.Wait()

	cached, ok := r.Cached(48.8566, 2.3522)
	require.True(t, ok)
	assert.Equal(t, cached, got[0])
	assert.Equal(t, cached, got[1], "both lookups report the location the cache kept")
	assert.Equal(t, 1, r.CacheLen())
}

// --- Watch ---

func TestWatch_LoadingThenResolved(t *testing.T) {
	chain := &fakeChain{results: []chainResult{succeed("Marseille", "France")}}
	r, _ := newTestResolver(t, chain, Config{})

	sub := r.Watch(43.2965, 5.3698)
	defer sub.Close()

	var seen []Status
	for st := range sub.Updates() {
		seen = append(seen, st.Status)
	}

	assert.Equal(t, []Status{StatusLoading, StatusResolved}, seen)
	assert.Equal(t, "Marseille, France", Label(sub.State()))
}

func TestWatch_CacheHitSettlesImmediately(t *testing.T) {
	chain := &fakeChain{results: []chainResult{succeed("Nice", "France")}}
	r, _ := newTestResolver(t, chain, Config{})

	_, err := r.Resolve(context.Background(), 43.7102, 7.262)
	require.NoError(t, err)

	sub := r.Watch(43.7102, 7.262)
	st := sub.State()

	assert.Equal(t, StatusResolved, st.Status)
	assert.Equal(t, "Nice", st.Location.City)
	assert.Equal(t, int32(1), chain.calls.Load())
}

func TestWatch_InvalidCoordinateFails(t *testing.T) {
	chain := &fakeChain{}
	r, _ := newTestResolver(t, chain, Config{})

	sub := r.Watch(math.NaN(), 2)
	st := sub.State()

	assert.Equal(t, StatusFailed, st.Status)
	assert.True(t, domain.IsInvalidCoordinate(st.Err))
	assert.Equal(t, LabelInvalid, Label(st))
	assert.Equal(t, int32(0), chain.calls.Load())
}

func TestWatch_ExhaustionFails(t *testing.T) {
	chain := &fakeChain{results: []chainResult{exhausted()}}
	r, _ := newTestResolver(t, chain, Config{})

	st := waitSettled(t, r.Watch(0.5, 0.5))

	assert.Equal(t, StatusFailed, st.Status)
	assert.ErrorIs(t, st.Err, domain.ErrAllProvidersExhausted)
	assert.Equal(t, LabelUnavailable, Label(st))
}

func TestWatch_CloseDuringSettleDelayAbandons(t *testing.T) {
	clock := clockwork.NewFakeClock()
	chain := &fakeChain{results: []chainResult{succeed("Paris", "France")}}
	m := observability.NewMetricsForTesting()
	r := NewResolver(chain, Config{SettleMin: time.Second, SettleMax: 2 * time.Second, Clock: clock}, m, discardLogger())

	sub := r.Watch(48.8566, 2.3522)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	sub.Close()
	r.Close()

	assert.Equal(t, int32(0), chain.calls.Load())
	assert.Equal(t, StatusLoading, sub.State().Status)
	assert.InDelta(t, 1, testutil.ToFloat64(m.GeocodeResolutions.WithLabelValues("abandoned")), 0)
}

func TestWatch_CloseDuringNetworkStillFillsCache(t *testing.T) {
	chain := &fakeChain{
		results: []chainResult{succeed("Bordeaux", "France")},
		entered: make(chan struct{}, 1),
		unblock: make(chan struct{}),
	}
	m := observability.NewMetricsForTesting()
	r := NewResolver(chain, Config{}, m, discardLogger())

	sub := r.Watch(44.8378, -0.5792)
	<-chain.entered
	sub.Close()
	close(chain.unblock)
	r.Close()

	assert.Equal(t, StatusLoading, sub.State().Status, "closed subscriber is not updated")
	cached, ok := r.Cached(44.8378, -0.5792)
	require.True(t, ok)
	assert.Equal(t, "Bordeaux", cached.City)

	select {
	case <-sub.Done():
	default:
		t.Fatal("closed subscription should report done")
	}
}

func TestWatch_ResolverShutdownSettlesFailed(t *testing.T) {
	clock := clockwork.NewFakeClock()
	chain := &fakeChain{results: []chainResult{succeed("Paris", "France")}}
	r := NewResolver(chain, Config{SettleMin: time.Minute, Clock: clock}, observability.NewMetricsForTesting(), discardLogger())

	sub := r.Watch(48.8566, 2.3522)
	r.Close()

	st := waitSettled(t, sub)
	assert.Equal(t, StatusFailed, st.Status)
	assert.True(t, errors.Is(st.Err, context.Canceled))
}

func TestLabel(t *testing.T) {
	assert.Equal(t, LabelLoading, Label(State{}))
	assert.Equal(t, LabelLoading, Label(State{Status: StatusLoading}))
	assert.Equal(t, LabelUnavailable, Label(State{Status: StatusFailed, Err: domain.ErrAllProvidersExhausted}))
	assert.Equal(t, "Rome, Italy", Label(State{
		Status:   StatusResolved,
		Location: domain.ResolvedLocation{City: "Rome", Country: "Italy"},
	}))
}
