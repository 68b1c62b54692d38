package geocoding

import (
	"context"
	"sync"
)

// Subscription observes one resolution over time. It publishes StatusLoading
// on creation and exactly one terminal state afterwards, unless closed first.
type Subscription struct {
	mu      sync.Mutex
	state   State
	closed  bool
	updates chan State
	done    chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

func newSubscription(parent context.Context) *Subscription {
	ctx, cancel := context.WithCancel(parent)
	s := &Subscription{
		state:   State{Status: StatusLoading},
		updates: make(chan State, 2),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
	s.updates <- s.state
	return s
}

// State returns the latest published state.
func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Updates delivers every published state in order. It is closed after the
// terminal state, or when the subscription is closed.
func (s *Subscription) Updates() <-chan State {
	return s.updates
}

// Done is closed once the subscription settles or is closed.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the subscription settles, is closed, or ctx is done, and
// returns the latest state.
func (s *Subscription) Wait(ctx context.Context) (State, error) {
	select {
	case <-s.done:
		return s.State(), nil
	case <-ctx.Done():
		return s.State(), ctx.Err()
	}
}

// Close detaches the subscriber. A lookup still in its settle delay is
// abandoned; one already talking to providers runs to completion and fills
// the cache, but nothing more is published here. Close is idempotent.
func (s *Subscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.cancel()
	if !s.state.Status.Terminal() {
		close(s.updates)
		close(s.done)
	}
}

// settle publishes the terminal state unless the subscriber has gone away.
func (s *Subscription) settle(st State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.state.Status.Terminal() {
		return false
	}
	s.state = st
	s.updates <- st
	close(s.updates)
	close(s.done)
	s.cancel()
	return true
}
