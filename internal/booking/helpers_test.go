package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/departure-seat-lock/internal/model"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) Emit(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingSink) count(t EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

type fixture struct {
	mgr   *Manager
	store *MemoryStore
	clock clockwork.FakeClock
	sink  *recordingSink
}

func newFixture(t *testing.T, ttl time.Duration, departures map[string]int) fixture {
	t.Helper()
	store := NewMemoryStore(2 * time.Second)
	for id, capacity := range departures {
		require.NoError(t, store.CreateDeparture(context.Background(), model.Departure{ID: id, Capacity: capacity}))
	}
	clock := clockwork.NewFakeClockAt(time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC))
	sink := &recordingSink{}
	return fixture{
		mgr:   NewManager(store, clock, sink, Config{HoldTTL: ttl}),
		store: store,
		clock: clock,
		sink:  sink,
	}
}

func (f fixture) available(t *testing.T, dep string) int {
	t.Helper()
	a, err := f.mgr.Availability(context.Background(), dep)
	require.NoError(t, err)
	return a.Available
}

func (f fixture) confirmed(t *testing.T, dep string) int {
	t.Helper()
	_, confirmed, err := f.store.GetCapacity(context.Background(), dep)
	require.NoError(t, err)
	return confirmed
}
