package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/departure-seat-lock/internal/model"
)

func TestMemoryStore_CreateDeparture(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)
	require.NoError(t, s.CreateDeparture(ctx, model.Departure{ID: "D", Capacity: 3, Confirmed: 2}))

	capacity, confirmed, err := s.GetCapacity(ctx, "D")
	require.NoError(t, err)
	assert.Equal(t, 3, capacity)
	assert.Zero(t, confirmed)

	assert.ErrorIs(t, s.CreateDeparture(ctx, model.Departure{ID: "D", Capacity: 3}), ErrConflict)
	assert.ErrorIs(t, s.CreateDeparture(ctx, model.Departure{ID: "E", Capacity: 0}), ErrInvalidQuantity)
}

func TestMemoryStore_RollsBackFailedUnitOfWork(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Second)
	require.NoError(t, s.CreateDeparture(ctx, model.Departure{ID: "D", Capacity: 5}))
	now := time.Now().UTC()
	require.NoError(t, s.Insert(ctx, model.SeatHold{ID: "old", DepartureID: "D", Quantity: 1, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}))

	boom := errors.New("boom")
	err := s.WithinDeparture(ctx, "D", func(tx Tx) error {
		require.NoError(t, tx.Insert(ctx, model.SeatHold{ID: "new", DepartureID: "D", Quantity: 2, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}))
		require.NoError(t, tx.Transition(ctx, "old", model.HoldPending, model.HoldConfirmed, now))
		require.NoError(t, tx.IncrementConfirmed(ctx, "D", 1))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.Get(ctx, "new")
	assert.ErrorIs(t, err, ErrNotFound)
	old, err := s.Get(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, model.HoldPending, old.State)
	_, confirmed, err := s.GetCapacity(ctx, "D")
	require.NoError(t, err)
	assert.Zero(t, confirmed)
	active, err := s.ListActive(ctx, "D", now)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestMemoryStore_WithinUnknownDeparture(t *testing.T) {
	s := NewMemoryStore(0)
	err := s.WithinDeparture(context.Background(), "nope", func(Tx) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_Transition(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)
	require.NoError(t, s.CreateDeparture(ctx, model.Departure{ID: "D", Capacity: 5}))
	now := time.Now().UTC()
	require.NoError(t, s.Insert(ctx, model.SeatHold{ID: "h", DepartureID: "D", Quantity: 1, CreatedAt: now, ExpiresAt: now.Add(time.Minute)}))
	assert.ErrorIs(t, s.Insert(ctx, model.SeatHold{ID: "h", DepartureID: "D", Quantity: 1}), ErrConflict)

	assert.ErrorIs(t, s.Transition(ctx, "h", model.HoldConfirmed, model.HoldPending, now), ErrInvalidTransition)
	assert.ErrorIs(t, s.Transition(ctx, "missing", model.HoldPending, model.HoldReleased, now), ErrNotFound)
	require.NoError(t, s.Transition(ctx, "h", model.HoldPending, model.HoldReleased, now.Add(time.Second)))
	assert.ErrorIs(t, s.Transition(ctx, "h", model.HoldPending, model.HoldExpired, now), ErrStaleState)

	h, err := s.Get(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, model.HoldReleased, h.State)
	assert.True(t, h.UpdatedAt.Equal(now.Add(time.Second)))
}

func TestMemoryStore_DeparturesWithExpired(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)
	now := time.Now().UTC()
	for _, id := range []string{"A", "B", "C"} {
		require.NoError(t, s.CreateDeparture(ctx, model.Departure{ID: id, Capacity: 5}))
	}
	require.NoError(t, s.Insert(ctx, model.SeatHold{ID: "a", DepartureID: "A", Quantity: 1, ExpiresAt: now.Add(-time.Second)}))
	require.NoError(t, s.Insert(ctx, model.SeatHold{ID: "b", DepartureID: "B", Quantity: 1, ExpiresAt: now.Add(time.Minute)}))
	require.NoError(t, s.Insert(ctx, model.SeatHold{ID: "c", DepartureID: "C", Quantity: 1, ExpiresAt: now}))

	deps, err := s.DeparturesWithExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C"}, deps)

	expired, err := s.ListExpired(ctx, "C", now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "c", expired[0].ID)
}
