package booking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/departure-seat-lock/internal/model"
)

func TestSweeper_SweepOnceAcrossDepartures(t *testing.T) {
	f := newFixture(t, time.Minute, map[string]int{"A": 5, "B": 5, "C": 5})
	ctx := context.Background()
	for _, dep := range []string{"A", "B"} {
		_, err := f.mgr.CreateHold(ctx, dep, 2, "agent")
		require.NoError(t, err)
	}
	f.clock.Advance(2 * time.Minute)
	live, err := f.mgr.CreateHold(ctx, "C", 1, "agent")
	require.NoError(t, err)

	s := NewSweeper(f.mgr, time.Minute)
	n, err := s.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	h, err := f.store.Get(ctx, live.ID)
	require.NoError(t, err)
	assert.Equal(t, model.HoldPending, h.State)

	n, err = s.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweeper_RunTicksOnClock(t *testing.T) {
	f := newFixture(t, time.Minute, map[string]int{"A": 5})
	ctx, cancel := context.WithCancel(context.Background())
	h, err := f.mgr.CreateHold(ctx, "A", 2, "agent")
	require.NoError(t, err)

	s := NewSweeper(f.mgr, 30*time.Second)
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	f.clock.BlockUntil(1)
	f.clock.Advance(time.Minute)

	require.Eventually(t, func() bool {
		got, err := f.store.Get(context.Background(), h.ID)
		return err == nil && got.State == model.HoldExpired
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
