package booking

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/gommon/log"
)

// DefaultSweepInterval is used when NewSweeper gets a non-positive interval.
const DefaultSweepInterval = time.Minute

// Sweeper periodically persists the expiry of lapsed holds across all
// departures.  It is bookkeeping only: reads already treat lapsed holds
// as expired.
type Sweeper struct {
	m        *Manager
	store    Store
	clock    clockwork.Clock
	interval time.Duration
}

// NewSweeper returns a Sweeper that runs every interval on clock.
func NewSweeper(m *Manager, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{m: m, store: m.store, clock: m.clock, interval: interval}
}

// Run sweeps on every tick until ctx is cancelled.  Failed sweeps are
// logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	t := s.clock.NewTicker(s.interval)
	defer t.Stop()
	log.Infof("sweeper: running every %s", s.interval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.Chan():
			n, err := s.SweepOnce(ctx)
			if err != nil {
				log.Warnf("sweeper: %v", err)
			}
			if n > 0 {
				log.Infof("sweeper: expired %d holds", n)
			}
		}
	}
}

// SweepOnce expires lapsed holds of every departure that has some and
// returns the number of holds marked.  A failing departure does not stop
// the others; the first error is returned.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	now := s.clock.Now().UTC()
	deps, err := s.store.DeparturesWithExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	total := 0
	var firstErr error
	for _, dep := range deps {
		n, err := s.m.SweepExpired(ctx, dep, now)
		total += n
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return total, firstErr
}
