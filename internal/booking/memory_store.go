package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/departure-seat-lock/internal/model"
)

// MemoryStore is a single-node Store.  Departure scopes are a KeyedMutex
// keyed by departure id; writes made inside a scope are undone in
// reverse order when the unit of work fails.  Multi-node deployments
// must use the MySQL store instead.
type MemoryStore struct {
	locks    *KeyedMutex
	lockWait time.Duration

	mu         sync.RWMutex
	departures map[string]model.Departure
	holds      map[string]model.SeatHold
	byDep      map[string][]string // hold ids per departure, insertion order
}

var (
	_ Store             = (*MemoryStore)(nil)
	_ DepartureRegistry = (*MemoryStore)(nil)
)

// NewMemoryStore returns an empty store.  lockWait bounds how long a
// unit of work waits for its departure scope; zero waits until ctx ends.
func NewMemoryStore(lockWait time.Duration) *MemoryStore {
	return &MemoryStore{
		locks:      NewKeyedMutex(),
		lockWait:   lockWait,
		departures: make(map[string]model.Departure),
		holds:      make(map[string]model.SeatHold),
		byDep:      make(map[string][]string),
	}
}

// CreateDeparture registers a departure with zero confirmed seats.
func (s *MemoryStore) CreateDeparture(_ context.Context, d model.Departure) error {
	if d.Capacity <= 0 {
		return fmt.Errorf("capacity %d: %w", d.Capacity, ErrInvalidQuantity)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.departures[d.ID]; ok {
		return fmt.Errorf("departure %s: %w", d.ID, ErrConflict)
	}
	d.Confirmed = 0
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	s.departures[d.ID] = d
	return nil
}

// Departure returns a copy of the departure row.
func (s *MemoryStore) Departure(id string) (model.Departure, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.departures[id]
	return d, ok
}

func (s *MemoryStore) WithinDeparture(ctx context.Context, departureID string, fn func(tx Tx) error) error {
	lockCtx := ctx
	if s.lockWait > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, s.lockWait)
		defer cancel()
	}
	unlock, err := s.locks.Lock(lockCtx, departureID)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return ctx.Err()
		}
		return fmt.Errorf("departure %s: %w", departureID, ErrLockTimeout)
	}
	defer unlock()

	if _, ok := s.Departure(departureID); !ok {
		return fmt.Errorf("departure %s: %w", departureID, ErrNotFound)
	}
	tx := &memTx{s: s}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (s *MemoryStore) DeparturesWithExpired(_ context.Context, now time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for dep, ids := range s.byDep {
		for _, id := range ids {
			h := s.holds[id]
			if h.State == model.HoldPending && h.Lapsed(now) {
				out = append(out, dep)
				break
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) GetCapacity(_ context.Context, departureID string) (int, int, error) {
	return s.getCapacity(departureID)
}

func (s *MemoryStore) IncrementConfirmed(_ context.Context, departureID string, quantity int) error {
	return s.incrementConfirmed(departureID, quantity, nil)
}

func (s *MemoryStore) Insert(_ context.Context, hold model.SeatHold) error {
	return s.insert(hold, nil)
}

func (s *MemoryStore) Get(_ context.Context, holdID string) (model.SeatHold, error) {
	return s.get(holdID)
}

func (s *MemoryStore) ListActive(_ context.Context, departureID string, now time.Time) ([]model.SeatHold, error) {
	return s.list(departureID, func(h model.SeatHold) bool { return h.Active(now) }), nil
}

func (s *MemoryStore) ListExpired(_ context.Context, departureID string, now time.Time) ([]model.SeatHold, error) {
	return s.list(departureID, func(h model.SeatHold) bool {
		return h.State == model.HoldPending && h.Lapsed(now)
	}), nil
}

func (s *MemoryStore) Transition(_ context.Context, holdID string, from, to model.HoldState, now time.Time) error {
	return s.transition(holdID, from, to, now, nil)
}

func (s *MemoryStore) getCapacity(departureID string) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.departures[departureID]
	if !ok {
		return 0, 0, ErrNotFound
	}
	return d.Capacity, d.Confirmed, nil
}

func (s *MemoryStore) incrementConfirmed(departureID string, quantity int, undo *[]func()) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.departures[departureID]
	if !ok {
		return ErrNotFound
	}
	if d.Confirmed+quantity > d.Capacity {
		return fmt.Errorf("departure %s: %d confirmed + %d > capacity %d: %w",
			departureID, d.Confirmed, quantity, d.Capacity, ErrCapacityExceeded)
	}
	d.Confirmed += quantity
	s.departures[departureID] = d
	if undo != nil {
		*undo = append(*undo, func() {
			d := s.departures[departureID]
			d.Confirmed -= quantity
			s.departures[departureID] = d
		})
	}
	return nil
}

func (s *MemoryStore) insert(h model.SeatHold, undo *[]func()) error {
	if h.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.holds[h.ID]; ok {
		return fmt.Errorf("hold %s: %w", h.ID, ErrConflict)
	}
	if _, ok := s.departures[h.DepartureID]; !ok {
		return fmt.Errorf("departure %s: %w", h.DepartureID, ErrNotFound)
	}
	h.State = model.HoldPending
	if h.UpdatedAt.IsZero() {
		h.UpdatedAt = h.CreatedAt
	}
	s.holds[h.ID] = h
	s.byDep[h.DepartureID] = append(s.byDep[h.DepartureID], h.ID)
	if undo != nil {
		*undo = append(*undo, func() {
			delete(s.holds, h.ID)
			ids := s.byDep[h.DepartureID]
			for i, id := range ids {
				if id == h.ID {
					s.byDep[h.DepartureID] = append(ids[:i:i], ids[i+1:]...)
					break
				}
			}
		})
	}
	return nil
}

func (s *MemoryStore) get(holdID string) (model.SeatHold, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.holds[holdID]
	if !ok {
		return model.SeatHold{}, fmt.Errorf("hold %s: %w", holdID, ErrNotFound)
	}
	return h, nil
}

func (s *MemoryStore) list(departureID string, keep func(model.SeatHold) bool) []model.SeatHold {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.SeatHold
	for _, id := range s.byDep[departureID] {
		if h := s.holds[id]; keep(h) {
			out = append(out, h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *MemoryStore) transition(holdID string, from, to model.HoldState, now time.Time, undo *[]func()) error {
	if !model.CanTransition(from, to) {
		return fmt.Errorf("%s -> %s: %w", from, to, ErrInvalidTransition)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.holds[holdID]
	if !ok {
		return fmt.Errorf("hold %s: %w", holdID, ErrNotFound)
	}
	if h.State != from {
		return fmt.Errorf("hold %s is %s, want %s: %w", holdID, h.State, from, ErrStaleState)
	}
	prev := h
	h.State = to
	h.UpdatedAt = now
	s.holds[holdID] = h
	if undo != nil {
		*undo = append(*undo, func() {
			if cur := s.holds[holdID]; cur.State == to {
				s.holds[holdID] = prev
			}
		})
	}
	return nil
}

// memTx is a unit of work inside a departure scope.
type memTx struct {
	s    *MemoryStore
	undo []func()
}

func (t *memTx) rollback() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) GetCapacity(_ context.Context, departureID string) (int, int, error) {
	return t.s.getCapacity(departureID)
}

func (t *memTx) IncrementConfirmed(_ context.Context, departureID string, quantity int) error {
	return t.s.incrementConfirmed(departureID, quantity, &t.undo)
}

func (t *memTx) Insert(_ context.Context, hold model.SeatHold) error {
	return t.s.insert(hold, &t.undo)
}

func (t *memTx) Get(_ context.Context, holdID string) (model.SeatHold, error) {
	return t.s.get(holdID)
}

func (t *memTx) ListActive(ctx context.Context, departureID string, now time.Time) ([]model.SeatHold, error) {
	return t.s.ListActive(ctx, departureID, now)
}

func (t *memTx) ListExpired(ctx context.Context, departureID string, now time.Time) ([]model.SeatHold, error) {
	return t.s.ListExpired(ctx, departureID, now)
}

func (t *memTx) Transition(_ context.Context, holdID string, from, to model.HoldState, now time.Time) error {
	return t.s.transition(holdID, from, to, now, &t.undo)
}
