package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/gommon/log"

	"github.com/iliyamo/departure-seat-lock/internal/model"
)

// DefaultHoldTTL is used when Config.HoldTTL is not set.
const DefaultHoldTTL = 10 * time.Minute

// Config tunes a Manager.
type Config struct {
	HoldTTL time.Duration // lifetime of a pending hold
}

// Manager grants, confirms and releases seat holds.  Hold creation and
// confirmation run inside the departure scope of the Store, so two of
// them for the same departure never interleave.  Release and expiry are
// single compare-and-swap writes.
type Manager struct {
	store Store
	calc  *Calculator
	clock clockwork.Clock
	sink  Sink
	ttl   time.Duration
	newID func() string
}

// NewManager wires a Manager.  A nil clock means wall time and a nil sink
// discards events.
func NewManager(store Store, clock clockwork.Clock, sink Sink, cfg Config) *Manager {
	if store == nil {
		panic("nil store passed to NewManager")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if sink == nil {
		sink = NopSink{}
	}
	if cfg.HoldTTL <= 0 {
		cfg.HoldTTL = DefaultHoldTTL
	}
	return &Manager{
		store: store,
		calc:  NewCalculator(sink),
		clock: clock,
		sink:  sink,
		ttl:   cfg.HoldTTL,
		newID: uuid.NewString,
	}
}

// HoldTTL is the lifetime given to new holds.
func (m *Manager) HoldTTL() time.Duration { return m.ttl }

func (m *Manager) now() time.Time { return m.clock.Now().UTC() }

// Availability returns a live snapshot for the departure.  It takes no
// lock; CreateHold re-validates under the departure scope.
func (m *Manager) Availability(ctx context.Context, departureID string) (model.Availability, error) {
	return m.calc.Available(ctx, m.store, departureID, m.now())
}

// CreateHold reserves quantity seats of the departure for ownerRef.  It
// fails with ErrInsufficientSeats when fewer seats are available, leaving
// no trace.  An identifier collision is retried once with a fresh id.
func (m *Manager) CreateHold(ctx context.Context, departureID string, quantity int, ownerRef string) (model.SeatHold, error) {
	if quantity <= 0 {
		return model.SeatHold{}, fmt.Errorf("quantity %d: %w", quantity, ErrInvalidQuantity)
	}
	if ownerRef == "" {
		return model.SeatHold{}, ErrInvalidOwner
	}

	var hold model.SeatHold
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		hold, err = m.createHold(ctx, departureID, quantity, ownerRef)
		if !errors.Is(err, ErrConflict) {
			break
		}
		log.Warnf("booking: hold id collision on departure %s, retrying", departureID)
	}
	if err != nil {
		return model.SeatHold{}, err
	}
	m.sink.Emit(ctx, Event{
		Type:        EventHoldCreated,
		DepartureID: hold.DepartureID,
		HoldID:      hold.ID,
		OwnerRef:    hold.OwnerRef,
		Quantity:    hold.Quantity,
		OccurredAt:  hold.CreatedAt,
	})
	return hold, nil
}

func (m *Manager) createHold(ctx context.Context, departureID string, quantity int, ownerRef string) (model.SeatHold, error) {
	var hold model.SeatHold
	err := m.store.WithinDeparture(ctx, departureID, func(tx Tx) error {
		now := m.now()
		a, err := m.calc.Available(ctx, tx, departureID, now)
		if err != nil {
			return err
		}
		if quantity > a.Available {
			return fmt.Errorf("departure %s: requested %d, available %d: %w",
				departureID, quantity, a.Available, ErrInsufficientSeats)
		}
		hold = model.SeatHold{
			ID:          m.newID(),
			DepartureID: departureID,
			Quantity:    quantity,
			OwnerRef:    ownerRef,
			State:       model.HoldPending,
			CreatedAt:   now,
			ExpiresAt:   now.Add(m.ttl),
			UpdatedAt:   now,
		}
		return tx.Insert(ctx, hold)
	})
	return hold, err
}

// Confirmation is the result of ConfirmHold.
type Confirmation struct {
	Hold             model.SeatHold
	AlreadyConfirmed bool // the booking was recorded by an earlier call
}

// ConfirmHold turns a pending hold into a booking: the hold becomes
// confirmed and the departure's confirmed count grows by its quantity in
// the same unit of work.  Confirming a confirmed hold succeeds without
// counting it again.  A released or expired hold fails with
// ErrHoldNotActive.
func (m *Manager) ConfirmHold(ctx context.Context, holdID string) (Confirmation, error) {
	h, err := m.store.Get(ctx, holdID)
	if err != nil {
		return Confirmation{}, err
	}
	if h.State == model.HoldConfirmed {
		return Confirmation{Hold: h, AlreadyConfirmed: true}, nil
	}

	var res Confirmation
	var lapsed bool
	err = m.store.WithinDeparture(ctx, h.DepartureID, func(tx Tx) error {
		now := m.now()
		cur, err := tx.Get(ctx, holdID)
		if err != nil {
			return err
		}
		switch cur.State {
		case model.HoldConfirmed:
			res = Confirmation{Hold: cur, AlreadyConfirmed: true}
			return nil
		case model.HoldReleased, model.HoldExpired:
			return fmt.Errorf("hold %s is %s: %w", holdID, cur.State, ErrHoldNotActive)
		}

		if cur.Lapsed(now) {
			// Persist the expiry and commit it; the caller still fails.
			err := MarkExpired(ctx, tx, holdID, now)
			switch {
			case err == nil:
				cur.State, cur.UpdatedAt = model.HoldExpired, now
				res.Hold, lapsed = cur, true
				return nil
			case errors.Is(err, ErrStaleState):
				return fmt.Errorf("hold %s: %w", holdID, ErrHoldNotActive)
			default:
				return err
			}
		}

		if err := tx.Transition(ctx, holdID, model.HoldPending, model.HoldConfirmed, now); err != nil {
			if !errors.Is(err, ErrStaleState) {
				return err
			}
			// A release won the race.
			again, gerr := tx.Get(ctx, holdID)
			if gerr != nil {
				return gerr
			}
			if again.State == model.HoldConfirmed {
				res = Confirmation{Hold: again, AlreadyConfirmed: true}
				return nil
			}
			return fmt.Errorf("hold %s is %s: %w", holdID, again.State, ErrHoldNotActive)
		}
		if err := tx.IncrementConfirmed(ctx, cur.DepartureID, cur.Quantity); err != nil {
			return err
		}
		cur.State, cur.UpdatedAt = model.HoldConfirmed, now
		res.Hold = cur
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrCapacityExceeded) {
			log.Errorf("ALERT booking: confirming hold %s would oversell departure %s: %v", holdID, h.DepartureID, err)
			m.sink.Emit(ctx, Event{
				Type:        EventCapacityExceeded,
				DepartureID: h.DepartureID,
				HoldID:      h.ID,
				OwnerRef:    h.OwnerRef,
				Quantity:    h.Quantity,
				OccurredAt:  m.now(),
			})
		}
		return Confirmation{}, err
	}
	if lapsed {
		m.emitHold(ctx, EventHoldExpired, res.Hold)
		return Confirmation{}, fmt.Errorf("hold %s expired at %s: %w",
			holdID, res.Hold.ExpiresAt.Format(time.RFC3339), ErrHoldNotActive)
	}
	if !res.AlreadyConfirmed {
		m.emitHold(ctx, EventHoldConfirmed, res.Hold)
	}
	return res, nil
}

// ReleaseHold cancels a pending hold and returns the hold as it now
// stands.  Releasing a hold that is already terminal is a no-op; a
// pending hold past its expiry is recorded as expired instead, so a
// release racing expiry leaves exactly one terminal state.
func (m *Manager) ReleaseHold(ctx context.Context, holdID string) (model.SeatHold, error) {
	h, err := m.store.Get(ctx, holdID)
	if err != nil {
		return model.SeatHold{}, err
	}
	if h.State.Terminal() {
		return h, nil
	}
	now := m.now()
	to, ev := model.HoldReleased, EventHoldReleased
	if h.Lapsed(now) {
		to, ev = model.HoldExpired, EventHoldExpired
	}
	if err := m.store.Transition(ctx, holdID, model.HoldPending, to, now); err != nil {
		if errors.Is(err, ErrStaleState) {
			return m.store.Get(ctx, holdID)
		}
		return model.SeatHold{}, err
	}
	h.State, h.UpdatedAt = to, now
	m.emitHold(ctx, ev, h)
	return h, nil
}

// GetHold returns the hold with its effective state at the current time.
func (m *Manager) GetHold(ctx context.Context, holdID string) (model.SeatHold, error) {
	h, err := m.store.Get(ctx, holdID)
	if err != nil {
		return model.SeatHold{}, err
	}
	h.State = h.EffectiveState(m.now())
	return h, nil
}

// SweepExpired persists the expiry of every pending hold of the
// departure with expires_at <= now and returns how many it marked.
// Holds that changed state concurrently are skipped, which makes the
// sweep safe to repeat.  Availability never depends on it having run.
func (m *Manager) SweepExpired(ctx context.Context, departureID string, now time.Time) (int, error) {
	holds, err := m.store.ListExpired(ctx, departureID, now)
	if err != nil {
		return 0, fmt.Errorf("list expired holds of %s: %w", departureID, err)
	}
	n := 0
	for _, h := range holds {
		if err := MarkExpired(ctx, m.store, h.ID, now); err != nil {
			if errors.Is(err, ErrStaleState) {
				continue
			}
			return n, fmt.Errorf("expire hold %s: %w", h.ID, err)
		}
		n++
		h.State, h.UpdatedAt = model.HoldExpired, now
		m.emitHold(ctx, EventHoldExpired, h)
	}
	return n, nil
}

func (m *Manager) emitHold(ctx context.Context, t EventType, h model.SeatHold) {
	m.sink.Emit(ctx, Event{
		Type:        t,
		DepartureID: h.DepartureID,
		HoldID:      h.ID,
		OwnerRef:    h.OwnerRef,
		Quantity:    h.Quantity,
		OccurredAt:  h.UpdatedAt,
	})
}
