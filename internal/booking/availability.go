package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/iliyamo/departure-seat-lock/internal/model"
)

// Compute derives live availability from a departure's inventory and a
// set of holds.  Only pending holds with expires_at > now count, whatever
// the caller passed in.  A negative result is clamped to zero and
// reported through overage so the caller can raise the signal.
func Compute(departureID string, capacity, confirmed int, holds []model.SeatHold, now time.Time) (a model.Availability, overage int) {
	a = model.Availability{
		DepartureID: departureID,
		Capacity:    capacity,
		Confirmed:   confirmed,
		AsOf:        now,
	}
	for _, h := range holds {
		if h.DepartureID != departureID || !h.Active(now) {
			continue
		}
		a.ActiveHolds += h.Quantity
		a.HoldCount++
	}
	a.Available = capacity - confirmed - a.ActiveHolds
	if a.Available < 0 {
		overage = -a.Available
		a.Available = 0
	}
	return a, overage
}

// Calculator reads inventory and holds and computes availability,
// emitting EventAvailabilityClamp when holds exceed capacity.
type Calculator struct {
	sink Sink
}

// NewCalculator returns a Calculator reporting clamps to sink.
func NewCalculator(sink Sink) *Calculator {
	if sink == nil {
		sink = NopSink{}
	}
	return &Calculator{sink: sink}
}

// Available reads through r, which is either the Store itself (snapshot
// outside any scope) or a Tx inside a departure scope.
func (c *Calculator) Available(ctx context.Context, r Tx, departureID string, now time.Time) (model.Availability, error) {
	// Capacity is read before the holds.  A confirmation landing between
	// the two reads then makes the snapshot optimistic; the reverse order
	// could count a hold twice and raise a false clamp.
	capacity, confirmed, err := r.GetCapacity(ctx, departureID)
	if err != nil {
		return model.Availability{}, fmt.Errorf("departure %s: %w", departureID, err)
	}
	holds, err := r.ListActive(ctx, departureID, now)
	if err != nil {
		return model.Availability{}, fmt.Errorf("list holds of %s: %w", departureID, err)
	}
	a, overage := Compute(departureID, capacity, confirmed, holds, now)
	if overage > 0 {
		c.sink.Emit(ctx, Event{
			Type:        EventAvailabilityClamp,
			DepartureID: departureID,
			Quantity:    overage,
			OccurredAt:  now,
		})
	}
	return a, nil
}
