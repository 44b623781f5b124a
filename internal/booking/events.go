package booking

import (
	"context"
	"time"

	"github.com/labstack/gommon/log"
)

// EventType names an observability signal emitted by the engine.
type EventType string

const (
	EventHoldCreated       EventType = "hold.created"
	EventHoldConfirmed     EventType = "hold.confirmed"
	EventHoldReleased      EventType = "hold.released"
	EventHoldExpired       EventType = "hold.expired"
	EventAvailabilityClamp EventType = "availability.clamped"
	EventCapacityExceeded  EventType = "inventory.capacity_exceeded"
)

// Event is a single signal for the monitoring collaborator.  Every event
// carries the departure and a seat quantity; for a clamp the quantity is
// the number of seats by which holds exceeded capacity.
type Event struct {
	Type        EventType
	DepartureID string
	HoldID      string
	OwnerRef    string
	Quantity    int
	OccurredAt  time.Time
}

// Sink receives engine events.  Emit is called after the unit of work
// that produced the event has committed; implementations must not block
// for long and report their own failures.
type Sink interface {
	Emit(ctx context.Context, ev Event)
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) Emit(context.Context, Event) {}

// MultiSink fans an event out to every sink in order.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, ev Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, ev)
		}
	}
}

// JSONLogger is satisfied by echo's logger and *log.Logger from gommon.
type JSONLogger interface {
	Infoj(j log.JSON)
	Warnj(j log.JSON)
	Errorj(j log.JSON)
}

// LogSink writes one JSON log record per event.  Clamps are warnings and
// capacity violations are errors so that alerting can key off level.
type LogSink struct {
	Logger JSONLogger
}

// NewLogSink returns a LogSink writing to l.
func NewLogSink(l JSONLogger) *LogSink { return &LogSink{Logger: l} }

func (s *LogSink) Emit(_ context.Context, ev Event) {
	j := log.JSON{
		"event":        string(ev.Type),
		"departure_id": ev.DepartureID,
		"quantity":     ev.Quantity,
		"at":           ev.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
	if ev.HoldID != "" {
		j["hold_id"] = ev.HoldID
	}
	if ev.OwnerRef != "" {
		j["owner_ref"] = ev.OwnerRef
	}
	switch ev.Type {
	case EventCapacityExceeded:
		j["alert"] = true
		s.Logger.Errorj(j)
	case EventAvailabilityClamp:
		s.Logger.Warnj(j)
	default:
		s.Logger.Infoj(j)
	}
}
