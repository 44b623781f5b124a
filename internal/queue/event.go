// Package queue defines the hold event payload exchanged over the message
// broker and the consumer that journals it.
package queue

import (
	"fmt"
	"strings"
)

// DefaultHoldQueue is the durable queue hold events are routed to.
const DefaultHoldQueue = "seat.holds"

// HoldEvent is published whenever a hold changes state or availability is
// clamped.  It carries enough to audit the hold lifecycle without reading
// the primary database.
type HoldEvent struct {
	Type        string `json:"type"`
	DepartureID string `json:"departure_id"`
	HoldID      string `json:"hold_id,omitempty"`
	OwnerRef    string `json:"owner_ref,omitempty"`
	Quantity    int    `json:"quantity"`
	OccurredAt  string `json:"occurred_at"` // RFC 3339, UTC
}

// Line renders the event as one line of holds.log.
func (e HoldEvent) Line() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s | departure_id=%s", e.OccurredAt, e.Type, e.DepartureID)
	if e.HoldID != "" {
		fmt.Fprintf(&b, " | hold_id=%s", e.HoldID)
	}
	if e.OwnerRef != "" {
		fmt.Fprintf(&b, " | owner_ref=%q", e.OwnerRef)
	}
	fmt.Fprintf(&b, " | quantity=%d\n", e.Quantity)
	return b.String()
}
