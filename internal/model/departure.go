package model

import "time"

// Departure is a scheduled departure with a fixed number of sellable
// seats.  Capacity is set once by the scheduling collaborator when the
// departure is created; only booking confirmations change Confirmed.
//
// Fields:
//  ID        – departure identifier assigned by the scheduler.
//  Capacity  – total seats, immutable after creation.
//  Confirmed – seats already converted into bookings (<= Capacity).
//  CreatedAt – creation timestamp.
type Departure struct {
	ID        string    `json:"id"`         // departures.id
	Capacity  int       `json:"capacity"`   // departures.capacity
	Confirmed int       `json:"confirmed"`  // departures.confirmed_count
	CreatedAt time.Time `json:"created_at"` // departures.created_at
}

// Availability is a point-in-time view of a departure's seats.  It is a
// snapshot: a hold request re-validates availability under the
// departure's lock, so a stale snapshot can never oversell.
type Availability struct {
	DepartureID string    `json:"departure_id"`
	Capacity    int       `json:"capacity"`
	Confirmed   int       `json:"confirmed"`
	ActiveHolds int       `json:"active_holds"` // seats held by live pending holds
	HoldCount   int       `json:"hold_count"`   // number of live pending holds
	Available   int       `json:"available"`
	AsOf        time.Time `json:"as_of"`
}
