package model

import "time"

// HoldState is the lifecycle state of a SeatHold.
type HoldState string

const (
	HoldPending   HoldState = "pending"
	HoldConfirmed HoldState = "confirmed"
	HoldReleased  HoldState = "released"
	HoldExpired   HoldState = "expired"
)

// Terminal reports whether no further transition is possible from s.
func (s HoldState) Terminal() bool {
	return s == HoldConfirmed || s == HoldReleased || s == HoldExpired
}

// Valid reports whether s is one of the known states.
func (s HoldState) Valid() bool {
	return s == HoldPending || s.Terminal()
}

// CanTransition reports whether from -> to is a legal edge.  Holds only
// move forward out of pending.
func CanTransition(from, to HoldState) bool {
	return from == HoldPending && to.Terminal()
}

// SeatHold is a time-bounded claim on a number of seats of a departure.
// A pending hold counts against capacity until it is confirmed,
// released or its ExpiresAt passes, whichever happens first.
//
// Fields:
//  ID          – UUID generated when the hold is created.
//  DepartureID – departure the seats belong to.
//  Quantity    – number of seats held (> 0).
//  OwnerRef    – opaque identity of the requesting agent.
//  State       – persisted lifecycle state.
//  CreatedAt   – creation timestamp.
//  ExpiresAt   – CreatedAt + hold TTL.
//  UpdatedAt   – time of the last persisted transition.
type SeatHold struct {
	ID          string    `json:"id"`           // seat_holds.id
	DepartureID string    `json:"departure_id"` // seat_holds.departure_id
	Quantity    int       `json:"quantity"`     // seat_holds.quantity
	OwnerRef    string    `json:"owner_ref"`    // seat_holds.owner_ref
	State       HoldState `json:"state"`        // seat_holds.state
	CreatedAt   time.Time `json:"created_at"`   // seat_holds.created_at
	ExpiresAt   time.Time `json:"expires_at"`   // seat_holds.expires_at
	UpdatedAt   time.Time `json:"updated_at"`   // seat_holds.updated_at
}

// Lapsed reports whether the hold's TTL has run out at now.
func (h SeatHold) Lapsed(now time.Time) bool {
	return !h.ExpiresAt.After(now)
}

// Active reports whether the hold still counts against capacity at now.
func (h SeatHold) Active(now time.Time) bool {
	return h.State == HoldPending && !h.Lapsed(now)
}

// EffectiveState is the state every reader should observe: a pending
// hold past its expiry is expired even before the sweep persists it.
func (h SeatHold) EffectiveState(now time.Time) HoldState {
	if h.State == HoldPending && h.Lapsed(now) {
		return HoldExpired
	}
	return h.State
}
