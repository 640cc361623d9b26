package order

import (
	"time"

	"github.com/go-faster/errors"
)

// Status is a step in the order lifecycle.
type Status string

const (
	StatusAwaitingRestaurant Status = "AWAITING_RESTAURANT"
	StatusConfirmed          Status = "CONFIRMED"
	StatusPreparing          Status = "PREPARING"
	StatusReady              Status = "READY"
	StatusOutForDelivery     Status = "OUT_FOR_DELIVERY"
	StatusDelivered          Status = "DELIVERED"
	StatusCancelled          Status = "CANCELLED"
)

// ErrUnknownStatus is returned when parsing an unrecognized status.
var ErrUnknownStatus = errors.New("unknown order status")

// transitions is the complete lifecycle graph. Statuses with no outgoing
// edges are terminal.
var transitions = map[Status][]Status{
	StatusAwaitingRestaurant: {StatusConfirmed, StatusCancelled},
	StatusConfirmed:          {StatusPreparing, StatusCancelled},
	StatusPreparing:          {StatusReady, StatusCancelled},
	StatusReady:              {StatusOutForDelivery},
	StatusOutForDelivery:     {StatusDelivered},
	StatusDelivered:          nil,
	StatusCancelled:          nil,
}

// Statuses lists every status in lifecycle order.
func Statuses() []Status {
	return []Status{
		StatusAwaitingRestaurant,
		StatusConfirmed,
		StatusPreparing,
		StatusReady,
		StatusOutForDelivery,
		StatusDelivered,
		StatusCancelled,
	}
}

// ParseStatus converts s into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", errors.Wrapf(ErrUnknownStatus, "%q", s)
	}
	return st, nil
}

// Valid reports whether s is part of the lifecycle.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// Next returns the statuses reachable from s in one step.
func (s Status) Next() []Status {
	return append([]Status(nil), transitions[s]...)
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Milestones holds the time each lifecycle step was reached. Unreached
// steps are nil.
type Milestones struct {
	ConfirmedAt  *time.Time
	PreparingAt  *time.Time
	ReadyAt      *time.Time
	DispatchedAt *time.Time
	DeliveredAt  *time.Time
	CancelledAt  *time.Time
}

// slot returns the field stamped when entering s, or nil for the initial status.
func (m *Milestones) slot(s Status) **time.Time {
	switch s {
	case StatusConfirmed:
		return &m.ConfirmedAt
	case StatusPreparing:
		return &m.PreparingAt
	case StatusReady:
		return &m.ReadyAt
	case StatusOutForDelivery:
		return &m.DispatchedAt
	case StatusDelivered:
		return &m.DeliveredAt
	case StatusCancelled:
		return &m.CancelledAt
	default:
		return nil
	}
}

// Reached returns when s was entered, if it was.
func (m *Milestones) Reached(s Status) (time.Time, bool) {
	field := m.slot(s)
	if field == nil || *field == nil {
		return time.Time{}, false
	}
	return **field, true
}

func (m *Milestones) stamp(s Status, at time.Time) {
	if field := m.slot(s); field != nil {
		*field = &at
	}
}
