// Package delivery holds the delivery status lifecycle and its transition
// rules. The transition function is pure; side effects such as starting or
// stopping location acquisition belong to the orchestrator.
package delivery

import "fmt"

// Status represents the lifecycle state of a delivery.
type Status string

const (
	StatusPending        Status = "pending"
	StatusPreparing      Status = "preparing"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusInTransit      Status = "in_transit"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
)

// validTransitions defines the allowed state machine edges. Terminal states
// have no entry.
var validTransitions = map[Status][]Status{
	StatusPending:        {StatusPreparing, StatusOutForDelivery, StatusCancelled},
	StatusPreparing:      {StatusOutForDelivery, StatusCancelled},
	StatusOutForDelivery: {StatusInTransit, StatusDelivered, StatusCancelled},
	StatusInTransit:      {StatusDelivered, StatusCancelled},
}

// statusRank orders the forward path of the state machine. Used to decide
// whether a server-reported status is further along than the local one.
var statusRank = map[Status]int{
	StatusPending:        0,
	StatusPreparing:      1,
	StatusOutForDelivery: 2,
	StatusInTransit:      3,
	StatusDelivered:      4,
	StatusCancelled:      5,
}

// InvalidTransitionError reports a status change that is not an allowed edge.
type InvalidTransitionError struct {
	Current   Status
	Requested Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid delivery status transition from %q to %q", e.Current, e.Requested)
}

// Valid reports whether s is one of the known delivery statuses.
func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Tracking reports whether a courier is expected to be moving in s, meaning
// location samples may be accepted.
func (s Status) Tracking() bool {
	return s == StatusOutForDelivery || s == StatusInTransit
}

// CanTransitionTo reports whether a transition from s to next is an allowed
// edge.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transition validates the requested status change and returns the new status.
// The current status is never mutated; on a disallowed edge the error carries
// both sides of the rejected transition.
func Transition(current, requested Status) (Status, error) {
	if !current.CanTransitionTo(requested) {
		return current, &InvalidTransitionError{Current: current, Requested: requested}
	}
	return requested, nil
}

// Ahead reports whether other is strictly further along the lifecycle than s.
// Cancellation outranks every non-terminal status since it is reachable from
// any of them. A terminal status is never overtaken: once delivered or
// cancelled, the session stays there.
func Ahead(other, s Status) bool {
	if s.Terminal() {
		return false
	}
	or, ok := statusRank[other]
	if !ok {
		return false
	}
	return or > statusRank[s]
}
