package domain

import (
	"fmt"
	"strings"

	apperrors "github.com/allisson/orderflow/internal/errors"
)

// Status is the lifecycle state of an order. A nil *Status stands for "no status yet",
// the from-side of the very first transition.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusProcessing Status = "Processing"
	StatusFinalized  Status = "Finalized"
)

// initialAllowed lists the statuses an order may be created with.
var initialAllowed = []Status{StatusPending}

// allowedTransitions is the order state machine. A status missing from the map
// (or mapped to an empty slice) has no outgoing edges.
var allowedTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusFinalized},
	StatusFinalized:  {},
}

// ParseStatus converts a stored status string into a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusProcessing, StatusFinalized:
		return Status(s), nil
	default:
		return "", apperrors.Wrapf(apperrors.ErrInvalidInput, "unknown order status %q", s)
	}
}

// Ptr returns a pointer to s, for use as a from-status.
func (s Status) Ptr() *Status {
	return &s
}

// String implements fmt.Stringer.
func (s Status) String() string {
	return string(s)
}

// NextAllowed returns the statuses reachable from from. A nil from yields the
// initial statuses; an unknown from yields nothing.
func NextAllowed(from *Status) []Status {
	if from == nil {
		return append([]Status(nil), initialAllowed...)
	}
	return append([]Status(nil), allowedTransitions[*from]...)
}

// IsValid reports whether the transition from -> to is an edge of the state machine.
func IsValid(from *Status, to Status) bool {
	for _, candidate := range NextAllowed(from) {
		if candidate == to {
			return true
		}
	}
	return false
}

// EnsureValid returns an *InvalidTransitionError when from -> to is not allowed.
func EnsureValid(from *Status, to Status) error {
	if IsValid(from, to) {
		return nil
	}
	return &InvalidTransitionError{
		From:     from,
		To:       to,
		Expected: NextAllowed(from),
	}
}

// InvalidTransitionError describes a rejected status transition.
type InvalidTransitionError struct {
	From     *Status
	To       Status
	Expected []Status
}

// Error renders the attempted transition and the statuses that would have been accepted,
// e.g. "invalid status transition: 'null' -> 'Processing'. Expected: [Pending]."
func (e *InvalidTransitionError) Error() string {
	from := "null"
	if e.From != nil {
		from = string(*e.From)
	}

	expected := make([]string, 0, len(e.Expected))
	for _, s := range e.Expected {
		expected = append(expected, string(s))
	}

	return fmt.Sprintf(
		"invalid status transition: '%s' -> '%s'. Expected: [%s].",
		from,
		e.To,
		strings.Join(expected, ", "),
	)
}

// Unwrap exposes ErrInvalidTransition so callers can match with errors.Is.
func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}
