package domain

// PublishOutcome is the result of handing one record to the transport. It is a closed
// set: Success, RetryableFailure and PermanentFailure are the only implementations.
type PublishOutcome interface {
	publishOutcome()
}

// Success means the transport confirmed delivery.
type Success struct{}

// RetryableFailure means the send failed for a reason that may clear up (timeouts,
// broken connections, unknown errors).
type RetryableFailure struct {
	Err error
}

// PermanentFailure means the transport reported a condition that retrying will not
// fix (entity disabled or missing, payload too large, quota exhausted).
type PermanentFailure struct {
	Reason string
	Err    error
}

func (Success) publishOutcome()          {}
func (RetryableFailure) publishOutcome() {}
func (PermanentFailure) publishOutcome() {}

// Error returns the failure text, or "" for a nil error.
func (f RetryableFailure) Error() string {
	if f.Err == nil {
		return ""
	}
	return f.Err.Error()
}
