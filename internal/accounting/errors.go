package accounting

import "errors"

// Rejection reasons reported to clients verbatim.
const (
	ReasonMissingFields     = "missing fields"
	ReasonInvalidTimeFormat = "invalid time format"
	ReasonEndBeforeStart    = "end before start"
	ReasonInvalidStatus     = "invalid status"
	ReasonOperatorTooLong   = "operator name too long"
	ReasonUnitMismatch      = "unit does not belong to device"
	ReasonNoTarget          = "missing device"
)

// ErrPersistence wraps any storage failure while applying a submission.
// Nothing of the submission is kept when it is returned.
var ErrPersistence = errors.New("failed to save operation log")

// ValidationError rejects a submission before anything is written.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid submission: " + e.Reason
}

func reject(reason string) error {
	operationsRejectedTotal.WithLabelValues(reason).Inc()
	return &ValidationError{Reason: reason}
}
