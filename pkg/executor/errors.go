package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/intentline-hq/intentline/pkg/models"
	"github.com/intentline-hq/intentline/pkg/venues"
)

// ExecError is returned when an execution attempt settles as failed. It
// carries the classification recorded on the intent so callers can decide
// whether a retry is worthwhile. Venue names the venue whose step failed,
// "none" when the failure happened outside a venue call.
type ExecError struct {
	Kind   models.FailureKind
	Reason string
	Venue  string
	Err    error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("execution failed (%s/%s): %v", e.Kind, e.Reason, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// Classify maps a step error to a failure kind and a low-cardinality reason
// label. Recognized business rejections are named; everything else is
// unknown and eligible for retry.
func Classify(err error) (models.FailureKind, string) {
	var venueErr *venues.VenueError
	switch {
	case errors.Is(err, models.ErrSlippageExceeded):
		return models.FailureNamed, "slippage_exceeded"
	case errors.Is(err, models.ErrBudgetExceeded):
		return models.FailureNamed, "budget_exceeded"
	case errors.Is(err, models.ErrVenueSuspended):
		return models.FailureNamed, "venue_suspended"
	case errors.Is(err, models.ErrInvalidInput):
		return models.FailureNamed, "invalid_step"
	case errors.As(err, &venueErr):
		return models.FailureNamed, "venue_rejected"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return models.FailureUnknown, "interrupted"
	default:
		return models.FailureUnknown, "unknown_error"
	}
}
