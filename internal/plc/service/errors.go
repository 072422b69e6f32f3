package service

import (
	"context"
	"errors"

	"plcwatch/internal/plc/models"
	dErrors "plcwatch/pkg/domain-errors"
	"plcwatch/pkg/platform/sentinel"
)

// translate maps domain and store errors onto domain-error codes. The cause
// stays reachable through errors.Is.
func translate(err error, message string) error {
	if err == nil {
		return nil
	}
	var de *dErrors.Error
	if dErrors.AsError(err, &de) {
		return err
	}
	switch {
	case errors.Is(err, models.ErrMalformedOperation):
		return dErrors.Wrap(err, dErrors.CodeValidation, message)
	case errors.Is(err, models.ErrHandleNotFound),
		errors.Is(err, models.ErrUnknownPrevOperation):
		return dErrors.Wrap(err, dErrors.CodeUnprocessable, message)
	case errors.Is(err, models.ErrBrokenOperationTree):
		return dErrors.Wrap(err, dErrors.CodeInvariantViolation, message)
	case errors.Is(err, models.ErrEntityConflictExhausted),
		errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, message)
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, message)
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, message)
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, message)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, message)
	}
}
