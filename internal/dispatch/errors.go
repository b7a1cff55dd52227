package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/alecgard/langfuse-mcp/internal/langfuse"
	"github.com/alecgard/langfuse-mcp/internal/mode"
)

var (
	// ErrInvalidArguments is wrapped by every *ArgumentError.
	ErrInvalidArguments = errors.New("invalid arguments")
	// ErrUnknownOperation is returned for names that match no registered
	// operation.
	ErrUnknownOperation = errors.New("unknown operation")
)

// ArgumentError names the offending field of a rejected call.
type ArgumentError struct {
	Field  string
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid arguments: %s %s", e.Field, e.Reason)
}

func (e *ArgumentError) Unwrap() error { return ErrInvalidArguments }

// InvalidArgument is a shorthand for handlers rejecting a value the schema
// could not express.
func InvalidArgument(field, format string, a ...any) error {
	return &ArgumentError{Field: field, Reason: fmt.Sprintf(format, a...)}
}

// Outcome labels used in audit records and metrics.
const (
	OutcomeSuccess     = "success"
	OutcomeDenied      = "denied"
	OutcomeInvalid     = "invalid_arguments"
	OutcomeUnconfirmed = "unconfirmed"
	OutcomeFailed      = "failed"
	OutcomeUnknown     = "unknown_operation"
)

// classify maps an error to its outcome label and error kind.
func classify(err error) (outcome, kind string) {
	var te *langfuse.TransportError
	switch {
	case err == nil:
		return OutcomeSuccess, ""
	case errors.Is(err, ErrUnknownOperation):
		return OutcomeUnknown, "unknown_operation"
	case errors.Is(err, mode.ErrModeViolation):
		return OutcomeDenied, "mode_violation"
	case errors.Is(err, ErrInvalidArguments):
		return OutcomeInvalid, "invalid_arguments"
	case errors.Is(err, mode.ErrConfirmationRequired):
		return OutcomeUnconfirmed, "confirmation_required"
	case errors.As(err, &te):
		if te.StatusCode != 0 {
			return OutcomeFailed, fmt.Sprintf("upstream_%d", te.StatusCode)
		}
		return OutcomeFailed, "upstream_" + te.Kind
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeFailed, "timeout"
	case errors.Is(err, context.Canceled):
		return OutcomeFailed, "canceled"
	default:
		return OutcomeFailed, "internal"
	}
}

// message is the caller-visible text for err. Only errors built by this
// module are passed through verbatim; anything else is replaced by a generic
// message and logged server side.
func message(op string, err error) (string, bool) {
	var te *langfuse.TransportError
	var ae *ArgumentError
	switch {
	case errors.As(err, &ae):
		return ae.Error(), true
	case errors.As(err, &te):
		return te.Error(), true
	case errors.Is(err, ErrUnknownOperation),
		errors.Is(err, mode.ErrModeViolation),
		errors.Is(err, mode.ErrConfirmationRequired):
		return err.Error(), true
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("%s timed out", op), true
	case errors.Is(err, context.Canceled):
		return fmt.Sprintf("%s was canceled", op), true
	default:
		return fmt.Sprintf("%s failed due to an internal error", op), false
	}
}
