package faults

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers used to classify failures across the pipeline. Callers
// combine them with context via Wrap and classify with errors.Is.
var (
	// ErrValidation marks an invalid request (unknown or incompatible
	// format pair). Never retried; surfaced directly to the caller.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a missing job, format, or artifact.
	ErrNotFound = errors.New("not found")
	// ErrTransient marks infrastructure that is temporarily unavailable
	// (store or queue). The queue's backoff policy retries these.
	ErrTransient = errors.New("transient failure")
	// ErrConversion marks a converter rejecting its input or crashing.
	// Retried up to the attempt cap, then terminal.
	ErrConversion = errors.New("conversion error")
	// ErrTimeout marks an expired lease. Causes redelivery rather than a
	// user-visible failure until the attempt cap is exhausted.
	ErrTimeout = errors.New("timeout")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether the queue should redeliver after this failure.
// Validation and not-found failures are permanent; everything else gets
// another attempt until the cap is reached.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound):
		return false
	default:
		return true
	}
}

// Message strips the sentinel prefix from a wrapped error, leaving the
// user-visible detail.
func Message(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, marker := range []error{ErrValidation, ErrNotFound, ErrTransient, ErrConversion, ErrTimeout} {
		prefix := marker.Error() + ": "
		if strings.HasPrefix(msg, prefix) {
			return strings.TrimPrefix(msg, prefix)
		}
	}
	return msg
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "failure"
	}
	return strings.Join(parts, ": ")
}
