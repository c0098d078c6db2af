package notify

import (
	"errors"
	"strings"
)

// ValidationError aggregates every problem found in a malformed preference,
// event, or request. Surfaced synchronously at configuration/ingestion
// time, never silently defaulted away.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

// NewValidationError wraps a non-empty problem list, or returns nil.
func NewValidationError(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: problems}
}

// Caller errors for the manual/admin send entry point.
var (
	ErrUnauthenticated = errors.New("caller is not authenticated")
	ErrInvalidTarget   = errors.New("unrecognized target type")
)
