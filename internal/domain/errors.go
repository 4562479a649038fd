package domain

import (
	"errors"
	"fmt"
)

// ErrDocumentNotFound is returned by repositories when no document exists
// for the requested identifier.
var ErrDocumentNotFound = errors.New("document not found")

// ValidationFailedError reports that a generated document did not clear the
// minimum quality threshold. The offending result travels with the error so
// callers can surface the issues to the requester.
type ValidationFailedError struct {
	DocumentID string
	Result     ValidationResult
}

func (e *ValidationFailedError) Error() string {
	return fmt.Sprintf("document %s failed quality validation with score %.1f",
		e.DocumentID, e.Result.Score)
}

// IsValidationFailed reports whether err wraps a ValidationFailedError and
// returns it when so.
func IsValidationFailed(err error) (*ValidationFailedError, bool) {
	var vErr *ValidationFailedError
	if errors.As(err, &vErr) {
		return vErr, true
	}
	return nil, false
}
