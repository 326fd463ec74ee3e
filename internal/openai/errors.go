package openai

import (
	"errors"
	"fmt"
)

// ErrSchemaMismatch marks a gateway response whose structure does not match
// the expected contract. Distinct from StatusError: this is a contract
// violation, not a transient upstream failure, and is never retried.
var ErrSchemaMismatch = errors.New("openai: response schema mismatch")

// StatusError is a non-success HTTP response from the gateway.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("openai: upstream error: %s", e.Status)
}

// IsRetryable reports whether the status is a transient class (429 or 5xx).
func (e *StatusError) IsRetryable() bool {
	return e.Code == 429 || e.Code >= 500
}
