package domain

import (
	"errors"
	"fmt"
)

// ErrMemberNotFound is returned by member repositories when no record matches.
var ErrMemberNotFound = errors.New("member not found")

// ErrProviderUnavailable marks a payment provider call that never got an answer.
var ErrProviderUnavailable = errors.New("payment provider unavailable")

// ProviderAPIError is an error payload returned by the payment provider.
type ProviderAPIError struct {
	Status   int
	Code     string
	Detail   string
	Category string
}

func (e *ProviderAPIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("provider error %d %s: %s", e.Status, e.Code, e.Detail)
	}
	return fmt.Sprintf("provider error %d %s", e.Status, e.Code)
}
