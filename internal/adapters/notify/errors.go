package notify

import (
	"errors"
	"fmt"
)

var (
	ErrBadArgs       = errors.New("invalid send job arguments")
	ErrNotConfigured = errors.New("sender not configured")
)

// APIError is a non-2xx answer from a messaging API.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("messaging api returned status %d", e.Status)
	}
	return fmt.Sprintf("messaging api returned status %d: %s (code %d)", e.Status, e.Message, e.Code)
}
