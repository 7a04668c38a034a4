package market

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrRateLimited marks an HTTP 429 from the provider.
	ErrRateLimited = errors.New("market: rate limited")
	// ErrMalformedResponse marks a response whose shape did not match the schema.
	ErrMalformedResponse = errors.New("market: malformed response")
)

// StatusError reports a non-success HTTP status.
type StatusError struct {
	Provider   string
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s http status %d: %s", e.Provider, e.Endpoint, e.StatusCode, e.Body)
}

// Unwrap lets errors.Is(err, ErrRateLimited) match 429 responses.
func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	return nil
}

// IsRateLimited reports whether err was caused by a 429.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
