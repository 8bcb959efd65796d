// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// maxBodyExcerpt bounds the response body kept in an APIError.
const maxBodyExcerpt = 512

var (
	// ErrAlreadySeen is returned by the store when an insert wrote no row.
	ErrAlreadySeen = errors.New("campaign already seen")

	// ErrCursorStalled means the API claimed another page but did not advance the cursor.
	ErrCursorStalled = errors.New("pagination cursor did not advance")

	// ErrStoreUnavailable is returned for store lookups while the poll loop is not running.
	ErrStoreUnavailable = errors.New("campaign store is not open")

	// ErrStartupFatal marks errors that must stop the poll loop for good.
	ErrStartupFatal = errors.New("startup failure")
)

// APIError is a non-2xx response or GraphQL-level failure from the campaign API.
type APIError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: api error: %s", e.Operation, e.Body)
	}
	return fmt.Sprintf("%s: api returned status %d: %s", e.Operation, e.StatusCode, e.Body)
}

// NewAPIError builds an APIError, truncating long bodies on a rune boundary.
func NewAPIError(operation string, status int, body string) error {
	if len(body) > maxBodyExcerpt {
		cut := maxBodyExcerpt
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut] + "..."
	}
	return &APIError{Operation: operation, StatusCode: status, Body: body}
}

// StartupFatal wraps err so that errors.Is(err, ErrStartupFatal) holds.
func StartupFatal(err error) error {
	return fmt.Errorf("%w: %w", ErrStartupFatal, err)
}
