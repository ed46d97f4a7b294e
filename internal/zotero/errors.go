package zotero

import (
	"errors"
	"fmt"
)

// Common errors returned by the Zotero client.
var (
	// ErrNotFound indicates the item was not found.
	ErrNotFound = errors.New("not found in Zotero")

	// ErrAuth indicates a missing or invalid API key.
	ErrAuth = errors.New("Zotero authentication error")

	// ErrRateLimited indicates the server asked us to back off.
	ErrRateLimited = errors.New("Zotero rate limit exceeded")

	// ErrVersionConflict indicates the item changed since the version we sent.
	ErrVersionConflict = errors.New("Zotero item modified since specified version")

	// ErrNetwork indicates a transient transport failure (timeout, reset).
	ErrNetwork = errors.New("network error communicating with Zotero")

	// ErrInvalidResponse indicates an unexpected API response.
	ErrInvalidResponse = errors.New("invalid response from Zotero")
)

// APIError represents an error status from the Zotero Web API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Zotero API error (status %d): %s", e.StatusCode, e.Message)
}

// IsTransient reports whether a retry with backoff may succeed.
func IsTransient(err error) bool {
	if errors.Is(err, ErrNetwork) || errors.Is(err, ErrRateLimited) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	return false
}

// IsVersionConflict reports whether err is an optimistic-concurrency rejection.
func IsVersionConflict(err error) bool {
	if errors.Is(err, ErrVersionConflict) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 412
	}
	return false
}
