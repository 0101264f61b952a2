package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrBodyTooLarge is returned when a response exceeds the configured size cap.
var ErrBodyTooLarge = errors.New("response body exceeds size limit")

// FetchError describes a failed retrieval: transport error, timeout,
// non-success status or an oversized body.
type FetchError struct {
	URL string
	// StatusCode is zero when no response was received.
	StatusCode int
	// RetryAt is set when the host asked to be left alone until then.
	RetryAt time.Time
	Err     error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Timeout reports whether the fetch failed because a deadline expired.
func (e *FetchError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}
