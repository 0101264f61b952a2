// Package ocr coordinates text recognition over downloaded product images.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnavailable is returned when the recognition capability is not installed
// or not configured.
var ErrUnavailable = errors.New("text recognition unavailable")

// ExtractionError reports a recognition failure for one image.
type ExtractionError struct {
	Path string
	// ExitCode is -1 when the process did not exit normally.
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExtractionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "recognize %s", e.Path)
	if e.ExitCode > 0 {
		fmt.Fprintf(&b, ": exit %d", e.ExitCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		fmt.Fprintf(&b, ": %s", s)
	}
	return b.String()
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Recognizer turns an image file into text. Implementations must honour ctx.
type Recognizer interface {
	Recognize(ctx context.Context, path string) (string, error)
}

// RecognizerFunc adapts a function to Recognizer.
type RecognizerFunc func(ctx context.Context, path string) (string, error)

func (f RecognizerFunc) Recognize(ctx context.Context, path string) (string, error) {
	return f(ctx, path)
}

// Unavailable is the Recognizer used when none is configured.
var Unavailable Recognizer = RecognizerFunc(func(context.Context, string) (string, error) {
	return "", ErrUnavailable
})
