package capture

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Kind int

const (
	KindInvalidURL Kind = iota + 1
	KindFilesystem
	KindLaunch
	KindNavigationTimeout
	KindNavigation
	KindRender
)

func (k Kind) String() string {
	switch k {
	case KindInvalidURL:
		return "invalid url"
	case KindFilesystem:
		return "filesystem error"
	case KindLaunch:
		return "launch error"
	case KindNavigationTimeout:
		return "navigation timeout"
	case KindNavigation:
		return "navigation error"
	case KindRender:
		return "render error"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is returned by Capture for every failure. URL is the normalized
// address once normalization succeeded, the raw input before that.
type Error struct {
	Kind    Kind
	URL     string
	Timeout time.Duration
	Err     error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindNavigationTimeout:
		return fmt.Sprintf("%s: %s did not finish loading within %dms", e.Kind, e.URL, e.Timeout.Milliseconds())
	case KindInvalidURL:
		// the cause already names the input
		return e.Err.Error()
	}
	return fmt.Sprintf("%s for %s: %v", e.Kind, e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a capture error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

// timeoutError marks a driver error as a navigation timeout.
type timeoutError struct {
	err error
}

func (e *timeoutError) Error() string { return e.err.Error() }
func (e *timeoutError) Unwrap() error { return e.err }
func (e *timeoutError) Timeout() bool { return true }

func isTimeout(err error) bool {
	type timeout interface{ Timeout() bool }
	var terr timeout
	if errors.As(err, &terr) && terr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
