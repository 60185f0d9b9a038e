package fetcher

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedService = errors.New("service not supported")
	ErrChannelNotFound    = errors.New("channel not found")
)

// FetchError is a failure talking to a remote source.
type FetchError struct {
	URL       string
	Attempts  int
	Permanent bool
	Err       error
}

func (e *FetchError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("fetch %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
