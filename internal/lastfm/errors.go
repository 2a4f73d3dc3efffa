package lastfm

import "fmt"

// TransientError marks a page-scoped failure the caller may retry or skip:
// transport errors, timeouts, and 5xx/429 responses that outlived the retry
// budget.
type TransientError struct {
	Page int
	Err  error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient fetch error on page %d: %v", e.Page, e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// FatalError marks a malformed or unexpected response. When it occurs on the
// first page of a walk the caller cannot learn the pagination extent and must
// abort the sync.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return "fatal fetch error: " + e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }
