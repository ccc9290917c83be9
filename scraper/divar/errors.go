package divar

import (
	"errors"
	"fmt"
)

// ErrNotFound means the listing is gone upstream (removed or expired).
// It is never retried; the pipeline records the token as skipped.
var ErrNotFound = errors.New("listing not found")

// ParseError means the page or API payload was fetched but did not yield a
// required field — usually the upstream markup changed.
type ParseError struct {
	Token string
	Field string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse failed for %q: missing field %s", e.Token, e.Field)
}

// FetchError means retrieval kept failing transiently until the retry budget
// ran out.
type FetchError struct {
	Token string
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch failed for %q: %v", e.Token, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
