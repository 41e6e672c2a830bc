package media

import (
	"errors"
	"fmt"
)

var (
	// ErrProviderUnavailable is returned when the session provider cannot
	// be started. It is fatal to the engine and never retried.
	ErrProviderUnavailable = errors.New("session provider unavailable")

	// ErrStaleHandle reports that a session's control handle is no longer
	// valid. The engine treats it as an implicit close.
	ErrStaleHandle = errors.New("stale session handle")

	// ErrIdentifierCollision marks a close notification whose id is still
	// independently enumerable. It is only ever logged.
	ErrIdentifierCollision = errors.New("session identifier collision")

	// ErrExtraction matches every *ExtractionError via errors.Is.
	ErrExtraction = errors.New("art extraction failed")
)

// ExtractionError wraps a decode or I/O failure while deriving an art
// palette from a thumbnail.
type ExtractionError struct {
	Op  string
	Err error
}

func (e *ExtractionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("extract %s: %v", e.Op, ErrExtraction)
	}
	return fmt.Sprintf("extract %s: %v", e.Op, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

func (e *ExtractionError) Is(target error) bool { return target == ErrExtraction }
