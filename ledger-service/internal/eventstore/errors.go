package eventstore

import (
	"errors"
	"fmt"
)

var (
	// ErrConcurrency matches every *ConcurrencyError via errors.Is.
	ErrConcurrency = errors.New("concurrency conflict")
	// ErrUnknownEventType means a record names a type outside the registry.
	ErrUnknownEventType = errors.New("unknown event type")
)

// ConcurrencyError reports an append whose expected version was stale.
type ConcurrencyError struct {
	StreamID        string
	ExpectedVersion int64
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("concurrency conflict on stream %s: expected version %d is stale", e.StreamID, e.ExpectedVersion)
}

func (e *ConcurrencyError) Is(target error) bool { return target == ErrConcurrency }
