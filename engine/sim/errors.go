package sim

import (
	"errors"
	"fmt"
)

var (
	// ErrSpawnUnavailable means no free spawn point was found within the
	// configured number of attempts.
	ErrSpawnUnavailable = errors.New("spawn unavailable")
	// ErrInputRejected marks a malformed or unrecognised steering command.
	ErrInputRejected = errors.New("input rejected")
	// ErrItemPlacementSkipped means the spawner found no free position this
	// tick. It is retried on the next tick.
	ErrItemPlacementSkipped = errors.New("item placement skipped")
	// ErrInvariantViolation is the root of every InvariantError.
	ErrInvariantViolation = errors.New("simulation invariant violation")
)

// InvariantError reports corrupted authoritative state. The world cannot be
// stepped again after one is returned.
type InvariantError struct {
	Tick   uint64
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("tick %d: %s: %s", e.Tick, ErrInvariantViolation, e.Reason)
}

func (e *InvariantError) Unwrap() error { return ErrInvariantViolation }

func invariantf(tick uint64, format string, args ...any) error {
	return &InvariantError{Tick: tick, Reason: fmt.Sprintf(format, args...)}
}
