package sim

import (
	"fmt"
	"strings"
	"sync"
)

// Turn is a steering command.
type Turn uint8

const (
	TurnStraight Turn = iota
	TurnLeft
	TurnRight
)

func (t Turn) String() string {
	switch t {
	case TurnStraight:
		return "straight"
	case TurnLeft:
		return "left"
	case TurnRight:
		return "right"
	default:
		return fmt.Sprintf("Turn(%d)", uint8(t))
	}
}

func (t Turn) Valid() bool { return t <= TurnRight }

// sign maps left to -1 and right to +1.
func (t Turn) sign() float64 {
	switch t {
	case TurnLeft:
		return -1
	case TurnRight:
		return 1
	}
	return 0
}

// ParseTurn accepts the wire spellings of a steering command.
func ParseTurn(s string) (Turn, error) {
	switch strings.ToLower(s) {
	case "straight", "":
		return TurnStraight, nil
	case "left":
		return TurnLeft, nil
	case "right":
		return TurnRight, nil
	}
	return 0, fmt.Errorf("%w: unknown turn %q", ErrInputRejected, s)
}

type Command struct {
	Turn  Turn
	Boost bool
}

// ---------------------------------------------------------------------------
// Input queue
// ---------------------------------------------------------------------------

// InputQueue holds the latest pending command per player. Any number of
// connection goroutines may Submit; the game loop is the single consumer.
type InputQueue struct {
	mu      sync.Mutex
	pending map[PlayerID]Command
}

func NewInputQueue() *InputQueue {
	return &InputQueue{pending: make(map[PlayerID]Command)}
}

// Submit overwrites the player's pending command. A burst between two ticks
// only ever affects the next tick once.
func (q *InputQueue) Submit(id PlayerID, cmd Command) error {
	if !cmd.Turn.Valid() {
		return fmt.Errorf("%w: turn %d", ErrInputRejected, cmd.Turn)
	}
	if id == "" {
		return fmt.Errorf("%w: empty player id", ErrInputRejected)
	}
	q.mu.Lock()
	q.pending[id] = cmd
	q.mu.Unlock()
	return nil
}

// Drain returns the pending commands and clears them. Players absent from
// the result keep steering with their last applied command.
func (q *InputQueue) Drain() map[PlayerID]Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	out := q.pending
	q.pending = make(map[PlayerID]Command, len(out))
	return out
}

// Forget drops a pending command for a player that left.
func (q *InputQueue) Forget(id PlayerID) {
	q.mu.Lock()
	delete(q.pending, id)
	q.mu.Unlock()
}

func (q *InputQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
