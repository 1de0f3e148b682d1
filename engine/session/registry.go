// Package session tracks connected clients, binds each to a player id and
// fans encoded messages out to them. It never touches world state.
package session

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"hovertrail.io/engine/sim"
)

var (
	// ErrSessionSendFailure means a session's outbound channel was full or
	// closed. The session is dropped; other sessions are unaffected.
	ErrSessionSendFailure = errors.New("session send failure")
	ErrUnknownSession     = errors.New("unknown session")
)

// Conn is the outbound half of a client connection. Send must not block:
// it either queues msg or reports why it could not.
type Conn interface {
	Send(msg []byte) error
	Close() error
}

// SpawnFunc finds a free spawn point for the player being registered.
type SpawnFunc func() (sim.Spawn, error)

const idAttempts = 4

type Registry struct {
	logger *slog.Logger

	mu       sync.RWMutex
	ids      io.Reader
	sessions map[sim.PlayerID]Conn
	removals []sim.PlayerID
	pending  map[sim.PlayerID]struct{}
}

// NewRegistry returns an empty registry drawing player ids from ids. A
// seeded reader makes the id sequence reproducible.
func NewRegistry(ids io.Reader, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:   logger,
		ids:      ids,
		sessions: make(map[sim.PlayerID]Conn),
		pending:  make(map[sim.PlayerID]struct{}),
	}
}

// Register assigns a fresh player id and a spawn point to conn. Nothing is
// bound when no spawn point is available.
func (r *Registry) Register(conn Conn, spawn SpawnFunc) (sim.PlayerID, sim.Spawn, error) {
	s, err := spawn()
	if err != nil {
		return "", sim.Spawn{}, fmt.Errorf("register: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for range idAttempts {
		raw, err := sim.NewID(r.ids)
		if err != nil {
			return "", sim.Spawn{}, fmt.Errorf("register: player id: %w", err)
		}
		id := sim.PlayerID(raw)
		if _, taken := r.sessions[id]; taken {
			continue
		}
		if _, taken := r.pending[id]; taken {
			continue
		}
		r.sessions[id] = conn
		r.logger.Debug("session registered", "player", id, "sessions", len(r.sessions))
		return id, s, nil
	}
	return "", sim.Spawn{}, errors.New("register: could not draw a unique player id")
}

// Unregister drops the binding for id and schedules the player's removal
// at the next tick boundary.
func (r *Registry) Unregister(id sim.PlayerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	r.dropLocked(id)
	return nil
}

// Broadcast offers msg to every session and returns how many accepted it.
// A failing session is logged, closed and scheduled for removal.
func (r *Registry) Broadcast(msg []byte) int {
	r.mu.RLock()
	ids := slices.Sorted(maps.Keys(r.sessions))
	conns := make([]Conn, len(ids))
	for i, id := range ids {
		conns[i] = r.sessions[id]
	}
	r.mu.RUnlock()

	delivered := 0
	var failed []sim.PlayerID
	for i, c := range conns {
		if err := c.Send(msg); err != nil {
			r.logger.Warn("send failed", "player", ids[i], "err", err)
			failed = append(failed, ids[i])
			continue
		}
		delivered++
	}
	if len(failed) > 0 {
		r.drop(failed)
	}
	return delivered
}

// Send delivers msg to one session.
func (r *Registry) Send(id sim.PlayerID, msg []byte) error {
	r.mu.RLock()
	c, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	if err := c.Send(msg); err != nil {
		r.logger.Warn("send failed", "player", id, "err", err)
		r.drop([]sim.PlayerID{id})
		return fmt.Errorf("%w: %s: %v", ErrSessionSendFailure, id, err)
	}
	return nil
}

func (r *Registry) drop(ids []sim.PlayerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		c, ok := r.sessions[id]
		if !ok {
			continue
		}
		r.dropLocked(id)
		_ = c.Close()
	}
}

func (r *Registry) dropLocked(id sim.PlayerID) {
	delete(r.sessions, id)
	if _, ok := r.pending[id]; ok {
		return
	}
	r.pending[id] = struct{}{}
	r.removals = append(r.removals, id)
}

// CloseAll closes and unbinds every session, scheduling their removal.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := make([]Conn, 0, len(r.sessions))
	for id, c := range r.sessions {
		conns = append(conns, c)
		r.dropLocked(id)
	}
	r.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
}

// DrainRemovals returns the players whose sessions ended since the last
// call, in the order they ended.
func (r *Registry) DrainRemovals() []sim.PlayerID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.removals
	r.removals = nil
	clear(r.pending)
	return out
}

// Connected reports whether id has a live session.
func (r *Registry) Connected(id sim.PlayerID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[id]
	return ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// IDs returns the connected player ids in order.
func (r *Registry) IDs() []sim.PlayerID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.sessions))
}
