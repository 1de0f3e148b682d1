package sim

import (
	"cmp"
	"maps"
	"math/rand"
	"slices"
)

type (
	PlayerID string
	ItemID   string
)

// DeathCause explains why a player left the collidable set.
type DeathCause uint8

const (
	CauseOutOfBounds DeathCause = iota + 1
	CauseCollision
	CauseDisconnected
)

func (c DeathCause) String() string {
	switch c {
	case CauseOutOfBounds:
		return "out_of_bounds"
	case CauseCollision:
		return "collision"
	case CauseDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// TrailPoint is one recorded head position and the tick it was recorded at.
type TrailPoint struct {
	Pos  Vec2
	Tick uint64
}

type Player struct {
	ID      PlayerID
	Name    string
	Pos     Vec2
	Heading float64
	Alive   bool
	Bot     bool

	// Trail is oldest-first. New points are only ever appended at the head;
	// once it exceeds Length the oldest points retire.
	Trail []TrailPoint

	Length int // trail points retained
	Score  int
	Boost  float64 // meter in [0,1]

	// Input is the last applied command. It persists until replaced.
	Input Command

	SpawnTick uint64
	RespawnAt uint64 // dead bots only
}

// Head returns the newest trail point.
func (p *Player) Head() TrailPoint {
	return p.Trail[len(p.Trail)-1]
}

type Item struct {
	ID    ItemID
	Pos   Vec2
	Value int
}

// Death records one player leaving play during a step.
type Death struct {
	ID     PlayerID
	Cause  DeathCause
	Killer PlayerID // trail owner responsible for a collision, empty otherwise
}

// Spawn is a free position and initial heading chosen for a new player.
type Spawn struct {
	Pos     Vec2
	Heading float64
}

// ---------------------------------------------------------------------------
// World
// ---------------------------------------------------------------------------

// World is the authoritative game state. It has exactly one owner: every
// mutation goes through Step, and readers run on the owner's goroutine.
type World struct {
	cfg     Config
	tick    uint64
	players map[PlayerID]*Player
	items   map[ItemID]*Item
	rng     *rand.Rand
}

func NewWorld(cfg Config) *World {
	return &World{
		cfg:     cfg,
		players: make(map[PlayerID]*Player),
		items:   make(map[ItemID]*Item),
		rng:     NewRNG(cfg.Seed),
	}
}

func (w *World) Config() Config { return w.cfg }

func (w *World) Tick() uint64 { return w.tick }

// Player looks up a player entry, alive or awaiting respawn. The returned
// value must be treated as read-only.
func (w *World) Player(id PlayerID) (*Player, bool) {
	p, ok := w.players[id]
	return p, ok
}

// Players returns every player entry ordered by id.
func (w *World) Players() []*Player {
	out := make([]*Player, 0, len(w.players))
	for _, id := range w.playerIDs() {
		out = append(out, w.players[id])
	}
	return out
}

// LivePlayers returns the players currently in play ordered by id.
func (w *World) LivePlayers() []*Player {
	out := make([]*Player, 0, len(w.players))
	for _, id := range w.playerIDs() {
		if p := w.players[id]; p.Alive {
			out = append(out, p)
		}
	}
	return out
}

// Items returns active items ordered by id.
func (w *World) Items() []*Item {
	out := slices.Collect(maps.Values(w.items))
	slices.SortFunc(out, func(a, b *Item) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (w *World) NumItems() int { return len(w.items) }

// InBounds reports whether p lies inside the arena rectangle.
func (w *World) InBounds(p Vec2) bool {
	return p.X >= 0 && p.X <= w.cfg.ArenaWidth && p.Y >= 0 && p.Y <= w.cfg.ArenaHeight
}

// MaxTrailLen is the longest live trail, used to pick a snapshot encoding.
func (w *World) MaxTrailLen() int {
	n := 0
	for _, p := range w.players {
		if p.Alive && len(p.Trail) > n {
			n = len(p.Trail)
		}
	}
	return n
}

func (w *World) playerIDs() []PlayerID {
	return slices.Sorted(maps.Keys(w.players))
}

// nearTrail reports whether pos is within dist of any live trail point.
func (w *World) nearTrail(pos Vec2, dist float64) bool {
	dsq := dist * dist
	for _, p := range w.players {
		if !p.Alive {
			continue
		}
		for _, tp := range p.Trail {
			if tp.Pos.DistSq(pos) < dsq {
				return true
			}
		}
	}
	return false
}

func (w *World) nearItem(pos Vec2, dist float64) bool {
	dsq := dist * dist
	for _, it := range w.items {
		if it.Pos.DistSq(pos) < dsq {
			return true
		}
	}
	return false
}

// place puts a freshly spawned player into play.
func (w *World) place(p *Player, s Spawn) {
	p.Pos = s.Pos
	p.Heading = normalizeAngle(s.Heading)
	p.Alive = true
	p.Trail = append(p.Trail[:0], TrailPoint{Pos: s.Pos, Tick: w.tick})
	p.Length = w.cfg.InitialLength
	p.Score = 0
	p.Boost = 1
	p.Input = Command{}
	p.SpawnTick = w.tick
	p.RespawnAt = 0
}
