package sim

import (
	"errors"
	"maps"
	"math"
	"slices"
)

// Join admits a player whose id and spawn were assigned at the tick boundary.
type Join struct {
	ID    PlayerID
	Name  string
	Spawn Spawn
	Bot   bool
}

// StepInput is everything that crosses into the simulation for one tick.
type StepInput struct {
	Joins    []Join
	Commands map[PlayerID]Command
	Leaves   []PlayerID
}

// StepResult summarises what changed during one tick.
type StepResult struct {
	Tick             uint64
	Joined           []PlayerID
	Deaths           []Death
	Respawned        []PlayerID
	Removed          []PlayerID
	Consumed         []ItemID
	Spawned          []ItemID
	PlacementSkipped bool
}

// Kills counts collision deaths credited to another player.
func (r StepResult) Kills() int {
	n := 0
	for _, d := range r.Deaths {
		if d.Cause == CauseCollision && d.Killer != d.ID {
			n++
		}
	}
	return n
}

// Step advances the world by exactly one tick. Players are always visited in
// id order so a fixed input set yields the same outcome on every run. An
// InvariantError leaves the world unusable.
func Step(w *World, in StepInput) (StepResult, error) {
	if w.tick == math.MaxUint64 {
		return StepResult{}, invariantf(w.tick, "tick counter exhausted")
	}
	w.tick++
	res := StepResult{Tick: w.tick}
	cfg := w.cfg

	w.disconnect(in.Leaves, &res)

	live := w.LivePlayers()
	for _, p := range live {
		if cmd, ok := in.Commands[p.ID]; ok {
			p.Input = cmd
		} else if p.Bot {
			p.Input = w.steerBot(p)
		}
		p.Heading = normalizeAngle(p.Heading + p.Input.Turn.sign()*cfg.TurnDelta())
		w.move(p)
		if !p.Pos.IsFinite() {
			return res, invariantf(w.tick, "player %s position %v", p.ID, p.Pos)
		}
	}

	dead := make(map[PlayerID]Death)
	for _, p := range live {
		if !w.InBounds(p.Pos) {
			dead[p.ID] = Death{ID: p.ID, Cause: CauseOutOfBounds}
		}
	}
	w.collide(live, dead)

	for _, id := range slices.Sorted(maps.Keys(dead)) {
		w.players[id].Alive = false
		res.Deaths = append(res.Deaths, dead[id])
	}
	for _, d := range res.Deaths {
		if d.Cause != CauseCollision || d.Killer == d.ID {
			continue
		}
		if k, ok := w.players[d.Killer]; ok && k.Alive {
			k.Score += cfg.KillReward
		}
	}

	w.consumeItems(live, &res)
	w.resolveDeaths(in.Joins, &res)

	if err := w.admit(in.Joins, &res); err != nil {
		return res, err
	}

	if len(w.items) < cfg.ItemTarget {
		it, err := w.placeItem()
		switch {
		case errors.Is(err, ErrItemPlacementSkipped):
			res.PlacementSkipped = true
		case err != nil:
			return res, err
		default:
			res.Spawned = append(res.Spawned, it.ID)
		}
	}
	return res, nil
}

// move integrates one tick of motion and records the new head position.
func (w *World) move(p *Player) {
	cfg := w.cfg
	dt := cfg.TickSeconds()
	speed := cfg.Speed
	if p.Input.Boost && p.Boost > 0 {
		speed *= cfg.BoostMultiplier
		p.Boost = max(0, p.Boost-cfg.BoostDrain*dt)
	} else {
		p.Boost = min(1, p.Boost+cfg.BoostRegen*dt)
	}
	p.Pos = p.Pos.Add(Unit(p.Heading).Scale(speed * dt))
	p.Trail = append(p.Trail, TrailPoint{Pos: p.Pos, Tick: w.tick})
	if over := len(p.Trail) - p.Length; over > 0 {
		p.Trail = p.Trail[over:]
	}
}

func (w *World) disconnect(ids []PlayerID, res *StepResult) {
	for _, id := range ids {
		p, ok := w.players[id]
		if !ok {
			continue
		}
		if p.Alive {
			res.Deaths = append(res.Deaths, Death{ID: id, Cause: CauseDisconnected})
		}
		delete(w.players, id)
		res.Removed = append(res.Removed, id)
	}
}

func (w *World) consumeItems(live []*Player, res *StepResult) {
	if len(w.items) == 0 {
		return
	}
	psq := w.cfg.PickupRadius * w.cfg.PickupRadius
	items := w.Items()
	for _, p := range live {
		if !p.Alive {
			continue
		}
		for _, it := range items {
			if _, ok := w.items[it.ID]; !ok {
				continue
			}
			if p.Pos.DistSq(it.Pos) > psq {
				continue
			}
			delete(w.items, it.ID)
			p.Length += it.Value
			p.Score += it.Value
			res.Consumed = append(res.Consumed, it.ID)
		}
	}
}

// resolveDeaths clears every dead player from play. Depending on policy the
// player respawns at a fresh spawn point, waits (bots, under every policy),
// or leaves the world until its client rejoins. Respawns stay clear of the
// spawn points reserved by this tick's joins. A failed spawn is retried next
// tick.
func (w *World) resolveDeaths(joins []Join, res *StepResult) {
	cfg := w.cfg
	reserved := make([]Vec2, 0, len(joins))
	for _, j := range joins {
		reserved = append(reserved, j.Spawn.Pos)
	}
	for _, p := range w.Players() {
		if p.Alive {
			continue
		}
		p.Trail = p.Trail[:0]
		switch {
		case p.Bot:
			if p.RespawnAt == 0 {
				p.RespawnAt = w.tick + uint64(cfg.BotRespawnTicks)
			}
			if w.tick < p.RespawnAt {
				continue
			}
		case cfg.Respawn == RespawnManual:
			delete(w.players, p.ID)
			res.Removed = append(res.Removed, p.ID)
			continue
		}
		spawn, err := w.FindSpawn(reserved)
		if err != nil {
			continue
		}
		reserved = append(reserved, spawn.Pos)
		w.place(p, spawn)
		res.Respawned = append(res.Respawned, p.ID)
	}
}

func (w *World) admit(joins []Join, res *StepResult) error {
	for _, j := range joins {
		if j.ID == "" {
			return invariantf(w.tick, "join without player id")
		}
		if _, dup := w.players[j.ID]; dup {
			return invariantf(w.tick, "duplicate player id %s", j.ID)
		}
		p := &Player{ID: j.ID, Name: j.Name, Bot: j.Bot}
		w.place(p, j.Spawn)
		w.players[p.ID] = p
		res.Joined = append(res.Joined, p.ID)
	}
	return nil
}
