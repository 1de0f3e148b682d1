package sim

import "math"

const (
	botLookAhead    = 0.75 // seconds of travel checked ahead
	botSideAngle    = 0.6
	botSeekRange    = 40.0
	botWanderChance = 0.04
)

// steerBot picks a command for a server-owned player: dodge walls and
// trails first, then chase the nearest item, otherwise wander.
func (w *World) steerBot(p *Player) Command {
	cfg := w.cfg
	reach := cfg.Speed * botLookAhead

	blocked := func(offset float64) bool {
		ahead := p.Pos.Add(Unit(p.Heading + offset).Scale(reach))
		return w.botDanger(p, ahead)
	}

	if blocked(0) {
		left, right := blocked(-botSideAngle), blocked(botSideAngle)
		switch {
		case !left && right:
			return Command{Turn: TurnLeft}
		case left && !right:
			return Command{Turn: TurnRight}
		}
		center := Vec2{cfg.ArenaWidth / 2, cfg.ArenaHeight / 2}
		return Command{Turn: turnToward(p.Heading, p.Pos, center, 0)}
	}

	if it := w.nearestItem(p.Pos, botSeekRange); it != nil {
		return Command{Turn: turnToward(p.Heading, p.Pos, it.Pos, cfg.TurnDelta())}
	}

	if w.rng.Float64() < botWanderChance {
		return Command{Turn: Turn(1 + w.rng.Intn(2))}
	}
	if p.Input.Turn != TurnStraight && w.rng.Float64() < 0.5 {
		return p.Input
	}
	return Command{}
}

// botDanger reports whether ahead is outside the arena or close to a trail.
// The bot's own newest points are ignored, they always trail right behind.
func (w *World) botDanger(self *Player, ahead Vec2) bool {
	cfg := w.cfg
	margin := 2 * cfg.CollisionRadius
	if ahead.X < margin || ahead.X > cfg.ArenaWidth-margin || ahead.Y < margin || ahead.Y > cfg.ArenaHeight-margin {
		return true
	}
	dsq := 4 * margin * margin
	for _, o := range w.players {
		if !o.Alive {
			continue
		}
		limit := len(o.Trail)
		if o == self {
			limit -= 2 * cfg.GraceWindow
		}
		for i := 0; i < limit; i++ {
			if o.Trail[i].Pos.DistSq(ahead) < dsq {
				return true
			}
		}
	}
	return false
}

func (w *World) nearestItem(pos Vec2, within float64) *Item {
	var best *Item
	bestSq := within * within
	for _, it := range w.Items() {
		if d := it.Pos.DistSq(pos); d < bestSq {
			best, bestSq = it, d
		}
	}
	return best
}

// turnToward steers from heading toward target, going straight once the
// remaining angle is within tolerance.
func turnToward(heading float64, from, target Vec2, tolerance float64) Turn {
	d := angleDiff(heading, math.Atan2(target.Y-from.Y, target.X-from.X))
	switch {
	case math.Abs(d) <= tolerance:
		return TurnStraight
	case d < 0:
		return TurnLeft
	default:
		return TurnRight
	}
}
