package sim

// bounds is an axis-aligned box around a trail, grown by the collision
// radius, used to skip trails that cannot be hit.
type bounds struct {
	minX, minY, maxX, maxY float64
}

func trailBounds(trail []TrailPoint, pad float64) bounds {
	if len(trail) == 0 {
		return bounds{minX: 1, maxX: -1}
	}
	b := bounds{trail[0].Pos.X, trail[0].Pos.Y, trail[0].Pos.X, trail[0].Pos.Y}
	for _, tp := range trail[1:] {
		b.minX = min(b.minX, tp.Pos.X)
		b.minY = min(b.minY, tp.Pos.Y)
		b.maxX = max(b.maxX, tp.Pos.X)
		b.maxY = max(b.maxY, tp.Pos.Y)
	}
	b.minX -= pad
	b.minY -= pad
	b.maxX += pad
	b.maxY += pad
	return b
}

func (b bounds) contains(p Vec2) bool {
	return p.X >= b.minX && p.X <= b.maxX && p.Y >= b.minY && p.Y <= b.maxY
}

// trailHits reports whether head lies within sqrt(rsq) of the polyline
// formed by the first limit points of trail.
func trailHits(trail []TrailPoint, limit int, head Vec2, rsq float64) bool {
	limit = min(limit, len(trail))
	switch {
	case limit <= 0:
		return false
	case limit == 1:
		return head.DistSq(trail[0].Pos) <= rsq
	}
	for i := 0; i+1 < limit; i++ {
		if segmentDistSq(head, trail[i].Pos, trail[i+1].Pos) <= rsq {
			return true
		}
	}
	return false
}

// collide tests every live head not already dead this tick against the
// trails of all players that started the tick alive. Hits are recorded after
// the scan so two heads meeting in the same tick both die.
func (w *World) collide(live []*Player, dead map[PlayerID]Death) {
	cfg := w.cfg
	rsq := cfg.CollisionRadius * cfg.CollisionRadius

	boxes := make([]bounds, len(live))
	for i, p := range live {
		boxes[i] = trailBounds(p.Trail, cfg.CollisionRadius)
	}

	var hits []Death
	for _, p := range live {
		if _, gone := dead[p.ID]; gone {
			continue
		}
		for j, o := range live {
			self := o.ID == p.ID
			if self && !cfg.SelfCollision {
				continue
			}
			if !boxes[j].contains(p.Pos) {
				continue
			}
			limit := len(o.Trail)
			if self {
				limit -= cfg.GraceWindow
			}
			if trailHits(o.Trail, limit, p.Pos, rsq) {
				hits = append(hits, Death{ID: p.ID, Cause: CauseCollision, Killer: o.ID})
				break
			}
		}
	}
	for _, d := range hits {
		dead[d.ID] = d
	}
}
