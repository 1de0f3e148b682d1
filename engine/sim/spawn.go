package sim

import "math"

// FindSpawn picks a free position for a new or respawning player. A random
// candidate is jittered until it clears every live trail and every reserved
// position, up to SpawnAttempts tries.
func (w *World) FindSpawn(reserved []Vec2) (Spawn, error) {
	c := w.cfg
	minX, maxX := spawnRange(c.ArenaWidth, c.SpawnMargin)
	minY, maxY := spawnRange(c.ArenaHeight, c.SpawnMargin)

	var pos Vec2
	for attempt := 0; attempt < c.SpawnAttempts; attempt++ {
		if attempt%8 == 0 {
			pos = Vec2{randomRange(w.rng, minX, maxX), randomRange(w.rng, minY, maxY)}
		} else {
			pos = Vec2{
				X: clampF(pos.X+randomRange(w.rng, -c.SpawnJitter, c.SpawnJitter), minX, maxX),
				Y: clampF(pos.Y+randomRange(w.rng, -c.SpawnJitter, c.SpawnJitter), minY, maxY),
			}
		}
		if !w.spawnClear(pos, reserved) {
			continue
		}
		// Face roughly toward the centre so a new player is not steered
		// straight into the nearest wall.
		center := Vec2{c.ArenaWidth / 2, c.ArenaHeight / 2}
		heading := math.Atan2(center.Y-pos.Y, center.X-pos.X) + randomRange(w.rng, -math.Pi/4, math.Pi/4)
		return Spawn{Pos: pos, Heading: normalizeAngle(heading)}, nil
	}
	return Spawn{}, ErrSpawnUnavailable
}

func (w *World) spawnClear(pos Vec2, reserved []Vec2) bool {
	if !w.InBounds(pos) {
		return false
	}
	clearance := w.cfg.SpawnClearance
	for _, r := range reserved {
		if r.DistSq(pos) < clearance*clearance {
			return false
		}
	}
	return !w.nearTrail(pos, clearance)
}

func spawnRange(size, margin float64) (float64, float64) {
	if 2*margin >= size {
		return size / 2, size / 2
	}
	return margin, size - margin
}

// placeItem adds one item at a position clear of trails and other items.
func (w *World) placeItem() (*Item, error) {
	c := w.cfg
	for attempt := 0; attempt < c.PlacementAttempts; attempt++ {
		pos := Vec2{
			X: randomRange(w.rng, c.ItemClearance, c.ArenaWidth-c.ItemClearance),
			Y: randomRange(w.rng, c.ItemClearance, c.ArenaHeight-c.ItemClearance),
		}
		if w.nearTrail(pos, c.ItemClearance) || w.nearItem(pos, c.ItemClearance) {
			continue
		}
		id, err := NewID(w.rng)
		if err != nil {
			return nil, err
		}
		it := &Item{ID: ItemID(id), Pos: pos, Value: c.ItemGrowth}
		w.items[it.ID] = it
		return it, nil
	}
	return nil, ErrItemPlacementSkipped
}
