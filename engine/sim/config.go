package sim

import (
	"errors"
	"fmt"
	"strings"
)

// RespawnPolicy selects what happens to a player after it dies.
type RespawnPolicy uint8

const (
	// RespawnImmediate puts the player back at a fresh spawn point during the
	// same step that resolved its death.
	RespawnImmediate RespawnPolicy = iota
	// RespawnManual removes the player from the world until the client asks
	// to rejoin.
	RespawnManual
)

func (p RespawnPolicy) String() string {
	switch p {
	case RespawnImmediate:
		return "immediate"
	case RespawnManual:
		return "manual"
	default:
		return fmt.Sprintf("RespawnPolicy(%d)", uint8(p))
	}
}

func (p RespawnPolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *RespawnPolicy) UnmarshalText(b []byte) error {
	v, err := ParseRespawnPolicy(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// ParseRespawnPolicy accepts "immediate" or "manual".
func ParseRespawnPolicy(s string) (RespawnPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "immediate":
		return RespawnImmediate, nil
	case "manual":
		return RespawnManual, nil
	}
	return 0, fmt.Errorf("unknown respawn policy %q", s)
}

// ---------------------------------------------------------------------------
// Game configuration (tuning consumed by the simulation)
// ---------------------------------------------------------------------------

type Config struct {
	TickRate    int     `json:"tickRate"`
	ArenaWidth  float64 `json:"arenaWidth"`
	ArenaHeight float64 `json:"arenaHeight"`

	Speed           float64 `json:"speed"`    // units per second
	TurnRate        float64 `json:"turnRate"` // radians per second
	BoostMultiplier float64 `json:"boostMultiplier"`
	BoostDrain      float64 `json:"boostDrain"` // meter per second
	BoostRegen      float64 `json:"boostRegen"` // meter per second

	GraceWindow     int     `json:"graceWindow"` // newest own trail points ignored for self-collision
	CollisionRadius float64 `json:"collisionRadius"`
	SelfCollision   bool    `json:"selfCollision"`

	PickupRadius      float64 `json:"pickupRadius"`
	ItemTarget        int     `json:"itemTarget"`
	ItemGrowth        int     `json:"itemGrowth"`
	ItemClearance     float64 `json:"itemClearance"`
	PlacementAttempts int     `json:"placementAttempts"`

	SpawnMargin    float64 `json:"spawnMargin"`
	SpawnClearance float64 `json:"spawnClearance"`
	SpawnAttempts  int     `json:"spawnAttempts"`
	SpawnJitter    float64 `json:"spawnJitter"`

	InitialLength   int           `json:"initialLength"` // trail points retained at spawn
	KillReward      int           `json:"killReward"`
	Respawn         RespawnPolicy `json:"respawn"`
	BotRespawnTicks int           `json:"botRespawnTicks"`

	Seed int64 `json:"seed"`
}

func DefaultConfig() Config {
	return Config{
		TickRate:          30,
		ArenaWidth:        256,
		ArenaHeight:       256,
		Speed:             12,
		TurnRate:          2.5,
		BoostMultiplier:   2,
		BoostDrain:        0.5,
		BoostRegen:        0.2,
		GraceWindow:       8,
		CollisionRadius:   0.85,
		SelfCollision:     true,
		PickupRadius:      1.2,
		ItemTarget:        24,
		ItemGrowth:        15,
		ItemClearance:     2,
		PlacementAttempts: 16,
		SpawnMargin:       15,
		SpawnClearance:    10,
		SpawnAttempts:     32,
		SpawnJitter:       4,
		InitialLength:     90,
		KillReward:        25,
		Respawn:           RespawnImmediate,
		BotRespawnTicks:   30,
		Seed:              1,
	}
}

// TickSeconds is the fixed game-time delta of one step.
func (c Config) TickSeconds() float64 {
	return 1 / float64(c.TickRate)
}

// TurnDelta is the heading change applied per tick while turning.
func (c Config) TurnDelta() float64 {
	return c.TurnRate * c.TickSeconds()
}

// Validate reports tuning that would make the simulation misbehave.
func (c Config) Validate() error {
	var errs []error
	if c.TickRate <= 0 {
		errs = append(errs, errors.New("tick rate must be positive"))
	}
	if c.ArenaWidth <= 0 || c.ArenaHeight <= 0 {
		errs = append(errs, errors.New("arena dimensions must be positive"))
	}
	if c.Speed <= 0 {
		errs = append(errs, errors.New("speed must be positive"))
	}
	if c.BoostMultiplier < 1 {
		errs = append(errs, errors.New("boost multiplier must be at least 1"))
	}
	if c.CollisionRadius <= 0 {
		errs = append(errs, errors.New("collision radius must be positive"))
	}
	if c.GraceWindow < 1 {
		errs = append(errs, errors.New("grace window must cover at least the head"))
	}
	if c.TickRate > 0 && c.SelfCollision {
		// The oldest checked own point sits GraceWindow ticks behind the head.
		if float64(c.GraceWindow)*c.Speed/float64(c.TickRate) <= c.CollisionRadius {
			errs = append(errs, fmt.Errorf("grace window %d too short for speed %.2f at %d Hz", c.GraceWindow, c.Speed, c.TickRate))
		}
	}
	if c.ItemTarget < 0 || c.ItemGrowth < 0 {
		errs = append(errs, errors.New("item target and growth must not be negative"))
	}
	if c.PlacementAttempts < 1 || c.SpawnAttempts < 1 {
		errs = append(errs, errors.New("placement and spawn attempts must be positive"))
	}
	if c.InitialLength < 1 {
		errs = append(errs, errors.New("initial length must be positive"))
	}
	return errors.Join(errs...)
}
