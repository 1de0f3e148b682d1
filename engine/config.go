package engine

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"hovertrail.io/engine/protocol"
	"hovertrail.io/engine/sim"
)

// EnvPrefix prefixes every environment variable read by LoadConfig.
const EnvPrefix = "HOVERTRAIL_"

// Config holds the server's runtime settings. Sim and Encoder are passed
// through to the simulation and the broadcast encoder.
type Config struct {
	Addr           string        `json:"addr"`
	GRPCAddr       string        `json:"grpcAddr"` // empty disables the health service
	AllowedOrigins []string      `json:"allowedOrigins"`
	SendBuffer     int           `json:"sendBuffer"` // outbound frames queued per session
	InputRate      float64       `json:"inputRate"`  // client messages per second
	InputBurst     int           `json:"inputBurst"`
	ReadLimit      int64         `json:"readLimit"`
	PingInterval   time.Duration `json:"pingInterval"`
	BotCount       int           `json:"botCount"`
	StaticDir      string        `json:"staticDir"` // served at / when set
	Version        string        `json:"version"`

	Sim     sim.Config             `json:"sim"`
	Encoder protocol.EncoderConfig `json:"encoder"`
}

func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		GRPCAddr:       ":8081",
		AllowedOrigins: []string{"*"},
		SendBuffer:     8,
		InputRate:      60,
		InputBurst:     20,
		ReadLimit:      512,
		PingInterval:   30 * time.Second,
		BotCount:       4,
		Version:        Version,
		Sim:            sim.DefaultConfig(),
		Encoder:        protocol.DefaultEncoderConfig(),
	}
}

// TickInterval is the wall-clock period of one simulation step.
func (c Config) TickInterval() time.Duration {
	if c.Sim.TickRate <= 0 {
		return time.Second
	}
	return time.Second / time.Duration(c.Sim.TickRate)
}

func (c Config) Validate() error {
	var errs []error
	if err := c.Sim.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.SendBuffer < 1 {
		errs = append(errs, errors.New("send buffer must hold at least one frame"))
	}
	if c.InputRate <= 0 || c.InputBurst < 1 {
		errs = append(errs, errors.New("input rate and burst must be positive"))
	}
	if c.BotCount < 0 {
		errs = append(errs, errors.New("bot count must not be negative"))
	}
	if c.Encoder.FullTrailThreshold < 0 {
		errs = append(errs, errors.New("full trail threshold must not be negative"))
	}
	return errors.Join(errs...)
}

// LoadConfig starts from DefaultConfig, loads the given .env files (".env"
// when none are named; missing files are skipped) and applies HOVERTRAIL_*
// environment variables on top.
func LoadConfig(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := DefaultConfig()
	e := envReader{}
	e.str("ADDR", &cfg.Addr)
	e.str("GRPC_ADDR", &cfg.GRPCAddr)
	e.list("ORIGINS", &cfg.AllowedOrigins)
	e.integer("SEND_BUFFER", &cfg.SendBuffer)
	e.float("INPUT_RATE", &cfg.InputRate)
	e.integer("INPUT_BURST", &cfg.InputBurst)
	e.int64("READ_LIMIT", &cfg.ReadLimit)
	e.duration("PING_INTERVAL", &cfg.PingInterval)
	e.integer("BOTS", &cfg.BotCount)
	e.str("STATIC", &cfg.StaticDir)

	e.integer("TICK_RATE", &cfg.Sim.TickRate)
	e.float("ARENA_WIDTH", &cfg.Sim.ArenaWidth)
	e.float("ARENA_HEIGHT", &cfg.Sim.ArenaHeight)
	e.float("SPEED", &cfg.Sim.Speed)
	e.float("TURN_RATE", &cfg.Sim.TurnRate)
	e.integer("GRACE_WINDOW", &cfg.Sim.GraceWindow)
	e.float("COLLISION_RADIUS", &cfg.Sim.CollisionRadius)
	e.boolean("SELF_COLLISION", &cfg.Sim.SelfCollision)
	e.integer("ITEM_TARGET", &cfg.Sim.ItemTarget)
	e.integer("ITEM_GROWTH", &cfg.Sim.ItemGrowth)
	e.integer("INITIAL_LENGTH", &cfg.Sim.InitialLength)
	e.integer("KILL_REWARD", &cfg.Sim.KillReward)
	e.int64("SEED", &cfg.Sim.Seed)
	if v, ok := e.lookup("RESPAWN"); ok {
		p, err := sim.ParseRespawnPolicy(v)
		e.record("RESPAWN", err)
		cfg.Sim.Respawn = p
	}

	e.integer("FULL_TRAIL_THRESHOLD", &cfg.Encoder.FullTrailThreshold)
	e.uint64("RESYNC_INTERVAL", &cfg.Encoder.ResyncInterval)
	e.integer("COMPRESS_THRESHOLD", &cfg.Encoder.CompressThreshold)

	if err := errors.Join(e.errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envReader applies HOVERTRAIL_* overrides and collects parse errors.
type envReader struct {
	errs []error
}

func (e *envReader) lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *envReader) record(key string, err error) {
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
	}
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.lookup(key); ok {
		*dst = v
	}
}

func (e *envReader) list(key string, dst *[]string) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func (e *envReader) integer(key string, dst *int) {
	if v, ok := e.lookup(key); ok {
		n, err := strconv.Atoi(v)
		e.record(key, err)
		if err == nil {
			*dst = n
		}
	}
}

func (e *envReader) int64(key string, dst *int64) {
	if v, ok := e.lookup(key); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		e.record(key, err)
		if err == nil {
			*dst = n
		}
	}
}

func (e *envReader) uint64(key string, dst *uint64) {
	if v, ok := e.lookup(key); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		e.record(key, err)
		if err == nil {
			*dst = n
		}
	}
}

func (e *envReader) float(key string, dst *float64) {
	if v, ok := e.lookup(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		e.record(key, err)
		if err == nil {
			*dst = f
		}
	}
}

func (e *envReader) boolean(key string, dst *bool) {
	if v, ok := e.lookup(key); ok {
		b, err := strconv.ParseBool(v)
		e.record(key, err)
		if err == nil {
			*dst = b
		}
	}
}

func (e *envReader) duration(key string, dst *time.Duration) {
	if v, ok := e.lookup(key); ok {
		d, err := time.ParseDuration(v)
		e.record(key, err)
		if err == nil {
			*dst = d
		}
	}
}
