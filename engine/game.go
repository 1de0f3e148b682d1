package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"hovertrail.io/engine/protocol"
	"hovertrail.io/engine/session"
	"hovertrail.io/engine/sim"
)

// Version can be set before starting the server.
var Version = "1.0.0"

var (
	ErrAlreadyStarted = errors.New("game already started")
	ErrStopped        = errors.New("game stopped")
)

// State is the lifecycle of the game loop: Idle → Running → Stopped.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

var botNames = [...]string{
	"Volt", "Quasar", "Nimbus", "Pulse", "Drift",
	"Comet", "Flux", "Ion", "Rift", "Zephyr",
	"Glider", "Spark", "Halo", "Vector", "Echo",
}

// JoinResult is handed back to the transport once a session is admitted.
type JoinResult struct {
	ID    sim.PlayerID
	Spawn sim.Spawn
}

type joinRequest struct {
	conn  session.Conn
	name  string
	reply chan joinReply
}

type joinReply struct {
	res JoinResult
	err error
}

// Game drives the simulation. The loop goroutine started by Run is the only
// writer of the world; transports talk to it through Join, Leave, Submit
// and Respawn.
type Game struct {
	cfg    Config
	logger *slog.Logger

	world    *sim.World
	inputs   *sim.InputQueue
	sessions *session.Registry
	encoder  *protocol.Encoder

	joinCh    chan joinRequest
	respawnCh chan sim.PlayerID
	statsCh   chan chan Stats

	state     atomic.Int32
	done      chan struct{}
	bytesRecv atomic.Int64

	// Owned by the loop goroutine.
	names       map[sim.PlayerID]string
	pendingBots []sim.Join
	stats       loopStats

	// newTicker starts the tick source for Run and returns its stop func.
	newTicker func(time.Duration) (<-chan time.Time, func())
	afterTick func(tick uint64)
}

// systemTicker drops ticks for a slow receiver, so an overrun is followed by
// one immediate step instead of a burst.
func systemTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

func NewGame(cfg Config, logger *slog.Logger) *Game {
	if logger == nil {
		logger = slog.Default()
	}
	root := strconv.FormatInt(cfg.Sim.Seed, 10)
	g := &Game{
		cfg:       cfg,
		logger:    logger,
		world:     sim.NewWorld(cfg.Sim),
		inputs:    sim.NewInputQueue(),
		sessions:  session.NewRegistry(sim.NewRNG(sim.DeterministicSeed(root, "sessions")), logger),
		encoder:   protocol.NewEncoder(cfg.Encoder),
		joinCh:    make(chan joinRequest, 32),
		respawnCh: make(chan sim.PlayerID, 32),
		statsCh:   make(chan chan Stats, 4),
		done:      make(chan struct{}),
		names:     make(map[sim.PlayerID]string),
		stats:     newLoopStats(),
		newTicker: systemTicker,
	}

	botIDs := sim.NewRNG(sim.DeterministicSeed(root, "bots"))
	for i := 0; i < cfg.BotCount; i++ {
		id, err := sim.NewID(botIDs)
		if err != nil {
			id = fmt.Sprintf("bot-%d", i)
		}
		name := botNames[i%len(botNames)]
		if i >= len(botNames) {
			name = fmt.Sprintf("%s %d", name, i/len(botNames)+1)
		}
		g.pendingBots = append(g.pendingBots, sim.Join{ID: sim.PlayerID("bot-" + id), Name: name, Bot: true})
	}
	return g
}

func (g *Game) Config() Config { return g.cfg }

func (g *Game) State() State { return State(g.state.Load()) }

// Done is closed once Run has returned.
func (g *Game) Done() <-chan struct{} { return g.done }

// Run drives the loop until ctx is cancelled or a step fails. The tick in
// progress always completes first. A step error is an invariant violation
// and is returned.
func (g *Game) Run(ctx context.Context) error {
	if !g.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return ErrAlreadyStarted
	}
	defer func() {
		g.state.Store(int32(StateStopped))
		g.sessions.CloseAll()
		close(g.done)
	}()

	g.stats.startTime = time.Now()
	g.logger.Info("game loop started",
		"tickRate", g.cfg.Sim.TickRate,
		"arena", fmt.Sprintf("%gx%g", g.cfg.Sim.ArenaWidth, g.cfg.Sim.ArenaHeight),
		"bots", g.cfg.BotCount,
		"respawn", g.cfg.Sim.Respawn.String(),
		"seed", g.cfg.Sim.Seed,
	)

	ticks, stopTicks := g.newTicker(g.cfg.TickInterval())
	defer stopTicks()
	statsEvery := uint64(max(1, g.cfg.Sim.TickRate*30))

	for {
		select {
		case <-ctx.Done():
			g.logger.Info("game loop stopped", "tick", g.world.Tick())
			return nil
		case reply := <-g.statsCh:
			reply <- g.buildStats()
		case <-ticks:
			if err := g.tick(); err != nil {
				g.logger.Error("game loop halted", "tick", g.world.Tick(), "err", err)
				return fmt.Errorf("game loop: %w", err)
			}
			if g.afterTick != nil {
				g.afterTick(g.world.Tick())
			}
			if g.world.Tick()%statsEvery == 0 {
				g.logStats()
			}
		}
	}
}

// Join registers conn as a new player. It blocks until the next tick
// boundary admits the player or the request fails.
func (g *Game) Join(ctx context.Context, conn session.Conn, name string) (JoinResult, error) {
	if g.State() == StateStopped {
		return JoinResult{}, ErrStopped
	}
	req := joinRequest{conn: conn, name: protocol.SanitizeName(name), reply: make(chan joinReply, 1)}
	select {
	case g.joinCh <- req:
	case <-ctx.Done():
		return JoinResult{}, ctx.Err()
	case <-g.done:
		return JoinResult{}, ErrStopped
	}
	select {
	case r := <-req.reply:
		return r.res, r.err
	case <-ctx.Done():
		return JoinResult{}, ctx.Err()
	case <-g.done:
		return JoinResult{}, ErrStopped
	}
}

// Leave ends a player's session. The player is marked disconnected at the
// next tick boundary.
func (g *Game) Leave(id sim.PlayerID) {
	if err := g.sessions.Unregister(id); err != nil {
		g.logger.Debug("leave", "player", id, "err", err)
	}
	g.inputs.Forget(id)
}

// Submit queues a steering command for the next tick.
func (g *Game) Submit(id sim.PlayerID, cmd sim.Command) error {
	if !g.sessions.Connected(id) {
		return fmt.Errorf("%w: %s", session.ErrUnknownSession, id)
	}
	return g.inputs.Submit(id, cmd)
}

// Respawn asks for a dead player to be readmitted at the next tick
// boundary. It is ignored while the player is still in play.
func (g *Game) Respawn(id sim.PlayerID) {
	select {
	case g.respawnCh <- id:
	default:
		g.logger.Warn("respawn queue full", "player", id)
	}
}

// RecordBytesRecv adds inbound transport bytes to the stats.
func (g *Game) RecordBytesRecv(n int) {
	g.bytesRecv.Add(int64(n))
}

// GetStats asks the loop for a stats snapshot. Outside the Running state
// only the version and state are filled in.
func (g *Game) GetStats() Stats {
	idle := Stats{Version: g.cfg.Version, State: g.State().String()}
	if g.State() != StateRunning {
		return idle
	}
	reply := make(chan Stats, 1)
	select {
	case g.statsCh <- reply:
	case <-g.done:
		idle.State = StateStopped.String()
		return idle
	}
	select {
	case st := <-reply:
		return st
	case <-g.done:
		idle.State = StateStopped.String()
		return idle
	}
}

// ---------------------------------------------------------------------------
// Tick
// ---------------------------------------------------------------------------

func (g *Game) tick() error {
	start := time.Now()

	var reserved []sim.Vec2
	joins := g.admitSessions(&reserved)
	joins = append(joins, g.admitRespawns(&reserved, joins)...)
	joins = append(joins, g.admitBots(&reserved)...)

	leaves := g.sessions.DrainRemovals()
	if len(leaves) > 0 {
		joins = g.dropLeavers(joins, leaves)
	}

	res, err := sim.Step(g.world, sim.StepInput{
		Joins:    joins,
		Commands: g.inputs.Drain(),
		Leaves:   leaves,
	})
	if err != nil {
		return err
	}

	frame, err := g.encoder.Encode(g.world, res)
	if err != nil {
		return fmt.Errorf("encode tick %d: %w", res.Tick, err)
	}
	connected := g.sessions.Len()
	delivered := g.sessions.Broadcast(frame.Data)
	if delivered < connected {
		g.encoder.ForceResync("sessions dropped")
	}

	g.record(res, frame, delivered)
	g.stats.recordTick(time.Since(start))
	return nil
}

// admitSessions registers waiting join requests. Each admitted session gets
// its welcome and a full frame of the current world before the broadcast of
// the tick that adds its player.
func (g *Game) admitSessions(reserved *[]sim.Vec2) []sim.Join {
	var joins []sim.Join
	var full []byte
	for {
		var req joinRequest
		select {
		case req = <-g.joinCh:
		default:
			return joins
		}

		id, spawn, err := g.sessions.Register(req.conn, g.spawner(reserved))
		if err != nil {
			g.logger.Warn("join failed", "name", req.name, "err", err)
			req.reply <- joinReply{err: err}
			continue
		}
		*reserved = append(*reserved, spawn.Pos)

		if full == nil {
			frame, err := g.encoder.EncodeFull(g.world)
			if err != nil {
				g.logger.Error("encode join frame", "err", err)
			}
			full = frame.Data
		}
		if err := g.sessions.Send(id, protocol.NewWelcome(id, g.cfg.Sim, g.cfg.Version)); err == nil && full != nil {
			_ = g.sessions.Send(id, full)
		}

		g.names[id] = req.name
		g.stats.totalJoins++
		g.stats.peakPlayers = max(g.stats.peakPlayers, g.sessions.Len())
		g.logger.Info("join", "player", id, "name", req.name, "players", g.sessions.Len(), "peak", g.stats.peakPlayers)

		joins = append(joins, sim.Join{ID: id, Name: req.name, Spawn: spawn})
		req.reply <- joinReply{res: JoinResult{ID: id, Spawn: spawn}}
	}
}

// admitRespawns readmits connected players removed by a manual-respawn death.
func (g *Game) admitRespawns(reserved *[]sim.Vec2, admitted []sim.Join) []sim.Join {
	var joins []sim.Join
	queued := make(map[sim.PlayerID]bool, len(admitted))
	for _, j := range admitted {
		queued[j.ID] = true
	}
	for {
		var id sim.PlayerID
		select {
		case id = <-g.respawnCh:
		default:
			return joins
		}
		if queued[id] || !g.sessions.Connected(id) {
			continue
		}
		if _, inWorld := g.world.Player(id); inWorld {
			continue
		}
		spawn, err := g.spawner(reserved)()
		if err != nil {
			_ = g.sessions.Send(id, protocol.NewJoinFailed(err.Error()))
			continue
		}
		*reserved = append(*reserved, spawn.Pos)
		queued[id] = true
		joins = append(joins, sim.Join{ID: id, Name: g.names[id], Spawn: spawn})
		g.logger.Info("respawn", "player", id, "name", g.names[id])
	}
}

// admitBots places bots that have not entered the world yet. A bot without
// a free spawn point waits for a later tick.
func (g *Game) admitBots(reserved *[]sim.Vec2) []sim.Join {
	if len(g.pendingBots) == 0 {
		return nil
	}
	var joins []sim.Join
	waiting := g.pendingBots[:0]
	for _, b := range g.pendingBots {
		spawn, err := g.spawner(reserved)()
		if err != nil {
			waiting = append(waiting, b)
			continue
		}
		*reserved = append(*reserved, spawn.Pos)
		b.Spawn = spawn
		joins = append(joins, b)
	}
	g.pendingBots = waiting
	return joins
}

func (g *Game) spawner(reserved *[]sim.Vec2) session.SpawnFunc {
	return func() (sim.Spawn, error) {
		return g.world.FindSpawn(*reserved)
	}
}

// dropLeavers forgets sessions that ended since the last tick, including any
// admitted during this boundary.
func (g *Game) dropLeavers(joins []sim.Join, leaves []sim.PlayerID) []sim.Join {
	gone := make(map[sim.PlayerID]bool, len(leaves))
	for _, id := range leaves {
		gone[id] = true
		g.inputs.Forget(id)
		if name, ok := g.names[id]; ok {
			g.stats.totalLeaves++
			delete(g.names, id)
			g.logger.Info("leave", "player", id, "name", name, "players", g.sessions.Len())
		}
	}
	kept := joins[:0]
	for _, j := range joins {
		if !gone[j.ID] {
			kept = append(kept, j)
		}
	}
	return kept
}

func (g *Game) record(res sim.StepResult, frame protocol.Frame, delivered int) {
	g.stats.recordFrame(frame, delivered)
	g.stats.totalDeaths += int64(len(res.Deaths))
	for _, d := range res.Deaths {
		if d.Cause == sim.CauseDisconnected {
			continue
		}
		g.logger.Info("death", "tick", res.Tick, "player", d.ID, "cause", d.Cause.String(), "killer", d.Killer)
		if d.Cause == sim.CauseCollision && d.Killer != d.ID {
			g.stats.totalKills++
			g.logger.Info("kill", "tick", res.Tick, "player", d.Killer, "victim", d.ID)
		}
	}
	if frame.Kind == protocol.FrameFull && frame.Reason != protocol.ResyncShortTrails {
		g.logger.Debug("full frame", "tick", res.Tick, "reason", frame.Reason, "bytes", len(frame.Data))
	}
}
