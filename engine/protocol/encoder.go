package protocol

import (
	"sort"

	"hovertrail.io/engine/sim"
)

type EncoderConfig struct {
	// FullTrailThreshold is the longest trail, in points, that is still
	// sent in full every tick.
	FullTrailThreshold int `json:"fullTrailThreshold"`
	// ResyncInterval forces a full frame every so many ticks once deltas
	// are in use. Zero disables periodic resync.
	ResyncInterval uint64 `json:"resyncInterval"`
	// CompressThreshold is the body size in bytes from which a frame is
	// lz4-compressed. Zero disables compression.
	CompressThreshold int `json:"compressThreshold"`
}

func DefaultEncoderConfig() EncoderConfig {
	return EncoderConfig{
		FullTrailThreshold: 64,
		ResyncInterval:     90,
		CompressThreshold:  2048,
	}
}

// sentTrail remembers the newest trail point a player's clients have seen.
type sentTrail struct {
	spawnTick uint64
	headTick  uint64
}

// Encoder turns the world after a step into one broadcast frame per tick.
// It keeps per-player delta state and must only be used from the game loop
// goroutine.
type Encoder struct {
	cfg    EncoderConfig
	policy resyncPolicy
	sent   map[sim.PlayerID]sentTrail
}

func NewEncoder(cfg EncoderConfig) *Encoder {
	return &Encoder{
		cfg:    cfg,
		policy: resyncPolicy{threshold: cfg.FullTrailThreshold, interval: cfg.ResyncInterval},
		sent:   make(map[sim.PlayerID]sentTrail),
	}
}

// ForceResync makes the next Encode produce a full frame.
func (e *Encoder) ForceResync(reason string) {
	e.policy.force(reason)
}

// Encode builds the broadcast frame for the tick just stepped. Deaths come
// from res; everything else is read from w.
func (e *Encoder) Encode(w *sim.World, res sim.StepResult) (Frame, error) {
	tick := w.Tick()
	full, reason := e.policy.decide(tick, w.MaxTrailLen())
	snap := Snapshot{Tick: tick, Kind: FrameDelta, Items: itemStates(w), Deaths: deathStates(res.Deaths)}
	if full {
		snap.Kind = FrameFull
	}

	live := w.LivePlayers()
	seen := make(map[sim.PlayerID]struct{}, len(live))
	snap.Players = make([]PlayerState, 0, len(live))
	for _, p := range live {
		st := newPlayerState(p)
		prev, ok := e.sent[p.ID]
		if full || !ok || prev.spawnTick != p.SpawnTick {
			st.Trail = points(p.Trail)
			st.Reset = true
		} else {
			st.Trail = points(trailSince(p.Trail, prev.headTick))
		}
		snap.Players = append(snap.Players, st)
		e.sent[p.ID] = sentTrail{spawnTick: p.SpawnTick, headTick: p.Head().Tick}
		seen[p.ID] = struct{}{}
	}
	for id := range e.sent {
		if _, ok := seen[id]; !ok {
			delete(e.sent, id)
		}
	}

	data, err := marshalFrame(&snap, e.cfg.CompressThreshold)
	if err != nil {
		return Frame{}, err
	}
	if full {
		e.policy.sentFull(tick)
	}
	return Frame{Kind: snap.Kind, Tick: tick, Data: data, Reason: reason}, nil
}

// EncodeFull builds a standalone full frame of the current world without
// touching delta state. It brings a newly admitted session up to date
// before its first broadcast.
func (e *Encoder) EncodeFull(w *sim.World) (Frame, error) {
	snap := Snapshot{Tick: w.Tick(), Kind: FrameFull, Items: itemStates(w)}
	live := w.LivePlayers()
	snap.Players = make([]PlayerState, 0, len(live))
	for _, p := range live {
		st := newPlayerState(p)
		st.Trail = points(p.Trail)
		st.Reset = true
		snap.Players = append(snap.Players, st)
	}
	data, err := marshalFrame(&snap, e.cfg.CompressThreshold)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Kind: FrameFull, Tick: snap.Tick, Data: data, Reason: "join"}, nil
}

// trailSince returns the points recorded after tick. Trail ticks are
// strictly increasing.
func trailSince(trail []sim.TrailPoint, tick uint64) []sim.TrailPoint {
	i := sort.Search(len(trail), func(i int) bool { return trail[i].Tick > tick })
	return trail[i:]
}
