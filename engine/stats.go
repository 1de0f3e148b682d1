package engine

import (
	"cmp"
	"encoding/hex"
	"fmt"
	"math"
	"runtime"
	"slices"
	"time"

	"lukechampine.com/blake3"

	"hovertrail.io/engine/protocol"
)

const leaderboardSize = 20

type Stats struct {
	Version        string             `json:"version"`
	State          string             `json:"state"`
	Uptime         string             `json:"uptime"`
	UptimeSec      int64              `json:"uptimeSec"`
	Tick           uint64             `json:"tick"`
	TotalJoins     int64              `json:"totalJoins"`
	TotalLeaves    int64              `json:"totalLeaves"`
	TotalKills     int64              `json:"totalKills"`
	TotalDeaths    int64              `json:"totalDeaths"`
	PeakPlayers    int                `json:"peakPlayers"`
	CurrentPlayers int                `json:"currentPlayers"`
	BotCount       int                `json:"botCount"`
	ItemCount      int                `json:"itemCount"`
	AvgTickMs      float64            `json:"avgTickMs"`
	MaxTickMs      float64            `json:"maxTickMs"`
	FullFrames     int64              `json:"fullFrames"`
	DeltaFrames    int64              `json:"deltaFrames"`
	TotalBytesSent int64              `json:"totalBytesSent"`
	TotalBytesRecv int64              `json:"totalBytesRecv"`
	FrameDigest    string             `json:"frameDigest,omitempty"`
	StreamDigest   string             `json:"streamDigest,omitempty"`
	MemAllocMB     float64            `json:"memAllocMB"`
	NumGoroutines  int                `json:"numGoroutines"`
	Leaderboard    []LeaderboardEntry `json:"leaderboard"`
}

type LeaderboardEntry struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Score  int    `json:"score"`
	Length int    `json:"length"`
	Bot    bool   `json:"bot"`
}

// loopStats is owned by the game loop goroutine.
type loopStats struct {
	startTime   time.Time
	totalJoins  int64
	totalLeaves int64
	totalKills  int64
	totalDeaths int64
	peakPlayers int

	tickDurations [60]time.Duration
	tickDurIdx    int
	maxTickMs     float64

	fullFrames     int64
	deltaFrames    int64
	totalBytesSent int64

	frameDigest [32]byte
	stream      *blake3.Hasher
}

func newLoopStats() loopStats {
	return loopStats{startTime: time.Now(), stream: blake3.New(32, nil)}
}

// recordFrame folds one broadcast frame into the counters and digests.
func (s *loopStats) recordFrame(f protocol.Frame, delivered int) {
	if f.Kind == protocol.FrameFull {
		s.fullFrames++
	} else {
		s.deltaFrames++
	}
	s.totalBytesSent += int64(len(f.Data) * delivered)
	s.frameDigest = blake3.Sum256(f.Data)
	s.stream.Write(f.Data)
}

func (s *loopStats) recordTick(elapsed time.Duration) {
	s.tickDurations[s.tickDurIdx%len(s.tickDurations)] = elapsed
	s.tickDurIdx++
	if ms := float64(elapsed.Nanoseconds()) / 1e6; ms > s.maxTickMs {
		s.maxTickMs = ms
	}
}

func (s *loopStats) avgTickMs() float64 {
	var total time.Duration
	n := 0
	for _, d := range s.tickDurations {
		if d > 0 {
			total += d
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return float64(total.Nanoseconds()) / float64(n) / 1e6
}

// streamDigest is the blake3 digest of every frame broadcast so far.
func (s *loopStats) streamDigest() string {
	return hex.EncodeToString(s.stream.Sum(nil))
}

func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	sec := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, sec)
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// buildStats runs on the loop goroutine.
func (g *Game) buildStats() Stats {
	s := &g.stats
	uptime := time.Since(s.startTime)

	bots := 0
	lb := make([]LeaderboardEntry, 0, len(g.world.Players()))
	for _, p := range g.world.Players() {
		if p.Bot {
			bots++
		}
		if !p.Alive {
			continue
		}
		lb = append(lb, LeaderboardEntry{ID: string(p.ID), Name: p.Name, Score: p.Score, Length: p.Length, Bot: p.Bot})
	}
	slices.SortStableFunc(lb, func(a, b LeaderboardEntry) int { return cmp.Compare(b.Score, a.Score) })
	if len(lb) > leaderboardSize {
		lb = lb[:leaderboardSize]
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	st := Stats{
		Version:        g.cfg.Version,
		State:          g.State().String(),
		Uptime:         formatDuration(uptime),
		UptimeSec:      int64(uptime.Seconds()),
		Tick:           g.world.Tick(),
		TotalJoins:     s.totalJoins,
		TotalLeaves:    s.totalLeaves,
		TotalKills:     s.totalKills,
		TotalDeaths:    s.totalDeaths,
		PeakPlayers:    s.peakPlayers,
		CurrentPlayers: g.sessions.Len(),
		BotCount:       bots,
		ItemCount:      g.world.NumItems(),
		AvgTickMs:      round2(s.avgTickMs()),
		MaxTickMs:      round2(s.maxTickMs),
		FullFrames:     s.fullFrames,
		DeltaFrames:    s.deltaFrames,
		TotalBytesSent: s.totalBytesSent,
		TotalBytesRecv: g.bytesRecv.Load(),
		MemAllocMB:     round2(float64(mem.Alloc) / (1 << 20)),
		NumGoroutines:  runtime.NumGoroutine(),
		Leaderboard:    lb,
	}
	if s.fullFrames+s.deltaFrames > 0 {
		st.FrameDigest = hex.EncodeToString(s.frameDigest[:])
		st.StreamDigest = s.streamDigest()
	}
	return st
}

func (g *Game) logStats() {
	st := g.buildStats()
	g.logger.Info("stats",
		"uptime", st.Uptime,
		"tick", st.Tick,
		"players", st.CurrentPlayers,
		"peak", st.PeakPlayers,
		"bots", st.BotCount,
		"kills", st.TotalKills,
		"items", st.ItemCount,
		"avgTickMs", st.AvgTickMs,
		"maxTickMs", st.MaxTickMs,
		"bytesSent", st.TotalBytesSent,
	)
}
