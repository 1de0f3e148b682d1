package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/pierrec/lz4/v4"
	"github.com/vmihailenco/msgpack/v5"

	"hovertrail.io/engine/sim"
)

// FrameKind tags a state frame as a full snapshot or an incremental delta.
type FrameKind uint8

const (
	FrameFull  FrameKind = 1
	FrameDelta FrameKind = 2
)

func (k FrameKind) String() string {
	switch k {
	case FrameFull:
		return "full"
	case FrameDelta:
		return "delta"
	default:
		return fmt.Sprintf("FrameKind(%d)", uint8(k))
	}
}

const (
	headerSize = 2
	flagLZ4    = 1 << 0
)

var ErrMalformedFrame = errors.New("malformed frame")

// Point is one trail point on the wire.
type Point struct {
	X    float32 `json:"x" msgpack:"x"`
	Y    float32 `json:"y" msgpack:"y"`
	Tick uint64  `json:"tick" msgpack:"tick"`
}

// PlayerState carries one live player. In a full frame, or when Reset is
// set, Trail is the whole trail oldest-first. Otherwise it holds only the
// points appended since the previous frame and the client trims its copy
// to TrailLen.
type PlayerState struct {
	ID       string  `json:"id" msgpack:"id"`
	Name     string  `json:"name" msgpack:"name"`
	X        float32 `json:"x" msgpack:"x"`
	Y        float32 `json:"y" msgpack:"y"`
	Heading  float32 `json:"heading" msgpack:"heading"`
	Length   int     `json:"length" msgpack:"length"`
	Score    int     `json:"score" msgpack:"score"`
	Boost    float32 `json:"boost" msgpack:"boost"`
	Bot      bool    `json:"bot,omitempty" msgpack:"bot,omitempty"`
	Trail    []Point `json:"trail" msgpack:"trail"`
	TrailLen int     `json:"trailLen" msgpack:"trailLen"`
	Reset    bool    `json:"reset,omitempty" msgpack:"reset,omitempty"`
}

type ItemState struct {
	ID    string  `json:"id" msgpack:"id"`
	X     float32 `json:"x" msgpack:"x"`
	Y     float32 `json:"y" msgpack:"y"`
	Value int     `json:"value" msgpack:"value"`
}

type DeathState struct {
	ID     string `json:"id" msgpack:"id"`
	Cause  string `json:"cause" msgpack:"cause" jsonschema:"enum=out_of_bounds,enum=collision,enum=disconnected"`
	Killer string `json:"killer,omitempty" msgpack:"killer,omitempty"`
}

// Snapshot is the msgpack body of a binary state frame.
type Snapshot struct {
	Tick    uint64        `json:"tick" msgpack:"tick"`
	Kind    FrameKind     `json:"kind" msgpack:"kind" jsonschema:"enum=1,enum=2"`
	Players []PlayerState `json:"players" msgpack:"players"`
	Items   []ItemState   `json:"items" msgpack:"items"`
	Deaths  []DeathState  `json:"deaths,omitempty" msgpack:"deaths,omitempty"`
}

// Frame is one encoded server → client binary message.
type Frame struct {
	Kind   FrameKind
	Tick   uint64
	Data   []byte
	Reason string // why a full frame was chosen, empty for deltas
}

func (f Frame) Compressed() bool {
	return len(f.Data) >= headerSize && f.Data[1]&flagLZ4 != 0
}

func newPlayerState(p *sim.Player) PlayerState {
	return PlayerState{
		ID:       string(p.ID),
		Name:     p.Name,
		X:        float32(p.Pos.X),
		Y:        float32(p.Pos.Y),
		Heading:  float32(p.Heading),
		Length:   p.Length,
		Score:    p.Score,
		Boost:    float32(p.Boost),
		Bot:      p.Bot,
		TrailLen: len(p.Trail),
	}
}

func points(trail []sim.TrailPoint) []Point {
	out := make([]Point, len(trail))
	for i, tp := range trail {
		out[i] = Point{X: float32(tp.Pos.X), Y: float32(tp.Pos.Y), Tick: tp.Tick}
	}
	return out
}

func itemStates(w *sim.World) []ItemState {
	items := w.Items()
	out := make([]ItemState, len(items))
	for i, it := range items {
		out[i] = ItemState{ID: string(it.ID), X: float32(it.Pos.X), Y: float32(it.Pos.Y), Value: it.Value}
	}
	return out
}

func deathStates(deaths []sim.Death) []DeathState {
	if len(deaths) == 0 {
		return nil
	}
	out := make([]DeathState, len(deaths))
	for i, d := range deaths {
		out[i] = DeathState{ID: string(d.ID), Cause: d.Cause.String(), Killer: string(d.Killer)}
	}
	return out
}

// ---------------------------------------------------------------------------
// Frame body
// ---------------------------------------------------------------------------

var bufferPool = sync.Pool{New: func() any { return new(bytes.Buffer) }}

func marshalFrame(snap *Snapshot, compressAbove int) ([]byte, error) {
	body, err := msgpack.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	var flags byte
	if compressAbove > 0 && len(body) >= compressAbove {
		packed, err := compressLZ4(body)
		if err != nil {
			return nil, err
		}
		if len(packed) < len(body) {
			body = packed
			flags |= flagLZ4
		}
	}
	out := make([]byte, headerSize+len(body))
	out[0] = byte(snap.Kind)
	out[1] = flags
	copy(out[headerSize:], body)
	return out, nil
}

func compressLZ4(src []byte) ([]byte, error) {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)
	zw := lz4.NewWriter(buf)
	if _, err := zw.Write(src); err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

func decompressLZ4(src []byte) ([]byte, error) {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)
	if _, err := io.Copy(buf, lz4.NewReader(bytes.NewReader(src))); err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

// DecodeFrame parses a binary state frame produced by an Encoder.
func DecodeFrame(data []byte) (Snapshot, error) {
	var snap Snapshot
	if len(data) < headerSize {
		return snap, fmt.Errorf("%w: %d bytes", ErrMalformedFrame, len(data))
	}
	kind, flags := FrameKind(data[0]), data[1]
	if kind != FrameFull && kind != FrameDelta {
		return snap, fmt.Errorf("%w: kind %d", ErrMalformedFrame, data[0])
	}
	body := data[headerSize:]
	if flags&flagLZ4 != 0 {
		var err error
		if body, err = decompressLZ4(body); err != nil {
			return snap, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
	}
	if err := msgpack.Unmarshal(body, &snap); err != nil {
		return snap, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if snap.Kind != kind {
		return snap, fmt.Errorf("%w: header kind %s, body kind %s", ErrMalformedFrame, kind, snap.Kind)
	}
	return snap, nil
}
