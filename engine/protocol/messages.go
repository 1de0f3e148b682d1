package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"hovertrail.io/engine/sim"
)

// Message type tags carried in the "t" field of every text message.
const (
	TypeJoin    = "join"
	TypeInput   = "input"
	TypeRespawn = "respawn"
	TypePing    = "ping"

	TypeWelcome    = "welcome"
	TypeJoinFailed = "joinFailed"
	TypePong       = "pong"
	TypeError      = "error"
)

// BinaryInput is the leading byte of the compact input message
// [0x02, turn, flags].
const BinaryInput byte = 0x02

const (
	MaxNameRunes = 15
	DefaultName  = "Player"
)

// ClientMessage is any text message a client may send. Only the fields
// relevant to T are populated.
type ClientMessage struct {
	T     string `json:"t" jsonschema:"required,enum=join,enum=input,enum=respawn,enum=ping"`
	Name  string `json:"name,omitempty" jsonschema:"maxLength=64"`
	Turn  string `json:"turn,omitempty" jsonschema:"enum=left,enum=right,enum=straight"`
	Boost bool   `json:"boost,omitempty"`
	N     uint64 `json:"n,omitempty"`
}

// ParseClientText decodes a JSON text message and checks its type tag.
func ParseClientText(data []byte) (ClientMessage, error) {
	var m ClientMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("%w: %v", sim.ErrInputRejected, err)
	}
	switch m.T {
	case TypeJoin, TypeInput, TypeRespawn, TypePing:
		return m, nil
	}
	return m, fmt.Errorf("%w: unknown message type %q", sim.ErrInputRejected, m.T)
}

// Command converts an input message into a steering command.
func (m ClientMessage) Command() (sim.Command, error) {
	if m.T != TypeInput {
		return sim.Command{}, fmt.Errorf("%w: %q is not an input message", sim.ErrInputRejected, m.T)
	}
	turn, err := sim.ParseTurn(m.Turn)
	if err != nil {
		return sim.Command{}, err
	}
	return sim.Command{Turn: turn, Boost: m.Boost}, nil
}

// ParseBinaryInput decodes [0x02, turn, flags]. flags bit0 is boost.
func ParseBinaryInput(data []byte) (sim.Command, error) {
	if len(data) != 3 || data[0] != BinaryInput {
		return sim.Command{}, fmt.Errorf("%w: malformed binary input (%d bytes)", sim.ErrInputRejected, len(data))
	}
	cmd := sim.Command{Turn: sim.Turn(data[1]), Boost: data[2]&1 != 0}
	if !cmd.Turn.Valid() {
		return sim.Command{}, fmt.Errorf("%w: turn %d", sim.ErrInputRejected, data[1])
	}
	return cmd, nil
}

// IsText reports whether an outbound message is a JSON text message rather
// than a binary state frame. Frames start with their kind byte.
func IsText(msg []byte) bool {
	return len(msg) > 0 && msg[0] == '{'
}

// AppendBinaryInput is the client-side encoding of ParseBinaryInput.
func AppendBinaryInput(dst []byte, cmd sim.Command) []byte {
	var flags byte
	if cmd.Boost {
		flags |= 1
	}
	return append(dst, BinaryInput, byte(cmd.Turn), flags)
}

// SanitizeName trims a display name, falls back to DefaultName and caps it
// at MaxNameRunes.
func SanitizeName(name string) string {
	name = strings.TrimSpace(strings.ToValidUTF8(name, ""))
	if name == "" {
		return DefaultName
	}
	if utf8.RuneCountInString(name) > MaxNameRunes {
		name = string([]rune(name)[:MaxNameRunes])
	}
	return name
}

// ---------------------------------------------------------------------------
// Server → client text messages
// ---------------------------------------------------------------------------

type Arena struct {
	W float64 `json:"w"`
	H float64 `json:"h"`
}

type Welcome struct {
	T        string `json:"t" jsonschema:"required,enum=welcome"`
	ID       string `json:"id" jsonschema:"required"`
	Arena    Arena  `json:"arena" jsonschema:"required"`
	TickRate int    `json:"tickRate" jsonschema:"required"`
	Version  string `json:"version"`
}

type JoinFailed struct {
	T      string `json:"t" jsonschema:"required,enum=joinFailed"`
	Reason string `json:"reason" jsonschema:"required"`
}

type Pong struct {
	T string `json:"t" jsonschema:"required,enum=pong"`
	N uint64 `json:"n"`
}

type ErrorMessage struct {
	T      string `json:"t" jsonschema:"required,enum=error"`
	Reason string `json:"reason" jsonschema:"required"`
}

func NewWelcome(id sim.PlayerID, cfg sim.Config, version string) []byte {
	return mustJSON(Welcome{
		T:        TypeWelcome,
		ID:       string(id),
		Arena:    Arena{W: cfg.ArenaWidth, H: cfg.ArenaHeight},
		TickRate: cfg.TickRate,
		Version:  version,
	})
}

func NewJoinFailed(reason string) []byte {
	return mustJSON(JoinFailed{T: TypeJoinFailed, Reason: reason})
}

func NewPong(n uint64) []byte {
	return mustJSON(Pong{T: TypePong, N: n})
}

func NewError(reason string) []byte {
	return mustJSON(ErrorMessage{T: TypeError, Reason: reason})
}

// mustJSON marshals the fixed message structs above, which cannot fail.
func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
