package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"hovertrail.io/engine/sim"
)

func TestParseClientText(t *testing.T) {
	tests := []struct {
		in   string
		want ClientMessage
		err  bool
	}{
		{`{"t":"join","name":"ada"}`, ClientMessage{T: TypeJoin, Name: "ada"}, false},
		{`{"t":"input","turn":"left","boost":true}`, ClientMessage{T: TypeInput, Turn: "left", Boost: true}, false},
		{`{"t":"respawn"}`, ClientMessage{T: TypeRespawn}, false},
		{`{"t":"ping","n":42}`, ClientMessage{T: TypePing, N: 42}, false},
		{`{"t":"teleport"}`, ClientMessage{}, true},
		{`not json`, ClientMessage{}, true},
	}
	for _, tt := range tests {
		got, err := ParseClientText([]byte(tt.in))
		if tt.err {
			if !errors.Is(err, sim.ErrInputRejected) {
				t.Fatalf("%s: err = %v, want input rejected", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("%s: got %+v, %v", tt.in, got, err)
		}
	}
}

func TestClientMessageCommand(t *testing.T) {
	cmd, err := ClientMessage{T: TypeInput, Turn: "right", Boost: true}.Command()
	if err != nil || cmd != (sim.Command{Turn: sim.TurnRight, Boost: true}) {
		t.Fatalf("command = %+v, %v", cmd, err)
	}
	if _, err := (ClientMessage{T: TypeInput, Turn: "up"}).Command(); !errors.Is(err, sim.ErrInputRejected) {
		t.Fatalf("bad turn err = %v", err)
	}
	if _, err := (ClientMessage{T: TypePing}).Command(); !errors.Is(err, sim.ErrInputRejected) {
		t.Fatalf("non-input err = %v", err)
	}
}

func TestBinaryInput(t *testing.T) {
	want := sim.Command{Turn: sim.TurnLeft, Boost: true}
	data := AppendBinaryInput(nil, want)
	if len(data) != 3 || data[0] != BinaryInput {
		t.Fatalf("encoded = %v", data)
	}
	got, err := ParseBinaryInput(data)
	if err != nil || got != want {
		t.Fatalf("parsed = %+v, %v", got, err)
	}

	for _, bad := range [][]byte{{BinaryInput, 7, 0}, {BinaryInput, 1}, {0x01, 1, 0}} {
		if _, err := ParseBinaryInput(bad); !errors.Is(err, sim.ErrInputRejected) {
			t.Fatalf("ParseBinaryInput(%v) err = %v", bad, err)
		}
	}
}

func TestSanitizeName(t *testing.T) {
	tests := map[string]string{
		"":                      DefaultName,
		"   ":                   DefaultName,
		" ada ":                 "ada",
		"abcdefghijklmnopqrst":  "abcdefghijklmno",
		"ääääääääääääääääääää": strings.Repeat("ä", MaxNameRunes),
	}
	for in, want := range tests {
		if got := SanitizeName(in); got != want {
			t.Fatalf("SanitizeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestServerMessages(t *testing.T) {
	cfg := sim.DefaultConfig()
	var w Welcome
	if err := json.Unmarshal(NewWelcome("abc", cfg, "1.2.3"), &w); err != nil {
		t.Fatal(err)
	}
	if w.T != TypeWelcome || w.ID != "abc" || w.Arena.W != cfg.ArenaWidth || w.TickRate != cfg.TickRate || w.Version != "1.2.3" {
		t.Fatalf("welcome = %+v", w)
	}

	var jf JoinFailed
	if err := json.Unmarshal(NewJoinFailed("spawn unavailable"), &jf); err != nil || jf.T != TypeJoinFailed || jf.Reason != "spawn unavailable" {
		t.Fatalf("joinFailed = %+v, %v", jf, err)
	}
	var p Pong
	if err := json.Unmarshal(NewPong(9), &p); err != nil || p.T != TypePong || p.N != 9 {
		t.Fatalf("pong = %+v, %v", p, err)
	}
}

func TestSchemaCoversMessages(t *testing.T) {
	schemas := Schema()
	for _, name := range []string{"client", TypeWelcome, TypeJoinFailed, TypePong, TypeError, "snapshot"} {
		s, ok := schemas[name]
		if !ok || s.Title == "" {
			t.Fatalf("schema %q missing or untitled", name)
		}
	}
	data, err := SchemaJSON()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"trailLen"`) {
		t.Fatalf("snapshot schema does not describe trailLen")
	}
}
