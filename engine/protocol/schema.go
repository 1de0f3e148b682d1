package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// schemaTypes lists every message of the protocol by name. Snapshot
// describes the msgpack body of binary state frames.
var schemaTypes = []struct {
	name  string
	title string
	value any
}{
	{"client", "Client message", &ClientMessage{}},
	{TypeWelcome, "Welcome", &Welcome{}},
	{TypeJoinFailed, "Join failed", &JoinFailed{}},
	{TypePong, "Pong", &Pong{}},
	{TypeError, "Error", &ErrorMessage{}},
	{"snapshot", "State frame body", &Snapshot{}},
}

// Schema reflects the wire messages into JSON schemas keyed by message name.
func Schema() map[string]*jsonschema.Schema {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}
	out := make(map[string]*jsonschema.Schema, len(schemaTypes))
	for _, st := range schemaTypes {
		s := reflector.Reflect(st.value)
		s.Title = st.title
		out[st.name] = s
	}
	return out
}

// SchemaJSON renders Schema as indented JSON.
func SchemaJSON() ([]byte, error) {
	data, err := json.MarshalIndent(Schema(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return append(data, '\n'), nil
}
