package cmdgate

import (
	"encoding/json"
)

type JsonMarshaler struct{}

func (j JsonMarshaler) Marshal(v any) ([]byte, error) {
	switch d := v.(type) {
	case []byte:
		return d, nil
	case string:
		return []byte(d), nil
	default:
		return json.Marshal(v)
	}
}

func (j JsonMarshaler) Unmarshal(d []byte, v any) error {
	return json.Unmarshal(d, v)
}

func (j JsonMarshaler) String() string {
	return "json"
}

// MarshaledCommand is a Command whose payload is produced by a Marshaler.
type MarshaledCommand struct {
	Value any
	Test  bool
	Codec Marshaler
}

// NewJSONCommand wraps v so that it is published as JSON.
// []byte and string values are published as-is.
func NewJSONCommand(v any, testMode bool) *MarshaledCommand {
	return NewCommand(v, testMode, JsonMarshaler{})
}

func NewCommand(v any, testMode bool, codec Marshaler) *MarshaledCommand {
	return &MarshaledCommand{Value: v, Test: testMode, Codec: codec}
}

func (c *MarshaledCommand) Payload() ([]byte, error) {
	codec := c.Codec
	if codec == nil {
		codec = JsonMarshaler{}
	}
	return codec.Marshal(c.Value)
}

func (c *MarshaledCommand) TestMode() bool {
	return c.Test
}
