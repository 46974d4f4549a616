package relay

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/c360/lnrelay/errors"
)

// SourceField is the key stamped on every forwarded event
const SourceField = "source"

// stampSource decodes an inbound payload, sets its source field and
// re-serializes it. Text frames arrive as string and are parsed as JSON;
// anything else is treated as already structured. The payload must be a
// JSON object.
func stampSource(payload any, source string) ([]byte, error) {
	obj, err := decodeObject(payload)
	if err != nil {
		return nil, errors.WrapInvalid(err, "relay", "stampSource", "decode message")
	}

	obj[SourceField] = source

	out, err := json.Marshal(obj)
	if err != nil {
		return nil, errors.WrapInvalid(err, "relay", "stampSource", "encode message")
	}
	return out, nil
}

func decodeObject(payload any) (map[string]any, error) {
	switch p := payload.(type) {
	case string:
		return unmarshalObject([]byte(p))
	case []byte:
		return unmarshalObject(p)
	case json.RawMessage:
		return unmarshalObject(p)
	case map[string]any:
		out := make(map[string]any, len(p)+1)
		for k, v := range p {
			out[k] = v
		}
		return out, nil
	case nil:
		return nil, fmt.Errorf("%w: empty payload", errors.ErrInvalidData)
	default:
		// Structured values of other types go through JSON to get an object view
		data, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errors.ErrParsingFailed, err)
		}
		return unmarshalObject(data)
	}
}

func unmarshalObject(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	// Keep msat amounts exact
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrParsingFailed, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: payload is not a JSON object", errors.ErrInvalidData)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after JSON object", errors.ErrParsingFailed)
	}
	return obj, nil
}
