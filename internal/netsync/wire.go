package netsync

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/lockstep-sim/lockstep/internal/fixed"
	"github.com/lockstep-sim/lockstep/internal/value"
)

// decodePayload converts a producer's JSON payload into the runtime
// value union. Numbers decode through the fixed-point parser, which
// rejects anything beyond four fraction digits, so no float ever
// crosses the boundary. Exponent notation is rejected for the same
// reason.
func decodePayload(raw json.RawMessage) (value.Pairs, error) {
	if len(raw) == 0 {
		return value.Pairs{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("netsync: decode payload: %w", err)
	}
	v, err := fromJSON(doc)
	if err != nil {
		return nil, err
	}
	pairs, ok := v.(value.Pairs)
	if !ok {
		return nil, fmt.Errorf("netsync: payload must be an object, got %s", v.Kind())
	}
	return pairs, nil
}

func fromJSON(doc any) (value.Value, error) {
	switch d := doc.(type) {
	case nil:
		return value.Nothing{}, nil
	case bool:
		return value.Bool(d), nil
	case string:
		return value.Text(d), nil
	case json.Number:
		f, err := fixed.Parse(d.String())
		if err != nil {
			return nil, fmt.Errorf("netsync: payload number %q: %w", d.String(), err)
		}
		return value.Number{F: f}, nil
	case []any:
		out := make(value.List, len(d))
		for i, elem := range d {
			v, err := fromJSON(elem)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case map[string]any:
		out := make(value.Pairs, len(d))
		for k, elem := range d {
			v, err := fromJSON(elem)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("netsync: unsupported payload element %T", doc)
	}
}
