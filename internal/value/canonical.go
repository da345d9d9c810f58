package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"golang.org/x/text/unicode/norm"

	"github.com/lockstep-sim/lockstep/internal/fixed"
	"github.com/lockstep-sim/lockstep/internal/units"
)

// MarshalCanonical produces the one canonical byte encoding of a value.
// This is the ONLY serialization used for content-addressed hashing,
// and it doubles as the persisted form in snapshots and journal frames
// so that what is stored is byte-for-byte what was hashed.
//
// Encoding rules:
//   - Every value is a JSON object {"t": <tag>, ...}.
//   - Numbers carry their raw scaled int64, never a decimal — no floats
//     can appear anywhere in the stream.
//   - Strings are NFC-normalized and never HTML-escaped.
//   - Pair keys sort by UTF-16 code units.
func MarshalCanonical(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v Value) error {
	switch val := v.(type) {
	case nil:
		return fmt.Errorf("value: nil Value is forbidden in canonical encoding")
	case Nothing:
		buf.WriteString(`{"t":"nothing"}`)
	case Bool:
		if val {
			buf.WriteString(`{"t":"bool","v":true}`)
		} else {
			buf.WriteString(`{"t":"bool","v":false}`)
		}
	case Number:
		buf.WriteString(`{"t":"num","v":`)
		buf.WriteString(strconv.FormatInt(val.F.Raw(), 10))
		buf.WriteByte('}')
	case Unit:
		buf.WriteString(`{"d":[`)
		for i, exp := range val.Dim {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteString(strconv.Itoa(int(exp)))
		}
		buf.WriteString(`],"t":"unit","v":`)
		buf.WriteString(strconv.FormatInt(val.F.Raw(), 10))
		buf.WriteByte('}')
	case Text:
		buf.WriteString(`{"t":"text","v":`)
		if err := writeCanonicalString(buf, string(val)); err != nil {
			return err
		}
		buf.WriteByte('}')
	case Atom:
		buf.WriteString(`{"t":"atom","v":`)
		if err := writeCanonicalString(buf, string(val)); err != nil {
			return err
		}
		buf.WriteByte('}')
	case Handle:
		buf.WriteString(`{"t":"handle","v":`)
		if err := writeCanonicalString(buf, string(val)); err != nil {
			return err
		}
		buf.WriteByte('}')
	case List:
		buf.WriteString(`{"t":"list","v":[`)
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return fmt.Errorf("list[%d]: %w", i, err)
			}
		}
		buf.WriteString(`]}`)
	case Pairs:
		buf.WriteString(`{"t":"pairs","v":{`)
		for i, k := range val.SortedKeys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonicalString(buf, k); err != nil {
				return fmt.Errorf("pairs key %q: %w", k, err)
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return fmt.Errorf("pairs[%q]: %w", k, err)
			}
		}
		buf.WriteString(`}}`)
	default:
		return fmt.Errorf("value: unknown variant %T", v)
	}
	return nil
}

// writeCanonicalString emits an NFC-normalized JSON string without HTML
// escaping. Only control characters, backslash, and quote are escaped.
func writeCanonicalString(buf *bytes.Buffer, s string) error {
	normalized := norm.NFC.String(s)

	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return err
	}
	out := tmp.Bytes()
	// json.Encoder appends a newline.
	if n := len(out); n > 0 && out[n-1] == '\n' {
		out = out[:n-1]
	}
	buf.Write(out)
	return nil
}

// UnmarshalCanonical parses the canonical encoding back into a Value.
// Round-trip property: UnmarshalCanonical(MarshalCanonical(v)) == v for
// every value whose Text contents are already NFC-normalized.
func UnmarshalCanonical(data []byte) (Value, error) {
	var raw struct {
		T string          `json:"t"`
		V json.RawMessage `json:"v"`
		D []int8          `json:"d"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("value: decode: %w", err)
	}

	switch raw.T {
	case "nothing":
		return Nothing{}, nil
	case "bool":
		var b bool
		if err := json.Unmarshal(raw.V, &b); err != nil {
			return nil, fmt.Errorf("value: bool: %w", err)
		}
		return Bool(b), nil
	case "num":
		n, err := rawInt64(raw.V)
		if err != nil {
			return nil, fmt.Errorf("value: num: %w", err)
		}
		return Number{F: fixed.Raw(n)}, nil
	case "unit":
		n, err := rawInt64(raw.V)
		if err != nil {
			return nil, fmt.Errorf("value: unit: %w", err)
		}
		var dim units.Dim
		if len(raw.D) != len(dim) {
			return nil, fmt.Errorf("value: unit dimension has %d exponents, want %d", len(raw.D), len(dim))
		}
		copy(dim[:], raw.D)
		return Unit{F: fixed.Raw(n), Dim: dim}, nil
	case "text":
		var s string
		if err := json.Unmarshal(raw.V, &s); err != nil {
			return nil, fmt.Errorf("value: text: %w", err)
		}
		return Text(s), nil
	case "atom":
		var s string
		if err := json.Unmarshal(raw.V, &s); err != nil {
			return nil, fmt.Errorf("value: atom: %w", err)
		}
		return Atom(s), nil
	case "handle":
		var s string
		if err := json.Unmarshal(raw.V, &s); err != nil {
			return nil, fmt.Errorf("value: handle: %w", err)
		}
		return Handle(s), nil
	case "list":
		var elems []json.RawMessage
		if err := json.Unmarshal(raw.V, &elems); err != nil {
			return nil, fmt.Errorf("value: list: %w", err)
		}
		out := make(List, len(elems))
		for i, e := range elems {
			v, err := UnmarshalCanonical(e)
			if err != nil {
				return nil, fmt.Errorf("value: list[%d]: %w", i, err)
			}
			out[i] = v
		}
		return out, nil
	case "pairs":
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw.V, &fields); err != nil {
			return nil, fmt.Errorf("value: pairs: %w", err)
		}
		out := make(Pairs, len(fields))
		for k, e := range fields {
			v, err := UnmarshalCanonical(e)
			if err != nil {
				return nil, fmt.Errorf("value: pairs[%q]: %w", k, err)
			}
			out[k] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("value: unknown tag %q", raw.T)
	}
}

// rawInt64 parses a JSON number as int64, rejecting floats. The
// canonical stream never contains a fraction or exponent.
func rawInt64(data []byte) (int64, error) {
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return 0, err
	}
	i, err := n.Int64()
	if err != nil {
		return 0, fmt.Errorf("non-integer %q in canonical stream", n)
	}
	return i, nil
}
