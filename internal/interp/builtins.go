package interp

import (
	"math"

	"github.com/lockstep-sim/lockstep/internal/builtin"
	"github.com/lockstep-sim/lockstep/internal/fixed"
	"github.com/lockstep-sim/lockstep/internal/parser"
	"github.com/lockstep-sim/lockstep/internal/units"
	"github.com/lockstep-sim/lockstep/internal/value"
	"github.com/lockstep-sim/lockstep/internal/world"
)

// evalCall binds a call's pins against the builtin table, checks pin
// kinds statically, and dispatches on the ID. Pin expressions evaluate
// in table declaration order regardless of how the call spells them,
// so evaluation order is a property of the builtin, not the call site.
func (r *run) evalCall(ex *parser.Call) (value.Value, *fault) {
	spec := builtin.Lookup(ex.ID)

	if spec.Impure && r.inContract {
		return nil, newFault(world.SignalContractRandomness, ex.Span,
			"%s() reads input or randomness and cannot appear in a contract guard", spec.Name)
	}

	args := make([]value.Value, len(spec.Pins))
	for i, pin := range spec.Pins {
		var bound parser.Expr
		for _, a := range ex.Args {
			if a.Pin == pin.Name {
				bound = a.Expr
				break
			}
		}
		if bound == nil {
			return nil, typeMismatch(ex.Span, "%s() missing pin %q", spec.Name, pin.Name)
		}
		v, flt := r.eval(bound)
		if flt != nil {
			return nil, flt
		}
		if !pinAccepts(pin.Kind, v) {
			return nil, typeMismatch(bound.ExprSpan(), "%s() pin %q wants %s, got %s",
				spec.Name, pin.Name, pin.Kind, v.Kind())
		}
		args[i] = v
	}

	return r.dispatch(ex, spec, args)
}

func pinAccepts(k builtin.PinKind, v value.Value) bool {
	switch k {
	case builtin.Any:
		return true
	case builtin.NumberPin:
		_, ok := v.(value.Number)
		return ok
	case builtin.Numeric:
		switch v.(type) {
		case value.Number, value.Unit:
			return true
		}
		return false
	case builtin.TextPin:
		_, ok := v.(value.Text)
		return ok
	case builtin.BoolPin:
		_, ok := v.(value.Bool)
		return ok
	case builtin.ListPin:
		_, ok := v.(value.List)
		return ok
	case builtin.PairsPin:
		_, ok := v.(value.Pairs)
		return ok
	case builtin.HandlePin:
		_, ok := v.(value.Handle)
		return ok
	case builtin.AtomPin:
		_, ok := v.(value.Atom)
		return ok
	}
	return false
}

func (r *run) dispatch(ex *parser.Call, spec *builtin.Spec, args []value.Value) (value.Value, *fault) {
	switch ex.ID {
	case builtin.At:
		return builtinAt(ex, args)
	case builtin.Len:
		return builtinLen(ex, args)
	case builtin.Push:
		list := args[0].(value.List)
		out := make(value.List, len(list), len(list)+1)
		copy(out, list)
		return append(out, args[1]), nil
	case builtin.Keys:
		keys := args[0].(value.Pairs).SortedKeys()
		out := make(value.List, len(keys))
		for i, k := range keys {
			out[i] = value.Text(k)
		}
		return out, nil

	case builtin.Abs:
		f, dim, _ := numeric(args[0])
		af, err := f.Abs()
		if err != nil {
			return nil, arithmeticFault(ex.Span, "abs overflow")
		}
		return numberOrUnit(af, dim), nil
	case builtin.Min, builtin.Max:
		return builtinMinMax(ex, args)
	case builtin.Floor:
		f, dim, _ := numeric(args[0])
		return numberOrUnit(f.Floor(), dim), nil
	case builtin.Clamp:
		return builtinClamp(ex, args)

	case builtin.Rand:
		return value.Number{F: fixed.Raw(int64(r.rng.next() % fixed.Scale))}, nil
	case builtin.RandRange:
		return r.builtinRandRange(ex, args)

	case builtin.KeyDown:
		return value.Bool(r.snap.KeyDown(string(args[0].(value.Text)))), nil
	case builtin.KeyName:
		return value.Text(r.snap.LastKey), nil
	case builtin.PointerX:
		return value.Number{F: r.snap.PointerX}, nil
	case builtin.PointerY:
		return value.Number{F: r.snap.PointerY}, nil

	case builtin.NetEvents:
		out := make(value.List, len(r.snap.NetEvents))
		for i, ev := range r.snap.NetEvents {
			seq, err := fixed.FromInt(ev.Seq)
			if err != nil {
				return nil, arithmeticFault(ex.Span, "event sequence number %d out of range", ev.Seq)
			}
			payload := ev.Payload
			if payload == nil {
				payload = value.Pairs{}
			}
			out[i] = value.Pairs{
				"sender":  value.Text(ev.Sender),
				"seq":     value.Number{F: seq},
				"payload": payload,
			}
		}
		return out, nil
	case builtin.NetSender:
		sender, ok := args[0].(value.Pairs)["sender"].(value.Text)
		if !ok {
			return nil, typeMismatch(ex.Span, "net_sender() pin \"event\" has no text sender")
		}
		return sender, nil
	case builtin.NetPayload:
		payload, ok := args[0].(value.Pairs)["payload"].(value.Pairs)
		if !ok {
			return nil, typeMismatch(ex.Span, "net_payload() pin \"event\" has no pairs payload")
		}
		return payload, nil

	case builtin.Spawn:
		return r.builtinSpawn(ex)
	case builtin.SetPart:
		entity, tag := args[0].(value.Handle), string(args[1].(value.Atom))
		key := componentKey{entity: entity, tag: tag}
		delete(r.removed, key)
		r.components[key] = args[2]
		r.patches = append(r.patches, world.SetComponent(entity, tag, args[2]))
		return value.Nothing{}, nil
	case builtin.DropPart:
		entity, tag := args[0].(value.Handle), string(args[1].(value.Atom))
		key := componentKey{entity: entity, tag: tag}
		delete(r.components, key)
		r.removed[key] = true
		r.patches = append(r.patches, world.RemoveComponent(entity, tag))
		return value.Nothing{}, nil
	case builtin.Part:
		v, ok := r.readComponent(args[0].(value.Handle), string(args[1].(value.Atom)))
		if !ok {
			return value.Nothing{}, nil
		}
		return v, nil
	case builtin.HasPart:
		_, ok := r.readComponent(args[0].(value.Handle), string(args[1].(value.Atom)))
		return value.Bool(ok), nil

	case builtin.Emit:
		payload := value.Pairs{
			"kind": args[0],
			"data": args[1],
		}
		sig, err := world.NewSignal(world.SignalEmitted, payload, string(args[0].(value.Atom)), ex.Span)
		if err != nil {
			// Payload is built from sealed value types; hashing it
			// cannot fail.
			panic(err)
		}
		r.patches = append(r.patches, world.EmitSignal(sig))
		return value.Nothing{}, nil

	case builtin.Text:
		return value.Text(value.Render(args[0])), nil
	case builtin.Magnitude:
		f, _, _ := numeric(args[0])
		return value.Number{F: f}, nil
	case builtin.UnitOf:
		_, dim, _ := numeric(args[0])
		if dim.IsScalar() {
			return value.Atom("scalar"), nil
		}
		if u, ok := r.in.reg.CanonicalUnit(dim); ok {
			return value.Atom(u.Name), nil
		}
		return value.Text(dim.String()), nil

	default:
		return nil, typeMismatch(ex.Span, "unknown builtin %q", spec.Name)
	}
}

func builtinAt(ex *parser.Call, args []value.Value) (value.Value, *fault) {
	list := args[0].(value.List)
	idx, ok := wholeNumber(args[1])
	if !ok {
		return nil, typeMismatch(ex.Span, "at() index must be a whole number, got %s", value.Render(args[1]))
	}
	if idx < 0 || idx >= int64(len(list)) {
		return nil, typeMismatch(ex.Span, "at() index %d out of range for list of %d", idx, len(list))
	}
	return list[idx], nil
}

func builtinLen(ex *parser.Call, args []value.Value) (value.Value, *fault) {
	var n int64
	switch v := args[0].(type) {
	case value.List:
		n = int64(len(v))
	case value.Pairs:
		n = int64(len(v))
	case value.Text:
		n = int64(len([]rune(string(v))))
	default:
		return nil, typeMismatch(ex.Span, "len() applies to list, pairs, or text, got %s", args[0].Kind())
	}
	f, err := fixed.FromInt(n)
	if err != nil {
		return nil, arithmeticFault(ex.Span, "len overflow")
	}
	return value.Number{F: f}, nil
}

func builtinMinMax(ex *parser.Call, args []value.Value) (value.Value, *fault) {
	af, ad, _ := numeric(args[0])
	bf, bd, _ := numeric(args[1])
	if ad != bd {
		return nil, dimensionFault(ex.Span, "cannot order %s against %s", ad, bd)
	}
	pickA := af.Cmp(bf) <= 0
	if ex.ID == builtin.Max {
		pickA = !pickA
	}
	if pickA {
		return numberOrUnit(af, ad), nil
	}
	return numberOrUnit(bf, ad), nil
}

func builtinClamp(ex *parser.Call, args []value.Value) (value.Value, *fault) {
	f, dim, _ := numeric(args[0])
	lo, loDim, _ := numeric(args[1])
	hi, hiDim, _ := numeric(args[2])
	if dim != loDim || dim != hiDim {
		return nil, dimensionFault(ex.Span, "clamp bounds must share the value's dimension %s", dim)
	}
	if lo.Cmp(hi) > 0 {
		return nil, typeMismatch(ex.Span, "clamp lower bound %s exceeds upper bound %s", lo, hi)
	}
	switch {
	case f.Cmp(lo) < 0:
		f = lo
	case f.Cmp(hi) > 0:
		f = hi
	}
	return numberOrUnit(f, dim), nil
}

// builtinRandRange draws uniformly from [lo, hi) in fixed-point steps.
func (r *run) builtinRandRange(ex *parser.Call, args []value.Value) (value.Value, *fault) {
	lo := args[0].(value.Number).F
	hi := args[1].(value.Number).F
	if lo.Cmp(hi) >= 0 {
		return nil, typeMismatch(ex.Span, "rand_range() wants lo < hi, got [%s, %s)", lo, hi)
	}
	span, err := hi.Sub(lo)
	if err != nil {
		return nil, arithmeticFault(ex.Span, "rand_range span overflow")
	}
	draw := int64(r.rng.next() % uint64(span.Raw()))
	out, err := lo.Add(fixed.Raw(draw))
	if err != nil {
		return nil, arithmeticFault(ex.Span, "rand_range overflow")
	}
	return value.Number{F: out}, nil
}

// builtinSpawn mints the next entity handle. The counter lives in a
// reserved resource slot so spawn ids are hashed visible state, not a
// side channel replay could miss.
func (r *run) builtinSpawn(ex *parser.Call) (value.Value, *fault) {
	seq, ok := wholeNumber(r.readResource(world.EntitySeqResource))
	if !ok || seq < 0 {
		return nil, typeMismatch(ex.Span, "spawn counter resource $%s is corrupted", world.EntitySeqResource)
	}
	if seq == math.MaxInt64/fixed.Scale {
		return nil, arithmeticFault(ex.Span, "spawn counter exhausted")
	}
	handle := world.EntityID(seq)
	next := value.Number{F: fixed.MustInt(seq + 1)}
	r.resources[world.EntitySeqResource] = next
	r.patches = append(r.patches, world.SetResource(world.EntitySeqResource, next))
	return handle, nil
}

// numberOrUnit wraps a magnitude in the right value variant for its
// dimension.
func numberOrUnit(f fixed.F64, dim units.Dim) value.Value {
	if dim.IsScalar() {
		return value.Number{F: f}
	}
	return value.Unit{F: f, Dim: dim}
}
