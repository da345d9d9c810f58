package interp

import (
	"fmt"

	"github.com/lockstep-sim/lockstep/internal/source"
	"github.com/lockstep-sim/lockstep/internal/value"
	"github.com/lockstep-sim/lockstep/internal/world"
)

// fault is the outcome side of one evaluation step. Evaluation returns
// (value, *fault); a non-nil fault propagates to the statement level,
// where it voids the pending assignment, becomes a Signal, and
// execution moves to the next statement. The tick loop never unwinds
// on a fault.
type fault struct {
	kind    world.SignalKind
	message string
	span    source.Span
	payload value.Pairs
}

func newFault(kind world.SignalKind, span source.Span, format string, args ...any) *fault {
	return &fault{kind: kind, message: fmt.Sprintf(format, args...), span: span}
}

func typeMismatch(span source.Span, format string, args ...any) *fault {
	return newFault(world.SignalTypeMismatch, span, format, args...)
}

func dimensionFault(span source.Span, format string, args ...any) *fault {
	return newFault(world.SignalDimensionFault, span, format, args...)
}

func arithmeticFault(span source.Span, format string, args ...any) *fault {
	return newFault(world.SignalArithmeticFault, span, format, args...)
}

// signal converts the fault into its Signal form. The payload carries
// the machine code and span so the sort key distinguishes distinct
// fault sites deterministically.
func (f *fault) signal() world.Signal {
	payload := value.Pairs{
		"code":    value.Text(f.kind.Code()),
		"message": value.Text(f.message),
		"span":    value.Text(f.span.String()),
	}
	for k, v := range f.payload {
		payload[k] = v
	}
	sig, err := world.NewSignal(f.kind, payload, f.message, f.span)
	if err != nil {
		// The payload is built from sealed value types; hashing it
		// cannot fail.
		panic(err)
	}
	return sig
}
