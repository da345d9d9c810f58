package world

import (
	"fmt"
	"slices"
	"strings"

	"github.com/lockstep-sim/lockstep/internal/source"
	"github.com/lockstep-sim/lockstep/internal/value"
)

// SignalKind classifies a signal. Runtime faults and program-emitted
// signals share the channel; the Code field carries the stable machine
// code for the diagnostics stream.
type SignalKind string

const (
	// SignalEmitted is a program-level emit() signal.
	SignalEmitted SignalKind = "emitted"
	// SignalTypeMismatch is a builtin arity or pin type fault.
	SignalTypeMismatch SignalKind = "type_mismatch"
	// SignalDimensionFault is arithmetic over incompatible dimensions.
	SignalDimensionFault SignalKind = "dimension_fault"
	// SignalArithmeticFault is overflow or division by zero.
	SignalArithmeticFault SignalKind = "arithmetic_fault"
	// SignalContractViolation is a failed expect guard.
	SignalContractViolation SignalKind = "contract_violation"
	// SignalContractRandomness is a randomness draw inside a contract
	// guard, which is forbidden.
	SignalContractRandomness SignalKind = "contract_randomness"
	// SignalDeprecation is a canonicalization deprecation notice.
	SignalDeprecation SignalKind = "deprecation"
)

// Machine codes for the diagnostics stream, one per signal kind.
var signalCodes = map[SignalKind]string{
	SignalEmitted:            "E_SIGNAL",
	SignalTypeMismatch:       "E_RUNTIME_TYPE_MISMATCH",
	SignalDimensionFault:     "E_DIMENSION_FAULT",
	SignalArithmeticFault:    "E_ARITHMETIC_FAULT",
	SignalContractViolation:  "E_CONTRACT_VIOLATION",
	SignalContractRandomness: "E_CONTRACT_RANDOMNESS",
	SignalDeprecation:        "E_DEPRECATED_FORM",
}

// Code returns the stable machine code for the kind.
func (k SignalKind) Code() string {
	if c, ok := signalCodes[k]; ok {
		return c
	}
	return "E_UNKNOWN"
}

// Signal is a structured, sortable diagnostic event. Signals are data,
// never unwinding exceptions: the tick that produced one completes.
type Signal struct {
	Kind    SignalKind
	Payload value.Value
	Message string
	Span    source.Span

	// payloadHash caches the canonical payload digest that forms the
	// second half of the sort key.
	payloadHash string
}

// NewSignal builds a signal, computing its payload hash eagerly so
// sorting never needs to handle a hashing error.
func NewSignal(kind SignalKind, payload value.Value, message string, span source.Span) (Signal, error) {
	if payload == nil {
		payload = value.Nothing{}
	}
	h, err := value.HashValue(value.DomainSignal, payload)
	if err != nil {
		return Signal{}, fmt.Errorf("world: hash signal payload: %w", err)
	}
	return Signal{Kind: kind, Payload: payload, Message: message, Span: span, payloadHash: h}, nil
}

// PayloadHash returns the canonical digest of the payload.
func (s Signal) PayloadHash() string { return s.payloadHash }

// String renders the signal for the diagnostics stream.
func (s Signal) String() string {
	if s.Span.IsZero() {
		return fmt.Sprintf("%s: %s", s.Kind.Code(), s.Message)
	}
	return fmt.Sprintf("%s at %s: %s", s.Kind.Code(), s.Span, s.Message)
}

// SortSignals orders signals by their stable sort key (kind, then
// payload hash). Two runs that emit the same signal set in different
// incidental order serialize identically after sorting.
func SortSignals(signals []Signal) {
	slices.SortStableFunc(signals, func(a, b Signal) int {
		if c := strings.Compare(string(a.Kind), string(b.Kind)); c != 0 {
			return c
		}
		return strings.Compare(a.payloadHash, b.payloadHash)
	})
}
