package interp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockstep-sim/lockstep/internal/fixed"
	"github.com/lockstep-sim/lockstep/internal/parser"
	"github.com/lockstep-sim/lockstep/internal/snapshot"
	"github.com/lockstep-sim/lockstep/internal/units"
	"github.com/lockstep-sim/lockstep/internal/value"
	"github.com/lockstep-sim/lockstep/internal/world"
)

func runProgram(t *testing.T, src string, w *world.World, snap snapshot.Snapshot) TickResult {
	t.Helper()
	reg := units.MustLoad()
	prog, err := parser.ParseText(src, reg)
	require.NoError(t, err)
	res, err := New(reg).Tick(prog, w, snap)
	require.NoError(t, err)
	return res
}

func commit(t *testing.T, w *world.World, res TickResult) *world.World {
	t.Helper()
	next, _, err := world.Commit(w, res.Patches)
	require.NoError(t, err)
	return next
}

func TestCounterIncrement(t *testing.T) {
	w := world.New()
	hashes := make(map[string]bool)
	for tick := 0; tick < 5; tick++ {
		res := runProgram(t, "$count <- $count + 1.", w, snapshot.Empty(7))
		require.Empty(t, res.Faults)
		w = commit(t, w, res)

		h, err := world.StateHash(w)
		require.NoError(t, err)
		assert.False(t, hashes[h], "tick %d repeated an earlier state hash", tick)
		hashes[h] = true
	}
	v, ok := w.Resource("count")
	require.True(t, ok)
	assert.Equal(t, value.NumInt(5), v)
}

func TestDimensionFaultVoidsAssignment(t *testing.T) {
	w := world.New()
	res := runProgram(t, "$x <- 5.\n$x <- 1@meters + 1@seconds.", w, snapshot.Empty(0))

	require.Len(t, res.Faults, 1)
	assert.Equal(t, world.SignalDimensionFault, res.Faults[0].Kind)

	w = commit(t, w, res)
	v, ok := w.Resource("x")
	require.True(t, ok)
	assert.Equal(t, value.NumInt(5), v, "faulted assignment must keep the prior value")
}

func TestUnitArithmetic(t *testing.T) {
	w := world.New()
	src := `$d <- 2@kilometers + 500@meters.
$speed <- $d / 10@seconds.
$area <- 3@meters * 2@meters.
$ratio <- 4@meters / 2@meters.`
	res := runProgram(t, src, w, snapshot.Empty(0))
	require.Empty(t, res.Faults)
	w = commit(t, w, res)

	d, _ := w.Resource("d")
	require.IsType(t, value.Unit{}, d)
	assert.Equal(t, fixed.MustInt(2500), d.(value.Unit).F)

	speed, _ := w.Resource("speed")
	require.IsType(t, value.Unit{}, speed)
	assert.Equal(t, fixed.MustInt(250), speed.(value.Unit).F)

	ratio, _ := w.Resource("ratio")
	assert.Equal(t, value.NumInt(2), ratio, "same-dimension quotient collapses to a plain number")
}

func TestDivisionByZeroFault(t *testing.T) {
	w := world.New()
	res := runProgram(t, "$x <- 1.\n$x <- 1 / 0.", w, snapshot.Empty(0))
	require.Len(t, res.Faults, 1)
	assert.Equal(t, world.SignalArithmeticFault, res.Faults[0].Kind)

	w = commit(t, w, res)
	v, _ := w.Resource("x")
	assert.Equal(t, value.NumInt(1), v)
}

func TestWhenOtherwise(t *testing.T) {
	w := world.New()
	src := `when 2 > 1 {
  $a <- 10.
} otherwise {
  $a <- 20.
}
when no {
  $b <- 1.
} otherwise {
  $b <- 2.
}`
	res := runProgram(t, src, w, snapshot.Empty(0))
	require.Empty(t, res.Faults)
	w = commit(t, w, res)

	a, _ := w.Resource("a")
	assert.Equal(t, value.NumInt(10), a)
	b, _ := w.Resource("b")
	assert.Equal(t, value.NumInt(2), b)
}

func TestRepeat(t *testing.T) {
	w := world.New()
	res := runProgram(t, "repeat 4 {\n  $n <- $n + 1.\n}", w, snapshot.Empty(0))
	require.Empty(t, res.Faults)
	w = commit(t, w, res)

	n, _ := w.Resource("n")
	assert.Equal(t, value.NumInt(4), n)
}

func TestRepeatRejectsFractionalCount(t *testing.T) {
	w := world.New()
	res := runProgram(t, "repeat 1.5 {\n  $n <- 1.\n}", w, snapshot.Empty(0))
	require.Len(t, res.Faults, 1)
	assert.Equal(t, world.SignalTypeMismatch, res.Faults[0].Kind)
	assert.Empty(t, res.Patches)
}

func TestStepBudget(t *testing.T) {
	reg := units.MustLoad()
	prog, err := parser.ParseText("repeat 1000 {\n  $n <- $n + 1.\n}", reg)
	require.NoError(t, err)

	_, err = New(reg, WithMaxSteps(100)).Tick(prog, world.New(), snapshot.Empty(0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step budget")
}

func TestContractNotifyContinues(t *testing.T) {
	w := world.New()
	src := `expect 1 > 2 notify "ordering broke".
$after <- 1.`
	res := runProgram(t, src, w, snapshot.Empty(0))

	require.Len(t, res.Faults, 1)
	assert.Equal(t, world.SignalContractViolation, res.Faults[0].Kind)

	w = commit(t, w, res)
	after, ok := w.Resource("after")
	require.True(t, ok, "notify mode must not block later statements")
	assert.Equal(t, value.NumInt(1), after)
}

func TestContractEnforceBlocksBlockRemainder(t *testing.T) {
	w := world.New()
	src := `$before <- 1.
when yes {
  expect 1 > 2 enforce "ordering broke".
  $inside <- 1.
}
$after <- 1.`
	res := runProgram(t, src, w, snapshot.Empty(0))
	require.Len(t, res.Faults, 1)

	w = commit(t, w, res)
	_, inside := w.Resource("inside")
	assert.False(t, inside, "enforce mode withholds the rest of the enclosing block")
	_, after := w.Resource("after")
	assert.True(t, after, "enforce mode does not leak past the enclosing block")
}

func TestContractEnforceAtTopLevelBlocksProgramRemainder(t *testing.T) {
	w := world.New()
	src := `expect 1 > 2 enforce "ordering broke".
$after <- 1.`
	res := runProgram(t, src, w, snapshot.Empty(0))
	require.Len(t, res.Faults, 1)

	w = commit(t, w, res)
	_, after := w.Resource("after")
	assert.False(t, after, "a top-level enforce withholds the rest of the program")
}

func TestContractEnforceDoesNotLeakThroughNestedBlocks(t *testing.T) {
	w := world.New()
	src := `when yes {
  when yes {
    expect 1 > 2 enforce "ordering broke".
    $deep <- 1.
  }
  $middle <- 1.
}
$outer <- 1.`
	res := runProgram(t, src, w, snapshot.Empty(0))
	require.Len(t, res.Faults, 1)

	w = commit(t, w, res)
	_, deep := w.Resource("deep")
	assert.False(t, deep, "the violated block itself stops")
	_, middle := w.Resource("middle")
	assert.True(t, middle, "the enclosing when continues")
	_, outer := w.Resource("outer")
	assert.True(t, outer, "top-level statements after the when continue")
}

func TestContractEnforceInsideRepeatStopsLoopOnly(t *testing.T) {
	w := world.New()
	src := `repeat 3 {
  $n <- $n + 1.
  expect $n < 2 enforce "overran".
  $body <- $n.
}
$after <- 1.`
	res := runProgram(t, src, w, snapshot.Empty(0))
	require.Len(t, res.Faults, 1, "the contract fires once, not per remaining iteration")

	w = commit(t, w, res)
	n, _ := w.Resource("n")
	assert.Equal(t, value.NumInt(2), n, "the loop stops after the violating iteration")
	body, ok := w.Resource("body")
	require.True(t, ok)
	assert.Equal(t, value.NumInt(1), body, "only the clean iteration reached the body tail")
	_, after := w.Resource("after")
	assert.True(t, after, "statements after the repeat still run")
}

func TestRandomnessForbiddenInContractGuard(t *testing.T) {
	w := world.New()
	res := runProgram(t, `expect rand() < 2 notify "never".`, w, snapshot.Empty(1))
	require.Len(t, res.Faults, 1)
	assert.Equal(t, world.SignalContractRandomness, res.Faults[0].Kind)
	assert.Zero(t, res.Draws, "rejected draw must not advance the counter")
}

func TestRandDeterministicPerSeed(t *testing.T) {
	src := "$a <- rand().\n$b <- rand_range(lo: 10, hi: 20)."

	run := func(seed uint64) (value.Value, value.Value) {
		w := commit(t, world.New(), runProgram(t, src, world.New(), snapshot.Empty(seed)))
		a, _ := w.Resource("a")
		b, _ := w.Resource("b")
		return a, b
	}

	a1, b1 := run(42)
	a2, b2 := run(42)
	assert.Equal(t, a1, a2)
	assert.Equal(t, b1, b2)

	b := b1.(value.Number).F
	assert.True(t, b.Cmp(fixed.MustInt(10)) >= 0 && b.Cmp(fixed.MustInt(20)) < 0)
}

func TestSpawnAndParts(t *testing.T) {
	w := world.New()
	src := `$ball <- spawn().
set_part(on: $ball, tag: :pos, value: 3@meters).
$where <- part(on: $ball, tag: :pos).
$there <- has_part(on: $ball, tag: :pos).
drop_part(on: $ball, tag: :pos).
$gone <- has_part(on: $ball, tag: :pos).`
	res := runProgram(t, src, w, snapshot.Empty(0))
	require.Empty(t, res.Faults)
	w = commit(t, w, res)

	ball, _ := w.Resource("ball")
	assert.Equal(t, value.Handle("e1"), ball)

	where, _ := w.Resource("where")
	assert.Equal(t, value.Unit{F: fixed.MustInt(3), Dim: units.Dim{1}}, where)

	there, _ := w.Resource("there")
	assert.Equal(t, value.Bool(true), there)
	gone, _ := w.Resource("gone")
	assert.Equal(t, value.Bool(false), gone, "drop must be visible to later reads in the same tick")

	seq, _ := w.Resource(world.EntitySeqResource)
	assert.Equal(t, value.NumInt(1), seq)
}

func TestSpawnIDsAdvanceAcrossTicks(t *testing.T) {
	w := world.New()
	w = commit(t, w, runProgram(t, "$a <- spawn().", w, snapshot.Empty(0)))
	w = commit(t, w, runProgram(t, "$b <- spawn().", w, snapshot.Empty(0)))

	a, _ := w.Resource("a")
	b, _ := w.Resource("b")
	assert.Equal(t, value.Handle("e1"), a)
	assert.Equal(t, value.Handle("e2"), b)
}

func TestEmitSignal(t *testing.T) {
	w := world.New()
	res := runProgram(t, `emit(kind: :scored, payload: {points: 3}).`, w, snapshot.Empty(0))
	require.Empty(t, res.Faults)

	w, emitted, err := world.Commit(w, res.Patches)
	require.NoError(t, err)
	require.Len(t, emitted, 1)
	assert.Equal(t, world.SignalEmitted, emitted[0].Kind)
	assert.Len(t, w.Signals(), 1)
}

func TestSnapshotReaders(t *testing.T) {
	snap := snapshot.Snapshot{
		LastKey:  "space",
		PointerX: fixed.MustInt(100),
		PointerY: fixed.MustInt(50),
	}
	bit, ok := snapshot.KeyBit("space")
	require.True(t, ok)
	snap.KeyMask = 1 << bit

	src := `$held <- key_down(key: "space").
$name <- key_name().
$x <- pointer_x().
$y <- pointer_y().`
	w := commit(t, world.New(), runProgram(t, src, world.New(), snap))

	held, _ := w.Resource("held")
	assert.Equal(t, value.Bool(true), held)
	name, _ := w.Resource("name")
	assert.Equal(t, value.Text("space"), name)
	x, _ := w.Resource("x")
	assert.Equal(t, value.NumInt(100), x)
	y, _ := w.Resource("y")
	assert.Equal(t, value.NumInt(50), y)
}

func TestNetEventBuiltins(t *testing.T) {
	snap := snapshot.Empty(0)
	snap.NetEvents = []snapshot.NetEvent{
		{Sender: "p2", Seq: 1, Payload: value.Pairs{"move": value.Text("up")}},
	}
	src := `$events <- net_events().
$who <- net_sender(event: $events[0]).
$what <- net_payload(event: $events[0]).`
	w := commit(t, world.New(), runProgram(t, src, world.New(), snap))

	who, _ := w.Resource("who")
	assert.Equal(t, value.Text("p2"), who)
	what, _ := w.Resource("what")
	assert.Equal(t, value.Pairs{"move": value.Text("up")}, what)
}

func TestListAndPairsBuiltins(t *testing.T) {
	src := `$xs <- push(onto: [1, 2], item: 3).
$first <- $xs[0].
$n <- len(of: $xs).
$ks <- keys(of: {b: 1, a: 2}).`
	w := commit(t, world.New(), runProgram(t, src, world.New(), snapshot.Empty(0)))

	xs, _ := w.Resource("xs")
	require.Len(t, xs, 3)
	first, _ := w.Resource("first")
	assert.Equal(t, value.NumInt(1), first)
	n, _ := w.Resource("n")
	assert.Equal(t, value.NumInt(3), n)
	ks, _ := w.Resource("ks")
	assert.Equal(t, value.List{value.Text("a"), value.Text("b")}, ks)
}

func TestIndexOutOfRangeFault(t *testing.T) {
	w := world.New()
	res := runProgram(t, "$x <- [1, 2][5].", w, snapshot.Empty(0))
	require.Len(t, res.Faults, 1)
	assert.Equal(t, world.SignalTypeMismatch, res.Faults[0].Kind)
}

func TestNumericHelpers(t *testing.T) {
	src := `$abs <- abs(of: 0 - 3).
$min <- min(a: 2, b: 5).
$max <- max(a: 2, b: 5).
$floor <- floor(of: 2.7).
$clamped <- clamp(of: 9, hi: 5, lo: 1).
$mag <- magnitude(of: 3@meters).
$unit <- unit_of(of: 3@meters).`
	w := commit(t, world.New(), runProgram(t, src, world.New(), snapshot.Empty(0)))

	for name, want := range map[string]value.Value{
		"abs":     value.NumInt(3),
		"min":     value.NumInt(2),
		"max":     value.NumInt(5),
		"floor":   value.NumInt(2),
		"clamped": value.NumInt(5),
		"mag":     value.NumInt(3),
		"unit":    value.Atom("meters"),
	} {
		got, ok := w.Resource(name)
		require.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}
}

func TestPinTypeMismatch(t *testing.T) {
	w := world.New()
	res := runProgram(t, `$x <- at(of: "nope", index: 0).`, w, snapshot.Empty(0))
	require.Len(t, res.Faults, 1)
	assert.Equal(t, world.SignalTypeMismatch, res.Faults[0].Kind)
	assert.Contains(t, res.Faults[0].Message, `pin "of"`)
}

func TestLocalsDoNotTouchWorld(t *testing.T) {
	w := world.New()
	res := runProgram(t, "x <- 5.\n$out <- x + 1.", w, snapshot.Empty(0))
	require.Empty(t, res.Faults)
	require.Len(t, res.Patches, 1)

	w = commit(t, w, res)
	out, _ := w.Resource("out")
	assert.Equal(t, value.NumInt(6), out)
	_, leaked := w.Resource("x")
	assert.False(t, leaked)
}

func TestUnknownLocalFaults(t *testing.T) {
	w := world.New()
	res := runProgram(t, "$x <- missing + 1.", w, snapshot.Empty(0))
	require.Len(t, res.Faults, 1)
	assert.Contains(t, res.Faults[0].Message, "unknown variable")
}
