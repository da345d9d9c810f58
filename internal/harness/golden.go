package harness

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Report renders the run as deterministic text for golden comparison.
// It intentionally omits state hashes: goldens should read as behavior
// (patches, signals, final state), and hash stability is covered by
// replay tests instead.
func (r *Result) Report() string {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n", r.Scenario.Name)
	for _, t := range r.Ticks {
		fmt.Fprintf(&b, "tick %d: patches=%d signals=%d", t.Tick, t.PatchCount, len(t.SignalKinds))
		if len(t.SignalKinds) > 0 {
			fmt.Fprintf(&b, " [%s]", strings.Join(t.SignalKinds, ", "))
		}
		b.WriteString("\n")
	}
	b.WriteString("final state:\n")
	b.WriteString(r.World.Dump())
	return b.String()
}

// RunWithGolden runs a scenario, checks its expectations, and compares
// the report against testdata/golden/<name>.golden. Regenerate with
// go test -update.
func RunWithGolden(t *testing.T, s *Scenario) {
	t.Helper()
	res, err := Run(context.Background(), s)
	if err != nil {
		t.Fatalf("scenario %q failed: %v", s.Name, err)
	}
	if err := res.Check(); err != nil {
		t.Fatal(err)
	}

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"))
	g.Assert(t, s.Name, []byte(res.Report()))
}
