package canon

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockstep-sim/lockstep/internal/parser"
	"github.com/lockstep-sim/lockstep/internal/units"
)

// normalize parses source text and renders its canonical form.
func normalize(t *testing.T, src string) string {
	t.Helper()
	prog, err := parser.ParseText(src, units.MustLoad())
	require.NoError(t, err)
	text, err := Normalize(prog, units.MustLoad())
	require.NoError(t, err)
	return text
}

// Each fixture exercises one sugar form or rendering rule. Golden
// files live in testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/canon -update
var fixtures = []struct {
	name string
	src  string
}{
	{
		name: "conditionals",
		src: `if $hp > 0 {
  $status <- :alive.
} else {
  $status <- :down.
}
`,
	},
	{
		name: "loops",
		src: `loop 3 times {
  $x +<- 1.
}
`,
	},
	{
		name: "contracts",
		src: `assert $hp >= 0.
expect $hp <= $cap enforce "hp above cap".
`,
	},
	{
		name: "indexing",
		src: `first <- $scores[0].
$tail <- $scores[len(of: $scores) - 1].
`,
	},
	{
		name: "compound-updates",
		src: `$score +<- 10.
$score *<- 2.
$hp -<- 1.
ratio /<- 3.
`,
	},
	{
		name: "containers",
		src:  `$cfg <- {speed: 2, bounds: [1, 2, 3], name: "demo", extra: {d: nothing, c: yes}}.` + "\n",
	},
	{
		name: "pipes",
		src: `$m <- 5 |> abs |> min(b: 2).
$c <- clamp(lo: 0, of: $x, hi: 9).
`,
	},
	{
		name: "unit-literals",
		src: `$d <- 2@kilometers + 500@meters.
$t <- 90@minutes.
$a <- 45@degrees.
`,
	},
	{
		name: "precedence",
		src: `$x <- (1 + 2) * 3 - (4 - 5).
$y <- -(1 + 2).
$z <- 1 + 2 + 3.
$b <- not ($p and $q) or $r.
`,
	},
	{
		name: "emphatic-mood",
		src: `$go <- yes!
emit(kind: :boom, payload: {power: 9})!
`,
	},
}

func TestNormalizeGolden(t *testing.T) {
	for _, fix := range fixtures {
		t.Run(fix.name, func(t *testing.T) {
			text := normalize(t, fix.src)
			g := goldie.New(t,
				goldie.WithFixtureDir("testdata/golden"),
				goldie.WithNameSuffix(".golden"),
			)
			g.Assert(t, fix.name, []byte(text))
		})
	}
}

// Canonical text is a fixed point: parsing the renderer's output and
// rendering again reproduces it byte for byte.
func TestNormalizeIdempotent(t *testing.T) {
	for _, fix := range fixtures {
		t.Run(fix.name, func(t *testing.T) {
			once := normalize(t, fix.src)
			twice := normalize(t, once)
			require.Equal(t, once, twice)
		})
	}
}

func TestDeprecatedSpellingsNoticed(t *testing.T) {
	reg := units.MustLoad()
	cases := []struct {
		src  string
		want []string
	}{
		{
			src:  "if $a > 0 {\n  x <- 1.\n} else {\n  x <- 2.\n}\n",
			want: []string{`"if"`, `"else"`},
		},
		{
			src:  "loop 2 times {\n  x <- 1.\n}\n",
			want: []string{`"loop ... times"`},
		},
		{
			src:  "assert $a > 0.\n",
			want: []string{`"assert"`},
		},
	}
	for _, tc := range cases {
		prog, err := parser.ParseText(tc.src, reg)
		require.NoError(t, err)
		require.Len(t, prog.Notices, len(tc.want))
		for i, frag := range tc.want {
			assert.Contains(t, prog.Notices[i].Message, "deprecated spelling")
			assert.Contains(t, prog.Notices[i].Message, frag)
		}
	}
}

func TestCanonicalTextCarriesNoNotices(t *testing.T) {
	reg := units.MustLoad()
	for _, fix := range fixtures {
		prog, err := parser.ParseText(normalize(t, fix.src), reg)
		require.NoError(t, err)
		assert.Empty(t, prog.Notices, "fixture %s", fix.name)
	}
}

func TestStringEscapes(t *testing.T) {
	src := "$msg <- \"line\\none\\ttab \\\"quoted\\\" back\\\\slash\\r\".\n"
	text := normalize(t, src)
	require.Equal(t, src, text)
}

func TestMoodRendersPlainParticle(t *testing.T) {
	text := normalize(t, "$go <- yes!\n")
	assert.True(t, strings.HasSuffix(text, ".\n"))
	assert.NotContains(t, text, "!")
}
