package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockstep-sim/lockstep/internal/units"
)

type kt struct {
	kind Kind
	text string
}

// lex tokenizes against the embedded unit registry and strips the
// trailing EOF token.
func lex(t *testing.T, src string) []Token {
	t.Helper()
	toks, err := Tokenize(src, units.MustLoad())
	require.NoError(t, err)
	require.NotEmpty(t, toks)
	require.Equal(t, EOF, toks[len(toks)-1].Kind)
	return toks[:len(toks)-1]
}

func assertTokens(t *testing.T, src string, want []kt) {
	t.Helper()
	toks := lex(t, src)
	require.Len(t, toks, len(want), "source %q", src)
	for i, w := range want {
		assert.Equal(t, w.kind, toks[i].Kind, "token %d of %q", i, src)
		assert.Equal(t, w.text, toks[i].Text, "token %d of %q", i, src)
	}
}

func TestAssignmentTokens(t *testing.T) {
	assertTokens(t, "$hp <- 10.", []kt{
		{Resource, "hp"}, {Assign, "<-"}, {Number, "10"}, {Terminator, "."},
	})
}

func TestCompoundArrows(t *testing.T) {
	assertTokens(t, "$x +<- 1. $x -<- 1. $x *<- 2. $x /<- 2.", []kt{
		{Resource, "x"}, {PlusAssign, "+<-"}, {Number, "1"}, {Terminator, "."},
		{Resource, "x"}, {MinusAssign, "-<-"}, {Number, "1"}, {Terminator, "."},
		{Resource, "x"}, {StarAssign, "*<-"}, {Number, "2"}, {Terminator, "."},
		{Resource, "x"}, {SlashAssign, "/<-"}, {Number, "2"}, {Terminator, "."},
	})
}

// A '.' ends the statement unless a digit follows, so "1." is the
// number 1 plus the terminator while "1.5" is one literal.
func TestTerminatorVersusDecimalPoint(t *testing.T) {
	assertTokens(t, "x <- 1.5.", []kt{
		{Ident, "x"}, {Assign, "<-"}, {Number, "1.5"}, {Terminator, "."},
	})
	assertTokens(t, "x <- 1.", []kt{
		{Ident, "x"}, {Assign, "<-"}, {Number, "1"}, {Terminator, "."},
	})
}

func TestEmphaticTerminatorVersusNotEq(t *testing.T) {
	assertTokens(t, "go!", []kt{{Ident, "go"}, {Terminator, "!"}})
	assertTokens(t, "a != b", []kt{{Ident, "a"}, {NotEq, "!="}, {Ident, "b"}})
}

func TestUnitSuffixResolution(t *testing.T) {
	// Exact, unique prefix, and resolved text carries the full name.
	assertTokens(t, "2@meters 3@kilom 4@s 1@me", []kt{
		{Number, "2"}, {UnitName, "meters"},
		{Number, "3"}, {UnitName, "kilometers"},
		{Number, "4"}, {UnitName, "seconds"},
		{Number, "1"}, {UnitName, "meters"},
	})
}

func TestUnitSuffixErrors(t *testing.T) {
	_, err := Tokenize("1@k", units.MustLoad())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")
	assert.Contains(t, err.Error(), "E_LEX")

	// "m" reaches meters, minutes, mps, and mps2 at once.
	_, err = Tokenize("1@m", units.MustLoad())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")

	_, err = Tokenize("1@furl", units.MustLoad())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown unit")
}

func TestAtomsAndResources(t *testing.T) {
	assertTokens(t, ":alive $hit_points", []kt{
		{Atom, "alive"}, {Resource, "hit_points"},
	})

	_, err := Tokenize("$ x", units.MustLoad())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected resource name")
}

func TestKeywordsVersusIdents(t *testing.T) {
	toks := lex(t, "when otherwise repeat expect notify enforce and or not yes no nothing whenx")
	for _, tok := range toks[:len(toks)-1] {
		assert.Equal(t, Keyword, tok.Kind, tok.Text)
	}
	assert.Equal(t, Ident, toks[len(toks)-1].Kind)
	assert.Equal(t, "whenx", toks[len(toks)-1].Text)
}

func TestDeprecatedSpellingsStillLexAsKeywords(t *testing.T) {
	for _, kw := range []string{"if", "else", "assert", "loop", "times"} {
		toks := lex(t, kw)
		require.Len(t, toks, 1)
		assert.True(t, toks[0].Is(kw))
	}
}

func TestStringEscapes(t *testing.T) {
	toks := lex(t, `"a\nb\t\"c\"\\\r"`)
	require.Len(t, toks, 1)
	assert.Equal(t, String, toks[0].Kind)
	assert.Equal(t, "a\nb\t\"c\"\\\r", toks[0].Text)
}

func TestStringErrors(t *testing.T) {
	_, err := Tokenize(`"open`, units.MustLoad())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unterminated string")

	_, err = Tokenize("\"a\nb\"", units.MustLoad())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unterminated string")

	_, err = Tokenize(`"\q"`, units.MustLoad())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown escape`)
}

func TestComments(t *testing.T) {
	assertTokens(t, "x <- 1. // trailing note\n// full line\ny <- 2.", []kt{
		{Ident, "x"}, {Assign, "<-"}, {Number, "1"}, {Terminator, "."},
		{Ident, "y"}, {Assign, "<-"}, {Number, "2"}, {Terminator, "."},
	})
}

func TestOperators(t *testing.T) {
	assertTokens(t, "a == b != c < d <= e > f >= g + h - i * j / k |> m", []kt{
		{Ident, "a"}, {EqEq, "=="}, {Ident, "b"}, {NotEq, "!="}, {Ident, "c"},
		{Lt, "<"}, {Ident, "d"}, {Le, "<="}, {Ident, "e"},
		{Gt, ">"}, {Ident, "f"}, {Ge, ">="}, {Ident, "g"},
		{Plus, "+"}, {Ident, "h"}, {Minus, "-"}, {Ident, "i"},
		{Star, "*"}, {Ident, "j"}, {Slash, "/"}, {Ident, "k"},
		{Pipe, "|>"}, {Ident, "m"},
	})
}

func TestRejectedOperators(t *testing.T) {
	_, err := Tokenize("x = 1", units.MustLoad())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assignment is <-")

	_, err = Tokenize("x | y", units.MustLoad())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipe is |>")

	_, err = Tokenize("x # y", units.MustLoad())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected character")
}

func TestSpansTrackLinesAndColumns(t *testing.T) {
	toks := lex(t, "x <- 1.\ny <- 2.")
	require.GreaterOrEqual(t, len(toks), 5)
	assert.Equal(t, 1, toks[0].Span.Start.Line)
	y := toks[4]
	assert.Equal(t, "y", y.Text)
	assert.Equal(t, 2, y.Span.Start.Line)
	assert.Equal(t, 1, y.Span.Start.Col)
}
