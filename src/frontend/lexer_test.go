// Tests the lexer by verifying that a sample Brix program is tokenized
// properly, and that the overlapping literal priorities resolve the way
// the language requires: imaginary before float before int, atom before
// colon, f-string bodies accepting arbitrary escapes.

package frontend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// expItem is one expected token: type and value.
type expItem struct {
	typ itemType
	val string
}

// helperTokens collects the token stream of src, failing the test on a
// lex error.
func helperTokens(t *testing.T, src string) []item {
	t.Helper()
	items := tokenize(src)
	last := items[len(items)-1]
	require.Equal(t, itemEOF, last.typ, "lex error: %s", last.val)
	return items[:len(items)-1]
}

// TestLexer verifies that a sample program scans into the expected token
// sequence.
func TestLexer(t *testing.T) {
	src := `// sample
var x := 10
const name = "hi\n"
for i in 1:3 {
    x += i ** 2
}
println(f"{x:.2f}", :ok, 2.0i)
`
	exp := []expItem{
		{VAR, "var"}, {IDENTIFIER, "x"}, {DECLARE, ":="}, {INTEGER, "10"},
		{CONST, "const"}, {IDENTIFIER, "name"}, {ASSIGN, "="}, {STRING, "hi\n"},
		{FOR, "for"}, {IDENTIFIER, "i"}, {IN, "in"}, {INTEGER, "1"}, {COLON, ":"}, {INTEGER, "3"}, {LBRACE, "{"},
		{IDENTIFIER, "x"}, {PLUSEQ, "+="}, {IDENTIFIER, "i"}, {POW, "**"}, {INTEGER, "2"},
		{RBRACE, "}"},
		{IDENTIFIER, "println"}, {LPAREN, "("}, {FSTRING, "{x:.2f}"}, {COMMA, ","},
		{ATOM, "ok"}, {COMMA, ","}, {IMAGINARY, "2.0i"}, {RPAREN, ")"},
	}

	toks := helperTokens(t, src)
	require.Equal(t, len(exp), len(toks))
	for i1, e1 := range exp {
		assert.Equal(t, e1.typ, toks[i1].typ, "token %d", i1+1)
		assert.Equal(t, e1.val, toks[i1].val, "token %d", i1+1)
	}
}

// TestLexerSpans verifies that token spans index the source bytes that
// produced them.
func TestLexerSpans(t *testing.T) {
	src := `var abc := 42`
	toks := helperTokens(t, src)
	require.Len(t, toks, 4)
	for _, e1 := range toks {
		assert.True(t, e1.span.Start >= 0 && e1.span.End <= len(src), "span in bounds: %v", e1.span)
		assert.True(t, e1.span.Start < e1.span.End, "span non-empty: %v", e1.span)
	}
	assert.Equal(t, "abc", src[toks[1].span.Start:toks[1].span.End])
	assert.Equal(t, "42", src[toks[3].span.Start:toks[3].span.End])
}

// TestLexerImaginaryPriority verifies that the imaginary suffix wins over
// identifier scanning, and that a suffix followed by further word
// characters is not a suffix.
func TestLexerImaginaryPriority(t *testing.T) {
	toks := helperTokens(t, "2.0i 3i 1e3i")
	require.Len(t, toks, 3)
	for i1, want := range []string{"2.0i", "3i", "1e3i"} {
		assert.Equal(t, IMAGINARY, toks[i1].typ)
		assert.Equal(t, want, toks[i1].val)
	}

	// 3im scans as the integer 3 followed by the keyword im.
	toks = helperTokens(t, "3im")
	require.Len(t, toks, 2)
	assert.Equal(t, INTEGER, toks[0].typ)
	assert.Equal(t, IM, toks[1].typ)
}

// TestLexerAtomPriority verifies that :name scans as one atom token while
// := and a bare colon survive.
func TestLexerAtomPriority(t *testing.T) {
	toks := helperTokens(t, ":ok := : :_tag")
	require.Len(t, toks, 4)
	assert.Equal(t, ATOM, toks[0].typ)
	assert.Equal(t, "ok", toks[0].val)
	assert.Equal(t, DECLARE, toks[1].typ)
	assert.Equal(t, COLON, toks[2].typ)
	assert.Equal(t, ATOM, toks[3].typ)
	assert.Equal(t, "_tag", toks[3].val)
}

// TestLexerStringEscapes verifies escape resolution in string literals,
// including the escaped quote, and that unknown escapes survive
// literally.
func TestLexerStringEscapes(t *testing.T) {
	toks := helperTokens(t, `"a\tb\"c\\" "\q"`)
	require.Len(t, toks, 2)
	assert.Equal(t, "a\tb\"c\\", toks[0].val)
	assert.Equal(t, `\q`, toks[1].val)
}

// TestLexerFString verifies that the f-string body scans raw with
// arbitrary escaped characters intact.
func TestLexerFString(t *testing.T) {
	toks := helperTokens(t, `f"x = \"{x}\"\n"`)
	require.Len(t, toks, 1)
	assert.Equal(t, FSTRING, toks[0].typ)
	assert.Equal(t, `x = \"{x}\"\n`, toks[0].val)
}

// TestLexerComments verifies that line comments vanish without swallowing
// the newline-separated tokens around them.
func TestLexerComments(t *testing.T) {
	toks := helperTokens(t, "1 // ignored\n2")
	require.Len(t, toks, 2)
	assert.Equal(t, "1", toks[0].val)
	assert.Equal(t, "2", toks[1].val)
}

// TestLexerError verifies that an unrecognised character produces an
// error item with the span of the offending byte.
func TestLexerError(t *testing.T) {
	items := tokenize("var x := 1 @")
	last := items[len(items)-1]
	require.Equal(t, itemError, last.typ)
	assert.Equal(t, "@", "var x := 1 @"[last.span.Start:last.span.End])
}

// TestLexerOperators verifies multi-character operator scanning.
func TestLexerOperators(t *testing.T) {
	src := "** ++ -- += -= *= /= == != <= >= && || -> .. ="
	exp := []itemType{POW, INC, DEC, PLUSEQ, MINUSEQ, STAREQ, SLASHEQ, EQ, NEQ, LEQ, GEQ, ANDAND, OROR, ARROW, DOTDOT, ASSIGN}
	toks := helperTokens(t, src)
	require.Equal(t, len(exp), len(toks))
	for i1, e1 := range exp {
		assert.Equal(t, e1, toks[i1].typ, "token %d", i1+1)
	}
}
