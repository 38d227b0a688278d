package diag

import (
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brix/src/ir"
)

// TestKindCodes verifies the E100-E105 code and exit-code mapping.
func TestKindCodes(t *testing.T) {
	cases := []struct {
		kind Kind
		code string
		exit int
	}{
		{General, "E100", 100},
		{LLVM, "E101", 101},
		{Type, "E102", 102},
		{Undefined, "E103", 103},
		{Invalid, "E104", 104},
		{Missing, "E105", 105},
		{Lex, "", 2},
		{Parse, "", 2},
	}
	for _, e1 := range cases {
		assert.Equal(t, e1.code, e1.kind.Code())
		assert.Equal(t, e1.exit, e1.kind.ExitCode())
	}
}

// TestErrorString verifies the rendered error line.
func TestErrorString(t *testing.T) {
	err := Undefinedf(ir.Span{Start: 0, End: 1}, "x")
	assert.Equal(t, `E103 UndefinedSymbol: undefined symbol "x"`, err.Error())

	perr := Parsef(ir.Span{}, "expected %s", "}")
	assert.Equal(t, "SyntaxError: expected }", perr.Error())
}

// TestLineCol verifies byte offset to line and column conversion.
func TestLineCol(t *testing.T) {
	src := "ab\ncde\nf"
	line, col := LineCol(src, 0)
	assert.Equal(t, 1, line)
	assert.Equal(t, 1, col)

	line, col = LineCol(src, 4)
	assert.Equal(t, 2, line)
	assert.Equal(t, 2, col)

	line, col = LineCol(src, 7)
	assert.Equal(t, 3, line)
	assert.Equal(t, 1, col)
}

// TestRender verifies the contextual source report: header, source line,
// caret underline and position trailer.
func TestRender(t *testing.T) {
	defer func(old bool) { color.NoColor = old }(color.NoColor)
	color.NoColor = true

	src := "var x := 10\nprintln(undefined_x)\n"
	off := strings.Index(src, "undefined_x")
	err := Undefinedf(ir.Span{Start: off, End: off + len("undefined_x")}, "undefined_x")

	sb := &strings.Builder{}
	Render(sb, src, "test.bx", err)
	out := sb.String()

	assert.Contains(t, out, "error[E103] UndefinedSymbol")
	assert.Contains(t, out, "println(undefined_x)")
	assert.Contains(t, out, strings.Repeat("^", len("undefined_x")))
	assert.Contains(t, out, "test.bx:2:9")
}

// TestRenderTypeError verifies the actual/expected message shape.
func TestRenderTypeError(t *testing.T) {
	defer func(old bool) { color.NoColor = old }(color.NoColor)
	color.NoColor = true

	err := Typef(ir.Span{Start: 0, End: 3}, "string", "int")
	require.Equal(t, Type, err.Kind)
	assert.Contains(t, err.Error(), "expected int, got string")
}

// TestWarn verifies the warning renderer.
func TestWarn(t *testing.T) {
	defer func(old bool) { color.NoColor = old }(color.NoColor)
	color.NoColor = true

	sb := &strings.Builder{}
	Warnf(sb, "match x { 1 -> 2 }", "test.bx", ir.Span{Start: 0, End: 5}, "match has no wildcard arm")
	out := sb.String()
	assert.Contains(t, out, "warning")
	assert.Contains(t, out, "match has no wildcard arm")
	assert.Contains(t, out, "^^^^^")
}
