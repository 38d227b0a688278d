package frontend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brix/src/ir"
)

// helperParse parses src, failing the test on any diagnostic.
func helperParse(t *testing.T, src string) *ir.Program {
	t.Helper()
	prog, err := Parse(src)
	require.Nil(t, err, "parse error: %v", err)
	return prog
}

// helperExpr parses src as a single expression statement.
func helperExpr(t *testing.T, src string) ir.Expr {
	t.Helper()
	prog := helperParse(t, src)
	require.Len(t, prog.Stmts, 1)
	es, ok := prog.Stmts[0].(*ir.ExprStmt)
	require.True(t, ok, "expected expression statement, got %T", prog.Stmts[0])
	return es.X
}

// TestParsePrecedence verifies that multiplicative binds tighter than
// additive: 1 + 2 * 3 parses as 1 + (2 * 3).
func TestParsePrecedence(t *testing.T) {
	e := helperExpr(t, "1 + 2 * 3")
	add, ok := e.(*ir.Binary)
	require.True(t, ok)
	assert.Equal(t, "+", add.Op)
	mul, ok := add.RHS.(*ir.Binary)
	require.True(t, ok)
	assert.Equal(t, "*", mul.Op)
}

// TestParsePowerRightAssoc verifies 2 ** 3 ** 2 parses as 2 ** (3 ** 2).
func TestParsePowerRightAssoc(t *testing.T) {
	e := helperExpr(t, "2 ** 3 ** 2")
	outer, ok := e.(*ir.Binary)
	require.True(t, ok)
	assert.Equal(t, "**", outer.Op)
	_, ok = outer.LHS.(*ir.IntLit)
	assert.True(t, ok)
	inner, ok := outer.RHS.(*ir.Binary)
	require.True(t, ok)
	assert.Equal(t, "**", inner.Op)
}

// TestParsePowerBindsOverUnary verifies -2 ** 2 parses as -(2 ** 2).
func TestParsePowerBindsOverUnary(t *testing.T) {
	e := helperExpr(t, "-2 ** 2")
	neg, ok := e.(*ir.Unary)
	require.True(t, ok)
	assert.Equal(t, "-", neg.Op)
	_, ok = neg.Operand.(*ir.Binary)
	assert.True(t, ok)
}

// TestParseChainedCmp verifies that three or more comparison terms
// collapse into a single ChainedCmp node while two terms stay a Binary.
func TestParseChainedCmp(t *testing.T) {
	e := helperExpr(t, "1 < 2 <= 3")
	cc, ok := e.(*ir.ChainedCmp)
	require.True(t, ok)
	assert.Len(t, cc.Terms, 3)
	assert.Equal(t, []string{"<", "<="}, cc.Ops)

	e = helperExpr(t, "1 < 2")
	_, ok = e.(*ir.Binary)
	assert.True(t, ok)
}

// TestParseTernary verifies right associativity of ?: and that the
// branches parse at logic-or level.
func TestParseTernary(t *testing.T) {
	e := helperExpr(t, "a ? 1 : b ? 2 : 3")
	outer, ok := e.(*ir.Ternary)
	require.True(t, ok)
	_, ok = outer.Else.(*ir.Ternary)
	assert.True(t, ok)
}

// TestParsePostfixChain verifies the left-to-right postfix chain:
// arr[0].rows parses as (arr[0]).rows.
func TestParsePostfixChain(t *testing.T) {
	e := helperExpr(t, "arr[0].rows")
	f, ok := e.(*ir.Field)
	require.True(t, ok)
	assert.Equal(t, "rows", f.Name)
	_, ok = f.Target.(*ir.Index)
	assert.True(t, ok)
}

// TestParseForRangeDesugar verifies that for i in 1:3 lowers to a block
// declaring the loop variable and a while loop with an inclusive bound.
func TestParseForRangeDesugar(t *testing.T) {
	prog := helperParse(t, "for i in 1:3 { println(i) }")
	require.Len(t, prog.Stmts, 1)
	blk, ok := prog.Stmts[0].(*ir.Block)
	require.True(t, ok, "for should desugar to a block, got %T", prog.Stmts[0])

	var loop *ir.While
	decls := 0
	for _, e1 := range blk.Stmts {
		switch s := e1.(type) {
		case *ir.VarDecl:
			decls++
		case *ir.While:
			loop = s
		}
	}
	require.NotNil(t, loop, "desugared for contains a while loop")
	assert.Equal(t, 2, decls, "loop variable and hoisted end bound")

	cond, ok := loop.Cond.(*ir.Binary)
	require.True(t, ok)
	assert.Equal(t, "<=", cond.Op, "range iteration is inclusive")

	// The body ends with the increment assignment.
	last := loop.Body.Stmts[len(loop.Body.Stmts)-1]
	inc, ok := last.(*ir.AssignStmt)
	require.True(t, ok)
	assert.Equal(t, "i", inc.Name)
}

// TestParseForStepDesugar verifies that the step of a stepped range is
// hoisted so it evaluates once.
func TestParseForStepDesugar(t *testing.T) {
	prog := helperParse(t, "for i in 0:2:10 { }")
	blk := prog.Stmts[0].(*ir.Block)
	decls := 0
	for _, e1 := range blk.Stmts {
		if _, ok := e1.(*ir.VarDecl); ok {
			decls++
		}
	}
	assert.Equal(t, 3, decls, "loop variable, end and step bindings")
}

// TestParseForPairDesugar verifies that for x, y in zip(a, b) lowers to a
// row-wise traversal binding both columns.
func TestParseForPairDesugar(t *testing.T) {
	prog := helperParse(t, "for x, y in zip(a, b) { println(x + y) }")
	blk, ok := prog.Stmts[0].(*ir.Block)
	require.True(t, ok)

	var loop *ir.While
	for _, e1 := range blk.Stmts {
		if w, ok := e1.(*ir.While); ok {
			loop = w
		}
	}
	require.NotNil(t, loop)

	// First two body statements bind x and y from columns 0 and 1.
	require.GreaterOrEqual(t, len(loop.Body.Stmts), 2)
	dx, ok := loop.Body.Stmts[0].(*ir.VarDecl)
	require.True(t, ok)
	assert.Equal(t, "x", dx.Name)
	ix, ok := dx.Init.(*ir.Index)
	require.True(t, ok)
	require.Len(t, ix.Indices, 2)

	dy, ok := loop.Body.Stmts[1].(*ir.VarDecl)
	require.True(t, ok)
	assert.Equal(t, "y", dy.Name)
}

// TestParseCompoundAssign verifies x += 1 desugars to x = x + 1.
func TestParseCompoundAssign(t *testing.T) {
	prog := helperParse(t, "x += 1")
	as, ok := prog.Stmts[0].(*ir.AssignStmt)
	require.True(t, ok)
	add, ok := as.Value.(*ir.Binary)
	require.True(t, ok)
	assert.Equal(t, "+", add.Op)
}

// TestParseIndexAssign verifies element assignment statements.
func TestParseIndexAssign(t *testing.T) {
	prog := helperParse(t, "m[1, 2] = 5")
	ia, ok := prog.Stmts[0].(*ir.IndexAssign)
	require.True(t, ok)
	assert.Len(t, ia.Indices, 2)
}

// TestParseMatch verifies match arms, or-patterns, guards and the
// wildcard.
func TestParseMatch(t *testing.T) {
	e := helperExpr(t, `match x { 1 | 2 -> "low", n if n > 10 -> "big", _ -> "other" }`)
	m, ok := e.(*ir.MatchExpr)
	require.True(t, ok)
	require.Len(t, m.Arms, 3)

	assert.Len(t, m.Arms[0].Patterns, 2)
	assert.Equal(t, "n", m.Arms[1].Patterns[0].Binding)
	assert.NotNil(t, m.Arms[1].Guard)
	assert.True(t, m.Arms[2].Patterns[0].Wildcard)
}

// TestParseFString verifies part splitting and format suffixes.
func TestParseFString(t *testing.T) {
	e := helperExpr(t, `f"pi is {pi:.2f}!"`)
	fs, ok := e.(*ir.FStringLit)
	require.True(t, ok)
	require.Len(t, fs.Parts, 3)
	assert.Equal(t, "pi is ", fs.Parts[0].Text)
	require.NotNil(t, fs.Parts[1].Interp)
	assert.Equal(t, ".2f", fs.Parts[1].Format)
	assert.Equal(t, "!", fs.Parts[2].Text)
}

// TestParseFStringSpans verifies that interpolation expressions carry
// spans into the enclosing source buffer.
func TestParseFStringSpans(t *testing.T) {
	src := `f"v={value}"`
	e := helperExpr(t, src)
	fs := e.(*ir.FStringLit)
	interp := fs.Parts[1].Interp
	sp := interp.Span()
	assert.Equal(t, "value", src[sp.Start:sp.End])
}

// TestParseImplicitIm verifies implicit imaginary-unit multiplication for
// adjacent literals and parenthesised expressions.
func TestParseImplicitIm(t *testing.T) {
	e := helperExpr(t, "3.5im")
	mul, ok := e.(*ir.Binary)
	require.True(t, ok)
	assert.Equal(t, "*", mul.Op)
	_, ok = mul.RHS.(*ir.ImagLit)
	assert.True(t, ok)

	e = helperExpr(t, "(a + b)im")
	mul, ok = e.(*ir.Binary)
	require.True(t, ok)
	assert.Equal(t, "*", mul.Op)
}

// TestParseListComp verifies generator and condition clauses.
func TestParseListComp(t *testing.T) {
	e := helperExpr(t, "[x * y for x in 1:3 for y in 1:4 if x < y]")
	lc, ok := e.(*ir.ListComp)
	require.True(t, ok)
	assert.Len(t, lc.Gens, 2)
	assert.Len(t, lc.Conds, 1)
	assert.Equal(t, "x", lc.Gens[0].Var)
}

// TestParseDestructuring verifies var a, b := f().
func TestParseDestructuring(t *testing.T) {
	prog := helperParse(t, "var a, b := f()")
	dd, ok := prog.Stmts[0].(*ir.DestructuringDecl)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, dd.Names)
}

// TestParseFunctionDef verifies parameter annotations, defaults and
// tuple return annotations.
func TestParseFunctionDef(t *testing.T) {
	prog := helperParse(t, "function f(a: int, b: float = 1.5) -> float { return a + b }")
	fd, ok := prog.Stmts[0].(*ir.FunctionDef)
	require.True(t, ok)
	require.Len(t, fd.Params, 2)
	assert.Equal(t, ir.Int, fd.Params[0].Type.Kind)
	assert.NotNil(t, fd.Params[1].Default)
	assert.Equal(t, ir.Float, fd.RetType.Kind)

	prog = helperParse(t, "function g() -> (int, float) { return (1, 2.0) }")
	fd = prog.Stmts[0].(*ir.FunctionDef)
	require.Equal(t, ir.Tuple, fd.RetType.Kind)
	require.Len(t, fd.RetType.Elems, 2)
}

// TestParseImport verifies import with and without alias.
func TestParseImport(t *testing.T) {
	prog := helperParse(t, "import math as m")
	imp, ok := prog.Stmts[0].(*ir.Import)
	require.True(t, ok)
	assert.Equal(t, "math", imp.Module)
	assert.Equal(t, "m", imp.Alias)
}

// TestParseErrorsHaveSpans verifies that parse errors carry a bounded
// span into the source.
func TestParseErrorsHaveSpans(t *testing.T) {
	for _, src := range []string{
		"var := 1",
		"if x { ",
		"1 +",
		"match x { }",
		"var x: nosuch = 1",
	} {
		_, err := Parse(src)
		require.NotNil(t, err, "source %q", src)
		assert.True(t, err.Span.Start >= 0 && err.Span.End <= len(src), "span bounded for %q", src)
	}
}

// TestParseSpansCoverNodes verifies that every statement span lies within
// the source bounds and is non-empty.
func TestParseSpansCoverNodes(t *testing.T) {
	src := "var x := 1 + 2\nprintln(x)\n"
	prog := helperParse(t, src)
	for _, e1 := range prog.Stmts {
		sp := e1.Span()
		assert.False(t, sp.Empty())
		assert.True(t, sp.Start >= 0 && sp.End <= len(src))
	}
}

// TestParseStaticInit verifies int[n] and float[r, c] forms.
func TestParseStaticInit(t *testing.T) {
	e := helperExpr(t, "int[5]")
	si, ok := e.(*ir.StaticInit)
	require.True(t, ok)
	assert.Equal(t, ir.Int, si.Kind)
	assert.Len(t, si.Dims, 1)

	e = helperExpr(t, "float[2, 3]")
	si = e.(*ir.StaticInit)
	assert.Equal(t, ir.Float, si.Kind)
	assert.Len(t, si.Dims, 2)
}
