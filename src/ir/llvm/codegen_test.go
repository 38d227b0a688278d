package llvm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brix/src/diag"
	"brix/src/frontend"
	"brix/src/util"
)

// helperIR compiles src to textual LLVM IR. Module verification runs as
// part of generation, so every success here is a well-formed module:
// every block terminated, every use dominated.
func helperIR(t *testing.T, src string) string {
	t.Helper()
	prog, perr := frontend.Parse(src)
	require.Nil(t, perr, "parse error: %v", perr)
	out, err := EmitIR(util.Options{}, prog, src)
	require.NoError(t, err)
	return out
}

// helperErr compiles src expecting a codegen diagnostic of the given
// kind.
func helperErr(t *testing.T, src string, kind diag.Kind) *diag.Error {
	t.Helper()
	prog, perr := frontend.Parse(src)
	require.Nil(t, perr, "parse error: %v", perr)
	_, err := EmitIR(util.Options{}, prog, src)
	require.Error(t, err)
	derr, ok := err.(*diag.Error)
	require.True(t, ok, "expected diagnostic, got %v", err)
	assert.Equal(t, kind, derr.Kind)
	return derr
}

// TestGenHello verifies the minimal program: implicit main, printf
// declaration and a verified module.
func TestGenHello(t *testing.T) {
	out := helperIR(t, "var x := 10 println(x)")
	assert.Contains(t, out, "define i32 @main()")
	assert.Contains(t, out, "declare i32 @printf")
	assert.Contains(t, out, "alloca i64")
}

// TestGenDivisionTrap verifies that integer division by a syntactic zero
// emits a reachable trap call before the division instruction.
func TestGenDivisionTrap(t *testing.T) {
	out := helperIR(t, "var x := 10 var y := x / 0 println(y)")
	assert.Contains(t, out, "brix_division_by_zero_error")
	assert.Contains(t, out, "sdiv")
	assert.Contains(t, out, "unreachable")
	assert.Less(t,
		indexOf(out, "brix_division_by_zero_error()"),
		indexOf(out, "sdiv"),
		"trap call precedes the division")
}

// TestGenFloatDivisionNoTrap verifies IEEE semantics for float division.
func TestGenFloatDivisionNoTrap(t *testing.T) {
	out := helperIR(t, "var x := 1.5 var y := x / 0.0 println(y)")
	assert.Contains(t, out, "fdiv")
	assert.NotContains(t, out, "brix_division_by_zero_error")
}

// TestGenArrayClassification verifies the IntMatrix/Matrix split of array
// literals and that typeof is compile-time determined.
func TestGenArrayClassification(t *testing.T) {
	out := helperIR(t, "var m := [1, 2, 3] println(typeof(m))")
	assert.Contains(t, out, "intmatrix_new")
	assert.Contains(t, out, `c"intmatrix\00"`)

	out = helperIR(t, "var m := [1, 2.5, 3] println(typeof(m))")
	assert.Contains(t, out, "matrix_new")
	assert.Contains(t, out, `c"matrix\00"`)
}

// TestGenMatrixPromotion verifies IntMatrix promotion in mixed matrix
// arithmetic.
func TestGenMatrixPromotion(t *testing.T) {
	out := helperIR(t, "var a := [1, 2] var b := [1.5, 2.5] var c := a + b println(c)")
	assert.Contains(t, out, "intmatrix_to_matrix")
	assert.Contains(t, out, "matrix_add_matrix")
}

// TestGenMatrixScalar verifies the scalar helper family dispatch.
func TestGenMatrixScalar(t *testing.T) {
	out := helperIR(t, "var a := [1.0, 2.0] var b := a * 3 println(b)")
	assert.Contains(t, out, "matrix_mul_scalar")

	out = helperIR(t, "var a := [1.0, 2.0] var b := 3 - a println(b)")
	assert.Contains(t, out, "scalar_sub_matrix")
}

// TestGenShortCircuit verifies PHI-based short-circuit lowering.
func TestGenShortCircuit(t *testing.T) {
	out := helperIR(t, "var a := 1 var b := a > 0 && a < 10 println(b)")
	assert.Contains(t, out, "phi i64")
}

// TestGenIfNoPhi verifies that if/else statements introduce no PHI.
func TestGenIfNoPhi(t *testing.T) {
	out := helperIR(t, "var a := 1 if a > 0 { println(a) } else { println(0) }")
	assert.NotContains(t, out, "phi")
}

// TestGenPowerUnrolled verifies binary exponentiation for literal
// non-negative integer exponents and the pow fallback otherwise.
func TestGenPowerUnrolled(t *testing.T) {
	out := helperIR(t, "var b := 2 var p := b ** 10 println(p)")
	assert.Contains(t, out, "mul")
	assert.NotContains(t, out, "@pow")

	out = helperIR(t, "var n := 3 var p := 2 ** n println(p)")
	assert.Contains(t, out, "@pow")
	assert.Contains(t, out, "fptosi")
}

// TestGenChainedCmp verifies single evaluation of the middle term: the
// call f() appears exactly once in the chain lowering.
func TestGenChainedCmp(t *testing.T) {
	out := helperIR(t, `
function f() -> int { return 5 }
var a := 1
var b := a < f() < 10
println(b)`)
	assert.Equal(t, 1, countOf(out, "call i64 @bx_f()"), "middle term evaluates once")
}

// TestGenUserFunctionDefaults verifies default parameter values evaluate
// at the call site.
func TestGenUserFunctionDefaults(t *testing.T) {
	out := helperIR(t, `
function add(a: int, b: int = 7) -> int { return a + b }
println(add(1))
println(add(1, 2))`)
	assert.Contains(t, out, "define i64 @bx_add")
	assert.Equal(t, 2, countOf(out, "call i64 @bx_add"))
}

// TestGenMatch verifies match lowering: one merge PHI collecting the arm
// values.
func TestGenMatch(t *testing.T) {
	out := helperIR(t, `var r := match 2 { 1 -> "one", 2 -> "two", _ -> "other" } println(r)`)
	assert.Contains(t, out, "phi")
	assert.Contains(t, out, `c"two\00"`)
}

// TestGenFString verifies f-string lowering through snprintf and
// str_concat.
func TestGenFString(t *testing.T) {
	out := helperIR(t, `var pi := 3.14159265 println(f"{pi:.2f}")`)
	assert.Contains(t, out, "snprintf")
	assert.Contains(t, out, `c"%.2f\00"`)
}

// TestGenZip verifies kind-suffixed zip dispatch.
func TestGenZip(t *testing.T) {
	out := helperIR(t, "var a := [1, 2] var b := [3, 4] var z := zip(a, b) println(z)")
	assert.Contains(t, out, "brix_zip_ii")
}

// TestGenAtoms verifies atom interning and equality on ids.
func TestGenAtoms(t *testing.T) {
	out := helperIR(t, "var a := :ok var b := a == :ok println(b)")
	assert.Contains(t, out, "atom_intern")
	assert.Contains(t, out, "icmp eq i64")
}

// TestGenImportMath verifies module-prefixed external declarations.
func TestGenImportMath(t *testing.T) {
	out := helperIR(t, "import math as m\nvar y := m.sin(1.0) println(y)")
	assert.Contains(t, out, "declare double @sin(double)")
}

// TestGenARC verifies retain/release insertion around string bindings.
func TestGenARC(t *testing.T) {
	out := helperIR(t, `var s := "hello" var t := s println(t)`)
	assert.Contains(t, out, "string_retain")
	assert.Contains(t, out, "string_release")
}

// TestGenListComp verifies comprehension lowering: an all-int body
// pre-allocates an IntMatrix destination.
func TestGenListComp(t *testing.T) {
	out := helperIR(t, "var squares := [x * x for x in 1:5] println(squares)")
	assert.Contains(t, out, "intmatrix_new")
}

// TestGenScopeRestore verifies the save/restore scoping discipline: a
// function-local binding does not leak into the top level.
func TestGenScopeRestore(t *testing.T) {
	out := helperIR(t, `
var x := 1
function f() -> int { var x := 2 return x }
println(x + f())`)
	assert.Contains(t, out, "define i64 @bx_f")

	// The local really is out of scope afterwards.
	helperErr(t, `
function f() -> int { var local := 2 return local }
println(f())
println(local)`, diag.Undefined)
}

// TestGenErrors verifies the codegen error taxonomy with spans.
func TestGenErrors(t *testing.T) {
	// E103: undefined symbol, underlining the reference.
	src := "println(undefined_x)"
	derr := helperErr(t, src, diag.Undefined)
	assert.Equal(t, "undefined_x", src[derr.Span.Start:derr.Span.End])

	// E102: operator on unsupported types.
	helperErr(t, `var s := "hello" println(s + 42)`, diag.Type)

	// E104: mutating an element through a const binding.
	helperErr(t, "const m := [1, 2, 3] m[0] = 9", diag.Invalid)

	// E104: assignment to a const binding.
	helperErr(t, "const c := 1 c = 2", diag.Invalid)

	// E105: binding a void call result.
	helperErr(t, "var v := println(1)", diag.Missing)
}

// indexOf and countOf keep the substring assertions readable.
func indexOf(s, sub string) int {
	for i1 := 0; i1+len(sub) <= len(s); i1++ {
		if s[i1:i1+len(sub)] == sub {
			return i1
		}
	}
	return -1
}

func countOf(s, sub string) int {
	n := 0
	for i1 := 0; i1+len(sub) <= len(s); i1++ {
		if s[i1:i1+len(sub)] == sub {
			n++
			i1 += len(sub) - 1
		}
	}
	return n
}
