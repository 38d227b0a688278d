package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestTypeNames verifies the typeof() surface names.
func TestTypeNames(t *testing.T) {
	cases := map[TypeKind]string{
		Int:           "int",
		Float:         "float",
		String:        "string",
		Matrix:        "matrix",
		IntMatrix:     "intmatrix",
		Complex:       "complex",
		ComplexMatrix: "complexmatrix",
		Atom:          "atom",
		Nil:           "nil",
		Error:         "error",
	}
	for kind, want := range cases {
		assert.Equal(t, want, T(kind).String())
	}
	assert.Equal(t, "tuple(int, float)", TupleOf(T(Int), T(Float)).String())
}

// TestPromote verifies the Int -> Float -> Complex promotion lattice.
func TestPromote(t *testing.T) {
	assert.Equal(t, Int, Promote(T(Int), T(Int)).Kind)
	assert.Equal(t, Float, Promote(T(Int), T(Float)).Kind)
	assert.Equal(t, Float, Promote(T(Float), T(Int)).Kind)
	assert.Equal(t, Complex, Promote(T(Float), T(Complex)).Kind)
	assert.Equal(t, Complex, Promote(T(Int), T(Complex)).Kind)
	assert.Equal(t, Invalid, Promote(T(String), T(Int)).Kind)
}

// TestConvertible verifies the implicit conversion set.
func TestConvertible(t *testing.T) {
	assert.True(t, T(Int).ConvertibleTo(T(Float)))
	assert.True(t, T(Float).ConvertibleTo(T(Int)))
	assert.True(t, T(Int).ConvertibleTo(T(Complex)))
	assert.True(t, T(IntMatrix).ConvertibleTo(T(Matrix)))
	assert.False(t, T(Matrix).ConvertibleTo(T(IntMatrix)))
	assert.False(t, T(String).ConvertibleTo(T(Int)))
	assert.False(t, T(Complex).ConvertibleTo(T(Float)))
}

// TestKindPredicates verifies the boxed and matrix kind predicates that
// drive ARC insertion and helper dispatch.
func TestKindPredicates(t *testing.T) {
	for _, kind := range []TypeKind{String, Matrix, IntMatrix, ComplexMatrix, Error} {
		assert.True(t, T(kind).IsBoxed(), "%v boxed", kind)
	}
	for _, kind := range []TypeKind{Int, Float, Complex, Atom, Nil, Void} {
		assert.False(t, T(kind).IsBoxed(), "%v not boxed", kind)
	}
	assert.True(t, T(Matrix).IsMatrix())
	assert.True(t, T(IntMatrix).IsMatrix())
	assert.True(t, T(ComplexMatrix).IsMatrix())
	assert.False(t, T(String).IsMatrix())
}

// TestElemType verifies matrix element types.
func TestElemType(t *testing.T) {
	assert.Equal(t, Float, T(Matrix).ElemType().Kind)
	assert.Equal(t, Int, T(IntMatrix).ElemType().Kind)
	assert.Equal(t, Complex, T(ComplexMatrix).ElemType().Kind)
}

// TestSpanMerge verifies span merging.
func TestSpanMerge(t *testing.T) {
	a := Span{Start: 4, End: 9}
	b := Span{Start: 1, End: 6}
	m := a.Merge(b)
	assert.Equal(t, Span{Start: 1, End: 9}, m)
	assert.False(t, m.Empty())
	assert.True(t, Span{}.Empty())
}

// TestRegistry verifies function registration and duplicate rejection.
func TestRegistry(t *testing.T) {
	r := NewRegistry()
	f := &FunctionDef{Name: "f", RetType: T(Void)}
	assert.True(t, r.Register(f))
	assert.False(t, r.Register(&FunctionDef{Name: "f"}))
	assert.Equal(t, f, r.Lookup("f"))
	assert.Nil(t, r.Lookup("g"))
	assert.Equal(t, []string{"f"}, r.Names())
}
