package llvm

import (
	"tinygo.org/x/go-llvm"

	"brix/src/diag"
	"brix/src/ir"
)

// cast converts v to the semantic type want, emitting the conversion
// instructions. Implicit conversions follow the promotion rules:
// Int <-> Float, Int/Float -> Complex, IntMatrix -> Matrix. Anything else
// is an E102 TypeError at sp.
func (g *generator) cast(v value, want ir.Type, sp ir.Span) (value, *diag.Error) {
	if v.t.Equal(want) {
		return v, nil
	}
	switch {
	case v.t.Kind == ir.Int && want.Kind == ir.Float:
		return value{v: g.b.CreateSIToFP(v.v, g.t.f64, ""), t: want}, nil
	case v.t.Kind == ir.Float && want.Kind == ir.Int:
		// Truncate toward zero.
		return value{v: g.b.CreateFPToSI(v.v, g.t.i64, ""), t: want}, nil
	case v.t.Kind == ir.Int && want.Kind == ir.Complex:
		re := g.b.CreateSIToFP(v.v, g.t.f64, "")
		return g.makeComplex(re, llvm.ConstFloat(g.t.f64, 0)), nil
	case v.t.Kind == ir.Float && want.Kind == ir.Complex:
		return g.makeComplex(v.v, llvm.ConstFloat(g.t.f64, 0)), nil
	case v.t.Kind == ir.IntMatrix && want.Kind == ir.Matrix:
		conv := g.b.CreateCall(g.rt("intmatrix_to_matrix"), []llvm.Value{v.v}, "")
		g.disposeTemp(v)
		return value{v: conv, t: want, owned: true}, nil
	}
	return value{}, diag.Typef(sp, v.t.String(), want.String())
}

// makeComplex builds a complex value from two f64 components.
func (g *generator) makeComplex(re, im llvm.Value) value {
	c := llvm.Undef(g.t.cplx)
	c = g.b.CreateInsertValue(c, re, 0, "")
	c = g.b.CreateInsertValue(c, im, 1, "")
	return value{v: c, t: ir.T(ir.Complex)}
}

// truthy converts a scalar value to an i1 condition: non-zero is true.
func (g *generator) truthy(v value, sp ir.Span) (llvm.Value, *diag.Error) {
	switch v.t.Kind {
	case ir.Int, ir.Atom:
		return g.b.CreateICmp(llvm.IntNE, v.v, llvm.ConstInt(g.t.i64, 0, false), ""), nil
	case ir.Float:
		return g.b.CreateFCmp(llvm.FloatONE, v.v, llvm.ConstFloat(g.t.f64, 0), ""), nil
	case ir.Nil:
		return llvm.ConstInt(g.t.i1, 0, false), nil
	}
	return llvm.Value{}, diag.TypeOpf(sp, "condition must be numeric, got %s", v.t)
}

// boolInt widens an i1 to the language's integer truth value.
func (g *generator) boolInt(b llvm.Value) value {
	return value{v: g.b.CreateZExt(b, g.t.i64, ""), t: ir.T(ir.Int)}
}
