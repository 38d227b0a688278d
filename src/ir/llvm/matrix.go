package llvm

import (
	"tinygo.org/x/go-llvm"

	"brix/src/diag"
	"brix/src/ir"
)

// genMatrixBinary dispatches a binary operator with at least one matrix
// operand to the runtime helper family. Mixed IntMatrix/Matrix operands
// promote the IntMatrix side to a fresh Matrix first: there is no
// polymorphic helper, the ABI stays flat. Every helper validates
// dimension compatibility at runtime and returns a freshly allocated
// matrix owned by the caller.
func (g *generator) genMatrixBinary(op string, lhs, rhs value, sp ir.Span) (value, *diag.Error) {
	if _, ok := matrixOpNames[op]; !ok {
		return value{}, diag.TypeOpf(sp, "operator %s not defined for %s and %s", op, lhs.t, rhs.t)
	}
	if lhs.t.Kind == ir.ComplexMatrix || rhs.t.Kind == ir.ComplexMatrix {
		return value{}, diag.TypeOpf(sp, "operator %s not defined for complexmatrix", op)
	}

	// Matrix op matrix.
	if lhs.t.IsMatrix() && rhs.t.IsMatrix() {
		kind := "intmatrix"
		want := ir.T(ir.IntMatrix)
		if lhs.t.Kind == ir.Matrix || rhs.t.Kind == ir.Matrix {
			kind = "matrix"
			want = ir.T(ir.Matrix)
		}
		l, err := g.cast(lhs, want, sp)
		if err != nil {
			return value{}, err
		}
		r, err := g.cast(rhs, want, sp)
		if err != nil {
			return value{}, err
		}
		fn := g.matrixHelper(kind, op, "matrix_matrix")
		out := g.b.CreateCall(fn, []llvm.Value{l.v, r.v}, "")
		g.disposeTemp(l)
		g.disposeTemp(r)
		return value{v: out, t: want, owned: true}, nil
	}

	// Matrix op scalar / scalar op matrix: the scalar promotes to the
	// matrix's element kind, or the IntMatrix promotes to Matrix when the
	// scalar is float-like.
	mat, scalar := lhs, rhs
	form := "matrix_scalar"
	scalarExpr := sp
	if rhs.t.IsMatrix() {
		mat, scalar = rhs, lhs
		form = "scalar_matrix"
	}
	if !scalar.t.IsNumeric() || scalar.t.Kind == ir.Complex {
		return value{}, diag.TypeOpf(sp, "operator %s not defined for %s and %s", op, lhs.t, rhs.t)
	}

	if mat.t.Kind == ir.IntMatrix && scalar.t.Kind == ir.Float {
		m, err := g.cast(mat, ir.T(ir.Matrix), sp)
		if err != nil {
			return value{}, err
		}
		mat = m
	}

	kind := "matrix"
	scalarType := ir.T(ir.Float)
	if mat.t.Kind == ir.IntMatrix {
		kind = "intmatrix"
		scalarType = ir.T(ir.Int)
	}
	s, err := g.cast(scalar, scalarType, scalarExpr)
	if err != nil {
		return value{}, err
	}

	fn := g.matrixHelper(kind, op, form)
	var out llvm.Value
	if form == "matrix_scalar" {
		out = g.b.CreateCall(fn, []llvm.Value{mat.v, s.v}, "")
	} else {
		out = g.b.CreateCall(fn, []llvm.Value{s.v, mat.v}, "")
	}
	g.disposeTemp(mat)
	return value{v: out, t: mat.t, owned: true}, nil
}
