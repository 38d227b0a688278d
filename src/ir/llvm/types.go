package llvm

import (
	"tinygo.org/x/go-llvm"

	"brix/src/ir"
)

// typer caches the LLVM types of one compilation unit: the scalar types
// and the named boxed struct layouts shared with the runtime. The layouts
// are ABI-visible and must stay in lockstep with the runtime library:
//
//	string:  { i64 refcount, i64 len,  i8*  data }
//	matrix:  { i64 refcount, i64 rows, i64 cols, elem* data }
//	error:   { i64 refcount, i8* message }
//	complex: { double re, double im }, passed by value
type typer struct {
	ctx llvm.Context

	i1    llvm.Type
	i32   llvm.Type
	i64   llvm.Type
	f64   llvm.Type
	i8ptr llvm.Type
	void  llvm.Type

	cplx llvm.Type // {f64, f64} by value.

	strBox  llvm.Type
	matBox  llvm.Type
	imatBox llvm.Type
	cmatBox llvm.Type
	errBox  llvm.Type
}

// newTyper builds the type cache and declares the named boxed structs in
// the context.
func newTyper(ctx llvm.Context) typer {
	t := typer{ctx: ctx}
	t.i1 = ctx.Int1Type()
	t.i32 = ctx.Int32Type()
	t.i64 = ctx.Int64Type()
	t.f64 = ctx.DoubleType()
	t.i8ptr = llvm.PointerType(ctx.Int8Type(), 0)
	t.void = ctx.VoidType()

	t.cplx = ctx.StructType([]llvm.Type{t.f64, t.f64}, false)

	t.strBox = ctx.StructCreateNamed("brix.string")
	t.strBox.StructSetBody([]llvm.Type{t.i64, t.i64, t.i8ptr}, false)

	t.matBox = ctx.StructCreateNamed("brix.matrix")
	t.matBox.StructSetBody([]llvm.Type{t.i64, t.i64, t.i64, llvm.PointerType(t.f64, 0)}, false)

	t.imatBox = ctx.StructCreateNamed("brix.intmatrix")
	t.imatBox.StructSetBody([]llvm.Type{t.i64, t.i64, t.i64, llvm.PointerType(t.i64, 0)}, false)

	t.cmatBox = ctx.StructCreateNamed("brix.complexmatrix")
	t.cmatBox.StructSetBody([]llvm.Type{t.i64, t.i64, t.i64, llvm.PointerType(t.cplx, 0)}, false)

	t.errBox = ctx.StructCreateNamed("brix.error")
	t.errBox.StructSetBody([]llvm.Type{t.i64, t.i8ptr}, false)

	return t
}

// lower maps a semantic type to its LLVM representation. Boxed kinds lower
// to pointers at their struct layouts; Complex is a first-class pair.
func (t typer) lower(typ ir.Type) llvm.Type {
	switch typ.Kind {
	case ir.Int, ir.Atom:
		return t.i64
	case ir.Float:
		return t.f64
	case ir.Complex:
		return t.cplx
	case ir.String:
		return llvm.PointerType(t.strBox, 0)
	case ir.Matrix:
		return llvm.PointerType(t.matBox, 0)
	case ir.IntMatrix:
		return llvm.PointerType(t.imatBox, 0)
	case ir.ComplexMatrix:
		return llvm.PointerType(t.cmatBox, 0)
	case ir.Error:
		return llvm.PointerType(t.errBox, 0)
	case ir.Nil:
		return t.i8ptr
	case ir.FloatPtr:
		return llvm.PointerType(t.f64, 0)
	case ir.Void:
		return t.void
	case ir.Tuple:
		elems := make([]llvm.Type, len(typ.Elems))
		for i1, e1 := range typ.Elems {
			elems[i1] = t.lower(e1)
		}
		return t.ctx.StructType(elems, false)
	}
	return t.void
}

// zero returns the zero value of a lowered semantic type, used for the
// fall-through edge of a match without a wildcard arm.
func (t typer) zero(typ ir.Type) llvm.Value {
	switch typ.Kind {
	case ir.Int, ir.Atom:
		return llvm.ConstInt(t.i64, 0, false)
	case ir.Float:
		return llvm.ConstFloat(t.f64, 0)
	case ir.Complex:
		return llvm.ConstNull(t.cplx)
	}
	return llvm.ConstNull(t.lower(typ))
}
