package llvm

import (
	"tinygo.org/x/go-llvm"

	"brix/src/diag"
	"brix/src/ir"
)

// compGen is one lowered generator: either an inclusive range with start,
// step and end values, or a matrix traversal.
type compGen struct {
	varName  string
	elemType ir.Type

	// Range form.
	isRange bool
	start   llvm.Value
	step    llvm.Value
	end     llvm.Value

	// Matrix form.
	data llvm.Value

	// Element count of this generator, both forms.
	n llvm.Value
}

// genListComp lowers a list comprehension. The destination matrix is
// pre-allocated at the maximum possible size (the product of the
// generator lengths), filled while the conditions hold, and resized at
// the end by narrowing its column count to the number of elements
// produced. Generator nesting mirrors source order, outermost first.
func (g *generator) genListComp(e *ir.ListComp) (value, *diag.Error) {
	resType, err := g.staticCompType(e)
	if err != nil {
		return value{}, err
	}

	g.syms.save()
	defer g.syms.restore()

	// Evaluate every generator's bounds once, up front, and bind the
	// generator variables to fresh slots.
	gens := make([]compGen, len(e.Gens))
	max := llvm.ConstInt(g.t.i64, 1, false)
	for i1, gen := range e.Gens {
		var cg compGen
		cg.varName = gen.Var

		if rng, ok := gen.Iter.(*ir.RangeExpr); ok {
			cg.isRange = true
			sv, gerr := g.genIntArg(rng.Start)
			if gerr != nil {
				return value{}, gerr
			}
			cg.start = sv
			cg.step = llvm.ConstInt(g.t.i64, 1, false)
			if rng.Step != nil {
				st, gerr := g.genIntArg(rng.Step)
				if gerr != nil {
					return value{}, gerr
				}
				cg.step = st
			}
			ev, gerr := g.genIntArg(rng.End)
			if gerr != nil {
				return value{}, gerr
			}
			cg.end = ev
			cg.elemType = ir.T(ir.Int)

			// Inclusive length: (end - start) / step + 1.
			span := g.b.CreateSub(cg.end, cg.start, "")
			n := g.b.CreateAdd(g.b.CreateSDiv(span, cg.step, ""), llvm.ConstInt(g.t.i64, 1, false), "")
			cg.n = n
		} else {
			mv, gerr := g.genExpr(gen.Iter)
			if gerr != nil {
				return value{}, gerr
			}
			if !mv.t.IsMatrix() {
				return value{}, diag.TypeOpf(gen.Iter.Span(), "comprehension generator requires a range or matrix, got %s", mv.t)
			}
			rows := g.b.CreateLoad(g.b.CreateStructGEP(mv.v, 1, ""), "")
			cols := g.b.CreateLoad(g.b.CreateStructGEP(mv.v, 2, ""), "")
			cg.n = g.b.CreateMul(rows, cols, "")
			cg.data = g.b.CreateLoad(g.b.CreateStructGEP(mv.v, 3, ""), "")
			cg.elemType = mv.t.ElemType()
		}

		max = g.b.CreateMul(max, cg.n, "")

		slot := g.alloca(g.t.lower(cg.elemType), cg.varName)
		g.syms.define(cg.varName, symbol{slot: slot, typ: cg.elemType})
		gens[i1] = cg
	}

	// Destination and element counter.
	newFn := map[ir.TypeKind]string{
		ir.IntMatrix:     "intmatrix_new",
		ir.Matrix:        "matrix_new",
		ir.ComplexMatrix: "complexmatrix_new",
	}[resType.Kind]
	dest := g.b.CreateCall(g.rt(newFn), []llvm.Value{llvm.ConstInt(g.t.i64, 1, false), max}, "")
	destData := g.b.CreateLoad(g.b.CreateStructGEP(dest, 3, ""), "")

	count := g.alloca(g.t.i64, "comp.count")
	g.b.CreateStore(llvm.ConstInt(g.t.i64, 0, false), count)

	if err := g.genCompLevel(e, gens, 0, resType, destData, count); err != nil {
		return value{}, err
	}

	// Resize: the matrix stays a single row; its column count narrows to
	// the number of elements produced.
	final := g.b.CreateLoad(count, "")
	g.b.CreateStore(final, g.b.CreateStructGEP(dest, 2, ""))

	return value{v: dest, t: resType, owned: true}, nil
}

// genCompLevel emits the loop for generator level i1; the innermost level
// evaluates the conditions and the body.
func (g *generator) genCompLevel(e *ir.ListComp, gens []compGen, i1 int, resType ir.Type, destData, count llvm.Value) *diag.Error {
	if i1 == len(gens) {
		return g.genCompBody(e, resType, destData, count)
	}
	cg := gens[i1]
	sym, _ := g.syms.lookup(cg.varName)

	header := llvm.AddBasicBlock(g.fn, "comp.header")
	body := llvm.AddBasicBlock(g.fn, "comp.body")
	after := llvm.AddBasicBlock(g.fn, "comp.after")

	// Loop counter: the range value itself, or the linear matrix index.
	idx := g.alloca(g.t.i64, "comp.idx")
	if cg.isRange {
		g.b.CreateStore(cg.start, idx)
	} else {
		g.b.CreateStore(llvm.ConstInt(g.t.i64, 0, false), idx)
	}
	g.b.CreateBr(header)

	g.b.SetInsertPointAtEnd(header)
	cur := g.b.CreateLoad(idx, "")
	var cond llvm.Value
	if cg.isRange {
		cond = g.b.CreateICmp(llvm.IntSLE, cur, cg.end, "")
	} else {
		cond = g.b.CreateICmp(llvm.IntSLT, cur, cg.n, "")
	}
	g.b.CreateCondBr(cond, body, after)

	g.b.SetInsertPointAtEnd(body)
	if cg.isRange {
		g.b.CreateStore(cur, sym.slot)
	} else {
		elem := g.b.CreateLoad(g.b.CreateGEP(cg.data, []llvm.Value{cur}, ""), "")
		g.b.CreateStore(elem, sym.slot)
	}
	if err := g.genCompLevel(e, gens, i1+1, resType, destData, count); err != nil {
		return err
	}

	// Advance.
	next := g.b.CreateLoad(idx, "")
	if cg.isRange {
		next = g.b.CreateAdd(next, cg.step, "")
	} else {
		next = g.b.CreateAdd(next, llvm.ConstInt(g.t.i64, 1, false), "")
	}
	g.b.CreateStore(next, idx)
	g.b.CreateBr(header)

	g.b.SetInsertPointAtEnd(after)
	return nil
}

// genCompBody emits the innermost step: conditions short-circuit
// element-by-element, then the body value stores at the current count.
func (g *generator) genCompBody(e *ir.ListComp, resType ir.Type, destData, count llvm.Value) *diag.Error {
	skip := llvm.AddBasicBlock(g.fn, "comp.skip")
	for _, cond := range e.Conds {
		cv, err := g.genExpr(cond)
		if err != nil {
			return err
		}
		c, terr := g.truthy(cv, cond.Span())
		if terr != nil {
			return terr
		}
		next := llvm.AddBasicBlock(g.fn, "comp.cond")
		g.b.CreateCondBr(c, next, skip)
		g.b.SetInsertPointAtEnd(next)
	}

	bv, err := g.genExpr(e.Body)
	if err != nil {
		return err
	}
	bv, cerr := g.cast(bv, resType.ElemType(), e.Body.Span())
	if cerr != nil {
		return cerr
	}

	cur := g.b.CreateLoad(count, "")
	g.b.CreateStore(bv.v, g.b.CreateGEP(destData, []llvm.Value{cur}, ""))
	g.b.CreateStore(g.b.CreateAdd(cur, llvm.ConstInt(g.t.i64, 1, false), ""), count)
	g.b.CreateBr(skip)

	g.b.SetInsertPointAtEnd(skip)
	return nil
}
