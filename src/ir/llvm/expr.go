package llvm

import (
	"tinygo.org/x/go-llvm"

	"brix/src/diag"
	"brix/src/ir"
)

// genExpr lowers one expression and returns its value. Values are
// produced left to right; no node is revisited.
func (g *generator) genExpr(e ir.Expr) (value, *diag.Error) {
	switch e := e.(type) {
	case *ir.IntLit:
		return value{v: llvm.ConstInt(g.t.i64, uint64(e.Value), true), t: ir.T(ir.Int)}, nil
	case *ir.FloatLit:
		return value{v: llvm.ConstFloat(g.t.f64, e.Value), t: ir.T(ir.Float)}, nil
	case *ir.ImagLit:
		return g.makeComplex(llvm.ConstFloat(g.t.f64, 0), llvm.ConstFloat(g.t.f64, e.Value)), nil
	case *ir.StrLit:
		s := g.b.CreateCall(g.rt("str_new"), []llvm.Value{g.globalString(e.Value)}, "")
		return value{v: s, t: ir.T(ir.String), owned: true}, nil
	case *ir.BoolLit:
		v := uint64(0)
		if e.Value {
			v = 1
		}
		return value{v: llvm.ConstInt(g.t.i64, v, false), t: ir.T(ir.Int)}, nil
	case *ir.NilLit:
		return value{v: llvm.ConstNull(g.t.i8ptr), t: ir.T(ir.Nil)}, nil
	case *ir.AtomLit:
		id := g.b.CreateCall(g.rt("atom_intern"), []llvm.Value{g.globalString(e.Name)}, "")
		return value{v: id, t: ir.T(ir.Atom)}, nil
	case *ir.Ident:
		return g.genIdent(e)
	case *ir.Binary:
		return g.genBinary(e)
	case *ir.Unary:
		return g.genUnary(e)
	case *ir.Ternary:
		return g.genTernary(e)
	case *ir.ChainedCmp:
		return g.genChainedCmp(e)
	case *ir.Index:
		return g.genIndex(e)
	case *ir.Field:
		return g.genField(e)
	case *ir.Call:
		return g.genCall(e)
	case *ir.ArrayLit:
		return g.genArrayLit(e)
	case *ir.TupleLit:
		return g.genTupleLit(e)
	case *ir.StaticInit:
		return g.genStaticInit(e)
	case *ir.ListComp:
		return g.genListComp(e)
	case *ir.MatchExpr:
		return g.genMatch(e)
	case *ir.FStringLit:
		return g.genFString(e)
	case *ir.RangeExpr:
		return value{}, diag.Invalidf(e.Pos, "range expression is only allowed in a for-loop head")
	}
	return value{}, diag.Generalf(e.Span(), "unhandled expression")
}

// genIdent loads the current value of a binding.
func (g *generator) genIdent(e *ir.Ident) (value, *diag.Error) {
	sym, ok := g.syms.lookup(e.Name)
	if !ok {
		return value{}, diag.Undefinedf(e.Pos, e.Name)
	}
	if sym.slot.IsNil() {
		return value{}, diag.Invalidf(e.Pos, "library function %q is not a value", e.Name)
	}
	return value{v: g.b.CreateLoad(sym.slot, ""), t: sym.typ}, nil
}

// genBinary lowers a binary operator application. Short-circuit operators
// evaluate lazily; everything else evaluates both operands first and
// dispatches on their kinds.
func (g *generator) genBinary(e *ir.Binary) (value, *diag.Error) {
	if e.Op == "&&" || e.Op == "||" {
		return g.genShortCircuit(e)
	}

	lhs, err := g.genExpr(e.LHS)
	if err != nil {
		return value{}, err
	}
	rhs, err := g.genExpr(e.RHS)
	if err != nil {
		return value{}, err
	}

	if lhs.t.IsMatrix() || rhs.t.IsMatrix() {
		return g.genMatrixBinary(e.Op, lhs, rhs, e.Pos)
	}

	switch e.Op {
	case "==", "!=", "<", "<=", ">", ">=":
		b, err := g.cmpScalar(e.Op, lhs, rhs, e.Pos)
		if err != nil {
			return value{}, err
		}
		return g.boolInt(b), nil
	case "&", "|", "^":
		if lhs.t.Kind != ir.Int || rhs.t.Kind != ir.Int {
			return value{}, diag.TypeOpf(e.Pos, "operator %s requires integer operands, got %s and %s", e.Op, lhs.t, rhs.t)
		}
		var v llvm.Value
		switch e.Op {
		case "&":
			v = g.b.CreateAnd(lhs.v, rhs.v, "")
		case "|":
			v = g.b.CreateOr(lhs.v, rhs.v, "")
		default:
			v = g.b.CreateXor(lhs.v, rhs.v, "")
		}
		return value{v: v, t: ir.T(ir.Int)}, nil
	case "**":
		return g.genPower(e, lhs, rhs)
	}

	// String concatenation.
	if lhs.t.Kind == ir.String || rhs.t.Kind == ir.String {
		if e.Op == "+" && lhs.t.Kind == ir.String && rhs.t.Kind == ir.String {
			s := g.b.CreateCall(g.rt("str_concat"), []llvm.Value{lhs.v, rhs.v}, "")
			g.disposeTemp(lhs)
			g.disposeTemp(rhs)
			return value{v: s, t: ir.T(ir.String), owned: true}, nil
		}
		return value{}, diag.TypeOpf(e.Pos, "operator %s not defined for %s and %s", e.Op, lhs.t, rhs.t)
	}

	// Numeric arithmetic with promotion.
	want := ir.Promote(lhs.t, rhs.t)
	if want.Kind == ir.Invalid {
		return value{}, diag.TypeOpf(e.Pos, "operator %s not defined for %s and %s", e.Op, lhs.t, rhs.t)
	}
	lhs, cerr := g.cast(lhs, want, e.LHS.Span())
	if cerr != nil {
		return value{}, cerr
	}
	rhs, cerr = g.cast(rhs, want, e.RHS.Span())
	if cerr != nil {
		return value{}, cerr
	}

	if want.Kind == ir.Complex {
		return g.genComplexArith(e.Op, lhs, rhs, e.Pos)
	}
	return g.genNumericArith(e.Op, want, lhs, rhs, e.Pos)
}

// genNumericArith emits integer or float arithmetic. Integer division and
// modulo get a runtime zero check; float follows IEEE-754 and never traps.
func (g *generator) genNumericArith(op string, want ir.Type, lhs, rhs value, sp ir.Span) (value, *diag.Error) {
	if want.Kind == ir.Int {
		var v llvm.Value
		switch op {
		case "+":
			v = g.b.CreateAdd(lhs.v, rhs.v, "")
		case "-":
			v = g.b.CreateSub(lhs.v, rhs.v, "")
		case "*":
			v = g.b.CreateMul(lhs.v, rhs.v, "")
		case "/":
			g.zeroCheck(rhs.v)
			v = g.b.CreateSDiv(lhs.v, rhs.v, "")
		case "%":
			g.zeroCheck(rhs.v)
			v = g.b.CreateSRem(lhs.v, rhs.v, "")
		default:
			return value{}, diag.TypeOpf(sp, "operator %s not defined for int", op)
		}
		return value{v: v, t: want}, nil
	}

	var v llvm.Value
	switch op {
	case "+":
		v = g.b.CreateFAdd(lhs.v, rhs.v, "")
	case "-":
		v = g.b.CreateFSub(lhs.v, rhs.v, "")
	case "*":
		v = g.b.CreateFMul(lhs.v, rhs.v, "")
	case "/":
		v = g.b.CreateFDiv(lhs.v, rhs.v, "")
	case "%":
		v = g.b.CreateFRem(lhs.v, rhs.v, "")
	default:
		return value{}, diag.TypeOpf(sp, "operator %s not defined for float", op)
	}
	return value{v: v, t: want}, nil
}

// zeroCheck emits the integer division-by-zero trap: if the divisor is
// zero control transfers to the runtime trap, which never returns.
func (g *generator) zeroCheck(divisor llvm.Value) {
	trap := llvm.AddBasicBlock(g.fn, "div.zero")
	cont := llvm.AddBasicBlock(g.fn, "div.ok")

	isZero := g.b.CreateICmp(llvm.IntEQ, divisor, llvm.ConstInt(g.t.i64, 0, false), "")
	g.b.CreateCondBr(isZero, trap, cont)

	g.b.SetInsertPointAtEnd(trap)
	g.b.CreateCall(g.rt("brix_division_by_zero_error"), []llvm.Value{}, "")
	g.b.CreateUnreachable()

	g.b.SetInsertPointAtEnd(cont)
}

// genPower lowers the ** operator. An integer base with a non-negative
// compile-time integer exponent unrolls to binary exponentiation; complex
// operands go through complex_pow; everything else goes through pow with
// the result cast back for integer operands.
func (g *generator) genPower(e *ir.Binary, lhs, rhs value) (value, *diag.Error) {
	if lit, ok := e.RHS.(*ir.IntLit); ok && lhs.t.Kind == ir.Int && lit.Value >= 0 {
		// Repeated squaring with the exponent known at compile time.
		result := llvm.ConstInt(g.t.i64, 1, false)
		square := lhs.v
		for n := lit.Value; n > 0; n >>= 1 {
			if n&1 == 1 {
				result = g.b.CreateMul(result, square, "")
			}
			if n > 1 {
				square = g.b.CreateMul(square, square, "")
			}
		}
		return value{v: result, t: ir.T(ir.Int)}, nil
	}

	if lhs.t.Kind == ir.Complex || rhs.t.Kind == ir.Complex {
		l, err := g.cast(lhs, ir.T(ir.Complex), e.LHS.Span())
		if err != nil {
			return value{}, err
		}
		r, err := g.cast(rhs, ir.T(ir.Complex), e.RHS.Span())
		if err != nil {
			return value{}, err
		}
		v := g.b.CreateCall(g.rt("complex_pow"), []llvm.Value{l.v, r.v}, "")
		return value{v: v, t: ir.T(ir.Complex)}, nil
	}

	bothInt := lhs.t.Kind == ir.Int && rhs.t.Kind == ir.Int
	l, err := g.cast(lhs, ir.T(ir.Float), e.LHS.Span())
	if err != nil {
		return value{}, err
	}
	r, err := g.cast(rhs, ir.T(ir.Float), e.RHS.Span())
	if err != nil {
		return value{}, err
	}
	v := g.b.CreateCall(g.cfn("pow"), []llvm.Value{l.v, r.v}, "")
	if bothInt {
		return value{v: g.b.CreateFPToSI(v, g.t.i64, ""), t: ir.T(ir.Int)}, nil
	}
	return value{v: v, t: ir.T(ir.Float)}, nil
}

// genShortCircuit lowers && and || with a conditional branch and a PHI at
// the merge whose incoming values are the short-circuit constant and the
// evaluated right operand.
func (g *generator) genShortCircuit(e *ir.Binary) (value, *diag.Error) {
	lhs, err := g.genExpr(e.LHS)
	if err != nil {
		return value{}, err
	}
	lb, terr := g.truthy(lhs, e.LHS.Span())
	if terr != nil {
		return value{}, terr
	}
	fromLHS := g.b.GetInsertBlock()

	rhsBB := llvm.AddBasicBlock(g.fn, "sc.rhs")
	merge := llvm.AddBasicBlock(g.fn, "sc.merge")

	var short llvm.Value
	if e.Op == "&&" {
		g.b.CreateCondBr(lb, rhsBB, merge)
		short = llvm.ConstInt(g.t.i64, 0, false)
	} else {
		g.b.CreateCondBr(lb, merge, rhsBB)
		short = llvm.ConstInt(g.t.i64, 1, false)
	}

	g.b.SetInsertPointAtEnd(rhsBB)
	rhs, err := g.genExpr(e.RHS)
	if err != nil {
		return value{}, err
	}
	rb, terr := g.truthy(rhs, e.RHS.Span())
	if terr != nil {
		return value{}, terr
	}
	rint := g.b.CreateZExt(rb, g.t.i64, "")
	fromRHS := g.b.GetInsertBlock()
	g.b.CreateBr(merge)

	g.b.SetInsertPointAtEnd(merge)
	phi := g.b.CreatePHI(g.t.i64, "")
	phi.AddIncoming([]llvm.Value{short, rint}, []llvm.BasicBlock{fromLHS, fromRHS})
	return value{v: phi, t: ir.T(ir.Int)}, nil
}

// genTernary lowers cond ? a : b with two arm blocks and a PHI of the
// unified arm type.
func (g *generator) genTernary(e *ir.Ternary) (value, *diag.Error) {
	cond, err := g.genExpr(e.Cond)
	if err != nil {
		return value{}, err
	}
	c, terr := g.truthy(cond, e.Cond.Span())
	if terr != nil {
		return value{}, terr
	}

	thn := llvm.AddBasicBlock(g.fn, "tern.then")
	els := llvm.AddBasicBlock(g.fn, "tern.else")
	merge := llvm.AddBasicBlock(g.fn, "tern.merge")
	g.b.CreateCondBr(c, thn, els)

	// Lower both arms without terminators; the branch to the merge block
	// is emitted after the unified type is known so casts land inside the
	// right arm.
	g.b.SetInsertPointAtEnd(thn)
	tv, err := g.genExpr(e.Then)
	if err != nil {
		return value{}, err
	}
	tBlk := g.b.GetInsertBlock()

	g.b.SetInsertPointAtEnd(els)
	ev, err := g.genExpr(e.Else)
	if err != nil {
		return value{}, err
	}
	eBlk := g.b.GetInsertBlock()

	unified, uerr := g.unify(tv.t, ev.t, e.Pos)
	if uerr != nil {
		return value{}, uerr
	}

	g.b.SetInsertPointAtEnd(tBlk)
	tv, cerr := g.cast(tv, unified, e.Then.Span())
	if cerr != nil {
		return value{}, cerr
	}
	tBlk = g.b.GetInsertBlock()
	g.b.CreateBr(merge)

	g.b.SetInsertPointAtEnd(eBlk)
	ev, cerr = g.cast(ev, unified, e.Else.Span())
	if cerr != nil {
		return value{}, cerr
	}
	eBlk = g.b.GetInsertBlock()
	g.b.CreateBr(merge)

	g.b.SetInsertPointAtEnd(merge)
	phi := g.b.CreatePHI(g.t.lower(unified), "")
	phi.AddIncoming([]llvm.Value{tv.v, ev.v}, []llvm.BasicBlock{tBlk, eBlk})
	return value{v: phi, t: unified, owned: tv.owned || ev.owned}, nil
}

// unify returns the common type of two branch values, permitting numeric
// promotion.
func (g *generator) unify(a, b ir.Type, sp ir.Span) (ir.Type, *diag.Error) {
	if a.Equal(b) {
		return a, nil
	}
	if p := ir.Promote(a, b); p.Kind != ir.Invalid {
		return p, nil
	}
	if a.Kind == ir.IntMatrix && b.Kind == ir.Matrix || a.Kind == ir.Matrix && b.Kind == ir.IntMatrix {
		return ir.T(ir.Matrix), nil
	}
	return ir.T(ir.Invalid), diag.TypeOpf(sp, "branches have incompatible types %s and %s", a, b)
}

// genChainedCmp lowers a comparison chain: every term evaluates exactly
// once, in order, then the pairwise comparisons AND together left to
// right.
func (g *generator) genChainedCmp(e *ir.ChainedCmp) (value, *diag.Error) {
	terms := make([]value, len(e.Terms))
	for i1, e1 := range e.Terms {
		v, err := g.genExpr(e1)
		if err != nil {
			return value{}, err
		}
		terms[i1] = v
	}

	var acc llvm.Value
	for i1, op := range e.Ops {
		b, err := g.cmpScalar(op, terms[i1], terms[i1+1], e.Pos)
		if err != nil {
			return value{}, err
		}
		if i1 == 0 {
			acc = b
		} else {
			acc = g.b.CreateAnd(acc, b, "")
		}
	}
	return g.boolInt(acc), nil
}

// cmpScalar emits one scalar comparison and returns an i1. Numeric
// operands promote pairwise; strings compare with == and != only, as do
// atoms and nil.
func (g *generator) cmpScalar(op string, lhs, rhs value, sp ir.Span) (llvm.Value, *diag.Error) {
	// String equality.
	if lhs.t.Kind == ir.String && rhs.t.Kind == ir.String {
		if op != "==" && op != "!=" {
			return llvm.Value{}, diag.TypeOpf(sp, "operator %s not defined for string", op)
		}
		eq := g.b.CreateCall(g.rt("str_eq"), []llvm.Value{lhs.v, rhs.v}, "")
		g.disposeTemp(lhs)
		g.disposeTemp(rhs)
		cmp := g.b.CreateICmp(llvm.IntNE, eq, llvm.ConstInt(g.t.i64, 0, false), "")
		if op == "!=" {
			cmp = g.b.CreateNot(cmp, "")
		}
		return cmp, nil
	}

	// Atom equality on interned ids.
	if lhs.t.Kind == ir.Atom && rhs.t.Kind == ir.Atom {
		if op != "==" && op != "!=" {
			return llvm.Value{}, diag.TypeOpf(sp, "operator %s not defined for atom", op)
		}
		pred := llvm.IntEQ
		if op == "!=" {
			pred = llvm.IntNE
		}
		return g.b.CreateICmp(pred, lhs.v, rhs.v, ""), nil
	}

	// Complex equality compares components.
	if lhs.t.Kind == ir.Complex || rhs.t.Kind == ir.Complex {
		if op != "==" && op != "!=" {
			return llvm.Value{}, diag.TypeOpf(sp, "operator %s not defined for complex", op)
		}
		l, err := g.cast(lhs, ir.T(ir.Complex), sp)
		if err != nil {
			return llvm.Value{}, err
		}
		r, err := g.cast(rhs, ir.T(ir.Complex), sp)
		if err != nil {
			return llvm.Value{}, err
		}
		re := g.b.CreateFCmp(llvm.FloatOEQ, g.b.CreateExtractValue(l.v, 0, ""), g.b.CreateExtractValue(r.v, 0, ""), "")
		im := g.b.CreateFCmp(llvm.FloatOEQ, g.b.CreateExtractValue(l.v, 1, ""), g.b.CreateExtractValue(r.v, 1, ""), "")
		cmp := g.b.CreateAnd(re, im, "")
		if op == "!=" {
			cmp = g.b.CreateNot(cmp, "")
		}
		return cmp, nil
	}

	want := ir.Promote(lhs.t, rhs.t)
	if want.Kind == ir.Invalid {
		return llvm.Value{}, diag.TypeOpf(sp, "cannot compare %s and %s", lhs.t, rhs.t)
	}
	l, err := g.cast(lhs, want, sp)
	if err != nil {
		return llvm.Value{}, err
	}
	r, err := g.cast(rhs, want, sp)
	if err != nil {
		return llvm.Value{}, err
	}

	if want.Kind == ir.Int {
		var pred llvm.IntPredicate
		switch op {
		case "==":
			pred = llvm.IntEQ
		case "!=":
			pred = llvm.IntNE
		case "<":
			pred = llvm.IntSLT
		case "<=":
			pred = llvm.IntSLE
		case ">":
			pred = llvm.IntSGT
		case ">=":
			pred = llvm.IntSGE
		}
		return g.b.CreateICmp(pred, l.v, r.v, ""), nil
	}
	var pred llvm.FloatPredicate
	switch op {
	case "==":
		pred = llvm.FloatOEQ
	case "!=":
		pred = llvm.FloatONE
	case "<":
		pred = llvm.FloatOLT
	case "<=":
		pred = llvm.FloatOLE
	case ">":
		pred = llvm.FloatOGT
	case ">=":
		pred = llvm.FloatOGE
	}
	return g.b.CreateFCmp(pred, l.v, r.v, ""), nil
}

// genUnary lowers prefix and postfix unary operators. Increment and
// decrement read, modify and write their l-value operand; the pre- and
// post-forms differ only in which value the expression yields.
func (g *generator) genUnary(e *ir.Unary) (value, *diag.Error) {
	if e.Op == "++" || e.Op == "--" {
		return g.genIncDec(e)
	}

	v, err := g.genExpr(e.Operand)
	if err != nil {
		return value{}, err
	}

	switch e.Op {
	case "-":
		switch v.t.Kind {
		case ir.Int:
			return value{v: g.b.CreateSub(llvm.ConstInt(g.t.i64, 0, false), v.v, ""), t: v.t}, nil
		case ir.Float:
			return value{v: g.b.CreateFNeg(v.v, ""), t: v.t}, nil
		case ir.Complex:
			re := g.b.CreateFNeg(g.b.CreateExtractValue(v.v, 0, ""), "")
			im := g.b.CreateFNeg(g.b.CreateExtractValue(v.v, 1, ""), "")
			return g.makeComplex(re, im), nil
		case ir.Matrix, ir.IntMatrix:
			// -m lowers to 0 - m through the scalar helper family.
			kind := "matrix"
			var zero llvm.Value = llvm.ConstFloat(g.t.f64, 0)
			if v.t.Kind == ir.IntMatrix {
				kind = "intmatrix"
				zero = llvm.ConstInt(g.t.i64, 0, true)
			}
			fn := g.matrixHelper(kind, "-", "scalar_matrix")
			out := g.b.CreateCall(fn, []llvm.Value{zero, v.v}, "")
			g.disposeTemp(v)
			return value{v: out, t: v.t, owned: true}, nil
		}
		return value{}, diag.TypeOpf(e.Pos, "operator - not defined for %s", v.t)
	case "!":
		b, terr := g.truthy(v, e.Operand.Span())
		if terr != nil {
			return value{}, terr
		}
		return g.boolInt(g.b.CreateNot(b, "")), nil
	}
	return value{}, diag.Generalf(e.Pos, "unhandled unary operator %s", e.Op)
}

// genIncDec lowers ++ and -- in both fixities.
func (g *generator) genIncDec(e *ir.Unary) (value, *diag.Error) {
	var ptr llvm.Value
	var typ ir.Type

	switch target := e.Operand.(type) {
	case *ir.Ident:
		sym, ok := g.syms.lookup(target.Name)
		if !ok {
			return value{}, diag.Undefinedf(target.Pos, target.Name)
		}
		if sym.constant {
			return value{}, diag.Invalidf(e.Pos, "cannot modify const binding %q", target.Name)
		}
		ptr = sym.slot
		typ = sym.typ
	case *ir.Index:
		base, err := g.genExpr(target.Target)
		if err != nil {
			return value{}, err
		}
		if !base.t.IsMatrix() {
			return value{}, diag.TypeOpf(target.Pos, "cannot index into %s", base.t)
		}
		p, et, err := g.elemPtr(base, target.Indices, target.Pos)
		if err != nil {
			return value{}, err
		}
		ptr = p
		typ = et
	default:
		return value{}, diag.Invalidf(e.Pos, "%s requires a variable or element operand", e.Op)
	}

	old := g.b.CreateLoad(ptr, "")
	var next llvm.Value
	switch typ.Kind {
	case ir.Int:
		one := llvm.ConstInt(g.t.i64, 1, false)
		if e.Op == "++" {
			next = g.b.CreateAdd(old, one, "")
		} else {
			next = g.b.CreateSub(old, one, "")
		}
	case ir.Float:
		one := llvm.ConstFloat(g.t.f64, 1)
		if e.Op == "++" {
			next = g.b.CreateFAdd(old, one, "")
		} else {
			next = g.b.CreateFSub(old, one, "")
		}
	default:
		return value{}, diag.TypeOpf(e.Pos, "operator %s not defined for %s", e.Op, typ)
	}
	g.b.CreateStore(next, ptr)

	if e.Postfix {
		return value{v: old, t: typ}, nil
	}
	return value{v: next, t: typ}, nil
}

// genIndex loads one element through row-major address arithmetic, or
// projects a tuple component by constant index.
func (g *generator) genIndex(e *ir.Index) (value, *diag.Error) {
	target, err := g.genExpr(e.Target)
	if err != nil {
		return value{}, err
	}

	if target.t.Kind == ir.Tuple {
		if len(e.Indices) != 1 {
			return value{}, diag.Invalidf(e.Pos, "tuple projection takes a single index")
		}
		lit, ok := e.Indices[0].(*ir.IntLit)
		if !ok {
			return value{}, diag.Invalidf(e.Pos, "tuple projection requires a constant index")
		}
		if lit.Value < 0 || int(lit.Value) >= len(target.t.Elems) {
			return value{}, diag.Invalidf(e.Pos, "tuple index %d out of range", lit.Value)
		}
		return value{
			v: g.b.CreateExtractValue(target.v, int(lit.Value), ""),
			t: target.t.Elems[lit.Value],
		}, nil
	}

	if !target.t.IsMatrix() {
		return value{}, diag.TypeOpf(e.Pos, "cannot index into %s", target.t)
	}
	ptr, elemType, perr := g.elemPtr(target, e.Indices, e.Pos)
	if perr != nil {
		return value{}, perr
	}
	elem := g.b.CreateLoad(ptr, "")
	g.disposeTemp(target)
	return value{v: elem, t: elemType}, nil
}

// genField dispatches field access at compile time on the base type:
// .len on strings, .rows/.cols/.data on matrices.
func (g *generator) genField(e *ir.Field) (value, *diag.Error) {
	if base, ok := e.Target.(*ir.Ident); ok {
		if _, imported := g.imports[base.Name]; imported {
			return value{}, diag.Invalidf(e.Pos, "library function %q is not a value", base.Name+"."+e.Name)
		}
	}

	target, err := g.genExpr(e.Target)
	if err != nil {
		return value{}, err
	}

	if target.t.Kind == ir.String {
		if e.Name != "len" {
			return value{}, diag.TypeOpf(e.Pos, "string has no field %q", e.Name)
		}
		ptr := g.b.CreateStructGEP(target.v, 1, "")
		n := g.b.CreateLoad(ptr, "")
		g.disposeTemp(target)
		return value{v: n, t: ir.T(ir.Int)}, nil
	}

	if target.t.IsMatrix() {
		switch e.Name {
		case "rows":
			n := g.b.CreateLoad(g.b.CreateStructGEP(target.v, 1, ""), "")
			g.disposeTemp(target)
			return value{v: n, t: ir.T(ir.Int)}, nil
		case "cols":
			n := g.b.CreateLoad(g.b.CreateStructGEP(target.v, 2, ""), "")
			g.disposeTemp(target)
			return value{v: n, t: ir.T(ir.Int)}, nil
		case "data":
			if target.t.Kind != ir.Matrix {
				return value{}, diag.TypeOpf(e.Pos, "%s has no field %q", target.t, e.Name)
			}
			p := g.b.CreateLoad(g.b.CreateStructGEP(target.v, 3, ""), "")
			return value{v: p, t: ir.T(ir.FloatPtr)}, nil
		}
		return value{}, diag.TypeOpf(e.Pos, "%s has no field %q", target.t, e.Name)
	}

	return value{}, diag.TypeOpf(e.Pos, "%s has no fields", target.t)
}

// genCall dispatches a call: imported library functions first, then the
// user function registry, then the built-in table.
func (g *generator) genCall(e *ir.Call) (value, *diag.Error) {
	// Imported module call: alias.name(args).
	if field, ok := e.Callee.(*ir.Field); ok {
		if base, ok := field.Target.(*ir.Ident); ok {
			if _, imported := g.imports[base.Name]; imported {
				return g.genMathCall(e, field.Name)
			}
		}
	}

	name, ok := calleeName(e.Callee)
	if !ok {
		return value{}, diag.Invalidf(e.Pos, "expression is not callable")
	}

	if def := g.funcs.Lookup(name); def != nil {
		return g.genUserCall(e, def)
	}
	return g.genBuiltin(e, name)
}

// calleeName extracts the called name from a plain identifier callee.
func calleeName(e ir.Expr) (string, bool) {
	if id, ok := e.(*ir.Ident); ok {
		return id.Name, true
	}
	return "", false
}

// genMathCall lowers a call into the imported math library. Complex
// arguments reroute to the complex helper family where one exists.
func (g *generator) genMathCall(e *ir.Call, name string) (value, *diag.Error) {
	arity, ok := mathFuncs[name]
	if !ok {
		return value{}, diag.Undefinedf(e.Pos, "math."+name)
	}
	if len(e.Args) != arity {
		return value{}, diag.TypeOpf(e.Pos, "math.%s expects %d arguments, got %d", name, arity, len(e.Args))
	}

	args := make([]value, len(e.Args))
	anyComplex := false
	for i1, e1 := range e.Args {
		v, err := g.genExpr(e1)
		if err != nil {
			return value{}, err
		}
		args[i1] = v
		if v.t.Kind == ir.Complex {
			anyComplex = true
		}
	}

	if anyComplex {
		helper, ok := complexMath[name]
		if !ok || arity != 1 {
			return value{}, diag.TypeOpf(e.Pos, "math.%s not defined for complex", name)
		}
		v := g.b.CreateCall(g.rt(helper), []llvm.Value{args[0].v}, "")
		return value{v: v, t: ir.T(ir.Complex)}, nil
	}

	raw := make([]llvm.Value, len(args))
	for i1, e1 := range args {
		v, err := g.cast(e1, ir.T(ir.Float), e.Args[i1].Span())
		if err != nil {
			return value{}, err
		}
		raw[i1] = v.v
	}
	v := g.b.CreateCall(g.mathFn(name, arity), raw, "")
	return value{v: v, t: ir.T(ir.Float)}, nil
}

// genUserCall lowers a call to a registered user function. Omitted
// trailing arguments evaluate their parameter defaults at the call site,
// after the given arguments bind.
func (g *generator) genUserCall(e *ir.Call, def *ir.FunctionDef) (value, *diag.Error) {
	if len(e.Args) > len(def.Params) {
		return value{}, diag.TypeOpf(e.Pos, "function %q expects at most %d arguments, got %d",
			def.Name, len(def.Params), len(e.Args))
	}

	args := make([]llvm.Value, len(def.Params))
	temps := make([]value, 0, len(def.Params))
	for i1, param := range def.Params {
		var v value
		var err *diag.Error
		var sp ir.Span
		if i1 < len(e.Args) {
			v, err = g.genExpr(e.Args[i1])
			sp = e.Args[i1].Span()
		} else if param.Default != nil {
			v, err = g.genExpr(param.Default)
			sp = param.Default.Span()
		} else {
			return value{}, diag.Missingf(e.Pos, "missing argument %q in call to %q", param.Name, def.Name)
		}
		if err != nil {
			return value{}, err
		}
		v, cerr := g.cast(v, param.Type, sp)
		if cerr != nil {
			return value{}, cerr
		}
		args[i1] = v.v
		temps = append(temps, v)
	}

	fun := g.m.NamedFunction(userPrefix + def.Name)
	out := g.b.CreateCall(fun, args, "")
	for _, e1 := range temps {
		g.disposeTemp(e1)
	}
	if def.RetType.Kind == ir.Void {
		return value{t: ir.T(ir.Void)}, nil
	}
	return value{v: out, t: def.RetType, owned: def.RetType.IsBoxed()}, nil
}

// genArrayLit lowers [..] literals. A literal whose elements are all
// integers yields an IntMatrix; any float element promotes the whole
// literal to Matrix; complex elements promote to ComplexMatrix. Nested
// rows of equal length form 2-D matrices.
func (g *generator) genArrayLit(e *ir.ArrayLit) (value, *diag.Error) {
	rows, cols, elems, err := flattenArrayLit(e)
	if err != nil {
		return value{}, err
	}
	if len(elems) == 0 {
		out := g.b.CreateCall(g.rt("matrix_new"),
			[]llvm.Value{llvm.ConstInt(g.t.i64, 0, false), llvm.ConstInt(g.t.i64, 0, false)}, "")
		return value{v: out, t: ir.T(ir.Matrix), owned: true}, nil
	}

	vals := make([]value, len(elems))
	elemKind := ir.Int
	for i1, e1 := range elems {
		v, gerr := g.genExpr(e1)
		if gerr != nil {
			return value{}, gerr
		}
		switch v.t.Kind {
		case ir.Int:
		case ir.Float:
			if elemKind == ir.Int {
				elemKind = ir.Float
			}
		case ir.Complex:
			elemKind = ir.Complex
		default:
			return value{}, diag.TypeOpf(e1.Span(), "array elements must be numeric, got %s", v.t)
		}
		vals[i1] = v
	}

	var matType ir.Type
	var newFn string
	switch elemKind {
	case ir.Int:
		matType = ir.T(ir.IntMatrix)
		newFn = "intmatrix_new"
	case ir.Float:
		matType = ir.T(ir.Matrix)
		newFn = "matrix_new"
	default:
		matType = ir.T(ir.ComplexMatrix)
		newFn = "complexmatrix_new"
	}

	out := g.b.CreateCall(g.rt(newFn), []llvm.Value{
		llvm.ConstInt(g.t.i64, uint64(rows), false),
		llvm.ConstInt(g.t.i64, uint64(cols), false),
	}, "")
	data := g.b.CreateLoad(g.b.CreateStructGEP(out, 3, ""), "")

	for i1, v := range vals {
		v, cerr := g.cast(v, ir.T(elemKind), elems[i1].Span())
		if cerr != nil {
			return value{}, cerr
		}
		ptr := g.b.CreateGEP(data, []llvm.Value{llvm.ConstInt(g.t.i64, uint64(i1), false)}, "")
		g.b.CreateStore(v.v, ptr)
	}
	return value{v: out, t: matType, owned: true}, nil
}

// flattenArrayLit returns the shape and row-major element list of an
// array literal, validating that nested rows have equal lengths.
func flattenArrayLit(e *ir.ArrayLit) (rows, cols int, elems []ir.Expr, err *diag.Error) {
	if len(e.Elems) == 0 {
		return 0, 0, nil, nil
	}
	if first, ok := e.Elems[0].(*ir.ArrayLit); ok {
		rows = len(e.Elems)
		cols = len(first.Elems)
		for _, e1 := range e.Elems {
			row, ok := e1.(*ir.ArrayLit)
			if !ok {
				return 0, 0, nil, diag.TypeOpf(e1.Span(), "mixed scalar and row elements in array literal")
			}
			if len(row.Elems) != cols {
				return 0, 0, nil, diag.TypeOpf(e1.Span(), "rows of unequal length in array literal")
			}
			elems = append(elems, row.Elems...)
		}
		return rows, cols, elems, nil
	}
	for _, e1 := range e.Elems {
		if _, nested := e1.(*ir.ArrayLit); nested {
			return 0, 0, nil, diag.TypeOpf(e1.Span(), "mixed scalar and row elements in array literal")
		}
	}
	return 1, len(e.Elems), e.Elems, nil
}

// genTupleLit builds a tuple aggregate. Borrowed boxed components are
// retained so the tuple owns every component.
func (g *generator) genTupleLit(e *ir.TupleLit) (value, *diag.Error) {
	elems := make([]value, len(e.Elems))
	types := make([]ir.Type, len(e.Elems))
	for i1, e1 := range e.Elems {
		v, err := g.genExpr(e1)
		if err != nil {
			return value{}, err
		}
		if v.t.IsBoxed() && !v.owned {
			g.retain(v)
		}
		elems[i1] = v
		types[i1] = v.t
	}

	typ := ir.TupleOf(types...)
	agg := llvm.Undef(g.t.lower(typ))
	for i1, e1 := range elems {
		agg = g.b.CreateInsertValue(agg, e1.v, i1, "")
	}
	return value{v: agg, t: typ, owned: true}, nil
}

// genStaticInit lowers int[n] and float[r, c] to zero-initialised
// matrices.
func (g *generator) genStaticInit(e *ir.StaticInit) (value, *diag.Error) {
	dims := make([]llvm.Value, 2)
	switch len(e.Dims) {
	case 1:
		dims[0] = llvm.ConstInt(g.t.i64, 1, false)
		v, err := g.genExpr(e.Dims[0])
		if err != nil {
			return value{}, err
		}
		v, cerr := g.cast(v, ir.T(ir.Int), e.Dims[0].Span())
		if cerr != nil {
			return value{}, cerr
		}
		dims[1] = v.v
	case 2:
		for i1, e1 := range e.Dims {
			v, err := g.genExpr(e1)
			if err != nil {
				return value{}, err
			}
			v, cerr := g.cast(v, ir.T(ir.Int), e1.Span())
			if cerr != nil {
				return value{}, cerr
			}
			dims[i1] = v.v
		}
	}

	newFn := "intmatrix_new"
	typ := ir.T(ir.IntMatrix)
	if e.Kind == ir.Float {
		newFn = "matrix_new"
		typ = ir.T(ir.Matrix)
	}
	out := g.b.CreateCall(g.rt(newFn), dims, "")
	return value{v: out, t: typ, owned: true}, nil
}
