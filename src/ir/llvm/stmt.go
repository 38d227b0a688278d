package llvm

import (
	"tinygo.org/x/go-llvm"

	"brix/src/diag"
	"brix/src/ir"
)

// genStmt lowers one statement. The boolean reports whether the statement
// terminated the current basic block (a return), in which case the caller
// must not emit a fall-through branch.
func (g *generator) genStmt(s ir.Stmt) (bool, *diag.Error) {
	switch s := s.(type) {
	case *ir.VarDecl:
		return false, g.genVarDecl(s)
	case *ir.AssignStmt:
		return false, g.genAssign(s)
	case *ir.IndexAssign:
		return false, g.genIndexAssign(s)
	case *ir.If:
		return g.genIf(s)
	case *ir.While:
		return false, g.genWhile(s)
	case *ir.Return:
		return true, g.genReturn(s)
	case *ir.ExprStmt:
		v, err := g.genExpr(s.X)
		if err != nil {
			return false, err
		}
		g.disposeTemp(v)
		return false, nil
	case *ir.Block:
		return g.genBlock(s)
	case *ir.DestructuringDecl:
		return false, g.genDestructuring(s)
	case *ir.Import:
		return false, diag.Invalidf(s.Pos, "import is only allowed at the top level")
	case *ir.FunctionDef:
		return false, diag.Invalidf(s.Pos, "nested function definitions are not supported")
	}
	return false, diag.Generalf(s.Span(), "unhandled statement")
}

// genBlock lowers the statements of a block in order, stopping at a
// terminator.
func (g *generator) genBlock(blk *ir.Block) (bool, *diag.Error) {
	for _, e1 := range blk.Stmts {
		terminated, err := g.genStmt(e1)
		if err != nil {
			return false, err
		}
		if terminated {
			return true, nil
		}
	}
	return false, nil
}

// genVarDecl allocates the binding's stack slot in the entry block,
// evaluates the initialiser, casts it to the annotated type and stores.
func (g *generator) genVarDecl(s *ir.VarDecl) *diag.Error {
	var init value
	if s.Init != nil {
		v, err := g.genExpr(s.Init)
		if err != nil {
			return err
		}
		init = v
	}

	typ := init.t
	if s.HasAnnot {
		typ = s.Annot
		if s.Init != nil {
			v, err := g.cast(init, typ, s.Init.Span())
			if err != nil {
				return err
			}
			init = v
		}
	} else if s.Init == nil {
		return diag.Missingf(s.Pos, "declaration of %q has no initialiser and no type", s.Name)
	}
	if typ.Kind == ir.Void {
		return diag.Missingf(s.Pos, "initialiser of %q produces no value", s.Name)
	}

	slot := g.alloca(g.t.lower(typ), s.Name)
	g.syms.define(s.Name, symbol{slot: slot, typ: typ, constant: !s.Mut})

	if typ.IsBoxed() {
		// Null-initialise in the entry block so releasing the slot is safe
		// on paths that never reach this declaration.
		cur := g.b.GetInsertBlock()
		g.b.SetInsertPointBefore(g.entryBr)
		g.b.CreateStore(llvm.ConstNull(g.t.lower(typ)), slot)
		g.b.SetInsertPointAtEnd(cur)
		g.trackBoxed(slot, typ)
		if s.Init != nil {
			g.storeBoxed(slot, init)
		}
		return nil
	}

	if s.Init != nil {
		g.b.CreateStore(init.v, slot)
	}
	return nil
}

// genAssign stores into an existing plain-identifier binding. The value is
// cast to the binding's declared type; re-typing is not permitted.
func (g *generator) genAssign(s *ir.AssignStmt) *diag.Error {
	sym, ok := g.syms.lookup(s.Name)
	if !ok {
		return diag.Undefinedf(s.Pos, s.Name)
	}
	if sym.constant {
		return diag.Invalidf(s.Pos, "cannot assign to const binding %q", s.Name)
	}
	if sym.slot.IsNil() {
		return diag.Invalidf(s.Pos, "%q is not assignable", s.Name)
	}

	v, err := g.genExpr(s.Value)
	if err != nil {
		return err
	}
	v, cerr := g.cast(v, sym.typ, s.Value.Span())
	if cerr != nil {
		return cerr
	}

	if sym.typ.IsBoxed() {
		g.storeBoxed(sym.slot, v)
		return nil
	}
	g.b.CreateStore(v.v, sym.slot)
	return nil
}

// genIndexAssign stores through an element l-value with row-major address
// arithmetic.
func (g *generator) genIndexAssign(s *ir.IndexAssign) *diag.Error {
	// The base must be a named matrix binding; const bindings reject
	// element mutation.
	base, ok := s.Target.(*ir.Ident)
	if !ok {
		return diag.Invalidf(s.Pos, "element assignment requires a named matrix")
	}
	sym, found := g.syms.lookup(base.Name)
	if !found {
		return diag.Undefinedf(base.Pos, base.Name)
	}
	if sym.constant {
		return diag.Invalidf(s.Pos, "cannot assign to element of const binding %q", base.Name)
	}
	if !sym.typ.IsMatrix() {
		return diag.TypeOpf(s.Pos, "cannot index-assign into %s", sym.typ)
	}

	mat := g.b.CreateLoad(sym.slot, "")
	ptr, elemType, err := g.elemPtr(value{v: mat, t: sym.typ}, s.Indices, s.Pos)
	if err != nil {
		return err
	}

	v, gerr := g.genExpr(s.Value)
	if gerr != nil {
		return gerr
	}
	v, cerr := g.cast(v, elemType, s.Value.Span())
	if cerr != nil {
		return cerr
	}
	g.b.CreateStore(v.v, ptr)
	return nil
}

// elemPtr computes the address of one matrix element. One index addresses
// the backing store linearly; two indices address row-major
// (row*cols + col).
func (g *generator) elemPtr(mat value, indices []ir.Expr, sp ir.Span) (llvm.Value, ir.Type, *diag.Error) {
	elemType := mat.t.ElemType()

	idx := make([]llvm.Value, len(indices))
	for i1, e1 := range indices {
		v, err := g.genExpr(e1)
		if err != nil {
			return llvm.Value{}, elemType, err
		}
		v, cerr := g.cast(v, ir.T(ir.Int), e1.Span())
		if cerr != nil {
			return llvm.Value{}, elemType, cerr
		}
		idx[i1] = v.v
	}

	var offset llvm.Value
	switch len(idx) {
	case 1:
		offset = idx[0]
	case 2:
		colsPtr := g.b.CreateStructGEP(mat.v, 2, "")
		cols := g.b.CreateLoad(colsPtr, "")
		offset = g.b.CreateAdd(g.b.CreateMul(idx[0], cols, ""), idx[1], "")
	default:
		return llvm.Value{}, elemType, diag.Invalidf(sp, "expected one or two indices")
	}

	dataPtr := g.b.CreateStructGEP(mat.v, 3, "")
	data := g.b.CreateLoad(dataPtr, "")
	return g.b.CreateGEP(data, []llvm.Value{offset}, ""), elemType, nil
}

// genIf lowers if/else with fresh then/else/merge blocks. No PHI node is
// introduced: if/else is a statement and produces no value.
func (g *generator) genIf(s *ir.If) (bool, *diag.Error) {
	cond, err := g.genExpr(s.Cond)
	if err != nil {
		return false, err
	}
	c, terr := g.truthy(cond, s.Cond.Span())
	if terr != nil {
		return false, terr
	}

	thn := llvm.AddBasicBlock(g.fn, "then")
	var els llvm.BasicBlock
	merge := llvm.AddBasicBlock(g.fn, "merge")

	if s.Else != nil {
		els = llvm.AddBasicBlock(g.fn, "else")
		g.b.CreateCondBr(c, thn, els)
	} else {
		g.b.CreateCondBr(c, thn, merge)
	}

	// Then arm.
	g.b.SetInsertPointAtEnd(thn)
	termA, err := g.genBlock(s.Then)
	if err != nil {
		return false, err
	}
	if !termA {
		g.b.CreateBr(merge)
	}

	// Else arm.
	termB := false
	if s.Else != nil {
		g.b.SetInsertPointAtEnd(els)
		termB, err = g.genStmt(s.Else)
		if err != nil {
			return false, err
		}
		if !termB {
			g.b.CreateBr(merge)
		}
	}

	g.b.SetInsertPointAtEnd(merge)
	if termA && termB {
		// Both arms returned; the merge block is unreachable.
		g.b.CreateUnreachable()
		return true, nil
	}
	return false, nil
}

// genWhile lowers a while loop with header, body and after blocks.
func (g *generator) genWhile(s *ir.While) *diag.Error {
	header := llvm.AddBasicBlock(g.fn, "while.header")
	body := llvm.AddBasicBlock(g.fn, "while.body")
	after := llvm.AddBasicBlock(g.fn, "while.after")

	g.b.CreateBr(header)
	g.b.SetInsertPointAtEnd(header)
	cond, err := g.genExpr(s.Cond)
	if err != nil {
		return err
	}
	c, terr := g.truthy(cond, s.Cond.Span())
	if terr != nil {
		return terr
	}
	g.b.CreateCondBr(c, body, after)

	g.b.SetInsertPointAtEnd(body)
	terminated, err2 := g.genBlock(s.Body)
	if err2 != nil {
		return err2
	}
	if !terminated {
		g.b.CreateBr(header)
	}

	g.b.SetInsertPointAtEnd(after)
	return nil
}

// genReturn evaluates the return value, casts it to the declared return
// type, releases the function's boxed slots and emits the return.
func (g *generator) genReturn(s *ir.Return) *diag.Error {
	if s.Value == nil {
		if g.fnRet.Kind != ir.Void {
			return diag.Missingf(s.Pos, "return without value in function returning %s", g.fnRet)
		}
		g.releaseScope()
		if g.fn.Name() == "main" {
			g.b.CreateRet(llvm.ConstInt(g.t.i32, 0, false))
		} else {
			g.b.CreateRetVoid()
		}
		return nil
	}

	v, err := g.genExpr(s.Value)
	if err != nil {
		return err
	}
	if g.fn.Name() == "main" {
		// Top-level return: the value becomes the process exit status.
		v, cerr := g.cast(v, ir.T(ir.Int), s.Value.Span())
		if cerr != nil {
			return cerr
		}
		g.releaseScope()
		g.b.CreateRet(g.b.CreateTrunc(v.v, g.t.i32, ""))
		return nil
	}

	v, cerr := g.cast(v, g.fnRet, s.Value.Span())
	if cerr != nil {
		return cerr
	}
	// A borrowed boxed value moves out through the return: retain it so
	// the scope release below does not free it.
	if v.t.IsBoxed() && !v.owned {
		g.retain(v)
	}
	g.releaseScope()
	g.b.CreateRet(v.v)
	return nil
}

// genImport populates the symbol table with module-prefixed entries for
// the imported library. No IR is emitted here; external declarations
// materialise on first reference.
func (g *generator) genImport(s *ir.Import) *diag.Error {
	if s.Module != "math" {
		return diag.Undefinedf(s.Pos, s.Module)
	}
	g.imports[s.Alias] = s.Module
	for name := range mathFuncs {
		g.syms.define(s.Alias+"."+name, symbol{typ: ir.T(ir.Float)})
	}
	return nil
}

// genDestructuring evaluates a tuple-producing initialiser and unpacks its
// components into fresh bindings by index projection. The wildcard name _
// discards its component without allocating a slot.
func (g *generator) genDestructuring(s *ir.DestructuringDecl) *diag.Error {
	v, err := g.genExpr(s.Init)
	if err != nil {
		return err
	}
	if v.t.Kind != ir.Tuple {
		return diag.TypeOpf(s.Init.Span(), "destructuring requires a tuple initialiser, got %s", v.t)
	}
	if len(s.Names) != len(v.t.Elems) {
		return diag.TypeOpf(s.Pos, "cannot unpack %d components into %d names", len(v.t.Elems), len(s.Names))
	}

	for i1, name := range s.Names {
		if name == "_" {
			continue
		}
		comp := value{v: g.b.CreateExtractValue(v.v, i1, ""), t: v.t.Elems[i1]}
		slot := g.alloca(g.t.lower(comp.t), name)
		g.syms.define(name, symbol{slot: slot, typ: comp.t})
		if comp.t.IsBoxed() {
			cur := g.b.GetInsertBlock()
			g.b.SetInsertPointBefore(g.entryBr)
			g.b.CreateStore(llvm.ConstNull(g.t.lower(comp.t)), slot)
			g.b.SetInsertPointAtEnd(cur)
			g.trackBoxed(slot, comp.t)
			g.storeBoxed(slot, value{v: comp.v, t: comp.t, owned: v.owned})
			continue
		}
		g.b.CreateStore(comp.v, slot)
	}
	return nil
}
