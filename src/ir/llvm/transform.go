// Package llvm lowers the typed syntax tree into LLVM IR for the system
// installed LLVM runtime, and drives object emission through the LLVM
// target machine. The pipeline is strictly sequential: function headers,
// then function bodies, then the implicit main built from the program's
// top-level statements.
package llvm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"tinygo.org/x/go-llvm"

	"brix/src/diag"
	"brix/src/ir"
	"brix/src/util"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// value is the result of lowering one expression: the LLVM value and its
// semantic type. owned marks fresh boxed allocations whose ownership the
// current expression holds; it drives retain/release insertion.
type value struct {
	v     llvm.Value
	t     ir.Type
	owned bool
}

// boxedSlot records a stack slot holding a reference-counted value. All
// live boxed slots are released when control leaves the function.
type boxedSlot struct {
	slot llvm.Value
	typ  ir.Type
}

// userPrefix prefixes every user function symbol so that user names can
// never collide with the runtime ABI or libc.
const userPrefix = "bx_"

// generator carries the state of one module's code generation.
type generator struct {
	opt  util.Options
	src  string
	file string

	ctx llvm.Context
	b   llvm.Builder // Cursor builder following the current basic block.
	m   llvm.Module
	t   typer

	syms    *symTab
	funcs   *ir.Registry
	imports map[string]string // Import alias -> module name.

	fn      llvm.Value // Function being generated.
	fnRet   ir.Type
	entryBr llvm.Value  // Terminator of the alloca block; allocas insert before it.
	boxed   []boxedSlot // Boxed slots of the current function.

	strCount int // Counter for global string constant names.
}

// stringPrefix prefixes all global string constants.
const stringPrefix = "L_STR"

// ---------------------
// ----- functions -----
// ---------------------

// GenLLVM generates LLVM IR from the parsed program and emits a native
// object file. Codegen failures return a *diag.Error; toolchain failures
// return a plain error.
func GenLLVM(opt util.Options, prog *ir.Program, src string) error {
	if prog == nil {
		return errors.New("syntax tree is <nil>")
	}

	g, dispose := newGenerator(opt, src)
	defer dispose()

	if err := g.genProgram(prog); err != nil {
		return err
	}

	if opt.EmitLLVM {
		fmt.Print(g.ir())
		return nil
	}
	if opt.Verbose {
		fmt.Println("LLVM IR:")
		g.m.Dump()
	}
	return g.emitObject()
}

// EmitIR generates the module for prog and returns its textual IR without
// touching the target machine. Used by tests; -emit-llvm prints the IR
// from GenLLVM.
func EmitIR(opt util.Options, prog *ir.Program, src string) (string, error) {
	g, dispose := newGenerator(opt, src)
	defer dispose()

	if err := g.genProgram(prog); err != nil {
		return "", err
	}
	return g.ir(), nil
}

// newGenerator builds a generator with a fresh context, builder and
// module. The returned dispose function releases all three.
func newGenerator(opt util.Options, src string) (*generator, func()) {
	ctx := llvm.NewContext()
	b := ctx.NewBuilder()
	name := "brix"
	if len(opt.Src) > 0 {
		name = filepath.Base(opt.Src)
	}
	m := ctx.NewModule(name)

	g := &generator{
		opt:     opt,
		src:     src,
		file:    opt.Src,
		ctx:     ctx,
		b:       b,
		m:       m,
		t:       newTyper(ctx),
		syms:    newSymTab(),
		funcs:   ir.NewRegistry(),
		imports: make(map[string]string),
	}
	return g, func() {
		b.Dispose()
		m.Dispose()
		ctx.Dispose()
	}
}

func (g *generator) ir() string {
	return g.m.String()
}

// genProgram lowers the whole program: imports and function registration
// first, then function headers, then bodies, then the implicit main from
// the top-level statements.
func (g *generator) genProgram(prog *ir.Program) error {
	// Register user functions and process imports up front so that
	// top-level code may call forward.
	rest := make([]ir.Stmt, 0, len(prog.Stmts))
	for _, e1 := range prog.Stmts {
		switch s := e1.(type) {
		case *ir.FunctionDef:
			if !g.funcs.Register(s) {
				return diag.Invalidf(s.Pos, "duplicate function definition %q", s.Name)
			}
		case *ir.Import:
			if err := g.genImport(s); err != nil {
				return err
			}
		default:
			rest = append(rest, e1)
		}
	}

	// Function headers, then bodies, as two passes so bodies may refer to
	// any user function.
	for _, name := range g.funcs.Names() {
		if err := g.genFuncHeader(g.funcs.Lookup(name)); err != nil {
			return err
		}
	}
	for _, name := range g.funcs.Names() {
		if err := g.genFuncBody(g.funcs.Lookup(name)); err != nil {
			return err
		}
	}

	if err := g.genMain(rest); err != nil {
		return err
	}

	if err := llvm.VerifyModule(g.m, llvm.ReturnStatusAction); err != nil {
		return diag.LLVMf(ir.Span{}, "module verification failed: %s", err)
	}
	return nil
}

// genFuncHeader declares the LLVM function for one user definition: name,
// parameter types and return type.
func (g *generator) genFuncHeader(def *ir.FunctionDef) error {
	atyp := make([]llvm.Type, len(def.Params))
	for i1, e1 := range def.Params {
		atyp[i1] = g.t.lower(e1.Type)
	}
	ftyp := llvm.FunctionType(g.t.lower(def.RetType), atyp, false)
	fun := llvm.AddFunction(g.m, userPrefix+def.Name, ftyp)
	for i1, e1 := range def.Params {
		fun.Param(i1).SetName(e1.Name)
	}
	return nil
}

// genFuncBody generates the definition of one user function: parameter
// slots in the entry block, then the lowered body.
func (g *generator) genFuncBody(def *ir.FunctionDef) error {
	fun := g.m.NamedFunction(userPrefix + def.Name)
	if fun.IsNil() {
		return diag.Generalf(def.Pos, "function %q has no declaration", def.Name)
	}

	g.syms.save()
	defer g.syms.restore()

	g.beginFunction(fun, def.RetType)

	// Allocate memory for the function's parameters and record them in
	// the symbol table. Incoming boxed arguments are retained; the slots
	// release on exit like any other binding.
	for i1, e1 := range def.Params {
		slot := g.alloca(g.t.lower(e1.Type), e1.Name)
		g.b.CreateStore(fun.Param(i1), slot)
		g.syms.define(e1.Name, symbol{slot: slot, typ: e1.Type})
		if e1.Type.IsBoxed() {
			g.retain(value{v: fun.Param(i1), t: e1.Type})
			g.trackBoxed(slot, e1.Type)
		}
	}

	terminated, err := g.genBlock(def.Body)
	if err != nil {
		return err
	}
	if !terminated {
		if def.RetType.Kind != ir.Void {
			return diag.Missingf(def.Pos, "function %q may end without returning a value", def.Name)
		}
		g.releaseScope()
		g.b.CreateRetVoid()
	}
	return nil
}

// genMain generates the implicit main function that runs the program's
// top-level statements and returns 0.
func (g *generator) genMain(stmts []ir.Stmt) error {
	ftyp := llvm.FunctionType(g.t.i32, []llvm.Type{}, false)
	main := llvm.AddFunction(g.m, "main", ftyp)

	g.syms.save()
	defer g.syms.restore()

	g.beginFunction(main, ir.T(ir.Void))

	for _, e1 := range stmts {
		terminated, err := g.genStmt(e1)
		if err != nil {
			return err
		}
		if terminated {
			return nil
		}
	}

	g.releaseScope()
	g.b.CreateRet(llvm.ConstInt(g.t.i32, 0, false))
	return nil
}

// beginFunction prepares block structure for a function body. The entry
// block holds only stack slot allocations and terminates with a branch
// into the body block; allocas insert before that branch so that every
// local is allocated exactly once, in the entry block, regardless of
// where its declaration sits in the body.
func (g *generator) beginFunction(fun llvm.Value, ret ir.Type) {
	g.fn = fun
	g.fnRet = ret
	g.boxed = g.boxed[:0]

	entry := llvm.AddBasicBlock(fun, "entry")
	body := llvm.AddBasicBlock(fun, "body")
	g.b.SetInsertPointAtEnd(entry)
	g.entryBr = g.b.CreateBr(body)
	g.b.SetInsertPointAtEnd(body)
}

// alloca creates one stack slot in the function entry block.
func (g *generator) alloca(typ llvm.Type, name string) llvm.Value {
	cur := g.b.GetInsertBlock()
	g.b.SetInsertPointBefore(g.entryBr)
	slot := g.b.CreateAlloca(typ, name)
	g.b.SetInsertPointAtEnd(cur)
	return slot
}

// globalString emits a new numbered global constant C string on every
// call and returns an i8* to it.
func (g *generator) globalString(s string) llvm.Value {
	g.strCount++
	return g.b.CreateGlobalStringPtr(s, fmt.Sprintf("%s%d", stringPrefix, g.strCount))
}

// emitObject drives the LLVM target machine to produce a native object
// file for the host triple at zero optimisation.
func (g *generator) emitObject() error {
	llvm.InitializeAllTargetInfos()
	llvm.InitializeAllTargets()
	llvm.InitializeAllTargetMCs()
	llvm.InitializeAllAsmParsers()
	llvm.InitializeAllAsmPrinters()

	triple := llvm.DefaultTargetTriple()
	target, err := llvm.GetTargetFromTriple(triple)
	if err != nil {
		return err
	}

	tm := target.CreateTargetMachine(triple, "generic", "",
		llvm.CodeGenLevelNone,
		llvm.RelocDefault,
		llvm.CodeModelDefault)
	defer tm.Dispose()

	td := tm.CreateTargetData()
	defer td.Dispose()

	g.m.SetDataLayout(td.String())
	g.m.SetTarget(tm.Triple())

	buf, err := tm.EmitToMemoryBuffer(g.m, llvm.ObjectFile)
	if err != nil {
		return err
	} else if buf.IsNil() {
		return errors.New("could not emit compiled code to memory")
	}

	out := g.opt.Out
	if len(out) == 0 {
		out = fmt.Sprintf("./%s.o", strings.TrimSuffix(filepath.Base(g.opt.Src), filepath.Ext(g.opt.Src)))
	}

	fd, err := os.OpenFile(out, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0755)
	if err != nil {
		return err
	}
	defer func() {
		if err := fd.Close(); err != nil {
			fmt.Println(err)
		}
	}()
	if _, err := fd.Write(buf.Bytes()); err != nil {
		return err
	}
	return nil
}
