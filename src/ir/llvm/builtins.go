package llvm

import (
	"tinygo.org/x/go-llvm"

	"brix/src/diag"
	"brix/src/ir"
)

// genBuiltin dispatches a call whose name is not in the user function
// registry against the built-in table. Built-ins match by name and
// argument kinds; their external declarations materialise on first use.
func (g *generator) genBuiltin(e *ir.Call, name string) (value, *diag.Error) {
	switch name {
	case "print":
		return value{t: ir.T(ir.Void)}, g.genPrint(e, false)
	case "println":
		return value{t: ir.T(ir.Void)}, g.genPrint(e, true)
	case "printf":
		if err := g.wantArgs(e, name, 1); err != nil {
			return value{}, err
		}
		v, err := g.genExpr(e.Args[0])
		if err != nil {
			return value{}, err
		}
		if v.t.Kind != ir.String {
			return value{}, diag.TypeOpf(e.Args[0].Span(), "printf expects a string, got %s", v.t)
		}
		g.b.CreateCall(g.rt("print_brix_string"), []llvm.Value{v.v}, "")
		g.disposeTemp(v)
		return value{t: ir.T(ir.Void)}, nil

	case "typeof":
		// Compile-time determined: the argument is not evaluated.
		if err := g.wantArgs(e, name, 1); err != nil {
			return value{}, err
		}
		t, err := g.staticType(e.Args[0])
		if err != nil {
			return value{}, err
		}
		name := t.String()
		if t.Kind == ir.Tuple {
			name = "tuple"
		}
		s := g.b.CreateCall(g.rt("str_new"), []llvm.Value{g.globalString(name)}, "")
		return value{v: s, t: ir.T(ir.String), owned: true}, nil

	case "int":
		if err := g.wantArgs(e, name, 1); err != nil {
			return value{}, err
		}
		v, err := g.genExpr(e.Args[0])
		if err != nil {
			return value{}, err
		}
		switch v.t.Kind {
		case ir.Int:
			return v, nil
		case ir.Float:
			return value{v: g.b.CreateFPToSI(v.v, g.t.i64, ""), t: ir.T(ir.Int)}, nil
		case ir.String:
			data := g.b.CreateLoad(g.b.CreateStructGEP(v.v, 2, ""), "")
			out := g.b.CreateCall(g.cfn("atol"), []llvm.Value{data}, "")
			g.disposeTemp(v)
			return value{v: out, t: ir.T(ir.Int)}, nil
		}
		return value{}, diag.TypeOpf(e.Args[0].Span(), "cannot convert %s to int", v.t)

	case "float":
		if err := g.wantArgs(e, name, 1); err != nil {
			return value{}, err
		}
		v, err := g.genExpr(e.Args[0])
		if err != nil {
			return value{}, err
		}
		switch v.t.Kind {
		case ir.Float:
			return v, nil
		case ir.Int:
			return value{v: g.b.CreateSIToFP(v.v, g.t.f64, ""), t: ir.T(ir.Float)}, nil
		case ir.String:
			data := g.b.CreateLoad(g.b.CreateStructGEP(v.v, 2, ""), "")
			out := g.b.CreateCall(g.cfn("atof"), []llvm.Value{data}, "")
			g.disposeTemp(v)
			return value{v: out, t: ir.T(ir.Float)}, nil
		}
		return value{}, diag.TypeOpf(e.Args[0].Span(), "cannot convert %s to float", v.t)

	case "string":
		if err := g.wantArgs(e, name, 1); err != nil {
			return value{}, err
		}
		v, err := g.genExpr(e.Args[0])
		if err != nil {
			return value{}, err
		}
		return g.stringify(v, "", e.Args[0].Span())

	case "bool":
		if err := g.wantArgs(e, name, 1); err != nil {
			return value{}, err
		}
		v, err := g.genExpr(e.Args[0])
		if err != nil {
			return value{}, err
		}
		b, terr := g.truthy(v, e.Args[0].Span())
		if terr != nil {
			return value{}, terr
		}
		return g.boolInt(b), nil

	case "is_int", "is_float", "is_string", "is_matrix", "is_complex", "is_atom", "is_error":
		if err := g.wantArgs(e, name, 1); err != nil {
			return value{}, err
		}
		t, err := g.staticType(e.Args[0])
		if err != nil {
			return value{}, err
		}
		hit := map[string]ir.TypeKind{
			"is_int":     ir.Int,
			"is_float":   ir.Float,
			"is_string":  ir.String,
			"is_matrix":  ir.Matrix,
			"is_complex": ir.Complex,
			"is_atom":    ir.Atom,
			"is_error":   ir.Error,
		}[name] == t.Kind
		if name == "is_matrix" && t.Kind == ir.IntMatrix {
			hit = true
		}
		out := uint64(0)
		if hit {
			out = 1
		}
		return value{v: llvm.ConstInt(g.t.i64, out, false), t: ir.T(ir.Int)}, nil

	case "is_nil", "is_ok":
		if err := g.wantArgs(e, name, 1); err != nil {
			return value{}, err
		}
		t, err := g.staticType(e.Args[0])
		if err != nil {
			return value{}, err
		}
		if t.Kind == ir.Error {
			v, gerr := g.genExpr(e.Args[0])
			if gerr != nil {
				return value{}, gerr
			}
			out := g.b.CreateCall(g.rt("brix_error_is_nil"), []llvm.Value{v.v}, "")
			g.disposeTemp(v)
			return value{v: out, t: ir.T(ir.Int)}, nil
		}
		out := uint64(0)
		if t.Kind == ir.Nil {
			out = 1
		}
		return value{v: llvm.ConstInt(g.t.i64, out, false), t: ir.T(ir.Int)}, nil

	case "real", "imag", "conj", "abs2", "angle":
		if err := g.wantArgs(e, name, 1); err != nil {
			return value{}, err
		}
		v, err := g.genExpr(e.Args[0])
		if err != nil {
			return value{}, err
		}
		v, cerr := g.cast(v, ir.T(ir.Complex), e.Args[0].Span())
		if cerr != nil {
			return value{}, cerr
		}
		out := g.b.CreateCall(g.rt("complex_"+name), []llvm.Value{v.v}, "")
		typ := ir.T(ir.Float)
		if name == "conj" {
			typ = ir.T(ir.Complex)
		}
		return value{v: out, t: typ}, nil

	case "abs":
		if err := g.wantArgs(e, name, 1); err != nil {
			return value{}, err
		}
		v, err := g.genExpr(e.Args[0])
		if err != nil {
			return value{}, err
		}
		switch v.t.Kind {
		case ir.Complex:
			out := g.b.CreateCall(g.rt("complex_abs"), []llvm.Value{v.v}, "")
			return value{v: out, t: ir.T(ir.Float)}, nil
		case ir.Float:
			out := g.b.CreateCall(g.mathFn("fabs", 1), []llvm.Value{v.v}, "")
			return value{v: out, t: ir.T(ir.Float)}, nil
		case ir.Int:
			neg := g.b.CreateSub(llvm.ConstInt(g.t.i64, 0, false), v.v, "")
			isNeg := g.b.CreateICmp(llvm.IntSLT, v.v, llvm.ConstInt(g.t.i64, 0, false), "")
			out := g.b.CreateSelect(isNeg, neg, v.v, "")
			return value{v: out, t: ir.T(ir.Int)}, nil
		}
		return value{}, diag.TypeOpf(e.Args[0].Span(), "abs not defined for %s", v.t)

	case "uppercase", "lowercase", "capitalize":
		return g.genStringHelper(e, name, map[string]string{
			"uppercase":  "brix_uppercase",
			"lowercase":  "brix_lowercase",
			"capitalize": "brix_capitalize",
		}[name])

	case "byte_size", "length":
		if err := g.wantArgs(e, name, 1); err != nil {
			return value{}, err
		}
		v, err := g.genString(e.Args[0])
		if err != nil {
			return value{}, err
		}
		rt := "brix_byte_size"
		if name == "length" {
			rt = "brix_length"
		}
		out := g.b.CreateCall(g.rt(rt), []llvm.Value{v.v}, "")
		g.disposeTemp(v)
		return value{v: out, t: ir.T(ir.Int)}, nil

	case "replace", "replace_all":
		if err := g.wantArgs(e, name, 3); err != nil {
			return value{}, err
		}
		args := make([]llvm.Value, 3)
		temps := make([]value, 3)
		for i1 := 0; i1 < 3; i1++ {
			v, err := g.genString(e.Args[i1])
			if err != nil {
				return value{}, err
			}
			args[i1] = v.v
			temps[i1] = v
		}
		rt := "brix_replace"
		if name == "replace_all" {
			rt = "brix_replace_all"
		}
		out := g.b.CreateCall(g.rt(rt), args, "")
		for _, e1 := range temps {
			g.disposeTemp(e1)
		}
		return value{v: out, t: ir.T(ir.String), owned: true}, nil

	case "zip":
		return g.genZip(e)

	case "zeros", "matrix", "izeros":
		newFn := "matrix_new"
		typ := ir.T(ir.Matrix)
		if name == "izeros" {
			newFn = "intmatrix_new"
			typ = ir.T(ir.IntMatrix)
		}
		dims, err := g.genDims(e, name)
		if err != nil {
			return value{}, err
		}
		out := g.b.CreateCall(g.rt(newFn), dims, "")
		return value{v: out, t: typ, owned: true}, nil

	case "eye":
		if err := g.wantArgs(e, name, 1); err != nil {
			return value{}, err
		}
		n, err := g.genIntArg(e.Args[0])
		if err != nil {
			return value{}, err
		}
		out := g.b.CreateCall(g.rt("brix_eye"), []llvm.Value{n}, "")
		return value{v: out, t: ir.T(ir.Matrix), owned: true}, nil

	case "sum", "mean", "median", "variance", "std", "stddev", "tr", "det":
		if err := g.wantArgs(e, name, 1); err != nil {
			return value{}, err
		}
		m, err := g.genMatrixArg(e.Args[0])
		if err != nil {
			return value{}, err
		}
		out := g.b.CreateCall(g.rt("brix_"+name), []llvm.Value{m.v}, "")
		g.disposeTemp(m)
		return value{v: out, t: ir.T(ir.Float)}, nil

	case "inv", "eigvals", "eigvecs":
		if err := g.wantArgs(e, name, 1); err != nil {
			return value{}, err
		}
		m, err := g.genMatrixArg(e.Args[0])
		if err != nil {
			return value{}, err
		}
		out := g.b.CreateCall(g.rt("brix_"+name), []llvm.Value{m.v}, "")
		g.disposeTemp(m)
		typ := ir.T(ir.Matrix)
		if name != "inv" {
			typ = ir.T(ir.ComplexMatrix)
		}
		return value{v: out, t: typ, owned: true}, nil

	case "read_csv":
		if err := g.wantArgs(e, name, 1); err != nil {
			return value{}, err
		}
		v, err := g.genString(e.Args[0])
		if err != nil {
			return value{}, err
		}
		out := g.b.CreateCall(g.rt("brix_read_csv"), []llvm.Value{v.v}, "")
		g.disposeTemp(v)
		return value{v: out, t: ir.T(ir.Matrix), owned: true}, nil

	case "intern_atom":
		if err := g.wantArgs(e, name, 1); err != nil {
			return value{}, err
		}
		v, err := g.genString(e.Args[0])
		if err != nil {
			return value{}, err
		}
		data := g.b.CreateLoad(g.b.CreateStructGEP(v.v, 2, ""), "")
		out := g.b.CreateCall(g.rt("atom_intern"), []llvm.Value{data}, "")
		g.disposeTemp(v)
		return value{v: out, t: ir.T(ir.Atom)}, nil

	case "atom_name":
		if err := g.wantArgs(e, name, 1); err != nil {
			return value{}, err
		}
		v, err := g.genExpr(e.Args[0])
		if err != nil {
			return value{}, err
		}
		if v.t.Kind != ir.Atom {
			return value{}, diag.TypeOpf(e.Args[0].Span(), "atom_name expects an atom, got %s", v.t)
		}
		raw := g.b.CreateCall(g.rt("atom_name"), []llvm.Value{v.v}, "")
		out := g.b.CreateCall(g.rt("str_new"), []llvm.Value{raw}, "")
		return value{v: out, t: ir.T(ir.String), owned: true}, nil

	case "error":
		if err := g.wantArgs(e, name, 1); err != nil {
			return value{}, err
		}
		v, err := g.genString(e.Args[0])
		if err != nil {
			return value{}, err
		}
		data := g.b.CreateLoad(g.b.CreateStructGEP(v.v, 2, ""), "")
		out := g.b.CreateCall(g.rt("brix_error_new"), []llvm.Value{data}, "")
		g.disposeTemp(v)
		return value{v: out, t: ir.T(ir.Error), owned: true}, nil
	}

	return value{}, diag.Undefinedf(e.Pos, name)
}

// wantArgs checks the argument count of a built-in call.
func (g *generator) wantArgs(e *ir.Call, name string, n int) *diag.Error {
	if len(e.Args) != n {
		return diag.TypeOpf(e.Pos, "%s expects %d arguments, got %d", name, n, len(e.Args))
	}
	return nil
}

// genString evaluates an argument that must be a string.
func (g *generator) genString(e ir.Expr) (value, *diag.Error) {
	v, err := g.genExpr(e)
	if err != nil {
		return value{}, err
	}
	if v.t.Kind != ir.String {
		return value{}, diag.Typef(e.Span(), v.t.String(), "string")
	}
	return v, nil
}

// genIntArg evaluates an argument and casts it to Int.
func (g *generator) genIntArg(e ir.Expr) (llvm.Value, *diag.Error) {
	v, err := g.genExpr(e)
	if err != nil {
		return llvm.Value{}, err
	}
	v, cerr := g.cast(v, ir.T(ir.Int), e.Span())
	if cerr != nil {
		return llvm.Value{}, cerr
	}
	return v.v, nil
}

// genMatrixArg evaluates an argument that must be a float matrix,
// promoting an IntMatrix operand.
func (g *generator) genMatrixArg(e ir.Expr) (value, *diag.Error) {
	v, err := g.genExpr(e)
	if err != nil {
		return value{}, err
	}
	if v.t.Kind == ir.IntMatrix {
		return g.cast(v, ir.T(ir.Matrix), e.Span())
	}
	if v.t.Kind != ir.Matrix {
		return value{}, diag.Typef(e.Span(), v.t.String(), "matrix")
	}
	return v, nil
}

// genDims evaluates the one or two dimension arguments of an allocation
// built-in. One dimension allocates a single row.
func (g *generator) genDims(e *ir.Call, name string) ([]llvm.Value, *diag.Error) {
	switch len(e.Args) {
	case 1:
		n, err := g.genIntArg(e.Args[0])
		if err != nil {
			return nil, err
		}
		return []llvm.Value{llvm.ConstInt(g.t.i64, 1, false), n}, nil
	case 2:
		r, err := g.genIntArg(e.Args[0])
		if err != nil {
			return nil, err
		}
		c, err := g.genIntArg(e.Args[1])
		if err != nil {
			return nil, err
		}
		return []llvm.Value{r, c}, nil
	}
	return nil, diag.TypeOpf(e.Pos, "%s expects one or two dimensions, got %d arguments", name, len(e.Args))
}

// genStringHelper lowers the one-argument string transform built-ins.
func (g *generator) genStringHelper(e *ir.Call, name, rt string) (value, *diag.Error) {
	if err := g.wantArgs(e, name, 1); err != nil {
		return value{}, err
	}
	v, err := g.genString(e.Args[0])
	if err != nil {
		return value{}, err
	}
	out := g.b.CreateCall(g.rt(rt), []llvm.Value{v.v}, "")
	g.disposeTemp(v)
	return value{v: out, t: ir.T(ir.String), owned: true}, nil
}

// genZip lowers zip(a, b), selecting the runtime entry by the element
// kinds of the operands.
func (g *generator) genZip(e *ir.Call) (value, *diag.Error) {
	if err := g.wantArgs(e, "zip", 2); err != nil {
		return value{}, err
	}
	a, err := g.genExpr(e.Args[0])
	if err != nil {
		return value{}, err
	}
	b, err := g.genExpr(e.Args[1])
	if err != nil {
		return value{}, err
	}
	suffix := func(v value, sp ir.Span) (string, *diag.Error) {
		switch v.t.Kind {
		case ir.IntMatrix:
			return "i", nil
		case ir.Matrix:
			return "f", nil
		}
		return "", diag.TypeOpf(sp, "zip expects matrix operands, got %s", v.t)
	}
	sa, serr := suffix(a, e.Args[0].Span())
	if serr != nil {
		return value{}, serr
	}
	sb, serr := suffix(b, e.Args[1].Span())
	if serr != nil {
		return value{}, serr
	}

	out := g.b.CreateCall(g.rt("brix_zip_"+sa+sb), []llvm.Value{a.v, b.v}, "")
	g.disposeTemp(a)
	g.disposeTemp(b)
	typ := ir.T(ir.Matrix)
	if sa == "i" && sb == "i" {
		typ = ir.T(ir.IntMatrix)
	}
	return value{v: out, t: typ, owned: true}, nil
}

// genPrint lowers print and println. Each argument prints by its type;
// arguments are separated by a single space and println appends a
// newline.
func (g *generator) genPrint(e *ir.Call, newline bool) *diag.Error {
	pf := g.cfn("printf")
	for i1, e1 := range e.Args {
		v, err := g.genExpr(e1)
		if err != nil {
			return err
		}
		switch v.t.Kind {
		case ir.Int:
			g.b.CreateCall(pf, []llvm.Value{g.globalString("%ld"), v.v}, "")
		case ir.Float:
			g.b.CreateCall(pf, []llvm.Value{g.globalString("%g"), v.v}, "")
		case ir.String:
			g.b.CreateCall(g.rt("print_brix_string"), []llvm.Value{v.v}, "")
			g.disposeTemp(v)
		case ir.Complex:
			re := g.b.CreateExtractValue(v.v, 0, "")
			im := g.b.CreateExtractValue(v.v, 1, "")
			g.b.CreateCall(pf, []llvm.Value{g.globalString("%g%+gi"), re, im}, "")
		case ir.Atom:
			raw := g.b.CreateCall(g.rt("atom_name"), []llvm.Value{v.v}, "")
			g.b.CreateCall(pf, []llvm.Value{g.globalString(":%s"), raw}, "")
		case ir.Matrix:
			g.b.CreateCall(g.rt("matrix_print"), []llvm.Value{v.v}, "")
			g.disposeTemp(v)
		case ir.IntMatrix:
			g.b.CreateCall(g.rt("intmatrix_print"), []llvm.Value{v.v}, "")
			g.disposeTemp(v)
		case ir.ComplexMatrix:
			g.b.CreateCall(g.rt("complexmatrix_print"), []llvm.Value{v.v}, "")
			g.disposeTemp(v)
		case ir.Nil:
			g.b.CreateCall(pf, []llvm.Value{g.globalString("nil")}, "")
		case ir.Error:
			msg := g.b.CreateCall(g.rt("brix_error_message"), []llvm.Value{v.v}, "")
			g.b.CreateCall(pf, []llvm.Value{g.globalString("%s"), msg}, "")
			g.disposeTemp(v)
		default:
			return diag.TypeOpf(e1.Span(), "cannot print %s", v.t)
		}

		if i1 < len(e.Args)-1 {
			g.b.CreateCall(pf, []llvm.Value{g.globalString(" ")}, "")
		}
	}
	if newline {
		g.b.CreateCall(pf, []llvm.Value{g.globalString("\n")}, "")
	}
	return nil
}
