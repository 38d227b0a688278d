package llvm

import (
	"brix/src/diag"
	"brix/src/ir"
)

// staticType determines the semantic type of an expression without
// emitting any code. typeof() and the is_* family are compile-time
// determined; array-literal classification and comprehension element
// kinds also come through here.
func (g *generator) staticType(e ir.Expr) (ir.Type, *diag.Error) {
	switch e := e.(type) {
	case *ir.IntLit, *ir.BoolLit:
		return ir.T(ir.Int), nil
	case *ir.FloatLit:
		return ir.T(ir.Float), nil
	case *ir.ImagLit:
		return ir.T(ir.Complex), nil
	case *ir.StrLit, *ir.FStringLit:
		return ir.T(ir.String), nil
	case *ir.AtomLit:
		return ir.T(ir.Atom), nil
	case *ir.NilLit:
		return ir.T(ir.Nil), nil
	case *ir.Ident:
		sym, ok := g.syms.lookup(e.Name)
		if !ok {
			return ir.T(ir.Invalid), diag.Undefinedf(e.Pos, e.Name)
		}
		return sym.typ, nil
	case *ir.Unary:
		if e.Op == "!" {
			return ir.T(ir.Int), nil
		}
		return g.staticType(e.Operand)
	case *ir.Binary:
		return g.staticBinaryType(e)
	case *ir.ChainedCmp:
		return ir.T(ir.Int), nil
	case *ir.Ternary:
		a, err := g.staticType(e.Then)
		if err != nil {
			return a, err
		}
		b, err := g.staticType(e.Else)
		if err != nil {
			return b, err
		}
		return g.unify(a, b, e.Pos)
	case *ir.Index:
		t, err := g.staticType(e.Target)
		if err != nil {
			return t, err
		}
		if t.Kind == ir.Tuple {
			if lit, ok := e.Indices[0].(*ir.IntLit); ok && int(lit.Value) < len(t.Elems) {
				return t.Elems[lit.Value], nil
			}
			return ir.T(ir.Invalid), diag.Invalidf(e.Pos, "tuple projection requires a constant index")
		}
		if t.IsMatrix() {
			return t.ElemType(), nil
		}
		return ir.T(ir.Invalid), diag.TypeOpf(e.Pos, "cannot index into %s", t)
	case *ir.Field:
		if e.Name == "data" {
			return ir.T(ir.FloatPtr), nil
		}
		return ir.T(ir.Int), nil
	case *ir.Call:
		return g.staticCallType(e)
	case *ir.ArrayLit:
		return g.staticArrayType(e)
	case *ir.TupleLit:
		elems := make([]ir.Type, len(e.Elems))
		for i1, e1 := range e.Elems {
			t, err := g.staticType(e1)
			if err != nil {
				return t, err
			}
			elems[i1] = t
		}
		return ir.TupleOf(elems...), nil
	case *ir.StaticInit:
		if e.Kind == ir.Int {
			return ir.T(ir.IntMatrix), nil
		}
		return ir.T(ir.Matrix), nil
	case *ir.ListComp:
		return g.staticCompType(e)
	case *ir.MatchExpr:
		t, err := g.staticType(e.Arms[0].Body)
		if err != nil {
			return t, err
		}
		for _, arm := range e.Arms[1:] {
			at, err := g.staticType(arm.Body)
			if err != nil {
				return at, err
			}
			t, err = g.unify(t, at, arm.Pos)
			if err != nil {
				return t, err
			}
		}
		return t, nil
	}
	return ir.T(ir.Invalid), diag.Generalf(e.Span(), "cannot determine type")
}

func (g *generator) staticBinaryType(e *ir.Binary) (ir.Type, *diag.Error) {
	switch e.Op {
	case "==", "!=", "<", "<=", ">", ">=", "&&", "||", "&", "|", "^":
		return ir.T(ir.Int), nil
	}
	a, err := g.staticType(e.LHS)
	if err != nil {
		return a, err
	}
	b, err := g.staticType(e.RHS)
	if err != nil {
		return b, err
	}
	// Matrix combinations.
	if a.IsMatrix() || b.IsMatrix() {
		if a.Kind == ir.IntMatrix && (b.Kind == ir.IntMatrix || b.Kind == ir.Int) ||
			b.Kind == ir.IntMatrix && a.Kind == ir.Int {
			return ir.T(ir.IntMatrix), nil
		}
		return ir.T(ir.Matrix), nil
	}
	if a.Kind == ir.String && b.Kind == ir.String {
		return ir.T(ir.String), nil
	}
	if e.Op == "**" && a.Kind == ir.Int && b.Kind == ir.Int {
		return ir.T(ir.Int), nil
	}
	if p := ir.Promote(a, b); p.Kind != ir.Invalid {
		return p, nil
	}
	return ir.T(ir.Invalid), diag.TypeOpf(e.Pos, "operator %s not defined for %s and %s", e.Op, a, b)
}

func (g *generator) staticCallType(e *ir.Call) (ir.Type, *diag.Error) {
	if field, ok := e.Callee.(*ir.Field); ok {
		if base, ok := field.Target.(*ir.Ident); ok {
			if _, imported := g.imports[base.Name]; imported {
				if len(e.Args) == 1 {
					if at, err := g.staticType(e.Args[0]); err == nil && at.Kind == ir.Complex {
						return ir.T(ir.Complex), nil
					}
				}
				return ir.T(ir.Float), nil
			}
		}
	}
	name, ok := calleeName(e.Callee)
	if !ok {
		return ir.T(ir.Invalid), diag.Invalidf(e.Pos, "expression is not callable")
	}
	if def := g.funcs.Lookup(name); def != nil {
		return def.RetType, nil
	}
	if ret, ok := builtinRetTypes[name]; ok {
		return ret, nil
	}
	// Built-ins whose result type depends on the arguments.
	switch name {
	case "abs":
		if len(e.Args) == 1 {
			at, err := g.staticType(e.Args[0])
			if err != nil {
				return at, err
			}
			if at.Kind == ir.Int {
				return ir.T(ir.Int), nil
			}
		}
		return ir.T(ir.Float), nil
	case "zip":
		if len(e.Args) == 2 {
			a, err := g.staticType(e.Args[0])
			if err != nil {
				return a, err
			}
			b, err := g.staticType(e.Args[1])
			if err != nil {
				return b, err
			}
			if a.Kind == ir.IntMatrix && b.Kind == ir.IntMatrix {
				return ir.T(ir.IntMatrix), nil
			}
		}
		return ir.T(ir.Matrix), nil
	}
	return ir.T(ir.Invalid), diag.Undefinedf(e.Pos, name)
}

func (g *generator) staticArrayType(e *ir.ArrayLit) (ir.Type, *diag.Error) {
	_, _, elems, err := flattenArrayLit(e)
	if err != nil {
		return ir.T(ir.Invalid), err
	}
	kind := ir.Int
	for _, e1 := range elems {
		t, err := g.staticType(e1)
		if err != nil {
			return t, err
		}
		switch t.Kind {
		case ir.Int:
		case ir.Float:
			if kind == ir.Int {
				kind = ir.Float
			}
		case ir.Complex:
			kind = ir.Complex
		default:
			return ir.T(ir.Invalid), diag.TypeOpf(e1.Span(), "array elements must be numeric, got %s", t)
		}
	}
	switch kind {
	case ir.Int:
		return ir.T(ir.IntMatrix), nil
	case ir.Float:
		return ir.T(ir.Matrix), nil
	}
	return ir.T(ir.ComplexMatrix), nil
}

// staticCompType classifies a list comprehension by its body type with
// the generator variables bound to their element types.
func (g *generator) staticCompType(e *ir.ListComp) (ir.Type, *diag.Error) {
	g.syms.save()
	defer g.syms.restore()

	for _, gen := range e.Gens {
		var et ir.Type
		if rng, ok := gen.Iter.(*ir.RangeExpr); ok {
			t, err := g.staticType(rng.Start)
			if err != nil {
				return t, err
			}
			et = t
		} else {
			t, err := g.staticType(gen.Iter)
			if err != nil {
				return t, err
			}
			if !t.IsMatrix() {
				return ir.T(ir.Invalid), diag.TypeOpf(gen.Iter.Span(), "comprehension generator requires a range or matrix, got %s", t)
			}
			et = t.ElemType()
		}
		g.syms.define(gen.Var, symbol{typ: et})
	}

	bt, err := g.staticType(e.Body)
	if err != nil {
		return bt, err
	}
	switch bt.Kind {
	case ir.Int:
		return ir.T(ir.IntMatrix), nil
	case ir.Float:
		return ir.T(ir.Matrix), nil
	case ir.Complex:
		return ir.T(ir.ComplexMatrix), nil
	}
	return ir.T(ir.Invalid), diag.TypeOpf(e.Body.Span(), "comprehension body must be numeric, got %s", bt)
}

// builtinRetTypes lists built-ins with a fixed result type.
var builtinRetTypes = map[string]ir.Type{
	"print":       ir.T(ir.Void),
	"println":     ir.T(ir.Void),
	"printf":      ir.T(ir.Void),
	"typeof":      ir.T(ir.String),
	"int":         ir.T(ir.Int),
	"float":       ir.T(ir.Float),
	"string":      ir.T(ir.String),
	"bool":        ir.T(ir.Int),
	"is_int":      ir.T(ir.Int),
	"is_float":    ir.T(ir.Int),
	"is_string":   ir.T(ir.Int),
	"is_matrix":   ir.T(ir.Int),
	"is_complex":  ir.T(ir.Int),
	"is_atom":     ir.T(ir.Int),
	"is_nil":      ir.T(ir.Int),
	"is_error":    ir.T(ir.Int),
	"is_ok":       ir.T(ir.Int),
	"uppercase":   ir.T(ir.String),
	"lowercase":   ir.T(ir.String),
	"capitalize":  ir.T(ir.String),
	"byte_size":   ir.T(ir.Int),
	"length":      ir.T(ir.Int),
	"replace":     ir.T(ir.String),
	"replace_all": ir.T(ir.String),
	"zeros":       ir.T(ir.Matrix),
	"izeros":      ir.T(ir.IntMatrix),
	"matrix":      ir.T(ir.Matrix),
	"eye":         ir.T(ir.Matrix),
	"sum":         ir.T(ir.Float),
	"mean":        ir.T(ir.Float),
	"median":      ir.T(ir.Float),
	"variance":    ir.T(ir.Float),
	"std":         ir.T(ir.Float),
	"stddev":      ir.T(ir.Float),
	"tr":          ir.T(ir.Float),
	"det":         ir.T(ir.Float),
	"inv":         ir.T(ir.Matrix),
	"eigvals":     ir.T(ir.ComplexMatrix),
	"eigvecs":     ir.T(ir.ComplexMatrix),
	"read_csv":    ir.T(ir.Matrix),
	"intern_atom": ir.T(ir.Atom),
	"atom_name":   ir.T(ir.String),
	"error":       ir.T(ir.Error),
	"real":        ir.T(ir.Float),
	"imag":        ir.T(ir.Float),
	"conj":        ir.T(ir.Complex),
	"abs2":        ir.T(ir.Float),
	"angle":       ir.T(ir.Float),
}
