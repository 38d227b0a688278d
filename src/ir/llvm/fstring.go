package llvm

import (
	"tinygo.org/x/go-llvm"

	"brix/src/diag"
	"brix/src/ir"
)

// fmtBufSize is the scratch buffer size for one formatted interpolation.
const fmtBufSize = 128

// genFString lowers an f-string: each part becomes a runtime string and
// the parts concatenate left to right with str_concat.
func (g *generator) genFString(e *ir.FStringLit) (value, *diag.Error) {
	if len(e.Parts) == 0 {
		s := g.b.CreateCall(g.rt("str_new"), []llvm.Value{g.globalString("")}, "")
		return value{v: s, t: ir.T(ir.String), owned: true}, nil
	}

	var acc value
	for i1, part := range e.Parts {
		var p value
		if part.Interp == nil {
			s := g.b.CreateCall(g.rt("str_new"), []llvm.Value{g.globalString(part.Text)}, "")
			p = value{v: s, t: ir.T(ir.String), owned: true}
		} else {
			v, err := g.genExpr(part.Interp)
			if err != nil {
				return value{}, err
			}
			p, err = g.stringify(v, part.Format, part.Interp.Span())
			if err != nil {
				return value{}, err
			}
		}

		if i1 == 0 {
			acc = p
			continue
		}
		next := g.b.CreateCall(g.rt("str_concat"), []llvm.Value{acc.v, p.v}, "")
		g.disposeTemp(acc)
		g.disposeTemp(p)
		acc = value{v: next, t: ir.T(ir.String), owned: true}
	}
	return acc, nil
}

// stringify converts a value to a runtime string using the printf
// specifier selected from the interpolation format, falling back to a
// type-driven default. Shared by f-strings and the string() built-in.
func (g *generator) stringify(v value, format string, sp ir.Span) (value, *diag.Error) {
	if v.t.Kind == ir.String && format == "" {
		return v, nil
	}

	switch v.t.Kind {
	case ir.Int:
		spec, wantFloat, err := intSpec(format, sp)
		if err != nil {
			return value{}, err
		}
		arg := v.v
		if wantFloat {
			arg = g.b.CreateSIToFP(v.v, g.t.f64, "")
		}
		return g.sprintf1(spec, arg), nil
	case ir.Float:
		spec, wantInt, err := floatSpec(format, sp)
		if err != nil {
			return value{}, err
		}
		arg := v.v
		if wantInt {
			arg = g.b.CreateFPToSI(v.v, g.t.i64, "")
		}
		return g.sprintf1(spec, arg), nil
	case ir.Complex:
		re := g.b.CreateExtractValue(v.v, 0, "")
		im := g.b.CreateExtractValue(v.v, 1, "")
		return g.sprintfN("%g%+gi", re, im), nil
	case ir.Atom:
		raw := g.b.CreateCall(g.rt("atom_name"), []llvm.Value{v.v}, "")
		return g.sprintf1(":%s", raw), nil
	case ir.Nil:
		s := g.b.CreateCall(g.rt("str_new"), []llvm.Value{g.globalString("nil")}, "")
		return value{v: s, t: ir.T(ir.String), owned: true}, nil
	}
	return value{}, diag.TypeOpf(sp, "cannot format %s", v.t)
}

// intSpec maps an interpolation format to a printf specifier for an
// integer argument. Float-style formats convert the argument first.
func intSpec(format string, sp ir.Span) (spec string, wantFloat bool, err *diag.Error) {
	switch format {
	case "", "d":
		return "%ld", false, nil
	case "x":
		return "%lx", false, nil
	case "X":
		return "%lX", false, nil
	case "o":
		return "%lo", false, nil
	}
	// Precision formats apply to the float rendering of the value.
	spec, _, err = floatSpec(format, sp)
	return spec, true, err
}

// floatSpec maps an interpolation format to a printf specifier for a
// float argument. Integer-style formats truncate the argument first.
func floatSpec(format string, sp ir.Span) (spec string, wantInt bool, err *diag.Error) {
	switch format {
	case "":
		return "%g", false, nil
	case "g":
		return "%g", false, nil
	case "e":
		return "%e", false, nil
	case "f":
		return "%f", false, nil
	case "d":
		return "%ld", true, nil
	case "x":
		return "%lx", true, nil
	case "X":
		return "%lX", true, nil
	case "o":
		return "%lo", true, nil
	}
	if format[0] == '.' && len(format) > 1 {
		switch format[len(format)-1] {
		case 'f', 'e', 'g':
			return "%" + format, false, nil
		}
	}
	return "", false, diag.Invalidf(sp, "unknown format specifier %q", format)
}

// sprintf1 renders one argument through snprintf into a stack scratch
// buffer and boxes the result.
func (g *generator) sprintf1(spec string, arg llvm.Value) value {
	return g.sprintfN(spec, arg)
}

// sprintfN renders arguments through snprintf into a stack scratch buffer
// and boxes the result.
func (g *generator) sprintfN(spec string, args ...llvm.Value) value {
	buf := g.alloca(llvm.ArrayType(g.t.ctx.Int8Type(), fmtBufSize), "fmtbuf")
	zero := llvm.ConstInt(g.t.i64, 0, false)
	ptr := g.b.CreateGEP(buf, []llvm.Value{zero, zero}, "")

	callArgs := append([]llvm.Value{
		ptr,
		llvm.ConstInt(g.t.i64, fmtBufSize, false),
		g.globalString(spec),
	}, args...)
	g.b.CreateCall(g.cfn("snprintf"), callArgs, "")

	s := g.b.CreateCall(g.rt("str_new"), []llvm.Value{ptr}, "")
	return value{v: s, t: ir.T(ir.String), owned: true}
}
