package llvm

import (
	"tinygo.org/x/go-llvm"

	"brix/src/diag"
	"brix/src/ir"
)

// complexArithFns maps arithmetic operators to the complex helper family.
// Power routes through genPower; modulo is not defined for complex.
var complexArithFns = map[string]string{
	"+": "complex_add",
	"-": "complex_sub",
	"*": "complex_mul",
	"/": "complex_div",
}

// genComplexArith lowers arithmetic on two complex operands. Both
// operands are already promoted to Complex by the caller.
func (g *generator) genComplexArith(op string, lhs, rhs value, sp ir.Span) (value, *diag.Error) {
	name, ok := complexArithFns[op]
	if !ok {
		return value{}, diag.TypeOpf(sp, "operator %s not defined for complex", op)
	}
	v := g.b.CreateCall(g.rt(name), []llvm.Value{lhs.v, rhs.v}, "")
	return value{v: v, t: ir.T(ir.Complex)}, nil
}
