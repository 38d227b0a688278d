package llvm

import (
	"tinygo.org/x/go-llvm"
)

// rtSig describes the signature of one runtime library symbol. The table
// below is the compiler's copy of the runtime ABI; it must stay in
// lockstep with the runtime library.
type rtSig struct {
	params   func(t typer) []llvm.Type
	ret      func(t typer) llvm.Type
	variadic bool
}

// Short-hand signature builders for the runtime table.
func sig(ret func(t typer) llvm.Type, params ...func(t typer) llvm.Type) rtSig {
	return rtSig{
		params: func(t typer) []llvm.Type {
			out := make([]llvm.Type, len(params))
			for i1, e1 := range params {
				out[i1] = e1(t)
			}
			return out
		},
		ret: ret,
	}
}

func tI64(t typer) llvm.Type   { return t.i64 }
func tI32(t typer) llvm.Type   { return t.i32 }
func tF64(t typer) llvm.Type   { return t.f64 }
func tCplx(t typer) llvm.Type  { return t.cplx }
func tI8p(t typer) llvm.Type   { return t.i8ptr }
func tVoid(t typer) llvm.Type  { return t.void }
func tStr(t typer) llvm.Type   { return llvm.PointerType(t.strBox, 0) }
func tMat(t typer) llvm.Type   { return llvm.PointerType(t.matBox, 0) }
func tIMat(t typer) llvm.Type  { return llvm.PointerType(t.imatBox, 0) }
func tCMat(t typer) llvm.Type  { return llvm.PointerType(t.cmatBox, 0) }
func tErr(t typer) llvm.Type   { return llvm.PointerType(t.errBox, 0) }

// runtimeABI is the full extern table. Built-ins and operators declare
// entries on first use; nothing is declared for symbols the program never
// touches.
var runtimeABI = map[string]rtSig{
	// Strings.
	"str_new":           sig(tStr, tI8p),
	"str_concat":        sig(tStr, tStr, tStr),
	"str_eq":            sig(tI64, tStr, tStr),
	"print_brix_string": sig(tVoid, tStr),
	"string_retain":     sig(tVoid, tStr),
	"string_release":    sig(tVoid, tStr),
	"brix_uppercase":    sig(tStr, tStr),
	"brix_lowercase":    sig(tStr, tStr),
	"brix_capitalize":   sig(tStr, tStr),
	"brix_byte_size":    sig(tI64, tStr),
	"brix_length":       sig(tI64, tStr),
	"brix_replace":      sig(tStr, tStr, tStr, tStr),
	"brix_replace_all":  sig(tStr, tStr, tStr, tStr),

	// Matrices.
	"matrix_new":            sig(tMat, tI64, tI64),
	"intmatrix_new":         sig(tIMat, tI64, tI64),
	"complexmatrix_new":     sig(tCMat, tI64, tI64),
	"matrix_retain":         sig(tVoid, tMat),
	"matrix_release":        sig(tVoid, tMat),
	"intmatrix_retain":      sig(tVoid, tIMat),
	"intmatrix_release":     sig(tVoid, tIMat),
	"complexmatrix_retain":  sig(tVoid, tCMat),
	"complexmatrix_release": sig(tVoid, tCMat),
	"intmatrix_to_matrix":   sig(tMat, tIMat),
	"matrix_print":          sig(tVoid, tMat),
	"intmatrix_print":       sig(tVoid, tIMat),
	"complexmatrix_print":   sig(tVoid, tCMat),

	// Statistics and linear algebra.
	"brix_sum":      sig(tF64, tMat),
	"brix_mean":     sig(tF64, tMat),
	"brix_median":   sig(tF64, tMat),
	"brix_variance": sig(tF64, tMat),
	"brix_std":      sig(tF64, tMat),
	"brix_stddev":   sig(tF64, tMat),
	"brix_eye":      sig(tMat, tI64),
	"brix_tr":       sig(tF64, tMat),
	"brix_det":      sig(tF64, tMat),
	"brix_inv":      sig(tMat, tMat),
	"brix_eigvals":  sig(tCMat, tMat),
	"brix_eigvecs":  sig(tCMat, tMat),
	"brix_read_csv": sig(tMat, tStr),

	// Zip family: i/f suffixes name the element kinds of the operands.
	"brix_zip_ii": sig(tIMat, tIMat, tIMat),
	"brix_zip_if": sig(tMat, tIMat, tMat),
	"brix_zip_fi": sig(tMat, tMat, tIMat),
	"brix_zip_ff": sig(tMat, tMat, tMat),

	// Complex helpers.
	"complex_new":   sig(tCplx, tF64, tF64),
	"complex_add":   sig(tCplx, tCplx, tCplx),
	"complex_sub":   sig(tCplx, tCplx, tCplx),
	"complex_mul":   sig(tCplx, tCplx, tCplx),
	"complex_div":   sig(tCplx, tCplx, tCplx),
	"complex_pow":   sig(tCplx, tCplx, tCplx),
	"complex_exp":   sig(tCplx, tCplx),
	"complex_log":   sig(tCplx, tCplx),
	"complex_sqrt":  sig(tCplx, tCplx),
	"complex_csin":  sig(tCplx, tCplx),
	"complex_ccos":  sig(tCplx, tCplx),
	"complex_ctan":  sig(tCplx, tCplx),
	"complex_csinh": sig(tCplx, tCplx),
	"complex_ccosh": sig(tCplx, tCplx),
	"complex_ctanh": sig(tCplx, tCplx),
	"complex_real":  sig(tF64, tCplx),
	"complex_imag":  sig(tF64, tCplx),
	"complex_conj":  sig(tCplx, tCplx),
	"complex_abs":   sig(tF64, tCplx),
	"complex_abs2":  sig(tF64, tCplx),
	"complex_angle": sig(tF64, tCplx),

	// Atoms.
	"atom_intern": sig(tI64, tI8p),
	"atom_name":   sig(tI8p, tI64),
	"atom_eq":     sig(tI32, tI64, tI64),

	// Errors.
	"brix_error_new":     sig(tErr, tI8p),
	"brix_error_message": sig(tI8p, tErr),
	"brix_error_is_nil":  sig(tI64, tErr),
	"brix_error_free":    sig(tVoid, tErr),

	// Traps.
	"brix_division_by_zero_error": sig(tVoid),
}

// matrixOpNames enumerates the per-operator matrix helper family. The
// runtime exposes one entry per operator and operand-kind combination with
// this exact naming scheme, e.g. matrix_add_matrix, intmatrix_mul_scalar,
// scalar_sub_matrix.
var matrixOpNames = map[string]string{
	"+":  "add",
	"-":  "sub",
	"*":  "mul",
	"/":  "div",
	"%":  "mod",
	"**": "pow",
}

// rt returns the declared runtime function, declaring it on first use.
func (g *generator) rt(name string) llvm.Value {
	if fn := g.m.NamedFunction(name); !fn.IsNil() {
		return fn
	}
	s, ok := runtimeABI[name]
	if !ok {
		// Per-op matrix helpers are generated by name; see matrixHelper.
		panic("unknown runtime symbol " + name)
	}
	ftyp := llvm.FunctionType(s.ret(g.t), s.params(g.t), s.variadic)
	return llvm.AddFunction(g.m, name, ftyp)
}

// matrixHelper declares (on first use) and returns one member of the
// per-op matrix helper family. kind is "matrix" or "intmatrix"; form is
// "matrix_matrix", "matrix_scalar" or "scalar_matrix".
func (g *generator) matrixHelper(kind, op, form string) llvm.Value {
	box := tMat
	scalar := tF64
	if kind == "intmatrix" {
		box = tIMat
		scalar = tI64
	}

	var name string
	var params []llvm.Type
	switch form {
	case "matrix_matrix":
		name = kind + "_" + matrixOpNames[op] + "_matrix"
		params = []llvm.Type{box(g.t), box(g.t)}
	case "matrix_scalar":
		name = kind + "_" + matrixOpNames[op] + "_scalar"
		params = []llvm.Type{box(g.t), scalar(g.t)}
	case "scalar_matrix":
		name = "scalar_" + matrixOpNames[op] + "_" + kind
		params = []llvm.Type{scalar(g.t), box(g.t)}
	}

	if fn := g.m.NamedFunction(name); !fn.IsNil() {
		return fn
	}
	ftyp := llvm.FunctionType(box(g.t), params, false)
	return llvm.AddFunction(g.m, name, ftyp)
}

// cSymbols are plain libc/libm declarations the emitted code leans on.
var cSymbols = map[string]rtSig{
	"printf":   {params: func(t typer) []llvm.Type { return []llvm.Type{t.i8ptr} }, ret: tI32, variadic: true},
	"snprintf": {params: func(t typer) []llvm.Type { return []llvm.Type{t.i8ptr, t.i64, t.i8ptr} }, ret: tI32, variadic: true},
	"atol":     sig(tI64, tI8p),
	"atof":     sig(tF64, tI8p),
	"pow":      sig(tF64, tF64, tF64),
	"llround":  sig(tI64, tF64),
}

// cfn returns the declared C library function, declaring it on first use.
func (g *generator) cfn(name string) llvm.Value {
	if fn := g.m.NamedFunction(name); !fn.IsNil() {
		return fn
	}
	s := cSymbols[name]
	ftyp := llvm.FunctionType(s.ret(g.t), s.params(g.t), s.variadic)
	return llvm.AddFunction(g.m, name, ftyp)
}

// mathFuncs is the libm surface bound by import math: name -> arity.
// All entries operate on and return f64.
var mathFuncs = map[string]int{
	"sin": 1, "cos": 1, "tan": 1,
	"asin": 1, "acos": 1, "atan": 1, "atan2": 2,
	"sinh": 1, "cosh": 1, "tanh": 1,
	"exp": 1, "log": 1, "log2": 1, "log10": 1,
	"sqrt": 1, "cbrt": 1, "pow": 2,
	"floor": 1, "ceil": 1, "round": 1, "fabs": 1,
	"fmod": 2, "hypot": 2,
}

// complexMath maps libm names to their complex helper counterparts for
// complex-typed arguments.
var complexMath = map[string]string{
	"sin":  "complex_csin",
	"cos":  "complex_ccos",
	"tan":  "complex_ctan",
	"sinh": "complex_csinh",
	"cosh": "complex_ccosh",
	"tanh": "complex_ctanh",
	"exp":  "complex_exp",
	"log":  "complex_log",
	"sqrt": "complex_sqrt",
}

// mathFn returns the declared libm function with n f64 parameters.
func (g *generator) mathFn(name string, n int) llvm.Value {
	if fn := g.m.NamedFunction(name); !fn.IsNil() {
		return fn
	}
	params := make([]llvm.Type, n)
	for i1 := range params {
		params[i1] = g.t.f64
	}
	ftyp := llvm.FunctionType(g.t.f64, params, false)
	return llvm.AddFunction(g.m, name, ftyp)
}
