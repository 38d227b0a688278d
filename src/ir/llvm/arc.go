package llvm

import (
	"tinygo.org/x/go-llvm"

	"brix/src/ir"
)

// ARC bookkeeping. Boxed objects (strings, matrices, errors) carry a
// refcount header and start life at refcount 1. Ownership rules:
//
//   - Runtime helpers return fresh objects owned by the expression that
//     called them (value.owned set).
//   - Loads from bindings are borrowed (value.owned clear).
//   - Storing into a binding takes ownership: borrowed values are
//     retained first, owned values transfer as-is. The slot's previous
//     occupant is released before the store.
//   - Every boxed slot is released when control leaves the function.
//     The release helpers tolerate NULL, which covers slots whose
//     declaration was never reached.

// retainFns and releaseFns name the runtime entry per boxed kind.
var retainFns = map[ir.TypeKind]string{
	ir.String:        "string_retain",
	ir.Matrix:        "matrix_retain",
	ir.IntMatrix:     "intmatrix_retain",
	ir.ComplexMatrix: "complexmatrix_retain",
}

var releaseFns = map[ir.TypeKind]string{
	ir.String:        "string_release",
	ir.Matrix:        "matrix_release",
	ir.IntMatrix:     "intmatrix_release",
	ir.ComplexMatrix: "complexmatrix_release",
	ir.Error:         "brix_error_free",
}

// retain emits a retain call for a boxed value.
func (g *generator) retain(v value) {
	if name, ok := retainFns[v.t.Kind]; ok {
		g.b.CreateCall(g.rt(name), []llvm.Value{v.v}, "")
	}
}

// release emits a release call for a boxed value.
func (g *generator) release(v value) {
	if name, ok := releaseFns[v.t.Kind]; ok {
		g.b.CreateCall(g.rt(name), []llvm.Value{v.v}, "")
	}
}

// disposeTemp releases an expression result that is owned but not stored
// anywhere, e.g. a fresh matrix used once as an operand.
func (g *generator) disposeTemp(v value) {
	if v.owned {
		g.release(v)
	}
}

// trackBoxed records a boxed slot for release at function exit. The slot
// is null-initialised so that releasing it is safe even when its
// declaration was never executed.
func (g *generator) trackBoxed(slot llvm.Value, typ ir.Type) {
	for _, e1 := range g.boxed {
		if e1.slot == slot {
			return
		}
	}
	g.boxed = append(g.boxed, boxedSlot{slot: slot, typ: typ})
}

// storeBoxed stores v into a tracked boxed slot: retain borrowed values,
// release the previous occupant, store.
func (g *generator) storeBoxed(slot llvm.Value, v value) {
	if !v.owned {
		g.retain(v)
	}
	old := g.b.CreateLoad(slot, "")
	g.release(value{v: old, t: v.t})
	g.b.CreateStore(v.v, slot)
}

// releaseScope releases every live boxed slot of the current function.
// Called before each return and at the fall-through end of a body.
func (g *generator) releaseScope() {
	for _, e1 := range g.boxed {
		v := g.b.CreateLoad(e1.slot, "")
		g.release(value{v: v, t: e1.typ})
	}
}
