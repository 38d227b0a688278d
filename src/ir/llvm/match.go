package llvm

import (
	"os"

	"tinygo.org/x/go-llvm"

	"brix/src/diag"
	"brix/src/ir"
)

// armResult is one match arm's lowered body value and the block it
// finished in. The branch to the merge block is deferred until the
// unified arm type is known, so type casts land inside the arm.
type armResult struct {
	val value
	blk llvm.BasicBlock
	sp  ir.Span
}

// genMatch lowers a match expression. The scrutinee evaluates once and
// compares against each arm's pattern alternatives in order; binding
// patterns introduce a scoped slot, guards evaluate after binding inside
// the arm, and a false guard falls through to the next arm. A merge block
// collects every arm value through a PHI of the unified type. A match
// without an irrefutable arm warns and yields the zero value of the
// unified type on the fall-through path.
func (g *generator) genMatch(e *ir.MatchExpr) (value, *diag.Error) {
	scrut, err := g.genExpr(e.Scrutinee)
	if err != nil {
		return value{}, err
	}

	merge := llvm.AddBasicBlock(g.fn, "match.merge")
	var results []armResult
	exhaustive := false

	for _, arm := range e.Arms {
		bodyBB := llvm.AddBasicBlock(g.fn, "match.arm")
		nextBB := llvm.AddBasicBlock(g.fn, "match.next")

		irrefutable := false
		for _, pat := range arm.Patterns {
			if pat.Wildcard || pat.Binding != "" {
				irrefutable = true
			}
		}

		if irrefutable {
			g.b.CreateBr(bodyBB)
			if arm.Guard == nil {
				exhaustive = true
			}
		} else {
			// OR together the alternative literal comparisons.
			var acc llvm.Value
			for _, pat := range arm.Patterns {
				lit, gerr := g.genExpr(pat.Lit)
				if gerr != nil {
					return value{}, gerr
				}
				eq, cerr := g.cmpScalar("==", scrut, lit, pat.Pos)
				if cerr != nil {
					return value{}, cerr
				}
				if acc.IsNil() {
					acc = eq
				} else {
					acc = g.b.CreateOr(acc, eq, "")
				}
			}
			g.b.CreateCondBr(acc, bodyBB, nextBB)
		}

		// Arm body: bind, guard, evaluate.
		g.b.SetInsertPointAtEnd(bodyBB)
		g.syms.save()
		for _, pat := range arm.Patterns {
			if pat.Binding != "" {
				slot := g.alloca(g.t.lower(scrut.t), pat.Binding)
				g.b.CreateStore(scrut.v, slot)
				g.syms.define(pat.Binding, symbol{slot: slot, typ: scrut.t})
				break
			}
		}

		if arm.Guard != nil {
			gv, gerr := g.genExpr(arm.Guard)
			if gerr != nil {
				g.syms.restore()
				return value{}, gerr
			}
			cond, terr := g.truthy(gv, arm.Guard.Span())
			if terr != nil {
				g.syms.restore()
				return value{}, terr
			}
			ok := llvm.AddBasicBlock(g.fn, "match.guard")
			g.b.CreateCondBr(cond, ok, nextBB)
			g.b.SetInsertPointAtEnd(ok)
		}

		bv, berr := g.genExpr(arm.Body)
		g.syms.restore()
		if berr != nil {
			return value{}, berr
		}
		results = append(results, armResult{val: bv, blk: g.b.GetInsertBlock(), sp: arm.Body.Span()})

		g.b.SetInsertPointAtEnd(nextBB)
		if irrefutable {
			// The test never reaches nextBB; arms below an irrefutable
			// guardless arm are unreachable but still lower normally.
			if arm.Guard == nil {
				g.b.CreateUnreachable()
				nextBB = llvm.AddBasicBlock(g.fn, "match.dead")
				g.b.SetInsertPointAtEnd(nextBB)
			}
		}
	}

	// Unify the arm types.
	unified := results[0].val.t
	for _, e1 := range results[1:] {
		u, uerr := g.unify(unified, e1.val.t, e1.sp)
		if uerr != nil {
			return value{}, uerr
		}
		unified = u
	}

	// Fall-through path: no arm matched.
	if !exhaustive {
		diag.Warnf(os.Stderr, g.src, g.file, e.Pos, "match has no wildcard arm and may not be exhaustive")
	}
	fallBlk := g.b.GetInsertBlock()
	g.b.CreateBr(merge)

	// Finish each arm: cast to the unified type, then branch to merge.
	incoming := make([]llvm.Value, 0, len(results)+1)
	blocks := make([]llvm.BasicBlock, 0, len(results)+1)
	for _, e1 := range results {
		g.b.SetInsertPointAtEnd(e1.blk)
		cv, cerr := g.cast(e1.val, unified, e1.sp)
		if cerr != nil {
			return value{}, cerr
		}
		incoming = append(incoming, cv.v)
		blocks = append(blocks, g.b.GetInsertBlock())
		g.b.CreateBr(merge)
	}
	incoming = append(incoming, g.t.zero(unified))
	blocks = append(blocks, fallBlk)

	g.b.SetInsertPointAtEnd(merge)
	phi := g.b.CreatePHI(g.t.lower(unified), "")
	phi.AddIncoming(incoming, blocks)
	g.disposeTemp(scrut)
	return value{v: phi, t: unified, owned: unified.IsBoxed()}, nil
}
