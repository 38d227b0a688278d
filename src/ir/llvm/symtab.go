package llvm

import (
	"tinygo.org/x/go-llvm"

	"brix/src/ir"
	"brix/src/util"
)

// symbol is one symbol table entry: the stack slot of the binding and its
// semantic type. Imported library functions are entered under their dotted
// name with a nil slot.
type symbol struct {
	slot     llvm.Value // Entry-block alloca; loads and stores go through here.
	typ      ir.Type
	constant bool // Set for const declarations; element assignment is rejected.
}

// symTab is the flat name -> symbol map. Scoping uses save/restore: save
// snapshots the map onto a stack before entering a function body or match
// arm, restore pops it back on exit. Shadowing overwrites the entry and
// is undone by the restore.
type symTab struct {
	m     map[string]symbol
	saves util.Stack
}

const mapSize = 16 // Predefined size for a decently sized symbol table.

func newSymTab() *symTab {
	return &symTab{m: make(map[string]symbol, mapSize)}
}

// define inserts or overwrites the entry for name.
func (s *symTab) define(name string, sym symbol) {
	s.m[name] = sym
}

// lookup resolves name, reporting false when it is not in scope.
func (s *symTab) lookup(name string) (symbol, bool) {
	sym, ok := s.m[name]
	return sym, ok
}

// save snapshots the current table onto the scope stack.
func (s *symTab) save() {
	snap := make(map[string]symbol, len(s.m))
	for k, v := range s.m {
		snap[k] = v
	}
	s.saves.Push(snap)
}

// restore pops the most recent snapshot back into place.
func (s *symTab) restore() {
	if snap := s.saves.Pop(); snap != nil {
		s.m = snap.(map[string]symbol)
	}
}
