package ir

import "strings"

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// TypeKind enumerates the closed set of semantic types. There is no user
// extension point; inference, promotion and built-in dispatch all switch
// exhaustively over this set.
type TypeKind int

const (
	Invalid TypeKind = iota
	Int
	Float
	String
	Matrix        // Boxed 2-D f64 array with refcount header.
	IntMatrix     // Boxed 2-D i64 array with refcount header.
	Complex       // Pair of f64, passed by value.
	ComplexMatrix // Boxed 2-D complex array.
	FloatPtr      // Internal pointer for indexed l-values.
	Void
	Tuple
	Nil   // Opaque null-tagged pointer.
	Error // Boxed message with refcount header.
	Atom  // Interned i64 id.
)

// Type is a semantic type. Elems is populated for Tuple only.
type Type struct {
	Kind  TypeKind
	Elems []Type
}

// ---------------------
// ----- functions -----
// ---------------------

// T is shorthand for a non-tuple type of the given kind.
func T(k TypeKind) Type { return Type{Kind: k} }

// TupleOf builds a tuple type from its component types.
func TupleOf(elems ...Type) Type { return Type{Kind: Tuple, Elems: elems} }

// String returns the name of the type as surfaced by typeof().
func (t Type) String() string {
	switch t.Kind {
	case Int:
		return "int"
	case Float:
		return "float"
	case String:
		return "string"
	case Matrix:
		return "matrix"
	case IntMatrix:
		return "intmatrix"
	case Complex:
		return "complex"
	case ComplexMatrix:
		return "complexmatrix"
	case FloatPtr:
		return "floatptr"
	case Void:
		return "void"
	case Tuple:
		names := make([]string, len(t.Elems))
		for i1, e1 := range t.Elems {
			names[i1] = e1.String()
		}
		return "tuple(" + strings.Join(names, ", ") + ")"
	case Nil:
		return "nil"
	case Error:
		return "error"
	case Atom:
		return "atom"
	}
	return "invalid"
}

// Equal reports whether two types are identical, including tuple components.
func (t Type) Equal(o Type) bool {
	if t.Kind != o.Kind {
		return false
	}
	if t.Kind != Tuple {
		return true
	}
	if len(t.Elems) != len(o.Elems) {
		return false
	}
	for i1 := range t.Elems {
		if !t.Elems[i1].Equal(o.Elems[i1]) {
			return false
		}
	}
	return true
}

// IsNumeric reports whether the type participates in scalar arithmetic.
func (t Type) IsNumeric() bool {
	return t.Kind == Int || t.Kind == Float || t.Kind == Complex
}

// IsMatrix reports whether the type is one of the boxed 2-D array kinds.
func (t Type) IsMatrix() bool {
	return t.Kind == Matrix || t.Kind == IntMatrix || t.Kind == ComplexMatrix
}

// IsBoxed reports whether values of the type carry a refcount header and
// participate in the ARC discipline.
func (t Type) IsBoxed() bool {
	switch t.Kind {
	case String, Matrix, IntMatrix, ComplexMatrix, Error:
		return true
	}
	return false
}

// ConvertibleTo reports whether a value of type t may be implicitly
// converted to type o. Int widens to Float and Complex, Float truncates to
// Int and widens to Complex, IntMatrix widens to Matrix. Everything else
// requires identity.
func (t Type) ConvertibleTo(o Type) bool {
	if t.Equal(o) {
		return true
	}
	switch t.Kind {
	case Int:
		return o.Kind == Float || o.Kind == Complex
	case Float:
		return o.Kind == Int || o.Kind == Complex
	case IntMatrix:
		return o.Kind == Matrix
	}
	return false
}

// Promote returns the wider of two numeric scalar types following the
// Int -> Float -> Complex lattice. Non-numeric inputs return Invalid.
func Promote(a, b Type) Type {
	if !a.IsNumeric() || !b.IsNumeric() {
		return T(Invalid)
	}
	if a.Kind == Complex || b.Kind == Complex {
		return T(Complex)
	}
	if a.Kind == Float || b.Kind == Float {
		return T(Float)
	}
	return T(Int)
}

// ElemType returns the element type of a matrix kind.
func (t Type) ElemType() Type {
	switch t.Kind {
	case Matrix:
		return T(Float)
	case IntMatrix:
		return T(Int)
	case ComplexMatrix:
		return T(Complex)
	}
	return T(Invalid)
}

// TypeFromName resolves a type annotation name to a semantic type. The
// second return is false for names outside the annotatable set.
func TypeFromName(name string) (Type, bool) {
	switch name {
	case "int":
		return T(Int), true
	case "float":
		return T(Float), true
	case "string":
		return T(String), true
	case "matrix":
		return T(Matrix), true
	case "intmatrix":
		return T(IntMatrix), true
	case "complex":
		return T(Complex), true
	case "complexmatrix":
		return T(ComplexMatrix), true
	case "atom":
		return T(Atom), true
	}
	return T(Invalid), false
}
