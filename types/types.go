package types

import "strings"

// Type is the abstract interface of all Rill data types.
type Type interface {
	// Repr returns the string representation of the type for diagnostics.
	Repr() string
}

// PrimitiveType is the set of primitive Rill types.  The values of this type
// are enumerated below.
type PrimitiveType int

// Enumeration of primitive types.
const (
	PrimUnit PrimitiveType = iota
	PrimBool
	PrimInt
	PrimFloat
	PrimString

	// PrimDataset is the opaque dataset handle type produced and consumed by
	// pipeline stages.  The compiler never looks inside a dataset.
	PrimDataset

	// PrimAny is the deferred type of scalars whose concrete type is only
	// known at invocation time, such as runtime arguments.  It checks against
	// every scalar type; the runtime enforces the actual kinds.
	PrimAny
)

// primNames maps primitive types to their display names.
var primNames = []string{
	"unit",
	"bool",
	"int",
	"float",
	"string",
	"dataset",
	"any",
}

func (pt PrimitiveType) Repr() string {
	return primNames[pt]
}

// -----------------------------------------------------------------------------

// FuncType is the type of a named function.
type FuncType struct {
	// The parameter types, in source order.
	Params []Type

	// The return type.
	Return Type
}

func (ft *FuncType) Repr() string {
	sb := strings.Builder{}
	sb.WriteRune('(')

	for i, param := range ft.Params {
		sb.WriteString(param.Repr())

		if i < len(ft.Params)-1 {
			sb.WriteString(", ")
		}
	}

	sb.WriteString(") -> ")
	sb.WriteString(ft.Return.Repr())

	return sb.String()
}

// -----------------------------------------------------------------------------

// Equals returns whether two types are equal.
func Equals(a, b Type) bool {
	switch v := a.(type) {
	case PrimitiveType:
		pb, ok := b.(PrimitiveType)
		return ok && v == pb
	case *FuncType:
		fb, ok := b.(*FuncType)
		if !ok || len(v.Params) != len(fb.Params) || !Equals(v.Return, fb.Return) {
			return false
		}

		for i, param := range v.Params {
			if !Equals(param, fb.Params[i]) {
				return false
			}
		}

		return true
	}

	return false
}

// Compatible returns whether a value of one type is acceptable where the
// other is expected.  Deferred scalars accept any scalar position.
func Compatible(a, b Type) bool {
	if Equals(a, PrimAny) {
		a, b = b, a
	}

	if Equals(b, PrimAny) {
		return Equals(a, PrimAny) || IsScalar(a)
	}

	return Equals(a, b)
}

// IsNumeric returns whether a type is a numeric primitive.
func IsNumeric(t Type) bool {
	return Equals(t, PrimInt) || Equals(t, PrimFloat)
}

// IsScalar returns whether a type is a scalar primitive.
func IsScalar(t Type) bool {
	return Equals(t, PrimBool) || Equals(t, PrimInt) ||
		Equals(t, PrimFloat) || Equals(t, PrimString)
}

// IsUnit returns whether a type is the unit type.
func IsUnit(t Type) bool {
	return Equals(t, PrimUnit)
}
