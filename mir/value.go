package mir

import (
	"fmt"

	"rillc/types"
)

// Operand is the abstract interface for anything an instruction can operate
// upon: an IR value reference or a constant.  Instructions reference their
// operands; they never own them.
type Operand interface {
	// Repr returns the string representation of the operand.
	Repr() string

	// Type returns the data type of the operand.
	Type() types.Type
}

// Value is a typed, versioned quantity produced by exactly one instruction.
// The single-assignment invariant holds for the lifetime of the IR: a value's
// defining instruction never changes.
type Value struct {
	// The numeric identity of the value within its function.
	ID int

	// The data type of the value.
	Typ types.Type

	// The instruction that defines the value.
	Def *Instr
}

func (v *Value) Repr() string {
	return fmt.Sprintf("$%d", v.ID)
}

func (v *Value) Type() types.Type {
	return v.Typ
}

// -----------------------------------------------------------------------------

// ConstInt is a constant integer operand.
type ConstInt struct {
	Val int64
}

func (c ConstInt) Repr() string {
	return fmt.Sprintf("%d", c.Val)
}

func (c ConstInt) Type() types.Type {
	return types.PrimInt
}

// ConstFloat is a constant float operand.
type ConstFloat struct {
	Val float64
}

func (c ConstFloat) Repr() string {
	return fmt.Sprintf("%g", c.Val)
}

func (c ConstFloat) Type() types.Type {
	return types.PrimFloat
}

// ConstBool is a constant boolean operand.
type ConstBool struct {
	Val bool
}

func (c ConstBool) Repr() string {
	return fmt.Sprintf("%t", c.Val)
}

func (c ConstBool) Type() types.Type {
	return types.PrimBool
}

// ConstString is a constant string operand.
type ConstString struct {
	Val string
}

func (c ConstString) Repr() string {
	return fmt.Sprintf("%q", c.Val)
}

func (c ConstString) Type() types.Type {
	return types.PrimString
}

// ConstUnit is the unit constant operand.
type ConstUnit struct{}

func (c ConstUnit) Repr() string {
	return "unit"
}

func (c ConstUnit) Type() types.Type {
	return types.PrimUnit
}

// IsConst returns whether an operand is a constant.
func IsConst(op Operand) bool {
	_, isValue := op.(*Value)
	return !isValue
}

// ConstEquals returns whether two constant operands are the same constant.
func ConstEquals(a, b Operand) bool {
	if IsConst(a) && IsConst(b) {
		return a == b
	}

	return false
}
