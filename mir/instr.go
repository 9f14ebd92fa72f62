package mir

import (
	"strconv"
	"strings"
)

// Op is an instruction operation code.
type Op int

// Enumeration of instruction op codes.
const (
	// OpParam binds a calling-convention slot to a value at function entry.
	// Slot carries the parameter index.
	OpParam Op = iota

	// Frame slot access for mutable variables.  Slot carries the slot index.
	OpSlotGet
	OpSlotSet

	// Intrinsic arithmetic and comparison.
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpEq
	OpNeq
	OpLt
	OpGt
	OpLeq
	OpGeq
	OpAnd
	OpOr
	OpNeg
	OpNot

	// OpArgLookup reads a named runtime-supplied argument.  Sym carries the
	// argument name.  Its result can never be proven constant at compile time.
	OpArgLookup

	// OpCall calls a named function.  Sym carries the callee name.
	OpCall

	// External dataset service operations.  These carry externally visible
	// side effects: they never reorder relative to one another.
	OpLoad
	OpSave
	OpFilter
	OpGroupBy
	OpMakeList
	OpMakeMap

	// Terminators.
	OpBr
	OpCondBr
	OpRet
)

// displayTable converts an op code into a displayable string.
var displayTable = []string{
	"param",
	"slotget",
	"slotset",
	"add",
	"sub",
	"mul",
	"div",
	"mod",
	"eq",
	"neq",
	"lt",
	"gt",
	"leq",
	"geq",
	"and",
	"or",
	"neg",
	"not",
	"arglookup",
	"call",
	"load",
	"save",
	"filter",
	"groupby",
	"makelist",
	"makemap",
	"br",
	"condbr",
	"ret",
}

func (op Op) String() string {
	return displayTable[op]
}

// IsTerminator returns whether the op is a control transfer.
func (op Op) IsTerminator() bool {
	return op == OpBr || op == OpCondBr || op == OpRet
}

// HasSideEffect returns whether the op carries an externally visible side
// effect.  Side-effecting instructions are never eliminated, duplicated, or
// reordered relative to one another by the optimizer.
func (op Op) HasSideEffect() bool {
	switch op {
	case OpSlotSet, OpCall, OpLoad, OpSave, OpFilter, OpGroupBy, OpMakeList, OpMakeMap:
		return true
	}

	return false
}

// IsPure returns whether the op computes its result from its operands alone,
// with no effects and no dependency on mutable state.
func (op Op) IsPure() bool {
	switch op {
	case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpEq, OpNeq, OpLt, OpGt, OpLeq,
		OpGeq, OpAnd, OpOr, OpNeg, OpNot:
		return true
	}

	return false
}

// -----------------------------------------------------------------------------

// Instr represents a single IR instruction: an operation code, an ordered
// list of input operands, and zero or one output value.  Instructions belong
// to exactly one basic block.
type Instr struct {
	// The operation code of the instruction.
	Op Op

	// The operands the instruction operates upon.
	Operands []Operand

	// The output value of the instruction.  Nil if the instruction produces
	// no value.
	Result *Value

	// The block the instruction belongs to.
	Block *Block

	// Slot is the frame/parameter slot index for OpParam, OpSlotGet and
	// OpSlotSet.
	Slot int

	// Sym is the symbol immediate: the callee name for OpCall and the
	// argument name for OpArgLookup.
	Sym string

	// Targets are the successor blocks of a terminator: one target for OpBr,
	// then/else targets for OpCondBr.
	Targets []*Block
}

// Repr returns the string representation of the instruction.
func (instr *Instr) Repr() string {
	sb := strings.Builder{}

	if instr.Result != nil {
		sb.WriteString(instr.Result.Repr())
		sb.WriteString(" := ")
	}

	sb.WriteString(instr.Op.String())

	if instr.Sym != "" {
		sb.WriteString(" @")
		sb.WriteString(instr.Sym)
	}

	if instr.Op == OpParam || instr.Op == OpSlotGet || instr.Op == OpSlotSet {
		sb.WriteString(" #")
		sb.WriteString(strconv.Itoa(instr.Slot))
	}

	for i, operand := range instr.Operands {
		if i == 0 {
			sb.WriteRune(' ')
		} else {
			sb.WriteString(", ")
		}

		sb.WriteString(operand.Repr())
	}

	for i, target := range instr.Targets {
		if i == 0 && len(instr.Operands) == 0 {
			sb.WriteRune(' ')
		} else {
			sb.WriteString(", ")
		}

		sb.WriteString(target.Repr())
	}

	return sb.String()
}
