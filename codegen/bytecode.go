package codegen

import "fmt"

// Opcode identifies a bytecode operation.  Instructions are packed into a
// single uint32: the opcode in the top byte, a 24-bit immediate below it.
type Opcode uint8

const (
	BCNop Opcode = iota

	// BCConst pushes constant pool entry imm.
	BCConst

	// BCSlotGet pushes frame slot imm; BCSlotSet pops into frame slot imm.
	BCSlotGet
	BCSlotSet

	// Arithmetic and comparison ops pop two operands and push the result.
	BCAdd
	BCSub
	BCMul
	BCDiv
	BCMod
	BCEq
	BCNeq
	BCLt
	BCGt
	BCLeq
	BCGeq
	BCAnd
	BCOr

	// Unary ops pop one operand and push the result.
	BCNeg
	BCNot

	// BCArg pushes the runtime argument named by string constant imm.
	BCArg

	// BCCall invokes call table entry imm; arguments are popped, the return
	// value is pushed.
	BCCall

	// Dataset ops.  BCLoad pops a format then a source name; BCSave pops a
	// format, a sink name, then the input handle.  BCFilter and BCGroupBy pop
	// their operand then the input handle.  All push the resulting handle.
	BCLoad
	BCSave
	BCFilter
	BCGroupBy

	// BCMakeList pops imm elements; BCMakeMap pops imm key/value pairs.
	BCMakeList
	BCMakeMap

	// Control flow.  Branch immediates are absolute code offsets.
	BCJmp
	BCJmpFalse
	BCRet

	// BCJitEnter transfers control to JIT region imm.  The frame slots form
	// the calling convention into the region.
	BCJitEnter
)

var opcodeNames = map[Opcode]string{
	BCNop:      "nop",
	BCConst:    "const",
	BCSlotGet:  "slot.get",
	BCSlotSet:  "slot.set",
	BCAdd:      "add",
	BCSub:      "sub",
	BCMul:      "mul",
	BCDiv:      "div",
	BCMod:      "mod",
	BCEq:       "eq",
	BCNeq:      "neq",
	BCLt:       "lt",
	BCGt:       "gt",
	BCLeq:      "leq",
	BCGeq:      "geq",
	BCAnd:      "and",
	BCOr:       "or",
	BCNeg:      "neg",
	BCNot:      "not",
	BCArg:      "arg",
	BCCall:     "call",
	BCLoad:     "load",
	BCSave:     "save",
	BCFilter:   "filter",
	BCGroupBy:  "groupby",
	BCMakeList: "make.list",
	BCMakeMap:  "make.map",
	BCJmp:      "jmp",
	BCJmpFalse: "jmp.false",
	BCRet:      "ret",
	BCJitEnter: "jit.enter",
}

// Name returns the mnemonic for the opcode.
func (op Opcode) Name() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}

	return fmt.Sprintf("op(%d)", op)
}

// HasImm returns whether the opcode consumes its immediate field.
func (op Opcode) HasImm() bool {
	switch op {
	case BCConst, BCSlotGet, BCSlotSet, BCArg, BCCall, BCMakeList, BCMakeMap,
		BCJmp, BCJmpFalse, BCJitEnter:
		return true
	}

	return false
}

// -----------------------------------------------------------------------------

// MaxImm is the largest encodable immediate.
const MaxImm = 1<<24 - 1

// Encode packs an opcode and its immediate into one instruction word.
func Encode(op Opcode, imm int) uint32 {
	return uint32(op)<<24 | uint32(imm)&MaxImm
}

// Decode unpacks an instruction word.
func Decode(word uint32) (Opcode, int) {
	return Opcode(word >> 24), int(word & MaxImm)
}

// -----------------------------------------------------------------------------

// ConstKind tags a constant pool entry.
type ConstKind int

const (
	ConstInt ConstKind = iota
	ConstFloat
	ConstBool
	ConstString
	ConstUnit
)

// Const is a constant pool entry.
type Const struct {
	Kind  ConstKind
	Int   int64
	Float float64
	Bool  bool
	Str   string
}

func (c Const) String() string {
	switch c.Kind {
	case ConstInt:
		return fmt.Sprintf("%d", c.Int)
	case ConstFloat:
		return fmt.Sprintf("%g", c.Float)
	case ConstBool:
		return fmt.Sprintf("%t", c.Bool)
	case ConstString:
		return fmt.Sprintf("%q", c.Str)
	default:
		return "unit"
	}
}

// -----------------------------------------------------------------------------

// CallSite is a call table entry: a callee name and its arity.
type CallSite struct {
	Callee string
	Arity  int
}

// FaultRange maps a code range to its fault handler.  A data fault raised at a
// code offset in [Start, End) transfers control to Handler with the operand
// stack discarded.
type FaultRange struct {
	Start   int
	End     int
	Handler int
}

// BlockSpan maps a code range back to the basic block it was generated from,
// so runtime faults can be tagged with their originating block.
type BlockSpan struct {
	Start int
	End   int
	Block int
}

// Region describes a deferred code region compiled by the JIT driver on first
// entry.  Boundary names the first block of the region in the source IR.
type Region struct {
	Func     string
	Boundary int
}

// FuncCode is the compiled form of one function.
type FuncCode struct {
	Name  string
	Arity int

	// NumSlots counts frame slots including value temporaries.  Arguments
	// occupy the first Arity temp slots after the user slots.
	NumSlots  int
	UserSlots int

	Code   []uint32
	Consts []Const
	Calls  []CallSite
	Faults []FaultRange
	Spans  []BlockSpan
}

// Handler returns the fault handler offset covering pc, or -1.
func (fc *FuncCode) Handler(pc int) int {
	for _, fr := range fc.Faults {
		if pc >= fr.Start && pc < fr.End {
			return fr.Handler
		}
	}

	return -1
}

// BlockAt returns the id of the basic block the code at pc was generated
// from, or -1 for synthetic code such as a stub prologue.
func (fc *FuncCode) BlockAt(pc int) int {
	for _, span := range fc.Spans {
		if pc >= span.Start && pc < span.End {
			return span.Block
		}
	}

	return -1
}

// Program is a fully generated bytecode program.
type Program struct {
	Name    string
	Funcs   map[string]*FuncCode
	Main    *FuncCode
	Regions []Region
}
