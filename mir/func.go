package mir

import (
	"rillc/types"
)

// Func is a single IR function: the unit of optimization, partitioning, and
// code generation.  The block list forms a control-flow graph connected from
// a single designated entry block.
type Func struct {
	// The name of the function.
	Name string

	// The parameter types, in calling-convention order.
	ParamTypes []types.Type

	// The return type of the function.
	ReturnType types.Type

	// The number of frame slots used by mutable variables.
	NumSlots int

	// The blocks of the function.  Blocks[0] is the entry block.
	Blocks []*Block

	// The next value identity to hand out.
	nextValueID int

	// The next block identity to hand out.
	nextBlockID int
}

// NewFunc creates a new empty function with an entry block.
func NewFunc(name string, paramTypes []types.Type, returnType types.Type) *Func {
	fn := &Func{
		Name:       name,
		ParamTypes: paramTypes,
		ReturnType: returnType,
	}
	fn.NewBlock()

	return fn
}

// Entry returns the designated entry block of the function.
func (fn *Func) Entry() *Block {
	return fn.Blocks[0]
}

// NumValues returns the number of value identities handed out.  Value IDs are
// dense in [0, NumValues).
func (fn *Func) NumValues() int {
	return fn.nextValueID
}

// NewBlock appends a new empty block to the function.
func (fn *Func) NewBlock() *Block {
	block := &Block{ID: fn.nextBlockID}
	fn.nextBlockID++
	fn.Blocks = append(fn.Blocks, block)

	return block
}

// NewValue creates a new value of the given type defined by the given
// instruction.
func (fn *Func) NewValue(typ types.Type, def *Instr) *Value {
	value := &Value{ID: fn.nextValueID, Typ: typ, Def: def}
	fn.nextValueID++

	return value
}

// -----------------------------------------------------------------------------

// Reachable computes the set of blocks reachable from the entry block,
// following both ordinary successor edges and fault fallback edges.
func (fn *Func) Reachable() map[*Block]bool {
	reached := make(map[*Block]bool)

	var visit func(b *Block)
	visit = func(b *Block) {
		if reached[b] {
			return
		}
		reached[b] = true

		for _, succ := range b.Successors() {
			visit(succ)
		}

		if b.Fallback != nil {
			visit(b.Fallback)
		}
	}
	visit(fn.Entry())

	return reached
}

// PruneUnreachable removes blocks not reachable from the entry block.  The
// CFG must not contain unreachable blocks after optimization.
func (fn *Func) PruneUnreachable() {
	reached := fn.Reachable()

	kept := fn.Blocks[:0]
	for _, block := range fn.Blocks {
		if reached[block] {
			kept = append(kept, block)
		}
	}
	fn.Blocks = kept
}

// Instrs calls visit for every instruction in the function, terminators
// included, in block order.
func (fn *Func) Instrs(visit func(*Instr)) {
	for _, block := range fn.Blocks {
		for _, instr := range block.Instrs {
			visit(instr)
		}

		if block.Term != nil {
			visit(block.Term)
		}
	}
}
