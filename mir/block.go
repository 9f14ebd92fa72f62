package mir

import "fmt"

// Block is a basic block: an ordered sequence of instructions terminated by
// exactly one control transfer.  Blocks are owned by a Func; the set of
// blocks plus their successor edges form the function's control-flow graph.
type Block struct {
	// The numeric identity of the block within its function.
	ID int

	// The instructions of the block, excluding the terminator.
	Instrs []*Instr

	// The terminator of the block: a branch, conditional branch, or return.
	Term *Instr

	// Fallback is the designated fault successor of the block: the block
	// control transfers to when an instruction in this block raises a
	// runtime-signaled failure.  Nil outside of try bodies, in which case a
	// fault propagates outward.
	Fallback *Block
}

func (b *Block) Repr() string {
	return fmt.Sprintf("b%d", b.ID)
}

// Successors returns the control-flow successors of the block, excluding the
// fault fallback edge.
func (b *Block) Successors() []*Block {
	if b.Term == nil {
		return nil
	}

	return b.Term.Targets
}

// Append appends a non-terminator instruction to the block.
func (b *Block) Append(instr *Instr) {
	instr.Block = b
	b.Instrs = append(b.Instrs, instr)
}

// SetTerm sets the block terminator.  Setting a second terminator on a block
// is an IR construction bug.
func (b *Block) SetTerm(instr *Instr) {
	instr.Block = b
	b.Term = instr
}

// Terminated returns whether the block already has a terminator.
func (b *Block) Terminated() bool {
	return b.Term != nil
}
