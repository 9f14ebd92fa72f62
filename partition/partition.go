package partition

import (
	"rillc/mir"
	"rillc/types"
)

// Class is the region classification tag attached to blocks and functions
// after partitioning.
type Class int

const (
	// AOT marks code fully determinable at compile time.
	AOT Class = iota

	// JIT marks code depending on runtime-only values.
	JIT
)

func (c Class) String() string {
	if c == AOT {
		return "aot"
	}

	return "jit"
}

// Result is the partitioning of a single function.  Partitioning is
// deterministic and derivable from the IR alone: no hidden state.
type Result struct {
	// The whole-function classification.  A split function is classified JIT
	// with an AOT prefix.
	Class Class

	// Boundary is the first block of the JIT suffix when the function was
	// split at a safe boundary.  Nil when the function is entirely AOT or
	// entirely JIT.
	Boundary *mir.Block

	// Blocks is the per-block classification.
	Blocks map[*mir.Block]Class
}

// Split returns whether the function was split into an AOT prefix and a JIT
// suffix.
func (r *Result) Split() bool {
	return r.Boundary != nil
}

// -----------------------------------------------------------------------------

// Partition classifies a function as AOT if every input value of every
// instruction traces back only to compile-time constants; otherwise the
// function is JIT, split at a safe boundary when one exists so the portion
// deferred to runtime is minimized.
func Partition(fn *mir.Func) *Result {
	static := staticValues(fn)

	// Find the first instruction with a runtime-only operand, scanning
	// blocks in layout order (entry first).
	boundaryIdx := -1
scan:
	for i, block := range fn.Blocks {
		for j, instr := range block.Instrs {
			if !eligible(instr, static) {
				// A mid-block cut gets materialized as a real block boundary
				// so the split rule below stays purely block-granular.
				if j > 0 {
					splitBlock(fn, i, j)
					boundaryIdx = i + 1
				} else {
					boundaryIdx = i
				}
				break scan
			}
		}

		if block.Term != nil && !eligible(block.Term, static) {
			boundaryIdx = i
			break scan
		}
	}

	result := &Result{Blocks: make(map[*mir.Block]Class)}

	switch {
	case boundaryIdx < 0:
		result.Class = AOT
		for _, block := range fn.Blocks {
			result.Blocks[block] = AOT
		}
	case boundaryIdx > 0 && splitLegal(fn, boundaryIdx, static):
		result.Class = JIT
		result.Boundary = fn.Blocks[boundaryIdx]
		for i, block := range fn.Blocks {
			if i < boundaryIdx {
				result.Blocks[block] = AOT
			} else {
				result.Blocks[block] = JIT
			}
		}
	default:
		result.Class = JIT
		for _, block := range fn.Blocks {
			result.Blocks[block] = JIT
		}
	}

	return result
}

// -----------------------------------------------------------------------------

// splitBlock cuts block blockIdx before instruction instrIdx: the tail
// instructions and terminator move into a new block placed immediately after
// the original, which now just branches to it.  The fault edge carries over.
func splitBlock(fn *mir.Func, blockIdx, instrIdx int) *mir.Block {
	block := fn.Blocks[blockIdx]

	tail := fn.NewBlock()
	tail.Instrs = append(tail.Instrs, block.Instrs[instrIdx:]...)
	for _, instr := range tail.Instrs {
		instr.Block = tail
	}
	tail.Term = block.Term
	if tail.Term != nil {
		tail.Term.Block = tail
	}
	tail.Fallback = block.Fallback

	block.Instrs = block.Instrs[:instrIdx]
	block.Term = &mir.Instr{Op: mir.OpBr, Targets: []*mir.Block{tail}, Block: block}

	// NewBlock appends; move the tail to its layout position.
	last := len(fn.Blocks) - 1
	copy(fn.Blocks[blockIdx+2:], fn.Blocks[blockIdx+1:last])
	fn.Blocks[blockIdx+1] = tail

	return tail
}

// staticValues computes the set of values provably constant at compile time.
// A value is static if its defining instruction is pure over static operands,
// or a read of a frame slot only ever written static values.  Slot staticness
// is a fixed point: assume all static, then retract.
func staticValues(fn *mir.Func) map[*mir.Value]bool {
	static := make(map[*mir.Value]bool)

	slotStatic := make(map[int]bool)
	for i := 0; i < fn.NumSlots; i++ {
		slotStatic[i] = true
	}

	operandStatic := func(operand mir.Operand) bool {
		if value, ok := operand.(*mir.Value); ok {
			return static[value]
		}

		return true
	}

	for changed := true; changed; {
		changed = false

		fn.Instrs(func(instr *mir.Instr) {
			switch instr.Op {
			case mir.OpSlotSet:
				if slotStatic[instr.Slot] && !operandStatic(instr.Operands[0]) {
					slotStatic[instr.Slot] = false
					changed = true
				}
			case mir.OpSlotGet:
				isStatic := slotStatic[instr.Slot]
				if static[instr.Result] != isStatic {
					static[instr.Result] = isStatic
					changed = true
				}
			default:
				if !instr.Op.IsPure() || instr.Result == nil {
					return
				}

				isStatic := true
				for _, operand := range instr.Operands {
					if !operandStatic(operand) {
						isStatic = false
						break
					}
				}

				if static[instr.Result] != isStatic {
					static[instr.Result] = isStatic
					changed = true
				}
			}
		})
	}

	return static
}

// eligible returns whether an instruction can live in an AOT region: every
// operand is provably constant, or is a dataset handle, which crosses region
// boundaries through the fixed calling convention.
func eligible(instr *mir.Instr, static map[*mir.Value]bool) bool {
	// A runtime argument lookup is the canonical runtime-only source.
	if instr.Op == mir.OpArgLookup {
		return false
	}

	for _, operand := range instr.Operands {
		value, ok := operand.(*mir.Value)
		if !ok {
			continue
		}

		if static[value] {
			continue
		}

		if types.Equals(value.Typ, types.PrimDataset) {
			continue
		}

		return false
	}

	return true
}

// splitLegal returns whether the function may be split immediately before
// block boundaryIdx: the prefix must only branch forward into itself or into
// the boundary block, and every value crossing the boundary must be a
// constant, a dataset handle, or slot-mediated.
func splitLegal(fn *mir.Func, boundaryIdx int, static map[*mir.Value]bool) bool {
	prefix := make(map[*mir.Block]bool)
	for _, block := range fn.Blocks[:boundaryIdx] {
		prefix[block] = true
	}
	boundary := fn.Blocks[boundaryIdx]

	// Prefix control flow may not jump over the boundary or back out of the
	// suffix: the split must be a clean cut.
	for _, block := range fn.Blocks[:boundaryIdx] {
		for _, succ := range block.Successors() {
			if !prefix[succ] && succ != boundary {
				return false
			}
		}

		if block.Fallback != nil && !prefix[block.Fallback] && block.Fallback != boundary {
			return false
		}
	}

	// Fault handlers for suffix blocks must themselves live in the suffix,
	// or a runtime fault would transfer into already-executed prefix code.
	for _, block := range fn.Blocks[boundaryIdx:] {
		if block.Fallback != nil && prefix[block.Fallback] {
			return false
		}
	}

	// Values defined in the prefix and used in the suffix must be
	// representable across the boundary.
	for _, block := range fn.Blocks[boundaryIdx:] {
		check := func(instr *mir.Instr) bool {
			for _, operand := range instr.Operands {
				value, ok := operand.(*mir.Value)
				if !ok || prefix[value.Def.Block] == false {
					continue
				}

				if !static[value] && !types.Equals(value.Typ, types.PrimDataset) {
					return false
				}
			}

			return true
		}

		for _, instr := range block.Instrs {
			if !check(instr) {
				return false
			}
		}

		if block.Term != nil && !check(block.Term) {
			return false
		}
	}

	return true
}
