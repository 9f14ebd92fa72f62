package opt

import "rillc/mir"

// loop describes one natural loop of a function.
type loop struct {
	// The loop header block.
	header *mir.Block

	// The blocks of the loop, header included.
	body map[*mir.Block]bool

	// The unique block branching into the header from outside the loop, or
	// nil if there is more than one.
	preheader *mir.Block
}

// hoistLoopInvariants moves pure instructions whose operands are all defined
// outside their loop into the loop's entry predecessor.  Instructions with
// side effects and slot reads never move: slots may change inside the loop.
func (o *Optimizer) hoistLoopInvariants(fn *mir.Func) bool {
	changed := false

	for _, lp := range findLoops(fn) {
		if lp.preheader == nil {
			continue
		}

		for block := range lp.body {
			kept := block.Instrs[:0]
			for _, instr := range block.Instrs {
				if o.isInvariant(instr, lp) {
					// Move ahead of the preheader's terminator: the value
					// must be defined before the loop is entered.
					lp.preheader.Append(instr)
					changed = true
				} else {
					kept = append(kept, instr)
				}
			}
			block.Instrs = kept
		}
	}

	return changed
}

// isInvariant returns whether an instruction may legally move out of a loop.
func (o *Optimizer) isInvariant(instr *mir.Instr, lp loop) bool {
	if !instr.Op.IsPure() || instr.Result == nil {
		return false
	}

	// A division or modulo may fault; hoisting one out of a loop that runs
	// zero times would introduce the fault. Only a provably nonzero divisor
	// makes it safe to move.
	if instr.Op == mir.OpDiv || instr.Op == mir.OpMod {
		switch divisor := instr.Operands[1].(type) {
		case mir.ConstInt:
			if divisor.Val == 0 {
				return false
			}
		case mir.ConstFloat:
			if divisor.Val == 0 {
				return false
			}
		default:
			return false
		}
	}

	for _, operand := range instr.Operands {
		value, ok := operand.(*mir.Value)
		if !ok {
			// Constants are defined everywhere.
			continue
		}

		if value.Def == nil || lp.body[value.Def.Block] {
			return false
		}
	}

	return true
}

// -----------------------------------------------------------------------------

// findLoops detects the natural loops of a function.  The CFG produced by
// lowering is reducible, so a depth-first search finds every back edge: an
// edge to a block still on the search stack.
func findLoops(fn *mir.Func) []loop {
	var loops []loop

	onStack := make(map[*mir.Block]bool)
	visited := make(map[*mir.Block]bool)

	var visit func(b *mir.Block)
	visit = func(b *mir.Block) {
		visited[b] = true
		onStack[b] = true

		for _, succ := range b.Successors() {
			if onStack[succ] {
				loops = append(loops, buildLoop(fn, succ, b))
			} else if !visited[succ] {
				visit(succ)
			}
		}

		onStack[b] = false
	}
	visit(fn.Entry())

	return loops
}

// buildLoop computes the natural loop of the back edge latch -> header: the
// header plus every block that reaches the latch without passing through the
// header.
func buildLoop(fn *mir.Func, header, latch *mir.Block) loop {
	body := map[*mir.Block]bool{header: true}

	var include func(b *mir.Block)
	include = func(b *mir.Block) {
		if body[b] {
			return
		}
		body[b] = true

		for _, pred := range predecessors(fn, b) {
			include(pred)
		}
	}
	include(latch)

	// Find the unique out-of-loop predecessor of the header, if any.
	var preheader *mir.Block
	for _, pred := range predecessors(fn, header) {
		if body[pred] {
			continue
		}

		if preheader != nil {
			preheader = nil
			break
		}

		preheader = pred
	}

	return loop{header: header, body: body, preheader: preheader}
}

// predecessors returns the blocks branching to b, fault edges excluded.
func predecessors(fn *mir.Func, b *mir.Block) []*mir.Block {
	var preds []*mir.Block
	for _, block := range fn.Blocks {
		for _, succ := range block.Successors() {
			if succ == b {
				preds = append(preds, block)
				break
			}
		}
	}

	return preds
}
