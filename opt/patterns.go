package opt

import (
	"fmt"
	"strings"

	"rillc/mir"
	"rillc/types"
)

// foldConstants replaces every pure instruction whose operands are all
// constants with the constant it computes.
func (o *Optimizer) foldConstants(fn *mir.Func) bool {
	changed := false
	dead := make(map[*mir.Instr]bool)

	fn.Instrs(func(instr *mir.Instr) {
		if !instr.Op.IsPure() || instr.Result == nil {
			return
		}

		for _, operand := range instr.Operands {
			if !mir.IsConst(operand) {
				return
			}
		}

		folded, ok := evalConstInstr(instr)
		if !ok {
			// Division by a constant zero is left in place to fault at
			// runtime rather than at compile time.
			return
		}

		replaceUses(fn, instr.Result, folded)
		dead[instr] = true
		changed = true
	})

	removeInstrs(fn, dead)
	return changed
}

// evalConstInstr evaluates a pure instruction over constant operands.
func evalConstInstr(instr *mir.Instr) (mir.Operand, bool) {
	// Unary operators.
	if len(instr.Operands) == 1 {
		switch v := instr.Operands[0].(type) {
		case mir.ConstInt:
			if instr.Op == mir.OpNeg {
				return mir.ConstInt{Val: -v.Val}, true
			}
		case mir.ConstFloat:
			if instr.Op == mir.OpNeg {
				return mir.ConstFloat{Val: -v.Val}, true
			}
		case mir.ConstBool:
			if instr.Op == mir.OpNot {
				return mir.ConstBool{Val: !v.Val}, true
			}
		}

		return nil, false
	}

	if len(instr.Operands) != 2 {
		return nil, false
	}

	switch lhs := instr.Operands[0].(type) {
	case mir.ConstInt:
		rhs, ok := instr.Operands[1].(mir.ConstInt)
		if !ok {
			return nil, false
		}

		switch instr.Op {
		case mir.OpAdd:
			return mir.ConstInt{Val: lhs.Val + rhs.Val}, true
		case mir.OpSub:
			return mir.ConstInt{Val: lhs.Val - rhs.Val}, true
		case mir.OpMul:
			return mir.ConstInt{Val: lhs.Val * rhs.Val}, true
		case mir.OpDiv:
			if rhs.Val == 0 {
				return nil, false
			}
			return mir.ConstInt{Val: lhs.Val / rhs.Val}, true
		case mir.OpMod:
			if rhs.Val == 0 {
				return nil, false
			}
			return mir.ConstInt{Val: lhs.Val % rhs.Val}, true
		case mir.OpEq:
			return mir.ConstBool{Val: lhs.Val == rhs.Val}, true
		case mir.OpNeq:
			return mir.ConstBool{Val: lhs.Val != rhs.Val}, true
		case mir.OpLt:
			return mir.ConstBool{Val: lhs.Val < rhs.Val}, true
		case mir.OpGt:
			return mir.ConstBool{Val: lhs.Val > rhs.Val}, true
		case mir.OpLeq:
			return mir.ConstBool{Val: lhs.Val <= rhs.Val}, true
		case mir.OpGeq:
			return mir.ConstBool{Val: lhs.Val >= rhs.Val}, true
		}
	case mir.ConstFloat:
		rhs, ok := instr.Operands[1].(mir.ConstFloat)
		if !ok {
			return nil, false
		}

		switch instr.Op {
		case mir.OpAdd:
			return mir.ConstFloat{Val: lhs.Val + rhs.Val}, true
		case mir.OpSub:
			return mir.ConstFloat{Val: lhs.Val - rhs.Val}, true
		case mir.OpMul:
			return mir.ConstFloat{Val: lhs.Val * rhs.Val}, true
		case mir.OpDiv:
			if rhs.Val == 0 {
				return nil, false
			}
			return mir.ConstFloat{Val: lhs.Val / rhs.Val}, true
		case mir.OpEq:
			return mir.ConstBool{Val: lhs.Val == rhs.Val}, true
		case mir.OpNeq:
			return mir.ConstBool{Val: lhs.Val != rhs.Val}, true
		case mir.OpLt:
			return mir.ConstBool{Val: lhs.Val < rhs.Val}, true
		case mir.OpGt:
			return mir.ConstBool{Val: lhs.Val > rhs.Val}, true
		case mir.OpLeq:
			return mir.ConstBool{Val: lhs.Val <= rhs.Val}, true
		case mir.OpGeq:
			return mir.ConstBool{Val: lhs.Val >= rhs.Val}, true
		}
	case mir.ConstBool:
		rhs, ok := instr.Operands[1].(mir.ConstBool)
		if !ok {
			return nil, false
		}

		switch instr.Op {
		case mir.OpAnd:
			return mir.ConstBool{Val: lhs.Val && rhs.Val}, true
		case mir.OpOr:
			return mir.ConstBool{Val: lhs.Val || rhs.Val}, true
		case mir.OpEq:
			return mir.ConstBool{Val: lhs.Val == rhs.Val}, true
		case mir.OpNeq:
			return mir.ConstBool{Val: lhs.Val != rhs.Val}, true
		}
	case mir.ConstString:
		rhs, ok := instr.Operands[1].(mir.ConstString)
		if !ok {
			return nil, false
		}

		switch instr.Op {
		case mir.OpAdd:
			return mir.ConstString{Val: lhs.Val + rhs.Val}, true
		case mir.OpEq:
			return mir.ConstBool{Val: lhs.Val == rhs.Val}, true
		case mir.OpNeq:
			return mir.ConstBool{Val: lhs.Val != rhs.Val}, true
		}
	}

	return nil, false
}

// -----------------------------------------------------------------------------

// removeIdentities removes identity operations: add-zero, subtract-zero,
// multiply-by-one, divide-by-one, and folds multiply-by-zero to the zero
// constant.
func (o *Optimizer) removeIdentities(fn *mir.Func) bool {
	changed := false
	dead := make(map[*mir.Instr]bool)

	fn.Instrs(func(instr *mir.Instr) {
		if instr.Result == nil || len(instr.Operands) != 2 {
			return
		}

		lhs, rhs := instr.Operands[0], instr.Operands[1]

		var replacement mir.Operand
		switch instr.Op {
		case mir.OpAdd:
			if isZero(rhs) {
				replacement = lhs
			} else if isZero(lhs) {
				replacement = rhs
			}
		case mir.OpSub:
			if isZero(rhs) {
				replacement = lhs
			}
		case mir.OpMul:
			if isOne(rhs) {
				replacement = lhs
			} else if isOne(lhs) {
				replacement = rhs
			} else if isZero(lhs) || isZero(rhs) {
				replacement = zeroLike(instr.Operands[0])
			}
		case mir.OpDiv:
			if isOne(rhs) {
				replacement = lhs
			}
		}

		if replacement == nil {
			return
		}

		// Multiply-by-zero may only discard its surviving operand if that
		// operand is effect-free, which value operands of pure instructions
		// always are here: effects live in instructions, not operands.
		replaceUses(fn, instr.Result, replacement)
		dead[instr] = true
		changed = true
	})

	removeInstrs(fn, dead)
	return changed
}

// isZero returns whether an operand is the numeric constant zero.
func isZero(operand mir.Operand) bool {
	switch v := operand.(type) {
	case mir.ConstInt:
		return v.Val == 0
	case mir.ConstFloat:
		return v.Val == 0
	}

	return false
}

// isOne returns whether an operand is the numeric constant one.
func isOne(operand mir.Operand) bool {
	switch v := operand.(type) {
	case mir.ConstInt:
		return v.Val == 1
	case mir.ConstFloat:
		return v.Val == 1
	}

	return false
}

// zeroLike returns the zero constant matching an operand's numeric type.
func zeroLike(operand mir.Operand) mir.Operand {
	if types.Equals(operand.Type(), types.PrimFloat) {
		return mir.ConstFloat{}
	}

	return mir.ConstInt{}
}

// -----------------------------------------------------------------------------

// eliminateDuplicates collapses two instructions with identical operation and
// operands and no intervening side effect into one.  The window is a single
// basic block: side-effecting instructions clear it.
func (o *Optimizer) eliminateDuplicates(fn *mir.Func) bool {
	changed := false
	dead := make(map[*mir.Instr]bool)

	for _, block := range fn.Blocks {
		available := make(map[string]*mir.Value)

		for _, instr := range block.Instrs {
			if instr.Op.HasSideEffect() {
				// An intervening side effect invalidates the window.
				available = make(map[string]*mir.Value)
				continue
			}

			if !instr.Op.IsPure() || instr.Result == nil {
				continue
			}

			key := exprKey(instr)
			if prev, ok := available[key]; ok {
				replaceUses(fn, instr.Result, prev)
				dead[instr] = true
				changed = true
			} else {
				available[key] = instr.Result
			}
		}
	}

	removeInstrs(fn, dead)
	return changed
}

// exprKey builds the value-numbering key of a pure instruction.
func exprKey(instr *mir.Instr) string {
	sb := strings.Builder{}
	sb.WriteString(instr.Op.String())

	for _, operand := range instr.Operands {
		sb.WriteRune(' ')

		if value, ok := operand.(*mir.Value); ok {
			sb.WriteString(value.Repr())
		} else {
			fmt.Fprintf(&sb, "%T%s", operand, operand.Repr())
		}
	}

	return sb.String()
}

// -----------------------------------------------------------------------------

// sweepDeadValues removes pure instructions whose results are never used.
func (o *Optimizer) sweepDeadValues(fn *mir.Func) bool {
	used := make(map[*mir.Value]bool)
	fn.Instrs(func(instr *mir.Instr) {
		for _, operand := range instr.Operands {
			if value, ok := operand.(*mir.Value); ok {
				used[value] = true
			}
		}
	})

	dead := make(map[*mir.Instr]bool)
	fn.Instrs(func(instr *mir.Instr) {
		if instr.Op.IsPure() && instr.Result != nil && !used[instr.Result] {
			dead[instr] = true
		}
	})

	removeInstrs(fn, dead)
	return len(dead) > 0
}

// foldConstantBranches rewrites conditional branches over constant conditions
// into unconditional branches, exposing unreachable blocks for pruning.
func (o *Optimizer) foldConstantBranches(fn *mir.Func) bool {
	changed := false

	for _, block := range fn.Blocks {
		term := block.Term
		if term == nil || term.Op != mir.OpCondBr {
			continue
		}

		cond, ok := term.Operands[0].(mir.ConstBool)
		if !ok {
			continue
		}

		target := term.Targets[0]
		if !cond.Val {
			target = term.Targets[1]
		}

		block.SetTerm(&mir.Instr{Op: mir.OpBr, Targets: []*mir.Block{target}})
		changed = true
	}

	return changed
}
