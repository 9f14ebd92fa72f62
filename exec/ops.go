package exec

import (
	"errors"

	"rillc/mir"
	"rillc/report"
	"rillc/runtime/memory"
)

// binaryOp evaluates an arithmetic, comparison, or logical operation on two
// runtime values.  Kinds are enforced here: runtime arguments carry deferred
// types, so a mismatch is a catchable fault rather than a panic.
func binaryOp(op mir.Op, lhs, rhs memory.Value) (memory.Value, error) {
	switch op {
	case mir.OpEq:
		return memory.BoolValue(lhs.Equals(rhs)), nil
	case mir.OpNeq:
		return memory.BoolValue(!lhs.Equals(rhs)), nil
	case mir.OpAnd:
		return memory.BoolValue(lhs.Truthy() && rhs.Truthy()), nil
	case mir.OpOr:
		return memory.BoolValue(lhs.Truthy() || rhs.Truthy()), nil
	}

	switch {
	case lhs.Kind == memory.KindInt && rhs.Kind == memory.KindInt:
		return intOp(op, lhs.Int, rhs.Int)
	case lhs.Kind == memory.KindFloat && rhs.Kind == memory.KindFloat:
		return floatOp(op, lhs.Float, rhs.Float)
	case lhs.Kind == memory.KindString && rhs.Kind == memory.KindString:
		return stringOp(op, lhs.Str, rhs.Str)
	}

	return memory.Value{}, report.Fault(report.KindDataFault,
		"operands %s and %s are incompatible", lhs, rhs)
}

func intOp(op mir.Op, lhs, rhs int64) (memory.Value, error) {
	switch op {
	case mir.OpAdd:
		return memory.IntValue(lhs + rhs), nil
	case mir.OpSub:
		return memory.IntValue(lhs - rhs), nil
	case mir.OpMul:
		return memory.IntValue(lhs * rhs), nil
	case mir.OpDiv:
		if rhs == 0 {
			return memory.Value{}, report.Fault(report.KindDataFault, "division by zero")
		}

		return memory.IntValue(lhs / rhs), nil
	case mir.OpMod:
		if rhs == 0 {
			return memory.Value{}, report.Fault(report.KindDataFault, "modulo by zero")
		}

		return memory.IntValue(lhs % rhs), nil
	case mir.OpLt:
		return memory.BoolValue(lhs < rhs), nil
	case mir.OpGt:
		return memory.BoolValue(lhs > rhs), nil
	case mir.OpLeq:
		return memory.BoolValue(lhs <= rhs), nil
	case mir.OpGeq:
		return memory.BoolValue(lhs >= rhs), nil
	}

	return memory.Value{}, report.Fault(report.KindDataFault,
		"operation not defined on integers")
}

func floatOp(op mir.Op, lhs, rhs float64) (memory.Value, error) {
	switch op {
	case mir.OpAdd:
		return memory.FloatValue(lhs + rhs), nil
	case mir.OpSub:
		return memory.FloatValue(lhs - rhs), nil
	case mir.OpMul:
		return memory.FloatValue(lhs * rhs), nil
	case mir.OpDiv:
		if rhs == 0 {
			return memory.Value{}, report.Fault(report.KindDataFault, "division by zero")
		}

		return memory.FloatValue(lhs / rhs), nil
	case mir.OpLt:
		return memory.BoolValue(lhs < rhs), nil
	case mir.OpGt:
		return memory.BoolValue(lhs > rhs), nil
	case mir.OpLeq:
		return memory.BoolValue(lhs <= rhs), nil
	case mir.OpGeq:
		return memory.BoolValue(lhs >= rhs), nil
	}

	return memory.Value{}, report.Fault(report.KindDataFault,
		"operation not defined on floats")
}

func stringOp(op mir.Op, lhs, rhs string) (memory.Value, error) {
	if op == mir.OpAdd {
		return memory.StringValue(lhs + rhs), nil
	}

	return memory.Value{}, report.Fault(report.KindDataFault,
		"operation not defined on strings")
}

// unaryOp evaluates a negation or logical not.
func unaryOp(op mir.Op, operand memory.Value) (memory.Value, error) {
	switch op {
	case mir.OpNeg:
		switch operand.Kind {
		case memory.KindInt:
			return memory.IntValue(-operand.Int), nil
		case memory.KindFloat:
			return memory.FloatValue(-operand.Float), nil
		}
	case mir.OpNot:
		return memory.BoolValue(!operand.Truthy()), nil
	}

	return memory.Value{}, report.Fault(report.KindDataFault,
		"operation not defined on %s", operand)
}

// recoverable reports whether an error is a runtime fault a handler may
// catch.  Cancellation and internal errors always propagate.
// tagBlock marks a runtime fault with the basic block it originated in.
// Already-tagged faults keep their innermost block: a fault crossing a call
// or region boundary reports where it was raised, not where it surfaced.
func tagBlock(err error, block int) error {
	var diag *report.Diagnostic
	if errors.As(err, &diag) && diag.Block < 0 {
		diag.Block = block
	}

	return err
}

func recoverable(err error) bool {
	kind, ok := report.KindOf(err)
	if !ok {
		return false
	}

	switch kind {
	case report.KindOutOfMemory, report.KindStaleReference,
		report.KindDataFault, report.KindJitTimeout:
		return true
	}

	return false
}
