package lower

import (
	"rillc/ast"
	"rillc/mir"
	"rillc/report"
	"rillc/syntax"
	"rillc/types"
)

// binOpTable maps binary operator token kinds to MIR op codes.
var binOpTable = map[int]mir.Op{
	syntax.TOK_PLUS:  mir.OpAdd,
	syntax.TOK_MINUS: mir.OpSub,
	syntax.TOK_STAR:  mir.OpMul,
	syntax.TOK_DIV:   mir.OpDiv,
	syntax.TOK_MOD:   mir.OpMod,
	syntax.TOK_EQ:    mir.OpEq,
	syntax.TOK_NEQ:   mir.OpNeq,
	syntax.TOK_LT:    mir.OpLt,
	syntax.TOK_GT:    mir.OpGt,
	syntax.TOK_LTEQ:  mir.OpLeq,
	syntax.TOK_GTEQ:  mir.OpGeq,
	syntax.TOK_AND:   mir.OpAnd,
	syntax.TOK_OR:    mir.OpOr,
}

// lowerExpr lowers an expression, returning the operand holding its result.
// Literals lower to constant operands directly; everything else lowers to one
// or more instructions.
func (l *Lowerer) lowerExpr(expr ast.ASTExpr) mir.Operand {
	switch v := expr.(type) {
	case *ast.Literal:
		return constOperand(v)
	case *ast.Identifier:
		{
			if operand, ok := l.ssaVars[v.Sym]; ok {
				return operand
			}

			return l.emitValue(&mir.Instr{Op: mir.OpSlotGet, Slot: l.slotOf(v.Sym)}, v.Type())
		}
	case *ast.BinaryOp:
		{
			lhs := l.lowerExpr(v.Lhs)
			rhs := l.lowerExpr(v.Rhs)

			op, ok := binOpTable[v.Op]
			if !ok {
				report.RaiseICE("lowering not implemented for binary operator: %d", v.Op)
			}

			return l.emitValue(&mir.Instr{Op: op, Operands: []mir.Operand{lhs, rhs}}, v.Type())
		}
	case *ast.UnaryOp:
		{
			operand := l.lowerExpr(v.Operand)

			op := mir.OpNeg
			if v.Op == syntax.TOK_NOT {
				op = mir.OpNot
			}

			return l.emitValue(&mir.Instr{Op: op, Operands: []mir.Operand{operand}}, v.Type())
		}
	case *ast.Call:
		{
			args := make([]mir.Operand, len(v.Args))
			for i, arg := range v.Args {
				args[i] = l.lowerExpr(arg)
			}

			return l.emitValue(&mir.Instr{Op: mir.OpCall, Sym: v.Name, Operands: args}, v.Type())
		}
	case *ast.ArgRef:
		return l.emitValue(&mir.Instr{Op: mir.OpArgLookup, Sym: v.Name}, v.Type())
	case *ast.ListLit:
		{
			elems := make([]mir.Operand, len(v.Elems))
			for i, elem := range v.Elems {
				elems[i] = l.lowerExpr(elem)
			}

			return l.emitValue(&mir.Instr{Op: mir.OpMakeList, Operands: elems}, v.Type())
		}
	case *ast.MapLit:
		{
			var operands []mir.Operand
			for i, key := range v.Keys {
				operands = append(operands, l.lowerExpr(key))
				operands = append(operands, l.lowerExpr(v.Values[i]))
			}

			return l.emitValue(&mir.Instr{Op: mir.OpMakeMap, Operands: operands}, v.Type())
		}
	case *ast.Pipeline:
		return l.lowerPipeline(v)
	default:
		report.RaiseICE("lowering not implemented for expression: %T", expr)
		return nil
	}
}

// lowerPipeline lowers a pipeline chain.  Stages lower strictly in source
// order: each stage's output operand feeds the next stage.
func (l *Lowerer) lowerPipeline(pipe *ast.Pipeline) mir.Operand {
	var current mir.Operand

	for _, stage := range pipe.Stages {
		switch stage.Kind {
		case ast.StageExpr:
			current = l.lowerExpr(stage.Operand)
		case ast.StageLoad:
			{
				uri := l.lowerExpr(stage.URI)
				format := l.lowerExpr(stage.Format)

				current = l.emitValue(&mir.Instr{
					Op:       mir.OpLoad,
					Operands: []mir.Operand{uri, format},
				}, types.PrimDataset)
			}
		case ast.StageFilter:
			{
				pred := l.lowerExpr(stage.Operand)

				current = l.emitValue(&mir.Instr{
					Op:       mir.OpFilter,
					Operands: []mir.Operand{current, pred},
				}, types.PrimDataset)
			}
		case ast.StageGroupBy:
			{
				key := l.lowerExpr(stage.Operand)

				current = l.emitValue(&mir.Instr{
					Op:       mir.OpGroupBy,
					Operands: []mir.Operand{current, key},
				}, types.PrimDataset)
			}
		case ast.StageSave:
			{
				uri := l.lowerExpr(stage.URI)
				format := l.lowerExpr(stage.Format)

				current = l.emitValue(&mir.Instr{
					Op:       mir.OpSave,
					Operands: []mir.Operand{current, uri, format},
				}, types.PrimDataset)
			}
		default:
			report.RaiseICE("lowering not implemented for stage kind: %d", stage.Kind)
		}
	}

	return current
}

// constOperand converts an interpreted literal to a constant operand.
func constOperand(lit *ast.Literal) mir.Operand {
	switch v := lit.Value.(type) {
	case int64:
		return mir.ConstInt{Val: v}
	case float64:
		return mir.ConstFloat{Val: v}
	case bool:
		return mir.ConstBool{Val: v}
	case string:
		return mir.ConstString{Val: v}
	default:
		report.RaiseICE("unknown literal value: %T", lit.Value)
		return nil
	}
}

// intType and boolType are shorthands for the primitive types lowering
// synthesizes internally.
func intType() types.Type  { return types.PrimInt }
func boolType() types.Type { return types.PrimBool }
