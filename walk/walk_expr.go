package walk

import (
	"strconv"

	"rillc/ast"
	"rillc/report"
	"rillc/syntax"
	"rillc/types"
)

// walkExpr walks an expression, decorating it and all its children with
// resolved types.  It returns the resolved type for convenience.
func (w *Walker) walkExpr(expr ast.ASTExpr) types.Type {
	switch v := expr.(type) {
	case *ast.Literal:
		w.walkLiteral(v)
	case *ast.Identifier:
		{
			v.Sym = w.lookup(v.Name, v.Span())

			if _, ok := v.Sym.Type.(*types.FuncType); ok {
				report.Raise(report.PhaseSem, report.KindTypeMismatch, v.Span(),
					"function `%s` must be called", v.Name)
			}

			v.SetType(v.Sym.Type)
		}
	case *ast.BinaryOp:
		w.walkBinaryOp(v)
	case *ast.UnaryOp:
		{
			operandType := w.walkExpr(v.Operand)

			switch v.Op {
			case syntax.TOK_MINUS:
				if !types.IsNumeric(operandType) && !types.Equals(operandType, types.PrimAny) {
					report.Raise(report.PhaseSem, report.KindTypeMismatch, v.Span(),
						"cannot negate type `%s`", operandType.Repr())
				}
			case syntax.TOK_NOT:
				w.mustEqual(types.PrimBool, operandType, v.Operand.Span())
			}

			v.SetType(operandType)
		}
	case *ast.Call:
		w.walkCall(v)
	case *ast.ArgRef:
		// Runtime arguments are scalars supplied at invocation: neither their
		// values nor their concrete types are knowable at compile time.
		v.SetType(types.PrimAny)
	case *ast.ListLit:
		{
			var elemType types.Type
			for _, elem := range v.Elems {
				et := w.walkExpr(elem)
				if elemType == nil {
					elemType = et
				} else {
					w.mustEqual(elemType, et, elem.Span())
				}
			}

			v.SetType(types.PrimDataset)
		}
	case *ast.MapLit:
		{
			for i, key := range v.Keys {
				w.mustEqual(types.PrimString, w.walkExpr(key), key.Span())
				w.walkExpr(v.Values[i])
			}

			v.SetType(types.PrimDataset)
		}
	case *ast.Pipeline:
		w.walkPipeline(v)
	default:
		report.RaiseICE("semantic analysis not implemented for expression: %T", expr)
	}

	return expr.Type()
}

// walkLiteral interprets a literal's text into a constant value and types it.
func (w *Walker) walkLiteral(lit *ast.Literal) {
	switch lit.Kind {
	case syntax.TOK_INTLIT:
		{
			n, err := strconv.ParseInt(lit.Text, 10, 64)
			if err != nil {
				report.Raise(report.PhaseSem, report.KindTypeMismatch, lit.Span(),
					"integer literal out of range: `%s`", lit.Text)
			}

			lit.Value = n
			lit.SetType(types.PrimInt)
		}
	case syntax.TOK_FLOATLIT:
		{
			f, err := strconv.ParseFloat(lit.Text, 64)
			if err != nil {
				report.Raise(report.PhaseSem, report.KindTypeMismatch, lit.Span(),
					"float literal out of range: `%s`", lit.Text)
			}

			lit.Value = f
			lit.SetType(types.PrimFloat)
		}
	case syntax.TOK_BOOLLIT:
		lit.Value = lit.Text == "true"
		lit.SetType(types.PrimBool)
	case syntax.TOK_STRINGLIT:
		lit.Value = lit.Text
		lit.SetType(types.PrimString)
	default:
		report.RaiseICE("unknown literal kind: %d", lit.Kind)
	}
}

// walkBinaryOp walks a binary operator application.
func (w *Walker) walkBinaryOp(bop *ast.BinaryOp) {
	lhsType := w.walkExpr(bop.Lhs)
	rhsType := w.walkExpr(bop.Rhs)
	w.mustEqual(lhsType, rhsType, bop.Rhs.Span())

	// A deferred operand takes the concrete side's type.  When both sides
	// are deferred the operator check waits for the runtime too.
	opType := lhsType
	if types.Equals(opType, types.PrimAny) {
		opType = rhsType
	}

	switch bop.Op {
	case syntax.TOK_PLUS:
		if !types.IsNumeric(opType) && !types.Equals(opType, types.PrimString) &&
			!types.Equals(opType, types.PrimAny) {
			report.Raise(report.PhaseSem, report.KindTypeMismatch, bop.Span(),
				"operator `+` is not defined for type `%s`", opType.Repr())
		}

		bop.SetType(opType)
	case syntax.TOK_MINUS, syntax.TOK_STAR, syntax.TOK_DIV, syntax.TOK_MOD:
		if !types.IsNumeric(opType) && !types.Equals(opType, types.PrimAny) {
			report.Raise(report.PhaseSem, report.KindTypeMismatch, bop.Span(),
				"operator `%s` is not defined for type `%s`",
				syntax.TokenName(bop.Op), opType.Repr())
		}

		bop.SetType(opType)
	case syntax.TOK_LT, syntax.TOK_GT, syntax.TOK_LTEQ, syntax.TOK_GTEQ:
		if !types.IsNumeric(opType) && !types.Equals(opType, types.PrimAny) {
			report.Raise(report.PhaseSem, report.KindTypeMismatch, bop.Span(),
				"operator `%s` is not defined for type `%s`",
				syntax.TokenName(bop.Op), opType.Repr())
		}

		bop.SetType(types.PrimBool)
	case syntax.TOK_EQ, syntax.TOK_NEQ:
		bop.SetType(types.PrimBool)
	case syntax.TOK_AND, syntax.TOK_OR:
		w.mustEqual(types.PrimBool, opType, bop.Lhs.Span())
		bop.SetType(types.PrimBool)
	default:
		report.RaiseICE("unknown binary operator: %d", bop.Op)
	}
}

// walkCall walks a call to a named function.
func (w *Walker) walkCall(call *ast.Call) {
	call.Sym = w.lookup(call.Name, call.Span())

	funcType, ok := call.Sym.Type.(*types.FuncType)
	if !ok {
		report.Raise(report.PhaseSem, report.KindTypeMismatch, call.Span(),
			"`%s` is not a function", call.Name)
	}

	if len(call.Args) != len(funcType.Params) {
		report.Raise(report.PhaseSem, report.KindTypeMismatch, call.Span(),
			"function `%s` takes %d arguments but got %d",
			call.Name, len(funcType.Params), len(call.Args))
	}

	for i, arg := range call.Args {
		w.mustEqual(funcType.Params[i], w.walkExpr(arg), arg.Span())
	}

	call.SetType(funcType.Return)
}

// -----------------------------------------------------------------------------

// walkPipeline walks a pipeline chain, checking that each stage's output type
// is compatible with the next stage's input.
func (w *Walker) walkPipeline(pipe *ast.Pipeline) {
	for i, stage := range pipe.Stages {
		switch stage.Kind {
		case ast.StageLoad:
			{
				if i != 0 {
					w.raiseStageError(stage, "`load` must be the first stage of a pipeline")
				}

				w.mustEqual(types.PrimString, w.walkExpr(stage.URI), stage.URI.Span())
				w.mustEqual(types.PrimString, w.walkExpr(stage.Format), stage.Format.Span())
				stage.SetType(types.PrimDataset)
			}
		case ast.StageExpr:
			{
				exprType := w.walkExpr(stage.Operand)

				// A non-head expression stage receives the previous stage's
				// dataset implicitly; only datasets flow between stages.
				if i != 0 && !types.Equals(exprType, types.PrimDataset) {
					w.raiseStageError(stage,
						"pipeline stage produces `%s` where `dataset` is required", exprType.Repr())
				}

				stage.SetType(exprType)
			}
		case ast.StageFilter:
			{
				w.requireDatasetInput(pipe, i, stage)

				predType := w.walkExpr(stage.Operand)
				if types.IsUnit(predType) || !isScalar(predType) {
					w.raiseStageError(stage,
						"filter predicate must be a scalar value, not `%s`", predType.Repr())
				}

				stage.SetType(types.PrimDataset)
			}
		case ast.StageGroupBy:
			{
				w.requireDatasetInput(pipe, i, stage)
				w.mustEqual(types.PrimString, w.walkExpr(stage.Operand), stage.Operand.Span())
				stage.SetType(types.PrimDataset)
			}
		case ast.StageSave:
			{
				w.requireDatasetInput(pipe, i, stage)
				w.mustEqual(types.PrimString, w.walkExpr(stage.URI), stage.URI.Span())
				w.mustEqual(types.PrimString, w.walkExpr(stage.Format), stage.Format.Span())

				// Save passes its input handle through so chains can continue.
				stage.SetType(types.PrimDataset)
			}
		default:
			report.RaiseICE("unknown pipeline stage kind: %d", stage.Kind)
		}
	}

	pipe.SetType(pipe.Stages[len(pipe.Stages)-1].Type())
}

// requireDatasetInput checks that a stage at position i has a dataset-typed
// predecessor stage feeding it.
func (w *Walker) requireDatasetInput(pipe *ast.Pipeline, i int, stage *ast.PipelineStage) {
	if i == 0 {
		w.raiseStageError(stage, "stage requires a pipeline input")
	}

	prevType := pipe.Stages[i-1].Type()
	if !types.Equals(prevType, types.PrimDataset) {
		w.raiseStageError(stage,
			"stage input has type `%s` where `dataset` is required", prevType.Repr())
	}
}

// raiseStageError raises an invalid-pipeline-stage diagnostic.
func (w *Walker) raiseStageError(stage *ast.PipelineStage, msg string, args ...interface{}) {
	report.Raise(report.PhaseSem, report.KindInvalidPipelineStage, stage.Span(), msg, args...)
}

// isScalar returns whether a type is a scalar primitive or a deferred scalar.
func isScalar(t types.Type) bool {
	return types.IsScalar(t) || types.Equals(t, types.PrimAny)
}
