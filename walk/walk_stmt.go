package walk

import (
	"rillc/ast"
	"rillc/report"
	"rillc/types"
)

// walkBlock walks a statement block in its own enclosing scope.
func (w *Walker) walkBlock(block *ast.Block) {
	w.pushScope()
	defer w.popScope()

	for _, stmt := range block.Stmts {
		w.walkStmt(stmt)
	}
}

// walkStmt walks a single statement.
func (w *Walker) walkStmt(stmt ast.ASTNode) {
	switch v := stmt.(type) {
	case *ast.VarDecl:
		{
			initType := w.walkExpr(v.Init)

			if types.IsUnit(initType) {
				report.Raise(report.PhaseSem, report.KindTypeMismatch, v.Init.Span(),
					"cannot store a unit value")
			}

			v.Sym = w.declare(v.Name, initType, true, v.Span())
		}
	case *ast.Assign:
		{
			v.Sym = w.lookup(v.Name, v.Span())

			if !v.Sym.Mutable {
				report.Raise(report.PhaseSem, report.KindTypeMismatch, v.Span(),
					"cannot assign to immutable symbol `%s`", v.Name)
			}

			valueType := w.walkExpr(v.Value)
			w.mustEqual(v.Sym.Type, valueType, v.Value.Span())
		}
	case *ast.ExprStmt:
		w.walkExpr(v.Expr)
	case *ast.IfStmt:
		{
			for _, branch := range v.CondBranches {
				condType := w.walkExpr(branch.Cond)
				w.mustEqual(types.PrimBool, condType, branch.Cond.Span())
				w.walkBlock(branch.Body)
			}

			if v.ElseBranch != nil {
				w.walkBlock(v.ElseBranch)
			}
		}
	case *ast.WhileStmt:
		{
			condType := w.walkExpr(v.Cond)
			w.mustEqual(types.PrimBool, condType, v.Cond.Span())

			w.loopDepth++
			w.walkBlock(v.Body)
			w.loopDepth--
		}
	case *ast.BreakStmt:
		if w.loopDepth == 0 {
			report.Raise(report.PhaseSem, report.KindTypeMismatch, v.Span(),
				"`break` outside of a loop")
		}
	case *ast.ContinueStmt:
		if w.loopDepth == 0 {
			report.Raise(report.PhaseSem, report.KindTypeMismatch, v.Span(),
				"`continue` outside of a loop")
		}
	case *ast.ReturnStmt:
		{
			returnType := types.Type(types.PrimUnit)
			if v.Value != nil {
				returnType = w.walkExpr(v.Value)
			}

			w.mustEqual(w.enclosingReturnType, returnType, v.Span())
		}
	case *ast.TryStmt:
		{
			w.walkBlock(v.Body)
			w.walkBlock(v.Catch)
		}
	default:
		report.RaiseICE("semantic analysis not implemented for statement: %T", stmt)
	}
}
