package lower

import (
	"rillc/ast"
	"rillc/mir"
	"rillc/report"
)

// lowerBlock lowers a statement block into the current basic block, creating
// further blocks as control constructs require.
func (l *Lowerer) lowerBlock(block *ast.Block) {
	for _, stmt := range block.Stmts {
		l.lowerStmt(stmt)
	}
}

// lowerStmt lowers a single statement.
func (l *Lowerer) lowerStmt(stmt ast.ASTNode) {
	switch v := stmt.(type) {
	case *ast.VarDecl:
		{
			init := l.lowerExpr(v.Init)
			l.emit(&mir.Instr{
				Op:       mir.OpSlotSet,
				Slot:     l.slotOf(v.Sym),
				Operands: []mir.Operand{init},
			})
		}
	case *ast.Assign:
		{
			value := l.lowerExpr(v.Value)
			l.emit(&mir.Instr{
				Op:       mir.OpSlotSet,
				Slot:     l.slotOf(v.Sym),
				Operands: []mir.Operand{value},
			})
		}
	case *ast.ExprStmt:
		l.lowerExpr(v.Expr)
	case *ast.IfStmt:
		l.lowerIfStmt(v)
	case *ast.WhileStmt:
		l.lowerWhileStmt(v)
	case *ast.BreakStmt:
		l.branchTo(l.loops[len(l.loops)-1].exit)
	case *ast.ContinueStmt:
		l.branchTo(l.loops[len(l.loops)-1].header)
	case *ast.ReturnStmt:
		{
			var operands []mir.Operand
			if v.Value != nil {
				operands = append(operands, l.lowerExpr(v.Value))
			}

			if !l.block.Terminated() {
				l.block.SetTerm(&mir.Instr{Op: mir.OpRet, Operands: operands})
			}
		}
	case *ast.TryStmt:
		l.lowerTryStmt(v)
	default:
		report.RaiseICE("lowering not implemented for statement: %T", stmt)
	}

	// Statements following a control transfer in the same source block are
	// unreachable; give them a block of their own so construction stays
	// well-formed.  The optimizer prunes it.
	if l.block.Terminated() {
		l.moveTo(l.newBlock())
	}
}

// lowerIfStmt lowers an if statement into a chain of condition blocks.
func (l *Lowerer) lowerIfStmt(ifStmt *ast.IfStmt) {
	endBlock := l.newBlock()

	for i, branch := range ifStmt.CondBranches {
		cond := l.lowerExpr(branch.Cond)

		thenBlock := l.newBlock()

		// If there is no else, the final "else" target is the end block.
		var elseBlock *mir.Block
		if i == len(ifStmt.CondBranches)-1 && ifStmt.ElseBranch == nil {
			elseBlock = endBlock
		} else {
			elseBlock = l.newBlock()
		}

		l.block.SetTerm(&mir.Instr{
			Op:       mir.OpCondBr,
			Operands: []mir.Operand{cond},
			Targets:  []*mir.Block{thenBlock, elseBlock},
		})

		l.moveTo(thenBlock)
		l.lowerBlock(branch.Body)
		l.branchTo(endBlock)

		// The next branch's condition is generated in the else block:
		// translating `elif` into `else if`.
		l.moveTo(elseBlock)
	}

	if ifStmt.ElseBranch != nil {
		l.lowerBlock(ifStmt.ElseBranch)
		l.branchTo(endBlock)
		l.moveTo(endBlock)
	}
}

// lowerWhileStmt lowers a while loop into header, body, and exit blocks.
func (l *Lowerer) lowerWhileStmt(whileStmt *ast.WhileStmt) {
	headerBlock := l.newBlock()
	bodyBlock := l.newBlock()
	exitBlock := l.newBlock()

	l.branchTo(headerBlock)

	l.moveTo(headerBlock)
	cond := l.lowerExpr(whileStmt.Cond)
	l.block.SetTerm(&mir.Instr{
		Op:       mir.OpCondBr,
		Operands: []mir.Operand{cond},
		Targets:  []*mir.Block{bodyBlock, exitBlock},
	})

	l.loops = append(l.loops, loopFrame{header: headerBlock, exit: exitBlock})
	l.moveTo(bodyBlock)
	l.lowerBlock(whileStmt.Body)
	l.branchTo(headerBlock)
	l.loops = l.loops[:len(l.loops)-1]

	l.moveTo(exitBlock)
}

// lowerTryStmt lowers a structured error-recovery block.  The guarded body's
// blocks carry the catch block as their designated fault successor: a
// runtime-signaled failure transfers control there, no exception machinery
// involved.  A bounded retry count re-enters the body from the catch block.
func (l *Lowerer) lowerTryStmt(tryStmt *ast.TryStmt) {
	catchBlock := l.fn.NewBlock()
	catchBlock.Fallback = l.fallback

	afterBlock := l.newBlock()

	// The retry budget lives in a compiler-internal frame slot so the
	// re-entry check is plain control flow.
	retrySlot := -1
	if tryStmt.Retries > 0 {
		retrySlot = l.newSlot()
		l.emit(&mir.Instr{
			Op:       mir.OpSlotSet,
			Slot:     retrySlot,
			Operands: []mir.Operand{mir.ConstInt{Val: 0}},
		})
	}

	// Lower the guarded body with the catch block as the inherited fault
	// fallback.
	bodyBlock := l.fn.NewBlock()
	bodyBlock.Fallback = catchBlock
	l.branchTo(bodyBlock)

	outerFallback := l.fallback
	l.fallback = catchBlock
	l.moveTo(bodyBlock)
	l.lowerBlock(tryStmt.Body)
	l.branchTo(afterBlock)
	l.fallback = outerFallback

	// Lower the catch body outside the guarded region: a fault raised while
	// recovering propagates outward rather than looping.
	l.moveTo(catchBlock)
	l.lowerBlock(tryStmt.Catch)

	if tryStmt.Retries > 0 {
		// if used < retries { used = used + 1; goto body } else { goto after }
		used := l.emitValue(&mir.Instr{Op: mir.OpSlotGet, Slot: retrySlot}, intType())
		canRetry := l.emitValue(&mir.Instr{
			Op:       mir.OpLt,
			Operands: []mir.Operand{used, mir.ConstInt{Val: int64(tryStmt.Retries)}},
		}, boolType())

		retryBlock := l.newBlock()
		l.block.SetTerm(&mir.Instr{
			Op:       mir.OpCondBr,
			Operands: []mir.Operand{canRetry},
			Targets:  []*mir.Block{retryBlock, afterBlock},
		})

		l.moveTo(retryBlock)
		bumped := l.emitValue(&mir.Instr{
			Op:       mir.OpAdd,
			Operands: []mir.Operand{used, mir.ConstInt{Val: 1}},
		}, intType())
		l.emit(&mir.Instr{
			Op:       mir.OpSlotSet,
			Slot:     retrySlot,
			Operands: []mir.Operand{bumped},
		})
		l.branchTo(bodyBlock)
	} else {
		l.branchTo(afterBlock)
	}

	l.moveTo(afterBlock)
}
