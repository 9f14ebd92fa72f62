package ast

// Block is a sequence of statements.
type Block struct {
	ASTBase

	// The statements of the block, in source order.
	Stmts []ASTNode
}

// VarDecl is a declaration-with-initializer: `let x = expr`.
type VarDecl struct {
	ASTBase

	// The name being declared.
	Name string

	// The initializer expression.
	Init ASTExpr

	// The symbol created for the declaration.  Set by the semantic analyzer.
	Sym *Symbol
}

// Assign is an assignment to an already-declared variable.
type Assign struct {
	ASTBase

	// The name being assigned.
	Name string

	// The assigned expression.
	Value ASTExpr

	// The symbol the name resolved to.  Set by the semantic analyzer.
	Sym *Symbol
}

// ExprStmt is an expression evaluated for its effects.
type ExprStmt struct {
	ASTBase

	// The inner expression.
	Expr ASTExpr
}

// -----------------------------------------------------------------------------

// IfStmt is a conditional statement with optional elif and else branches.
type IfStmt struct {
	ASTBase

	// The conditional branches (if and elif), in source order.
	CondBranches []CondBranch

	// The else branch.  May be nil.
	ElseBranch *Block
}

// CondBranch is a single condition-guarded branch of an if statement.
type CondBranch struct {
	// The branch condition.
	Cond ASTExpr

	// The branch body.
	Body *Block
}

// WhileStmt is a while loop.
type WhileStmt struct {
	ASTBase

	// The loop condition.
	Cond ASTExpr

	// The loop body.
	Body *Block
}

// BreakStmt breaks out of the enclosing loop.
type BreakStmt struct {
	ASTBase
}

// ContinueStmt continues the enclosing loop.
type ContinueStmt struct {
	ASTBase
}

// ReturnStmt returns from the enclosing function.
type ReturnStmt struct {
	ASTBase

	// The returned expression.  May be nil for unit returns.
	Value ASTExpr
}

// -----------------------------------------------------------------------------

// TryStmt is a structured error-recovery block: `try ... catch ... end` with
// an optional bounded retry count.  It lowers to explicit control flow with a
// fallback successor, not a language-level exception.
type TryStmt struct {
	ASTBase

	// The guarded body.
	Body *Block

	// The fallback body run when the guarded body faults.
	Catch *Block

	// The maximum number of times the guarded body is re-attempted after the
	// catch body runs.  Zero means no retries.
	Retries int
}
