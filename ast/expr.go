package ast

import "rillc/report"

// Literal is a literal value: an integer, float, boolean, or string.
type Literal struct {
	ExprBase

	// The token kind of the literal.
	Kind int

	// The literal text of the value.
	Text string

	// The interpreted constant value of the literal: int64, float64, bool, or
	// string.  Set by the semantic analyzer.
	Value interface{}
}

// Identifier is a reference to a named symbol.
type Identifier struct {
	ExprBase

	// The name being referenced.
	Name string

	// The symbol the name resolved to.  Set by the semantic analyzer.
	Sym *Symbol
}

// BinaryOp is the application of a binary operator to two operands.
type BinaryOp struct {
	ExprBase

	// The token kind of the operator.
	Op int

	// The left and right operands.
	Lhs, Rhs ASTExpr
}

// UnaryOp is the application of a unary operator to a single operand.
type UnaryOp struct {
	ExprBase

	// The token kind of the operator.
	Op int

	// The operand.
	Operand ASTExpr
}

// Call is a call to a named function.
type Call struct {
	ExprBase

	// The name of the function being called.
	Name string

	// The arguments of the call, in source order.
	Args []ASTExpr

	// The symbol of the callee.  Set by the semantic analyzer.
	Sym *Symbol
}

// ArgRef is a reference to a runtime-supplied argument: `arg "name"`.  Its
// value is only known at invocation time, which makes every computation
// depending on it JIT territory.
type ArgRef struct {
	ExprBase

	// The name of the runtime argument.
	Name string
}

// ListLit is a list literal.  Lists are opaque dataset constructors: the
// elements are materialized through the external dataset service.
type ListLit struct {
	ExprBase

	// The element expressions, in source order.
	Elems []ASTExpr
}

// MapLit is a map literal.  Like lists, maps are opaque dataset constructors.
type MapLit struct {
	ExprBase

	// The key and value expressions, pairwise in source order.
	Keys   []ASTExpr
	Values []ASTExpr
}

// -----------------------------------------------------------------------------

// Pipeline is a chain of dataset stages evaluated strictly left to right:
// each stage's output becomes the next stage's input.  Stages never reorder.
type Pipeline struct {
	ExprBase

	// The stages of the pipeline, in source order.
	Stages []*PipelineStage
}

// Enumeration of pipeline stage kinds.
const (
	StageLoad = iota
	StageFilter
	StageGroupBy
	StageSave
	StageExpr // a plain expression stage: its value feeds the next stage
)

// PipelineStage is a single stage of a pipeline.  The dataset stages are
// opaque leaves: the compiler lowers them to external service calls without
// interpreting URIs or formats.
type PipelineStage struct {
	ExprBase

	// The kind of the stage.
	Kind int

	// The URI operand of a load/save stage.
	URI ASTExpr

	// The format operand of a load/save stage (the `as "fmt"` clause).
	Format ASTExpr

	// The predicate operand of a filter stage or the key operand of a groupby
	// stage, or the expression of an expression stage.
	Operand ASTExpr
}

// span helper for building stage spans over operand lists.
func SpanOverExprs(first, last ASTExpr) *report.TextSpan {
	return report.NewSpanOver(first.Span(), last.Span())
}
