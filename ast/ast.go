package ast

import (
	"rillc/report"
	"rillc/types"
)

// The abstract interface for all AST nodes.  Each node owns its children
// exclusively: no node is shared or revisited after parsing.
type ASTNode interface {
	// The text span of the AST node.
	Span() *report.TextSpan
}

// A utility base struct for all AST nodes.
type ASTBase struct {
	// The span over which the AST node occurs.
	span *report.TextSpan
}

// NewASTBaseOn creates a new AST base with the given span.
func NewASTBaseOn(span *report.TextSpan) ASTBase {
	return ASTBase{span: span}
}

// NewASTBaseOver creates a new AST base spanning over two spans.
func NewASTBaseOver(start, end *report.TextSpan) ASTBase {
	return ASTBase{span: report.NewSpanOver(start, end)}
}

func (ab ASTBase) Span() *report.TextSpan {
	return ab.span
}

// -----------------------------------------------------------------------------

// ASTExpr is the abstract interface for all AST expression nodes.
type ASTExpr interface {
	ASTNode

	// Type returns the data type of the expression.  This is nil until the
	// semantic analyzer decorates the node.
	Type() types.Type

	// SetType decorates the node with its resolved data type.
	SetType(types.Type)
}

// A utility base struct for all AST expressions.
type ExprBase struct {
	ASTBase

	typ types.Type
}

// NewExprBase creates a new expression base with the given span.
func NewExprBase(span *report.TextSpan) ExprBase {
	return ExprBase{ASTBase: NewASTBaseOn(span)}
}

func (eb *ExprBase) Type() types.Type {
	return eb.typ
}

func (eb *ExprBase) SetType(typ types.Type) {
	eb.typ = typ
}

// -----------------------------------------------------------------------------

// Program is the root AST node of a compilation unit: zero or more function
// definitions followed by the `Start ... End` entry block.
type Program struct {
	ASTBase

	// The name of the compilation unit.
	Name string

	// The function definitions of the unit, in source order.
	Funcs []*FuncDef

	// The statements of the entry block.
	Body *Block
}

// FuncDef is a function definition.
type FuncDef struct {
	ASTBase

	// The name of the function.
	Name string

	// The parameters of the function, in source order.
	Params []*Param

	// The declared return type of the function.
	ReturnType types.Type

	// The body of the function.
	Body *Block

	// The symbol of the function.  Set by the semantic analyzer.
	Sym *Symbol
}

// Param is a single typed function parameter.
type Param struct {
	ASTBase

	// The name of the parameter.
	Name string

	// The declared type of the parameter.
	Typ types.Type

	// The symbol of the parameter.  Set by the semantic analyzer.
	Sym *Symbol
}

// -----------------------------------------------------------------------------

// Symbol represents a semantically analyzed symbol: a named value.  Symbols
// live in the analyzer's scope table; their lifetime is the analysis pass.
type Symbol struct {
	// The name of the symbol.
	Name string

	// The data type of the value stored by the symbol.
	Type types.Type

	// The identifier of the scope the symbol was declared in.
	ScopeID int

	// Whether the symbol can be assigned to after declaration.
	Mutable bool

	// FrameSlot is the frame slot assigned to the symbol during lowering.
	// It is -1 until the IR builder assigns one.
	FrameSlot int
}
