package syntax

import (
	"strings"

	"rillc/ast"
	"rillc/report"
	"rillc/types"
)

// NOTE: All parsing functions (that are not utility/API functions) are
// commented with the EBNF notation of the grammar they parse.

// Parser is the parser for a Rill compilation unit.  It is a recursive
// descent parser with one token of lookahead: a state machine that moves over
// the unit token by token, deciding what to parse based on the token it is
// currently positioned on and its context (implicit from the callstack of
// parsing functions).  All parsing functions assume that they begin with the
// parser centered on the first token of their production and must consume all
// tokens (including the last) of their production, leaving the parser on the
// next token.  Parsers are created once per unit.
type Parser struct {
	// unitName is the name of the compilation unit being parsed.
	unitName string

	// lexer is the Lexer this parser is using to tokenize the unit.
	lexer *Lexer

	// tok is the current token the parser is positioned on.
	tok *Token
}

// NewParser creates a new parser for the given unit name and source text.
func NewParser(unitName, src string) *Parser {
	return &Parser{
		unitName: unitName,
		lexer:    NewLexer(src),
	}
}

// Parse parses a whole compilation unit and returns its AST.  Lex and parse
// diagnostics are raised and must be caught by the caller's CatchErrors.
//
// file = {func_def} 'Start' block 'End'
func (p *Parser) Parse() *ast.Program {
	// Move the parser onto the first token.
	p.next()

	startSpan := p.tok.Span

	var funcs []*ast.FuncDef
	for p.got(TOK_FUNC) {
		funcs = append(funcs, p.parseFuncDef())
	}

	p.assertAndNext(TOK_START)
	body := p.parseBlock(TOK_END)
	endSpan := p.tok.Span
	p.assertAndNext(TOK_END)
	p.assert(TOK_EOF)

	return &ast.Program{
		ASTBase: ast.NewASTBaseOver(startSpan, endSpan),
		Name:    p.unitName,
		Funcs:   funcs,
		Body:    body,
	}
}

// -----------------------------------------------------------------------------

// next moves the parser forward one token.
func (p *Parser) next() {
	p.tok = p.lexer.NextToken()
}

// got returns true if the parser is on a token of a given kind.
func (p *Parser) got(kind int) bool {
	return p.tok.Kind == kind
}

// gotOneOf returns if the parser's current token kind is one of given kinds.
func (p *Parser) gotOneOf(kinds ...int) bool {
	for _, kind := range kinds {
		if p.tok.Kind == kind {
			return true
		}
	}

	return false
}

// assert checks that the parser is on a token of a given kind and rejects the
// token if not.
func (p *Parser) assert(kind int) {
	if !p.got(kind) {
		p.reject(kind)
	}
}

// assertAndNext performs an assert operation and moves the parser forward.
func (p *Parser) assertAndNext(kind int) {
	p.assert(kind)
	p.next()
}

// want moves the parser forward one token and then asserts that the token the
// parser has moved onto is of a given kind.
func (p *Parser) want(kind int) {
	p.next()
	p.assert(kind)
}

// reject raises a parse diagnostic on the current token, listing the token
// kinds that would have been accepted in its place.
func (p *Parser) reject(expected ...int) {
	names := make([]string, len(expected))
	for i, kind := range expected {
		names[i] = "`" + TokenName(kind) + "`"
	}

	report.Raise(
		report.PhaseParse, report.KindUnexpectedToken, p.tok.Span,
		"expected %s but got `%s`", strings.Join(names, " or "), p.tok.Value,
	)
}

// -----------------------------------------------------------------------------

// parseFuncDef parses a function definition.
//
// func_def = 'func' 'IDENT' '(' [param {',' param}] ')' [':' type] block 'end'
// param = 'IDENT' ':' type
func (p *Parser) parseFuncDef() *ast.FuncDef {
	startSpan := p.tok.Span

	p.want(TOK_IDENT)
	name := p.tok.Value

	p.want(TOK_LPAREN)
	p.next()

	var params []*ast.Param
	for !p.got(TOK_RPAREN) {
		if len(params) > 0 {
			p.assertAndNext(TOK_COMMA)
		}

		p.assert(TOK_IDENT)
		pname := p.tok.Value
		pspan := p.tok.Span

		p.want(TOK_COLON)
		p.next()
		ptype := p.parseType()

		params = append(params, &ast.Param{
			ASTBase: ast.NewASTBaseOn(pspan),
			Name:    pname,
			Typ:     ptype,
		})
	}
	p.next()

	// The return type defaults to unit when elided.
	var returnType types.Type = types.PrimUnit
	if p.got(TOK_COLON) {
		p.next()
		returnType = p.parseType()
	}

	body := p.parseBlock(TOK_BLOCKEND)
	endSpan := p.tok.Span
	p.assertAndNext(TOK_BLOCKEND)

	return &ast.FuncDef{
		ASTBase:    ast.NewASTBaseOver(startSpan, endSpan),
		Name:       name,
		Params:     params,
		ReturnType: returnType,
		Body:       body,
	}
}

// typeTable maps type keyword token kinds to primitive types.
var typeTable = map[int]types.PrimitiveType{
	TOK_INT:     types.PrimInt,
	TOK_FLOAT:   types.PrimFloat,
	TOK_BOOL:    types.PrimBool,
	TOK_STRING:  types.PrimString,
	TOK_DATASET: types.PrimDataset,
	TOK_UNIT:    types.PrimUnit,
}

// parseType parses a type label.
//
// type = 'int' | 'float' | 'bool' | 'string' | 'dataset' | 'unit'
func (p *Parser) parseType() types.Type {
	pt, ok := typeTable[p.tok.Kind]
	if !ok {
		p.reject(TOK_INT, TOK_FLOAT, TOK_BOOL, TOK_STRING, TOK_DATASET, TOK_UNIT)
	}

	p.next()
	return pt
}
