package syntax

import (
	"rillc/ast"
	"rillc/report"
)

// precTable is the operator precedence table for binary operators.  The table
// is ordered highest to lowest precedence.  All binary operators parse
// left-associative.
var precTable = [][]int{
	{TOK_STAR, TOK_DIV, TOK_MOD},
	{TOK_PLUS, TOK_MINUS},
	{TOK_LT, TOK_GT, TOK_LTEQ, TOK_GTEQ},
	{TOK_EQ, TOK_NEQ},
	{TOK_AND},
	{TOK_OR},
}

// canStartExpr returns whether the current token can begin an expression.
func (p *Parser) canStartExpr() bool {
	return p.gotOneOf(
		TOK_IDENT, TOK_INTLIT, TOK_FLOATLIT, TOK_STRINGLIT, TOK_BOOLLIT,
		TOK_LPAREN, TOK_LBRACKET, TOK_LBRACE, TOK_MINUS, TOK_NOT,
		TOK_ARG, TOK_LOAD,
	)
}

// parseExpr parses an expression.  Pipelines bind loosest: any expression may
// be the head stage of a pipeline chain.
//
// expr = stage {'|>' stage}
func (p *Parser) parseExpr() ast.ASTExpr {
	head := p.parseStage(true)
	return p.parsePipelineTail(head)
}

// parseExprWithLhs continues expression parsing after an atom that was
// already consumed by the caller (the statement parser's extra lookahead).
func (p *Parser) parseExprWithLhs(lhs ast.ASTExpr) ast.ASTExpr {
	expr, _ := p.precedenceParse(lhs, len(precTable))
	return p.parsePipelineTail(p.wrapHeadStage(expr))
}

// parsePipelineTail parses the `|> stage` chain following a head stage, if
// any.  Stages always evaluate in source order: chaining is left to right and
// the parser performs no reordering.
func (p *Parser) parsePipelineTail(head ast.ASTExpr) ast.ASTExpr {
	if !p.got(TOK_PIPE) {
		// A one-stage "chain" is just the underlying expression.
		if stage, ok := head.(*ast.PipelineStage); ok && stage.Kind == ast.StageExpr {
			return stage.Operand
		}

		if stage, ok := head.(*ast.PipelineStage); ok {
			return &ast.Pipeline{
				ExprBase: ast.NewExprBase(stage.Span()),
				Stages:   []*ast.PipelineStage{stage},
			}
		}

		return head
	}

	stages := []*ast.PipelineStage{p.wrapHeadStage(head)}
	for p.got(TOK_PIPE) {
		p.next()
		stages = append(stages, p.parseStage(false))
	}

	return &ast.Pipeline{
		ExprBase: ast.NewExprBase(ast.SpanOverExprs(stages[0], stages[len(stages)-1])),
		Stages:   stages,
	}
}

// wrapHeadStage wraps an expression as a pipeline stage unless it already is
// one.
func (p *Parser) wrapHeadStage(expr ast.ASTExpr) *ast.PipelineStage {
	if stage, ok := expr.(*ast.PipelineStage); ok {
		return stage
	}

	return &ast.PipelineStage{
		ExprBase: ast.NewExprBase(expr.Span()),
		Kind:     ast.StageExpr,
		Operand:  expr,
	}
}

// parseStage parses a single pipeline stage.  The dataset stages are opaque
// leaves: their URI and format operands are carried to lowering untouched.
//
// stage = 'load' expr 'as' expr | 'save' expr 'as' expr
//       | 'filter' expr | 'groupby' expr | bin_op_expr
func (p *Parser) parseStage(isHead bool) *ast.PipelineStage {
	startSpan := p.tok.Span

	switch p.tok.Kind {
	case TOK_LOAD:
		p.next()
		uri := p.parseBinOpExpr()
		p.assertAndNext(TOK_AS)
		format := p.parseBinOpExpr()

		return &ast.PipelineStage{
			ExprBase: ast.NewExprBase(report.NewSpanOver(startSpan, format.Span())),
			Kind:     ast.StageLoad,
			URI:      uri,
			Format:   format,
		}
	case TOK_SAVE:
		if isHead {
			report.Raise(report.PhaseParse, report.KindUnexpectedToken, startSpan,
				"`save` stage requires a pipeline input")
		}

		p.next()
		uri := p.parseBinOpExpr()
		p.assertAndNext(TOK_AS)
		format := p.parseBinOpExpr()

		return &ast.PipelineStage{
			ExprBase: ast.NewExprBase(report.NewSpanOver(startSpan, format.Span())),
			Kind:     ast.StageSave,
			URI:      uri,
			Format:   format,
		}
	case TOK_FILTER, TOK_GROUPBY:
		if isHead {
			report.Raise(report.PhaseParse, report.KindUnexpectedToken, startSpan,
				"`%s` stage requires a pipeline input", p.tok.Value)
		}

		kind := ast.StageFilter
		if p.got(TOK_GROUPBY) {
			kind = ast.StageGroupBy
		}

		p.next()
		operand := p.parseBinOpExpr()

		return &ast.PipelineStage{
			ExprBase: ast.NewExprBase(report.NewSpanOver(startSpan, operand.Span())),
			Kind:     kind,
			Operand:  operand,
		}
	default:
		expr := p.parseBinOpExpr()
		return p.wrapHeadStage(expr)
	}
}

// -----------------------------------------------------------------------------

// parseBinOpExpr parses a binary operator expression.
//
// bin_op_expr = unary_expr {BIN_OP unary_expr}
func (p *Parser) parseBinOpExpr() ast.ASTExpr {
	lhs := p.parseUnaryExpr()

	expr, _ := p.precedenceParse(lhs, len(precTable))
	return expr
}

// precedenceParse performs operator precedence parsing for binary operators:
// it is essentially an augmented implementation of a Pratt parser.
func (p *Parser) precedenceParse(lhs ast.ASTExpr, maxPrec int) (ast.ASTExpr, int) {
	for {
		// Check whether the lookahead matches any operator at or above our
		// precedence level.
		var op *Token
		opPrec := -1
		for prec, precLevel := range precTable[:maxPrec] {
			for _, kind := range precLevel {
				if p.got(kind) {
					op = p.tok
					opPrec = prec
					break
				}
			}

			if op != nil {
				break
			}
		}

		if op == nil {
			return lhs, maxPrec
		}

		p.next()
		rhs := p.parseUnaryExpr()

		// Bind tighter operators on the right before applying this one:
		// operators at the same level stay left-associative.
		rhs, _ = p.precedenceParse(rhs, opPrec)

		lhs = &ast.BinaryOp{
			ExprBase: ast.NewExprBase(report.NewSpanOver(lhs.Span(), rhs.Span())),
			Op:       op.Kind,
			Lhs:      lhs,
			Rhs:      rhs,
		}
	}
}

// parseUnaryExpr parses a unary expression.
//
// unary_expr = ('-' | 'not') unary_expr | atom_expr
func (p *Parser) parseUnaryExpr() ast.ASTExpr {
	if p.gotOneOf(TOK_MINUS, TOK_NOT) {
		opTok := p.tok
		p.next()

		operand := p.parseUnaryExpr()

		return &ast.UnaryOp{
			ExprBase: ast.NewExprBase(report.NewSpanOver(opTok.Span, operand.Span())),
			Op:       opTok.Kind,
			Operand:  operand,
		}
	}

	return p.parseAtomExpr()
}

// parseAtomExpr parses an atom expression plus any call trailers.
//
// atom_expr = atom {'(' [expr_list] ')'}
func (p *Parser) parseAtomExpr() ast.ASTExpr {
	return p.parseTrailers(p.parseAtom())
}

// parseTrailers parses the call trailers following an atom, if any.
func (p *Parser) parseTrailers(atom ast.ASTExpr) ast.ASTExpr {
	for p.got(TOK_LPAREN) {
		ident, ok := atom.(*ast.Identifier)
		if !ok {
			report.Raise(report.PhaseParse, report.KindUnexpectedToken, p.tok.Span,
				"only named functions can be called")
		}

		p.next()

		var args []ast.ASTExpr
		for !p.got(TOK_RPAREN) {
			if len(args) > 0 {
				p.assertAndNext(TOK_COMMA)
			}

			args = append(args, p.parseExpr())
		}

		endSpan := p.tok.Span
		p.next()

		atom = &ast.Call{
			ExprBase: ast.NewExprBase(report.NewSpanOver(ident.Span(), endSpan)),
			Name:     ident.Name,
			Args:     args,
		}
	}

	return atom
}

// parseAtom parses a leaf expression.
//
// atom = 'INTLIT' | 'FLOATLIT' | 'STRINGLIT' | 'BOOLLIT' | 'IDENT'
//      | 'arg' 'STRINGLIT' | '(' expr ')' | list_lit | map_lit
func (p *Parser) parseAtom() ast.ASTExpr {
	switch p.tok.Kind {
	case TOK_INTLIT, TOK_FLOATLIT, TOK_STRINGLIT, TOK_BOOLLIT:
		{
			lit := &ast.Literal{
				ExprBase: ast.NewExprBase(p.tok.Span),
				Kind:     p.tok.Kind,
				Text:     p.tok.Value,
			}
			p.next()
			return lit
		}
	case TOK_IDENT:
		{
			ident := &ast.Identifier{
				ExprBase: ast.NewExprBase(p.tok.Span),
				Name:     p.tok.Value,
			}
			p.next()
			return ident
		}
	case TOK_ARG:
		{
			startSpan := p.tok.Span
			p.want(TOK_STRINGLIT)

			ref := &ast.ArgRef{
				ExprBase: ast.NewExprBase(report.NewSpanOver(startSpan, p.tok.Span)),
				Name:     p.tok.Value,
			}
			p.next()
			return ref
		}
	case TOK_LPAREN:
		{
			p.next()
			expr := p.parseExpr()
			p.assertAndNext(TOK_RPAREN)
			return expr
		}
	case TOK_LBRACKET:
		return p.parseListLit()
	case TOK_LBRACE:
		return p.parseMapLit()
	default:
		p.reject(TOK_IDENT, TOK_INTLIT, TOK_FLOATLIT, TOK_STRINGLIT, TOK_BOOLLIT, TOK_LPAREN)
		return nil
	}
}

// parseListLit parses a list literal.
//
// list_lit = '[' [bin_op_expr {',' bin_op_expr}] ']'
func (p *Parser) parseListLit() ast.ASTExpr {
	startSpan := p.tok.Span
	p.next()

	var elems []ast.ASTExpr
	for !p.got(TOK_RBRACKET) {
		if len(elems) > 0 {
			p.assertAndNext(TOK_COMMA)
		}

		elems = append(elems, p.parseBinOpExpr())
	}

	endSpan := p.tok.Span
	p.next()

	return &ast.ListLit{
		ExprBase: ast.NewExprBase(report.NewSpanOver(startSpan, endSpan)),
		Elems:    elems,
	}
}

// parseMapLit parses a map literal.
//
// map_lit = '{' [map_pair {',' map_pair}] '}'
// map_pair = bin_op_expr ':' bin_op_expr
func (p *Parser) parseMapLit() ast.ASTExpr {
	startSpan := p.tok.Span
	p.next()

	var keys, values []ast.ASTExpr
	for !p.got(TOK_RBRACE) {
		if len(keys) > 0 {
			p.assertAndNext(TOK_COMMA)
		}

		keys = append(keys, p.parseBinOpExpr())
		p.assertAndNext(TOK_COLON)
		values = append(values, p.parseBinOpExpr())
	}

	endSpan := p.tok.Span
	p.next()

	return &ast.MapLit{
		ExprBase: ast.NewExprBase(report.NewSpanOver(startSpan, endSpan)),
		Keys:     keys,
		Values:   values,
	}
}
