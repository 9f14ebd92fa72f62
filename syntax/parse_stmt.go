package syntax

import (
	"strconv"

	"rillc/ast"
	"rillc/report"
)

// parseBlock parses a statement sequence until one of the given closing token
// kinds is reached.  The closer is not consumed.
//
// block = {stmt}
func (p *Parser) parseBlock(closers ...int) *ast.Block {
	startSpan := p.tok.Span

	var stmts []ast.ASTNode
	for !p.gotOneOf(closers...) && !p.got(TOK_EOF) {
		stmts = append(stmts, p.parseStmt())
	}

	endSpan := startSpan
	if len(stmts) > 0 {
		endSpan = stmts[len(stmts)-1].Span()
	}

	return &ast.Block{
		ASTBase: ast.NewASTBaseOver(startSpan, endSpan),
		Stmts:   stmts,
	}
}

// parseStmt parses a single statement.
//
// stmt = var_decl | assign_or_expr | if_stmt | while_stmt | try_stmt
//      | 'return' [expr] | 'break' | 'continue'
func (p *Parser) parseStmt() ast.ASTNode {
	switch p.tok.Kind {
	case TOK_LET:
		return p.parseVarDecl()
	case TOK_IF:
		return p.parseIfStmt()
	case TOK_WHILE:
		return p.parseWhileStmt()
	case TOK_TRY:
		return p.parseTryStmt()
	case TOK_RETURN:
		{
			span := p.tok.Span
			p.next()

			var value ast.ASTExpr
			if p.canStartExpr() {
				value = p.parseExpr()
				span = report.NewSpanOver(span, value.Span())
			}

			return &ast.ReturnStmt{ASTBase: ast.NewASTBaseOn(span), Value: value}
		}
	case TOK_BREAK:
		{
			stmt := &ast.BreakStmt{ASTBase: ast.NewASTBaseOn(p.tok.Span)}
			p.next()
			return stmt
		}
	case TOK_CONTINUE:
		{
			stmt := &ast.ContinueStmt{ASTBase: ast.NewASTBaseOn(p.tok.Span)}
			p.next()
			return stmt
		}
	default:
		return p.parseAssignOrExprStmt()
	}
}

// parseVarDecl parses a variable declaration.
//
// var_decl = 'let' 'IDENT' '=' expr
func (p *Parser) parseVarDecl() ast.ASTNode {
	startSpan := p.tok.Span

	p.want(TOK_IDENT)
	name := p.tok.Value

	p.want(TOK_ASSIGN)
	p.next()

	init := p.parseExpr()

	return &ast.VarDecl{
		ASTBase: ast.NewASTBaseOver(startSpan, init.Span()),
		Name:    name,
		Init:    init,
	}
}

// parseAssignOrExprStmt parses either an assignment or a bare expression
// statement.  The distinction needs one extra token of lookahead after an
// identifier, which the parser buffers locally.
//
// assign_or_expr = 'IDENT' '=' expr | expr
func (p *Parser) parseAssignOrExprStmt() ast.ASTNode {
	if p.got(TOK_IDENT) {
		identTok := p.tok
		p.next()

		if p.got(TOK_ASSIGN) {
			p.next()
			value := p.parseExpr()

			return &ast.Assign{
				ASTBase: ast.NewASTBaseOver(identTok.Span, value.Span()),
				Name:    identTok.Value,
				Value:   value,
			}
		}

		// Not an assignment: re-enter expression parsing with the identifier
		// already consumed.
		expr := p.parseExprWithLhs(p.parseTrailers(&ast.Identifier{
			ExprBase: ast.NewExprBase(identTok.Span),
			Name:     identTok.Value,
		}))

		return &ast.ExprStmt{ASTBase: ast.NewASTBaseOn(expr.Span()), Expr: expr}
	}

	expr := p.parseExpr()
	return &ast.ExprStmt{ASTBase: ast.NewASTBaseOn(expr.Span()), Expr: expr}
}

// -----------------------------------------------------------------------------

// parseIfStmt parses an if statement.
//
// if_stmt = 'if' expr 'then' block {'elif' expr 'then' block}
//           ['else' block] 'end'
func (p *Parser) parseIfStmt() ast.ASTNode {
	startSpan := p.tok.Span

	var condBranches []ast.CondBranch
	for {
		p.next()
		cond := p.parseExpr()
		p.assertAndNext(TOK_THEN)
		body := p.parseBlock(TOK_ELIF, TOK_ELSE, TOK_BLOCKEND)

		condBranches = append(condBranches, ast.CondBranch{Cond: cond, Body: body})

		if !p.got(TOK_ELIF) {
			break
		}
	}

	var elseBranch *ast.Block
	if p.got(TOK_ELSE) {
		p.next()
		elseBranch = p.parseBlock(TOK_BLOCKEND)
	}

	endSpan := p.tok.Span
	p.assertAndNext(TOK_BLOCKEND)

	return &ast.IfStmt{
		ASTBase:      ast.NewASTBaseOver(startSpan, endSpan),
		CondBranches: condBranches,
		ElseBranch:   elseBranch,
	}
}

// parseWhileStmt parses a while loop.
//
// while_stmt = 'while' expr 'do' block 'end'
func (p *Parser) parseWhileStmt() ast.ASTNode {
	startSpan := p.tok.Span
	p.next()

	cond := p.parseExpr()
	p.assertAndNext(TOK_DO)
	body := p.parseBlock(TOK_BLOCKEND)

	endSpan := p.tok.Span
	p.assertAndNext(TOK_BLOCKEND)

	return &ast.WhileStmt{
		ASTBase: ast.NewASTBaseOver(startSpan, endSpan),
		Cond:    cond,
		Body:    body,
	}
}

// parseTryStmt parses a structured error-recovery block.
//
// try_stmt = 'try' block 'catch' block ['retry' 'INTLIT'] 'end'
func (p *Parser) parseTryStmt() ast.ASTNode {
	startSpan := p.tok.Span
	p.next()

	body := p.parseBlock(TOK_CATCH)
	p.assertAndNext(TOK_CATCH)
	catch := p.parseBlock(TOK_RETRY, TOK_BLOCKEND)

	retries := 0
	if p.got(TOK_RETRY) {
		p.want(TOK_INTLIT)

		n, err := strconv.Atoi(p.tok.Value)
		if err != nil || n < 0 {
			report.Raise(report.PhaseParse, report.KindUnexpectedToken, p.tok.Span,
				"invalid retry count `%s`", p.tok.Value)
		}

		retries = n
		p.next()
	}

	endSpan := p.tok.Span
	p.assertAndNext(TOK_BLOCKEND)

	return &ast.TryStmt{
		ASTBase: ast.NewASTBaseOver(startSpan, endSpan),
		Body:    body,
		Catch:   catch,
		Retries: retries,
	}
}
