// Package parser implements the syntax analysis for cbl.
// It is a recursive-descent parser with one method per grammar rule; binary
// operators are layered by precedence, lowest first:
//
//	assignment < or < and < equality < comparison < term < factor < unary < call < primary
package parser

import (
	"cbl-lang/internal/ast"
	"cbl-lang/internal/diag"
	"cbl-lang/internal/span"
	"cbl-lang/internal/token"
	"errors"
	"fmt"
)

// MaxArgs is the largest number of arguments a call, or parameters a
// function, may have.
const MaxArgs = 255

// parseError aborts the current statement. It is recorded once, in
// declaration, and followed by synchronization. Errors at an ILLEGAL token
// are quiet: the lexer has already reported that token.
type parseError struct {
	diag  diag.Diagnostic
	quiet bool
}

func (e *parseError) Error() string { return e.diag.String() }

// Parser performs syntax analysis on a stream of tokens.
type Parser struct {
	tokens []token.Token
	pos    int
	diags  []diag.Diagnostic

	funcDepth  int // > 0 while inside a function body
	blockDepth int // > 0 while inside braces
}

// New creates a new parser from a token slice. The slice is expected to end
// with an EOF token, as produced by the lexer.
func New(tokens []token.Token) *Parser {
	return &Parser{tokens: tokens, pos: 0}
}

// ParseTokens parses tokens in one call.
func ParseTokens(tokens []token.Token) ([]ast.Stmt, []diag.Diagnostic) {
	return New(tokens).Parse()
}

// Parse parses the whole program. It never stops at the first error: every
// statement-level error is returned together with the statements that
// parsed cleanly.
func (p *Parser) Parse() ([]ast.Stmt, []diag.Diagnostic) {
	var stmts []ast.Stmt
	for !p.isAtEnd() {
		if stmt := p.declaration(); stmt != nil {
			stmts = append(stmts, stmt)
		}
	}
	return stmts, p.diags
}

// ---- navigation helpers ----

func (p *Parser) peek() token.Token {
	if p.pos >= len(p.tokens) {
		if len(p.tokens) > 0 {
			last := p.tokens[len(p.tokens)-1]
			return token.Token{Kind: token.EOF, Span: span.Span{Start: last.Span.End, End: last.Span.End}}
		}
		return token.Token{Kind: token.EOF}
	}
	return p.tokens[p.pos]
}

func (p *Parser) peekKind() token.Kind {
	return p.peek().Kind
}

// peekAt looks n tokens ahead without consuming anything.
func (p *Parser) peekAt(n int) token.Token {
	if p.pos+n >= len(p.tokens) {
		return token.Token{Kind: token.EOF}
	}
	return p.tokens[p.pos+n]
}

func (p *Parser) previous() token.Token {
	if p.pos == 0 {
		return token.Token{Kind: token.ILLEGAL}
	}
	return p.tokens[p.pos-1]
}

func (p *Parser) advance() token.Token {
	tok := p.peek()
	if !p.isAtEnd() {
		p.pos++
	}
	return tok
}

func (p *Parser) check(kind token.Kind) bool {
	return p.peekKind() == kind
}

// match consumes the next token if it has one of the given kinds.
func (p *Parser) match(kinds ...token.Kind) bool {
	for _, k := range kinds {
		if p.check(k) {
			p.advance()
			return true
		}
	}
	return false
}

func (p *Parser) expect(kind token.Kind, context string) (token.Token, error) {
	if p.check(kind) {
		return p.advance(), nil
	}
	return token.Token{}, p.errorAt(p.peek(), diag.CodeExpectedToken, "expected '%s' %s", kind, context)
}

func (p *Parser) isAtEnd() bool {
	return p.peekKind() == token.EOF
}

// ---- diagnostics ----

// report records a diagnostic without aborting the current statement.
func (p *Parser) report(tok token.Token, code string, format string, args ...interface{}) {
	p.diags = append(p.diags, newDiag(tok, code, format, args...))
}

// errorAt builds an error that aborts the current statement.
func (p *Parser) errorAt(tok token.Token, code string, format string, args ...interface{}) error {
	return &parseError{diag: newDiag(tok, code, format, args...), quiet: tok.Kind == token.ILLEGAL}
}

func newDiag(tok token.Token, code string, format string, args ...interface{}) diag.Diagnostic {
	where := "at end"
	if tok.Kind != token.EOF {
		where = fmt.Sprintf("at '%s'", tok.Lexeme)
	}
	d := diag.Errorf(diag.StageSyntax, code, tok.Span, format, args...)
	d.Message = d.Message + " " + where
	return d
}

// ============================================================
// Error recovery
// ============================================================

// synchronize discards tokens until a likely statement boundary: just past
// a ';', or before a statement keyword. Inside a block it also stops before
// '}' so the block can close normally. start is the position where the
// failed statement began; at least one token is consumed when no progress
// was made since then.
func (p *Parser) synchronize(start int) {
	if p.pos == start {
		p.advance()
	}

	for !p.isAtEnd() {
		if p.previous().Kind == token.SEMICOLON {
			return
		}
		switch p.peekKind() {
		case token.KW_CLASS, token.KW_FUN, token.KW_VAR, token.KW_FOR,
			token.KW_IF, token.KW_WHILE, token.KW_PRINT, token.KW_RETURN:
			return
		case token.RBRACE:
			if p.blockDepth > 0 {
				return
			}
		}
		p.advance()
	}
}

// ============================================================
// Declarations
// ============================================================

// declaration parses one declaration. On error it records the diagnostic,
// synchronizes, and returns nil.
func (p *Parser) declaration() ast.Stmt {
	start := p.pos
	stmt, err := p.parseDeclaration()
	if err != nil {
		var perr *parseError
		if !errors.As(err, &perr) {
			perr = &parseError{diag: newDiag(p.peek(), diag.CodeExpectedExpression, "%s", err.Error())}
		}
		if !perr.quiet {
			p.diags = append(p.diags, perr.diag)
		}
		p.synchronize(start)
		return nil
	}
	return stmt
}

func (p *Parser) parseDeclaration() (ast.Stmt, error) {
	switch {
	case p.check(token.KW_FUN) && p.peekAt(1).Kind == token.IDENT:
		return p.funDecl()
	case p.check(token.KW_VAR):
		return p.varDecl()
	case p.check(token.KW_CLASS):
		return nil, p.errorAt(p.peek(), diag.CodeUnsupported, "classes are not supported")
	default:
		return p.statement()
	}
}

// funDecl parses: fun IDENT ( params ) block
func (p *Parser) funDecl() (ast.Stmt, error) {
	start := p.advance() // consume 'fun'
	nameTok := p.advance()

	params, body, err := p.functionRest("function")
	if err != nil {
		return nil, err
	}
	return &ast.FuncStmt{
		StmtBase: makeStmtBase(start.Span.Start, p.prevEnd()),
		Name:     nameTok.Lexeme,
		Params:   params,
		Body:     body,
	}, nil
}

// functionRest parses the parameter list and body shared by declarations
// and lambdas.
func (p *Parser) functionRest(kind string) ([]string, *ast.BlockStmt, error) {
	if _, err := p.expect(token.LPAREN, "after "+kind+" name"); err != nil {
		return nil, nil, err
	}

	var params []string
	if !p.check(token.RPAREN) {
		for {
			if len(params) >= MaxArgs {
				p.report(p.peek(), diag.CodeTooManyArguments, "can't have more than %d parameters", MaxArgs)
			}
			nameTok, err := p.expect(token.IDENT, "as parameter name")
			if err != nil {
				return nil, nil, err
			}
			params = append(params, nameTok.Lexeme)
			if !p.match(token.COMMA) {
				break
			}
		}
	}
	if _, err := p.expect(token.RPAREN, "after parameters"); err != nil {
		return nil, nil, err
	}
	if !p.check(token.LBRACE) {
		return nil, nil, p.errorAt(p.peek(), diag.CodeExpectedToken, "expected '{' before %s body", kind)
	}

	p.funcDepth++
	defer func() { p.funcDepth-- }()
	body, err := p.block()
	if err != nil {
		return nil, nil, err
	}
	return params, body, nil
}

// varDecl parses: var IDENT [ = expr ] ;
func (p *Parser) varDecl() (ast.Stmt, error) {
	start := p.advance() // consume 'var'

	nameTok, err := p.expect(token.IDENT, "as variable name")
	if err != nil {
		return nil, err
	}

	stmt := &ast.VarStmt{Name: nameTok.Lexeme}
	if p.match(token.ASSIGN) {
		if stmt.Init, err = p.expression(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(token.SEMICOLON, "after variable declaration"); err != nil {
		return nil, err
	}

	stmt.StmtBase = makeStmtBase(start.Span.Start, p.prevEnd())
	return stmt, nil
}

// ============================================================
// Statements
// ============================================================

func (p *Parser) statement() (ast.Stmt, error) {
	switch p.peekKind() {
	case token.KW_FOR:
		return p.forStmt()
	case token.KW_IF:
		return p.ifStmt()
	case token.KW_PRINT:
		return p.printStmt()
	case token.KW_RETURN:
		return p.returnStmt()
	case token.KW_WHILE:
		return p.whileStmt()
	case token.LBRACE:
		return p.block()
	default:
		return p.exprStmt()
	}
}

// ifStmt parses: if ( expr ) stmt [ else stmt ]. The else binds to the
// nearest if because the inner statement() call consumes it first.
func (p *Parser) ifStmt() (ast.Stmt, error) {
	start := p.advance() // consume 'if'

	if _, err := p.expect(token.LPAREN, "after 'if'"); err != nil {
		return nil, err
	}
	cond, err := p.expression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RPAREN, "after if condition"); err != nil {
		return nil, err
	}

	stmt := &ast.IfStmt{Condition: cond}
	if stmt.Then, err = p.statement(); err != nil {
		return nil, err
	}
	if p.match(token.KW_ELSE) {
		if stmt.Else, err = p.statement(); err != nil {
			return nil, err
		}
	}

	stmt.StmtBase = makeStmtBase(start.Span.Start, p.prevEnd())
	return stmt, nil
}

// whileStmt parses: while ( expr ) stmt
func (p *Parser) whileStmt() (ast.Stmt, error) {
	start := p.advance() // consume 'while'

	if _, err := p.expect(token.LPAREN, "after 'while'"); err != nil {
		return nil, err
	}
	cond, err := p.expression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RPAREN, "after condition"); err != nil {
		return nil, err
	}
	body, err := p.statement()
	if err != nil {
		return nil, err
	}

	return &ast.WhileStmt{
		StmtBase:  makeStmtBase(start.Span.Start, p.prevEnd()),
		Condition: cond,
		Body:      body,
	}, nil
}

// forStmt parses: for ( init? ; cond? ; incr? ) stmt
// and desugars it into { init; while (cond) { stmt; incr; } }.
func (p *Parser) forStmt() (ast.Stmt, error) {
	start := p.advance() // consume 'for'

	if _, err := p.expect(token.LPAREN, "after 'for'"); err != nil {
		return nil, err
	}

	var (
		init ast.Stmt
		err  error
	)
	switch {
	case p.match(token.SEMICOLON):
	case p.check(token.KW_VAR):
		init, err = p.varDecl()
	default:
		init, err = p.exprStmt()
	}
	if err != nil {
		return nil, err
	}

	var cond ast.Expr
	if !p.check(token.SEMICOLON) {
		if cond, err = p.expression(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(token.SEMICOLON, "after loop condition"); err != nil {
		return nil, err
	}

	var incr ast.Expr
	if !p.check(token.RPAREN) {
		if incr, err = p.expression(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(token.RPAREN, "after for clauses"); err != nil {
		return nil, err
	}

	body, err := p.statement()
	if err != nil {
		return nil, err
	}
	s := makeStmtBase(start.Span.Start, p.prevEnd())

	if incr != nil {
		body = &ast.BlockStmt{
			StmtBase: s,
			Stmts:    []ast.Stmt{body, &ast.ExprStmt{StmtBase: stmtSpanning(incr.GetSpan()), Expr: incr}},
		}
	}
	if cond == nil {
		cond = &ast.LiteralExpr{ExprBase: exprSpanning(start.Span), Value: true}
	}
	var loop ast.Stmt = &ast.WhileStmt{StmtBase: s, Condition: cond, Body: body}
	if init != nil {
		loop = &ast.BlockStmt{StmtBase: s, Stmts: []ast.Stmt{init, loop}}
	}
	return loop, nil
}

// printStmt parses: print expr ;
func (p *Parser) printStmt() (ast.Stmt, error) {
	start := p.advance() // consume 'print'
	value, err := p.expression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.SEMICOLON, "after value"); err != nil {
		return nil, err
	}
	return &ast.PrintStmt{StmtBase: makeStmtBase(start.Span.Start, p.prevEnd()), Expr: value}, nil
}

// returnStmt parses: return [expr] ;
func (p *Parser) returnStmt() (ast.Stmt, error) {
	start := p.advance() // consume 'return'
	if p.funcDepth == 0 {
		p.report(start, diag.CodeTopLevelReturn, "can't return from top-level code")
	}

	stmt := &ast.ReturnStmt{}
	if !p.check(token.SEMICOLON) {
		value, err := p.expression()
		if err != nil {
			return nil, err
		}
		stmt.Value = value
	}
	if _, err := p.expect(token.SEMICOLON, "after return value"); err != nil {
		return nil, err
	}

	stmt.StmtBase = makeStmtBase(start.Span.Start, p.prevEnd())
	return stmt, nil
}

// block parses: { declarations }
func (p *Parser) block() (*ast.BlockStmt, error) {
	start, err := p.expect(token.LBRACE, "before block")
	if err != nil {
		return nil, err
	}

	p.blockDepth++
	defer func() { p.blockDepth-- }()

	block := &ast.BlockStmt{}
	for !p.check(token.RBRACE) && !p.isAtEnd() {
		if stmt := p.declaration(); stmt != nil {
			block.Stmts = append(block.Stmts, stmt)
		}
	}

	if _, err := p.expect(token.RBRACE, "after block"); err != nil {
		return nil, err
	}
	block.StmtBase = makeStmtBase(start.Span.Start, p.prevEnd())
	return block, nil
}

// exprStmt parses: expr ;
func (p *Parser) exprStmt() (ast.Stmt, error) {
	expr, err := p.expression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.SEMICOLON, "after expression"); err != nil {
		return nil, err
	}
	return &ast.ExprStmt{StmtBase: makeStmtBase(expr.GetSpan().Start, p.prevEnd()), Expr: expr}, nil
}

// ============================================================
// Expressions
// ============================================================

func (p *Parser) expression() (ast.Expr, error) {
	return p.assignment()
}

// assignment is right-associative and only accepts a variable on the left.
// An invalid target is reported without aborting the statement.
func (p *Parser) assignment() (ast.Expr, error) {
	expr, err := p.or()
	if err != nil {
		return nil, err
	}

	if p.check(token.ASSIGN) {
		equals := p.advance()
		value, err := p.assignment()
		if err != nil {
			return nil, err
		}
		if v, ok := expr.(*ast.VariableExpr); ok {
			return &ast.AssignExpr{
				ExprBase: exprSpanning(v.Span.To(value.GetSpan())),
				Name:     v.Name,
				Value:    value,
			}, nil
		}
		p.report(equals, diag.CodeInvalidAssignment, "invalid assignment target")
	}
	return expr, nil
}

func (p *Parser) or() (ast.Expr, error) {
	return p.logical(p.and, token.KW_OR)
}

func (p *Parser) and() (ast.Expr, error) {
	return p.logical(p.equality, token.KW_AND)
}

func (p *Parser) equality() (ast.Expr, error) {
	return p.binary(p.comparison, token.NEQ, token.EQ)
}

func (p *Parser) comparison() (ast.Expr, error) {
	return p.binary(p.term, token.GT, token.GTE, token.LT, token.LTE)
}

func (p *Parser) term() (ast.Expr, error) {
	return p.binary(p.factor, token.MINUS, token.PLUS)
}

func (p *Parser) factor() (ast.Expr, error) {
	return p.binary(p.unary, token.SLASH, token.STAR)
}

// binary parses a left-associative chain of the given operators whose
// operands are parsed by next.
func (p *Parser) binary(next func() (ast.Expr, error), ops ...token.Kind) (ast.Expr, error) {
	left, err := next()
	if err != nil {
		return nil, err
	}
	for p.match(ops...) {
		op := p.previous()
		right, err := next()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{
			ExprBase: exprSpanning(left.GetSpan().To(right.GetSpan())),
			Op:       op.Kind,
			Left:     left,
			Right:    right,
		}
	}
	return left, nil
}

// logical is binary for the short-circuit operators.
func (p *Parser) logical(next func() (ast.Expr, error), op token.Kind) (ast.Expr, error) {
	left, err := next()
	if err != nil {
		return nil, err
	}
	for p.match(op) {
		right, err := next()
		if err != nil {
			return nil, err
		}
		left = &ast.LogicalExpr{
			ExprBase: exprSpanning(left.GetSpan().To(right.GetSpan())),
			Op:       op,
			Left:     left,
			Right:    right,
		}
	}
	return left, nil
}

func (p *Parser) unary() (ast.Expr, error) {
	if p.match(token.BANG, token.MINUS) {
		op := p.previous()
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{
			ExprBase: exprSpanning(op.Span.To(operand.GetSpan())),
			Op:       op.Kind,
			Operand:  operand,
		}, nil
	}
	return p.call()
}

// call parses a primary followed by any number of argument lists: f()().
func (p *Parser) call() (ast.Expr, error) {
	expr, err := p.primary()
	if err != nil {
		return nil, err
	}
	for p.match(token.LPAREN) {
		if expr, err = p.finishCall(expr); err != nil {
			return nil, err
		}
	}
	return expr, nil
}

func (p *Parser) finishCall(callee ast.Expr) (ast.Expr, error) {
	var args []ast.Expr
	if !p.check(token.RPAREN) {
		for {
			if len(args) >= MaxArgs {
				p.report(p.peek(), diag.CodeTooManyArguments, "can't have more than %d arguments", MaxArgs)
			}
			arg, err := p.expression()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if !p.match(token.COMMA) {
				break
			}
		}
	}
	paren, err := p.expect(token.RPAREN, "after arguments")
	if err != nil {
		return nil, err
	}
	return &ast.CallExpr{
		ExprBase: exprSpanning(callee.GetSpan().To(paren.Span)),
		Callee:   callee,
		Args:     args,
	}, nil
}

func (p *Parser) primary() (ast.Expr, error) {
	tok := p.peek()
	base := exprSpanning(tok.Span)

	switch tok.Kind {
	case token.KW_FALSE:
		p.advance()
		return &ast.LiteralExpr{ExprBase: base, Value: false}, nil
	case token.KW_TRUE:
		p.advance()
		return &ast.LiteralExpr{ExprBase: base, Value: true}, nil
	case token.KW_NIL:
		p.advance()
		return &ast.LiteralExpr{ExprBase: base, Value: nil}, nil
	case token.NUMBER, token.STRING:
		p.advance()
		return &ast.LiteralExpr{ExprBase: base, Value: tok.Literal}, nil
	case token.IDENT:
		p.advance()
		return &ast.VariableExpr{ExprBase: base, Name: tok.Lexeme}, nil

	case token.LPAREN:
		p.advance() // consume '('
		inner, err := p.expression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RPAREN, "after expression"); err != nil {
			return nil, err
		}
		return &ast.GroupingExpr{ExprBase: makeExprBase(tok.Span.Start, p.prevEnd()), Inner: inner}, nil

	case token.KW_FUN:
		p.advance() // consume 'fun'
		params, body, err := p.functionRest("lambda")
		if err != nil {
			return nil, err
		}
		return &ast.FuncExpr{
			ExprBase: makeExprBase(tok.Span.Start, p.prevEnd()),
			Params:   params,
			Body:     body,
		}, nil

	case token.KW_THIS, token.KW_SUPER:
		return nil, p.errorAt(tok, diag.CodeUnsupported, "classes are not supported")

	default:
		return nil, p.errorAt(tok, diag.CodeExpectedExpression, "expected expression")
	}
}

// ============================================================
// Span helpers
// ============================================================

func (p *Parser) prevEnd() span.Position {
	if p.pos > 0 && p.pos-1 < len(p.tokens) {
		return p.tokens[p.pos-1].Span.End
	}
	return p.peek().Span.Start
}

func makeExprBase(start, end span.Position) ast.ExprBase {
	return ast.ExprBase{NodeBase: ast.NodeBase{Span: span.Span{Start: start, End: end}}}
}

func makeStmtBase(start, end span.Position) ast.StmtBase {
	return ast.StmtBase{NodeBase: ast.NodeBase{Span: span.Span{Start: start, End: end}}}
}

func exprSpanning(s span.Span) ast.ExprBase {
	return ast.ExprBase{NodeBase: ast.NodeBase{Span: s}}
}

func stmtSpanning(s span.Span) ast.StmtBase {
	return ast.StmtBase{NodeBase: ast.NodeBase{Span: s}}
}
