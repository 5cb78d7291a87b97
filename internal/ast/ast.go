// Package ast defines the abstract syntax tree for cbl.
package ast

import (
	"cbl-lang/internal/span"
	"cbl-lang/internal/token"
)

// ============================================================
// Node interfaces
// ============================================================

// Node is the interface implemented by all AST nodes.
type Node interface {
	nodeNode()
	GetSpan() span.Span
}

// Expr is the interface for expression nodes.
type Expr interface {
	Node
	exprNode()
}

// Stmt is the interface for statement nodes.
type Stmt interface {
	Node
	stmtNode()
}

// ============================================================
// Base types (embedded to provide common fields)
// ============================================================

// NodeBase provides the common Span field for all AST nodes.
type NodeBase struct {
	Span span.Span
}

func (n NodeBase) nodeNode()          {}
func (n NodeBase) GetSpan() span.Span { return n.Span }

// ExprBase is embedded by all expression nodes.
type ExprBase struct{ NodeBase }

func (ExprBase) exprNode() {}

// StmtBase is embedded by all statement nodes.
type StmtBase struct{ NodeBase }

func (StmtBase) stmtNode() {}

// ============================================================
// Expressions
// ============================================================

// LiteralExpr represents a literal: number (float64), string, bool or nil.
type LiteralExpr struct {
	ExprBase
	Value any
}

// GroupingExpr represents a parenthesized expression.
type GroupingExpr struct {
	ExprBase
	Inner Expr
}

// UnaryExpr represents a unary operation: !x, -x.
type UnaryExpr struct {
	ExprBase
	Op      token.Kind
	Operand Expr
}

// BinaryExpr represents an eager binary operation: a + b, x == y.
type BinaryExpr struct {
	ExprBase
	Op    token.Kind
	Left  Expr
	Right Expr
}

// LogicalExpr represents a short-circuiting `and` / `or`.
type LogicalExpr struct {
	ExprBase
	Op    token.Kind // KW_AND or KW_OR
	Left  Expr
	Right Expr
}

// VariableExpr represents a variable reference.
type VariableExpr struct {
	ExprBase
	Name string
}

// AssignExpr represents an assignment to a variable: name = value.
type AssignExpr struct {
	ExprBase
	Name  string
	Value Expr
}

// CallExpr represents a function call: f(a, b).
type CallExpr struct {
	ExprBase
	Callee Expr
	Args   []Expr
}

// FuncExpr represents an anonymous function: fun (params) { body }.
type FuncExpr struct {
	ExprBase
	Params []string
	Body   *BlockStmt
}

// ============================================================
// Statements
// ============================================================

// ExprStmt wraps an expression used as a statement.
type ExprStmt struct {
	StmtBase
	Expr Expr
}

// PrintStmt writes the value of an expression to the output.
type PrintStmt struct {
	StmtBase
	Expr Expr
}

// VarStmt represents a variable declaration: var x = expr.
type VarStmt struct {
	StmtBase
	Name string
	Init Expr // may be nil if no initializer
}

// BlockStmt represents a block of statements: { ... }.
type BlockStmt struct {
	StmtBase
	Stmts []Stmt
}

// IfStmt represents if/else. Else may be nil.
type IfStmt struct {
	StmtBase
	Condition Expr
	Then      Stmt
	Else      Stmt
}

// WhileStmt represents a while loop. `for` loops are desugared into it.
type WhileStmt struct {
	StmtBase
	Condition Expr
	Body      Stmt
}

// FuncStmt represents a function declaration: fun name(params) { ... }.
type FuncStmt struct {
	StmtBase
	Name   string
	Params []string
	Body   *BlockStmt
}

// ReturnStmt represents a return statement.
type ReturnStmt struct {
	StmtBase
	Value Expr // may be nil
}
