package ast

import (
	"cbl-lang/internal/span"
	"cbl-lang/internal/token"
)

// ProgramToMap converts a parsed program to a map suitable for JSON serialization.
func ProgramToMap(stmts []Stmt) map[string]interface{} {
	body := make([]interface{}, len(stmts))
	for i, s := range stmts {
		body[i] = NodeToMap(s)
	}
	return map[string]interface{}{"kind": "Program", "body": body}
}

// NodeToMap converts an AST node to a map suitable for JSON serialization.
// This produces a tagged-union structure: every node has a "kind" field.
func NodeToMap(node Node) map[string]interface{} {
	if node == nil {
		return nil
	}

	switch n := node.(type) {
	// ---- Expressions ----
	case *LiteralExpr:
		return m("LiteralExpr", n.Span, "value", n.Value)
	case *GroupingExpr:
		return m("GroupingExpr", n.Span, "inner", NodeToMap(n.Inner))
	case *UnaryExpr:
		return m("UnaryExpr", n.Span, "op", opStr(n.Op), "operand", NodeToMap(n.Operand))
	case *BinaryExpr:
		return m("BinaryExpr", n.Span,
			"op", opStr(n.Op),
			"left", NodeToMap(n.Left),
			"right", NodeToMap(n.Right))
	case *LogicalExpr:
		return m("LogicalExpr", n.Span,
			"op", opStr(n.Op),
			"left", NodeToMap(n.Left),
			"right", NodeToMap(n.Right))
	case *VariableExpr:
		return m("VariableExpr", n.Span, "name", n.Name)
	case *AssignExpr:
		return m("AssignExpr", n.Span, "name", n.Name, "value", NodeToMap(n.Value))
	case *CallExpr:
		return m("CallExpr", n.Span,
			"callee", NodeToMap(n.Callee),
			"args", exprSlice(n.Args))
	case *FuncExpr:
		return m("FuncExpr", n.Span, "params", n.Params, "body", blockToMap(n.Body))

	// ---- Statements ----
	case *ExprStmt:
		return m("ExprStmt", n.Span, "expr", NodeToMap(n.Expr))
	case *PrintStmt:
		return m("PrintStmt", n.Span, "expr", NodeToMap(n.Expr))
	case *VarStmt:
		result := m("VarStmt", n.Span, "name", n.Name)
		if n.Init != nil {
			result["init"] = NodeToMap(n.Init)
		}
		return result
	case *ReturnStmt:
		result := m("ReturnStmt", n.Span)
		if n.Value != nil {
			result["value"] = NodeToMap(n.Value)
		}
		return result
	case *BlockStmt:
		return blockToMap(n)
	case *IfStmt:
		result := m("IfStmt", n.Span,
			"condition", NodeToMap(n.Condition),
			"then", NodeToMap(n.Then))
		if n.Else != nil {
			result["else"] = NodeToMap(n.Else)
		}
		return result
	case *WhileStmt:
		return m("WhileStmt", n.Span,
			"condition", NodeToMap(n.Condition),
			"body", NodeToMap(n.Body))
	case *FuncStmt:
		return m("FuncStmt", n.Span,
			"name", n.Name,
			"params", n.Params,
			"body", blockToMap(n.Body))

	default:
		return map[string]interface{}{"kind": "Unknown"}
	}
}

// ---- helpers ----

// m builds a map with kind, span, and extra key-value pairs.
func m(kind string, s span.Span, kvs ...interface{}) map[string]interface{} {
	result := map[string]interface{}{
		"kind": kind,
		"span": spanToMap(s),
	}
	for i := 0; i+1 < len(kvs); i += 2 {
		key := kvs[i].(string)
		result[key] = kvs[i+1]
	}
	return result
}

func spanToMap(s span.Span) map[string]interface{} {
	return map[string]interface{}{
		"start": map[string]interface{}{
			"offset": s.Start.Offset,
			"line":   s.Start.Line,
			"column": s.Start.Column,
		},
		"end": map[string]interface{}{
			"offset": s.End.Offset,
			"line":   s.End.Line,
			"column": s.End.Column,
		},
	}
}

func blockToMap(b *BlockStmt) map[string]interface{} {
	if b == nil {
		return nil
	}
	stmts := make([]interface{}, len(b.Stmts))
	for i, s := range b.Stmts {
		stmts[i] = NodeToMap(s)
	}
	return m("BlockStmt", b.Span, "stmts", stmts)
}

func exprSlice(exprs []Expr) []interface{} {
	result := make([]interface{}, len(exprs))
	for i, e := range exprs {
		result[i] = NodeToMap(e)
	}
	return result
}

func opStr(kind token.Kind) string {
	return kind.String()
}
