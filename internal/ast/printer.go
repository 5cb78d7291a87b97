package ast

import (
	"strconv"
	"strings"
)

// Print renders a node in a parenthesized prefix form, e.g.
// "(* (- 123) (group 45.67))". It is used by the `ast` CLI command and by
// parser tests to check tree shape without spelling out node structs.
func Print(node Node) string {
	var sb strings.Builder
	writeNode(&sb, node)
	return sb.String()
}

// PrintProgram renders every statement on its own line.
func PrintProgram(stmts []Stmt) string {
	lines := make([]string, len(stmts))
	for i, s := range stmts {
		lines[i] = Print(s)
	}
	return strings.Join(lines, "\n")
}

// FormatLiteral renders a literal value the way the language prints it.
func FormatLiteral(v any) string {
	switch val := v.(type) {
	case nil:
		return "nil"
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case string:
		return val
	default:
		return "?"
	}
}

func writeNode(sb *strings.Builder, node Node) {
	switch n := node.(type) {
	case nil:
		sb.WriteString("<nil>")

	// ---- Expressions ----
	case *LiteralExpr:
		if s, ok := n.Value.(string); ok {
			sb.WriteString(strconv.Quote(s))
			return
		}
		sb.WriteString(FormatLiteral(n.Value))
	case *GroupingExpr:
		parenthesize(sb, "group", n.Inner)
	case *UnaryExpr:
		parenthesize(sb, n.Op.String(), n.Operand)
	case *BinaryExpr:
		parenthesize(sb, n.Op.String(), n.Left, n.Right)
	case *LogicalExpr:
		parenthesize(sb, n.Op.String(), n.Left, n.Right)
	case *VariableExpr:
		sb.WriteString(n.Name)
	case *AssignExpr:
		parenthesize(sb, "= "+n.Name, n.Value)
	case *CallExpr:
		nodes := make([]Node, 0, len(n.Args)+1)
		nodes = append(nodes, n.Callee)
		for _, a := range n.Args {
			nodes = append(nodes, a)
		}
		parenthesize(sb, "call", nodes...)
	case *FuncExpr:
		parenthesize(sb, "fun ("+strings.Join(n.Params, " ")+")", n.Body)

	// ---- Statements ----
	case *ExprStmt:
		parenthesize(sb, ";", n.Expr)
	case *PrintStmt:
		parenthesize(sb, "print", n.Expr)
	case *VarStmt:
		if n.Init == nil {
			sb.WriteString("(var " + n.Name + ")")
			return
		}
		parenthesize(sb, "var "+n.Name, n.Init)
	case *BlockStmt:
		if n == nil {
			sb.WriteString("<nil>")
			return
		}
		nodes := make([]Node, len(n.Stmts))
		for i, s := range n.Stmts {
			nodes[i] = s
		}
		parenthesize(sb, "block", nodes...)
	case *IfStmt:
		if n.Else == nil {
			parenthesize(sb, "if", n.Condition, n.Then)
			return
		}
		parenthesize(sb, "if", n.Condition, n.Then, n.Else)
	case *WhileStmt:
		parenthesize(sb, "while", n.Condition, n.Body)
	case *FuncStmt:
		parenthesize(sb, "fun "+n.Name+"("+strings.Join(n.Params, " ")+")", n.Body)
	case *ReturnStmt:
		if n.Value == nil {
			sb.WriteString("(return)")
			return
		}
		parenthesize(sb, "return", n.Value)

	default:
		sb.WriteString("<unknown>")
	}
}

func parenthesize(sb *strings.Builder, name string, nodes ...Node) {
	sb.WriteString("(")
	sb.WriteString(name)
	for _, n := range nodes {
		sb.WriteString(" ")
		writeNode(sb, n)
	}
	sb.WriteString(")")
}
