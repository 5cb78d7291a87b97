package runtime

import (
	"cbl-lang/internal/ast"
	"cbl-lang/internal/diag"
	"cbl-lang/internal/span"
	"cbl-lang/internal/token"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/npillmayer/schuko/tracing"
)

// DefaultMaxDepth bounds nested calls when Config.MaxDepth is not set.
const DefaultMaxDepth = 1024

// ============================================================
// Control flow signals
// ============================================================

// ExecSignal represents a control flow signal from statement execution.
type ExecSignal int

const (
	SigNone   ExecSignal = iota
	SigReturn            // return from function
)

// ExecResult carries a control flow signal and an optional value (for return).
type ExecResult struct {
	Signal ExecSignal
	Value  Value
}

var resultNone = ExecResult{Signal: SigNone}

// ============================================================
// Runtime error
// ============================================================

// RuntimeError represents an error during interpretation. Execution stops
// at the first one.
type RuntimeError struct {
	Code    string
	Message string
	Span    span.Span
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error at %d:%d: %s", e.Span.Start.Line, e.Span.Start.Column, e.Message)
}

// Diagnostic converts the error to the form used for lexical and syntax errors.
func (e *RuntimeError) Diagnostic() diag.Diagnostic {
	return diag.Errorf(diag.StageRuntime, e.Code, e.Span, "%s", e.Message)
}

func runtimeErr(s span.Span, code string, format string, args ...interface{}) *RuntimeError {
	return &RuntimeError{Code: code, Message: fmt.Sprintf(format, args...), Span: s}
}

// builtinError is returned by built-in functions; the call site attaches
// its span.
type builtinError struct{ msg string }

func (e *builtinError) Error() string { return e.msg }

func errBuiltin(format string, args ...interface{}) error {
	return &builtinError{msg: fmt.Sprintf(format, args...)}
}

// ============================================================
// Interpreter
// ============================================================

// Config holds the settings for a new Interpreter. The zero value is usable.
type Config struct {
	// Globals, when set, is used as the global environment instead of a
	// fresh one. The caller is responsible for registering built-ins in it.
	Globals *Environment

	// MaxSteps limits loop iterations plus calls per Interpret; 0 = unlimited.
	MaxSteps int

	// MaxDepth limits nesting of function calls; <= 0 selects DefaultMaxDepth.
	MaxDepth int

	// Trace receives execution tracing; nil discards.
	Trace tracing.Trace
}

// Interpreter walks the AST and executes it.
type Interpreter struct {
	global *Environment
	env    *Environment
	output io.Writer
	trace  tracing.Trace
	now    func() time.Time

	maxSteps int
	maxDepth int
	steps    int
	depth    int
}

// NewInterpreter creates a new interpreter writing `print` output to output.
// Unless cfg.Globals is set, it gets its own global environment with the
// built-in functions registered.
func NewInterpreter(output io.Writer, cfg Config) *Interpreter {
	i := &Interpreter{
		global:   cfg.Globals,
		output:   output,
		trace:    cfg.Trace,
		now:      time.Now,
		maxSteps: cfg.MaxSteps,
		maxDepth: cfg.MaxDepth,
	}
	if i.trace == nil {
		i.trace = Quiet()
	}
	if i.maxDepth <= 0 {
		i.maxDepth = DefaultMaxDepth
	}
	if i.global == nil {
		i.global = NewEnvironment(nil)
		RegisterBuiltins(i.global)
	}
	i.env = i.global
	return i
}

// Interpret executes statements in order against the global environment.
// The first runtime error aborts the rest and is returned as a *RuntimeError.
func (i *Interpreter) Interpret(stmts []ast.Stmt) error {
	i.steps = 0
	i.depth = 0
	i.env = i.global

	for _, stmt := range stmts {
		if _, err := i.execStmt(stmt); err != nil {
			var rerr *RuntimeError
			if errors.As(err, &rerr) {
				i.trace.Debugf("runtime error %s at line %d", rerr.Code, rerr.Span.Start.Line)
			}
			return err
		}
	}
	i.trace.Debugf("interpret done: %d statements, %d steps", len(stmts), i.steps)
	return nil
}

// Globals returns the global environment (useful for the REPL).
func (i *Interpreter) Globals() *Environment {
	return i.global
}

// tick counts one loop iteration or call against the step budget.
func (i *Interpreter) tick(s span.Span) error {
	i.steps++
	if i.maxSteps > 0 && i.steps > i.maxSteps {
		return runtimeErr(s, diag.CodeStepBudget, "step budget of %d exceeded", i.maxSteps)
	}
	return nil
}

// ============================================================
// Statement execution
// ============================================================

func (i *Interpreter) execStmt(stmt ast.Stmt) (ExecResult, error) {
	switch s := stmt.(type) {
	case *ast.ExprStmt:
		_, err := i.evalExpr(s.Expr)
		return resultNone, err

	case *ast.PrintStmt:
		val, err := i.evalExpr(s.Expr)
		if err != nil {
			return resultNone, err
		}
		fmt.Fprintln(i.output, val.String())
		return resultNone, nil

	case *ast.VarStmt:
		var val Value = NilVal{}
		if s.Init != nil {
			v, err := i.evalExpr(s.Init)
			if err != nil {
				return resultNone, err
			}
			val = v
		}
		i.env.Define(s.Name, val)
		return resultNone, nil

	case *ast.ReturnStmt:
		var val Value = NilVal{}
		if s.Value != nil {
			v, err := i.evalExpr(s.Value)
			if err != nil {
				return resultNone, err
			}
			val = v
		}
		return ExecResult{Signal: SigReturn, Value: val}, nil

	case *ast.IfStmt:
		return i.execIf(s)

	case *ast.WhileStmt:
		return i.execWhile(s)

	case *ast.BlockStmt:
		return i.execBlock(s, NewEnvironment(i.env))

	case *ast.FuncStmt:
		i.env.Define(s.Name, &FuncVal{Name: s.Name, Params: s.Params, Body: s.Body, Closure: i.env})
		return resultNone, nil

	default:
		return resultNone, runtimeErr(stmt.GetSpan(), diag.CodeOperandType, "unhandled statement type: %T", stmt)
	}
}

func (i *Interpreter) execIf(s *ast.IfStmt) (ExecResult, error) {
	cond, err := i.evalExpr(s.Condition)
	if err != nil {
		return resultNone, err
	}
	if IsTruthy(cond) {
		return i.execStmt(s.Then)
	}
	if s.Else != nil {
		return i.execStmt(s.Else)
	}
	return resultNone, nil
}

func (i *Interpreter) execWhile(s *ast.WhileStmt) (ExecResult, error) {
	for {
		cond, err := i.evalExpr(s.Condition)
		if err != nil {
			return resultNone, err
		}
		if !IsTruthy(cond) {
			return resultNone, nil
		}
		if err := i.tick(s.Span); err != nil {
			return resultNone, err
		}

		result, err := i.execStmt(s.Body)
		if err != nil {
			return resultNone, err
		}
		if result.Signal == SigReturn {
			return result, nil
		}
	}
}

// execBlock runs a block in blockEnv and restores the previous environment
// on every exit path.
func (i *Interpreter) execBlock(block *ast.BlockStmt, blockEnv *Environment) (ExecResult, error) {
	prevEnv := i.env
	i.env = blockEnv
	defer func() { i.env = prevEnv }()

	for _, stmt := range block.Stmts {
		result, err := i.execStmt(stmt)
		if err != nil {
			return resultNone, err
		}
		if result.Signal != SigNone {
			return result, nil // propagate return
		}
	}
	return resultNone, nil
}

// ============================================================
// Expression evaluation
// ============================================================

func (i *Interpreter) evalExpr(expr ast.Expr) (Value, error) {
	switch e := expr.(type) {
	case *ast.LiteralExpr:
		return FromLiteral(e.Value), nil

	case *ast.GroupingExpr:
		return i.evalExpr(e.Inner)

	case *ast.VariableExpr:
		val, ok := i.env.Get(e.Name)
		if !ok {
			return nil, runtimeErr(e.Span, diag.CodeUndefinedVariable, "undefined variable '%s'", e.Name)
		}
		return val, nil

	case *ast.AssignExpr:
		val, err := i.evalExpr(e.Value)
		if err != nil {
			return nil, err
		}
		if !i.env.Assign(e.Name, val) {
			return nil, runtimeErr(e.Span, diag.CodeUndefinedVariable, "undefined variable '%s'", e.Name)
		}
		return val, nil

	case *ast.UnaryExpr:
		return i.evalUnary(e)

	case *ast.BinaryExpr:
		return i.evalBinary(e)

	case *ast.LogicalExpr:
		return i.evalLogical(e)

	case *ast.CallExpr:
		return i.evalCall(e)

	case *ast.FuncExpr:
		return &FuncVal{Params: e.Params, Body: e.Body, Closure: i.env}, nil

	default:
		return nil, runtimeErr(expr.GetSpan(), diag.CodeOperandType, "unhandled expression type: %T", expr)
	}
}

func (i *Interpreter) evalUnary(e *ast.UnaryExpr) (Value, error) {
	operand, err := i.evalExpr(e.Operand)
	if err != nil {
		return nil, err
	}

	switch e.Op {
	case token.MINUS:
		n, ok := operand.(NumberVal)
		if !ok {
			return nil, runtimeErr(e.Span, diag.CodeOperandType, "operand of '-' must be a number, got %s", operand.TypeName())
		}
		return -n, nil
	case token.BANG:
		return BoolVal(!IsTruthy(operand)), nil
	default:
		return nil, runtimeErr(e.Span, diag.CodeOperandType, "unknown unary operator: %s", e.Op)
	}
}

func (i *Interpreter) evalBinary(e *ast.BinaryExpr) (Value, error) {
	left, err := i.evalExpr(e.Left)
	if err != nil {
		return nil, err
	}
	right, err := i.evalExpr(e.Right)
	if err != nil {
		return nil, err
	}

	switch e.Op {
	case token.EQ:
		return BoolVal(ValuesEqual(left, right)), nil
	case token.NEQ:
		return BoolVal(!ValuesEqual(left, right)), nil
	case token.PLUS:
		if ls, ok := left.(StringVal); ok {
			if rs, ok := right.(StringVal); ok {
				return ls + rs, nil
			}
		}
		ln, lok := left.(NumberVal)
		rn, rok := right.(NumberVal)
		if !lok || !rok {
			return nil, runtimeErr(e.Span, diag.CodeOperandType,
				"operands of '+' must be two numbers or two strings, got %s and %s", left.TypeName(), right.TypeName())
		}
		return ln + rn, nil
	}

	ln, lok := left.(NumberVal)
	rn, rok := right.(NumberVal)
	if !lok || !rok {
		return nil, runtimeErr(e.Span, diag.CodeOperandType,
			"operands of '%s' must be numbers, got %s and %s", e.Op, left.TypeName(), right.TypeName())
	}

	switch e.Op {
	case token.MINUS:
		return ln - rn, nil
	case token.STAR:
		return ln * rn, nil
	case token.SLASH:
		if rn == 0 {
			return nil, runtimeErr(e.Span, diag.CodeDivisionByZero, "division by zero")
		}
		return ln / rn, nil
	case token.LT:
		return BoolVal(ln < rn), nil
	case token.LTE:
		return BoolVal(ln <= rn), nil
	case token.GT:
		return BoolVal(ln > rn), nil
	case token.GTE:
		return BoolVal(ln >= rn), nil
	default:
		return nil, runtimeErr(e.Span, diag.CodeOperandType, "unknown binary operator: %s", e.Op)
	}
}

// evalLogical returns the deciding operand itself, not a coerced boolean.
func (i *Interpreter) evalLogical(e *ast.LogicalExpr) (Value, error) {
	left, err := i.evalExpr(e.Left)
	if err != nil {
		return nil, err
	}
	if e.Op == token.KW_OR {
		if IsTruthy(left) {
			return left, nil
		}
	} else if !IsTruthy(left) {
		return left, nil
	}
	return i.evalExpr(e.Right)
}

func (i *Interpreter) evalCall(e *ast.CallExpr) (Value, error) {
	callee, err := i.evalExpr(e.Callee)
	if err != nil {
		return nil, err
	}

	args := make([]Value, len(e.Args))
	for idx, arg := range e.Args {
		val, err := i.evalExpr(arg)
		if err != nil {
			return nil, err
		}
		args[idx] = val
	}

	fn, ok := callee.(Callable)
	if !ok {
		return nil, runtimeErr(e.Span, diag.CodeNotCallable, "can only call functions, got %s", callee.TypeName())
	}
	if len(args) != fn.Arity() {
		return nil, runtimeErr(e.Span, diag.CodeArity, "expected %d arguments but got %d", fn.Arity(), len(args))
	}
	if err := i.tick(e.Span); err != nil {
		return nil, err
	}
	if i.depth >= i.maxDepth {
		return nil, runtimeErr(e.Span, diag.CodeStackOverflow, "stack overflow (call depth exceeds %d)", i.maxDepth)
	}

	i.depth++
	defer func() { i.depth-- }()

	result, err := fn.Call(i, args)
	if err != nil {
		var berr *builtinError
		if errors.As(err, &berr) {
			return nil, runtimeErr(e.Span, diag.CodeBuiltin, "%s", berr.msg)
		}
		return nil, err
	}
	return result, nil
}
