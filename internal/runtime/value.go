// Package runtime implements the tree-walking interpreter and value system for cbl.
package runtime

import (
	"cbl-lang/internal/ast"
	"fmt"
	"strconv"
)

// Value is the interface for all runtime values. The set is closed: only
// the types in this file implement it.
type Value interface {
	TypeName() string
	String() string
	value()
}

// ---- Primitive values ----

// NumberVal is the only numeric type; all numbers are float64.
type NumberVal float64

func (v NumberVal) TypeName() string { return "number" }
func (v NumberVal) String() string   { return FormatNumber(float64(v)) }
func (NumberVal) value()             {}

// StringVal represents a string value.
type StringVal string

func (v StringVal) TypeName() string { return "string" }
func (v StringVal) String() string   { return string(v) }
func (StringVal) value()             {}

// BoolVal represents a boolean value.
type BoolVal bool

func (v BoolVal) TypeName() string { return "boolean" }
func (v BoolVal) String() string   { return strconv.FormatBool(bool(v)) }
func (BoolVal) value()             {}

// NilVal represents nil.
type NilVal struct{}

func (v NilVal) TypeName() string { return "nil" }
func (v NilVal) String() string   { return "nil" }
func (NilVal) value()             {}

// ---- Callable values ----

// Callable is implemented by values that can appear as the callee of a call.
type Callable interface {
	Value
	Arity() int
	Call(in *Interpreter, args []Value) (Value, error)
}

// FuncVal represents a user-defined function or lambda together with the
// environment it was created in.
type FuncVal struct {
	Name    string // empty for lambdas
	Params  []string
	Body    *ast.BlockStmt
	Closure *Environment
}

func (v *FuncVal) TypeName() string { return "function" }
func (v *FuncVal) String() string {
	if v.Name == "" {
		return "<fn>"
	}
	return fmt.Sprintf("<fn %s>", v.Name)
}
func (*FuncVal) value()       {}
func (v *FuncVal) Arity() int { return len(v.Params) }

// Call runs the function body in a fresh environment parented on the closure.
func (v *FuncVal) Call(in *Interpreter, args []Value) (Value, error) {
	env := NewEnvironment(v.Closure)
	for idx, param := range v.Params {
		env.Define(param, args[idx])
	}

	result, err := in.execBlock(v.Body, env)
	if err != nil {
		return nil, err
	}
	if result.Signal == SigReturn {
		return result.Value, nil
	}
	return NilVal{}, nil
}

// BuiltinFn is the Go signature for built-in functions. Arity has already
// been checked when it is called.
type BuiltinFn func(in *Interpreter, args []Value) (Value, error)

// BuiltinVal represents a built-in (native) function.
type BuiltinVal struct {
	Name   string
	Params int
	Fn     BuiltinFn
}

func (v *BuiltinVal) TypeName() string { return "function" }
func (v *BuiltinVal) String() string   { return "<native fn>" }
func (*BuiltinVal) value()             {}
func (v *BuiltinVal) Arity() int       { return v.Params }

func (v *BuiltinVal) Call(in *Interpreter, args []Value) (Value, error) {
	return v.Fn(in, args)
}

// ---- Truthiness and equality ----

// IsTruthy reports whether v counts as true in a condition. Only nil and
// false are falsy; 0 and "" are truthy.
func IsTruthy(v Value) bool {
	switch val := v.(type) {
	case NilVal:
		return false
	case BoolVal:
		return bool(val)
	default:
		return true
	}
}

// ValuesEqual compares two values. Values of different kinds are never
// equal; functions compare by identity.
func ValuesEqual(a, b Value) bool {
	switch av := a.(type) {
	case NumberVal:
		bv, ok := b.(NumberVal)
		return ok && av == bv
	case StringVal:
		bv, ok := b.(StringVal)
		return ok && av == bv
	case BoolVal:
		bv, ok := b.(BoolVal)
		return ok && av == bv
	case NilVal:
		_, ok := b.(NilVal)
		return ok
	case *FuncVal:
		bv, ok := b.(*FuncVal)
		return ok && av == bv
	case *BuiltinVal:
		bv, ok := b.(*BuiltinVal)
		return ok && av == bv
	}
	return false
}

// FormatNumber prints integral values without a fraction ("3") and others in
// their shortest form ("2.5").
func FormatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// FromLiteral converts a literal produced by the lexer into a Value.
func FromLiteral(lit any) Value {
	switch v := lit.(type) {
	case float64:
		return NumberVal(v)
	case string:
		return StringVal(v)
	case bool:
		return BoolVal(v)
	default:
		return NilVal{}
	}
}
