package runtime

import (
	"time"
	"unicode/utf8"
)

// RegisterBuiltins adds the built-in functions to the given environment.
func RegisterBuiltins(env *Environment) {
	define := func(name string, params int, fn BuiltinFn) {
		env.Define(name, &BuiltinVal{Name: name, Params: params, Fn: fn})
	}

	define("clock", 0, func(in *Interpreter, args []Value) (Value, error) {
		return NumberVal(float64(in.now().UnixNano()) / float64(time.Second)), nil
	})

	define("len", 1, func(in *Interpreter, args []Value) (Value, error) {
		s, ok := args[0].(StringVal)
		if !ok {
			return nil, errBuiltin("len() expects a string, got %s", args[0].TypeName())
		}
		return NumberVal(utf8.RuneCountInString(string(s))), nil
	})

	define("str", 1, func(in *Interpreter, args []Value) (Value, error) {
		return StringVal(args[0].String()), nil
	})

	define("type", 1, func(in *Interpreter, args []Value) (Value, error) {
		return StringVal(args[0].TypeName()), nil
	})
}
