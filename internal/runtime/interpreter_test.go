package runtime

import (
	"bytes"
	"cbl-lang/internal/ast"
	"cbl-lang/internal/diag"
	"cbl-lang/internal/lexer"
	"cbl-lang/internal/parser"
	"errors"
	"strings"
	"testing"
	"time"
)

// parseSource scans and parses source, failing the test on any diagnostic.
func parseSource(t *testing.T, source string) []ast.Stmt {
	t.Helper()
	tokens, lexDiags := lexer.New(source).Tokenize()
	stmts, parseDiags := parser.New(tokens).Parse()
	for _, d := range append(lexDiags, parseDiags...) {
		t.Fatalf("unexpected diagnostic: %s", d)
	}
	return stmts
}

// runSource parses and executes source code, returning captured output and any error.
func runSource(t *testing.T, source string, cfg Config) (string, error) {
	t.Helper()
	stmts := parseSource(t, source)

	var buf bytes.Buffer
	interp := NewInterpreter(&buf, cfg)
	err := interp.Interpret(stmts)
	return buf.String(), err
}

func expectOutput(t *testing.T, source, expected string) {
	t.Helper()
	out, err := runSource(t, source, Config{})
	if err != nil {
		t.Fatalf("runtime error: %v", err)
	}
	if strings.TrimRight(out, "\n") != strings.TrimRight(expected, "\n") {
		t.Errorf("output mismatch:\nexpected: %q\ngot:      %q", expected, out)
	}
}

// expectError checks the error code and message fragment and returns the error.
func expectError(t *testing.T, source, code, contains string) *RuntimeError {
	t.Helper()
	return expectErrorWith(t, Config{}, source, code, contains)
}

func expectErrorWith(t *testing.T, cfg Config, source, code, contains string) *RuntimeError {
	t.Helper()
	_, err := runSource(t, source, cfg)
	if err == nil {
		t.Fatalf("expected error containing %q, got nil", contains)
	}
	var rerr *RuntimeError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected *RuntimeError, got %T: %v", err, err)
	}
	if rerr.Code != code {
		t.Errorf("expected code %s, got %s (%v)", code, rerr.Code, rerr)
	}
	if !strings.Contains(rerr.Message, contains) {
		t.Errorf("expected error containing %q, got: %v", contains, err)
	}
	return rerr
}

// ---- Tests ----

func TestPrintLiterals(t *testing.T) {
	expectOutput(t, `print 42;`, "42\n")
	expectOutput(t, `print 2.5;`, "2.5\n")
	expectOutput(t, `print "hello";`, "hello\n")
	expectOutput(t, `print true;`, "true\n")
	expectOutput(t, `print nil;`, "nil\n")
}

func TestArithmetic(t *testing.T) {
	expectOutput(t, `print 1 + 2 * 3;`, "7\n")
	expectOutput(t, `print (1 + 2) * 3;`, "9\n")
	expectOutput(t, `print 10 / 4;`, "2.5\n")
	expectOutput(t, `print 10 - 4 - 3;`, "3\n")
	expectOutput(t, `print -3 * -2;`, "6\n")
	expectOutput(t, `print 0.1 + 0.2;`, "0.30000000000000004\n")
	expectOutput(t, `print 1 < 2; print 2 <= 2; print 1 > 2; print 3 >= 4;`, "true\ntrue\nfalse\nfalse\n")
}

func TestStringConcat(t *testing.T) {
	expectOutput(t, `print "chess" + "rules";`, "chessrules\n")
	expectOutput(t, `var a = "x"; a = a + a; print a;`, "xx\n")
}

func TestTruthiness(t *testing.T) {
	expectOutput(t, `if (0) print "zero"; else print "no";`, "zero\n")
	expectOutput(t, `if ("") print "empty"; else print "no";`, "empty\n")
	expectOutput(t, `if (nil) print "nil"; else print "no";`, "no\n")
	expectOutput(t, `if (false) print "false"; else print "no";`, "no\n")
	expectOutput(t, `print !nil; print !0; print !!"";`, "true\nfalse\ntrue\n")
}

func TestEquality(t *testing.T) {
	expectOutput(t, `
print 1 == 1;
print "a" == "a";
print nil == nil;
print 1 == "1";
print nil == false;
print 1 != 2;
`, "true\ntrue\ntrue\nfalse\nfalse\ntrue\n")
}

func TestFunctionEqualityIsIdentity(t *testing.T) {
	expectOutput(t, `
fun f() {}
fun g() {}
var h = f;
print f == h;
print f == g;
print clock == clock;
`, "true\nfalse\ntrue\n")
}

func TestLogicalReturnsOperand(t *testing.T) {
	expectOutput(t, `print nil or "x";`, "x\n")
	expectOutput(t, `print 1 and 2;`, "2\n")
	expectOutput(t, `print "a" or undefinedVar;`, "a\n")
	expectOutput(t, `print false and undefinedVar;`, "false\n")
}

func TestBlockScoping(t *testing.T) {
	expectOutput(t, `var a = 1; { var a = 2; } print a;`, "1\n")
	expectOutput(t, `
var a = "global";
{
  var a = "inner";
  print a;
}
print a;
`, "inner\nglobal\n")
}

func TestAssignmentReachesOuterScope(t *testing.T) {
	expectOutput(t, `var a = 1; { a = 2; } print a;`, "2\n")
	expectOutput(t, `var a; var b; a = b = 3; print a; print b;`, "3\n3\n")
}

func TestRedeclarationOverwrites(t *testing.T) {
	expectOutput(t, `var a = 1; var a = 2; print a;`, "2\n")
	expectOutput(t, `{ var a = 1; var a = a + 1; print a; }`, "2\n")
}

func TestUninitializedVarIsNil(t *testing.T) {
	expectOutput(t, `var a; print a;`, "nil\n")
}

func TestFunctionReturn(t *testing.T) {
	expectOutput(t, `fun f() { return 1 + 2; } print f();`, "3\n")
	expectOutput(t, `fun f() { } print f();`, "nil\n")
	expectOutput(t, `fun f() { return; } print f();`, "nil\n")
}

func TestReturnUnwindsLoops(t *testing.T) {
	expectOutput(t, `
fun first(n) {
  for (var i = 0; ; i = i + 1) {
    while (true) {
      if (i * i > n) return i;
      i = i + 1;
    }
  }
}
print first(10);
`, "4\n")
}

func TestFunctionFormatting(t *testing.T) {
	expectOutput(t, `fun f() {} print f; print clock; print fun () {};`, "<fn f>\n<native fn>\n<fn>\n")
}

func TestClosureCounter(t *testing.T) {
	expectOutput(t, `
fun makeCounter() {
  var i = 0;
  fun count() {
    i = i + 1;
    return i;
  }
  return count;
}
var c = makeCounter();
print c();
print c();
var d = makeCounter();
print d();
print c();
`, "1\n2\n1\n3\n")
}

func TestClosureSeesLaterAssignment(t *testing.T) {
	expectOutput(t, `
var x = "before";
fun show() { print x; }
x = "after";
show();
`, "after\n")
}

func TestLambda(t *testing.T) {
	expectOutput(t, `var add = fun (a, b) { return a + b; }; print add(1, 2);`, "3\n")
	expectOutput(t, `
fun apply(f, v) { return f(v); }
print apply(fun (n) { return n * n; }, 7);
`, "49\n")
}

func TestRecursion(t *testing.T) {
	expectOutput(t, `
fun fib(n) {
  if (n < 2) return n;
  return fib(n - 1) + fib(n - 2);
}
print fib(15);
`, "610\n")
}

func TestLoops(t *testing.T) {
	expectOutput(t, `for (var i = 0; i < 3; i = i + 1) print i;`, "0\n1\n2\n")
	expectOutput(t, `var i = 3; while (i > 0) { print i; i = i - 1; }`, "3\n2\n1\n")
}

func TestForLoopVariableIsScoped(t *testing.T) {
	expectError(t, `for (var i = 0; i < 1; i = i + 1) {} print i;`, diag.CodeUndefinedVariable, "undefined variable 'i'")
}

func TestArgumentsEvaluatedLeftToRight(t *testing.T) {
	expectOutput(t, `
var log = "";
fun note(s) { log = log + s; return s; }
fun three(a, b, c) { return a + b + c; }
print three(note("a"), note("b"), note("c"));
print log;
`, "abc\nabc\n")
}

// ---- Errors ----

func TestUndefinedVariable(t *testing.T) {
	expectError(t, `print x;`, diag.CodeUndefinedVariable, "undefined variable 'x'")
	expectError(t, `x = 1;`, diag.CodeUndefinedVariable, "undefined variable 'x'")
}

func TestOperandTypeErrors(t *testing.T) {
	expectError(t, `print 1 + "a";`, diag.CodeOperandType, "two numbers or two strings")
	expectError(t, `print "a" - "b";`, diag.CodeOperandType, "must be numbers")
	expectError(t, `print "a" < "b";`, diag.CodeOperandType, "must be numbers")
	expectError(t, `print -"a";`, diag.CodeOperandType, "must be a number")
	expectError(t, `print nil * 2;`, diag.CodeOperandType, "got nil and number")
}

func TestDivisionByZero(t *testing.T) {
	expectError(t, `print 1 / 0;`, diag.CodeDivisionByZero, "division by zero")
	expectOutput(t, `print 0 / 1;`, "0\n")
}

func TestNotCallable(t *testing.T) {
	expectError(t, `"s"();`, diag.CodeNotCallable, "can only call functions")
	expectError(t, `var x = 1; x(2);`, diag.CodeNotCallable, "got number")
}

func TestArityMismatch(t *testing.T) {
	expectError(t, `fun f(a) {} f();`, diag.CodeArity, "expected 1 arguments but got 0")
	expectError(t, `fun f() {} f(1, 2);`, diag.CodeArity, "expected 0 arguments but got 2")
	expectError(t, `len();`, diag.CodeArity, "expected 1 arguments but got 0")
	expectError(t, `fun p(a, b) {} p(1);`, diag.CodeArity, "expected 2 arguments but got 1")
	expectError(t, `fun p(a, b) {} p(1, 2, 3);`, diag.CodeArity, "expected 2 arguments but got 3")
}

func TestStackOverflow(t *testing.T) {
	expectError(t, `fun f() { return f(); } f();`, diag.CodeStackOverflow, "stack overflow")
	expectErrorWith(t, Config{MaxDepth: 10}, `fun f(n) { return f(n + 1); } f(0);`, diag.CodeStackOverflow, "exceeds 10")
}

func TestStepBudget(t *testing.T) {
	expectErrorWith(t, Config{MaxSteps: 100}, `while (true) {}`, diag.CodeStepBudget, "step budget of 100 exceeded")

	out, err := runSource(t, `for (var i = 0; i < 5; i = i + 1) print i;`, Config{MaxSteps: 5})
	if err != nil {
		t.Fatalf("loop within budget failed: %v", err)
	}
	if out != "0\n1\n2\n3\n4\n" {
		t.Errorf("got %q", out)
	}
}

func TestStepBudgetResetsPerInterpret(t *testing.T) {
	var buf bytes.Buffer
	interp := NewInterpreter(&buf, Config{MaxSteps: 3})
	stmts := parseSource(t, `for (var i = 0; i < 3; i = i + 1) {}`)
	for n := 0; n < 3; n++ {
		if err := interp.Interpret(stmts); err != nil {
			t.Fatalf("run %d: %v", n, err)
		}
	}
}

func TestErrorAbortsRemainingStatements(t *testing.T) {
	out, err := runSource(t, "print 1;\nprint x;\nprint 2;", Config{})
	if err == nil {
		t.Fatal("expected error")
	}
	if out != "1\n" {
		t.Errorf("expected only the first print, got %q", out)
	}
	var rerr *RuntimeError
	if !errors.As(err, &rerr) || rerr.Span.Start.Line != 2 {
		t.Errorf("expected error on line 2, got %v", err)
	}
}

func TestErrorInsideFunctionReportsInnerLine(t *testing.T) {
	rerr := expectError(t, "fun f() {\n  return 1 +\n    nil;\n}\nf();", diag.CodeOperandType, "two numbers")
	if rerr.Span.Start.Line != 2 {
		t.Errorf("expected line 2, got %d", rerr.Span.Start.Line)
	}
}

func TestEnvironmentRestoredAfterError(t *testing.T) {
	var buf bytes.Buffer
	interp := NewInterpreter(&buf, Config{})

	if err := interp.Interpret(parseSource(t, `var a = 1; { var a = 2; print b; }`)); err == nil {
		t.Fatal("expected error")
	}
	if err := interp.Interpret(parseSource(t, `print a;`)); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if buf.String() != "1\n" {
		t.Errorf("expected global a, got %q", buf.String())
	}
}

func TestRuntimeErrorDiagnostic(t *testing.T) {
	rerr := expectError(t, "var a = 1;\nprint a / 0;", diag.CodeDivisionByZero, "division by zero")
	d := rerr.Diagnostic()
	if d.Stage != diag.StageRuntime || d.Code != diag.CodeDivisionByZero || d.Line() != 2 {
		t.Errorf("unexpected diagnostic %+v", d)
	}
	if !strings.HasPrefix(rerr.Error(), "runtime error at 2:7") {
		t.Errorf("unexpected error text %q", rerr.Error())
	}
}

// ---- Built-ins ----

func TestBuiltins(t *testing.T) {
	expectOutput(t, `print len("héllo");`, "5\n")
	expectOutput(t, `print str(3) + "x";`, "3x\n")
	expectOutput(t, `print str(nil);`, "nil\n")
	expectOutput(t, `print type(1); print type("s"); print type(nil); print type(true); print type(clock);`,
		"number\nstring\nnil\nboolean\nfunction\n")
	expectError(t, `len(1);`, diag.CodeBuiltin, "len() expects a string")
}

func TestClock(t *testing.T) {
	var buf bytes.Buffer
	interp := NewInterpreter(&buf, Config{})
	interp.now = func() time.Time { return time.Unix(1700000000, 500_000_000) }

	if err := interp.Interpret(parseSource(t, `print clock();`)); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "1700000000.5\n" {
		t.Errorf("got %q", buf.String())
	}
}

// ---- Interpreter instances ----

func TestInterpretersAreIndependent(t *testing.T) {
	var a, b bytes.Buffer
	first := NewInterpreter(&a, Config{})
	second := NewInterpreter(&b, Config{})

	if err := first.Interpret(parseSource(t, `var shared = 1;`)); err != nil {
		t.Fatal(err)
	}
	err := second.Interpret(parseSource(t, `print shared;`))
	var rerr *RuntimeError
	if !errors.As(err, &rerr) || rerr.Code != diag.CodeUndefinedVariable {
		t.Errorf("expected undefined variable in second interpreter, got %v", err)
	}
}

func TestSharedGlobals(t *testing.T) {
	globals := NewEnvironment(nil)
	RegisterBuiltins(globals)

	var buf bytes.Buffer
	if err := NewInterpreter(&buf, Config{Globals: globals}).Interpret(parseSource(t, `var n = 41;`)); err != nil {
		t.Fatal(err)
	}
	if err := NewInterpreter(&buf, Config{Globals: globals}).Interpret(parseSource(t, `print n + 1;`)); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "42\n" {
		t.Errorf("got %q", buf.String())
	}
}

func TestRunIsRepeatable(t *testing.T) {
	src := `
fun makeAdder(n) { return fun (x) { return x + n; }; }
var add2 = makeAdder(2);
print add2(40);
`
	first, err1 := runSource(t, src, Config{})
	second, err2 := runSource(t, src, Config{})
	if err1 != nil || err2 != nil {
		t.Fatalf("errors: %v, %v", err1, err2)
	}
	if first != second || first != "42\n" {
		t.Errorf("runs differ: %q vs %q", first, second)
	}
}
