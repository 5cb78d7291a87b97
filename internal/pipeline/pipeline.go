// Package pipeline composes scanning, parsing and interpretation into a
// single call that takes source text and returns printed output or
// structured errors. It does no I/O of its own, so drivers (the CLI, the
// REPL, an embedding host) only relay what it returns.
package pipeline

import (
	"bytes"
	"cbl-lang/internal/ast"
	"cbl-lang/internal/diag"
	"cbl-lang/internal/lexer"
	"cbl-lang/internal/parser"
	"cbl-lang/internal/runtime"
	"cbl-lang/internal/token"
	"errors"
	"fmt"
	"strings"

	"github.com/npillmayer/schuko/tracing"
)

// Options bounds and instruments a run.
type Options struct {
	MaxSteps int          // loop iterations plus calls; 0 = unlimited
	MaxDepth int          // nested calls; 0 = runtime.DefaultMaxDepth
	Trace    tracing.Trace // stage tracing; nil discards
}

func (o Options) tracer() tracing.Trace {
	if o.Trace != nil {
		return o.Trace
	}
	return runtime.Quiet()
}

func (o Options) interpreterConfig() runtime.Config {
	return runtime.Config{
		MaxSteps: o.MaxSteps,
		MaxDepth: o.MaxDepth,
		Trace:    o.tracer(),
	}
}

// Report is one error in the form handed to drivers.
type Report struct {
	Stage   diag.Stage `json:"stage"`
	Code    string     `json:"code"`
	Line    int        `json:"line"`
	Column  int        `json:"column"`
	Message string     `json:"message"`
	Hint    string     `json:"hint,omitempty"`
}

func (r Report) String() string {
	s := fmt.Sprintf("[%s] %s error at %d:%d: %s", r.Code, r.Stage, r.Line, r.Column, r.Message)
	if r.Hint != "" {
		s += " (hint: " + r.Hint + ")"
	}
	return s
}

// ReportFromDiagnostic converts a diagnostic into a Report.
func ReportFromDiagnostic(d diag.Diagnostic) Report {
	return Report{
		Stage:   d.Stage,
		Code:    d.Code,
		Line:    d.Span.Start.Line,
		Column:  d.Span.Start.Column,
		Message: d.Message,
		Hint:    d.Hint,
	}
}

// Result is the outcome of a run. Output holds every line printed before
// the run ended, including the lines printed before a runtime error.
type Result struct {
	Output  []string `json:"output"`
	Reports []Report `json:"reports,omitempty"`
	OK      bool     `json:"ok"`
}

// Run scans, parses and interprets source in a fresh interpreter. Lexical
// and syntax errors are reported together and prevent interpretation.
func Run(source string, opts Options) *Result {
	var out bytes.Buffer
	interp := runtime.NewInterpreter(&out, opts.interpreterConfig())
	return execute(interp, &out, source, opts.tracer())
}

// Analyze runs the scanner and parser only.
func Analyze(source string, opts Options) ([]token.Token, []ast.Stmt, []diag.Diagnostic) {
	trace := opts.tracer()

	tokens, lexDiags := lexer.New(source).Tokenize()
	trace.Debugf("scanned: %d tokens, %d errors", len(tokens), len(lexDiags))

	stmts, parseDiags := parser.New(tokens).Parse()
	trace.Debugf("parsed: %d statements, %d errors", len(stmts), len(parseDiags))

	return tokens, stmts, append(lexDiags, parseDiags...)
}

func execute(interp *runtime.Interpreter, out *bytes.Buffer, source string, trace tracing.Trace) *Result {
	_, stmts, diags := Analyze(source, Options{Trace: trace})

	result := &Result{}
	for _, d := range diags {
		result.Reports = append(result.Reports, ReportFromDiagnostic(d))
	}
	if diag.HasErrors(diags) {
		trace.Debugf("skipping interpretation: %d errors", len(result.Reports))
		return result
	}

	err := interp.Interpret(stmts)
	result.Output = splitLines(out.String())
	if err != nil {
		var rerr *runtime.RuntimeError
		if !errors.As(err, &rerr) {
			rerr = &runtime.RuntimeError{Code: diag.CodeBuiltin, Message: err.Error()}
		}
		result.Reports = append(result.Reports, ReportFromDiagnostic(rerr.Diagnostic()))
		trace.Debugf("interpreted: %d lines, error %s", len(result.Output), rerr.Code)
		return result
	}

	trace.Debugf("interpreted: %d lines", len(result.Output))
	result.OK = true
	return result
}

func splitLines(s string) []string {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// IsIncomplete reports whether the errors could be fixed by appending more
// input: an unterminated string (which always runs to end of input, so the
// parser errors that follow it are consequences), or only syntax errors at
// end of input. The REPL uses it to keep reading lines.
func IsIncomplete(reports []Report) bool {
	if len(reports) == 0 {
		return false
	}
	for _, r := range reports {
		if r.Code == diag.CodeUnterminatedString {
			return true
		}
	}
	for _, r := range reports {
		if r.Stage != diag.StageSyntax || !strings.HasSuffix(r.Message, " at end") {
			return false
		}
	}
	return true
}

// Session keeps one interpreter, and so one set of globals, across Eval
// calls.
type Session struct {
	interp *runtime.Interpreter
	out    *bytes.Buffer
	trace  tracing.Trace
}

// NewSession creates a session with its own global environment.
func NewSession(opts Options) *Session {
	out := &bytes.Buffer{}
	return &Session{
		interp: runtime.NewInterpreter(out, opts.interpreterConfig()),
		out:    out,
		trace:  opts.tracer(),
	}
}

// Eval runs source against the session's globals. Definitions from earlier
// successful or partially successful calls stay visible.
func (s *Session) Eval(source string) *Result {
	s.out.Reset()
	return execute(s.interp, s.out, source, s.trace)
}

// Globals returns the session's global environment.
func (s *Session) Globals() *runtime.Environment {
	return s.interp.Globals()
}
