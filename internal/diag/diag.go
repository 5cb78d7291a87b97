// Package diag provides the diagnostic types shared by every stage.
package diag

import (
	"cbl-lang/internal/span"
	"fmt"
)

// Severity indicates the severity of a diagnostic.
type Severity int

const (
	Error Severity = iota
)

func (s Severity) String() string {
	switch s {
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Stage names the pipeline stage that produced a diagnostic.
type Stage string

const (
	StageLexical Stage = "lexical"
	StageSyntax  Stage = "syntax"
	StageRuntime Stage = "runtime"
)

// Stable diagnostic codes.
const (
	CodeUnterminatedString = "E1001"
	CodeUnexpectedChar     = "E1003"

	CodeExpectedToken      = "E2001"
	CodeExpectedExpression = "E2002"
	CodeInvalidAssignment  = "E2003"
	CodeTooManyArguments   = "E2004"
	CodeUnsupported        = "E2005"
	CodeTopLevelReturn     = "E2006"

	CodeUndefinedVariable = "E3001"
	CodeOperandType       = "E3002"
	CodeDivisionByZero    = "E3003"
	CodeNotCallable       = "E3004"
	CodeArity             = "E3005"
	CodeStackOverflow     = "E3006"
	CodeStepBudget        = "E3007"
	CodeBuiltin           = "E3008"
)

// Diagnostic represents a diagnostic message from any stage.
type Diagnostic struct {
	Code     string    `json:"code"`           // stable error code, e.g. "E1001"
	Severity Severity  `json:"severity"`       // error or warning
	Stage    Stage     `json:"stage"`          // lexical, syntax or runtime
	Message  string    `json:"message"`        // human-readable description
	Span     span.Span `json:"span"`           // source location
	Hint     string    `json:"hint,omitempty"` // optional hint
}

// Line returns the line the diagnostic points at.
func (d Diagnostic) Line() int {
	return d.Span.Start.Line
}

// String returns a human-readable representation of the diagnostic.
func (d Diagnostic) String() string {
	prefix := d.Severity.String()
	loc := fmt.Sprintf("%d:%d", d.Span.Start.Line, d.Span.Start.Column)
	msg := fmt.Sprintf("[%s] %s at %s: %s", d.Code, prefix, loc, d.Message)
	if d.Hint != "" {
		msg += " (hint: " + d.Hint + ")"
	}
	return msg
}

// Errorf creates an error diagnostic at the given span.
func Errorf(stage Stage, code string, s span.Span, format string, args ...interface{}) Diagnostic {
	return Diagnostic{
		Code:     code,
		Severity: Error,
		Stage:    stage,
		Message:  fmt.Sprintf(format, args...),
		Span:     s,
	}
}

// HasErrors reports whether any diagnostic has error severity.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == Error {
			return true
		}
	}
	return false
}
