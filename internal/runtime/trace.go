package runtime

import (
	"io"

	"github.com/npillmayer/schuko/tracing"
	"github.com/npillmayer/schuko/tracing/gologadapter"
)

// NewTrace returns a tracer writing to w at the given level.
func NewTrace(w io.Writer, level tracing.TraceLevel) tracing.Trace {
	t := gologadapter.New()
	t.SetOutput(w)
	t.SetTraceLevel(level)
	return t
}

// Quiet returns a tracer that drops everything.
func Quiet() tracing.Trace {
	return NewTrace(io.Discard, tracing.LevelError)
}
