package pipeline

import (
	"bytes"
	"cbl-lang/internal/diag"
	"cbl-lang/internal/runtime"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/npillmayer/schuko/tracing"
	"gopkg.in/yaml.v3"
)

type wantReport struct {
	Stage diag.Stage `yaml:"stage"`
	Code  string     `yaml:"code"`
	Line  int        `yaml:"line"`
}

type scenario struct {
	Name     string       `yaml:"name"`
	Source   string       `yaml:"source"`
	MaxSteps int          `yaml:"max_steps"`
	MaxDepth int          `yaml:"max_depth"`
	Output   []string     `yaml:"output"`
	Reports  []wantReport `yaml:"reports"`
}

func loadScenarios(t *testing.T) []scenario {
	t.Helper()
	file, err := os.Open(filepath.Join("..", "..", "testdata", "cases.yaml"))
	if err != nil {
		t.Fatalf("open cases: %v", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)

	var cases []scenario
	if err := decoder.Decode(&cases); err != nil {
		t.Fatalf("decode cases: %v", err)
	}
	if len(cases) == 0 {
		t.Fatal("no cases loaded")
	}
	return cases
}

func TestScenarios(t *testing.T) {
	for _, tc := range loadScenarios(t) {
		t.Run(tc.Name, func(t *testing.T) {
			res := Run(tc.Source, Options{MaxSteps: tc.MaxSteps, MaxDepth: tc.MaxDepth})

			if !reflect.DeepEqual(res.Output, tc.Output) {
				t.Errorf("output = %q, want %q", res.Output, tc.Output)
			}
			if res.OK != (len(tc.Reports) == 0) {
				t.Errorf("OK = %v with reports %v", res.OK, res.Reports)
			}

			got := make([]wantReport, len(res.Reports))
			for i, r := range res.Reports {
				got[i] = wantReport{Stage: r.Stage, Code: r.Code, Line: r.Line}
			}
			if len(got) != len(tc.Reports) || (len(got) > 0 && !reflect.DeepEqual(got, tc.Reports)) {
				t.Errorf("reports = %+v, want %+v\nfull: %v", got, tc.Reports, res.Reports)
			}
		})
	}
}

func TestRunIsIdempotent(t *testing.T) {
	src := "var x = 2; fun sq(n) { return n * n; } print sq(x); print sq(sq(x));"
	first := Run(src, Options{})
	second := Run(src, Options{})
	if !reflect.DeepEqual(first, second) {
		t.Errorf("runs differ: %+v vs %+v", first, second)
	}
	if !reflect.DeepEqual(first.Output, []string{"4", "16"}) {
		t.Errorf("unexpected output %q", first.Output)
	}
}

func TestRunEmptySource(t *testing.T) {
	res := Run("", Options{})
	if !res.OK || len(res.Output) != 0 || len(res.Reports) != 0 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestReportString(t *testing.T) {
	res := Run("print x;", Options{})
	if len(res.Reports) != 1 {
		t.Fatalf("expected one report, got %v", res.Reports)
	}
	want := "[E3001] runtime error at 1:7: undefined variable 'x'"
	if got := res.Reports[0].String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestReportCarriesHint(t *testing.T) {
	res := Run("print a | b;", Options{})
	if len(res.Reports) != 1 {
		t.Fatalf("expected only the lexical report, got %v", res.Reports)
	}
	want := "[E1003] lexical error at 1:9: unexpected character: '|' (hint: did you mean 'or'?)"
	if got := res.Reports[0].String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSessionKeepsGlobals(t *testing.T) {
	s := NewSession(Options{})

	if res := s.Eval("var total = 10;"); !res.OK {
		t.Fatalf("first eval failed: %v", res.Reports)
	}
	if res := s.Eval("fun add(n) { total = total + n; }"); !res.OK {
		t.Fatalf("second eval failed: %v", res.Reports)
	}
	if res := s.Eval("add(5); print undefinedName;"); res.OK {
		t.Fatal("expected runtime error")
	}

	res := s.Eval("print total;")
	if !res.OK || !reflect.DeepEqual(res.Output, []string{"15"}) {
		t.Errorf("expected state from earlier evals, got %+v", res)
	}

	names := s.Globals().Names()
	if !contains(names, "total") || !contains(names, "add") {
		t.Errorf("globals missing definitions: %v", names)
	}
}

func TestSessionSyntaxErrorRunsNothing(t *testing.T) {
	s := NewSession(Options{})
	res := s.Eval("var a = 1; print a")
	if res.OK || len(res.Output) != 0 {
		t.Fatalf("expected failure without output, got %+v", res)
	}
	if again := s.Eval("print a;"); again.OK {
		t.Error("a must not be defined after a syntax error")
	}
}

func TestIsIncomplete(t *testing.T) {
	cases := []struct {
		src  string
		want bool
	}{
		{"fun f() {", true},
		{"print 1", true},
		{`print "abc`, true},
		{"if (a", true},
		{"print 1;", false},
		{"print );", false},
		{"var = 1", false},
		{"print 1 / 0;", false},
	}
	for _, tc := range cases {
		res := Run(tc.src, Options{})
		if got := IsIncomplete(res.Reports); got != tc.want {
			t.Errorf("IsIncomplete(%q) = %v, want %v (reports %v)", tc.src, got, tc.want, res.Reports)
		}
	}
}

func TestTraceStages(t *testing.T) {
	var buf bytes.Buffer
	Run("print 1;", Options{Trace: runtime.NewTrace(&buf, tracing.LevelDebug)})

	out := buf.String()
	for _, want := range []string{"scanned: 4 tokens", "parsed: 1 statements", "interpreted: 1 lines", "interpret done"} {
		if !strings.Contains(out, want) {
			t.Errorf("trace missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	Run("print 1;", Options{Trace: runtime.NewTrace(&buf, tracing.LevelError)})
	if buf.Len() != 0 {
		t.Errorf("debug trace written at error level: %q", buf.String())
	}
}

func TestAnalyzeDoesNotExecute(t *testing.T) {
	tokens, stmts, diags := Analyze("print 1 / 0;", Options{})
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics %v", diags)
	}
	if len(stmts) != 1 || len(tokens) != 6 {
		t.Errorf("got %d statements, %d tokens", len(stmts), len(tokens))
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
