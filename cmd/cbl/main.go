// Command cbl is the CLI entry point for the cbl language.
//
// Usage:
//
//	cbl [-config file] [-v] tokens <file> [--json]   Print tokens
//	cbl [-config file] [-v] parse  <file>            Print AST as JSON
//	cbl [-config file] [-v] ast    <file>            Print AST in prefix form
//	cbl [-config file] [-v] run    <file>            Run a source file
//	cbl [-config file] [-v] repl                     Start interactive REPL
//
// Exit status is 65 for lexical or syntax errors and 70 for runtime errors.
package main

import (
	"cbl-lang/internal/ast"
	"cbl-lang/internal/config"
	"cbl-lang/internal/diag"
	"cbl-lang/internal/lexer"
	"cbl-lang/internal/pipeline"
	"cbl-lang/internal/runtime"
	"fmt"
	"io"
	"os"

	"github.com/npillmayer/schuko/tracing"
)

const (
	exitOK       = 0
	exitUsage    = 1
	exitDataErr  = 65 // lexical or syntax error
	exitSoftware = 70 // runtime error
)

// cli carries what every command needs.
type cli struct {
	stdout io.Writer
	stderr io.Writer
	cfg    *config.Config
	trace  tracing.Trace
	json   bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	var (
		configPath string
		verbose    bool
		jsonMode   bool
		positional []string
	)
	for i := 0; i < len(args); i++ {
		switch arg := args[i]; arg {
		case "-config", "--config":
			if i+1 >= len(args) {
				fmt.Fprintln(stderr, "error: -config needs a file argument")
				return exitUsage
			}
			i++
			configPath = args[i]
		case "-v", "--verbose":
			verbose = true
		case "--json":
			jsonMode = true
		default:
			positional = append(positional, arg)
		}
	}

	if len(positional) < 1 {
		usage(stderr)
		return exitUsage
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitUsage
	}

	level := tracing.LevelError
	if verbose {
		level = tracing.LevelDebug
	}
	c := &cli{
		stdout: stdout,
		stderr: stderr,
		cfg:    cfg,
		trace:  runtime.NewTrace(stderr, level),
		json:   jsonMode,
	}
	if cfg.Path != "" {
		c.trace.Debugf("loaded config %s", cfg.Path)
	}

	command := positional[0]
	if command == "repl" {
		return c.cmdRepl()
	}

	switch command {
	case "tokens", "parse", "ast", "run":
	default:
		fmt.Fprintf(stderr, "error: unknown command '%s'\n", command)
		usage(stderr)
		return exitUsage
	}
	if len(positional) < 2 {
		fmt.Fprintln(stderr, "error: missing file argument")
		return exitUsage
	}
	filename := positional[1]
	source, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(stderr, "error: cannot read file %s: %v\n", filename, err)
		return exitUsage
	}

	switch command {
	case "tokens":
		return c.cmdTokens(string(source))
	case "parse":
		return c.cmdParse(string(source))
	case "ast":
		return c.cmdAST(string(source))
	default:
		return c.cmdRun(string(source))
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  cbl [-config file] [-v] tokens <file> [--json]   Tokenize and print tokens")
	fmt.Fprintln(w, "  cbl [-config file] [-v] parse  <file>            Parse and print AST (JSON)")
	fmt.Fprintln(w, "  cbl [-config file] [-v] ast    <file>            Parse and print AST (prefix form)")
	fmt.Fprintln(w, "  cbl [-config file] [-v] run    <file>            Run a source file")
	fmt.Fprintln(w, "  cbl [-config file] [-v] repl                     Start interactive REPL")
}

func (c *cli) options() pipeline.Options {
	return pipeline.Options{
		MaxSteps: c.cfg.MaxSteps,
		MaxDepth: c.cfg.MaxDepth,
		Trace:    c.trace,
	}
}

// ---- tokens command ----

func (c *cli) cmdTokens(source string) int {
	tokens, diags := lexer.New(source).Tokenize()

	if c.json {
		if err := printTokensJSON(c.stdout, tokens, diags); err != nil {
			fmt.Fprintf(c.stderr, "error: %v\n", err)
			return exitUsage
		}
	} else {
		printTokensText(c.stdout, tokens)
		printDiagsText(c.stderr, diags)
	}

	if diag.HasErrors(diags) {
		return exitDataErr
	}
	return exitOK
}

// ---- parse command ----

func (c *cli) cmdParse(source string) int {
	_, stmts, diags := pipeline.Analyze(source, c.options())

	output := map[string]interface{}{
		"ast":         ast.ProgramToMap(stmts),
		"diagnostics": diagsToSlice(diags),
	}
	if err := printJSON(c.stdout, output); err != nil {
		fmt.Fprintf(c.stderr, "error: %v\n", err)
		return exitUsage
	}

	if diag.HasErrors(diags) {
		return exitDataErr
	}
	return exitOK
}

// ---- ast command ----

func (c *cli) cmdAST(source string) int {
	_, stmts, diags := pipeline.Analyze(source, c.options())

	if len(stmts) > 0 {
		fmt.Fprintln(c.stdout, ast.PrintProgram(stmts))
	}
	printDiagsText(c.stderr, diags)

	if diag.HasErrors(diags) {
		return exitDataErr
	}
	return exitOK
}

// ---- run command ----

func (c *cli) cmdRun(source string) int {
	res := pipeline.Run(source, c.options())

	if c.json {
		if err := printJSON(c.stdout, res); err != nil {
			fmt.Fprintf(c.stderr, "error: %v\n", err)
			return exitUsage
		}
	} else {
		for _, line := range res.Output {
			fmt.Fprintln(c.stdout, line)
		}
		printReportsText(c.stderr, res.Reports, false)
	}
	return exitCode(res)
}

// exitCode maps a result to the process status. Lexical and syntax errors
// take precedence since they stop the run before anything executes.
func exitCode(res *pipeline.Result) int {
	if res.OK {
		return exitOK
	}
	for _, r := range res.Reports {
		if r.Stage == diag.StageLexical || r.Stage == diag.StageSyntax {
			return exitDataErr
		}
	}
	return exitSoftware
}
