package main

import (
	"cbl-lang/internal/pipeline"
	"cbl-lang/internal/runtime"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
)

// ---- ANSI colors ----

const (
	colorReset = "\033[0m"
	colorRed   = "\033[31m"
	colorGreen = "\033[32m"
	colorCyan  = "\033[36m"
	colorGray  = "\033[90m"
	colorBold  = "\033[1m"
)

// lineReader is the part of *readline.Instance the loop needs.
type lineReader interface {
	Readline() (string, error)
	SetPrompt(prompt string)
}

// replStyle holds prompts and coloring for one REPL.
type replStyle struct {
	prompt string
	color  bool
}

func (s replStyle) paint(color, text string) string {
	if !s.color {
		return text
	}
	return color + text + colorReset
}

func (s replStyle) mainPrompt() string { return s.paint(colorGreen, s.prompt) }

func (s replStyle) contPrompt() string { return s.paint(colorGray, "... ") }

// ---- repl command ----

func (c *cli) cmdRepl() int {
	style := replStyle{prompt: c.cfg.REPL.Prompt, color: c.cfg.REPL.ColorEnabled()}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            style.mainPrompt(),
		HistoryFile:       c.cfg.REPL.HistoryFile,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		fmt.Fprintf(c.stderr, "readline init failed: %v\n", err)
		return exitUsage
	}
	defer rl.Close()

	fmt.Fprintf(rl.Stdout(), "%s %s\n\n",
		style.paint(colorBold+colorCyan, "cbl REPL"),
		style.paint(colorGray, "(type 'exit' or Ctrl+D to quit, ':env' to list globals)"))

	session := pipeline.NewSession(c.options())
	replLoop(rl, rl.Stdout(), rl.Stderr(), session, style)
	return exitOK
}

// replLoop reads statements until exit or EOF. Input whose only errors are
// at end of input is kept and extended with the next line.
func replLoop(rl lineReader, stdout, stderr io.Writer, session *pipeline.Session, style replStyle) {
	var pending strings.Builder

	for {
		if pending.Len() > 0 {
			rl.SetPrompt(style.contPrompt())
		} else {
			rl.SetPrompt(style.mainPrompt())
		}

		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				if pending.Len() > 0 {
					pending.Reset()
					continue
				}
				fmt.Fprintf(stdout, "%s\n", style.paint(colorGray, "(use 'exit' or Ctrl+D to quit)"))
				continue
			}
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(stdout)
			}
			return
		}

		if pending.Len() == 0 {
			switch strings.TrimSpace(line) {
			case "":
				continue
			case "exit", ":quit":
				return
			case ":env":
				printGlobals(stdout, session.Globals())
				continue
			}
		}

		pending.WriteString(line)
		pending.WriteString("\n")

		res := session.Eval(pending.String())
		if !res.OK && len(res.Output) == 0 && pipeline.IsIncomplete(res.Reports) {
			continue
		}
		pending.Reset()

		for _, out := range res.Output {
			fmt.Fprintln(stdout, out)
		}
		printReportsText(stderr, res.Reports, style.color)
	}
}

// printGlobals lists user-defined globals; built-ins are skipped.
func printGlobals(w io.Writer, env *runtime.Environment) {
	for _, name := range env.Names() {
		val, _ := env.Get(name)
		if _, builtin := val.(*runtime.BuiltinVal); builtin {
			continue
		}
		fmt.Fprintf(w, "%s = %s\n", name, val)
	}
}
