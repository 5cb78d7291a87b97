// Package config loads CLI settings from a YAML file.
//
// A file looks like:
//
//	max_steps: 0
//	max_depth: 1024
//	repl:
//	  prompt: "cbl> "
//	  history_file: ~/.cbl_history
//	  color: true
//
// Unknown keys are rejected so typos do not go unnoticed.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileName is the name searched for in the working and home directories.
const FileName = "cbl.yaml"

// Config holds the settings shared by the run and repl commands.
type Config struct {
	MaxSteps int  `yaml:"max_steps"`
	MaxDepth int  `yaml:"max_depth"`
	REPL     REPL `yaml:"repl"`

	// Path is the file the settings came from; empty for defaults.
	Path string `yaml:"-"`
}

// REPL holds interactive-shell settings.
type REPL struct {
	Prompt      string `yaml:"prompt"`
	HistoryFile string `yaml:"history_file"`
	Color       *bool  `yaml:"color"`
}

// ColorEnabled reports whether ANSI colors should be used. Unset means yes.
func (r REPL) ColorEnabled() bool {
	return r.Color == nil || *r.Color
}

// Default returns the settings used when no file is found.
func Default() *Config {
	return &Config{
		MaxSteps: 0,
		MaxDepth: 1024,
		REPL: REPL{
			Prompt:      "cbl> ",
			HistoryFile: "~/.cbl_history",
		},
	}
}

// Load reads settings. An explicit path must exist; otherwise ./cbl.yaml
// and then $HOME/.cbl.yaml are tried, and defaults are used when neither
// exists.
func Load(explicit string) (*Config, error) {
	if explicit != "" {
		return LoadFile(explicit)
	}

	candidates := []string{FileName}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, "."+FileName))
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("config: stat %s: %w", path, err)
		}
		return LoadFile(path)
	}
	cfg := Default()
	cfg.REPL.HistoryFile = expandHome(cfg.REPL.HistoryFile)
	return cfg, nil
}

// LoadFile reads and validates one YAML file. Keys it does not set keep
// their default values.
func LoadFile(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer file.Close()

	cfg, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	cfg.Path = path
	return cfg, nil
}

// Parse decodes settings from r on top of the defaults. An empty document
// yields the defaults.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()

	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.REPL.HistoryFile = expandHome(cfg.REPL.HistoryFile)
	return cfg, nil
}

// ValidationError lists every problem found in a config file.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "invalid config: " + strings.Join(e.Issues, "; ")
}

func (c *Config) validate() error {
	var errs ValidationError
	if c.MaxSteps < 0 {
		errs.Issues = append(errs.Issues, "max_steps must be >= 0")
	}
	if c.MaxDepth < 1 {
		errs.Issues = append(errs.Issues, "max_depth must be >= 1")
	}
	if len(errs.Issues) > 0 {
		return &errs
	}
	return nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
