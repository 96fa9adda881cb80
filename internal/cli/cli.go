// Package cli parses command-line arguments, validates user input and
// translates flags into runtime configuration. Process-level concerns
// like exit codes live here so main stays a thin shell.
package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Exit codes reported by the conveyor binary.
const (
	ExitOK          = 0
	ExitRunFailed   = 1
	ExitUsage       = 2
	ExitInterrupted = 130
)

// ExitError is an error carrying the process exit code to use.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

// Config is the parsed command line.
type Config struct {
	// Command is "run" or "serve".
	Command string

	// DefinitionPath is the workflow definition file for "run".
	DefinitionPath string

	// Event is the trigger event for "run".
	Event string

	// Concurrency caps simultaneously running job instances. Zero
	// means the engine default.
	Concurrency int

	// DBPath enables SQLite persistence when non-empty.
	DBPath string

	// Listen is the HTTP listen address for "serve".
	Listen string

	LogLevel  string
	LogFormat string
}

const usageText = `conveyor - a CI workflow orchestration engine.

Usage:
  conveyor run <definition-path> [options]
  conveyor serve [options]

Commands:
  run     Execute a workflow definition and report the outcome.
  serve   Serve the run inspection HTTP API.

Run "conveyor <command> -h" for command options.
`

// Parse processes command-line arguments (without the program name). It
// returns the configuration, a boolean indicating the program should
// exit cleanly (help was shown), or an ExitError.
func Parse(args []string, output io.Writer) (*Config, bool, error) {
	if len(args) == 0 {
		fmt.Fprint(output, usageText)
		return nil, true, nil
	}

	switch args[0] {
	case "run":
		return parseRun(args[1:], output)
	case "serve":
		return parseServe(args[1:], output)
	case "-h", "--help", "help":
		fmt.Fprint(output, usageText)
		return nil, true, nil
	default:
		return nil, false, &ExitError{Code: ExitUsage, Message: fmt.Sprintf("unknown command %q", args[0])}
	}
}

func parseRun(args []string, output io.Writer) (*Config, bool, error) {
	flagSet := flag.NewFlagSet("conveyor run", flag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.Usage = func() {
		fmt.Fprint(output, `
Usage:
  conveyor run <definition-path> [options]

Arguments:
  definition-path
    Path to a YAML workflow definition.

Options:
`)
		flagSet.PrintDefaults()
	}

	// Accept the definition path before the flags, the documented
	// form, as well as after them.
	var path string
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		path, args = args[0], args[1:]
	}

	eventFlag := flagSet.String("event", "push", "Trigger event to activate the workflow for.")
	concurrencyFlag := flagSet.Int("concurrency", 0, "Maximum simultaneously running job instances. 0 uses the engine default.")
	dbFlag := flagSet.String("db", "", "SQLite database path for run persistence. Empty keeps runs in memory.")
	logLevelFlag := flagSet.String("log-level", "info", "Logging level. Options: 'debug', 'info', 'warn', 'error'.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: ExitUsage, Message: err.Error()}
	}

	rest := flagSet.Args()
	if path == "" && len(rest) > 0 {
		path, rest = rest[0], rest[1:]
	}
	if path == "" {
		flagSet.Usage()
		return nil, false, &ExitError{Code: ExitUsage, Message: "missing definition path"}
	}
	if len(rest) > 0 {
		return nil, false, &ExitError{Code: ExitUsage, Message: fmt.Sprintf("unexpected argument %q", rest[0])}
	}
	if *concurrencyFlag < 0 {
		return nil, false, &ExitError{Code: ExitUsage, Message: "concurrency must not be negative"}
	}

	cfg := &Config{
		Command:        "run",
		DefinitionPath: path,
		Event:          *eventFlag,
		Concurrency:    *concurrencyFlag,
		DBPath:         *dbFlag,
		LogLevel:       strings.ToLower(*logLevelFlag),
		LogFormat:      strings.ToLower(*logFormatFlag),
	}
	if err := validateLogging(cfg); err != nil {
		return nil, false, err
	}
	return cfg, false, nil
}

func parseServe(args []string, output io.Writer) (*Config, bool, error) {
	flagSet := flag.NewFlagSet("conveyor serve", flag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.Usage = func() {
		fmt.Fprint(output, `
Usage:
  conveyor serve [options]

Options:
`)
		flagSet.PrintDefaults()
	}

	listenFlag := flagSet.String("listen", ":8080", "HTTP listen address.")
	dbFlag := flagSet.String("db", "", "SQLite database path holding recorded runs.")
	logLevelFlag := flagSet.String("log-level", "info", "Logging level. Options: 'debug', 'info', 'warn', 'error'.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: ExitUsage, Message: err.Error()}
	}
	if flagSet.NArg() > 0 {
		return nil, false, &ExitError{Code: ExitUsage, Message: fmt.Sprintf("unexpected argument %q", flagSet.Arg(0))}
	}
	if *dbFlag == "" {
		return nil, false, &ExitError{Code: ExitUsage, Message: "serve requires --db"}
	}

	cfg := &Config{
		Command:   "serve",
		DBPath:    *dbFlag,
		Listen:    *listenFlag,
		LogLevel:  strings.ToLower(*logLevelFlag),
		LogFormat: strings.ToLower(*logFormatFlag),
	}
	if err := validateLogging(cfg); err != nil {
		return nil, false, err
	}
	return cfg, false, nil
}

func validateLogging(cfg *Config) error {
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return &ExitError{Code: ExitUsage, Message: "invalid log-format: must be 'text' or 'json'"}
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return &ExitError{Code: ExitUsage, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	return nil
}

// NewLogger builds the process logger from the parsed configuration.
func NewLogger(cfg *Config, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}
