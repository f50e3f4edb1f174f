// Package logging builds the process-wide zerolog.Logger used by cmd/root.go
// and threaded into the Session Manager, Orchestrator, and PRP Runtime.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Format selects the writer zerolog renders through.
type Format string

const (
	FormatAuto    Format = "auto"
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// Config mirrors the -v/--verbose and --log-format flags cmd/root.go exposes.
type Config struct {
	Verbose bool
	Format  Format
	Output  io.Writer // defaults to os.Stderr when nil
}

// New builds a zerolog.Logger per Config. A TTY stderr gets a
// zerolog.ConsoleWriter; a piped or CI stderr (or an explicit json format)
// gets raw JSON lines, matching mote's console/json fallback in
// pkg/logger.Init.
func New(cfg Config) zerolog.Logger {
	level := zerolog.InfoLevel
	if cfg.Verbose {
		level = zerolog.DebugLevel
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	format := cfg.Format
	if format == "" {
		format = FormatAuto
	}

	var writer io.Writer
	switch resolveFormat(format, out) {
	case FormatJSON:
		writer = out
	default:
		writer = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "2006-01-02T15:04:05-07:00",
		}
	}

	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

func resolveFormat(format Format, out io.Writer) Format {
	if format != FormatAuto {
		return format
	}

	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return FormatConsole
	}
	return FormatJSON
}

// ParseFormat validates a --log-format flag value, defaulting to FormatAuto
// when blank.
func ParseFormat(value string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "auto":
		return FormatAuto, true
	case "console":
		return FormatConsole, true
	case "json":
		return FormatJSON, true
	default:
		return "", false
	}
}
