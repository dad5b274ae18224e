// Package logging builds the charmbracelet loggers lolvm writes its
// diagnostics through. Everything is configured from LOLVM_LOG_* variables.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Config selects where and how log records are written.
type Config struct {
	Level  log.Level
	Prefix string
	Format log.Formatter

	// Dir, when set, sends records to a timestamped file in Dir instead of
	// the writer passed to New.
	Dir string
}

// ConfigFromEnv reads
//
//	LOLVM_LOG_LEVEL   debug, info, warn, error (default info)
//	LOLVM_LOG_PREFIX  record prefix (default "lolvm")
//	LOLVM_LOG_FORMAT  text, json or logfmt (default text)
//	LOLVM_LOG_TO_FILE "1" logs to a file in LOLVM_LOG_DIR, or the working directory
func ConfigFromEnv() Config {
	cfg := Config{
		Level:  ParseLevel(os.Getenv("LOLVM_LOG_LEVEL")),
		Prefix: os.Getenv("LOLVM_LOG_PREFIX"),
		Format: ParseFormat(os.Getenv("LOLVM_LOG_FORMAT")),
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "lolvm"
	}
	if os.Getenv("LOLVM_LOG_TO_FILE") == "1" {
		cfg.Dir = os.Getenv("LOLVM_LOG_DIR")
		if cfg.Dir == "" {
			cfg.Dir = "."
		}
	}
	return cfg
}

// ParseLevel maps a level name to a log level. Unknown or empty names
// select info.
func ParseLevel(s string) log.Level {
	lvl, err := log.ParseLevel(strings.TrimSpace(s))
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// ParseFormat maps a format name to a formatter. Unknown names select text.
func ParseFormat(s string) log.Formatter {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return log.JSONFormatter
	case "logfmt":
		return log.LogfmtFormatter
	default:
		return log.TextFormatter
	}
}

// LoggerCloser is a logger that may own its output file.
type LoggerCloser struct {
	*log.Logger
	closer io.Closer
}

// Close closes the log file, if the logger opened one.
func (lc *LoggerCloser) Close() error {
	if lc.closer != nil {
		return lc.closer.Close()
	}
	return nil
}

// New builds a logger for cfg writing to w. A file that cannot be created
// leaves the logger on w.
func New(w io.Writer, cfg Config) *LoggerCloser {
	var closer io.Closer
	if cfg.Dir != "" {
		name := fmt.Sprintf("lolvm-%s-debug.log", time.Now().Format("20060102-150405"))
		f, err := os.OpenFile(filepath.Join(cfg.Dir, name), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err == nil {
			w, closer = f, f
		}
	}

	lg := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Level:           cfg.Level,
		Prefix:          cfg.Prefix,
		Formatter:       cfg.Format,
	})
	return &LoggerCloser{Logger: lg, closer: closer}
}

// NewLoggerWithWriter builds a logger on w configured from the environment.
// LOLVM_LOG_TO_FILE is ignored; the caller chose the writer.
func NewLoggerWithWriter(w io.Writer) *LoggerCloser {
	cfg := ConfigFromEnv()
	cfg.Dir = ""
	return New(w, cfg)
}

// NewLogger builds the process logger: stderr, or a file when
// LOLVM_LOG_TO_FILE is set.
func NewLogger() *LoggerCloser {
	return New(os.Stderr, ConfigFromEnv())
}
