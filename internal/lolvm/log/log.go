package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"

	charmlog "github.com/charmbracelet/log"

	"lolvm/internal/logging"
)

var (
	initOnce    sync.Once
	initialized atomic.Bool
)

// Setup installs the process-wide slog logger. Records go through a
// charmbracelet logger configured from the LOLVM_LOG_* environment; debug
// forces the debug level.
func Setup(debug bool) {
	initOnce.Do(func() {
		lg := logging.NewLogger()
		if debug {
			lg.SetLevel(charmlog.DebugLevel)
			lg.SetReportCaller(true)
		}
		slog.SetDefault(slog.New(lg.Logger))
		initialized.Store(true)
	})
}

// NewTraceLogger returns a debug-level logger for per-instruction tracing.
func NewTraceLogger(w io.Writer) *charmlog.Logger {
	if w == nil {
		w = os.Stderr
	}
	lg := logging.NewLoggerWithWriter(w).Logger
	lg.SetLevel(charmlog.DebugLevel)
	lg.SetReportTimestamp(false)
	return lg.WithPrefix("trace")
}

func Initialized() bool {
	return initialized.Load()
}

func RecoverPanic(name string, cleanup func()) {
	if r := recover(); r != nil {
		if Initialized() {
			slog.Error(fmt.Sprintf("Panic in %s", name),
				"panic", r,
				"stack", string(debug.Stack()))
		}
		if cleanup != nil {
			cleanup()
		}
	}
}
