package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want log.Level
	}{
		{"debug", log.DebugLevel},
		{"warn", log.WarnLevel},
		{"error", log.ErrorLevel},
		{"info", log.InfoLevel},
		{" DEBUG ", log.DebugLevel},
		{"", log.InfoLevel},
		{"verbose", log.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("LOLVM_LOG_LEVEL", "")
	t.Setenv("LOLVM_LOG_PREFIX", "")
	t.Setenv("LOLVM_LOG_FORMAT", "")
	t.Setenv("LOLVM_LOG_TO_FILE", "")

	cfg := ConfigFromEnv()
	if cfg.Level != log.InfoLevel || cfg.Prefix != "lolvm" || cfg.Format != log.TextFormatter || cfg.Dir != "" {
		t.Errorf("defaults = %+v", cfg)
	}

	t.Setenv("LOLVM_LOG_TO_FILE", "1")
	t.Setenv("LOLVM_LOG_DIR", "/var/tmp")
	t.Setenv("LOLVM_LOG_FORMAT", "json")
	cfg = ConfigFromEnv()
	if cfg.Dir != "/var/tmp" || cfg.Format != log.JSONFormatter {
		t.Errorf("file config = %+v", cfg)
	}
}

func TestNewLoggerWithWriter(t *testing.T) {
	t.Setenv("LOLVM_LOG_LEVEL", "warn")
	t.Setenv("LOLVM_LOG_PREFIX", "test")
	t.Setenv("LOLVM_LOG_FORMAT", "")
	t.Setenv("LOLVM_LOG_TO_FILE", "1")
	t.Setenv("LOLVM_LOG_DIR", t.TempDir())

	var buf bytes.Buffer
	lg := NewLoggerWithWriter(&buf)
	defer lg.Close()

	lg.Info("hidden")
	lg.Warn("shown", "ip", 4)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message logged at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "ip=4") {
		t.Errorf("warn message missing: %q", out)
	}
	if !strings.Contains(out, "test") {
		t.Errorf("prefix missing: %q", out)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	lg := New(&buf, Config{Level: log.DebugLevel, Prefix: "vm", Format: log.JSONFormatter})

	lg.Debug("step", "ip", 7)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("record is not JSON: %v\n%s", err, buf.String())
	}
	if rec["msg"] != "step" || fmt.Sprint(rec["ip"]) != "7" {
		t.Errorf("record = %v", rec)
	}
}

func TestLogToFile(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	lg := New(&buf, Config{Level: log.InfoLevel, Format: log.TextFormatter, Dir: dir})

	lg.Info("to file")
	if err := lg.Close(); err != nil {
		t.Fatal(err)
	}

	if buf.Len() != 0 {
		t.Errorf("record written to the fallback writer: %q", buf.String())
	}
	files, err := filepath.Glob(filepath.Join(dir, "lolvm-*-debug.log"))
	if err != nil || len(files) != 1 {
		t.Fatalf("log files = %v, %v", files, err)
	}
	data, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("file contents %q", data)
	}
}
