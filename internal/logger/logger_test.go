package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// capture installs a logger writing to a buffer and restores the previous
// one when the test ends.
func capture(t *testing.T, format, level string) *bytes.Buffer {
	t.Helper()
	prev := current.Load()
	t.Cleanup(func() { current.Store(prev) })

	var buf bytes.Buffer
	if err := InitializeWriter(&buf, format, level); err != nil {
		t.Fatalf("InitializeWriter: %v", err)
	}
	return &buf
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" warning ", slog.LevelWarn},
		{"WARN", slog.LevelWarn},
		{"Error", slog.LevelError},
		{"invalid", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLogLevel(tt.input); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	config, err := LoadConfig("nonexistent.yaml")
	if err != nil {
		t.Fatalf("LoadConfig returned error for missing file: %v", err)
	}
	if config != DefaultConfig() {
		t.Errorf("missing file should give defaults, got %+v", config)
	}
}

func TestLoadConfigFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logging.yaml")
	content := `logging:
  level: DEBUG
  console_enabled: false
  file_enabled: true
  file_path: audit.log
  file_format: json
  file_max_size_mb: 20
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if config.Level != "DEBUG" || config.ConsoleEnabled || !config.FileEnabled {
		t.Errorf("unexpected switches: %+v", config)
	}
	if config.FilePath != "audit.log" || config.FileFormat != "json" || config.FileMaxSizeMB != 20 {
		t.Errorf("unexpected file settings: %+v", config)
	}
	// Unset numbers keep their defaults
	if config.FileMaxBackups != 5 || config.FileMaxAgeDays != 30 {
		t.Errorf("defaults lost: %+v", config)
	}
}

func TestLoadConfig_ShippedFile(t *testing.T) {
	config, err := LoadConfig("../../data/logging.yaml")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !config.ConsoleEnabled || config.Level != "INFO" {
		t.Errorf("unexpected shipped config: %+v", config)
	}
}

func TestEnvVarOverride(t *testing.T) {
	t.Setenv("LOG_LEVEL", "ERROR")
	t.Setenv("LOG_CONSOLE_FORMAT", "json")
	t.Setenv("LOG_FILE_ENABLED", "true")
	t.Setenv("LOG_FILE_PATH", "/custom/path.log")

	config, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if config.Level != "ERROR" || config.ConsoleFormat != "json" {
		t.Errorf("env overrides not applied: %+v", config)
	}
	if !config.FileEnabled || config.FilePath != "/custom/path.log" {
		t.Errorf("file env overrides not applied: %+v", config)
	}
}

func TestTextOutputRespectsLevel(t *testing.T) {
	buf := capture(t, "text", "INFO")

	Info("Boss selected", "boss", "procrastination-slime")
	Debug("should not appear")

	out := buf.String()
	if !strings.Contains(out, "Boss selected") || !strings.Contains(out, "boss=procrastination-slime") {
		t.Errorf("missing info record: %s", out)
	}
	if strings.Contains(out, "should not appear") {
		t.Errorf("debug record written at INFO: %s", out)
	}
}

func TestJSONOutput(t *testing.T) {
	buf := capture(t, "json", "DEBUG")

	Warning("Dropping slow stats subscriber", "user", "alice", "queued", 64)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if rec["level"] != "WARN" || rec["user"] != "alice" || rec["queued"] != float64(64) {
		t.Errorf("unexpected record: %v", rec)
	}
}

func TestAuditBypassesLevel(t *testing.T) {
	buf := capture(t, "text", "ERROR")

	Info("hidden")
	Warning("hidden")
	Audit(context.Background(), "Boss defeated", "user", "alice")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("records below ERROR were written: %s", out)
	}
	if !strings.Contains(out, "level=AUDIT") || !strings.Contains(out, "Boss defeated") {
		t.Errorf("audit record missing or mislabelled: %s", out)
	}
}

func TestContextAttributes(t *testing.T) {
	buf := capture(t, "json", "DEBUG")

	ctx := WithAttrs(context.Background(), "request_id", "req-1")
	ctx = WithAttrs(ctx, "user", "alice")
	InfoContext(ctx, "Attack resolved", "damage", 10)
	Info("No context")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 records, got %d: %s", len(lines), buf.String())
	}

	var first, second map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatal(err)
	}
	if first["request_id"] != "req-1" || first["user"] != "alice" || first["damage"] != float64(10) {
		t.Errorf("context attributes missing: %v", first)
	}
	if _, ok := second["request_id"]; ok {
		t.Errorf("plain call picked up context attributes: %v", second)
	}
}

func TestWithAttrs_DoesNotMutateParent(t *testing.T) {
	buf := capture(t, "json", "DEBUG")

	parent := WithAttrs(context.Background(), "request_id", "req-1")
	_ = WithAttrs(parent, "user", "bob")
	InfoContext(parent, "parent only")

	if strings.Contains(buf.String(), "bob") {
		t.Errorf("child attributes leaked into parent: %s", buf.String())
	}
	if WithAttrs(parent) != parent {
		t.Error("WithAttrs with no args should return ctx unchanged")
	}
}

func TestInitialize_FileAndConsole(t *testing.T) {
	prev := current.Load()
	t.Cleanup(func() { current.Store(prev) })

	path := filepath.Join(t.TempDir(), "questify.log")
	config := DefaultConfig()
	config.ConsoleEnabled = false
	config.FileEnabled = true
	config.FilePath = path
	config.FileFormat = "json"
	if err := Initialize(config); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	Audit(WithAttrs(context.Background(), "user", "alice"), "Account registered")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), `"level":"AUDIT"`) || !strings.Contains(string(data), `"user":"alice"`) {
		t.Errorf("unexpected file contents: %s", data)
	}
}

func TestInitialize_UnknownFormat(t *testing.T) {
	prev := current.Load()
	t.Cleanup(func() { current.Store(prev) })

	config := DefaultConfig()
	config.ConsoleFormat = "xml"
	if err := Initialize(config); err == nil {
		t.Error("expected an error for an unknown format")
	}
	if err := InitializeWriter(&bytes.Buffer{}, "yaml", "INFO"); err == nil {
		t.Error("expected an error for an unknown writer format")
	}
}

func TestFanoutHonoursEachLevel(t *testing.T) {
	var quiet, loud bytes.Buffer
	qh, _ := newHandler(&quiet, "text", slog.LevelError)
	lh, _ := newHandler(&loud, "text", slog.LevelDebug)
	l := slog.New(contextHandler{fanout{qh, lh}})

	l.Info("only loud")
	l.Error("both")

	if strings.Contains(quiet.String(), "only loud") || !strings.Contains(quiet.String(), "both") {
		t.Errorf("quiet sink: %s", quiet.String())
	}
	if !strings.Contains(loud.String(), "only loud") || !strings.Contains(loud.String(), "both") {
		t.Errorf("loud sink: %s", loud.String())
	}
}

func TestLoggerAccessorBeforeInitialize(t *testing.T) {
	prev := current.Load()
	t.Cleanup(func() { current.Store(prev) })
	current.Store(nil)

	if Logger() == nil {
		t.Fatal("Logger() must never return nil")
	}
	// Package functions are no-ops without a logger
	Info("dropped")
	Audit(context.Background(), "dropped")
}
