package log

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/belulok/quest-chain/internal/config"
)

func TestParseLevelValid(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := parseLevel(tt.input)
			if err != nil {
				t.Errorf("parseLevel(%q) returned error: %v", tt.input, err)
			}
			if level != tt.expected {
				t.Errorf("parseLevel(%q) = %v, expected %v", tt.input, level, tt.expected)
			}
		})
	}
}

func TestParseLevelInvalid(t *testing.T) {
	for _, input := range []string{"invalid", "trace", ""} {
		t.Run(input, func(t *testing.T) {
			if _, err := parseLevel(input); err == nil {
				t.Errorf("parseLevel(%q) should return error, got nil", input)
			}
		})
	}
}

func TestInitJSONToConsole(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.LogConfig{Level: "info", Format: "json"}

	if err := InitWithWriter(cfg, &buf); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer Flush()

	slog.Debug("hidden")
	slog.Info("boss hp persisted", "hp", 900)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug record should be filtered at info level: %s", out)
	}
	if !strings.Contains(out, `"hp":900`) {
		t.Errorf("expected json attribute in output, got %s", out)
	}
	if Get() == nil {
		t.Fatal("Expected logger to be set")
	}
}

func TestInitWithFileOutput(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "questchain.log")

	cfg := config.LogConfig{
		Level:  "debug",
		Format: "text",
		Outputs: config.LogOutputsConfig{
			File: config.FileOutputConfig{
				Enabled: true,
				Path:    logPath,
				Rotation: config.RotationConfig{
					MaxSizeMB:  1,
					MaxBackups: 1,
				},
			},
		},
	}

	var console bytes.Buffer
	if err := InitWithWriter(cfg, &console); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	slog.Debug("respawn scheduled", "delay", "10s")
	Flush()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "respawn scheduled") {
		t.Errorf("Expected file output to contain record, got %q", string(data))
	}
	if !strings.Contains(console.String(), "respawn scheduled") {
		t.Errorf("Expected console output to contain record")
	}
}

func TestInitFileOutputRequiresPath(t *testing.T) {
	cfg := config.LogConfig{
		Level:  "info",
		Format: "json",
		Outputs: config.LogOutputsConfig{
			File: config.FileOutputConfig{Enabled: true},
		},
	}
	if err := Init(cfg); err == nil {
		t.Error("Expected error for file output without path")
	}
}

func TestInitInvalidFormat(t *testing.T) {
	if err := Init(config.LogConfig{Level: "info", Format: "xml"}); err == nil {
		t.Error("Expected error for unsupported format")
	}
}
