package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/weftsched/weft/internal/strategy"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(envListenAddr, "")
	t.Setenv(envDBPath, "")
	t.Setenv(envLogLevel, "")
	t.Setenv(envStrategy, "")
	t.Setenv(envStrategyBound, "")
	t.Setenv(envRandomSeed, "")

	cfg := Load()

	if cfg.ListenAddr != defaultListenAddr {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, defaultListenAddr)
	}
	if cfg.DBPath != defaultDBPath {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, defaultDBPath)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want %v", cfg.LogLevel, slog.LevelInfo)
	}
	if cfg.Strategy.Type != strategy.PCT {
		t.Errorf("Strategy.Type = %v, want %v", cfg.Strategy.Type, strategy.PCT)
	}
	if cfg.Strategy.ExplorationStrategyBound != defaultStrategyBound {
		t.Errorf("Strategy.ExplorationStrategyBound = %d, want %d", cfg.Strategy.ExplorationStrategyBound, defaultStrategyBound)
	}
	if cfg.Strategy.RandomSeed == 0 {
		t.Error("Strategy.RandomSeed = 0, expected a derived nonzero fallback seed")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv(envListenAddr, ":9090")
	t.Setenv(envDBPath, "/tmp/test.db")
	t.Setenv(envLogLevel, "debug")
	t.Setenv(envStrategy, "random")
	t.Setenv(envStrategyBound, "5")
	t.Setenv(envRandomSeed, "123456789")

	cfg := Load()

	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, ":9090")
	}
	if cfg.DBPath != "/tmp/test.db" {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, "/tmp/test.db")
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want %v", cfg.LogLevel, slog.LevelDebug)
	}
	if cfg.Strategy.Type != strategy.Random {
		t.Errorf("Strategy.Type = %v, want %v", cfg.Strategy.Type, strategy.Random)
	}
	if cfg.Strategy.ExplorationStrategyBound != 5 {
		t.Errorf("Strategy.ExplorationStrategyBound = %d, want 5", cfg.Strategy.ExplorationStrategyBound)
	}
	if cfg.Strategy.RandomSeed != 123456789 {
		t.Errorf("Strategy.RandomSeed = %d, want 123456789", cfg.Strategy.RandomSeed)
	}
}

func TestLoadStrategyFallsBackOnUnknownType(t *testing.T) {
	t.Setenv(envStrategy, "bogus")
	t.Setenv(envStrategyBound, "")
	t.Setenv(envRandomSeed, "")

	cfg := Load()

	if cfg.Strategy.Type != strategy.PCT {
		t.Errorf("Strategy.Type = %v, want %v (fallback)", cfg.Strategy.Type, strategy.PCT)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"invalid", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		got := parseLogLevel(tt.input)
		if got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNewLoggerOutputsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)
	if logger == nil {
		t.Fatal("NewLogger returned nil")
	}

	logger.Info("test message", "key", "value")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("logger output is not valid JSON: %v\noutput: %s", err, buf.String())
	}

	for _, key := range []string{"time", "level", "msg"} {
		if _, ok := entry[key]; !ok {
			t.Errorf("JSON output missing expected key %q", key)
		}
	}
	if entry["msg"] != "test message" {
		t.Errorf("msg = %v, want %q", entry["msg"], "test message")
	}
	if entry["key"] != "value" {
		t.Errorf("key = %v, want %q", entry["key"], "value")
	}
}
