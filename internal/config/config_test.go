package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// clearEnv blanks every variable Load reads.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		envConfigFile, envListenAddr, envDBPath, envLogLevel, envApartmentName,
		envWakeCapacity, envStopRetryInterval, envMailboxCapacity, envShutdownTimeout,
	} {
		t.Setenv(k, "")
	}
}

func mustLoad(t *testing.T) Config {
	t.Helper()
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := mustLoad(t)

	if cfg.ListenAddr != defaultListenAddr {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, defaultListenAddr)
	}
	if cfg.DBPath != defaultDBPath {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, defaultDBPath)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want %v", cfg.LogLevel, slog.LevelInfo)
	}
	if cfg.WakeCapacity != defaultWakeCapacity {
		t.Errorf("WakeCapacity = %d, want %d", cfg.WakeCapacity, defaultWakeCapacity)
	}
	if cfg.StopRetryInterval != defaultStopRetryInterval {
		t.Errorf("StopRetryInterval = %v, want %v", cfg.StopRetryInterval, defaultStopRetryInterval)
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(envListenAddr, ":9090")
	t.Setenv(envDBPath, "/tmp/test.db")
	t.Setenv(envLogLevel, "debug")
	t.Setenv(envWakeCapacity, "16")
	t.Setenv(envStopRetryInterval, "250ms")
	t.Setenv(envMailboxCapacity, "8")

	cfg := mustLoad(t)

	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, ":9090")
	}
	if cfg.DBPath != "/tmp/test.db" {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, "/tmp/test.db")
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want %v", cfg.LogLevel, slog.LevelDebug)
	}
	if cfg.WakeCapacity != 16 {
		t.Errorf("WakeCapacity = %d, want 16", cfg.WakeCapacity)
	}
	if cfg.StopRetryInterval != 250*time.Millisecond {
		t.Errorf("StopRetryInterval = %v, want 250ms", cfg.StopRetryInterval)
	}
	if cfg.MailboxCapacity != 8 {
		t.Errorf("MailboxCapacity = %d, want 8", cfg.MailboxCapacity)
	}
}

func TestLoadFromFileWithEnvOverride(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "apartment.toml")
	content := `
listen_addr = ":7070"
log_level = "warn"

[apartment]
name = "objects"
wake_capacity = 32
stop_retry_interval = "50ms"
shutdown_timeout = "5s"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(envConfigFile, path)
	t.Setenv(envWakeCapacity, "64")

	cfg := mustLoad(t)

	if cfg.ListenAddr != ":7070" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, ":7070")
	}
	if cfg.LogLevel != slog.LevelWarn {
		t.Errorf("LogLevel = %v, want %v", cfg.LogLevel, slog.LevelWarn)
	}
	if cfg.ApartmentName != "objects" {
		t.Errorf("ApartmentName = %q, want %q", cfg.ApartmentName, "objects")
	}
	if cfg.WakeCapacity != 64 {
		t.Errorf("WakeCapacity = %d, want 64 from the environment", cfg.WakeCapacity)
	}
	if cfg.StopRetryInterval != 50*time.Millisecond {
		t.Errorf("StopRetryInterval = %v, want 50ms", cfg.StopRetryInterval)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 5s", cfg.ShutdownTimeout)
	}
	if cfg.DBPath != defaultDBPath {
		t.Errorf("DBPath = %q, want default %q", cfg.DBPath, defaultDBPath)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		file string
	}{
		{name: "bad wake capacity", env: map[string]string{envWakeCapacity: "lots"}},
		{name: "zero wake capacity", env: map[string]string{envWakeCapacity: "0"}},
		{name: "bad retry interval", env: map[string]string{envStopRetryInterval: "soon"}},
		{name: "negative shutdown timeout", env: map[string]string{envShutdownTimeout: "-1s"}},
		{name: "unknown file key", file: "colour = \"blue\"\n"},
		{name: "malformed file", file: "listen_addr = \n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if tc.file != "" {
				path := filepath.Join(t.TempDir(), "apartment.toml")
				if err := os.WriteFile(path, []byte(tc.file), 0o644); err != nil {
					t.Fatalf("write config: %v", err)
				}
				t.Setenv(envConfigFile, path)
			}

			if _, err := Load(); err == nil {
				t.Error("Load succeeded, want error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv(envConfigFile, filepath.Join(t.TempDir(), "missing.toml"))

	if _, err := Load(); err == nil {
		t.Error("Load succeeded for a missing config file")
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
