// Package config loads daemon configuration from an optional TOML file and
// environment variables, and builds the structured logger.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	defaultListenAddr        = ":8080"
	defaultDBPath            = "apartment.db"
	defaultApartmentName     = "main"
	defaultWakeCapacity      = 10000
	defaultStopRetryInterval = 100 * time.Millisecond
	defaultMailboxCapacity   = 64
	defaultShutdownTimeout   = 30 * time.Second

	envConfigFile        = "APARTMENT_CONFIG"
	envListenAddr        = "APARTMENT_LISTEN_ADDR"
	envDBPath            = "APARTMENT_DB_PATH"
	envLogLevel          = "APARTMENT_LOG_LEVEL"
	envApartmentName     = "APARTMENT_NAME"
	envWakeCapacity      = "APARTMENT_WAKE_CAPACITY"
	envStopRetryInterval = "APARTMENT_STOP_RETRY_INTERVAL"
	envMailboxCapacity   = "APARTMENT_MAILBOX_CAPACITY"
	envShutdownTimeout   = "APARTMENT_SHUTDOWN_TIMEOUT"
)

// Config holds application configuration.
type Config struct {
	ListenAddr string
	DBPath     string
	LogLevel   slog.Level

	ApartmentName     string
	WakeCapacity      int
	StopRetryInterval time.Duration
	MailboxCapacity   int
	ShutdownTimeout   time.Duration
}

// fileConfig mirrors Config as it appears in the TOML file. Durations are
// written as Go duration strings ("250ms").
type fileConfig struct {
	ListenAddr string `toml:"listen_addr"`
	DBPath     string `toml:"db_path"`
	LogLevel   string `toml:"log_level"`

	Apartment struct {
		Name              string `toml:"name"`
		WakeCapacity      int    `toml:"wake_capacity"`
		StopRetryInterval string `toml:"stop_retry_interval"`
		MailboxCapacity   int    `toml:"mailbox_capacity"`
		ShutdownTimeout   string `toml:"shutdown_timeout"`
	} `toml:"apartment"`
}

// Load builds the configuration from defaults, then the TOML file named by
// APARTMENT_CONFIG if set, then environment variables.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:        defaultListenAddr,
		DBPath:            defaultDBPath,
		LogLevel:          slog.LevelInfo,
		ApartmentName:     defaultApartmentName,
		WakeCapacity:      defaultWakeCapacity,
		StopRetryInterval: defaultStopRetryInterval,
		MailboxCapacity:   defaultMailboxCapacity,
		ShutdownTimeout:   defaultShutdownTimeout,
	}

	if path := os.Getenv(envConfigFile); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.loadEnv(); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	var fc fileConfig
	md, err := toml.DecodeFile(path, &fc)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("config file %s: unknown keys %v", path, undecoded)
	}

	if fc.ListenAddr != "" {
		c.ListenAddr = fc.ListenAddr
	}
	if fc.DBPath != "" {
		c.DBPath = fc.DBPath
	}
	if fc.LogLevel != "" {
		c.LogLevel = parseLogLevel(fc.LogLevel)
	}
	if fc.Apartment.Name != "" {
		c.ApartmentName = fc.Apartment.Name
	}
	if fc.Apartment.WakeCapacity != 0 {
		c.WakeCapacity = fc.Apartment.WakeCapacity
	}
	if fc.Apartment.MailboxCapacity != 0 {
		c.MailboxCapacity = fc.Apartment.MailboxCapacity
	}
	if s := fc.Apartment.StopRetryInterval; s != "" {
		if c.StopRetryInterval, err = time.ParseDuration(s); err != nil {
			return fmt.Errorf("config file %s: stop_retry_interval: %w", path, err)
		}
	}
	if s := fc.Apartment.ShutdownTimeout; s != "" {
		if c.ShutdownTimeout, err = time.ParseDuration(s); err != nil {
			return fmt.Errorf("config file %s: shutdown_timeout: %w", path, err)
		}
	}
	return nil
}

func (c *Config) loadEnv() error {
	if v := os.Getenv(envListenAddr); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		c.LogLevel = parseLogLevel(v)
	}
	if v := os.Getenv(envApartmentName); v != "" {
		c.ApartmentName = v
	}

	var err error
	if v := os.Getenv(envWakeCapacity); v != "" {
		if c.WakeCapacity, err = strconv.Atoi(v); err != nil {
			return fmt.Errorf("%s: %w", envWakeCapacity, err)
		}
	}
	if v := os.Getenv(envMailboxCapacity); v != "" {
		if c.MailboxCapacity, err = strconv.Atoi(v); err != nil {
			return fmt.Errorf("%s: %w", envMailboxCapacity, err)
		}
	}
	if v := os.Getenv(envStopRetryInterval); v != "" {
		if c.StopRetryInterval, err = time.ParseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", envStopRetryInterval, err)
		}
	}
	if v := os.Getenv(envShutdownTimeout); v != "" {
		if c.ShutdownTimeout, err = time.ParseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", envShutdownTimeout, err)
		}
	}
	return nil
}

func (c *Config) validate() error {
	switch {
	case c.WakeCapacity < 1:
		return fmt.Errorf("wake capacity must be positive, got %d", c.WakeCapacity)
	case c.MailboxCapacity < 1:
		return fmt.Errorf("mailbox capacity must be positive, got %d", c.MailboxCapacity)
	case c.StopRetryInterval <= 0:
		return fmt.Errorf("stop retry interval must be positive, got %s", c.StopRetryInterval)
	case c.ShutdownTimeout <= 0:
		return fmt.Errorf("shutdown timeout must be positive, got %s", c.ShutdownTimeout)
	}
	return nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
