// Package config loads the servopidctl daemon configuration from TOML.
package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/hipsterbrown/servopid/servopid"
	"github.com/hipsterbrown/servopid/transports"
)

// Config is the resolved daemon configuration.
type Config struct {
	Target        string
	BaudRate      int
	PollInterval  time.Duration
	PollTelemetry bool
	PidEnabled    bool
	HTTPAddr      string
	Profile       string
}

type fileConfig struct {
	Target        string `toml:"target"`
	BaudRate      int    `toml:"baud_rate"`
	PollInterval  string `toml:"poll_interval"`
	PollTelemetry bool   `toml:"poll_telemetry"`
	PidEnabled    bool   `toml:"pid_enabled"`
	HTTPAddr      string `toml:"http_addr"`
	Profile       string `toml:"profile"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Target:        transports.TargetMock,
		BaudRate:      transports.DefaultBaudRate,
		PollInterval:  servopid.DefaultPollInterval,
		PollTelemetry: true,
		PidEnabled:    false,
		HTTPAddr:      "127.0.0.1:8080",
	}
}

// Load reads path over the defaults. Keys absent from the file keep their
// default value.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("target") {
		cfg.Target = strings.TrimSpace(raw.Target)
	}

	if meta.IsDefined("baud_rate") {
		cfg.BaudRate = raw.BaudRate
	}

	if meta.IsDefined("poll_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.PollInterval))
		if err != nil {
			return Config{}, fmt.Errorf("parse poll_interval: %w", err)
		}
		cfg.PollInterval = d
	}

	if meta.IsDefined("poll_telemetry") {
		cfg.PollTelemetry = raw.PollTelemetry
	}

	if meta.IsDefined("pid_enabled") {
		cfg.PidEnabled = raw.PidEnabled
	}

	if meta.IsDefined("http_addr") {
		cfg.HTTPAddr = strings.TrimSpace(raw.HTTPAddr)
	}

	if meta.IsDefined("profile") {
		cfg.Profile = strings.TrimSpace(raw.Profile)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %v", c.PollInterval)
	}
	if c.BaudRate <= 0 {
		return fmt.Errorf("baud_rate must be positive, got %d", c.BaudRate)
	}
	if c.HTTPAddr != "" {
		if _, _, err := net.SplitHostPort(c.HTTPAddr); err != nil {
			return fmt.Errorf("http_addr: %w", err)
		}
	}
	if c.Target == "" && c.Profile != "" {
		return errors.New("profile requires a target")
	}
	return nil
}
