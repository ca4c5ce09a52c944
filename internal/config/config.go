// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Package config loads sysprobe configuration files.
//
// A configuration file is TOML with three optional tables:
//
//	[server]
//	addr = "localhost:7000"
//	max_sessions = 100
//	idle_timeout = "20s"
//	sweep_interval = "5s"
//	metrics_addr = "localhost:9090"
//
//	[client]
//	servers = ["localhost:7000"]
//	idle_timeout = "20s"
//	dial_timeout = "5s"
//	read_timeout = "10s"
//	rsa_bits = 2048
//
//	[log]
//	level = "info"
//	format = "console"
//
// Settings omitted from the file keep their default values.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/creachadair/sysprobe"
	"github.com/creachadair/sysprobe/keystore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// DefaultAddr is the default server listen address.
const DefaultAddr = "localhost:7000"

// Config is the complete configuration of a sysprobe process.
type Config struct {
	Server ServerConfig `toml:"server"`
	Client ClientConfig `toml:"client"`
	Log    LogConfig    `toml:"log"`
}

// ServerConfig configures the serve command.
type ServerConfig struct {
	Addr          string        `toml:"addr"`
	MaxSessions   int           `toml:"max_sessions"`
	IdleTimeout   time.Duration `toml:"idle_timeout"`
	SweepInterval time.Duration `toml:"sweep_interval"`
	MetricsAddr   string        `toml:"metrics_addr"` // empty to disable
}

// ClientConfig configures the query and shell commands.
type ClientConfig struct {
	Servers     []string      `toml:"servers"`
	IdleTimeout time.Duration `toml:"idle_timeout"`
	DialTimeout time.Duration `toml:"dial_timeout"`
	ReadTimeout time.Duration `toml:"read_timeout"`
	RSABits     int           `toml:"rsa_bits"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `toml:"level"`  // trace, debug, info, warn, error, or off
	Format string `toml:"format"` // console or json
}

// Default returns a configuration with default values for all settings.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:        DefaultAddr,
			MaxSessions: sysprobe.DefaultMaxSessions,
			IdleTimeout: sysprobe.DefaultIdleTimeout,
		},
		Client: ClientConfig{
			IdleTimeout: sysprobe.DefaultIdleTimeout,
			DialTimeout: sysprobe.DefaultDialTimeout,
			ReadTimeout: sysprobe.DefaultReadTimeout,
			RSABits:     keystore.DefaultBits,
		},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads the configuration file at path over the defaults, and validates
// the result. If path == "", Load returns the defaults. Keys not recognized
// by Config are reported as errors.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if keys := meta.Undecoded(); len(keys) != 0 {
		names := make([]string, len(keys))
		for i, k := range keys {
			names[i] = k.String()
		}
		return Config{}, fmt.Errorf("config load failed (%s): unknown keys: %s", path, strings.Join(names, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

// Validate reports an error if any setting of c is out of range.
func (c Config) Validate() error {
	return errors.Join(c.Server.Validate(), c.Client.Validate(), c.Log.Validate())
}

// Validate reports an error if any setting of c is out of range.
func (c ServerConfig) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return errors.New("server: missing addr")
	case c.MaxSessions <= 0:
		return fmt.Errorf("server: max_sessions must be positive (got %d)", c.MaxSessions)
	case c.IdleTimeout <= 0:
		return fmt.Errorf("server: idle_timeout must be positive (got %v)", c.IdleTimeout)
	case c.SweepInterval < 0:
		return fmt.Errorf("server: sweep_interval must not be negative (got %v)", c.SweepInterval)
	}
	return nil
}

// Validate reports an error if any setting of c is out of range.
func (c ClientConfig) Validate() error {
	for i, s := range c.Servers {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("client: servers[%d] is empty", i)
		}
	}
	switch {
	case c.IdleTimeout <= 0:
		return fmt.Errorf("client: idle_timeout must be positive (got %v)", c.IdleTimeout)
	case c.DialTimeout <= 0:
		return fmt.Errorf("client: dial_timeout must be positive (got %v)", c.DialTimeout)
	case c.ReadTimeout <= 0:
		return fmt.Errorf("client: read_timeout must be positive (got %v)", c.ReadTimeout)
	case c.RSABits < 1024:
		return fmt.Errorf("client: rsa_bits must be at least 1024 (got %d)", c.RSABits)
	}
	return nil
}

// Validate reports an error if the level or format of c is not recognized.
func (c LogConfig) Validate() error {
	if _, ok := ParseLevel(c.Level); !ok {
		return fmt.Errorf("log: unknown level %q", c.Level)
	}
	switch strings.ToLower(strings.TrimSpace(c.Format)) {
	case "console", "json":
		return nil
	default:
		return fmt.Errorf("log: unknown format %q", c.Format)
	}
}

// ParseLevel parses a log level name. It accepts the zerolog level names and
// a few common aliases.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "", "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.NoLevel, false
	}
}

// Options returns server options for c that log to log and register metrics
// with reg. Either may be nil.
func (c ServerConfig) Options(log *zerolog.Logger, reg prometheus.Registerer) *sysprobe.ServerOptions {
	return &sysprobe.ServerOptions{
		MaxSessions:   c.MaxSessions,
		IdleTimeout:   c.IdleTimeout,
		SweepInterval: c.SweepInterval,
		Logger:        log,
		Registerer:    reg,
	}
}

// Options returns connector options for c that log to log, which may be nil.
func (c ClientConfig) Options(log *zerolog.Logger) *sysprobe.ConnectorOptions {
	return &sysprobe.ConnectorOptions{
		IdleTimeout: c.IdleTimeout,
		DialTimeout: c.DialTimeout,
		ReadTimeout: c.ReadTimeout,
		Logger:      log,
	}
}

// KeyStore returns a new key store using the RSA key size of c.
func (c ClientConfig) KeyStore() *keystore.Store {
	return keystore.New(&keystore.Options{Bits: c.RSABits})
}
