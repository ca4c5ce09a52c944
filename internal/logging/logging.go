// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Package logging constructs the loggers used by sysprobe commands.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/creachadair/sysprobe/internal/config"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// Environment variables that override the log configuration.
const (
	EnvLogLevel  = "SYSPROBE_LOG_LEVEL"
	EnvLogFormat = "SYSPROBE_LOG_FORMAT"
)

// New constructs a logger writing to w as described by cfg, after applying
// any overrides from the environment. Console output to a terminal is
// colorized.
func New(cfg config.LogConfig, w io.Writer) (zerolog.Logger, error) {
	ApplyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return zerolog.Nop(), err
	}
	level, _ := config.ParseLevel(cfg.Level)

	var out io.Writer = w
	if strings.EqualFold(strings.TrimSpace(cfg.Format), "console") {
		cw := zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly, NoColor: true}
		if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
			cw.Out = colorable.NewColorable(f)
			cw.NoColor = false
		}
		out = cw
	}
	return zerolog.New(out).Level(level).With().Timestamp().Str("app", "sysprobe").Logger(), nil
}

// ApplyEnv updates cfg with the settings from EnvLogLevel and EnvLogFormat,
// if they are set.
func ApplyEnv(cfg *config.LogConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Level = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Format = v
	}
}

