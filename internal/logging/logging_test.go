// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package logging_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/creachadair/sysprobe/internal/config"
	"github.com/creachadair/sysprobe/internal/logging"
)

func TestJSON(t *testing.T) {
	t.Setenv(logging.EnvLogLevel, "")
	t.Setenv(logging.EnvLogFormat, "")

	var buf bytes.Buffer
	log, err := logging.New(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("New: unexpected error: %v", err)
	}
	log.Info().Msg("hidden")
	log.Warn().Int("slot", 3).Msg("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("Got %d lines, want 1:\n%s", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("Invalid JSON %q: %v", lines[0], err)
	}
	for key, want := range map[string]any{
		"level":   "warn",
		"message": "shown",
		"app":     "sysprobe",
		"slot":    float64(3),
	} {
		if got := rec[key]; got != want {
			t.Errorf("Field %q: got %v, want %v", key, got, want)
		}
	}
	if _, ok := rec["time"]; !ok {
		t.Error("Missing timestamp")
	}
}

func TestConsole(t *testing.T) {
	t.Setenv(logging.EnvLogLevel, "")
	t.Setenv(logging.EnvLogFormat, "")

	var buf bytes.Buffer
	log, err := logging.New(config.LogConfig{Level: "info", Format: "console"}, &buf)
	if err != nil {
		t.Fatalf("New: unexpected error: %v", err)
	}
	log.Info().Str("remote", "10.0.0.1:5000").Msg("session opened")
	got := buf.String()
	for _, want := range []string{"session opened", "remote=10.0.0.1:5000", "INF"} {
		if !strings.Contains(got, want) {
			t.Errorf("Output %q does not contain %q", got, want)
		}
	}
	if strings.Contains(got, "\x1b[") {
		t.Errorf("Output to a buffer is colorized: %q", got)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv(logging.EnvLogLevel, "error")
	t.Setenv(logging.EnvLogFormat, "json")

	var buf bytes.Buffer
	log, err := logging.New(config.LogConfig{Level: "debug", Format: "console"}, &buf)
	if err != nil {
		t.Fatalf("New: unexpected error: %v", err)
	}
	log.Warn().Msg("hidden")
	log.Error().Msg("shown")
	got := strings.TrimSpace(buf.String())
	if !strings.HasPrefix(got, "{") || strings.Contains(got, "hidden") || !strings.Contains(got, "shown") {
		t.Errorf("Output: got %q", got)
	}

	t.Setenv(logging.EnvLogLevel, "bogus")
	if _, err := logging.New(config.LogConfig{}, &buf); err == nil {
		t.Error("New with invalid level: got nil error")
	}
}
