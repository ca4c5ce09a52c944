// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/creachadair/command"
	"github.com/creachadair/sysprobe"
	"github.com/creachadair/sysprobe/hostinfo"
	"github.com/creachadair/sysprobe/internal/config"
	"github.com/creachadair/sysprobe/keystore"
	"github.com/creachadair/taskgroup"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var serveFlags struct {
	Addr        string        `flag:"addr,Listen address (overrides the config file)"`
	MaxSessions int           `flag:"max-sessions,Maximum concurrent sessions (overrides the config file)"`
	IdleTimeout time.Duration `flag:"idle-timeout,Idle session timeout (overrides the config file)"`
	MetricsAddr string        `flag:"metrics-addr,Address to serve /metrics (overrides the config file)"`
}

// applyServeFlags updates cfg with the flags that were set.
func applyServeFlags(cfg *config.ServerConfig) error {
	if serveFlags.Addr != "" {
		cfg.Addr = serveFlags.Addr
	}
	if serveFlags.MaxSessions != 0 {
		cfg.MaxSessions = serveFlags.MaxSessions
	}
	if serveFlags.IdleTimeout != 0 {
		cfg.IdleTimeout = serveFlags.IdleTimeout
	}
	if serveFlags.MetricsAddr != "" {
		cfg.MetricsAddr = serveFlags.MetricsAddr
	}
	return cfg.Validate()
}

func runServe(env *command.Env) error {
	if len(env.Args) != 0 {
		return env.Usagef("extra arguments: %q", env.Args)
	}
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	if err := applyServeFlags(&cfg.Server); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	srv := sysprobe.NewServer(keystore.New(nil), hostinfo.New(), sysprobe.DefaultDispatch(),
		cfg.Server.Options(&log, reg))

	lst, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g := taskgroup.New(nil)
	if cfg.Server.MetricsAddr != "" {
		hs, err := metricsServer(cfg.Server.MetricsAddr, reg, log)
		if err != nil {
			lst.Close()
			return err
		}
		g.Go(func() error {
			<-ctx.Done()
			return hs.Shutdown(context.Background())
		})
	}
	g.Go(func() error {
		defer cancel()
		return srv.Serve(ctx, lst)
	})
	err = g.Wait()
	log.Info().Err(err).Msg("server exited")
	return err
}

// metricsServer starts an HTTP server exporting the metrics of reg at
// /metrics on addr.
func metricsServer(addr string, reg *prometheus.Registry, log zerolog.Logger) (*http.Server, error) {
	lst, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	hs := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := hs.Serve(lst); !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
	log.Info().Str("addr", lst.Addr().String()).Msg("serving metrics")
	return hs, nil
}
