// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package main

import (
	"context"
	"os"

	"github.com/creachadair/command"
	"github.com/creachadair/sysprobe"
)

func runQuery(env *command.Env) error {
	if len(env.Args) < 2 {
		return env.Usagef("missing server address or request")
	} else if err := checkAddr(env.Args[0]); err != nil {
		return env.Usagef("%v", err)
	}
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	c := sysprobe.NewConnector(1, env.Args[0], cfg.Client.KeyStore(), cfg.Client.Options(&log))
	defer c.Close()
	return runRequest(context.Background(), os.Stdout, c, env.Args[1:])
}

func runShell(env *command.Env) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	sh := &shell{
		out:  os.Stdout,
		log:  log,
		keys: cfg.Client.KeyStore(),
		opts: cfg.Client.Options(&log),
	}
	defer sh.close()

	ctx := context.Background()
	for _, addr := range append(env.Args, cfg.Client.Servers...) {
		if err := sh.add(ctx, addr); err != nil {
			log.Warn().Err(err).Str("addr", addr).Msg("server not added")
		}
	}
	if len(sh.conns) == 0 {
		os.Stdout.WriteString("(No servers configured yet; use 'add <host:port>')\n")
	} else {
		sh.active = 0
	}
	return sh.run(ctx, os.Stdin)
}
