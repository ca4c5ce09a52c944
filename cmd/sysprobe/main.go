// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Program sysprobe serves and queries host information over the network.
package main

import (
	"os"
	"path/filepath"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"github.com/creachadair/sysprobe/internal/config"
	"github.com/creachadair/sysprobe/internal/logging"
	"github.com/rs/zerolog"
)

var globalFlags struct {
	Config string `flag:"config,Configuration file (TOML)"`
}

func main() {
	root := &command.C{
		Name: filepath.Base(os.Args[0]),
		Help: `Serve and query host information.

A server answers requests for the operating system, clock, uptime, memory,
mounted volumes, and file ownership and access rights of its host. Each
client connection exchanges keys when it opens, and requests and replies
are encrypted with the session key.

Settings are read from the file named by --config, if any. Flags given to
a command override the settings in the file.`,
		SetFlags: command.Flags(flax.MustBind, &globalFlags),
		Commands: []*command.C{
			{
				Name:     "serve",
				Usage:    "[--addr host:port]",
				Help:     "Serve requests for information about this host.",
				SetFlags: command.Flags(flax.MustBind, &serveFlags),
				Run:      runServe,
			},
			{
				Name:  "query",
				Usage: "<host:port> <request> [path]",
				Help: `Send one request to a server and print the reply.

Requests are: os, time, uptime, memory, drives, rights <path>, owner <path>.`,
				Run: runQuery,
			},
			{
				Name:  "shell",
				Usage: "[host:port ...]",
				Help: `Start an interactive session.

The named servers are added to the session, followed by any servers listed
in the configuration file. Type "help" in the session for a list of commands.`,
				Run: runShell,
			},
			command.VersionCommand(),
			command.HelpCommand(nil),
		},
	}
	command.RunOrFail(root.NewEnv(nil).MergeFlags(true), os.Args[1:])
}

// setup loads the configuration file and constructs a logger from it.
func setup() (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(globalFlags.Config)
	if err != nil {
		return cfg, zerolog.Nop(), err
	}
	log, err := logging.New(cfg.Log, os.Stderr)
	return cfg, log, err
}
