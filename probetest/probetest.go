// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Package probetest provides support code for testing clients and servers.
package probetest

import (
	"context"
	"errors"
	"net"
	"sync/atomic"

	"github.com/creachadair/sysprobe"
	"github.com/creachadair/taskgroup"
)

// Local is a server listening on a loopback address, with a connector for
// it, suitable for testing.
type Local struct {
	Server *sysprobe.Server
	Client *sysprobe.Connector
	Addr   string

	ServerKeys sysprobe.KeyStore
	ClientKeys sysprobe.KeyStore

	copts  *sysprobe.ConnectorOptions
	nextID atomic.Uint32
	stop   context.CancelFunc
	tasks  *taskgroup.Group
}

// Options are settings for NewLocal. A nil *Options provides defaults.
type Options struct {
	// Info answers requests. If nil, Info{} is used.
	Info sysprobe.InfoProvider

	// Dispatch routes requests. If nil, sysprobe.DefaultDispatch is used.
	Dispatch *sysprobe.Dispatch

	// ServerKeys and ClientKeys are the key stores for each side. If nil,
	// new *Keys values are used.
	ServerKeys sysprobe.KeyStore
	ClientKeys sysprobe.KeyStore

	Server    *sysprobe.ServerOptions
	Connector *sysprobe.ConnectorOptions
}

// NewLocal starts a server on a loopback address and constructs a connector
// for it. The caller must call Stop when the pair is no longer needed.
func NewLocal(opts *Options) (*Local, error) {
	if opts == nil {
		opts = new(Options)
	}
	info := opts.Info
	if info == nil {
		info = Info{}
	}
	disp := opts.Dispatch
	if disp == nil {
		disp = sysprobe.DefaultDispatch()
	}
	skeys, ckeys := opts.ServerKeys, opts.ClientKeys
	if skeys == nil {
		skeys = &Keys{Name: "server"}
	}
	if ckeys == nil {
		ckeys = &Keys{Name: "client"}
	}

	lst, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	loc := &Local{
		Server:     sysprobe.NewServer(skeys, info, disp, opts.Server),
		Addr:       lst.Addr().String(),
		ServerKeys: skeys,
		ClientKeys: ckeys,
		copts:      opts.Connector,
		stop:       cancel,
		tasks:      taskgroup.New(nil),
	}
	loc.tasks.Go(func() error { return loc.Server.Serve(ctx, lst) })
	loc.Client = loc.Dial()
	return loc, nil
}

// Dial returns a new connector for the server, with a fresh identity in the
// client key store.
func (l *Local) Dial() *sysprobe.Connector {
	id := sysprobe.ConnID(l.nextID.Add(1))
	return sysprobe.NewConnector(id, l.Addr, l.ClientKeys, l.copts)
}

// Stop closes the client and shuts down the server, and blocks until the
// server has exited.
func (l *Local) Stop() error {
	cerr := l.Client.Close()
	l.stop()
	serr := l.tasks.Wait()
	return errors.Join(serr, cerr)
}
