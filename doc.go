// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Package sysprobe implements a client and server for remote inspection of
// host facts: operating system, time, uptime, memory, drives, and file access
// rights and ownership.
//
// # Frames
//
// Client and server exchange frames over a TCP connection. Each frame has the
// following layout, with all integers in big-endian order:
//
//	[size: uint64][kind: uint8][mode: uint8][payload: size-10 bytes]
//
// The size counts the whole frame, including the size field, and may not
// exceed [MaxFrameSize]. The kind is one of the [Kind] constants, and the
// mode is one of the [Mode] constants. A receiver accumulates input until
// [Validate] reports that it holds a complete frame.
//
// # Key exchange
//
// Each connection begins with a key exchange. The client sends its public key
// in a KeyRequest frame with mode None. The server replies with a KeyResponse
// frame with mode Asymmetric, carrying the session key for the connection
// encrypted under the client's public key. After that, requests and
// responses are sent with mode Symmetric, encrypted with the session key.
// Key material is managed by a [KeyStore]; see package keystore.
//
// # Requests
//
// A [Request] names a [RequestKind], and for rights and owner requests, a
// file path. Each request is answered by a single [Response], whose concrete
// type is determined by the request kind, or by an [ErrorResult] if the
// request failed.
//
// # Servers
//
// A [Server] holds a fixed table of session slots. Each connection occupies a
// slot until it closes, fails, or is idle for longer than the idle timeout:
//
//	srv := sysprobe.NewServer(keys, info, sysprobe.DefaultDispatch(), nil)
//	err := srv.Serve(ctx, lst)
//
// Requests are answered by handlers registered in a [Dispatch], which consult
// an [InfoProvider]. See package hostinfo for an implementation.
//
// # Clients
//
// A [Connector] sends requests to one server, one at a time:
//
//	c := sysprobe.NewConnector(1, "localhost:7000", keys, nil)
//	mem, err := c.Memory(ctx)
//
// The connector connects on first use, and reconnects when its connection has
// been idle for longer than its idle timeout. It does not otherwise retry.
package sysprobe
