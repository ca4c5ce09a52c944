// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package sysprobe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultDialTimeout is the default time allowed to open a connection.
	DefaultDialTimeout = 5 * time.Second

	// DefaultReadTimeout is the default time allowed for one exchange.
	DefaultReadTimeout = 10 * time.Second
)

// ConnectorOptions are settings for a [Connector]. A nil *ConnectorOptions
// provides default values for all fields.
type ConnectorOptions struct {
	// IdleTimeout is how long a connection may go unused before the connector
	// replaces it. It should not exceed the idle timeout of the server.
	// If zero, DefaultIdleTimeout is used.
	IdleTimeout time.Duration

	// DialTimeout bounds the time to open a connection.
	// If zero, DefaultDialTimeout is used.
	DialTimeout time.Duration

	// ReadTimeout bounds the time for one request/response exchange.
	// If zero, DefaultReadTimeout is used.
	ReadTimeout time.Duration

	// Dial, if non-nil, is used to open connections instead of a net.Dialer.
	Dial func(ctx context.Context, network, addr string) (net.Conn, error)

	// Logger receives connector logs. If nil, logs are discarded.
	Logger *zerolog.Logger

	// Clock, if non-nil, is used to read the current time for idle expiry.
	// Connection deadlines always use the wall clock.
	Clock func() time.Time
}

func (o *ConnectorOptions) idleTimeout() time.Duration {
	if o == nil || o.IdleTimeout <= 0 {
		return DefaultIdleTimeout
	}
	return o.IdleTimeout
}

func (o *ConnectorOptions) dialTimeout() time.Duration {
	if o == nil || o.DialTimeout <= 0 {
		return DefaultDialTimeout
	}
	return o.DialTimeout
}

func (o *ConnectorOptions) readTimeout() time.Duration {
	if o == nil || o.ReadTimeout <= 0 {
		return DefaultReadTimeout
	}
	return o.ReadTimeout
}

func (o *ConnectorOptions) dial() func(context.Context, string, string) (net.Conn, error) {
	if o == nil || o.Dial == nil {
		return new(net.Dialer).DialContext
	}
	return o.Dial
}

func (o *ConnectorOptions) logger() zerolog.Logger {
	if o == nil || o.Logger == nil {
		return zerolog.Nop()
	}
	return *o.Logger
}

func (o *ConnectorOptions) clock() func() time.Time {
	if o == nil || o.Clock == nil {
		return time.Now
	}
	return o.Clock
}

// ConnState is the state of a Connector.
type ConnState byte

const (
	StateDisconnected ConnState = iota // no connection
	StateHandshaking                   // connected, exchanging keys
	StateReady                         // ready to send requests
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state:%d", byte(s))
	}
}

// A Connector is a client for one server. It connects lazily, when the first
// request is sent, and replaces its connection whenever the connection has
// been unused for longer than the idle timeout. Each new connection begins
// with a key exchange.
//
// A Connector sends one request at a time. Its methods are safe for
// concurrent use, but concurrent requests are serialized.
type Connector struct {
	id   ConnID
	keys KeyStore

	idle        time.Duration
	dialTimeout time.Duration
	readTimeout time.Duration
	dialer      func(context.Context, string, string) (net.Conn, error)
	now         func() time.Time
	log         zerolog.Logger

	μ     sync.Mutex
	addr  string
	state ConnState
	tc    *transport
	alive bool // result of the last liveness check
}

// NewConnector constructs a connector for the server at addr. The id
// identifies the connector's session key in keys, and must be unique among
// connectors sharing the same key store.
func NewConnector(id ConnID, addr string, keys KeyStore, opts *ConnectorOptions) *Connector {
	return &Connector{
		id:          id,
		keys:        keys,
		idle:        opts.idleTimeout(),
		dialTimeout: opts.dialTimeout(),
		readTimeout: opts.readTimeout(),
		dialer:      opts.dial(),
		now:         opts.clock(),
		log:         opts.logger(),
		addr:        addr,
	}
}

// ID returns the connection identity of c.
func (c *Connector) ID() ConnID { return c.id }

// Addr returns the server address of c.
func (c *Connector) Addr() string {
	c.μ.Lock()
	defer c.μ.Unlock()
	return c.addr
}

// State reports the current connection state of c.
func (c *Connector) State() ConnState {
	c.μ.Lock()
	defer c.μ.Unlock()
	return c.state
}

// Alive reports whether the most recent call to Check succeeded.
func (c *Connector) Alive() bool {
	c.μ.Lock()
	defer c.μ.Unlock()
	return c.alive
}

// SetServer closes any current connection and changes the server address.
// The next request connects to the new address.
func (c *Connector) SetServer(addr string) {
	c.μ.Lock()
	defer c.μ.Unlock()
	c.dropLocked()
	c.addr = addr
	c.alive = false
}

// Close closes the current connection, if any. The connector remains usable;
// the next request opens a new connection.
func (c *Connector) Close() error {
	c.μ.Lock()
	defer c.μ.Unlock()
	return c.dropLocked()
}

// Check sends an OS info request to the server, and reports whether it
// succeeded.
func (c *Connector) Check(ctx context.Context) bool {
	_, err := c.Execute(ctx, Request{Kind: RequestOSInfo})
	if err != nil {
		c.log.Debug().Err(err).Str("addr", c.Addr()).Msg("liveness check failed")
	}
	c.μ.Lock()
	defer c.μ.Unlock()
	c.alive = err == nil
	return c.alive
}

// Execute sends req to the server and returns its response.
//
// If c has no connection, or its connection has expired, Execute connects
// and exchanges keys first. Execute does not otherwise retry: if the exchange
// fails, the error is reported and the connection is discarded, so that the
// next call reconnects.
//
// A failure reported by the server is returned as an *Error with the code
// from the server. Transport failures have code CodeConnectFailed, and
// malformed replies have code CodeInvalidResponse.
func (c *Connector) Execute(ctx context.Context, req Request) (Response, error) {
	c.μ.Lock()
	defer c.μ.Unlock()

	if c.tc.expired(c.now(), c.idle) {
		c.dropLocked()
		if err := c.connectLocked(ctx); err != nil {
			return nil, err
		}
	}
	rsp, err := c.exchangeLocked(ctx, req)
	if err != nil {
		c.dropLocked()
		return nil, err
	}
	if e, ok := rsp.(ErrorResult); ok {
		return nil, e.Err()
	}
	return rsp, nil
}

// connectLocked opens a connection and exchanges keys.
func (c *Connector) connectLocked(ctx context.Context) error {
	c.state = StateHandshaking
	c.log.Debug().Str("addr", c.addr).Stringer("id", c.id).Msg("connecting")

	dctx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()
	conn, err := c.dialer(dctx, "tcp", c.addr)
	if err != nil {
		c.state = StateDisconnected
		return &Error{Code: CodeConnectFailed, Err: fmt.Errorf("dial %s: %w", c.addr, err)}
	}
	tc := &transport{conn: conn}

	if err := c.handshake(ctx, tc); err != nil {
		conn.Close()
		c.state = StateDisconnected
		return &Error{Code: CodeConnectFailed, Err: fmt.Errorf("handshake: %w", err)}
	}
	c.tc = tc
	c.state = StateReady
	return nil
}

func (c *Connector) handshake(ctx context.Context, tc *transport) error {
	if err := c.keys.GenerateKeyPair(); err != nil {
		return err
	}
	pub, err := c.keys.PublicKey()
	if err != nil {
		return err
	}
	frame, err := Message{Kind: KindKeyRequest, Mode: ModeNone, Payload: pub}.Encode(c.keys, c.id)
	if err != nil {
		return err
	}
	reply, err := tc.roundTrip(ctx, frame, c.now(), c.readTimeout)
	if err != nil {
		return err
	}
	msg, err := DecodeMessage(reply, c.keys, c.id)
	if err != nil {
		return err
	} else if msg.Kind != KindKeyResponse || msg.Mode != ModeAsymmetric {
		return fmt.Errorf("unexpected reply %v", msg)
	}
	return c.keys.ImportKey(c.id, msg.Payload)
}

// exchangeLocked sends req on the current connection and decodes the reply.
func (c *Connector) exchangeLocked(ctx context.Context, req Request) (Response, error) {
	frame, err := Message{Kind: KindRequest, Mode: ModeSymmetric, Payload: req.Encode()}.Encode(c.keys, c.id)
	if err != nil {
		return nil, &Error{Code: CodeInvalidArgument, Err: err}
	}
	reply, err := c.tc.roundTrip(ctx, frame, c.now(), c.readTimeout)
	if err != nil {
		return nil, err
	}
	msg, err := DecodeMessage(reply, c.keys, c.id)
	if err != nil {
		return nil, err
	} else if msg.Kind != KindResponse {
		return nil, errorf(CodeInvalidResponse, "unexpected reply %v", msg)
	}
	rsp, err := DecodeResponse(msg.Payload)
	if err != nil {
		return nil, err
	}
	if got, want := rsp.ResponseKind(), req.Kind.ResponseKind(); got != ResponseError && got != want {
		return nil, errorf(CodeInvalidResponse, "got %v in reply to %v, want %v", got, req.Kind, want)
	}
	return rsp, nil
}

// dropLocked closes the current connection and discards its session key.
func (c *Connector) dropLocked() error {
	c.state = StateDisconnected
	if c.tc == nil {
		return nil
	}
	err := c.tc.conn.Close()
	c.tc = nil
	c.keys.DiscardKey(c.id)
	return err
}

// A transport is an open connection to a server.
type transport struct {
	conn     net.Conn
	lastSend time.Time
}

// expired reports whether t is unusable at time now because it is missing
// or has been idle longer than timeout.
func (t *transport) expired(now time.Time, timeout time.Duration) bool {
	return t == nil || t.conn == nil || now.Sub(t.lastSend) > timeout
}

// roundTrip writes frame and reads one complete reply frame. The exchange is
// bounded by timeout and by ctx. The connection deadline is set from the wall
// clock; now records the send time for idle expiry.
func (t *transport) roundTrip(ctx context.Context, frame []byte, now time.Time, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	t.conn.SetDeadline(deadline)
	stop := context.AfterFunc(ctx, func() { t.conn.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	t.lastSend = now
	if _, err := t.conn.Write(frame); err != nil {
		return nil, &Error{Code: CodeConnectFailed, Err: fmt.Errorf("send: %w", ctxErr(ctx, err))}
	}
	return t.readFrame(ctx)
}

// readFrame accumulates input until it holds exactly one complete frame.
func (t *transport) readFrame(ctx context.Context) ([]byte, error) {
	buf := make([]byte, 0, readChunkSize)
	var chunk [readChunkSize]byte
	for {
		n, err := t.conn.Read(chunk[:])
		buf = append(buf, chunk[:n]...)

		size, cerr := CheckFrame(buf)
		if cerr != nil {
			return nil, cerr
		} else if Validate(buf, len(buf)) {
			return buf, nil
		} else if size != 0 && len(buf) > size {
			return nil, errorf(CodeInvalidResponse, "%d bytes after end of frame", len(buf)-size)
		}

		if errors.Is(err, io.EOF) || (err == nil && n == 0) {
			return nil, errorf(CodeConnectFailed, "connection closed by server")
		} else if err != nil {
			return nil, &Error{Code: CodeConnectFailed, Err: fmt.Errorf("receive: %w", ctxErr(ctx, err))}
		}
	}
}

// ctxErr reports the error from ctx if it has ended, otherwise err.
func ctxErr(ctx context.Context, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	return err
}

// call sends req with c and converts the response to type T.
func call[T Response](ctx context.Context, c *Connector, req Request) (T, error) {
	var zero T
	rsp, err := c.Execute(ctx, req)
	if err != nil {
		return zero, err
	}
	v, ok := rsp.(T)
	if !ok {
		return zero, errorf(CodeInvalidResponse, "got %T in reply to %v", rsp, req.Kind)
	}
	return v, nil
}

// OSInfo requests the operating system of the server host.
func (c *Connector) OSInfo(ctx context.Context) (OSInfo, error) {
	return call[OSInfo](ctx, c, Request{Kind: RequestOSInfo})
}

// Time requests the current time on the server host.
func (c *Connector) Time(ctx context.Context) (TimeInfo, error) {
	return call[TimeInfo](ctx, c, Request{Kind: RequestTime})
}

// Uptime requests the time since the server host booted.
func (c *Connector) Uptime(ctx context.Context) (time.Duration, error) {
	t, err := call[TimeInfo](ctx, c, Request{Kind: RequestUptime})
	return t.Duration(), err
}

// Memory requests the memory totals of the server host.
func (c *Connector) Memory(ctx context.Context) (MemoryInfo, error) {
	return call[MemoryInfo](ctx, c, Request{Kind: RequestMemory})
}

// Drives requests the mounted volumes of the server host.
func (c *Connector) Drives(ctx context.Context) (DriveList, error) {
	return call[DriveList](ctx, c, Request{Kind: RequestDrives})
}

// Rights requests the access control entries of path on the server host.
func (c *Connector) Rights(ctx context.Context, path string) (AccessList, error) {
	return call[AccessList](ctx, c, Request{Kind: RequestRights, Path: path})
}

// Owner requests the owner of path on the server host.
func (c *Connector) Owner(ctx context.Context, path string) (OwnerInfo, error) {
	return call[OwnerInfo](ctx, c, Request{Kind: RequestOwner, Path: path})
}
