// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package sysprobe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/creachadair/taskgroup"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultMaxSessions is the default capacity of the session table.
	DefaultMaxSessions = 100

	// DefaultIdleTimeout is the default inactivity period after which a
	// session is evicted, and after which a client reconnects.
	DefaultIdleTimeout = 20 * time.Second

	readChunkSize = 1024

	// Bounds on the delay before accepting again after a failed accept.
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// ServerOptions are settings for a [Server]. A nil *ServerOptions provides
// default values for all fields.
type ServerOptions struct {
	// MaxSessions is the number of concurrent sessions. If zero,
	// DefaultMaxSessions is used.
	MaxSessions int

	// IdleTimeout is how long a session may go without receiving data
	// before it is evicted. If zero, DefaultIdleTimeout is used.
	IdleTimeout time.Duration

	// SweepInterval is how often idle sessions are checked for. If zero,
	// the value of IdleTimeout is used.
	SweepInterval time.Duration

	// Logger receives server logs. If nil, logs are discarded.
	Logger *zerolog.Logger

	// Registerer, if non-nil, is used to register server metrics.
	Registerer prometheus.Registerer

	// Clock, if non-nil, is used to read the current time.
	Clock func() time.Time
}

func (o *ServerOptions) maxSessions() int {
	if o == nil || o.MaxSessions <= 0 {
		return DefaultMaxSessions
	}
	return o.MaxSessions
}

func (o *ServerOptions) idleTimeout() time.Duration {
	if o == nil || o.IdleTimeout <= 0 {
		return DefaultIdleTimeout
	}
	return o.IdleTimeout
}

func (o *ServerOptions) sweepInterval() time.Duration {
	if o == nil || o.SweepInterval <= 0 {
		return o.idleTimeout()
	}
	return o.SweepInterval
}

func (o *ServerOptions) logger() zerolog.Logger {
	if o == nil || o.Logger == nil {
		return zerolog.Nop()
	}
	return *o.Logger
}

func (o *ServerOptions) registerer() prometheus.Registerer {
	if o == nil {
		return nil
	}
	return o.Registerer
}

func (o *ServerOptions) clock() func() time.Time {
	if o == nil || o.Clock == nil {
		return time.Now
	}
	return o.Clock
}

// A Server answers requests from clients using an InfoProvider.
//
// A server holds a fixed number of session slots. Each accepted connection
// occupies one slot until the peer closes it, a protocol error occurs, or it
// is idle for longer than the idle timeout. All changes to the session table
// and to the server's key store are made by a single goroutine, which
// processes I/O completions one at a time.
type Server struct {
	keys KeyStore
	info InfoProvider
	disp *Dispatch

	maxSessions int
	idle        time.Duration
	sweepEvery  time.Duration
	now         func() time.Time
	log         zerolog.Logger
	metrics     *serverMetrics
	tracer      trace.Tracer
}

// NewServer constructs a server that uses keys for session keys, dispatches
// requests with disp, and answers them from info.
func NewServer(keys KeyStore, info InfoProvider, disp *Dispatch, opts *ServerOptions) *Server {
	return &Server{
		keys:        keys,
		info:        info,
		disp:        disp,
		maxSessions: opts.maxSessions(),
		idle:        opts.idleTimeout(),
		sweepEvery:  opts.sweepInterval(),
		now:         opts.clock(),
		log:         opts.logger(),
		metrics:     newServerMetrics(opts.registerer()),
		tracer:      otel.Tracer("github.com/creachadair/sysprobe"),
	}
}

// Serve accepts connections from lst and serves them until ctx ends or lst
// is closed. It closes lst before returning, and does not return until all
// sessions have been torn down. Other accept errors are logged, and accept is
// retried after a delay that grows while errors persist.
//
// Serve must not be called concurrently with itself.
func (s *Server) Serve(ctx context.Context, lst net.Listener) error {
	r := s.newReactor(lst)
	r.tasks.Go(r.acceptLoop)
	r.armAccept()
	s.log.Info().Str("addr", lst.Addr().String()).Int("slots", s.maxSessions).Msg("serving")

	tick := time.NewTicker(s.sweepEvery)
	defer tick.Stop()

	var err error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-tick.C:
			r.sweep()
		case ev := <-r.events:
			if err = r.handle(ctx, ev); err != nil {
				break loop
			}
		}
	}
	r.shutdown()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

type eventKind byte

const (
	evAccept eventKind = iota // an accept completed
	evRead                    // a read completed
	evWrite                   // a write completed
	evClosed                  // a session's tasks have exited
)

// An event is the completion of an I/O operation, delivered to the reactor.
type event struct {
	kind eventKind
	h    handle
	conn net.Conn // evAccept
	data []byte   // evRead
	n    int      // evWrite
	err  error
}

// A reactor is the state of one call to Serve.
type reactor struct {
	*Server

	lst       net.Listener
	slots     *slotTable
	events    chan event
	quit      chan struct{}
	acceptArm chan struct{}
	stalled   bool          // accept is not armed because the table was full
	backoff   time.Duration // delay after the last failed accept, or 0
	tasks     *taskgroup.Group
}

func (s *Server) newReactor(lst net.Listener) *reactor {
	return &reactor{
		Server:    s,
		lst:       lst,
		slots:     newSlotTable(s.maxSessions),
		events:    make(chan event, 16),
		quit:      make(chan struct{}),
		acceptArm: make(chan struct{}, 1),
		tasks:     taskgroup.New(nil),
	}
}

// post delivers ev to the reactor, and reports false if the reactor has
// stopped.
func (r *reactor) post(ev event) bool {
	select {
	case r.events <- ev:
		return true
	case <-r.quit:
		return false
	}
}

func (r *reactor) handle(ctx context.Context, ev event) error {
	switch ev.kind {
	case evAccept:
		return r.onAccept(ev)
	case evRead:
		r.onRead(ctx, ev)
	case evWrite:
		r.onWrite(ev)
	case evClosed:
		r.onClosed(ev)
	}
	return nil
}

func (r *reactor) armAccept() {
	select {
	case r.acceptArm <- struct{}{}:
	default:
	}
}

func (r *reactor) acceptLoop() error {
	for {
		select {
		case <-r.quit:
			return nil
		case <-r.acceptArm:
		}
		conn, err := r.lst.Accept()
		if !r.post(event{kind: evAccept, conn: conn, err: err}) {
			if conn != nil {
				conn.Close()
			}
			return nil
		}
		if errors.Is(err, net.ErrClosed) {
			return nil
		}
	}
}

func (r *reactor) onAccept(ev event) error {
	if errors.Is(ev.err, net.ErrClosed) {
		return fmt.Errorf("accept: %w", ev.err)
	} else if ev.err != nil {
		r.backoff = min(max(2*r.backoff, minAcceptDelay), maxAcceptDelay)
		r.log.Warn().Err(ev.err).Dur("retry", r.backoff).Msg("accept failed")
		r.metrics.dropped.WithLabelValues("accept").Inc()
		time.AfterFunc(r.backoff, r.armAccept)
		return nil
	}
	r.backoff = 0
	r.sweep()

	h, sess, ok := r.slots.claim()
	if !ok {
		r.log.Warn().Str("remote", ev.conn.RemoteAddr().String()).Msg("session table full, closing connection")
		r.metrics.rejected.Inc()
		ev.conn.Close()
		r.stalled = true
		return nil
	}
	defer r.armAccept()

	id := h.connID()
	if err := r.keys.GenerateKey(id); err != nil {
		r.log.Error().Err(err).Stringer("session", id).Msg("generate session key")
		ev.conn.Close()
		r.slots.release(h)
		return nil
	}
	sess.sio = newSessionIO(ev.conn)
	sess.remote = ev.conn.RemoteAddr().String()
	sess.last = r.now()
	sess.tasks = taskgroup.New(nil)
	sio := sess.sio
	sess.tasks.Go(func() error { return r.readLoop(h, sio) })
	sess.tasks.Go(func() error { return r.writeLoop(h, sio) })

	r.metrics.accepted.Inc()
	r.metrics.active.Set(float64(r.slots.inUse()))
	r.log.Debug().Stringer("session", id).Str("remote", sess.remote).Msg("session opened")
	r.armRead(sess)
	return nil
}

func (r *reactor) armRead(sess *session) {
	select {
	case sess.sio.readArm <- struct{}{}:
	default:
	}
}

// readLoop performs one read each time the session's read is armed, and
// reports its completion to the reactor.
func (r *reactor) readLoop(h handle, sio sessionIO) error {
	buf := make([]byte, readChunkSize)
	for {
		select {
		case <-sio.stop:
			return nil
		case <-r.quit:
			return nil
		case <-sio.readArm:
		}
		n, err := sio.conn.Read(buf)
		if !r.post(event{kind: evRead, h: h, data: bytes.Clone(buf[:n]), err: err}) || err != nil {
			return nil
		}
	}
}

// writeLoop performs one write each time the session's write is armed, and
// reports its completion to the reactor.
func (r *reactor) writeLoop(h handle, sio sessionIO) error {
	for {
		var data []byte
		select {
		case <-sio.stop:
			return nil
		case <-r.quit:
			return nil
		case data = <-sio.writeArm:
		}
		n, err := sio.conn.Write(data)
		if !r.post(event{kind: evWrite, h: h, n: n, err: err}) || err != nil {
			return nil
		}
	}
}

func (r *reactor) onRead(ctx context.Context, ev event) {
	sess := r.slots.lookup(ev.h)
	if sess == nil || sess.state != slotConnected {
		return // stale completion for a session already torn down
	}
	if len(ev.data) != 0 {
		sess.last = r.now()
		r.metrics.bytesIn.Add(float64(len(ev.data)))
		if len(sess.recv)+len(ev.data) > MaxFrameSize {
			r.teardown(ev.h, sess, "receive buffer overflow")
			return
		}
		sess.recv = append(sess.recv, ev.data...)
	}
	if ev.err != nil {
		if errors.Is(ev.err, io.EOF) {
			r.teardown(ev.h, sess, "closed by peer")
		} else {
			r.teardown(ev.h, sess, ev.err.Error())
		}
		return
	} else if len(ev.data) == 0 {
		r.teardown(ev.h, sess, "closed by peer")
		return
	}

	size, err := CheckFrame(sess.recv)
	if err != nil {
		r.teardown(ev.h, sess, err.Error())
		return
	} else if size == 0 || len(sess.recv) < size {
		r.armRead(sess) // need more
		return
	} else if !Validate(sess.recv, len(sess.recv)) {
		// Only one request may be in flight, so data past the end of the
		// frame is a protocol violation.
		r.teardown(ev.h, sess, "data after end of frame")
		return
	}
	r.dispatch(ctx, ev.h, sess)
}

// dispatch decodes the complete frame in the receive buffer of sess and
// either queues a reply or re-arms the read.
func (r *reactor) dispatch(ctx context.Context, h handle, sess *session) {
	id := h.connID()
	msg, err := DecodeMessage(sess.recv, r.keys, id)
	sess.recv = sess.recv[:0]
	if err != nil {
		r.drop(h, sess, "decode", err)
		return
	}
	r.metrics.framesIn.WithLabelValues(msg.Kind.String()).Inc()

	switch msg.Kind {
	case KindKeyRequest:
		r.handshake(h, sess, msg)
	case KindRequest:
		r.request(ctx, h, sess, msg)
	default:
		r.drop(h, sess, "unexpected kind", fmt.Errorf("message kind %v", msg.Kind))
	}
}

// drop discards a received frame without replying, and re-arms the read.
func (r *reactor) drop(h handle, sess *session, reason string, err error) {
	r.log.Warn().Err(err).Stringer("session", h.connID()).Str("reason", reason).Msg("dropped frame")
	r.metrics.dropped.WithLabelValues(reason).Inc()
	r.armRead(sess)
}

func (r *reactor) handshake(h handle, sess *session, msg Message) {
	id := h.connID()
	if sess.keyed {
		// Re-key: the previous key must not survive a second exchange.
		sess.keyed = false
		if err := r.keys.GenerateKey(id); err != nil {
			r.drop(h, sess, "handshake", err)
			return
		}
	}
	blob, err := r.keys.ExportKey(id, msg.Payload)
	if err != nil {
		r.drop(h, sess, "handshake", err)
		return
	}
	out, err := Message{Kind: KindKeyResponse, Mode: ModeAsymmetric, Payload: blob}.Encode(r.keys, id)
	if err != nil {
		r.drop(h, sess, "handshake", err)
		return
	}
	sess.keyed = true
	r.metrics.handshakes.Inc()
	r.log.Debug().Stringer("session", id).Msg("session key exported")
	r.queueWrite(sess, out)
}

func (r *reactor) request(ctx context.Context, h handle, sess *session, msg Message) {
	if !sess.keyed {
		r.drop(h, sess, "no session key", errors.New("request before handshake"))
		return
	} else if msg.Mode != ModeSymmetric {
		r.drop(h, sess, "unencrypted", fmt.Errorf("request with mode %v", msg.Mode))
		return
	}
	var req Request
	if err := req.Decode(msg.Payload); err != nil {
		r.drop(h, sess, "invalid request", err)
		return
	}
	handler, ok := r.disp.Lookup(req.Kind)
	if !ok {
		r.drop(h, sess, "no handler", fmt.Errorf("no handler for %v", req.Kind))
		return
	}

	id := h.connID()
	rsp, err := r.invoke(ctx, id, req, handler)
	r.metrics.requests.WithLabelValues(req.Kind.String(), CodeOf(err).String()).Inc()
	if err != nil {
		r.log.Debug().Err(err).Stringer("session", id).Stringer("request", req).Msg("request failed")
		rsp = errorResult(err)
	}

	out, err := Message{Kind: KindResponse, Mode: ModeSymmetric, Payload: EncodeResponse(rsp)}.Encode(r.keys, id)
	if err != nil {
		r.log.Error().Err(err).Stringer("session", id).Stringer("request", req).Msg("encode response")
		out, err = Message{
			Kind:    KindResponse,
			Mode:    ModeSymmetric,
			Payload: EncodeResponse(errorResult(err)),
		}.Encode(r.keys, id)
		if err != nil {
			r.teardown(h, sess, err.Error())
			return
		}
	}
	r.queueWrite(sess, out)
}

// invoke calls handler for req and checks that its response matches the
// kind of the request.
func (r *reactor) invoke(ctx context.Context, id ConnID, req Request, handler Handler) (Response, error) {
	ctx, span := r.tracer.Start(ctx, "sysprobe.request", trace.WithAttributes(
		attribute.String("sysprobe.request", req.Kind.String()),
		attribute.String("sysprobe.session", id.String()),
	))
	defer span.End()

	rsp, err := handler(ctx, req, r.info)
	if err == nil {
		if rsp == nil {
			err = errorf(CodeUnknown, "no response for %v", req.Kind)
		} else if got, want := rsp.ResponseKind(), req.Kind.ResponseKind(); got != want {
			err = errorf(CodeUnknown, "handler for %v returned %v", req.Kind, got)
		}
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return rsp, nil
}

func (r *reactor) queueWrite(sess *session, data []byte) {
	sess.send = data
	sess.sent = 0
	sess.sio.writeArm <- data
}

func (r *reactor) onWrite(ev event) {
	sess := r.slots.lookup(ev.h)
	if sess == nil || sess.state != slotConnected {
		return
	}
	sess.sent += ev.n
	r.metrics.bytesOut.Add(float64(ev.n))
	if ev.err != nil {
		r.teardown(ev.h, sess, ev.err.Error())
		return
	}
	if sess.sent < len(sess.send) {
		if ev.n == 0 {
			r.teardown(ev.h, sess, "write made no progress")
			return
		}
		sess.sio.writeArm <- sess.send[sess.sent:]
		return
	}
	sess.send, sess.sent = nil, 0
	r.armRead(sess)
}

// sweep tears down all sessions idle for longer than the idle timeout.
func (r *reactor) sweep() {
	for _, h := range r.slots.idle(r.now(), r.idle) {
		sess := r.slots.lookup(h)
		r.metrics.evicted.Inc()
		r.teardown(h, sess, "idle timeout")
	}
}

// teardown closes the connection of sess and stops its tasks. The slot is
// released once the tasks have exited (see onClosed).
func (r *reactor) teardown(h handle, sess *session, reason string) {
	if sess.state != slotConnected {
		return
	}
	sess.state = slotCancelling
	r.log.Debug().Stringer("session", h.connID()).Str("remote", sess.remote).Str("reason", reason).Msg("closing session")
	close(sess.sio.stop)
	sess.sio.conn.Close()
	tasks := sess.tasks
	r.tasks.Go(func() error {
		tasks.Wait()
		r.post(event{kind: evClosed, h: h})
		return nil
	})
}

func (r *reactor) onClosed(ev event) {
	sess := r.slots.lookup(ev.h)
	if sess == nil || sess.state != slotCancelling {
		return
	}
	r.keys.DiscardKey(ev.h.connID())
	r.slots.release(ev.h)
	r.metrics.closed.Inc()
	r.metrics.active.Set(float64(r.slots.inUse()))
	if r.stalled {
		r.stalled = false
		r.armAccept()
	}
}

// shutdown tears down all sessions and waits for all tasks to exit.
func (r *reactor) shutdown() {
	close(r.quit)
	if r.lst != nil {
		r.lst.Close()
	}
	r.slots.each(func(h handle, sess *session) { r.teardown(h, sess, "server stopping") })
	r.tasks.Wait()
	r.slots.each(func(h handle, sess *session) {
		r.keys.DiscardKey(h.connID())
		r.slots.release(h)
		r.metrics.closed.Inc()
	})
	r.metrics.active.Set(0)
	r.log.Info().Msg("server stopped")
}
