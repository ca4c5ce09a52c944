// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package sysprobe

import (
	"net"
	"time"

	"github.com/creachadair/taskgroup"
)

type slotState byte

const (
	slotFree       slotState = iota // available for a new connection
	slotListener                    // index 0, never carries application data
	slotConnected                   // serving a connection
	slotCancelling                  // torn down, waiting for its tasks to exit
)

func (s slotState) String() string {
	switch s {
	case slotFree:
		return "free"
	case slotListener:
		return "listener"
	case slotConnected:
		return "connected"
	case slotCancelling:
		return "cancelling"
	default:
		return "invalid"
	}
}

// A handle addresses a session slot. A handle is only valid while the
// generation of its slot is unchanged, so a handle retained after the slot is
// released can never address the next connection to use that slot.
type handle struct {
	index uint32
	gen   uint32
}

// connID returns the connection identity used for key association.
func (h handle) connID() ConnID { return ConnID(uint64(h.gen)<<32 | uint64(h.index)) }

// A session is the state of one connection. Its fields are owned by the
// reactor, except for the I/O plumbing in sio which is shared with the
// session's reader and writer tasks.
type session struct {
	state slotState
	gen   uint32
	keyed bool // a session key has been exported to the peer

	sio    sessionIO
	remote string
	recv   []byte // accumulated input, at most MaxFrameSize bytes
	send   []byte // queued output
	sent   int    // bytes of send already written
	last   time.Time
	tasks  *taskgroup.Group
}

// sessionIO is the part of a session shared with its I/O tasks.
type sessionIO struct {
	conn     net.Conn
	readArm  chan struct{} // one token per armed read
	writeArm chan []byte   // data for the armed write
	stop     chan struct{} // closed when the session is torn down
}

func newSessionIO(conn net.Conn) sessionIO {
	return sessionIO{
		conn:     conn,
		readArm:  make(chan struct{}, 1),
		writeArm: make(chan []byte, 1),
		stop:     make(chan struct{}),
	}
}

// A slotTable is a fixed-size arena of session slots. Slot 0 is reserved for
// the listener.
type slotTable struct {
	slots []session
}

func newSlotTable(n int) *slotTable {
	t := &slotTable{slots: make([]session, n+1)}
	t.slots[0].state = slotListener
	return t
}

// claim reserves the first free slot and reports its handle. It reports
// false if no slot is free.
func (t *slotTable) claim() (handle, *session, bool) {
	for i := 1; i < len(t.slots); i++ {
		s := &t.slots[i]
		if s.state == slotFree {
			s.state = slotConnected
			s.keyed = false
			return handle{index: uint32(i), gen: s.gen}, s, true
		}
	}
	return handle{}, nil, false
}

// lookup returns the session addressed by h, or nil if h is stale or does not
// address a session.
func (t *slotTable) lookup(h handle) *session {
	if h.index == 0 || int(h.index) >= len(t.slots) {
		return nil
	}
	s := &t.slots[h.index]
	if s.gen != h.gen || s.state == slotFree {
		return nil
	}
	return s
}

// release frees the slot addressed by h and advances its generation.
// The receive buffer is retained for reuse.
func (t *slotTable) release(h handle) {
	s := t.lookup(h)
	if s == nil {
		return
	}
	*s = session{gen: s.gen + 1, recv: s.recv[:0]}
}

// idle returns the handles of connected sessions whose last activity was
// strictly more than timeout before now.
func (t *slotTable) idle(now time.Time, timeout time.Duration) []handle {
	var out []handle
	for i := 1; i < len(t.slots); i++ {
		s := &t.slots[i]
		if s.state == slotConnected && now.Sub(s.last) > timeout {
			out = append(out, handle{index: uint32(i), gen: s.gen})
		}
	}
	return out
}

// inUse reports the number of slots not free, excluding the listener.
func (t *slotTable) inUse() int {
	var n int
	for i := 1; i < len(t.slots); i++ {
		if t.slots[i].state != slotFree {
			n++
		}
	}
	return n
}

// each calls f for each session slot that is not free.
func (t *slotTable) each(f func(handle, *session)) {
	for i := 1; i < len(t.slots); i++ {
		s := &t.slots[i]
		if s.state != slotFree {
			f(handle{index: uint32(i), gen: s.gen}, s)
		}
	}
}
