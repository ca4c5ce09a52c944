// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package sysprobe

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// An InfoProvider reports facts about the host. The methods are called
// synchronously from the server's event loop and should not block for long.
type InfoProvider interface {
	// OSInfo reports the operating system family and version.
	OSInfo() (OSInfo, error)

	// Uptime reports the time elapsed since boot.
	Uptime() (TimeInfo, error)

	// Time reports the current time and local timezone offset.
	Time() (TimeInfo, error)

	// Memory reports physical memory totals.
	Memory() (MemoryInfo, error)

	// Drives reports the mounted volumes.
	Drives() (DriveList, error)

	// AccessEntries reports the access control entries of path.
	AccessEntries(path string) (AccessList, error)

	// Owner reports the owner of path.
	Owner(path string) (OwnerInfo, error)
}

// A Handler computes the response to a request from info. A handler consults
// only info and the request; it has no access to session state.
type Handler func(ctx context.Context, req Request, info InfoProvider) (Response, error)

// A Dispatch maps request kinds to handlers. The zero value is ready for use
// and has no handlers registered. A Dispatch is safe for concurrent use.
type Dispatch struct {
	μ    sync.Mutex
	hmux map[RequestKind]Handler
}

// Register adds h as the handler for kind, and returns d to permit chaining.
// It panics if h is nil or a handler for kind is already registered.
func (d *Dispatch) Register(kind RequestKind, h Handler) *Dispatch {
	if h == nil {
		panic(fmt.Sprintf("nil handler for %v", kind))
	}
	d.μ.Lock()
	defer d.μ.Unlock()
	if _, ok := d.hmux[kind]; ok {
		panic(fmt.Sprintf("duplicate handler for %v", kind))
	}
	if d.hmux == nil {
		d.hmux = make(map[RequestKind]Handler)
	}
	d.hmux[kind] = h
	return d
}

// Lookup returns the handler for kind, and reports whether one is registered.
func (d *Dispatch) Lookup(kind RequestKind) (Handler, bool) {
	d.μ.Lock()
	defer d.μ.Unlock()
	h, ok := d.hmux[kind]
	return h, ok
}

// Kinds returns the request kinds that have registered handlers, in order.
func (d *Dispatch) Kinds() []RequestKind {
	d.μ.Lock()
	defer d.μ.Unlock()
	out := make([]RequestKind, 0, len(d.hmux))
	for k := range d.hmux {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// DefaultDispatch returns a new Dispatch with handlers registered for all the
// request kinds, each forwarding to the corresponding InfoProvider method.
func DefaultDispatch() *Dispatch {
	return new(Dispatch).
		Register(RequestOSInfo, noArg(InfoProvider.OSInfo)).
		Register(RequestTime, noArg(InfoProvider.Time)).
		Register(RequestUptime, noArg(InfoProvider.Uptime)).
		Register(RequestMemory, noArg(InfoProvider.Memory)).
		Register(RequestDrives, noArg(InfoProvider.Drives)).
		Register(RequestRights, withPath(InfoProvider.AccessEntries)).
		Register(RequestOwner, withPath(InfoProvider.Owner))
}

// noArg adapts an InfoProvider method without arguments to a Handler.
func noArg[R Response](get func(InfoProvider) (R, error)) Handler {
	return func(_ context.Context, _ Request, info InfoProvider) (Response, error) {
		r, err := get(info)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
}

// withPath adapts an InfoProvider method taking a path to a Handler.
// An empty path is rejected before the provider is consulted.
func withPath[R Response](get func(InfoProvider, string) (R, error)) Handler {
	return func(_ context.Context, req Request, info InfoProvider) (Response, error) {
		if req.Path == "" {
			return nil, errorf(CodeInvalidArgument, "empty path for %v", req.Kind)
		}
		r, err := get(info, req.Path)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
}
