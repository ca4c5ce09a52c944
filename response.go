// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package sysprobe

import (
	"errors"
	"fmt"
	"time"

	"github.com/creachadair/sysprobe/packet"
)

// ResponseKind is the discriminant of a response payload. The numbering is
// independent of RequestKind; see [RequestKind.ResponseKind].
type ResponseKind byte

const (
	ResponseOSInfo ResponseKind = 0
	ResponseTime   ResponseKind = 1
	ResponseMemory ResponseKind = 2
	ResponseDrives ResponseKind = 3
	ResponseRights ResponseKind = 4
	ResponseOwner  ResponseKind = 5

	// ResponseError reports a failure in place of any other variant.
	ResponseError ResponseKind = 255
)

func (k ResponseKind) String() string {
	switch k {
	case ResponseOSInfo:
		return "OS_INFO"
	case ResponseTime:
		return "TIME"
	case ResponseMemory:
		return "MEMORY"
	case ResponseDrives:
		return "DRIVES"
	case ResponseRights:
		return "RIGHTS"
	case ResponseOwner:
		return "OWNER"
	case ResponseError:
		return "ERROR"
	default:
		return fmt.Sprintf("RESPONSE:%d", byte(k))
	}
}

// A Response is the payload of a response message. The concrete type is one
// of [OSInfo], [TimeInfo], [MemoryInfo], [DriveList], [AccessList],
// [OwnerInfo], or [ErrorResult].
type Response interface {
	// ResponseKind reports the wire discriminant of the response.
	ResponseKind() ResponseKind

	encode(*packet.Builder)
}

// decodeAs decodes a response variant of type T from s.
func decodeAs[T Response, P interface {
	*T
	decode(*packet.Scanner) error
}](s *packet.Scanner) (Response, error) {
	var v T
	if err := P(&v).decode(s); err != nil {
		return nil, err
	}
	return v, nil
}

// EncodeResponse encodes r in binary format, discriminant first.
func EncodeResponse(r Response) []byte {
	var b packet.Builder
	b.Byte(byte(r.ResponseKind()))
	r.encode(&b)
	return b.Bytes()
}

// DecodeResponse decodes a response payload. An unknown discriminant, a
// truncated field, or trailing data is reported as ErrInvalidResponse.
func DecodeResponse(data []byte) (Response, error) {
	s := packet.NewScanner(data)
	d, err := s.Byte()
	if err != nil {
		return nil, &Error{Code: CodeInvalidResponse, Err: fmt.Errorf("response kind: %w", err)}
	}
	var r Response
	switch ResponseKind(d) {
	case ResponseOSInfo:
		r, err = decodeAs[OSInfo](s)
	case ResponseTime:
		r, err = decodeAs[TimeInfo](s)
	case ResponseMemory:
		r, err = decodeAs[MemoryInfo](s)
	case ResponseDrives:
		r, err = decodeAs[DriveList](s)
	case ResponseRights:
		r, err = decodeAs[AccessList](s)
	case ResponseOwner:
		r, err = decodeAs[OwnerInfo](s)
	case ResponseError:
		r, err = decodeAs[ErrorResult](s)
	default:
		return nil, errorf(CodeInvalidResponse, "unknown response kind %d", d)
	}
	if err != nil {
		return nil, &Error{Code: CodeInvalidResponse, Err: fmt.Errorf("decode %v: %w", ResponseKind(d), err)}
	}
	if err := s.Done(); err != nil {
		return nil, &Error{Code: CodeInvalidResponse, Err: err}
	}
	return r, nil
}

// OSFamily identifies a family of operating systems.
type OSFamily byte

const (
	OSWin32    OSFamily = 0
	OSWin64    OSFamily = 1
	OSWinARM   OSFamily = 2
	OSWinARM64 OSFamily = 3
	OSUnknown  OSFamily = 4
	OSLinux    OSFamily = 5
	OSDarwin   OSFamily = 6
	OSUnix     OSFamily = 7
)

func (f OSFamily) String() string {
	switch f {
	case OSWin32:
		return "Windows (32-bit)"
	case OSWin64:
		return "Windows (64-bit)"
	case OSWinARM:
		return "Windows (ARM)"
	case OSWinARM64:
		return "Windows (ARM64)"
	case OSLinux:
		return "Linux"
	case OSDarwin:
		return "macOS"
	case OSUnix:
		return "Unix"
	default:
		return "Unknown"
	}
}

// OSInfo describes the operating system of the host.
type OSInfo struct {
	Family OSFamily
	Major  uint16
	Minor  uint16
}

func (OSInfo) ResponseKind() ResponseKind { return ResponseOSInfo }

func (o OSInfo) encode(b *packet.Builder) {
	b.Byte(byte(o.Family))
	b.Uint16(o.Major)
	b.Uint16(o.Minor)
}

func (o *OSInfo) decode(s *packet.Scanner) (err error) {
	f, err := s.Byte()
	if err != nil {
		return err
	}
	o.Family = OSFamily(f)
	if o.Major, err = s.Uint16(); err != nil {
		return err
	}
	o.Minor, err = s.Uint16()
	return err
}

func (o OSInfo) String() string { return fmt.Sprintf("%v %d.%d", o.Family, o.Major, o.Minor) }

// TimeInfo is a timestamp in milliseconds with a timezone offset in hours.
// It also reports uptime, as milliseconds since boot with a zero offset.
type TimeInfo struct {
	Millis uint64
	Zone   int8 // offset from UTC in hours
}

func (TimeInfo) ResponseKind() ResponseKind { return ResponseTime }

func (t TimeInfo) encode(b *packet.Builder) {
	b.Uint64(t.Millis)
	b.Int8(t.Zone)
}

func (t *TimeInfo) decode(s *packet.Scanner) (err error) {
	if t.Millis, err = s.Uint64(); err != nil {
		return err
	}
	t.Zone, err = s.Int8()
	return err
}

// Time converts t into a time in its own zone, treating Millis as an offset
// from the Unix epoch.
func (t TimeInfo) Time() time.Time {
	loc := time.FixedZone(fmt.Sprintf("UTC%+d", t.Zone), int(t.Zone)*3600)
	return time.UnixMilli(int64(t.Millis)).In(loc)
}

// Duration converts t into a duration, treating Millis as elapsed time.
func (t TimeInfo) Duration() time.Duration { return time.Duration(t.Millis) * time.Millisecond }

// MemoryInfo reports physical memory in bytes.
type MemoryInfo struct {
	Total uint64
	Free  uint64
}

func (MemoryInfo) ResponseKind() ResponseKind { return ResponseMemory }

func (m MemoryInfo) encode(b *packet.Builder) {
	b.Uint64(m.Total)
	b.Uint64(m.Free)
}

func (m *MemoryInfo) decode(s *packet.Scanner) (err error) {
	if m.Total, err = s.Uint64(); err != nil {
		return err
	}
	m.Free, err = s.Uint64()
	return err
}

// DriveKind classifies a mounted volume.
type DriveKind byte

const (
	DriveLocal      DriveKind = 0
	DriveNetwork    DriveKind = 1
	DriveRemovable  DriveKind = 2
	DriveFileSystem DriveKind = 3
	DriveUnknown    DriveKind = 4
)

func (k DriveKind) String() string {
	switch k {
	case DriveLocal:
		return "local"
	case DriveNetwork:
		return "network"
	case DriveRemovable:
		return "removable"
	case DriveFileSystem:
		return "file system"
	default:
		return "unknown"
	}
}

// A Drive describes one mounted volume.
type Drive struct {
	Kind DriveKind
	Name string
	Free uint64 // bytes available
}

// DriveList is the response to a drives request.
type DriveList []Drive

func (DriveList) ResponseKind() ResponseKind { return ResponseDrives }

func (d DriveList) encode(b *packet.Builder) {
	b.Uint64(uint64(len(d)))
	for _, v := range d {
		b.Byte(byte(v.Kind))
		b.PutString(v.Name)
		b.Uint64(v.Free)
	}
}

func (d *DriveList) decode(s *packet.Scanner) error {
	n, err := scanCount(s, 1+2*packet.SizeLen)
	if err != nil {
		return err
	}
	out := make(DriveList, n)
	for i := range out {
		k, err := s.Byte()
		if err != nil {
			return err
		}
		out[i].Kind = DriveKind(k)
		if out[i].Name, err = s.String(); err != nil {
			return err
		}
		if out[i].Free, err = s.Uint64(); err != nil {
			return err
		}
	}
	*d = out
	return nil
}

// AceType is the type tag of an access control entry.
type AceType byte

const (
	AceAllowed AceType = 0
	AceDenied  AceType = 1
	AceOther   AceType = 2
)

func (a AceType) String() string {
	switch a {
	case AceAllowed:
		return "Allowed"
	case AceDenied:
		return "Denied"
	default:
		return "Other"
	}
}

// AceScope describes what an access control entry applies to.
type AceScope byte

const (
	ScopeDirect    AceScope = 0
	ScopeObject    AceScope = 1
	ScopeContainer AceScope = 2
)

func (a AceScope) String() string {
	switch a {
	case ScopeDirect:
		return "Direct"
	case ScopeObject:
		return "Object"
	case ScopeContainer:
		return "Container"
	default:
		return fmt.Sprintf("Scope(%d)", byte(a))
	}
}

// An AccessEntry is one access control entry of a file.
type AccessEntry struct {
	SID   SID
	Type  AceType
	Scope AceScope
	Mask  AccessMask
}

// AccessList is the response to a rights request.
type AccessList []AccessEntry

func (AccessList) ResponseKind() ResponseKind { return ResponseRights }

func (a AccessList) encode(b *packet.Builder) {
	b.Uint64(uint64(len(a)))
	for _, e := range a {
		b.Put(e.SID[:]...)
		b.Byte(byte(e.Type))
		b.Byte(byte(e.Scope))
		b.Uint32(uint32(e.Mask))
	}
}

func (a *AccessList) decode(s *packet.Scanner) error {
	n, err := scanCount(s, SIDLen+2+4)
	if err != nil {
		return err
	}
	out := make(AccessList, n)
	for i := range out {
		sid, err := s.Fixed(SIDLen)
		if err != nil {
			return err
		}
		copy(out[i].SID[:], sid)
		t, err := s.Byte()
		if err != nil {
			return err
		}
		sc, err := s.Byte()
		if err != nil {
			return err
		}
		m, err := s.Uint32()
		if err != nil {
			return err
		}
		out[i].Type, out[i].Scope, out[i].Mask = AceType(t), AceScope(sc), AccessMask(m)
	}
	*a = out
	return nil
}

// OwnerInfo reports the owner of a file.
type OwnerInfo struct {
	Name   string
	Domain string
	SID    *SID // optional
}

func (OwnerInfo) ResponseKind() ResponseKind { return ResponseOwner }

func (o OwnerInfo) encode(b *packet.Builder) {
	b.PutString(o.Name)
	b.PutString(o.Domain)
	if o.SID != nil {
		b.PutBytes(o.SID[:])
	} else {
		b.PutBytes(nil)
	}
}

func (o *OwnerInfo) decode(s *packet.Scanner) (err error) {
	if o.Name, err = s.String(); err != nil {
		return err
	}
	if o.Domain, err = s.String(); err != nil {
		return err
	}
	sid, err := s.Bytes()
	if err != nil {
		return err
	}
	switch len(sid) {
	case 0:
		o.SID = nil
	case SIDLen:
		o.SID = new(SID)
		copy(o.SID[:], sid)
	default:
		return fmt.Errorf("invalid SID length %d", len(sid))
	}
	return nil
}

// Account returns the owner in DOMAIN\name form, or just the name if the
// domain is empty.
func (o OwnerInfo) Account() string {
	if o.Domain == "" {
		return o.Name
	}
	return o.Domain + `\` + o.Name
}

// ErrorResult reports that a request failed.
type ErrorResult struct {
	Code    Code
	Message string
}

func (ErrorResult) ResponseKind() ResponseKind { return ResponseError }

func (e ErrorResult) encode(b *packet.Builder) {
	b.Byte(byte(e.Code))
	b.PutString(e.Message)
}

func (e *ErrorResult) decode(s *packet.Scanner) (err error) {
	c, err := s.Byte()
	if err != nil {
		return err
	}
	e.Code = Code(c)
	e.Message, err = s.String()
	return err
}

// Err converts e into an *Error with the same code.
func (e ErrorResult) Err() error {
	if e.Message == "" {
		return &Error{Code: e.Code}
	}
	return &Error{Code: e.Code, Err: errors.New(e.Message)}
}

// errorResult constructs an ErrorResult describing err.
func errorResult(err error) ErrorResult {
	code := CodeOf(err)
	if code == CodeOK {
		code = CodeUnknown
	}
	var e *Error
	if errors.As(err, &e) && e.Err != nil {
		return ErrorResult{Code: code, Message: e.Err.Error()}
	}
	return ErrorResult{Code: code, Message: err.Error()}
}

// scanCount reads an element count and checks that the remaining input could
// hold that many elements of at least minSize bytes each.
func scanCount(s *packet.Scanner, minSize int) (int, error) {
	n, err := s.Uint64()
	if err != nil {
		return 0, err
	}
	if n > uint64(s.Len()/minSize) {
		return 0, fmt.Errorf("count %d exceeds remaining input (%d bytes)", n, s.Len())
	}
	return int(n), nil
}
