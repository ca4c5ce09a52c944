// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package sysprobe

import (
	"fmt"
	"strings"

	"github.com/creachadair/sysprobe/packet"
	"golang.org/x/text/encoding/unicode"
)

// RequestKind identifies the operation requested by a client.
type RequestKind byte

const (
	RequestOSInfo RequestKind = 0
	RequestTime   RequestKind = 1
	RequestUptime RequestKind = 2
	RequestMemory RequestKind = 3
	RequestDrives RequestKind = 4
	RequestRights RequestKind = 5
	RequestOwner  RequestKind = 6

	maxRequestKind = RequestOwner
)

var requestNames = [...]string{
	RequestOSInfo: "os",
	RequestTime:   "time",
	RequestUptime: "uptime",
	RequestMemory: "memory",
	RequestDrives: "drives",
	RequestRights: "rights",
	RequestOwner:  "owner",
}

func (k RequestKind) String() string {
	if k <= maxRequestKind {
		return requestNames[k]
	}
	return fmt.Sprintf("request:%d", byte(k))
}

// ParseRequestKind returns the request kind with the given name, as reported
// by the String method of RequestKind.
func ParseRequestKind(name string) (RequestKind, error) {
	for i, s := range requestNames {
		if strings.EqualFold(s, name) {
			return RequestKind(i), nil
		}
	}
	return 0, errorf(CodeInvalidArgument, "unknown request %q", name)
}

// HasArgument reports whether requests of kind k carry a path argument.
func (k RequestKind) HasArgument() bool { return k == RequestRights || k == RequestOwner }

// ResponseKind reports the response discriminant expected in reply to a
// request of kind k.
func (k RequestKind) ResponseKind() ResponseKind {
	switch k {
	case RequestOSInfo:
		return ResponseOSInfo
	case RequestTime, RequestUptime:
		return ResponseTime
	case RequestMemory:
		return ResponseMemory
	case RequestDrives:
		return ResponseDrives
	case RequestRights:
		return ResponseRights
	case RequestOwner:
		return ResponseOwner
	default:
		return ResponseError
	}
}

// A Request is the payload of a request message.
type Request struct {
	Kind RequestKind
	Path string // only for RequestRights and RequestOwner
}

// Encode encodes r in binary format. The path argument, if any, is written as
// length-prefixed UTF-16 in big-endian order.
func (r Request) Encode() []byte {
	var b packet.Builder
	b.Byte(byte(r.Kind))
	if r.Kind.HasArgument() {
		b.PutBytes(EncodeUTF16(r.Path))
	}
	return b.Bytes()
}

// Decode decodes data into r. It reports an error if the request kind is
// unknown, or the argument is missing or malformed.
func (r *Request) Decode(data []byte) error {
	s := packet.NewScanner(data)
	k, err := s.Byte()
	if err != nil {
		return &Error{Code: CodeInvalidArgument, Err: fmt.Errorf("request kind: %w", err)}
	}
	kind := RequestKind(k)
	if kind > maxRequestKind {
		return errorf(CodeInvalidArgument, "unknown request kind %d", k)
	}
	var path string
	if kind.HasArgument() {
		arg, err := s.Bytes()
		if err != nil {
			return &Error{Code: CodeInvalidArgument, Err: fmt.Errorf("request argument: %w", err)}
		}
		path, err = DecodeUTF16(arg)
		if err != nil {
			return err
		}
	}
	if err := s.Done(); err != nil {
		return &Error{Code: CodeInvalidArgument, Err: err}
	}
	r.Kind, r.Path = kind, path
	return nil
}

func (r Request) String() string {
	if r.Kind.HasArgument() {
		return fmt.Sprintf("Request(%v, %q)", r.Kind, r.Path)
	}
	return fmt.Sprintf("Request(%v)", r.Kind)
}

var utf16be = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)

// EncodeUTF16 transcodes s to UTF-16 in big-endian order. Invalid UTF-8
// sequences in s are replaced by U+FFFD. Characters outside the basic
// multilingual plane are written as surrogate pairs.
func EncodeUTF16(s string) []byte {
	out, err := utf16be.NewEncoder().String(s)
	if err != nil {
		// The UTF-16 encoder replaces what it cannot encode.
		panic(fmt.Sprintf("encode UTF-16: %v", err))
	}
	return []byte(out)
}

// DecodeUTF16 transcodes big-endian UTF-16 data to a string. Unpaired
// surrogates are replaced by U+FFFD. Data of odd length is rejected.
func DecodeUTF16(data []byte) (string, error) {
	if len(data)%2 != 0 {
		return "", errorf(CodeInvalidArgument, "UTF-16 data has odd length %d", len(data))
	}
	out, err := utf16be.NewDecoder().Bytes(data)
	if err != nil {
		return "", &Error{Code: CodeInvalidArgument, Err: fmt.Errorf("decode UTF-16: %w", err)}
	}
	return string(out), nil
}
