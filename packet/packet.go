// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Package packet provides support for encoding and decoding binary frame data.
//
// All fixed-width integers are encoded in big-endian order. Variable-length
// byte strings are encoded as a uint64 length prefix followed by the raw bytes.
package packet

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/creachadair/mds/value"
)

// SizeLen is the number of bytes occupied by a length prefix.
const SizeLen = 8

// A Builder is a buffer that accumulates data into a frame. The zero value is
// ready for use as an empty builder.
type Builder struct {
	buf []byte
}

// Bool appends a Boolean to b. The encoding is a single byte with value 0 or 1.
func (b *Builder) Bool(ok bool) { b.Byte(value.Cond[byte](ok, 1, 0)) }

// Byte appends a single byte to b.
func (b *Builder) Byte(v byte) { b.buf = append(b.buf, v) }

// Int8 appends a signed byte to b in two's complement form.
func (b *Builder) Int8(v int8) { b.buf = append(b.buf, byte(v)) }

// Put appends the specified bytes to b in order, without framing.
func (b *Builder) Put(vs ...byte) { b.buf = append(b.buf, vs...) }

// PutBytes appends a length-prefixed byte string to b.
func (b *Builder) PutBytes(vs []byte) {
	b.Grow(SizeLen + len(vs))
	b.Uint64(uint64(len(vs)))
	b.buf = append(b.buf, vs...)
}

// PutString appends a length-prefixed string to b.
func (b *Builder) PutString(s string) {
	b.Grow(SizeLen + len(s))
	b.Uint64(uint64(len(s)))
	b.buf = append(b.buf, s...)
}

// Uint16 appends v to b in big-endian order.
func (b *Builder) Uint16(v uint16) { b.buf = binary.BigEndian.AppendUint16(b.buf, v) }

// Uint32 appends v to b in big-endian order.
func (b *Builder) Uint32(v uint32) { b.buf = binary.BigEndian.AppendUint32(b.buf, v) }

// Uint64 appends v to b in big-endian order.
func (b *Builder) Uint64(v uint64) { b.buf = binary.BigEndian.AppendUint64(b.buf, v) }

// Len reports the number of bytes currently in the buffer.
func (b *Builder) Len() int { return len(b.buf) }

// Bytes reports the current contents of the buffer. The builder retains ownership
// of the reported slice, and the caller must not retain or modify its contents
// unless b will no longer be accessed.
func (b *Builder) Bytes() []byte { return b.buf }

// Frame returns a new slice containing the contents of b prefixed by the total
// length of the result, including the prefix itself.
func (b *Builder) Frame() []byte {
	out := make([]byte, SizeLen, SizeLen+len(b.buf))
	binary.BigEndian.PutUint64(out, uint64(SizeLen+len(b.buf)))
	return append(out, b.buf...)
}

// Reset discards the contents of b and leaves it empty.
func (b *Builder) Reset() { b.buf = b.buf[:0] }

// Grow resizes the internal buffer of b if necessary to ensure that at least n
// more bytes can be added without triggering another allocation.
func (b *Builder) Grow(n int) {
	want := len(b.buf) + n
	if cap(b.buf) < want {
		r := make([]byte, len(b.buf), max(want, 2*cap(b.buf)))
		copy(r, b.buf)
		b.buf = r
	}
}

// A Scanner reads encoded values from the contents of a frame.
// Incomplete values report an error wrapping [io.ErrUnexpectedEOF].
type Scanner struct {
	input  []byte
	rest   []byte
	offset int // of rest from input
}

// NewScanner constructs a [Scanner] that consumes data from input.
// The scanner does not modify the contents of input, but retains slices
// into it, so the caller should ensure it is not modified while the scanner
// is in use.
func NewScanner[Str ~string | ~[]byte](input Str) *Scanner {
	data := []byte(input)
	return &Scanner{input: data, rest: data}
}

func (s *Scanner) need(n int) error {
	if len(s.rest) < n {
		return fmt.Errorf("value truncated (%d < %d bytes): %w", len(s.rest), n, io.ErrUnexpectedEOF)
	}
	return nil
}

func (s *Scanner) advance(n int) []byte {
	out := s.rest[:n]
	s.rest = s.rest[n:]
	s.offset += n
	return out
}

// Bool scans a single byte from the head of the input and converts it into a
// Boolean value (0 means false, non-zero means true).
func (s *Scanner) Bool() (bool, error) {
	b, err := s.Byte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

// Byte scans a single byte from the head of the input.
func (s *Scanner) Byte() (byte, error) {
	if err := s.need(1); err != nil {
		return 0, err
	}
	return s.advance(1)[0], nil
}

// Int8 scans a signed byte from the head of the input.
func (s *Scanner) Int8() (int8, error) {
	b, err := s.Byte()
	return int8(b), err
}

// Uint16 parses a big-endian uint16 value from the head of the input.
func (s *Scanner) Uint16() (uint16, error) {
	if err := s.need(2); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(s.advance(2)), nil
}

// Uint32 parses a big-endian uint32 value from the head of the input.
func (s *Scanner) Uint32() (uint32, error) {
	if err := s.need(4); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(s.advance(4)), nil
}

// Uint64 parses a big-endian uint64 value from the head of the input.
func (s *Scanner) Uint64() (uint64, error) {
	if err := s.need(8); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(s.advance(8)), nil
}

// Bytes parses a single length-prefixed byte string from the head of s.
// The result aliases the input, and the caller must not modify its contents.
func (s *Scanner) Bytes() ([]byte, error) {
	n, err := s.Uint64()
	if err != nil {
		return nil, err
	}
	if n > uint64(len(s.rest)) {
		return nil, fmt.Errorf("value truncated (%d < %d bytes): %w", len(s.rest), n, io.ErrUnexpectedEOF)
	}
	return s.advance(int(n)), nil
}

// String parses a single length-prefixed string from the head of s.
func (s *Scanner) String() (string, error) {
	b, err := s.Bytes()
	return string(b), err
}

// Fixed returns exactly n bytes from the head of the input. The result
// aliases the input, and the caller must not modify its contents.
func (s *Scanner) Fixed(n int) ([]byte, error) {
	if err := s.need(n); err != nil {
		return nil, err
	}
	return s.advance(n), nil
}

// Len reports the number of remaining unconsumed input bytes in s.
func (s *Scanner) Len() int { return len(s.rest) }

// Offset reports the offset (0-based) of the next unconsumed input byte in s.
func (s *Scanner) Offset() int { return s.offset }

// Rest returns a slice of the remaining unconsumed input of s.
// The reported slice is only valid until the next call to a method of s,
// and the caller must not modify its contents.
func (s *Scanner) Rest() []byte { return s.rest }

// Done reports an error if s has unconsumed input.
func (s *Scanner) Done() error {
	if len(s.rest) != 0 {
		return fmt.Errorf("%d extra bytes at offset %d", len(s.rest), s.offset)
	}
	return nil
}
