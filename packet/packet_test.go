// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package packet_test

import (
	"errors"
	"io"
	"testing"

	"github.com/creachadair/sysprobe/packet"
	"github.com/google/go-cmp/cmp"
)

func TestBuilder(t *testing.T) {
	var b packet.Builder
	b.Bool(true)
	b.Put(5, 9, 100)
	b.Uint16(5000)
	b.Uint32(0xfc009a01)
	b.Uint64(0x0102030405060708)
	b.Int8(-3)
	b.PutString("foo")
	b.PutBytes(nil)

	const want = "\x01\x05\x09\x64\x13\x88\xfc\x00\x9a\x01" +
		"\x01\x02\x03\x04\x05\x06\x07\x08" +
		"\xfd" +
		"\x00\x00\x00\x00\x00\x00\x00\x03foo" +
		"\x00\x00\x00\x00\x00\x00\x00\x00"
	if diff := cmp.Diff([]byte(want), b.Bytes()); diff != "" {
		t.Errorf("Builder (-want, +got):\n%s", diff)
	}
	if got := b.Len(); got != len(want) {
		t.Errorf("Len: got %d, want %d", got, len(want))
	}

	b.Reset()
	if b.Len() != 0 {
		t.Errorf("After reset: got %d bytes, want 0", b.Len())
	}
}

func TestFrame(t *testing.T) {
	var b packet.Builder
	b.Put(1, 2, 3)
	got := b.Frame()
	want := []byte{0, 0, 0, 0, 0, 0, 0, 11, 1, 2, 3}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Frame (-want, +got):\n%s", diff)
	}

	var empty packet.Builder
	if got := empty.Frame(); len(got) != packet.SizeLen || got[packet.SizeLen-1] != packet.SizeLen {
		t.Errorf("Empty frame: got %v", got)
	}
}

func TestScanner(t *testing.T) {
	var b packet.Builder
	b.Bool(false)
	b.Byte(200)
	b.Int8(-100)
	b.Uint16(1)
	b.Uint32(2)
	b.Uint64(3)
	b.PutString("hello")
	b.PutBytes([]byte{})
	b.Put('x', 'y')

	s := packet.NewScanner(b.Bytes())
	check := func(name string, got, want any, err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if got != want {
			t.Errorf("%s: got %v, want %v", name, got, want)
		}
	}
	ok, err := s.Bool()
	check("Bool", ok, false, err)
	c, err := s.Byte()
	check("Byte", c, byte(200), err)
	i8, err := s.Int8()
	check("Int8", i8, int8(-100), err)
	u16, err := s.Uint16()
	check("Uint16", u16, uint16(1), err)
	u32, err := s.Uint32()
	check("Uint32", u32, uint32(2), err)
	u64, err := s.Uint64()
	check("Uint64", u64, uint64(3), err)
	str, err := s.String()
	check("String", str, "hello", err)
	bs, err := s.Bytes()
	check("Bytes", len(bs), 0, err)
	fx, err := s.Fixed(2)
	check("Fixed", string(fx), "xy", err)

	if err := s.Done(); err != nil {
		t.Errorf("Done: unexpected error: %v", err)
	}
	if _, err := s.Byte(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("Byte at end: got %v, want %v", err, io.ErrUnexpectedEOF)
	}
}

func TestScannerTruncated(t *testing.T) {
	tests := []struct {
		name  string
		input string
		scan  func(*packet.Scanner) error
	}{
		{"Uint16", "\x01", func(s *packet.Scanner) error { _, err := s.Uint16(); return err }},
		{"Uint32", "\x01\x02\x03", func(s *packet.Scanner) error { _, err := s.Uint32(); return err }},
		{"Uint64", "\x01\x02\x03\x04", func(s *packet.Scanner) error { _, err := s.Uint64(); return err }},
		{"Fixed", "abc", func(s *packet.Scanner) error { _, err := s.Fixed(4); return err }},
		{"BytesPrefix", "\x00\x00\x00", func(s *packet.Scanner) error { _, err := s.Bytes(); return err }},
		{"BytesBody", "\x00\x00\x00\x00\x00\x00\x00\x05abc", func(s *packet.Scanner) error { _, err := s.Bytes(); return err }},

		// A huge declared length must not be trusted.
		{"BytesHuge", "\xff\xff\xff\xff\xff\xff\xff\xffabc", func(s *packet.Scanner) error { _, err := s.Bytes(); return err }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := packet.NewScanner(tc.input)
			if err := tc.scan(s); !errors.Is(err, io.ErrUnexpectedEOF) {
				t.Errorf("Scan: got %v, want %v", err, io.ErrUnexpectedEOF)
			}
		})
	}
}

func TestScannerExtra(t *testing.T) {
	s := packet.NewScanner("\x01\x02")
	if _, err := s.Byte(); err != nil {
		t.Fatalf("Byte: unexpected error: %v", err)
	}
	if s.Offset() != 1 || s.Len() != 1 {
		t.Errorf("Position: got offset %d len %d, want 1, 1", s.Offset(), s.Len())
	}
	if err := s.Done(); err == nil {
		t.Error("Done: got nil, want error")
	}
}
