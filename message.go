// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package sysprobe

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/creachadair/sysprobe/packet"
)

const (
	// HeaderLen is the length in bytes of a frame header: the total size
	// followed by the message kind and encryption mode.
	HeaderLen = packet.SizeLen + 2

	// MaxFrameSize is the largest total frame size accepted on the wire.
	MaxFrameSize = 8192
)

var (
	// ErrFrameTooLarge is reported for a frame whose declared size exceeds
	// MaxFrameSize.
	ErrFrameTooLarge = errors.New("frame: size exceeds maximum")

	// ErrFrameTooSmall is reported for a frame whose declared size is smaller
	// than a frame header.
	ErrFrameTooSmall = errors.New("frame: size smaller than header")
)

// Kind identifies the role of a message on the wire.
type Kind byte

const (
	KindRequest     Kind = 0 // an application request
	KindResponse    Kind = 1 // a response to a request
	KindKeyRequest  Kind = 2 // a public key offered by the client
	KindKeyResponse Kind = 3 // a session key wrapped under the client's public key
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "REQUEST"
	case KindResponse:
		return "RESPONSE"
	case KindKeyRequest:
		return "KEY_REQUEST"
	case KindKeyResponse:
		return "KEY_RESPONSE"
	default:
		return fmt.Sprintf("KIND:%d", byte(k))
	}
}

// Mode describes how the payload of a message is protected.
type Mode byte

const (
	ModeSymmetric  Mode = 0 // sealed with the connection's session key
	ModeAsymmetric Mode = 1 // carries key material already wrapped by the sender
	ModeNone       Mode = 2 // plaintext
)

func (m Mode) String() string {
	switch m {
	case ModeSymmetric:
		return "SYMMETRIC"
	case ModeAsymmetric:
		return "ASYMMETRIC"
	case ModeNone:
		return "NONE"
	default:
		return fmt.Sprintf("MODE:%d", byte(m))
	}
}

// A Message is the decoded form of a single frame. The Payload is always
// plaintext: encryption is applied by Encode and removed by DecodeMessage.
type Message struct {
	Kind    Kind
	Mode    Mode
	Payload []byte
}

// Encode encodes m as a complete frame. If m.Mode is ModeSymmetric, the
// payload is encrypted with the session key for id before framing, so that
// the size field covers the encrypted payload. Other modes are framed as-is.
func (m Message) Encode(keys KeyStore, id ConnID) ([]byte, error) {
	payload := m.Payload
	if m.Mode == ModeSymmetric {
		if keys == nil {
			return nil, errors.New("encode: symmetric message without a key store")
		}
		enc, err := keys.Encrypt(id, payload)
		if err != nil {
			return nil, fmt.Errorf("encrypt payload: %w", err)
		}
		payload = enc
	}
	if n := HeaderLen + len(payload); n > MaxFrameSize {
		return nil, fmt.Errorf("encode %d bytes: %w", n, ErrFrameTooLarge)
	}

	var b packet.Builder
	b.Grow(2 + len(payload))
	b.Byte(byte(m.Kind))
	b.Byte(byte(m.Mode))
	b.Put(payload...)
	return b.Frame(), nil
}

func (m Message) String() string {
	return fmt.Sprintf("Message(%v, %v, %d bytes)", m.Kind, m.Mode, len(m.Payload))
}

// CheckFrame reports the declared total size of the frame at the head of buf.
// If buf is too short to contain a size field, CheckFrame returns 0, nil.
// A declared size smaller than a header or larger than MaxFrameSize is
// reported as an error, regardless of how much of the frame has arrived.
func CheckFrame(buf []byte) (int, error) {
	if len(buf) < packet.SizeLen {
		return 0, nil
	}
	size := binary.BigEndian.Uint64(buf)
	if size > MaxFrameSize {
		return 0, &Error{Code: CodeInvalidResponse, Err: fmt.Errorf("declared size %d: %w", size, ErrFrameTooLarge)}
	} else if size < HeaderLen {
		return 0, &Error{Code: CodeInvalidResponse, Err: fmt.Errorf("declared size %d: %w", size, ErrFrameTooSmall)}
	}
	return int(size), nil
}

// Validate reports whether the first n bytes of buf are exactly one complete
// frame, that is, whether the declared size of the frame equals n.
func Validate(buf []byte, n int) bool {
	if n < 0 || n > len(buf) {
		return false
	}
	size, err := CheckFrame(buf[:n])
	return err == nil && size != 0 && size == n
}

// DecodeMessage decodes a complete frame from buf. If the message mode is
// ModeSymmetric, the payload is decrypted with the session key for id.
// The resulting message does not alias buf.
func DecodeMessage(buf []byte, keys KeyStore, id ConnID) (Message, error) {
	if !Validate(buf, len(buf)) {
		if _, err := CheckFrame(buf); err != nil {
			return Message{}, err
		}
		return Message{}, errorf(CodeInvalidResponse, "incomplete frame (%d bytes)", len(buf))
	}
	msg := Message{
		Kind: Kind(buf[packet.SizeLen]),
		Mode: Mode(buf[packet.SizeLen+1]),
	}
	if msg.Kind > KindKeyResponse {
		return Message{}, errorf(CodeInvalidResponse, "unknown message kind %v", msg.Kind)
	}
	payload := buf[HeaderLen:]
	switch msg.Mode {
	case ModeSymmetric:
		if keys == nil {
			return Message{}, errorf(CodeInvalidResponse, "symmetric message without a key store")
		}
		dec, err := keys.Decrypt(id, payload)
		if err != nil {
			return Message{}, &Error{Code: CodeInvalidResponse, Err: fmt.Errorf("decrypt payload: %w", err)}
		}
		msg.Payload = dec
	case ModeAsymmetric, ModeNone:
		msg.Payload = bytes.Clone(payload)
	default:
		return Message{}, errorf(CodeInvalidResponse, "unknown encryption mode %v", msg.Mode)
	}
	return msg, nil
}
