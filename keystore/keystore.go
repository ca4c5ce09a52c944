// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Package keystore implements the [sysprobe.KeyStore] interface.
//
// A Store holds an RSA keypair used to receive session keys, and a table of
// per-connection session secrets. A session secret is transported wrapped
// with RSA-OAEP (SHA-256) under the receiver's public key. Both ends derive
// an XChaCha20-Poly1305 key from the secret with HKDF-SHA256, and payloads
// are sealed as nonce || ciphertext with a random nonce.
package keystore

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/creachadair/sysprobe"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	// DefaultBits is the default RSA modulus size.
	DefaultBits = 2048

	// SecretSize is the size in bytes of a session secret.
	SecretSize = 32

	sessionInfo = "sysprobe-session"
)

var oaepLabel = []byte("sysprobe-key-exchange")

var (
	// ErrNoKeyPair is reported when the keypair is needed but has not been
	// generated.
	ErrNoKeyPair = errors.New("keystore: no keypair")

	// ErrNoKey is reported when no session key exists for a connection.
	ErrNoKey = errors.New("keystore: no session key")

	// ErrCiphertext is reported when a ciphertext is malformed or does not
	// authenticate under the session key.
	ErrCiphertext = errors.New("keystore: invalid ciphertext")
)

// Options are settings for a [Store]. A nil *Options provides defaults.
type Options struct {
	// Bits is the size of the RSA modulus. If zero, DefaultBits is used.
	Bits int

	// Rand is the source of randomness for secrets and nonces.
	// If nil, crypto/rand.Reader is used.
	Rand io.Reader
}

func (o *Options) bits() int {
	if o == nil || o.Bits <= 0 {
		return DefaultBits
	}
	return o.Bits
}

func (o *Options) rand() io.Reader {
	if o == nil || o.Rand == nil {
		return rand.Reader
	}
	return o.Rand
}

// Store is an implementation of [sysprobe.KeyStore]. A Store is safe for
// concurrent use by multiple goroutines.
type Store struct {
	bits int
	rand io.Reader

	μ    sync.Mutex
	priv *rsa.PrivateKey
	keys map[sysprobe.ConnID]*sessionKey
}

type sessionKey struct {
	secret []byte
	aead   cipher.AEAD
}

var _ sysprobe.KeyStore = (*Store)(nil)

// New constructs a new empty Store. The keypair is not generated until
// GenerateKeyPair is called.
func New(opts *Options) *Store {
	return &Store{
		bits: opts.bits(),
		rand: opts.rand(),
		keys: make(map[sysprobe.ConnID]*sessionKey),
	}
}

// GenerateKeyPair implements part of [sysprobe.KeyStore]. Only the first
// successful call generates a keypair.
func (s *Store) GenerateKeyPair() error {
	s.μ.Lock()
	defer s.μ.Unlock()
	if s.priv != nil {
		return nil
	}
	priv, err := rsa.GenerateKey(s.rand, s.bits)
	if err != nil {
		return fmt.Errorf("generate keypair: %w", err)
	}
	s.priv = priv
	return nil
}

// PublicKey implements part of [sysprobe.KeyStore]. The key is encoded in
// PKIX DER form.
func (s *Store) PublicKey() ([]byte, error) {
	s.μ.Lock()
	defer s.μ.Unlock()
	if s.priv == nil {
		return nil, ErrNoKeyPair
	}
	return x509.MarshalPKIXPublicKey(&s.priv.PublicKey)
}

// GenerateKey implements part of [sysprobe.KeyStore].
func (s *Store) GenerateKey(id sysprobe.ConnID) error {
	secret := make([]byte, SecretSize)
	if _, err := io.ReadFull(s.rand, secret); err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	return s.install(id, secret)
}

// ExportKey implements part of [sysprobe.KeyStore].
func (s *Store) ExportKey(id sysprobe.ConnID, peerKey []byte) ([]byte, error) {
	pk, err := x509.ParsePKIXPublicKey(peerKey)
	if err != nil {
		return nil, fmt.Errorf("parse peer key: %w", err)
	}
	pub, ok := pk.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("peer key has unsupported type %T", pk)
	}
	s.μ.Lock()
	sk, ok := s.keys[id]
	s.μ.Unlock()
	if !ok {
		return nil, fmt.Errorf("export %v: %w", id, ErrNoKey)
	}
	return rsa.EncryptOAEP(sha256.New(), s.rand, pub, sk.secret, oaepLabel)
}

// ImportKey implements part of [sysprobe.KeyStore].
func (s *Store) ImportKey(id sysprobe.ConnID, blob []byte) error {
	s.μ.Lock()
	priv := s.priv
	s.μ.Unlock()
	if priv == nil {
		return ErrNoKeyPair
	}
	secret, err := rsa.DecryptOAEP(sha256.New(), nil, priv, blob, oaepLabel)
	if err != nil {
		return fmt.Errorf("unwrap key: %w", err)
	} else if len(secret) != SecretSize {
		return fmt.Errorf("unwrap key: secret has %d bytes, want %d", len(secret), SecretSize)
	}
	return s.install(id, secret)
}

// DiscardKey implements part of [sysprobe.KeyStore].
func (s *Store) DiscardKey(id sysprobe.ConnID) {
	s.μ.Lock()
	defer s.μ.Unlock()
	if sk, ok := s.keys[id]; ok {
		clear(sk.secret)
		delete(s.keys, id)
	}
}

// Len reports the number of session keys currently held by s.
func (s *Store) Len() int {
	s.μ.Lock()
	defer s.μ.Unlock()
	return len(s.keys)
}

// Encrypt implements part of [sysprobe.KeyStore].
func (s *Store) Encrypt(id sysprobe.ConnID, data []byte) ([]byte, error) {
	aead, err := s.aead(id)
	if err != nil {
		return nil, err
	}
	ns := aead.NonceSize()
	out := make([]byte, ns, ns+len(data)+aead.Overhead())
	if _, err := io.ReadFull(s.rand, out); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return aead.Seal(out, out[:ns], data, nil), nil
}

// Decrypt implements part of [sysprobe.KeyStore].
func (s *Store) Decrypt(id sysprobe.ConnID, data []byte) ([]byte, error) {
	aead, err := s.aead(id)
	if err != nil {
		return nil, err
	}
	ns := aead.NonceSize()
	if len(data) < ns+aead.Overhead() {
		return nil, fmt.Errorf("ciphertext too short (%d bytes): %w", len(data), ErrCiphertext)
	}
	out, err := aead.Open(nil, data[:ns], data[ns:], nil)
	if err != nil {
		return nil, ErrCiphertext
	}
	return out, nil
}

func (s *Store) aead(id sysprobe.ConnID) (cipher.AEAD, error) {
	s.μ.Lock()
	defer s.μ.Unlock()
	sk, ok := s.keys[id]
	if !ok {
		return nil, fmt.Errorf("%v: %w", id, ErrNoKey)
	}
	return sk.aead, nil
}

func (s *Store) install(id sysprobe.ConnID, secret []byte) error {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(sessionInfo)), key); err != nil {
		return fmt.Errorf("derive key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return fmt.Errorf("derive key: %w", err)
	}
	s.μ.Lock()
	defer s.μ.Unlock()
	if old, ok := s.keys[id]; ok {
		clear(old.secret)
	}
	s.keys[id] = &sessionKey{secret: secret, aead: aead}
	return nil
}
