// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package probetest

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/creachadair/sysprobe"
)

// Keys is a fake [sysprobe.KeyStore] with deterministic keys. It provides no
// security, but like a real key store, decrypting with the wrong key reports
// an error. A zero Keys is ready for use; Name distinguishes the public keys
// of different stores.
type Keys struct {
	Name string

	μ     sync.Mutex
	pair  bool
	keys  map[sysprobe.ConnID][]byte
	nextK uint64
}

var _ sysprobe.KeyStore = (*Keys)(nil)

// ErrWrongKey is reported by Decrypt if the data were not encrypted with the
// session key for the connection.
var ErrWrongKey = errors.New("probetest: wrong key")

func (k *Keys) publicKey() []byte { return []byte("public:" + k.Name) }

// GenerateKeyPair implements part of [sysprobe.KeyStore].
func (k *Keys) GenerateKeyPair() error {
	k.μ.Lock()
	defer k.μ.Unlock()
	k.pair = true
	return nil
}

// PublicKey implements part of [sysprobe.KeyStore].
func (k *Keys) PublicKey() ([]byte, error) {
	k.μ.Lock()
	defer k.μ.Unlock()
	if !k.pair {
		return nil, errors.New("probetest: no keypair")
	}
	return k.publicKey(), nil
}

// GenerateKey implements part of [sysprobe.KeyStore]. Keys are derived from
// a counter, so a fresh key never equals an earlier one.
func (k *Keys) GenerateKey(id sysprobe.ConnID) error {
	k.μ.Lock()
	defer k.μ.Unlock()
	k.nextK++
	sum := sha256.Sum256(binary.BigEndian.AppendUint64([]byte(k.Name), k.nextK))
	k.setLocked(id, sum[:])
	return nil
}

func (k *Keys) setLocked(id sysprobe.ConnID, key []byte) {
	if k.keys == nil {
		k.keys = make(map[sysprobe.ConnID][]byte)
	}
	k.keys[id] = key
}

// ExportKey implements part of [sysprobe.KeyStore]. The exported blob is the
// peer key, a separator, and the session key.
func (k *Keys) ExportKey(id sysprobe.ConnID, peerKey []byte) ([]byte, error) {
	k.μ.Lock()
	defer k.μ.Unlock()
	if !bytes.HasPrefix(peerKey, []byte("public:")) {
		return nil, fmt.Errorf("probetest: invalid peer key %q", peerKey)
	}
	key, ok := k.keys[id]
	if !ok {
		return nil, fmt.Errorf("probetest: no key for %v", id)
	}
	return append(append(bytes.Clone(peerKey), 0), key...), nil
}

// ImportKey implements part of [sysprobe.KeyStore].
func (k *Keys) ImportKey(id sysprobe.ConnID, blob []byte) error {
	k.μ.Lock()
	defer k.μ.Unlock()
	pk, key, ok := bytes.Cut(blob, []byte{0})
	if !ok || !bytes.Equal(pk, k.publicKey()) {
		return errors.New("probetest: key was not exported for this store")
	}
	k.setLocked(id, bytes.Clone(key))
	return nil
}

// DiscardKey implements part of [sysprobe.KeyStore].
func (k *Keys) DiscardKey(id sysprobe.ConnID) {
	k.μ.Lock()
	defer k.μ.Unlock()
	delete(k.keys, id)
}

// Len reports the number of session keys held by k.
func (k *Keys) Len() int {
	k.μ.Lock()
	defer k.μ.Unlock()
	return len(k.keys)
}

// Has reports whether k holds a session key for id.
func (k *Keys) Has(id sysprobe.ConnID) bool {
	k.μ.Lock()
	defer k.μ.Unlock()
	_, ok := k.keys[id]
	return ok
}

// Encrypt implements part of [sysprobe.KeyStore]. The output is a 4-byte
// key tag followed by data XOR the key.
func (k *Keys) Encrypt(id sysprobe.ConnID, data []byte) ([]byte, error) {
	key, err := k.key(id)
	if err != nil {
		return nil, err
	}
	out := append(bytes.Clone(key[:4]), data...)
	xorKey(out[4:], key)
	return out, nil
}

// Decrypt implements part of [sysprobe.KeyStore].
func (k *Keys) Decrypt(id sysprobe.ConnID, data []byte) ([]byte, error) {
	key, err := k.key(id)
	if err != nil {
		return nil, err
	}
	if len(data) < 4 || !bytes.Equal(data[:4], key[:4]) {
		return nil, ErrWrongKey
	}
	out := bytes.Clone(data[4:])
	xorKey(out, key)
	return out, nil
}

func (k *Keys) key(id sysprobe.ConnID) ([]byte, error) {
	k.μ.Lock()
	defer k.μ.Unlock()
	key, ok := k.keys[id]
	if !ok {
		return nil, fmt.Errorf("probetest: no key for %v", id)
	}
	return key, nil
}

func xorKey(data, key []byte) {
	for i := range data {
		data[i] ^= key[i%len(key)]
	}
}
