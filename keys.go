// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package sysprobe

import "fmt"

// A ConnID identifies one connection for the purpose of key association.
type ConnID uint64

func (c ConnID) String() string {
	if g := c >> 32; g != 0 {
		return fmt.Sprintf("conn-%d.%d", uint32(c), g)
	}
	return fmt.Sprintf("conn-%d", uint32(c))
}

// A KeyStore manages the key material used to protect message payloads.
//
// Each store owns one asymmetric keypair, used by a client to receive a
// session key, and a set of symmetric session keys indexed by connection.
// Implementations must be safe for concurrent use by multiple goroutines.
type KeyStore interface {
	// GenerateKeyPair creates the asymmetric keypair for the store, if it has
	// not already been created. It is safe to call more than once.
	GenerateKeyPair() error

	// PublicKey returns the exported public key of the store's keypair.
	PublicKey() ([]byte, error)

	// GenerateKey creates a fresh session key for id, replacing any
	// existing key.
	GenerateKey(id ConnID) error

	// ExportKey returns the session key for id encrypted under peerKey, a
	// public key exported by another store.
	ExportKey(id ConnID, peerKey []byte) ([]byte, error)

	// ImportKey decrypts a session key exported by a peer under this store's
	// public key, and installs it as the session key for id.
	ImportKey(id ConnID, blob []byte) error

	// DiscardKey removes the session key for id, if any.
	DiscardKey(id ConnID)

	// Encrypt encrypts data with the session key for id.
	Encrypt(id ConnID, data []byte) ([]byte, error)

	// Decrypt decrypts data with the session key for id. Decrypt must report
	// an error rather than returning garbage if data was not encrypted with
	// that key.
	Decrypt(id ConnID, data []byte) ([]byte, error)
}
