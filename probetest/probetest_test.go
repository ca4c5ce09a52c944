// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package probetest_test

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"testing"

	"github.com/creachadair/sysprobe"
	"github.com/creachadair/sysprobe/probetest"
	"github.com/fortytw2/leaktest"
	"github.com/google/go-cmp/cmp"
)

func TestKeys(t *testing.T) {
	client := &probetest.Keys{Name: "client"}
	server := &probetest.Keys{Name: "server"}
	const id = sysprobe.ConnID(7)

	if _, err := client.PublicKey(); err == nil {
		t.Error("PublicKey before GenerateKeyPair: got nil error")
	}
	if err := client.GenerateKeyPair(); err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	pub, err := client.PublicKey()
	if err != nil {
		t.Fatalf("PublicKey: %v", err)
	}

	// Server side of the handshake.
	if err := server.GenerateKey(id); err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	if _, err := server.ExportKey(id, []byte("bogus")); err == nil {
		t.Error("ExportKey with invalid peer key: got nil error")
	}
	blob, err := server.ExportKey(id, pub)
	if err != nil {
		t.Fatalf("ExportKey: %v", err)
	}

	// Client side of the handshake.
	other := &probetest.Keys{Name: "other"}
	if err := other.ImportKey(id, blob); err == nil {
		t.Error("ImportKey into the wrong store: got nil error")
	}
	if err := client.ImportKey(id, blob); err != nil {
		t.Fatalf("ImportKey: %v", err)
	}
	if !client.Has(id) || client.Len() != 1 {
		t.Errorf("After import: Has=%v Len=%d, want true, 1", client.Has(id), client.Len())
	}

	msg := []byte("a secret message")
	enc, err := client.Encrypt(id, msg)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Contains(enc, msg) {
		t.Errorf("Encrypt: output %q contains plaintext", enc)
	}
	dec, err := server.Decrypt(id, enc)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(dec, msg) {
		t.Errorf("Decrypt: got %q, want %q", dec, msg)
	}

	// A fresh key does not decrypt data from the old one.
	if err := server.GenerateKey(id); err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	if _, err := server.Decrypt(id, enc); !errors.Is(err, probetest.ErrWrongKey) {
		t.Errorf("Decrypt with new key: got %v, want %v", err, probetest.ErrWrongKey)
	}

	client.DiscardKey(id)
	if client.Has(id) || client.Len() != 0 {
		t.Error("DiscardKey did not remove the key")
	}
	if _, err := client.Encrypt(id, msg); err == nil {
		t.Error("Encrypt after DiscardKey: got nil error")
	}
}

func TestInfo(t *testing.T) {
	a, b := probetest.Info{Seed: 1}, probetest.Info{Seed: 2}

	// The same seed reports the same values.
	d1, _ := a.Drives()
	d2, _ := a.Drives()
	if diff := cmp.Diff(d1, d2); diff != "" {
		t.Errorf("Drives differ for the same seed (-first, +second):\n%s", diff)
	}
	r1, _ := a.AccessEntries("/x")
	r2, _ := a.AccessEntries("/x")
	if diff := cmp.Diff(r1, r2); diff != "" {
		t.Errorf("AccessEntries differ for the same path (-first, +second):\n%s", diff)
	}
	o1, _ := a.Owner("/x")
	o2, _ := b.Owner("/x")
	if cmp.Equal(o1, o2) {
		t.Errorf("Owner is the same for different seeds: %+v", o1)
	}

	if m, _ := a.Memory(); m.Total == 0 || m.Free > m.Total {
		t.Errorf("Memory: implausible %+v", m)
	}
	if len(d1) == 0 {
		t.Error("Drives: got no drives")
	}
	if o1.SID == nil || o1.Name == "" {
		t.Errorf("Owner: incomplete %+v", o1)
	}

	if _, err := a.Owner("/missing/file"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Owner(/missing): got %v, want %v", err, fs.ErrNotExist)
	}
	if _, err := a.AccessEntries("/denied"); !errors.Is(err, fs.ErrPermission) {
		t.Errorf("AccessEntries(/denied): got %v, want %v", err, fs.ErrPermission)
	}
	if acl, err := a.AccessEntries("/empty"); err != nil || len(acl) != 0 {
		t.Errorf("AccessEntries(/empty): got (%v, %v), want empty", acl, err)
	}
}

func TestLocal(t *testing.T) {
	defer leaktest.Check(t)()

	loc, err := probetest.NewLocal(&probetest.Options{Info: probetest.Info{Seed: 3}})
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	ctx := context.Background()

	want, _ := probetest.Info{Seed: 3}.Memory()
	got, err := loc.Client.Memory(ctx)
	if err != nil {
		t.Fatalf("Memory: %v", err)
	}
	if got != want {
		t.Errorf("Memory: got %+v, want %+v", got, want)
	}

	c2 := loc.Dial()
	defer c2.Close()
	if c2.ID() == loc.Client.ID() {
		t.Errorf("Dial: reused connection ID %v", c2.ID())
	}
	if !c2.Check(ctx) {
		t.Error("Check on a second connector failed")
	}
	if n := loc.ClientKeys.(*probetest.Keys).Len(); n != 2 {
		t.Errorf("Client keys: got %d, want 2", n)
	}

	if err := loc.Stop(); err != nil {
		t.Errorf("Stop: unexpected error: %v", err)
	}
	if c2.Check(ctx) {
		t.Error("Check after Stop succeeded")
	}
}
