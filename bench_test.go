// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package sysprobe_test

import (
	"context"
	"testing"

	"github.com/creachadair/sysprobe"
	"github.com/creachadair/sysprobe/keystore"
	"github.com/creachadair/sysprobe/probetest"
)

func BenchmarkCodec(b *testing.B) {
	rights, _ := probetest.Info{Seed: 5}.AccessEntries("/bench")

	b.Run("EncodeResponse", func(b *testing.B) {
		for b.Loop() {
			sysprobe.EncodeResponse(rights)
		}
	})
	b.Run("DecodeResponse", func(b *testing.B) {
		data := sysprobe.EncodeResponse(rights)
		for b.Loop() {
			if _, err := sysprobe.DecodeResponse(data); err != nil {
				b.Fatalf("Decode: %v", err)
			}
		}
	})
	b.Run("Request", func(b *testing.B) {
		req := sysprobe.Request{Kind: sysprobe.RequestOwner, Path: `C:\Windows\System32\drivers\etc\hosts`}
		for b.Loop() {
			var out sysprobe.Request
			if err := out.Decode(req.Encode()); err != nil {
				b.Fatalf("Decode: %v", err)
			}
		}
	})
}

func BenchmarkQuery(b *testing.B) {
	b.Run("FakeKeys", func(b *testing.B) {
		runQueries(b, nil)
	})
	b.Run("RealKeys", func(b *testing.B) {
		runQueries(b, &probetest.Options{
			ServerKeys: keystore.New(&keystore.Options{Bits: 1024}),
			ClientKeys: keystore.New(&keystore.Options{Bits: 1024}),
		})
	})
}

func runQueries(b *testing.B, opts *probetest.Options) {
	b.Helper()
	loc, err := probetest.NewLocal(opts)
	if err != nil {
		b.Fatalf("NewLocal: %v", err)
	}
	defer loc.Stop()

	ctx := context.Background()
	if _, err := loc.Client.OSInfo(ctx); err != nil {
		b.Fatalf("OSInfo: %v", err)
	}
	for b.Loop() {
		if _, err := loc.Client.Rights(ctx, "/bench/path"); err != nil {
			b.Fatalf("Rights: %v", err)
		}
	}
}
