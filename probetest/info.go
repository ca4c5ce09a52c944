// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package probetest

import (
	"hash/fnv"
	"io/fs"
	"strings"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/creachadair/sysprobe"
)

// Info is a fake [sysprobe.InfoProvider] that reports plausible random
// values. The values depend only on Seed and, where applicable, the path, so
// repeated calls report the same results.
//
// Paths beginning with "/missing" report fs.ErrNotExist, paths beginning
// with "/denied" report fs.ErrPermission, and paths beginning with "/empty"
// have no access entries.
type Info struct {
	Seed uint64
}

var _ sysprobe.InfoProvider = Info{}

func (i Info) faker(salt string) *gofakeit.Faker {
	h := fnv.New64a()
	h.Write([]byte(salt))
	return gofakeit.New(i.Seed ^ h.Sum64())
}

func checkPath(path string) error {
	switch {
	case strings.HasPrefix(path, "/missing"):
		return &fs.PathError{Op: "stat", Path: path, Err: fs.ErrNotExist}
	case strings.HasPrefix(path, "/denied"):
		return &fs.PathError{Op: "stat", Path: path, Err: fs.ErrPermission}
	}
	return nil
}

// OSInfo implements part of [sysprobe.InfoProvider].
func (i Info) OSInfo() (sysprobe.OSInfo, error) {
	f := i.faker("os")
	return sysprobe.OSInfo{
		Family: sysprobe.OSFamily(f.Number(0, int(sysprobe.OSUnix))),
		Major:  uint16(f.Number(1, 20)),
		Minor:  uint16(f.Number(0, 99)),
	}, nil
}

// Uptime implements part of [sysprobe.InfoProvider].
func (i Info) Uptime() (sysprobe.TimeInfo, error) {
	f := i.faker("uptime")
	return sysprobe.TimeInfo{Millis: uint64(f.Number(1000, 90*24*3600*1000))}, nil
}

// Time implements part of [sysprobe.InfoProvider].
func (i Info) Time() (sysprobe.TimeInfo, error) {
	f := i.faker("time")
	return sysprobe.TimeInfo{
		Millis: uint64(f.Date().UnixMilli()),
		Zone:   int8(f.Number(-12, 14)),
	}, nil
}

// Memory implements part of [sysprobe.InfoProvider].
func (i Info) Memory() (sysprobe.MemoryInfo, error) {
	f := i.faker("memory")
	total := uint64(f.Number(1, 512)) << 30
	return sysprobe.MemoryInfo{Total: total, Free: total / uint64(f.Number(2, 10))}, nil
}

// Drives implements part of [sysprobe.InfoProvider].
func (i Info) Drives() (sysprobe.DriveList, error) {
	f := i.faker("drives")
	out := make(sysprobe.DriveList, f.Number(1, 6))
	for j := range out {
		out[j] = sysprobe.Drive{
			Kind: sysprobe.DriveKind(f.Number(0, int(sysprobe.DriveUnknown))),
			Name: "/" + f.Word(),
			Free: uint64(f.Number(0, 1<<20)) << 20,
		}
	}
	return out, nil
}

// AccessEntries implements part of [sysprobe.InfoProvider].
func (i Info) AccessEntries(path string) (sysprobe.AccessList, error) {
	if err := checkPath(path); err != nil {
		return nil, err
	} else if strings.HasPrefix(path, "/empty") {
		return sysprobe.AccessList{}, nil
	}
	f := i.faker("rights:" + path)
	out := make(sysprobe.AccessList, f.Number(1, 8))
	for j := range out {
		out[j] = sysprobe.AccessEntry{
			SID:   sysprobe.UserSID(uint32(f.Number(0, 65535))),
			Type:  sysprobe.AceType(f.Number(0, int(sysprobe.AceOther))),
			Scope: sysprobe.AceScope(f.Number(0, int(sysprobe.ScopeContainer))),
			Mask:  sysprobe.AccessMask(f.Uint32()),
		}
	}
	return out, nil
}

// Owner implements part of [sysprobe.InfoProvider].
func (i Info) Owner(path string) (sysprobe.OwnerInfo, error) {
	if err := checkPath(path); err != nil {
		return sysprobe.OwnerInfo{}, err
	}
	f := i.faker("owner:" + path)
	sid := sysprobe.UserSID(uint32(f.Number(1000, 60000)))
	return sysprobe.OwnerInfo{
		Name:   f.Username(),
		Domain: f.DomainName(),
		SID:    &sid,
	}, nil
}
