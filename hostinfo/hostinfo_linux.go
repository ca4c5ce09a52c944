// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

//go:build linux

package hostinfo

import (
	"io/fs"
	"os"
	"os/user"
	"strconv"

	"github.com/creachadair/sysprobe"
	"golang.org/x/sys/unix"
)

// OSInfo implements part of [sysprobe.InfoProvider].
func (p *Provider) OSInfo() (sysprobe.OSInfo, error) {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return sysprobe.OSInfo{}, os.NewSyscallError("uname", err)
	}
	major, minor := parseRelease(unix.ByteSliceToString(u.Release[:]))
	return sysprobe.OSInfo{Family: sysprobe.OSLinux, Major: major, Minor: minor}, nil
}

// Uptime implements part of [sysprobe.InfoProvider]. Uptime includes time
// spent suspended.
func (p *Provider) Uptime() (sysprobe.TimeInfo, error) {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_BOOTTIME, &ts); err != nil {
		return sysprobe.TimeInfo{}, os.NewSyscallError("clock_gettime", err)
	}
	return sysprobe.TimeInfo{Millis: uint64(ts.Sec)*1000 + uint64(ts.Nsec)/1e6}, nil
}

// Memory implements part of [sysprobe.InfoProvider].
func (p *Provider) Memory() (sysprobe.MemoryInfo, error) {
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err != nil {
		return sysprobe.MemoryInfo{}, os.NewSyscallError("sysinfo", err)
	}
	unit := uint64(si.Unit)
	if unit == 0 {
		unit = 1
	}
	return sysprobe.MemoryInfo{
		Total: uint64(si.Totalram) * unit,
		Free:  uint64(si.Freeram) * unit,
	}, nil
}

// Drives implements part of [sysprobe.InfoProvider]. Mount points that
// cannot be examined are skipped.
func (p *Provider) Drives() (sysprobe.DriveList, error) {
	data, err := os.ReadFile(p.mounts())
	if err != nil {
		return nil, err
	}
	out := sysprobe.DriveList{}
	for _, m := range parseMounts(data) {
		kind, ok := classify(m)
		if !ok {
			continue
		}
		var st unix.Statfs_t
		if err := unix.Statfs(m.Dir, &st); err != nil {
			continue
		}
		out = append(out, sysprobe.Drive{
			Kind: kind,
			Name: m.Dir,
			Free: uint64(st.Bavail) * uint64(st.Bsize),
		})
	}
	return out, nil
}

func stat(path string) (*unix.Stat_t, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return nil, &fs.PathError{Op: "stat", Path: path, Err: err}
	}
	return &st, nil
}

// AccessEntries implements part of [sysprobe.InfoProvider].
func (p *Provider) AccessEntries(path string) (sysprobe.AccessList, error) {
	st, err := stat(path)
	if err != nil {
		return nil, err
	}
	isDir := st.Mode&unix.S_IFMT == unix.S_IFDIR
	return modeEntries(st.Mode&0o777, st.Uid, st.Gid, isDir), nil
}

// Owner implements part of [sysprobe.InfoProvider]. If the owning user has
// no name, the numeric user ID is reported as the name.
func (p *Provider) Owner(path string) (sysprobe.OwnerInfo, error) {
	st, err := stat(path)
	if err != nil {
		return sysprobe.OwnerInfo{}, err
	}
	uid := strconv.FormatUint(uint64(st.Uid), 10)
	name := uid
	if u, err := user.LookupId(uid); err == nil {
		name = u.Username
	}
	domain := p.Domain
	if domain == "" {
		domain, _ = os.Hostname()
	}
	sid := sysprobe.UserSID(st.Uid)
	return sysprobe.OwnerInfo{Name: name, Domain: domain, SID: &sid}, nil
}
