// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Package hostinfo implements a [sysprobe.InfoProvider] that reports facts
// about the local host.
//
// On Linux, all methods are supported. File access entries are synthesized
// from POSIX permission bits: one entry each for the owning user, the owning
// group, and everyone else, identified by S-1-22-1-uid, S-1-22-2-gid, and
// S-1-1-0 respectively. On other platforms, methods that are not supported
// report [sysprobe.ErrUnknown].
package hostinfo

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"
	"time"

	"github.com/creachadair/sysprobe"
)

// DefaultMounts is the default location of the mount table.
const DefaultMounts = "/proc/mounts"

// Provider implements [sysprobe.InfoProvider] for the local host.
type Provider struct {
	// Mounts is the path of the mount table. If empty, DefaultMounts is used.
	Mounts string

	// Domain is reported as the domain of file owners. If empty, the host
	// name is used.
	Domain string
}

var _ sysprobe.InfoProvider = (*Provider)(nil)

// New returns a Provider with default settings.
func New() *Provider { return new(Provider) }

func (p *Provider) mounts() string {
	if p.Mounts == "" {
		return DefaultMounts
	}
	return p.Mounts
}

// Time implements part of [sysprobe.InfoProvider].
func (p *Provider) Time() (sysprobe.TimeInfo, error) { return timeInfo(time.Now()), nil }

func timeInfo(now time.Time) sysprobe.TimeInfo {
	_, off := now.Zone()
	return sysprobe.TimeInfo{Millis: uint64(now.UnixMilli()), Zone: int8(off / 3600)}
}

// parseRelease extracts the major and minor version from a release string
// such as "6.8.0-45-generic". Missing components are reported as zero.
func parseRelease(s string) (major, minor uint16) {
	parts := strings.SplitN(s, ".", 3)
	num := func(s string) uint16 {
		end := strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' })
		if end >= 0 {
			s = s[:end]
		}
		v, _ := strconv.ParseUint(s, 10, 16)
		return uint16(v)
	}
	major = num(parts[0])
	if len(parts) > 1 {
		minor = num(parts[1])
	}
	return
}

// A mount is one entry of the mount table.
type mount struct {
	Device string
	Dir    string
	Type   string
}

// parseMounts parses a mount table in fstab format. Entries with fewer than
// three fields are skipped, as are repeated mount points.
func parseMounts(data []byte) []mount {
	var out []mount
	seen := make(map[string]bool)
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		f := strings.Fields(sc.Text())
		if len(f) < 3 || strings.HasPrefix(f[0], "#") {
			continue
		}
		dir := unescapeMount(f[1])
		if seen[dir] {
			continue
		}
		seen[dir] = true
		out = append(out, mount{Device: f[0], Dir: dir, Type: f[2]})
	}
	return out
}

// unescapeMount decodes the octal escapes (e.g., \040) used in mount tables.
func unescapeMount(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) {
			if v, err := strconv.ParseUint(s[i+1:i+4], 8, 8); err == nil {
				sb.WriteByte(byte(v))
				i += 3
				continue
			}
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

var networkTypes = map[string]bool{
	"nfs": true, "nfs4": true, "cifs": true, "smb3": true, "smbfs": true,
	"fuse.sshfs": true, "sshfs": true, "ceph": true, "glusterfs": true, "9p": true,
}

var memoryTypes = map[string]bool{
	"tmpfs": true, "ramfs": true, "overlay": true,
}

// classify reports the drive kind of m, and false if m is a pseudo file
// system that should not be reported as a drive.
func classify(m mount) (sysprobe.DriveKind, bool) {
	switch {
	case networkTypes[m.Type]:
		return sysprobe.DriveNetwork, true
	case memoryTypes[m.Type]:
		return sysprobe.DriveFileSystem, true
	case !strings.HasPrefix(m.Device, "/dev/"):
		return sysprobe.DriveUnknown, false
	case strings.HasPrefix(m.Dir, "/media/") || strings.HasPrefix(m.Dir, "/run/media/"):
		return sysprobe.DriveRemovable, true
	default:
		return sysprobe.DriveLocal, true
	}
}

// modeEntries synthesizes access entries from POSIX permission bits.
func modeEntries(perm uint32, uid, gid uint32, isDir bool) sysprobe.AccessList {
	scope := sysprobe.ScopeDirect
	if isDir {
		scope = sysprobe.ScopeContainer
	}
	entry := func(sid sysprobe.SID, bits uint32, extra sysprobe.AccessMask) sysprobe.AccessEntry {
		if bits&7 == 0 {
			return sysprobe.AccessEntry{
				SID:   sid,
				Type:  sysprobe.AceDenied,
				Scope: scope,
				Mask:  sysprobe.FileGenericRead | sysprobe.FileGenericWrite | sysprobe.FileGenericExecute,
			}
		}
		mask := extra
		if bits&4 != 0 {
			mask |= sysprobe.FileGenericRead
		}
		if bits&2 != 0 {
			mask |= sysprobe.FileGenericWrite
			if isDir {
				mask |= sysprobe.FileDeleteChild
			}
		}
		if bits&1 != 0 {
			mask |= sysprobe.FileGenericExecute
		}
		return sysprobe.AccessEntry{SID: sid, Type: sysprobe.AceAllowed, Scope: scope, Mask: mask}
	}
	return sysprobe.AccessList{
		entry(sysprobe.UserSID(uid), perm>>6, sysprobe.ReadControl|sysprobe.WriteDAC),
		entry(sysprobe.GroupSID(gid), perm>>3, 0),
		entry(sysprobe.EveryoneSID, perm, 0),
	}
}
