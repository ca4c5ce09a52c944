// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package sysprobe

import (
	"encoding/binary"
	"strconv"
	"strings"
)

// SIDLen is the size in bytes of an encoded security identifier.
const SIDLen = 32

// maxSubAuthorities is the number of sub-authorities that fit in a SID.
const maxSubAuthorities = (SIDLen - 8) / 4

// A SID is a fixed-size binary security identifier. The layout is a revision
// byte, a sub-authority count, a 48-bit big-endian identifier authority, and
// up to six little-endian 32-bit sub-authorities. Unused bytes are zero.
type SID [SIDLen]byte

// NewSID constructs a revision 1 SID with the given authority and
// sub-authorities. It panics if more than six sub-authorities are given.
func NewSID(authority uint64, subs ...uint32) SID {
	if len(subs) > maxSubAuthorities {
		panic("too many sub-authorities")
	}
	var s SID
	s[0] = 1
	s[1] = byte(len(subs))
	var auth [8]byte
	binary.BigEndian.PutUint64(auth[:], authority)
	copy(s[2:8], auth[2:])
	for i, v := range subs {
		binary.LittleEndian.PutUint32(s[8+4*i:], v)
	}
	return s
}

// Well-known identifiers.
var (
	// EveryoneSID is the world group, S-1-1-0.
	EveryoneSID = NewSID(1, 0)
)

// UserSID returns the SID for Unix user uid, S-1-22-1-uid.
func UserSID(uid uint32) SID { return NewSID(22, 1, uid) }

// GroupSID returns the SID for Unix group gid, S-1-22-2-gid.
func GroupSID(gid uint32) SID { return NewSID(22, 2, gid) }

// IsZero reports whether s is the zero SID.
func (s SID) IsZero() bool { return s == SID{} }

// String renders s in the conventional S-R-A-S1-S2... form.
func (s SID) String() string {
	var auth [8]byte
	copy(auth[2:], s[2:8])
	var sb strings.Builder
	sb.WriteString("S-")
	sb.WriteString(strconv.Itoa(int(s[0])))
	sb.WriteByte('-')
	sb.WriteString(strconv.FormatUint(binary.BigEndian.Uint64(auth[:]), 10))
	for i := range min(int(s[1]), maxSubAuthorities) {
		sb.WriteByte('-')
		sb.WriteString(strconv.FormatUint(uint64(binary.LittleEndian.Uint32(s[8+4*i:])), 10))
	}
	return sb.String()
}
