// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package sysprobe

import (
	"fmt"
	"strings"
)

// AccessMask is a 32-bit set of access rights.
type AccessMask uint32

// Access rights, with the same bit assignments as Windows access masks.
const (
	FileReadData        AccessMask = 0x00000001
	FileWriteData       AccessMask = 0x00000002
	FileAppendData      AccessMask = 0x00000004
	FileReadEA          AccessMask = 0x00000008
	FileWriteEA         AccessMask = 0x00000010
	FileExecute         AccessMask = 0x00000020
	FileDeleteChild     AccessMask = 0x00000040
	FileReadAttributes  AccessMask = 0x00000080
	FileWriteAttributes AccessMask = 0x00000100

	Delete      AccessMask = 0x00010000
	ReadControl AccessMask = 0x00020000
	WriteDAC    AccessMask = 0x00040000
	WriteOwner  AccessMask = 0x00080000
	Synchronize AccessMask = 0x00100000

	StandardRightsRequired AccessMask = 0x000F0000
	StandardRightsAll      AccessMask = 0x001F0000
	SpecificRightsAll      AccessMask = 0x0000FFFF

	FileGenericRead    = ReadControl | FileReadData | FileReadAttributes | FileReadEA | Synchronize
	FileGenericWrite   = ReadControl | FileWriteData | FileWriteAttributes | FileWriteEA | FileAppendData | Synchronize
	FileGenericExecute = ReadControl | FileReadAttributes | FileExecute | Synchronize
)

var maskNames = []struct {
	bit  AccessMask
	name string
}{
	{FileReadData, "FILE_READ_DATA"},
	{FileWriteData, "FILE_WRITE_DATA"},
	{FileAppendData, "FILE_APPEND_DATA"},
	{FileReadEA, "FILE_READ_EA"},
	{FileWriteEA, "FILE_WRITE_EA"},
	{FileExecute, "FILE_EXECUTE"},
	{FileDeleteChild, "FILE_DELETE_CHILD"},
	{FileReadAttributes, "FILE_READ_ATTRIBUTES"},
	{FileWriteAttributes, "FILE_WRITE_ATTRIBUTES"},
	{Delete, "DELETE"},
	{ReadControl, "READ_CONTROL"},
	{WriteDAC, "WRITE_DAC"},
	{WriteOwner, "WRITE_OWNER"},
	{Synchronize, "SYNCHRONIZE"},
}

// Names returns the names of the individual rights set in m, in increasing
// bit order. Bits without a name are reported in hexadecimal.
func (m AccessMask) Names() []string {
	var out []string
	rest := m
	for _, n := range maskNames {
		if m&n.bit != 0 {
			out = append(out, n.name)
			rest &^= n.bit
		}
	}
	if rest != 0 {
		out = append(out, fmt.Sprintf("0x%x", uint32(rest)))
	}
	return out
}

func (m AccessMask) String() string {
	if m == 0 {
		return "0"
	}
	return strings.Join(m.Names(), "|")
}
