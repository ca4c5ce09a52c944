// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

//go:build !linux

package hostinfo

import (
	"errors"
	"runtime"

	"github.com/creachadair/sysprobe"
)

var errUnsupported = &sysprobe.Error{Code: sysprobe.CodeUnknown, Err: errors.ErrUnsupported}

// OSInfo implements part of [sysprobe.InfoProvider]. Versions are not
// reported on this platform.
func (p *Provider) OSInfo() (sysprobe.OSInfo, error) {
	fam := sysprobe.OSUnix
	switch runtime.GOOS {
	case "darwin":
		fam = sysprobe.OSDarwin
	case "windows":
		switch runtime.GOARCH {
		case "386":
			fam = sysprobe.OSWin32
		case "arm":
			fam = sysprobe.OSWinARM
		case "arm64":
			fam = sysprobe.OSWinARM64
		default:
			fam = sysprobe.OSWin64
		}
	}
	return sysprobe.OSInfo{Family: fam}, nil
}

// Uptime implements part of [sysprobe.InfoProvider].
func (p *Provider) Uptime() (sysprobe.TimeInfo, error) { return sysprobe.TimeInfo{}, errUnsupported }

// Memory implements part of [sysprobe.InfoProvider].
func (p *Provider) Memory() (sysprobe.MemoryInfo, error) {
	return sysprobe.MemoryInfo{}, errUnsupported
}

// Drives implements part of [sysprobe.InfoProvider].
func (p *Provider) Drives() (sysprobe.DriveList, error) { return nil, errUnsupported }

// AccessEntries implements part of [sysprobe.InfoProvider].
func (p *Provider) AccessEntries(path string) (sysprobe.AccessList, error) {
	return nil, errUnsupported
}

// Owner implements part of [sysprobe.InfoProvider].
func (p *Provider) Owner(path string) (sysprobe.OwnerInfo, error) {
	return sysprobe.OwnerInfo{}, errUnsupported
}
