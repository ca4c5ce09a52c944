// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/creachadair/sysprobe"
)

var sizeUnits = []string{"B", "KB", "MB", "GB", "TB"}

// formatBytes renders n as a binary multiple with two decimal places.
func formatBytes(n uint64) string {
	v := float64(n)
	u := 0
	for v >= 1024 && u < len(sizeUnits)-1 {
		v /= 1024
		u++
	}
	return fmt.Sprintf("%.2f %s", v, sizeUnits[u])
}

func plural(n int64, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return strconv.FormatInt(n, 10) + " " + many
}

// formatUptime renders d in days, hours, minutes, and seconds. Leading units
// that are zero are omitted; seconds are always reported.
func formatUptime(d time.Duration) string {
	secs := int64(d / time.Second)
	days, secs := secs/86400, secs%86400
	hours, secs := secs/3600, secs%3600
	mins, secs := secs/60, secs%60

	var parts []string
	if days > 0 {
		parts = append(parts, plural(days, "day", "days"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour", "hours"))
	}
	if mins > 0 {
		parts = append(parts, plural(mins, "minute", "minutes"))
	}
	parts = append(parts, plural(secs, "second", "seconds"))
	return strings.Join(parts, " ")
}

// formatTime renders the wall clock time of t in its own zone.
func formatTime(t sysprobe.TimeInfo) string {
	sign, zone := "+", int(t.Zone)
	if zone < 0 {
		sign, zone = "-", -zone
	}
	return fmt.Sprintf("%s (UTC %s%d)", t.Time().Format(time.TimeOnly), sign, zone)
}

// printResponse writes a human-readable rendering of rsp, the reply to a
// request of the given kind, to w.
func printResponse(w io.Writer, kind sysprobe.RequestKind, rsp sysprobe.Response) error {
	switch v := rsp.(type) {
	case sysprobe.OSInfo:
		fmt.Fprintln(w, v)
	case sysprobe.TimeInfo:
		if kind == sysprobe.RequestUptime {
			fmt.Fprintln(w, "Time since start:", formatUptime(v.Duration()))
		} else {
			fmt.Fprintln(w, formatTime(v))
		}
	case sysprobe.MemoryInfo:
		fmt.Fprintln(w, "Total memory:", formatBytes(v.Total))
		fmt.Fprintln(w, "Free memory:", formatBytes(v.Free))
	case sysprobe.DriveList:
		fmt.Fprintln(w, "Mounted drives:")
		for _, d := range v {
			fmt.Fprintf(w, "\t%s [%v] Free space: %s\n", d.Name, d.Kind, formatBytes(d.Free))
		}
	case sysprobe.AccessList:
		printRights(w, v)
	case sysprobe.OwnerInfo:
		sid := "(none)"
		if v.SID != nil {
			sid = v.SID.String()
		}
		fmt.Fprintf(w, "%s SID: %s\n", v.Account(), sid)
	default:
		return fmt.Errorf("unexpected response %T", rsp)
	}
	return nil
}

func printRights(w io.Writer, acl sysprobe.AccessList) {
	if len(acl) == 0 {
		fmt.Fprintln(w, "(no access entries)")
		return
	}
	for _, e := range acl {
		fmt.Fprintln(w, "SID:", e.SID)
		fmt.Fprintln(w, "ACE Type:", e.Type)
		fmt.Fprintln(w, "Scope:", e.Scope)
		fmt.Fprintf(w, "Access Mask: 0x%x\n", uint32(e.Mask))
		fmt.Fprintln(w, "Set Bit Names:")
		for _, name := range e.Mask.Names() {
			fmt.Fprintf(w, "\t+ %s\n", name)
		}
		fmt.Fprintln(w)
	}
}

// runRequest parses a request from args, sends it with c, and prints the
// reply to w. The first argument names the request; a path argument follows
// for requests that need one.
func runRequest(ctx context.Context, w io.Writer, c *sysprobe.Connector, args []string) error {
	if len(args) == 0 {
		return errors.New("missing request name")
	}
	kind, err := sysprobe.ParseRequestKind(args[0])
	if err != nil {
		return err
	}
	req := sysprobe.Request{Kind: kind}
	if kind.HasArgument() {
		if len(args) != 2 {
			return fmt.Errorf("usage: %s <path>", kind)
		}
		req.Path = args[1]
	} else if len(args) != 1 {
		return fmt.Errorf("%s takes no arguments", kind)
	}
	rsp, err := c.Execute(ctx, req)
	if err != nil {
		return err
	}
	return printResponse(w, kind, rsp)
}
