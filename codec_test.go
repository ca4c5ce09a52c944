// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package sysprobe_test

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"

	"github.com/creachadair/mds/mtest"
	"github.com/creachadair/sysprobe"
	"github.com/creachadair/sysprobe/probetest"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestFrameValidate(t *testing.T) {
	frame, err := sysprobe.Message{
		Kind:    sysprobe.KindRequest,
		Mode:    sysprobe.ModeNone,
		Payload: []byte{1, 2},
	}.Encode(nil, 0)
	if err != nil {
		t.Fatalf("Encode: unexpected error: %v", err)
	}
	if len(frame) != sysprobe.HeaderLen+2 {
		t.Fatalf("Frame length: got %d, want %d", len(frame), sysprobe.HeaderLen+2)
	}
	if got := binary.BigEndian.Uint64(frame); got != uint64(len(frame)) {
		t.Errorf("Declared size: got %d, want %d", got, len(frame))
	}

	long := append(frame[:len(frame):len(frame)], 0)
	tests := []struct {
		buf  []byte
		n    int
		want bool
	}{
		{frame, 0, false},
		{frame, 7, false},
		{frame, sysprobe.HeaderLen, false},
		{frame, len(frame) - 1, false},
		{frame, len(frame), true},
		{long, len(long), false},
		{long, len(frame), true},
		{frame, len(frame) + 1, false},
		{frame, -1, false},
	}
	for _, tc := range tests {
		if got := sysprobe.Validate(tc.buf, tc.n); got != tc.want {
			t.Errorf("Validate(%d bytes, %d): got %v, want %v", len(tc.buf), tc.n, got, tc.want)
		}
	}
}

func TestCheckFrame(t *testing.T) {
	header := func(size uint64) []byte { return binary.BigEndian.AppendUint64(nil, size) }

	t.Run("Short", func(t *testing.T) {
		size, err := sysprobe.CheckFrame([]byte{0, 0, 0})
		if size != 0 || err != nil {
			t.Errorf("CheckFrame: got (%d, %v), want (0, nil)", size, err)
		}
	})
	t.Run("TooLarge", func(t *testing.T) {
		// Only the size field has arrived; the frame is rejected anyway.
		buf := header(50000)
		_, err := sysprobe.CheckFrame(buf)
		if !errors.Is(err, sysprobe.ErrFrameTooLarge) {
			t.Errorf("CheckFrame: got %v, want %v", err, sysprobe.ErrFrameTooLarge)
		}
		if !errors.Is(err, sysprobe.ErrInvalidResponse) {
			t.Errorf("CheckFrame: got %v, want %v", err, sysprobe.ErrInvalidResponse)
		}
		if sysprobe.Validate(buf, len(buf)) {
			t.Error("Validate: oversized frame reported as complete")
		}
	})
	t.Run("TooSmall", func(t *testing.T) {
		_, err := sysprobe.CheckFrame(header(sysprobe.HeaderLen - 1))
		if !errors.Is(err, sysprobe.ErrFrameTooSmall) {
			t.Errorf("CheckFrame: got %v, want %v", err, sysprobe.ErrFrameTooSmall)
		}
	})
	t.Run("Limit", func(t *testing.T) {
		size, err := sysprobe.CheckFrame(header(sysprobe.MaxFrameSize))
		if err != nil || size != sysprobe.MaxFrameSize {
			t.Errorf("CheckFrame: got (%d, %v), want (%d, nil)", size, err, sysprobe.MaxFrameSize)
		}
	})
}

func TestMessage(t *testing.T) {
	keys := &probetest.Keys{Name: "test"}
	if err := keys.GenerateKey(1); err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	if err := keys.GenerateKey(2); err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	for _, mode := range []sysprobe.Mode{sysprobe.ModeSymmetric, sysprobe.ModeAsymmetric, sysprobe.ModeNone} {
		t.Run(mode.String(), func(t *testing.T) {
			msg := sysprobe.Message{Kind: sysprobe.KindResponse, Mode: mode, Payload: []byte("some payload")}
			frame, err := msg.Encode(keys, 1)
			if err != nil {
				t.Fatalf("Encode: unexpected error: %v", err)
			}
			if !sysprobe.Validate(frame, len(frame)) {
				t.Fatalf("Validate: encoded frame is not complete: %q", frame)
			}
			got, err := sysprobe.DecodeMessage(frame, keys, 1)
			if err != nil {
				t.Fatalf("DecodeMessage: unexpected error: %v", err)
			}
			if diff := cmp.Diff(msg, got); diff != "" {
				t.Errorf("Message (-want, +got):\n%s", diff)
			}
		})
	}

	t.Run("WrongKey", func(t *testing.T) {
		frame, err := sysprobe.Message{Kind: sysprobe.KindRequest, Payload: []byte("x")}.Encode(keys, 1)
		if err != nil {
			t.Fatalf("Encode: unexpected error: %v", err)
		}
		if _, err := sysprobe.DecodeMessage(frame, keys, 2); !errors.Is(err, sysprobe.ErrInvalidResponse) {
			t.Errorf("DecodeMessage: got %v, want %v", err, sysprobe.ErrInvalidResponse)
		}
	})

	t.Run("TooLarge", func(t *testing.T) {
		msg := sysprobe.Message{Kind: sysprobe.KindRequest, Mode: sysprobe.ModeNone, Payload: make([]byte, sysprobe.MaxFrameSize)}
		if _, err := msg.Encode(nil, 0); !errors.Is(err, sysprobe.ErrFrameTooLarge) {
			t.Errorf("Encode: got %v, want %v", err, sysprobe.ErrFrameTooLarge)
		}
	})

	t.Run("BadHeader", func(t *testing.T) {
		frame, err := sysprobe.Message{Kind: sysprobe.KindRequest, Mode: sysprobe.ModeNone}.Encode(nil, 0)
		if err != nil {
			t.Fatalf("Encode: unexpected error: %v", err)
		}
		badKind := append([]byte(nil), frame...)
		badKind[8] = 7
		badMode := append([]byte(nil), frame...)
		badMode[9] = 3
		for _, buf := range [][]byte{badKind, badMode, frame[:len(frame)-1]} {
			if msg, err := sysprobe.DecodeMessage(buf, keys, 1); err == nil {
				t.Errorf("DecodeMessage(%q): got %v, want error", buf, msg)
			}
		}
	})
}

func TestRequest(t *testing.T) {
	tests := []struct {
		input sysprobe.Request
		want  sysprobe.Request
	}{
		{sysprobe.Request{Kind: sysprobe.RequestOSInfo}, sysprobe.Request{Kind: sysprobe.RequestOSInfo}},
		{sysprobe.Request{Kind: sysprobe.RequestMemory, Path: "ignored"}, sysprobe.Request{Kind: sysprobe.RequestMemory}},
		{sysprobe.Request{Kind: sysprobe.RequestRights, Path: "/etc/passwd"}, sysprobe.Request{Kind: sysprobe.RequestRights, Path: "/etc/passwd"}},
		{sysprobe.Request{Kind: sysprobe.RequestOwner, Path: `C:\Users\日本`}, sysprobe.Request{Kind: sysprobe.RequestOwner, Path: `C:\Users\日本`}},
		{sysprobe.Request{Kind: sysprobe.RequestOwner, Path: "a\U0001f600b"}, sysprobe.Request{Kind: sysprobe.RequestOwner, Path: "a\U0001f600b"}},
	}
	for _, tc := range tests {
		var got sysprobe.Request
		if err := got.Decode(tc.input.Encode()); err != nil {
			t.Errorf("Decode %v: unexpected error: %v", tc.input, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Decode %v: got %v, want %v", tc.input, got, tc.want)
		}
	}

	bad := []struct {
		name string
		data []byte
	}{
		{"Empty", nil},
		{"UnknownKind", []byte{9}},
		{"MissingArgument", []byte{byte(sysprobe.RequestRights)}},
		{"OddArgument", []byte{byte(sysprobe.RequestOwner), 0, 0, 0, 0, 0, 0, 0, 1, 'x'}},
		{"TrailingData", []byte{byte(sysprobe.RequestTime), 0}},
	}
	for _, tc := range bad {
		t.Run(tc.name, func(t *testing.T) {
			var req sysprobe.Request
			if err := req.Decode(tc.data); !errors.Is(err, sysprobe.ErrInvalidArgument) {
				t.Errorf("Decode %q: got %v, want %v", tc.data, err, sysprobe.ErrInvalidArgument)
			}
		})
	}
}

func TestRequestKind(t *testing.T) {
	for _, k := range []sysprobe.RequestKind{
		sysprobe.RequestOSInfo, sysprobe.RequestTime, sysprobe.RequestUptime, sysprobe.RequestMemory,
		sysprobe.RequestDrives, sysprobe.RequestRights, sysprobe.RequestOwner,
	} {
		got, err := sysprobe.ParseRequestKind(strings.ToUpper(k.String()))
		if err != nil || got != k {
			t.Errorf("ParseRequestKind(%q): got (%v, %v), want %v", k.String(), got, err, k)
		}
		if want := k == sysprobe.RequestRights || k == sysprobe.RequestOwner; k.HasArgument() != want {
			t.Errorf("%v.HasArgument: got %v, want %v", k, !want, want)
		}
	}
	if _, err := sysprobe.ParseRequestKind("bogus"); !errors.Is(err, sysprobe.ErrInvalidArgument) {
		t.Errorf("ParseRequestKind(bogus): got %v, want %v", err, sysprobe.ErrInvalidArgument)
	}
	if got := sysprobe.RequestUptime.ResponseKind(); got != sysprobe.ResponseTime {
		t.Errorf("Uptime response kind: got %v, want %v", got, sysprobe.ResponseTime)
	}
}

func TestUTF16(t *testing.T) {
	t.Run("Encode", func(t *testing.T) {
		tests := []struct {
			input string
			want  []byte
		}{
			{"", []byte{}},
			{"A", []byte{0x00, 0x41}},
			{"é", []byte{0x00, 0xe9}},
			{"\U0001f600", []byte{0xd8, 0x3d, 0xde, 0x00}},
			{"\uFFFE", []byte{0xff, 0xfe}},
			{"a\xffb", []byte{0x00, 0x61, 0xff, 0xfd, 0x00, 0x62}},
		}
		for _, tc := range tests {
			got := sysprobe.EncodeUTF16(tc.input)
			if diff := cmp.Diff(tc.want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("EncodeUTF16(%q) (-want, +got):\n%s", tc.input, diff)
			}
		}
	})
	t.Run("Decode", func(t *testing.T) {
		tests := []struct {
			input []byte
			want  string
		}{
			{nil, ""},
			{[]byte{0x00, 0x41, 0x00, 0x42}, "AB"},
			{[]byte{0xd8, 0x3d, 0xde, 0x00}, "\U0001f600"},
			{[]byte{0xff, 0xfe}, "\uFFFE"},
			{[]byte{0xdc, 0x00, 0x00, 0x41}, "\uFFFDA"},
			{[]byte{0xd8, 0x00, 0x00, 0x41}, "\uFFFDA"},
		}
		for _, tc := range tests {
			got, err := sysprobe.DecodeUTF16(tc.input)
			if err != nil {
				t.Errorf("DecodeUTF16(%q): unexpected error: %v", tc.input, err)
			} else if got != tc.want {
				t.Errorf("DecodeUTF16(%q): got %q, want %q", tc.input, got, tc.want)
			}
		}
	})
	t.Run("OddLength", func(t *testing.T) {
		if got, err := sysprobe.DecodeUTF16([]byte{0, 'a', 0}); !errors.Is(err, sysprobe.ErrInvalidArgument) {
			t.Errorf("DecodeUTF16: got (%q, %v), want %v", got, err, sysprobe.ErrInvalidArgument)
		}
	})
}

func TestResponse(t *testing.T) {
	sid := sysprobe.UserSID(1001)
	tests := []sysprobe.Response{
		sysprobe.OSInfo{Family: sysprobe.OSWin64, Major: 10, Minor: 0},
		sysprobe.OSInfo{Family: sysprobe.OSLinux, Major: 6, Minor: 8},
		sysprobe.TimeInfo{Millis: 1700000000123, Zone: -8},
		sysprobe.TimeInfo{Millis: 3600000},
		sysprobe.MemoryInfo{Total: 16 << 30, Free: 3 << 30},
		sysprobe.DriveList{},
		sysprobe.DriveList{
			{Kind: sysprobe.DriveLocal, Name: `C:\`, Free: 100 << 30},
			{Kind: sysprobe.DriveNetwork, Name: "/mnt/share", Free: 0},
			{Kind: sysprobe.DriveRemovable, Name: "/media/usb", Free: 12345},
		},
		sysprobe.AccessList{},
		sysprobe.AccessList{
			{SID: sysprobe.EveryoneSID, Type: sysprobe.AceAllowed, Scope: sysprobe.ScopeDirect, Mask: sysprobe.FileGenericRead},
			{SID: sid, Type: sysprobe.AceDenied, Scope: sysprobe.ScopeContainer, Mask: sysprobe.Delete | sysprobe.WriteOwner},
		},
		sysprobe.OwnerInfo{Name: "alice", Domain: "WORKGROUP", SID: &sid},
		sysprobe.OwnerInfo{Name: "bob"},
		sysprobe.ErrorResult{Code: sysprobe.CodeNotFound, Message: "no such file"},
		sysprobe.ErrorResult{Code: sysprobe.CodeUnknown},
	}
	for _, want := range tests {
		data := sysprobe.EncodeResponse(want)
		if data[0] != byte(want.ResponseKind()) {
			t.Errorf("Encode %T: discriminant %d, want %d", want, data[0], want.ResponseKind())
		}
		got, err := sysprobe.DecodeResponse(data)
		if err != nil {
			t.Errorf("Decode %T: unexpected error: %v", want, err)
			continue
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("Decode %T (-want, +got):\n%s", want, diff)
		}
	}
}

func TestResponseLayout(t *testing.T) {
	u64 := func(v uint64) []byte { return binary.BigEndian.AppendUint64(nil, v) }
	cat := func(parts ...[]byte) []byte {
		var out []byte
		for _, p := range parts {
			out = append(out, p...)
		}
		return out
	}
	sid := sysprobe.UserSID(1001)

	tests := []struct {
		name  string
		input sysprobe.Response
		want  []byte
	}{
		{"Memory", sysprobe.MemoryInfo{Total: 16, Free: 3},
			cat([]byte{2}, u64(16), u64(3))},
		{"Drives", sysprobe.DriveList{{Kind: sysprobe.DriveNetwork, Name: "/mnt", Free: 9}},
			cat([]byte{3}, u64(1), []byte{1}, u64(4), []byte("/mnt"), u64(9))},
		{"Access", sysprobe.AccessList{{
			SID: sid, Type: sysprobe.AceDenied, Scope: sysprobe.ScopeContainer, Mask: sysprobe.WriteOwner,
		}}, cat([]byte{4}, u64(1), sid[:], []byte{1, 2}, binary.BigEndian.AppendUint32(nil, 0x00080000))},
		{"Owner", sysprobe.OwnerInfo{Name: "al", Domain: "WG"},
			cat([]byte{5}, u64(2), []byte("al"), u64(2), []byte("WG"), u64(0))},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := sysprobe.EncodeResponse(tc.input)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Encode %T (-want, +got):\n%s", tc.input, diff)
			}
		})
	}
}

func TestResponseErrors(t *testing.T) {
	mem := sysprobe.EncodeResponse(sysprobe.MemoryInfo{Total: 1, Free: 1})
	huge := binary.BigEndian.AppendUint64([]byte{byte(sysprobe.ResponseDrives)}, 1<<60)
	badSID := sysprobe.EncodeResponse(sysprobe.OwnerInfo{Name: "x"})
	badSID = append(badSID[:len(badSID)-8], 0, 0, 0, 0, 0, 0, 0, 3, 1, 2, 3)

	tests := []struct {
		name string
		data []byte
	}{
		{"Empty", nil},
		{"UnknownKind", []byte{9}},
		{"UnknownKindWithData", []byte{6, 0, 0, 0}},
		{"Truncated", mem[:len(mem)-1]},
		{"TrailingData", append(mem[:len(mem):len(mem)], 0)},
		{"HugeCount", huge},
		{"BadSID", badSID},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rsp, err := sysprobe.DecodeResponse(tc.data)
			if !errors.Is(err, sysprobe.ErrInvalidResponse) {
				t.Errorf("DecodeResponse(%q): got (%v, %v), want %v", tc.data, rsp, err, sysprobe.ErrInvalidResponse)
			}
		})
	}
}

func TestTimeInfo(t *testing.T) {
	ti := sysprobe.TimeInfo{Millis: 90061001, Zone: 2}
	if got, want := ti.Time().Format("2006-01-02 15:04:05"), "1970-01-02 03:01:01"; got != want {
		t.Errorf("Time: got %q, want %q", got, want)
	}
	if got, want := ti.Duration().String(), "25h1m1.001s"; got != want {
		t.Errorf("Duration: got %q, want %q", got, want)
	}
}

func TestOwnerAccount(t *testing.T) {
	if got := (sysprobe.OwnerInfo{Name: "alice", Domain: "CORP"}).Account(); got != `CORP\alice` {
		t.Errorf("Account: got %q, want %q", got, `CORP\alice`)
	}
	if got := (sysprobe.OwnerInfo{Name: "alice"}).Account(); got != "alice" {
		t.Errorf("Account: got %q, want %q", got, "alice")
	}
}

func TestSID(t *testing.T) {
	tests := []struct {
		sid  sysprobe.SID
		want string
	}{
		{sysprobe.EveryoneSID, "S-1-1-0"},
		{sysprobe.UserSID(1000), "S-1-22-1-1000"},
		{sysprobe.GroupSID(4294967295), "S-1-22-2-4294967295"},
		{sysprobe.NewSID(5, 21, 1, 2, 3, 4, 500), "S-1-5-21-1-2-3-4-500"},
		{sysprobe.NewSID(5), "S-1-5"},
	}
	for _, tc := range tests {
		if got := tc.sid.String(); got != tc.want {
			t.Errorf("SID: got %q, want %q", got, tc.want)
		}
	}
	if !(sysprobe.SID{}).IsZero() || sysprobe.EveryoneSID.IsZero() {
		t.Error("IsZero: wrong result")
	}
	mtest.MustPanic(t, func() { sysprobe.NewSID(5, 1, 2, 3, 4, 5, 6, 7) })
}

func TestAccessMask(t *testing.T) {
	tests := []struct {
		mask sysprobe.AccessMask
		want string
	}{
		{0, "0"},
		{sysprobe.FileReadData, "FILE_READ_DATA"},
		{sysprobe.FileReadData | sysprobe.Delete, "FILE_READ_DATA|DELETE"},
		{sysprobe.WriteDAC | 0x80000000, "WRITE_DAC|0x80000000"},
		{sysprobe.FileGenericExecute, "FILE_EXECUTE|FILE_READ_ATTRIBUTES|READ_CONTROL|SYNCHRONIZE"},
	}
	for _, tc := range tests {
		if got := tc.mask.String(); got != tc.want {
			t.Errorf("Mask %#x: got %q, want %q", uint32(tc.mask), got, tc.want)
		}
	}
}

func TestErrors(t *testing.T) {
	tests := []struct {
		err  error
		want sysprobe.Code
	}{
		{nil, sysprobe.CodeOK},
		{errors.New("whatever"), sysprobe.CodeUnknown},
		{fmt.Errorf("wrapped: %w", fs.ErrNotExist), sysprobe.CodeNotFound},
		{&fs.PathError{Op: "open", Path: "x", Err: fs.ErrPermission}, sysprobe.CodePermissionDenied},
		{fs.ErrInvalid, sysprobe.CodeInvalidArgument},
		{sysprobe.ErrConnectFailed, sysprobe.CodeConnectFailed},
		{fmt.Errorf("outer: %w", sysprobe.ErrInvalidResponse), sysprobe.CodeInvalidResponse},
		{sysprobe.ErrorResult{Code: sysprobe.CodeNotFound, Message: "gone"}.Err(), sysprobe.CodeNotFound},
	}
	for _, tc := range tests {
		if got := sysprobe.CodeOf(tc.err); got != tc.want {
			t.Errorf("CodeOf(%v): got %v, want %v", tc.err, got, tc.want)
		}
	}

	err := sysprobe.ErrorResult{Code: sysprobe.CodePermissionDenied, Message: "nope"}.Err()
	if !errors.Is(err, sysprobe.ErrPermissionDenied) || errors.Is(err, sysprobe.ErrNotFound) {
		t.Errorf("Err: got %v, want only %v", err, sysprobe.ErrPermissionDenied)
	}
	if got, want := err.Error(), "Permission denied: nope"; got != want {
		t.Errorf("Error: got %q, want %q", got, want)
	}
	if got, want := sysprobe.ErrConnectFailed.Error(), "Connection refused by server"; got != want {
		t.Errorf("Error: got %q, want %q", got, want)
	}
}

func TestConnID(t *testing.T) {
	if got := sysprobe.ConnID(5).String(); got != "conn-5" {
		t.Errorf("ConnID: got %q, want conn-5", got)
	}
	if got := sysprobe.ConnID(3<<32 | 7).String(); got != "conn-7.3" {
		t.Errorf("ConnID: got %q, want conn-7.3", got)
	}
}

func TestDispatch(t *testing.T) {
	var d sysprobe.Dispatch
	if _, ok := d.Lookup(sysprobe.RequestOSInfo); ok {
		t.Error("Lookup on empty dispatch: got a handler")
	}
	h := func(context.Context, sysprobe.Request, sysprobe.InfoProvider) (sysprobe.Response, error) {
		return sysprobe.OSInfo{}, nil
	}
	d.Register(sysprobe.RequestOSInfo, h)
	if _, ok := d.Lookup(sysprobe.RequestOSInfo); !ok {
		t.Error("Lookup: handler not found after Register")
	}
	mtest.MustPanic(t, func() { d.Register(sysprobe.RequestOSInfo, h) })
	mtest.MustPanic(t, func() { d.Register(sysprobe.RequestTime, nil) })

	def := sysprobe.DefaultDispatch()
	if got := len(def.Kinds()); got != 7 {
		t.Errorf("DefaultDispatch: got %d kinds, want 7", got)
	}

	info := probetest.Info{Seed: 99}
	rights, _ := def.Lookup(sysprobe.RequestRights)
	if _, err := rights(context.Background(), sysprobe.Request{Kind: sysprobe.RequestRights}, info); !errors.Is(err, sysprobe.ErrInvalidArgument) {
		t.Errorf("Rights with empty path: got %v, want %v", err, sysprobe.ErrInvalidArgument)
	}
	mem, _ := def.Lookup(sysprobe.RequestMemory)
	got, err := mem(context.Background(), sysprobe.Request{Kind: sysprobe.RequestMemory}, info)
	if err != nil {
		t.Fatalf("Memory: unexpected error: %v", err)
	}
	want, _ := info.Memory()
	if diff := cmp.Diff(sysprobe.Response(want), got); diff != "" {
		t.Errorf("Memory (-want, +got):\n%s", diff)
	}
}
