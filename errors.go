// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package sysprobe

import (
	"errors"
	"fmt"
	"io/fs"
)

// A Code classifies the outcome of an operation.
type Code byte

const (
	CodeOK               Code = 0
	CodePermissionDenied Code = 1
	CodeUnknown          Code = 2
	CodeConnectFailed    Code = 3
	CodeInvalidResponse  Code = 4
	CodeInvalidArgument  Code = 5
	CodeNotFound         Code = 6
)

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "No error"
	case CodePermissionDenied:
		return "Permission denied"
	case CodeUnknown:
		return "Unknown error"
	case CodeConnectFailed:
		return "Connection refused by server"
	case CodeInvalidResponse:
		return "Invalid response"
	case CodeInvalidArgument:
		return "Invalid argument"
	case CodeNotFound:
		return "Not found"
	default:
		return fmt.Sprintf("CODE:%d", byte(c))
	}
}

// Sentinel errors for each failure code. Use [errors.Is] to check whether an
// error reported by this package carries a given code.
var (
	ErrPermissionDenied = &Error{Code: CodePermissionDenied}
	ErrUnknown          = &Error{Code: CodeUnknown}
	ErrConnectFailed    = &Error{Code: CodeConnectFailed}
	ErrInvalidResponse  = &Error{Code: CodeInvalidResponse}
	ErrInvalidArgument  = &Error{Code: CodeInvalidArgument}
	ErrNotFound         = &Error{Code: CodeNotFound}
)

// Error is the concrete type of errors reported by the Connector, handlers,
// and the codec. The Err field, if set, is the underlying cause.
type Error struct {
	Code Code
	Err  error
}

func errorf(code Code, msg string, args ...any) *Error {
	return &Error{Code: code, Err: fmt.Errorf(msg, args...)}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Code.String()
	}
	return e.Code.String() + ": " + e.Err.Error()
}

// Unwrap returns the underlying cause of e, if any.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a sentinel *Error with the same code as e.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Err == nil && t.Code == e.Code
}

// CodeOf reports the code corresponding to err. A nil error has code
// CodeOK. Errors not otherwise classified have code CodeUnknown.
func CodeOf(err error) Code {
	var e *Error
	switch {
	case err == nil:
		return CodeOK
	case errors.As(err, &e):
		return e.Code
	case errors.Is(err, fs.ErrNotExist):
		return CodeNotFound
	case errors.Is(err, fs.ErrPermission):
		return CodePermissionDenied
	case errors.Is(err, fs.ErrInvalid):
		return CodeInvalidArgument
	default:
		return CodeUnknown
	}
}
