package service

import (
	"github.com/rileyhilliard/dgxops/internal/errors"
)

// Result is the envelope every command returns, whatever the transport.
// A failed command always carries a human-readable Error and, when the
// failure was classified, its Code.
type Result struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// OK wraps data in a successful result.
func OK(data interface{}) Result {
	return Result{Success: true, Data: data}
}

// Fail converts err into a failed result.
func Fail(err error) Result {
	if err == nil {
		return Result{Success: false, Error: "unknown error"}
	}
	return Result{
		Success: false,
		Error:   errors.Summary(err),
		Code:    errors.CodeOf(err),
	}
}

// FailWith builds a failed result carrying data alongside the error, for
// commands that still have something useful to show (the record a stop
// couldn't manage, for instance).
func FailWith(err error, data interface{}) Result {
	r := Fail(err)
	r.Data = data
	return r
}

// IsHard reports whether the failure came from the store rather than from
// a host, input or state problem.
func (r Result) IsHard() bool {
	return !r.Success && r.Code == errors.ErrStore
}
