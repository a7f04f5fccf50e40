package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Layout(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "message only",
			err:  New(ErrState, "Operation is still running", ""),
			want: "✗ Operation is still running\n",
		},
		{
			name: "with suggestion",
			err:  New(ErrState, "Operation is still running", "Stop it first"),
			want: "✗ Operation is still running\n\n  Stop it first\n",
		},
		{
			name: "with cause and suggestion",
			err: WrapWithCode(errors.New("dial tcp 10.0.0.5:22: i/o timeout"), ErrSSH,
				"Can't reach 'spark-1'", "Host might be offline"),
			want: "✗ Can't reach 'spark-1'\n\n  dial tcp 10.0.0.5:22: i/o timeout\n\n  Host might be offline\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestWrapWithCode_Unwraps(t *testing.T) {
	cause := errors.New("connection reset")
	err := WrapWithCode(cause, ErrSSH, "Probe failed", "")

	assert.Same(t, cause, err.Cause)
	assert.True(t, Is(err, cause))

	var target *Error
	require.True(t, As(fmt.Errorf("outer: %w", err), &target))
	assert.Equal(t, "Probe failed", target.Message)
}

func TestCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"nil", nil, ""},
		{"plain", errors.New("plain"), ""},
		{"validation", Validation("port is required for server operations"), ErrValidation},
		{"direct", New(ErrNotFound, "missing", ""), ErrNotFound},
		{"behind fmt", fmt.Errorf("outer: %w", New(ErrStore, "db closed", "")), ErrStore},
		{"outermost wins", WrapWithCode(New(ErrSSH, "inner", ""), ErrState, "outer", ""), ErrState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, CodeOf(tt.err))
			if tt.code != "" {
				assert.True(t, IsCode(tt.err, tt.code))
			}
			assert.False(t, IsCode(tt.err, "OTHER"))
		})
	}
}

func TestSummary(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"plain error", errors.New("boom\n"), "boom"},
		{"structured without cause", New(ErrState, "Operation is running", "stop it"), "Operation is running"},
		{
			name: "structured with cause",
			err:  WrapWithCode(errors.New("connection refused"), ErrSSH, "Can't reach 'a'", "retry"),
			want: "Can't reach 'a': connection refused",
		},
		{
			name: "nested structured",
			err: WrapWithCode(
				WrapWithCode(errors.New("EOF"), ErrSSH, "Handshake failed", ""),
				ErrSSH, "Connect failed", ""),
			want: "Connect failed: Handshake failed: EOF",
		},
		{
			name: "repeated message collapses",
			err:  WrapWithCode(New(ErrSSH, "Not connected", "connect first"), ErrState, "Not connected", ""),
			want: "Not connected",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Summary(tt.err))
			assert.NotContains(t, Summary(tt.err), "\n")
		})
	}
}
