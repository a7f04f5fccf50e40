// Package testing provides in-memory stand-ins for the SSH transport.
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"regexp"
	"slices"
	"sync"
	"time"

	"github.com/rileyhilliard/dgxops/pkg/sshutil"
)

// ErrClosed is returned by every call on a closed MockClient.
var ErrClosed = errors.New("connection closed")

// CommandResponse is what a matched command returns.
type CommandResponse struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Error    error

	// Delay holds the response back. Cancelling the context cuts it short.
	Delay time.Duration
}

// Handler computes a response from the full command line.
type Handler func(cmd string) CommandResponse

type route struct {
	pattern string
	re      *regexp.Regexp
	handler Handler
}

func (r route) matches(cmd string) bool {
	return r.pattern == cmd || r.re.MatchString(cmd)
}

// MockClient is a scripted SSH connection. Commands go to the first
// registered route whose pattern matches; anything else succeeds with no
// output. Every command is recorded.
type MockClient struct {
	host, address string

	mu       sync.Mutex
	closed   bool
	closes   int
	probeErr error
	dial     func(network, addr string) (net.Conn, error)
	routes   []route
	history  []string
}

func NewMockClient(host string) *MockClient {
	return &MockClient{host: host, address: host + ":22"}
}

// SetCommandResponse answers commands matching pattern with resp.
// pattern is a regexp, or a literal when it doesn't compile. A repeated
// pattern replaces its earlier route.
func (m *MockClient) SetCommandResponse(pattern string, resp CommandResponse) {
	m.SetHandler(pattern, func(string) CommandResponse { return resp })
}

// SetHandler answers commands matching pattern by calling h.
func (m *MockClient) SetHandler(pattern string, h Handler) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		re = regexp.MustCompile(regexp.QuoteMeta(pattern))
	}
	r := route{pattern: pattern, re: re, handler: h}

	m.mu.Lock()
	defer m.mu.Unlock()
	if i := slices.IndexFunc(m.routes, func(x route) bool { return x.pattern == pattern }); i >= 0 {
		m.routes[i] = r
		return
	}
	m.routes = append(m.routes, r)
}

// SetProbeError makes keepalives fail with err, like a link that died
// without being closed. nil heals it.
func (m *MockClient) SetProbeError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probeErr = err
}

// SetDialFunc backs Dial, for port-forwarding tests.
func (m *MockClient) SetDialFunc(fn func(network, addr string) (net.Conn, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dial = fn
}

// Reopen undoes Close so a dialer can hand the client out again.
func (m *MockClient) Reopen() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = false
}

func (m *MockClient) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// CloseCount is how many times Close was called, including repeats.
func (m *MockClient) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

// Commands returns every command run so far, oldest first.
func (m *MockClient) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.history)
}

// CommandCount counts the commands run so far that match pattern.
func (m *MockClient) CommandCount(pattern string) int {
	re := regexp.MustCompile(pattern)
	n := 0
	for _, cmd := range m.Commands() {
		if re.MatchString(cmd) {
			n++
		}
	}
	return n
}

// live returns ErrClosed after Close. Callers hold m.mu.
func (m *MockClient) live() error {
	if m.closed {
		return ErrClosed
	}
	return nil
}

func (m *MockClient) Exec(cmd string) (stdout, stderr []byte, exitCode int, err error) {
	return m.ExecContext(context.Background(), cmd)
}

func (m *MockClient) ExecContext(ctx context.Context, cmd string) (stdout, stderr []byte, exitCode int, err error) {
	m.mu.Lock()
	if err := m.live(); err != nil {
		m.mu.Unlock()
		return nil, nil, -1, err
	}
	m.history = append(m.history, cmd)
	var h Handler
	if i := slices.IndexFunc(m.routes, func(r route) bool { return r.matches(cmd) }); i >= 0 {
		h = m.routes[i].handler
	}
	m.mu.Unlock()

	if h == nil {
		return nil, nil, 0, nil
	}
	resp := h(cmd)

	if resp.Delay > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(resp.Delay):
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, -1, fmt.Errorf("mock exec %q: %w", cmd, err)
	}
	if resp.Error != nil {
		return nil, nil, -1, resp.Error
	}
	return resp.Stdout, resp.Stderr, resp.ExitCode, nil
}

func (m *MockClient) ExecStream(cmd string, stdout, stderr io.Writer) (exitCode int, err error) {
	out, errOut, code, err := m.Exec(cmd)
	if err != nil {
		return -1, err
	}
	for _, p := range []struct {
		w io.Writer
		b []byte
	}{{stdout, out}, {stderr, errOut}} {
		if p.w != nil && len(p.b) > 0 {
			_, _ = p.w.Write(p.b)
		}
	}
	return code, nil
}

func (m *MockClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.closes++
	return nil
}

func (m *MockClient) GetHost() string    { return m.host }
func (m *MockClient) GetAddress() string { return m.address }

type nopSession struct{}

func (nopSession) Close() error { return nil }

func (m *MockClient) NewSession() (sshutil.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.live(); err != nil {
		return nil, err
	}
	return nopSession{}, nil
}

// SendRequest answers keepalives, failing after Close or SetProbeError.
func (m *MockClient) SendRequest(name string, wantReply bool, payload []byte) (bool, []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.live(); err != nil {
		return false, nil, err
	}
	if m.probeErr != nil {
		return false, nil, m.probeErr
	}
	return true, nil, nil
}

// Dial calls the function from SetDialFunc.
func (m *MockClient) Dial(network, addr string) (net.Conn, error) {
	m.mu.Lock()
	fn, err := m.dial, m.live()
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, fmt.Errorf("mock dial %s %s: no dial func", network, addr)
	}
	return fn(network, addr)
}

var _ sshutil.SSHClient = (*MockClient)(nil)
