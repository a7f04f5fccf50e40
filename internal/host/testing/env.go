// Package testing provides a wired-up registry over an in-memory store and
// mock SSH transport, for tests of packages built on top of host.
package testing

import (
	"context"
	"testing"
	"time"

	"github.com/rileyhilliard/dgxops/internal/events"
	"github.com/rileyhilliard/dgxops/internal/host"
	"github.com/rileyhilliard/dgxops/internal/logger"
	"github.com/rileyhilliard/dgxops/internal/models"
	"github.com/rileyhilliard/dgxops/internal/store"
	sshtest "github.com/rileyhilliard/dgxops/pkg/sshutil/testing"
	"github.com/stretchr/testify/require"
)

// Env bundles a registry with the fakes behind it.
type Env struct {
	Store    *store.Store
	Dialer   *sshtest.MockDialer
	Events   *events.Recorder
	Log      *logger.BufferLogger
	Registry *host.Registry
}

// Option adjusts the registry options before it is built.
type Option func(*host.Options)

// WithTimeouts sets short transport timeouts.
func WithTimeouts(dial, probe, exec time.Duration) Option {
	return func(o *host.Options) {
		o.DialTimeout = dial
		o.ProbeTimeout = probe
		o.ExecTimeout = exec
	}
}

// NewEnv opens an in-memory store and builds a registry on a MockDialer.
// Everything is closed when the test ends.
func NewEnv(t *testing.T, opts ...Option) *Env {
	t.Helper()

	st, err := store.Open(context.Background(), store.MemoryPath, nil)
	require.NoError(t, err)

	env := &Env{
		Store:  st,
		Dialer: sshtest.NewMockDialer(),
		Events: events.NewRecorder(),
		Log:    logger.NewBufferLogger(),
	}

	o := host.Options{
		DialTimeout:  time.Second,
		ProbeTimeout: 500 * time.Millisecond,
		ExecTimeout:  time.Second,
		Logger:       env.Log,
		Events:       env.Events,
	}
	for _, opt := range opts {
		opt(&o)
	}
	env.Registry = host.NewRegistry(st, env.Dialer, o)

	t.Cleanup(func() {
		env.Registry.Close()
		st.Close() //nolint:errcheck // Test cleanup
	})
	return env
}

// AddConnection stores a connection named name whose host answers on the
// mock dialer, and returns it with its mock client.
func (e *Env) AddConnection(t *testing.T, name string) (*models.Connection, *sshtest.MockClient) {
	t.Helper()

	hostname := name + ".lan"
	conn, err := e.Registry.Create(context.Background(), models.ConnectionInput{
		Name:     name,
		Hostname: hostname,
		Username: "ubuntu",
	})
	require.NoError(t, err)
	return conn, e.Dialer.AddHost(hostname)
}

// AddUnreachable stores a connection whose dials fail with err.
func (e *Env) AddUnreachable(t *testing.T, name string, err error) *models.Connection {
	t.Helper()

	hostname := name + ".lan"
	conn, cerr := e.Registry.Create(context.Background(), models.ConnectionInput{
		Name:     name,
		Hostname: hostname,
		Username: "ubuntu",
	})
	require.NoError(t, cerr)
	e.Dialer.SetError(hostname, err)
	return conn
}

// Connected is AddConnection followed by a successful Connect.
func (e *Env) Connected(t *testing.T, name string) (*models.Connection, *sshtest.MockClient) {
	t.Helper()

	conn, client := e.AddConnection(t, name)
	_, err := e.Registry.Connect(context.Background(), conn.ID)
	require.NoError(t, err)
	return conn, client
}
