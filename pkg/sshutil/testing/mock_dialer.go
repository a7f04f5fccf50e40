package testing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rileyhilliard/dgxops/internal/errors"
	"github.com/rileyhilliard/dgxops/pkg/sshutil"
)

// MockDialer hands out MockClients by host. A registered client that was
// closed is reopened on the next dial, modelling a reconnect.
type MockDialer struct {
	mu      sync.Mutex
	clients map[string]*MockClient
	errs    map[string]error
	delay   time.Duration
	dials   map[string]int
}

// NewMockDialer creates a dialer with no hosts.
func NewMockDialer() *MockDialer {
	return &MockDialer{
		clients: make(map[string]*MockClient),
		errs:    make(map[string]error),
		dials:   make(map[string]int),
	}
}

// AddHost registers a reachable host and returns its client.
func (d *MockDialer) AddHost(host string) *MockClient {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := NewMockClient(host)
	d.clients[host] = c
	delete(d.errs, host)
	return c
}

// SetError makes dials to host fail with err.
func (d *MockDialer) SetError(host string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errs[host] = err
}

// ClearError makes host reachable again.
func (d *MockDialer) ClearError(host string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.errs, host)
}

// SetDelay holds every dial back by delay, honoring ctx.
func (d *MockDialer) SetDelay(delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delay = delay
}

// Client returns the client registered for host, or nil.
func (d *MockDialer) Client(host string) *MockClient {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clients[host]
}

// Dials returns how many dials were attempted for host.
func (d *MockDialer) Dials(host string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials[host]
}

// Dial implements sshutil.Dialer.
func (d *MockDialer) Dial(ctx context.Context, target sshutil.Target) (sshutil.SSHClient, error) {
	d.mu.Lock()
	d.dials[target.Host]++
	delay := d.delay
	d.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, errors.WrapWithCode(ctx.Err(), errors.ErrSSH,
				fmt.Sprintf("Can't reach '%s'", target.Host), "Connection timed out.")
		case <-timer.C:
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err, ok := d.errs[target.Host]; ok {
		return nil, err
	}
	c, ok := d.clients[target.Host]
	if !ok {
		return nil, errors.New(errors.ErrSSH,
			fmt.Sprintf("Can't reach '%s'", target.Host),
			"no route to host")
	}
	c.Reopen()
	return c, nil
}

var _ sshutil.Dialer = (*MockDialer)(nil)
