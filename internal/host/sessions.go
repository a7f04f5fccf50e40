package host

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rileyhilliard/dgxops/internal/models"
	"github.com/rileyhilliard/dgxops/pkg/sshutil"
)

// State is the transient, in-memory view of a connection.
type State struct {
	Status       models.ConnStatus `json:"status"`
	ErrorMessage string            `json:"error_message,omitempty"`
	LastPing     *time.Time        `json:"last_ping,omitempty"`
}

// session is the live state held for one connection id.
type session struct {
	client   sshutil.SSHClient
	status   models.ConnStatus
	errMsg   string
	lastPing *time.Time
	cancel   context.CancelFunc
}

// sessionTable is the only place session handles live. It holds at most
// one client per connection id: attaching a new client closes the old one.
type sessionTable struct {
	mu      sync.RWMutex
	entries map[string]*session
}

func newSessionTable() *sessionTable {
	return &sessionTable{entries: make(map[string]*session)}
}

// state returns the cached state for id. Unknown ids are offline.
func (t *sessionTable) state(id string) State {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.entries[id]
	if !ok {
		return State{Status: models.StatusOffline}
	}
	st := State{Status: s.status, ErrorMessage: s.errMsg}
	if s.lastPing != nil {
		ping := *s.lastPing
		st.LastPing = &ping
	}
	return st
}

// client returns the live client for id, or nil when not online.
func (t *sessionTable) client(id string) sshutil.SSHClient {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.entries[id]
	if !ok || s.status != models.StatusOnline {
		return nil
	}
	return s.client
}

// setStatus records a status for a connection with no live client.
func (t *sessionTable) setStatus(id string, status models.ConnStatus, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.entry(id)
	s.status = status
	s.errMsg = msg
}

// attach stores client as the live session for id, closing any previous
// handle first.
func (t *sessionTable) attach(id string, client sshutil.SSHClient, cancel context.CancelFunc, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.entry(id)
	s.release()
	s.client = client
	s.cancel = cancel
	s.status = models.StatusOnline
	s.errMsg = ""
	s.lastPing = &at
}

// detach drops the live session for id, if any, and records status.
// Returns true when a client was closed.
func (t *sessionTable) detach(id string, status models.ConnStatus, msg string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.entry(id)
	had := s.release()
	s.status = status
	s.errMsg = msg
	return had
}

// detachIf is detach guarded on client still being the live handle, so a
// probe that raced a reconnect can't discard the newer session.
func (t *sessionTable) detachIf(id string, client sshutil.SSHClient, status models.ConnStatus, msg string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.entries[id]
	if !ok || s.client == nil || s.client != client {
		return false
	}
	s.release()
	s.status = status
	s.errMsg = msg
	return true
}

// touch records a successful ping for the current handle.
func (t *sessionTable) touch(id string, client sshutil.SSHClient, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.entries[id]; ok && s.client == client {
		s.lastPing = &at
	}
}

// remove forgets id entirely, closing its client.
func (t *sessionTable) remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.entries[id]; ok {
		s.release()
		delete(t.entries, id)
	}
}

// live returns the ids with an attached client, sorted.
func (t *sessionTable) live() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]string, 0, len(t.entries))
	for id, s := range t.entries {
		if s.client != nil {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// closeAll closes every client and marks every entry offline.
func (t *sessionTable) closeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, s := range t.entries {
		s.release()
		s.status = models.StatusOffline
		s.errMsg = ""
	}
}

func (t *sessionTable) entry(id string) *session {
	s, ok := t.entries[id]
	if !ok {
		s = &session{status: models.StatusOffline}
		t.entries[id] = s
	}
	return s
}

// release stops the session's tasks and closes its client.
func (s *session) release() bool {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.client == nil {
		return false
	}
	s.client.Close() //nolint:errcheck // Cleanup, error not actionable
	s.client = nil
	return true
}
