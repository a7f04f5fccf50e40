// Package events publishes connection, operation and metrics state changes
// to an external stream.
package events

import (
	"context"
	"sync"
	"time"
)

// Type names the kind of state change.
type Type string

const (
	ConnectionStatus Type = "connection.status"
	OperationStatus  Type = "operation.status"
	MetricsSample    Type = "metrics.sample"
)

// Event is one state change.
type Event struct {
	Type         Type        `json:"type"`
	ConnectionID string      `json:"connection_id"`
	OperationID  string      `json:"operation_id,omitempty"`
	Status       string      `json:"status,omitempty"`
	Data         interface{} `json:"data,omitempty"`
	Time         time.Time   `json:"time"`
}

// Publisher delivers events. Publish is best-effort: implementations log
// delivery failures rather than surface them to state-changing callers.
type Publisher interface {
	Publish(ctx context.Context, e Event)
	Close() error
}

type noop struct{}

// Noop returns a publisher that drops every event.
func Noop() Publisher { return noop{} }

func (noop) Publish(context.Context, Event) {}
func (noop) Close() error                   { return nil }

// Recorder keeps published events in memory. Useful in tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events of type t.
func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
