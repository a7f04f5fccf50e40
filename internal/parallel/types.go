package parallel

import (
	"time"
)

// Action names a fan-out operation.
type Action string

const (
	ActionConnect    Action = "connect"
	ActionDisconnect Action = "disconnect"
	ActionReconnect  Action = "reconnect"
)

// Result is the aggregate outcome of one fan-out. Every target is
// accounted for in either Succeeded or Failures.
type Result struct {
	Action    Action        `json:"action"`
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Failures  []Failure     `json:"failures"`
	Duration  time.Duration `json:"duration_ns"`
}

// Success returns true if every target succeeded.
func (r *Result) Success() bool {
	return r.Failed == 0
}

// FailedIDs returns the ids of the targets that failed, for a selective retry.
func (r *Result) FailedIDs() []string {
	ids := make([]string, len(r.Failures))
	for i, f := range r.Failures {
		ids[i] = f.ConnectionID
	}
	return ids
}

// Failure is one target that failed and why.
type Failure struct {
	ConnectionID string `json:"connection_id"`
	Name         string `json:"name"`
	Error        string `json:"error"`
}

// targetResult is what each worker reports back.
type targetResult struct {
	id   string
	name string
	err  error
}
