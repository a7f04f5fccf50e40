package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// OpType is the kind of process an operation manages.
type OpType string

const (
	OpServer OpType = "server"
	OpJob    OpType = "job"
	OpScript OpType = "script"
)

// ParseOpType maps user input onto an OpType. The UI label
// "training_job" is accepted as an alias for job.
func ParseOpType(s string) (OpType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "server":
		return OpServer, nil
	case "job", "training_job", "training":
		return OpJob, nil
	case "script":
		return OpScript, nil
	}
	return "", fmt.Errorf("unknown operation type %q (want server, job or script)", s)
}

// Category is the presentation grouping derived from an OpType.
type Category string

const (
	CategoryWebUI    Category = "webui"
	CategoryTraining Category = "training"
	CategoryScript   Category = "script"
)

// Category returns the presentation group for t.
func (t OpType) Category() Category {
	switch t {
	case OpServer:
		return CategoryWebUI
	case OpJob:
		return CategoryTraining
	case OpScript:
		return CategoryScript
	}
	panic(fmt.Sprintf("models: no category for operation type %q", string(t)))
}

// Valid reports whether t is one of the known types.
func (t OpType) Valid() bool {
	return t == OpServer || t == OpJob || t == OpScript
}

func (t *OpType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseOpType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// OpStatus is the lifecycle state of an operation.
type OpStatus string

const (
	OpPending   OpStatus = "pending"
	OpStarting  OpStatus = "starting"
	OpRunning   OpStatus = "running"
	OpCompleted OpStatus = "completed"
	OpFailed    OpStatus = "failed"
	OpCancelled OpStatus = "cancelled"

	// OpWarning is display-only. It is derived from log content for a running
	// operation and never persisted.
	OpWarning OpStatus = "warning"
)

// IsTerminal reports whether the operation has finished.
func (s OpStatus) IsTerminal() bool {
	return s == OpCompleted || s == OpFailed || s == OpCancelled
}

// CanStop reports whether a stop request does anything in this state.
func (s OpStatus) CanStop() bool {
	return s == OpPending || s == OpStarting || s == OpRunning || s == OpWarning
}

// CanRestart reports whether restart is allowed from this state.
func (s OpStatus) CanRestart() bool {
	return s.IsTerminal()
}

// Operation is a process launched on a remote host and tracked by dgxops.
type Operation struct {
	ID              string     `json:"id" db:"id"`
	ConnectionID    string     `json:"connection_id" db:"connection_id"`
	Name            string     `json:"name" db:"name"`
	Type            OpType     `json:"type" db:"type"`
	Category        Category   `json:"category" db:"category"`
	Status          OpStatus   `json:"status" db:"status"`
	Command         string     `json:"command" db:"command"`
	WorkingDir      string     `json:"working_dir,omitempty" db:"working_dir"`
	Port            *int       `json:"port,omitempty" db:"port"`
	URL             string     `json:"url,omitempty" db:"url"`
	WebsocketURL    string     `json:"websocket_url,omitempty" db:"websocket_url"`
	ModelName       string     `json:"model_name,omitempty" db:"model_name"`
	Epochs          *int       `json:"epochs,omitempty" db:"epochs"`
	PID             *int       `json:"pid" db:"pid"`
	LogFile         string     `json:"log_file,omitempty" db:"log_file"`
	Progress        int        `json:"progress" db:"progress"`
	ProgressMessage string     `json:"progress_message,omitempty" db:"progress_message"`
	ErrorMessage    string     `json:"error_message,omitempty" db:"error_message"`
	ExitCode        *int       `json:"exit_code,omitempty" db:"exit_code"`
	RestartCount    int        `json:"restart_count" db:"restart_count"`
	StartedAt       *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	Duration        *int64     `json:"duration,omitempty" db:"duration"`
	Version         int64      `json:"version" db:"version"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// ProgressIndeterminate marks an operation whose progress isn't known.
const ProgressIndeterminate = -1

// HasPID reports whether a PID was captured at launch.
func (o *Operation) HasPID() bool {
	return o.PID != nil && *o.PID > 0
}

// Finish moves the operation to a terminal status at the given time and
// computes its duration.
func (o *Operation) Finish(status OpStatus, at time.Time) {
	o.Status = status
	o.CompletedAt = &at
	if o.StartedAt != nil {
		d := int64(at.Sub(*o.StartedAt).Seconds())
		if d < 0 {
			d = 0
		}
		o.Duration = &d
	}
}

// OperationSpec is the request for a new operation.
type OperationSpec struct {
	ConnectionID string `json:"connection_id"`
	Name         string `json:"name"`
	Type         OpType `json:"type"`
	Command      string `json:"command"`
	WorkingDir   string `json:"working_dir,omitempty"`
	Port         *int   `json:"port,omitempty"`
	WebsocketURL string `json:"websocket_url,omitempty"`
	ModelName    string `json:"model_name,omitempty"`
	Epochs       *int   `json:"epochs,omitempty"`
}

// Validate rejects specs that could never launch.
func (s *OperationSpec) Validate() error {
	s.Name = strings.TrimSpace(s.Name)
	s.Command = strings.TrimSpace(s.Command)

	if s.ConnectionID == "" {
		return fmt.Errorf("connection id is required")
	}
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Command == "" {
		return fmt.Errorf("command is required")
	}
	if !s.Type.Valid() {
		return fmt.Errorf("unknown operation type %q (want server, job or script)", string(s.Type))
	}

	switch s.Type {
	case OpServer:
		if s.Port == nil {
			return fmt.Errorf("port is required for server operations")
		}
		if *s.Port < 1 || *s.Port > 65535 {
			return fmt.Errorf("port %d is out of range", *s.Port)
		}
	case OpJob:
		if strings.TrimSpace(s.ModelName) == "" {
			return fmt.Errorf("model name is required for job operations")
		}
		if s.Epochs != nil && *s.Epochs < 1 {
			return fmt.Errorf("epochs must be positive")
		}
	}
	return nil
}

// OperationGroups is the per-category projection of a connection's operations.
type OperationGroups struct {
	Servers []*Operation `json:"servers"`
	Jobs    []*Operation `json:"jobs"`
	Scripts []*Operation `json:"scripts"`
}

// GroupByCategory splits ops into their presentation groups, preserving order.
func GroupByCategory(ops []*Operation) OperationGroups {
	g := OperationGroups{
		Servers: []*Operation{},
		Jobs:    []*Operation{},
		Scripts: []*Operation{},
	}
	for _, op := range ops {
		switch op.Type.Category() {
		case CategoryWebUI:
			g.Servers = append(g.Servers, op)
		case CategoryTraining:
			g.Jobs = append(g.Jobs, op)
		case CategoryScript:
			g.Scripts = append(g.Scripts, op)
		}
	}
	return g
}
