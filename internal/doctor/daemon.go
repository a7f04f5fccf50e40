package doctor

import (
	"context"
	"fmt"

	"github.com/rileyhilliard/dgxops/internal/models"
)

// Daemon is the part of the API client doctor needs.
type Daemon interface {
	Health(ctx context.Context) error
	ListConnections(ctx context.Context) ([]*models.Connection, error)
}

// DaemonCheck verifies `dgxops serve` is answering at Addr.
type DaemonCheck struct {
	Addr   string
	Daemon Daemon
}

func (c *DaemonCheck) Name() string     { return "daemon" }
func (c *DaemonCheck) Category() string { return "DAEMON" }

func (c *DaemonCheck) Run(ctx context.Context) CheckResult {
	if err := c.Daemon.Health(ctx); err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    fmt.Sprintf("Daemon not reachable at %s", c.Addr),
			Suggestion: "Start it with: dgxops serve",
		}
	}

	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: fmt.Sprintf("Daemon running at %s", c.Addr),
	}
}

func (c *DaemonCheck) Fix() error {
	return nil // The daemon is a long-running process the user owns
}

// ConnectionCheck reports the status the daemon has cached for one
// connection. It never dials; use the remote checks for that.
type ConnectionCheck struct {
	Conn *models.Connection
}

func (c *ConnectionCheck) Name() string     { return fmt.Sprintf("conn_%s", c.Conn.Name) }
func (c *ConnectionCheck) Category() string { return "CONNECTIONS" }

func (c *ConnectionCheck) Run(context.Context) CheckResult {
	conn := c.Conn
	switch conn.Status {
	case models.StatusOnline:
		return CheckResult{
			Name:    c.Name(),
			Status:  StatusPass,
			Message: fmt.Sprintf("%s: online", conn.Name),
		}
	case models.StatusError:
		msg := fmt.Sprintf("%s: error", conn.Name)
		if conn.ErrorMessage != "" {
			msg += ": " + conn.ErrorMessage
		}
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    msg,
			Suggestion: fmt.Sprintf("Retry with: dgxops connect %s, or check it with: dgxops doctor --remote", conn.Name),
		}
	case models.StatusConnecting:
		return CheckResult{
			Name:    c.Name(),
			Status:  StatusPass,
			Message: fmt.Sprintf("%s: connecting", conn.Name),
		}
	}

	if conn.IsActive {
		// Marked active but the daemon has no session: it dropped.
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusWarn,
			Message:    fmt.Sprintf("%s: dropped", conn.Name),
			Suggestion: "Reconnect with: dgxops reconnect",
		}
	}
	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: fmt.Sprintf("%s: offline", conn.Name),
	}
}

func (c *ConnectionCheck) Fix() error {
	return nil
}

// NewConnectionChecks creates one check per connection the daemon knows.
// With the daemon down there is nothing to list and an error comes back.
func NewConnectionChecks(ctx context.Context, d Daemon) ([]Check, error) {
	conns, err := d.ListConnections(ctx)
	if err != nil {
		return nil, err
	}

	checks := make([]Check, len(conns))
	for i, conn := range conns {
		checks[i] = &ConnectionCheck{Conn: conn}
	}
	return checks, nil
}
