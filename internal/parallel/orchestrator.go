// Package parallel fans connection operations out across every configured
// host at once, isolating each host's failure from the others.
package parallel

import (
	"context"
	"sort"
	"time"

	"github.com/rileyhilliard/dgxops/internal/errors"
	"github.com/rileyhilliard/dgxops/internal/logger"
	"github.com/rileyhilliard/dgxops/internal/models"
)

// Registry is the slice of the connection registry the orchestrator drives.
type Registry interface {
	List(ctx context.Context) ([]*models.Connection, error)
	FailedIDs(ctx context.Context) ([]string, error)
	Connect(ctx context.Context, id string) (*models.Connection, error)
	Disconnect(ctx context.Context, id string) error
}

// Config holds configuration for fan-out operations.
type Config struct {
	// Timeout bounds each target. 0 relies on the registry's own timeouts.
	Timeout time.Duration
	Logger  logger.Logger
}

// Orchestrator issues per-connection operations concurrently and waits for
// all of them to settle.
type Orchestrator struct {
	reg    Registry
	config Config
	log    logger.Logger
}

// NewOrchestrator creates an orchestrator over reg.
func NewOrchestrator(reg Registry, cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = logger.Noop()
	}
	return &Orchestrator{reg: reg, config: cfg, log: cfg.Logger}
}

// ConnectAll connects every configured connection.
func (o *Orchestrator) ConnectAll(ctx context.Context) (*Result, error) {
	conns, err := o.reg.List(ctx)
	if err != nil {
		return nil, err
	}
	return o.run(ctx, ActionConnect, conns, func(ctx context.Context, id string) error {
		_, err := o.reg.Connect(ctx, id)
		return err
	}), nil
}

// DisconnectAll disconnects every configured connection. Disconnecting one
// that is already offline counts as a success.
func (o *Orchestrator) DisconnectAll(ctx context.Context) (*Result, error) {
	conns, err := o.reg.List(ctx)
	if err != nil {
		return nil, err
	}
	return o.run(ctx, ActionDisconnect, conns, o.reg.Disconnect), nil
}

// ReconnectFailed reconnects only the connections in error, or offline but
// still marked active from an earlier session.
func (o *Orchestrator) ReconnectFailed(ctx context.Context) (*Result, error) {
	ids, err := o.reg.FailedIDs(ctx)
	if err != nil {
		return nil, err
	}
	conns, err := o.reg.List(ctx)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	targets := make([]*models.Connection, 0, len(ids))
	for _, c := range conns {
		if wanted[c.ID] {
			targets = append(targets, c)
		}
	}

	return o.run(ctx, ActionReconnect, targets, func(ctx context.Context, id string) error {
		_, err := o.reg.Connect(ctx, id)
		return err
	}), nil
}

// run starts fn for every target before waiting on any of them. A failing
// target never cancels or delays the others.
func (o *Orchestrator) run(ctx context.Context, action Action, targets []*models.Connection, fn func(context.Context, string) error) *Result {
	startTime := time.Now()
	resultChan := make(chan targetResult, len(targets))

	for _, c := range targets {
		go func(id, name string) {
			tctx := ctx
			if o.config.Timeout > 0 {
				var cancel context.CancelFunc
				tctx, cancel = context.WithTimeout(ctx, o.config.Timeout)
				defer cancel()
			}
			resultChan <- targetResult{id: id, name: name, err: fn(tctx, id)}
		}(c.ID, c.Name)
	}

	result := &Result{Action: action, Total: len(targets), Failures: []Failure{}}
	for range targets {
		r := <-resultChan
		if r.err == nil {
			result.Succeeded++
			continue
		}
		result.Failed++
		result.Failures = append(result.Failures, Failure{
			ConnectionID: r.id,
			Name:         r.name,
			Error:        errors.Summary(r.err),
		})
	}
	sort.Slice(result.Failures, func(i, j int) bool { return result.Failures[i].Name < result.Failures[j].Name })
	result.Duration = time.Since(startTime)

	if result.Total > 0 {
		o.log.Info("%s", result.Brief())
	}
	return result
}
