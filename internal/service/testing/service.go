// Package testing wires a Service over a host testing environment, for
// tests of the service and of the transports built on it.
package testing

import (
	"testing"

	hosttest "github.com/rileyhilliard/dgxops/internal/host/testing"
	"github.com/rileyhilliard/dgxops/internal/monitor"
	"github.com/rileyhilliard/dgxops/internal/operation"
	"github.com/rileyhilliard/dgxops/internal/parallel"
	"github.com/rileyhilliard/dgxops/internal/reconcile"
	"github.com/rileyhilliard/dgxops/internal/service"
)

// Option adjusts the components before the service is built.
type Option func(*service.Deps)

// WithCollector uses c instead of a collector with no persistence.
func WithCollector(c *monitor.Collector) Option {
	return func(d *service.Deps) { d.Collector = c }
}

// New builds a Service over env. Background launches are waited for when
// the test ends.
func New(t *testing.T, env *hosttest.Env, opts service.Options, extra ...Option) *service.Service {
	t.Helper()

	tracker := operation.NewTracker(env.Store.Operations, env.Registry, operation.Options{
		Logger: env.Log,
		Events: env.Events,
	})
	deps := service.Deps{
		Registry:     env.Registry,
		Tracker:      tracker,
		Syncer:       reconcile.NewSyncer(tracker, reconcile.SyncerOptions{Logger: env.Log}),
		Orchestrator: parallel.NewOrchestrator(env.Registry, parallel.Config{Logger: env.Log}),
		Collector:    monitor.NewCollector(env.Registry, monitor.Options{Logger: env.Log, Events: env.Events}),
	}
	for _, o := range extra {
		o(&deps)
	}

	if opts.Logger == nil {
		opts.Logger = env.Log
	}
	svc := service.New(deps, opts)
	t.Cleanup(svc.Close)
	return svc
}
