// Package service is the command surface of dgxops. Every command takes
// plain inputs, drives the registry, tracker, reconciler, orchestrator and
// collector, and answers with a Result envelope. Transports (HTTP, CLI)
// sit on top of it and never talk to the components directly.
package service

import (
	"context"
	"sync"

	"github.com/rileyhilliard/dgxops/internal/errors"
	"github.com/rileyhilliard/dgxops/internal/host"
	"github.com/rileyhilliard/dgxops/internal/logger"
	"github.com/rileyhilliard/dgxops/internal/models"
	"github.com/rileyhilliard/dgxops/internal/monitor"
	"github.com/rileyhilliard/dgxops/internal/operation"
	"github.com/rileyhilliard/dgxops/internal/parallel"
	"github.com/rileyhilliard/dgxops/internal/reconcile"
)

// Deps are the components a Service drives.
type Deps struct {
	Registry     *host.Registry
	Tracker      *operation.Tracker
	Syncer       *reconcile.Syncer
	Orchestrator *parallel.Orchestrator
	Collector    *monitor.Collector
}

// Options configures a Service.
type Options struct {
	// AutoLaunch starts a new operation in the background right after it
	// is recorded, when its connection is online.
	AutoLaunch bool

	Logger logger.Logger
}

// Service implements every command. It is safe for concurrent use.
type Service struct {
	registry  *host.Registry
	tracker   *operation.Tracker
	syncer    *reconcile.Syncer
	orch      *parallel.Orchestrator
	collector *monitor.Collector

	autoLaunch bool
	log        logger.Logger

	// background launches outlive the request that created them
	base     context.Context
	shutdown context.CancelFunc
	wg       sync.WaitGroup
}

// New creates a Service over deps.
func New(deps Deps, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = logger.Noop()
	}
	base, cancel := context.WithCancel(context.Background())
	return &Service{
		registry:   deps.Registry,
		tracker:    deps.Tracker,
		syncer:     deps.Syncer,
		orch:       deps.Orchestrator,
		collector:  deps.Collector,
		autoLaunch: opts.AutoLaunch,
		log:        opts.Logger,
		base:       base,
		shutdown:   cancel,
	}
}

// Close cancels background launches and waits for them to return.
func (s *Service) Close() {
	s.shutdown()
	s.wg.Wait()
}

// Wait blocks until background launches started so far have returned.
func (s *Service) Wait() {
	s.wg.Wait()
}

// fail turns err into a failed result, logging it at a level that matches
// how unexpected it is.
func (s *Service) fail(command string, err error) Result {
	res := Fail(err)
	switch {
	case res.IsHard():
		s.log.Error("%s: %s", command, res.Error)
	case res.Code == errors.ErrSSH || res.Code == errors.ErrExec:
		s.log.Warn("%s: %s", command, res.Error)
	default:
		s.log.Debug("%s: %s", command, res.Error)
	}
	return res
}

// failWith is fail with op attached when there is one. A nil op must not
// reach Data, where it would encode as "data": null.
func (s *Service) failWith(command string, err error, op *models.Operation) Result {
	res := s.fail(command, err)
	if op != nil {
		res.Data = op
	}
	return res
}
