// Package reconcile corrects drift between recorded state and what is
// actually true on the hosts: connection liveness on a timer, operation
// status on demand.
package reconcile

import (
	"context"
	"time"

	"github.com/rileyhilliard/dgxops/internal/errors"
	"github.com/rileyhilliard/dgxops/internal/host"
	"github.com/rileyhilliard/dgxops/internal/logger"
	"github.com/rileyhilliard/dgxops/internal/models"
)

// DefaultInterval is how often a live connection is probed.
const DefaultInterval = 5 * time.Second

// Prober checks one connection's live session. A failing probe is
// expected to drop the session; the loop never reconnects.
type Prober interface {
	Probe(ctx context.Context, id string) (time.Duration, error)
}

// LoopConfig configures a Loop.
type LoopConfig struct {
	Interval time.Duration
	Logger   logger.Logger
}

// Loop probes every connected host on a fixed interval.
type Loop struct {
	prober   Prober
	interval time.Duration
	log      logger.Logger
}

// NewLoop creates a loop probing through prober.
func NewLoop(prober Prober, cfg LoopConfig) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Noop()
	}
	return &Loop{prober: prober, interval: cfg.Interval, log: cfg.Logger}
}

// Attach runs the loop for every connection the registry brings online.
func (l *Loop) Attach(r *host.Registry) {
	r.OnConnect(l.Run)
}

// Run probes conn until ctx ends or a probe fails. It has the shape of a
// host.Task, so the registry cancels it the moment the session goes away.
func (l *Loop) Run(ctx context.Context, conn *models.Connection) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.log.Debug("watching %s every %s", conn.Name, l.interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			latency, err := l.prober.Probe(ctx, conn.ID)
			if err != nil {
				if !errors.Is(err, context.Canceled) && !errors.Is(err, host.ErrNotConnected) {
					l.log.Warn("%s failed its liveness probe: %s", conn.Name, errors.Summary(err))
				}
				return
			}
			l.log.Debug("%s alive (%s)", conn.Name, latency.Round(time.Millisecond))
		}
	}
}
