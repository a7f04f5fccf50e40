package service

import (
	"context"

	"github.com/rileyhilliard/dgxops/internal/errors"
	"github.com/rileyhilliard/dgxops/internal/models"
)

// DefaultHistoryHours is the window metrics.history uses when none is given.
const DefaultHistoryHours = 1.0

// Metrics implements metrics.get: the latest sample for a connection and
// the error from the last attempt, if it failed.
func (s *Service) Metrics(ctx context.Context, connectionRef string) Result {
	conn, err := s.requireConnection(ctx, connectionRef)
	if err != nil {
		return s.fail("metrics.get", err)
	}
	return OK(s.collector.Current(conn.ID))
}

// MetricsHistory implements metrics.history over the last windowHours.
func (s *Service) MetricsHistory(ctx context.Context, connectionRef string, windowHours float64) Result {
	if windowHours < 0 {
		return s.fail("metrics.history", errors.Validation("window must not be negative"))
	}
	if windowHours == 0 {
		windowHours = DefaultHistoryHours
	}
	conn, err := s.requireConnection(ctx, connectionRef)
	if err != nil {
		return s.fail("metrics.history", err)
	}
	samples, err := s.collector.History(ctx, conn.ID, windowHours)
	if err != nil {
		return s.fail("metrics.history", err)
	}
	if samples == nil {
		samples = []*models.Sample{}
	}
	return OK(samples)
}
