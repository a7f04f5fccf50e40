package watch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rileyhilliard/dgxops/internal/models"
)

// Source is what the dashboard polls. *client.Client satisfies it.
type Source interface {
	ListConnections(ctx context.Context) ([]*models.Connection, error)
	Metrics(ctx context.Context, ref string) (*models.MetricsSnapshot, error)
	ConnectionOperations(ctx context.Context, ref string) (*models.OperationGroups, error)
	Connect(ctx context.Context, ref string) (*models.Connection, error)
	Disconnect(ctx context.Context, ref string) (*models.Connection, error)
}

// Frame is one poll of the daemon.
type Frame struct {
	Connections []*models.Connection
	Metrics     map[string]*models.MetricsSnapshot
	Operations  map[string]*models.OperationGroups
	Errors      map[string]string
	At          time.Time
}

// pollConcurrency bounds the per-connection requests in one poll.
const pollConcurrency = 8

// Poll fetches the connection list, then metrics and operations for each
// online connection. A failure for one connection lands in Frame.Errors;
// only a failed list call fails the poll.
func Poll(ctx context.Context, src Source) (*Frame, error) {
	conns, err := src.ListConnections(ctx)
	if err != nil {
		return nil, err
	}

	f := &Frame{
		Connections: conns,
		Metrics:     make(map[string]*models.MetricsSnapshot),
		Operations:  make(map[string]*models.OperationGroups),
		Errors:      make(map[string]string),
		At:          time.Now(),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pollConcurrency)
	for _, c := range conns {
		if c.Status != models.StatusOnline {
			continue
		}
		id := c.ID
		g.Go(func() error {
			snap, err := src.Metrics(gctx, id)
			var ops *models.OperationGroups
			if err == nil {
				ops, err = src.ConnectionOperations(gctx, id)
			}

			mu.Lock()
			defer mu.Unlock()
			if snap != nil {
				f.Metrics[id] = snap
			}
			if ops != nil {
				f.Operations[id] = ops
			}
			if err != nil {
				f.Errors[id] = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	return f, nil
}
