package reconcile

import (
	"context"
	"sync"

	"github.com/rileyhilliard/dgxops/internal/errors"
	"github.com/rileyhilliard/dgxops/internal/logger"
	"github.com/rileyhilliard/dgxops/internal/models"
	"github.com/rileyhilliard/dgxops/internal/operation"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency caps simultaneous liveness checks in one sync.
const DefaultConcurrency = 8

// Operations is what a sync needs from the operation tracker.
type Operations interface {
	Running(ctx context.Context, connectionID string) ([]*models.Operation, error)
	CheckAlive(ctx context.Context, op *models.Operation) (bool, error)
	Settle(ctx context.Context, basis *models.Operation, s operation.Settlement) (bool, error)
}

// SyncResult summarizes one sync pass.
type SyncResult struct {
	ConnectionID string        `json:"connection_id"`
	Checked      int           `json:"checked"`
	Synced       int           `json:"synced"`
	Errors       int           `json:"errors"`
	Unmanaged    int           `json:"unmanaged"`
	Failures     []SyncFailure `json:"failures"`
}

// SyncFailure is one operation that couldn't be checked.
type SyncFailure struct {
	OperationID string `json:"operation_id"`
	Name        string `json:"name"`
	Error       string `json:"error"`
}

// SyncerOptions configures a Syncer.
type SyncerOptions struct {
	Classifier  Classifier
	Concurrency int
	Logger      logger.Logger
}

// Syncer walks a connection's live operations and settles the ones whose
// process has died.
type Syncer struct {
	ops         Operations
	classifier  Classifier
	concurrency int
	log         logger.Logger
}

// NewSyncer creates a syncer. A nil classifier reads exit files through
// ops when it can, and marks every dead process failed otherwise.
func NewSyncer(ops Operations, opts SyncerOptions) *Syncer {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = logger.Noop()
	}
	if opts.Classifier == nil {
		if reader, ok := ops.(ExitCodeReader); ok {
			opts.Classifier = NewExitFileClassifier(reader, string(models.OpFailed))
		} else {
			opts.Classifier = ClassifierFunc(func(context.Context, *models.Operation) (operation.Settlement, error) {
				return operation.Settlement{Status: models.OpFailed}, nil
			})
		}
	}
	return &Syncer{
		ops:         ops,
		classifier:  opts.Classifier,
		concurrency: opts.Concurrency,
		log:         opts.Logger,
	}
}

// Sync checks every live operation of connectionID. Failing to check one
// operation is recorded and doesn't stop the rest; only a failure to read
// the records at all is returned as an error. Operations launched without a
// PID are counted as unmanaged rather than as errors.
func (s *Syncer) Sync(ctx context.Context, connectionID string) (*SyncResult, error) {
	running, err := s.ops.Running(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	res := &SyncResult{ConnectionID: connectionID, Failures: []SyncFailure{}}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, op := range running {
		// Without a PID there is nothing to check, now or on any later pass.
		if !op.HasPID() {
			mu.Lock()
			res.Checked++
			res.Unmanaged++
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			synced, err := s.check(gctx, op)

			mu.Lock()
			defer mu.Unlock()
			res.Checked++
			if err != nil {
				res.Errors++
				res.Failures = append(res.Failures, SyncFailure{
					OperationID: op.ID,
					Name:        op.Name,
					Error:       errors.Summary(err),
				})
				return nil
			}
			if synced {
				res.Synced++
			}
			return nil
		})
	}
	_ = g.Wait()

	if res.Synced > 0 || res.Errors > 0 {
		s.log.Info("sync %s: checked %d, corrected %d, %d errors, %d unmanaged",
			connectionID, res.Checked, res.Synced, res.Errors, res.Unmanaged)
	}
	return res, nil
}

// check settles op if its process is gone. It reads without holding the
// operation's lock; Settle drops the verdict if anything changed since.
func (s *Syncer) check(ctx context.Context, op *models.Operation) (bool, error) {
	alive, err := s.ops.CheckAlive(ctx, op)
	if err != nil {
		return false, err
	}
	if alive {
		return false, nil
	}

	verdict, err := s.classifier.Classify(ctx, op)
	if err != nil {
		return false, err
	}
	return s.ops.Settle(ctx, op, verdict)
}
