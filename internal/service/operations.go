package service

import (
	"context"

	"github.com/rileyhilliard/dgxops/internal/models"
)

// LogsView is the answer to operation.logs.
type LogsView struct {
	OperationID string `json:"operation_id"`
	Lines       int    `json:"lines"`
	Logs        string `json:"logs"`
}

// CreateOperation implements operation.create. The record is persisted as
// pending before anything touches the host. With auto-launch on and the
// connection online, the launch then runs in the background; the caller
// gets the pending record right away and sees the outcome on the next get.
func (s *Service) CreateOperation(ctx context.Context, spec models.OperationSpec) Result {
	if spec.ConnectionID != "" {
		conn, err := s.registry.Resolve(ctx, spec.ConnectionID)
		if err != nil {
			return s.fail("operation.create", err)
		}
		spec.ConnectionID = conn.ID
	}

	op, err := s.tracker.Create(ctx, spec)
	if err != nil {
		return s.fail("operation.create", err)
	}

	if s.autoLaunch {
		if s.registry.Status(op.ConnectionID).Status == models.StatusOnline {
			s.launchInBackground(op.ID, op.Name)
		} else {
			s.log.Info("%s stays pending until its connection is online", op.Name)
		}
	}
	return OK(op)
}

func (s *Service) launchInBackground(id, name string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.tracker.Launch(s.base, id); err != nil {
			s.log.Warn("background launch of %s failed: %s", name, Fail(err).Error)
		}
	}()
}

// LaunchOperation implements operation.launch for a pending operation.
func (s *Service) LaunchOperation(ctx context.Context, id string) Result {
	op, err := s.tracker.Launch(ctx, id)
	if err != nil {
		return s.failWith("operation.launch", err, op)
	}
	return OK(op)
}

// GetOperation implements operation.get.
func (s *Service) GetOperation(ctx context.Context, id string) Result {
	op, err := s.tracker.Get(ctx, id)
	if err != nil {
		return s.fail("operation.get", err)
	}
	return OK(op)
}

// ListOperations implements operation.list. With a connection it answers
// the operations grouped by category; without one, every operation.
func (s *Service) ListOperations(ctx context.Context, connectionRef string) Result {
	if connectionRef == "" {
		ops, err := s.tracker.List(ctx)
		if err != nil {
			return s.fail("operation.list", err)
		}
		if ops == nil {
			ops = []*models.Operation{}
		}
		return OK(ops)
	}

	conn, err := s.registry.Resolve(ctx, connectionRef)
	if err != nil {
		return s.fail("operation.list", err)
	}
	groups, err := s.tracker.ListByConnection(ctx, conn.ID)
	if err != nil {
		return s.fail("operation.list", err)
	}
	return OK(groups)
}

// KillOperation implements operation.kill. An empty signal means TERM.
func (s *Service) KillOperation(ctx context.Context, id, signal string) Result {
	op, err := s.tracker.Stop(ctx, id, signal)
	if err != nil {
		return s.failWith("operation.kill", err, op)
	}
	return OK(op)
}

// RestartOperation implements operation.restart.
func (s *Service) RestartOperation(ctx context.Context, id string) Result {
	op, err := s.tracker.Restart(ctx, id)
	if err != nil {
		return s.failWith("operation.restart", err, op)
	}
	return OK(op)
}

// OperationLogs implements operation.logs.
func (s *Service) OperationLogs(ctx context.Context, id string, lines int) Result {
	out, err := s.tracker.Logs(ctx, id, lines)
	if err != nil {
		return s.fail("operation.logs", err)
	}
	return OK(LogsView{OperationID: id, Lines: lines, Logs: out})
}

// OperationProgress implements operation.progress: it reads the log tail
// and answers the operation with its refreshed progress.
func (s *Service) OperationProgress(ctx context.Context, id string) Result {
	op, err := s.tracker.RefreshProgress(ctx, id)
	if err != nil {
		return s.failWith("operation.progress", err, op)
	}
	return OK(op)
}

// SyncOperations implements operation.sync. Operations that couldn't be
// checked are counted in the summary, not reported as a failed command.
func (s *Service) SyncOperations(ctx context.Context, connectionRef string) Result {
	conn, err := s.requireConnection(ctx, connectionRef)
	if err != nil {
		return s.fail("operation.sync", err)
	}
	res, err := s.syncer.Sync(ctx, conn.ID)
	if err != nil {
		return s.fail("operation.sync", err)
	}
	return OK(res)
}
