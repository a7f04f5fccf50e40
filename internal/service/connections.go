package service

import (
	"context"

	"github.com/rileyhilliard/dgxops/internal/errors"
	"github.com/rileyhilliard/dgxops/internal/host"
	"github.com/rileyhilliard/dgxops/internal/models"
)

// StatusView is the answer to connection.status.
type StatusView struct {
	ConnectionID string `json:"connection_id"`
	Name         string `json:"name"`
	host.State
}

// CreateConnection implements connection.create.
func (s *Service) CreateConnection(ctx context.Context, in models.ConnectionInput) Result {
	conn, err := s.registry.Create(ctx, in)
	if err != nil {
		return s.fail("connection.create", err)
	}
	return OK(conn)
}

// UpdateConnection implements connection.update.
func (s *Service) UpdateConnection(ctx context.Context, ref string, in models.ConnectionInput) Result {
	conn, err := s.registry.Resolve(ctx, ref)
	if err != nil {
		return s.fail("connection.update", err)
	}
	conn, err = s.registry.Update(ctx, conn.ID, in)
	if err != nil {
		return s.fail("connection.update", err)
	}
	return OK(conn)
}

// ListConnections implements connection.list.
func (s *Service) ListConnections(ctx context.Context) Result {
	conns, err := s.registry.List(ctx)
	if err != nil {
		return s.fail("connection.list", err)
	}
	if conns == nil {
		conns = []*models.Connection{}
	}
	return OK(conns)
}

// GetConnection implements connection.get. ref is an id or a name.
func (s *Service) GetConnection(ctx context.Context, ref string) Result {
	conn, err := s.registry.Resolve(ctx, ref)
	if err != nil {
		return s.fail("connection.get", err)
	}
	return OK(conn)
}

// Connect implements connection.connect.
func (s *Service) Connect(ctx context.Context, ref string) Result {
	conn, err := s.registry.Resolve(ctx, ref)
	if err != nil {
		return s.fail("connection.connect", err)
	}
	conn, err = s.registry.Connect(ctx, conn.ID)
	if err != nil {
		return s.fail("connection.connect", err)
	}
	return OK(conn)
}

// Disconnect implements connection.disconnect. Disconnecting a connection
// that isn't connected succeeds.
func (s *Service) Disconnect(ctx context.Context, ref string) Result {
	conn, err := s.registry.Resolve(ctx, ref)
	if err != nil {
		return s.fail("connection.disconnect", err)
	}
	if err := s.registry.Disconnect(ctx, conn.ID); err != nil {
		return s.fail("connection.disconnect", err)
	}
	conn, err = s.registry.Get(ctx, conn.ID)
	if err != nil {
		return s.fail("connection.disconnect", err)
	}
	return OK(conn)
}

// ConnectionStatus implements connection.status. It reports the cached
// state and never touches the network.
func (s *Service) ConnectionStatus(ctx context.Context, ref string) Result {
	conn, err := s.registry.Resolve(ctx, ref)
	if err != nil {
		return s.fail("connection.status", err)
	}
	return OK(StatusView{
		ConnectionID: conn.ID,
		Name:         conn.Name,
		State:        s.registry.Status(conn.ID),
	})
}

// DeleteConnection implements connection.delete. With force, the
// connection's operations and metric history go with it.
func (s *Service) DeleteConnection(ctx context.Context, ref string, force bool) Result {
	conn, err := s.registry.Resolve(ctx, ref)
	if err != nil {
		return s.fail("connection.delete", err)
	}
	if err := s.registry.Delete(ctx, conn.ID, force); err != nil {
		return s.fail("connection.delete", err)
	}
	return OK(map[string]interface{}{"id": conn.ID, "deleted": true})
}

// ConnectAll implements connection.connectAll. Individual failures are in
// the breakdown; only a store failure fails the command.
func (s *Service) ConnectAll(ctx context.Context) Result {
	res, err := s.orch.ConnectAll(ctx)
	if err != nil {
		return s.fail("connection.connectAll", err)
	}
	return OK(res)
}

// DisconnectAll implements connection.disconnectAll.
func (s *Service) DisconnectAll(ctx context.Context) Result {
	res, err := s.orch.DisconnectAll(ctx)
	if err != nil {
		return s.fail("connection.disconnectAll", err)
	}
	return OK(res)
}

// ReconnectFailed implements connection.reconnectFailed.
func (s *Service) ReconnectFailed(ctx context.Context) Result {
	res, err := s.orch.ReconnectFailed(ctx)
	if err != nil {
		return s.fail("connection.reconnectFailed", err)
	}
	return OK(res)
}

// requireConnection resolves ref and returns a NOT_FOUND error that names
// it when nothing matches.
func (s *Service) requireConnection(ctx context.Context, ref string) (*models.Connection, error) {
	if ref == "" {
		return nil, errors.Validation("connection id is required")
	}
	return s.registry.Resolve(ctx, ref)
}
