package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rileyhilliard/dgxops/internal/errors"
	"github.com/rileyhilliard/dgxops/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), MemoryPath, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedConnection(t *testing.T, s *Store, name string) *models.Connection {
	t.Helper()
	c := &models.Connection{Name: name, Hostname: name + ".lan", Username: "nvidia"}
	require.NoError(t, s.Connections.Create(context.Background(), c))
	return c
}

func intPtr(i int) *int { return &i }

func TestOpen_FileDatabaseMigratesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dgxops.db")

	s, err := Open(context.Background(), path, nil)
	require.NoError(t, err)
	seedConnection(t, s, "spark")
	require.NoError(t, s.Close())

	// Reopening must not re-run or fail migrations, and data survives.
	s, err = Open(context.Background(), path, nil)
	require.NoError(t, err)
	defer s.Close()

	conns, err := s.Connections.List(context.Background())
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, "spark", conns[0].Name)
}

func TestConnections_CRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	c := seedConnection(t, s, "spark")
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, models.DefaultSSHPort, c.Port)

	got, err := s.Connections.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "spark.lan", got.Hostname)
	assert.False(t, got.IsActive)
	assert.Nil(t, got.LastConnectedAt)

	byName, err := s.Connections.GetByName(ctx, "spark")
	require.NoError(t, err)
	assert.Equal(t, c.ID, byName.ID)

	got.Hostname = "10.0.0.7"
	got.Port = 2222
	require.NoError(t, s.Connections.Update(ctx, got))

	got, err = s.Connections.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.7", got.Hostname)
	assert.Equal(t, 2222, got.Port)

	seedConnection(t, s, "alpha")
	list, err := s.Connections.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].Name)
}

func TestConnections_DuplicateName(t *testing.T) {
	s := newTestStore(t)
	seedConnection(t, s, "spark")

	err := s.Connections.Create(context.Background(), &models.Connection{Name: "spark", Hostname: "h", Username: "u"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrValidation))
}

func TestConnections_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Connections.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, errors.IsCode(err, errors.ErrNotFound))

	err = s.Connections.SetActive(context.Background(), "missing", true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConnections_MarkConnectedAndActive(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c := seedConnection(t, s, "spark")

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Connections.MarkConnected(ctx, c.ID, at))

	got, err := s.Connections.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)
	require.NotNil(t, got.LastConnectedAt)
	assert.True(t, at.Equal(*got.LastConnectedAt))

	require.NoError(t, s.Connections.SetActive(ctx, c.ID, false))
	got, err = s.Connections.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func newOp(connID string) *models.Operation {
	return &models.Operation{
		ConnectionID: connID,
		Name:         "vllm",
		Type:         models.OpServer,
		Category:     models.OpServer.Category(),
		Status:       models.OpPending,
		Command:      "vllm serve llama",
		Port:         intPtr(8000),
		Progress:     models.ProgressIndeterminate,
	}
}

func TestOperations_CreateGetList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c := seedConnection(t, s, "spark")

	op := newOp(c.ID)
	require.NoError(t, s.Operations.Create(ctx, op))
	assert.Equal(t, int64(1), op.Version)

	got, err := s.Operations.Get(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OpServer, got.Type)
	assert.Equal(t, models.CategoryWebUI, got.Category)
	assert.Equal(t, models.OpPending, got.Status)
	assert.Equal(t, -1, got.Progress)
	require.NotNil(t, got.Port)
	assert.Equal(t, 8000, *got.Port)
	assert.Nil(t, got.PID)

	byConn, err := s.Operations.ListByConnection(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, byConn, 1)

	pending, err := s.Operations.ListByStatus(ctx, c.ID, models.OpPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
	running, err := s.Operations.ListByStatus(ctx, c.ID, models.OpRunning)
	require.NoError(t, err)
	assert.Empty(t, running)

	n, err := s.Operations.CountByConnection(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOperations_UnknownConnectionRejected(t *testing.T) {
	s := newTestStore(t)
	err := s.Operations.Create(context.Background(), newOp("nope"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrStore))
}

func TestOperations_UpdateOptimisticVersion(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c := seedConnection(t, s, "spark")
	op := newOp(c.ID)
	require.NoError(t, s.Operations.Create(ctx, op))

	// Two readers of the same version.
	a, err := s.Operations.Get(ctx, op.ID)
	require.NoError(t, err)
	b, err := s.Operations.Get(ctx, op.ID)
	require.NoError(t, err)

	now := time.Now()
	a.Status = models.OpRunning
	a.PID = intPtr(4242)
	a.StartedAt = &now
	require.NoError(t, s.Operations.Update(ctx, a))
	assert.Equal(t, int64(2), a.Version)

	b.Status = models.OpFailed
	err = s.Operations.Update(ctx, b)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStaleVersion)
	assert.True(t, errors.IsCode(err, errors.ErrState))

	got, err := s.Operations.Get(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OpRunning, got.Status)
	require.NotNil(t, got.PID)
	assert.Equal(t, 4242, *got.PID)
	require.NotNil(t, got.StartedAt)

	missing := newOp(c.ID)
	missing.ID = "ghost"
	assert.ErrorIs(t, s.Operations.Update(ctx, missing), ErrNotFound)
}

func TestOperations_Delete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c := seedConnection(t, s, "spark")
	op := newOp(c.ID)
	require.NoError(t, s.Operations.Create(ctx, op))

	require.NoError(t, s.Operations.Delete(ctx, op.ID))
	assert.ErrorIs(t, s.Operations.Delete(ctx, op.ID), ErrNotFound)
}

func TestMetrics_InsertSinceAndPrune(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c := seedConnection(t, s, "spark")

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		sample := &models.Sample{
			ConnectionID:   c.ID,
			Timestamp:      base.Add(time.Duration(i) * time.Hour),
			GPUUtilization: float64(i * 10),
			RxBytes:        uint64(1000 * i),
			SessionRxBytes: uint64(100 * i),
		}
		require.NoError(t, s.Metrics.Insert(ctx, sample))
		assert.NotZero(t, sample.ID)
	}

	got, err := s.Metrics.Since(ctx, c.ID, base.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.InDelta(t, 20.0, got[0].GPUUtilization, 0.001)
	assert.Equal(t, uint64(4000), got[2].RxBytes)
	assert.True(t, got[0].Timestamp.Before(got[1].Timestamp))

	n, err := s.Metrics.Prune(ctx, base.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	got, err = s.Metrics.Since(ctx, c.ID, base)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestDeleteConnection(t *testing.T) {
	ctx := context.Background()

	t.Run("no history deletes", func(t *testing.T) {
		s := newTestStore(t)
		c := seedConnection(t, s, "spark")
		require.NoError(t, s.DeleteConnection(ctx, c.ID, false))
		_, err := s.Connections.Get(ctx, c.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("history without force is refused", func(t *testing.T) {
		s := newTestStore(t)
		c := seedConnection(t, s, "spark")
		require.NoError(t, s.Operations.Create(ctx, newOp(c.ID)))

		err := s.DeleteConnection(ctx, c.ID, false)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrState))

		_, err = s.Connections.Get(ctx, c.ID)
		assert.NoError(t, err)
	})

	t.Run("force cascades", func(t *testing.T) {
		s := newTestStore(t)
		c := seedConnection(t, s, "spark")
		other := seedConnection(t, s, "other")
		require.NoError(t, s.Operations.Create(ctx, newOp(c.ID)))
		require.NoError(t, s.Operations.Create(ctx, newOp(other.ID)))
		require.NoError(t, s.Metrics.Insert(ctx, &models.Sample{ConnectionID: c.ID, Timestamp: time.Now()}))

		require.NoError(t, s.DeleteConnection(ctx, c.ID, true))

		n, err := s.Operations.CountByConnection(ctx, c.ID)
		require.NoError(t, err)
		assert.Zero(t, n)
		samples, err := s.Metrics.Since(ctx, c.ID, time.Time{})
		require.NoError(t, err)
		assert.Empty(t, samples)

		n, err = s.Operations.CountByConnection(ctx, other.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("missing", func(t *testing.T) {
		s := newTestStore(t)
		assert.ErrorIs(t, s.DeleteConnection(ctx, "ghost", true), ErrNotFound)
	})
}
