package parallel_test

import (
	"context"
	"errors"
	"testing"
	"time"

	dgxerrors "github.com/rileyhilliard/dgxops/internal/errors"
	hosttest "github.com/rileyhilliard/dgxops/internal/host/testing"
	"github.com/rileyhilliard/dgxops/internal/models"
	"github.com/rileyhilliard/dgxops/internal/parallel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func authFailure() error {
	return dgxerrors.New(dgxerrors.ErrSSH, "SSH handshake failed", "ssh: unable to authenticate")
}

func TestConnectAll_PartialFailureIsIsolated(t *testing.T) {
	env := hosttest.NewEnv(t)
	a, _ := env.AddConnection(t, "spark-a")
	b := env.AddUnreachable(t, "spark-b", authFailure())

	o := parallel.NewOrchestrator(env.Registry, parallel.Config{Logger: env.Log})
	res, err := o.ConnectAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, b.ID, res.Failures[0].ConnectionID)
	assert.Equal(t, "spark-b", res.Failures[0].Name)
	assert.Contains(t, res.Failures[0].Error, "handshake")
	assert.Equal(t, []string{b.ID}, res.FailedIDs())

	assert.Equal(t, models.StatusOnline, env.Registry.Status(a.ID).Status)
	assert.Equal(t, models.StatusError, env.Registry.Status(b.ID).Status)
}

func TestConnectAll_RunsConcurrently(t *testing.T) {
	env := hosttest.NewEnv(t, hosttest.WithTimeouts(2*time.Second, 500*time.Millisecond, time.Second))
	for _, name := range []string{"a", "b", "c", "d"} {
		env.AddConnection(t, name)
	}
	env.Dialer.SetDelay(200 * time.Millisecond)

	start := time.Now()
	res, err := parallel.NewOrchestrator(env.Registry, parallel.Config{}).ConnectAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, res.Succeeded)
	assert.Less(t, time.Since(start), 700*time.Millisecond, "four 200ms dials should overlap")
}

func TestDisconnectAll_IdempotentForOffline(t *testing.T) {
	env := hosttest.NewEnv(t)
	a, _ := env.Connected(t, "a")
	b, _ := env.AddConnection(t, "b")

	res, err := parallel.NewOrchestrator(env.Registry, parallel.Config{}).DisconnectAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 2, res.Succeeded)
	assert.True(t, res.Success())
	assert.Equal(t, models.StatusOffline, env.Registry.Status(a.ID).Status)
	assert.Equal(t, models.StatusOffline, env.Registry.Status(b.ID).Status)
}

func TestReconnectFailed_OnlyTouchesFailed(t *testing.T) {
	env := hosttest.NewEnv(t)
	healthy, healthyClient := env.Connected(t, "healthy")
	broken, brokenClient := env.Connected(t, "broken")
	idle, _ := env.AddConnection(t, "idle")

	// broken's link dies
	brokenClient.SetProbeError(errors.New("connection reset by peer"))
	_, err := env.Registry.Probe(context.Background(), broken.ID)
	require.Error(t, err)
	require.Equal(t, models.StatusError, env.Registry.Status(broken.ID).Status)
	brokenClient.SetProbeError(nil)

	res, err := parallel.NewOrchestrator(env.Registry, parallel.Config{}).ReconnectFailed(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Total)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, models.StatusOnline, env.Registry.Status(broken.ID).Status)
	assert.Equal(t, 2, env.Dialer.Dials("broken.lan"))
	assert.Equal(t, 1, env.Dialer.Dials("healthy.lan"))
	assert.Equal(t, 0, env.Dialer.Dials("idle.lan"))
	assert.False(t, healthyClient.IsClosed())
	_ = healthy
	_ = idle
}

func TestReconnectFailed_NothingToDo(t *testing.T) {
	env := hosttest.NewEnv(t)
	env.Connected(t, "fine")

	res, err := parallel.NewOrchestrator(env.Registry, parallel.Config{}).ReconnectFailed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Total)
	assert.Empty(t, res.Failures)
}
