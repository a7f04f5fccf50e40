package host_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	dgxerrors "github.com/rileyhilliard/dgxops/internal/errors"
	"github.com/rileyhilliard/dgxops/internal/events"
	"github.com/rileyhilliard/dgxops/internal/host"
	hosttest "github.com/rileyhilliard/dgxops/internal/host/testing"
	"github.com/rileyhilliard/dgxops/internal/models"
	"github.com/rileyhilliard/dgxops/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_CreateValidates(t *testing.T) {
	env := hosttest.NewEnv(t)

	_, err := env.Registry.Create(context.Background(), models.ConnectionInput{Name: "spark-1"})
	require.Error(t, err)
	assert.True(t, dgxerrors.IsCode(err, dgxerrors.ErrValidation))

	conns, err := env.Registry.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, conns, "a rejected create must not leave a record")
}

func TestRegistry_ListDefaultsToOffline(t *testing.T) {
	env := hosttest.NewEnv(t)
	env.AddConnection(t, "spark-1")
	env.AddConnection(t, "spark-2")

	conns, err := env.Registry.List(context.Background())
	require.NoError(t, err)
	require.Len(t, conns, 2)
	for _, c := range conns {
		assert.Equal(t, models.StatusOffline, c.Status)
		assert.Equal(t, 22, c.Port)
	}
}

func TestRegistry_Connect(t *testing.T) {
	env := hosttest.NewEnv(t)
	conn, client := env.AddConnection(t, "spark-1")

	got, err := env.Registry.Connect(context.Background(), conn.ID)
	require.NoError(t, err)

	assert.Equal(t, models.StatusOnline, got.Status)
	assert.True(t, got.IsActive)
	require.NotNil(t, got.LastConnectedAt)
	require.NotNil(t, got.LastPing)

	session, err := env.Registry.Session(conn.ID)
	require.NoError(t, err)
	assert.Same(t, client, session)

	statuses := statusesOf(env.Events.OfType(events.ConnectionStatus))
	assert.Equal(t, []string{"connecting", "online"}, statuses)
}

func TestRegistry_ConnectUnknown(t *testing.T) {
	env := hosttest.NewEnv(t)

	_, err := env.Registry.Connect(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrNotFound))
	assert.Equal(t, dgxerrors.ErrNotFound, dgxerrors.CodeOf(err))
}

func TestRegistry_ConnectFailureThenRetry(t *testing.T) {
	env := hosttest.NewEnv(t)
	conn := env.AddUnreachable(t, "spark-1", errors.New("ssh: unable to authenticate"))

	_, err := env.Registry.Connect(context.Background(), conn.ID)
	require.Error(t, err)
	assert.True(t, dgxerrors.IsCode(err, dgxerrors.ErrSSH))

	st := env.Registry.Status(conn.ID)
	assert.Equal(t, models.StatusError, st.Status)
	assert.Contains(t, st.ErrorMessage, "unable to authenticate")
	_, err = env.Registry.Session(conn.ID)
	assert.ErrorIs(t, err, host.ErrNotConnected)

	env.Dialer.AddHost("spark-1.lan")
	got, err := env.Registry.Connect(context.Background(), conn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOnline, got.Status)
	assert.Empty(t, got.ErrorMessage)
}

func TestRegistry_ConnectTimeoutResolvesToError(t *testing.T) {
	env := hosttest.NewEnv(t, hosttest.WithTimeouts(50*time.Millisecond, 50*time.Millisecond, time.Second))
	conn, _ := env.AddConnection(t, "spark-1")
	env.Dialer.SetDelay(time.Second)

	start := time.Now()
	_, err := env.Registry.Connect(context.Background(), conn.ID)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 900*time.Millisecond)
	assert.Equal(t, models.StatusError, env.Registry.Status(conn.ID).Status)
}

func TestRegistry_ConnectingIsVisibleMidDial(t *testing.T) {
	env := hosttest.NewEnv(t)
	conn, _ := env.AddConnection(t, "spark-1")
	env.Dialer.SetDelay(300 * time.Millisecond)

	done := make(chan error, 1)
	go func() {
		_, err := env.Registry.Connect(context.Background(), conn.ID)
		done <- err
	}()

	assert.Eventually(t, func() bool {
		return env.Registry.Status(conn.ID).Status == models.StatusConnecting
	}, 200*time.Millisecond, 5*time.Millisecond)

	got, err := env.Registry.Get(context.Background(), conn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConnecting, got.Status)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("connect never returned")
	}
	assert.Equal(t, models.StatusOnline, env.Registry.Status(conn.ID).Status)
}

func TestRegistry_ConcurrentConnectSharesOneSession(t *testing.T) {
	env := hosttest.NewEnv(t)
	conn, client := env.AddConnection(t, "spark-1")
	env.Dialer.SetDelay(50 * time.Millisecond)

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.Registry.Connect(context.Background(), conn.ID)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, env.Dialer.Dials("spark-1.lan"), "callers must share a single dial")
	assert.Equal(t, 0, client.CloseCount())
	assert.Equal(t, []string{conn.ID}, env.Registry.LiveIDs())
}

func TestRegistry_ConnectReusesLiveSession(t *testing.T) {
	env := hosttest.NewEnv(t)
	conn, client := env.Connected(t, "spark-1")

	_, err := env.Registry.Connect(context.Background(), conn.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, env.Dialer.Dials("spark-1.lan"))
	assert.False(t, client.IsClosed())
}

func TestRegistry_ConnectReplacesDeadSession(t *testing.T) {
	env := hosttest.NewEnv(t)
	conn, client := env.Connected(t, "spark-1")
	client.SetProbeError(errors.New("connection reset by peer"))

	_, err := env.Registry.Connect(context.Background(), conn.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, env.Dialer.Dials("spark-1.lan"))
	assert.Equal(t, 1, client.CloseCount(), "the dead handle is closed exactly once")
	assert.Equal(t, models.StatusOnline, env.Registry.Status(conn.ID).Status)
}

func TestRegistry_DisconnectIsIdempotent(t *testing.T) {
	env := hosttest.NewEnv(t)
	conn, client := env.Connected(t, "spark-1")

	require.NoError(t, env.Registry.Disconnect(context.Background(), conn.ID))
	require.NoError(t, env.Registry.Disconnect(context.Background(), conn.ID))

	assert.True(t, client.IsClosed())
	assert.Equal(t, 1, client.CloseCount())
	assert.Equal(t, models.StatusOffline, env.Registry.Status(conn.ID).Status)

	got, err := env.Registry.Get(context.Background(), conn.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	_, err = env.Registry.Session(conn.ID)
	assert.ErrorIs(t, err, host.ErrNotConnected)
}

func TestRegistry_DisconnectNeverConnected(t *testing.T) {
	env := hosttest.NewEnv(t)
	conn, _ := env.AddConnection(t, "spark-1")

	require.NoError(t, env.Registry.Disconnect(context.Background(), conn.ID))
	assert.Equal(t, models.StatusOffline, env.Registry.Status(conn.ID).Status)
}

func TestRegistry_TasksStopOnDisconnect(t *testing.T) {
	env := hosttest.NewEnv(t)

	started := make(chan string, 1)
	stopped := make(chan string, 1)
	env.Registry.OnConnect(func(ctx context.Context, conn *models.Connection) {
		started <- conn.Name
		<-ctx.Done()
		stopped <- conn.Name
	})

	conn, _ := env.Connected(t, "spark-1")
	assert.Equal(t, "spark-1", receive(t, started))

	require.NoError(t, env.Registry.Disconnect(context.Background(), conn.ID))
	assert.Equal(t, "spark-1", receive(t, stopped))
}

func TestRegistry_ProbeFailureMarksError(t *testing.T) {
	env := hosttest.NewEnv(t)
	conn, client := env.Connected(t, "spark-1")

	_, err := env.Registry.Probe(context.Background(), conn.ID)
	require.NoError(t, err)

	client.SetProbeError(errors.New("broken pipe"))
	_, err = env.Registry.Probe(context.Background(), conn.ID)
	require.Error(t, err)

	st := env.Registry.Status(conn.ID)
	assert.Equal(t, models.StatusError, st.Status)
	assert.Contains(t, st.ErrorMessage, "broken pipe")
	assert.True(t, client.IsClosed())

	// the active flag survives, so the connection is offered for reconnect
	failed, err := env.Registry.FailedIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{conn.ID}, failed)
}

func TestRegistry_MarkFailedIgnoresReplacedHandle(t *testing.T) {
	env := hosttest.NewEnv(t)
	conn, client := env.Connected(t, "spark-1")

	stale := hosttestClient("spark-1.lan")
	assert.False(t, env.Registry.MarkFailed(conn.ID, stale, errors.New("old news")))
	assert.Equal(t, models.StatusOnline, env.Registry.Status(conn.ID).Status)

	assert.True(t, env.Registry.MarkFailed(conn.ID, client, errors.New("gone")))
	assert.Equal(t, models.StatusError, env.Registry.Status(conn.ID).Status)
}

func TestRegistry_ExecBorrowsSession(t *testing.T) {
	env := hosttest.NewEnv(t)
	conn, client := env.Connected(t, "spark-1")
	client.SetCommandResponse("hostname", cannedOutput("spark-1\n"))

	stdout, _, code, err := env.Registry.Exec(context.Background(), conn.ID, "hostname")
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "spark-1\n", string(stdout))

	require.NoError(t, env.Registry.Disconnect(context.Background(), conn.ID))
	_, _, _, err = env.Registry.Exec(context.Background(), conn.ID, "hostname")
	assert.ErrorIs(t, err, host.ErrNotConnected)
}

func TestRegistry_ExecOnDeadLinkMarksError(t *testing.T) {
	env := hosttest.NewEnv(t)
	conn, client := env.Connected(t, "spark-1")
	client.SetProbeError(errors.New("connection reset"))
	client.SetCommandResponse("uptime", failure(errors.New("connection reset")))

	_, _, _, err := env.Registry.Exec(context.Background(), conn.ID, "uptime")
	require.Error(t, err)
	assert.Equal(t, models.StatusError, env.Registry.Status(conn.ID).Status)
}

func TestRegistry_Delete(t *testing.T) {
	env := hosttest.NewEnv(t)
	conn, client := env.Connected(t, "spark-1")

	require.NoError(t, env.Registry.Delete(context.Background(), conn.ID, false))
	assert.True(t, client.IsClosed())

	_, err := env.Registry.Get(context.Background(), conn.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, env.Registry.LiveIDs())
}

func TestRegistry_DeleteRefusesHistoryWithoutForce(t *testing.T) {
	env := hosttest.NewEnv(t)
	conn, _ := env.AddConnection(t, "spark-1")
	ctx := context.Background()
	require.NoError(t, env.Store.Operations.Create(ctx, &models.Operation{
		ConnectionID: conn.ID,
		Name:         "webui",
		Type:         models.OpServer,
		Category:     models.CategoryWebUI,
		Status:       models.OpPending,
		Command:      "python app.py",
	}))

	err := env.Registry.Delete(ctx, conn.ID, false)
	require.Error(t, err)
	assert.True(t, dgxerrors.IsCode(err, dgxerrors.ErrState))

	require.NoError(t, env.Registry.Delete(ctx, conn.ID, true))
	n, err := env.Store.Operations.CountByConnection(ctx, conn.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRegistry_UpdateAndResolve(t *testing.T) {
	env := hosttest.NewEnv(t)
	conn, _ := env.AddConnection(t, "spark-1")
	ctx := context.Background()

	updated, err := env.Registry.Update(ctx, conn.ID, models.ConnectionInput{
		Name:     "spark-main",
		Hostname: "10.0.0.5",
		Username: "nvidia",
		Port:     2222,
	})
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5:2222", updated.Address())

	byName, err := env.Registry.Resolve(ctx, "spark-main")
	require.NoError(t, err)
	assert.Equal(t, conn.ID, byName.ID)

	byID, err := env.Registry.Resolve(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, "spark-main", byID.Name)
}

func TestRegistry_ResolveSuggestsNames(t *testing.T) {
	env := hosttest.NewEnv(t)
	env.AddConnection(t, "spark-1")
	env.AddConnection(t, "spark-2")
	ctx := context.Background()

	_, err := env.Registry.Resolve(ctx, "sprak-1")
	require.Error(t, err)
	assert.True(t, dgxerrors.IsCode(err, dgxerrors.ErrNotFound))
	assert.ErrorIs(t, err, store.ErrNotFound)

	var de *dgxerrors.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "Did you mean: spark-1?", de.Suggestion)

	_, err = env.Registry.Resolve(ctx, "nothing-like-it")
	require.ErrorAs(t, err, &de)
	assert.Contains(t, de.Suggestion, "dgxops connection list")
}

func TestRegistry_CloseKeepsActiveFlag(t *testing.T) {
	env := hosttest.NewEnv(t)
	conn, client := env.Connected(t, "spark-1")

	env.Registry.Close()

	assert.True(t, client.IsClosed())
	got, err := env.Store.Connections.Get(context.Background(), conn.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)

	_, err = env.Registry.Connect(context.Background(), conn.ID)
	assert.True(t, dgxerrors.IsCode(err, dgxerrors.ErrState))
}

func statusesOf(evs []events.Event) []string {
	out := make([]string, len(evs))
	for i, e := range evs {
		out[i] = e.Status
	}
	return out
}

func receive(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for task")
		return ""
	}
}
