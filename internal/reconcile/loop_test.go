package reconcile

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	hosttest "github.com/rileyhilliard/dgxops/internal/host/testing"
	"github.com/rileyhilliard/dgxops/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProber struct {
	calls  int32
	failAt int32
}

func (p *countingProber) Probe(ctx context.Context, id string) (time.Duration, error) {
	n := atomic.AddInt32(&p.calls, 1)
	if p.failAt > 0 && n >= p.failAt {
		return 0, errors.New("broken pipe")
	}
	return time.Millisecond, nil
}

func TestLoop_StopsOnFirstFailedProbe(t *testing.T) {
	p := &countingProber{failAt: 3}
	l := NewLoop(p, LoopConfig{Interval: 5 * time.Millisecond})

	done := make(chan struct{})
	go func() {
		l.Run(context.Background(), &models.Connection{ID: "c1", Name: "spark-1"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop kept running after a failed probe")
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&p.calls))
}

func TestLoop_StopsOnCancel(t *testing.T) {
	p := &countingProber{}
	l := NewLoop(p, LoopConfig{Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx, &models.Connection{ID: "c1", Name: "spark-1"})
		close(done)
	}()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&p.calls) > 0 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop ignored cancellation")
	}
}

func TestLoop_DeadLinkGoesToErrorWithoutReconnect(t *testing.T) {
	env := hosttest.NewEnv(t)
	NewLoop(env.Registry, LoopConfig{Interval: 10 * time.Millisecond, Logger: env.Log}).Attach(env.Registry)

	conn, client := env.Connected(t, "spark-1")
	require.Equal(t, models.StatusOnline, env.Registry.Status(conn.ID).Status)

	client.SetProbeError(errors.New("write: broken pipe"))

	require.Eventually(t, func() bool {
		return env.Registry.Status(conn.ID).Status == models.StatusError
	}, 2*time.Second, 5*time.Millisecond)

	// no automatic reconnect
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, models.StatusError, env.Registry.Status(conn.ID).Status)
	assert.Equal(t, 1, env.Dialer.Dials("spark-1.lan"))
	assert.True(t, client.IsClosed())
	assert.True(t, env.Log.Contains("liveness probe"))
}

func TestLoop_EndsWithDisconnect(t *testing.T) {
	env := hosttest.NewEnv(t)
	p := &countingProber{}
	NewLoop(p, LoopConfig{Interval: 5 * time.Millisecond}).Attach(env.Registry)

	conn, _ := env.Connected(t, "spark-1")
	require.Eventually(t, func() bool { return atomic.LoadInt32(&p.calls) > 0 }, time.Second, time.Millisecond)

	require.NoError(t, env.Registry.Disconnect(context.Background(), conn.ID))
	time.Sleep(20 * time.Millisecond)
	after := atomic.LoadInt32(&p.calls)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, atomic.LoadInt32(&p.calls), "no probes after disconnect")
}
