package monitor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rileyhilliard/dgxops/internal/events"
	hosttest "github.com/rileyhilliard/dgxops/internal/host/testing"
	"github.com/rileyhilliard/dgxops/internal/models"
	sshtest "github.com/rileyhilliard/dgxops/pkg/sshutil/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeHost produces metrics command output with counters the test controls.
type fakeHost struct {
	mu  sync.Mutex
	rx  uint64
	tx  uint64
	gpu string
}

func (h *fakeHost) set(rx, tx uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rx, h.tx = rx, tx
}

func (h *fakeHost) respond(string) sshtest.CommandResponse {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := "MemTotal: 131072000 kB\nMemFree: 60000000 kB\nMemAvailable: 100000000 kB\nBuffers: 0 kB\nCached: 0 kB\n" +
		"---\n" +
		"Inter-|   Receive |  Transmit\n" +
		" face |bytes packets|bytes packets\n" +
		"    lo: 5 1 0 0 0 0 0 0 5 1 0 0 0 0 0 0\n" +
		fmt.Sprintf("enP7s7: %d %d 0 0 0 0 0 0 %d %d 0 0 0 0 0 0\n", h.rx, h.rx/100, h.tx, h.tx/100) +
		"---\n" + h.gpu
	return sshtest.CommandResponse{Stdout: []byte(out)}
}

type collectorFixture struct {
	env       *hosttest.Env
	conn      *models.Connection
	client    *sshtest.MockClient
	host      *fakeHost
	clock     *fakeClock
	collector *Collector
}

func newCollectorFixture(t *testing.T, opts Options) *collectorFixture {
	t.Helper()
	env := hosttest.NewEnv(t)
	conn, client := env.Connected(t, "spark-1")

	fh := &fakeHost{rx: 1_000_000, tx: 500_000, gpu: "NVIDIA GB10, 37, [N/A], [N/A], 51, 22.5, [N/A]\n"}
	client.SetHandler(`cat /proc/meminfo`, fh.respond)

	if opts.Logger == nil {
		opts.Logger = env.Log
	}
	if opts.Events == nil {
		opts.Events = env.Events
	}
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := NewCollector(env.Registry, opts)
	c.now = clock.Now

	return &collectorFixture{env: env, conn: conn, client: client, host: fh, clock: clock, collector: c}
}

func (f *collectorFixture) sample(t *testing.T) *models.Sample {
	t.Helper()
	s, err := f.collector.Sample(context.Background(), f.conn.ID)
	require.NoError(t, err)
	f.clock.Advance(2 * time.Second)
	return s
}

func TestSample_UnifiedMemoryMirrorsSystemRAM(t *testing.T) {
	f := newCollectorFixture(t, Options{})

	s := f.sample(t)
	assert.Equal(t, "NVIDIA GB10", s.GPUName)
	assert.Equal(t, 1, s.GPUCount)
	assert.Equal(t, 37.0, s.GPUUtilization)
	assert.Equal(t, 51, s.TemperatureC)
	assert.Equal(t, 22.5, s.PowerDrawW)
	assert.Equal(t, int64(128000), s.SystemMemTotalMB)
	assert.Equal(t, s.SystemMemUsedMB, s.MemoryUsedMB)
	assert.Equal(t, s.SystemMemTotalMB, s.MemoryTotalMB)
	assert.Equal(t, "enP7s7", s.Interface)
	assert.Len(t, f.env.Events.OfType(events.MetricsSample), 1)
}

func TestSample_DiscreteGPUAndNoGPU(t *testing.T) {
	f := newCollectorFixture(t, Options{})

	f.host.gpu = "NVIDIA A100, 90, 30000, 40960, 70, 300, 400\n"
	s := f.sample(t)
	assert.Equal(t, int64(30000), s.MemoryUsedMB)
	assert.Equal(t, int64(40960), s.MemoryTotalMB)
	assert.Equal(t, 400.0, s.PowerLimitW)

	f.host.gpu = ""
	s = f.sample(t)
	assert.Equal(t, 0, s.GPUCount)
	assert.Equal(t, int64(0), s.MemoryTotalMB)
	assert.NotZero(t, s.SystemMemTotalMB)
}

func TestSample_SessionDeltasFromFirstSample(t *testing.T) {
	f := newCollectorFixture(t, Options{})

	first := f.sample(t)
	assert.Equal(t, uint64(1_000_000), first.RxBytes)
	assert.Zero(t, first.SessionRxBytes)

	f.host.set(1_250_000, 600_000)
	s := f.sample(t)
	assert.Equal(t, uint64(250_000), s.SessionRxBytes)
	assert.Equal(t, uint64(100_000), s.SessionTxBytes)
	assert.Equal(t, uint64(2_500), s.SessionRxPackets)
}

func TestSample_RebootRebaselinesToZero(t *testing.T) {
	f := newCollectorFixture(t, Options{})

	f.sample(t)
	f.host.set(3_000_000, 900_000)
	f.sample(t)

	// counters restart after a reboot
	f.host.set(10_000, 5_000)
	s := f.sample(t)
	assert.Zero(t, s.SessionRxBytes)
	assert.Zero(t, s.SessionTxBytes)
	assert.True(t, f.env.Log.Contains("re-baselined"))

	f.host.set(30_000, 6_000)
	s = f.sample(t)
	assert.Equal(t, uint64(20_000), s.SessionRxBytes)
	assert.Equal(t, uint64(1_000), s.SessionTxBytes)
}

func TestSample_SoftFailureKeepsHistory(t *testing.T) {
	f := newCollectorFixture(t, Options{})

	good := f.sample(t)
	f.sample(t)

	f.client.SetHandler(`cat /proc/meminfo`, func(string) sshtest.CommandResponse {
		return sshtest.CommandResponse{Stdout: []byte("garbage"), ExitCode: 0}
	})
	_, err := f.collector.Sample(context.Background(), f.conn.ID)
	require.Error(t, err)

	snap := f.collector.Current(f.conn.ID)
	assert.Contains(t, snap.Error, "parse metrics")
	require.NotNil(t, snap.Sample)
	assert.Equal(t, 2, f.collector.history.Count(f.conn.ID))
	assert.NotEqual(t, good, snap.Sample)

	f.client.SetHandler(`cat /proc/meminfo`, f.host.respond)
	f.sample(t)
	snap = f.collector.Current(f.conn.ID)
	assert.Empty(t, snap.Error)
	assert.Equal(t, 3, f.collector.history.Count(f.conn.ID))
}

func TestSample_NonZeroExitIsSoftFailure(t *testing.T) {
	f := newCollectorFixture(t, Options{})
	f.client.SetCommandResponse(`cat /proc/meminfo`, sshtest.CommandResponse{Stderr: []byte("cat: permission denied"), ExitCode: 1})

	_, err := f.collector.Sample(context.Background(), f.conn.ID)
	require.Error(t, err)

	snap := f.collector.Current(f.conn.ID)
	assert.Contains(t, snap.Error, "exited with code 1")
	assert.Nil(t, snap.Sample)
}

func TestSample_NotConnected(t *testing.T) {
	f := newCollectorFixture(t, Options{})
	require.NoError(t, f.env.Registry.Disconnect(context.Background(), f.conn.ID))

	_, err := f.collector.Sample(context.Background(), f.conn.ID)
	require.Error(t, err)
	assert.Contains(t, f.collector.Current(f.conn.ID).Error, "not connected")
}

func TestPersistEveryNth(t *testing.T) {
	f := newCollectorFixture(t, Options{PersistEvery: 2})
	f.collector.opts.Samples = f.env.Store.Metrics

	for i := 0; i < 5; i++ {
		f.sample(t)
	}

	stored, err := f.env.Store.Metrics.Since(context.Background(), f.conn.ID, time.Time{})
	require.NoError(t, err)
	assert.Len(t, stored, 3)
}

func TestHistory_MergesPersistedAndRecent(t *testing.T) {
	f := newCollectorFixture(t, Options{PersistEvery: 3, HistorySize: 4})
	f.collector.opts.Samples = f.env.Store.Metrics
	ctx := context.Background()

	old := &models.Sample{
		ConnectionID:   f.conn.ID,
		Timestamp:      f.clock.Now().Add(-30 * time.Minute),
		GPUUtilization: 99,
	}
	require.NoError(t, f.env.Store.Metrics.Insert(ctx, old))

	for i := 0; i < 6; i++ {
		f.sample(t)
	}

	// memory holds the last 4, the store holds #1 and #4 plus the old one
	all, err := f.collector.History(ctx, f.conn.ID, 1)
	require.NoError(t, err)
	assert.Len(t, all, 6)
	for i := 1; i < len(all); i++ {
		assert.True(t, all[i-1].Timestamp.Before(all[i].Timestamp), "sorted and deduplicated")
	}
	assert.Equal(t, 99.0, all[0].GPUUtilization)

	recent, err := f.collector.History(ctx, f.conn.ID, 0.1)
	require.NoError(t, err)
	assert.Len(t, recent, 5)

	live, err := f.collector.History(ctx, f.conn.ID, 0)
	require.NoError(t, err)
	assert.Len(t, live, 4)
}

func TestPrune(t *testing.T) {
	f := newCollectorFixture(t, Options{Retention: time.Hour})
	f.collector.opts.Samples = f.env.Store.Metrics
	ctx := context.Background()

	for _, age := range []time.Duration{3 * time.Hour, 2 * time.Hour, 10 * time.Minute} {
		require.NoError(t, f.env.Store.Metrics.Insert(ctx, &models.Sample{
			ConnectionID: f.conn.ID,
			Timestamp:    f.clock.Now().Add(-age),
		}))
	}

	n, err := f.collector.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestRun_SamplesWhileConnectedAndStopsOnDisconnect(t *testing.T) {
	env := hosttest.NewEnv(t)
	var calls int32
	c := NewCollector(env.Registry, Options{Interval: 5 * time.Millisecond})
	c.Attach(env.Registry)

	conn, client := env.AddConnection(t, "spark-2")
	fh := &fakeHost{rx: 1, tx: 1}
	client.SetHandler(`cat /proc/meminfo`, func(cmd string) sshtest.CommandResponse {
		atomic.AddInt32(&calls, 1)
		return fh.respond(cmd)
	})

	_, err := env.Registry.Connect(context.Background(), conn.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return c.history.Count(conn.ID) >= 3 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, env.Registry.Disconnect(context.Background(), conn.ID))
	time.Sleep(20 * time.Millisecond)
	after := atomic.LoadInt32(&calls)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, atomic.LoadInt32(&calls), "sampling stops with the session")
	assert.NotNil(t, c.Current(conn.ID).Sample, "history survives the disconnect")
}
