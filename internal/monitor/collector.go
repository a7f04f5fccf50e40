package monitor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rileyhilliard/dgxops/internal/config"
	"github.com/rileyhilliard/dgxops/internal/errors"
	"github.com/rileyhilliard/dgxops/internal/events"
	"github.com/rileyhilliard/dgxops/internal/host"
	"github.com/rileyhilliard/dgxops/internal/logger"
	"github.com/rileyhilliard/dgxops/internal/models"
	"github.com/rileyhilliard/dgxops/internal/monitor/parsers"
	"github.com/rileyhilliard/dgxops/internal/store"
)

const (
	// DefaultInterval is the time between samples of one connection.
	DefaultInterval = 2 * time.Second

	pruneEvery = time.Hour
	mib        = 1024 * 1024
)

// Remote runs one command on a connection's live session.
type Remote interface {
	Exec(ctx context.Context, id, cmd string) (stdout, stderr []byte, exitCode int, err error)
}

// Options configures a Collector.
type Options struct {
	Interval    time.Duration
	HistorySize int

	// PersistEvery writes every Nth good sample to Samples. 0 keeps
	// everything in memory.
	PersistEvery int
	Retention    time.Duration

	// Interface pins the network interface to report.
	Interface string

	Samples store.MetricsRepository
	Logger  logger.Logger
	Events  events.Publisher
}

// OptionsFromConfig maps the metrics section of the config file onto Options.
func OptionsFromConfig(c config.MetricsConfig) Options {
	return Options{
		Interval:     c.Interval,
		HistorySize:  c.HistorySize,
		PersistEvery: c.PersistEvery,
		Retention:    c.Retention,
		Interface:    c.Interface,
	}
}

// connState is what the collector tracks per connection between samples.
type connState struct {
	baseline  *Baseline
	good      int
	lastErr   string
	lastErrAt time.Time
}

// Collector samples telemetry from connected hosts.
type Collector struct {
	remote  Remote
	opts    Options
	log     logger.Logger
	events  events.Publisher
	history *History
	now     func() time.Time

	mu        sync.Mutex
	conns     map[string]*connState
	lastPrune time.Time
}

// NewCollector creates a collector reaching hosts through remote.
func NewCollector(remote Remote, opts Options) *Collector {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = DefaultHistorySize
	}
	if opts.Logger == nil {
		opts.Logger = logger.Noop()
	}
	if opts.Events == nil {
		opts.Events = events.Noop()
	}
	return &Collector{
		remote:  remote,
		opts:    opts,
		log:     opts.Logger,
		events:  opts.Events,
		history: NewHistory(opts.HistorySize),
		now:     func() time.Time { return time.Now().UTC() },
		conns:   make(map[string]*connState),
	}
}

// Attach samples every connection the registry brings online.
func (c *Collector) Attach(r *host.Registry) {
	r.OnConnect(c.Run)
}

// Run samples conn every interval until ctx ends. A new run starts a new
// session: the next good sample becomes the baseline. History is kept.
func (c *Collector) Run(ctx context.Context, conn *models.Connection) {
	c.mu.Lock()
	c.conns[conn.ID] = &connState{}
	c.mu.Unlock()

	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()

	for {
		if _, err := c.Sample(ctx, conn.ID); err != nil && ctx.Err() == nil {
			c.log.Debug("sample of %s failed: %s", conn.Name, errors.Summary(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sample takes one reading from id. Failures are recorded against the
// connection and returned; they never touch its history.
func (c *Collector) Sample(ctx context.Context, id string) (*models.Sample, error) {
	stdout, stderr, code, err := c.remote.Exec(ctx, id, BuildMetricsCommand())
	if err == nil && code != 0 {
		err = errors.New(errors.ErrExec,
			fmt.Sprintf("Metrics command exited with code %d", code),
			strings.TrimSpace(string(stderr)))
	}
	if err != nil {
		c.fail(id, err)
		return nil, err
	}

	s, err := c.build(id, string(stdout))
	if err != nil {
		err = errors.WrapWithCode(err, errors.ErrExec, "Couldn't parse metrics output", "")
		c.fail(id, err)
		return nil, err
	}

	c.history.Push(s)
	if c.shouldPersist(id) {
		c.persist(ctx, s)
	}
	c.events.Publish(ctx, events.Event{
		Type:         events.MetricsSample,
		ConnectionID: id,
		Status:       "ok",
		Data:         s,
		Time:         s.Timestamp,
	})
	return s, nil
}

// build parses command output into a sample and applies the session
// baseline.
func (c *Collector) build(id, output string) (*models.Sample, error) {
	sections := splitSections(output)

	mem, err := parsers.ParseLinuxMemory(sections[sectionMeminfo])
	if err != nil {
		return nil, err
	}
	gpu, err := parsers.ParseNvidiaSMI(sections[sectionGPU])
	if err != nil {
		return nil, err
	}
	ifaces, err := parsers.ParseLinuxNetwork(sections[sectionNetDev])
	if err != nil {
		return nil, err
	}

	s := &models.Sample{
		ConnectionID:     id,
		Timestamp:        c.now().Truncate(time.Millisecond),
		SystemMemUsedMB:  mem.UsedBytes / mib,
		SystemMemTotalMB: mem.TotalBytes / mib,
	}

	if gpu != nil {
		s.GPUName = gpu.Name
		s.GPUCount = gpu.Count
		s.GPUUtilization = gpu.Percent
		s.TemperatureC = gpu.Temperature
		s.PowerDrawW = gpu.PowerWatts
		s.PowerLimitW = gpu.PowerLimitWatts
		if gpu.Unified {
			s.MemoryUsedMB = s.SystemMemUsedMB
			s.MemoryTotalMB = s.SystemMemTotalMB
		} else {
			s.MemoryUsedMB = gpu.MemoryUsedMB
			s.MemoryTotalMB = gpu.MemoryTotalMB
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.state(id)
	st.good++
	st.lastErr = ""
	st.lastErrAt = time.Time{}

	preferred := c.opts.Interface
	if preferred == "" && st.baseline != nil {
		preferred = st.baseline.Interface
	}
	iface, ok := parsers.PickInterface(ifaces, preferred)
	if !ok {
		return s, nil
	}

	s.Interface = iface.Name
	s.RxBytes = iface.BytesIn
	s.TxBytes = iface.BytesOut
	s.RxPackets = iface.PacketsIn
	s.TxPackets = iface.PacketsOut

	if st.baseline == nil {
		st.baseline = NewBaseline(iface)
		return s, nil
	}
	d, reset := st.baseline.Delta(iface)
	if reset {
		c.log.Info("network counters on %s/%s went backwards, re-baselined", id, iface.Name)
	}
	s.SessionRxBytes = d.RxBytes
	s.SessionTxBytes = d.TxBytes
	s.SessionRxPackets = d.RxPackets
	s.SessionTxPackets = d.TxPackets
	return s, nil
}

// state returns id's state. Callers hold c.mu.
func (c *Collector) state(id string) *connState {
	st, ok := c.conns[id]
	if !ok {
		st = &connState{}
		c.conns[id] = st
	}
	return st
}

func (c *Collector) fail(id string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.state(id)
	st.lastErr = errors.Summary(err)
	st.lastErrAt = c.now()
}

// shouldPersist is true for the first good sample of a session and every
// PersistEvery-th one after it.
func (c *Collector) shouldPersist(id string) bool {
	if c.opts.Samples == nil || c.opts.PersistEvery <= 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return (c.state(id).good-1)%c.opts.PersistEvery == 0
}

func (c *Collector) persist(ctx context.Context, s *models.Sample) {
	if err := c.opts.Samples.Insert(ctx, s); err != nil {
		c.log.Error("failed to store metrics sample for %s: %s", s.ConnectionID, errors.Summary(err))
		return
	}

	c.mu.Lock()
	due := c.opts.Retention > 0 && c.now().Sub(c.lastPrune) >= pruneEvery
	if due {
		c.lastPrune = c.now()
	}
	c.mu.Unlock()

	if due {
		if _, err := c.Prune(ctx); err != nil {
			c.log.Error("failed to prune metrics: %s", errors.Summary(err))
		}
	}
}

// Prune deletes persisted samples older than the retention window.
func (c *Collector) Prune(ctx context.Context) (int64, error) {
	if c.opts.Samples == nil || c.opts.Retention <= 0 {
		return 0, nil
	}
	n, err := c.opts.Samples.Prune(ctx, c.now().Add(-c.opts.Retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		c.log.Debug("pruned %d metric samples older than %s", n, c.opts.Retention)
	}
	return n, nil
}

// Current returns the latest good sample for id along with the error of
// the most recent attempt, if that attempt failed.
func (c *Collector) Current(id string) models.MetricsSnapshot {
	snap := models.MetricsSnapshot{
		ConnectionID: id,
		Sample:       c.history.Latest(id),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.conns[id]; ok && st.lastErr != "" {
		snap.Error = st.lastErr
		snap.ErrorAt = st.lastErrAt
	}
	return snap
}

// History returns id's samples from the last windowHours, oldest first.
// Persisted samples are merged with the in-memory window; windowHours <= 0
// returns the in-memory window only.
func (c *Collector) History(ctx context.Context, id string, windowHours float64) ([]*models.Sample, error) {
	if windowHours <= 0 {
		return c.history.All(id), nil
	}

	since := c.now().Add(-time.Duration(windowHours * float64(time.Hour)))
	recent := c.history.Since(id, since)
	if c.opts.Samples == nil {
		return recent, nil
	}

	stored, err := c.opts.Samples.Since(ctx, id, since)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]bool, len(stored))
	out := make([]*models.Sample, 0, len(stored)+len(recent))
	for _, s := range stored {
		seen[s.Timestamp.UnixMilli()] = true
		out = append(out, s)
	}
	for _, s := range recent {
		if !seen[s.Timestamp.UnixMilli()] {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}
