// Package watch is the live terminal dashboard behind `dgxops watch`. It
// polls the daemon for connection status, GPU telemetry and operations and
// renders one card per connection.
package watch

import (
	"context"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/rileyhilliard/dgxops/internal/models"
)

// Width breakpoints for the card grid.
const (
	BreakpointCompact  = 80
	BreakpointStandard = 120
	BreakpointWide     = 160
)

// DefaultInterval is how often the dashboard polls the daemon.
const DefaultInterval = 2 * time.Second

// historyLen is the number of samples kept per connection for sparklines.
const historyLen = 120

const (
	pollTimeout   = 10 * time.Second
	actionTimeout = 2 * time.Minute
)

// Model is the Bubble Tea model for the dashboard.
type Model struct {
	src      Source
	interval time.Duration

	conns   []*models.Connection
	metrics map[string]*models.MetricsSnapshot
	ops     map[string]*models.OperationGroups
	errors  map[string]string
	gpuHist map[string][]float64
	memHist map[string][]float64
	lastTS  map[string]time.Time
	pending map[string]bool

	selected   int
	sortOrder  SortOrder
	viewMode   ViewMode
	showHelp   bool
	quitting   bool
	width      int
	height     int
	lastUpdate time.Time
	pollErr    string
	notice     string

	spinner spinner.Model
	detail  viewport.Model
}

type tickMsg time.Time

type frameMsg struct {
	frame *Frame
	err   error
}

type actionMsg struct {
	id      string
	connect bool
	err     error
}

// NewModel builds a dashboard polling src every interval.
func NewModel(src Source, interval time.Duration) Model {
	if interval <= 0 {
		interval = DefaultInterval
	}
	sp := spinner.New(spinner.WithSpinner(spinner.Spinner{
		Frames: ConnectingFrames,
		FPS:    150 * time.Millisecond,
	}))
	return Model{
		src:      src,
		interval: interval,
		metrics:  make(map[string]*models.MetricsSnapshot),
		ops:      make(map[string]*models.OperationGroups),
		errors:   make(map[string]string),
		gpuHist:  make(map[string][]float64),
		memHist:  make(map[string][]float64),
		lastTS:   make(map[string]time.Time),
		pending:  make(map[string]bool),
		spinner:  sp,
		detail:   viewport.New(0, 0),
	}
}

// Run starts the dashboard in the alternate screen and blocks until the
// user quits or ctx is cancelled.
func Run(ctx context.Context, src Source, interval time.Duration) error {
	p := tea.NewProgram(NewModel(src, interval), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.pollCmd(), m.tickCmd(), m.spinner.Tick)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if handled, cmd := m.HandleKeyMsg(msg); handled {
			return m, cmd
		}
		if m.viewMode == ViewDetail {
			var cmd tea.Cmd
			m.detail, cmd = m.detail.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.detail.Width = msg.Width
		m.detail.Height = max(msg.Height-4, 1)
		m.refreshDetail()

	case tickMsg:
		return m, tea.Batch(m.tickCmd(), m.pollCmd())

	case frameMsg:
		if msg.err != nil {
			m.pollErr = msg.err.Error()
			return m, nil
		}
		m.pollErr = ""
		m.applyFrame(msg.frame)

	case actionMsg:
		delete(m.pending, msg.id)
		verb := "disconnect"
		if msg.connect {
			verb = "connect"
		}
		if msg.err != nil {
			m.notice = verb + " failed: " + msg.err.Error()
		} else {
			m.notice = ""
		}
		return m, m.pollCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.renderDashboard()
}

// Selected returns the highlighted connection, or nil.
func (m Model) Selected() *models.Connection {
	if m.selected < 0 || m.selected >= len(m.conns) {
		return nil
	}
	return m.conns[m.selected]
}

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) pollCmd() tea.Cmd {
	src := m.src
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), pollTimeout)
		defer cancel()
		f, err := Poll(ctx, src)
		return frameMsg{frame: f, err: err}
	}
}

func (m Model) actionCmd(id string, connect bool) tea.Cmd {
	src := m.src
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		var err error
		if connect {
			_, err = src.Connect(ctx, id)
		} else {
			_, err = src.Disconnect(ctx, id)
		}
		return actionMsg{id: id, connect: connect, err: err}
	}
}

// applyFrame replaces the dashboard state with f, keeping the selection on
// the same connection when it still exists.
func (m *Model) applyFrame(f *Frame) {
	var keep string
	if c := m.Selected(); c != nil {
		keep = c.ID
	}

	m.conns = f.Connections
	m.metrics = f.Metrics
	m.ops = f.Operations
	m.errors = f.Errors
	m.lastUpdate = f.At

	for id, snap := range f.Metrics {
		if snap.Sample == nil || !snap.Sample.Timestamp.After(m.lastTS[id]) {
			continue
		}
		m.lastTS[id] = snap.Sample.Timestamp
		m.gpuHist[id] = pushHistory(m.gpuHist[id], snap.Sample.GPUUtilization)
		m.memHist[id] = pushHistory(m.memHist[id], snap.Sample.MemoryPercent())
	}

	m.sortConnections()
	m.selected = 0
	for i, c := range m.conns {
		if c.ID == keep {
			m.selected = i
			break
		}
	}
	m.refreshDetail()
}

func pushHistory(h []float64, v float64) []float64 {
	h = append(h, v)
	if len(h) > historyLen {
		h = h[len(h)-historyLen:]
	}
	return h
}

// sortConnections orders m.conns by the current sort order, falling back to
// name so the order is stable between polls.
func (m *Model) sortConnections() {
	var keep string
	if c := m.Selected(); c != nil {
		keep = c.ID
	}

	sample := func(id string) *models.Sample {
		if s, ok := m.metrics[id]; ok {
			return s.Sample
		}
		return nil
	}
	val := func(id string) float64 {
		s := sample(id)
		if s == nil {
			return -1
		}
		switch m.sortOrder {
		case SortByGPU:
			return s.GPUUtilization
		case SortByMemory:
			return s.MemoryPercent()
		case SortByTemp:
			return float64(s.TemperatureC)
		}
		return 0
	}

	sort.SliceStable(m.conns, func(i, j int) bool {
		a, b := m.conns[i], m.conns[j]
		switch m.sortOrder {
		case SortByDefault:
			ao, bo := a.Status == models.StatusOnline, b.Status == models.StatusOnline
			if ao != bo {
				return ao
			}
		case SortByGPU, SortByMemory, SortByTemp:
			if va, vb := val(a.ID), val(b.ID); va != vb {
				return va > vb
			}
		}
		return a.Name < b.Name
	})

	for i, c := range m.conns {
		if c.ID == keep {
			m.selected = i
			return
		}
	}
}

func (m *Model) refreshDetail() {
	if m.viewMode != ViewDetail {
		return
	}
	m.detail.SetContent(m.renderDetailContent())
}
