package watch

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// SortOrder is how the dashboard orders hosts.
type SortOrder int

const (
	SortByDefault SortOrder = iota // online first, then name
	SortByName
	SortByGPU
	SortByMemory
	SortByTemp
	sortOrderCount
)

var sortOrderNames = [...]string{"default", "name", "GPU", "memory", "temp"}

func (s SortOrder) String() string {
	if s < 0 || s >= sortOrderCount {
		return sortOrderNames[SortByDefault]
	}
	return sortOrderNames[s]
}

// Next cycles to the next sort order.
func (s SortOrder) Next() SortOrder {
	return (s + 1) % sortOrderCount
}

// ViewMode is the current display mode.
type ViewMode int

const (
	ViewList ViewMode = iota
	ViewDetail
)

// keyMap holds every dashboard binding. Its help text feeds the overlay.
type keyMap struct {
	Quit, Refresh, Sort             key.Binding
	Up, Down, First, Last           key.Binding
	Open, Back, Connect, Disconnect key.Binding
	Help                            key.Binding
}

var keys = keyMap{
	Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q / Ctrl+C", "Quit")),
	Refresh:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "Refresh now")),
	Sort:       key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "Cycle sort order")),
	Up:         key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("up / k", "Select previous host")),
	Down:       key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("down / j", "Select next host")),
	First:      key.NewBinding(key.WithKeys("home"), key.WithHelp("Home", "Select first")),
	Last:       key.NewBinding(key.WithKeys("end"), key.WithHelp("End", "Select last")),
	Open:       key.NewBinding(key.WithKeys("enter"), key.WithHelp("Enter", "Show details and operations")),
	Connect:    key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "Connect selected")),
	Disconnect: key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "Disconnect selected")),
	Back:       key.NewBinding(key.WithKeys("esc"), key.WithHelp("Esc", "Back / close")),
	Help:       key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "Toggle this help")),
}

// helpRows lists the bindings in overlay order.
func (k keyMap) helpRows() []key.Binding {
	return []key.Binding{k.Quit, k.Refresh, k.Sort, k.Up, k.Down, k.First, k.Last,
		k.Open, k.Connect, k.Disconnect, k.Back, k.Help}
}

// HandleKeyMsg processes keyboard input. It returns false for keys it
// doesn't own so the detail viewport can scroll with them.
func (m *Model) HandleKeyMsg(msg tea.KeyMsg) (bool, tea.Cmd) {
	if key.Matches(msg, keys.Help) {
		m.showHelp = !m.showHelp
		return true, nil
	}
	if m.showHelp && key.Matches(msg, keys.Back) {
		m.showHelp = false
		return true, nil
	}

	switch {
	case key.Matches(msg, keys.Quit):
		m.quitting = true
		return true, tea.Quit

	case key.Matches(msg, keys.Refresh):
		return true, m.pollCmd()

	case key.Matches(msg, keys.Sort):
		m.sortOrder = m.sortOrder.Next()
		m.sortConnections()
		return true, nil

	case key.Matches(msg, keys.Connect, keys.Disconnect):
		c := m.Selected()
		if c == nil || m.pending[c.ID] {
			return true, nil
		}
		m.pending[c.ID] = true
		return true, m.actionCmd(c.ID, key.Matches(msg, keys.Connect))

	case key.Matches(msg, keys.Open):
		if m.viewMode == ViewList && len(m.conns) > 0 {
			m.viewMode = ViewDetail
			m.refreshDetail()
			m.detail.GotoTop()
		}
		return true, nil

	case key.Matches(msg, keys.Back):
		m.viewMode = ViewList
		return true, nil
	}

	// The detail view's viewport owns the movement keys.
	if m.viewMode == ViewDetail {
		return false, nil
	}

	last := len(m.conns) - 1
	switch {
	case key.Matches(msg, keys.Up):
		m.selected = max(m.selected-1, 0)
	case key.Matches(msg, keys.Down):
		m.selected = max(min(m.selected+1, last), 0)
	case key.Matches(msg, keys.First):
		m.selected = 0
	case key.Matches(msg, keys.Last):
		m.selected = max(last, 0)
	default:
		return false, nil
	}
	return true, nil
}
