package ui

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// HostChoice is one ~/.ssh/config entry offered for import.
type HostChoice struct {
	Alias  string
	Detail string // user@host:port, shown under the alias
}

type hostItem struct {
	HostChoice
	marked bool
}

func (i hostItem) Title() string {
	box := "[ ] "
	if i.marked {
		box = "[" + SymbolSuccess + "] "
	}
	return box + i.Alias
}

func (i hostItem) Description() string { return "    " + i.Detail }
func (i hostItem) FilterValue() string { return i.Alias + " " + i.Detail }

var hostPickerKeys = struct {
	Toggle, Confirm, Cancel key.Binding
}{
	Toggle:  key.NewBinding(key.WithKeys(" ", "x"), key.WithHelp("space", "mark")),
	Confirm: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "import")),
	Cancel:  key.NewBinding(key.WithKeys("esc", "ctrl+c", "q"), key.WithHelp("esc", "cancel")),
}

// HostPicker is a Bubble Tea model for marking SSH hosts to import.
// Enter with nothing marked imports the highlighted host.
type HostPicker struct {
	list      list.Model
	confirmed bool
	done      bool
}

// NewHostPicker builds a picker over choices.
func NewHostPicker(choices []HostChoice) HostPicker {
	items := make([]list.Item, len(choices))
	for i, c := range choices {
		items[i] = hostItem{HostChoice: c}
	}

	d := list.NewDefaultDelegate()
	d.Styles.SelectedTitle = d.Styles.SelectedTitle.Foreground(ColorPrimary).BorderForeground(ColorSecondary)
	d.Styles.SelectedDesc = d.Styles.SelectedDesc.Foreground(ColorMuted)

	l := list.New(items, d, 80, 16)
	l.Title = "Import hosts from ~/.ssh/config"
	l.Styles.Title = lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)
	l.AdditionalShortHelpKeys = func() []key.Binding {
		return []key.Binding{hostPickerKeys.Toggle, hostPickerKeys.Confirm}
	}
	return HostPicker{list: l}
}

// Init implements tea.Model.
func (m HostPicker) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (m HostPicker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height-1)
	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch {
		case key.Matches(msg, hostPickerKeys.Toggle):
			if it, ok := m.list.SelectedItem().(hostItem); ok {
				it.marked = !it.marked
				m.list.SetItem(m.list.GlobalIndex(), it)
			}
			return m, nil
		case key.Matches(msg, hostPickerKeys.Confirm):
			m.confirmed, m.done = true, true
			return m, tea.Quit
		case key.Matches(msg, hostPickerKeys.Cancel):
			m.done = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m HostPicker) View() string {
	if m.done {
		return ""
	}
	return m.list.View()
}

// Chosen returns the aliases to import, sorted. It is empty when the
// picker was cancelled.
func (m HostPicker) Chosen() []string {
	if !m.confirmed {
		return nil
	}
	var out []string
	for _, it := range m.list.Items() {
		if h := it.(hostItem); h.marked {
			out = append(out, h.Alias)
		}
	}
	if len(out) == 0 {
		if h, ok := m.list.SelectedItem().(hostItem); ok {
			out = append(out, h.Alias)
		}
	}
	sort.Strings(out)
	return out
}

// PickHosts runs the picker on the terminal.
func PickHosts(choices []HostChoice) ([]string, error) {
	return PickHostsWithIO(choices, os.Stdin, os.Stdout)
}

// PickHostsWithIO runs the picker over in and out.
func PickHostsWithIO(choices []HostChoice, in io.Reader, out io.Writer) ([]string, error) {
	if len(choices) == 0 {
		return nil, nil
	}
	final, err := tea.NewProgram(NewHostPicker(choices), tea.WithInput(in), tea.WithOutput(out)).Run()
	if err != nil {
		return nil, fmt.Errorf("host picker: %w", err)
	}
	return final.(HostPicker).Chosen(), nil
}
