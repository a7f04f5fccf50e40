package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
)

// SpinnerState is where a spinner is in its life.
type SpinnerState int

const (
	SpinnerPending SpinnerState = iota
	SpinnerRunning
	SpinnerSuccess
	SpinnerFailed
)

// spinnerKind supplies the frames and rate. It's the same set the
// dashboard uses, drawn here without a bubbletea program.
var spinnerKind = spinner.MiniDot

// Spinner animates "⠋ label..." on one line while a connect or
// disconnect runs, then replaces it with the outcome and elapsed time.
type Spinner struct {
	w io.Writer

	mu      sync.Mutex
	label   string
	state   SpinnerState
	started time.Time
	drawn   int // width of the line on screen
	stop    chan struct{}
	wg      sync.WaitGroup
}

func NewSpinner(w io.Writer, label string) *Spinner {
	return &Spinner{w: w, label: label}
}

// Start begins animating. A second call does nothing.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SpinnerRunning {
		return
	}
	s.state = SpinnerRunning
	s.started = time.Now()
	s.stop = make(chan struct{})
	s.redraw(0)

	s.wg.Add(1)
	go s.tick()
}

func (s *Spinner) Success() { s.finish(SpinnerSuccess) }
func (s *Spinner) Fail()    { s.finish(SpinnerFailed) }

func (s *Spinner) State() SpinnerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetLabel changes the label from the next frame on.
func (s *Spinner) SetLabel(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.label = label
}

func (s *Spinner) tick() {
	defer s.wg.Done()
	t := time.NewTicker(spinnerKind.FPS)
	defer t.Stop()
	for frame := 1; ; frame++ {
		select {
		case <-s.stop:
			return
		case <-t.C:
			s.mu.Lock()
			s.redraw(frame % len(spinnerKind.Frames))
			s.mu.Unlock()
		}
	}
}

func (s *Spinner) finish(state SpinnerState) {
	s.mu.Lock()
	if s.state == SpinnerRunning {
		close(s.stop)
		s.mu.Unlock()
		s.wg.Wait()
		s.mu.Lock()
	}
	defer s.mu.Unlock()

	var took time.Duration
	if !s.started.IsZero() {
		took = time.Since(s.started)
	}
	s.state = state

	mark := SuccessStyle().Render(SymbolSuccess)
	if state == SpinnerFailed {
		mark = ErrorStyle().Render(SymbolFail)
	}
	s.erase()
	fmt.Fprintf(s.w, "%s %s %s\n", mark, s.label, MutedStyle().Render(elapsedLabel(took)))
}

// redraw replaces the current line. Callers hold s.mu.
func (s *Spinner) redraw(frame int) {
	line := lipgloss.NewStyle().Foreground(ColorSecondary).Render(spinnerKind.Frames[frame]) +
		" " + s.label + "..."
	s.erase()
	fmt.Fprint(s.w, line)
	s.drawn = lipgloss.Width(line)
}

func (s *Spinner) erase() {
	if s.drawn > 0 {
		fmt.Fprint(s.w, "\r"+strings.Repeat(" ", s.drawn)+"\r")
		s.drawn = 0
	}
}

// elapsedLabel keeps sub-100ms timings readable: "0.04s", "1.2s".
func elapsedLabel(d time.Duration) string {
	if secs := d.Seconds(); secs < 0.1 {
		return fmt.Sprintf("%.2fs", secs)
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
