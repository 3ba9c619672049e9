package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// jogStage is what the jog console drives
type jogStage interface {
	Names() []string
	Positions() (map[string]float64, error)
	Jog(name string, forward bool) error
	Stop(name string) error
	Home(ctx context.Context, names ...string) error
}

type posMsg struct {
	pos map[string]float64
	err error
}

type tickMsg time.Time

type doneMsg struct {
	what string
	err  error
}

// jogModel maps keys to single jog steps.  Left and right drive the first
// axis, up and down the second, page up and page down the third.
type jogModel struct {
	stage jogStage
	mu    *sync.Mutex
	names []string
	pos   map[string]float64
	sel   int
	msg   string
	busy  bool
}

func newJogModel(s jogStage) jogModel {
	return jogModel{stage: s, mu: &sync.Mutex{}, names: s.Names()}
}

func (m jogModel) poll() tea.Msg {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.stage.Positions()
	return posMsg{pos: p, err: err}
}

func tick() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m jogModel) do(what string, f func() error) tea.Cmd {
	return func() tea.Msg {
		m.mu.Lock()
		defer m.mu.Unlock()
		return doneMsg{what: what, err: f()}
	}
}

func (m jogModel) axis(i int) (string, bool) {
	if i < len(m.names) {
		return m.names[i], true
	}
	return "", false
}

func (m jogModel) jog(i int, forward bool) tea.Cmd {
	name, ok := m.axis(i)
	if !ok {
		return nil
	}
	dir := "+"
	if !forward {
		dir = "-"
	}
	return m.do("jog "+name+dir, func() error { return m.stage.Jog(name, forward) })
}

// Init satisfies tea.Model
func (m jogModel) Init() tea.Cmd {
	return tea.Batch(m.poll, tick())
}

// Update satisfies tea.Model
func (m jogModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.busy && msg.String() != "ctrl+c" {
			return m, nil
		}
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		case "left":
			return m, m.jog(0, false)
		case "right":
			return m, m.jog(0, true)
		case "down":
			return m, m.jog(1, false)
		case "up":
			return m, m.jog(1, true)
		case "pgdown":
			return m, m.jog(2, false)
		case "pgup":
			return m, m.jog(2, true)
		case "tab":
			if len(m.names) > 0 {
				m.sel = (m.sel + 1) % len(m.names)
			}
		case "s", " ":
			name, ok := m.axis(m.sel)
			if ok {
				return m, m.do("stop "+name, func() error { return m.stage.Stop(name) })
			}
		case "h":
			name, ok := m.axis(m.sel)
			if ok {
				m.busy = true
				m.msg = "homing " + name
				return m, m.do("home "+name, func() error { return m.stage.Home(context.Background(), name) })
			}
		}
	case doneMsg:
		m.busy = false
		m.msg = msg.what
		if msg.err != nil {
			m.msg = fmt.Sprintf("%s: %v", msg.what, msg.err)
		}
		return m, m.poll
	case posMsg:
		if msg.err != nil {
			m.msg = msg.err.Error()
		}
		if msg.pos != nil {
			m.pos = msg.pos
		}
	case tickMsg:
		return m, tea.Batch(m.poll, tick())
	}
	return m, nil
}

// View satisfies tea.Model
func (m jogModel) View() string {
	var b strings.Builder
	b.WriteString("fpctl jog\n\n")
	for i, n := range m.names {
		cur := " "
		if i == m.sel {
			cur = ">"
		}
		fmt.Fprintf(&b, "%s %-8s %12.0f\n", cur, n, m.pos[n])
	}
	if m.msg != "" {
		fmt.Fprintf(&b, "\n%s\n", m.msg)
	}
	b.WriteString("\n←/→ first axis, ↓/↑ second, pgdn/pgup third\ntab select, h home, s stop, q quit\n")
	return b.String()
}

func jog(c Config) error {
	ctx, stop := interruptible()
	defer stop()
	s, err := openStage(ctx, c)
	if err != nil {
		return err
	}
	defer release(s)
	_, err = tea.NewProgram(newJogModel(s)).Run()
	return err
}
