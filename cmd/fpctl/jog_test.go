package main

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJogStage struct {
	names []string
	calls []string
}

func (f *fakeJogStage) Names() []string { return f.names }

func (f *fakeJogStage) Positions() (map[string]float64, error) {
	out := map[string]float64{}
	for i, n := range f.names {
		out[n] = float64(100 * (i + 1))
	}
	return out, nil
}

func (f *fakeJogStage) Jog(name string, forward bool) error {
	dir := "-"
	if forward {
		dir = "+"
	}
	f.calls = append(f.calls, "jog "+name+dir)
	return nil
}

func (f *fakeJogStage) Stop(name string) error {
	f.calls = append(f.calls, "stop "+name)
	return nil
}

func (f *fakeJogStage) Home(ctx context.Context, names ...string) error {
	f.calls = append(f.calls, "home "+names[0])
	return nil
}

func press(t *testing.T, m tea.Model, k tea.KeyMsg) tea.Model {
	m, cmd := m.Update(k)
	require.NotNil(t, cmd, "%v", k)
	m, _ = m.Update(cmd())
	return m
}

func TestJogKeysDriveAxes(t *testing.T) {
	f := &fakeJogStage{names: []string{"x", "y"}}
	var m tea.Model = newJogModel(f)
	m = press(t, m, tea.KeyMsg{Type: tea.KeyRight})
	m = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, []string{"jog x+", "jog y-"}, f.calls)
}

func TestJogHomeAndStopSelectedAxis(t *testing.T) {
	f := &fakeJogStage{names: []string{"x", "y"}}
	var m tea.Model = newJogModel(f)
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = press(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'h'}})
	m = press(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}})
	assert.Equal(t, []string{"home y", "stop y"}, f.calls)
	assert.Contains(t, m.View(), "> y")
}

func TestJogThirdAxisMissingIsIgnored(t *testing.T) {
	f := &fakeJogStage{names: []string{"x"}}
	m := newJogModel(f)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyPgUp})
	assert.Nil(t, cmd)
}

func TestJogQuit(t *testing.T) {
	m := newJogModel(&fakeJogStage{names: []string{"x"}})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}
