package tui

import (
	"errors"
	"math"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/motorsync/internal/dynamo"
	"github.com/san-kum/motorsync/internal/motor"
)

type fakeTarget struct {
	eq     map[string]float64
	sample dynamo.Sample
	goal   int
	nudged int
	jogged []int
	busy   bool
}

func (f *fakeTarget) Latest() (dynamo.Sample, bool) { return f.sample, true }

func (f *fakeTarget) Channels() []motor.ChannelState {
	return []motor.ChannelState{
		{Port: 2, Inverted: true, Commanded: 40, Applied: 33},
		{Port: 5, Commanded: 0, Applied: 0},
	}
}

func (f *fakeTarget) EqualizerParams() (map[string]float64, error) {
	if f.busy {
		return nil, errors.New("lock timeout")
	}
	if f.eq == nil {
		f.eq = map[string]float64{"kp": 0.4, "ki": 0.01, "kd": 0}
	}
	return f.eq, nil
}

func (f *fakeTarget) SetEqualizerParam(name string, value float64) error {
	if f.busy {
		return errors.New("lock timeout")
	}
	f.eq[name] = value
	return nil
}

func (f *fakeTarget) SetHeight(goal int) bool { f.goal = goal; return !f.busy }
func (f *fakeTarget) Nudge(delta int) bool    { f.nudged += delta; return !f.busy }
func (f *fakeTarget) Jog(output int) bool     { f.jogged = append(f.jogged, output); return !f.busy }

func press(m tea.Model, keys ...string) tea.Model {
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "up":
			msg = tea.KeyMsg{Type: tea.KeyUp}
		case "down":
			msg = tea.KeyMsg{Type: tea.KeyDown}
		case " ":
			msg = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		m, _ = m.Update(msg)
	}
	return m
}

func TestKeysDriveTarget(t *testing.T) {
	target := &fakeTarget{}
	m := New(target, Options{MaxHeight: 1000, Step: 10, JogOutput: 50})

	m = press(m, "up", "up", "down", "u", "d", " ", "7")

	if target.nudged != 10 {
		t.Errorf("expected net nudge 10, got %d", target.nudged)
	}
	if want := []int{50, -50, 0}; len(target.jogged) != 3 || target.jogged[0] != want[0] || target.jogged[1] != want[1] || target.jogged[2] != want[2] {
		t.Errorf("expected jogs %v, got %v", want, target.jogged)
	}
	if target.goal != 700 {
		t.Errorf("expected height 700, got %d", target.goal)
	}
}

func TestQuit(t *testing.T) {
	_, cmd := New(&fakeTarget{}, Options{}).Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestViewShowsSidesAndPorts(t *testing.T) {
	target := &fakeTarget{sample: dynamo.Sample{
		Mode: "closed-loop", MasterGoal: 500, MasterPos: 480, SlavePos: 470, Correction: 4, MasterOut: 30, SlaveOut: 38,
	}}
	m := New(target, Options{Title: "demo", Ports: map[int]string{2: "master"}})

	if !strings.Contains(m.View(), "waiting") {
		t.Error("expected waiting message before the first tick")
	}

	m, _ = m.Update(tickMsg{})
	view := m.View()
	for _, want := range []string{"demo", "480", "470", "+10", "master"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
	if strings.Contains(view, "   5  ") {
		t.Error("ports outside the lift should be hidden")
	}
}

func TestBusyLockIsReported(t *testing.T) {
	target := &fakeTarget{busy: true}
	m := press(New(target, Options{}), "up")
	m, _ = m.Update(tickMsg{})
	if !strings.Contains(m.View(), "lock busy") {
		t.Error("expected lock busy status")
	}
}

func TestSparkline(t *testing.T) {
	got := sparkline([]float64{0, 7, 14}, 10)
	if got != "▁▄█" {
		t.Errorf("got %q", got)
	}
	if len([]rune(sparkline(make([]float64, 100), 40))) != 40 {
		t.Error("sparkline should keep the newest width values")
	}
}

func TestBracketsTuneEqualizer(t *testing.T) {
	target := &fakeTarget{}
	m := press(New(target, Options{}), "]", "]", "[", "}", "{", "{", "{", "{")

	if math.Abs(target.eq["kp"]-0.45) > 1e-9 {
		t.Errorf("expected kp 0.45, got %v", target.eq["kp"])
	}
	if target.eq["ki"] != 0 {
		t.Errorf("ki should stop at zero, got %v", target.eq["ki"])
	}

	m, _ = m.Update(tickMsg{})
	if !strings.Contains(m.View(), "kp 0.450") {
		t.Errorf("view should show the tuned gain:\n%s", m.View())
	}
}
