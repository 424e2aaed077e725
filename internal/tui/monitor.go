// Package tui is the live lift monitor: it shows both sides, the gap and
// every port, and lets the operator move the lift from the keyboard.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/motorsync/internal/dynamo"
	"github.com/san-kum/motorsync/internal/motor"
)

var (
	cyan    = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white   = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim     = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	dimmer  = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	green   = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	magenta = lipgloss.NewStyle().Foreground(lipgloss.Color("213"))
	red     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	panel = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444466")).
		Padding(0, 1)
)

// Target is what the monitor drives. *lift.Lift plus a recorder satisfies
// it through Bind.
type Target interface {
	Latest() (dynamo.Sample, bool)
	Channels() []motor.ChannelState
	SetHeight(goal int) bool
	Nudge(delta int) bool
	Jog(output int) bool
	EqualizerParams() (map[string]float64, error)
	SetEqualizerParam(name string, value float64) error
}

type Options struct {
	Title     string
	MaxHeight int
	Step      int
	JogOutput int
	Refresh   time.Duration
	Ports     map[int]string
}

const (
	historyLen = 60
	kpStep     = 0.05
	kiStep     = 0.005
)

type model struct {
	target Target
	opts   Options

	sample  dynamo.Sample
	have    bool
	ports   []motor.ChannelState
	gaps    []float64
	eq      map[string]float64
	jog     int
	status  string
	started time.Time
	width   int
}

func New(target Target, opts Options) tea.Model {
	if opts.Step <= 0 {
		opts.Step = 25
	}
	if opts.JogOutput <= 0 {
		opts.JogOutput = 60
	}
	if opts.MaxHeight <= 0 {
		opts.MaxHeight = 1000
	}
	if opts.Refresh <= 0 {
		opts.Refresh = time.Second / 30
	}
	return model{target: target, opts: opts, started: time.Now(), width: 80}
}

type tickMsg time.Time

func (m model) tick() tea.Cmd {
	return tea.Tick(m.opts.Refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Init() tea.Cmd { return m.tick() }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tickMsg:
		m.refresh()
		return m, m.tick()
	}
	return m, nil
}

func (m *model) refresh() {
	s, ok := m.target.Latest()
	if ok {
		m.sample, m.have = s, true
		m.gaps = append(m.gaps, float64(s.Gap()))
		if len(m.gaps) > historyLen {
			m.gaps = m.gaps[1:]
		}
	}
	m.ports = m.target.Channels()
	if eq, err := m.target.EqualizerParams(); err == nil {
		m.eq = eq
	}
}

// tune steps one equalizer gain, never below zero.
func (m *model) tune(name string, step float64) {
	params, err := m.target.EqualizerParams()
	if err != nil {
		m.status = "tune: " + err.Error()
		return
	}
	v := max(0, params[name]+step)
	if err := m.target.SetEqualizerParam(name, v); err != nil {
		m.status = "tune: " + err.Error()
		return
	}
	m.status = fmt.Sprintf("equalizer %s %.3f", name, v)
}

func (m model) handleKey(msg tea.KeyMsg) (model, tea.Cmd) {
	key := msg.String()
	switch key {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "up", "k":
		m.report(m.target.Nudge(m.opts.Step), fmt.Sprintf("goal +%d", m.opts.Step))
	case "down", "j":
		m.report(m.target.Nudge(-m.opts.Step), fmt.Sprintf("goal -%d", m.opts.Step))
	case "pgup", "u":
		m.jog = m.opts.JogOutput
		m.report(m.target.Jog(m.jog), fmt.Sprintf("jog %+d", m.jog))
	case "pgdown", "d":
		m.jog = -m.opts.JogOutput
		m.report(m.target.Jog(m.jog), fmt.Sprintf("jog %+d", m.jog))
	case " ":
		m.jog = 0
		m.report(m.target.Jog(0), "hold")
	case "[":
		m.tune("kp", -kpStep)
	case "]":
		m.tune("kp", kpStep)
	case "{":
		m.tune("ki", -kiStep)
	case "}":
		m.tune("ki", kiStep)
	case "0", "1", "2", "3", "4", "5", "6", "7", "8", "9":
		goal := int(key[0]-'0') * m.opts.MaxHeight / 10
		m.report(m.target.SetHeight(goal), fmt.Sprintf("height %d", goal))
	}
	return m, nil
}

func (m *model) report(ok bool, what string) {
	if ok {
		m.status = what
	} else {
		m.status = what + " (lock busy)"
	}
}

func (m model) View() string {
	var b strings.Builder

	title := m.opts.Title
	if title == "" {
		title = "motorsync"
	}
	mode := green.Render("● closed loop")
	if m.sample.Mode == "manual" {
		mode = yellow.Render("○ manual")
	}
	b.WriteString(fmt.Sprintf("\n   %s  %s  %s\n", cyan.Render(title), mode,
		dim.Render(fmt.Sprintf("%.1fs", time.Since(m.started).Seconds()))))
	b.WriteString(dimmer.Render("   "+strings.Repeat("─", 48)) + "\n")

	if !m.have {
		b.WriteString(dim.Render("   waiting for first cycle...") + "\n")
		return b.String()
	}

	s := m.sample
	barWidth := 30
	b.WriteString(fmt.Sprintf("   %s %s %s\n", dim.Render("goal  "),
		m.bar(s.MasterGoal, barWidth, magenta), white.Render(fmt.Sprintf("%5d", s.MasterGoal))))
	b.WriteString(fmt.Sprintf("   %s %s %s  %s\n", dim.Render("master"),
		m.bar(s.MasterPos, barWidth, cyan), white.Render(fmt.Sprintf("%5d", s.MasterPos)), outStr(s.MasterOut)))
	b.WriteString(fmt.Sprintf("   %s %s %s  %s\n", dim.Render("slave "),
		m.bar(s.SlavePos, barWidth, cyan), white.Render(fmt.Sprintf("%5d", s.SlavePos)), outStr(s.SlaveOut)))

	gapStyle := green
	if abs(s.Gap()) > 10 {
		gapStyle = red
	}
	b.WriteString(fmt.Sprintf("\n   %s %s  %s %s\n",
		dim.Render("gap"), gapStyle.Render(fmt.Sprintf("%+d", s.Gap())),
		dim.Render("correction"), white.Render(fmt.Sprintf("%+d", s.Correction))))
	if m.eq != nil {
		b.WriteString(fmt.Sprintf("   %s %s\n", dim.Render("equalizer"),
			magenta.Render(fmt.Sprintf("kp %.3f  ki %.3f  kd %.3f", m.eq["kp"], m.eq["ki"], m.eq["kd"]))))
	}
	if len(m.gaps) > 1 {
		b.WriteString(fmt.Sprintf("   %s %s\n", dim.Render("gap"), cyan.Render(sparkline(m.gaps, 40))))
	}

	b.WriteString("\n" + panel.Render(m.portTable()) + "\n")

	if m.status != "" {
		b.WriteString("   " + yellow.Render(m.status) + "\n")
	}
	b.WriteString("\n" + dim.Render("   ↑↓ nudge  u/d jog  space hold  0-9 height  [] kp  {} ki  q quit") + "\n")
	return b.String()
}

func (m model) bar(v, width int, style lipgloss.Style) string {
	filled := v * width / m.opts.MaxHeight
	filled = max(0, min(width, filled))
	return style.Render(strings.Repeat("━", filled)) + dimmer.Render(strings.Repeat("─", width-filled))
}

func (m model) portTable() string {
	var b strings.Builder
	b.WriteString(dim.Render("port  side    cmd  out  inv") + "\n")
	for _, ch := range m.ports {
		side, ok := m.opts.Ports[ch.Port]
		if !ok {
			continue
		}
		inv := " "
		if ch.Inverted {
			inv = "✓"
		}
		b.WriteString(fmt.Sprintf("%4d  %-6s %4d %4d   %s\n", ch.Port, side, ch.Commanded, ch.Applied, inv))
	}
	return strings.TrimRight(b.String(), "\n")
}

func outStr(v int) string {
	style := dim
	if v > 0 {
		style = green
	} else if v < 0 {
		style = yellow
	}
	return style.Render(fmt.Sprintf("out %+4d", v))
}

func sparkline(data []float64, width int) string {
	if len(data) == 0 {
		return ""
	}
	chars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}
	minVal, maxVal := data[0], data[0]
	for _, v := range data {
		minVal = min(minVal, v)
		maxVal = max(maxVal, v)
	}
	rang := maxVal - minVal
	if rang == 0 {
		rang = 1
	}
	start := max(0, len(data)-width)
	var sb strings.Builder
	for _, v := range data[start:] {
		idx := int((v - minVal) / rang * 7)
		sb.WriteRune(chars[max(0, min(7, idx))])
	}
	return sb.String()
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Run starts the monitor on the alternate screen and blocks until quit.
func Run(target Target, opts Options) error {
	p := tea.NewProgram(New(target, opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
