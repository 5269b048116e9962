package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/cjeanneret/v2mini/internal/config"
	"github.com/cjeanneret/v2mini/internal/logic/actuator"
	"github.com/cjeanneret/v2mini/internal/logic/command"
	"github.com/cjeanneret/v2mini/internal/logic/motion"
	"github.com/cjeanneret/v2mini/internal/teleop"
)

type TeleopCommand struct {
	Addr    string `short:"a" long:"addr" default:"localhost:8080" description:"Robot web address"`
	PanStep int    `long:"pan-step" default:"10" description:"Pan counts per key press"`
	Jog     int    `long:"jog" default:"5" description:"Wrist and gripper increment per tick while a key is held"`
}

const (
	headerHeight = 4 // title, status, blank line, legend
	footerHeight = 7 // help and log box
	maxLogs      = 4
	borderSize   = 2

	// holdTimeout ends a jog when no key repeat arrived for this long.
	holdTimeout = 200 * time.Millisecond
)

var actuatorColors = [actuator.Count]string{"196", "226", "46", "51"}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	exprStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("201"))
)

// session is the robot connection as seen by the TUI.
type session interface {
	Send(r command.Record) error
	SendEmotion(label string) error
	Telemetry() <-chan motion.Snapshot
	Emotions() <-chan string
	Err() error
}

var emotionKeys = map[string]string{
	"1": "HAPPY",
	"2": "SAD",
	"3": "ANGRY",
	"4": "CONFUSED",
	"5": "SURPRISED",
}

type teleopModel struct {
	sess    session
	addr    string
	panStep int
	jog     int

	chart  *streamlinechart.Model
	width  int
	height int
	logs   []string

	// outgoing command; pan and head tilt are absolute, the rest are held
	// demands
	rec      command.Record
	synced   bool
	lastHold time.Time

	last     motion.Snapshot
	hasState bool
	quitting bool
}

type telemetryMsg motion.Snapshot
type emotionMsg string
type closedMsg struct{}
type holdMsg time.Time

func waitForTelemetry(s session) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-s.Telemetry()
		if !ok {
			return closedMsg{}
		}
		return telemetryMsg(snap)
	}
}

func waitForEmotion(s session) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-s.Emotions()
		if !ok {
			return nil
		}
		return emotionMsg(e)
	}
}

func holdCheck() tea.Cmd {
	return tea.Tick(holdTimeout, func(t time.Time) tea.Msg { return holdMsg(t) })
}

func initialTeleopModel(s session, addr string, panStep, jog int) teleopModel {
	chart := streamlinechart.New(80, 16,
		streamlinechart.WithYRange(0, 1023),
	)
	for i, a := range config.DefaultActuators() {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(actuatorColors[i]))
		chart.SetDataSetStyles(a.Name, runes.ThinLineStyle, style)
	}
	return teleopModel{
		sess:    s,
		addr:    addr,
		panStep: panStep,
		jog:     jog,
		chart:   &chart,
		rec:     command.Record{Pan: 511, HeadTilt: 512},
	}
}

func (m *teleopModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

func (m *teleopModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 16
	}
	width = max(40, m.width-borderSize-2)
	height = max(8, m.height-headerHeight-footerHeight-borderSize)
	return width, height
}

// send pushes the current record. The face toggle is a one-shot edge, so it
// is cleared once sent.
func (m *teleopModel) send() {
	m.rec.Pan = max(0, min(1023, m.rec.Pan))
	m.rec.HeadTilt = max(0, min(1023, m.rec.HeadTilt))
	if err := m.sess.Send(m.rec); err != nil {
		m.addLog(err.Error())
	}
	m.rec.Face = 0
}

func (m *teleopModel) hold() tea.Cmd {
	m.lastHold = time.Now()
	m.send()
	return holdCheck()
}

func (m *teleopModel) held() bool {
	return m.rec.Wrist != 0 || m.rec.Gripper != 0 || m.rec.Height != 0
}

func (m teleopModel) Init() tea.Cmd {
	return tea.Batch(
		waitForTelemetry(m.sess),
		waitForEmotion(m.sess),
	)
}

func (m teleopModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.chart.Resize(m.chartSize())
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg.String())

	case holdMsg:
		if m.held() && time.Since(m.lastHold) >= holdTimeout {
			m.rec.Wrist, m.rec.Gripper, m.rec.Height = 0, 0, 0
			m.send()
		}
		return m, nil

	case telemetryMsg:
		snap := motion.Snapshot(msg)
		if !m.synced {
			m.rec.Pan = snap.PanTarget
			m.rec.HeadTilt = snap.Actuators[actuator.HeadTilt].Target
			m.synced = true
		}
		for _, a := range snap.Actuators {
			m.chart.PushDataSet(a.Name, float64(a.Filtered))
		}
		m.chart.DrawAll()
		m.last = snap
		m.hasState = true
		return m, waitForTelemetry(m.sess)

	case emotionMsg:
		m.addLog("emotion decoded as " + string(msg))
		return m, waitForEmotion(m.sess)

	case closedMsg:
		if err := m.sess.Err(); err != nil {
			m.addLog("connection lost: " + err.Error())
		} else {
			m.addLog("connection closed")
		}
		return m, nil
	}

	return m, nil
}

func (m teleopModel) handleKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "left":
		m.rec.Pan -= m.panStep
		m.send()
	case "right":
		m.rec.Pan += m.panStep
		m.send()
	case "up":
		m.rec.HeadTilt += m.panStep
		m.send()
	case "down":
		m.rec.HeadTilt -= m.panStep
		m.send()
	case "w":
		m.rec.Wrist = m.jog
		return m, m.hold()
	case "s":
		m.rec.Wrist = -m.jog
		return m, m.hold()
	case "d":
		m.rec.Gripper = m.jog
		return m, m.hold()
	case "a":
		m.rec.Gripper = -m.jog
		return m, m.hold()
	case "u":
		m.rec.Height = 1
		return m, m.hold()
	case "j":
		m.rec.Height = -1
		return m, m.hold()
	case "f":
		m.rec.Face = 1
		m.send()
	case " ":
		m.rec.Wrist, m.rec.Gripper, m.rec.Height = 0, 0, 0
		m.send()
	default:
		if label, ok := emotionKeys[key]; ok {
			if err := m.sess.SendEmotion(label); err != nil {
				m.addLog(err.Error())
			}
		}
	}
	return m, nil
}

func (m teleopModel) View() string {
	if m.quitting {
		return "Teleoperation stopped.\n"
	}

	var sb strings.Builder

	sb.WriteString(titleStyle.Render("v2mini teleop"))
	sb.WriteString(statusStyle.Render("  " + m.addr))
	sb.WriteString("\n")
	if m.hasState {
		s := m.last
		sb.WriteString(fmt.Sprintf("tick %d  face %s  emotion %s  pan %d  height %d°  axis %d",
			s.Tick, exprStyle.Render(s.Expression), s.Emotion, s.Pan, s.HeightAngle, s.ManualAxis))
	} else {
		sb.WriteString(statusStyle.Render("waiting for telemetry..."))
	}
	sb.WriteString("\n\n")

	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")
	sb.WriteString(m.renderLegend())
	sb.WriteString("\n")

	help := "←/→ pan  ↑/↓ head tilt  w/s wrist  a/d grippers  u/j height  f face  1-5 emotion  space stop  q quit"
	sb.WriteString(statusStyle.Render(help))
	sb.WriteString("\n")

	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(max(20, m.width-4)).
		Foreground(lipgloss.Color("9"))
	logLines := statusStyle.Render("no messages")
	if len(m.logs) > 0 {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func (m teleopModel) renderLegend() string {
	var items []string
	for i, a := range m.last.Actuators {
		name := a.Name
		if name == "" {
			name = config.DefaultActuators()[i].Name
		}
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(actuatorColors[i])).Bold(true)
		items = append(items, colorStyle.Render("━━")+" "+name)
	}
	return strings.Join(items, "  ")
}

func (c *TeleopCommand) Execute(args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := teleop.Dial(ctx, c.Addr)
	if err != nil {
		return err
	}
	defer client.Close()

	p := tea.NewProgram(initialTeleopModel(client, c.Addr, c.PanStep, c.Jog), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running program: %w", err)
	}
	return nil
}
