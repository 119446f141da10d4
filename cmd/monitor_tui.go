// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The Dodobot serialbridge Authors

package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dodobot/serialbridge/pkg/dodolink"
)

// monitorSource is the running bridge as seen by the TUI
type monitorSource interface {
	Stats() *dodolink.Statistics
	Session() *dodolink.Session
	HandshakeState() dodolink.HandshakeState
	ConnInfo() string
	Submit(fn func(c *dodolink.Commands) error) <-chan error
}

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// TUI model
type monitorModel struct {
	src           monitorSource
	records       map[string]string
	eventLog      []eventLogEntry
	maxLogEntries int
	input         textinput.Model
	connected     bool
	width         int
	height        int
	quitting      bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type monitorTickMsg time.Time

type recordMsg struct {
	record dodolink.Record
}

type eventMsg struct {
	message string
	isError bool
}

type linkUpMsg struct {
	connInfo string
}

type linkDownMsg struct {
	err error
}

type commandResultMsg struct {
	line string
	err  error
}

// monitorBatchMsg carries everything queued since the last flush
type monitorBatchMsg struct {
	messages []tea.Msg
}

func newMonitorModel(src monitorSource) monitorModel {
	ti := textinput.New()
	ti.Placeholder = "drive 100 100"
	ti.Prompt = "> "
	ti.CharLimit = 120
	ti.Width = 60
	ti.Focus()

	return monitorModel{
		src:           src,
		records:       make(map[string]string),
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 200,
		input:         ti,
		width:         80,
		height:        24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(monitorTickCmd(), textinput.Blink)
}

func monitorTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

// submitCmd sends a parsed console command and reports the outcome
func (m monitorModel) submitCmd(line string) tea.Cmd {
	command, err := parseCommand(line)
	if err != nil {
		return func() tea.Msg { return commandResultMsg{line: line, err: err} }
	}
	done := m.src.Submit(command.Apply)
	return func() tea.Msg {
		select {
		case err := <-done:
			return commandResultMsg{line: line, err: err}
		case <-time.After(shellCmdTimeout):
			return commandResultMsg{line: line, err: fmt.Errorf("command timeout")}
		}
	}
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			line := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if line == "" {
				return m, nil
			}
			if line == "help" {
				for _, l := range strings.Split(commandHelp, "\n") {
					m.addLogEntry(l, false)
				}
				return m, nil
			}
			return m, m.submitCmd(line)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case monitorTickMsg:
		return m, monitorTickCmd()

	case monitorBatchMsg:
		for _, inner := range msg.messages {
			m.apply(inner)
		}
		return m, nil

	case recordMsg, eventMsg, linkUpMsg, linkDownMsg, commandResultMsg:
		m.apply(msg)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// apply folds one bridge message into the model
func (m *monitorModel) apply(msg tea.Msg) {
	switch msg := msg.(type) {
	case recordMsg:
		m.records[msg.record.Category()] = dodolink.FormatRecord(msg.record)
	case eventMsg:
		m.addLogEntry(msg.message, msg.isError)
	case linkUpMsg:
		m.connected = true
		m.addLogEntry("Connected: "+msg.connInfo, false)
	case linkDownMsg:
		m.connected = false
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("Connection lost: %v - reconnecting...", msg.err), true)
		} else {
			m.addLogEntry("Connection lost - reconnecting...", true)
		}
	case commandResultMsg:
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("%s: %v", msg.line, msg.err), true)
		} else {
			m.addLogEntry(msg.line+": sent", false)
		}
	}
}

func (m *monitorModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	var s strings.Builder
	s.WriteString(titleStyle.Render("SERIALBRIDGE MONITOR"))
	s.WriteString(" ")
	connStatus := m.src.ConnInfo()
	if !m.connected {
		connStatus = warningStyle.Render("CONNECTING...")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | Esc=quit, type 'help' for commands", connStatus)))
	s.WriteString("\n\n")

	s.WriteString(boxStyle.Render(m.renderStatus(labelStyle, valueStyle, errorStyle, warningStyle)))
	s.WriteString("\n")

	s.WriteString(labelStyle.Render("Telemetry:"))
	s.WriteString("\n")
	s.WriteString(boxStyle.Render(m.renderRecords(headerStyle)))
	s.WriteString("\n")

	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")
	s.WriteString(boxStyle.Width(m.width - 4).Render(m.renderEventLog(headerStyle, errorStyle, warningStyle)))
	s.WriteString("\n")

	s.WriteString(m.input.View())
	return s.String()
}

func (m monitorModel) renderStatus(labelStyle, valueStyle, errorStyle, warningStyle lipgloss.Style) string {
	session := m.src.Session()
	ready := session.Ready()
	robot := session.Robot()
	snap := m.src.Stats().Snapshot()

	var s strings.Builder

	state := m.src.HandshakeState()
	stateStyle := warningStyle
	if state == dodolink.HandshakeReady {
		stateStyle = valueStyle
	} else if state == dodolink.HandshakeFailed {
		stateStyle = errorStyle
	}
	s.WriteString(fmt.Sprintf("%s %s", labelStyle.Render("Handshake:"), stateStyle.Render(state.String())))
	if ready.IsReady {
		s.WriteString(fmt.Sprintf("   %s %s", labelStyle.Render("Robot:"), valueStyle.Render(ready.RobotName)))
	}
	s.WriteString("\n")

	s.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s   %s %s\n",
		labelStyle.Render("Active:"), onOff(robot.IsActive, valueStyle, warningStyle),
		labelStyle.Render("Motors:"), onOff(robot.MotorsActive, valueStyle, warningStyle),
		labelStyle.Render("Battery:"), onOff(robot.BatteryOK, valueStyle, errorStyle),
		labelStyle.Render("Loop:"), valueStyle.Render(fmt.Sprintf("%.1f Hz", robot.LoopRate)),
	))

	errors := snap.DecodeErrors() + snap.FramesTooLong + snap.FramesIncomplete
	s.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s   %s %s\n",
		labelStyle.Render("Frames:"), valueStyle.Render(fmt.Sprintf("%d", snap.TotalFrames)),
		labelStyle.Render("Errors:"), errorCount(errors, valueStyle, errorStyle),
		labelStyle.Render("Resyncs:"), errorCount(snap.Resyncs, valueStyle, warningStyle),
		labelStyle.Render("Device errors:"), errorCount(snap.DeviceErrors, valueStyle, errorStyle),
	))

	s.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s   %s %s",
		labelStyle.Render("Seq:"), valueStyle.Render(fmt.Sprintf("r%d/w%d", session.ReadSeq(), session.WriteSeq())),
		labelStyle.Render("Commands:"), valueStyle.Render(fmt.Sprintf("%d sent, %d dropped", snap.CommandsSent, snap.CommandsDropped)),
		labelStyle.Render("Rate:"), valueStyle.Render(fmt.Sprintf("%.1f pkts/s", snap.PacketRate)),
		labelStyle.Render("Err rate:"), errorRate(snap.ErrorRate, valueStyle, errorStyle),
	))
	return s.String()
}

func (m monitorModel) renderRecords(headerStyle lipgloss.Style) string {
	if len(m.records) == 0 {
		return headerStyle.Render("(no telemetry yet)")
	}
	categories := make([]string, 0, len(m.records))
	for c := range m.records {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	lines := make([]string, len(categories))
	for i, c := range categories {
		lines[i] = m.records[c]
	}
	return strings.Join(lines, "\n")
}

func (m monitorModel) renderEventLog(headerStyle, errorStyle, warningStyle lipgloss.Style) string {
	logHeight := m.height - 22
	if logHeight < 5 {
		logHeight = 5
	}

	if len(m.eventLog) == 0 {
		return headerStyle.Render("  (no events yet)")
	}

	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	var s strings.Builder
	for i := startIdx; i < len(m.eventLog); i++ {
		entry := m.eventLog[i]
		timestamp := entry.timestamp.Format("15:04:05.000")
		if entry.isError {
			s.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), errorStyle.Render("✗ "+entry.message)))
		} else {
			s.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), warningStyle.Render("ℹ "+entry.message)))
		}
	}
	return strings.TrimRight(s.String(), "\n")
}

func onOff(v bool, on, off lipgloss.Style) string {
	if v {
		return on.Render("yes")
	}
	return off.Render("no")
}

func errorCount(n uint64, ok, bad lipgloss.Style) string {
	if n > 0 {
		return bad.Render(fmt.Sprintf("%d", n))
	}
	return ok.Render("0")
}

func errorRate(rate float64, ok, bad lipgloss.Style) string {
	text := fmt.Sprintf("%.1f err/s", rate)
	if rate > 0 {
		return bad.Render(text)
	}
	return ok.Render(text)
}
