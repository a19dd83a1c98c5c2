// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/eklim/faultlink/pkg/session"
)

const maxEventLines = 500

// eventLine is one entry in the scrolling event view
type eventLine struct {
	at    time.Time
	kind  string
	text  string
	alert bool
}

// monitorModel is the Bubble Tea model for the push monitor
type monitorModel struct {
	client *pushClient
	url    string

	authenticated bool
	status        *session.Status
	update        *session.StatusUpdate
	lastLatency   int64
	faults        int
	ticks         int

	events   []eventLine
	view     viewport.Model
	follow   bool
	width    int
	height   int
	closeErr error
	closed   bool
	quitting bool
}

type monitorTickMsg time.Time

var (
	monTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)
	monHeaderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	monLabelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	monValueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	monErrorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	monWarnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	monBoxStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

func newMonitorModel(client *pushClient, url string) monitorModel {
	vp := viewport.New(80, 10)
	return monitorModel{
		client: client,
		url:    url,
		view:   vp,
		follow: true,
		width:  80,
		height: 24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return monitorTickCmd()
}

func monitorTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()

	case monitorTickMsg:
		m.ticks++
		if m.authenticated && monitorPingInterval > 0 && m.ticks%monitorPingInterval == 0 {
			m.sendCommand(session.CmdPing)
		}
		return m, monitorTickCmd()

	case pushMsg:
		m.apply(pushMessage(msg))

	case pushClosedMsg:
		m.closed = true
		m.closeErr = msg.err
		m.addEvent("closed", "Connection closed", msg.err != nil)
	}

	return m, nil
}

func (m monitorModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "p":
		m.sendCommand(session.CmdPing)
	case "s":
		m.sendCommand(session.CmdGetStatus)
	case "l":
		m.sendCommand(session.CmdGetLogs)
	case "i":
		m.sendCommand(session.CmdGetInfo)
	case "end", "G":
		m.follow = true
		m.view.GotoBottom()
	default:
		var cmd tea.Cmd
		m.view, cmd = m.view.Update(msg)
		m.follow = m.view.AtBottom()
		return m, cmd
	}
	return m, nil
}

func (m *monitorModel) sendCommand(cmd string) {
	if m.closed {
		return
	}
	if err := m.client.send(cmd); err != nil {
		m.addEvent("error", fmt.Sprintf("send %s: %v", cmd, err), true)
	}
}

// apply updates the summary panes from a server message and logs it
func (m *monitorModel) apply(msg pushMessage) {
	alert := false
	switch msg.Type {
	case session.TypeAuthSuccess:
		m.authenticated = true
	case session.TypeAuthFailed, session.TypeError, "invalid":
		alert = true
	case session.TypeStatus:
		var v session.Status
		if json.Unmarshal(msg.Raw, &v) == nil {
			m.status = &v
		}
	case session.TypeStatusUpdate:
		var v session.StatusUpdate
		if json.Unmarshal(msg.Raw, &v) == nil {
			m.update = &v
		}
		// Periodic updates only refresh the summary pane
		return
	case session.TypePong:
		var v session.Pong
		if json.Unmarshal(msg.Raw, &v) == nil {
			m.lastLatency = v.Latency
		}
	case session.TypeFault:
		m.faults++
		alert = true
	}
	m.addEvent(msg.Type, msg.Text, alert)
}

func (m *monitorModel) addEvent(kind, text string, alert bool) {
	m.events = append(m.events, eventLine{at: time.Now(), kind: kind, text: text, alert: alert})
	if len(m.events) > maxEventLines {
		m.events = m.events[len(m.events)-maxEventLines:]
	}
	m.view.SetContent(m.renderEvents())
	if m.follow {
		m.view.GotoBottom()
	}
}

func (m *monitorModel) resize() {
	m.view.Width = m.width - 4
	h := m.height - 14
	if h < 5 {
		h = 5
	}
	m.view.Height = h
	m.view.SetContent(m.renderEvents())
	if m.follow {
		m.view.GotoBottom()
	}
}

func (m monitorModel) renderEvents() string {
	var b strings.Builder
	for i, e := range m.events {
		if i > 0 {
			b.WriteString("\n")
		}
		line := fmt.Sprintf("%s %s", e.at.Format("15:04:05"), e.text)
		switch {
		case e.alert && e.kind == session.TypeFault:
			b.WriteString(monWarnStyle.Render(line))
		case e.alert:
			b.WriteString(monErrorStyle.Render(line))
		default:
			b.WriteString(line)
		}
	}
	return b.String()
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Disconnecting...\n"
	}

	var s strings.Builder
	s.WriteString(monTitleStyle.Render("FAULTLINK - PUSH MONITOR"))
	s.WriteString("\n")
	s.WriteString(monHeaderStyle.Render(fmt.Sprintf("%s | p ping  s status  l logs  i info  q quit", m.url)))
	s.WriteString("\n\n")

	switch {
	case m.closed:
		s.WriteString(monErrorStyle.Render("Disconnected"))
	case m.authenticated:
		s.WriteString(monValueStyle.Render("✓ Authenticated"))
	default:
		s.WriteString(monWarnStyle.Render("⏳ Waiting for authentication..."))
	}
	s.WriteString("\n")

	s.WriteString(monBoxStyle.Render(m.summary()))
	s.WriteString("\n")
	s.WriteString(m.view.View())
	return s.String()
}

func (m monitorModel) summary() string {
	label := monLabelStyle.Render
	value := monValueStyle.Render

	var b strings.Builder
	if m.status != nil {
		fmt.Fprintf(&b, "%s %s   %s %s   %s %s\n",
			label("Device:"), value(m.status.DeviceName),
			label("Station:"), value(m.status.TMName),
			label("IP:"), value(m.status.DeviceIP))
	}

	uptime, clock, uart, synced, clients := "-", "-", false, false, 0
	switch {
	case m.update != nil:
		uptime, clock, uart, synced, clients = m.update.Uptime, m.update.DateTime, m.update.UARTHealthy, m.update.TimeSynced, m.update.WSClients
	case m.status != nil:
		uptime, clock, uart, synced, clients = m.status.Uptime, m.status.DateTime, m.status.UARTHealthy, m.status.TimeSynced, m.status.WSClients
	}

	uartText := value(healthWord(uart))
	if !uart {
		uartText = monErrorStyle.Render(healthWord(uart))
	}
	fmt.Fprintf(&b, "%s %s   %s %s (%s)\n",
		label("Uptime:"), value(uptime),
		label("Clock:"), value(clock), syncWord(synced))
	fmt.Fprintf(&b, "%s %s   %s %s   %s %s   %s %s",
		label("UART:"), uartText,
		label("Clients:"), value(fmt.Sprintf("%d", clients)),
		label("Latency:"), value(fmt.Sprintf("%d ms", m.lastLatency)),
		label("Faults:"), value(fmt.Sprintf("%d", m.faults)))
	return b.String()
}
