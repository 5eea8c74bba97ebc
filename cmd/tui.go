// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Thermoquad/strobe/pkg/session"
	"github.com/Thermoquad/strobe/pkg/station"
)

const (
	dashboardRefresh = 100 * time.Millisecond
	maxLogEntries    = 100
	logBacklog       = 256
)

// logLines carries formatted log lines into the dashboard. Lines are
// dropped when the dashboard falls behind.
type logLines chan string

func (l logLines) Write(p []byte) (int, error) {
	select {
	case l <- strings.TrimRight(string(p), "\n"):
	default:
	}
	return len(p), nil
}

func (l logLines) Sync() error { return nil }

// dashboardLogger writes to lines instead of the terminal the dashboard owns
func dashboardLogger(lines logLines) *zap.Logger {
	level, err := zapcore.ParseLevel(v.GetString("logging.level"))
	if err != nil {
		level = zapcore.InfoLevel
	}
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	return zap.New(zapcore.NewCore(zapcore.NewConsoleEncoder(enc), lines, level))
}

// Messages
type tickMsg time.Time
type logMsg string
type probeDoneMsg struct{ err error }

type dashboard struct {
	probe *probe
	title string
	bar   progress.Model
	lines logLines

	snap     session.Snapshot
	wifi     string
	address  string
	stations []station.Entry

	log      []string
	err      error
	finished bool
	width    int
	height   int
	quitting bool
}

func newDashboard(p *probe, title string, lines logLines) dashboard {
	return dashboard{
		probe:  p,
		title:  title,
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		lines:  lines,
		width:  80,
		height: 24,
	}
}

func (m dashboard) Init() tea.Cmd {
	return tea.Batch(
		dashboardTick(),
		waitLog(m.lines),
		tea.EnterAltScreen,
	)
}

func dashboardTick() tea.Cmd {
	return tea.Tick(dashboardRefresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitLog(lines logLines) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-lines)
	}
}

func (m dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			if m.probe.role == session.RoleTX {
				m.probe.ctrl.RequestRestart()
				m.addLogEntry("restart requested")
			}
		case "s":
			if m.probe.role == session.RoleTX {
				m.probe.ctrl.Stop()
				m.addLogEntry("stop requested")
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = max(10, min(60, msg.Width-20))

	case tickMsg:
		m.refresh()
		return m, dashboardTick()

	case logMsg:
		m.addLogEntry(string(msg))
		return m, waitLog(m.lines)

	case probeDoneMsg:
		m.finished = true
		m.err = msg.err
		m.refresh()
	}

	return m, nil
}

func (m *dashboard) refresh() {
	m.snap = m.probe.ctrl.Snapshot()
	m.wifi = m.probe.wifi.State().String()
	if addr := m.probe.wifi.Address(); addr.IsValid() {
		m.address = addr.String()
	} else {
		m.address = ""
	}
	m.stations = m.probe.stations.Entries()
}

func (m *dashboard) addLogEntry(line string) {
	m.log = append(m.log, line)
	if len(m.log) > maxLogEntries {
		m.log = m.log[len(m.log)-maxLogEntries:]
	}
}

func (m dashboard) View() string {
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
	s.WriteString(titleStyle.Render(m.title))
	s.WriteString("\n")
	keys := "'q' quit"
	if m.probe.role == session.RoleTX {
		keys = "'r' restart | 's' stop | " + keys
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("Type: %s | Bridge: %s | %s",
		m.probe.ptype, m.probe.bridgeInfo, keys)))
	s.WriteString("\n\n")

	row := func(label, value string) {
		s.WriteString(labelStyle.Render(fmt.Sprintf("%-10s", label)))
		s.WriteString(valueStyle.Render(value))
		s.WriteString("\n")
	}

	// Session
	var sess strings.Builder
	stateStyle := valueStyle
	if m.snap.State != session.StateRunning {
		stateStyle = warningStyle
	}
	sess.WriteString(labelStyle.Render("Session   "))
	sess.WriteString(stateStyle.Render(m.snap.State.String()))
	if m.snap.Sessions > 0 {
		sess.WriteString(headerStyle.Render(fmt.Sprintf("  #%d %s", m.snap.Sessions, shortID(m.snap.ID.String()))))
	}
	sess.WriteString("\n")
	sess.WriteString(labelStyle.Render("Packets   "))
	sess.WriteString(valueStyle.Render(fmt.Sprintf("%d", m.snap.Packets)))
	if m.snap.Errors > 0 {
		sess.WriteString(errorStyle.Render(fmt.Sprintf("  %d errors", m.snap.Errors)))
	}
	sess.WriteString("\n")
	if m.snap.Role == session.RoleTX && m.snap.Duration > 0 {
		pct := float64(m.snap.Elapsed) / float64(m.snap.Duration)
		sess.WriteString(m.bar.ViewAs(min(1, max(0, pct))))
		sess.WriteString(headerStyle.Render(fmt.Sprintf("  %s / %s",
			m.snap.Elapsed.Truncate(100*time.Millisecond), m.snap.Duration)))
		sess.WriteString("\n")
	}
	if m.snap.Role == session.RoleRX && m.snap.PacketType == session.PacketRaw {
		sess.WriteString(labelStyle.Render("Frames    "))
		sess.WriteString(valueStyle.Render(m.snap.Stats.String()))
		sess.WriteString("\n")
	}
	if last := m.snap.Last; last != nil {
		how := "deadline"
		if last.Stopped {
			how = "stopped"
		}
		sess.WriteString(labelStyle.Render("Last      "))
		sess.WriteString(headerStyle.Render(fmt.Sprintf("%d packets, %d errors in %s (%s)",
			last.Packets, last.Errors, last.Elapsed.Truncate(time.Millisecond), how)))
		sess.WriteString("\n")
	}
	s.WriteString(boxStyle.Render(strings.TrimRight(sess.String(), "\n")))
	s.WriteString("\n\n")

	// Link
	row("Wi-Fi", m.wifi)
	if m.address != "" {
		row("Address", m.address)
	}
	for _, e := range m.stations {
		if !e.Valid {
			continue
		}
		addr := "settling"
		if e.Address.IsValid() {
			addr = e.Address.String()
		}
		row("Station", fmt.Sprintf("%s  %s", e.MAC, addr))
	}
	s.WriteString("\n")

	if m.finished {
		if m.err != nil {
			s.WriteString(errorStyle.Render(fmt.Sprintf("Stopped: %v", m.err)))
		} else {
			s.WriteString(warningStyle.Render("Stopped"))
		}
		s.WriteString("\n\n")
	}

	// Event log fills the remaining height
	s.WriteString(labelStyle.Render("Events"))
	s.WriteString("\n")
	used := strings.Count(s.String(), "\n")
	room := max(3, m.height-used-1)
	start := max(0, len(m.log)-room)
	for _, line := range m.log[start:] {
		style := headerStyle
		switch {
		case strings.Contains(line, "ERROR"):
			style = errorStyle
		case strings.Contains(line, "WARN"):
			style = warningStyle
		}
		if m.width > 4 && len(line) > m.width-2 {
			line = line[:m.width-2]
		}
		s.WriteString(style.Render(line))
		s.WriteString("\n")
	}

	return s.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// runDashboard runs the probe behind the interactive dashboard. The probe's
// loggers must already write to lines.
func runDashboard(ctx context.Context, p *probe, title string, lines logLines) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	prog := tea.NewProgram(newDashboard(p, title, lines), tea.WithContext(ctx))

	done := make(chan error, 1)
	go func() {
		err := p.Run(ctx)
		done <- err
		prog.Send(probeDoneMsg{err: err})
	}()

	_, err := prog.Run()
	cancel()
	probeErr := <-done
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("dashboard: %w", err)
	}
	return probeErr
}
