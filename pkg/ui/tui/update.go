package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// CycleStartMsg is sent when a polling cycle begins.
type CycleStartMsg struct {
	ID string
}

// CycleDoneMsg is sent when a polling cycle ends.
type CycleDoneMsg struct {
	Summary CycleSummary
}

// CommentMsg is sent for every processed comment.
type CommentMsg struct {
	Entry CommentEntry
}

// AuthMsg carries the authenticator state.
type AuthMsg struct {
	State  string
	Reason string
}

// GovernorMsg carries the pacing counters.
type GovernorMsg struct {
	State GovernorState
}

// LogMsg is sent to add a log message
type LogMsg struct {
	Level   string
	Message string
}

// TickMsg is sent periodically to update the UI
type TickMsg time.Time

// Update handles all messages and updates the model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.quota.Width = max(10, msg.Width/2-24)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		pm, cmd := m.quota.Update(msg)
		if p, ok := pm.(progress.Model); ok {
			m.quota = p
		}
		return m, cmd

	case TickMsg:
		return m, tickCmd()

	case CycleStartMsg:
		m.StartCycle(msg.ID)
		return m, nil

	case CycleDoneMsg:
		m.FinishCycle(msg.Summary)
		return m, nil

	case CommentMsg:
		m.RecordComment(msg.Entry)
		return m, nil

	case AuthMsg:
		m.SetAuth(msg.State, msg.Reason)
		return m, nil

	case GovernorMsg:
		m.SetGovernor(msg.State)
		return m, m.quota.SetPercent(m.QuotaUsage())

	case LogMsg:
		m.AddLogMessage(msg.Level, msg.Message)
		return m, nil
	}

	return m, nil
}

// handleKeyPress handles keyboard input
func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c":
		return m, tea.Quit

	case "?":
		m.showHelp = !m.showHelp
		return m, nil

	case "ctrl+l":
		m.logMessages = nil
		return m, nil
	}

	return m, nil
}

// tickCmd refreshes uptime once a second.
func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
