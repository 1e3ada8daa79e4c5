package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"igdmbot/pkg/models"
)

// CommentEntry is one processed comment shown in the activity panel.
type CommentEntry struct {
	Time      time.Time
	CommentID string
	Username  string
	Action    models.Action
	Keyword   string
}

// CycleSummary is the dashboard view of a finished polling cycle.
type CycleSummary struct {
	ID             string
	Started        time.Time
	Finished       time.Time
	PostsMonitored int
	CommentsSeen   int
	Dispatched     int
	Failures       int
	AuthFailed     bool
	Error          string
}

// GovernorState mirrors the pacing counters.
type GovernorState struct {
	DMsLastHour     int
	MaxDMsPerHour   int
	Signals         int
	ElevatedBackoff time.Duration
}

// LogMessage represents a log entry
type LogMessage struct {
	Time    time.Time
	Level   string
	Message string
	Color   lipgloss.Color
}

// Model is the dashboard state. It is only touched from the bubbletea
// event loop.
type Model struct {
	spinner spinner.Model
	quota   progress.Model

	account   string
	mode      string
	startTime time.Time

	cycleRunning bool
	currentCycle string
	cycles       int
	lastCycle    *CycleSummary

	counts    map[models.Action]int
	processed int
	recent    []CommentEntry
	maxRecent int

	authState  string
	authReason string
	governor   GovernorState

	width          int
	height         int
	showHelp       bool
	logMessages    []LogMessage
	maxLogMessages int
}

// NewModel creates a dashboard model for account in the given gateway mode.
func NewModel(account, mode string) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(neonCyan)

	q := progress.New(progress.WithDefaultGradient())
	q.Width = 30

	return &Model{
		spinner:        s,
		quota:          q,
		account:        account,
		mode:           mode,
		startTime:      time.Now(),
		counts:         make(map[models.Action]int),
		maxRecent:      12,
		authState:      "unauthenticated",
		maxLogMessages: 50,
	}
}

// Init starts the spinner and the refresh tick.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

// StartCycle marks a polling cycle as running.
func (m *Model) StartCycle(id string) {
	m.cycleRunning = true
	m.currentCycle = id
}

// FinishCycle stores the summary of the cycle that just ended.
func (m *Model) FinishCycle(s CycleSummary) {
	m.cycleRunning = false
	m.currentCycle = ""
	m.cycles++
	m.lastCycle = &s

	switch {
	case s.AuthFailed:
		m.AddLogMessage("ERROR", "Cycle aborted: authentication failed")
	case s.Error != "":
		m.AddLogMessage("WARN", "Cycle aborted: "+s.Error)
	default:
		m.AddLogMessage("INFO", "Cycle finished in "+s.Finished.Sub(s.Started).Round(time.Millisecond).String())
	}
}

// RecordComment counts a processed comment and keeps it in the recent list.
func (m *Model) RecordComment(e CommentEntry) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	m.counts[e.Action]++
	m.processed++
	m.recent = append(m.recent, e)
	if len(m.recent) > m.maxRecent {
		m.recent = m.recent[len(m.recent)-m.maxRecent:]
	}
}

// SetAuth updates the authenticator state.
func (m *Model) SetAuth(state, reason string) {
	if state == "failed" && m.authState != "failed" {
		m.AddLogMessage("ERROR", "Authentication failed: "+reason)
	}
	m.authState = state
	m.authReason = reason
}

// SetGovernor replaces the pacing counters.
func (m *Model) SetGovernor(g GovernorState) {
	if g.Signals > m.governor.Signals {
		m.AddLogMessage("WARN", "Rate limited, backing off "+g.ElevatedBackoff.String())
	}
	m.governor = g
}

// QuotaUsage returns the hourly DM cap usage in [0,1]. A disabled cap
// reports zero.
func (m *Model) QuotaUsage() float64 {
	if m.governor.MaxDMsPerHour <= 0 {
		return 0
	}
	u := float64(m.governor.DMsLastHour) / float64(m.governor.MaxDMsPerHour)
	if u > 1 {
		u = 1
	}
	return u
}

// Count returns how many comments ended with action a.
func (m *Model) Count(a models.Action) int { return m.counts[a] }

// AddLogMessage adds a log message
func (m *Model) AddLogMessage(level, message string) {
	color := dimWhite
	switch level {
	case "ERROR":
		color = alertRed
	case "WARN":
		color = neonOrange
	case "SUCCESS":
		color = neonGreen
	case "INFO":
		color = neonCyan
	}

	m.logMessages = append(m.logMessages, LogMessage{
		Time:    time.Now(),
		Level:   level,
		Message: message,
		Color:   color,
	})

	if len(m.logMessages) > m.maxLogMessages {
		m.logMessages = m.logMessages[len(m.logMessages)-m.maxLogMessages:]
	}
}
