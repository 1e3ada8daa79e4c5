// Package tui renders a live terminal dashboard for the running bot.
package tui

import (
	"fmt"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

const eventBuffer = 256

// Dashboard owns the bubbletea program. Its notification methods are safe
// to call from any goroutine and never block; events that arrive while the
// buffer is full are dropped.
type Dashboard struct {
	program *tea.Program
	model   *Model
	events  chan tea.Msg
	done    chan struct{}
	once    sync.Once
}

// NewDashboard creates a dashboard for account. opts are passed to the
// bubbletea program; the alternate screen is always used.
func NewDashboard(account, mode string, opts ...tea.ProgramOption) *Dashboard {
	model := NewModel(account, mode)
	opts = append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)
	return &Dashboard{
		program: tea.NewProgram(model, opts...),
		model:   model,
		events:  make(chan tea.Msg, eventBuffer),
		done:    make(chan struct{}),
	}
}

// Run blocks until the user quits or Stop is called.
func (d *Dashboard) Run() error {
	go d.forward()
	defer d.close()

	_, err := d.program.Run()
	return err
}

// Stop quits the program.
func (d *Dashboard) Stop() {
	d.program.Quit()
}

func (d *Dashboard) close() {
	d.once.Do(func() { close(d.done) })
}

func (d *Dashboard) forward() {
	for {
		select {
		case <-d.done:
			return
		case msg := <-d.events:
			d.program.Send(msg)
		}
	}
}

// Send queues msg for the program.
func (d *Dashboard) Send(msg tea.Msg) {
	select {
	case <-d.done:
	case d.events <- msg:
	default:
	}
}

// CycleStarted notifies the dashboard that a polling cycle began.
func (d *Dashboard) CycleStarted(id string) {
	d.Send(CycleStartMsg{ID: id})
}

// CycleFinished notifies the dashboard that a polling cycle ended.
func (d *Dashboard) CycleFinished(s CycleSummary) {
	d.Send(CycleDoneMsg{Summary: s})
}

// CommentProcessed adds one processed comment.
func (d *Dashboard) CommentProcessed(e CommentEntry) {
	d.Send(CommentMsg{Entry: e})
}

// UpdateAuth updates the authenticator state.
func (d *Dashboard) UpdateAuth(state, reason string) {
	d.Send(AuthMsg{State: state, Reason: reason})
}

// UpdateGovernor updates the pacing counters.
func (d *Dashboard) UpdateGovernor(g GovernorState) {
	d.Send(GovernorMsg{State: g})
}

// Log sends a log message to the TUI
func (d *Dashboard) Log(level, format string, args ...interface{}) {
	d.Send(LogMsg{Level: level, Message: fmt.Sprintf(format, args...)})
}

// LogInfo logs an info message
func (d *Dashboard) LogInfo(format string, args ...interface{}) {
	d.Log("INFO", format, args...)
}

// LogSuccess logs a success message
func (d *Dashboard) LogSuccess(format string, args ...interface{}) {
	d.Log("SUCCESS", format, args...)
}

// LogWarning logs a warning message
func (d *Dashboard) LogWarning(format string, args ...interface{}) {
	d.Log("WARN", format, args...)
}

// LogError logs an error message
func (d *Dashboard) LogError(format string, args ...interface{}) {
	d.Log("ERROR", format, args...)
}
