package tui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igdmbot/pkg/models"
)

func TestModelRecordsComments(t *testing.T) {
	m := NewModel("shop", "web")
	m.maxRecent = 3

	for i, a := range []models.Action{
		models.ActionDirectDMSentAnyKeyword,
		models.ActionNoKeywordMatch,
		models.ActionDirectDMSentAnyKeyword,
		models.ActionDirectDMFailed,
	} {
		m.RecordComment(CommentEntry{CommentID: string(rune('a' + i)), Username: "alice", Action: a})
	}

	assert.Equal(t, 4, m.processed)
	assert.Equal(t, 2, m.Count(models.ActionDirectDMSentAnyKeyword))
	assert.Equal(t, 1, m.Count(models.ActionDirectDMFailed))
	require.Len(t, m.recent, 3)
	assert.Equal(t, "b", m.recent[0].CommentID)
	assert.False(t, m.recent[0].Time.IsZero())
}

func TestModelCycleLifecycle(t *testing.T) {
	m := NewModel("shop", "web")

	m.Update(CycleStartMsg{ID: "0123456789"})
	assert.True(t, m.cycleRunning)
	assert.Equal(t, "0123456789", m.currentCycle)

	start := time.Now()
	m.Update(CycleDoneMsg{Summary: CycleSummary{ID: "0123456789", Started: start, Finished: start.Add(time.Second), CommentsSeen: 4}})
	assert.False(t, m.cycleRunning)
	assert.Equal(t, 1, m.cycles)
	require.NotNil(t, m.lastCycle)
	assert.Equal(t, 4, m.lastCycle.CommentsSeen)

	m.Update(CycleDoneMsg{Summary: CycleSummary{AuthFailed: true}})
	require.NotEmpty(t, m.logMessages)
	assert.Equal(t, "ERROR", m.logMessages[len(m.logMessages)-1].Level)
}

func TestModelGovernorAndAuth(t *testing.T) {
	m := NewModel("shop", "graph")

	_, cmd := m.Update(GovernorMsg{State: GovernorState{DMsLastHour: 30, MaxDMsPerHour: 40}})
	assert.NotNil(t, cmd, "quota bar animates")
	assert.InDelta(t, 0.75, m.QuotaUsage(), 1e-9)

	m.Update(GovernorMsg{State: GovernorState{DMsLastHour: 50, MaxDMsPerHour: 40, Signals: 1, ElevatedBackoff: 30 * time.Second}})
	assert.Equal(t, 1.0, m.QuotaUsage())
	assert.Equal(t, "WARN", m.logMessages[len(m.logMessages)-1].Level)

	m.governor = GovernorState{}
	assert.Zero(t, m.QuotaUsage(), "cap disabled")

	m.Update(AuthMsg{State: "failed", Reason: "challenge_required"})
	m.Update(AuthMsg{State: "failed", Reason: "challenge_required"})
	assert.Equal(t, "failed", m.authState)
	var errorsLogged int
	for _, l := range m.logMessages {
		if l.Level == "ERROR" {
			errorsLogged++
		}
	}
	assert.Equal(t, 1, errorsLogged, "repeated failure logged once")
}

func TestModelLogLimit(t *testing.T) {
	m := NewModel("shop", "web")
	for i := 0; i < 60; i++ {
		m.AddLogMessage("INFO", "event")
	}
	assert.Len(t, m.logMessages, 50)

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlL})
	assert.Empty(t, m.logMessages)
}

func TestModelQuitKey(t *testing.T) {
	m := NewModel("shop", "web")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestViewRendersPanels(t *testing.T) {
	m := NewModel("shop", "web")
	assert.Equal(t, "Initializing...", m.View())

	m.Update(tea.WindowSizeMsg{Width: 160, Height: 50})
	m.RecordComment(CommentEntry{Username: "alice", Action: models.ActionEncouragedToDM, Keyword: "info"})
	m.SetAuth("authenticated", "")

	out := m.View()
	for _, want := range []string{"BOT STATUS", "DM QUOTA", "RECENT COMMENTS", "@alice", "encouraged_to_dm", "[info]"} {
		assert.Contains(t, out, want)
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", truncate("hello", 10))
	assert.Equal(t, "hel...", truncate("hello world", 6))
	assert.Equal(t, "01:05", formatDuration(65*time.Second))
	assert.Equal(t, "01:00:00", formatDuration(time.Hour))
}
