package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"igdmbot/pkg/models"
)

const banner = `╦╔═╗  ╔╦╗╔╦╗  ╔╗ ╔═╗╔╦╗
║║ ╦   ║║║║║  ╠╩╗║ ║ ║
╩╚═╝  ═╩╝╩ ╩  ╚═╝╚═╝ ╩ `

// View renders the entire TUI
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	var sections []string
	sections = append(sections, bannerStyle.Width(m.width).Render(banner))

	width := (m.width - 4) / 2
	left := lipgloss.JoinVertical(lipgloss.Left,
		m.renderStatusPanel(width),
		m.renderActionsPanel(width),
	)
	right := lipgloss.JoinVertical(lipgloss.Left,
		m.renderQuotaPanel(width),
		m.renderActivityPanel(width),
		m.renderLogsPanel(width),
	)
	sections = append(sections, lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right))

	if m.showHelp {
		sections = append(sections, m.renderHelp())
	} else {
		sections = append(sections, helpStyle.Render("Press ? for help, q to quit"))
	}

	return baseStyle.Width(m.width).Height(m.height).Render(
		lipgloss.JoinVertical(lipgloss.Left, sections...),
	)
}

func field(label, value string) string {
	return fmt.Sprintf("%s %s", labelStyle.Render(label), value)
}

func (m *Model) renderStatusPanel(width int) string {
	title := titleStyle.Render(" BOT STATUS ")

	auth := authStyle(m.authState).Render(m.authState)
	if m.authReason != "" && m.authState != "authenticated" {
		auth += mutedStyle.Render(" (" + m.authReason + ")")
	}

	cycle := mutedStyle.Render("idle")
	if m.cycleRunning {
		cycle = m.spinner.View() + " " + valueStyle.Render("running "+shortID(m.currentCycle))
	}

	lines := []string{
		field("Account:", valueStyle.Render("@"+m.account)),
		field("Gateway:", valueStyle.Render(m.mode)),
		field("Uptime:", valueStyle.Render(formatDuration(time.Since(m.startTime)))),
		field("Auth:", auth),
		field("Cycle:", cycle),
		field("Cycles run:", valueStyle.Render(fmt.Sprintf("%d", m.cycles))),
	}
	if c := m.lastCycle; c != nil {
		lines = append(lines, field("Last cycle:", valueStyle.Render(fmt.Sprintf(
			"%d posts, %d comments, %d dispatched, %d failures",
			c.PostsMonitored, c.CommentsSeen, c.Dispatched, c.Failures))))
		if c.Error != "" {
			lines = append(lines, errorStyle.Render(truncate(c.Error, width-4)))
		}
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n")),
	)
}

func (m *Model) renderActionsPanel(width int) string {
	title := titleStyle.Render(" ACTIONS ")

	if m.processed == 0 {
		return panelStyle.Width(width).Render(
			lipgloss.JoinVertical(lipgloss.Left, title, mutedStyle.Render("No comments processed yet")),
		)
	}

	actions := make([]models.Action, 0, len(m.counts))
	for a := range m.counts {
		actions = append(actions, a)
	}
	sort.Slice(actions, func(i, j int) bool {
		if m.counts[actions[i]] != m.counts[actions[j]] {
			return m.counts[actions[i]] > m.counts[actions[j]]
		}
		return actions[i] < actions[j]
	})

	lines := []string{field("Total:", valueStyle.Render(fmt.Sprintf("%d", m.processed)))}
	for _, a := range actions {
		lines = append(lines, fmt.Sprintf("%s %d", actionStyle(a).Render(fmt.Sprintf("%-28s", a)), m.counts[a]))
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n")),
	)
}

func (m *Model) renderQuotaPanel(width int) string {
	title := titleStyle.Render(" DM QUOTA ")
	g := m.governor

	limit := "unlimited"
	if g.MaxDMsPerHour > 0 {
		limit = fmt.Sprintf("%d/%d this hour", g.DMsLastHour, g.MaxDMsPerHour)
	}
	lines := []string{
		field("Direct messages:", quotaStyle(m.QuotaUsage()*100).Render(limit)),
		m.quota.View(),
	}
	if g.ElevatedBackoff > 0 {
		lines = append(lines, warningStyle.Render(fmt.Sprintf("Backing off %s after %d rate limit signals", g.ElevatedBackoff, g.Signals)))
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n")),
	)
}

func (m *Model) renderActivityPanel(width int) string {
	title := titleStyle.Render(" RECENT COMMENTS ")

	if len(m.recent) == 0 {
		return panelStyle.Width(width).Render(
			lipgloss.JoinVertical(lipgloss.Left, title, mutedStyle.Render("Waiting for comments...")),
		)
	}

	var lines []string
	for i := len(m.recent) - 1; i >= 0; i-- {
		e := m.recent[i]
		line := fmt.Sprintf("%s %s %s",
			timestampStyle.Render(e.Time.Format("15:04:05")),
			valueStyle.Render(truncate("@"+e.Username, 18)),
			actionStyle(e.Action).Render(string(e.Action)),
		)
		if e.Keyword != "" {
			line += mutedStyle.Render(" [" + e.Keyword + "]")
		}
		lines = append(lines, line)
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n")),
	)
}

func (m *Model) renderLogsPanel(width int) string {
	title := titleStyle.Render(" EVENTS ")

	start := len(m.logMessages) - 8
	if start < 0 {
		start = 0
	}

	var logs []string
	for _, log := range m.logMessages[start:] {
		timestamp := timestampStyle.Render(log.Time.Format("15:04:05"))
		level := lipgloss.NewStyle().Foreground(log.Color).Bold(true).Render(fmt.Sprintf("[%-7s]", log.Level))
		logs = append(logs, fmt.Sprintf("%s %s %s", timestamp, level, mutedStyle.Render(truncate(log.Message, width-25))))
	}

	content := strings.Join(logs, "\n")
	if content == "" {
		content = mutedStyle.Render("No events yet...")
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, content),
	)
}

func (m *Model) renderHelp() string {
	help := `
  Keys:
    q/Q      - Quit (stops the bot)
    ctrl+l   - Clear events
    ?        - Toggle this help

  Actions:
    ` + successStyle.Render("Green") + `    - Link delivered
    ` + warningStyle.Render("Orange") + `   - Public reply posted
    ` + errorStyle.Render("Red") + `      - Nothing reached the commenter
`
	return panelStyle.Width(m.width).Render(help)
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "00:00"
	}

	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

func truncate(s string, n int) string {
	if n <= 3 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
