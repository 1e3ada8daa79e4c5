package tui

import (
	"github.com/charmbracelet/lipgloss"

	"igdmbot/pkg/models"
)

var (
	neonCyan    = lipgloss.Color("#00FFFF")
	neonMagenta = lipgloss.Color("#FF00FF")
	neonGreen   = lipgloss.Color("#39FF14")
	neonYellow  = lipgloss.Color("#FFFF00")
	neonOrange  = lipgloss.Color("#FF6700")
	alertRed    = lipgloss.Color("#FF0000")
	darkBg      = lipgloss.Color("#0A0E27")
	darkBg2     = lipgloss.Color("#1A1E37")
	dimWhite    = lipgloss.Color("#B0B0B0")

	baseStyle = lipgloss.NewStyle().
			Background(darkBg).
			Foreground(dimWhite)

	bannerStyle = lipgloss.NewStyle().
			Foreground(neonCyan).
			Bold(true).
			Padding(1, 0)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(neonMagenta).
			Background(darkBg2).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Background(neonMagenta).
			Foreground(darkBg).
			Bold(true).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(neonCyan).
			Bold(true)

	valueStyle = lipgloss.NewStyle().
			Foreground(neonYellow)

	successStyle = lipgloss.NewStyle().
			Foreground(neonGreen).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(neonOrange).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(alertRed).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(dimWhite)

	timestampStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")).
			Padding(1, 0, 0, 2)
)

// actionStyle colours an action by how it went for the commenter.
func actionStyle(a models.Action) lipgloss.Style {
	switch {
	case a.Failed():
		return errorStyle
	case a == models.ActionNoKeywordMatch || a == models.ActionPostNotMonitored:
		return mutedStyle
	case a == models.ActionEncouragedToDM || a == models.ActionCommentReplyFallback:
		return warningStyle
	default:
		return successStyle
	}
}

// authStyle colours the authenticator state.
func authStyle(state string) lipgloss.Style {
	switch state {
	case "authenticated":
		return successStyle
	case "failed", "expired":
		return errorStyle
	default:
		return warningStyle
	}
}

// quotaStyle returns the style for the hourly DM usage percentage.
func quotaStyle(usage float64) lipgloss.Style {
	switch {
	case usage >= 90:
		return errorStyle
	case usage >= 70:
		return warningStyle
	default:
		return successStyle
	}
}
