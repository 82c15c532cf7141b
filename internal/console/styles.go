package console

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	primaryColor = lipgloss.Color("#F59E0B") // amber, lantern branding
	userColor    = lipgloss.Color("#3B82F6") // blue for operator input
	botColor     = lipgloss.Color("#10B981") // green for bot replies
	dimColor     = lipgloss.Color("#6B7280") // gray for help text
	errorColor   = lipgloss.Color("#EF4444") // red for errors
)

// Styles
var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(primaryColor).
			Padding(0, 1)

	userPrefixStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(userColor)

	botPrefixStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(botColor)

	inputBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(primaryColor).
				Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(dimColor).
			Italic(true)

	workingStyle = lipgloss.NewStyle().
			Foreground(primaryColor).
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)

	chatBorderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(dimColor)
)

// formatUserLine renders an operator command
func formatUserLine(text string) string {
	return userPrefixStyle.Render("you:") + " " + text
}

// formatBotLine renders a bot reply
func formatBotLine(botName, text string) string {
	return botPrefixStyle.Render(botName+":") + " " + text
}

// formatError renders a failure line
func formatError(text string) string {
	return errorStyle.Render("✗ " + text)
}

// formatWorking returns the in-flight indicator
func formatWorking() string {
	return workingStyle.Render("⏳ Working...")
}
