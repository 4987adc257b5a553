package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	onlineStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	offlineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	sectionStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	mutedStyle    = lipgloss.NewStyle().Faint(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	selectedStyle = lipgloss.NewStyle().Bold(true).Reverse(true)
	doneStyle     = lipgloss.NewStyle().Faint(true).Strikethrough(true)
	helpStyle     = lipgloss.NewStyle().Faint(true)

	panelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("8")).Padding(0, 1)
	inputStyle = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("12")).Padding(0, 1)

	boxChecked   = "☑"
	boxUnchecked = "☐"
)
