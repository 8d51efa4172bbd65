package main

import "github.com/charmbracelet/lipgloss"

type AppStyles struct {
	Header    lipgloss.Style
	Body      lipgloss.Style
	Footer    lipgloss.Style
	Error     lipgloss.Style
	Success   lipgloss.Style
	Selected  lipgloss.Style
	Normal    lipgloss.Style
	Focused   lipgloss.Style
	Unfocused lipgloss.Style
	Status    lipgloss.Style
	Column    lipgloss.Style
	Cell      lipgloss.Style
	Marker    lipgloss.Style
	Muted     lipgloss.Style
	Prompt    lipgloss.Style
}

func defaultStyles() AppStyles {
	return AppStyles{
		Header:    lipgloss.NewStyle().Background(lipgloss.Color("#1a1a1a")).Foreground(lipgloss.Color("#FFD700")).Bold(true).Padding(0, 1),
		Body:      lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")),
		Footer:    lipgloss.NewStyle().Background(lipgloss.Color("#1a1a1a")).Foreground(lipgloss.Color("#808080")).Padding(0, 1),
		Error:     lipgloss.NewStyle().Background(lipgloss.Color("#FF0000")).Foreground(lipgloss.Color("#FFFFFF")).Padding(0, 1),
		Success:   lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		Selected:  lipgloss.NewStyle().Foreground(lipgloss.Color("#000000")).Background(lipgloss.Color("#FFD700")),
		Normal:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")),
		Focused:   lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#00FF00")),
		Unfocused: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#666666")),
		Status:    lipgloss.NewStyle().Foreground(lipgloss.Color("#808080")),
		Column:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD700")).Bold(true),
		Cell:      lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")),
		Marker:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555")).Bold(true),
		Muted:     lipgloss.NewStyle().Foreground(lipgloss.Color("#666666")).Italic(true),
		Prompt:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD700")),
	}
}
