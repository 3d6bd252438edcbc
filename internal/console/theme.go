// ABOUTME: Theme system for console styling with lipgloss
// ABOUTME: Provides predefined themes and style constructors for console components
package console

import "github.com/charmbracelet/lipgloss"

type Theme struct {
	Primary    lipgloss.Color
	Background lipgloss.Color
	Foreground lipgloss.Color
	InputBg    lipgloss.Color
	Success    lipgloss.Color
	Warning    lipgloss.Color
	Error      lipgloss.Color
	Outbound   lipgloss.Color
	Inbound    lipgloss.Color
	Dim        lipgloss.Color
}

var DefaultTheme = Theme{
	Primary:    lipgloss.Color("#7C3AED"), // Purple
	Background: lipgloss.Color("#1E1E2E"), // Dark gray
	Foreground: lipgloss.Color("#CDD6F4"), // Light gray
	InputBg:    lipgloss.Color("#313244"), // Medium gray
	Success:    lipgloss.Color("#A6E3A1"), // Green
	Warning:    lipgloss.Color("#F9E2AF"), // Yellow
	Error:      lipgloss.Color("#F38BA8"), // Red
	Outbound:   lipgloss.Color("#89B4FA"), // Blue
	Inbound:    lipgloss.Color("#94E2D5"), // Cyan
	Dim:        lipgloss.Color("#6C7086"), // Dim gray
}

var LightTheme = Theme{
	Primary:    lipgloss.Color("#268BD2"), // Blue
	Background: lipgloss.Color("#FDF6E3"), // Cream
	Foreground: lipgloss.Color("#657B83"), // Gray
	InputBg:    lipgloss.Color("#EEE8D5"), // Light cream
	Success:    lipgloss.Color("#859900"), // Olive green
	Warning:    lipgloss.Color("#B58900"), // Yellow
	Error:      lipgloss.Color("#DC322F"), // Red
	Outbound:   lipgloss.Color("#268BD2"), // Blue
	Inbound:    lipgloss.Color("#2AA198"), // Cyan
	Dim:        lipgloss.Color("#93A1A1"), // Light gray
}

func GetTheme(name string) Theme {
	switch name {
	case "light":
		return LightTheme
	default:
		return DefaultTheme
	}
}

// Style constructors

func (t Theme) InputStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Background(t.InputBg).
		Foreground(t.Foreground).
		Padding(0, 1)
}

func (t Theme) StatusBarStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Background(t.Primary).
		Foreground(t.Background).
		Padding(0, 1)
}

func (t Theme) OutboundStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Outbound)
}

func (t Theme) InboundStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Inbound)
}

func (t Theme) ErrorStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(t.Error).
		Bold(true)
}

func (t Theme) DimStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(t.Dim)
}
