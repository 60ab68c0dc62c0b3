package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Styles holds pre-computed lipgloss styles derived from a Theme.
type Styles struct {
	theme Theme

	// Layout
	Header lipgloss.Style
	Logo   lipgloss.Style
	Footer lipgloss.Style

	// Loop phase badges
	PhaseIdle      lipgloss.Style
	PhaseListening lipgloss.Style
	PhaseThinking  lipgloss.Style
	PhaseSpeaking  lipgloss.Style

	// Conversation
	UserLabel      lipgloss.Style
	UserText       lipgloss.Style
	AssistantLabel lipgloss.Style
	AssistantText  lipgloss.Style

	// Event log
	Timestamp lipgloss.Style
	Event     lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Separator lipgloss.Style
	Spinner   lipgloss.Style

	// Tables
	TableHeader lipgloss.Style
	TableCell   lipgloss.Style
	TableBorder lipgloss.Style
}

// NewStyles builds every style from theme.
func NewStyles(theme Theme) Styles {
	color := func(hex string) lipgloss.TerminalColor {
		if hex == "" {
			return lipgloss.NoColor{}
		}
		return lipgloss.Color(hex)
	}

	s := Styles{theme: theme}

	s.Header = lipgloss.NewStyle().
		Foreground(color(theme.Foreground)).
		Background(color(theme.HeaderBg)).
		Bold(true).
		Padding(0, 2)

	s.Logo = lipgloss.NewStyle().
		Foreground(color(theme.Primary)).
		Bold(true)

	s.Footer = lipgloss.NewStyle().
		Foreground(color(theme.Muted)).
		Background(color(theme.FooterBg)).
		Padding(0, 2)

	badge := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	s.PhaseIdle = badge.Foreground(color(theme.Muted))
	s.PhaseListening = badge.Foreground(color(theme.Primary))
	s.PhaseThinking = badge.Foreground(color(theme.Warning))
	s.PhaseSpeaking = badge.Foreground(color(theme.Success))

	s.UserLabel = lipgloss.NewStyle().Foreground(color(theme.Primary)).Bold(true)
	s.UserText = lipgloss.NewStyle().Foreground(color(theme.UserFg))
	s.AssistantLabel = lipgloss.NewStyle().Foreground(color(theme.Secondary)).Bold(true)
	s.AssistantText = lipgloss.NewStyle().Foreground(color(theme.AssistantFg))

	s.Timestamp = lipgloss.NewStyle().Foreground(color(theme.Muted))
	s.Event = lipgloss.NewStyle().Foreground(color(theme.Foreground))
	s.Warning = lipgloss.NewStyle().Foreground(color(theme.Warning))
	s.Error = lipgloss.NewStyle().Foreground(color(theme.Error)).Bold(true)
	s.Separator = lipgloss.NewStyle().Foreground(color(theme.Border))
	s.Spinner = lipgloss.NewStyle().Foreground(color(theme.Primary))

	s.TableHeader = lipgloss.NewStyle().Foreground(color(theme.Primary)).Bold(true).Padding(0, 1)
	s.TableCell = lipgloss.NewStyle().Foreground(color(theme.Foreground)).Padding(0, 1)
	s.TableBorder = lipgloss.NewStyle().Foreground(color(theme.Border))

	return s
}

// DefaultStyles returns styles for ThemeDefault.
func DefaultStyles() Styles {
	return NewStyles(ThemeDefault)
}

// Theme returns the theme the styles were built from.
func (s Styles) Theme() Theme { return s.theme }

// RenderHorizontalLine renders a divider of width cells.
func (s Styles) RenderHorizontalLine(width int) string {
	if width <= 0 {
		return ""
	}
	return s.Separator.Render(strings.Repeat("─", width))
}
