package ui

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// Markdown renders chat replies for the terminal, falling back to the raw
// text when glamour cannot render it.
type Markdown struct {
	renderer *glamour.TermRenderer
}

// NewMarkdown creates a renderer using the theme's glamour style, wrapping
// at width.
func NewMarkdown(theme Theme, width int) *Markdown {
	if width <= 0 {
		width = 80
	}
	style := theme.GlamourStyle
	if style == "" {
		style = "dark"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return &Markdown{}
	}
	return &Markdown{renderer: r}
}

// Render returns content rendered as markdown.
func (m *Markdown) Render(content string) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	if m.renderer == nil {
		return content
	}
	out, err := m.renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n")
}
