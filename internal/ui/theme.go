// Package ui renders wakeloop's terminal surfaces: the live voice loop
// monitor, the device table and markdown replies for the chat REPL. It is
// built on Charmbracelet's bubbletea, bubbles, lipgloss and glamour.
package ui

import (
	"sort"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// ═══════════════════════════════════════════════════════════════════════════════
// THEME DEFINITION
// ═══════════════════════════════════════════════════════════════════════════════

// Theme is a color palette. Colors are hex strings for lipgloss.Color().
type Theme struct {
	Name string

	// Base colors
	Foreground string
	Border     string

	// Semantic colors
	Primary   string // wake, emphasis
	Secondary string // replies
	Success   string // completed turns
	Warning   string // barge-in
	Error     string // failed turns
	Muted     string // timestamps, idle state

	// Layout backgrounds
	HeaderBg string
	FooterBg string

	// Conversation colors
	UserFg      string
	AssistantFg string

	// GlamourStyle is the glamour standard style for markdown replies.
	GlamourStyle string
}

// ═══════════════════════════════════════════════════════════════════════════════
// BUILT-IN THEMES
// ═══════════════════════════════════════════════════════════════════════════════

// ThemeDefault is a VS Code dark-inspired palette.
var ThemeDefault = Theme{
	Name: "Default (VS Code Dark)",

	Foreground: "#d4d4d4",
	Border:     "#3e3e42",

	Primary:   "#007acc",
	Secondary: "#9cdcfe",
	Success:   "#4ec9b0",
	Warning:   "#dcdcaa",
	Error:     "#f48771",
	Muted:     "#6a737d",

	HeaderBg: "#252526",
	FooterBg: "#181818",

	UserFg:      "#d4d4d4",
	AssistantFg: "#9cdcfe",

	GlamourStyle: "dark",
}

// ThemeDracula is the Dracula palette.
var ThemeDracula = Theme{
	Name: "Dracula",

	Foreground: "#f8f8f2",
	Border:     "#6272a4",

	Primary:   "#bd93f9",
	Secondary: "#8be9fd",
	Success:   "#50fa7b",
	Warning:   "#f1fa8c",
	Error:     "#ff5555",
	Muted:     "#6272a4",

	HeaderBg: "#21222c",
	FooterBg: "#191a21",

	UserFg:      "#f8f8f2",
	AssistantFg: "#8be9fd",

	GlamourStyle: "dracula",
}

// ThemeNord is the Nord palette.
var ThemeNord = Theme{
	Name: "Nord",

	Foreground: "#eceff4", // Nord6
	Border:     "#4c566a", // Nord3

	Primary:   "#88c0d0", // Nord8
	Secondary: "#81a1c1", // Nord9
	Success:   "#a3be8c", // Nord14
	Warning:   "#ebcb8b", // Nord13
	Error:     "#bf616a", // Nord11
	Muted:     "#4c566a",

	HeaderBg: "#3b4252", // Nord1
	FooterBg: "#2e3440", // Nord0

	UserFg:      "#eceff4",
	AssistantFg: "#88c0d0",

	GlamourStyle: "dark",
}

// ThemePlain carries no colors, for --no-color and dumb terminals.
var ThemePlain = Theme{
	Name:         "Plain",
	GlamourStyle: "notty",
}

// ═══════════════════════════════════════════════════════════════════════════════
// THEME REGISTRY
// ═══════════════════════════════════════════════════════════════════════════════

var availableThemes = map[string]Theme{
	"default": ThemeDefault,
	"dracula": ThemeDracula,
	"nord":    ThemeNord,
	"plain":   ThemePlain,
}

// GetTheme returns the theme with id, or ThemeDefault.
func GetTheme(id string) Theme {
	if theme, ok := availableThemes[id]; ok {
		return theme
	}
	return ThemeDefault
}

// ThemeNames returns the sorted theme ids.
func ThemeNames() []string {
	names := make([]string, 0, len(availableThemes))
	for name := range availableThemes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DisableColor switches lipgloss to plain ASCII output for the process.
func DisableColor() {
	lipgloss.SetColorProfile(termenv.Ascii)
}
