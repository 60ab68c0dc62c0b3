package ui

import (
	"github.com/charmbracelet/bubbles/key"
)

// KeyMap defines the monitor's keyboard shortcuts. It implements
// help.KeyMap.
type KeyMap struct {
	// Quit stops the monitor and the voice loop with it
	Quit key.Binding

	// Clear empties the conversation and event panes
	Clear key.Binding

	// Details toggles the full metrics dashboard
	Details key.Binding

	// Help toggles the full help view
	Help key.Binding
}

// DefaultKeyMap returns the default shortcuts.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "q"),
			key.WithHelp("q/ctrl+c", "quit"),
		),
		Clear: key.NewBinding(
			key.WithKeys("ctrl+l"),
			key.WithHelp("ctrl+l", "clear"),
		),
		Details: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "dashboard"),
		),
		Help: key.NewBinding(
			key.WithKeys("?", "f1"),
			key.WithHelp("?/f1", "help"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Details, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Details, k.Clear},
		{k.Help, k.Quit},
	}
}
