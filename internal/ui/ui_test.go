package ui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/wakeloop/internal/bus"
	"github.com/normanking/wakeloop/internal/device"
)

func send(m *Monitor, events ...bus.Event) {
	for _, e := range events {
		m.Update(eventMsg(e))
	}
}

func TestMonitor_FollowsTurn(t *testing.T) {
	playing := true
	m := NewMonitor(nil, WithTheme(ThemePlain), WithPlaybackProbe(func() bool { return playing }))
	assert.Equal(t, PhaseIdle, m.Phase())

	send(m, bus.Event{Type: bus.EventWake})
	assert.Equal(t, PhaseListening, m.Phase())

	send(m, bus.Event{Type: bus.EventTranscript, Transcript: "turn on lights"})
	assert.Equal(t, PhaseThinking, m.Phase())

	send(m,
		bus.Event{Type: bus.EventReply, Reply: "The lights are on. Try not to trip.", Provider: "ollama", DurationMs: 420},
		bus.Event{Type: bus.EventEnqueued, Bytes: 4800},
		bus.Event{Type: bus.EventTurnDone, DurationMs: 900},
	)
	assert.Equal(t, PhaseSpeaking, m.Phase())

	m.Update(tickMsg(time.Now()))
	assert.Equal(t, PhaseSpeaking, m.Phase())
	playing = false
	m.Update(tickMsg(time.Now()))
	assert.Equal(t, PhaseIdle, m.Phase())

	view := m.View()
	assert.Contains(t, view, "You: turn on lights")
	assert.Contains(t, view, "Assistant: The lights are on.")
	assert.Contains(t, view, "ollama replied in 420ms")
	assert.Contains(t, view, "turn done in 900ms")
}

func TestMonitor_ErrorsAndEmptyCaptures(t *testing.T) {
	m := NewMonitor(nil, WithTheme(ThemePlain))

	send(m, bus.Event{Type: bus.EventWake}, bus.Event{Type: bus.EventCaptureDone})
	assert.Equal(t, PhaseIdle, m.Phase())

	send(m,
		bus.Event{Type: bus.EventWake},
		bus.Event{Type: bus.EventTranscript, Transcript: "hello"},
		bus.Event{Type: bus.EventTurnError, Stage: "chat", Error: "connection refused"},
	)
	assert.Equal(t, PhaseIdle, m.Phase())

	view := m.View()
	assert.Contains(t, view, "nothing heard")
	assert.Contains(t, view, "chat failed: connection refused")
}

func TestMonitor_Keys(t *testing.T) {
	m := NewMonitor(nil)
	send(m, bus.Event{Type: bus.EventTranscript, Transcript: "hello"})

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlL})
	assert.Empty(t, m.conversation)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestMonitor_LoopDoneQuits(t *testing.T) {
	m := NewMonitor(nil)
	_, cmd := m.Update(loopDoneMsg{err: assert.AnError})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.ErrorIs(t, m.Err(), assert.AnError)
}

func TestMonitor_ReceivesBusEvents(t *testing.T) {
	b := bus.New(16)
	defer b.Close()
	m := NewMonitor(b)
	defer m.Close()

	require.NoError(t, b.Publish(bus.NewEvent(bus.EventWake)))

	msg := m.waitForEvent()()
	ev, ok := msg.(eventMsg)
	require.True(t, ok)
	assert.Equal(t, bus.EventWake, ev.Type)
}

func TestRenderDevices(t *testing.T) {
	DisableColor()
	out := RenderDevices([]device.Info{
		{Index: 0, Name: "Built-in Microphone", HostAPI: "Core Audio", MaxInputChannels: 1, DefaultSampleRate: 48000, DefaultInput: true},
		{Index: 1, Name: "Built-in Output", HostAPI: "Core Audio", MaxOutputChannels: 2, DefaultSampleRate: 48000, DefaultOutput: true},
	}, NewStyles(ThemePlain))

	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "Built-in Microphone")
	assert.Contains(t, out, "48000")
	assert.Contains(t, out, "out")
}

func TestMarkdown_Render(t *testing.T) {
	md := NewMarkdown(ThemePlain, 60)
	assert.Empty(t, md.Render("   "))
	assert.Contains(t, md.Render("**Cake** is a lie."), "Cake")
}

func TestGetTheme(t *testing.T) {
	assert.Equal(t, "Dracula", GetTheme("dracula").Name)
	assert.Equal(t, ThemeDefault.Name, GetTheme("missing").Name)
	assert.Equal(t, []string{"default", "dracula", "nord", "plain"}, ThemeNames())
}
