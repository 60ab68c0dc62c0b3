package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/normanking/wakeloop/internal/bus"
	"github.com/normanking/wakeloop/internal/metrics"
)

const (
	maxConversation = 50
	maxEventLog     = 200
	refreshInterval = 250 * time.Millisecond
)

// Phase is what the voice loop is doing, as seen from its events.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseListening
	PhaseThinking
	PhaseSpeaking
)

// String returns the phase label shown in the header.
func (p Phase) String() string {
	switch p {
	case PhaseListening:
		return "listening"
	case PhaseThinking:
		return "thinking"
	case PhaseSpeaking:
		return "speaking"
	default:
		return "waiting for wake word"
	}
}

type entryKind int

const (
	entryUser entryKind = iota
	entryAssistant
	entryEvent
	entryWarning
	entryError
)

type entry struct {
	at   time.Time
	kind entryKind
	text string
}

// Messages
type (
	eventMsg    bus.Event
	tickMsg     time.Time
	loopDoneMsg struct{ err error }
)

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithDashboard shows the metrics dashboard under the event log.
func WithDashboard(d *metrics.Dashboard) MonitorOption {
	return func(m *Monitor) { m.dashboard = d }
}

// WithPlaybackProbe lets the monitor notice when queued speech has finished
// playing, which no event reports.
func WithPlaybackProbe(playing func() bool) MonitorOption {
	return func(m *Monitor) { m.playing = playing }
}

// WithTheme selects the color theme.
func WithTheme(theme Theme) MonitorOption {
	return func(m *Monitor) { m.styles = NewStyles(theme) }
}

// Monitor is the bubbletea model for `wakeloop run --monitor`. It follows
// the loop through bus events and never calls into the loop itself.
type Monitor struct {
	bus    *bus.Bus
	sub    bus.SubscriptionID
	events chan bus.Event

	dashboard *metrics.Dashboard
	playing   func() bool

	styles  Styles
	keys    KeyMap
	help    help.Model
	spinner spinner.Model

	phase        Phase
	conversation []entry
	log          []entry
	showDetails  bool

	width  int
	height int
	err    error
}

// NewMonitor creates a monitor subscribed to every event on b. b may be nil.
func NewMonitor(b *bus.Bus, opts ...MonitorOption) *Monitor {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := &Monitor{
		bus:     b,
		events:  make(chan bus.Event, bus.DefaultChannelBuffer),
		styles:  DefaultStyles(),
		keys:    DefaultKeyMap(),
		help:    help.New(),
		spinner: sp,
		width:   80,
		height:  24,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.spinner.Style = m.styles.Spinner

	if b != nil {
		m.sub = b.Subscribe("", func(e bus.Event) {
			select {
			case m.events <- e:
			default:
			}
		})
	}
	return m
}

// Close unsubscribes from the bus.
func (m *Monitor) Close() {
	if m.bus != nil && m.sub != "" {
		_ = m.bus.Unsubscribe(m.sub)
		m.sub = ""
	}
}

// Phase returns the current loop phase.
func (m *Monitor) Phase() Phase { return m.phase }

// Err returns the error the loop ended with, if any.
func (m *Monitor) Err() error { return m.err }

// Init implements tea.Model.
func (m *Monitor) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForEvent(), tick())
}

func (m *Monitor) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-m.events)
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update implements tea.Model.
func (m *Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Clear):
			m.conversation = nil
			m.log = nil
		case key.Matches(msg, m.keys.Details):
			m.showDetails = !m.showDetails
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		if m.dashboard != nil {
			m.dashboard.SetWidth(msg.Width)
		}
		return m, nil

	case eventMsg:
		m.apply(bus.Event(msg))
		return m, m.waitForEvent()

	case tickMsg:
		if m.phase == PhaseSpeaking && m.playing != nil && !m.playing() {
			m.phase = PhaseIdle
		}
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case loopDoneMsg:
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

// apply moves the phase and appends to the panes for one event.
func (m *Monitor) apply(e bus.Event) {
	at := e.Timestamp
	if at.IsZero() {
		at = time.Now()
	}

	switch e.Type {
	case bus.EventWake:
		m.phase = PhaseListening
		m.addLog(at, entryEvent, "wake word")

	case bus.EventCaptureDone:
		if e.Transcript == "" {
			m.phase = PhaseIdle
			m.addLog(at, entryEvent, "nothing heard")
		}

	case bus.EventCaptureStale:
		m.addLog(at, entryEvent, "capture superseded")

	case bus.EventTranscript:
		m.phase = PhaseThinking
		m.addConversation(at, entryUser, e.Transcript)

	case bus.EventBargeIn:
		m.addLog(at, entryWarning, fmt.Sprintf("barge-in, dropped %d bytes of speech", e.Bytes))

	case bus.EventReply:
		m.addConversation(at, entryAssistant, e.Reply)
		m.addLog(at, entryEvent, fmt.Sprintf("%s replied in %dms", orUnknown(e.Provider), e.DurationMs))

	case bus.EventSynthesized:
		m.addLog(at, entryEvent, fmt.Sprintf("%s synthesized %d bytes in %dms", orUnknown(e.Provider), e.Bytes, e.DurationMs))

	case bus.EventEnqueued:
		m.phase = PhaseSpeaking

	case bus.EventTurnDone:
		m.addLog(at, entryEvent, fmt.Sprintf("turn done in %dms", e.DurationMs))

	case bus.EventTurnError:
		m.phase = PhaseIdle
		m.addLog(at, entryError, fmt.Sprintf("%s failed: %s", e.Stage, e.Error))

	case bus.EventLoopStarted:
		m.addLog(at, entryEvent, "loop started")

	case bus.EventLoopStopped:
		m.phase = PhaseIdle
		if e.Error != "" {
			m.addLog(at, entryError, "loop stopped: "+e.Error)
		} else {
			m.addLog(at, entryEvent, "loop stopped")
		}
	}
}

func (m *Monitor) addConversation(at time.Time, kind entryKind, text string) {
	m.conversation = append(m.conversation, entry{at: at, kind: kind, text: text})
	if len(m.conversation) > maxConversation {
		m.conversation = m.conversation[len(m.conversation)-maxConversation:]
	}
}

func (m *Monitor) addLog(at time.Time, kind entryKind, text string) {
	m.log = append(m.log, entry{at: at, kind: kind, text: text})
	if len(m.log) > maxEventLog {
		m.log = m.log[len(m.log)-maxEventLog:]
	}
}

// View implements tea.Model.
func (m *Monitor) View() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")

	footer := m.help.View(m.keys)
	var dash string
	if m.dashboard != nil {
		if m.showDetails {
			dash = m.dashboard.Render()
		} else {
			dash = m.dashboard.RenderCompact()
		}
	}

	// Header, blank line, separator, dashboard and footer are fixed; the
	// rest is split between the two panes.
	fixed := 4 + strings.Count(dash, "\n") + 1 + strings.Count(footer, "\n") + 1
	avail := m.height - fixed
	if avail < 4 {
		avail = 4
	}
	convLines := avail / 2
	logLines := avail - convLines

	for _, line := range tail(m.renderConversation(), convLines) {
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString(m.styles.RenderHorizontalLine(m.width))
	b.WriteString("\n")
	for _, line := range tail(m.renderLog(), logLines) {
		b.WriteString(line)
		b.WriteString("\n")
	}

	if dash != "" {
		b.WriteString(dash)
		b.WriteString("\n")
	}
	b.WriteString(m.styles.Footer.Render(footer))
	return b.String()
}

func (m *Monitor) renderHeader() string {
	var badge string
	switch m.phase {
	case PhaseListening:
		badge = m.styles.PhaseListening.Render(m.spinner.View() + " " + m.phase.String())
	case PhaseThinking:
		badge = m.styles.PhaseThinking.Render(m.spinner.View() + " " + m.phase.String())
	case PhaseSpeaking:
		badge = m.styles.PhaseSpeaking.Render(m.phase.String())
	default:
		badge = m.styles.PhaseIdle.Render(m.phase.String())
	}
	return m.styles.Header.Render(m.styles.Logo.Render("wakeloop") + "  " + badge)
}

func (m *Monitor) renderConversation() []string {
	lines := make([]string, 0, len(m.conversation))
	for _, e := range m.conversation {
		if e.kind == entryUser {
			lines = append(lines, m.styles.UserLabel.Render("You: ")+m.styles.UserText.Render(e.text))
		} else {
			lines = append(lines, m.styles.AssistantLabel.Render("Assistant: ")+m.styles.AssistantText.Render(e.text))
		}
	}
	return lines
}

func (m *Monitor) renderLog() []string {
	lines := make([]string, 0, len(m.log))
	for _, e := range m.log {
		style := m.styles.Event
		switch e.kind {
		case entryWarning:
			style = m.styles.Warning
		case entryError:
			style = m.styles.Error
		}
		lines = append(lines, m.styles.Timestamp.Render(e.at.Local().Format("15:04:05"))+" "+style.Render(e.text))
	}
	return lines
}

func tail(lines []string, n int) []string {
	if len(lines) > n {
		return lines[len(lines)-n:]
	}
	return lines
}

func orUnknown(s string) string {
	if s == "" {
		return "backend"
	}
	return s
}

// RunMonitor shows m full screen while loop runs. Quitting the monitor
// cancels the loop; the loop ending closes the monitor. It returns the
// loop's error.
func RunMonitor(ctx context.Context, m *Monitor, loop func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	loopErr := make(chan error, 1)
	go func() {
		err := loop(ctx)
		loopErr <- err
		p.Send(loopDoneMsg{err: err})
	}()

	_, uiErr := p.Run()
	cancel()
	err := <-loopErr

	if uiErr != nil && !errors.Is(uiErr, tea.ErrProgramKilled) {
		if err == nil {
			err = fmt.Errorf("monitor: %w", uiErr)
		}
	}
	return err
}
