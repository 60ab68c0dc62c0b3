package metrics

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Dashboard renders session statistics for the terminal monitor.
type Dashboard struct {
	collector *Collector
	styles    DashboardStyles
	width     int
}

// DashboardStyles defines the styling for the dashboard.
type DashboardStyles struct {
	Border    lipgloss.Style
	Header    lipgloss.Style
	Label     lipgloss.Style
	Value     lipgloss.Style
	Success   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style
}

// NewDashboard creates a dashboard renderer.
func NewDashboard(collector *Collector) *Dashboard {
	return &Dashboard{
		collector: collector,
		width:     80,
		styles:    defaultDashboardStyles(),
	}
}

func defaultDashboardStyles() DashboardStyles {
	return DashboardStyles{
		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1),
		Header:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		Label:     lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		Value:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("255")),
		Success:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("82")),
		Error:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		Highlight: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
	}
}

// SetWidth sets the dashboard width.
func (d *Dashboard) SetWidth(w int) {
	d.width = w
}

// Render returns the bordered multi-line dashboard.
func (d *Dashboard) Render() string {
	stats := d.collector.SessionStats()

	var content strings.Builder
	content.WriteString(d.styles.Header.Render("SESSION"))
	content.WriteString("\n")

	content.WriteString(fmt.Sprintf("%s %s │ %s %s │ %s %s\n",
		d.styles.Label.Render("Wakes:"),
		d.styles.Value.Render(fmt.Sprintf("%d", stats.Wakes)),
		d.styles.Label.Render("Turns:"),
		d.styles.Value.Render(fmt.Sprintf("%d", stats.Turns)),
		d.styles.Label.Render("Barge-ins:"),
		d.styles.Highlight.Render(fmt.Sprintf("%d", stats.BargeIns)),
	))

	content.WriteString(fmt.Sprintf("%s %s │ %s %s │ %s %s\n",
		d.styles.Label.Render("Latency:"),
		d.styles.Value.Render(fmt.Sprintf("%.2fs avg", stats.AvgTurn().Seconds())),
		d.styles.Label.Render("Audio:"),
		d.styles.Value.Render(formatBytes(stats.PlaybackBytes)),
		d.styles.Label.Render("Errors:"),
		d.formatErrors(stats.Errors),
	))

	content.WriteString(fmt.Sprintf("%s %s │ %s",
		d.styles.Label.Render("Last:"),
		d.styles.Value.Render(fmt.Sprintf("%s (%s)", orNone(stats.LastEvent), since(stats.LastEventTime))),
		d.renderEventActivity(),
	))

	return d.styles.Border.Width(d.width - 4).Render(content.String())
}

// RenderCompact returns a single-line summary.
func (d *Dashboard) RenderCompact() string {
	stats := d.collector.SessionStats()
	return fmt.Sprintf("[wakeloop] %d wakes │ %d turns │ %.2fs avg │ %d errors │ %s",
		stats.Wakes,
		stats.Turns,
		stats.AvgTurn().Seconds(),
		stats.Errors,
		d.renderEventActivity(),
	)
}

func (d *Dashboard) formatErrors(n int) string {
	if n == 0 {
		return d.styles.Success.Render("0")
	}
	return d.styles.Error.Render(fmt.Sprintf("%d", n))
}

// renderEventActivity shows one dot per recent event.
func (d *Dashboard) renderEventActivity() string {
	events := d.collector.RecentEvents(5)
	activity := make([]string, 5)
	for i := range activity {
		if i < len(events) {
			activity[i] = "●"
		} else {
			activity[i] = "○"
		}
	}
	return strings.Join(activity, "")
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func since(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	elapsed := time.Since(t)
	switch {
	case elapsed < time.Second:
		return "now"
	case elapsed < time.Minute:
		return fmt.Sprintf("%.0fs", elapsed.Seconds())
	default:
		return fmt.Sprintf("%.0fm", elapsed.Minutes())
	}
}

// formatBytes formats byte counts with k/M suffixes.
func formatBytes(n int64) string {
	switch {
	case n < 1000:
		return fmt.Sprintf("%dB", n)
	case n < 1000000:
		return fmt.Sprintf("%.1fkB", float64(n)/1000.0)
	}
	return fmt.Sprintf("%.1fMB", float64(n)/1000000.0)
}
