package ui

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/normanking/wakeloop/internal/device"
)

// RenderDevices renders the audio devices as a table, marking the system
// defaults.
func RenderDevices(infos []device.Info, s Styles) string {
	rows := make([][]string, 0, len(infos))
	for _, d := range infos {
		var def string
		switch {
		case d.DefaultInput && d.DefaultOutput:
			def = "in/out"
		case d.DefaultInput:
			def = "in"
		case d.DefaultOutput:
			def = "out"
		}
		rows = append(rows, []string{
			strconv.Itoa(d.Index),
			d.Name,
			d.HostAPI,
			strconv.Itoa(d.MaxInputChannels),
			strconv.Itoa(d.MaxOutputChannels),
			fmt.Sprintf("%.0f", d.DefaultSampleRate),
			def,
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(s.TableBorder).
		Headers("#", "NAME", "HOST API", "IN", "OUT", "RATE", "DEFAULT").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return s.TableHeader
			}
			return s.TableCell
		})
	return t.Render()
}
