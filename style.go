package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dgnsrekt/lullaby/internal/playback"
	"github.com/dgnsrekt/lullaby/internal/segment"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/wordwrap"
)

var (
	keyword   = lipgloss.NewStyle().Foreground(lipgloss.Color("#B39DDB")).Render
	paragraph = lipgloss.NewStyle().Width(78).Padding(0, 0, 0, 2).Render

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFE082"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#B39DDB"))
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#9E9E9E"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF5350"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#616161"))
	activeMarker = keyword("▶")
)

const helpText = "space pause/resume • n/p next/previous • 1-5 jump • s stop • q quit"

// sectionLabel names section i of n.
func sectionLabel(i, n int) string {
	label := fmt.Sprintf("Section %d/%d", i+1, n)
	if n == segment.Count {
		label += " · " + segment.Title(i)
	}
	return label
}

// renderSection renders the header and wrapped text of a section about to be
// narrated.
func renderSection(i, n int, text string, width int) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(sectionLabel(i, n)))
	b.WriteString("\n")
	b.WriteString(wordwrap.String(strings.TrimSpace(text), max(width-2, 20)))
	return b.String()
}

// renderStatus renders a one line status, truncated to width.
func renderStatus(s playback.Status, n int, width int) string {
	var line string
	switch s.Kind {
	case playback.Loading:
		line = "… preparing " + sectionLabel(s.Section, n)
	case playback.Playing:
		line = activeMarker + " " + sectionLabel(s.Section, n)
	case playback.Paused:
		line = "⏸ paused at " + sectionLabel(s.Section, n)
	case playback.Error:
		return errorStyle.Render(runewidth.Truncate("audio unavailable: "+s.Message, width, "…"))
	default:
		line = "■ stopped"
	}
	return statusStyle.Render(runewidth.Truncate(line, width, "…"))
}
