package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/runoshun/relay/internal/domain"
)

// colors is the palette of styled command output.
var colors = struct {
	Primary lipgloss.Color
	Muted   lipgloss.Color
	Error   lipgloss.Color
	Success lipgloss.Color
	Warning lipgloss.Color
}{
	Primary: lipgloss.Color("#6C5CE7"), // Purple
	Muted:   lipgloss.Color("#636E72"), // Gray
	Error:   lipgloss.Color("#D63031"), // Red
	Success: lipgloss.Color("#00B894"), // Green
	Warning: lipgloss.Color("#FDCB6E"), // Yellow
}

var (
	labelStyle = lipgloss.NewStyle().Foreground(colors.Muted).Width(16)
	idStyle    = lipgloss.NewStyle().Foreground(colors.Primary).Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(colors.Muted)
)

// leaseStateStyle colors a lease state: free is green, held yellow, stale red.
func leaseStateStyle(state domain.LeaseState) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)
	switch state {
	case domain.LeaseHeld:
		return base.Foreground(colors.Warning)
	case domain.LeaseStale:
		return base.Foreground(colors.Error)
	default:
		return base.Foreground(colors.Success)
	}
}

// field renders one "label value" line.
func field(label, value string) string {
	return labelStyle.Render(label+":") + " " + value + "\n"
}

// oneLine flattens text and cuts it to max runes.
func oneLine(text string, max int) string {
	return domain.Preview(strings.Join(strings.Fields(text), " "), max)
}

func taskRef(id int64) string {
	return idStyle.Render(fmt.Sprintf("#%d", id))
}
