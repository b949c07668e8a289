package hostlink

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	onlineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	offlineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle     = lipgloss.NewStyle().Faint(true)
)

// Render draws the board as a plain table for a terminal.
func (b *Board) Render(now time.Time) string {
	var sb strings.Builder
	recv := offlineStyle.Render("offline")
	if b.receiverOnline {
		recv = onlineStyle.Render("online")
	}
	fmt.Fprintf(&sb, "%s %s\n", titleStyle.Render("receiver"), recv)

	rows := []string{titleStyle.Render(fmt.Sprintf("%-4s %-8s %-6s %-4s %-6s %s", "id", "state", "motion", "ramp", "seq", "age"))}
	for _, s := range b.Senders() {
		state := offlineStyle.Render(fmt.Sprintf("%-8s", "offline"))
		if s.Online {
			state = onlineStyle.Render(fmt.Sprintf("%-8s", "online"))
		}
		age := dimStyle.Render(now.Sub(s.LastUpdate).Truncate(time.Second).String())
		rows = append(rows, fmt.Sprintf("%-4d %s %-6d %-4d %-6d %s", s.ID, state, s.Motion, s.Ramp, s.Seq, age))
	}
	sb.WriteString(lipgloss.JoinVertical(lipgloss.Left, rows...))
	sb.WriteString("\n")
	return sb.String()
}
