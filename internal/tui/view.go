package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/hay-kot/mqchat/internal/chat"
	"github.com/hay-kot/mqchat/internal/core/transcript"
	"github.com/hay-kot/mqchat/internal/styles"
)

// header, two dividers, input, status and help lines
const chromeHeight = 6

func (m Model) View() string {
	if !m.ready {
		return "connecting…"
	}

	divider := styles.DividerStyle.Render(strings.Repeat("─", max(m.width, 1)))

	var b strings.Builder
	b.WriteString(m.headerView())
	b.WriteString("\n")
	b.WriteString(divider)
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(divider)
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(m.statusView())
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))

	return b.String()
}

func (m Model) headerView() string {
	title := m.opts.Self + " → " + m.peer
	if m.peer == m.opts.BroadcastLabel {
		title = m.opts.Self + " → everyone (" + m.peer + ")"
	}
	return styles.HeaderStyle.Render(title)
}

func (m Model) statusView() string {
	var indicator string
	switch m.status {
	case chat.StateConnected:
		indicator = styles.StatusConnected.Render("● " + m.status.String())
	case chat.StateConnecting:
		indicator = styles.StatusConnecting.Render("● " + m.status.String())
	default:
		indicator = styles.StatusDisconnected.Render("● " + m.status.String())
	}

	if m.err != nil {
		return indicator + "  " + styles.ErrorStyle.Render(m.err.Error())
	}
	return indicator
}

// renderLines styles transcript records for display, wrapping to width.
func renderLines(lines []string, self string, width int) string {
	if len(lines) == 0 {
		return styles.HelpStyle.Render("no messages yet")
	}

	wrap := lipgloss.NewStyle()
	if width > 0 {
		wrap = wrap.Width(width)
	}

	out := make([]string, 0, len(lines))
	for _, line := range lines {
		out = append(out, wrap.Render(renderLine(line, self)))
	}
	return strings.Join(out, "\n")
}

func renderLine(line, self string) string {
	author, stamp, text, ok := transcript.SplitLine(line)
	if !ok {
		return styles.TextStyle.Render(line)
	}

	name := styles.PeerStyle.Render(author)
	if author == self {
		name = styles.SelfStyle.Render(author)
	}

	return name + " " + styles.StampStyle.Render(stamp) + " " + styles.TextStyle.Render(text)
}
