package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"GPTAssistant/internal/format"
	"GPTAssistant/internal/session"
)

func (m *Model) renderTranscript() string {
	msgs := m.session.Messages()
	if len(msgs) == 0 {
		return lipgloss.PlaceHorizontal(m.width, lipgloss.Center, dimStyle.Render("No messages yet..."))
	}

	pending := m.session.Pending()
	now := m.now()
	maxBubble := max(m.width*4/5, 20)

	var b strings.Builder
	for i, msg := range msgs {
		last := i == len(msgs)-1
		typing := pending && last && msg.Role == session.RoleAssistant

		body := msg.Content
		if msg.Role == session.RoleAssistant && !typing {
			body = m.renderMarkdown(i, msg.Content, maxBubble-2)
		}

		lines := []string{body, timeStyle.Render(format.Relative(msg.Timestamp, now))}
		if typing {
			lines = append(lines, typingStyle.Render(m.spinner.View()+" Typing..."))
		}

		b.WriteString("\n")
		if msg.Role == session.RoleUser {
			bubble := userBubbleStyle.Width(bubbleWidth(lines, maxBubble)).Render(strings.Join(lines, "\n"))
			b.WriteString(lipgloss.PlaceHorizontal(m.width, lipgloss.Right, bubble))
		} else {
			bubble := assistantBubbleStyle.Width(bubbleWidth(lines, maxBubble)).Render(strings.Join(lines, "\n"))
			b.WriteString(bubble)
		}
		b.WriteString("\n")
	}
	if pending && msgs[len(msgs)-1].Role == session.RoleUser {
		b.WriteString("\n")
		b.WriteString(assistantBubbleStyle.Render(typingStyle.Render(m.spinner.View() + " Typing...")))
		b.WriteString("\n")
	}
	return b.String()
}

// renderMarkdown renders a finished assistant reply, caching by position.
// Plain text is used when no renderer is configured or rendering fails.
func (m *Model) renderMarkdown(idx int, content string, width int) string {
	if m.renderer == nil || content == "" {
		return content
	}
	if cached, ok := m.rendered[idx]; ok && cached.content == content {
		return cached.out
	}

	out, err := m.renderer.Render(content)
	if err != nil {
		return content
	}
	out = strings.Trim(out, "\n")
	if lipgloss.Width(out) > width {
		out = content
	}
	m.rendered[idx] = renderedMessage{content: content, out: out}
	return out
}

// bubbleWidth sizes a bubble to its widest line, capped at limit.
func bubbleWidth(lines []string, limit int) int {
	w := 0
	for _, l := range lines {
		w = max(w, lipgloss.Width(l))
	}
	// horizontal padding of the bubble styles
	return min(w+2, limit)
}
