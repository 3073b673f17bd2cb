package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"GPTAssistant/internal/chat"
	"GPTAssistant/internal/reveal"
)

// responseMsg carries the result of a completion request back to Update.
type responseMsg struct {
	result chat.Result
}

// revealTickMsg is one firing of the reveal timer. gen ties it to the reveal
// that scheduled it; ticks from an older reveal are discarded.
type revealTickMsg struct {
	gen int
}

// clockMsg refreshes relative timestamps.
type clockMsg time.Time

// Options configures the TUI
type Options struct {
	Title    string
	Interval time.Duration
	Renderer *glamour.TermRenderer // nil renders replies as plain text
	Now      func() time.Time
}

// Model is the bubbletea model of the chat screen.
type Model struct {
	session  *chat.Session
	input    textarea.Model
	viewport viewport.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer
	rendered map[int]renderedMessage

	title    string
	interval time.Duration
	now      func() time.Time
	status   string
	width    int
	height   int
	quitting bool
}

type renderedMessage struct {
	content string
	out     string
}

// NewModel creates the chat screen for sess.
func NewModel(sess *chat.Session, opts Options) Model {
	ta := textarea.New()
	ta.Placeholder = "Type your question or prompt..."
	ta.CharLimit = 0
	ta.ShowLineNumbers = false
	ta.SetHeight(3)
	ta.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("shift+enter", "alt+enter", "ctrl+j"))
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	if opts.Interval <= 0 {
		opts.Interval = reveal.DefaultInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	m := Model{
		session:  sess,
		input:    ta,
		viewport: viewport.New(80, 20),
		spinner:  sp,
		renderer: opts.Renderer,
		rendered: make(map[int]renderedMessage),
		title:    opts.Title,
		interval: opts.Interval,
		now:      opts.Now,
		width:    80,
		height:   30,
	}
	m.resize()
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, clockTick())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.updateKey(msg)

	case responseMsg:
		more := m.session.Resolve(msg.result)
		m.refresh()
		if more {
			return m, m.revealTick()
		}
		return m, nil

	case revealTickMsg:
		if msg.gen != m.session.Generation() || !m.session.Revealing() {
			return m, nil
		}
		more := m.session.Tick()
		m.refresh()
		if more {
			return m, m.revealTick()
		}
		return m, nil

	case spinner.TickMsg:
		if !m.session.Pending() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh()
		return m, cmd

	case clockMsg:
		m.refresh()
		return m, clockTick()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.session.Stop()
		m.quitting = true
		return m, tea.Quit

	case "esc":
		if m.session.Pending() {
			m.session.Stop()
			m.refresh()
		}
		return m, nil

	case "enter":
		return m.submit()

	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.session.Pending() {
		return m, nil
	}

	req, err := m.session.Submit(m.input.Value())
	if err != nil {
		m.status = err.Error()
		return m, nil
	}
	if req == nil {
		return m, nil
	}

	m.status = ""
	m.input.Reset()
	m.refresh()
	return m, tea.Batch(m.execute(req), m.spinner.Tick)
}

// execute runs the request off the Update goroutine.
func (m Model) execute(req *chat.Request) tea.Cmd {
	sess := m.session
	return func() tea.Msg {
		return responseMsg{result: sess.Execute(context.Background(), req)}
	}
}

func (m Model) revealTick() tea.Cmd {
	gen := m.session.Generation()
	return tea.Tick(m.interval, func(time.Time) tea.Msg {
		return revealTickMsg{gen: gen}
	})
}

func clockTick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return clockMsg(t)
	})
}

func (m *Model) resize() {
	m.input.SetWidth(max(m.width-2, 10))
	m.viewport.Width = m.width
	// title, status line and help line around the input
	m.viewport.Height = max(m.height-m.input.Height()-3, 1)
	if m.renderer != nil {
		for k := range m.rendered {
			delete(m.rendered, k)
		}
	}
}

// refresh re-renders the transcript into the viewport and keeps it scrolled
// to the newest message.
func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString(dimStyle.Render("  " + m.session.Model()))
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(errorStyle.Render(m.status))
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderFooter() string {
	var footer string
	if m.session.Pending() {
		footer = stopHintStyle.Render("  ■ Esc: stop") + helpStyle.Render("  Ctrl+C: quit")
	} else {
		footer = helpStyle.Render("  Enter: send  Shift+Enter: newline  PgUp/PgDn: scroll  Ctrl+C: quit")
	}
	return lipgloss.NewStyle().MaxWidth(m.width).Render(footer)
}
