package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"aria/pkg/bus"
)

// Source identifies utterances submitted from this window so only their
// responses are rendered.
const Source = "ui"

type chatMessage struct {
	role    string
	content string
	skill   string
}

type busEventMsg struct {
	event bus.Event
	ok    bool
}

type model struct {
	events <-chan bus.Event
	submit SubmitFunc

	assistantName string
	theme         theme
	spinner       spinner.Model
	input         textinput.Model
	viewport      viewport.Model
	messages      []chatMessage
	width         int
	height        int
	isReady       bool
	isLoading     bool
	lastErr       string
	followLog     bool
}

func newModel(events <-chan bus.Event, submit SubmitFunc, assistantName string) *model {
	spin := spinner.New()
	spin.Spinner = spinner.Points
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("44"))

	in := textinput.New()
	in.Prompt = ""
	in.Placeholder = "Say something..."
	in.Focus()
	in.CharLimit = 0

	vp := viewport.New(80, 12)

	return &model{
		events:        events,
		submit:        submit,
		assistantName: assistantName,
		theme:         defaultTheme(),
		spinner:       spin,
		input:         in,
		viewport:      vp,
		width:         100,
		height:        28,
		followLog:     true,
	}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForEventCmd(m.events))
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		m.resizeComponents()
		m.refreshViewport(false)
		m.isReady = true
		return m, nil
	case busEventMsg:
		if !typed.ok {
			return m, tea.Quit
		}
		m.applyEvent(typed.event)
		return m, waitForEventCmd(m.events)
	case tea.KeyMsg:
		switch typed.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		}

		if handled := m.handleViewportKey(typed); handled {
			return m, nil
		}

		if typed.String() == "enter" {
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			if isExitCommand(text) {
				return m, tea.Quit
			}

			m.lastErr = ""
			m.messages = append(m.messages, chatMessage{role: "user", content: text})
			m.input.SetValue("")
			m.followLog = true
			if m.submit(text) {
				m.isLoading = true
			} else {
				m.lastErr = "the assistant is not accepting requests"
				m.messages = append(m.messages, chatMessage{role: "error", content: m.lastErr})
			}
			m.refreshViewport(true)
			return m, m.spinner.Tick
		}
	case spinner.TickMsg:
		if !m.isLoading {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(typed)
		return m, cmd
	}

	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// applyEvent folds one bus event into the conversation.
func (m *model) applyEvent(event bus.Event) {
	switch event.Type {
	case bus.EventSkillResponse:
		if event.Source != Source {
			return
		}
		text, _ := event.Data["text"].(string)
		owner, _ := event.Data["skill"].(string)
		if strings.TrimSpace(text) == "" {
			return
		}
		m.isLoading = false
		m.lastErr = ""
		m.messages = append(m.messages, chatMessage{role: "assistant", content: text, skill: owner})
		m.refreshViewport(false)
	case bus.EventSkillError:
		if event.Source != Source {
			return
		}
		detail, _ := event.Data["error"].(string)
		if detail == "" {
			detail = "unknown skill error"
		}
		m.isLoading = false
		m.lastErr = detail
		m.messages = append(m.messages, chatMessage{role: "error", content: detail})
		m.refreshViewport(false)
	}
}

func (m *model) View() string {
	if !m.isReady {
		m.resizeComponents()
		m.refreshViewport(false)
	}

	header := m.theme.header.Width(m.width - 2).Render("🎙️ " + m.assistantName)
	meta := m.theme.headerMeta.Render(fmt.Sprintf("turns:%d", conversationTurns(m.messages)))
	line := m.theme.divider.Width(m.width - 2).Render(strings.Repeat("─", max(8, m.width-2)))

	status := m.theme.status.Render("💡 Enter send  ·  PgUp/PgDn scroll  ·  End jump latest  ·  Ctrl+C/Esc quit")
	if m.isLoading {
		status = m.theme.statusBusy.Render(fmt.Sprintf("%s thinking...", m.spinner.View()))
	}
	if m.lastErr != "" {
		status = m.theme.statusErr.Render("🚨 " + m.lastErr)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		meta,
		line,
		m.theme.viewport.Width(m.width-2).Render(m.viewport.View()),
		status,
		m.theme.inputLabel.Render("You")+" "+m.theme.hint.Render("(type /exit, quit, or :q)"),
		m.theme.input.Width(m.width-2).Render(m.input.View()),
	)
}

func (m *model) resizeComponents() {
	w := m.width - 6
	if w < 50 {
		w = 50
	}
	h := m.height - 10
	if h < 8 {
		h = 8
	}

	m.viewport.Width = w
	m.viewport.Height = h
	m.input.Width = w - 2
}

func (m *model) refreshViewport(forceBottom bool) {
	previousOffset := m.viewport.YOffset
	var sections []string
	for _, item := range m.messages {
		switch item.role {
		case "user":
			sections = append(sections, m.renderCard(
				m.theme.userTitle.Render("[ You ]"),
				m.theme.userBox.Width(m.viewport.Width).Render(strings.TrimSpace(item.content)),
			))
		case "assistant":
			title := "[ " + m.assistantName + " ]"
			if item.skill != "" {
				title += " " + m.theme.hint.Render("via "+item.skill)
			}
			sections = append(sections, m.renderCard(
				m.theme.assistantTitle.Render(title),
				m.theme.assistantBox.Width(m.viewport.Width).Render(strings.TrimSpace(item.content)),
			))
		case "error":
			sections = append(sections, m.renderCard(
				m.theme.errorTitle.Render("[ ERROR ]"),
				m.theme.errorBox.Width(m.viewport.Width).Render(strings.TrimSpace(item.content)),
			))
		}
	}

	m.viewport.SetContent(strings.Join(sections, "\n\n"))
	if m.followLog || forceBottom {
		m.viewport.GotoBottom()
		m.followLog = true
		return
	}

	maxOffset := m.viewport.TotalLineCount() - m.viewport.Height
	if maxOffset < 0 {
		maxOffset = 0
	}
	if previousOffset > maxOffset {
		previousOffset = maxOffset
	}
	m.viewport.SetYOffset(previousOffset)
}

func (m *model) renderCard(title string, body string) string {
	return lipgloss.JoinVertical(lipgloss.Left, title, body)
}

func (m *model) handleViewportKey(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "pgup", "ctrl+b", "alt+up", "ctrl+up":
		m.viewport.PageUp()
		m.followLog = false
		return true
	case "pgdown", "ctrl+f", "alt+down", "ctrl+down":
		m.viewport.PageDown()
		if m.viewport.AtBottom() {
			m.followLog = true
		}
		return true
	case "home":
		m.viewport.GotoTop()
		m.followLog = false
		return true
	case "end":
		m.viewport.GotoBottom()
		m.followLog = true
		return true
	default:
		return false
	}
}

func waitForEventCmd(events <-chan bus.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-events
		return busEventMsg{event: event, ok: ok}
	}
}

func conversationTurns(messages []chatMessage) int {
	count := 0
	for _, message := range messages {
		if message.role == "user" {
			count++
		}
	}

	return count
}

func isExitCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "/exit", "quit", ":q":
		return true
	default:
		return false
	}
}

func max(a int, b int) int {
	if a > b {
		return a
	}

	return b
}
