package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/cloudwego/eino/schema"

	"github.com/wwwzy/SalesAgent/internal/convo"
	"github.com/wwwzy/SalesAgent/internal/ui"
)

type ChatUI struct{}

func (u *ChatUI) Run(ctx context.Context, backend ui.ChatBackend, opts ui.ChatOptions) error {
	if backend == nil {
		return errors.New("tui: backend is nil")
	}
	m := newChatModel(ctx, backend, opts)
	p := tea.NewProgram(m, tea.WithAltScreen())
	final, err := p.Run()
	if fm, ok := final.(chatModel); ok && fm.stream != nil {
		fm.stream.Close()
	}
	return err
}

type role int

const (
	roleUser role = iota
	roleAssistant
	roleNote
)

type chatMessage struct {
	role    role
	content string
}

type streamStartedMsg struct {
	stream *schema.StreamReader[string]
	err    error
}

type streamChunkMsg struct{ text string }

type streamDoneMsg struct {
	agent convo.AgentKind
	err   error
}

type commandResultMsg struct{ res ui.CommandResult }

type cancelMsg struct{}

type chatModel struct {
	ctx     context.Context
	backend ui.ChatBackend
	userID  string

	messages []chatMessage
	agent    convo.AgentKind
	stream   *schema.StreamReader[string]

	width  int
	height int

	viewport   viewport.Model
	input      textinput.Model
	spinner    spinner.Model
	thinking   bool
	followTail bool

	renderer *glamour.TermRenderer
}

func newChatModel(ctx context.Context, backend ui.ChatBackend, opts ui.ChatOptions) chatModel {
	s := spinner.New()
	s.Spinner = spinner.MiniDot

	ti := textinput.New()
	ti.Placeholder = "Escribe tu mensaje, Enter para enviar (/ayuda para comandos)"
	ti.Prompt = ""
	ti.Focus()

	vp := viewport.New(0, 0)
	vp.SetContent("")

	userID := opts.UserID
	if userID == "" {
		userID = ui.DefaultUserID
	}

	return chatModel{
		ctx:        ctx,
		backend:    backend,
		userID:     userID,
		agent:      backend.Snapshot(ctx, userID).CurrentAgent,
		viewport:   vp,
		input:      ti,
		spinner:    s,
		followTail: true,
	}
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, waitCancel(m.ctx))
}

func waitCancel(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		<-ctx.Done()
		return cancelMsg{}
	}
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case cancelMsg:
		return m, tea.Quit

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		inputHeight := 3
		headerHeight := 1
		footerHeight := 1
		m.viewport.Width = m.width
		m.viewport.Height = max(1, m.height-inputHeight-headerHeight-footerHeight)
		m.input.Width = max(10, m.width-4)

		m.resetMarkdownRenderer()
		m.updateViewportContent(m.renderChat())
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case commandResultMsg:
		m.thinking = false
		if msg.res.Quit {
			return m, tea.Quit
		}
		if msg.res.Output != "" {
			m.messages = append(m.messages, chatMessage{role: roleNote, content: msg.res.Output})
		}
		if msg.res.Message != "" {
			return m.send(msg.res.Message, false)
		}
		m.agent = m.backend.Snapshot(m.ctx, m.userID).CurrentAgent
		m.updateViewportContent(m.renderChat())
		return m, nil

	case streamStartedMsg:
		if msg.err != nil {
			m.thinking = false
			m.setLastAssistant(fmt.Sprintf("(error: %v)", msg.err))
			m.updateViewportContent(m.renderChat())
			return m, nil
		}
		m.stream = msg.stream
		return m, recvChunk(m.ctx, m.backend, m.userID, m.stream)

	case streamChunkMsg:
		m.appendToLastAssistant(msg.text)
		m.updateViewportContent(m.renderChat())
		return m, recvChunk(m.ctx, m.backend, m.userID, m.stream)

	case streamDoneMsg:
		m.thinking = false
		if m.stream != nil {
			m.stream.Close()
			m.stream = nil
		}
		if msg.err != nil {
			m.appendToLastAssistant(fmt.Sprintf("\n(error: %v)", msg.err))
		}
		if msg.agent != "" {
			m.agent = msg.agent
		}
		m.updateViewportContent(m.renderChat())
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "pgup", "pageup":
			m.viewport.PageUp()
			m.followTail = false
			return m, nil
		case "pgdown", "pagedown":
			m.viewport.PageDown()
			if m.viewport.AtBottom() {
				m.followTail = true
			}
			return m, nil
		}

		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)

		if msg.String() == "enter" {
			text := strings.TrimSpace(m.input.Value())
			if text == "" || m.thinking {
				return m, cmd
			}
			m.input.SetValue("")
			if ui.IsQuit(text) {
				return m, tea.Quit
			}
			if strings.HasPrefix(text, "/") {
				m.thinking = true
				return m, tea.Batch(cmd, runCommand(m.ctx, m.backend, m.userID, text))
			}
			next, sendCmd := m.send(text, true)
			return next, tea.Batch(cmd, sendCmd)
		}
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// send 发出一条消息并开始接收流式回复。
func (m chatModel) send(text string, echo bool) (chatModel, tea.Cmd) {
	if echo {
		m.messages = append(m.messages, chatMessage{role: roleUser, content: text})
	}
	m.messages = append(m.messages, chatMessage{role: roleAssistant})
	m.thinking = true
	m.followTail = true
	m.updateViewportContent(m.renderChat())
	return m, startStream(m.ctx, m.backend, m.userID, text)
}

func startStream(ctx context.Context, backend ui.ChatBackend, userID, text string) tea.Cmd {
	return func() tea.Msg {
		sr, err := backend.HandleMessage(ctx, userID, text)
		return streamStartedMsg{stream: sr, err: err}
	}
}

func recvChunk(ctx context.Context, backend ui.ChatBackend, userID string, sr *schema.StreamReader[string]) tea.Cmd {
	return func() tea.Msg {
		if sr == nil {
			return streamDoneMsg{}
		}
		chunk, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			return streamDoneMsg{agent: backend.Snapshot(ctx, userID).CurrentAgent}
		}
		if err != nil {
			return streamDoneMsg{err: err}
		}
		return streamChunkMsg{text: chunk}
	}
}

func runCommand(ctx context.Context, backend ui.ChatBackend, userID, text string) tea.Cmd {
	return func() tea.Msg {
		res, _ := ui.HandleCommand(ctx, backend, userID, text)
		return commandResultMsg{res: res}
	}
}

func (m *chatModel) appendToLastAssistant(text string) {
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].role == roleAssistant {
			m.messages[i].content += text
			return
		}
	}
	m.messages = append(m.messages, chatMessage{role: roleAssistant, content: text})
}

func (m *chatModel) setLastAssistant(text string) {
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].role == roleAssistant {
			m.messages[i].content = text
			return
		}
	}
	m.messages = append(m.messages, chatMessage{role: roleAssistant, content: text})
}

func (m chatModel) View() string {
	title := "Alisys · Asistente comercial"
	if m.agent != "" {
		title += " · " + m.agent.DisplayName()
	}
	header := lipgloss.NewStyle().Bold(true).Render(title)

	return lipgloss.JoinVertical(lipgloss.Left, header, m.viewport.View(), m.inputView(), m.footerView())
}

func (m chatModel) footerView() string {
	left := "Enter enviar | PgUp/PgDn desplazar | Ctrl+C salir"
	right := ""
	if m.thinking {
		right = m.spinner.View() + " Pensando..."
	}
	style := lipgloss.NewStyle().Width(m.width).Padding(0, 1)
	return style.Render(lipgloss.JoinHorizontal(lipgloss.Left, left, lipgloss.NewStyle().Width(max(0, m.width-lipgloss.Width(left)-lipgloss.Width(right)-2)).Render(""), right))
}

func (m chatModel) inputView() string {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Padding(0, 1).
		Width(max(1, m.input.Width+2)).
		Render(m.input.View())
}

func (m *chatModel) updateViewportContent(content string) {
	oldYOffset := m.viewport.YOffset
	m.viewport.SetContent(content)
	if m.followTail {
		m.viewport.GotoBottom()
		return
	}
	m.viewport.SetYOffset(oldYOffset)
}

func (m *chatModel) resetMarkdownRenderer() {
	if m.width <= 0 {
		return
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(m.bubbleMaxContentWidth()),
	)
	if err == nil {
		m.renderer = r
	}
}

func (m chatModel) renderChat() string {
	if m.width <= 0 {
		m.width = 80
	}

	var b strings.Builder
	for _, msg := range m.messages {
		content := strings.TrimRight(msg.content, "\n")
		var line string
		switch msg.role {
		case roleUser:
			line = m.renderUser(content)
		case roleAssistant:
			if strings.TrimSpace(content) == "" {
				content = "…"
			}
			line = m.renderAssistant(content)
		default:
			line = m.renderNote(content)
		}
		b.WriteString(line)
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m chatModel) bubbleMaxContentWidth() int {
	if m.width <= 0 {
		return 72
	}
	return max(20, m.width-8)
}

func (m chatModel) desiredContentWidth(s string) int {
	w := max(10, maxLineWidth(s))
	return min(m.bubbleMaxContentWidth(), w)
}

func (m chatModel) wrapToWidth(s string, width int) string {
	if width <= 0 {
		return s
	}
	return lipgloss.NewStyle().Width(width).Render(s)
}

func maxLineWidth(s string) int {
	s = strings.TrimRight(s, "\n")
	if strings.TrimSpace(s) == "" {
		return 0
	}
	maxW := 0
	for _, line := range strings.Split(s, "\n") {
		if w := lipgloss.Width(strings.TrimRight(line, " ")); w > maxW {
			maxW = w
		}
	}
	return maxW
}

func (m chatModel) renderAssistant(content string) string {
	md := content
	if m.renderer != nil && strings.TrimSpace(md) != "" {
		if rendered, err := m.renderer.Render(md); err == nil {
			md = strings.TrimRight(rendered, "\n")
		}
	}
	md = m.wrapToWidth(md, m.desiredContentWidth(md))
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("63")).
		Padding(0, 1).
		MaxWidth(max(20, m.width-4)).
		Render(md)
}

func (m chatModel) renderUser(content string) string {
	content = m.wrapToWidth(content, m.desiredContentWidth(content))
	bubble := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("205")).
		Padding(0, 1).
		MaxWidth(max(20, m.width-4)).
		Render(content)
	return lipgloss.NewStyle().Width(m.width).Align(lipgloss.Right).Render(bubble)
}

// renderNote 渲染命令输出等非对话内容。
func (m chatModel) renderNote(content string) string {
	body := m.wrapToWidth(content, m.desiredContentWidth(content))
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Foreground(lipgloss.Color("245")).
		Padding(0, 1).
		MaxWidth(max(20, m.width-4)).
		Render("SISTEMA\n" + body)
}
