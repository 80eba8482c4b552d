package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	orchestration "github.com/nexusdevhub/nexus-voice/core"
	"github.com/nexusdevhub/nexus-voice/core/config"
	"github.com/nexusdevhub/nexus-voice/core/events"
)

// maxLogEntries bounds the webhook activity log pane.
const maxLogEntries = 50

type (
	chatMsg       events.ChatMessage
	webhookLogMsg events.WebhookLogEntry
	statusMsg     string
	stateMsg      string
	processingMsg bool
	toolsMsg      []string
)

// uiRelay bridges orchestrator callbacks onto the bubbletea program.
// Events arriving before the program is attached are buffered and
// replayed, so nothing emitted during startup is lost.
type uiRelay struct {
	mu      sync.Mutex
	program *tea.Program
	backlog []tea.Msg
}

func (r *uiRelay) attach(program *tea.Program) {
	r.mu.Lock()
	r.program = program
	backlog := r.backlog
	r.backlog = nil
	r.mu.Unlock()

	for _, msg := range backlog {
		program.Send(msg)
	}
}

func (r *uiRelay) send(msg tea.Msg) {
	r.mu.Lock()
	program := r.program
	if program == nil {
		r.backlog = append(r.backlog, msg)
	}
	r.mu.Unlock()

	if program != nil {
		program.Send(msg)
	}
}

func (r *uiRelay) Callbacks() orchestration.Callbacks {
	return orchestration.Callbacks{
		OnChatMessage:   func(message events.ChatMessage) { r.send(chatMsg(message)) },
		OnWebhookLog:    func(entry events.WebhookLogEntry) { r.send(webhookLogMsg(entry)) },
		OnStatus:        func(status string) { r.send(statusMsg(status)) },
		OnStateChanged:  func(state events.SessionStateChanged) { r.send(stateMsg(state.State)) },
		OnProcessing:    func(processing bool) { r.send(processingMsg(processing)) },
		OnToolsSelected: func(tools []string) { r.send(toolsMsg(tools)) },
	}
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	paneStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	userStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	aiStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	systemStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true)
	micOnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	micOffStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	toolOnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	toolOffStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

type model struct {
	ctx          context.Context
	orchestrator *orchestration.Orchestrator
	settings     config.Settings

	width  int
	height int

	state      string
	status     string
	processing bool

	chat     []events.ChatMessage
	logs     []events.WebhookLogEntry
	selected map[string]bool

	spinner spinner.Model
	input   textinput.Model
	typing  bool
}

func newModel(ctx context.Context, orchestrator *orchestration.Orchestrator, settings config.Settings) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))

	input := textinput.New()
	input.Placeholder = "Digite um comando..."
	input.CharLimit = 500

	return model{
		ctx:          ctx,
		orchestrator: orchestrator,
		settings:     settings,
		state:        orchestration.StateIdle,
		status:       "Clique no microfone para começar",
		selected:     map[string]bool{},
		spinner:      s,
		input:        input,
	}
}

func (m model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case chatMsg:
		m.chat = append(m.chat, events.ChatMessage(msg))
		return m, nil

	case webhookLogMsg:
		m.logs = append(m.logs, events.WebhookLogEntry(msg))
		if len(m.logs) > maxLogEntries {
			m.logs = m.logs[len(m.logs)-maxLogEntries:]
		}
		return m, nil

	case statusMsg:
		m.status = string(msg)
		return m, nil

	case stateMsg:
		m.state = string(msg)
		return m, nil

	case processingMsg:
		m.processing = bool(msg)
		return m, nil

	case toolsMsg:
		m.selected = map[string]bool{}
		for _, tool := range msg {
			m.selected[tool] = true
		}
		return m, nil
	}

	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.typing {
		switch msg.String() {
		case "esc":
			m.typing = false
			m.input.Blur()
			m.input.Reset()
			return m, nil
		case "enter":
			command := strings.TrimSpace(m.input.Value())
			m.typing = false
			m.input.Blur()
			m.input.Reset()
			if command == "" {
				return m, nil
			}
			return m, func() tea.Msg {
				_ = m.orchestrator.SendTextCommand(m.ctx, command)
				return nil
			}
		default:
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}
	}

	switch msg.String() {
	case "ctrl+c", "q":
		m.orchestrator.Stop()
		return m, tea.Quit

	case " ", "m":
		if m.state == orchestration.StateActive || m.state == orchestration.StateConnecting {
			return m, func() tea.Msg {
				m.orchestrator.Stop()
				return nil
			}
		}
		return m, func() tea.Msg {
			_ = m.orchestrator.Start(m.ctx)
			return nil
		}

	case "i", "t":
		if m.state == orchestration.StateIdle || m.state == orchestration.StateError {
			m.typing = true
			return m, m.input.Focus()
		}
		return m, nil

	case "s":
		message := m.settings.SystemMessage
		return m, func() tea.Msg {
			_ = m.orchestrator.SendSystemMessagePrompt(m.ctx, message)
			return nil
		}

	case "k":
		return m, func() tea.Msg {
			_ = m.orchestrator.SendKnowledge(m.ctx)
			return nil
		}
	}

	return m, nil
}

func (m model) View() string {
	if m.width == 0 {
		return "Carregando..."
	}

	toolsWidth := m.width / 4
	logWidth := m.width / 3
	chatWidth := m.width - toolsWidth - logWidth - 6
	paneHeight := m.height - 6

	panes := lipgloss.JoinHorizontal(lipgloss.Top,
		m.viewTools(toolsWidth, paneHeight),
		m.viewChat(chatWidth, paneHeight),
		m.viewLogs(logWidth, paneHeight),
	)

	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(" Nexus Voice"),
		panes,
		m.viewFooter(),
	)
}

func (m model) viewTools(width, height int) string {
	var lines []string
	lines = append(lines, titleStyle.Render("Ferramentas Disponíveis"), "")
	for _, tool := range m.settings.Tools {
		if m.selected[tool.Name] {
			lines = append(lines, toolOnStyle.Render("● "+tool.Name))
		} else {
			lines = append(lines, toolOffStyle.Render("○ "+tool.Name))
		}
	}
	return paneStyle.Width(width).Height(height).Render(strings.Join(lines, "\n"))
}

func (m model) viewChat(width, height int) string {
	var lines []string
	lines = append(lines, titleStyle.Render("Conversa"), "")

	textWidth := width - 4
	for _, message := range m.chat {
		var label string
		switch message.Sender {
		case events.SenderUser:
			label = userStyle.Render("Você")
		case events.SenderAssistant:
			label = aiStyle.Render("IA")
		default:
			label = systemStyle.Render("Sistema")
		}
		lines = append(lines, label, wordwrap.String(message.Text, textWidth), "")
	}

	if m.typing {
		lines = append(lines, m.input.View())
	}

	return paneStyle.Width(width).Height(height).Render(tail(lines, height-2))
}

func (m model) viewLogs(width, height int) string {
	var lines []string
	lines = append(lines, titleStyle.Render("Log do Webhook"), "")

	textWidth := width - 4
	for _, entry := range m.logs {
		lines = append(lines, wordwrap.String(entry.Text, textWidth), "")
	}

	return paneStyle.Width(width).Height(height).Render(tail(lines, height-2))
}

func (m model) viewFooter() string {
	var mic string
	switch m.state {
	case orchestration.StateActive:
		mic = micOnStyle.Render("● mic")
	case orchestration.StateConnecting:
		mic = micOnStyle.Render("… mic")
	default:
		mic = micOffStyle.Render("○ mic")
	}

	status := m.status
	if m.processing {
		status = m.spinner.View() + status
	}

	help := "espaço: microfone · i: comando de texto · s: system message · k: conhecimento · q: sair"
	return fmt.Sprintf(" %s  %s\n %s", mic, statusStyle.Render(status), helpStyle.Render(help))
}

// tail keeps the last lines that fit in the pane, always preserving the
// title row.
func tail(lines []string, height int) string {
	if height < 1 {
		height = 1
	}

	var flat []string
	for _, line := range lines {
		flat = append(flat, strings.Split(line, "\n")...)
	}
	if len(flat) <= height {
		return strings.Join(flat, "\n")
	}

	kept := append([]string{flat[0]}, flat[len(flat)-height+1:]...)
	return strings.Join(kept, "\n")
}
