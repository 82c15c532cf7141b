// Package console is a local terminal front end for the command dispatcher.
// It runs the same intents and query grammar as the chat daemon against the
// live appliance, without needing a workspace. The local operator is
// trusted, so commands run with admin-channel privileges.
package console

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/lanternops/lanternbot/internal/bot"
	"github.com/lanternops/lanternbot/pkg/types"
)

const commandTimeout = 30 * time.Second

// entry is one line of console history
type entry struct {
	fromUser bool
	text     string
}

// replyMsg carries a finished command's output back into the update loop
type replyMsg struct {
	text string
}

// Model is the bubbletea model for the console
type Model struct {
	viewport     viewport.Model
	textarea     textarea.Model
	disp         *bot.Dispatcher
	botName      string
	adminChannel string
	history      []entry
	busy         bool
	width        int
	height       int
	ready        bool
	quitting     bool
}

// New creates a console model around an existing dispatcher
func New(disp *bot.Dispatcher, botName, adminChannel string) *Model {
	ta := textarea.New()
	ta.Placeholder = "Type a command... (Enter to run, Ctrl+C to quit)"
	ta.Focus()
	ta.CharLimit = 1024
	ta.SetWidth(80)
	ta.SetHeight(1)
	ta.ShowLineNumbers = false
	ta.KeyMap.InsertNewline.SetEnabled(false)

	return &Model{
		textarea:     ta,
		disp:         disp,
		botName:      botName,
		adminChannel: adminChannel,
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit

		case tea.KeyEnter:
			text := strings.TrimSpace(m.textarea.Value())
			if text == "" || m.busy {
				return m, nil
			}
			m.textarea.Reset()
			m.history = append(m.history, entry{fromUser: true, text: text})
			m.busy = true
			m.refreshViewport()
			return m, m.runCommand(text)
		}

	case replyMsg:
		m.busy = false
		m.history = append(m.history, entry{text: msg.text})
		m.refreshViewport()
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		headerHeight := 1
		inputHeight := 3
		helpHeight := 1
		vpHeight := m.height - headerHeight - inputHeight - helpHeight - 2
		if vpHeight < 3 {
			vpHeight = 3
		}
		if !m.ready {
			m.viewport = viewport.New(m.width-2, vpHeight)
			m.ready = true
		} else {
			m.viewport.Width = m.width - 2
			m.viewport.Height = vpHeight
		}
		m.textarea.SetWidth(m.width - 4)
		m.refreshViewport()
	}

	m.textarea, cmd = m.textarea.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// runCommand dispatches off the update loop and reports back as a replyMsg
func (m Model) runCommand(text string) tea.Cmd {
	disp := m.disp
	adminChannel := m.adminChannel
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		intentWord, scope, _ := strings.Cut(strings.ToLower(text), " ")
		cmd := types.Command{
			ID:          uuid.NewString(),
			Intent:      intentWord,
			Scope:       strings.TrimSpace(scope),
			ChannelName: adminChannel,
			Username:    "console",
		}

		reply, _ := disp.Dispatch(ctx, cmd)
		if reply == "" {
			reply = "(no output)"
		}
		return replyMsg{text: reply}
	}
}

func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
}

func (m *Model) renderHistory() string {
	var b strings.Builder
	for _, e := range m.history {
		if e.fromUser {
			b.WriteString(formatUserLine(e.text))
		} else {
			b.WriteString(formatBotLine(m.botName, e.text))
		}
		b.WriteString("\n")
	}
	if m.busy {
		b.WriteString(formatWorking())
		b.WriteString("\n")
	}
	return b.String()
}

// View implements tea.Model
func (m Model) View() string {
	if m.quitting {
		return "Bye!\n"
	}
	if !m.ready {
		return "Starting console..."
	}

	header := headerStyle.Render("lanternbot console")
	chat := chatBorderStyle.Render(m.viewport.View())
	input := inputBorderStyle.Render(m.textarea.View())
	help := helpStyle.Render("Enter: run  •  Ctrl+C: quit")

	return lipgloss.JoinVertical(lipgloss.Left, header, chat, input, help)
}
