package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/MikeSquared-Agency/casi/internal/engine"
)

// Backend is the chat-facing subset of the casi API.
type Backend interface {
	Generate(ctx context.Context, req engine.Request) (engine.Response, error)
	Feedback(ctx context.Context, outputID, vote string) error
}

var moods = []string{"neutral", "empathetic", "enthusiastic"}

type turn struct {
	prompt string
	resp   engine.Response
	vote   string
}

type answerMsg struct {
	prompt string
	resp   engine.Response
	err    error
}

type voteMsg struct {
	vote string
	err  error
}

// Model is the Bubble Tea model for the chat client.
type Model struct {
	backend  Backend
	timeout  time.Duration
	maxWords int
	input    textinput.Model
	viewport viewport.Model
	turns    []turn
	mood     int
	status   string
	busy     bool
	ready    bool
}

func New(backend Backend, maxWords int, timeout time.Duration) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask anything. /up /down vote, Tab cycles mood"
	ti.Focus()
	ti.CharLimit = engine.MaxPromptLength
	return Model{
		backend:  backend,
		timeout:  timeout,
		maxWords: maxWords,
		input:    ti,
		viewport: viewport.New(0, 0),
		status:   "Connected.",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, bh := historyBoxStyle.GetFrameSize()
		_, ih := inputBoxStyle.GetFrameSize()
		reserved := 2 + ih + 1 + bh
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved)
		m.refresh()
		return m, nil

	case answerMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			return m, nil
		}
		m.turns = append(m.turns, turn{prompt: msg.prompt, resp: msg.resp})
		m.status = fmt.Sprintf("%s  confidence=%.2f  intent=%s", msg.resp.Source, msg.resp.Confidence, msg.resp.Intent)
		m.refresh()
		return m, nil

	case voteMsg:
		if msg.err != nil {
			m.status = "Vote failed: " + msg.err.Error()
			return m, nil
		}
		m.turns[len(m.turns)-1].vote = msg.vote
		m.status = "Recorded " + msg.vote + "."
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "tab":
			m.mood = (m.mood + 1) % len(moods)
			m.status = "Mood: " + moods[m.mood]
			return m, nil
		case "enter":
			return m.submit()
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	line := strings.TrimSpace(m.input.Value())
	if line == "" || m.busy {
		return m, nil
	}
	m.input.SetValue("")

	switch line {
	case "/quit", "/exit":
		return m, tea.Quit
	case "/up", "/down":
		if len(m.turns) == 0 {
			m.status = "Nothing to vote on yet."
			return m, nil
		}
		vote := "upvote"
		if line == "/down" {
			vote = "downvote"
		}
		return m, m.voteCmd(m.turns[len(m.turns)-1].resp.OutputID, vote)
	}

	m.busy = true
	m.status = "Thinking..."
	return m, m.generateCmd(line)
}

func (m Model) generateCmd(prompt string) tea.Cmd {
	req := engine.Request{Prompt: prompt, Mood: moods[m.mood]}
	if m.maxWords > 0 {
		words := m.maxWords
		req.MaxWords = &words
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		resp, err := m.backend.Generate(ctx, req)
		return answerMsg{prompt: prompt, resp: resp, err: err}
	}
}

func (m Model) voteCmd(outputID, vote string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		return voteMsg{vote: vote, err: m.backend.Feedback(ctx, outputID, vote)}
	}
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("CASI") + "  " + dimStyle.Render("mood: "+moods[m.mood])
	history := historyBoxStyle.Render(m.viewport.View())
	input := inputBoxStyle.Render(m.input.View())
	return header + "\n" + history + "\n" + input + "\n" + statusStyle.Render(m.status)
}

func (m Model) renderHistory() string {
	if len(m.turns) == 0 {
		return dimStyle.Render("No messages yet.")
	}
	var b strings.Builder
	for i, t := range m.turns {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(youStyle.Render("you: "))
		b.WriteString(t.prompt)
		b.WriteString("\n")
		b.WriteString(casiStyle.Render("casi: "))
		b.WriteString(t.resp.Text)
		if t.vote != "" {
			b.WriteString(dimStyle.Render("  [" + t.vote + "]"))
		}
	}
	return b.String()
}

var (
	historyBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	headerStyle     = lipgloss.NewStyle().Bold(true)
	dimStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	youStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	casiStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
)
