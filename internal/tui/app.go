// Package tui renders a quiz session and its assistant conversation in the
// terminal. It subscribes to the session like any other renderer and never
// holds quiz state of its own.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"carbon-quiz/internal/chat"
	"carbon-quiz/internal/domain"
	"carbon-quiz/internal/format"
	"carbon-quiz/internal/session"
)

type sessionEventMsg session.Event

type sessionClosedMsg struct{}

type chatChangedMsg struct{}

type commandDoneMsg struct {
	err error
}

// Model is the bubbletea model for one quiz session.
type Model struct {
	ctx    context.Context
	sess   *session.Session
	conv   *chat.Conversation
	events <-chan session.Event
	stop   func()

	view      session.View
	chat      chat.State
	errText   string
	chatFocus bool

	input   textinput.Model
	spinner spinner.Model
	bar     progress.Model
	width   int
}

// New subscribes to sess and returns a model ready for tea.NewProgram.
func New(ctx context.Context, sess *session.Session, conv *chat.Conversation) Model {
	ti := textinput.New()
	ti.Placeholder = "Ask about your footprint..."
	ti.Prompt = "> "
	ti.CharLimit = 500
	ti.Width = 60
	ti.PromptStyle = promptStyle

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = accentStyle

	events, stop := sess.Subscribe()

	return Model{
		ctx:     ctx,
		sess:    sess,
		conv:    conv,
		events:  events,
		stop:    stop,
		view:    sess.View(),
		chat:    conv.State(),
		input:   ti,
		spinner: sp,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		width:   80,
	}
}

// Close ends the model's session subscription.
func (m Model) Close() {
	if m.stop != nil {
		m.stop()
	}
}

// Run blocks until the user quits or ctx is cancelled.
func Run(ctx context.Context, sess *session.Session, conv *chat.Conversation) error {
	m := New(ctx, sess, conv)
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.events), m.waitForChat(), m.spinner.Tick)
}

func waitForEvent(events <-chan session.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return sessionClosedMsg{}
		}
		return sessionEventMsg(ev)
	}
}

func (m Model) waitForChat() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.conv.Changes():
			return chatChangedMsg{}
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = min(60, max(20, msg.Width-20))
		m.input.Width = max(20, msg.Width-10)
		return m, nil

	case sessionEventMsg:
		ev := session.Event(msg)
		m.conv.Observe(ev)
		m.view = ev.View
		if ev.Kind == session.EventError {
			m.errText = errorText(ev.Err)
		} else if ev.Kind != session.EventAnswer {
			m.errText = ""
		}
		return m, waitForEvent(m.events)

	case sessionClosedMsg:
		return m, tea.Quit

	case chatChangedMsg:
		m.chat = m.conv.State()
		return m, m.waitForChat()

	case commandDoneMsg:
		m.view = m.sess.View()
		m.fail(msg.err)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if msg.String() == "tab" {
			return m.toggleChat(), nil
		}
		if m.chatFocus {
			return m.handleChatKey(msg)
		}
		return m.handleQuizKey(msg)
	}
	return m, nil
}

func (m Model) toggleChat() Model {
	if m.chatFocus {
		m.conv.Close()
		m.input.Blur()
		m.chatFocus = false
	} else {
		m.conv.Open()
		m.input.Focus()
		m.chatFocus = true
	}
	m.chat = m.conv.State()
	return m
}

func (m Model) handleChatKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		return m.toggleChat(), nil
	case "enter":
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		m.input.Reset()
		ctx, conv := m.ctx, m.conv
		return m, func() tea.Msg {
			conv.Send(ctx, text)
			return nil
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleQuizKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "q" || key == "esc" {
		return m, tea.Quit
	}
	switch m.view.Screen {
	case domain.ScreenStart:
		if key == "enter" || key == "s" {
			return m, m.command(m.sess.Start)
		}
	case domain.ScreenQuiz:
		switch key {
		case "left", "b":
			m.fail(m.sess.Back())
		case "right", "enter", "n":
			// only the final step reaches the network
			if q := m.view.Question; q != nil && q.Number == q.Total {
				return m, m.command(m.sess.Next)
			}
			m.fail(m.sess.Next(m.ctx))
		case "r":
			m.fail(m.sess.Retake())
		default:
			if len(key) == 1 && key[0] >= '1' && key[0] <= '9' {
				m.fail(m.sess.Select(int(key[0] - '1')))
			}
		}
	case domain.ScreenResults:
		if key == "r" {
			m.fail(m.sess.Retake())
		}
	}
	m.view = m.sess.View()
	return m, nil
}

// command runs a blocking session operation off the update loop.
func (m Model) command(fn func(context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return commandDoneMsg{err: fn(ctx)}
	}
}

func (m *Model) fail(err error) {
	if err == nil || errors.Is(err, domain.ErrStaleResponse) {
		return
	}
	m.errText = errorText(err)
}

func errorText(err error) string {
	var (
		fetchErr *domain.FetchError
		subErr   *domain.SubmissionError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &fetchErr):
		return "Could not load the questions. Press enter to try again."
	case errors.As(err, &subErr):
		return "Failed to calculate results. Press enter to try again."
	default:
		return err.Error()
	}
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("🌍 Carbon Footprint Quiz"))
	b.WriteString("\n\n")

	switch m.view.Screen {
	case domain.ScreenStart:
		b.WriteString(m.renderStart())
	case domain.ScreenQuiz:
		b.WriteString(m.renderQuestion())
	case domain.ScreenResults:
		b.WriteString(m.renderResults())
	}

	if m.errText != "" {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(m.errText))
		b.WriteString("\n")
	}
	if m.chat.Open {
		b.WriteString("\n")
		b.WriteString(m.renderChat())
	}
	b.WriteString("\n")
	b.WriteString(hintStyle.Render(m.hints()))
	return b.String()
}

func (m Model) renderStart() string {
	lines := []string{
		"Answer a few questions about your home, travel, food and shopping",
		"to see how your yearly CO₂ footprint compares to the average.",
		"",
		accentStyle.Render("Press enter to begin."),
	}
	return strings.Join(lines, "\n") + "\n"
}

func (m Model) renderQuestion() string {
	q := m.view.Question
	if q == nil {
		return m.spinner.View() + " Loading questions...\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", categoryStyle.Render(glyph(q.Category)+" "+string(q.Category)),
		mutedStyle.Render(fmt.Sprintf("Question %d of %d", q.Number, q.Total)))
	b.WriteString(m.bar.ViewAs(q.Progress / 100))
	b.WriteString("\n\n")
	b.WriteString(promptStyle.Render(q.Prompt))
	b.WriteString("\n\n")
	for i, opt := range q.Options {
		marker := "[ ]"
		style := optionStyle
		if i == q.Selected {
			marker = "[x]"
			style = selectedStyle
		}
		b.WriteString(style.Render(fmt.Sprintf(" %d %s %s", i+1, marker, opt)))
		b.WriteString("\n")
	}
	if m.view.Submitting {
		b.WriteString("\n")
		b.WriteString(m.spinner.View() + " Calculating your footprint...")
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderResults() string {
	r := m.view.Results
	if r == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Your yearly footprint: %s kg CO₂\n", accentStyle.Render(fmt.Sprintf("%.0f", r.Total.CO2)))
	fmt.Fprintf(&b, "Average: %.0f kg CO₂ (%s)\n\n", r.Total.Average, signed(r.Total.Difference, r.Total.Percentage))
	for _, c := range r.Categories {
		b.WriteString(categoryStyle.Render(glyph(c.Category) + " " + string(c.Category)))
		fmt.Fprintf(&b, "  %.0f kg vs %.0f kg average (%s)\n", c.CO2Annual, c.Average, signed(c.Difference, c.Percentage))
		for _, tip := range c.Tips {
			b.WriteString(mutedStyle.Render("  • " + tip))
			b.WriteString("\n")
		}
		for _, p := range c.Products {
			line := "  ★ " + p.Name
			if p.Price != "" {
				line += " (" + p.Price + ")"
			}
			if p.Description != "" {
				line += ": " + p.Description
			}
			b.WriteString(productStyle.Render(line))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderChat() string {
	var b strings.Builder
	b.WriteString(chatTitleStyle.Render("Assistant"))
	b.WriteString(" ")
	b.WriteString(mutedStyle.Render(m.chat.Status))
	b.WriteString("\n")
	for _, e := range m.chat.Entries {
		switch {
		case e.Role == chat.RoleUser:
			b.WriteString(userStyle.Render("You: ") + e.Text)
		case e.Pending:
			b.WriteString(botStyle.Render("Assistant: ") + m.spinner.View())
		default:
			text := format.PlainText(e.Blocks)
			if text == "" {
				text = e.Text
			}
			b.WriteString(botStyle.Render("Assistant: ") + text)
		}
		b.WriteString("\n")
	}
	if len(m.chat.Suggestions) > 0 {
		b.WriteString(mutedStyle.Render("Try: " + strings.Join(m.chat.Suggestions, " · ")))
		b.WriteString("\n")
	}
	b.WriteString(m.input.View())
	return chatBoxStyle.Width(max(30, m.width-4)).Render(b.String()) + "\n"
}

func (m Model) hints() string {
	if m.chatFocus {
		return "enter send • esc/tab close chat • ctrl+c quit"
	}
	switch m.view.Screen {
	case domain.ScreenQuiz:
		return "1-9 choose • →/enter next • ←/b back • r restart • tab chat • q quit"
	case domain.ScreenResults:
		return "r retake • tab chat • q quit"
	default:
		return "enter start • tab chat • q quit"
	}
}

func signed(diff, pct float64) string {
	if diff > 0 {
		return fmt.Sprintf("+%.0f kg, +%.0f%%", diff, pct)
	}
	return fmt.Sprintf("%.0f kg, %.0f%%", diff, pct)
}

func glyph(c domain.Category) string {
	switch c {
	case domain.CategoryHome:
		return "🏠"
	case domain.CategoryMobility:
		return "🚗"
	case domain.CategoryFood:
		return "🍽"
	case domain.CategoryConsumption:
		return "🛍"
	default:
		return "•"
	}
}
