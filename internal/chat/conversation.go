// Package chat holds the assistant conversation that sits beside a quiz
// session: the transcript, the typing indicator and the widget state.
package chat

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"carbon-quiz/internal/domain"
	"carbon-quiz/internal/format"
	"carbon-quiz/internal/session"
)

const (
	connectionApology = "Sorry, I'm having trouble connecting. Please check your internet connection and try again."
	replyApology      = "Sorry, I encountered an error. Please try again."
)

const greeting = `Hey! I'm EcoCoach 🌱 Your sustainability sidekick!
I can help you:
- 💡 Decode quiz questions as you go
- 📊 Make sense of your results
- 🎯 Find your easiest climate wins
- 🌍 Answer any eco questions
What's on your mind?`

// DefaultSuggestions are offered until the first message is sent.
var DefaultSuggestions = []string{
	"What does this question mean?",
	"How can I lower my footprint?",
	"What are my easiest wins?",
}

// Request is the body sent to the assistant collaborator.
type Request struct {
	Message         string                  `json:"message"`
	SessionID       domain.SessionIdentity  `json:"session_id"`
	ScreenContext   domain.Screen           `json:"screen_context"`
	CurrentQuestion *domain.QuestionContext `json:"current_question"`
	Results         *domain.Results         `json:"results"`
	UserAnswers     []domain.Answer         `json:"user_answers"`
}

// Reply is the assistant collaborator's response.
type Reply struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Assistant answers one chat turn.
type Assistant interface {
	Reply(ctx context.Context, req Request) (Reply, error)
}

// ContextSource supplies a consistent view of the session for a request.
type ContextSource interface {
	ChatContext() session.ChatContext
}

// Role identifies who wrote an entry.
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// Entry is one transcript line. A pending entry is a reserved reply slot.
type Entry struct {
	ID      int            `json:"id"`
	Role    Role           `json:"role"`
	Text    string         `json:"text"`
	Blocks  []format.Block `json:"blocks"`
	Pending bool           `json:"pending,omitempty"`
}

// State is the renderer-facing widget state.
type State struct {
	Open        bool     `json:"open"`
	Status      string   `json:"status"`
	Typing      bool     `json:"typing"`
	Suggestions []string `json:"suggestions,omitempty"`
	Entries     []Entry  `json:"entries"`
}

// Conversation is safe for concurrent use. It reads the session but the
// session never calls back into it.
type Conversation struct {
	assistant Assistant
	source    ContextSource
	logger    *zap.Logger
	changes   chan struct{}

	mu             sync.Mutex
	entries        []Entry
	nextID         int
	latest         int
	outstanding    map[int]struct{}
	open           bool
	screen         domain.Screen
	hasQuestion    bool
	showSuggestion bool
	welcomed       bool

	// generation counts transcript resets; identity is the attempt last seen
	// in an event and retired holds the ones a reset ended.
	generation uint64
	identity   domain.SessionIdentity
	retired    map[domain.SessionIdentity]struct{}
}

// maxContextReads bounds how often Send re-reads a context retired under it.
const maxContextReads = 3

func NewConversation(assistant Assistant, source ContextSource, logger *zap.Logger) *Conversation {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Conversation{
		assistant:   assistant,
		source:      source,
		logger:      logger,
		changes:     make(chan struct{}, 1),
		outstanding: make(map[int]struct{}),
		retired:     make(map[domain.SessionIdentity]struct{}),
		screen:      domain.ScreenStart,
	}
	c.resetLocked()
	return c
}

// Changes signals after any state change. Signals coalesce.
func (c *Conversation) Changes() <-chan struct{} { return c.changes }

// Send posts message to the assistant and waits for the reply. Blank messages
// are ignored. The reply slot is reserved before the request is issued, so the
// transcript keeps issue order even when replies complete out of order.
// Failures become an apology entry.
func (c *Conversation) Send(ctx context.Context, message string) {
	message = strings.TrimSpace(message)
	if message == "" {
		return
	}

	cc, slot, gen, ok := c.reserve(message)
	if !ok {
		c.logger.Info("dropping message sent against a retired attempt", zap.String("session_id", string(cc.Identity)))
		return
	}

	answers := cc.Answers
	if answers == nil {
		answers = []domain.Answer{}
	}
	req := Request{
		Message:         message,
		SessionID:       cc.Identity,
		ScreenContext:   cc.Snapshot.Screen,
		CurrentQuestion: cc.Snapshot.CurrentQuestion,
		Results:         cc.Snapshot.Results,
		UserAnswers:     answers,
	}

	text := replyApology
	reply, err := c.assistant.Reply(ctx, req)
	switch {
	case err != nil:
		c.logger.Warn("assistant request failed", zap.String("session_id", string(cc.Identity)), zap.Error(err))
		text = connectionApology
	case reply.Success:
		text = reply.Message
	case reply.Message != "":
		text = reply.Message
	}

	c.mu.Lock()
	delete(c.outstanding, slot)
	i := -1
	if gen == c.generation {
		i = slices.IndexFunc(c.entries, func(e Entry) bool { return e.ID == slot })
	}
	if i < 0 {
		c.mu.Unlock()
		c.logger.Debug("dropping reply for cleared transcript", zap.String("session_id", string(cc.Identity)))
		return
	}
	c.entries[i].Text = text
	c.entries[i].Blocks = format.Format(text)
	c.entries[i].Pending = false
	c.mu.Unlock()
	c.notify()
}

// reserve reads the session context and appends the user entry and reply slot
// in the transcript generation the context was read in. A reset in between
// retires the context, which is then read again.
func (c *Conversation) reserve(message string) (session.ChatContext, int, uint64, bool) {
	var cc session.ChatContext
	for range maxContextReads {
		c.mu.Lock()
		gen := c.generation
		c.mu.Unlock()

		// never hold c.mu while taking the session lock
		cc = c.source.ChatContext()

		c.mu.Lock()
		if c.generation != gen {
			if cc.Identity != c.identity {
				c.retireLocked(cc.Identity)
			}
			c.mu.Unlock()
			continue
		}
		if _, retired := c.retired[cc.Identity]; retired {
			c.mu.Unlock()
			continue
		}
		c.appendLocked(RoleUser, message, false)
		slot := c.appendLocked(RoleBot, "", true)
		c.latest = slot
		c.outstanding[slot] = struct{}{}
		c.showSuggestion = false
		c.mu.Unlock()
		c.notify()
		return cc, slot, gen, true
	}
	return cc, 0, 0, false
}

// Typing reports whether the most recently issued request is unresolved.
func (c *Conversation) Typing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typingLocked()
}

func (c *Conversation) Open() {
	c.mu.Lock()
	c.open = true
	c.mu.Unlock()
	c.notify()
}

func (c *Conversation) Close() {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
	c.notify()
}

func (c *Conversation) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Status is the one-line description shown under the assistant's name.
func (c *Conversation) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// Entries returns a copy of the transcript in issue order.
func (c *Conversation) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.entries)
}

// State returns the full widget state.
func (c *Conversation) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := State{
		Open:    c.open,
		Status:  c.statusLocked(),
		Typing:  c.typingLocked(),
		Entries: slices.Clone(c.entries),
	}
	if c.showSuggestion {
		st.Suggestions = DefaultSuggestions
	}
	return st
}

// Observe applies a session event: it tracks the screen for the status line,
// resets the transcript when the attempt changes and opens with a welcome once
// results are on screen. State is taken from the event's snapshot rather than
// its kind, so a skipped event is caught up by any later one.
func (c *Conversation) Observe(ev session.Event) {
	c.mu.Lock()
	c.screen = ev.Snapshot.Screen
	c.hasQuestion = ev.Snapshot.CurrentQuestion != nil
	newAttempt := ev.Identity != "" && c.identity != "" && ev.Identity != c.identity
	if ev.Kind == session.EventReset || newAttempt {
		c.retireLocked(c.identity)
		c.resetLocked()
	}
	if ev.Identity != "" {
		c.identity = ev.Identity
	}
	if ev.Snapshot.Screen == domain.ScreenResults && ev.Snapshot.Results != nil && !c.welcomed {
		c.welcomed = true
		if !c.open {
			c.open = true
			c.appendLocked(RoleBot, WelcomeMessage(ev.Snapshot.Results.Total), false)
		}
	}
	c.mu.Unlock()
	c.notify()
}

// Follow observes events until the channel closes or ctx is done.
func (c *Conversation) Follow(ctx context.Context, events <-chan session.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.Observe(ev)
		}
	}
}

// WelcomeMessage summarises how the total compares with the average.
func WelcomeMessage(total domain.Totals) string {
	diff := math.Round(total.CO2 - total.Average)
	msg := "🎉 Results are in! "
	switch {
	case diff > 0:
		msg += fmt.Sprintf("You're %.0f kg above average. Let's find your easiest wins to close that gap! What questions do you have?", diff)
	case diff < 0:
		msg += fmt.Sprintf("Nice work - you're %.0f kg below average! Want to go even further? I've got ideas! 🌱", -diff)
	default:
		msg += "You're right at average. Ready to level up your eco-game? Let's chat!"
	}
	return msg
}

func (c *Conversation) statusLocked() string {
	switch {
	case c.screen == domain.ScreenQuiz && c.hasQuestion:
		return "💬 Here to help with the quiz"
	case c.screen == domain.ScreenResults:
		return "📊 Analyzing your results"
	default:
		return "🌱 Your sustainability guide"
	}
}

func (c *Conversation) typingLocked() bool {
	_, ok := c.outstanding[c.latest]
	return ok
}

func (c *Conversation) appendLocked(role Role, text string, pending bool) int {
	c.nextID++
	e := Entry{ID: c.nextID, Role: role, Text: text, Pending: pending}
	if text != "" {
		e.Blocks = format.Format(text)
	}
	c.entries = append(c.entries, e)
	return e.ID
}

// resetLocked leaves only the greeting. Outstanding requests lose their
// slots and their replies are dropped.
func (c *Conversation) resetLocked() {
	c.generation++
	c.welcomed = false
	c.entries = nil
	clear(c.outstanding)
	c.showSuggestion = true
	c.appendLocked(RoleBot, greeting, false)
}

// retireLocked marks id as belonging to a finished attempt.
func (c *Conversation) retireLocked(id domain.SessionIdentity) {
	if id != "" {
		c.retired[id] = struct{}{}
	}
}

func (c *Conversation) notify() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}
