package session

import (
	"sync"

	"carbon-quiz/internal/domain"
)

// EventKind names the transition that produced an event.
type EventKind string

const (
	EventInit     EventKind = "init"
	EventScreen   EventKind = "screen"
	EventQuestion EventKind = "question"
	EventAnswer   EventKind = "answer"
	EventResults  EventKind = "results"
	EventReset    EventKind = "reset"
	EventError    EventKind = "error"
)

// Event is published after every transition. Snapshot and View are computed
// under the same lock as the transition itself.
type Event struct {
	Kind     EventKind
	Identity domain.SessionIdentity
	Snapshot domain.ContextSnapshot
	View     View
	Err      error
}

// QuestionView is what a renderer needs to draw the current question.
type QuestionView struct {
	Index     int             `json:"index"`
	Number    int             `json:"number"`
	Total     int             `json:"total"`
	Category  domain.Category `json:"category"`
	Prompt    string          `json:"prompt"`
	Options   []string        `json:"options"`
	Selected  int             `json:"selected"`
	CanGoBack bool            `json:"canGoBack"`
	Progress  float64         `json:"progress"`
}

// View is the renderer-facing projection of session state.
type View struct {
	Screen     domain.Screen          `json:"screen"`
	Identity   domain.SessionIdentity `json:"sessionId"`
	Question   *QuestionView          `json:"question,omitempty"`
	Results    *domain.Results        `json:"results,omitempty"`
	Answered   int                    `json:"answered"`
	Submitting bool                   `json:"submitting"`
}

// State is the input to Derive.
type State struct {
	Screen    domain.Screen
	Questions []domain.Question
	Current   int
	Displayed bool
	Results   *domain.Results
}

// Derive computes the context snapshot for st. The current question is only
// present on the quiz screen once a question has been displayed, and results
// only on the results screen.
func Derive(st State) domain.ContextSnapshot {
	snap := domain.ContextSnapshot{Screen: st.Screen}
	switch st.Screen {
	case domain.ScreenQuiz:
		if st.Displayed && st.Current >= 0 && st.Current < len(st.Questions) {
			q := st.Questions[st.Current]
			snap.CurrentQuestion = &domain.QuestionContext{
				Number:   st.Current + 1,
				Total:    len(st.Questions),
				Category: q.Category,
				Prompt:   q.Prompt,
				Options:  q.OptionTexts(),
			}
		}
	case domain.ScreenResults:
		snap.Results = st.Results
	}
	return snap
}

// bridge fans events out to subscribers. Slow subscribers lose the oldest
// queued event rather than blocking a transition.
type bridge struct {
	mu          sync.Mutex
	subscribers map[chan Event]struct{}
}

func newBridge() *bridge {
	return &bridge{subscribers: make(map[chan Event]struct{})}
}

func (b *bridge) subscribe(initial Event) (<-chan Event, func()) {
	ch := make(chan Event, 16)
	ch <- initial

	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subscribers[ch]; ok {
			delete(b.subscribers, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

func (b *bridge) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

func (b *bridge) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers {
		delete(b.subscribers, ch)
		close(ch)
	}
}
