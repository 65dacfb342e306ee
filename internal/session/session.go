// Package session implements the questionnaire session engine: answer
// tracking, navigation, screen transitions, and the context snapshot kept in
// sync for the assistant.
package session

import (
	"context"
	"errors"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"carbon-quiz/internal/domain"
)

// QuestionSource loads the question set for one attempt.
type QuestionSource interface {
	Questions(ctx context.Context) ([]domain.Question, error)
}

// Submitter scores a completed answer set.
type Submitter interface {
	Submit(ctx context.Context, answers iter.Seq[domain.Answer]) (domain.Results, error)
}

// DefaultAutoAdvance is the pause between selecting an option and moving on.
const DefaultAutoAdvance = 400 * time.Millisecond

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAutoAdvance sets the auto-advance delay; zero disables it.
func WithAutoAdvance(delay time.Duration) Option {
	return func(s *Session) { s.advance.delay = delay }
}

// WithAfterFunc replaces the timer factory used for auto-advance.
func WithAfterFunc(after AfterFunc) Option {
	return func(s *Session) {
		if after != nil {
			s.advance.after = after
		}
	}
}

// WithIdentityFunc replaces the session identity generator.
func WithIdentityFunc(fn func() domain.SessionIdentity) Option {
	return func(s *Session) {
		if fn != nil {
			s.newIdentity = fn
		}
	}
}

// WithContext sets the context used for work started by auto-advance.
func WithContext(ctx context.Context) Option {
	return func(s *Session) {
		if ctx != nil {
			s.baseCtx = ctx
		}
	}
}

// NewIdentity mints a fresh session identity.
func NewIdentity() domain.SessionIdentity {
	return domain.SessionIdentity("session_" + uuid.NewString())
}

// Session is one client's questionnaire state. All mutation happens under mu;
// network calls run outside it and are tagged with the identity that was
// current when they were issued.
type Session struct {
	source      QuestionSource
	submitter   Submitter
	logger      *zap.Logger
	newIdentity func() domain.SessionIdentity
	baseCtx     context.Context
	bridge      *bridge

	mu         sync.Mutex
	identity   domain.SessionIdentity
	screen     domain.Screen
	questions  []domain.Question
	answers    *AnswerStore
	nav        Navigator
	displayed  bool
	results    *domain.Results
	starting   bool
	submitting bool
	advance    advanceScheduler
	closed     bool
}

// New creates a session on the start screen.
func New(source QuestionSource, submitter Submitter, opts ...Option) *Session {
	s := &Session{
		source:      source,
		submitter:   submitter,
		logger:      zap.NewNop(),
		newIdentity: NewIdentity,
		baseCtx:     context.Background(),
		bridge:      newBridge(),
		screen:      domain.ScreenStart,
		answers:     NewAnswerStore(nil),
		advance:     advanceScheduler{after: systemAfterFunc, delay: DefaultAutoAdvance},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.identity = s.newIdentity()
	return s
}

// Identity returns the identity of the current attempt.
func (s *Session) Identity() domain.SessionIdentity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Screen returns the active screen.
func (s *Session) Screen() domain.Screen {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.screen
}

// Snapshot derives the current context snapshot.
func (s *Session) Snapshot() domain.ContextSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// View returns the renderer projection of the current state.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Answers returns the present answers in index order.
func (s *Session) Answers() []domain.Answer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answers.Answers()
}

// ChatContext is everything an assistant turn needs, read atomically.
type ChatContext struct {
	Identity domain.SessionIdentity
	Snapshot domain.ContextSnapshot
	Answers  []domain.Answer
}

// ChatContext reads identity, snapshot and answers in one critical section so
// a message never carries a half-applied transition.
func (s *Session) ChatContext() ChatContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ChatContext{
		Identity: s.identity,
		Snapshot: s.snapshotLocked(),
		Answers:  s.answers.Answers(),
	}
}

// Subscribe returns a channel of events starting with the current state.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *Session) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bridge.subscribe(s.eventLocked(EventInit, nil))
}

// Close stops pending work and closes every subscription.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.advance.cancel()
	s.bridge.close()
}

// Start fetches the questions and enters the quiz. On failure the session
// stays on the start screen and a *domain.FetchError is returned.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.screen != domain.ScreenStart {
		s.mu.Unlock()
		return domain.ErrWrongScreen
	}
	if s.starting {
		s.mu.Unlock()
		return nil
	}
	s.starting = true
	issued := s.identity
	s.mu.Unlock()

	questions, err := s.source.Questions(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if issued != s.identity || s.screen != domain.ScreenStart {
		s.logger.Info("discarding stale question fetch", zap.String("session_id", string(issued)))
		return domain.ErrStaleResponse
	}
	s.starting = false
	if err == nil && len(questions) == 0 {
		err = domain.ErrNoQuestions
	}
	if err != nil {
		var fetchErr *domain.FetchError
		if !errors.As(err, &fetchErr) {
			err = &domain.FetchError{Err: err}
		}
		s.logger.Warn("question fetch failed", zap.String("session_id", string(issued)), zap.Error(err))
		return err
	}

	s.questions = questions
	s.answers.Reset(questions)
	s.nav.Reset(len(questions))
	s.results = nil
	s.screen = domain.ScreenQuiz
	s.displayed = false
	s.publishLocked(EventScreen, nil)
	s.displayed = true
	s.publishLocked(EventQuestion, nil)
	s.logger.Debug("quiz started", zap.String("session_id", string(issued)), zap.Int("questions", len(questions)))
	return nil
}

// Select records option optionIndex for the current question, replacing any
// earlier choice. The index does not change; with auto-advance enabled a
// single advance is scheduled, superseding any pending one.
func (s *Session) Select(optionIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.screen != domain.ScreenQuiz {
		return domain.ErrWrongScreen
	}
	if s.submitting {
		return domain.ErrSubmissionInFlight
	}

	index := s.nav.Current()
	answer, err := domain.NewAnswer(s.questions[index], index, optionIndex)
	if err != nil {
		return err
	}
	previous, had := s.answers.Get(index)
	if err := s.answers.Set(index, answer); err != nil {
		return err
	}
	if had && previous.OptionIndex != optionIndex {
		s.logger.Debug("answer changed",
			zap.Int("question", index+1),
			zap.String("from", previous.Text),
			zap.String("to", answer.Text))
	} else if !had {
		s.logger.Debug("answer stored", zap.Int("question", index+1), zap.Int("answered", s.answers.Count()))
	}
	s.publishLocked(EventAnswer, nil)

	if s.advance.enabled() {
		s.advance.schedule(index, s.autoAdvance)
	}
	return nil
}

// Next advances to the next question. On the last question it submits the
// answers; on success the session enters the results screen, on failure it
// stays on the quiz with answers intact and returns a *domain.SubmissionError.
func (s *Session) Next(ctx context.Context) error {
	s.mu.Lock()
	s.advance.cancel()
	job, err := s.stepLocked()
	s.mu.Unlock()
	if err != nil || job == nil {
		return err
	}
	return s.submit(ctx, job)
}

// Back returns to the previous question, keeping its recorded answer selected.
func (s *Session) Back() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.screen != domain.ScreenQuiz {
		return domain.ErrWrongScreen
	}
	if s.submitting {
		return domain.ErrSubmissionInFlight
	}
	s.advance.cancel()
	if s.nav.Retreat() {
		s.publishLocked(EventQuestion, nil)
	}
	return nil
}

// Retake discards the attempt and returns to the start screen with a new
// identity. Responses still in flight for the old identity are dropped.
func (s *Session) Retake() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.screen == domain.ScreenStart {
		return domain.ErrWrongScreen
	}
	previous := s.identity
	s.advance.cancel()
	s.questions = nil
	s.answers.Reset(nil)
	s.nav.Reset(0)
	s.displayed = false
	s.results = nil
	s.starting = false
	s.submitting = false
	s.identity = s.newIdentity()
	s.screen = domain.ScreenStart
	s.publishLocked(EventReset, nil)
	s.logger.Debug("attempt reset",
		zap.String("previous_session_id", string(previous)),
		zap.String("session_id", string(s.identity)))
	return nil
}

// AutoAdvancePending reports whether an auto-advance is scheduled.
func (s *Session) AutoAdvancePending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advance.pending()
}

type submission struct {
	identity domain.SessionIdentity
	answers  []domain.Answer
}

// stepLocked advances navigation and, on completion, freezes the answers for
// submission.
func (s *Session) stepLocked() (*submission, error) {
	if s.screen != domain.ScreenQuiz {
		return nil, domain.ErrWrongScreen
	}
	if s.submitting {
		return nil, domain.ErrSubmissionInFlight
	}
	_, answered := s.answers.Get(s.nav.Current())
	complete, err := s.nav.Advance(answered)
	if err != nil {
		return nil, err
	}
	if !complete {
		s.publishLocked(EventQuestion, nil)
		return nil, nil
	}
	s.submitting = true
	s.publishLocked(EventScreen, nil)
	return &submission{identity: s.identity, answers: s.answers.Answers()}, nil
}

func (s *Session) submit(ctx context.Context, job *submission) error {
	results, err := s.submitter.Submit(ctx, slices.Values(job.answers))

	s.mu.Lock()
	defer s.mu.Unlock()
	if job.identity != s.identity {
		s.logger.Info("discarding stale submission result", zap.String("session_id", string(job.identity)))
		return domain.ErrStaleResponse
	}
	s.submitting = false
	if err != nil {
		var subErr *domain.SubmissionError
		if !errors.As(err, &subErr) {
			err = &domain.SubmissionError{Err: err}
		}
		s.logger.Warn("submission failed", zap.String("session_id", string(job.identity)), zap.Error(err))
		s.publishLocked(EventError, err)
		return err
	}

	s.results = &results
	s.screen = domain.ScreenResults
	s.displayed = false
	s.publishLocked(EventResults, nil)
	s.logger.Debug("results received", zap.String("session_id", string(job.identity)), zap.Int("answers", len(job.answers)))
	return nil
}

// autoAdvance runs when a scheduled advance fires. It only acts if it is still
// the pending task for the question it was keyed to.
func (s *Session) autoAdvance(token uint64, index int) {
	s.mu.Lock()
	if !s.advance.claim(token) || s.screen != domain.ScreenQuiz || s.nav.Current() != index {
		s.mu.Unlock()
		return
	}
	job, err := s.stepLocked()
	if err != nil {
		s.publishLocked(EventError, err)
	}
	s.mu.Unlock()
	if job != nil {
		// failures are already published as events
		_ = s.submit(s.baseCtx, job)
	}
}

func (s *Session) snapshotLocked() domain.ContextSnapshot {
	return Derive(State{
		Screen:    s.screen,
		Questions: s.questions,
		Current:   s.nav.Current(),
		Displayed: s.displayed,
		Results:   s.results,
	})
}

func (s *Session) viewLocked() View {
	v := View{
		Screen:     s.screen,
		Identity:   s.identity,
		Answered:   s.answers.Count(),
		Submitting: s.submitting,
	}
	switch s.screen {
	case domain.ScreenQuiz:
		if s.displayed {
			index := s.nav.Current()
			q := s.questions[index]
			selected := -1
			if a, ok := s.answers.Get(index); ok {
				selected = a.OptionIndex
			}
			v.Question = &QuestionView{
				Index:     index,
				Number:    index + 1,
				Total:     len(s.questions),
				Category:  q.Category,
				Prompt:    q.Prompt,
				Options:   q.OptionTexts(),
				Selected:  selected,
				CanGoBack: index > 0,
				Progress:  float64(index+1) / float64(len(s.questions)) * 100,
			}
		}
	case domain.ScreenResults:
		v.Results = s.results
	}
	return v
}

func (s *Session) eventLocked(kind EventKind, err error) Event {
	return Event{
		Kind:     kind,
		Identity: s.identity,
		Snapshot: s.snapshotLocked(),
		View:     s.viewLocked(),
		Err:      err,
	}
}

func (s *Session) publishLocked(kind EventKind, err error) {
	if s.closed {
		return
	}
	s.bridge.publish(s.eventLocked(kind, err))
}
