package app

import (
	"context"
	"fmt"
	"math/rand"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"carbon-quiz/internal/catalog"
	"carbon-quiz/internal/domain"
	"carbon-quiz/internal/session"
	"carbon-quiz/internal/submission"
)

// QuestionRepository loads question banks (from cache/backing store).
type QuestionRepository interface {
	GetQuestions(ctx context.Context, bankID string) ([]domain.Question, error)
}

// SnapshotStore abstracts where the latest context snapshot of each session
// is mirrored (in-memory, Redis, etc).
type SnapshotStore interface {
	Put(ctx context.Context, id domain.SessionIdentity, snap domain.ContextSnapshot) error
	Get(ctx context.Context, id domain.SessionIdentity) (domain.ContextSnapshot, error)
	Delete(ctx context.Context, id domain.SessionIdentity) error
}

// mirrorTimeout bounds a single snapshot write.
const mirrorTimeout = 2 * time.Second

// ServiceOption configures a QuizService.
type ServiceOption func(*QuizService)

// WithShuffle toggles shuffling of the served question order.
func WithShuffle(shuffle bool) ServiceOption {
	return func(s *QuizService) { s.shuffle = shuffle }
}

// WithBankID selects the question bank to serve.
func WithBankID(id string) ServiceOption {
	return func(s *QuizService) {
		if id != "" {
			s.bankID = id
		}
	}
}

// WithRand replaces the shuffle source; used by tests.
func WithRand(rnd *rand.Rand) ServiceOption {
	return func(s *QuizService) {
		if rnd != nil {
			s.rnd = rnd
		}
	}
}

// QuizService contains the questionnaire use cases: serving questions,
// scoring answers and running sessions whose context is mirrored to a store.
type QuizService struct {
	questions QuestionRepository
	snapshots SnapshotStore
	scorer    submission.Scorer
	logger    *zap.Logger
	bankID    string
	shuffle   bool

	rndMu sync.Mutex
	rnd   *rand.Rand

	mirrors sync.WaitGroup
}

func NewQuizService(questions QuestionRepository, snapshots SnapshotStore, scorer submission.Scorer, logger *zap.Logger, opts ...ServiceOption) *QuizService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &QuizService{
		questions: questions,
		snapshots: snapshots,
		scorer:    scorer,
		logger:    logger,
		bankID:    catalog.DefaultBankID,
		shuffle:   true,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Questions returns the bank in serving order. It implements session.QuestionSource.
func (s *QuizService) Questions(ctx context.Context) ([]domain.Question, error) {
	questions, err := s.questions.GetQuestions(ctx, s.bankID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrQuestionsUnavailable, err)
	}
	questions = slices.Clone(questions)
	if s.shuffle {
		s.rndMu.Lock()
		s.rnd.Shuffle(len(questions), func(i, j int) {
			questions[i], questions[j] = questions[j], questions[i]
		})
		s.rndMu.Unlock()
	}
	return questions, nil
}

// Score implements submission.Scorer.
func (s *QuizService) Score(ctx context.Context, req submission.Request) (domain.Results, error) {
	return s.scorer.Score(ctx, req)
}

// Context returns the latest mirrored snapshot for a session.
func (s *QuizService) Context(ctx context.Context, id domain.SessionIdentity) (domain.ContextSnapshot, error) {
	return s.snapshots.Get(ctx, id)
}

// NewSession creates a session served by this service. Its snapshots are
// mirrored to the store until the session is closed; the last one is left to
// expire.
func (s *QuizService) NewSession(opts ...session.Option) *session.Session {
	opts = append([]session.Option{session.WithLogger(s.logger)}, opts...)
	sess := session.New(s, submission.NewPipeline(s, s.logger), opts...)

	events, cancel := sess.Subscribe()
	s.mirrors.Add(1)
	go func() {
		defer s.mirrors.Done()
		defer cancel()
		s.mirror(events)
	}()
	return sess
}

// Wait blocks until every mirror goroutine has stopped.
func (s *QuizService) Wait() {
	s.mirrors.Wait()
}

func (s *QuizService) mirror(events <-chan session.Event) {
	var current domain.SessionIdentity
	for ev := range events {
		if current != "" && ev.Identity != current {
			s.withTimeout(func(ctx context.Context) error { return s.snapshots.Delete(ctx, current) },
				"drop snapshot", current)
		}
		current = ev.Identity
		snap := ev.Snapshot
		s.withTimeout(func(ctx context.Context) error { return s.snapshots.Put(ctx, current, snap) },
			"mirror snapshot", current)
	}
}

func (s *QuizService) withTimeout(fn func(ctx context.Context) error, op string, id domain.SessionIdentity) {
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		s.logger.Warn(op+" failed", zap.String("session_id", string(id)), zap.Error(err))
	}
}
