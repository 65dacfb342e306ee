package memory

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"carbon-quiz/internal/domain"
	"golang.org/x/sync/singleflight"
)

// QuestionLoader reads a question bank from its source of record.
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, bankID string) ([]domain.Question, error)
}

// QuestionRepository keeps loaded banks in process until their TTL runs out.
// Concurrent misses for the same bank share a single load.
//
// Returned slices are shared between callers and must be treated as
// read-only. QuizService copies before it shuffles.
type QuestionRepository struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	loads  singleflight.Group

	mu    sync.RWMutex
	banks map[string]bankEntry
}

type bankEntry struct {
	questions []domain.Question
	staleAt   time.Time
}

func NewQuestionRepository(loader QuestionLoader, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		banks:  make(map[string]bankEntry),
	}
}

func (r *QuestionRepository) GetQuestions(ctx context.Context, bankID string) ([]domain.Question, error) {
	if questions, ok := r.fresh(bankID); ok {
		return questions, nil
	}
	v, err, _ := r.loads.Do(bankID, func() (any, error) {
		if questions, ok := r.fresh(bankID); ok {
			return questions, nil
		}
		return r.load(ctx, bankID)
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Question), nil
}

func (r *QuestionRepository) fresh(bankID string) ([]domain.Question, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.banks[bankID]
	if !ok || !r.clock().Before(entry.staleAt) {
		return nil, false
	}
	return entry.questions, true
}

func (r *QuestionRepository) load(ctx context.Context, bankID string) ([]domain.Question, error) {
	questions, err := r.loader.LoadQuestions(ctx, bankID)
	if err != nil {
		return nil, err
	}
	if r.ttl > 0 {
		r.mu.Lock()
		r.banks[bankID] = bankEntry{questions: questions, staleAt: r.clock().Add(r.lifetime())}
		r.mu.Unlock()
	}
	return questions, nil
}

// lifetime is the TTL plus up to a tenth of it, so banks loaded together
// do not all go stale in the same instant.
func (r *QuestionRepository) lifetime() time.Duration {
	return r.ttl + time.Duration(rand.Int64N(int64(r.ttl)/10+1))
}

// StaticQuestionLoader serves banks from a fixed map.
type StaticQuestionLoader struct {
	banks map[string][]domain.Question
}

func NewStaticQuestionLoader(banks map[string][]domain.Question) *StaticQuestionLoader {
	return &StaticQuestionLoader{banks: banks}
}

func (l *StaticQuestionLoader) LoadQuestions(_ context.Context, bankID string) ([]domain.Question, error) {
	questions, ok := l.banks[bankID]
	if !ok {
		return nil, domain.ErrBankNotFound
	}
	return questions, nil
}
