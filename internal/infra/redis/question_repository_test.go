package redis

import (
	"context"
	"testing"
	"time"

	"carbon-quiz/internal/domain"
	"carbon-quiz/internal/infra/memory"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestQuestionRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)

	loader := &countingLoader{
		QuestionLoader: memory.NewStaticQuestionLoader(map[string][]domain.Question{
			"carbon": sampleQuestions(),
		}),
	}
	repo := NewQuestionRepository(client, loader, time.Minute)

	questions, err := repo.GetQuestions(context.Background(), "carbon")
	if err != nil {
		t.Fatalf("get questions: %v", err)
	}
	if loader.calls != 1 || len(questions) != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if !mr.Exists("quiz:bank:carbon") {
		t.Fatalf("expected bank cached in redis")
	}
	if ttl := mr.TTL("quiz:bank:carbon"); ttl < time.Minute {
		t.Fatalf("expected ttl of at least a minute, got %v", ttl)
	}

	// Second call should hit cache, loader not incremented.
	cached, _ := repo.GetQuestions(context.Background(), "carbon")
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
	if cached[0].ID != "7" || cached[0].Options[1].CO2 != 1000 || cached[0].Category != domain.CategoryFood {
		t.Fatalf("cached question lost data: %+v", cached[0])
	}

	if err := repo.Invalidate(context.Background(), "carbon"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	_, _ = repo.GetQuestions(context.Background(), "carbon")
	if loader.calls != 2 {
		t.Fatalf("expected reload after invalidate, loader calls=%d", loader.calls)
	}
}

type countingLoader struct {
	memory.QuestionLoader
	calls int
}

func (l *countingLoader) LoadQuestions(ctx context.Context, bankID string) ([]domain.Question, error) {
	l.calls++
	return l.QuestionLoader.LoadQuestions(ctx, bankID)
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{
			ID:       "7",
			Category: domain.CategoryFood,
			Prompt:   "How often do you eat red meat (beef, lamb)?",
			Options: []domain.Option{
				{Text: "Never (Vegetarian/Vegan)", CO2: 100},
				{Text: "Daily", CO2: 1000},
			},
		},
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
