package session

import (
	"iter"
	"slices"

	"carbon-quiz/internal/domain"
)

// AnswerStore is a sparse, index-addressable record of answers over a fixed
// question list. Entries may be set in any order; setting an index again
// replaces the previous entry. It is not safe for concurrent use; Session
// guards it.
type AnswerStore struct {
	questions []domain.Question
	entries   []*domain.Answer
}

// NewAnswerStore creates an empty store bound to questions.
func NewAnswerStore(questions []domain.Question) *AnswerStore {
	s := &AnswerStore{}
	s.Reset(questions)
	return s
}

// Reset clears every entry and rebinds the store to questions.
func (s *AnswerStore) Reset(questions []domain.Question) {
	s.questions = questions
	s.entries = make([]*domain.Answer, len(questions))
}

// Len returns the number of addressable slots.
func (s *AnswerStore) Len() int { return len(s.entries) }

// Set records answer at index, replacing any prior entry.
func (s *AnswerStore) Set(index int, answer domain.Answer) error {
	if index < 0 || index >= len(s.entries) {
		return domain.ErrIndexOutOfRange
	}
	if answer.QuestionID != s.questions[index].ID {
		return domain.ErrQuestionMismatch
	}
	answer.QuestionIndex = index
	s.entries[index] = &answer
	return nil
}

// Get returns the answer at index, if any. Out-of-range reads report absent.
func (s *AnswerStore) Get(index int) (domain.Answer, bool) {
	if index < 0 || index >= len(s.entries) || s.entries[index] == nil {
		return domain.Answer{}, false
	}
	return *s.entries[index], true
}

// Valid yields present answers in increasing index order, skipping empty slots.
func (s *AnswerStore) Valid() iter.Seq[domain.Answer] {
	return func(yield func(domain.Answer) bool) {
		for _, entry := range s.entries {
			if entry == nil {
				continue
			}
			if !yield(*entry) {
				return
			}
		}
	}
}

// Answers collects Valid into a slice.
func (s *AnswerStore) Answers() []domain.Answer {
	return slices.Collect(s.Valid())
}

// Count returns the number of present answers.
func (s *AnswerStore) Count() int {
	n := 0
	for _, entry := range s.entries {
		if entry != nil {
			n++
		}
	}
	return n
}
