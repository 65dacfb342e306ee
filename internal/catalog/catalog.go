// Package catalog ships the built-in carbon footprint question bank together
// with the reference data used to score it.
package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"carbon-quiz/internal/domain"
)

// DefaultBankID names the built-in bank in every question store.
const DefaultBankID = "carbon"

// TipsPerCategory is how many tips a scored category carries.
const TipsPerCategory = 3

//go:embed bank.json
var bankJSON []byte

// Bank is a question set plus the scoring reference data for its categories.
type Bank struct {
	Questions []domain.Question                    `json:"questions"`
	Averages  map[domain.Category]float64          `json:"averages"`
	Tips      map[domain.Category][]string         `json:"tips"`
	Products  map[domain.Category][]domain.Product `json:"products"`
}

var loadDefault = sync.OnceValues(func() (Bank, error) {
	return Parse(bankJSON)
})

// Default returns the built-in bank. It panics if the embedded data is invalid.
func Default() Bank {
	b, err := loadDefault()
	if err != nil {
		panic(err)
	}
	return b
}

// Parse decodes and validates a bank document.
func Parse(data []byte) (Bank, error) {
	var b Bank
	if err := json.Unmarshal(data, &b); err != nil {
		return Bank{}, fmt.Errorf("decode bank: %w", err)
	}
	if err := b.Validate(); err != nil {
		return Bank{}, err
	}
	return b, nil
}

// Validate checks that every question is answerable and every category
// has an average to compare against.
func (b Bank) Validate() error {
	if len(b.Questions) == 0 {
		return domain.ErrNoQuestions
	}
	seen := make(map[domain.QuestionID]struct{}, len(b.Questions))
	for _, q := range b.Questions {
		if q.ID == "" {
			return fmt.Errorf("question %q: missing id", q.Prompt)
		}
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("question %s: duplicate id", q.ID)
		}
		seen[q.ID] = struct{}{}
		if !q.Category.Valid() {
			return fmt.Errorf("question %s: unknown category %q", q.ID, q.Category)
		}
		if len(q.Options) < 2 {
			return fmt.Errorf("question %s: needs at least two options", q.ID)
		}
	}
	for _, c := range domain.Categories {
		if b.Averages[c] <= 0 {
			return fmt.Errorf("category %s: missing average", c)
		}
	}
	return nil
}
