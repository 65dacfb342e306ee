package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Category groups questions and results for display and scoring.
type Category string

const (
	CategoryHome        Category = "Home"
	CategoryMobility    Category = "Mobility"
	CategoryFood        Category = "Food"
	CategoryConsumption Category = "Consumption"
)

// Categories lists every known category in canonical order.
var Categories = []Category{CategoryHome, CategoryMobility, CategoryFood, CategoryConsumption}

// Valid reports whether c is one of the fixed categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// QuestionID identifies a question. Question sources send it either as a JSON
// number or a string, so both are accepted and kept in string form.
type QuestionID string

func (id *QuestionID) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*id = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = QuestionID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("question id: %w", err)
	}
	*id = QuestionID(n.String())
	return nil
}

// MarshalJSON writes numeric ids back as numbers so round trips keep the source's shape.
func (id QuestionID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// Option represents a possible answer for a question.
type Option struct {
	Text string  `json:"text"`
	CO2  float64 `json:"co2"`
}

// Question models a multiple-choice question. Immutable once fetched.
type Question struct {
	ID       QuestionID `json:"id"`
	Category Category   `json:"category"`
	Prompt   string     `json:"question"`
	Options  []Option   `json:"options"`
}

// OptionTexts returns the display text of each option, in order.
func (q Question) OptionTexts() []string {
	texts := make([]string, len(q.Options))
	for i, opt := range q.Options {
		texts[i] = opt.Text
	}
	return texts
}

// Answer records the option chosen for one question.
type Answer struct {
	QuestionID    QuestionID `json:"questionId"`
	QuestionIndex int        `json:"-"`
	QuestionText  string     `json:"questionText"`
	Category      Category   `json:"category"`
	OptionIndex   int        `json:"optionIndex"`
	Text          string     `json:"selectedOption"`
	CO2           float64    `json:"co2"`
}

// NewAnswer builds the answer for choosing option optionIndex of q.
func NewAnswer(q Question, index, optionIndex int) (Answer, error) {
	if optionIndex < 0 || optionIndex >= len(q.Options) {
		return Answer{}, ErrOptionNotFound
	}
	opt := q.Options[optionIndex]
	return Answer{
		QuestionID:    q.ID,
		QuestionIndex: index,
		QuestionText:  q.Prompt,
		Category:      q.Category,
		OptionIndex:   optionIndex,
		Text:          opt.Text,
		CO2:           opt.CO2,
	}, nil
}

// MarshalJSON adds the 1-based question number the assistant expects.
func (a Answer) MarshalJSON() ([]byte, error) {
	type plain Answer
	return json.Marshal(struct {
		plain
		QuestionNumber int `json:"questionNumber"`
	}{plain: plain(a), QuestionNumber: a.QuestionIndex + 1})
}

// Screen is the top-level UI state.
type Screen string

const (
	ScreenStart   Screen = "start"
	ScreenQuiz    Screen = "quiz"
	ScreenResults Screen = "results"
)

// SessionIdentity correlates the assistant turns of one quiz attempt.
type SessionIdentity string

// Product is a suggestion attached to a category result.
type Product struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Impact      string `json:"impact,omitempty"`
	Price       string `json:"price,omitempty"`
}

// CategoryResult is the scored breakdown for one category.
type CategoryResult struct {
	Category   Category  `json:"category"`
	CO2Annual  float64   `json:"co2_annual"`
	Average    float64   `json:"average"`
	Difference float64   `json:"difference"`
	Percentage float64   `json:"percentage"`
	Tips       []string  `json:"tips"`
	Products   []Product `json:"products"`
}

// Totals summarizes all categories together.
type Totals struct {
	CO2        float64 `json:"co2"`
	Average    float64 `json:"average"`
	Difference float64 `json:"difference"`
	Percentage float64 `json:"percentage"`
}

// Results is the scoring collaborator's payload. Raw holds the payload exactly as
// received; Total and Categories are a decoded view in display order.
type Results struct {
	Total      Totals           `json:"-"`
	Categories []CategoryResult `json:"-"`
	Raw        json.RawMessage  `json:"-"`
}

// MarshalJSON forwards the unmodified payload.
func (r Results) MarshalJSON() ([]byte, error) {
	if len(r.Raw) == 0 {
		return []byte("null"), nil
	}
	return r.Raw, nil
}

// QuestionContext describes the question currently on screen.
type QuestionContext struct {
	Number   int      `json:"number"`
	Total    int      `json:"total"`
	Category Category `json:"category"`
	Prompt   string   `json:"question"`
	Options  []string `json:"options"`
}

// ContextSnapshot is what the assistant knows about where the user is.
type ContextSnapshot struct {
	Screen          Screen           `json:"screen"`
	CurrentQuestion *QuestionContext `json:"current_question"`
	Results         *Results         `json:"results"`
}
