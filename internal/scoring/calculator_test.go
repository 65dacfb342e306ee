package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"carbon-quiz/internal/catalog"
	"carbon-quiz/internal/domain"
	"carbon-quiz/internal/submission"
)

func TestCalculateAnnualisesAndOrdersByDistance(t *testing.T) {
	calc := NewCalculator(catalog.Default())
	req := submission.Request{Answers: map[domain.QuestionID]submission.AnswerPayload{
		"1":  {Category: domain.CategoryHome, CO2: 80},
		"2":  {Category: domain.CategoryHome, CO2: 150},
		"6":  {Category: domain.CategoryMobility, CO2: 1500},
		"7":  {Category: domain.CategoryFood, CO2: 100},
		"10": {Category: domain.CategoryConsumption, CO2: 150},
	}}

	results, err := calc.Calculate(req)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}

	// Home 230*12=2760 (+760), Mobility 18000 (+15500), Food 1200 (-800), Consumption 1800 (+300)
	wantOrder := []domain.Category{domain.CategoryMobility, domain.CategoryFood, domain.CategoryHome, domain.CategoryConsumption}
	if len(results.Categories) != len(wantOrder) {
		t.Fatalf("expected %d categories, got %d", len(wantOrder), len(results.Categories))
	}
	for i, c := range results.Categories {
		if c.Category != wantOrder[i] {
			t.Fatalf("position %d: expected %s, got %s", i, wantOrder[i], c.Category)
		}
	}

	home := results.Categories[2]
	if home.CO2Annual != 2760 || home.Difference != 760 || home.Percentage != 38 {
		t.Fatalf("unexpected home result %+v", home)
	}
	if len(home.Tips) != catalog.TipsPerCategory || len(home.Products) != 3 {
		t.Fatalf("expected 3 tips and products, got %d/%d", len(home.Tips), len(home.Products))
	}

	wantTotal := domain.Totals{CO2: 23760, Average: 8000, Difference: 15760, Percentage: 197}
	if results.Total != wantTotal {
		t.Fatalf("expected total %+v, got %+v", wantTotal, results.Total)
	}
}

func TestCalculateProducesDecodablePayload(t *testing.T) {
	calc := NewCalculator(catalog.Default())
	results, err := calc.Score(context.Background(), submission.Request{Answers: map[domain.QuestionID]submission.AnswerPayload{
		"4": {Category: domain.CategoryMobility, CO2: 100},
	}})
	if err != nil {
		t.Fatalf("score: %v", err)
	}

	var wire struct {
		Total         domain.Totals              `json:"total"`
		Categories    map[string]json.RawMessage `json:"categories"`
		PriorityOrder []string                   `json:"priority_order"`
	}
	if err := json.Unmarshal(results.Raw, &wire); err != nil {
		t.Fatalf("unmarshal raw: %v", err)
	}
	if len(wire.Categories) != 4 || len(wire.PriorityOrder) != 4 {
		t.Fatalf("unexpected wire payload %s", results.Raw)
	}

	decoded, err := domain.DecodeResults(results.Raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for i := range decoded.Categories {
		if decoded.Categories[i].Category != results.Categories[i].Category {
			t.Fatalf("order lost in round trip at %d", i)
		}
	}
}

func TestCalculateRejectsBadRequests(t *testing.T) {
	calc := NewCalculator(catalog.Default())
	if _, err := calc.Calculate(submission.Request{}); !errors.Is(err, domain.ErrNoAnswers) {
		t.Fatalf("expected ErrNoAnswers, got %v", err)
	}
	_, err := calc.Calculate(submission.Request{Answers: map[domain.QuestionID]submission.AnswerPayload{
		"1": {Category: "Space", CO2: 1},
	}})
	if !errors.Is(err, domain.ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
}
