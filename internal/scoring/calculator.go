// Package scoring computes annual footprint results from submitted answers.
package scoring

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"

	"carbon-quiz/internal/catalog"
	"carbon-quiz/internal/domain"
	"carbon-quiz/internal/submission"
)

// MonthsPerYear converts the per-answer monthly estimate to an annual figure.
const MonthsPerYear = 12

// Calculator scores requests against a bank's reference data.
type Calculator struct {
	bank catalog.Bank
}

func NewCalculator(bank catalog.Bank) *Calculator {
	return &Calculator{bank: bank}
}

// Score implements submission.Scorer.
func (c *Calculator) Score(_ context.Context, req submission.Request) (domain.Results, error) {
	return c.Calculate(req)
}

// Calculate sums each category, compares it with the category average and
// orders categories by how far they are from it, furthest first.
func (c *Calculator) Calculate(req submission.Request) (domain.Results, error) {
	if len(req.Answers) == 0 {
		return domain.Results{}, domain.ErrNoAnswers
	}

	sums := make(map[domain.Category]float64, len(domain.Categories))
	for id, a := range req.Answers {
		if !a.Category.Valid() {
			return domain.Results{}, fmt.Errorf("%w: answer %s has unknown category %q", domain.ErrMalformedPayload, id, a.Category)
		}
		sums[a.Category] += a.CO2
	}

	var total domain.Totals
	categories := make([]domain.CategoryResult, 0, len(domain.Categories))
	for _, cat := range domain.Categories {
		annual := math.RoundToEven(sums[cat] * MonthsPerYear)
		avg := c.bank.Averages[cat]
		diff := annual - avg

		tips := c.bank.Tips[cat]
		if len(tips) > catalog.TipsPerCategory {
			tips = tips[:catalog.TipsPerCategory]
		}
		categories = append(categories, domain.CategoryResult{
			Category:   cat,
			CO2Annual:  annual,
			Average:    avg,
			Difference: diff,
			Percentage: percentOf(diff, avg),
			Tips:       slices.Clone(tips),
			Products:   slices.Clone(c.bank.Products[cat]),
		})
		total.CO2 += annual
		total.Average += avg
	}
	total.Difference = total.CO2 - total.Average
	total.Percentage = percentOf(total.Difference, total.Average)

	sort.SliceStable(categories, func(i, j int) bool {
		return math.Abs(categories[i].Difference) > math.Abs(categories[j].Difference)
	})
	return domain.EncodeResults(total, categories)
}

func percentOf(diff, avg float64) float64 {
	if avg == 0 {
		return 0
	}
	return math.RoundToEven(diff / avg * 100)
}
