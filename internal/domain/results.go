package domain

import (
	"encoding/json"
	"fmt"
	"math"
)

type keyedCategory struct {
	CO2Annual  float64   `json:"co2_annual"`
	Average    float64   `json:"average"`
	Difference float64   `json:"difference"`
	Percentage float64   `json:"percentage"`
	Tips       []string  `json:"tips"`
	Products   []Product `json:"products"`
}

type listedCategory struct {
	Category   Category  `json:"category"`
	Emissions  float64   `json:"emissions"`
	Average    float64   `json:"average"`
	Difference float64   `json:"difference"`
	Percentage float64   `json:"percentage"`
	Tips       []string  `json:"tips"`
	Products   []Product `json:"products"`
}

type resultsPayload struct {
	// keyed form: categories by name plus explicit priority order
	Total         *Totals                  `json:"total"`
	Categories    map[string]keyedCategory `json:"categories"`
	PriorityOrder []string                 `json:"priority_order"`

	// listed form: array already in display order
	Results         []listedCategory `json:"results"`
	TotalEmissions  *float64         `json:"total_emissions"`
	TotalAverage    *float64         `json:"total_average"`
	TotalDifference *float64         `json:"total_difference"`
}

// DecodeResults parses a scoring payload in either supported shape. The raw bytes
// are kept unmodified on the returned value.
func DecodeResults(raw []byte) (Results, error) {
	var p resultsPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Results{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	out := Results{Raw: append(json.RawMessage(nil), raw...)}
	switch {
	case p.Total != nil && len(p.Categories) > 0:
		out.Total = *p.Total
		order := p.PriorityOrder
		if len(order) == 0 {
			for _, c := range Categories {
				if _, ok := p.Categories[string(c)]; ok {
					order = append(order, string(c))
				}
			}
		}
		for _, name := range order {
			c, ok := p.Categories[name]
			if !ok {
				return Results{}, fmt.Errorf("%w: priority_order names unknown category %q", ErrMalformedPayload, name)
			}
			out.Categories = append(out.Categories, CategoryResult{
				Category:   Category(name),
				CO2Annual:  c.CO2Annual,
				Average:    c.Average,
				Difference: c.Difference,
				Percentage: c.Percentage,
				Tips:       c.Tips,
				Products:   c.Products,
			})
		}
	case len(p.Results) > 0 && p.TotalEmissions != nil:
		out.Total.CO2 = *p.TotalEmissions
		if p.TotalAverage != nil {
			out.Total.Average = *p.TotalAverage
		}
		if p.TotalDifference != nil {
			out.Total.Difference = *p.TotalDifference
		} else {
			out.Total.Difference = out.Total.CO2 - out.Total.Average
		}
		if out.Total.Average != 0 {
			out.Total.Percentage = math.Round(out.Total.Difference / out.Total.Average * 100)
		}
		for _, c := range p.Results {
			out.Categories = append(out.Categories, CategoryResult{
				Category:   c.Category,
				CO2Annual:  c.Emissions,
				Average:    c.Average,
				Difference: c.Difference,
				Percentage: c.Percentage,
				Tips:       c.Tips,
				Products:   c.Products,
			})
		}
	default:
		return Results{}, fmt.Errorf("%w: missing totals or categories", ErrMalformedPayload)
	}
	return out, nil
}

// EncodeResults builds the keyed wire form for a computed result set and
// returns it with Raw populated.
func EncodeResults(total Totals, categories []CategoryResult) (Results, error) {
	keyed := make(map[string]keyedCategory, len(categories))
	order := make([]string, 0, len(categories))
	for _, c := range categories {
		keyed[string(c.Category)] = keyedCategory{
			CO2Annual:  c.CO2Annual,
			Average:    c.Average,
			Difference: c.Difference,
			Percentage: c.Percentage,
			Tips:       c.Tips,
			Products:   c.Products,
		}
		order = append(order, string(c.Category))
	}
	raw, err := json.Marshal(struct {
		Total         Totals                   `json:"total"`
		Categories    map[string]keyedCategory `json:"categories"`
		PriorityOrder []string                 `json:"priority_order"`
	}{Total: total, Categories: keyed, PriorityOrder: order})
	if err != nil {
		return Results{}, err
	}
	return Results{Total: total, Categories: categories, Raw: raw}, nil
}
