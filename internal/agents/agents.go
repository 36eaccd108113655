// Package agents holds what the three pipeline stages share: generation
// settings and the money formatting used in prompts and narratives.
package agents

import (
	"math"

	"github.com/dustin/go-humanize"

	"arps/internal/oracle"
)

// Settings are the per-stage generation parameters.
type Settings struct {
	Model           string
	Temperature     float32
	MaxOutputTokens int32
	IncludeThoughts bool
	ThinkingBudget  int32
}

// Options converts s into oracle call options for the stage named label.
func (s Settings) Options(label string) oracle.Options {
	return oracle.Options{
		Label:           label,
		Model:           s.Model,
		Temperature:     s.Temperature,
		MaxOutputTokens: s.MaxOutputTokens,
		IncludeThoughts: s.IncludeThoughts,
		ThinkingBudget:  s.ThinkingBudget,
	}
}

// Dollars renders v rounded to whole dollars with thousands separators: 120,000.
func Dollars(v float64) string {
	return humanize.Comma(int64(math.Round(v)))
}

// Thousands renders v in whole thousands, as in "$120k".
func Thousands(v float64) string {
	return humanize.Comma(int64(math.Round(v / 1000)))
}

// ROI is revenue divided by cost, rounded to two decimals; 0 when cost is not
// positive.
func ROI(revenue, cost float64) float64 {
	if cost <= 0 {
		return 0
	}
	return math.Round(revenue/cost*100) / 100
}
