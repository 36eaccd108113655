package usage

// TokenCounts holds token sums for one bucket.
type TokenCounts struct {
	Calls    int64 `json:"calls"`
	Errors   int64 `json:"errors,omitempty"`
	Input    int64 `json:"input"`
	Output   int64 `json:"output"`
	Thoughts int64 `json:"thoughts,omitempty"`
	Total    int64 `json:"total"`
}

// Add records one call.
func (tc *TokenCounts) Add(input, output, thoughts int) {
	tc.Calls++
	tc.Input += int64(input)
	tc.Output += int64(output)
	tc.Thoughts += int64(thoughts)
	tc.Total += int64(input + output + thoughts)
}

// AggregatedStats holds counters broken down by stage and model.
type AggregatedStats struct {
	Total   TokenCounts            `json:"total"`
	ByStage map[string]TokenCounts `json:"by_stage"`
	ByModel map[string]TokenCounts `json:"by_model"`
	Runs    int64                  `json:"runs"`
}
