// Package usage counts oracle calls and tokens per stage and model. A Tracker
// travels in the context so backends can report usage without the stages
// knowing about it.
package usage

import (
	"context"
	"sync"
)

type contextKey struct{}

// Tracker accumulates usage in memory. Safe for concurrent use.
type Tracker struct {
	mu   sync.Mutex
	data AggregatedStats
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{data: AggregatedStats{
		ByStage: make(map[string]TokenCounts),
		ByModel: make(map[string]TokenCounts),
	}}
}

// Track records a completed oracle call.
func (t *Tracker) Track(stage, model string, input, output, thoughts int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.data.Total.Add(input, output, thoughts)
	addToMap(t.data.ByStage, stage, input, output, thoughts)
	if model != "" {
		addToMap(t.data.ByModel, model, input, output, thoughts)
	}
}

// TrackError records a failed oracle call.
func (t *Tracker) TrackError(stage string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.data.Total.Errors++
	entry := t.data.ByStage[stage]
	entry.Errors++
	t.data.ByStage[stage] = entry
}

// TrackRun counts one pipeline run.
func (t *Tracker) TrackRun() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.Runs++
}

// Stats returns a copy of the aggregated stats.
func (t *Tracker) Stats() AggregatedStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	stats := t.data
	stats.ByStage = copyTokenCountsMap(stats.ByStage)
	stats.ByModel = copyTokenCountsMap(stats.ByModel)
	return stats
}

func copyTokenCountsMap(src map[string]TokenCounts) map[string]TokenCounts {
	dst := make(map[string]TokenCounts, len(src))
	for key, counts := range src {
		dst[key] = counts
	}
	return dst
}

func addToMap(m map[string]TokenCounts, key string, input, output, thoughts int) {
	entry := m[key]
	entry.Add(input, output, thoughts)
	m[key] = entry
}

// NewContext returns a new context carrying the tracker.
func NewContext(ctx context.Context, t *Tracker) context.Context {
	return context.WithValue(ctx, contextKey{}, t)
}

// FromContext retrieves the tracker from the context, or nil.
func FromContext(ctx context.Context) *Tracker {
	t, _ := ctx.Value(contextKey{}).(*Tracker)
	return t
}
