package usage

import "time"

// UsageData represents the root structure stored in persistence.
type UsageData struct {
	Version   string          `json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
	Aggregate AggregatedStats `json:"aggregate"`
}

// PromptRecord is one prompt request outcome.
type PromptRecord struct {
	ResultType    string
	LanguageID    string
	Renderer      string
	PrefixTokens  int
	SuffixTokens  int
	ComputeTimeMs float64
	Providers     []ProviderRecord
}

// ProviderRecord is the outcome of one context provider for one prompt.
type ProviderRecord struct {
	ProviderID    string
	Resolution    string
	Usage         string
	ResolvedItems int
	UsedItems     int
	PartialItems  int
}

// AggregatedStats holds counters broken down by various dimensions.
type AggregatedStats struct {
	TotalPrompts int64                     `json:"total_prompts"`
	Tokens       TokenCounts               `json:"tokens"`
	ByResult     map[string]int64          `json:"by_result"` // prompt, promptTimeout, ...
	ByLanguage   map[string]TokenCounts    `json:"by_language"`
	ByRenderer   map[string]TokenCounts    `json:"by_renderer"`
	ByProvider   map[string]ProviderCounts `json:"by_provider"`
	ComputeTime  TimingStats               `json:"compute_time"`
}

// TokenCounts holds prefix/suffix sums over successful prompts.
type TokenCounts struct {
	Prompts int64 `json:"prompts"`
	Prefix  int64 `json:"prefix"`
	Suffix  int64 `json:"suffix"`
	Total   int64 `json:"total"`
}

func (tc *TokenCounts) Add(prefix, suffix int) {
	tc.Prompts++
	tc.Prefix += int64(prefix)
	tc.Suffix += int64(suffix)
	tc.Total += int64(prefix + suffix)
}

// ProviderCounts aggregates context provider outcomes.
type ProviderCounts struct {
	Resolutions   map[string]int64 `json:"resolutions"`
	Usage         map[string]int64 `json:"usage"`
	ResolvedItems int64            `json:"resolved_items"`
	UsedItems     int64            `json:"used_items"`
	PartialItems  int64            `json:"partial_items"`
}

// TimingStats tracks prompt compute time in milliseconds.
type TimingStats struct {
	Count   int64   `json:"count"`
	TotalMs float64 `json:"total_ms"`
	MaxMs   float64 `json:"max_ms"`
}

func (ts *TimingStats) Add(ms float64) {
	ts.Count++
	ts.TotalMs += ms
	ts.MaxMs = max(ts.MaxMs, ms)
}

// MeanMs returns the average compute time.
func (ts TimingStats) MeanMs() float64 {
	if ts.Count == 0 {
		return 0
	}
	return ts.TotalMs / float64(ts.Count)
}
