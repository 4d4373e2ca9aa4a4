package contextproviders

import (
	"slices"
	"sync"
)

// ItemUsage records how much of an item reached the final prompt.
type ItemUsage string

const (
	UsageFull    ItemUsage = "full"
	UsagePartial ItemUsage = "partial"
	UsageNone    ItemUsage = "none"
	UsageError   ItemUsage = "error"
)

// UsageDetail is the per-item telemetry entry.
type UsageDetail struct {
	ID             string    `json:"id"`
	Kind           Kind      `json:"type"`
	Name           string    `json:"name,omitempty"`
	Usage          ItemUsage `json:"usage"`
	ExpectedTokens int       `json:"expectedTokens"`
	ActualTokens   int       `json:"actualTokens"`
}

// ProviderTelemetry is the per-provider usage report attached to prompts.
type ProviderTelemetry struct {
	ProviderID            string        `json:"providerId"`
	Resolution            Resolution    `json:"resolution"`
	ResolutionTimeMs      int64         `json:"resolutionTimeMs"`
	Usage                 ItemUsage     `json:"usage"`
	Matched               bool          `json:"matched"`
	NumResolvedItems      int           `json:"numResolvedItems"`
	NumUsedItems          int           `json:"numUsedItems"`
	NumPartiallyUsedItems int           `json:"numPartiallyUsedItems"`
	UsageDetails          []UsageDetail `json:"usageDetails,omitempty"`
}

type itemKey struct {
	providerID string
	itemID     string
}

type itemStat struct {
	usage    ItemUsage
	expected int
	actual   int
}

// Statistics collects item usage reported by prompt assembly for one
// completion.
type Statistics struct {
	mu    sync.Mutex
	items map[itemKey]itemStat
}

// NewStatistics creates an empty collector.
func NewStatistics() *Statistics {
	return &Statistics{items: make(map[itemKey]itemStat)}
}

// SetUsage records the usage of item itemID of provider providerID. Item ids
// are only unique within a provider.
func (s *Statistics) SetUsage(providerID, itemID string, usage ItemUsage, expectedTokens, actualTokens int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[itemKey{providerID, itemID}] = itemStat{usage: usage, expected: expectedTokens, actual: actualTokens}
}

// Telemetry builds the per-provider report. Trait names are included only
// when listed in allowedTraits.
func (s *Statistics) Telemetry(results []Result, allowedTraits []string) []ProviderTelemetry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ProviderTelemetry, 0, len(results))
	for _, r := range results {
		pt := ProviderTelemetry{
			ProviderID:       r.ProviderID,
			Resolution:       r.Resolution,
			ResolutionTimeMs: r.ResolutionTime.Milliseconds(),
			Matched:          r.MatchScore > 0,
			NumResolvedItems: len(r.Items),
			Usage:            UsageNone,
		}
		if r.Resolution == ResolutionError {
			pt.Usage = UsageError
		}
		for _, it := range r.Items {
			st, ok := s.items[itemKey{r.ProviderID, it.ID}]
			if !ok {
				st = itemStat{usage: UsageNone}
			}
			switch st.usage {
			case UsageFull:
				pt.NumUsedItems++
			case UsagePartial:
				pt.NumPartiallyUsedItems++
			}
			d := UsageDetail{
				ID:             it.ID,
				Kind:           it.Kind,
				Usage:          st.usage,
				ExpectedTokens: st.expected,
				ActualTokens:   st.actual,
			}
			if it.Kind == KindTrait && slices.Contains(allowedTraits, it.Name) {
				d.Name = it.Name
			}
			pt.UsageDetails = append(pt.UsageDetails, d)
		}
		switch {
		case pt.NumResolvedItems > 0 && pt.NumUsedItems == pt.NumResolvedItems:
			pt.Usage = UsageFull
		case pt.NumUsedItems+pt.NumPartiallyUsedItems > 0:
			pt.Usage = UsagePartial
		}
		out = append(out, pt)
	}
	return out
}
