package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"time"

	"ghostprompt/internal/contextproviders"
	"ghostprompt/internal/logging"
	"ghostprompt/internal/telemetry"
)

type contextKey struct{}

const (
	fileName         = "usage.json"
	defaultSaveDelay = 5 * time.Second
)

// Tracker aggregates prompt outcomes and persists them as JSON. It is a
// telemetry.Sink for prompt result events.
type Tracker struct {
	mu            sync.Mutex
	data          UsageData
	filePath      string
	dirty         bool
	saveDelay     time.Duration
	autoSaveTimer *time.Timer
	closed        bool
}

// NewTracker creates a tracker persisting to dir/usage.json.
func NewTracker(dir string) (*Tracker, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create usage dir: %w", err)
	}

	t := &Tracker{
		filePath:  filepath.Join(dir, fileName),
		saveDelay: defaultSaveDelay,
		data:      UsageData{Version: "1.0", Aggregate: newAggregate()},
	}

	if err := t.Load(); err != nil {
		logging.UsageWarn("ignoring unreadable usage file %s: %v", t.filePath, err)
		t.data = UsageData{Version: "1.0", Aggregate: newAggregate()}
	}

	return t, nil
}

func newAggregate() AggregatedStats {
	return AggregatedStats{
		ByResult:   make(map[string]int64),
		ByLanguage: make(map[string]TokenCounts),
		ByRenderer: make(map[string]TokenCounts),
		ByProvider: make(map[string]ProviderCounts),
	}
}

// Path returns the persistence file.
func (t *Tracker) Path() string { return t.filePath }

// Load reads the usage data from disk.
func (t *Tracker) Load() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := os.ReadFile(t.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, &t.data); err != nil {
		return err
	}

	// Ensure maps are initialized if file was empty/partial
	agg := &t.data.Aggregate
	if agg.ByResult == nil {
		agg.ByResult = make(map[string]int64)
	}
	if agg.ByLanguage == nil {
		agg.ByLanguage = make(map[string]TokenCounts)
	}
	if agg.ByRenderer == nil {
		agg.ByRenderer = make(map[string]TokenCounts)
	}
	if agg.ByProvider == nil {
		agg.ByProvider = make(map[string]ProviderCounts)
	}
	return nil
}

// Save writes the usage data to disk.
func (t *Tracker) Save() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.saveLocked()
}

func (t *Tracker) saveLocked() error {
	t.data.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		return err
	}
	t.dirty = false
	return os.WriteFile(t.filePath, data, 0644)
}

// Track records one prompt outcome.
func (t *Tracker) Track(rec PromptRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}

	agg := &t.data.Aggregate
	agg.TotalPrompts++
	agg.ByResult[rec.ResultType]++
	if rec.ResultType == "prompt" {
		agg.Tokens.Add(rec.PrefixTokens, rec.SuffixTokens)
		addToMap(agg.ByLanguage, rec.LanguageID, rec.PrefixTokens, rec.SuffixTokens)
		addToMap(agg.ByRenderer, rec.Renderer, rec.PrefixTokens, rec.SuffixTokens)
		agg.ComputeTime.Add(rec.ComputeTimeMs)
	}
	for _, p := range rec.Providers {
		pc := agg.ByProvider[p.ProviderID]
		if pc.Resolutions == nil {
			pc.Resolutions = make(map[string]int64)
			pc.Usage = make(map[string]int64)
		}
		pc.Resolutions[p.Resolution]++
		pc.Usage[p.Usage]++
		pc.ResolvedItems += int64(p.ResolvedItems)
		pc.UsedItems += int64(p.UsedItems)
		pc.PartialItems += int64(p.PartialItems)
		agg.ByProvider[p.ProviderID] = pc
	}

	// Debounced auto-save
	if !t.dirty {
		t.dirty = true
		t.autoSaveTimer = time.AfterFunc(t.saveDelay, func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			if !t.dirty || t.closed {
				return
			}
			if err := t.saveLocked(); err != nil {
				logging.UsageWarn("autosave failed: %v", err)
			}
		})
	}
}

// Report implements telemetry.Sink. Events other than prompt results are
// ignored.
func (t *Tracker) Report(_ context.Context, ev telemetry.Event) {
	if ev.Name != telemetry.EventPromptResult {
		return
	}
	rec := PromptRecord{
		ResultType:    ev.Data.Properties[telemetry.PropResultType],
		LanguageID:    ev.Data.Properties[telemetry.PropLanguageID],
		Renderer:      ev.Data.Properties[telemetry.PropRenderer],
		PrefixTokens:  int(ev.Data.Measurements[telemetry.MeasurePrefixTokens]),
		SuffixTokens:  int(ev.Data.Measurements[telemetry.MeasureSuffixTokens]),
		ComputeTimeMs: ev.Data.Measurements[telemetry.MeasureComputeTimeMs],
	}
	if pts, ok := ev.Payload.([]contextproviders.ProviderTelemetry); ok {
		for _, pt := range pts {
			if !pt.Matched {
				continue
			}
			rec.Providers = append(rec.Providers, ProviderRecord{
				ProviderID:    pt.ProviderID,
				Resolution:    string(pt.Resolution),
				Usage:         string(pt.Usage),
				ResolvedItems: pt.NumResolvedItems,
				UsedItems:     pt.NumUsedItems,
				PartialItems:  pt.NumPartiallyUsedItems,
			})
		}
	}
	t.Track(rec)
}

// Close cancels a pending autosave and writes outstanding data.
func (t *Tracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.autoSaveTimer != nil {
		t.autoSaveTimer.Stop()
	}
	if !t.dirty {
		return nil
	}
	return t.saveLocked()
}

// Stats returns a copy of the aggregated stats.
func (t *Tracker) Stats() AggregatedStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	stats := t.data.Aggregate
	stats.ByResult = maps.Clone(stats.ByResult)
	stats.ByLanguage = maps.Clone(stats.ByLanguage)
	stats.ByRenderer = maps.Clone(stats.ByRenderer)
	stats.ByProvider = make(map[string]ProviderCounts, len(t.data.Aggregate.ByProvider))
	for id, pc := range t.data.Aggregate.ByProvider {
		pc.Resolutions = maps.Clone(pc.Resolutions)
		pc.Usage = maps.Clone(pc.Usage)
		stats.ByProvider[id] = pc
	}
	return stats
}

func addToMap(m map[string]TokenCounts, key string, prefix, suffix int) {
	if key == "" {
		key = "unknown"
	}
	entry := m[key]
	entry.Add(prefix, suffix)
	m[key] = entry
}

// Context Helpers

// NewContext returns a new context carrying the tracker.
func NewContext(ctx context.Context, t *Tracker) context.Context {
	return context.WithValue(ctx, contextKey{}, t)
}

// FromContext retrieves the tracker from the context.
func FromContext(ctx context.Context) *Tracker {
	val, _ := ctx.Value(contextKey{}).(*Tracker)
	return val
}
