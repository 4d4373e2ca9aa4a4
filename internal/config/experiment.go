package config

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Experiment variable names accepted by WithExperiment.
const (
	ExpMaxPromptCompletionTokens = "maxPromptCompletionTokens"
	ExpSuffixPercent             = "suffixPercent"
	ExpSuffixMatchThreshold      = "suffixMatchThreshold"
	ExpNumberOfSnippets          = "numberOfSnippets"
	ExpSplitContext              = "splitContext"
	ExpContextProviders          = "contextProviders"
	ExpContextProviderTimeBudget = "contextProviderTimeBudget"

	ExpRecentEditsEnabled             = "recentEdits.enabled"
	ExpRecentEditsMaxFiles            = "recentEdits.maxFiles"
	ExpRecentEditsMaxEdits            = "recentEdits.maxEdits"
	ExpRecentEditsDiffContextLines    = "recentEdits.diffContextLines"
	ExpRecentEditsMergeLineDistance   = "recentEdits.editMergeLineDistance"
	ExpRecentEditsMaxCharsPerEdit     = "recentEdits.maxCharsPerEdit"
	ExpRecentEditsMaxLinesPerEdit     = "recentEdits.maxLinesPerEdit"
	ExpRecentEditsDebounceTimeout     = "recentEdits.debounceTimeout"
	ExpRecentEditsSummarizationFormat = "recentEdits.summarizationFormat"
	ExpRecentEditsRemoveDeletedLines  = "recentEdits.removeDeletedLines"
	ExpRecentEditsInsertionsFirst     = "recentEdits.insertionsBeforeDeletions"
	ExpRecentEditsNoReplyMarker       = "recentEdits.appendNoReplyMarker"
	ExpRecentEditsActiveDocDistance   = "recentEdits.activeDocDistanceLimitFromCursor"
)

// WithExperiment returns a copy of c with per-request experiment values
// applied. Unknown keys are ignored; malformed or out-of-range values are
// errors. c is never modified.
func (c *Config) WithExperiment(vars map[string]string) (*Config, error) {
	out := c.Clone()
	if len(vars) == 0 {
		return out, nil
	}

	ints := map[string]*int{
		ExpMaxPromptCompletionTokens:    &out.Prompt.MaxPromptCompletionTokens,
		ExpSuffixPercent:                &out.Prompt.SuffixPercent,
		ExpSuffixMatchThreshold:         &out.Prompt.SuffixMatchThreshold,
		ExpNumberOfSnippets:             &out.SimilarFiles.NumberOfSnippets,
		ExpRecentEditsMaxFiles:          &out.RecentEdits.MaxFiles,
		ExpRecentEditsMaxEdits:          &out.RecentEdits.MaxEdits,
		ExpRecentEditsDiffContextLines:  &out.RecentEdits.DiffContextLines,
		ExpRecentEditsMergeLineDistance: &out.RecentEdits.EditMergeLineDistance,
		ExpRecentEditsMaxCharsPerEdit:   &out.RecentEdits.MaxCharsPerEdit,
		ExpRecentEditsMaxLinesPerEdit:   &out.RecentEdits.MaxLinesPerEdit,
		ExpRecentEditsActiveDocDistance: &out.RecentEdits.ActiveDocDistanceLimitFromCursor,
	}
	bools := map[string]*bool{
		ExpSplitContext:                  &out.Prompt.SplitContext,
		ExpRecentEditsEnabled:            &out.RecentEdits.Enabled,
		ExpRecentEditsRemoveDeletedLines: &out.RecentEdits.RemoveDeletedLines,
		ExpRecentEditsInsertionsFirst:    &out.RecentEdits.InsertionsBeforeDeletions,
		ExpRecentEditsNoReplyMarker:      &out.RecentEdits.AppendNoReplyMarker,
	}

	for key, raw := range vars {
		raw = strings.TrimSpace(raw)
		if p, ok := ints[key]; ok {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("experiment %s: invalid integer %q", key, raw)
			}
			*p = n
			continue
		}
		if p, ok := bools[key]; ok {
			b, err := strconv.ParseBool(raw)
			if err != nil {
				return nil, fmt.Errorf("experiment %s: invalid boolean %q", key, raw)
			}
			*p = b
			continue
		}
		switch key {
		case ExpContextProviders:
			for _, id := range splitList(raw) {
				if !slices.Contains(out.ContextProviders.Enabled, id) {
					out.ContextProviders.Enabled = append(out.ContextProviders.Enabled, id)
				}
			}
		case ExpContextProviderTimeBudget:
			ms, err := strconv.Atoi(raw)
			if err != nil || ms < 0 {
				return nil, fmt.Errorf("experiment %s: invalid milliseconds %q", key, raw)
			}
			out.ContextProviders.TimeBudget = fmt.Sprintf("%dms", ms)
		case ExpRecentEditsDebounceTimeout:
			ms, err := strconv.Atoi(raw)
			if err != nil || ms < 0 {
				return nil, fmt.Errorf("experiment %s: invalid milliseconds %q", key, raw)
			}
			out.RecentEdits.DebounceTimeout = fmt.Sprintf("%dms", ms)
		case ExpRecentEditsSummarizationFormat:
			out.RecentEdits.SummarizationFormat = raw
		}
	}

	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}
