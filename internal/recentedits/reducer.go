// Package recentedits tracks a rolling, diff-summarized history of local
// edits per open document.
package recentedits

import (
	"slices"
	"sort"
	"sync/atomic"
	"time"

	"ghostprompt/internal/config"
	"ghostprompt/internal/diff"
)

// Diff describes one edit region. Pre is the zero-based start line in the
// text as it was before any tracked edit; Post is the start line in the
// current text.
type Diff struct {
	Pre     int
	Post    int
	OldLen  int
	NewLen  int
	Before  []string
	Removed []string
	Added   []string
	After   []string
}

// Hunk is an immutable tracked edit. ID is unique for the process and
// changes whenever any rendered field changes.
type Hunk struct {
	ID        uint64
	File      string
	StartLine int // zero-based, current text
	EndLine   int // zero-based inclusive, current text
	Diff      Diff
	Timestamp time.Time
}

// docState is immutable once stored in an EditMap.
type docState struct {
	text  string
	lines []string
	hunks []*Hunk // ordered by Diff.Post
	seq   uint64  // last touch
}

// EditMap maps document ids to their edit state. Treat as immutable: Reduce
// returns a new map and never mutates its input.
type EditMap map[string]*docState

var (
	hunkIDs atomic.Uint64
	touches atomic.Uint64
)

func nextHunkID() uint64 { return hunkIDs.Add(1) }

// Text returns the last reduced text for docID.
func (m EditMap) Text(docID string) (string, bool) {
	st, ok := m[docID]
	if !ok {
		return "", false
	}
	return st.text, true
}

// Hunks returns the hunks of docID ordered by position.
func (m EditMap) Hunks(docID string) []*Hunk {
	st, ok := m[docID]
	if !ok {
		return nil
	}
	return slices.Clone(st.hunks)
}

// Reduce folds newText for docID into m. The first text seen for a document
// becomes its baseline. Identical text returns m unchanged.
func Reduce(m EditMap, docID, newText string, cfg config.RecentEditsConfig, now time.Time) EditMap {
	prev, ok := m[docID]
	if ok && prev.text == newText {
		return m
	}

	next := make(EditMap, len(m)+1)
	for k, v := range m {
		next[k] = v
	}

	st := &docState{
		text:  newText,
		lines: diff.SplitLines(newText),
		seq:   touches.Add(1),
	}
	if ok {
		st.hunks = reduceHunks(docID, prev, st.lines, cfg, now)
	}
	next[docID] = st

	evictFiles(next, cfg.MaxFiles)
	return next
}

// region is an interval in the previous text's line coordinates.
type region struct {
	start, end int
	hunk       *Hunk
	change     *diff.Change
}

func reduceHunks(docID string, prev *docState, newLines []string, cfg config.RecentEditsConfig, now time.Time) []*Hunk {
	changes := diff.Changes(prev.lines, newLines)
	if len(changes) == 0 {
		return prev.hunks
	}

	regions := make([]region, 0, len(prev.hunks)+len(changes))
	for _, h := range prev.hunks {
		regions = append(regions, region{start: h.Diff.Post, end: h.Diff.Post + h.Diff.NewLen, hunk: h})
	}
	for i := range changes {
		c := &changes[i]
		regions = append(regions, region{start: c.OldStart, end: c.OldEnd, change: c})
	}
	sort.SliceStable(regions, func(i, j int) bool {
		if regions[i].start != regions[j].start {
			return regions[i].start < regions[j].start
		}
		return regions[i].end < regions[j].end
	})

	groups := groupRegions(regions, cfg.EditMergeLineDistance)

	var draft []draftHunk
	for _, g := range groups {
		if d, ok := buildDraft(g, prev.lines, newLines, changes, cfg, now); ok {
			draft = append(draft, d)
		}
	}

	draft = keepNewest(draft, cfg.MaxEdits)
	return finalize(docID, draft, newLines, cfg.DiffContextLines)
}

// groupRegions merges regions transitively when they are within dist lines.
// Two existing hunks only join through a change.
func groupRegions(regions []region, dist int) [][]region {
	var groups [][]region
	var cur []region
	curEnd := 0
	curHasChange := false
	for _, r := range regions {
		if len(cur) > 0 && r.start-curEnd <= dist && (curHasChange || r.change != nil) {
			cur = append(cur, r)
			curEnd = max(curEnd, r.end)
			curHasChange = curHasChange || r.change != nil
			continue
		}
		if len(cur) > 0 {
			groups = append(groups, cur)
		}
		cur = []region{r}
		curEnd = r.end
		curHasChange = r.change != nil
	}
	if len(cur) > 0 {
		groups = append(groups, cur)
	}
	return groups
}

// draftHunk carries content before positions and ids are settled.
type draftHunk struct {
	post      int
	removed   []string
	added     []string
	timestamp time.Time
	origin    *Hunk // unchanged hunk that was only shifted
}

// shiftAt is the line delta introduced by changes that end at or before line.
func shiftAt(changes []diff.Change, line int) int {
	delta := 0
	for _, c := range changes {
		if c.OldEnd <= line && !(c.OldStart == c.OldEnd && c.OldStart == line) {
			delta += (c.NewEnd - c.NewStart) - (c.OldEnd - c.OldStart)
		}
	}
	return delta
}

func buildDraft(g []region, oldLines, newLines []string, changes []diff.Change, cfg config.RecentEditsConfig, now time.Time) (draftHunk, bool) {
	var groupChanges []*diff.Change
	for _, r := range g {
		if r.change != nil {
			groupChanges = append(groupChanges, r.change)
		}
	}

	if len(groupChanges) == 0 {
		h := g[0].hunk
		return draftHunk{
			post:      h.Diff.Post + shiftAt(changes, h.Diff.Post),
			removed:   h.Diff.Removed,
			added:     h.Diff.Added,
			timestamp: h.Timestamp,
			origin:    h,
		}, true
	}

	gs, ge := g[0].start, g[0].end
	for _, r := range g[1:] {
		gs = min(gs, r.start)
		ge = max(ge, r.end)
	}

	// Changes are ordered and non-overlapping, so the first group change
	// anchors the new-text start.
	first := groupChanges[0]
	ns := first.NewStart - (first.OldStart - gs)
	growth := 0
	for _, c := range groupChanges {
		growth += (c.NewEnd - c.NewStart) - (c.OldEnd - c.OldStart)
	}
	ne := ns + (ge - gs) + growth

	// Pre-content: previous lines with member hunks restored to their
	// original text.
	var pre []string
	cursor := gs
	for _, r := range g {
		if r.hunk == nil {
			continue
		}
		pre = append(pre, oldLines[cursor:r.start]...)
		pre = append(pre, r.hunk.Diff.Removed...)
		cursor = r.end
	}
	pre = append(pre, oldLines[cursor:ge]...)
	post := slices.Clone(newLines[ns:ne])

	lead := 0
	for lead < len(pre) && lead < len(post) && pre[lead] == post[lead] {
		lead++
	}
	trail := 0
	for trail < len(pre)-lead && trail < len(post)-lead && pre[len(pre)-1-trail] == post[len(post)-1-trail] {
		trail++
	}
	removed := pre[lead : len(pre)-trail]
	added := post[lead : len(post)-trail]
	if len(removed) == 0 && len(added) == 0 {
		return draftHunk{}, false
	}

	if max(len(removed), len(added)) > cfg.MaxLinesPerEdit {
		return draftHunk{}, false
	}
	chars := 0
	for _, l := range removed {
		chars += len(l)
	}
	for _, l := range added {
		chars += len(l)
	}
	if chars > cfg.MaxCharsPerEdit {
		return draftHunk{}, false
	}

	return draftHunk{
		post:      ns + lead,
		removed:   slices.Clone(removed),
		added:     slices.Clone(added),
		timestamp: now,
	}, true
}

// keepNewest retains the maxEdits most recent drafts, whole hunks only.
func keepNewest(draft []draftHunk, maxEdits int) []draftHunk {
	if maxEdits <= 0 || len(draft) <= maxEdits {
		return draft
	}
	idx := make([]int, len(draft))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return draft[idx[a]].timestamp.After(draft[idx[b]].timestamp)
	})
	keep := make(map[int]bool, maxEdits)
	for _, i := range idx[:maxEdits] {
		keep[i] = true
	}
	out := draft[:0:0]
	for i, d := range draft {
		if keep[i] {
			out = append(out, d)
		}
	}
	return out
}

// finalize assigns original-text positions and context, reusing hunks whose
// rendered content is unchanged.
func finalize(docID string, draft []draftHunk, lines []string, contextLines int) []*Hunk {
	sort.SliceStable(draft, func(i, j int) bool { return draft[i].post < draft[j].post })

	out := make([]*Hunk, 0, len(draft))
	delta := 0
	for _, d := range draft {
		newLen := len(d.added)
		before := slices.Clone(lines[max(0, d.post-contextLines):d.post])
		afterStart := min(d.post+newLen, len(lines))
		after := slices.Clone(lines[afterStart:min(afterStart+contextLines, len(lines))])

		df := Diff{
			Pre:     d.post - delta,
			Post:    d.post,
			OldLen:  len(d.removed),
			NewLen:  newLen,
			Before:  before,
			Removed: d.removed,
			Added:   d.added,
			After:   after,
		}
		delta += newLen - len(d.removed)

		if d.origin != nil && sameDiff(d.origin.Diff, df) {
			out = append(out, d.origin)
			continue
		}
		out = append(out, &Hunk{
			ID:        nextHunkID(),
			File:      docID,
			StartLine: d.post,
			EndLine:   d.post + max(newLen, 1) - 1,
			Diff:      df,
			Timestamp: d.timestamp,
		})
	}
	return out
}

func sameDiff(a, b Diff) bool {
	return a.Pre == b.Pre && a.Post == b.Post && a.OldLen == b.OldLen && a.NewLen == b.NewLen &&
		slices.Equal(a.Before, b.Before) && slices.Equal(a.Removed, b.Removed) &&
		slices.Equal(a.Added, b.Added) && slices.Equal(a.After, b.After)
}

// evictFiles drops the least recently touched documents beyond maxFiles.
func evictFiles(m EditMap, maxFiles int) {
	if maxFiles <= 0 || len(m) <= maxFiles {
		return
	}
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return m[ids[i]].seq < m[ids[j]].seq })
	for _, id := range ids[:len(m)-maxFiles] {
		delete(m, id)
	}
}

// AllByTimestamp returns every hunk in m, newest first.
func AllByTimestamp(m EditMap) []*Hunk {
	var out []*Hunk
	for _, st := range m {
		out = append(out, st.hunks...)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID > out[j].ID
	})
	return out
}
