package prompt

import (
	"fmt"
	"strings"

	"ghostprompt/internal/contextproviders"
	"ghostprompt/internal/document"
	"ghostprompt/internal/recentedits"
	"ghostprompt/internal/similarfiles"
)

// Input is everything assembly needs for one completion.
type Input struct {
	Document *document.TextDocument
	Position document.Position
	// RelativePath is the workspace-relative path; the basename is used
	// when empty.
	RelativePath string
	// Notebook is the notebook containing Document, if any.
	Notebook        *document.Notebook
	SimilarSnippets []similarfiles.Snippet
	// RecentEdits are newest first.
	RecentEdits     []recentedits.Edit
	ProviderResults []contextproviders.Result
	// Statistics receives provider item usage; may be nil.
	Statistics *contextproviders.Statistics
}

// group fixes the output position of a block.
type group int

const (
	groupSimilarFiles group = iota
	groupTraits
	groupCodeSnippets
	groupRecentEdits
)

const (
	traitsHeader      = "Consider this related information:"
	recentEditsHeader = "These are recently edited files. Do not suggest code that has been deleted."
	snippetHeaderFmt  = "Compare this snippet from %s:"
)

// candidate is a context block competing for the prompt budget.
type candidate struct {
	group    group
	priority BudgetPriority
	rank     float64 // higher is admitted first within a priority
	order    int     // output order within the group

	source     string // component statistics label
	providerID string // set with itemID when the block came from a provider
	itemID     string

	// head is the fixed first part of the block; body may be trimmed by
	// whole lines when trimmable is set.
	head      string
	body      string
	trimmable bool
	tokens    int
}

func (c *candidate) text() string { return c.head + c.body }

// groupFrame is shared text around every admitted block of a group.
type groupFrame struct {
	header string
	footer string
}

type blockBuilder struct {
	lang  string
	split bool
}

// line renders s as a comment line, or verbatim in split-context mode.
func (b blockBuilder) line(s string) string {
	if b.split {
		return s + "\n"
	}
	return commentLine(b.lang, s) + "\n"
}

func (b blockBuilder) lines(s string) string {
	if b.split {
		s = strings.TrimSuffix(s, "\n")
		if s == "" {
			return ""
		}
		return s + "\n"
	}
	return commentBlock(b.lang, s)
}

func (b blockBuilder) frames(noReplyMarker string) map[group]groupFrame {
	frames := map[group]groupFrame{
		groupTraits:      {header: b.line(traitsHeader)},
		groupRecentEdits: {header: b.line(recentEditsHeader)},
	}
	if noReplyMarker != "" {
		f := frames[groupRecentEdits]
		f.footer = b.line(noReplyMarker)
		frames[groupRecentEdits] = f
	}
	return frames
}

func (b blockBuilder) candidates(in Input, opts Options, root string) []*candidate {
	var out []*candidate

	if opts.SimilarFiles {
		snippets := in.SimilarSnippets
		if opts.NumberOfSnippets >= 0 && len(snippets) > opts.NumberOfSnippets {
			snippets = snippets[:opts.NumberOfSnippets]
		}
		for i, s := range snippets {
			path := s.RelativePath
			if path == "" {
				path = document.Basename(s.URI)
			}
			out = append(out, &candidate{
				group:    groupSimilarFiles,
				priority: PriorityLow,
				rank:     s.Score,
				order:    i,
				source:   "similarFile:" + path,
				head:     b.line(fmt.Sprintf(snippetHeaderFmt, path)),
				body:     b.lines(s.Text),
			})
		}
	}

	order := 0
	for _, res := range in.ProviderResults {
		for _, it := range res.Items {
			c := &candidate{
				priority: PriorityMedium,
				rank:     float64(res.MatchScore)*1000 + float64(it.Rank()),
				order:    order,
				source:     "contextProvider:" + res.ProviderID,
				providerID: res.ProviderID,
				itemID:     it.ID,
			}
			order++
			switch it.Kind {
			case contextproviders.KindTrait:
				c.group = groupTraits
				c.body = b.line(it.Name + ": " + it.Value)
			case contextproviders.KindCodeSnippet:
				path := document.RelativePath(root, it.URI)
				if path == "" {
					path = document.Basename(it.URI)
				}
				c.group = groupCodeSnippets
				c.head = b.line(fmt.Sprintf(snippetHeaderFmt, path))
				c.body = b.lines(it.Value)
				c.trimmable = true
			default:
				continue
			}
			out = append(out, c)
		}
	}

	n := len(in.RecentEdits)
	for i, e := range in.RecentEdits {
		out = append(out, &candidate{
			group:    groupRecentEdits,
			priority: PriorityHigh,
			rank:     float64(n - i),
			order:    n - i, // oldest first in the prompt
			source:   fmt.Sprintf("recentEdit:%d", e.Hunk.ID),
			body:     b.lines(e.Summary),
		})
	}
	return out
}
