package prompt

import (
	"sort"
	"strings"
	"unicode/utf8"

	"ghostprompt/internal/contextproviders"
	"ghostprompt/internal/logging"
	"ghostprompt/internal/tokenize"
)

// BudgetPriority defines the admission order of context blocks.
type BudgetPriority int

const (
	// PriorityHigh blocks are admitted first (recent edits).
	PriorityHigh BudgetPriority = iota

	// PriorityMedium blocks are admitted next (context provider items).
	PriorityMedium

	// PriorityLow blocks are admitted last (similar-file snippets).
	PriorityLow
)

// String returns the string representation of BudgetPriority.
func (p BudgetPriority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// ComponentStatistics reports how much of a prompt component was used.
type ComponentStatistics struct {
	Source         string                     `json:"source"`
	ExpectedTokens int                        `json:"expectedTokens"`
	ActualTokens   int                        `json:"actualTokens"`
	Usage          contextproviders.ItemUsage `json:"usage"`
}

// allocation is the outcome of fitting candidates into a budget.
type allocation struct {
	admitted []*candidate // output order
	used     int
	stats    []ComponentStatistics
}

// budgetFitter admits context blocks greedily by priority and rank.
type budgetFitter struct {
	tok    tokenize.Tokenizer
	frames map[group]groupFrame
}

// fit admits candidates into budget tokens. Blocks are admitted whole except
// trimmable ones, which may keep a leading run of their body lines. Group
// frames are charged with the first admitted block of the group.
func (f budgetFitter) fit(cands []*candidate, budget int) allocation {
	timer := logging.StartTimer(logging.CategoryPrompt, "budgetFitter.fit")
	defer timer.Stop()

	ranked := make([]*candidate, len(cands))
	copy(ranked, cands)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].priority != ranked[j].priority {
			return ranked[i].priority < ranked[j].priority
		}
		return ranked[i].rank > ranked[j].rank
	})

	var (
		alloc  allocation
		opened = make(map[group]bool)
	)
	statIdx := make(map[*candidate]int, len(cands))
	for _, c := range cands {
		c.tokens = f.tok.TokenLength(c.text())
		statIdx[c] = len(alloc.stats)
		alloc.stats = append(alloc.stats, ComponentStatistics{
			Source:         c.source,
			ExpectedTokens: c.tokens,
			Usage:          contextproviders.UsageNone,
		})
	}

	for _, c := range ranked {
		frameCost := 0
		if !opened[c.group] {
			fr := f.frames[c.group]
			frameCost = f.tok.TokenLength(fr.header + fr.footer)
		}
		remaining := budget - alloc.used - frameCost
		st := &alloc.stats[statIdx[c]]

		if c.tokens <= remaining {
			alloc.used += frameCost + c.tokens
			opened[c.group] = true
			alloc.admitted = append(alloc.admitted, c)
			st.ActualTokens, st.Usage = c.tokens, contextproviders.UsageFull
			continue
		}
		if !c.trimmable {
			logDropped(c, remaining)
			continue
		}
		body := f.trimBody(c.body, remaining-f.tok.TokenLength(c.head))
		if body == "" {
			logDropped(c, remaining)
			continue
		}
		c.body = body
		c.tokens = f.tok.TokenLength(c.text())
		if c.tokens > remaining {
			logDropped(c, remaining)
			continue
		}
		alloc.used += frameCost + c.tokens
		opened[c.group] = true
		alloc.admitted = append(alloc.admitted, c)
		st.ActualTokens, st.Usage = c.tokens, contextproviders.UsagePartial
	}

	sort.SliceStable(alloc.admitted, func(i, j int) bool {
		a, b := alloc.admitted[i], alloc.admitted[j]
		if a.group != b.group {
			return a.group < b.group
		}
		return a.order < b.order
	})
	logging.PromptDebug("admitted %d of %d context blocks using %d/%d tokens",
		len(alloc.admitted), len(cands), alloc.used, budget)
	return alloc
}

func logDropped(c *candidate, remaining int) {
	logging.Get(logging.CategoryPrompt).StructuredLog("debug", "context block dropped", map[string]interface{}{
		"source":    c.source,
		"priority":  c.priority.String(),
		"tokens":    c.tokens,
		"remaining": remaining,
	})
}

// trimBody keeps the leading lines of body that fit in budget tokens.
func (f budgetFitter) trimBody(body string, budget int) string {
	if budget <= 0 {
		return ""
	}
	var (
		sb   strings.Builder
		used int
	)
	for _, l := range strings.SplitAfter(body, "\n") {
		if l == "" {
			continue
		}
		n := f.tok.TokenLength(l)
		if used+n > budget {
			break
		}
		sb.WriteString(l)
		used += n
	}
	return sb.String()
}

// render joins admitted blocks with their group frames.
func (f budgetFitter) render(admitted []*candidate) []string {
	var (
		blocks []string
		sb     strings.Builder
	)
	flush := func(g group) {
		if sb.Len() == 0 {
			return
		}
		sb.WriteString(f.frames[g].footer)
		blocks = append(blocks, sb.String())
		sb.Reset()
	}
	for i, c := range admitted {
		first := i == 0 || admitted[i-1].group != c.group
		if first && i > 0 {
			flush(admitted[i-1].group)
		}
		grouped := c.group == groupTraits || c.group == groupRecentEdits
		if !grouped && !first {
			flush(c.group)
		}
		if first {
			sb.WriteString(f.frames[c.group].header)
		}
		sb.WriteString(c.text())
	}
	if n := len(admitted); n > 0 {
		flush(admitted[n-1].group)
	}
	return blocks
}

// trimLinesFromTop keeps the trailing lines of text that fit in budget
// tokens. A final line that alone exceeds the budget is cut token-wise.
func trimLinesFromTop(tok tokenize.Tokenizer, text string, budget int) string {
	if budget <= 0 || text == "" {
		return ""
	}
	if tok.TokenLength(text) <= budget {
		return text
	}
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	used := 0
	start := len(lines)
	for i := len(lines) - 1; i >= 0; i-- {
		n := tok.TokenLength(lines[i])
		if used+n > budget {
			break
		}
		used += n
		start = i
	}
	if start == len(lines) {
		return takeLastTokens(tok, lines[len(lines)-1], budget)
	}
	return strings.Join(lines[start:], "")
}

// takeLastTokens returns a suffix of s that measures at most n tokens and
// starts on a rune boundary. A tokenizer that decodes and re-encodes the cut
// may return more than n tokens, so the request shrinks until it fits.
func takeLastTokens(tok tokenize.Tokenizer, s string, n int) string {
	for k := n; k > 0; k-- {
		out := tok.TakeLastTokens(s, k)
		for out != "" {
			r, size := utf8.DecodeRuneInString(out)
			if r != utf8.RuneError || size != 1 {
				break
			}
			out = out[size:]
		}
		if tok.TokenLength(out) <= n {
			return out
		}
	}
	return ""
}
