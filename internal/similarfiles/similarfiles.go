// Package similarfiles finds snippets of open documents that resemble the
// code just before the cursor.
package similarfiles

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"

	"ghostprompt/internal/config"
	"ghostprompt/internal/document"
	"ghostprompt/internal/exclusion"
	"ghostprompt/internal/logging"
)

// Snippet is a window of a neighboring document.
type Snippet struct {
	URI          string  `json:"uri"`
	RelativePath string  `json:"relativePath,omitempty"`
	Score        float64 `json:"score"`
	StartLine    int     `json:"startLine"` // 0-based, inclusive
	EndLine      int     `json:"endLine"`   // 0-based, exclusive
	Text         string  `json:"text"`
}

// Finder scores fixed-size line windows of neighbor documents by Jaccard
// similarity of their identifier sets against the window ending at the
// cursor.
type Finder struct {
	root    string
	checker exclusion.Checker

	mu    sync.Mutex
	cache map[string]cachedLines
}

type cachedLines struct {
	version int
	tokens  [][]string
}

// NewFinder creates a finder. checker may be nil.
func NewFinder(root string, checker exclusion.Checker) *Finder {
	if checker == nil {
		checker = exclusion.Nop
	}
	return &Finder{root: root, checker: checker, cache: make(map[string]cachedLines)}
}

// Find returns up to cfg.NumberOfSnippets snippets from docs, best first.
// Only documents in the language of current are considered and each
// document contributes its single best window.
func (f *Finder) Find(ctx context.Context, current *document.TextDocument, pos document.Position,
	docs []*document.TextDocument, cfg config.SimilarFilesConfig) ([]Snippet, error) {
	if !cfg.Enabled || cfg.NumberOfSnippets <= 0 || cfg.SnippetLength <= 0 {
		return nil, nil
	}
	timer := logging.StartTimer(logging.CategorySimilarFiles, "Find")
	defer timer.Stop()

	ref := referenceSet(current, pos, cfg.SnippetLength)
	if len(ref) == 0 {
		return nil, nil
	}

	var snippets []Snippet
	considered := 0
	live := make(map[string]bool)
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if doc.URI() == current.URI() || doc.LanguageID() != current.LanguageID() {
			continue
		}
		if cfg.MaxFileChars > 0 && doc.Len() > cfg.MaxFileChars {
			continue
		}
		if cfg.MaxFiles > 0 && considered >= cfg.MaxFiles {
			break
		}
		ignored, err := f.checker.IsIgnored(ctx, doc.URI())
		if err != nil {
			return nil, err
		}
		if ignored {
			continue
		}
		considered++
		live[doc.URI()] = true

		if s, ok := f.bestWindow(doc, ref, cfg.SnippetLength); ok {
			snippets = append(snippets, s)
		}
	}
	f.prune(live)

	sort.SliceStable(snippets, func(i, j int) bool { return snippets[i].Score > snippets[j].Score })
	if len(snippets) > cfg.NumberOfSnippets {
		snippets = snippets[:cfg.NumberOfSnippets]
	}
	logging.SimilarFilesDebug("considered %d documents, kept %d snippets", considered, len(snippets))
	return snippets, nil
}

func referenceSet(doc *document.TextDocument, pos document.Position, windowLines int) map[string]struct{} {
	lines := strings.Split(doc.TextBefore(pos), "\n")
	if len(lines) > windowLines {
		lines = lines[len(lines)-windowLines:]
	}
	set := make(map[string]struct{})
	for _, l := range lines {
		for _, tok := range identifiers(l) {
			set[tok] = struct{}{}
		}
	}
	return set
}

func (f *Finder) lineTokens(doc *document.TextDocument) [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.cache[doc.URI()]; ok && c.version == doc.Version() {
		return c.tokens
	}
	lines := strings.Split(doc.GetText(), "\n")
	tokens := make([][]string, len(lines))
	for i, l := range lines {
		tokens[i] = identifiers(l)
	}
	f.cache[doc.URI()] = cachedLines{version: doc.Version(), tokens: tokens}
	return tokens
}

func (f *Finder) prune(live map[string]bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for uri := range f.cache {
		if !live[uri] {
			delete(f.cache, uri)
		}
	}
}

// bestWindow slides a window of n lines over doc, maintaining token counts
// incrementally.
func (f *Finder) bestWindow(doc *document.TextDocument, ref map[string]struct{}, n int) (Snippet, bool) {
	tokens := f.lineTokens(doc)
	counts := make(map[string]int)
	inter := 0
	add := func(tok string) {
		counts[tok]++
		if counts[tok] == 1 {
			if _, ok := ref[tok]; ok {
				inter++
			}
		}
	}
	remove := func(tok string) {
		counts[tok]--
		if counts[tok] == 0 {
			delete(counts, tok)
			if _, ok := ref[tok]; ok {
				inter--
			}
		}
	}

	best, bestStart := 0.0, -1
	for end := 0; end < len(tokens); end++ {
		for _, tok := range tokens[end] {
			add(tok)
		}
		start := end - n + 1
		if start > 0 {
			for _, tok := range tokens[start-1] {
				remove(tok)
			}
		}
		if start < 0 && end != len(tokens)-1 {
			continue
		}
		union := len(ref) + len(counts) - inter
		if union == 0 {
			continue
		}
		if score := float64(inter) / float64(union); score > best {
			best, bestStart = score, max(start, 0)
		}
	}
	if bestStart < 0 {
		return Snippet{}, false
	}

	lines := strings.Split(doc.GetText(), "\n")
	endLine := min(bestStart+n, len(lines))
	return Snippet{
		URI:          doc.URI(),
		RelativePath: document.RelativePath(f.root, doc.URI()),
		Score:        best,
		StartLine:    bestStart,
		EndLine:      endLine,
		Text:         strings.Join(lines[bestStart:endLine], "\n"),
	}, true
}

var identPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

func identifiers(line string) []string {
	words := identPattern.FindAllString(line, -1)
	out := words[:0]
	for _, w := range words {
		if !isStopWord(w) {
			out = append(out, w)
		}
	}
	return out
}

var stopWords = map[string]bool{
	// language keywords
	"if": true, "then": true, "else": true, "for": true, "while": true, "do": true,
	"return": true, "break": true, "continue": true, "switch": true, "case": true,
	"default": true, "func": true, "function": true, "def": true, "class": true,
	"struct": true, "interface": true, "type": true, "var": true, "let": true,
	"const": true, "import": true, "from": true, "package": true, "export": true,
	"new": true, "this": true, "self": true, "public": true, "private": true,
	"protected": true, "static": true, "void": true, "null": true, "nil": true,
	"none": true, "true": true, "false": true, "try": true, "catch": true,
	"finally": true, "throw": true, "async": true, "await": true, "yield": true,
	"in": true, "of": true, "is": true, "not": true, "and": true, "or": true,
	"as": true, "with": true, "range": true, "go": true, "defer": true,
	// common english words seen in comments
	"the": true, "a": true, "an": true, "to": true, "on": true, "at": true,
	"by": true, "be": true, "it": true, "that": true, "we": true, "you": true,
}

func isStopWord(w string) bool {
	return stopWords[strings.ToLower(w)]
}
