package contextproviders

import (
	"strings"

	"ghostprompt/internal/document"

	gitignore "github.com/sabhiram/go-gitignore"
)

// DocumentFilter selects documents by language, URI scheme and path glob.
// Empty fields match anything.
type DocumentFilter struct {
	Language string `json:"language,omitempty"`
	Scheme   string `json:"scheme,omitempty"`
	Pattern  string `json:"pattern,omitempty"` // gitignore-style glob
}

const (
	scoreExact    = 10
	scoreWildcard = 1
)

// score returns 10 for an exact language match, 1 for a wildcard match and
// 0 when the filter does not apply.
func (f DocumentFilter) score(doc *document.TextDocument) int {
	if f.Scheme != "" && f.Scheme != document.Scheme(doc.URI()) {
		return 0
	}
	if f.Pattern != "" {
		m := gitignore.CompileIgnoreLines(f.Pattern)
		p := strings.TrimPrefix(document.PathFromURI(doc.URI()), "/")
		if !m.MatchesPath(p) {
			return 0
		}
	}
	switch f.Language {
	case doc.LanguageID():
		if f.Language != "" {
			return scoreExact
		}
		return scoreWildcard
	case "", "*":
		return scoreWildcard
	default:
		return 0
	}
}

// Match returns the best score of any filter in sel for doc.
func Match(sel []DocumentFilter, doc *document.TextDocument) int {
	best := 0
	for _, f := range sel {
		best = max(best, f.score(doc))
	}
	return best
}
