// Package contextproviders hosts pluggable providers that contribute traits
// and code snippets to completion prompts.
package contextproviders

import (
	"regexp"

	"ghostprompt/internal/logging"

	"github.com/google/uuid"
)

// Kind identifies the schema of an Item.
type Kind string

const (
	KindTrait       Kind = "trait"
	KindCodeSnippet Kind = "codeSnippet"
)

// Item is a piece of context contributed by a provider.
type Item struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id,omitempty"`
	// Importance ranks items within a provider, 0..100. Nil means unset.
	Importance *int `json:"importance,omitempty"`

	// Trait fields
	Name  string `json:"name,omitempty"`
	Value string `json:"value"`

	// Code snippet fields
	URI            string   `json:"uri,omitempty"`
	AdditionalURIs []string `json:"additionalUris,omitempty"`
}

// Importance returns a pointer for Item.Importance literals.
func Importance(n int) *int { return &n }

// Rank returns the importance, treating unset as 0.
func (it Item) Rank() int {
	if it.Importance == nil {
		return 0
	}
	return *it.Importance
}

var validID = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// validateItems drops items with an unknown schema or out-of-range
// importance and replaces missing, malformed or duplicate ids.
func validateItems(providerID string, items []Item) []Item {
	out := make([]Item, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		switch it.Kind {
		case KindTrait:
			if it.Name == "" {
				logging.ContextProvidersWarn("%s: dropping trait without name", providerID)
				continue
			}
		case KindCodeSnippet:
			if it.URI == "" {
				logging.ContextProvidersWarn("%s: dropping code snippet without uri", providerID)
				continue
			}
		default:
			logging.ContextProvidersWarn("%s: dropping item with unsupported kind %q", providerID, it.Kind)
			continue
		}
		if it.Importance != nil && (*it.Importance < 0 || *it.Importance > 100) {
			logging.ContextProvidersWarn("%s: dropping item %q with importance %d", providerID, it.ID, *it.Importance)
			continue
		}
		if !validID.MatchString(it.ID) || seen[it.ID] {
			it.ID = uuid.NewString()
		}
		seen[it.ID] = true
		out = append(out, it)
	}
	return out
}
