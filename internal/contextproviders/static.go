package contextproviders

import (
	"context"
	"slices"

	"ghostprompt/internal/config"
)

// StaticTraitsID is the id of the configuration-backed traits provider.
const StaticTraitsID = "config-traits"

type staticTraits struct {
	traits []config.StaticTrait
}

// NewStaticTraits returns a provider serving traits from configuration.
// A trait without languages applies to every document.
func NewStaticTraits(traits []config.StaticTrait) *Provider {
	var sel []DocumentFilter
	seen := map[string]bool{}
	for _, t := range traits {
		langs := t.Languages
		if len(langs) == 0 {
			langs = []string{"*"}
		}
		for _, l := range langs {
			if !seen[l] {
				seen[l] = true
				sel = append(sel, DocumentFilter{Language: l})
			}
		}
	}
	return &Provider{
		ID:       StaticTraitsID,
		Selector: sel,
		Resolver: &staticTraits{traits: slices.Clone(traits)},
	}
}

func (s *staticTraits) Resolve(ctx context.Context, req Request) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lang := req.Document.LanguageID()
	var items []Item
	for _, t := range s.traits {
		if len(t.Languages) > 0 && !slices.Contains(t.Languages, lang) && !slices.Contains(t.Languages, "*") {
			continue
		}
		items = append(items, Item{
			Kind:       KindTrait,
			Name:       t.Name,
			Value:      t.Value,
			Importance: Importance(t.Importance),
		})
	}
	return items, nil
}
