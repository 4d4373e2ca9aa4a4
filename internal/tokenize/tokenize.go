// Package tokenize counts and truncates text in model tokens.
package tokenize

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"ghostprompt/internal/logging"
)

// Tokenizer measures and truncates text in tokens. Implementations must be
// deterministic and safe for concurrent use.
type Tokenizer interface {
	Name() string
	TokenLength(s string) int
	// TakeFirstTokens returns the longest prefix of s with at most n tokens.
	TakeFirstTokens(s string, n int) string
	// TakeLastTokens returns the longest suffix of s with at most n tokens.
	TakeLastTokens(s string, n int) string
}

// ApproxName is the registry name of the character-ratio tokenizer.
const ApproxName = "approx"

// Approx estimates tokens as one per four runes, rounded up.
type Approx struct {
	charsPerToken int
}

// NewApprox creates the character-ratio tokenizer.
func NewApprox() *Approx {
	return &Approx{charsPerToken: 4}
}

func (a *Approx) Name() string { return ApproxName }

func (a *Approx) TokenLength(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + a.charsPerToken - 1) / a.charsPerToken
}

func (a *Approx) TakeFirstTokens(s string, n int) string {
	if n <= 0 {
		return ""
	}
	limit := n * a.charsPerToken
	count := 0
	for i := range s {
		if count == limit {
			return s[:i]
		}
		count++
	}
	return s
}

func (a *Approx) TakeLastTokens(s string, n int) string {
	if n <= 0 {
		return ""
	}
	limit := n * a.charsPerToken
	total := utf8.RuneCountInString(s)
	if total <= limit {
		return s
	}
	skip := total - limit
	for i := range s {
		if skip == 0 {
			return s[i:]
		}
		skip--
	}
	return ""
}

var (
	registryMu sync.Mutex
	registry   = map[string]Tokenizer{}
)

// Get returns the shared tokenizer registered under name, loading BPE
// encodings on first use. Results are wrapped in a length cache.
func Get(name string) (Tokenizer, error) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if t, ok := registry[name]; ok {
		return t, nil
	}

	var (
		t   Tokenizer
		err error
	)
	switch name {
	case ApproxName, "":
		t = NewApprox()
	case "cl100k_base", "o200k_base", "p50k_base", "r50k_base":
		timer := logging.StartTimer(logging.CategoryTokenizer, "load "+name)
		t, err = NewTikToken(name)
		timer.Stop()
	default:
		return nil, fmt.Errorf("unknown tokenizer %q", name)
	}
	if err != nil {
		return nil, err
	}

	cached := NewCached(t, 4096)
	registry[name] = cached
	logging.Get(logging.CategoryTokenizer).Info("tokenizer %s ready", name)
	return cached, nil
}

// Register installs t under its name, replacing any existing entry.
func Register(t Tokenizer) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[t.Name()] = t
}
