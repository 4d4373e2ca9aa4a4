package similarfiles

import (
	"context"
	"strings"
	"testing"

	"ghostprompt/internal/config"
	"ghostprompt/internal/document"
	"ghostprompt/internal/exclusion"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.SimilarFilesConfig {
	return config.SimilarFilesConfig{Enabled: true, NumberOfSnippets: 4, SnippetLength: 3, MaxFiles: 20, MaxFileChars: 10000}
}

func TestFindPrefersMatchingWindow(t *testing.T) {
	current := document.New("file:///ws/cart.go", "go", 1,
		"package cart\n\nfunc total(items []Item) int {\n\tsum := 0\n\tfor _, item := range items {\n")
	neighbor := document.New("file:///ws/order.go", "go", 1, strings.Join([]string{
		"package order",
		"",
		"func unrelated() string { return \"x\" }",
		"",
		"func total(items []Item) int {",
		"\tsum := 0",
		"\tfor _, item := range items {",
		"\t\tsum += item.Price",
		"\t}",
	}, "\n"))
	other := document.New("file:///ws/util.go", "go", 1, "package util\n\nfunc Max(a, b int) int { return a }\n")
	python := document.New("file:///ws/cart.py", "python", 1, "def total(items):\n    sum = 0\n    for item in items:\n")

	f := NewFinder("/ws", nil)
	pos := document.Position{Line: 4, Character: 30}
	snippets, err := f.Find(context.Background(), current, pos, []*document.TextDocument{current, neighbor, other, python}, testConfig())
	require.NoError(t, err)
	require.NotEmpty(t, snippets)

	top := snippets[0]
	assert.Equal(t, "file:///ws/order.go", top.URI)
	assert.Equal(t, "order.go", top.RelativePath)
	assert.Contains(t, top.Text, "func total(items []Item) int {")
	assert.Equal(t, 3, top.EndLine-top.StartLine)
	for _, s := range snippets {
		assert.NotEqual(t, current.URI(), s.URI)
		assert.NotEqual(t, python.URI(), s.URI)
	}
}

func TestFindRespectsLimits(t *testing.T) {
	current := document.New("file:///ws/a.go", "go", 1, "value := compute(input)\n")
	var docs []*document.TextDocument
	for _, name := range []string{"b", "c", "d"} {
		docs = append(docs, document.New("file:///ws/"+name+".go", "go", 1, "value := compute(input)\n"))
	}
	big := document.New("file:///ws/big.go", "go", 1, strings.Repeat("value := compute(input)\n", 100))
	docs = append(docs, big)

	cfg := testConfig()
	cfg.NumberOfSnippets = 2
	cfg.MaxFileChars = 500
	snippets, err := NewFinder("/ws", nil).Find(context.Background(), current, document.Position{Line: 1}, docs, cfg)
	require.NoError(t, err)
	require.Len(t, snippets, 2)
	for _, s := range snippets {
		assert.NotEqual(t, big.URI(), s.URI)
	}

	cfg.MaxFiles = 1
	cfg.NumberOfSnippets = 4
	snippets, err = NewFinder("/ws", nil).Find(context.Background(), current, document.Position{Line: 1}, docs, cfg)
	require.NoError(t, err)
	assert.Len(t, snippets, 1)
}

func TestFindSkipsExcludedDocuments(t *testing.T) {
	current := document.New("file:///ws/a.go", "go", 1, "value := compute(input)\n")
	secret := document.New("file:///ws/secret.go", "go", 1, "value := compute(input)\n")
	checker := exclusion.CheckerFunc(func(_ context.Context, uri string) (bool, error) {
		return uri == secret.URI(), nil
	})
	snippets, err := NewFinder("/ws", checker).Find(context.Background(), current, document.Position{Line: 1},
		[]*document.TextDocument{secret}, testConfig())
	require.NoError(t, err)
	assert.Empty(t, snippets)
}

func TestFindDisabled(t *testing.T) {
	current := document.New("file:///ws/a.go", "go", 1, "value := compute(input)\n")
	cfg := testConfig()
	cfg.Enabled = false
	snippets, err := NewFinder("", nil).Find(context.Background(), current, document.Position{Line: 1}, []*document.TextDocument{current}, cfg)
	assert.NoError(t, err)
	assert.Nil(t, snippets)
}

func TestFindCancelled(t *testing.T) {
	current := document.New("file:///ws/a.go", "go", 1, "value := compute(input)\n")
	other := document.New("file:///ws/b.go", "go", 1, "value := compute(input)\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewFinder("", nil).Find(ctx, current, document.Position{Line: 1}, []*document.TextDocument{other}, testConfig())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIdentifiersDropStopWords(t *testing.T) {
	assert.Equal(t, []string{"total", "items", "Item", "int"}, identifiers("func total(items []Item) int {"))
	assert.Empty(t, identifiers("return nil"))
}
