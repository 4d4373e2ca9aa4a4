package exclusion

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"ghostprompt/internal/document"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestPatternChecker(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".ghostignore"), "secrets/\n*.pem\n")
	writeFile(t, filepath.Join(root, "pkg", ".ghostignore"), "generated.go\n")

	c := NewPatternChecker(root, []string{"*.env"}, ".ghostignore")
	ctx := context.Background()

	tests := []struct {
		path string
		want bool
	}{
		{"main.go", false},
		{"secrets/token.txt", true},
		{"certs/server.pem", true},
		{"pkg/generated.go", true},
		{"generated.go", false},
		{"pkg/sub/generated.go", true},
		{"prod.env", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := c.IsIgnored(ctx, document.FileURI(filepath.Join(root, tt.path)))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPatternCheckerOutsideRootAndSchemes(t *testing.T) {
	root := t.TempDir()
	c := NewPatternChecker(root, []string{"*.env"}, ".ghostignore")

	got, err := c.IsIgnored(context.Background(), document.FileURI(filepath.Join(t.TempDir(), "a.env")))
	require.NoError(t, err)
	assert.True(t, got, "patterns apply outside the workspace")

	got, err = c.IsIgnored(context.Background(), "untitled:Untitled-1")
	require.NoError(t, err)
	assert.False(t, got)
}

func TestPatternCheckerReload(t *testing.T) {
	root := t.TempDir()
	c := NewPatternChecker(root, nil, ".ghostignore")
	uri := document.FileURI(filepath.Join(root, "a.go"))

	got, err := c.IsIgnored(context.Background(), uri)
	require.NoError(t, err)
	assert.False(t, got)

	writeFile(t, filepath.Join(root, ".ghostignore"), "a.go\n")
	got, _ = c.IsIgnored(context.Background(), uri)
	assert.False(t, got, "ignore files are cached until Reload")

	c.Reload()
	got, _ = c.IsIgnored(context.Background(), uri)
	assert.True(t, got)
}

func TestPatternCheckerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewPatternChecker(t.TempDir(), nil, "").IsIgnored(ctx, "file:///x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNop(t *testing.T) {
	got, err := Nop.IsIgnored(context.Background(), "file:///anything")
	assert.NoError(t, err)
	assert.False(t, got)
}
