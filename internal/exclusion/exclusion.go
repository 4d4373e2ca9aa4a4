// Package exclusion decides whether a document may be used for prompts.
package exclusion

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"ghostprompt/internal/document"
	"ghostprompt/internal/logging"

	ignore "github.com/sabhiram/go-gitignore"
)

// Checker reports whether the content at uri is blocked by policy.
type Checker interface {
	IsIgnored(ctx context.Context, uri string) (bool, error)
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context, uri string) (bool, error)

func (f CheckerFunc) IsIgnored(ctx context.Context, uri string) (bool, error) { return f(ctx, uri) }

// Nop never excludes anything.
var Nop Checker = CheckerFunc(func(context.Context, string) (bool, error) { return false, nil })

// PatternChecker excludes files matching configured gitignore-style patterns
// or any ignore file found between the workspace root and the file.
// Documents outside the root are only matched against the patterns.
type PatternChecker struct {
	root       string
	ignoreFile string
	patterns   *ignore.GitIgnore

	mu      sync.Mutex
	cache   map[string]*ignore.GitIgnore // dir -> compiled ignore file (only dirs that have one)
	visited map[string]struct{}
}

// NewPatternChecker creates a checker rooted at root. ignoreFile is a file
// name such as ".ghostignore" looked up in every directory; empty disables
// ignore files.
func NewPatternChecker(root string, patterns []string, ignoreFile string) *PatternChecker {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		absRoot = root
	}
	c := &PatternChecker{
		root:       absRoot,
		ignoreFile: ignoreFile,
		cache:      make(map[string]*ignore.GitIgnore),
		visited:    make(map[string]struct{}),
	}
	if len(patterns) > 0 {
		c.patterns = ignore.CompileIgnoreLines(patterns...)
	}
	return c
}

// IsIgnored implements Checker. Non-file URIs are never excluded.
func (c *PatternChecker) IsIgnored(ctx context.Context, uri string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if document.Scheme(uri) != "file" {
		return false, nil
	}
	absPath := filepath.Clean(document.PathFromURI(uri))

	rel, err := filepath.Rel(c.root, absPath)
	inside := err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
	if !inside {
		rel = strings.TrimPrefix(filepath.ToSlash(absPath), "/")
	}

	if c.patterns != nil && c.patterns.MatchesPath(filepath.ToSlash(rel)) {
		logging.ExclusionDebug("%s excluded by configured patterns", uri)
		return true, nil
	}
	if !inside || c.ignoreFile == "" {
		return false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for dir := filepath.Dir(absPath); ; dir = filepath.Dir(dir) {
		c.loadLocked(dir)
		if gi, ok := c.cache[dir]; ok {
			relToIgnore, _ := filepath.Rel(dir, absPath)
			if gi.MatchesPath(filepath.ToSlash(relToIgnore)) {
				logging.ExclusionDebug("%s excluded by %s", uri, filepath.Join(dir, c.ignoreFile))
				return true, nil
			}
		}
		if dir == c.root || dir == filepath.Dir(dir) {
			break
		}
	}
	return false, nil
}

func (c *PatternChecker) loadLocked(dir string) {
	if _, ok := c.visited[dir]; ok {
		return
	}
	c.visited[dir] = struct{}{}
	path := filepath.Join(dir, c.ignoreFile)
	if _, err := os.Stat(path); err != nil {
		return
	}
	gi, err := ignore.CompileIgnoreFile(path)
	if err != nil {
		logging.Get(logging.CategoryExclusion).Warn("failed to compile %s: %v", path, err)
		return
	}
	c.cache[dir] = gi
	logging.Exclusion("loaded ignore file %s", path)
}

// Reload forgets every loaded ignore file so they are read again on the
// next check.
func (c *PatternChecker) Reload() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]*ignore.GitIgnore)
	c.visited = make(map[string]struct{})
}
