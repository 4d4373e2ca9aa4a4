// Package diff computes line-level differences between document versions
// using the sergi/go-diff library.
package diff

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// LineType represents the type of diff line
type LineType int

const (
	LineContext LineType = iota // Unchanged line
	LineAdded                   // Added line
	LineRemoved                 // Removed line
)

// Line represents a single line in a rendered hunk
type Line struct {
	LineNum int
	Content string
	Type    LineType
}

// Hunk is a group of changes with surrounding context, 1-based.
type Hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Lines    []Line
}

// FileDiff represents changes to a single document
type FileDiff struct {
	OldPath string
	NewPath string
	Hunks   []Hunk
}

// Change is a contiguous changed region between two line slices.
// Bounds are zero-based and half-open: old[OldStart:OldEnd] was replaced by
// new[NewStart:NewEnd].
type Change struct {
	OldStart, OldEnd int
	NewStart, NewEnd int
}

// Engine provides diff computation
type Engine struct {
	dmp *diffmatchpatch.DiffMatchPatch
}

// NewEngine creates a diff engine tuned for source text.
func NewEngine() *Engine {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0
	return &Engine{dmp: dmp}
}

// DefaultEngine is a shared engine for general use
var DefaultEngine = NewEngine()

// SplitLines splits text on "\n". The result always has at least one
// element and a trailing newline yields a final empty line.
func SplitLines(text string) []string {
	return strings.Split(text, "\n")
}

// Changes returns the changed regions between old and new, in order.
func (e *Engine) Changes(oldLines, newLines []string) []Change {
	ops := e.operations(oldLines, newLines)
	var (
		out     []Change
		current *Change
		oldLine int
		newLine int
	)
	for _, op := range ops {
		if op.typ == LineContext {
			if current != nil {
				out = append(out, *current)
				current = nil
			}
			oldLine++
			newLine++
			continue
		}
		if current == nil {
			current = &Change{OldStart: oldLine, OldEnd: oldLine, NewStart: newLine, NewEnd: newLine}
		}
		if op.typ == LineRemoved {
			oldLine++
			current.OldEnd = oldLine
		} else {
			newLine++
			current.NewEnd = newLine
		}
	}
	if current != nil {
		out = append(out, *current)
	}
	return out
}

// Changes is a convenience function using the default engine.
func Changes(oldLines, newLines []string) []Change {
	return DefaultEngine.Changes(oldLines, newLines)
}

// operation represents a single line operation
type operation struct {
	typ     LineType
	oldLine int
	newLine int
	content string
}

// operations runs a line-mode diff. Each distinct line is encoded as one
// rune so that go-diff compares whole lines.
func (e *Engine) operations(oldLines, newLines []string) []operation {
	var enc lineEncoder
	a, b := enc.encode(oldLines), enc.encode(newLines)
	diffs := e.dmp.DiffMainRunes(a, b, false)

	ops := make([]operation, 0, len(oldLines)+len(newLines))
	oldLine, newLine := 0, 0
	for _, d := range diffs {
		for _, r := range d.Text {
			line := enc.decode(r)
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				ops = append(ops, operation{typ: LineContext, oldLine: oldLine, newLine: newLine, content: line})
				oldLine++
				newLine++
			case diffmatchpatch.DiffDelete:
				ops = append(ops, operation{typ: LineRemoved, oldLine: oldLine, newLine: -1, content: line})
				oldLine++
			case diffmatchpatch.DiffInsert:
				ops = append(ops, operation{typ: LineAdded, oldLine: -1, newLine: newLine, content: line})
				newLine++
			}
		}
	}
	return ops
}

// surrogateGap is the UTF-16 surrogate block. Runes in it do not survive
// the string conversion go-diff applies to Diff.Text, so codes skip it.
const (
	surrogateStart = 0xD800
	surrogateGap   = 0x800
)

// lineEncoder maps distinct lines to runes and back.
type lineEncoder struct {
	index map[string]rune
	lines []string
}

func (le *lineEncoder) encode(lines []string) []rune {
	if le.index == nil {
		le.index = make(map[string]rune)
	}
	out := make([]rune, len(lines))
	for i, l := range lines {
		r, ok := le.index[l]
		if !ok {
			r = rune(len(le.lines))
			if r >= surrogateStart {
				r += surrogateGap
			}
			le.index[l] = r
			le.lines = append(le.lines, l)
		}
		out[i] = r
	}
	return out
}

func (le *lineEncoder) decode(r rune) string {
	if r >= surrogateStart+surrogateGap {
		r -= surrogateGap
	}
	return le.lines[r]
}

// ComputeDiff creates a FileDiff between two versions of a document with
// contextLines lines of context around each hunk.
func (e *Engine) ComputeDiff(oldPath, newPath, oldContent, newContent string, contextLines int) *FileDiff {
	ops := e.operations(SplitLines(oldContent), SplitLines(newContent))
	return &FileDiff{
		OldPath: oldPath,
		NewPath: newPath,
		Hunks:   groupIntoHunks(ops, contextLines),
	}
}

// groupIntoHunks groups operations into hunks with context
func groupIntoHunks(ops []operation, contextLines int) []Hunk {
	var hunks []Hunk
	var current *Hunk
	lastChangeIdx := -1

	for i, op := range ops {
		if op.typ != LineContext {
			if current == nil {
				current = &Hunk{}
				start := max(i-contextLines, 0)
				for j := start; j < i; j++ {
					current.Lines = append(current.Lines, Line{LineNum: ops[j].oldLine + 1, Content: ops[j].content, Type: LineContext})
				}
				current.OldStart, current.NewStart = startLines(ops, start)
			}
			lastChangeIdx = i
		}
		if current == nil {
			continue
		}

		lineNum := op.oldLine + 1
		if op.typ == LineAdded {
			lineNum = op.newLine + 1
		}
		current.Lines = append(current.Lines, Line{LineNum: lineNum, Content: op.content, Type: op.typ})

		if op.typ == LineContext && i-lastChangeIdx > contextLines {
			current.Lines = current.Lines[:len(current.Lines)-1]
			computeHunkCounts(current)
			hunks = append(hunks, *current)
			current = nil
		}
	}
	if current != nil {
		computeHunkCounts(current)
		hunks = append(hunks, *current)
	}
	return hunks
}

// startLines finds the 1-based old/new line numbers at ops[start].
func startLines(ops []operation, start int) (oldStart, newStart int) {
	oldLine, newLine := 0, 0
	for _, op := range ops[:start] {
		if op.typ != LineAdded {
			oldLine++
		}
		if op.typ != LineRemoved {
			newLine++
		}
	}
	return oldLine + 1, newLine + 1
}

// computeHunkCounts calculates OldCount and NewCount for a hunk
func computeHunkCounts(h *Hunk) {
	for _, line := range h.Lines {
		if line.Type != LineAdded {
			h.OldCount++
		}
		if line.Type != LineRemoved {
			h.NewCount++
		}
	}
}

// String renders the diff in unified format.
func (f *FileDiff) String() string {
	if len(f.Hunks) == 0 {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "--- %s\n+++ %s\n", f.OldPath, f.NewPath)
	for _, h := range f.Hunks {
		fmt.Fprintf(&sb, "@@ -%d,%d +%d,%d @@\n", h.OldStart, h.OldCount, h.NewStart, h.NewCount)
		for _, l := range h.Lines {
			switch l.Type {
			case LineAdded:
				sb.WriteByte('+')
			case LineRemoved:
				sb.WriteByte('-')
			default:
				sb.WriteByte(' ')
			}
			sb.WriteString(l.Content)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// Levenshtein returns the character edit distance between a and b.
func (e *Engine) Levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	return e.dmp.DiffLevenshtein(e.dmp.DiffMain(a, b, false))
}

// Levenshtein is a convenience function using the default engine.
func Levenshtein(a, b string) int {
	return DefaultEngine.Levenshtein(a, b)
}
