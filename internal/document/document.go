// Package document models editor text documents, notebooks and the
// workspace manager that tracks which of them are open.
package document

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// Position is a zero-based line and character in a document. Character
// counts runes from the start of the line.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is a half-open span between two positions.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// TextDocument is an immutable snapshot of a document's content.
// Offsets are rune offsets into the text.
type TextDocument struct {
	uri        string
	languageID string
	version    int
	text       string
	runes      []rune
	lineStarts []int
}

// New creates a document snapshot.
func New(uri, languageID string, version int, text string) *TextDocument {
	d := &TextDocument{
		uri:        uri,
		languageID: languageID,
		version:    version,
		text:       text,
		runes:      []rune(text),
	}
	d.lineStarts = append(d.lineStarts, 0)
	for i, r := range d.runes {
		if r == '\n' {
			d.lineStarts = append(d.lineStarts, i+1)
		}
	}
	return d
}

// WithText returns a new snapshot of the same document with updated content.
func (d *TextDocument) WithText(text string, version int) *TextDocument {
	return New(d.uri, d.languageID, version, text)
}

func (d *TextDocument) URI() string        { return d.uri }
func (d *TextDocument) LanguageID() string { return d.languageID }
func (d *TextDocument) Version() int       { return d.version }
func (d *TextDocument) GetText() string    { return d.text }
func (d *TextDocument) LineCount() int     { return len(d.lineStarts) }

// Len is the document length in runes.
func (d *TextDocument) Len() int { return len(d.runes) }

// LineAt returns line i without its terminator.
func (d *TextDocument) LineAt(i int) string {
	if i < 0 || i >= len(d.lineStarts) {
		return ""
	}
	start := d.lineStarts[i]
	end := len(d.runes)
	if i+1 < len(d.lineStarts) {
		end = d.lineStarts[i+1] - 1
	}
	return strings.TrimSuffix(string(d.runes[start:end]), "\r")
}

// OffsetAt converts a position to a rune offset, clamping out-of-range values.
func (d *TextDocument) OffsetAt(p Position) int {
	if p.Line < 0 {
		return 0
	}
	if p.Line >= len(d.lineStarts) {
		return len(d.runes)
	}
	start := d.lineStarts[p.Line]
	end := len(d.runes)
	if p.Line+1 < len(d.lineStarts) {
		end = d.lineStarts[p.Line+1] - 1
	}
	off := start + max(p.Character, 0)
	if off > end {
		off = end
	}
	return off
}

// PositionAt converts a rune offset to a position, clamping to the document.
func (d *TextDocument) PositionAt(offset int) Position {
	offset = min(max(offset, 0), len(d.runes))
	lo, hi := 0, len(d.lineStarts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if d.lineStarts[mid] <= offset {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return Position{Line: lo, Character: offset - d.lineStarts[lo]}
}

// GetTextRange returns the text between two positions.
func (d *TextDocument) GetTextRange(r Range) string {
	start, end := d.OffsetAt(r.Start), d.OffsetAt(r.End)
	if end < start {
		start, end = end, start
	}
	return string(d.runes[start:end])
}

// TextBefore returns the text from the start of the document to p.
func (d *TextDocument) TextBefore(p Position) string {
	return string(d.runes[:d.OffsetAt(p)])
}

// TextAfter returns the text from p to the end of the document.
func (d *TextDocument) TextAfter(p Position) string {
	return string(d.runes[d.OffsetAt(p):])
}

// Cell is a notebook cell.
type Cell struct {
	Index    int
	Document *TextDocument
}

// Notebook is an ordered set of cells sharing a notebook URI.
type Notebook struct {
	URI   string
	Cells []Cell
}

// CellFor returns the cell holding doc, if any.
func (n *Notebook) CellFor(uri string) (Cell, bool) {
	for _, c := range n.Cells {
		if c.Document.URI() == uri {
			return c, true
		}
	}
	return Cell{}, false
}

// FileURI converts a filesystem path to a file:// URI.
func FileURI(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(p)}
	return u.String()
}

// PathFromURI returns the filesystem path of a file:// URI, or the URI path
// for other schemes.
func PathFromURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Path == "" {
		return uri
	}
	if u.Scheme == "file" {
		return filepath.FromSlash(u.Path)
	}
	return u.Path
}

// Scheme returns the URI scheme, or "" when the URI has none.
func Scheme(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	return u.Scheme
}

// Basename returns the last path element of a URI.
func Basename(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Path == "" {
		return path.Base(uri)
	}
	return path.Base(u.Path)
}

// RelativePath returns the path of uri relative to root, or "" when uri is
// outside root or root is empty.
func RelativePath(root, uri string) string {
	if root == "" {
		return ""
	}
	rel, err := filepath.Rel(root, PathFromURI(uri))
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return ""
	}
	return filepath.ToSlash(rel)
}

// LanguageForPath guesses a language id from a file extension.
func LanguageForPath(p string) string {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".go":
		return "go"
	case ".ts":
		return "typescript"
	case ".tsx":
		return "typescriptreact"
	case ".js", ".mjs", ".cjs":
		return "javascript"
	case ".jsx":
		return "javascriptreact"
	case ".py":
		return "python"
	case ".rs":
		return "rust"
	case ".java":
		return "java"
	case ".c", ".h":
		return "c"
	case ".cc", ".cpp", ".hpp":
		return "cpp"
	case ".cs":
		return "csharp"
	case ".rb":
		return "ruby"
	case ".sh":
		return "shellscript"
	case ".yaml", ".yml":
		return "yaml"
	case ".md":
		return "markdown"
	case ".sql":
		return "sql"
	default:
		return "plaintext"
	}
}
