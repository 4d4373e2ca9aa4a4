package prompt

import "strings"

type commentMarker struct {
	start string
	end   string
}

var (
	slashComment = commentMarker{start: "//"}
	hashComment  = commentMarker{start: "#"}
	dashComment  = commentMarker{start: "--"}
	xmlComment   = commentMarker{start: "<!--", end: "-->"}
)

var languageMarkers = map[string]commentMarker{
	"python":      hashComment,
	"ruby":        hashComment,
	"shellscript": hashComment,
	"perl":        hashComment,
	"r":           hashComment,
	"yaml":        hashComment,
	"toml":        hashComment,
	"elixir":      hashComment,
	"dockerfile":  hashComment,
	"makefile":    hashComment,
	"powershell":  hashComment,
	"julia":       hashComment,
	"sql":         dashComment,
	"lua":         dashComment,
	"haskell":     dashComment,
	"html":        xmlComment,
	"xml":         xmlComment,
	"markdown":    xmlComment,
}

func markerFor(languageID string) commentMarker {
	if m, ok := languageMarkers[languageID]; ok {
		return m
	}
	return slashComment
}

// commentLine turns line into a single-line comment of the language.
func commentLine(languageID, line string) string {
	m := markerFor(languageID)
	out := m.start
	if line != "" {
		out += " " + line
	}
	if m.end != "" {
		out += " " + m.end
	}
	return out
}

// commentBlock comments every line of text and terminates the result with
// a newline.
func commentBlock(languageID, text string) string {
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	var sb strings.Builder
	for _, l := range lines {
		sb.WriteString(commentLine(languageID, l))
		sb.WriteByte('\n')
	}
	return sb.String()
}
