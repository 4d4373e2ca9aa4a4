package recentedits

import (
	"fmt"
	"strings"

	"ghostprompt/internal/config"
)

// NoReplyMarker is appended after the recent edits block when configured so
// that the model does not continue the block itself.
const NoReplyMarker = "--- end of recent edits ---"

// Summarize renders h as a unified-diff-like block with 1-based line numbers.
func Summarize(h *Hunk, cfg config.RecentEditsConfig) string {
	d := h.Diff
	var sb strings.Builder
	fmt.Fprintf(&sb, "--- a/%s\n+++ b/%s\n", h.File, h.File)
	fmt.Fprintf(&sb, "@@ -%d,%d +%d,%d @@\n", d.Pre+1, d.OldLen, d.Post+1, d.NewLen)

	writeLines(&sb, " ", d.Before)
	removed := d.Removed
	if cfg.RemoveDeletedLines {
		removed = nil
	}
	if cfg.InsertionsBeforeDeletions {
		writeLines(&sb, "+", d.Added)
		writeLines(&sb, "-", removed)
	} else {
		writeLines(&sb, "-", removed)
		writeLines(&sb, "+", d.Added)
	}
	writeLines(&sb, " ", d.After)
	return sb.String()
}

func writeLines(sb *strings.Builder, prefix string, lines []string) {
	for _, l := range lines {
		sb.WriteString(prefix)
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
}
