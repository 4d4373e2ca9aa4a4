package main

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"ghostprompt/internal/diff"
	"ghostprompt/internal/document"
	"ghostprompt/internal/recentedits"

	"github.com/spf13/cobra"
)

var (
	watchInterval time.Duration
	watchUnified  bool
)

// watchCmd tracks edits under a directory and prints their summary
var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Track edits under a directory and print recent edit summaries",
	Long: `Opens every file under dir (default: the workspace), watches it for
changes and prints the recent edits summary whenever it changes.
With --unified it prints a unified diff of every file against its content
when watching started instead. Excluded files are neither opened nor
watched. Stop with Ctrl-C.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", time.Second, "How often to check for new edits")
	watchCmd.Flags().BoolVar(&watchUnified, "unified", false, "Print whole-file unified diffs since start")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dir := cfg.Workspace
	if len(args) == 1 {
		if dir, err = filepath.Abs(args[0]); err != nil {
			return err
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	ws := document.NewWorkspace(cfg.Workspace)
	filter := includeFilter(ctx, newChecker(cfg))
	if err := document.OpenDir(ws, dir, filter); err != nil {
		return fmt.Errorf("open %s: %w", dir, err)
	}

	baseline := snapshot(ws)

	edits := recentedits.NewProvider(ws, cfg.RecentEdits)
	edits.Start()
	defer edits.Dispose()

	w, err := document.NewWatcher(dir, ws, document.WithFilter(filter))
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Watching %s (%d documents)\n", dir, len(ws.TextDocuments()))

	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()
	var last string
	for {
		select {
		case <-ctx.Done():
			stats := w.Stats()
			fmt.Fprintf(out, "Stopped: %d opened, %d changed, %d closed\n",
				stats.FilesOpened, stats.FilesChanged, stats.FilesClosed)
			return nil
		case <-ticker.C:
			summary := edits.EditSummary()
			if watchUnified {
				summary = unifiedDiffs(cfg.Workspace, baseline, ws.TextDocuments(), cfg.RecentEdits.DiffContextLines)
			}
			if summary == last {
				continue
			}
			last = summary
			fmt.Fprintf(out, "=== recent edits (%s) ===\n%s", time.Now().Format(time.TimeOnly), summary)
		}
	}
}

func snapshot(ws *document.Workspace) map[string]string {
	texts := make(map[string]string)
	for _, doc := range ws.TextDocuments() {
		texts[doc.URI()] = doc.GetText()
	}
	return texts
}

// unifiedDiffs renders every document that differs from baseline, in URI
// order. Documents missing from baseline diff against empty text.
func unifiedDiffs(root string, baseline map[string]string, docs []*document.TextDocument, contextLines int) string {
	docs = slices.Clone(docs)
	slices.SortFunc(docs, func(a, b *document.TextDocument) int { return strings.Compare(a.URI(), b.URI()) })

	var sb strings.Builder
	for _, doc := range docs {
		old, text := baseline[doc.URI()], doc.GetText()
		if old == text {
			continue
		}
		name := document.RelativePath(root, doc.URI())
		if name == "" {
			name = document.PathFromURI(doc.URI())
		}
		sb.WriteString(diff.DefaultEngine.ComputeDiff("a/"+name, "b/"+name, old, text, contextLines).String())
	}
	return sb.String()
}
