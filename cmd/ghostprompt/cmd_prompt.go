package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"ghostprompt/internal/document"
	"ghostprompt/internal/promptfactory"
	"ghostprompt/internal/telemetry"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	promptFile      string
	promptLine      int
	promptCharacter int
	promptLanguage  string
	promptOpen      []string
	promptPrevious  string
	promptSplit     bool
	promptExp       map[string]string
)

// promptCmd builds one prompt and prints the result as JSON
var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Build the completion prompt for a cursor position",
	Long: `Builds the prompt for a cursor in --file and prints the result as JSON.

Lines and characters are 0-based. Files passed with --open are treated as
open editor tabs and feed similar-file snippets. --previous names an earlier
version of --file; the difference shows up as a recent edit.

Example:
  ghostprompt prompt --file main.go --line 12 --character 4 --open util.go
  ghostprompt prompt --file app.py --line 3 --exp suffixPercent=0`,
	Args: cobra.NoArgs,
	RunE: runPrompt,
}

func init() {
	promptCmd.Flags().StringVarP(&promptFile, "file", "f", "", "Document to complete (required)")
	promptCmd.Flags().IntVarP(&promptLine, "line", "l", 0, "Cursor line (0-based)")
	promptCmd.Flags().IntVar(&promptCharacter, "character", 0, "Cursor character (0-based)")
	promptCmd.Flags().StringVar(&promptLanguage, "language", "", "Language id (default: from extension)")
	promptCmd.Flags().StringSliceVar(&promptOpen, "open", nil, "Additional open documents")
	promptCmd.Flags().StringVar(&promptPrevious, "previous", "", "Earlier version of --file to derive recent edits from")
	promptCmd.Flags().BoolVar(&promptSplit, "split-context", false, "Return context blocks separately from the prefix")
	promptCmd.Flags().StringToStringVar(&promptExp, "exp", nil, "Experiment variable overrides (key=value)")
	_ = promptCmd.MarkFlagRequired("file")
}

func runPrompt(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if promptPrevious != "" {
		// One-shot run: reduce the edit as soon as it happens.
		cfg.RecentEdits.DebounceTimeout = "0s"
	}

	ctx, cancel := signalContext()
	defer cancel()

	eng, err := newEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	path, err := filepath.Abs(promptFile)
	if err != nil {
		return err
	}
	text, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}
	lang := promptLanguage
	if lang == "" {
		lang = document.LanguageForPath(path)
	}
	uri := document.FileURI(path)

	for _, p := range promptOpen {
		content, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read open document: %w", err)
		}
		eng.ws.Open(document.FileURI(p), document.LanguageForPath(p), string(content))
	}

	if promptPrevious != "" {
		prev, err := os.ReadFile(promptPrevious)
		if err != nil {
			return fmt.Errorf("read previous version: %w", err)
		}
		eng.ws.Open(uri, lang, string(prev))
		eng.edits.Start()
		if _, err := eng.ws.Change(uri, string(text)); err != nil {
			return err
		}
	} else {
		eng.ws.Open(uri, lang, string(text))
		eng.edits.Start()
	}

	data := telemetry.New()
	for k, v := range promptExp {
		data = data.WithExperiment(k, v)
	}
	res := eng.pipeline.Prompt(ctx, promptfactory.Request{
		CompletionID:  uuid.NewString(),
		OpportunityID: uuid.NewString(),
		State: promptfactory.State{
			URI:      uri,
			Position: document.Position{Line: promptLine, Character: promptCharacter},
		},
		Telemetry: data,
		Options:   promptfactory.RequestOptions{SplitContext: promptSplit},
	})
	return writeJSON(cmd.OutOrStdout(), res)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
