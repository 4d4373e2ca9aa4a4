package prompt

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"ghostprompt/internal/contextproviders"
	"ghostprompt/internal/document"
	"ghostprompt/internal/logging"
	"ghostprompt/internal/recentedits"
	"ghostprompt/internal/tokenize"
)

// ErrNoDocument is returned when Render is called without a document.
var ErrNoDocument = errors.New("prompt: no document")

// Renderer names reported in metadata.
const (
	RendererDefault      = "default"
	RendererSplitContext = "splitContext"
)

// Prompt is the text sent to the completion model.
type Prompt struct {
	Prefix       string   `json:"prefix"`
	PrefixTokens int      `json:"prefixTokens"`
	Suffix       string   `json:"suffix"`
	SuffixTokens int      `json:"suffixTokens"`
	Context      []string `json:"context,omitempty"`
}

// Metadata describes how a prompt was rendered.
type Metadata struct {
	RenderID            int64                 `json:"renderId"`
	ElisionTimeMs       float64               `json:"elisionTimeMs"`
	RenderTimeMs        float64               `json:"renderTimeMs"`
	UpdateDataTimeMs    float64               `json:"updateDataTimeMs"`
	RendererName        string                `json:"rendererName"`
	Tokenizer           string                `json:"tokenizer"`
	ComponentStatistics []ComponentStatistics `json:"componentStatistics"`
}

// Rendered is the result of a successful Render.
type Rendered struct {
	Prompt     Prompt
	TrailingWs string
	Metadata   Metadata
}

// Assembler renders prompts. It keeps a per-document suffix cache and is
// safe for concurrent use.
type Assembler struct {
	root     string
	suffixes *SuffixCache
	renderID atomic.Int64
}

// NewAssembler creates an assembler resolving relative paths against root.
func NewAssembler(root string) *Assembler {
	return &Assembler{root: root, suffixes: NewSuffixCache()}
}

// Render builds the prompt for in. The result always satisfies
// PrefixTokens+SuffixTokens <= opts.MaxPromptLength.
func (a *Assembler) Render(ctx context.Context, in Input, opts Options) (*Rendered, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if in.Document == nil {
		return nil, ErrNoDocument
	}
	tok := opts.Tokenizer
	if tok == nil {
		tok = tokenize.NewApprox()
	}
	doc := in.Document
	lang := doc.LanguageID()
	b := blockBuilder{lang: lang, split: opts.SplitContext}

	current, trailingWs := splitTrailingWhitespace(notebookPrefix(in) + doc.TextBefore(in.Position))

	suffix := ""
	if budget := opts.suffixBudget(); budget > 0 {
		suffix = tok.TakeFirstTokens(suffixText(doc.TextAfter(in.Position)), budget)
		suffix = a.suffixes.Resolve(doc.URI(), suffix, opts.SuffixMatchThreshold,
			func(s string) bool { return tok.TokenLength(s) <= budget })
	}
	suffixTokens := tok.TokenLength(suffix)
	prefixBudget := opts.MaxPromptLength - suffixTokens

	pathLine := ""
	if !opts.SplitContext {
		pathLine = commentLine(lang, "Path: "+a.displayPath(in)) + "\n"
	}
	avail := prefixBudget - tok.TokenLength(pathLine)
	currentTokens := tok.TokenLength(current)
	contextCap := max(min(avail, max(avail-currentTokens, avail/2)), 0)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	elisionStart := time.Now()
	marker := ""
	if opts.AppendNoReplyMarker && len(in.RecentEdits) > 0 {
		marker = recentedits.NoReplyMarker
	}
	fitter := budgetFitter{tok: tok, frames: b.frames(marker)}
	cands := b.candidates(in, opts, a.root)
	alloc := fitter.fit(cands, contextCap)
	blocks := fitter.render(alloc.admitted)
	currentText := trimLinesFromTop(tok, current, avail-alloc.used)
	elision := time.Since(elisionStart)

	out := &Rendered{TrailingWs: trailingWs}
	if opts.SplitContext {
		out.Prompt.Prefix = currentText
		out.Prompt.Context = blocks
		out.Metadata.RendererName = RendererSplitContext
	} else {
		out.Prompt.Prefix = pathLine + strings.Join(blocks, "") + currentText
		out.Metadata.RendererName = RendererDefault
	}
	out.Prompt.PrefixTokens = tok.TokenLength(out.Prompt.Prefix)
	if out.Prompt.PrefixTokens > prefixBudget {
		// Tokenizers are not additive across block boundaries.
		out.Prompt.Prefix = takeLastTokens(tok, out.Prompt.Prefix, prefixBudget)
		out.Prompt.PrefixTokens = tok.TokenLength(out.Prompt.Prefix)
	}
	out.Prompt.Suffix = suffix
	out.Prompt.SuffixTokens = suffixTokens

	if in.Statistics != nil {
		for i, c := range cands {
			if c.itemID == "" {
				continue
			}
			st := alloc.stats[i]
			in.Statistics.SetUsage(c.providerID, c.itemID, st.Usage, st.ExpectedTokens, st.ActualTokens)
		}
	}

	currentUsed := tok.TokenLength(currentText)
	stats := append(alloc.stats,
		ComponentStatistics{Source: "currentFile", ExpectedTokens: currentTokens, ActualTokens: currentUsed, Usage: usageOf(currentTokens, currentUsed)},
		ComponentStatistics{Source: "suffix", ExpectedTokens: suffixTokens, ActualTokens: suffixTokens, Usage: contextproviders.UsageFull},
	)
	out.Metadata.RenderID = a.renderID.Add(1)
	out.Metadata.Tokenizer = tok.Name()
	out.Metadata.ComponentStatistics = stats
	out.Metadata.ElisionTimeMs = millis(elision)
	out.Metadata.RenderTimeMs = millis(time.Since(start))

	logging.PromptDebug("render %d: prefix %d tokens, suffix %d tokens, %d context blocks",
		out.Metadata.RenderID, out.Prompt.PrefixTokens, out.Prompt.SuffixTokens, len(blocks))
	return out, nil
}

func (a *Assembler) displayPath(in Input) string {
	if in.RelativePath != "" {
		return in.RelativePath
	}
	if rel := document.RelativePath(a.root, in.Document.URI()); rel != "" {
		return rel
	}
	return document.Basename(in.Document.URI())
}

// notebookPrefix joins the preceding cells of the document's notebook that
// share its language.
func notebookPrefix(in Input) string {
	if in.Notebook == nil {
		return ""
	}
	cell, ok := in.Notebook.CellFor(in.Document.URI())
	if !ok {
		return ""
	}
	var parts []string
	for _, c := range in.Notebook.Cells {
		if c.Index < cell.Index && c.Document.LanguageID() == in.Document.LanguageID() {
			parts = append(parts, c.Document.GetText())
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "\n\n") + "\n\n"
}

// splitTrailingWhitespace strips a last line consisting only of whitespace.
func splitTrailingWhitespace(text string) (string, string) {
	i := strings.LastIndexByte(text, '\n')
	last := text[i+1:]
	if last == "" || strings.TrimSpace(last) != "" {
		return text, ""
	}
	return text[:i+1], last
}

func usageOf(expected, actual int) contextproviders.ItemUsage {
	switch {
	case actual == 0 && expected > 0:
		return contextproviders.UsageNone
	case actual < expected:
		return contextproviders.UsagePartial
	default:
		return contextproviders.UsageFull
	}
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
