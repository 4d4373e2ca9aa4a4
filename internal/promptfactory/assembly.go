package promptfactory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ghostprompt/internal/config"
	"ghostprompt/internal/contextproviders"
	"ghostprompt/internal/document"
	"ghostprompt/internal/exclusion"
	"ghostprompt/internal/logging"
	"ghostprompt/internal/prompt"
	"ghostprompt/internal/recentedits"
	"ghostprompt/internal/similarfiles"
)

// Layer produces a result for a request. Only the sequential Pipeline is
// guaranteed never to fail.
type Layer interface {
	Prompt(ctx context.Context, req Request) (Result, error)
}

// Deps are the collaborators of the assembly layer. Documents and Config
// are required; the rest may be nil.
type Deps struct {
	Config      *config.Config
	Documents   document.Manager
	Exclusion   exclusion.Checker
	Bridge      *contextproviders.Bridge
	SimilarFile *similarfiles.Finder
	RecentEdits *recentedits.Provider
	Assembler   *prompt.Assembler
}

// AssemblyLayer builds prompts. It may fail; outer layers map failures onto
// result variants.
type AssemblyLayer struct {
	deps Deps
}

// NewAssemblyLayer fills optional dependencies with inert defaults.
func NewAssemblyLayer(deps Deps) *AssemblyLayer {
	if deps.Exclusion == nil {
		deps.Exclusion = exclusion.Nop
	}
	if deps.Bridge == nil {
		deps.Bridge = contextproviders.NewBridge(contextproviders.NewRegistry())
	}
	if deps.Assembler == nil {
		deps.Assembler = prompt.NewAssembler(deps.Config.Workspace)
	}
	return &AssemblyLayer{deps: deps}
}

// Prompt implements Layer.
func (a *AssemblyLayer) Prompt(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	defer a.deps.Bridge.Forget(req.CompletionID)

	doc := req.State.Document
	if doc == nil {
		var err error
		doc, err = a.deps.Documents.Get(ctx, req.State.URI)
		if errors.Is(err, document.ErrNotFound) {
			logging.PromptDebug("document %s not found", req.State.uri())
			return ContextTooShort{}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("resolve document: %w", err)
		}
	}

	ignored, err := a.deps.Exclusion.IsIgnored(ctx, doc.URI())
	if err != nil {
		return nil, fmt.Errorf("content exclusion: %w", err)
	}
	if ignored {
		return ContentExclusion{}, nil
	}

	cfg, err := a.deps.Config.WithExperiment(req.Telemetry.Experiment)
	if err != nil {
		return nil, fmt.Errorf("experiment config: %w", err)
	}
	if req.Options.SplitContext {
		cfg.Prompt.SplitContext = true
	}
	if doc.Len() < cfg.Prompt.MinPromptChars {
		return ContextTooShort{}, nil
	}
	opts, err := prompt.NewOptions(cfg)
	if err != nil {
		return nil, err
	}

	a.deps.Bridge.Schedule(ctx, contextproviders.Request{
		CompletionID:  req.CompletionID,
		OpportunityID: req.OpportunityID,
		Document:      doc,
		Position:      req.State.Position,
		Experiment:    req.Telemetry.Experiment,
	}, contextproviders.Options{
		Enabled:    cfg.ContextProviders.Enabled,
		TimeBudget: cfg.GetProviderTimeBudget(),
	})

	updateStart := time.Now()
	in := prompt.Input{
		Document: doc,
		Position: req.State.Position,
		Notebook: a.deps.Documents.FindNotebook(doc),
	}
	if a.deps.SimilarFile != nil {
		in.SimilarSnippets, err = a.deps.SimilarFile.Find(ctx, doc, req.State.Position, a.deps.Documents.TextDocuments(), cfg.SimilarFiles)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logging.PromptWarn("similar files unavailable: %v", err)
		}
	}
	if a.deps.RecentEdits != nil && cfg.RecentEdits.Enabled {
		in.RecentEdits = a.deps.RecentEdits.RecentEditsNear(doc.URI(), req.State.Position.Line, cfg.RecentEdits)
	}
	results, err := a.deps.Bridge.Resolution(ctx, req.CompletionID)
	if err != nil {
		return nil, err
	}
	in.ProviderResults = results
	updateData := time.Since(updateStart)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stats := contextproviders.NewStatistics()
	in.Statistics = stats
	rendered, err := a.deps.Assembler.Render(ctx, in, opts)
	if err != nil {
		return nil, fmt.Errorf("render prompt: %w", err)
	}
	rendered.Metadata.UpdateDataTimeMs = float64(updateData.Microseconds()) / 1000

	return &PromptResponse{
		Prompt:                    rendered.Prompt,
		TrailingWs:                rendered.TrailingWs,
		ComputeTime:               time.Since(start),
		Metadata:                  rendered.Metadata,
		ContextProvidersTelemetry: stats.Telemetry(results, cfg.ContextProviders.TelemetryTraits),
		LanguageID:                doc.LanguageID(),
	}, nil
}

// Wait blocks until scheduled provider resolutions have finished.
func (a *AssemblyLayer) Wait() {
	a.deps.Bridge.Wait()
}
