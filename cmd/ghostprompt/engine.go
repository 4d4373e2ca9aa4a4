package main

import (
	"context"
	"slices"

	"ghostprompt/internal/config"
	"ghostprompt/internal/contextproviders"
	"ghostprompt/internal/document"
	"ghostprompt/internal/exclusion"
	"ghostprompt/internal/promptfactory"
	"ghostprompt/internal/recentedits"
	"ghostprompt/internal/similarfiles"
	"ghostprompt/internal/telemetry"
	"ghostprompt/internal/usage"

	"go.uber.org/zap"
)

// engine wires the prompt pipeline for one CLI invocation.
type engine struct {
	cfg      *config.Config
	ws       *document.Workspace
	registry *contextproviders.Registry
	checker  *exclusion.PatternChecker
	edits    *recentedits.Provider
	tracker  *usage.Tracker
	pipeline *promptfactory.Pipeline
}

func newEngine(cfg *config.Config) (*engine, error) {
	e := &engine{
		cfg:      cfg,
		ws:       document.NewWorkspace(cfg.Workspace),
		registry: contextproviders.NewRegistry(),
		checker:  newChecker(cfg),
	}

	if len(cfg.ContextProviders.StaticTraits) > 0 {
		if err := e.registry.Register(contextproviders.NewStaticTraits(cfg.ContextProviders.StaticTraits)); err != nil {
			return nil, err
		}
		// Traits from the config file are always on.
		if !slices.Contains(cfg.ContextProviders.Enabled, contextproviders.StaticTraitsID) {
			cfg.ContextProviders.Enabled = append(cfg.ContextProviders.Enabled, contextproviders.StaticTraitsID)
		}
	}

	e.edits = recentedits.NewProvider(e.ws, cfg.RecentEdits)

	sinks := []telemetry.Sink{telemetry.SinkFunc(logEvent)}
	if cfg.Usage.Enabled {
		t, err := usage.NewTracker(cfg.WorkspacePath(cfg.Usage.Dir))
		if err != nil {
			return nil, err
		}
		e.tracker = t
		sinks = append(sinks, t)
	}

	e.pipeline = promptfactory.New(promptfactory.Deps{
		Config:      cfg,
		Documents:   e.ws,
		Exclusion:   e.checker,
		Bridge:      contextproviders.NewBridge(e.registry),
		SimilarFile: similarfiles.NewFinder(cfg.Workspace, e.checker),
		RecentEdits: e.edits,
	}, telemetry.Multi(sinks...))
	return e, nil
}

func newChecker(cfg *config.Config) *exclusion.PatternChecker {
	return exclusion.NewPatternChecker(cfg.Workspace, cfg.Exclusion.Patterns, cfg.Exclusion.IgnoreFile)
}

// includeFilter returns a path filter that skips excluded files.
func includeFilter(ctx context.Context, checker exclusion.Checker) func(path string) bool {
	return func(path string) bool {
		ignored, err := checker.IsIgnored(ctx, document.FileURI(path))
		return err == nil && !ignored
	}
}

func logEvent(_ context.Context, ev telemetry.Event) {
	if logger == nil {
		return
	}
	logger.Debug("telemetry",
		zap.String("event", ev.Name),
		zap.Any("properties", ev.Data.Properties),
		zap.Any("measurements", ev.Data.Measurements),
	)
}

// Close flushes usage statistics and stops background work.
func (e *engine) Close() error {
	e.pipeline.Wait()
	e.edits.Dispose()
	if e.tracker != nil {
		return e.tracker.Close()
	}
	return nil
}
