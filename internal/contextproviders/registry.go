package contextproviders

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"ghostprompt/internal/document"
	"ghostprompt/internal/logging"

	"golang.org/x/sync/errgroup"
)

// ErrInvalidProviderID is returned by Register for empty ids or ids that
// contain separators.
var ErrInvalidProviderID = errors.New("invalid context provider id")

// Request is passed to resolvers.
type Request struct {
	CompletionID  string
	OpportunityID string
	Document      *document.TextDocument
	Position      document.Position
	// TimeBudget is the time the provider has to resolve; zero is unlimited.
	TimeBudget time.Duration
	// TimeoutEnd is the deadline derived from TimeBudget; zero when unlimited.
	TimeoutEnd time.Time
	Experiment map[string]string
}

// Resolver produces items for a request. It must honour ctx cancellation.
type Resolver interface {
	Resolve(ctx context.Context, req Request) ([]Item, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, req Request) ([]Item, error)

func (f ResolverFunc) Resolve(ctx context.Context, req Request) ([]Item, error) { return f(ctx, req) }

// StreamResolver emits items as they become available. Items emitted before
// the time budget expires are kept as a partial resolution.
type StreamResolver interface {
	ResolveStream(ctx context.Context, req Request, emit func(Item)) error
}

// TimeoutFallback supplies items when a resolver exceeds its time budget.
type TimeoutFallback interface {
	ResolveOnTimeout(req Request) []Item
}

// Provider describes a registered context provider. Resolver may also
// implement StreamResolver and TimeoutFallback.
type Provider struct {
	ID       string
	Selector []DocumentFilter
	Resolver any
}

// Resolution is the outcome of resolving one provider.
type Resolution string

const (
	ResolutionFull    Resolution = "full"
	ResolutionPartial Resolution = "partial"
	ResolutionNone    Resolution = "none"
	ResolutionError   Resolution = "error"
	ResolutionTimeout Resolution = "timeout"
)

// Result is the outcome of one provider for one request.
type Result struct {
	ProviderID     string
	MatchScore     int
	Resolution     Resolution
	Items          []Item
	ResolutionTime time.Duration
	Err            error
}

// Options are the per-request registry settings.
type Options struct {
	// Enabled lists provider ids allowed to resolve; "*" enables all.
	Enabled []string
	// TimeBudget is the per-provider budget; zero is unlimited.
	TimeBudget time.Duration
}

func (o Options) enabled(id string) bool {
	return slices.Contains(o.Enabled, "*") || slices.Contains(o.Enabled, id)
}

// Registry holds providers keyed by id.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]*Provider
	order     []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]*Provider)}
}

// Register adds p. Registering an existing id replaces the earlier provider
// while keeping its position.
func (r *Registry) Register(p *Provider) error {
	if p == nil || p.ID == "" || strings.ContainsAny(p.ID, ", \t\n") {
		id := ""
		if p != nil {
			id = p.ID
		}
		return fmt.Errorf("%w: %q", ErrInvalidProviderID, id)
	}
	switch p.Resolver.(type) {
	case Resolver, StreamResolver:
	default:
		return fmt.Errorf("context provider %s: resolver must implement Resolve or ResolveStream", p.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[p.ID]; !exists {
		r.order = append(r.order, p.ID)
	}
	r.providers[p.ID] = p
	logging.ContextProviders("registered context provider %s", p.ID)
	return nil
}

// Unregister removes the provider with id, if present.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[id]; !ok {
		return
	}
	delete(r.providers, id)
	r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == id })
}

// Providers returns the registered providers in registration order.
func (r *Registry) Providers() []*Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Provider, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.providers[id])
	}
	return out
}

// ResolveAll resolves every enabled provider whose selector matches the
// request document, concurrently and each under its own time budget. It
// returns one result per registered provider sorted by match score. A
// cancelled ctx resolves nothing and returns nil.
func (r *Registry) ResolveAll(ctx context.Context, req Request, opts Options) []Result {
	if ctx.Err() != nil || req.Document == nil {
		return nil
	}
	providers := r.Providers()
	results := make([]Result, len(providers))

	eg, egCtx := errgroup.WithContext(ctx)
	for i, p := range providers {
		score := Match(p.Selector, req.Document)
		if !opts.enabled(p.ID) {
			score = 0
		}
		results[i] = Result{ProviderID: p.ID, MatchScore: score, Resolution: ResolutionNone}
		if score == 0 {
			continue
		}
		eg.Go(func() error {
			results[i] = resolveOne(egCtx, p, req, opts.TimeBudget)
			results[i].MatchScore = score
			return nil
		})
	}
	_ = eg.Wait()

	sort.SliceStable(results, func(i, j int) bool { return results[i].MatchScore > results[j].MatchScore })
	return results
}

type outcome struct {
	items []Item
	err   error
}

func resolveOne(ctx context.Context, p *Provider, req Request, budget time.Duration) Result {
	start := time.Now()
	var (
		pctx   context.Context
		cancel context.CancelFunc
	)
	req.TimeBudget = budget
	if budget > 0 {
		req.TimeoutEnd = start.Add(budget)
		pctx, cancel = context.WithDeadline(ctx, req.TimeoutEnd)
	} else {
		req.TimeoutEnd = time.Time{}
		pctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	var (
		streamMu sync.Mutex
		streamed []Item
	)
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: fmt.Errorf("context provider %s panicked: %v", p.ID, rec)}
			}
		}()
		switch res := p.Resolver.(type) {
		case StreamResolver:
			err := res.ResolveStream(pctx, req, func(it Item) {
				streamMu.Lock()
				defer streamMu.Unlock()
				if pctx.Err() == nil {
					streamed = append(streamed, it)
				}
			})
			streamMu.Lock()
			items := slices.Clone(streamed)
			streamMu.Unlock()
			done <- outcome{items: items, err: err}
		case Resolver:
			items, err := res.Resolve(pctx, req)
			done <- outcome{items: items, err: err}
		}
	}()

	result := Result{ProviderID: p.ID}
	select {
	case out := <-done:
		result.ResolutionTime = time.Since(start)
		switch {
		case out.err == nil:
			result.Resolution = ResolutionFull
			result.Items = validateItems(p.ID, out.items)
		case ctx.Err() == nil && errors.Is(pctx.Err(), context.DeadlineExceeded):
			result = timedOut(p, req, out.items, result)
		default:
			result.Resolution = ResolutionError
			result.Err = out.err
			logging.ContextProvidersWarn("context provider %s failed: %v", p.ID, out.err)
		}
	case <-pctx.Done():
		result.ResolutionTime = time.Since(start)
		if ctx.Err() != nil {
			result.Resolution = ResolutionError
			result.Err = ctx.Err()
			break
		}
		streamMu.Lock()
		items := slices.Clone(streamed)
		streamMu.Unlock()
		result = timedOut(p, req, items, result)
	}
	logging.ContextProvidersDebug("context provider %s: %s with %d items in %v",
		p.ID, result.Resolution, len(result.Items), result.ResolutionTime)
	return result
}

func timedOut(p *Provider, req Request, streamed []Item, result Result) Result {
	if len(streamed) > 0 {
		result.Resolution = ResolutionPartial
		result.Items = validateItems(p.ID, streamed)
		return result
	}
	if fb, ok := p.Resolver.(TimeoutFallback); ok {
		if items := fb.ResolveOnTimeout(req); len(items) > 0 {
			result.Resolution = ResolutionPartial
			result.Items = validateItems(p.ID, items)
			return result
		}
	}
	result.Resolution = ResolutionTimeout
	return result
}
