package contextproviders

import (
	"context"
	"sync"

	"ghostprompt/internal/logging"
)

// Bridge starts provider resolution ahead of prompt assembly so that it runs
// concurrently with the rest of the prompt work.
type Bridge struct {
	registry *Registry

	mu      sync.Mutex
	pending map[string]*scheduled
	wg      sync.WaitGroup
}

type scheduled struct {
	done    chan struct{}
	results []Result
}

// NewBridge creates a bridge over registry.
func NewBridge(registry *Registry) *Bridge {
	return &Bridge{registry: registry, pending: make(map[string]*scheduled)}
}

// Registry returns the underlying registry.
func (b *Bridge) Registry() *Registry { return b.registry }

// Schedule begins resolving providers for req.CompletionID. A second call
// for the same completion id replaces the first.
func (b *Bridge) Schedule(ctx context.Context, req Request, opts Options) {
	s := &scheduled{done: make(chan struct{})}
	b.mu.Lock()
	b.pending[req.CompletionID] = s
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer close(s.done)
		s.results = b.registry.ResolveAll(ctx, req, opts)
	}()
	logging.ContextProvidersDebug("scheduled providers for completion %s", req.CompletionID)
}

// Resolution waits for the scheduled resolution of completionID and forgets
// it. It returns nil when nothing was scheduled and ctx.Err() when ctx is
// done first.
func (b *Bridge) Resolution(ctx context.Context, completionID string) ([]Result, error) {
	b.mu.Lock()
	s, ok := b.pending[completionID]
	b.mu.Unlock()
	if !ok {
		return nil, nil
	}

	select {
	case <-s.done:
		b.Forget(completionID)
		return s.results, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Forget discards a scheduled resolution without waiting for it.
func (b *Bridge) Forget(completionID string) {
	b.mu.Lock()
	delete(b.pending, completionID)
	b.mu.Unlock()
}

// Wait blocks until every scheduled resolution has finished.
func (b *Bridge) Wait() {
	b.wg.Wait()
}
