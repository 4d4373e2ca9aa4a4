package promptfactory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ghostprompt/internal/logging"
	"ghostprompt/internal/telemetry"
)

// DefaultTimeout bounds a prompt build when none is configured.
const DefaultTimeout = 1200 * time.Millisecond

// waiter is implemented by layers that run work in the background.
type waiter interface {
	Wait()
}

// TimeoutLayer races the inner layer against a deadline. The inner layer
// gets a context derived from the caller's, cancelled when the deadline
// fires.
type TimeoutLayer struct {
	inner   Layer
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewTimeoutLayer wraps inner; a non-positive timeout uses DefaultTimeout.
func NewTimeoutLayer(inner Layer, timeout time.Duration) *TimeoutLayer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &TimeoutLayer{inner: inner, timeout: timeout}
}

type layerOutcome struct {
	res Result
	err error
}

// Prompt implements Layer. Cancellation of ctx reaches the inner layer but
// does not end the race early.
func (t *TimeoutLayer) Prompt(ctx context.Context, req Request) (Result, error) {
	dctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := make(chan layerOutcome, 1)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				ch <- layerOutcome{err: fmt.Errorf("prompt assembly panicked: %v", rec)}
			}
		}()
		res, err := t.inner.Prompt(dctx, req)
		ch <- layerOutcome{res: res, err: err}
	}()

	timer := time.NewTimer(t.timeout)
	defer timer.Stop()
	select {
	case out := <-ch:
		return out.res, out.err
	case <-timer.C:
		logging.PipelineWarn("prompt %s timed out after %v", req.CompletionID, t.timeout)
		return PromptTimeout{}, nil
	}
}

// Wait blocks until every launched build has settled.
func (t *TimeoutLayer) Wait() {
	t.wg.Wait()
	if w, ok := t.inner.(waiter); ok {
		w.Wait()
	}
}

// Pipeline is the sequential outer layer. Builds run one at a time in
// arrival order and every outcome becomes a Result.
type Pipeline struct {
	inner Layer
	sink  telemetry.Sink

	// settleLimit caps how long the next build waits for background work
	// of the previous one.
	settleLimit time.Duration

	mu   sync.Mutex
	last chan struct{} // closed once the previous build has settled
}

// NewPipeline wraps inner. sink may be nil. When inner is a TimeoutLayer the
// next build waits at most one more timeout for a build that ignores
// cancellation.
func NewPipeline(inner Layer, sink telemetry.Sink) *Pipeline {
	if sink == nil {
		sink = telemetry.Discard
	}
	limit := DefaultTimeout
	if t, ok := inner.(*TimeoutLayer); ok {
		limit = t.timeout
	}
	return &Pipeline{inner: inner, sink: sink, settleLimit: limit}
}

// Prompt returns exactly one result and never fails.
func (p *Pipeline) Prompt(ctx context.Context, req Request) Result {
	p.mu.Lock()
	prev := p.last
	done := make(chan struct{})
	p.last = done
	p.mu.Unlock()

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			go func() {
				<-prev
				close(done)
			}()
			return p.finish(ctx, req, PromptCancelled{})
		}
	}
	defer p.settle(done)

	if ctx.Err() != nil {
		return p.finish(ctx, req, PromptCancelled{})
	}

	res, err := p.run(ctx, req)
	switch {
	case ctx.Err() != nil:
		res = PromptCancelled{}
	case err != nil:
		logging.PipelineError("prompt %s failed: %v", req.CompletionID, err)
		res = &PromptError{Err: err}
	case res == nil:
		res = &PromptError{Err: fmt.Errorf("prompt %s: no result", req.CompletionID)}
	}
	return p.finish(ctx, req, res)
}

func (p *Pipeline) run(ctx context.Context, req Request) (res Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			res, err = nil, fmt.Errorf("prompt pipeline panicked: %v", rec)
		}
	}()
	return p.inner.Prompt(ctx, req)
}

// settle releases the next build once background work of this one is done
// or settleLimit has passed.
func (p *Pipeline) settle(done chan struct{}) {
	w, ok := p.inner.(waiter)
	if !ok {
		close(done)
		return
	}
	go func() {
		defer close(done)
		waited := make(chan struct{})
		go func() {
			w.Wait()
			close(waited)
		}()
		timer := time.NewTimer(p.settleLimit)
		defer timer.Stop()
		select {
		case <-waited:
		case <-timer.C:
			logging.PipelineWarn("previous prompt still running after %v, starting next", p.settleLimit)
		}
	}()
}

func (p *Pipeline) finish(ctx context.Context, req Request, res Result) Result {
	data := req.Telemetry.WithProperty(telemetry.PropResultType, res.Type())
	var payload any
	if r, ok := res.(*PromptResponse); ok {
		data = data.
			WithProperty(telemetry.PropLanguageID, r.LanguageID).
			WithProperty(telemetry.PropRenderer, r.Metadata.RendererName).
			WithProperty(telemetry.PropTokenizer, r.Metadata.Tokenizer).
			WithMeasurement(telemetry.MeasurePrefixTokens, float64(r.Prompt.PrefixTokens)).
			WithMeasurement(telemetry.MeasureSuffixTokens, float64(r.Prompt.SuffixTokens)).
			WithMeasurement(telemetry.MeasureComputeTimeMs, float64(r.ComputeTime.Microseconds())/1000)
		payload = r.ContextProvidersTelemetry
	}
	p.sink.Report(context.WithoutCancel(ctx), telemetry.Event{Name: telemetry.EventPromptResult, Data: data, Payload: payload})
	logging.PipelineDebug("prompt %s: %s", req.CompletionID, res.Type())
	return res
}

// Wait blocks until every build and its background work has settled, with no
// limit.
func (p *Pipeline) Wait() {
	p.mu.Lock()
	last := p.last
	p.mu.Unlock()
	if last != nil {
		<-last
	}
	if w, ok := p.inner.(waiter); ok {
		w.Wait()
	}
}
