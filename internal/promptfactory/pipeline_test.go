package promptfactory

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ghostprompt/internal/config"
	"ghostprompt/internal/contextproviders"
	"ghostprompt/internal/document"
	"ghostprompt/internal/exclusion"
	"ghostprompt/internal/recentedits"
	"ghostprompt/internal/similarfiles"
	"ghostprompt/internal/telemetry"
	"ghostprompt/internal/tokenize"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type layerFunc func(ctx context.Context, req Request) (Result, error)

func (f layerFunc) Prompt(ctx context.Context, req Request) (Result, error) { return f(ctx, req) }

type env struct {
	cfg      *config.Config
	ws       *document.Workspace
	registry *contextproviders.Registry
	edits    *recentedits.Provider
	checker  exclusion.Checker
	events   []telemetry.Event
	mu       sync.Mutex
}

func newEnv(t *testing.T) *env {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Workspace = "/ws"
	cfg.Prompt.Tokenizer = tokenize.ApproxName
	cfg.ContextProviders.Enabled = []string{"*"}
	return &env{
		cfg:      cfg,
		ws:       document.NewWorkspace("/ws"),
		registry: contextproviders.NewRegistry(),
	}
}

func (e *env) pipeline(t *testing.T) *Pipeline {
	t.Helper()
	sink := telemetry.SinkFunc(func(_ context.Context, ev telemetry.Event) {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.events = append(e.events, ev)
	})
	p := New(Deps{
		Config:      e.cfg,
		Documents:   e.ws,
		Exclusion:   e.checker,
		Bridge:      contextproviders.NewBridge(e.registry),
		SimilarFile: similarfiles.NewFinder("/ws", e.checker),
		RecentEdits: e.edits,
	}, sink)
	t.Cleanup(p.Wait)
	return p
}

func (e *env) withEdits(t *testing.T, debounce string) {
	t.Helper()
	rc := e.cfg.RecentEdits
	rc.DebounceTimeout = debounce
	e.edits = recentedits.NewProvider(e.ws, rc)
	e.edits.Start()
	t.Cleanup(e.edits.Dispose)
}

func req(uri string, line, char int) Request {
	return Request{
		CompletionID: "c-" + uri,
		State:        State{URI: uri, Position: document.Position{Line: line, Character: char}},
		Telemetry:    telemetry.New(),
	}
}

func promptResponse(t *testing.T, res Result) *PromptResponse {
	t.Helper()
	r, ok := res.(*PromptResponse)
	require.True(t, ok, "expected prompt, got %s (%+v)", res.Type(), res)
	return r
}

func TestCurrentFilePrompt(t *testing.T) {
	e := newEnv(t)
	e.ws.Open("file:///ws/basename", "javascript", "const a=1;\nfunction f\nconst b=2;")
	p := e.pipeline(t)

	r := promptResponse(t, p.Prompt(context.Background(), req("file:///ws/basename", 1, 10)))
	assert.Equal(t, "// Path: basename\nconst a=1;\nfunction f", r.Prompt.Prefix)
	assert.Equal(t, "const b=2;", r.Prompt.Suffix)
	assert.LessOrEqual(t, r.Prompt.PrefixTokens+r.Prompt.SuffixTokens, e.cfg.MaxPromptLength())
	assert.Equal(t, "javascript", r.LanguageID)
	assert.Positive(t, r.ComputeTime)
}

func TestSimilarFileSnippet(t *testing.T) {
	e := newEnv(t)
	e.ws.Open("file:///ws/other.js", "javascript", "function computeTotal(items) {\n  return items.reduce((a, b) => a + b, 0);\n}\n")
	e.ws.Open("file:///ws/main.js", "javascript", "// totals\nfunction computeTotal(items) {\n")
	p := e.pipeline(t)

	r := promptResponse(t, p.Prompt(context.Background(), req("file:///ws/main.js", 2, 0)))
	assert.Contains(t, r.Prompt.Prefix, "// Compare this snippet from other.js:\n")
	assert.True(t, strings.HasSuffix(r.Prompt.Prefix, "function computeTotal(items) {\n"))
}

func tenLines() string {
	var lines []string
	for i := range 10 {
		lines = append(lines, "line"+string(rune('0'+i)))
	}
	return strings.Join(lines, "\n")
}

func TestRecentEditsCoalescedIntoOneHunk(t *testing.T) {
	e := newEnv(t)
	uri := "file:///ws/a.js"
	e.ws.Open(uri, "javascript", tenLines())
	e.withEdits(t, "50ms")
	p := e.pipeline(t)

	_, err := e.ws.Change(uri, strings.Replace(tenLines(), "line3", "x", 1))
	require.NoError(t, err)
	_, err = e.ws.Change(uri, strings.Replace(tenLines(), "line3", "xy", 1))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(e.edits.RecentEdits()) > 0 }, 2*time.Second, 10*time.Millisecond)
	require.Len(t, e.edits.RecentEdits(), 1)

	r := promptResponse(t, p.Prompt(context.Background(), req(uri, 9, 5)))
	assert.Contains(t, r.Prompt.Prefix, "// These are recently edited files.")
	assert.Equal(t, 1, strings.Count(r.Prompt.Prefix, "@@ -"))
	assert.Contains(t, r.Prompt.Prefix, "// +xy\n")
	assert.Contains(t, r.Prompt.Prefix, "// -line3\n")
	assert.NotContains(t, r.Prompt.Prefix, "// +x\n")
}

func TestRecentEditsBeyondCursorDistanceOmitted(t *testing.T) {
	e := newEnv(t)
	uri := "file:///ws/a.js"
	e.ws.Open(uri, "javascript", tenLines())
	e.withEdits(t, "0s")
	p := e.pipeline(t)

	_, err := e.ws.Change(uri, strings.Replace(tenLines(), "line0", "changed", 1))
	require.NoError(t, err)
	require.Len(t, e.edits.RecentEdits(), 1)

	r := req(uri, 9, 5)
	r.Telemetry = r.Telemetry.WithExperiment(config.ExpRecentEditsActiveDocDistance, "2")
	res := promptResponse(t, p.Prompt(context.Background(), r))
	assert.NotContains(t, res.Prompt.Prefix, "recently edited")

	r.CompletionID = "again"
	r.Telemetry = r.Telemetry.WithExperiment(config.ExpRecentEditsActiveDocDistance, "100")
	res = promptResponse(t, p.Prompt(context.Background(), r))
	assert.Contains(t, res.Prompt.Prefix, "recently edited")
}

func TestRejectingProviderStillYieldsPrompt(t *testing.T) {
	e := newEnv(t)
	sel := []contextproviders.DocumentFilter{{Language: "javascript"}}
	require.NoError(t, e.registry.Register(&contextproviders.Provider{ID: "broken", Selector: sel,
		Resolver: contextproviders.ResolverFunc(func(context.Context, contextproviders.Request) ([]contextproviders.Item, error) {
			return nil, errors.New("provider exploded")
		})}))
	require.NoError(t, e.registry.Register(&contextproviders.Provider{ID: "traits", Selector: sel,
		Resolver: contextproviders.ResolverFunc(func(context.Context, contextproviders.Request) ([]contextproviders.Item, error) {
			return []contextproviders.Item{{Kind: contextproviders.KindTrait, ID: "lv", Name: "LanguageVersion", Value: "ES2022"}}, nil
		})}))
	e.ws.Open("file:///ws/a.js", "javascript", "const a = 1;\nconst b = 2;\n")
	p := e.pipeline(t)

	r := promptResponse(t, p.Prompt(context.Background(), req("file:///ws/a.js", 2, 0)))
	assert.NotContains(t, r.Prompt.Prefix, "exploded")
	assert.Contains(t, r.Prompt.Prefix, "// LanguageVersion: ES2022\n")

	byID := map[string]contextproviders.ProviderTelemetry{}
	for _, pt := range r.ContextProvidersTelemetry {
		byID[pt.ProviderID] = pt
	}
	assert.Equal(t, contextproviders.ResolutionError, byID["broken"].Resolution)
	assert.Equal(t, contextproviders.UsageError, byID["broken"].Usage)
	assert.Equal(t, contextproviders.UsageFull, byID["traits"].Usage)
	assert.Equal(t, "LanguageVersion", byID["traits"].UsageDetails[0].Name)
}

func TestResultVariants(t *testing.T) {
	e := newEnv(t)
	e.ws.Open("file:///ws/ok.go", "go", "package main\n\nfunc main() {\n")
	e.ws.Open("file:///ws/short.go", "go", "package")
	e.ws.Open("file:///ws/secret.go", "go", "package secret\n\nvar key = \"\"\n")
	e.checker = exclusion.CheckerFunc(func(_ context.Context, uri string) (bool, error) {
		return strings.HasSuffix(uri, "secret.go"), nil
	})
	p := e.pipeline(t)

	badSuffix := req("file:///ws/ok.go", 3, 0)
	badSuffix.Telemetry = badSuffix.Telemetry.WithExperiment(config.ExpSuffixPercent, "101")

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		req  Request
		want string
	}{
		{"prompt", context.Background(), req("file:///ws/ok.go", 3, 0), TypePrompt},
		{"too short", context.Background(), req("file:///ws/short.go", 0, 7), TypeContextTooShort},
		{"missing document", context.Background(), req("file:///ws/missing.go", 0, 0), TypeContextTooShort},
		{"excluded", context.Background(), req("file:///ws/secret.go", 2, 0), TypeContentExclusion},
		{"config error", context.Background(), badSuffix, TypePromptError},
		{"cancelled", cancelled, req("file:///ws/ok.go", 3, 0), TypePromptCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := p.Prompt(tt.ctx, tt.req)
			require.NotNil(t, res)
			assert.Equal(t, tt.want, res.Type())
		})
	}

	res := p.Prompt(context.Background(), badSuffix)
	perr, ok := res.(*PromptError)
	require.True(t, ok)
	assert.ErrorIs(t, perr, config.ErrInvalidSuffixPercent)

	e.mu.Lock()
	defer e.mu.Unlock()
	require.Len(t, e.events, len(tests)+1)
	for i, tt := range tests {
		assert.Equal(t, tt.want, e.events[i].Data.Properties[telemetry.PropResultType])
	}
}

func TestTimeoutBound(t *testing.T) {
	var sawCancel atomic.Bool
	inner := layerFunc(func(ctx context.Context, req Request) (Result, error) {
		<-ctx.Done()
		sawCancel.Store(true)
		return nil, ctx.Err()
	})
	p := NewPipeline(NewTimeoutLayer(inner, 50*time.Millisecond), nil)
	defer p.Wait()

	start := time.Now()
	res := p.Prompt(context.Background(), Request{CompletionID: "slow"})
	elapsed := time.Since(start)

	assert.Equal(t, TypePromptTimeout, res.Type())
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond)
	p.Wait()
	assert.True(t, sawCancel.Load(), "assembly context must be cancelled on timeout")
}

func TestBuildsAreSerialized(t *testing.T) {
	var active, maxActive atomic.Int32
	var order []string
	var mu sync.Mutex
	inner := layerFunc(func(ctx context.Context, req Request) (Result, error) {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		mu.Lock()
		order = append(order, req.CompletionID)
		mu.Unlock()
		time.Sleep(60 * time.Millisecond) // ignores ctx, outlives the timeout
		return ContextTooShort{}, nil
	})
	p := NewPipeline(NewTimeoutLayer(inner, 20*time.Millisecond), nil)
	p.settleLimit = time.Minute

	var wg sync.WaitGroup
	results := make([]Result, 3)
	for i, id := range []string{"first", "second", "third"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = p.Prompt(context.Background(), Request{CompletionID: id})
		}()
		time.Sleep(5 * time.Millisecond)
	}
	wg.Wait()
	p.Wait()

	assert.Equal(t, int32(1), maxActive.Load())
	assert.Equal(t, []string{"first", "second", "third"}, order)
	for _, r := range results {
		assert.Equal(t, TypePromptTimeout, r.Type())
	}
}

func TestStuckBuildReleasesNextAfterLimit(t *testing.T) {
	release := make(chan struct{})
	inner := layerFunc(func(ctx context.Context, req Request) (Result, error) {
		if req.CompletionID == "stuck" {
			<-release // ignores ctx
		}
		return ContextTooShort{}, nil
	})
	p := NewPipeline(NewTimeoutLayer(inner, 20*time.Millisecond), nil)
	require.Equal(t, 20*time.Millisecond, p.settleLimit)

	assert.Equal(t, TypePromptTimeout, p.Prompt(context.Background(), Request{CompletionID: "stuck"}).Type())

	next := make(chan Result, 1)
	go func() { next <- p.Prompt(context.Background(), Request{CompletionID: "next"}) }()
	select {
	case res := <-next:
		assert.Equal(t, TypeContextTooShort, res.Type())
	case <-time.After(time.Second):
		t.Fatal("next prompt blocked behind a build that ignores cancellation")
	}

	close(release)
	p.Wait()
}

func TestCancelledWhileWaitingKeepsOrder(t *testing.T) {
	release := make(chan struct{})
	var ran []string
	var mu sync.Mutex
	inner := layerFunc(func(ctx context.Context, req Request) (Result, error) {
		mu.Lock()
		ran = append(ran, req.CompletionID)
		mu.Unlock()
		if req.CompletionID == "blocker" {
			<-release
		}
		return ContextTooShort{}, nil
	})
	p := NewPipeline(NewTimeoutLayer(inner, time.Minute), nil)

	firstDone := make(chan Result, 1)
	go func() { firstDone <- p.Prompt(context.Background(), Request{CompletionID: "blocker"}) }()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(ran) == 1
	}, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	waiting := make(chan Result, 1)
	go func() { waiting <- p.Prompt(ctx, Request{CompletionID: "waiter"}) }()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case res := <-waiting:
		assert.Equal(t, TypePromptCancelled, res.Type())
	case <-time.After(time.Second):
		t.Fatal("cancelled request did not return while waiting")
	}

	close(release)
	assert.Equal(t, TypeContextTooShort, (<-firstDone).Type())
	assert.Equal(t, TypeContextTooShort, p.Prompt(context.Background(), Request{CompletionID: "after"}).Type())
	p.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"blocker", "after"}, ran)
}

func TestCancellationWinsOverResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	inner := layerFunc(func(context.Context, Request) (Result, error) {
		cancel()
		return &PromptResponse{}, nil
	})
	p := NewPipeline(inner, nil)
	assert.Equal(t, TypePromptCancelled, p.Prompt(ctx, Request{}).Type())
}

func TestRecoversAfterErrorAndPanic(t *testing.T) {
	var calls atomic.Int32
	inner := layerFunc(func(context.Context, Request) (Result, error) {
		switch calls.Add(1) {
		case 1:
			return nil, errors.New("boom")
		case 2:
			panic("kaboom")
		default:
			return ContextTooShort{}, nil
		}
	})
	p := NewPipeline(NewTimeoutLayer(inner, time.Second), nil)
	defer p.Wait()

	first := p.Prompt(context.Background(), Request{})
	require.Equal(t, TypePromptError, first.Type())
	assert.EqualError(t, first.(*PromptError).Err, "boom")

	second := p.Prompt(context.Background(), Request{})
	require.Equal(t, TypePromptError, second.Type())
	assert.Contains(t, second.(*PromptError).Err.Error(), "panicked")

	assert.Equal(t, TypeContextTooShort, p.Prompt(context.Background(), Request{}).Type())
}

func TestResultJSON(t *testing.T) {
	tests := []struct {
		res  Result
		want string
	}{
		{PromptTimeout{}, `{"type":"promptTimeout"}`},
		{PromptCancelled{}, `{"type":"promptCancelled"}`},
		{ContextTooShort{}, `{"type":"contextTooShort"}`},
		{ContentExclusion{}, `{"type":"copilotContentExclusion"}`},
		{&PromptError{Err: errors.New("bad")}, `{"type":"promptError","error":"bad"}`},
	}
	for _, tt := range tests {
		t.Run(tt.res.Type(), func(t *testing.T) {
			got, err := json.Marshal(tt.res)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}

	got, err := json.Marshal(&PromptResponse{ComputeTime: 1500 * time.Microsecond})
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(got, &decoded))
	assert.Equal(t, "prompt", decoded["type"])
	assert.Equal(t, 1.5, decoded["computeTimeMs"])
	assert.Contains(t, decoded, "prompt")
	assert.Contains(t, decoded, "metadata")
}
