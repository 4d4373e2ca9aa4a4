package contextproviders

import (
	"context"
	"errors"
	"testing"
	"time"

	"ghostprompt/internal/config"
	"ghostprompt/internal/document"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var goDoc = document.New("file:///src/main.go", "go", 1, "package main\n")

func allEnabled(budget time.Duration) Options {
	return Options{Enabled: []string{"*"}, TimeBudget: budget}
}

func staticResolver(items ...Item) ResolverFunc {
	return func(ctx context.Context, req Request) ([]Item, error) { return items, nil }
}

func trait(id, name, value string) Item {
	return Item{Kind: KindTrait, ID: id, Name: name, Value: value}
}

type streamer struct {
	items []Item
	block bool
}

func (s *streamer) ResolveStream(ctx context.Context, req Request, emit func(Item)) error {
	for _, it := range s.items {
		emit(it)
	}
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

type slowWithFallback struct{}

func (slowWithFallback) Resolve(ctx context.Context, req Request) ([]Item, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (slowWithFallback) ResolveOnTimeout(req Request) []Item {
	return []Item{trait("fallback", "Fallback", "yes")}
}

func TestRegisterValidation(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"", "a,b", "a b"} {
		err := r.Register(&Provider{ID: id, Resolver: staticResolver()})
		assert.ErrorIs(t, err, ErrInvalidProviderID, "id %q", id)
	}
	assert.Error(t, r.Register(&Provider{ID: "x", Resolver: 42}))
	assert.ErrorIs(t, r.Register(nil), ErrInvalidProviderID)
}

func TestRegisterLastWriteWins(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Provider{ID: "a", Resolver: staticResolver()}))
	require.NoError(t, r.Register(&Provider{ID: "b", Resolver: staticResolver()}))
	replacement := &Provider{ID: "a", Selector: []DocumentFilter{{Language: "go"}}, Resolver: staticResolver()}
	require.NoError(t, r.Register(replacement))

	ps := r.Providers()
	require.Len(t, ps, 2)
	assert.Same(t, replacement, ps[0])

	r.Unregister("a")
	r.Unregister("missing")
	require.Len(t, r.Providers(), 1)
	assert.Equal(t, "b", r.Providers()[0].ID)
}

func TestMatchScores(t *testing.T) {
	tests := []struct {
		name string
		sel  []DocumentFilter
		want int
	}{
		{"exact language", []DocumentFilter{{Language: "go"}}, 10},
		{"wildcard", []DocumentFilter{{Language: "*"}}, 1},
		{"other language", []DocumentFilter{{Language: "python"}}, 0},
		{"best filter wins", []DocumentFilter{{Language: "*"}, {Language: "go"}}, 10},
		{"scheme mismatch", []DocumentFilter{{Language: "go", Scheme: "untitled"}}, 0},
		{"pattern match", []DocumentFilter{{Language: "go", Pattern: "*.go"}}, 10},
		{"pattern mismatch", []DocumentFilter{{Language: "go", Pattern: "*.ts"}}, 0},
		{"no filters", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.sel, goDoc))
		})
	}
}

func TestResolveAllSortsAndResolves(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Provider{ID: "wild", Selector: []DocumentFilter{{Language: "*"}}, Resolver: staticResolver(trait("w", "W", "1"))}))
	require.NoError(t, r.Register(&Provider{ID: "py", Selector: []DocumentFilter{{Language: "python"}}, Resolver: staticResolver(trait("p", "P", "1"))}))
	require.NoError(t, r.Register(&Provider{ID: "go", Selector: []DocumentFilter{{Language: "go"}}, Resolver: staticResolver(trait("g", "G", "1"))}))

	results := r.ResolveAll(context.Background(), Request{CompletionID: "c1", Document: goDoc}, allEnabled(time.Second))
	require.Len(t, results, 3)

	assert.Equal(t, "go", results[0].ProviderID)
	assert.Equal(t, 10, results[0].MatchScore)
	assert.Equal(t, ResolutionFull, results[0].Resolution)
	assert.Equal(t, "wild", results[1].ProviderID)
	assert.Equal(t, 1, results[1].MatchScore)
	assert.Equal(t, "py", results[2].ProviderID)
	assert.Equal(t, ResolutionNone, results[2].Resolution)
	assert.Empty(t, results[2].Items)
}

func TestResolveAllRespectsEnablement(t *testing.T) {
	r := NewRegistry()
	called := false
	require.NoError(t, r.Register(&Provider{ID: "a", Selector: []DocumentFilter{{Language: "go"}},
		Resolver: ResolverFunc(func(ctx context.Context, req Request) ([]Item, error) {
			called = true
			return nil, nil
		})}))

	results := r.ResolveAll(context.Background(), Request{Document: goDoc}, Options{Enabled: []string{"b"}})
	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].MatchScore)
	assert.Equal(t, ResolutionNone, results[0].Resolution)
	assert.False(t, called)

	results = r.ResolveAll(context.Background(), Request{Document: goDoc}, Options{Enabled: []string{"a"}})
	assert.Equal(t, ResolutionFull, results[0].Resolution)
	assert.True(t, called)
}

func TestResolveAllErrorsAndPanics(t *testing.T) {
	r := NewRegistry()
	sel := []DocumentFilter{{Language: "go"}}
	require.NoError(t, r.Register(&Provider{ID: "rejects", Selector: sel,
		Resolver: ResolverFunc(func(context.Context, Request) ([]Item, error) { return nil, errors.New("boom") })}))
	require.NoError(t, r.Register(&Provider{ID: "panics", Selector: sel,
		Resolver: ResolverFunc(func(context.Context, Request) ([]Item, error) { panic("oops") })}))
	require.NoError(t, r.Register(&Provider{ID: "ok", Selector: sel, Resolver: staticResolver(trait("t", "T", "v"))}))

	results := r.ResolveAll(context.Background(), Request{Document: goDoc}, allEnabled(time.Second))
	byID := map[string]Result{}
	for _, res := range results {
		byID[res.ProviderID] = res
	}
	assert.Equal(t, ResolutionError, byID["rejects"].Resolution)
	assert.EqualError(t, byID["rejects"].Err, "boom")
	assert.Equal(t, ResolutionError, byID["panics"].Resolution)
	assert.Contains(t, byID["panics"].Err.Error(), "panicked")
	assert.Equal(t, ResolutionFull, byID["ok"].Resolution)
}

func TestResolveAllTimeouts(t *testing.T) {
	r := NewRegistry()
	sel := []DocumentFilter{{Language: "go"}}
	require.NoError(t, r.Register(&Provider{ID: "stream", Selector: sel,
		Resolver: &streamer{items: []Item{trait("s1", "S", "1")}, block: true}}))
	require.NoError(t, r.Register(&Provider{ID: "fallback", Selector: sel, Resolver: slowWithFallback{}}))
	require.NoError(t, r.Register(&Provider{ID: "slow", Selector: sel,
		Resolver: ResolverFunc(func(ctx context.Context, req Request) ([]Item, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})}))

	var seenBudget time.Duration
	var seenEnd time.Time
	require.NoError(t, r.Register(&Provider{ID: "budget", Selector: sel,
		Resolver: ResolverFunc(func(ctx context.Context, req Request) ([]Item, error) {
			seenBudget, seenEnd = req.TimeBudget, req.TimeoutEnd
			return nil, nil
		})}))

	start := time.Now()
	results := r.ResolveAll(context.Background(), Request{Document: goDoc}, allEnabled(30*time.Millisecond))
	assert.Less(t, time.Since(start), time.Second)

	byID := map[string]Result{}
	for _, res := range results {
		byID[res.ProviderID] = res
	}
	assert.Equal(t, ResolutionPartial, byID["stream"].Resolution)
	assert.Len(t, byID["stream"].Items, 1)
	assert.Equal(t, ResolutionPartial, byID["fallback"].Resolution)
	assert.Equal(t, "fallback", byID["fallback"].Items[0].ID)
	assert.Equal(t, ResolutionTimeout, byID["slow"].Resolution)
	assert.Equal(t, 30*time.Millisecond, seenBudget)
	assert.False(t, seenEnd.IsZero())
}

func TestResolveAllZeroBudgetIsUnlimited(t *testing.T) {
	r := NewRegistry()
	var hasDeadline bool
	var end time.Time
	require.NoError(t, r.Register(&Provider{ID: "a", Selector: []DocumentFilter{{Language: "go"}},
		Resolver: ResolverFunc(func(ctx context.Context, req Request) ([]Item, error) {
			_, hasDeadline = ctx.Deadline()
			end = req.TimeoutEnd
			return nil, nil
		})}))
	r.ResolveAll(context.Background(), Request{Document: goDoc}, allEnabled(0))
	assert.False(t, hasDeadline)
	assert.True(t, end.IsZero())
}

func TestResolveAllCancelledContext(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Provider{ID: "a", Selector: []DocumentFilter{{Language: "go"}}, Resolver: staticResolver()}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Nil(t, r.ResolveAll(ctx, Request{Document: goDoc}, allEnabled(time.Second)))
}

func TestItemValidation(t *testing.T) {
	items := validateItems("p", []Item{
		{Kind: KindTrait, ID: "dup", Name: "A", Value: "1"},
		{Kind: KindTrait, ID: "dup", Name: "B", Value: "2"},
		{Kind: KindTrait, ID: "bad id!", Name: "C", Value: "3"},
		{Kind: KindTrait, Name: "D", Value: "4", Importance: Importance(101)},
		{Kind: KindTrait, Name: "E", Value: "5", Importance: Importance(-1)},
		{Kind: "unknown", ID: "u", Value: "x"},
		{Kind: KindCodeSnippet, ID: "s", Value: "code"},
		{Kind: KindCodeSnippet, ID: "s2", URI: "file:///x.go", Value: "code", Importance: Importance(100)},
	})
	require.Len(t, items, 4)
	assert.Equal(t, "dup", items[0].ID)
	assert.NotEqual(t, "dup", items[1].ID)
	assert.NotEqual(t, "bad id!", items[2].ID)
	assert.Regexp(t, `^[A-Za-z0-9_-]+$`, items[2].ID)
	assert.Equal(t, "s2", items[3].ID)
	assert.Equal(t, 100, items[3].Rank())
}

func TestBridge(t *testing.T) {
	r := NewRegistry()
	release := make(chan struct{})
	require.NoError(t, r.Register(&Provider{ID: "a", Selector: []DocumentFilter{{Language: "go"}},
		Resolver: ResolverFunc(func(ctx context.Context, req Request) ([]Item, error) {
			<-release
			return []Item{trait("x", "X", "1")}, nil
		})}))
	b := NewBridge(r)

	b.Schedule(context.Background(), Request{CompletionID: "c1", Document: goDoc}, allEnabled(0))

	short, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := b.Resolution(short, "c1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	results, err := b.Resolution(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, ResolutionFull, results[0].Resolution)

	results, err = b.Resolution(context.Background(), "c1")
	assert.NoError(t, err)
	assert.Nil(t, results, "resolution is forgotten after retrieval")
	b.Wait()
}

func TestStatisticsTelemetry(t *testing.T) {
	results := []Result{
		{ProviderID: "a", MatchScore: 10, Resolution: ResolutionFull, ResolutionTime: 12 * time.Millisecond,
			Items: []Item{trait("t1", "LanguageVersion", "1.24"), trait("t2", "Secret", "x")}},
		{ProviderID: "b", MatchScore: 10, Resolution: ResolutionError},
		{ProviderID: "c", MatchScore: 0, Resolution: ResolutionNone},
	}
	s := NewStatistics()
	s.SetUsage("a", "t1", UsageFull, 5, 5)
	s.SetUsage("a", "t2", UsagePartial, 5, 2)

	tel := s.Telemetry(results, []string{"LanguageVersion"})
	require.Len(t, tel, 3)

	a := tel[0]
	assert.Equal(t, int64(12), a.ResolutionTimeMs)
	assert.Equal(t, UsagePartial, a.Usage)
	assert.True(t, a.Matched)
	assert.Equal(t, 2, a.NumResolvedItems)
	assert.Equal(t, 1, a.NumUsedItems)
	assert.Equal(t, 1, a.NumPartiallyUsedItems)
	assert.Equal(t, "LanguageVersion", a.UsageDetails[0].Name)
	assert.Empty(t, a.UsageDetails[1].Name, "unlisted trait names are not reported")

	assert.Equal(t, UsageError, tel[1].Usage)
	assert.Equal(t, ResolutionError, tel[1].Resolution)
	assert.False(t, tel[2].Matched)
	assert.Equal(t, UsageNone, tel[2].Usage)
}

func TestStatisticsSameItemIDAcrossProviders(t *testing.T) {
	results := []Result{
		{ProviderID: "a", MatchScore: 10, Resolution: ResolutionFull, Items: []Item{trait("1", "A", "x")}},
		{ProviderID: "b", MatchScore: 10, Resolution: ResolutionFull, Items: []Item{trait("1", "B", "y")}},
	}
	s := NewStatistics()
	s.SetUsage("a", "1", UsageFull, 3, 3)
	s.SetUsage("b", "1", UsageNone, 3, 0)

	tel := s.Telemetry(results, nil)
	require.Len(t, tel, 2)
	assert.Equal(t, 1, tel[0].NumUsedItems)
	assert.Equal(t, UsageFull, tel[0].Usage)
	assert.Equal(t, 0, tel[1].NumUsedItems)
	assert.Equal(t, UsageNone, tel[1].Usage)
}

func TestStaticTraitsProvider(t *testing.T) {
	p := NewStaticTraits([]config.StaticTrait{
		{Name: "LanguageVersion", Value: "1.24", Importance: 50, Languages: []string{"go"}},
		{Name: "Python", Value: "3.12", Languages: []string{"python"}},
		{Name: "Team", Value: "infra"},
	})
	assert.Equal(t, 10, Match(p.Selector, goDoc))

	r := NewRegistry()
	require.NoError(t, r.Register(p))
	results := r.ResolveAll(context.Background(), Request{Document: goDoc}, allEnabled(time.Second))
	require.Len(t, results, 1)
	require.Len(t, results[0].Items, 2)
	assert.Equal(t, "LanguageVersion", results[0].Items[0].Name)
	assert.Equal(t, "Team", results[0].Items[1].Name)
}
