package recentedits

import (
	"strings"
	"sync"
	"time"

	"ghostprompt/internal/config"
	"ghostprompt/internal/document"
	"ghostprompt/internal/logging"
)

// Source is the workspace surface the provider observes.
type Source interface {
	Subscribe(l document.Listener) func()
	TextDocuments() []*document.TextDocument
}

type status int

const (
	statusUninitialized status = iota
	statusRunning
	statusDisposed
)

// Edit is a hunk with its rendered summary.
type Edit struct {
	Hunk    *Hunk
	Summary string
}

// Provider owns per-document edit state and keeps it current from workspace
// events, coalescing rapid changes with a debounce timer.
type Provider struct {
	mu          sync.Mutex
	src         Source
	cfg         config.RecentEditsConfig
	state       EditMap
	known       map[string]string // last text seen before the first change
	seen        map[string]bool   // documents with at least one observed change
	pending     map[string]string // latest text awaiting the debounce timer
	timers      map[string]*time.Timer
	summaries   map[summaryKey]string
	status      status
	unsubscribe func()
	now         func() time.Time
}

type summaryKey struct {
	id                        uint64
	removeDeletedLines        bool
	insertionsBeforeDeletions bool
}

// NewProvider creates a provider; call Start to begin tracking.
func NewProvider(src Source, cfg config.RecentEditsConfig) *Provider {
	return &Provider{
		src:       src,
		cfg:       cfg,
		state:     EditMap{},
		known:     make(map[string]string),
		seen:      make(map[string]bool),
		pending:   make(map[string]string),
		timers:    make(map[string]*time.Timer),
		summaries: make(map[summaryKey]string),
		now:       time.Now,
	}
}

// Start subscribes to workspace events and records the text of every open
// document. It is idempotent and a no-op after Dispose.
func (p *Provider) Start() {
	p.mu.Lock()
	if p.status != statusUninitialized {
		p.mu.Unlock()
		return
	}
	p.status = statusRunning
	for _, doc := range p.src.TextDocuments() {
		p.known[doc.URI()] = doc.GetText()
	}
	p.mu.Unlock()

	unsub := p.src.Subscribe(p.handle)

	p.mu.Lock()
	if p.status == statusDisposed {
		p.mu.Unlock()
		unsub()
		return
	}
	p.unsubscribe = unsub
	p.mu.Unlock()
	logging.RecentEdits("recent edits provider started (debounce %v)", p.cfg.GetDebounceTimeout())
}

// IsEnabled reports whether recent edits should be used.
func (p *Provider) IsEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.Enabled && p.status != statusDisposed
}

func (p *Provider) handle(ev document.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != statusRunning {
		return
	}

	uri := ev.Document.URI()
	switch ev.Type {
	case document.Opened:
		p.known[uri] = ev.Document.GetText()

	case document.Changed:
		if t, ok := p.timers[uri]; ok {
			t.Stop()
			delete(p.timers, uri)
		}
		if !p.seen[uri] {
			p.seen[uri] = true
			prior, ok := p.known[uri]
			if !ok && ev.Previous != nil {
				prior, ok = ev.Previous.GetText(), true
			}
			if ok {
				p.reduceLocked(uri, prior)
			}
		}
		text := ev.Document.GetText()
		d := p.cfg.GetDebounceTimeout()
		if d <= 0 {
			delete(p.pending, uri)
			p.reduceLocked(uri, text)
			return
		}
		p.pending[uri] = text
		p.timers[uri] = time.AfterFunc(d, func() { p.flush(uri) })

	case document.Closed:
		if t, ok := p.timers[uri]; ok {
			t.Stop()
			delete(p.timers, uri)
		}
		if text, ok := p.pending[uri]; ok {
			delete(p.pending, uri)
			p.reduceLocked(uri, text)
		}
		delete(p.known, uri)
		delete(p.seen, uri)
	}
}

// flush reduces the pending text for uri once its debounce window elapses.
func (p *Provider) flush(uri string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != statusRunning {
		return
	}
	text, ok := p.pending[uri]
	if !ok {
		return
	}
	delete(p.pending, uri)
	delete(p.timers, uri)
	p.reduceLocked(uri, text)
}

// reduceLocked keeps the previous state if reducing panics.
func (p *Provider) reduceLocked(uri, text string) {
	timer := logging.StartTimer(logging.CategoryRecentEdits, "reduce "+uri)
	defer timer.Stop()
	defer func() {
		if rec := recover(); rec != nil {
			logging.Get(logging.CategoryRecentEdits).Error("reduce %s panicked: %v", uri, rec)
		}
	}()
	p.state = Reduce(p.state, uri, text, p.cfg, p.now())
}

// RecentEdits returns all tracked edits, newest first.
func (p *Provider) RecentEdits() []Edit {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.editsLocked(p.cfg)
}

func (p *Provider) editsLocked(cfg config.RecentEditsConfig) []Edit {
	hunks := AllByTimestamp(p.state)
	live := make(map[uint64]bool, len(hunks))
	out := make([]Edit, 0, len(hunks))
	for _, h := range hunks {
		live[h.ID] = true
		key := summaryKey{h.ID, cfg.RemoveDeletedLines, cfg.InsertionsBeforeDeletions}
		s, ok := p.summaries[key]
		if !ok {
			s = Summarize(h, cfg)
			p.summaries[key] = s
		}
		out = append(out, Edit{Hunk: h, Summary: s})
	}
	for k := range p.summaries {
		if !live[k.id] {
			delete(p.summaries, k)
		}
	}
	return out
}

// RecentEditsNear returns edits for a completion at line in activeURI using
// per-request settings cfg. Hunks of the active document further than
// cfg.ActiveDocDistanceLimitFromCursor lines from the cursor are omitted and
// the result is capped at cfg.MaxEdits.
func (p *Provider) RecentEditsNear(activeURI string, line int, cfg config.RecentEditsConfig) []Edit {
	p.mu.Lock()
	all := p.editsLocked(cfg)
	p.mu.Unlock()

	limit := cfg.ActiveDocDistanceLimitFromCursor
	out := make([]Edit, 0, len(all))
	for _, e := range all {
		if limit >= 0 && e.Hunk.File == activeURI && distance(e.Hunk, line) > limit {
			continue
		}
		out = append(out, e)
		if cfg.MaxEdits > 0 && len(out) == cfg.MaxEdits {
			break
		}
	}
	return out
}

func distance(h *Hunk, line int) int {
	switch {
	case line < h.StartLine:
		return h.StartLine - line
	case line > h.EndLine:
		return line - h.EndLine
	default:
		return 0
	}
}

// EditSummary concatenates the summaries of all tracked edits.
func (p *Provider) EditSummary() string {
	edits := p.RecentEdits()
	var sb strings.Builder
	for _, e := range edits {
		sb.WriteString(e.Summary)
	}
	return sb.String()
}

// Dispose stops pending timers and unsubscribes. Safe to call repeatedly.
func (p *Provider) Dispose() {
	p.mu.Lock()
	if p.status == statusDisposed {
		p.mu.Unlock()
		return
	}
	p.status = statusDisposed
	for uri, t := range p.timers {
		t.Stop()
		delete(p.timers, uri)
	}
	p.pending = make(map[string]string)
	unsub := p.unsubscribe
	p.unsubscribe = nil
	p.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	logging.RecentEdits("recent edits provider disposed")
}
