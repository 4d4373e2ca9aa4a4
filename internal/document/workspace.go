package document

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"ghostprompt/internal/logging"
)

// ErrNotFound is returned when a document is not open in the workspace.
var ErrNotFound = errors.New("document not found")

// Manager is the read side of the workspace used by prompt assembly.
type Manager interface {
	Get(ctx context.Context, uri string) (*TextDocument, error)
	TextDocuments() []*TextDocument
	FindNotebook(doc *TextDocument) *Notebook
}

// EventType identifies a document lifecycle event.
type EventType int

const (
	Opened EventType = iota
	Changed
	Closed
)

func (t EventType) String() string {
	switch t {
	case Opened:
		return "opened"
	case Changed:
		return "changed"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("EventType(%d)", int(t))
}

// Event is delivered to subscribers after the workspace state has changed.
// Previous is nil for Opened events.
type Event struct {
	Type     EventType
	Document *TextDocument
	Previous *TextDocument
}

// Listener receives workspace events synchronously.
type Listener func(Event)

// Workspace is an in-memory document manager.
type Workspace struct {
	mu        sync.RWMutex
	root      string
	docs      map[string]*TextDocument
	order     []string // open order, oldest first
	notebooks map[string]*Notebook
	cellOwner map[string]string // cell uri -> notebook uri

	listenersMu sync.Mutex
	listeners   map[int]Listener
	nextID      int
}

// NewWorkspace creates an empty workspace rooted at root.
func NewWorkspace(root string) *Workspace {
	return &Workspace{
		root:      root,
		docs:      make(map[string]*TextDocument),
		notebooks: make(map[string]*Notebook),
		cellOwner: make(map[string]string),
		listeners: make(map[int]Listener),
	}
}

// Root returns the workspace root directory.
func (w *Workspace) Root() string { return w.root }

// Subscribe registers l and returns a function that removes it.
func (w *Workspace) Subscribe(l Listener) func() {
	w.listenersMu.Lock()
	id := w.nextID
	w.nextID++
	w.listeners[id] = l
	w.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			w.listenersMu.Lock()
			delete(w.listeners, id)
			w.listenersMu.Unlock()
		})
	}
}

func (w *Workspace) emit(ev Event) {
	w.listenersMu.Lock()
	ids := make([]int, 0, len(w.listeners))
	for id := range w.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	ls := make([]Listener, 0, len(ids))
	for _, id := range ids {
		ls = append(ls, w.listeners[id])
	}
	w.listenersMu.Unlock()

	for _, l := range ls {
		l(ev)
	}
}

// Open adds a document. Opening an already-open URI replaces its content
// and is reported as a change.
func (w *Workspace) Open(uri, languageID, text string) *TextDocument {
	w.mu.Lock()
	prev, exists := w.docs[uri]
	var doc *TextDocument
	if exists {
		doc = prev.WithText(text, prev.Version()+1)
	} else {
		doc = New(uri, languageID, 1, text)
		w.order = append(w.order, uri)
	}
	w.docs[uri] = doc
	w.mu.Unlock()

	if exists {
		logging.WorkspaceDebug("reopened %s as change (v%d)", uri, doc.Version())
		w.emit(Event{Type: Changed, Document: doc, Previous: prev})
	} else {
		logging.WorkspaceDebug("opened %s (%s)", uri, languageID)
		w.emit(Event{Type: Opened, Document: doc})
	}
	return doc
}

// Change replaces the content of an open document.
func (w *Workspace) Change(uri, text string) (*TextDocument, error) {
	w.mu.Lock()
	prev, ok := w.docs[uri]
	if !ok {
		w.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, uri)
	}
	doc := prev.WithText(text, prev.Version()+1)
	w.docs[uri] = doc
	w.replaceCell(doc)
	w.mu.Unlock()

	w.emit(Event{Type: Changed, Document: doc, Previous: prev})
	return doc, nil
}

// Close removes a document. Closing an unknown URI is a no-op.
func (w *Workspace) Close(uri string) {
	w.mu.Lock()
	doc, ok := w.docs[uri]
	if !ok {
		w.mu.Unlock()
		return
	}
	delete(w.docs, uri)
	for i, u := range w.order {
		if u == uri {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
	w.mu.Unlock()

	logging.WorkspaceDebug("closed %s", uri)
	w.emit(Event{Type: Closed, Document: doc, Previous: doc})
}

// OpenNotebook registers a notebook and opens each of its cells.
func (w *Workspace) OpenNotebook(notebookURI string, languageID string, cells []string) *Notebook {
	nb := &Notebook{URI: notebookURI}
	for i, text := range cells {
		cellURI := fmt.Sprintf("%s#cell%d", notebookURI, i)
		doc := w.Open(cellURI, languageID, text)
		nb.Cells = append(nb.Cells, Cell{Index: i, Document: doc})
	}
	w.mu.Lock()
	w.notebooks[notebookURI] = nb
	for _, c := range nb.Cells {
		w.cellOwner[c.Document.URI()] = notebookURI
	}
	w.mu.Unlock()
	return nb
}

// replaceCell keeps notebook cells pointing at the latest snapshot.
// Caller holds w.mu.
func (w *Workspace) replaceCell(doc *TextDocument) {
	nbURI, ok := w.cellOwner[doc.URI()]
	if !ok {
		return
	}
	old := w.notebooks[nbURI]
	nb := &Notebook{URI: old.URI, Cells: make([]Cell, len(old.Cells))}
	copy(nb.Cells, old.Cells)
	for i, c := range nb.Cells {
		if c.Document.URI() == doc.URI() {
			nb.Cells[i].Document = doc
		}
	}
	w.notebooks[nbURI] = nb
}

// Get returns the current snapshot of uri.
func (w *Workspace) Get(ctx context.Context, uri string) (*TextDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	doc, ok := w.docs[uri]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, uri)
	}
	return doc, nil
}

// TextDocuments returns all open documents in open order.
func (w *Workspace) TextDocuments() []*TextDocument {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*TextDocument, 0, len(w.order))
	for _, uri := range w.order {
		out = append(out, w.docs[uri])
	}
	return out
}

// FindNotebook returns the notebook containing doc, or nil.
func (w *Workspace) FindNotebook(doc *TextDocument) *Notebook {
	if doc == nil {
		return nil
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	nbURI, ok := w.cellOwner[doc.URI()]
	if !ok {
		return nil
	}
	return w.notebooks[nbURI]
}
