// Package editor owns the live document of one editing session. Every
// change is a pure transform applied to the latest committed document
// under a lock, so a slow operation can never write back a stale copy.
package editor

import (
	"errors"
	"log/slog"
	"sort"
	"sync"

	"documedix/api/internal/attachment"
	"documedix/api/internal/document"
)

var (
	ErrBusy          = errors.New("operation already in progress")
	ErrStaleResponse = errors.New("response belongs to a superseded document")
)

// Flag names a long-running operation. Each flag gates only itself.
type Flag string

const (
	FlagSave  Flag = "save"
	FlagLoad  Flag = "load"
	FlagList  Flag = "list"
	FlagDraft Flag = "draft"
	FlagChat  Flag = "chat"
)

// PreviewFunc computes the preview shown for a picked file.
type PreviewFunc func(*document.Blob) (string, error)

type Editor struct {
	mu      sync.Mutex
	doc     document.Document
	version uint64
	// generation changes whenever the document is swapped for another one
	// (new document, committed load). Responses started under an older
	// generation are dropped.
	generation uint64
	loadSeq    uint64
	flags      map[Flag]bool

	preview PreviewFunc
	logger  *slog.Logger
	wg      sync.WaitGroup
}

func New(doc document.Document, logger *slog.Logger) *Editor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Editor{
		doc:     doc,
		flags:   map[Flag]bool{},
		preview: attachment.Preview,
		logger:  logger,
	}
}

// SetPreviewFunc replaces the preview computation. Used by tests.
func (e *Editor) SetPreviewFunc(fn PreviewFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.preview = fn
}

// Snapshot returns the committed document. The value never changes
// afterwards.
func (e *Editor) Snapshot() document.Document {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.doc
}

// Version counts commits. It lets callers skip work when nothing changed.
func (e *Editor) Version() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.version
}

// Update applies fn to the latest document and commits the result. If fn
// fails nothing is committed.
func (e *Editor) Update(fn func(document.Document) (document.Document, error)) (document.Document, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	next, err := fn(e.doc)
	if err != nil {
		return e.doc, err
	}
	e.commitLocked(next)
	return next, nil
}

func (e *Editor) commitLocked(doc document.Document) {
	e.doc = doc
	e.version++
}

// Replace swaps in an unrelated document, such as a fresh one.
// Outstanding save and load responses become stale.
func (e *Editor) Replace(doc document.Document) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.generation++
	e.commitLocked(doc)
}

// Begin sets flag and returns the function that clears it. It fails with
// ErrBusy while the same flag is set.
func (e *Editor) Begin(flag Flag) (end func(), err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.flags[flag] {
		return nil, ErrBusy
	}
	e.flags[flag] = true
	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.flags, flag)
			e.mu.Unlock()
		})
	}, nil
}

// Flags lists the operations in progress, sorted.
func (e *Editor) Flags() []Flag {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Flag, 0, len(e.flags))
	for f := range e.flags {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SaveTicket identifies the document a save was started for.
type SaveTicket struct {
	generation uint64
	documentID string
}

// BeginSave returns the document to save and a ticket for CommitSave.
func (e *Editor) BeginSave() (document.Document, SaveTicket) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.doc, SaveTicket{generation: e.generation, documentID: e.doc.Meta.ID}
}

// CommitSave applies fn to the latest document if it is still the one the
// save was started for.
func (e *Editor) CommitSave(t SaveTicket, fn func(document.Document) (document.Document, error)) (document.Document, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t.generation != e.generation || t.documentID != e.doc.Meta.ID {
		e.logger.Warn("dropping stale save response", "started_for", t.documentID, "current", e.doc.Meta.ID)
		return e.doc, ErrStaleResponse
	}
	next, err := fn(e.doc)
	if err != nil {
		return e.doc, err
	}
	e.commitLocked(next)
	return next, nil
}

// LoadTicket orders concurrent loads; only the newest may commit.
type LoadTicket struct {
	seq        uint64
	generation uint64
}

func (e *Editor) BeginLoad() LoadTicket {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loadSeq++
	return LoadTicket{seq: e.loadSeq, generation: e.generation}
}

// CommitLoad installs a loaded document unless a newer load started or the
// document was replaced in the meantime.
func (e *Editor) CommitLoad(t LoadTicket, doc document.Document) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t.seq != e.loadSeq || t.generation != e.generation {
		e.logger.Warn("dropping stale load response", "document_id", doc.Meta.ID)
		return ErrStaleResponse
	}
	e.generation++
	e.commitLocked(doc)
	return nil
}

// CommitForDocument applies fn only while documentID is still the current
// document. Hydration uses it after a load.
func (e *Editor) CommitForDocument(documentID string, fn func(document.Document) (document.Document, error)) (document.Document, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.doc.Meta.ID != documentID {
		e.logger.Warn("dropping stale response", "document_id", documentID, "current", e.doc.Meta.ID)
		return e.doc, ErrStaleResponse
	}
	next, err := fn(e.doc)
	if err != nil {
		return e.doc, err
	}
	e.commitLocked(next)
	return next, nil
}

// AttachFile puts blob into the file item at index and commits at once. The
// preview is computed in the background and applied to whichever item holds
// the blob by then; the returned channel closes when that is done.
func (e *Editor) AttachFile(sectionID string, index int, blob *document.Blob) (document.Document, <-chan struct{}, error) {
	doc, err := e.Update(func(d document.Document) (document.Document, error) {
		return d.AttachFile(sectionID, index, blob)
	})
	if err != nil {
		return doc, nil, err
	}

	e.mu.Lock()
	preview := e.preview
	e.mu.Unlock()

	done := make(chan struct{})
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer close(done)
		uri, err := preview(blob)
		if err != nil {
			e.logger.Info("no preview for attachment", "name", blob.Name, "err", err)
			return
		}
		_, _ = e.Update(func(d document.Document) (document.Document, error) {
			next, ok := d.SetPreview(blob.ID, uri)
			if !ok {
				return d, errors.New("attachment removed before preview was ready")
			}
			return next, nil
		})
	}()
	return doc, done, nil
}

// Wait blocks until background preview work has finished.
func (e *Editor) Wait() {
	e.wg.Wait()
}
