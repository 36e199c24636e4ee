package docapi

import (
	"context"
	"errors"
	"sync"
	"time"

	"documedix/api/internal/store"
)

type memoryDocs struct {
	mu     sync.Mutex
	docs   map[int64]store.DocumentRecord
	files  []store.FileRecord
	nextID int64
	failOn string
}

func newMemoryDocs() *memoryDocs {
	return &memoryDocs{docs: map[int64]store.DocumentRecord{}}
}

var errStorage = errors.New("storage down")

// SaveDocument reserves an id, runs attach unlocked and records everything
// only when attach succeeds.
func (m *memoryDocs) SaveDocument(ctx context.Context, doc store.DocumentRecord, attach store.AttachFunc) (store.DocumentRecord, []store.FileRecord, error) {
	m.mu.Lock()
	if m.failOn == "insert" {
		m.mu.Unlock()
		return store.DocumentRecord{}, nil, errStorage
	}
	if doc.ID == 0 {
		m.nextID++
		doc.ID = m.nextID
	} else if _, ok := m.docs[doc.ID]; !ok {
		m.mu.Unlock()
		return store.DocumentRecord{}, nil, store.ErrNotFound
	}
	m.mu.Unlock()

	var files []store.FileRecord
	if attach != nil {
		var err error
		if files, err = attach(ctx, doc.ID); err != nil {
			return store.DocumentRecord{}, nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	doc.UpdatedAt = time.Date(2025, 11, 5, 9, 30, 0, 0, time.UTC)
	m.docs[doc.ID] = doc
	for i := range files {
		files[i].DocumentID = doc.ID
		files[i].ID = int64(len(m.files) + 1)
		m.files = append(m.files, files[i])
	}
	return doc, files, nil
}

func (m *memoryDocs) GetDocument(_ context.Context, id int64) (store.DocumentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return store.DocumentRecord{}, store.ErrNotFound
	}
	return doc, nil
}

func (m *memoryDocs) ListDocuments(context.Context) ([]store.DocumentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.DocumentRecord, 0, len(m.docs))
	for id := m.nextID; id > 0; id-- {
		if doc, ok := m.docs[id]; ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (m *memoryDocs) ListFiles(_ context.Context, documentID int64) ([]store.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.FileRecord
	for _, f := range m.files {
		if f.DocumentID == documentID {
			out = append(out, f)
		}
	}
	return out, nil
}

type memoryFiles struct {
	mu      sync.Mutex
	objects map[string][]byte
	// failAfter makes Put fail once that many objects are stored; 0 never fails.
	failAfter int
}

func newMemoryFiles() *memoryFiles {
	return &memoryFiles{objects: map[string][]byte{}}
}

func (m *memoryFiles) Put(_ context.Context, key, _ string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAfter > 0 && len(m.objects) >= m.failAfter {
		return errStorage
	}
	m.objects[key] = append([]byte(nil), data...)
	return nil
}

func (m *memoryFiles) URL(_ context.Context, key string) (string, error) {
	return "http://files.test/" + key, nil
}
