package app

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"documedix/api/internal/assist"
	"documedix/api/internal/config"
	"documedix/api/internal/docapi"
	"documedix/api/internal/export"
	"documedix/api/internal/session"
	"documedix/api/internal/store"
)

// memoryBackend keeps the reference backend's rows in memory.
type memoryBackend struct {
	mu     sync.Mutex
	docs   map[int64]store.DocumentRecord
	files  []store.FileRecord
	nextID int64
}

// SaveDocument reserves an id, runs attach unlocked and records everything
// only when attach succeeds.
func (m *memoryBackend) SaveDocument(ctx context.Context, doc store.DocumentRecord, attach store.AttachFunc) (store.DocumentRecord, []store.FileRecord, error) {
	m.mu.Lock()
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

func (m *memoryBackend) GetDocument(_ context.Context, id int64) (store.DocumentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return store.DocumentRecord{}, store.ErrNotFound
	}
	return doc, nil
}

func (m *memoryBackend) ListDocuments(context.Context) ([]store.DocumentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.DocumentRecord
	for id := m.nextID; id > 0; id-- {
		if doc, ok := m.docs[id]; ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (m *memoryBackend) ListFiles(_ context.Context, documentID int64) ([]store.FileRecord, error) {
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

type memoryObjects struct{}

func (memoryObjects) Put(context.Context, string, string, []byte) error { return nil }

func (memoryObjects) URL(_ context.Context, key string) (string, error) {
	return "http://files.test/" + key, nil
}

// fakeAssistant answers /api/chat and /api/generate-draft.
type fakeAssistant struct {
	calls  atomic.Int32
	status atomic.Int32
	reply  map[string]any
}

func (f *fakeAssistant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.calls.Add(1)
	if status := int(f.status.Load()); status != 0 && status != http.StatusOK {
		w.WriteHeader(status)
		_, _ = w.Write([]byte("upstream exploded"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(f.reply)
}

type testEnv struct {
	service   *Service
	handler   http.Handler
	backend   *memoryBackend
	assistant *fakeAssistant
	redis     *miniredis.Miniredis
	drafts    *session.RedisStore
	cfg       config.Config
	docapiURL string
	assistURL string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	backend := &memoryBackend{docs: map[int64]store.DocumentRecord{}}
	docSrv := httptest.NewServer(docapi.NewServer(backend, memoryObjects{}, nil))
	t.Cleanup(docSrv.Close)

	fa := &fakeAssistant{reply: map[string]any{"success": true, "reply": "**안녕하세요**", "draft": "## 초안\n\n내용"}}
	assistSrv := httptest.NewServer(fa)
	t.Cleanup(assistSrv.Close)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	drafts := session.NewRedisStoreWithClient(client, time.Hour)
	t.Cleanup(func() { drafts.Close() })

	env := &testEnv{
		backend:   backend,
		assistant: fa,
		redis:     mr,
		drafts:    drafts,
		cfg:       config.Defaults(),
		docapiURL: docSrv.URL,
		assistURL: assistSrv.URL,
	}
	env.service = env.newService()
	env.handler = NewHTTPServer(env.service, "*", nil).Handler()
	return env
}

// newService builds another service over the same collaborators, as a
// restarted process would.
func (env *testEnv) newService() *Service {
	return NewService(env.cfg, Deps{
		Backend:  docapi.NewClient(env.docapiURL, 5*time.Second),
		Assist:   assist.NewClient(env.assistURL, 5*time.Second),
		Drafts:   env.drafts,
		Exporter: export.NewService(export.Options{}, nil),
	}, nil)
}

func (env *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	return rr
}

func decodeView(t *testing.T, rr *httptest.ResponseRecorder) SessionView {
	t.Helper()
	var body struct {
		Session SessionView `json:"session"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode session view: %v (%s)", err, rr.Body.String())
	}
	return body.Session
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error: %v (%s)", err, rr.Body.String())
	}
	return body.Code
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}
