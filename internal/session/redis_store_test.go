package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"documedix/api/internal/document"
)

func setupTestRedis(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	store, err := NewRedisStore(context.Background(), "redis://"+s.Addr(), ttl)
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, s
}

func sampleDocument() document.Document {
	return document.Document{
		Category: 4,
		Sections: []document.Section{{ID: "s1", Title: "특성", Items: []document.Item{
			document.Content{HTML: "<p>IPX4</p>"},
			document.File{Name: "a.png", Preview: "data:image/png;base64,AQI=", Source: &document.Blob{ID: "b1", Name: "a.png", ContentType: "image/png", Data: []byte{1, 2}}},
			document.File{Name: "b.png", Ref: &document.AttachmentRef{ID: "3", URL: "http://f/b.png"}},
		}}},
		Chat: []document.ChatMessage{{Sender: document.SenderUser, Text: "q"}},
		Meta: document.Meta{DocType: 1, ReportType: 2, DocGrade: 3, ID: "77"},
	}
}

func TestNewRedisStore(t *testing.T) {
	store, _ := setupTestRedis(t, 0)
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
	if store.ttl != defaultTTL {
		t.Errorf("ttl = %v, want default %v", store.ttl, defaultTTL)
	}
}

func TestNewRedisStoreRejectsBadURL(t *testing.T) {
	if _, err := NewRedisStore(context.Background(), "://nope", time.Minute); err == nil {
		t.Error("expected error for malformed url")
	}
}

func TestSaveAndLoadDraft(t *testing.T) {
	store, mr := setupTestRedis(t, time.Hour)
	ctx := context.Background()

	draft, err := NewDraft("sess-1", sampleDocument(), time.Date(2025, 11, 5, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("NewDraft: %v", err)
	}
	if err := store.SaveDraft(ctx, draft); err != nil {
		t.Fatalf("SaveDraft failed: %v", err)
	}
	if !mr.Exists(keyPrefix + "sess-1") {
		t.Fatal("draft key not written")
	}
	if ttl := mr.TTL(keyPrefix + "sess-1"); ttl != time.Hour {
		t.Errorf("ttl = %v, want 1h", ttl)
	}

	loaded, err := store.LoadDraft(ctx, "sess-1")
	if err != nil {
		t.Fatalf("LoadDraft failed: %v", err)
	}
	doc, err := loaded.Document()
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	want := sampleDocument()
	if doc.Category != want.Category || doc.Meta != want.Meta || len(doc.Chat) != 1 {
		t.Errorf("restored = %+v", doc)
	}
	f, ok := doc.Sections[0].Items[1].(document.File)
	if !ok || f.Source == nil || f.Source.ID != "b1" || len(f.Source.Data) != 2 || f.Preview == "" {
		t.Errorf("local file not restored: %+v", doc.Sections[0].Items[1])
	}
	if f := doc.Sections[0].Items[2].(document.File); f.State() != document.StateHydrated {
		t.Errorf("hydrated file state = %v", f.State())
	}
}

func TestLoadExpiredDraft(t *testing.T) {
	store, mr := setupTestRedis(t, time.Minute)
	ctx := context.Background()

	draft, _ := NewDraft("sess-2", sampleDocument(), time.Now())
	if err := store.SaveDraft(ctx, draft); err != nil {
		t.Fatalf("SaveDraft failed: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if _, err := store.LoadDraft(ctx, "sess-2"); !errors.Is(err, ErrDraftNotFound) {
		t.Errorf("LoadDraft() = %v, want ErrDraftNotFound", err)
	}
}

func TestDeleteDraft(t *testing.T) {
	store, _ := setupTestRedis(t, time.Hour)
	ctx := context.Background()

	draft, _ := NewDraft("sess-3", sampleDocument(), time.Now())
	if err := store.SaveDraft(ctx, draft); err != nil {
		t.Fatalf("SaveDraft failed: %v", err)
	}
	if err := store.DeleteDraft(ctx, "sess-3"); err != nil {
		t.Fatalf("DeleteDraft failed: %v", err)
	}
	if _, err := store.LoadDraft(ctx, "sess-3"); !errors.Is(err, ErrDraftNotFound) {
		t.Errorf("LoadDraft() after delete = %v, want ErrDraftNotFound", err)
	}
}

func TestSaveDraftRequiresSessionID(t *testing.T) {
	store, _ := setupTestRedis(t, time.Hour)
	if err := store.SaveDraft(context.Background(), Draft{}); err == nil {
		t.Error("SaveDraft without session id should fail")
	}
}

func TestDraftUnknownCategoryFallsBack(t *testing.T) {
	doc, err := Draft{Category: 99}.Document()
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	if doc.Category != document.DefaultCategory || doc.Chat == nil {
		t.Errorf("Document() = %+v", doc)
	}
}
