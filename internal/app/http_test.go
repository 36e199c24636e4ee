package app

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"documedix/api/internal/assist"
	"documedix/api/internal/document"
	"documedix/api/internal/payload"
)

func createSession(t *testing.T, env *testEnv) SessionView {
	t.Helper()
	rr := env.do(t, http.MethodPost, "/api/sessions", nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create session: %d %s", rr.Code, rr.Body.String())
	}
	return decodeView(t, rr)
}

func uploadFile(t *testing.T, env *testEnv, path, name string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	return rr
}

func fileValue(t *testing.T, it payload.WireItem) payload.WireFile {
	t.Helper()
	if it.Type != "file" {
		t.Fatalf("expected file item, got %q", it.Type)
	}
	var wf payload.WireFile
	if err := json.Unmarshal(it.Value, &wf); err != nil {
		t.Fatalf("decode file item: %v", err)
	}
	return wf
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodGet, "/api/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected a request id header")
	}
}

func TestReadyEndpoint(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodGet, "/api/ready", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	env.redis.Close()
	rr = env.do(t, http.MethodGet, "/api/ready", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with redis down, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "not_ready" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestCategoriesEndpoint(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodGet, "/api/categories", nil)
	var body struct {
		Categories []document.Category `json:"categories"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Categories) != len(document.Categories()) {
		t.Fatalf("expected %d categories, got %d", len(document.Categories()), len(body.Categories))
	}
}

func TestUnknownSessionAndRoute(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodGet, "/api/sessions/nope", nil)
	if rr.Code != http.StatusNotFound || decodeError(t, rr) != "SESSION_NOT_FOUND" {
		t.Fatalf("expected SESSION_NOT_FOUND, got %d %s", rr.Code, rr.Body.String())
	}
	rr = env.do(t, http.MethodGet, "/api/nothing", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestEditingRoutes(t *testing.T) {
	env := newTestEnv(t)
	view := createSession(t, env)
	base := "/api/sessions/" + view.SessionID

	rr := env.do(t, http.MethodPut, base+"/category", map[string]any{"category": 4})
	if rr.Code != http.StatusOK {
		t.Fatalf("category: %d %s", rr.Code, rr.Body.String())
	}
	view = decodeView(t, rr)
	if view.Category != 4 || len(view.Sections) != 1 {
		t.Fatalf("unexpected view after category switch: %+v", view)
	}
	first := view.Sections[0].ID

	view = decodeView(t, env.do(t, http.MethodPost, base+"/sections", nil))
	if len(view.Sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(view.Sections))
	}
	second := view.Sections[1].ID

	view = decodeView(t, env.do(t, http.MethodPut, base+"/sections/"+second+"/title", map[string]any{"title": "시험 결과"}))
	if view.Sections[1].Title != "시험 결과" {
		t.Fatalf("title not set: %+v", view.Sections[1])
	}

	view = decodeView(t, env.do(t, http.MethodPut, base+"/sections/"+second+"/items/0", map[string]any{"html": "<p>합격</p>"}))
	var html string
	_ = json.Unmarshal(view.Sections[1].Items[0].Value, &html)
	if html != "<p>합격</p>" {
		t.Fatalf("content not set: %q", html)
	}

	rr = env.do(t, http.MethodPost, base+"/reorder", map[string]any{
		"type":        "SECTION",
		"source":      map[string]any{"droppableId": "sections", "index": 1},
		"destination": map[string]any{"droppableId": "sections", "index": 0},
	})
	view = decodeView(t, rr)
	if view.Sections[0].ID != second || view.Sections[1].ID != first {
		t.Fatalf("sections not reordered: %s %s", view.Sections[0].ID, view.Sections[1].ID)
	}

	rr = env.do(t, http.MethodPost, base+"/sections/"+first+"/items", map[string]any{"kind": "video"})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unknown kind, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodDelete, base+"/sections/"+second+"/items/5", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing item, got %d", rr.Code)
	}

	view = decodeView(t, env.do(t, http.MethodDelete, base+"/sections/"+first, nil))
	if len(view.Sections) != 1 || view.Sections[0].ID != second {
		t.Fatalf("section not removed: %+v", view.Sections)
	}

	rr = env.do(t, http.MethodPut, base+"/meta", map[string]any{"docType": 2, "reportType": 1, "docGrade": 0})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for zero grade, got %d", rr.Code)
	}
	view = decodeView(t, env.do(t, http.MethodPut, base+"/meta", map[string]any{"docType": 2, "reportType": 3, "docGrade": 4}))
	if view.DocType != 2 || view.ReportType != 3 || view.DocGrade != 4 {
		t.Fatalf("meta not set: %+v", view)
	}
}

func TestSaveAndLoadThroughBackend(t *testing.T) {
	env := newTestEnv(t)
	view := createSession(t, env)
	base := "/api/sessions/" + view.SessionID
	sid := view.Sections[0].ID

	env.do(t, http.MethodPost, base+"/sections/"+sid+"/items", map[string]any{"kind": "file"})
	rr := uploadFile(t, env, base+"/sections/"+sid+"/items/1/file", "scan.png", pngBytes(t, 40, 20))
	if rr.Code != http.StatusOK {
		t.Fatalf("upload: %d %s", rr.Code, rr.Body.String())
	}
	if wf := fileValue(t, decodeView(t, rr).Sections[0].Items[1]); wf.State != "local" || wf.BlobID == "" {
		t.Fatalf("expected local file, got %+v", wf)
	}
	env.service.Wait()

	view = decodeView(t, env.do(t, http.MethodGet, base, nil))
	if wf := fileValue(t, view.Sections[0].Items[1]); !strings.HasPrefix(wf.Preview, "data:image/png;base64,") {
		t.Fatalf("expected a preview, got %+v", wf)
	}

	rr = env.do(t, http.MethodPost, base+"/save", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("save: %d %s", rr.Code, rr.Body.String())
	}
	var saved struct {
		DocumentID string      `json:"documentId"`
		Uploaded   int         `json:"uploaded"`
		Session    SessionView `json:"session"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &saved); err != nil {
		t.Fatal(err)
	}
	if saved.DocumentID != "1" || saved.Uploaded != 1 {
		t.Fatalf("unexpected save outcome %+v", saved)
	}
	wf := fileValue(t, saved.Session.Sections[0].Items[1])
	if wf.BfNo != "1" || wf.BlobID != "" || wf.State != "hydrated" {
		t.Fatalf("upload result not applied: %+v", wf)
	}

	// A second save updates the same document and uploads nothing.
	rr = env.do(t, http.MethodPost, base+"/save", nil)
	if err := json.Unmarshal(rr.Body.Bytes(), &saved); err != nil {
		t.Fatal(err)
	}
	if saved.DocumentID != "1" || saved.Uploaded != 0 || len(env.backend.docs) != 1 {
		t.Fatalf("expected update in place, got %+v with %d docs", saved, len(env.backend.docs))
	}

	other := createSession(t, env)
	rr = env.do(t, http.MethodPost, "/api/sessions/"+other.SessionID+"/load", map[string]any{"wrId": "1"})
	if rr.Code != http.StatusOK {
		t.Fatalf("load: %d %s", rr.Code, rr.Body.String())
	}
	var loaded struct {
		Hydrated bool        `json:"hydrated"`
		Session  SessionView `json:"session"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &loaded); err != nil {
		t.Fatal(err)
	}
	if !loaded.Hydrated || loaded.Session.DocumentID != "1" {
		t.Fatalf("unexpected load outcome %+v", loaded)
	}
	wf = fileValue(t, loaded.Session.Sections[0].Items[1])
	if wf.BfWidth != 40 || wf.BfHeight != 20 || !strings.HasPrefix(wf.FileURL.String(), "http://files.test/documents/1/") {
		t.Fatalf("file not hydrated: %+v", wf)
	}

	rr = env.do(t, http.MethodGet, "/api/documents", nil)
	var list struct {
		Documents []payload.Summary `json:"documents"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Documents) != 1 || list.Documents[0].ID != "1" {
		t.Fatalf("unexpected list %+v", list.Documents)
	}
}

func TestLoadRejectsBadID(t *testing.T) {
	env := newTestEnv(t)
	view := createSession(t, env)
	rr := env.do(t, http.MethodPost, "/api/sessions/"+view.SessionID+"/load", map[string]any{"wrId": 0})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestLoadMissingDocumentIsBackendError(t *testing.T) {
	env := newTestEnv(t)
	view := createSession(t, env)
	rr := env.do(t, http.MethodPost, "/api/sessions/"+view.SessionID+"/load", map[string]any{"wrId": 99})
	if rr.Code != http.StatusBadGateway || decodeError(t, rr) != "BACKEND_REJECTED" {
		t.Fatalf("expected BACKEND_REJECTED, got %d %s", rr.Code, rr.Body.String())
	}
	view = decodeView(t, env.do(t, http.MethodGet, "/api/sessions/"+view.SessionID, nil))
	if len(view.Loading) != 0 || view.DocumentID != "" {
		t.Fatalf("failed load left state behind: %+v", view)
	}
}

func TestChatRoute(t *testing.T) {
	env := newTestEnv(t)
	view := createSession(t, env)
	path := "/api/sessions/" + view.SessionID + "/chat"

	view = decodeView(t, env.do(t, http.MethodPost, path, map[string]any{"message": "안녕"}))
	if len(view.Chat) != 2 || view.Chat[0].Sender != document.SenderUser || view.Chat[1].Sender != document.SenderAI {
		t.Fatalf("unexpected transcript %+v", view.Chat)
	}
	if !strings.Contains(view.Chat[1].Text, "<strong>안녕하세요</strong>") {
		t.Fatalf("reply not rendered: %q", view.Chat[1].Text)
	}

	env.assistant.status.Store(http.StatusBadGateway)
	view = decodeView(t, env.do(t, http.MethodPost, path, map[string]any{"message": "다시"}))
	if got := view.Chat[len(view.Chat)-1].Text; got != assist.ChatUnavailableReply {
		t.Fatalf("expected apology, got %q", got)
	}

	rr := env.do(t, http.MethodPost, path, map[string]any{"message": "  "})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for empty message, got %d", rr.Code)
	}
}

func TestDraftRoute(t *testing.T) {
	env := newTestEnv(t)
	view := createSession(t, env)
	base := "/api/sessions/" + view.SessionID
	sid := view.Sections[0].ID

	rr := env.do(t, http.MethodPost, base+"/draft", map[string]any{"grade": 2})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 without item code, got %d", rr.Code)
	}
	if env.assistant.calls.Load() != 0 {
		t.Fatal("validation failure must not reach the assistant")
	}

	env.do(t, http.MethodPut, base+"/sections/"+sid+"/items/0", map[string]any{"html": "<p>혈압계</p>"})
	view = decodeView(t, env.do(t, http.MethodPost, base+"/draft", map[string]any{"grade": 2, "itemCode": "A12345"}))
	last := view.Sections[len(view.Sections)-1]
	if last.Title != assist.DraftSectionTitle {
		t.Fatalf("expected draft section, got %q", last.Title)
	}
	var html string
	_ = json.Unmarshal(last.Items[0].Value, &html)
	if !strings.Contains(html, "<h2>초안</h2>") {
		t.Fatalf("draft not rendered: %q", html)
	}
}

func TestExportRoute(t *testing.T) {
	env := newTestEnv(t)
	view := createSession(t, env)
	base := "/api/sessions/" + view.SessionID

	rr := env.do(t, http.MethodPost, base+"/export", map[string]any{"format": "html"})
	if rr.Code != http.StatusOK {
		t.Fatalf("export: %d %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "filename*=UTF-8''") || !strings.HasSuffix(cd, ".html") {
		t.Fatalf("unexpected disposition %q", cd)
	}

	rr = env.do(t, http.MethodPost, base+"/export", map[string]any{"format": "odt"})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for odt, got %d", rr.Code)
	}
}

func TestAsciiFilename(t *testing.T) {
	cases := map[string]string{
		"docuApp_03.docx":   "docuApp_03.docx",
		"사용목적.docx":         "document.docx",
		`a"b.html`:          "ab.html",
		"report 1 (v2).pdf": "report 1 (v2).pdf",
	}
	for in, want := range cases {
		if got := asciiFilename(in); got != want {
			t.Errorf("asciiFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
