package payload

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"documedix/api/internal/attachment"
	"documedix/api/internal/docapi"
	"documedix/api/internal/document"
)

func sampleDocument() document.Document {
	return document.Document{
		Category: 3,
		Sections: []document.Section{
			{ID: "s1", Title: "과제 개요", Items: []document.Item{
				document.Content{HTML: "<p>x</p>"},
				document.File{Name: "chart.png", Preview: "data:image/png;base64,AAAA", Source: &document.Blob{ID: "b1", Name: "chart.png", ContentType: "image/png", Data: []byte{1, 2, 3}}},
			}},
			{ID: "s2", Title: "", Items: []document.Item{
				document.File{Name: "old.png", Ref: &document.AttachmentRef{ID: "7", StoredFilename: "old_7.png", URL: "http://f/old.png"}},
				document.Content{HTML: "<table><tr><td>1</td></tr></table>"},
			}},
		},
		Chat: []document.ChatMessage{{Sender: document.SenderUser, Text: "안녕"}, {Sender: document.SenderAI, Text: "네"}},
		Meta: document.Meta{DocType: 2, ReportType: 1, DocGrade: 3, ID: "41"},
	}
}

func TestDocContentShape(t *testing.T) {
	p, uploads, err := ToPayload(sampleDocument())
	if err != nil {
		t.Fatalf("ToPayload: %v", err)
	}
	if len(uploads) != 1 || uploads[0].Blob.ID != "b1" {
		t.Fatalf("uploads = %+v", uploads)
	}
	content, err := p.DocContent()
	if err != nil {
		t.Fatalf("DocContent: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		t.Fatalf("doc_content is not JSON: %v", err)
	}
	for _, key := range []string{"activeMenu", "menuTitle", "sections", "chatMessages"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("doc_content missing %q", key)
		}
	}
	if raw["activeMenu"] != float64(3) || raw["menuTitle"] != document.CategoryTitle(3) {
		t.Errorf("activeMenu/menuTitle = %v/%v", raw["activeMenu"], raw["menuTitle"])
	}
	for _, forbidden := range []string{"base64", "blobId", `"data"`, "preview"} {
		if strings.Contains(content, forbidden) {
			t.Errorf("doc_content leaks %s: %s", forbidden, content)
		}
	}
	if !strings.Contains(content, `"bf_no":null`) {
		t.Errorf("local file should carry a null bf_no: %s", content)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	doc := sampleDocument()
	p, uploads, err := ToPayload(doc)
	if err != nil {
		t.Fatalf("ToPayload: %v", err)
	}
	req, err := p.SaveRequest("", uploads)
	if err != nil {
		t.Fatalf("SaveRequest: %v", err)
	}
	if req.PageType != DefaultPageType || req.WRID != "41" || len(req.Files) != 1 || req.Files[0].Name != "chart.png" {
		t.Fatalf("SaveRequest() = %+v", req)
	}

	// The backend echoes the body untouched.
	rec := docapi.Document{WRID: "41", DocContent: req.DocContent, DocType: 2, ReportType: 1, DocGrade: 3}
	got, err := FromRecord(rec)
	if err != nil {
		t.Fatalf("FromRecord: %v", err)
	}

	if got.Category != doc.Category || got.Meta != doc.Meta {
		t.Errorf("category/meta = %d/%+v, want %d/%+v", got.Category, got.Meta, doc.Category, doc.Meta)
	}
	if !reflect.DeepEqual(got.Chat, doc.Chat) {
		t.Errorf("chat = %+v", got.Chat)
	}
	if len(got.Sections) != len(doc.Sections) {
		t.Fatalf("sections = %d, want %d", len(got.Sections), len(doc.Sections))
	}
	for i, s := range doc.Sections {
		g := got.Sections[i]
		if g.ID != s.ID || g.Title != s.Title || len(g.Items) != len(s.Items) {
			t.Fatalf("section %d = %+v, want %+v", i, g, s)
		}
		for j, it := range s.Items {
			switch want := it.(type) {
			case document.Content:
				if c, ok := g.Items[j].(document.Content); !ok || c.HTML != want.HTML {
					t.Errorf("item %d/%d = %#v, want %#v", i, j, g.Items[j], want)
				}
			case document.File:
				f, ok := g.Items[j].(document.File)
				if !ok || f.Name != want.Name {
					t.Errorf("item %d/%d = %#v, want file %q", i, j, g.Items[j], want.Name)
				}
				if f.Source != nil || f.Preview != "" {
					t.Errorf("item %d/%d kept local state after round trip", i, j)
				}
			}
		}
	}
	persisted := got.Sections[1].Items[0].(document.File)
	if persisted.Ref == nil || persisted.Ref.ID != "7" || persisted.Ref.URL != "http://f/old.png" {
		t.Errorf("persisted ref = %+v", persisted.Ref)
	}
}

func TestFromRecordDefaultsAndLegacyItems(t *testing.T) {
	rec := docapi.Document{
		WRID: "5",
		DocContent: `{"sections":[{"id":"a","title":"t","items":[
			{"type":"files","value":[{"name":"x"}]},
			{"type":"content","value":"<p>k</p>"},
			{"type":"file","value":{"name":"n","bf_no":12,"bf_file":"n_12.png","file_url":null}}
		]}]}`,
	}
	doc, err := FromRecord(rec)
	if err != nil {
		t.Fatalf("FromRecord: %v", err)
	}
	if doc.Category != document.DefaultCategory {
		t.Errorf("Category = %d, want default", doc.Category)
	}
	if doc.Meta != (document.Meta{DocType: 1, ReportType: 1, DocGrade: 1, ID: "5"}) {
		t.Errorf("Meta = %+v", doc.Meta)
	}
	if doc.Chat == nil {
		t.Error("Chat should be empty, not nil")
	}
	items := doc.Sections[0].Items
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2 (legacy dropped)", len(items))
	}
	f := items[1].(document.File)
	if f.Ref == nil || f.Ref.ID != "12" || f.State() != document.StatePersisted {
		t.Errorf("file = %+v state %v", f.Ref, f.State())
	}
}

func TestFromRecordRejectsMalformedContent(t *testing.T) {
	tests := []string{
		`not json`,
		`{"sections":[{"id":"a","items":[{"type":"content","value":{"x":1}}]}]}`,
	}
	for _, body := range tests {
		if _, err := FromRecord(docapi.Document{DocContent: body}); !errors.Is(err, ErrMalformedContent) {
			t.Errorf("FromRecord(%q) error = %v, want ErrMalformedContent", body, err)
		}
	}
}

func TestEncodeSectionsWithBlobsRestoresUploads(t *testing.T) {
	doc := sampleDocument()
	wire, err := EncodeSections(doc.Sections, EncodeOptions{IncludePreview: true, IncludeBlobs: true})
	if err != nil {
		t.Fatalf("EncodeSections: %v", err)
	}
	raw, err := json.Marshal(wire)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var back []WireSection
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	sections, err := DecodeSections(back)
	if err != nil {
		t.Fatalf("DecodeSections: %v", err)
	}
	f := sections[0].Items[1].(document.File)
	if f.Source == nil || f.Source.ID != "b1" || !reflect.DeepEqual(f.Source.Data, []byte{1, 2, 3}) || f.Preview == "" {
		t.Errorf("restored file = %+v", f)
	}
	if got := attachment.CollectUploads(sections); len(got) != 1 {
		t.Errorf("restored uploads = %d, want 1", len(got))
	}
}

func TestDecodeSectionsAssignsMissingIDs(t *testing.T) {
	sections, err := DecodeSections([]WireSection{{Title: "a"}, {Title: "b"}})
	if err != nil {
		t.Fatalf("DecodeSections: %v", err)
	}
	if sections[0].ID == "" || sections[0].ID == sections[1].ID {
		t.Errorf("ids = %q, %q", sections[0].ID, sections[1].ID)
	}
}

func TestConversions(t *testing.T) {
	up := UploadedFiles([]docapi.UploadedFile{{BfNo: "3", BfFile: "a.png", FileURL: "u"}})
	if up[0] != (attachment.Uploaded{ID: "3", StoredFilename: "a.png", URL: "u"}) {
		t.Errorf("UploadedFiles() = %+v", up)
	}
	st := StoredFiles([]docapi.StoredFile{{BfNo: "3", BfFilesize: 9, BfWidth: 4, BfHeight: 2}})
	if st[0].Size != 9 || st[0].Width != 4 || st[0].Height != 2 {
		t.Errorf("StoredFiles() = %+v", st)
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(docapi.Document{WRID: "9", DocContent: `{"activeMenu":2,"sections":[{},{}]}`, Datetime: "2025-11-05 10:00:00"})
	if s.ID != "9" || s.Category != 2 || s.Sections != 2 || s.Title != document.CategoryTitle(2) {
		t.Errorf("Summarize() = %+v", s)
	}
	broken := Summarize(docapi.Document{WRID: "1", DocContent: "{"})
	if broken.ID != "1" || broken.Sections != 0 {
		t.Errorf("Summarize(broken) = %+v", broken)
	}
}
