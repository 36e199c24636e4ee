package payload

import (
	"encoding/json"
	"fmt"
	"strconv"

	"documedix/api/internal/attachment"
	"documedix/api/internal/docapi"
	"documedix/api/internal/document"
)

const DefaultPageType = "A4"

// Payload is a document flattened for saving. Binary data is carried
// separately by the upload batch returned from ToPayload.
type Payload struct {
	Category      int
	CategoryTitle string
	Sections      []WireSection
	ChatMessages  []document.ChatMessage
	DocType       int
	ReportType    int
	DocGrade      int
	DocumentID    string
}

// ToPayload serializes doc. The uploads are in traversal order and line up
// with the files[N] parts of the save request.
func ToPayload(doc document.Document) (Payload, []attachment.Upload, error) {
	sections, err := EncodeSections(doc.Sections, EncodeOptions{})
	if err != nil {
		return Payload{}, nil, err
	}
	chat := doc.Chat
	if chat == nil {
		chat = []document.ChatMessage{}
	}
	p := Payload{
		Category:      doc.Category,
		CategoryTitle: document.CategoryTitle(doc.Category),
		Sections:      sections,
		ChatMessages:  chat,
		DocType:       doc.Meta.DocType,
		ReportType:    doc.Meta.ReportType,
		DocGrade:      doc.Meta.DocGrade,
		DocumentID:    doc.Meta.ID,
	}
	return p, attachment.CollectUploads(doc.Sections), nil
}

func (p Payload) DocContent() (string, error) {
	raw, err := json.Marshal(DocContent{
		ActiveMenu:   p.Category,
		MenuTitle:    p.CategoryTitle,
		Sections:     p.Sections,
		ChatMessages: p.ChatMessages,
	})
	if err != nil {
		return "", fmt.Errorf("encode doc_content: %w", err)
	}
	return string(raw), nil
}

// SaveRequest builds the backend request. An empty DocumentID creates a new
// document.
func (p Payload) SaveRequest(pageType string, uploads []attachment.Upload) (docapi.SaveRequest, error) {
	content, err := p.DocContent()
	if err != nil {
		return docapi.SaveRequest{}, err
	}
	if pageType == "" {
		pageType = DefaultPageType
	}
	files := make([]docapi.FilePart, 0, len(uploads))
	for _, u := range uploads {
		files = append(files, docapi.FilePart{Name: u.Blob.Name, ContentType: u.Blob.ContentType, Data: u.Blob.Data})
	}
	return docapi.SaveRequest{
		DocType:    p.DocType,
		ReportType: p.ReportType,
		DocGrade:   p.DocGrade,
		PageType:   pageType,
		DocContent: content,
		WRID:       p.DocumentID,
		Files:      files,
	}, nil
}

// FromRecord rebuilds a document from a load_document reply. Category,
// sections and chat come from doc_content, classification and id from the
// record fields.
func FromRecord(rec docapi.Document) (document.Document, error) {
	var body DocContent
	if err := json.Unmarshal([]byte(rec.DocContent), &body); err != nil {
		return document.Document{}, fmt.Errorf("%w: %v", ErrMalformedContent, err)
	}
	sections, err := DecodeSections(body.Sections)
	if err != nil {
		return document.Document{}, err
	}
	category := body.ActiveMenu
	if _, ok := document.LookupCategory(category); !ok {
		category = document.DefaultCategory
	}
	chat := body.ChatMessages
	if chat == nil {
		chat = []document.ChatMessage{}
	}
	meta := document.DefaultMeta()
	if rec.DocType != 0 {
		meta.DocType = int(rec.DocType)
	}
	if rec.ReportType != 0 {
		meta.ReportType = int(rec.ReportType)
	}
	if rec.DocGrade != 0 {
		meta.DocGrade = int(rec.DocGrade)
	}
	meta.ID = rec.WRID.String()
	return document.Document{Category: category, Sections: sections, Chat: chat, Meta: meta}, nil
}

// Summary is one entry of the document list.
type Summary struct {
	ID         string `json:"id"`
	Category   int    `json:"category"`
	Title      string `json:"title"`
	Sections   int    `json:"sections"`
	DocType    int    `json:"docType"`
	ReportType int    `json:"reportType"`
	DocGrade   int    `json:"docGrade"`
	Datetime   string `json:"datetime"`
}

// Summarize reads enough of doc_content to label a list entry. A body that
// does not parse still yields an entry with the record fields.
func Summarize(rec docapi.Document) Summary {
	s := Summary{
		ID:         rec.WRID.String(),
		DocType:    int(rec.DocType),
		ReportType: int(rec.ReportType),
		DocGrade:   int(rec.DocGrade),
		Datetime:   rec.Datetime,
	}
	var body DocContent
	if err := json.Unmarshal([]byte(rec.DocContent), &body); err == nil {
		s.Category = body.ActiveMenu
		s.Title = body.MenuTitle
		s.Sections = len(body.Sections)
		if s.Title == "" {
			s.Title = document.CategoryTitle(body.ActiveMenu)
		}
	}
	return s
}

func UploadedFiles(files []docapi.UploadedFile) []attachment.Uploaded {
	out := make([]attachment.Uploaded, 0, len(files))
	for _, f := range files {
		out = append(out, attachment.Uploaded{ID: f.BfNo.String(), StoredFilename: f.BfFile.String(), URL: f.FileURL.String()})
	}
	return out
}

func StoredFiles(files []docapi.StoredFile) []attachment.Stored {
	out := make([]attachment.Stored, 0, len(files))
	for _, f := range files {
		out = append(out, attachment.Stored{
			ID:             f.BfNo.String(),
			StoredFilename: f.BfFile.String(),
			URL:            f.FileURL.String(),
			Size:           int64(f.BfFilesize),
			Width:          int64(f.BfWidth),
			Height:         int64(f.BfHeight),
		})
	}
	return out
}

// ParseID validates a backend document id.
func ParseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid document id %q", raw)
	}
	return id, nil
}
