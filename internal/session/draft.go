package session

import (
	"fmt"
	"time"

	"documedix/api/internal/document"
	"documedix/api/internal/payload"
)

// Draft is the autosaved state of one editing session. Unlike doc_content
// it keeps local file bytes and previews, so nothing picked but not yet
// saved is lost.
type Draft struct {
	SessionID  string                 `json:"sessionId"`
	Category   int                    `json:"category"`
	Sections   []payload.WireSection  `json:"sections"`
	Chat       []document.ChatMessage `json:"chat"`
	DocType    int                    `json:"docType"`
	ReportType int                    `json:"reportType"`
	DocGrade   int                    `json:"docGrade"`
	DocID      string                 `json:"docId,omitempty"`
	SavedAt    time.Time              `json:"savedAt"`
}

func NewDraft(sessionID string, doc document.Document, now time.Time) (Draft, error) {
	sections, err := payload.EncodeSections(doc.Sections, payload.EncodeOptions{IncludePreview: true, IncludeBlobs: true})
	if err != nil {
		return Draft{}, fmt.Errorf("encode draft: %w", err)
	}
	return Draft{
		SessionID:  sessionID,
		Category:   doc.Category,
		Sections:   sections,
		Chat:       doc.Chat,
		DocType:    doc.Meta.DocType,
		ReportType: doc.Meta.ReportType,
		DocGrade:   doc.Meta.DocGrade,
		DocID:      doc.Meta.ID,
		SavedAt:    now.UTC(),
	}, nil
}

// Document rebuilds the editable document.
func (d Draft) Document() (document.Document, error) {
	sections, err := payload.DecodeSections(d.Sections)
	if err != nil {
		return document.Document{}, err
	}
	chat := d.Chat
	if chat == nil {
		chat = []document.ChatMessage{}
	}
	category := d.Category
	if _, ok := document.LookupCategory(category); !ok {
		category = document.DefaultCategory
	}
	return document.Document{
		Category: category,
		Sections: sections,
		Chat:     chat,
		Meta: document.Meta{
			DocType:    d.DocType,
			ReportType: d.ReportType,
			DocGrade:   d.DocGrade,
			ID:         d.DocID,
		},
	}, nil
}
