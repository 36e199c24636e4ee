// Package document holds the editable document tree: sections of content
// and file items, the category templates that seed it, and the pure
// transforms (edits and drag reorders) applied to it.
package document

import "errors"

var (
	ErrSectionNotFound = errors.New("section not found")
	ErrItemNotFound    = errors.New("item not found")
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrUnknownCategory = errors.New("unknown category")
	ErrUnknownItemKind = errors.New("unknown item kind")
	ErrUnknownDragType = errors.New("unknown drag type")
	ErrNotFileItem     = errors.New("item is not a file item")
)

// EmptyContent is the markup of a freshly added content item.
const EmptyContent = "<p></p>"

// Document is the root aggregate of an editing session. Values are never
// mutated in place: every operation returns a new Document sharing the
// untouched sections with its input.
type Document struct {
	Category int
	Sections []Section
	Chat     []ChatMessage
	Meta     Meta
}

// Meta carries the backend classification fields and the persisted
// document id (wr_id). An empty ID means the document was never saved.
type Meta struct {
	DocType    int
	ReportType int
	DocGrade   int
	ID         string
}

func DefaultMeta() Meta {
	return Meta{DocType: 1, ReportType: 1, DocGrade: 1}
}

type ChatMessage struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

const (
	SenderUser = "User"
	SenderAI   = "AI"
)

type Section struct {
	ID    string
	Title string
	Items []Item
}

// ItemKind selects the variant created by AddItem.
type ItemKind string

const (
	KindContent ItemKind = "content"
	KindFile    ItemKind = "file"
)

// Item is either Content or File. The interface is sealed; switch on the
// concrete type.
type Item interface {
	Kind() ItemKind
	item()
}

// Content is rich text or table markup produced by the editor widget.
type Content struct {
	HTML string
}

func (Content) Kind() ItemKind { return KindContent }
func (Content) item()          {}

// File is an embedded attachment. Which fields are set determines its
// lifecycle state (see State).
type File struct {
	Name    string
	Preview string // data URI, computed after the user picks a file
	Ref     *AttachmentRef
	Source  *Blob // raw bytes not yet uploaded
}

func (File) Kind() ItemKind { return KindFile }
func (File) item()          {}

// PreviewSource is what a renderer should point an <img> at: the local
// preview if there is one, otherwise the hydrated URL.
func (f File) PreviewSource() string {
	if f.Preview != "" {
		return f.Preview
	}
	if f.Ref != nil {
		return f.Ref.URL
	}
	return ""
}

// Blob is a binary handle selected by the user. ID identifies the handle in
// memory only and is never sent to the backend.
type Blob struct {
	ID          string
	Name        string
	ContentType string
	Data        []byte
}

// AttachmentRef is assigned by the backend after upload. Size, Width and
// Height are zero until hydration fills them.
type AttachmentRef struct {
	ID             string
	StoredFilename string
	URL            string
	Size           int64
	Width          int64
	Height         int64
}

type AttachmentState int

const (
	StateEmpty AttachmentState = iota
	StateLocal
	StatePendingUpload
	StatePersisted
	StateHydrated
)

func (s AttachmentState) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLocal:
		return "local"
	case StatePendingUpload:
		return "pending_upload"
	case StatePersisted:
		return "persisted"
	case StateHydrated:
		return "hydrated"
	default:
		return "unknown"
	}
}

// State derives the lifecycle state of a file item. PendingUpload is not
// visible on the item itself: it is the Local state while a save holds the
// item in its upload batch, so State reports Local for it. A reference
// without a URL is Persisted; once a URL is known (from the save reply or
// from hydration) the item is renderable and reports Hydrated.
func (f File) State() AttachmentState {
	switch {
	case f.Source != nil:
		return StateLocal
	case f.Ref != nil && f.Ref.URL != "":
		return StateHydrated
	case f.Ref != nil:
		return StatePersisted
	default:
		return StateEmpty
	}
}
