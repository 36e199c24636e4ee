package store

import "time"

// DocumentRecord is one saved document of the reference backend.
type DocumentRecord struct {
	ID         int64
	DocContent string
	DocType    int
	ReportType int
	DocGrade   int
	PageType   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// FileRecord describes an uploaded attachment; the bytes live in object
// storage under ObjectKey.
type FileRecord struct {
	ID           int64
	DocumentID   int64
	OriginalName string
	StoredName   string
	ObjectKey    string
	ContentType  string
	Size         int64
	Width        int
	Height       int
	CreatedAt    time.Time
}
