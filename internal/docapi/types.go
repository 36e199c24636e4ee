// Package docapi speaks the document backend protocol: one endpoint taking
// form or multipart POSTs whose "action" field selects save_document,
// load_document, get_files or list_documents. It contains the client used
// by the editing service and a reference server implementation.
package docapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

const (
	ActionSave  = "save_document"
	ActionLoad  = "load_document"
	ActionFiles = "get_files"
	ActionList  = "list_documents"
)

var (
	// ErrTransport covers connection failures and non-2xx statuses.
	ErrTransport = errors.New("docapi transport error")
	// ErrMalformedResponse is returned when the reply is not the expected JSON.
	ErrMalformedResponse = errors.New("docapi malformed response")
)

// APIError is a reply with success=false.
type APIError struct {
	Action  string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s failed", e.Action)
	}
	return fmt.Sprintf("%s failed: %s", e.Action, e.Message)
}

// FlexString decodes a JSON string, number or null. The backend returns ids
// as either. Empty encodes as null.
type FlexString string

func (s *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = FlexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("flex string: %w", err)
	}
	*s = FlexString(n.String())
	return nil
}

func (s FlexString) MarshalJSON() ([]byte, error) {
	if s == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(s))
}

func (s FlexString) String() string { return string(s) }

// FlexInt decodes a JSON number, numeric string or null.
type FlexInt int64

func (n *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) || bytes.Equal(data, []byte(`""`)) {
		*n = 0
		return nil
	}
	raw := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("flex int %q: %w", raw, err)
	}
	*n = FlexInt(v)
	return nil
}

// envelope is the common reply shape. Files sits at the top level for
// get_files and under data for save_document.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Files   json.RawMessage `json:"files"`
}

// FilePart is one binary part of a save, sent as files[N].
type FilePart struct {
	Name        string
	ContentType string
	Data        []byte
}

type SaveRequest struct {
	DocType    int
	ReportType int
	DocGrade   int
	PageType   string
	DocContent string
	// WRID updates an existing document; empty creates a new one.
	WRID  string
	Files []FilePart
}

// UploadedFile is returned for each files[N] part, in the same order.
type UploadedFile struct {
	BfNo    FlexString `json:"bf_no"`
	BfFile  FlexString `json:"bf_file"`
	FileURL FlexString `json:"file_url"`
}

type SaveResult struct {
	WRID  FlexString     `json:"wr_id"`
	Files []UploadedFile `json:"files"`
}

// Document is a stored record as returned by load_document and
// list_documents. DocContent is the JSON body written at save time.
type Document struct {
	WRID       FlexString `json:"wr_id,omitempty"`
	DocContent string     `json:"doc_content"`
	DocType    FlexInt    `json:"doc_type"`
	ReportType FlexInt    `json:"report_type"`
	DocGrade   FlexInt    `json:"doc_grade"`
	Datetime   string     `json:"wr_datetime,omitempty"`
}

// StoredFile is one attachment row from get_files.
type StoredFile struct {
	BfNo       FlexString `json:"bf_no"`
	BfFile     FlexString `json:"bf_file"`
	FileURL    FlexString `json:"file_url"`
	BfFilesize FlexInt    `json:"bf_filesize"`
	BfWidth    FlexInt    `json:"bf_width"`
	BfHeight   FlexInt    `json:"bf_height"`
}
