// Package payload converts between the document tree and the JSON body
// stored by the backend as doc_content.
package payload

import (
	"encoding/json"
	"errors"
	"fmt"

	"documedix/api/internal/docapi"
	"documedix/api/internal/document"
)

var ErrMalformedContent = errors.New("malformed doc_content")

const (
	typeContent = "content"
	typeFile    = "file"
	// typeLegacyFiles is an old section-level file list; it carries no
	// data the current model can show.
	typeLegacyFiles = "files"
)

// DocContent is the JSON object written into the doc_content field.
type DocContent struct {
	ActiveMenu   int                    `json:"activeMenu"`
	MenuTitle    string                 `json:"menuTitle"`
	Sections     []WireSection          `json:"sections"`
	ChatMessages []document.ChatMessage `json:"chatMessages"`
}

type WireSection struct {
	ID    string     `json:"id"`
	Title string     `json:"title"`
	Items []WireItem `json:"items"`
}

// WireItem is {"type": ..., "value": ...}. Value is an HTML string for
// content items and a WireFile object for file items.
type WireItem struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

type WireFile struct {
	Name       string            `json:"name"`
	BfNo       docapi.FlexString `json:"bf_no"`
	BfFile     docapi.FlexString `json:"bf_file"`
	FileURL    docapi.FlexString `json:"file_url"`
	BfFilesize docapi.FlexInt    `json:"bf_filesize,omitempty"`
	BfWidth    docapi.FlexInt    `json:"bf_width,omitempty"`
	BfHeight   docapi.FlexInt    `json:"bf_height,omitempty"`

	// Only written for local views and autosave snapshots.
	Preview     string `json:"preview,omitempty"`
	BlobID      string `json:"blobId,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Data        []byte `json:"data,omitempty"`
	State       string `json:"state,omitempty"`
}

// EncodeOptions widens the encoding beyond what the backend stores.
type EncodeOptions struct {
	IncludePreview bool
	IncludeBlobID  bool
	// IncludeBlobs embeds the raw bytes of items not yet uploaded.
	IncludeBlobs bool
	IncludeState bool
}

// EncodeSections renders sections in wire form. With zero options the
// output is exactly what is persisted in doc_content.
func EncodeSections(sections []document.Section, opts EncodeOptions) ([]WireSection, error) {
	out := make([]WireSection, 0, len(sections))
	for _, s := range sections {
		ws := WireSection{ID: s.ID, Title: s.Title, Items: make([]WireItem, 0, len(s.Items))}
		for _, it := range s.Items {
			wi, err := encodeItem(it, opts)
			if err != nil {
				return nil, fmt.Errorf("section %s: %w", s.ID, err)
			}
			ws.Items = append(ws.Items, wi)
		}
		out = append(out, ws)
	}
	return out, nil
}

func encodeItem(it document.Item, opts EncodeOptions) (WireItem, error) {
	switch v := it.(type) {
	case document.Content:
		raw, err := json.Marshal(v.HTML)
		if err != nil {
			return WireItem{}, err
		}
		return WireItem{Type: typeContent, Value: raw}, nil
	case document.File:
		raw, err := json.Marshal(wireFile(v, opts))
		if err != nil {
			return WireItem{}, err
		}
		return WireItem{Type: typeFile, Value: raw}, nil
	default:
		return WireItem{}, fmt.Errorf("%w: %T", document.ErrUnknownItemKind, it)
	}
}

func wireFile(f document.File, opts EncodeOptions) WireFile {
	wf := WireFile{Name: f.Name}
	if f.Name == "" && f.Source != nil {
		wf.Name = f.Source.Name
	}
	if f.Ref != nil {
		wf.BfNo = docapi.FlexString(f.Ref.ID)
		wf.BfFile = docapi.FlexString(f.Ref.StoredFilename)
		wf.FileURL = docapi.FlexString(f.Ref.URL)
		wf.BfFilesize = docapi.FlexInt(f.Ref.Size)
		wf.BfWidth = docapi.FlexInt(f.Ref.Width)
		wf.BfHeight = docapi.FlexInt(f.Ref.Height)
	}
	if opts.IncludePreview {
		wf.Preview = f.Preview
	}
	if f.Source != nil {
		if opts.IncludeBlobID || opts.IncludeBlobs {
			wf.BlobID = f.Source.ID
		}
		if opts.IncludeBlobs {
			wf.ContentType = f.Source.ContentType
			wf.Data = f.Source.Data
		}
	}
	if opts.IncludeState {
		wf.State = f.State().String()
	}
	return wf
}

// DecodeSections is the inverse of EncodeSections. Unknown and legacy item
// types are dropped. Sections without an id get a fresh one.
func DecodeSections(wire []WireSection) ([]document.Section, error) {
	sections := make([]document.Section, 0, len(wire))
	for si, ws := range wire {
		s := document.Section{ID: ws.ID, Title: ws.Title, Items: make([]document.Item, 0, len(ws.Items))}
		if s.ID == "" {
			s.ID = document.NewSectionID()
		}
		for ii, wi := range ws.Items {
			it, ok, err := decodeItem(wi)
			if err != nil {
				return nil, fmt.Errorf("%w: section %d item %d: %v", ErrMalformedContent, si, ii, err)
			}
			if ok {
				s.Items = append(s.Items, it)
			}
		}
		sections = append(sections, s)
	}
	return sections, nil
}

func decodeItem(wi WireItem) (document.Item, bool, error) {
	switch wi.Type {
	case typeContent:
		var html string
		if len(wi.Value) > 0 && string(wi.Value) != "null" {
			if err := json.Unmarshal(wi.Value, &html); err != nil {
				return nil, false, err
			}
		}
		return document.Content{HTML: html}, true, nil
	case typeFile:
		var wf WireFile
		if len(wi.Value) > 0 && string(wi.Value) != "null" {
			if err := json.Unmarshal(wi.Value, &wf); err != nil {
				return nil, false, err
			}
		}
		return fileFromWire(wf), true, nil
	default:
		return nil, false, nil
	}
}

func fileFromWire(wf WireFile) document.File {
	f := document.File{Name: wf.Name, Preview: wf.Preview}
	if wf.BfNo != "" {
		f.Ref = &document.AttachmentRef{
			ID:             wf.BfNo.String(),
			StoredFilename: wf.BfFile.String(),
			URL:            wf.FileURL.String(),
			Size:           int64(wf.BfFilesize),
			Width:          int64(wf.BfWidth),
			Height:         int64(wf.BfHeight),
		}
	}
	if len(wf.Data) > 0 {
		f.Source = &document.Blob{ID: wf.BlobID, Name: wf.Name, ContentType: wf.ContentType, Data: wf.Data}
	}
	return f
}
