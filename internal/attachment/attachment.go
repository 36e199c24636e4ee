// Package attachment tracks embedded files through their lifecycle:
// selected locally, queued for upload at save time, persisted with a
// backend reference, and hydrated with URL and dimensions after a load.
package attachment

import (
	"errors"
	"fmt"

	"documedix/api/internal/document"
)

var ErrUploadMismatch = errors.New("uploaded file count does not match upload batch")

// Upload is one outgoing binary part. Index is its position in the
// multipart sequence (files[Index]).
type Upload struct {
	Index     int
	SectionID string
	ItemIndex int
	Blob      *document.Blob
}

// Uploaded is the backend's reply for one upload part.
type Uploaded struct {
	ID             string
	StoredFilename string
	URL            string
}

// Stored is one row of the backend's attachment listing used for hydration.
type Stored struct {
	ID             string
	StoredFilename string
	URL            string
	Size           int64
	Width          int64
	Height         int64
}

// CollectUploads walks sections then items and returns one Upload per file
// item still holding a binary. Indices are contiguous from 0.
func CollectUploads(sections []document.Section) []Upload {
	var uploads []Upload
	for _, s := range sections {
		for i, it := range s.Items {
			f, ok := it.(document.File)
			if !ok || f.Source == nil {
				continue
			}
			uploads = append(uploads, Upload{
				Index:     len(uploads),
				SectionID: s.ID,
				ItemIndex: i,
				Blob:      f.Source,
			})
		}
	}
	return uploads
}

// ApplyUploads attaches results[i] to the item that was uploaded as part i.
// The item is looked up in sections by the blob it holds, so sections may be
// a newer tree than the one the batch was collected from. Uploaded items
// lose their binary; items removed since the batch was built are skipped.
func ApplyUploads(sections []document.Section, uploads []Upload, results []Uploaded) ([]document.Section, error) {
	if len(results) != len(uploads) {
		return sections, fmt.Errorf("%w: sent %d, got %d", ErrUploadMismatch, len(uploads), len(results))
	}
	if len(uploads) == 0 {
		return sections, nil
	}

	byBlob := make(map[string]Uploaded, len(uploads))
	for i, u := range uploads {
		byBlob[u.Blob.ID] = results[i]
	}

	out := make([]document.Section, len(sections))
	for si, s := range sections {
		out[si] = s
		var items []document.Item
		for ii, it := range s.Items {
			f, ok := it.(document.File)
			if !ok || f.Source == nil {
				continue
			}
			res, ok := byBlob[f.Source.ID]
			if !ok {
				continue
			}
			if items == nil {
				items = make([]document.Item, len(s.Items))
				copy(items, s.Items)
			}
			f.Ref = &document.AttachmentRef{
				ID:             res.ID,
				StoredFilename: res.StoredFilename,
				URL:            res.URL,
			}
			f.Source = nil
			items[ii] = f
		}
		if items != nil {
			out[si].Items = items
		}
	}
	return out, nil
}

// Hydrate fills URL and file metadata into persisted file items by matching
// their reference id against files. Items without a match keep what they
// have; they render as empty placeholders.
func Hydrate(sections []document.Section, files []Stored) []document.Section {
	if len(files) == 0 {
		return sections
	}
	byID := make(map[string]Stored, len(files))
	for _, f := range files {
		byID[f.ID] = f
	}

	out := make([]document.Section, len(sections))
	for si, s := range sections {
		out[si] = s
		var items []document.Item
		for ii, it := range s.Items {
			f, ok := it.(document.File)
			if !ok || f.Ref == nil || f.Ref.ID == "" {
				continue
			}
			stored, ok := byID[f.Ref.ID]
			if !ok {
				continue
			}
			if items == nil {
				items = make([]document.Item, len(s.Items))
				copy(items, s.Items)
			}
			ref := *f.Ref
			ref.URL = stored.URL
			ref.StoredFilename = stored.StoredFilename
			ref.Size = stored.Size
			ref.Width = stored.Width
			ref.Height = stored.Height
			f.Ref = &ref
			items[ii] = f
		}
		if items != nil {
			out[si].Items = items
		}
	}
	return out
}

// Counts reports how many file items are in each lifecycle state.
func Counts(sections []document.Section) map[document.AttachmentState]int {
	counts := map[document.AttachmentState]int{}
	for _, s := range sections {
		for _, it := range s.Items {
			if f, ok := it.(document.File); ok {
				counts[f.State()]++
			}
		}
	}
	return counts
}
