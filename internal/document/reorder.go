package document

import (
	"fmt"
	"strings"
)

// DragType distinguishes the two drop zones of the editor.
type DragType string

const (
	DragSection DragType = "SECTION"
	DragItem    DragType = "ITEM"
)

// ItemDroppablePrefix prefixes a section id to form the droppable id of the
// section's item list.
const ItemDroppablePrefix = "droppable-"

// Location is one end of a drag: the container it was in and the index in
// that container.
type Location struct {
	DroppableID string `json:"droppableId"`
	Index       int    `json:"index"`
}

// DragResult is what the drag-and-drop widget reports when the user lets go.
// Destination is nil when the drop landed outside every drop target.
type DragResult struct {
	Type        DragType  `json:"type"`
	Source      Location  `json:"source"`
	Destination *Location `json:"destination"`
}

// ItemDroppableID returns the droppable id for the items of sectionID.
func ItemDroppableID(sectionID string) string {
	return ItemDroppablePrefix + sectionID
}

// ApplyDrag commits a finished drag to d. A drag without a destination is
// discarded and d is returned as is.
func ApplyDrag(d Document, r DragResult) (Document, error) {
	if r.Destination == nil {
		return d, nil
	}
	switch r.Type {
	case DragSection:
		return MoveSection(d, r.Source.Index, r.Destination.Index)
	case DragItem:
		sectionID := strings.TrimPrefix(r.Source.DroppableID, ItemDroppablePrefix)
		return MoveItem(d, sectionID, r.Source.Index, r.Destination.Index)
	default:
		return d, fmt.Errorf("%w: %q", ErrUnknownDragType, r.Type)
	}
}

// MoveSection moves the section at from so that it ends up at index to.
func MoveSection(d Document, from, to int) (Document, error) {
	if from < 0 || from >= len(d.Sections) || to < 0 || to >= len(d.Sections) {
		return d, ErrIndexOutOfRange
	}
	if from == to {
		return d, nil
	}
	d.Sections = move(d.Sections, from, to)
	return d, nil
}

// MoveItem reorders the items of one section; other sections are shared
// with the input untouched.
func MoveItem(d Document, sectionID string, from, to int) (Document, error) {
	return d.updateSection(sectionID, func(s Section) (Section, error) {
		if from < 0 || from >= len(s.Items) || to < 0 || to >= len(s.Items) {
			return s, ErrIndexOutOfRange
		}
		if from != to {
			s.Items = move(s.Items, from, to)
		}
		return s, nil
	})
}

// move returns a copy of in with the element at from removed and
// reinserted at to.
func move[T any](in []T, from, to int) []T {
	out := make([]T, 0, len(in))
	out = append(out, in[:from]...)
	out = append(out, in[from+1:]...)
	moved := in[from]
	out = append(out, moved) // grow by one
	copy(out[to+1:], out[to:len(out)-1])
	out[to] = moved
	return out
}
