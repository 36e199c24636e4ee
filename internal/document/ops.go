package document

import (
	"fmt"

	"documedix/api/internal/util"
)

// New returns an unsaved document in the default category.
func New() Document {
	doc := Document{Meta: DefaultMeta()}
	doc, _ = doc.SetCategory(DefaultCategory)
	return doc
}

// NewSectionID returns an id that no other section will ever carry.
func NewSectionID() string {
	return util.NewID("section")
}

// SetCategory switches the active category and replaces every section with
// one fresh section seeded from the category template. Existing content is
// discarded.
func (d Document) SetCategory(id int) (Document, error) {
	c, ok := LookupCategory(id)
	if !ok {
		return d, fmt.Errorf("%w: %d", ErrUnknownCategory, id)
	}
	content := c.Content
	if content == "" {
		content = EmptyContent
	}
	d.Category = id
	d.Sections = []Section{{
		ID:    NewSectionID(),
		Title: c.Title,
		Items: []Item{Content{HTML: content}},
	}}
	return d, nil
}

// AddSection appends an untitled section holding one empty content item.
func (d Document) AddSection() (Document, string) {
	id := NewSectionID()
	return d.AppendSection(Section{ID: id, Items: []Item{Content{HTML: EmptyContent}}}), id
}

// AppendSection appends s as given.
func (d Document) AppendSection(s Section) Document {
	sections := make([]Section, 0, len(d.Sections)+1)
	sections = append(sections, d.Sections...)
	d.Sections = append(sections, s)
	return d
}

func (d Document) RemoveSection(id string) (Document, error) {
	idx := d.sectionIndex(id)
	if idx < 0 {
		return d, ErrSectionNotFound
	}
	sections := make([]Section, 0, len(d.Sections)-1)
	sections = append(sections, d.Sections[:idx]...)
	d.Sections = append(sections, d.Sections[idx+1:]...)
	return d, nil
}

func (d Document) SetSectionTitle(id, title string) (Document, error) {
	return d.updateSection(id, func(s Section) (Section, error) {
		s.Title = title
		return s, nil
	})
}

// AddItem appends an empty item of the given kind to a section.
func (d Document) AddItem(sectionID string, kind ItemKind) (Document, error) {
	var it Item
	switch kind {
	case KindContent:
		it = Content{HTML: EmptyContent}
	case KindFile:
		it = File{}
	default:
		return d, fmt.Errorf("%w: %q", ErrUnknownItemKind, kind)
	}
	return d.updateSection(sectionID, func(s Section) (Section, error) {
		items := make([]Item, 0, len(s.Items)+1)
		items = append(items, s.Items...)
		s.Items = append(items, it)
		return s, nil
	})
}

func (d Document) RemoveItem(sectionID string, index int) (Document, error) {
	return d.updateSection(sectionID, func(s Section) (Section, error) {
		if index < 0 || index >= len(s.Items) {
			return s, ErrItemNotFound
		}
		items := make([]Item, 0, len(s.Items)-1)
		items = append(items, s.Items[:index]...)
		s.Items = append(items, s.Items[index+1:]...)
		return s, nil
	})
}

// SetItemValue replaces the item at index.
func (d Document) SetItemValue(sectionID string, index int, it Item) (Document, error) {
	if it == nil {
		return d, ErrUnknownItemKind
	}
	return d.updateSection(sectionID, func(s Section) (Section, error) {
		if index < 0 || index >= len(s.Items) {
			return s, ErrItemNotFound
		}
		items := make([]Item, len(s.Items))
		copy(items, s.Items)
		items[index] = it
		s.Items = items
		return s, nil
	})
}

// SetContent stores editor markup at index, turning the slot into a content
// item if it was not one.
func (d Document) SetContent(sectionID string, index int, html string) (Document, error) {
	return d.SetItemValue(sectionID, index, Content{HTML: html})
}

// AttachFile puts a freshly selected binary into the slot at index. The item
// becomes Local; its preview is filled in later by SetPreview.
func (d Document) AttachFile(sectionID string, index int, blob *Blob) (Document, error) {
	if blob == nil {
		return d, ErrNotFileItem
	}
	return d.SetItemValue(sectionID, index, File{Name: blob.Name, Source: blob})
}

// SetPreview attaches a preview to the file item holding blobID, wherever
// that item is now. It reports false if no item holds the blob any more.
func (d Document) SetPreview(blobID, preview string) (Document, bool) {
	si, ii := d.FindBlob(blobID)
	if si < 0 {
		return d, false
	}
	f := d.Sections[si].Items[ii].(File)
	f.Preview = preview
	out, err := d.SetItemValue(d.Sections[si].ID, ii, f)
	return out, err == nil
}

// FindBlob locates the file item currently holding blobID.
func (d Document) FindBlob(blobID string) (section, item int) {
	for si, s := range d.Sections {
		for ii, it := range s.Items {
			if f, ok := it.(File); ok && f.Source != nil && f.Source.ID == blobID {
				return si, ii
			}
		}
	}
	return -1, -1
}

// ReplaceAll swaps the section list wholesale.
func (d Document) ReplaceAll(sections []Section) Document {
	out := make([]Section, len(sections))
	copy(out, sections)
	d.Sections = out
	return d
}

func (d Document) SetMeta(m Meta) Document {
	d.Meta = m
	return d
}

func (d Document) AppendChat(msgs ...ChatMessage) Document {
	chat := make([]ChatMessage, 0, len(d.Chat)+len(msgs))
	chat = append(chat, d.Chat...)
	d.Chat = append(chat, msgs...)
	return d
}

func (d Document) Section(id string) (Section, bool) {
	idx := d.sectionIndex(id)
	if idx < 0 {
		return Section{}, false
	}
	return d.Sections[idx], true
}

func (d Document) sectionIndex(id string) int {
	for i, s := range d.Sections {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// updateSection copies the section list and replaces the section with the
// result of fn. The input document is returned untouched on error.
func (d Document) updateSection(id string, fn func(Section) (Section, error)) (Document, error) {
	idx := d.sectionIndex(id)
	if idx < 0 {
		return d, ErrSectionNotFound
	}
	updated, err := fn(d.Sections[idx])
	if err != nil {
		return d, err
	}
	sections := make([]Section, len(d.Sections))
	copy(sections, d.Sections)
	sections[idx] = updated
	d.Sections = sections
	return d, nil
}
