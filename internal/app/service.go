package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"documedix/api/internal/assist"
	"documedix/api/internal/attachment"
	"documedix/api/internal/config"
	"documedix/api/internal/docapi"
	"documedix/api/internal/document"
	"documedix/api/internal/editor"
	"documedix/api/internal/export"
	"documedix/api/internal/payload"
	"documedix/api/internal/session"
	"documedix/api/internal/util"
)

// documentBackend is the document API the service saves to and loads from.
type documentBackend interface {
	SaveDocument(context.Context, docapi.SaveRequest) (docapi.SaveResult, error)
	LoadDocument(context.Context, string) (docapi.Document, error)
	GetFiles(context.Context, string) ([]docapi.StoredFile, error)
	ListDocuments(context.Context) ([]docapi.Document, error)
}

type assistant interface {
	Chat(ctx context.Context, message, category string) (string, error)
	GenerateDraft(ctx context.Context, req assist.DraftRequest) (string, error)
}

type draftStore interface {
	SaveDraft(context.Context, session.Draft) error
	LoadDraft(context.Context, string) (session.Draft, error)
	DeleteDraft(context.Context, string) error
	Ping(context.Context) error
}

type exporter interface {
	Export(ctx context.Context, doc document.Document, format export.Format) (*export.Result, error)
}

// Deps are the collaborators of the service. Drafts may be nil, in which
// case sessions live in memory only.
type Deps struct {
	Backend  documentBackend
	Assist   assistant
	Drafts   draftStore
	Exporter exporter
}

type Service struct {
	cfg      config.Config
	backend  documentBackend
	assist   assistant
	drafts   draftStore
	exporter exporter
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*editor.Editor
	bg       sync.WaitGroup
}

func NewService(cfg config.Config, deps Deps, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:      cfg,
		backend:  deps.Backend,
		assist:   deps.Assist,
		drafts:   deps.Drafts,
		exporter: deps.Exporter,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*editor.Editor),
	}
}

// SessionView is the state of one editing session as shown to the client.
type SessionView struct {
	SessionID     string                 `json:"sessionId"`
	Category      int                    `json:"category"`
	CategoryTitle string                 `json:"categoryTitle"`
	Placeholder   string                 `json:"placeholder"`
	DocumentID    string                 `json:"documentId"`
	DocType       int                    `json:"docType"`
	ReportType    int                    `json:"reportType"`
	DocGrade      int                    `json:"docGrade"`
	Sections      []payload.WireSection  `json:"sections"`
	Chat          []document.ChatMessage `json:"chatMessages"`
	Loading       []editor.Flag          `json:"loading"`
	Version       uint64                 `json:"version"`
}

type MetaInput struct {
	DocType    int `json:"docType"`
	ReportType int `json:"reportType"`
	DocGrade   int `json:"docGrade"`
}

type DraftInput struct {
	Grade    int    `json:"grade"`
	ItemCode string `json:"itemCode"`
}

type FileInput struct {
	Name        string
	ContentType string
	Data        []byte
}

type SaveOutcome struct {
	View       SessionView `json:"session"`
	DocumentID string      `json:"documentId"`
	Uploaded   int         `json:"uploaded"`
}

type LoadOutcome struct {
	View     SessionView `json:"session"`
	Hydrated bool        `json:"hydrated"`
}

func (s *Service) Ping(ctx context.Context) error {
	if s.drafts == nil {
		return nil
	}
	return s.drafts.Ping(ctx)
}

// Wait blocks until background work of every open session has finished.
func (s *Service) Wait() {
	s.mu.Lock()
	editors := make([]*editor.Editor, 0, len(s.sessions))
	for _, e := range s.sessions {
		editors = append(editors, e)
	}
	s.mu.Unlock()
	for _, e := range editors {
		e.Wait()
	}
	s.bg.Wait()
}

func (s *Service) CreateSession(ctx context.Context) (SessionView, error) {
	sessionID := util.NewID("sess")
	e := editor.New(document.New(), s.logger.With("session_id", sessionID))
	s.mu.Lock()
	s.sessions[sessionID] = e
	s.mu.Unlock()
	s.autosave(ctx, sessionID, e)
	return s.view(sessionID, e), nil
}

// editorFor returns the editor of an open session, reopening it from its
// autosaved draft after a restart.
func (s *Service) editorFor(ctx context.Context, sessionID string) (*editor.Editor, error) {
	s.mu.Lock()
	e, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if ok {
		return e, nil
	}
	if s.drafts == nil {
		return nil, domainError(http.StatusNotFound, "SESSION_NOT_FOUND", "Session not found", nil)
	}
	draft, err := s.drafts.LoadDraft(ctx, sessionID)
	if errors.Is(err, session.ErrDraftNotFound) {
		return nil, domainError(http.StatusNotFound, "SESSION_NOT_FOUND", "Session not found", nil)
	}
	if err != nil {
		return nil, err
	}
	doc, err := draft.Document()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[sessionID]; ok {
		return existing, nil
	}
	e = editor.New(doc, s.logger.With("session_id", sessionID))
	s.sessions[sessionID] = e
	s.logger.Info("session restored from draft", "session_id", sessionID, "saved_at", draft.SavedAt)
	return e, nil
}

func (s *Service) isOpen(sessionID string, e *editor.Editor) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[sessionID] == e
}

func (s *Service) View(ctx context.Context, sessionID string) (SessionView, error) {
	e, err := s.editorFor(ctx, sessionID)
	if err != nil {
		return SessionView{}, err
	}
	return s.view(sessionID, e), nil
}

func (s *Service) view(sessionID string, e *editor.Editor) SessionView {
	version := e.Version()
	doc := e.Snapshot()
	sections, err := payload.EncodeSections(doc.Sections, payload.EncodeOptions{IncludePreview: true, IncludeBlobID: true, IncludeState: true})
	if err != nil {
		// Sections only ever hold Content and File items.
		s.logger.Error("encode session view", "session_id", sessionID, "err", err)
	}
	chat := doc.Chat
	if chat == nil {
		chat = []document.ChatMessage{}
	}
	c, _ := document.LookupCategory(doc.Category)
	return SessionView{
		SessionID:     sessionID,
		Category:      doc.Category,
		CategoryTitle: c.Title,
		Placeholder:   c.Placeholder,
		DocumentID:    doc.Meta.ID,
		DocType:       doc.Meta.DocType,
		ReportType:    doc.Meta.ReportType,
		DocGrade:      doc.Meta.DocGrade,
		Sections:      sections,
		Chat:          chat,
		Loading:       e.Flags(),
		Version:       version,
	}
}

// mutate applies fn to the session document and autosaves the result.
func (s *Service) mutate(ctx context.Context, sessionID string, fn func(document.Document) (document.Document, error)) (SessionView, error) {
	e, err := s.editorFor(ctx, sessionID)
	if err != nil {
		return SessionView{}, err
	}
	if _, err := e.Update(fn); err != nil {
		return SessionView{}, err
	}
	s.autosave(ctx, sessionID, e)
	return s.view(sessionID, e), nil
}

func (s *Service) autosave(ctx context.Context, sessionID string, e *editor.Editor) {
	if s.drafts == nil {
		return
	}
	draft, err := session.NewDraft(sessionID, e.Snapshot(), s.now())
	if err == nil {
		err = s.drafts.SaveDraft(ctx, draft)
	}
	if err != nil {
		s.logger.Warn("autosave failed", "session_id", sessionID, "err", err)
	}
}

// NewDocument discards the session document, including its id and chat.
func (s *Service) NewDocument(ctx context.Context, sessionID string) (SessionView, error) {
	e, err := s.editorFor(ctx, sessionID)
	if err != nil {
		return SessionView{}, err
	}
	e.Replace(document.New())
	s.autosave(ctx, sessionID, e)
	return s.view(sessionID, e), nil
}

func (s *Service) SetCategory(ctx context.Context, sessionID string, category int) (SessionView, error) {
	return s.mutate(ctx, sessionID, func(d document.Document) (document.Document, error) {
		return d.SetCategory(category)
	})
}

func (s *Service) SetMeta(ctx context.Context, sessionID string, in MetaInput) (SessionView, error) {
	if in.DocType <= 0 || in.ReportType <= 0 || in.DocGrade <= 0 {
		return SessionView{}, validationError("docType, reportType and docGrade must be positive")
	}
	return s.mutate(ctx, sessionID, func(d document.Document) (document.Document, error) {
		m := d.Meta
		m.DocType, m.ReportType, m.DocGrade = in.DocType, in.ReportType, in.DocGrade
		return d.SetMeta(m), nil
	})
}

func (s *Service) AddSection(ctx context.Context, sessionID string) (SessionView, error) {
	return s.mutate(ctx, sessionID, func(d document.Document) (document.Document, error) {
		d, _ = d.AddSection()
		return d, nil
	})
}

func (s *Service) RemoveSection(ctx context.Context, sessionID, sectionID string) (SessionView, error) {
	return s.mutate(ctx, sessionID, func(d document.Document) (document.Document, error) {
		return d.RemoveSection(sectionID)
	})
}

func (s *Service) SetSectionTitle(ctx context.Context, sessionID, sectionID, title string) (SessionView, error) {
	return s.mutate(ctx, sessionID, func(d document.Document) (document.Document, error) {
		return d.SetSectionTitle(sectionID, title)
	})
}

func (s *Service) AddItem(ctx context.Context, sessionID, sectionID string, kind document.ItemKind) (SessionView, error) {
	return s.mutate(ctx, sessionID, func(d document.Document) (document.Document, error) {
		return d.AddItem(sectionID, kind)
	})
}

func (s *Service) SetContent(ctx context.Context, sessionID, sectionID string, index int, html string) (SessionView, error) {
	return s.mutate(ctx, sessionID, func(d document.Document) (document.Document, error) {
		return d.SetContent(sectionID, index, html)
	})
}

func (s *Service) RemoveItem(ctx context.Context, sessionID, sectionID string, index int) (SessionView, error) {
	return s.mutate(ctx, sessionID, func(d document.Document) (document.Document, error) {
		return d.RemoveItem(sectionID, index)
	})
}

// AttachFile stores a picked file in the item at index. The preview is
// filled in once it has been computed.
func (s *Service) AttachFile(ctx context.Context, sessionID, sectionID string, index int, in FileInput) (SessionView, error) {
	if len(in.Data) == 0 {
		return SessionView{}, validationError("file is empty")
	}
	e, err := s.editorFor(ctx, sessionID)
	if err != nil {
		return SessionView{}, err
	}
	blob := &document.Blob{ID: util.NewID("blob"), Name: in.Name, ContentType: in.ContentType, Data: in.Data}
	_, done, err := e.AttachFile(sectionID, index, blob)
	if err != nil {
		return SessionView{}, err
	}
	s.autosave(ctx, sessionID, e)
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		<-done
		if s.isOpen(sessionID, e) {
			s.autosave(context.WithoutCancel(ctx), sessionID, e)
		}
	}()
	return s.view(sessionID, e), nil
}

func (s *Service) Reorder(ctx context.Context, sessionID string, drag document.DragResult) (SessionView, error) {
	return s.mutate(ctx, sessionID, func(d document.Document) (document.Document, error) {
		return document.ApplyDrag(d, drag)
	})
}

// Save sends the document and its pending uploads to the backend. Edits
// made while the request is in flight are kept; the upload results are
// applied to whichever items hold the uploaded files by then.
func (s *Service) Save(ctx context.Context, sessionID string) (SaveOutcome, error) {
	e, err := s.editorFor(ctx, sessionID)
	if err != nil {
		return SaveOutcome{}, err
	}
	end, err := e.Begin(editor.FlagSave)
	if err != nil {
		return SaveOutcome{}, err
	}
	defer end()

	doc, ticket := e.BeginSave()
	p, uploads, err := payload.ToPayload(doc)
	if err != nil {
		return SaveOutcome{}, err
	}
	req, err := p.SaveRequest(s.cfg.PageType, uploads)
	if err != nil {
		return SaveOutcome{}, err
	}
	res, err := s.backend.SaveDocument(ctx, req)
	if err != nil {
		return SaveOutcome{}, err
	}

	// The backend has written the document even when the file reply is
	// unusable, so its id is committed regardless. Unmatched files keep
	// their binary and go up again on the next save.
	var uploadErr error
	committed, err := e.CommitSave(ticket, func(d document.Document) (document.Document, error) {
		if id := res.WRID.String(); id != "" {
			m := d.Meta
			m.ID = id
			d = d.SetMeta(m)
		}
		sections, err := attachment.ApplyUploads(d.Sections, uploads, payload.UploadedFiles(res.Files))
		if err != nil {
			uploadErr = err
			return d, nil
		}
		return d.ReplaceAll(sections), nil
	})
	if err != nil {
		return SaveOutcome{}, err
	}
	if uploadErr != nil {
		s.logger.Warn("save reply did not match uploads", "session_id", sessionID, "document_id", committed.Meta.ID, "err", uploadErr)
		s.autosave(ctx, sessionID, e)
		return SaveOutcome{}, uploadErr
	}
	s.logger.Info("document saved", "session_id", sessionID, "document_id", committed.Meta.ID, "uploads", len(uploads))
	s.autosave(ctx, sessionID, e)
	return SaveOutcome{View: s.view(sessionID, e), DocumentID: committed.Meta.ID, Uploaded: len(uploads)}, nil
}

// Load replaces the session document with a stored one and then fills in
// attachment URLs. A failed attachment listing does not fail the load.
func (s *Service) Load(ctx context.Context, sessionID, documentID string) (LoadOutcome, error) {
	documentID = strings.TrimSpace(documentID)
	if _, err := payload.ParseID(documentID); err != nil {
		return LoadOutcome{}, validationError(err.Error())
	}
	e, err := s.editorFor(ctx, sessionID)
	if err != nil {
		return LoadOutcome{}, err
	}
	end, err := e.Begin(editor.FlagLoad)
	if err != nil {
		return LoadOutcome{}, err
	}
	defer end()

	ticket := e.BeginLoad()
	rec, err := s.backend.LoadDocument(ctx, documentID)
	if err != nil {
		return LoadOutcome{}, err
	}
	doc, err := payload.FromRecord(rec)
	if err != nil {
		return LoadOutcome{}, err
	}
	if err := e.CommitLoad(ticket, doc); err != nil {
		return LoadOutcome{}, err
	}

	hydrated := s.hydrate(ctx, e, doc.Meta.ID)
	s.autosave(ctx, sessionID, e)
	return LoadOutcome{View: s.view(sessionID, e), Hydrated: hydrated}, nil
}

func (s *Service) hydrate(ctx context.Context, e *editor.Editor, documentID string) bool {
	files, err := s.backend.GetFiles(ctx, documentID)
	if err != nil {
		s.logger.Warn("attachment hydration failed", "document_id", documentID, "err", err)
		return false
	}
	stored := payload.StoredFiles(files)
	_, err = e.CommitForDocument(documentID, func(d document.Document) (document.Document, error) {
		return d.ReplaceAll(attachment.Hydrate(d.Sections, stored)), nil
	})
	if err != nil {
		s.logger.Warn("attachment hydration dropped", "document_id", documentID, "err", err)
		return false
	}
	return true
}

// ListDocuments returns the stored documents for the picker.
func (s *Service) ListDocuments(ctx context.Context) ([]payload.Summary, error) {
	docs, err := s.backend.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]payload.Summary, 0, len(docs))
	for _, d := range docs {
		out = append(out, payload.Summarize(d))
	}
	return out, nil
}

// ListDocumentsForSession is ListDocuments under the session's list flag.
func (s *Service) ListDocumentsForSession(ctx context.Context, sessionID string) ([]payload.Summary, error) {
	e, err := s.editorFor(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	end, err := e.Begin(editor.FlagList)
	if err != nil {
		return nil, err
	}
	defer end()
	return s.ListDocuments(ctx)
}

func (s *Service) Export(ctx context.Context, sessionID string, format export.Format) (*export.Result, error) {
	e, err := s.editorFor(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.exporter.Export(ctx, e.Snapshot(), format)
}

// Chat appends the user's message, asks the assistant and appends its
// reply. A failed call appends an apology instead of returning an error.
func (s *Service) Chat(ctx context.Context, sessionID, message string) (SessionView, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return SessionView{}, assist.ErrEmptyMessage
	}
	e, err := s.editorFor(ctx, sessionID)
	if err != nil {
		return SessionView{}, err
	}
	end, err := e.Begin(editor.FlagChat)
	if err != nil {
		return SessionView{}, err
	}
	defer end()

	doc, _ := e.Update(func(d document.Document) (document.Document, error) {
		return d.AppendChat(document.ChatMessage{Sender: document.SenderUser, Text: message}), nil
	})
	s.autosave(ctx, sessionID, e)

	reply, err := s.assist.Chat(ctx, message, document.CategoryTitle(doc.Category))
	if err != nil {
		s.logger.Warn("chat failed", "session_id", sessionID, "err", err)
		reply = assist.ChatFallback(err)
	}
	_, _ = e.Update(func(d document.Document) (document.Document, error) {
		return d.AppendChat(document.ChatMessage{Sender: document.SenderAI, Text: reply}), nil
	})
	s.autosave(ctx, sessionID, e)
	return s.view(sessionID, e), nil
}

// GenerateDraft asks the assistant for a draft of the current content and
// appends it as a new section.
func (s *Service) GenerateDraft(ctx context.Context, sessionID string, in DraftInput) (SessionView, error) {
	e, err := s.editorFor(ctx, sessionID)
	if err != nil {
		return SessionView{}, err
	}
	doc := e.Snapshot()
	grade := in.Grade
	if grade <= 0 {
		grade = doc.Meta.DocGrade
	}
	req := assist.DraftRequest{Category: doc.Category, Sections: doc.Sections, Grade: grade, ItemCode: in.ItemCode}
	if err := req.Validate(); err != nil {
		return SessionView{}, err
	}
	end, err := e.Begin(editor.FlagDraft)
	if err != nil {
		return SessionView{}, err
	}
	defer end()

	html, err := s.assist.GenerateDraft(ctx, req)
	if err != nil {
		return SessionView{}, err
	}
	_, err = e.Update(func(d document.Document) (document.Document, error) {
		return d.AppendSection(document.Section{
			ID:    document.NewSectionID(),
			Title: assist.DraftSectionTitle,
			Items: []document.Item{document.Content{HTML: html}},
		}), nil
	})
	if err != nil {
		return SessionView{}, err
	}
	s.autosave(ctx, sessionID, e)
	return s.view(sessionID, e), nil
}

// CloseSession forgets a session and its autosaved draft.
func (s *Service) CloseSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	e, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	if ok {
		e.Wait()
	}
	if s.drafts != nil {
		if err := s.drafts.DeleteDraft(ctx, sessionID); err != nil {
			return err
		}
	}
	return nil
}
