package docapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"path"
	"strconv"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"documedix/api/internal/blob"
	"documedix/api/internal/store"
	"documedix/api/internal/util"
)

const (
	defaultMaxUpload = 64 << 20
	datetimeLayout   = "2006-01-02 15:04:05"
)

// DocumentStore persists documents and attachment rows.
type DocumentStore interface {
	// SaveDocument writes the document and the rows attach returns
	// atomically; attach runs once the document id is known.
	SaveDocument(ctx context.Context, doc store.DocumentRecord, attach store.AttachFunc) (store.DocumentRecord, []store.FileRecord, error)
	GetDocument(ctx context.Context, id int64) (store.DocumentRecord, error)
	ListDocuments(ctx context.Context) ([]store.DocumentRecord, error)
	ListFiles(ctx context.Context, documentID int64) ([]store.FileRecord, error)
}

// FileStore holds attachment bytes.
type FileStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	URL(ctx context.Context, key string) (string, error)
}

// Server answers the backend protocol on a single endpoint. Request
// problems are reported as success=false with status 200, storage
// failures as success=false with status 500.
type Server struct {
	docs      DocumentStore
	files     FileStore
	logger    *slog.Logger
	maxUpload int64
}

func NewServer(docs DocumentStore, files FileStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{docs: docs, files: files, logger: logger, maxUpload: defaultMaxUpload}
}

type requestError struct {
	message string
}

func (e *requestError) Error() string { return e.message }

func badRequest(format string, args ...any) error {
	return &requestError{message: fmt.Sprintf(format, args...)}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeEnvelope(w, http.StatusMethodNotAllowed, map[string]any{"success": false, "message": "POST required"})
		return
	}
	if err := s.parse(w, r); err != nil {
		s.fail(w, r, "", badRequest("invalid form: %v", err))
		return
	}

	action := r.FormValue("action")
	var (
		reply map[string]any
		err   error
	)
	switch action {
	case ActionSave:
		reply, err = s.save(r)
	case ActionLoad:
		reply, err = s.load(r)
	case ActionFiles:
		reply, err = s.listFiles(r)
	case ActionList:
		reply, err = s.list(r)
	default:
		err = badRequest("unknown action %q", action)
	}
	if err != nil {
		s.fail(w, r, action, err)
		return
	}
	reply["success"] = true
	writeEnvelope(w, http.StatusOK, reply)
}

func (s *Server) parse(w http.ResponseWriter, r *http.Request) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
		return r.ParseMultipartForm(s.maxUpload)
	}
	return r.ParseForm()
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, action string, err error) {
	status := http.StatusOK
	var reqErr *requestError
	message := err.Error()
	switch {
	case errors.As(err, &reqErr):
	case errors.Is(err, store.ErrNotFound):
		message = "document not found"
	default:
		status = http.StatusInternalServerError
		s.logger.Error("docapi action failed", "action", action, "err", err)
		message = "internal error"
	}
	s.logger.Debug("docapi request rejected", "action", action, "path", r.URL.Path, "message", message)
	writeEnvelope(w, status, map[string]any{"success": false, "message": message})
}

func (s *Server) save(r *http.Request) (map[string]any, error) {
	content := r.FormValue("doc_content")
	if strings.TrimSpace(content) == "" {
		return nil, badRequest("doc_content is required")
	}
	if !json.Valid([]byte(content)) {
		return nil, badRequest("doc_content must be JSON")
	}
	rec := store.DocumentRecord{
		DocContent: content,
		DocType:    formInt(r, "doc_type", 1),
		ReportType: formInt(r, "report_type", 1),
		DocGrade:   formInt(r, "doc_grade", 1),
		PageType:   r.FormValue("page_type"),
	}
	if rec.PageType == "" {
		rec.PageType = "A4"
	}

	if raw := strings.TrimSpace(r.FormValue("wr_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, badRequest("invalid wr_id %q", raw)
		}
		rec.ID = id
	}

	// Objects put before a failed save stay in the bucket unreferenced; no
	// row points at them.
	headers := indexedFiles(r.MultipartForm)
	ctx := r.Context()
	saved, rows, err := s.docs.SaveDocument(ctx, rec, func(ctx context.Context, documentID int64) ([]store.FileRecord, error) {
		out := make([]store.FileRecord, 0, len(headers))
		for _, fh := range headers {
			row, err := s.putFile(ctx, documentID, fh)
			if err != nil {
				return nil, err
			}
			out = append(out, row)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	uploaded := make([]UploadedFile, 0, len(rows))
	for _, row := range rows {
		fileURL, err := s.files.URL(ctx, row.ObjectKey)
		if err != nil {
			return nil, err
		}
		uploaded = append(uploaded, UploadedFile{
			BfNo:    FlexString(strconv.FormatInt(row.ID, 10)),
			BfFile:  FlexString(row.StoredName),
			FileURL: FlexString(fileURL),
		})
	}

	return map[string]any{"data": SaveResult{WRID: FlexString(strconv.FormatInt(saved.ID, 10)), Files: uploaded}}, nil
}

// indexedFiles returns files[0], files[1], ... stopping at the first gap.
func indexedFiles(form *multipart.Form) []*multipart.FileHeader {
	if form == nil {
		return nil
	}
	var out []*multipart.FileHeader
	for i := 0; ; i++ {
		headers := form.File[fmt.Sprintf("files[%d]", i)]
		if len(headers) == 0 {
			return out
		}
		out = append(out, headers[0])
	}
}

// putFile stores the bytes of one upload and returns the row describing it.
func (s *Server) putFile(ctx context.Context, documentID int64, fh *multipart.FileHeader) (store.FileRecord, error) {
	src, err := fh.Open()
	if err != nil {
		return store.FileRecord{}, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	data, err := io.ReadAll(src)
	src.Close()
	if err != nil {
		return store.FileRecord{}, fmt.Errorf("read upload %s: %w", fh.Filename, err)
	}

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	var width, height int
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		width, height = cfg.Width, cfg.Height
	}

	original := path.Base(strings.ReplaceAll(fh.Filename, "\\", "/"))
	storedName := util.NewID("") + strings.ToLower(path.Ext(original))
	key := blob.ObjectKey(documentID, storedName)
	if err := s.files.Put(ctx, key, contentType, data); err != nil {
		return store.FileRecord{}, err
	}
	return store.FileRecord{
		DocumentID:   documentID,
		OriginalName: original,
		StoredName:   storedName,
		ObjectKey:    key,
		ContentType:  contentType,
		Size:         int64(len(data)),
		Width:        width,
		Height:       height,
	}, nil
}

func (s *Server) load(r *http.Request) (map[string]any, error) {
	id, err := requiredID(r)
	if err != nil {
		return nil, err
	}
	rec, err := s.docs.GetDocument(r.Context(), id)
	if err != nil {
		return nil, err
	}
	return map[string]any{"data": documentFromRecord(rec)}, nil
}

func (s *Server) listFiles(r *http.Request) (map[string]any, error) {
	id, err := requiredID(r)
	if err != nil {
		return nil, err
	}
	ctx := r.Context()
	rows, err := s.docs.ListFiles(ctx, id)
	if err != nil {
		return nil, err
	}
	files := make([]StoredFile, 0, len(rows))
	for _, row := range rows {
		fileURL, err := s.files.URL(ctx, row.ObjectKey)
		if err != nil {
			return nil, err
		}
		files = append(files, StoredFile{
			BfNo:       FlexString(strconv.FormatInt(row.ID, 10)),
			BfFile:     FlexString(row.StoredName),
			FileURL:    FlexString(fileURL),
			BfFilesize: FlexInt(row.Size),
			BfWidth:    FlexInt(row.Width),
			BfHeight:   FlexInt(row.Height),
		})
	}
	return map[string]any{"files": files}, nil
}

func (s *Server) list(r *http.Request) (map[string]any, error) {
	rows, err := s.docs.ListDocuments(r.Context())
	if err != nil {
		return nil, err
	}
	docs := make([]Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, documentFromRecord(row))
	}
	return map[string]any{"data": docs}, nil
}

func documentFromRecord(rec store.DocumentRecord) Document {
	doc := Document{
		WRID:       FlexString(strconv.FormatInt(rec.ID, 10)),
		DocContent: rec.DocContent,
		DocType:    FlexInt(rec.DocType),
		ReportType: FlexInt(rec.ReportType),
		DocGrade:   FlexInt(rec.DocGrade),
	}
	if !rec.UpdatedAt.IsZero() {
		doc.Datetime = rec.UpdatedAt.Format(datetimeLayout)
	}
	return doc
}

func requiredID(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.FormValue("wr_id"))
	if raw == "" {
		return 0, badRequest("wr_id is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, badRequest("invalid wr_id %q", raw)
	}
	return id, nil
}

func formInt(r *http.Request, key string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(r.FormValue(key)))
	if err != nil {
		return fallback
	}
	return v
}

func writeEnvelope(w http.ResponseWriter, status int, payload map[string]any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
