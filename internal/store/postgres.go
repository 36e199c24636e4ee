package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("not found")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// InsertDocument stores a new document and returns its id.
func (s *PostgresStore) InsertDocument(ctx context.Context, doc DocumentRecord) (int64, error) {
	return insertDocument(ctx, s.db, doc)
}

// UpdateDocument overwrites the body and classification of an existing
// document.
func (s *PostgresStore) UpdateDocument(ctx context.Context, doc DocumentRecord) error {
	return updateDocument(ctx, s.db, doc)
}

// AttachFunc stores attachment bytes once the document id is known and
// returns the rows to record for them.
type AttachFunc func(ctx context.Context, documentID int64) ([]FileRecord, error)

// SaveDocument inserts doc (ID == 0) or updates it, then records the file
// rows returned by attach, in one transaction. Nothing is written when
// attach or any statement fails. attach may be nil.
func (s *PostgresStore) SaveDocument(ctx context.Context, doc DocumentRecord, attach AttachFunc) (DocumentRecord, []FileRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return DocumentRecord{}, nil, fmt.Errorf("begin save tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if doc.ID == 0 {
		id, err := insertDocument(ctx, tx, doc)
		if err != nil {
			return DocumentRecord{}, nil, err
		}
		doc.ID = id
	} else if err := updateDocument(ctx, tx, doc); err != nil {
		return DocumentRecord{}, nil, err
	}

	var files []FileRecord
	if attach != nil {
		files, err = attach(ctx, doc.ID)
		if err != nil {
			return DocumentRecord{}, nil, err
		}
	}
	for i := range files {
		files[i].DocumentID = doc.ID
		id, err := insertFile(ctx, tx, files[i])
		if err != nil {
			return DocumentRecord{}, nil, err
		}
		files[i].ID = id
	}

	if err := tx.Commit(); err != nil {
		return DocumentRecord{}, nil, fmt.Errorf("commit save tx: %w", err)
	}
	return doc, files, nil
}

func insertDocument(ctx context.Context, q queryer, doc DocumentRecord) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO documents (doc_content, doc_type, report_type, doc_grade, page_type)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, doc.DocContent, doc.DocType, doc.ReportType, doc.DocGrade, doc.PageType).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert document: %w", err)
	}
	return id, nil
}

func updateDocument(ctx context.Context, q queryer, doc DocumentRecord) error {
	res, err := q.ExecContext(ctx, `
		UPDATE documents
		SET doc_content=$2, doc_type=$3, report_type=$4, doc_grade=$5, page_type=$6, updated_at=NOW()
		WHERE id=$1
	`, doc.ID, doc.DocContent, doc.DocType, doc.ReportType, doc.DocGrade, doc.PageType)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, id int64) (DocumentRecord, error) {
	var doc DocumentRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, doc_content, doc_type, report_type, doc_grade, page_type, created_at, updated_at
		FROM documents WHERE id=$1
	`, id).Scan(&doc.ID, &doc.DocContent, &doc.DocType, &doc.ReportType, &doc.DocGrade, &doc.PageType, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return DocumentRecord{}, ErrNotFound
	}
	if err != nil {
		return DocumentRecord{}, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// ListDocuments returns all documents, most recently written first.
func (s *PostgresStore) ListDocuments(ctx context.Context) ([]DocumentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, doc_content, doc_type, report_type, doc_grade, page_type, created_at, updated_at
		FROM documents
		ORDER BY updated_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []DocumentRecord
	for rows.Next() {
		var doc DocumentRecord
		if err := rows.Scan(&doc.ID, &doc.DocContent, &doc.DocType, &doc.ReportType, &doc.DocGrade, &doc.PageType, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *PostgresStore) InsertFile(ctx context.Context, f FileRecord) (int64, error) {
	return insertFile(ctx, s.db, f)
}

func insertFile(ctx context.Context, q queryer, f FileRecord) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO document_files (document_id, original_name, stored_name, object_key, content_type, size_bytes, width, height)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, f.DocumentID, f.OriginalName, f.StoredName, f.ObjectKey, f.ContentType, f.Size, f.Width, f.Height).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert file: %w", err)
	}
	return id, nil
}

// ListFiles returns the attachments of a document in upload order.
func (s *PostgresStore) ListFiles(ctx context.Context, documentID int64) ([]FileRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, original_name, stored_name, object_key, content_type, size_bytes, width, height, created_at
		FROM document_files
		WHERE document_id=$1
		ORDER BY id
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var files []FileRecord
	for rows.Next() {
		var f FileRecord
		if err := rows.Scan(&f.ID, &f.DocumentID, &f.OriginalName, &f.StoredName, &f.ObjectKey, &f.ContentType, &f.Size, &f.Width, &f.Height, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}
