package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/legal-lens/internal/core/domain"
)

// DocumentStore keeps documents in `files` and their results in `results`,
// joined 1:1 on the document id.
type DocumentStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

func NewDocumentStore(db *sql.DB, dialect Dialect) *DocumentStore {
	return &DocumentStore{db: db, dialect: dialect, now: func() time.Time { return time.Now().UTC() }}
}

const documentColumns = `id, original_name, size, content_type, page_count, storage_path, raw_text, status, error_message, uploaded_at, processed_at, updated_at`

const listColumns = `id, original_name, size, content_type, page_count, storage_path, '' AS raw_text, status, error_message, uploaded_at, processed_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var (
		doc       domain.Document
		status    string
		uploaded  dbTime
		processed dbTime
		updated   dbTime
	)
	if err := row.Scan(
		&doc.ID, &doc.OriginalName, &doc.Size, &doc.ContentType, &doc.PageCount, &doc.StoragePath,
		&doc.RawText, &status, &doc.Error, &uploaded, &processed, &updated,
	); err != nil {
		return nil, err
	}
	doc.Status = domain.DocumentStatus(status)
	doc.UploadedAt = uploaded.Time
	doc.ProcessedAt = processed.ptr()
	doc.UpdatedAt = updated.Time
	return &doc, nil
}

func (s *DocumentStore) q(query string) string {
	return s.dialect.rebind(query)
}

func (s *DocumentStore) GetOrCreate(ctx context.Context, doc *domain.Document) (*domain.Document, bool, error) {
	res, err := s.db.ExecContext(ctx, s.q(`
INSERT INTO files (`+documentColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT (id) DO NOTHING
`),
		doc.ID, doc.OriginalName, doc.Size, doc.ContentType, doc.PageCount, doc.StoragePath,
		doc.RawText, string(doc.Status), doc.Error, doc.UploadedAt, doc.ProcessedAt, doc.UpdatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("insert document rows affected: %w", err)
	}

	stored, err := s.GetByID(ctx, doc.ID)
	if err != nil {
		return nil, false, err
	}
	return stored, affected == 1, nil
}

func (s *DocumentStore) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+documentColumns+` FROM files WHERE id = ?`), id)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return doc, nil
}

func (s *DocumentStore) List(ctx context.Context, limit int) ([]domain.Document, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+listColumns+` FROM files ORDER BY uploaded_at DESC, id LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	docs := make([]domain.Document, 0, limit)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

// ClaimForProcessing moves uploaded -> processing. Exactly one concurrent caller wins.
func (s *DocumentStore) ClaimForProcessing(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.q(`
UPDATE files
SET status = ?, error_message = '', updated_at = ?
WHERE id = ? AND status = ?
`), string(domain.StatusProcessing), s.now(), id, string(domain.StatusUploaded))
	if err != nil {
		return false, fmt.Errorf("claim document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim document rows affected: %w", err)
	}
	return affected == 1, nil
}

func (s *DocumentStore) MarkError(ctx context.Context, id string, message string) error {
	res, err := s.db.ExecContext(ctx, s.q(`
UPDATE files
SET status = ?, error_message = ?, updated_at = ?
WHERE id = ?
`), string(domain.StatusError), message, s.now(), id)
	if err != nil {
		return fmt.Errorf("mark document error: %w", err)
	}
	return requireAffected(res, "mark document error", id)
}

// SaveResult commits the result and the processed status together. It fails
// with ErrDocumentNotFound when the document was deleted during the run.
func (s *DocumentStore) SaveResult(ctx context.Context, id string, result domain.Result) error {
	columns, err := encodeResult(result)
	if err != nil {
		return err
	}

	return s.inTx(ctx, "save result", func(tx *sql.Tx) error {
		if _, err := s.lockStatus(ctx, tx, id); err != nil {
			return err
		}

		now := s.now()
		if _, err := tx.ExecContext(ctx, s.q(`
INSERT INTO results (file_id, run_id, lawyer, citizen, next_steps, facts, created_at)
VALUES (?,?,?,?,?,?,?)
ON CONFLICT (file_id) DO UPDATE SET
	run_id = excluded.run_id,
	lawyer = excluded.lawyer,
	citizen = excluded.citizen,
	next_steps = excluded.next_steps,
	facts = excluded.facts,
	created_at = excluded.created_at
`), id, result.RunID, columns[0], columns[1], columns[2], columns[3], now); err != nil {
			return fmt.Errorf("upsert result: %w", err)
		}

		if _, err := tx.ExecContext(ctx, s.q(`
UPDATE files
SET status = ?, error_message = '', processed_at = ?, updated_at = ?
WHERE id = ?
`), string(domain.StatusProcessed), now, now, id); err != nil {
			return fmt.Errorf("mark document processed: %w", err)
		}
		return nil
	})
}

func (s *DocumentStore) GetCachedResult(ctx context.Context, id string) (*domain.Result, error) {
	var (
		runID                             string
		lawyer, citizen, nextSteps, facts []byte
	)
	err := s.db.QueryRowContext(ctx, s.q(`
SELECT run_id, lawyer, citizen, next_steps, facts
FROM results
WHERE file_id = ?
`), id).Scan(&runID, &lawyer, &citizen, &nextSteps, &facts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrResultNotFound, "get result", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan result: %w", err)
	}

	result := domain.Result{RunID: runID}
	for _, field := range []struct {
		name string
		raw  []byte
		dst  *domain.Outcome
	}{
		{"lawyer", lawyer, &result.Lawyer},
		{"citizen", citizen, &result.Citizen},
		{"next_steps", nextSteps, &result.NextSteps},
		{"facts", facts, &result.Facts},
	} {
		if err := json.Unmarshal(field.raw, field.dst); err != nil {
			return nil, fmt.Errorf("decode %s: %w", field.name, err)
		}
	}
	return &result, nil
}

// ResetForReprocess drops the cached result and returns the document to uploaded.
func (s *DocumentStore) ResetForReprocess(ctx context.Context, id string) error {
	return s.inTx(ctx, "reset document", func(tx *sql.Tx) error {
		status, err := s.lockStatus(ctx, tx, id)
		if err != nil {
			return err
		}
		if status == domain.StatusProcessing {
			return domain.WrapError(domain.ErrConflict, "reset document", errors.New("document is being processed"))
		}
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM results WHERE file_id = ?`), id); err != nil {
			return fmt.Errorf("delete result: %w", err)
		}
		if _, err := tx.ExecContext(ctx, s.q(`
UPDATE files
SET status = ?, error_message = '', processed_at = NULL, updated_at = ?
WHERE id = ?
`), string(domain.StatusUploaded), s.now(), id); err != nil {
			return fmt.Errorf("reset document status: %w", err)
		}
		return nil
	})
}

func (s *DocumentStore) Delete(ctx context.Context, id string) error {
	return s.inTx(ctx, "delete document", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM results WHERE file_id = ?`), id); err != nil {
			return fmt.Errorf("delete result: %w", err)
		}
		res, err := tx.ExecContext(ctx, s.q(`DELETE FROM files WHERE id = ?`), id)
		if err != nil {
			return fmt.Errorf("delete document: %w", err)
		}
		return requireAffected(res, "delete document", id)
	})
}

func (s *DocumentStore) lockStatus(ctx context.Context, tx *sql.Tx, id string) (domain.DocumentStatus, error) {
	var status string
	err := tx.QueryRowContext(ctx, s.q(`SELECT status FROM files WHERE id = ?`+s.dialect.lockClause()), id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.WrapError(domain.ErrDocumentNotFound, "lock document", fmt.Errorf("id=%s", id))
		}
		return "", fmt.Errorf("lock document: %w", err)
	}
	return domain.DocumentStatus(status), nil
}

func (s *DocumentStore) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin tx: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit tx: %w", op, err)
	}
	return nil
}

func requireAffected(res sql.Result, op, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, op, fmt.Errorf("id=%s", id))
	}
	return nil
}

func encodeResult(result domain.Result) ([4][]byte, error) {
	var out [4][]byte
	for i, outcome := range []domain.Outcome{result.Lawyer, result.Citizen, result.NextSteps, result.Facts} {
		raw, err := json.Marshal(outcome)
		if err != nil {
			return out, fmt.Errorf("encode result: %w", err)
		}
		out[i] = raw
	}
	return out, nil
}
