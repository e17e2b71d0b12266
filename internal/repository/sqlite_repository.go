package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/celiboy93/supaimage/internal/domain"
)

type DraftStore interface {
	SaveDraft(ctx context.Context, imageURL, caption string) (*domain.DraftPost, error)
	ListDrafts(ctx context.Context) ([]domain.DraftPost, error)
	GetDraft(ctx context.Context, id string) (*domain.DraftPost, error)
	DeleteDraft(ctx context.Context, id string) error
}

type HistoryStore interface {
	RecordUpload(ctx context.Context, publicURL, fileName string) (*domain.HistoryRecord, error)
	ListHistory(ctx context.Context, limit int) ([]domain.HistoryRecord, error)
	DeleteHistory(ctx context.Context, id string) error
}

// SQLiteStore backs both the draft queue and the upload history.
type SQLiteStore struct {
	db  *sql.DB
	log *zap.Logger
}

func NewSQLiteStore(path string, log *zap.Logger) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}

	// Single connection: parallel writes to one sqlite file are not worth it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database %s: %w", path, err)
	}

	s := &SQLiteStore{db: db, log: log}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	log.Info("SQLite store ready", zap.String("path", path))

	return s, nil
}

func (s *SQLiteStore) createTables() error {
	draftsTableSQL := `
	CREATE TABLE IF NOT EXISTS drafts (
		id TEXT NOT NULL PRIMARY KEY,
		image_url TEXT NOT NULL,
		caption TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);`

	if _, err := s.db.Exec(draftsTableSQL); err != nil {
		return fmt.Errorf("drafts table: %w", err)
	}

	historyTableSQL := `
	CREATE TABLE IF NOT EXISTS history (
		id TEXT NOT NULL PRIMARY KEY,
		public_url TEXT NOT NULL,
		file_name TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);`

	if _, err := s.db.Exec(historyTableSQL); err != nil {
		return fmt.Errorf("history table: %w", err)
	}

	indexDraftsSQL := `CREATE INDEX IF NOT EXISTS idx_drafts_created_at ON drafts (created_at);`
	if _, err := s.db.Exec(indexDraftsSQL); err != nil {
		return fmt.Errorf("drafts index: %w", err)
	}

	indexHistorySQL := `CREATE INDEX IF NOT EXISTS idx_history_created_at ON history (created_at);`
	if _, err := s.db.Exec(indexHistorySQL); err != nil {
		return fmt.Errorf("history index: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveDraft(ctx context.Context, imageURL, caption string) (*domain.DraftPost, error) {
	draft := &domain.DraftPost{
		ID:        uuid.New().String(),
		ImageURL:  imageURL,
		Caption:   caption,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO drafts (id, image_url, caption, created_at) VALUES (?, ?, ?, ?)`,
		draft.ID, draft.ImageURL, draft.Caption, draft.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to save draft: %w", err)
	}

	s.log.Info("Draft saved",
		zap.String("id", draft.ID),
		zap.String("url", draft.ImageURL))

	return draft, nil
}

// ListDrafts returns the queue in creation order, oldest first.
func (s *SQLiteStore) ListDrafts(ctx context.Context) ([]domain.DraftPost, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, image_url, caption, created_at FROM drafts ORDER BY created_at ASC, rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}
	defer rows.Close()

	var drafts []domain.DraftPost
	for rows.Next() {
		var d domain.DraftPost
		if err := rows.Scan(&d.ID, &d.ImageURL, &d.Caption, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan draft: %w", err)
		}
		drafts = append(drafts, d)
	}

	return drafts, rows.Err()
}

func (s *SQLiteStore) GetDraft(ctx context.Context, id string) (*domain.DraftPost, error) {
	var d domain.DraftPost
	err := s.db.QueryRowContext(ctx,
		`SELECT id, image_url, caption, created_at FROM drafts WHERE id = ?`, id).
		Scan(&d.ID, &d.ImageURL, &d.Caption, &d.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrDraftNotFound
		}
		return nil, fmt.Errorf("failed to get draft %s: %w", id, err)
	}

	return &d, nil
}

func (s *SQLiteStore) DeleteDraft(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete draft %s: %w", id, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for draft %s: %w", id, err)
	}
	if rowsAffected == 0 {
		return domain.ErrDraftNotFound
	}

	s.log.Info("Draft deleted", zap.String("id", id))

	return nil
}

func (s *SQLiteStore) RecordUpload(ctx context.Context, publicURL, fileName string) (*domain.HistoryRecord, error) {
	record := &domain.HistoryRecord{
		ID:        uuid.New().String(),
		PublicURL: publicURL,
		FileName:  fileName,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO history (id, public_url, file_name, created_at) VALUES (?, ?, ?, ?)`,
		record.ID, record.PublicURL, record.FileName, record.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record upload: %w", err)
	}

	return record, nil
}

// ListHistory returns the most recent uploads first, capped at limit.
func (s *SQLiteStore) ListHistory(ctx context.Context, limit int) ([]domain.HistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, public_url, file_name, created_at FROM history ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var records []domain.HistoryRecord
	for rows.Next() {
		var r domain.HistoryRecord
		if err := rows.Scan(&r.ID, &r.PublicURL, &r.FileName, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		records = append(records, r)
	}

	return records, rows.Err()
}

func (s *SQLiteStore) DeleteHistory(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete history record %s: %w", id, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for history record %s: %w", id, err)
	}
	if rowsAffected == 0 {
		return domain.ErrHistoryNotFound
	}

	return nil
}
