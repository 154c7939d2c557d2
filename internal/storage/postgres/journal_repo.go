package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mkorchagin/media-ingest/internal/ingest/domain"
	"github.com/mkorchagin/media-ingest/internal/ingest/models"
)

// JournalRepo records terminal upload outcomes. The journal is a sink, not a
// source of truth: the live collection stays in memory and rows are written
// at-least-once (re-drained events upsert onto the same id).
type JournalRepo struct {
	db *sqlx.DB
}

type JournalRow struct {
	ID           uuid.UUID `db:"id"`
	Name         string    `db:"name"`
	SizeBytes    int64     `db:"size_bytes"`
	MimeType     string    `db:"mime_type"`
	Status       string    `db:"status"`
	Progress     int       `db:"progress"`
	ErrorMessage string    `db:"error_message"`
	FinishedAt   time.Time `db:"finished_at"`
}

func NewJournalRepo(db *sqlx.DB) *JournalRepo {
	return &JournalRepo{db: db}
}

func (r *JournalRepo) Record(ctx context.Context, rec models.FileRecord) error {
	if !rec.Status.Terminal() {
		return fmt.Errorf("%w: journal accepts terminal records only", models.ErrInvalidArgument)
	}

	const q = `
		INSERT INTO upload_journal (id, name, size_bytes, mime_type, status, progress, error_message, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, q,
		rec.ID, rec.Name, rec.Size, rec.MimeType, string(rec.Status), rec.Progress, rec.ErrorMessage, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("journal record: %w", err)
	}
	return nil
}

func (r *JournalRepo) ListByStatus(ctx context.Context, status domain.Status) ([]JournalRow, error) {
	const q = `
		SELECT id, name, size_bytes, mime_type, status, progress, error_message, finished_at
		FROM upload_journal
		WHERE status = $1
		ORDER BY finished_at DESC
	`

	var rows []JournalRow
	if err := r.db.SelectContext(ctx, &rows, q, string(status)); err != nil {
		return nil, fmt.Errorf("journal list by status: %w", err)
	}
	return rows, nil
}

func (r *JournalRepo) Purge(ctx context.Context, before time.Time) (int64, error) {
	const q = `
		DELETE FROM upload_journal
		WHERE finished_at < $1
	`

	res, err := r.db.ExecContext(ctx, q, before)
	if err != nil {
		return 0, fmt.Errorf("journal purge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("journal purge rows affected: %w", err)
	}
	return n, nil
}
