package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/romariotrain/catalog-bot/internal/catalog/models"
)

type SessionRepo struct {
	db *sqlx.DB
}

func NewSessionRepo(db *sqlx.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// CreateSession drops any previous session for the uploader before inserting,
// inside one transaction, so the one-active-session-per-uploader unique index
// never fires on a re-pressed "add" button.
func (r *SessionRepo) CreateSession(ctx context.Context, uploaderID int64) (int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("session create: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM upload_sessions WHERE uploader_id = $1`, uploaderID); err != nil {
		return 0, fmt.Errorf("session create: drop previous: %w", err)
	}

	var id int64
	const q = `
		INSERT INTO upload_sessions (uploader_id, status, created_at)
		VALUES ($1, $2, NOW())
		RETURNING id
	`
	if err := tx.GetContext(ctx, &id, q, uploaderID, models.SessionInProgress); err != nil {
		return 0, fmt.Errorf("session create: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("session create: commit: %w", err)
	}
	return id, nil
}

func (r *SessionRepo) GetSession(ctx context.Context, id int64) (*models.UploadSession, error) {
	const q = `
		SELECT id, uploader_id, title, description, cover_ref, status, created_at
		FROM upload_sessions
		WHERE id = $1
	`
	var s models.UploadSession
	if err := r.db.GetContext(ctx, &s, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrSessionNotFound
		}
		return nil, fmt.Errorf("session get: %w", err)
	}
	return &s, nil
}

func (r *SessionRepo) GetActiveSession(ctx context.Context, uploaderID int64) (*models.UploadSession, error) {
	const q = `
		SELECT id, uploader_id, title, description, cover_ref, status, created_at
		FROM upload_sessions
		WHERE uploader_id = $1
	`
	var s models.UploadSession
	if err := r.db.GetContext(ctx, &s, q, uploaderID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrSessionNotFound
		}
		return nil, fmt.Errorf("session get active: %w", err)
	}
	return &s, nil
}

func (r *SessionRepo) SetTitle(ctx context.Context, id int64, title string) error {
	return r.setField(ctx, id, "title", title)
}

func (r *SessionRepo) SetDescription(ctx context.Context, id int64, description string) error {
	return r.setField(ctx, id, "description", description)
}

// SetCover also advances the session to uploading_parts: the status and the
// cover must change together to keep the uploading_parts-implies-cover
// invariant.
func (r *SessionRepo) SetCover(ctx context.Context, id int64, coverRef string) error {
	const q = `
		UPDATE upload_sessions
		SET cover_ref = $2, status = $3
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, q, id, coverRef, models.SessionUploadingParts)
	if err != nil {
		return fmt.Errorf("session set cover: %w", err)
	}
	return checkAffected(res, models.ErrSessionNotFound)
}

func (r *SessionRepo) setField(ctx context.Context, id int64, column, value string) error {
	// column comes from this file only, never from user input.
	q := fmt.Sprintf(`UPDATE upload_sessions SET %s = $2 WHERE id = $1`, column)
	res, err := r.db.ExecContext(ctx, q, id, value)
	if err != nil {
		return fmt.Errorf("session set %s: %w", column, err)
	}
	return checkAffected(res, models.ErrSessionNotFound)
}

func (r *SessionRepo) AppendPart(ctx context.Context, id int64, messageRef string) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("session append part: begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM upload_sessions WHERE id = $1)`, id); err != nil {
		return 0, fmt.Errorf("session append part: %w", err)
	}
	if !exists {
		return 0, models.ErrSessionNotFound
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO session_parts (session_id, message_ref) VALUES ($1, $2)`,
		id, messageRef); err != nil {
		return 0, fmt.Errorf("session append part: %w", err)
	}

	var count int
	if err := tx.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM session_parts WHERE session_id = $1`, id); err != nil {
		return 0, fmt.Errorf("session append part: count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("session append part: commit: %w", err)
	}
	return count, nil
}

func (r *SessionRepo) ListParts(ctx context.Context, id int64) ([]models.SessionPart, error) {
	const q = `
		SELECT id, session_id, message_ref
		FROM session_parts
		WHERE session_id = $1
		ORDER BY id ASC
	`
	var parts []models.SessionPart
	if err := r.db.SelectContext(ctx, &parts, q, id); err != nil {
		return nil, fmt.Errorf("session list parts: %w", err)
	}
	return parts, nil
}

func (r *SessionRepo) DeleteSession(ctx context.Context, id int64) error {
	// session_parts cascade on the foreign key.
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM upload_sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("session delete: %w", err)
	}
	return nil
}

func checkAffected(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return missing
	}
	return nil
}
