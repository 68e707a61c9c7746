package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/romariotrain/catalog-bot/internal/catalog/models"
)

type CatalogRepo struct {
	db     *sqlx.DB
	outbox *OutboxRepo
}

func NewCatalogRepo(db *sqlx.DB, outbox *OutboxRepo) *CatalogRepo {
	return &CatalogRepo{db: db, outbox: outbox}
}

func (r *CatalogRepo) GetItem(ctx context.Context, id string) (*models.CatalogItem, error) {
	const q = `
		SELECT id, title, description, cover_ref, status, created_at
		FROM catalog_items
		WHERE id = $1
	`
	var it models.CatalogItem
	if err := r.db.GetContext(ctx, &it, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrItemNotFound
		}
		return nil, fmt.Errorf("item get: %w", err)
	}
	return &it, nil
}

func (r *CatalogRepo) ListPage(ctx context.Context, page, pageSize int, query string) ([]models.CatalogItem, int, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * pageSize
	pattern := "%" + query + "%"

	const listQ = `
		SELECT id, title, description, cover_ref, status, created_at
		FROM catalog_items
		WHERE $1 = '' OR title ILIKE $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`
	items := []models.CatalogItem{}
	if err := r.db.SelectContext(ctx, &items, listQ, query, pattern, pageSize, offset); err != nil {
		return nil, 0, fmt.Errorf("item list page: %w", err)
	}

	const countQ = `
		SELECT COUNT(*)
		FROM catalog_items
		WHERE $1 = '' OR title ILIKE $2
	`
	var total int
	if err := r.db.GetContext(ctx, &total, countQ, query, pattern); err != nil {
		return nil, 0, fmt.Errorf("item count: %w", err)
	}

	return items, total, nil
}

func (r *CatalogRepo) ListOrderedParts(ctx context.Context, itemID string) ([]models.Part, error) {
	if _, err := r.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	const q = `
		SELECT id, item_id, message_ref
		FROM parts
		WHERE item_id = $1
		ORDER BY id ASC
	`
	var parts []models.Part
	if err := r.db.SelectContext(ctx, &parts, q, itemID); err != nil {
		return nil, fmt.Errorf("item list parts: %w", err)
	}
	return parts, nil
}

func (r *CatalogRepo) UpdateField(ctx context.Context, id, field, value string) error {
	var q string
	switch field {
	case "title":
		q = `UPDATE catalog_items SET title = $2 WHERE id = $1`
	case "description":
		q = `UPDATE catalog_items SET description = $2 WHERE id = $1`
	default:
		return models.ErrUnknownField
	}
	res, err := r.db.ExecContext(ctx, q, id, value)
	if err != nil {
		return fmt.Errorf("item update %s: %w", field, err)
	}
	return checkAffected(res, models.ErrItemNotFound)
}

func (r *CatalogRepo) DeleteItem(ctx context.Context, id string, event models.DomainEvent) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("item delete: begin tx: %w", err)
	}
	defer tx.Rollback()

	// parts cascade on the foreign key.
	res, err := tx.ExecContext(ctx, `DELETE FROM catalog_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("item delete: %w", err)
	}
	if err := checkAffected(res, models.ErrItemNotFound); err != nil {
		return err
	}

	if event != nil {
		if err := r.outbox.Add(ctx, tx, event); err != nil {
			return fmt.Errorf("item delete: outbox: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("item delete: commit: %w", err)
	}
	return nil
}

// Finalize migrates a completed session into a permanent catalog item. All
// steps run in one transaction: readers either see no item or the complete
// item with all parts, and a replayed finalize finds no session row and
// leaves everything untouched.
func (r *CatalogRepo) Finalize(ctx context.Context, sessionID int64, item *models.CatalogItem, event models.DomainEvent) error {
	if item == nil {
		return models.ErrInvalidArgument
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("finalize: begin tx: %w", err)
	}
	defer tx.Rollback()

	// Locks the session row for the duration of the migration, and detects
	// the duplicate-/done/ replay.
	var exists bool
	if err := tx.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM upload_sessions WHERE id = $1 FOR UPDATE)`,
		sessionID); err != nil {
		return fmt.Errorf("finalize: lock session: %w", err)
	}
	if !exists {
		return models.ErrSessionNotFound
	}

	const insertItem = `
		INSERT INTO catalog_items (id, title, description, cover_ref, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := tx.ExecContext(ctx, insertItem,
		item.ID, item.Title, item.Description, item.CoverRef, item.Status, item.CreatedAt,
	); err != nil {
		return fmt.Errorf("finalize: insert item: %w", err)
	}

	// Copy in ascending session-part order so the new serial ids reproduce
	// upload order.
	const copyParts = `
		INSERT INTO parts (item_id, message_ref)
		SELECT $1, message_ref
		FROM session_parts
		WHERE session_id = $2
		ORDER BY id ASC
	`
	if _, err := tx.ExecContext(ctx, copyParts, item.ID, sessionID); err != nil {
		return fmt.Errorf("finalize: copy parts: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM upload_sessions WHERE id = $1`, sessionID); err != nil {
		return fmt.Errorf("finalize: delete session: %w", err)
	}

	if event != nil {
		if err := r.outbox.Add(ctx, tx, event); err != nil {
			return fmt.Errorf("finalize: outbox: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("finalize: commit: %w", err)
	}
	return nil
}
