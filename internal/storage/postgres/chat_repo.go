package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type ChatRepo struct {
	db *sqlx.DB
}

func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

func (r *ChatRepo) RegisterChat(ctx context.Context, chatID int64) error {
	const q = `
		INSERT INTO chats (chat_id)
		VALUES ($1)
		ON CONFLICT (chat_id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, q, chatID); err != nil {
		return fmt.Errorf("chat register: %w", err)
	}
	return nil
}

func (r *ChatRepo) ListChats(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := r.db.SelectContext(ctx, &ids,
		`SELECT chat_id FROM chats ORDER BY chat_id ASC`); err != nil {
		return nil, fmt.Errorf("chat list: %w", err)
	}
	return ids, nil
}

func (r *ChatRepo) CountChats(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM chats`); err != nil {
		return 0, fmt.Errorf("chat count: %w", err)
	}
	return n, nil
}
