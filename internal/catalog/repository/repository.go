package repository

import (
	"context"

	"github.com/romariotrain/catalog-bot/internal/catalog/models"
)

// SessionRepository owns UploadSession and SessionPart rows.
type SessionRepository interface {
	// CreateSession opens a fresh session for the uploader, replacing any
	// prior one so at most one active session per uploader exists.
	CreateSession(ctx context.Context, uploaderID int64) (int64, error)
	GetSession(ctx context.Context, id int64) (*models.UploadSession, error)
	// GetActiveSession looks the session up by uploader; used to recover the
	// fast-path pointer after a restart.
	GetActiveSession(ctx context.Context, uploaderID int64) (*models.UploadSession, error)
	SetTitle(ctx context.Context, id int64, title string) error
	SetDescription(ctx context.Context, id int64, description string) error
	SetCover(ctx context.Context, id int64, coverRef string) error
	// AppendPart returns the new total part count for progress reporting.
	AppendPart(ctx context.Context, id int64, messageRef string) (int, error)
	ListParts(ctx context.Context, id int64) ([]models.SessionPart, error)
	DeleteSession(ctx context.Context, id int64) error
}

// CatalogRepository owns CatalogItem and Part rows.
type CatalogRepository interface {
	GetItem(ctx context.Context, id string) (*models.CatalogItem, error)
	// ListPage returns one page of items, newest first, optionally filtered
	// by a case-insensitive substring match on title, plus the filtered total.
	ListPage(ctx context.Context, page, pageSize int, query string) ([]models.CatalogItem, int, error)
	// ListOrderedParts returns the item's parts in ascending id order, which
	// is upload order.
	ListOrderedParts(ctx context.Context, itemID string) ([]models.Part, error)
	UpdateField(ctx context.Context, id, field, value string) error
	// DeleteItem cascades part deletion and records the event atomically.
	DeleteItem(ctx context.Context, id string, event models.DomainEvent) error
	// Finalize migrates the session's parts under the new item and deletes
	// the session, all-or-nothing. A missing session means a replayed
	// finalize: models.ErrSessionNotFound, no writes.
	Finalize(ctx context.Context, sessionID int64, item *models.CatalogItem, event models.DomainEvent) error
}

// ChatRegistry tracks every chat that ever talked to the bot, for broadcast.
type ChatRegistry interface {
	RegisterChat(ctx context.Context, chatID int64) error
	ListChats(ctx context.Context) ([]int64, error)
	CountChats(ctx context.Context) (int, error)
}
