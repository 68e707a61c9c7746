package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/romariotrain/catalog-bot/internal/catalog/models"
	"github.com/romariotrain/catalog-bot/internal/catalog/repository"
)

// Pacer throttles the sequential redelivery loop.
type Pacer interface {
	Wait(ctx context.Context) error
}

type ratePacer struct {
	lim *rate.Limiter
}

// NewRatePacer paces to one event per interval, first event immediate.
func NewRatePacer(interval time.Duration) Pacer {
	return ratePacer{lim: rate.NewLimiter(rate.Every(interval), 1)}
}

func (p ratePacer) Wait(ctx context.Context) error { return p.lim.Wait(ctx) }

// Catalog is the read/manage side: paging, search, redelivery, owner edits.
type Catalog struct {
	repo      repository.CatalogRepository
	forwarder Forwarder
	pacer     Pacer
	logger    zerolog.Logger
}

func NewCatalog(repo repository.CatalogRepository, forwarder Forwarder, pacer Pacer, logger zerolog.Logger) *Catalog {
	return &Catalog{
		repo:      repo,
		forwarder: forwarder,
		pacer:     pacer,
		logger:    logger.With().Str("component", "catalog").Logger(),
	}
}

func (c *Catalog) ListPage(ctx context.Context, page, pageSize int, query string) ([]models.CatalogItem, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		return nil, 0, models.ErrInvalidArgument
	}
	return c.repo.ListPage(ctx, page, pageSize, strings.TrimSpace(query))
}

func (c *Catalog) FetchItem(ctx context.Context, id string) (*models.CatalogItem, error) {
	return c.repo.GetItem(ctx, id)
}

func (c *Catalog) ListOrderedParts(ctx context.Context, id string) ([]models.Part, error) {
	return c.repo.ListOrderedParts(ctx, id)
}

// Redeliver forwards every part of the item to destChatID in upload order,
// paced to respect the gateway rate limit. A failed part is logged and
// skipped; the remaining parts are still sent. Returns the item and the
// number of parts actually delivered.
func (c *Catalog) Redeliver(ctx context.Context, destChatID int64, id string) (*models.CatalogItem, int, error) {
	item, err := c.repo.GetItem(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	parts, err := c.repo.ListOrderedParts(ctx, id)
	if err != nil {
		return nil, 0, err
	}

	delivered := 0
	for _, p := range parts {
		if err := c.pacer.Wait(ctx); err != nil {
			return item, delivered, fmt.Errorf("redeliver: %w", err)
		}
		if _, err := c.forwarder.Forward(ctx, destChatID, p.MessageRef); err != nil {
			c.logger.Error().Err(err).
				Str("item_id", id).
				Int64("part_id", p.ID).
				Msg("failed to deliver part, skipping")
			continue
		}
		delivered++
	}

	c.logger.Info().Str("item_id", id).
		Int("delivered", delivered).Int("total", len(parts)).
		Msg("redelivery finished")
	return item, delivered, nil
}

func (c *Catalog) DeleteItem(ctx context.Context, id string) error {
	event := models.NewCatalogItemDeleted(id)
	if err := c.repo.DeleteItem(ctx, id, event); err != nil {
		return err
	}
	c.logger.Info().Str("item_id", id).Msg("item deleted")
	return nil
}

// UpdateField edits one of the two mutable item fields.
func (c *Catalog) UpdateField(ctx context.Context, id, field, value string) error {
	switch field {
	case "title", "description":
	default:
		return models.ErrUnknownField
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return models.ErrInvalidArgument
	}
	return c.repo.UpdateField(ctx, id, field, value)
}
