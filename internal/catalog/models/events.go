package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type DomainEvent interface {
	EventID() uuid.UUID
	EventType() string
	AggregateID() string
	OccurredAt() time.Time
}

// CatalogItemPublished is emitted in the finalize transaction and drained by
// the outbox publisher for broadcast fan-out.
type CatalogItemPublished struct {
	eventID    uuid.UUID
	itemID     string
	title      string
	parts      int
	occurredAt time.Time
}

func NewCatalogItemPublished(itemID, title string, parts int) *CatalogItemPublished {
	return &CatalogItemPublished{
		eventID:    uuid.New(),
		itemID:     itemID,
		title:      title,
		parts:      parts,
		occurredAt: time.Now(),
	}
}

func (e *CatalogItemPublished) EventID() uuid.UUID    { return e.eventID }
func (e *CatalogItemPublished) EventType() string     { return "CatalogItemPublished" }
func (e *CatalogItemPublished) AggregateID() string   { return e.itemID }
func (e *CatalogItemPublished) OccurredAt() time.Time { return e.occurredAt }

func (e *CatalogItemPublished) Title() string { return e.title }
func (e *CatalogItemPublished) Parts() int    { return e.parts }

func (e *CatalogItemPublished) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		EventID    uuid.UUID `json:"event_id"`
		ItemID     string    `json:"item_id"`
		Title      string    `json:"title"`
		Parts      int       `json:"parts"`
		OccurredAt time.Time `json:"occurred_at"`
	}{
		EventID:    e.eventID,
		ItemID:     e.itemID,
		Title:      e.title,
		Parts:      e.parts,
		OccurredAt: e.occurredAt,
	})
}

// CatalogItemDeleted is emitted in the delete transaction.
type CatalogItemDeleted struct {
	eventID    uuid.UUID
	itemID     string
	occurredAt time.Time
}

func NewCatalogItemDeleted(itemID string) *CatalogItemDeleted {
	return &CatalogItemDeleted{
		eventID:    uuid.New(),
		itemID:     itemID,
		occurredAt: time.Now(),
	}
}

func (e *CatalogItemDeleted) EventID() uuid.UUID    { return e.eventID }
func (e *CatalogItemDeleted) EventType() string     { return "CatalogItemDeleted" }
func (e *CatalogItemDeleted) AggregateID() string   { return e.itemID }
func (e *CatalogItemDeleted) OccurredAt() time.Time { return e.occurredAt }

func (e *CatalogItemDeleted) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		EventID    uuid.UUID `json:"event_id"`
		ItemID     string    `json:"item_id"`
		OccurredAt time.Time `json:"occurred_at"`
	}{
		EventID:    e.eventID,
		ItemID:     e.itemID,
		OccurredAt: e.occurredAt,
	})
}
