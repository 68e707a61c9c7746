package models

import "time"

type ItemStatus string

const (
	// ItemEnded is the only status the ingestion flow produces today.
	// Kept as an enum so in-progress publications can be added later.
	ItemEnded ItemStatus = "Ended"
)

// CatalogItem is a finalized media entry. Immutable after finalize except for
// the title/description edits exposed to the owner.
type CatalogItem struct {
	ID          string     `db:"id"`
	Title       string     `db:"title"`
	Description string     `db:"description"`
	CoverRef    *string    `db:"cover_ref"`
	Status      ItemStatus `db:"status"`
	CreatedAt   time.Time  `db:"created_at"`
}

// Part is one ordered media segment of a CatalogItem. The serial id defines
// redelivery order.
type Part struct {
	ID         int64  `db:"id"`
	ItemID     string `db:"item_id"`
	MessageRef string `db:"message_ref"`
}
