package models

import "time"

type SessionStatus string

const (
	// SessionInProgress: still collecting title/description/cover.
	SessionInProgress SessionStatus = "in_progress"
	// SessionUploadingParts: cover stored, collecting media parts.
	// Invariant: a session in this status has a non-nil CoverRef.
	SessionUploadingParts SessionStatus = "uploading_parts"
)

// UploadSession is the durable record of one in-flight ingestion. The row is
// the source of truth; any in-memory pointer to it is a cache.
type UploadSession struct {
	ID          int64         `db:"id"`
	UploaderID  int64         `db:"uploader_id"`
	Title       *string       `db:"title"`
	Description *string       `db:"description"`
	CoverRef    *string       `db:"cover_ref"`
	Status      SessionStatus `db:"status"`
	CreatedAt   time.Time     `db:"created_at"`
}

// SessionPart is a collected-but-not-yet-committed part. All rows of a
// session migrate to Part rows in the finalize transaction.
type SessionPart struct {
	ID         int64  `db:"id"`
	SessionID  int64  `db:"session_id"`
	MessageRef string `db:"message_ref"`
}
