package service

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/romariotrain/catalog-bot/internal/catalog/flow"
	"github.com/romariotrain/catalog-bot/internal/catalog/models"
	"github.com/romariotrain/catalog-bot/internal/catalog/repository"
)

// DoneCommand is the literal token that ends part collection.
const DoneCommand = "/done"

type InputKind string

const (
	InputText  InputKind = "text"
	InputPhoto InputKind = "photo"
	InputMedia InputKind = "media" // video or document
)

// Input is one inbound event already classified by the transport edge.
type Input struct {
	Kind InputKind
	Text string
	// PhotoRef is the highest-resolution variant of a photo input.
	PhotoRef string
	// MessageRef is an opaque, forwardable reference to the inbound message.
	MessageRef string
}

// Result describes where the flow stands after handling one input.
type Result struct {
	Step      flow.Step
	PartCount int
	// Item is set once the flow reaches Finalized.
	Item *models.CatalogItem
}

// Forwarder is the slice of the messaging gateway the services need.
type Forwarder interface {
	Forward(ctx context.Context, destChatID int64, messageRef string) (string, error)
}

type IngestorConfig struct {
	Sessions      repository.SessionRepository
	Catalog       repository.CatalogRepository
	Forwarder     Forwarder
	ArchiveChatID int64
	OwnerID       int64
	Logger        zerolog.Logger
}

// Ingestor drives an uploader through the title -> description -> cover ->
// parts -> finalize flow. The durable session row is authoritative; the
// uploader -> session map is only a read-through cache.
type Ingestor struct {
	sessions      repository.SessionRepository
	catalog       repository.CatalogRepository
	forwarder     Forwarder
	archiveChatID int64
	ownerID       int64
	logger        zerolog.Logger

	clock func() time.Time
	idGen func() uuid.UUID

	mu     sync.Mutex
	active map[int64]int64 // uploaderID -> sessionID
}

func NewIngestor(cfg IngestorConfig) (*Ingestor, error) {
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session repository is required")
	}
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("catalog repository is required")
	}
	if cfg.Forwarder == nil {
		return nil, fmt.Errorf("forwarder is required")
	}

	return &Ingestor{
		sessions:      cfg.Sessions,
		catalog:       cfg.Catalog,
		forwarder:     cfg.Forwarder,
		archiveChatID: cfg.ArchiveChatID,
		ownerID:       cfg.OwnerID,
		logger:        cfg.Logger.With().Str("component", "ingestor").Logger(),
		clock:         time.Now,
		idGen:         uuid.New,
		active:        make(map[int64]int64),
	}, nil
}

// Begin opens a fresh ingestion session. Owner-only.
func (i *Ingestor) Begin(ctx context.Context, uploaderID int64) (int64, error) {
	if uploaderID != i.ownerID {
		return 0, models.ErrUnauthorized
	}

	id, err := i.sessions.CreateSession(ctx, uploaderID)
	if err != nil {
		return 0, fmt.Errorf("begin upload: %w", err)
	}

	i.mu.Lock()
	i.active[uploaderID] = id
	i.mu.Unlock()

	i.logger.Info().Int64("uploader_id", uploaderID).Int64("session_id", id).
		Msg("upload session started")
	return id, nil
}

// ActiveSession resolves the uploader's session, falling back to the store
// when the in-memory pointer was lost to a restart.
func (i *Ingestor) ActiveSession(ctx context.Context, uploaderID int64) (*models.UploadSession, error) {
	i.mu.Lock()
	id, ok := i.active[uploaderID]
	i.mu.Unlock()

	if ok {
		sess, err := i.sessions.GetSession(ctx, id)
		if err == nil {
			return sess, nil
		}
		// Stale pointer; drop it and fall through to the store lookup.
		i.forget(uploaderID)
	}

	sess, err := i.sessions.GetActiveSession(ctx, uploaderID)
	if err != nil {
		return nil, err
	}

	i.mu.Lock()
	i.active[uploaderID] = sess.ID
	i.mu.Unlock()
	return sess, nil
}

// HasActive reports whether the uploader is mid-flow, so the update router
// can decide whether an input belongs to the ingestion flow at all.
func (i *Ingestor) HasActive(ctx context.Context, uploaderID int64) bool {
	_, err := i.ActiveSession(ctx, uploaderID)
	return err == nil
}

// Handle routes one classified input to the uploader's current step.
// On models.ErrInvalidInputType the returned Result still carries the
// unchanged step so the caller can re-prompt; no field is mutated.
func (i *Ingestor) Handle(ctx context.Context, uploaderID int64, in Input) (Result, error) {
	sess, err := i.ActiveSession(ctx, uploaderID)
	if err != nil {
		return Result{}, err
	}

	step := flow.StepFor(sess)
	switch step {
	case flow.AwaitingTitle:
		return i.acceptText(ctx, sess, step, in, i.sessions.SetTitle)
	case flow.AwaitingDescription:
		return i.acceptText(ctx, sess, step, in, i.sessions.SetDescription)
	case flow.AwaitingCover:
		return i.acceptCover(ctx, sess, in)
	case flow.CollectingParts:
		return i.collectPart(ctx, sess, in)
	default:
		return Result{Step: step}, models.ErrInvalidInputType
	}
}

func (i *Ingestor) acceptText(
	ctx context.Context,
	sess *models.UploadSession,
	step flow.Step,
	in Input,
	set func(context.Context, int64, string) error,
) (Result, error) {
	text := strings.TrimSpace(in.Text)
	if in.Kind != InputText || text == "" {
		return Result{Step: step}, models.ErrInvalidInputType
	}
	if err := set(ctx, sess.ID, text); err != nil {
		return Result{Step: step}, fmt.Errorf("store %s: %w", step, err)
	}
	return Result{Step: flow.Next(step)}, nil
}

func (i *Ingestor) acceptCover(ctx context.Context, sess *models.UploadSession, in Input) (Result, error) {
	if in.Kind != InputPhoto || in.PhotoRef == "" {
		return Result{Step: flow.AwaitingCover}, models.ErrInvalidInputType
	}
	if err := i.sessions.SetCover(ctx, sess.ID, in.PhotoRef); err != nil {
		return Result{Step: flow.AwaitingCover}, fmt.Errorf("store cover: %w", err)
	}
	return Result{Step: flow.CollectingParts}, nil
}

func (i *Ingestor) collectPart(ctx context.Context, sess *models.UploadSession, in Input) (Result, error) {
	if in.Kind == InputText && strings.TrimSpace(in.Text) == DoneCommand {
		item, err := i.finalize(ctx, sess)
		if err != nil {
			return Result{Step: flow.CollectingParts}, err
		}
		return Result{Step: flow.Finalized, Item: item}, nil
	}

	if in.Kind != InputMedia {
		return Result{Step: flow.CollectingParts}, models.ErrInvalidInputType
	}

	// The archive copy is the redelivery source of truth; store its ref,
	// not the uploader's original message.
	archivedRef, err := i.forwarder.Forward(ctx, i.archiveChatID, in.MessageRef)
	if err != nil {
		i.logger.Error().Err(err).Int64("session_id", sess.ID).
			Msg("failed to archive part")
		return Result{Step: flow.CollectingParts}, fmt.Errorf("archive part: %w", err)
	}

	count, err := i.sessions.AppendPart(ctx, sess.ID, archivedRef)
	if err != nil {
		return Result{Step: flow.CollectingParts}, fmt.Errorf("append part: %w", err)
	}
	return Result{Step: flow.CollectingParts, PartCount: count}, nil
}

func (i *Ingestor) finalize(ctx context.Context, sess *models.UploadSession) (*models.CatalogItem, error) {
	title := "Untitled"
	if sess.Title != nil && strings.TrimSpace(*sess.Title) != "" {
		title = *sess.Title
	}
	description := ""
	if sess.Description != nil {
		description = *sess.Description
	}

	parts, err := i.sessions.ListParts(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("finalize: list parts: %w", err)
	}

	now := i.clock()
	item := &models.CatalogItem{
		ID:          fmt.Sprintf("itm_%d_%.8s", now.Unix(), i.idGen().String()),
		Title:       title,
		Description: description,
		CoverRef:    sess.CoverRef,
		Status:      models.ItemEnded,
		CreatedAt:   now,
	}
	event := models.NewCatalogItemPublished(item.ID, item.Title, len(parts))

	if err := i.catalog.Finalize(ctx, sess.ID, item, event); err != nil {
		return nil, err
	}

	i.forget(sess.UploaderID)
	i.logger.Info().Str("item_id", item.ID).Int("parts", len(parts)).
		Msg("upload finalized")
	return item, nil
}

func (i *Ingestor) forget(uploaderID int64) {
	i.mu.Lock()
	delete(i.active, uploaderID)
	i.mu.Unlock()
}
