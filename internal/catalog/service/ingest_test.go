package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/romariotrain/catalog-bot/internal/catalog/flow"
	"github.com/romariotrain/catalog-bot/internal/catalog/models"
	"github.com/romariotrain/catalog-bot/internal/catalog/repository"
)

const (
	testOwner   int64 = 100
	testArchive int64 = -200
)

func newTestIngestor(t *testing.T, mem *repository.Memory, fw Forwarder) *Ingestor {
	t.Helper()
	ing, err := NewIngestor(IngestorConfig{
		Sessions:      mem,
		Catalog:       mem,
		Forwarder:     fw,
		ArchiveChatID: testArchive,
		OwnerID:       testOwner,
		Logger:        zerolog.Nop(),
	})
	require.NoError(t, err)
	ing.clock = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	ing.idGen = func() uuid.UUID { return uuid.MustParse("deadbeef-0000-0000-0000-000000000000") }
	return ing
}

func TestBegin_Unauthorized(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemory()
	ing := newTestIngestor(t, mem, new(ForwarderMock))

	_, err := ing.Begin(ctx, testOwner+1)
	require.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = mem.GetActiveSession(ctx, testOwner+1)
	require.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestHandle_NoActiveSession(t *testing.T) {
	ctx := context.Background()
	ing := newTestIngestor(t, repository.NewMemory(), new(ForwarderMock))

	_, err := ing.Handle(ctx, testOwner, Input{Kind: InputText, Text: "John Wick"})
	require.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestHandle_FullFlow(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemory()
	fw := new(ForwarderMock)
	ing := newTestIngestor(t, mem, fw)

	_, err := ing.Begin(ctx, testOwner)
	require.NoError(t, err)

	res, err := ing.Handle(ctx, testOwner, Input{Kind: InputText, Text: "  John Wick 4  "})
	require.NoError(t, err)
	require.Equal(t, flow.AwaitingDescription, res.Step)

	res, err = ing.Handle(ctx, testOwner, Input{Kind: InputText, Text: "Action/2024"})
	require.NoError(t, err)
	require.Equal(t, flow.AwaitingCover, res.Step)

	res, err = ing.Handle(ctx, testOwner, Input{Kind: InputPhoto, PhotoRef: "cover-big"})
	require.NoError(t, err)
	require.Equal(t, flow.CollectingParts, res.Step)

	// Each media input is archived and counted.
	for n := 1; n <= 3; n++ {
		ref := fmt.Sprintf("src-%d", n)
		fw.On("Forward", mock.Anything, testArchive, ref).
			Return(fmt.Sprintf("arch-%d", n), nil).Once()

		res, err = ing.Handle(ctx, testOwner, Input{Kind: InputMedia, MessageRef: ref})
		require.NoError(t, err)
		require.Equal(t, flow.CollectingParts, res.Step)
		require.Equal(t, n, res.PartCount)
	}

	res, err = ing.Handle(ctx, testOwner, Input{Kind: InputText, Text: DoneCommand})
	require.NoError(t, err)
	require.Equal(t, flow.Finalized, res.Step)
	require.NotNil(t, res.Item)
	require.Equal(t, "John Wick 4", res.Item.Title)
	require.Equal(t, "Action/2024", res.Item.Description)
	require.NotNil(t, res.Item.CoverRef)
	require.Equal(t, "cover-big", *res.Item.CoverRef)
	require.Equal(t, models.ItemEnded, res.Item.Status)
	require.Equal(t, "itm_1772366400_deadbeef", res.Item.ID)

	// Parts migrated in upload order, session gone.
	parts, err := mem.ListOrderedParts(ctx, res.Item.ID)
	require.NoError(t, err)
	require.Len(t, parts, 3)
	for n, p := range parts {
		require.Equal(t, fmt.Sprintf("arch-%d", n+1), p.MessageRef)
	}
	_, err = mem.GetActiveSession(ctx, testOwner)
	require.ErrorIs(t, err, models.ErrSessionNotFound)

	// Published event recorded in the same finalize write.
	require.Len(t, mem.Events, 1)
	require.Equal(t, "CatalogItemPublished", mem.Events[0].EventType())
	require.Equal(t, res.Item.ID, mem.Events[0].AggregateID())

	fw.AssertExpectations(t)
}

func TestHandle_DuplicateDoneIsNoOp(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemory()
	ing := newTestIngestor(t, mem, new(ForwarderMock))

	_, err := ing.Begin(ctx, testOwner)
	require.NoError(t, err)
	mustAdvanceToParts(t, ing)

	res, err := ing.Handle(ctx, testOwner, Input{Kind: InputText, Text: DoneCommand})
	require.NoError(t, err)
	require.Equal(t, flow.Finalized, res.Step)

	// Replayed /done: no session anymore, nothing written.
	_, err = ing.Handle(ctx, testOwner, Input{Kind: InputText, Text: DoneCommand})
	require.ErrorIs(t, err, models.ErrSessionNotFound)

	items, total, err := mem.ListPage(ctx, 1, 10, "")
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, items, 1)
}

func TestHandle_NonImageCoverReprompts(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemory()
	ing := newTestIngestor(t, mem, new(ForwarderMock))

	_, err := ing.Begin(ctx, testOwner)
	require.NoError(t, err)

	_, err = ing.Handle(ctx, testOwner, Input{Kind: InputText, Text: "Title"})
	require.NoError(t, err)
	_, err = ing.Handle(ctx, testOwner, Input{Kind: InputText, Text: "Desc"})
	require.NoError(t, err)

	res, err := ing.Handle(ctx, testOwner, Input{Kind: InputText, Text: "not a photo"})
	require.ErrorIs(t, err, models.ErrInvalidInputType)
	require.Equal(t, flow.AwaitingCover, res.Step)

	sess, err := mem.GetActiveSession(ctx, testOwner)
	require.NoError(t, err)
	require.Nil(t, sess.CoverRef)
	require.Equal(t, models.SessionInProgress, sess.Status)
}

func TestHandle_WhitespaceTitleRejected(t *testing.T) {
	ctx := context.Background()
	ing := newTestIngestor(t, repository.NewMemory(), new(ForwarderMock))

	_, err := ing.Begin(ctx, testOwner)
	require.NoError(t, err)

	res, err := ing.Handle(ctx, testOwner, Input{Kind: InputText, Text: "   "})
	require.ErrorIs(t, err, models.ErrInvalidInputType)
	require.Equal(t, flow.AwaitingTitle, res.Step)
}

func TestHandle_ArchiveFailureKeepsCollecting(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemory()
	fw := new(ForwarderMock)
	ing := newTestIngestor(t, mem, fw)

	_, err := ing.Begin(ctx, testOwner)
	require.NoError(t, err)
	mustAdvanceToParts(t, ing)

	fw.On("Forward", mock.Anything, testArchive, "src-1").
		Return("", fmt.Errorf("gateway down")).Once()

	res, err := ing.Handle(ctx, testOwner, Input{Kind: InputMedia, MessageRef: "src-1"})
	require.Error(t, err)
	require.Equal(t, flow.CollectingParts, res.Step)

	// Nothing appended; the flow is still collecting.
	sess, err := mem.GetActiveSession(ctx, testOwner)
	require.NoError(t, err)
	parts, err := mem.ListParts(ctx, sess.ID)
	require.NoError(t, err)
	require.Empty(t, parts)
	fw.AssertExpectations(t)
}

func TestHandle_ZeroPartsFinalize(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemory()
	ing := newTestIngestor(t, mem, new(ForwarderMock))

	_, err := ing.Begin(ctx, testOwner)
	require.NoError(t, err)
	mustAdvanceToParts(t, ing)

	res, err := ing.Handle(ctx, testOwner, Input{Kind: InputText, Text: DoneCommand})
	require.NoError(t, err)
	require.NotNil(t, res.Item)

	parts, err := mem.ListOrderedParts(ctx, res.Item.ID)
	require.NoError(t, err)
	require.Empty(t, parts)
}

func TestActiveSession_SurvivesLostPointer(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemory()
	ing := newTestIngestor(t, mem, new(ForwarderMock))

	id, err := ing.Begin(ctx, testOwner)
	require.NoError(t, err)

	// Simulate a restart: the fast-path map is empty, the row survives.
	ing.mu.Lock()
	ing.active = make(map[int64]int64)
	ing.mu.Unlock()

	sess, err := ing.ActiveSession(ctx, testOwner)
	require.NoError(t, err)
	require.Equal(t, id, sess.ID)

	res, err := ing.Handle(ctx, testOwner, Input{Kind: InputText, Text: "Recovered"})
	require.NoError(t, err)
	require.Equal(t, flow.AwaitingDescription, res.Step)
}

func mustAdvanceToParts(t *testing.T, ing *Ingestor) {
	t.Helper()
	ctx := context.Background()
	_, err := ing.Handle(ctx, testOwner, Input{Kind: InputText, Text: "Title"})
	require.NoError(t, err)
	_, err = ing.Handle(ctx, testOwner, Input{Kind: InputText, Text: "Desc"})
	require.NoError(t, err)
	_, err = ing.Handle(ctx, testOwner, Input{Kind: InputPhoto, PhotoRef: "cover"})
	require.NoError(t, err)
}
