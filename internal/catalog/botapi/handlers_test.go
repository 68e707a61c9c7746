package botapi

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/romariotrain/catalog-bot/internal/catalog/models"
	"github.com/romariotrain/catalog-bot/internal/catalog/pagetoken"
	"github.com/romariotrain/catalog-bot/internal/catalog/repository"
	"github.com/romariotrain/catalog-bot/internal/catalog/service"
)

const (
	owner   int64 = 42
	visitor int64 = 7
	archive int64 = -900
)

type GatewayMock struct {
	mock.Mock
}

func (g *GatewayMock) SendText(ctx context.Context, chatID int64, text string, kb *Keyboard) error {
	args := g.Called(ctx, chatID, text, kb)
	return args.Error(0)
}

func (g *GatewayMock) Forward(ctx context.Context, destChatID int64, messageRef string) (string, error) {
	args := g.Called(ctx, destChatID, messageRef)
	return args.String(0), args.Error(1)
}

func (g *GatewayMock) EditMessage(ctx context.Context, chatID int64, messageRef, text string, kb *Keyboard) error {
	args := g.Called(ctx, chatID, messageRef, text, kb)
	return args.Error(0)
}

func (g *GatewayMock) AnswerCallback(ctx context.Context, callbackID, text string) error {
	args := g.Called(ctx, callbackID, text)
	return args.Error(0)
}

func (g *GatewayMock) IsChannelMember(ctx context.Context, channel string, userID int64) (bool, error) {
	args := g.Called(ctx, channel, userID)
	return args.Bool(0), args.Error(1)
}

type fixture struct {
	h   *Handler
	gw  *GatewayMock
	mem *repository.Memory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gw := new(GatewayMock)
	mem := repository.NewMemory()

	ing, err := service.NewIngestor(service.IngestorConfig{
		Sessions:      mem,
		Catalog:       mem,
		Forwarder:     gw,
		ArchiveChatID: archive,
		OwnerID:       owner,
		Logger:        zerolog.Nop(),
	})
	require.NoError(t, err)

	cat := service.NewCatalog(mem, gw, service.NewRatePacer(time.Microsecond), zerolog.Nop())

	h, err := New(Config{
		Gateway:  gw,
		Ingestor: ing,
		Catalog:  cat,
		Chats:    mem,
		OwnerID:  owner,
		PageSize: 5,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	return &fixture{h: h, gw: gw, mem: mem}
}

func seedCatalog(t *testing.T, mem *repository.Memory, titles ...string) []string {
	t.Helper()
	ctx := context.Background()
	ids := make([]string, 0, len(titles))
	for n, title := range titles {
		sessID, err := mem.CreateSession(ctx, int64(5000+n))
		require.NoError(t, err)
		item := &models.CatalogItem{
			ID:        fmt.Sprintf("itm_%02d", n),
			Title:     title,
			Status:    models.ItemEnded,
			CreatedAt: time.Date(2026, 2, 1, 0, n, 0, 0, time.UTC),
		}
		require.NoError(t, mem.Finalize(ctx, sessID, item, nil))
		ids = append(ids, item.ID)
	}
	return ids
}

func text(sender int64, s string) Update {
	return Update{Kind: UpdateText, ChatID: sender, SenderID: sender, Text: s}
}

func callback(sender int64, data string) Update {
	return Update{
		Kind: UpdateCallback, ChatID: sender, SenderID: sender,
		CallbackID: "cb-1", CallbackData: data, MessageRef: "msg-1",
	}
}

func TestStart_RegistersChatAndShowsMenu(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var kb *Keyboard
	f.gw.On("SendText", mock.Anything, visitor, "🏠 Main menu", mock.Anything).
		Run(func(args mock.Arguments) { kb = args.Get(3).(*Keyboard) }).
		Return(nil).Once()

	f.h.HandleUpdate(ctx, text(visitor, "/start"))

	n, err := f.mem.CountChats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.NotNil(t, kb)
	require.Len(t, kb.Rows, 1, "visitor menu has no owner rows")

	// The owner menu carries the management rows.
	f.gw.On("SendText", mock.Anything, owner, "🏠 Main menu", mock.Anything).
		Run(func(args mock.Arguments) { kb = args.Get(3).(*Keyboard) }).
		Return(nil).Once()
	f.h.HandleUpdate(ctx, text(owner, "/start"))
	require.Len(t, kb.Rows, 3)

	f.gw.AssertExpectations(t)
}

func TestAdd_NonOwnerSilentlyIgnored(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// No SendText expectation: nothing at all should be sent.
	f.h.HandleUpdate(ctx, text(visitor, btnAdd))

	_, err := f.mem.GetActiveSession(ctx, visitor)
	require.ErrorIs(t, err, models.ErrSessionNotFound)
	f.gw.AssertNotCalled(t, "SendText", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAdd_OwnerWalksThroughPrompts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.gw.On("SendText", mock.Anything, owner, mock.Anything, mock.Anything).Return(nil)
	f.gw.On("Forward", mock.Anything, archive, "src-1").Return("arch-1", nil).Once()

	f.h.HandleUpdate(ctx, text(owner, btnAdd))
	f.h.HandleUpdate(ctx, text(owner, "John Wick 4"))
	f.h.HandleUpdate(ctx, text(owner, "Action/2024"))
	f.h.HandleUpdate(ctx, Update{Kind: UpdatePhoto, ChatID: owner, SenderID: owner, PhotoRef: "cover"})
	f.h.HandleUpdate(ctx, Update{Kind: UpdateMedia, ChatID: owner, SenderID: owner, MessageRef: "src-1"})
	f.h.HandleUpdate(ctx, text(owner, service.DoneCommand))

	items, total, err := f.mem.ListPage(ctx, 1, 10, "")
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, "John Wick 4", items[0].Title)

	f.gw.AssertExpectations(t)
}

func TestPaginationCallback_EditsInPlace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedCatalog(t, f.mem, "A", "B", "C", "D", "E", "F", "G")

	tok := pagetoken.New(2, "")
	f.gw.On("AnswerCallback", mock.Anything, "cb-1", "").Return(nil).Once()
	f.gw.On("EditMessage", mock.Anything, visitor, "msg-1", "Catalog (page 2/2):", mock.Anything).
		Return(nil).Once()

	f.h.HandleUpdate(ctx, callback(visitor, cbPage+tok.Encode()))
	f.gw.AssertExpectations(t)
}

func TestSearchFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedCatalog(t, f.mem, "John Wick 4", "Interstellar")

	f.gw.On("SendText", mock.Anything, visitor, "Type a title to search for:", mock.Anything).
		Return(nil).Once()
	f.gw.On("SendText", mock.Anything, visitor, "Results for 'wick' (page 1/1):", mock.Anything).
		Return(nil).Once()

	f.h.HandleUpdate(ctx, text(visitor, btnSearch))
	f.h.HandleUpdate(ctx, text(visitor, "wick"))
	f.gw.AssertExpectations(t)
}

func TestDeleteCallback_NonOwnerDenied(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ids := seedCatalog(t, f.mem, "Keep me")

	f.gw.On("AnswerCallback", mock.Anything, "cb-1", "Unauthorized").Return(nil).Once()

	f.h.HandleUpdate(ctx, callback(visitor, cbDelete+ids[0]))

	_, err := f.mem.GetItem(ctx, ids[0])
	require.NoError(t, err, "item must survive")
	f.gw.AssertExpectations(t)
}

func TestDeleteCallback_Owner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ids := seedCatalog(t, f.mem, "Goner")

	f.gw.On("AnswerCallback", mock.Anything, "cb-1", "Deleted").Return(nil).Once()
	f.gw.On("EditMessage", mock.Anything, owner, "msg-1", "Deleted.", (*Keyboard)(nil)).
		Return(nil).Once()

	f.h.HandleUpdate(ctx, callback(owner, cbDelete+ids[0]))

	_, err := f.mem.GetItem(ctx, ids[0])
	require.ErrorIs(t, err, models.ErrItemNotFound)
	f.gw.AssertExpectations(t)
}

func TestWatchCallback_Redelivers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// One item with two parts, built through the real finalize path.
	sessID, err := f.mem.CreateSession(ctx, 5000)
	require.NoError(t, err)
	_, err = f.mem.AppendPart(ctx, sessID, "arch-1")
	require.NoError(t, err)
	_, err = f.mem.AppendPart(ctx, sessID, "arch-2")
	require.NoError(t, err)
	item := &models.CatalogItem{ID: "itm_x", Title: "Solo", Status: models.ItemEnded, CreatedAt: time.Now()}
	require.NoError(t, f.mem.Finalize(ctx, sessID, item, nil))

	f.gw.On("AnswerCallback", mock.Anything, "cb-1", "").Return(nil).Once()
	f.gw.On("Forward", mock.Anything, visitor, "arch-1").Return("d1", nil).Once()
	f.gw.On("Forward", mock.Anything, visitor, "arch-2").Return("d2", nil).Once()
	f.gw.On("SendText", mock.Anything, visitor, "✅ 'Solo' sent (2 parts).", mock.Anything).
		Return(nil).Once()

	f.h.HandleUpdate(ctx, callback(visitor, cbWatch+"itm_x"))
	f.gw.AssertExpectations(t)
}

func TestStrayInputWithoutSessionIsIgnored(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// Random text from a visitor with no session, no pending flow: silence.
	f.h.HandleUpdate(ctx, text(visitor, "hello there"))
	f.gw.AssertNotCalled(t, "SendText", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBroadcast(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.mem.RegisterChat(ctx, 1))
	require.NoError(t, f.mem.RegisterChat(ctx, 2))
	require.NoError(t, f.mem.RegisterChat(ctx, 3))

	// The owner's own chat registers on the /broadcast message itself.
	// One recipient fails; the rest still get the message.
	f.gw.On("SendText", mock.Anything, int64(1), "hi all", (*Keyboard)(nil)).Return(nil).Once()
	f.gw.On("SendText", mock.Anything, int64(2), "hi all", (*Keyboard)(nil)).
		Return(fmt.Errorf("blocked")).Once()
	f.gw.On("SendText", mock.Anything, int64(3), "hi all", (*Keyboard)(nil)).Return(nil).Once()
	f.gw.On("SendText", mock.Anything, owner, "hi all", (*Keyboard)(nil)).Return(nil).Once()
	f.gw.On("SendText", mock.Anything, owner, "Broadcast sent to 3 chats.", (*Keyboard)(nil)).
		Return(nil).Once()

	f.h.HandleUpdate(ctx, text(owner, "/broadcast hi all"))
	f.gw.AssertExpectations(t)
}
