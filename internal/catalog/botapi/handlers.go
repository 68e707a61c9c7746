package botapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/romariotrain/catalog-bot/internal/catalog/flow"
	"github.com/romariotrain/catalog-bot/internal/catalog/models"
	"github.com/romariotrain/catalog-bot/internal/catalog/pagetoken"
	"github.com/romariotrain/catalog-bot/internal/catalog/repository"
	"github.com/romariotrain/catalog-bot/internal/catalog/service"
)

const (
	btnCatalog   = "🎬 Catalog"
	btnSearch    = "🔍 Search"
	btnAdd       = "➕ Add"
	btnBroadcast = "📢 Broadcast"
	btnDashboard = "⚙️ Dashboard"

	cbPage       = "pg:"
	cbWatch      = "watch:"
	cbEdit       = "edit:"
	cbDelete     = "del:"
	cbEditField  = "ef:"
	cbEditCancel = "edit_cancel"
	cbDashItems  = "dash:items"
	cbDashUsers  = "dash:users"
	cbJoinCheck  = "join_check"

	defaultPageSize = 5
)

type pendingEdit struct {
	itemID string
	field  string
}

type Config struct {
	Gateway      MessagingGateway
	Ingestor     *service.Ingestor
	Catalog      *service.Catalog
	Chats        repository.ChatRegistry
	OwnerID      int64
	ForceChannel string // empty disables the join gate
	PageSize     int
	Logger       zerolog.Logger
}

// Handler maps gateway updates onto the ingestion and catalog services and
// renders their results back through the gateway.
type Handler struct {
	gw           MessagingGateway
	ingestor     *service.Ingestor
	catalog      *service.Catalog
	chats        repository.ChatRegistry
	ownerID      int64
	forceChannel string
	pageSize     int
	logger       zerolog.Logger

	// Transient conversational state. Losing it on restart only costs the
	// user a re-tap; ingestion state lives in the store.
	mu             sync.Mutex
	pendingEdits   map[int64]pendingEdit
	awaitingSearch map[int64]bool
}

func New(cfg Config) (*Handler, error) {
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	if cfg.Ingestor == nil || cfg.Catalog == nil {
		return nil, fmt.Errorf("services are required")
	}
	if cfg.Chats == nil {
		return nil, fmt.Errorf("chat registry is required")
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	return &Handler{
		gw:             cfg.Gateway,
		ingestor:       cfg.Ingestor,
		catalog:        cfg.Catalog,
		chats:          cfg.Chats,
		ownerID:        cfg.OwnerID,
		forceChannel:   cfg.ForceChannel,
		pageSize:       cfg.PageSize,
		logger:         cfg.Logger.With().Str("component", "botapi").Logger(),
		pendingEdits:   make(map[int64]pendingEdit),
		awaitingSearch: make(map[int64]bool),
	}, nil
}

// HandleUpdate processes one inbound update. Errors are reported to the user
// and logged; none of them stop the update loop.
func (h *Handler) HandleUpdate(ctx context.Context, u Update) {
	if u.Kind == UpdateCallback {
		h.handleCallback(ctx, u)
		return
	}
	h.handleMessage(ctx, u)
}

func (h *Handler) handleMessage(ctx context.Context, u Update) {
	if err := h.chats.RegisterChat(ctx, u.ChatID); err != nil {
		h.logger.Warn().Err(err).Int64("chat_id", u.ChatID).Msg("failed to register chat")
	}

	if u.Kind == UpdateText {
		text := strings.TrimSpace(u.Text)
		switch {
		case text == "/start":
			h.start(ctx, u)
			return
		case strings.HasPrefix(text, "/broadcast"):
			h.broadcast(ctx, u, text)
			return
		case text == btnCatalog:
			h.sendCatalogPage(ctx, u.ChatID, pagetoken.New(1, ""), "")
			return
		case text == btnSearch:
			h.setAwaitingSearch(u.SenderID, true)
			h.reply(ctx, u.ChatID, "Type a title to search for:")
			return
		case text == btnAdd:
			h.beginUpload(ctx, u)
			return
		case text == btnBroadcast:
			if u.SenderID == h.ownerID {
				h.reply(ctx, u.ChatID, "Usage: /broadcast <text>")
			}
			return
		case text == btnDashboard:
			h.dashboard(ctx, u)
			return
		}

		if edit, ok := h.takePendingEdit(u.SenderID); ok {
			h.applyEdit(ctx, u, edit, text)
			return
		}
		if h.takeAwaitingSearch(u.SenderID) {
			h.search(ctx, u.ChatID, text)
			return
		}
	}

	// Anything left belongs to the ingestion flow if one is active;
	// otherwise it is simply ignored.
	if h.ingestor.HasActive(ctx, u.SenderID) {
		h.dispatchIngest(ctx, u)
	}
}

// ================= start / force join =================

func (h *Handler) start(ctx context.Context, u Update) {
	if h.forceChannel != "" {
		member, err := h.gw.IsChannelMember(ctx, h.forceChannel, u.SenderID)
		if err != nil {
			h.logger.Warn().Err(err).Msg("membership check failed")
		}
		if !member {
			kb := &Keyboard{Inline: true}
			kb.AddRow(Button{Text: "🔔 Join channel", URL: "https://t.me/" + h.forceChannel})
			kb.AddRow(Button{Text: "✅ Done", Data: cbJoinCheck})
			h.sendWithKeyboard(ctx, u.ChatID, "Please join our channel first.", kb)
			return
		}
	}
	h.mainMenu(ctx, u.ChatID, u.SenderID)
}

func (h *Handler) mainMenu(ctx context.Context, chatID, userID int64) {
	kb := &Keyboard{}
	kb.AddRow(Button{Text: btnCatalog}, Button{Text: btnSearch})
	if userID == h.ownerID {
		kb.AddRow(Button{Text: btnAdd}, Button{Text: btnBroadcast})
		kb.AddRow(Button{Text: btnDashboard})
	}
	h.sendWithKeyboard(ctx, chatID, "🏠 Main menu", kb)
}

// ================= ingestion =================

func (h *Handler) beginUpload(ctx context.Context, u Update) {
	if _, err := h.ingestor.Begin(ctx, u.SenderID); err != nil {
		// Non-owners pressing Add are silently ignored.
		if !errors.Is(err, models.ErrUnauthorized) {
			h.logger.Error().Err(err).Msg("failed to begin upload")
			h.reply(ctx, u.ChatID, "Could not start the upload, try again.")
		}
		return
	}
	h.reply(ctx, u.ChatID, stepPrompt(flow.AwaitingTitle))
}

func (h *Handler) dispatchIngest(ctx context.Context, u Update) {
	in := service.Input{Text: u.Text, PhotoRef: u.PhotoRef, MessageRef: u.MessageRef}
	switch u.Kind {
	case UpdateText:
		in.Kind = service.InputText
	case UpdatePhoto:
		in.Kind = service.InputPhoto
	case UpdateMedia:
		in.Kind = service.InputMedia
	default:
		return
	}

	res, err := h.ingestor.Handle(ctx, u.SenderID, in)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrSessionNotFound):
		h.reply(ctx, u.ChatID, "⚠️ No active upload session. Press ➕ Add to start over.")
		return
	case errors.Is(err, models.ErrInvalidInputType):
		h.reply(ctx, u.ChatID, stepReprompt(res.Step))
		return
	default:
		h.logger.Error().Err(err).Msg("ingest step failed")
		h.reply(ctx, u.ChatID, "⛔ Something went wrong with that part, try again.")
		return
	}

	switch {
	case res.Item != nil:
		h.reply(ctx, u.ChatID, fmt.Sprintf("🎊 '%s' published\nID: %s", res.Item.Title, res.Item.ID))
	case res.PartCount > 0:
		h.reply(ctx, u.ChatID, fmt.Sprintf("✅ Part %d saved. Send the next one, or %s to finish.", res.PartCount, service.DoneCommand))
	default:
		h.reply(ctx, u.ChatID, stepPrompt(res.Step))
	}
}

func stepPrompt(s flow.Step) string {
	switch s {
	case flow.AwaitingTitle:
		return "🎬 Send the title (e.g. John Wick)"
	case flow.AwaitingDescription:
		return "📝 Send the description (e.g. Action/2024)"
	case flow.AwaitingCover:
		return "🖼 Send a cover photo"
	case flow.CollectingParts:
		return fmt.Sprintf("📹 Send video or file parts. Send %s when finished.", service.DoneCommand)
	default:
		return "Done."
	}
}

func stepReprompt(s flow.Step) string {
	switch s {
	case flow.AwaitingTitle, flow.AwaitingDescription:
		return "⚠️ Please send plain text."
	case flow.AwaitingCover:
		return "⚠️ Please send a photo."
	default:
		return fmt.Sprintf("🔹 Send a video or file, or %s to finish.", service.DoneCommand)
	}
}

// ================= browsing / search =================

func (h *Handler) search(ctx context.Context, chatID int64, query string) {
	h.sendCatalogPage(ctx, chatID, pagetoken.New(1, query), "")
}

// sendCatalogPage renders one catalog page. With editRef set it edits the
// existing message in place (pagination round-trip), otherwise it sends a
// fresh one.
func (h *Handler) sendCatalogPage(ctx context.Context, chatID int64, tok pagetoken.Token, editRef string) {
	items, total, err := h.catalog.ListPage(ctx, tok.Page, h.pageSize, tok.Query)
	if err != nil {
		h.logger.Error().Err(err).Msg("list page failed")
		h.reply(ctx, chatID, "⛔ Could not load the catalog.")
		return
	}
	if total == 0 {
		if tok.Query != "" {
			h.reply(ctx, chatID, fmt.Sprintf("Nothing found for '%s'.", tok.Query))
		} else {
			h.reply(ctx, chatID, "The catalog is empty.")
		}
		return
	}

	maxPage := pagetoken.MaxPage(total, h.pageSize)
	kb := &Keyboard{Inline: true}
	for _, it := range items {
		kb.AddRow(Button{Text: "📺 " + it.Title, Data: cbWatch + it.ID})
	}
	var nav []Button
	if prev, ok := tok.Prev(); ok {
		nav = append(nav, Button{Text: "⬅️ Prev", Data: cbPage + prev.Encode()})
	}
	if next, ok := tok.Next(maxPage); ok {
		nav = append(nav, Button{Text: "Next ➡️", Data: cbPage + next.Encode()})
	}
	if len(nav) > 0 {
		kb.AddRow(nav...)
	}

	title := fmt.Sprintf("Catalog (page %d/%d):", tok.Page, maxPage)
	if tok.Query != "" {
		title = fmt.Sprintf("Results for '%s' (page %d/%d):", tok.Query, tok.Page, maxPage)
	}

	if editRef != "" {
		if err := h.gw.EditMessage(ctx, chatID, editRef, title, kb); err != nil {
			h.logger.Warn().Err(err).Msg("edit page message failed")
		}
		return
	}
	h.sendWithKeyboard(ctx, chatID, title, kb)
}

// ================= callbacks =================

func (h *Handler) handleCallback(ctx context.Context, u Update) {
	data := u.CallbackData
	switch {
	case data == cbJoinCheck:
		h.joinCheck(ctx, u)
	case strings.HasPrefix(data, cbPage):
		tok, err := pagetoken.Decode(strings.TrimPrefix(data, cbPage))
		if err != nil {
			h.answer(ctx, u.CallbackID, "Bad page token")
			return
		}
		h.sendCatalogPage(ctx, u.ChatID, tok, u.MessageRef)
		h.answer(ctx, u.CallbackID, "")
	case strings.HasPrefix(data, cbWatch):
		h.watch(ctx, u, strings.TrimPrefix(data, cbWatch))
	case data == cbEditCancel:
		h.clearPendingEdit(u.SenderID)
		h.answer(ctx, u.CallbackID, "Cancelled")
	case strings.HasPrefix(data, cbDelete):
		h.deleteItem(ctx, u, strings.TrimPrefix(data, cbDelete))
	case strings.HasPrefix(data, cbEdit):
		h.editMenu(ctx, u, strings.TrimPrefix(data, cbEdit))
	case strings.HasPrefix(data, cbEditField):
		h.chooseEditField(ctx, u, strings.TrimPrefix(data, cbEditField))
	case data == cbDashItems:
		h.dashItems(ctx, u)
	case data == cbDashUsers:
		h.dashUsers(ctx, u)
	default:
		h.answer(ctx, u.CallbackID, "")
	}
}

func (h *Handler) joinCheck(ctx context.Context, u Update) {
	member, err := h.gw.IsChannelMember(ctx, h.forceChannel, u.SenderID)
	if err != nil || !member {
		h.answer(ctx, u.CallbackID, "Not joined yet")
		return
	}
	h.answer(ctx, u.CallbackID, "")
	h.mainMenu(ctx, u.ChatID, u.SenderID)
}

func (h *Handler) watch(ctx context.Context, u Update, itemID string) {
	h.answer(ctx, u.CallbackID, "")

	item, delivered, err := h.catalog.Redeliver(ctx, u.ChatID, itemID)
	if err != nil {
		if errors.Is(err, models.ErrItemNotFound) {
			h.reply(ctx, u.ChatID, "Item not found.")
		} else {
			h.logger.Error().Err(err).Str("item_id", itemID).Msg("redelivery failed")
			h.reply(ctx, u.ChatID, "⛔ Delivery failed, try again later.")
		}
		return
	}
	h.reply(ctx, u.ChatID, fmt.Sprintf("✅ '%s' sent (%d parts).", item.Title, delivered))
}

func (h *Handler) deleteItem(ctx context.Context, u Update, itemID string) {
	if !h.requireOwner(ctx, u) {
		return
	}
	err := h.catalog.DeleteItem(ctx, itemID)
	switch {
	case errors.Is(err, models.ErrItemNotFound):
		h.answer(ctx, u.CallbackID, "Not found")
	case err != nil:
		h.logger.Error().Err(err).Str("item_id", itemID).Msg("delete failed")
		h.answer(ctx, u.CallbackID, "Delete failed")
	default:
		h.answer(ctx, u.CallbackID, "Deleted")
		if u.MessageRef != "" {
			_ = h.gw.EditMessage(ctx, u.ChatID, u.MessageRef, "Deleted.", nil)
		}
	}
}

func (h *Handler) editMenu(ctx context.Context, u Update, itemID string) {
	if !h.requireOwner(ctx, u) {
		return
	}
	kb := &Keyboard{Inline: true}
	kb.AddRow(Button{Text: "Title", Data: cbEditField + "title:" + itemID})
	kb.AddRow(Button{Text: "Description", Data: cbEditField + "description:" + itemID})
	kb.AddRow(Button{Text: "Cancel", Data: cbEditCancel})
	h.answer(ctx, u.CallbackID, "")
	h.sendWithKeyboard(ctx, u.ChatID, "Select field to edit:", kb)
}

func (h *Handler) chooseEditField(ctx context.Context, u Update, payload string) {
	if !h.requireOwner(ctx, u) {
		return
	}
	field, itemID, ok := strings.Cut(payload, ":")
	if !ok {
		h.answer(ctx, u.CallbackID, "Bad payload")
		return
	}
	if field != "title" && field != "description" {
		h.answer(ctx, u.CallbackID, "Unsupported")
		return
	}

	h.mu.Lock()
	h.pendingEdits[u.SenderID] = pendingEdit{itemID: itemID, field: field}
	h.mu.Unlock()

	h.answer(ctx, u.CallbackID, "")
	h.reply(ctx, u.ChatID, fmt.Sprintf("Enter new %s:", field))
}

func (h *Handler) applyEdit(ctx context.Context, u Update, edit pendingEdit, text string) {
	err := h.catalog.UpdateField(ctx, edit.itemID, edit.field, text)
	switch {
	case errors.Is(err, models.ErrItemNotFound):
		h.reply(ctx, u.ChatID, "Item not found.")
	case errors.Is(err, models.ErrInvalidArgument):
		h.reply(ctx, u.ChatID, "Value cannot be empty.")
	case err != nil:
		h.logger.Error().Err(err).Msg("edit failed")
		h.reply(ctx, u.ChatID, "⛔ Update failed.")
	default:
		h.reply(ctx, u.ChatID, fmt.Sprintf("The %s is updated.", edit.field))
	}
}

// ================= owner dashboard / broadcast =================

func (h *Handler) dashboard(ctx context.Context, u Update) {
	if u.SenderID != h.ownerID {
		return
	}
	kb := &Keyboard{Inline: true}
	kb.AddRow(
		Button{Text: "🎬 Manage items", Data: cbDashItems},
		Button{Text: "👥 Chats", Data: cbDashUsers},
	)
	h.sendWithKeyboard(ctx, u.ChatID, "🛠 Dashboard", kb)
}

func (h *Handler) dashItems(ctx context.Context, u Update) {
	if !h.requireOwner(ctx, u) {
		return
	}
	items, total, err := h.catalog.ListPage(ctx, 1, h.pageSize, "")
	if err != nil || total == 0 {
		h.answer(ctx, u.CallbackID, "No items")
		return
	}
	h.answer(ctx, u.CallbackID, "")
	for _, it := range items {
		kb := &Keyboard{Inline: true}
		kb.AddRow(
			Button{Text: "Edit", Data: cbEdit + it.ID},
			Button{Text: "Delete", Data: cbDelete + it.ID},
		)
		h.sendWithKeyboard(ctx, u.ChatID, "🎬 "+it.Title, kb)
	}
}

func (h *Handler) dashUsers(ctx context.Context, u Update) {
	if !h.requireOwner(ctx, u) {
		return
	}
	n, err := h.chats.CountChats(ctx)
	if err != nil {
		h.answer(ctx, u.CallbackID, "Count failed")
		return
	}
	h.answer(ctx, u.CallbackID, fmt.Sprintf("Chats: %d", n))
}

func (h *Handler) broadcast(ctx context.Context, u Update, text string) {
	if u.SenderID != h.ownerID {
		return
	}
	_, body, ok := strings.Cut(text, " ")
	body = strings.TrimSpace(body)
	if !ok || body == "" {
		h.reply(ctx, u.ChatID, "Usage: /broadcast <text>")
		return
	}

	chats, err := h.chats.ListChats(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("broadcast: list chats failed")
		h.reply(ctx, u.ChatID, "⛔ Broadcast failed.")
		return
	}

	sent := 0
	for _, chatID := range chats {
		if err := h.gw.SendText(ctx, chatID, body, nil); err != nil {
			h.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("broadcast send failed")
			continue
		}
		sent++
	}
	h.reply(ctx, u.ChatID, fmt.Sprintf("Broadcast sent to %d chats.", sent))
}

// ================= helpers =================

func (h *Handler) requireOwner(ctx context.Context, u Update) bool {
	if u.SenderID == h.ownerID {
		return true
	}
	h.answer(ctx, u.CallbackID, "Unauthorized")
	return false
}

func (h *Handler) reply(ctx context.Context, chatID int64, text string) {
	if err := h.gw.SendText(ctx, chatID, text, nil); err != nil {
		h.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("send failed")
	}
}

func (h *Handler) sendWithKeyboard(ctx context.Context, chatID int64, text string, kb *Keyboard) {
	if err := h.gw.SendText(ctx, chatID, text, kb); err != nil {
		h.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("send failed")
	}
}

func (h *Handler) answer(ctx context.Context, callbackID, text string) {
	if callbackID == "" {
		return
	}
	if err := h.gw.AnswerCallback(ctx, callbackID, text); err != nil {
		h.logger.Warn().Err(err).Msg("answer callback failed")
	}
}

func (h *Handler) setAwaitingSearch(userID int64, v bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if v {
		h.awaitingSearch[userID] = true
	} else {
		delete(h.awaitingSearch, userID)
	}
}

func (h *Handler) takeAwaitingSearch(userID int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.awaitingSearch[userID] {
		delete(h.awaitingSearch, userID)
		return true
	}
	return false
}

func (h *Handler) takePendingEdit(userID int64) (pendingEdit, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	edit, ok := h.pendingEdits[userID]
	if ok {
		delete(h.pendingEdits, userID)
	}
	return edit, ok
}

func (h *Handler) clearPendingEdit(userID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.pendingEdits, userID)
}
