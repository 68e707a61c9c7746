// Package telegram implements botapi.MessagingGateway over the Telegram Bot
// HTTP API. Message refs are "chatID:messageID" pairs; nothing outside this
// package depends on that shape.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/romariotrain/catalog-bot/internal/catalog/botapi"
)

const (
	apiBase     = "https://api.telegram.org"
	pollTimeout = 30 * time.Second
)

type Client struct {
	base   string
	httpc  *http.Client
	logger zerolog.Logger
}

func New(token string, logger zerolog.Logger) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("bot token is empty")
	}
	return &Client{
		base: apiBase + "/bot" + token,
		httpc: &http.Client{
			// Longer than the getUpdates long-poll window.
			Timeout: pollTimeout + 10*time.Second,
		},
		logger: logger.With().Str("component", "telegram").Logger(),
	}, nil
}

func (c *Client) call(ctx context.Context, method string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram %s: marshal: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/"+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	var envelope struct {
		OK          bool            `json:"ok"`
		Description string          `json:"description"`
		Result      json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("telegram %s: decode: %w", method, err)
	}
	if !envelope.OK {
		return fmt.Errorf("telegram %s: %s", method, envelope.Description)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("telegram %s: unmarshal result: %w", method, err)
		}
	}
	return nil
}

func (c *Client) SendText(ctx context.Context, chatID int64, text string, kb *botapi.Keyboard) error {
	payload := map[string]any{"chat_id": chatID, "text": text}
	if markup := replyMarkup(kb); markup != nil {
		payload["reply_markup"] = markup
	}
	return c.call(ctx, "sendMessage", payload, nil)
}

func (c *Client) Forward(ctx context.Context, destChatID int64, messageRef string) (string, error) {
	srcChat, msgID, err := parseRef(messageRef)
	if err != nil {
		return "", err
	}
	var msg apiMessage
	err = c.call(ctx, "forwardMessage", map[string]any{
		"chat_id":      destChatID,
		"from_chat_id": srcChat,
		"message_id":   msgID,
	}, &msg)
	if err != nil {
		return "", err
	}
	return makeRef(destChatID, msg.MessageID), nil
}

func (c *Client) EditMessage(ctx context.Context, chatID int64, messageRef, text string, kb *botapi.Keyboard) error {
	_, msgID, err := parseRef(messageRef)
	if err != nil {
		return err
	}
	payload := map[string]any{"chat_id": chatID, "message_id": msgID, "text": text}
	if markup := replyMarkup(kb); markup != nil {
		payload["reply_markup"] = markup
	}
	return c.call(ctx, "editMessageText", payload, nil)
}

func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	payload := map[string]any{"callback_query_id": callbackID}
	if text != "" {
		payload["text"] = text
	}
	return c.call(ctx, "answerCallbackQuery", payload, nil)
}

func (c *Client) IsChannelMember(ctx context.Context, channel string, userID int64) (bool, error) {
	var member struct {
		Status string `json:"status"`
	}
	err := c.call(ctx, "getChatMember", map[string]any{
		"chat_id": "@" + channel,
		"user_id": userID,
	}, &member)
	if err != nil {
		return false, err
	}
	switch member.Status {
	case "member", "administrator", "creator":
		return true, nil
	default:
		return false, nil
	}
}

// Updates long-polls getUpdates and emits classified updates until the
// context is cancelled. Poll errors are logged and retried with a short
// backoff; the channel closes on cancellation.
func (c *Client) Updates(ctx context.Context) <-chan botapi.Update {
	out := make(chan botapi.Update)
	go func() {
		defer close(out)
		var offset int64
		for {
			if ctx.Err() != nil {
				return
			}

			var updates []apiUpdate
			err := c.call(ctx, "getUpdates", map[string]any{
				"offset":  offset,
				"timeout": int(pollTimeout / time.Second),
			}, &updates)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				c.logger.Error().Err(err).Msg("poll failed")
				select {
				case <-ctx.Done():
					return
				case <-time.After(5 * time.Second):
				}
				continue
			}

			for _, raw := range updates {
				offset = raw.UpdateID + 1
				u, ok := convert(raw)
				if !ok {
					continue
				}
				select {
				case out <- u:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

type apiUpdate struct {
	UpdateID      int64        `json:"update_id"`
	Message       *apiMessage  `json:"message"`
	CallbackQuery *apiCallback `json:"callback_query"`
}

type apiMessage struct {
	MessageID int64          `json:"message_id"`
	From      *apiUser       `json:"from"`
	Chat      apiChat        `json:"chat"`
	Text      string         `json:"text"`
	Photo     []apiPhotoSize `json:"photo"`
	Video     *apiFile       `json:"video"`
	Document  *apiFile       `json:"document"`
}

type apiUser struct {
	ID int64 `json:"id"`
}

type apiChat struct {
	ID int64 `json:"id"`
}

type apiPhotoSize struct {
	FileID string `json:"file_id"`
	Width  int    `json:"width"`
}

type apiFile struct {
	FileID string `json:"file_id"`
}

type apiCallback struct {
	ID      string      `json:"id"`
	From    apiUser     `json:"from"`
	Message *apiMessage `json:"message"`
	Data    string      `json:"data"`
}

func convert(raw apiUpdate) (botapi.Update, bool) {
	if cb := raw.CallbackQuery; cb != nil && cb.Message != nil {
		return botapi.Update{
			Kind:         botapi.UpdateCallback,
			ChatID:       cb.Message.Chat.ID,
			SenderID:     cb.From.ID,
			CallbackID:   cb.ID,
			CallbackData: cb.Data,
			MessageRef:   makeRef(cb.Message.Chat.ID, cb.Message.MessageID),
		}, true
	}

	msg := raw.Message
	if msg == nil {
		return botapi.Update{}, false
	}

	u := botapi.Update{
		ChatID:     msg.Chat.ID,
		MessageRef: makeRef(msg.Chat.ID, msg.MessageID),
	}
	if msg.From != nil {
		u.SenderID = msg.From.ID
	} else {
		u.SenderID = msg.Chat.ID
	}

	switch {
	case len(msg.Photo) > 0:
		u.Kind = botapi.UpdatePhoto
		// The API lists photo sizes smallest first.
		u.PhotoRef = msg.Photo[len(msg.Photo)-1].FileID
	case msg.Video != nil || msg.Document != nil:
		u.Kind = botapi.UpdateMedia
	case msg.Text != "":
		u.Kind = botapi.UpdateText
		u.Text = msg.Text
	default:
		return botapi.Update{}, false
	}
	return u, true
}

func makeRef(chatID, messageID int64) string {
	return strconv.FormatInt(chatID, 10) + ":" + strconv.FormatInt(messageID, 10)
}

func parseRef(ref string) (chatID, messageID int64, err error) {
	chatStr, msgStr, ok := strings.Cut(ref, ":")
	if !ok {
		return 0, 0, fmt.Errorf("malformed message ref %q", ref)
	}
	chatID, err = strconv.ParseInt(chatStr, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed message ref %q", ref)
	}
	messageID, err = strconv.ParseInt(msgStr, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed message ref %q", ref)
	}
	return chatID, messageID, nil
}

func replyMarkup(kb *botapi.Keyboard) any {
	if kb == nil || len(kb.Rows) == 0 {
		return nil
	}

	if kb.Inline {
		rows := make([][]map[string]string, 0, len(kb.Rows))
		for _, row := range kb.Rows {
			r := make([]map[string]string, 0, len(row))
			for _, b := range row {
				btn := map[string]string{"text": b.Text}
				if b.URL != "" {
					btn["url"] = b.URL
				} else {
					btn["callback_data"] = b.Data
				}
				r = append(r, btn)
			}
			rows = append(rows, r)
		}
		return map[string]any{"inline_keyboard": rows}
	}

	rows := make([][]map[string]string, 0, len(kb.Rows))
	for _, row := range kb.Rows {
		r := make([]map[string]string, 0, len(row))
		for _, b := range row {
			r = append(r, map[string]string{"text": b.Text})
		}
		rows = append(rows, r)
	}
	return map[string]any{"keyboard": rows, "resize_keyboard": true}
}
