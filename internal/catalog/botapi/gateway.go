package botapi

import "context"

type UpdateKind string

const (
	UpdateText     UpdateKind = "text"
	UpdatePhoto    UpdateKind = "photo"
	UpdateMedia    UpdateKind = "media" // video or document
	UpdateCallback UpdateKind = "callback"
)

// Update is one inbound event from the messaging gateway, already typed.
type Update struct {
	Kind     UpdateKind
	ChatID   int64
	SenderID int64
	Text     string
	// PhotoRef is the highest-resolution variant of a photo update.
	PhotoRef string
	// MessageRef is an opaque, forwardable reference to the message this
	// update describes; for callbacks it references the message carrying
	// the keyboard, so it is also the edit target.
	MessageRef   string
	CallbackID   string
	CallbackData string
}

type Button struct {
	Text string
	Data string
	URL  string
}

type Keyboard struct {
	// Inline keyboards attach to a message; non-inline replace the reply
	// keyboard under the input field.
	Inline bool
	Rows   [][]Button
}

func (k *Keyboard) AddRow(buttons ...Button) {
	k.Rows = append(k.Rows, buttons)
}

// MessagingGateway is the transport the bot speaks through. The core never
// touches the underlying chat protocol directly.
type MessagingGateway interface {
	SendText(ctx context.Context, chatID int64, text string, kb *Keyboard) error
	// Forward re-delivers the referenced message into destChatID and returns
	// an opaque ref to the new copy.
	Forward(ctx context.Context, destChatID int64, messageRef string) (string, error)
	EditMessage(ctx context.Context, chatID int64, messageRef, text string, kb *Keyboard) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
	IsChannelMember(ctx context.Context, channel string, userID int64) (bool, error)
}
