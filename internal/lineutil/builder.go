// Package lineutil provides utility functions for building LINE messages and actions.
package lineutil

import (
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// QuickReplyItem represents an item in a quick reply.
type QuickReplyItem struct {
	ImageURL string
	Action   messaging_api.ActionInterface
}

// Action is an alias for the LINE SDK action interface for convenience.
type Action = messaging_api.ActionInterface

// NewTextMessage creates a simple text message.
// LINE API limits: max 5000 characters per text message
func NewTextMessage(text string) *messaging_api.TextMessage {
	return &messaging_api.TextMessage{
		Text: TruncateRunes(text, MaxTextMessageLength),
	}
}

// NewMessageAction creates an action that sends text as the user when tapped.
// The label is shown on the button (max 20 runes).
func NewMessageAction(label, text string) Action {
	return &messaging_api.MessageAction{
		Label: TruncateRunes(label, MaxQuickReplyLabel),
		Text:  TruncateRunes(text, MaxMessageActionText),
	}
}

// NewQuickReply creates a quick reply from items.
// LINE API limits: max 13 items
func NewQuickReply(items []QuickReplyItem) *messaging_api.QuickReply {
	if len(items) > MaxQuickReplyItemCount {
		items = items[:MaxQuickReplyItemCount]
	}

	quickReplyItems := make([]messaging_api.QuickReplyItem, len(items))
	for i, item := range items {
		qrItem := messaging_api.QuickReplyItem{
			Action: item.Action,
		}
		if item.ImageURL != "" {
			qrItem.ImageUrl = item.ImageURL
		}
		quickReplyItems[i] = qrItem
	}

	return &messaging_api.QuickReply{
		Items: quickReplyItems,
	}
}

// NewMenuQuickReply flattens menu rows into quick reply buttons, row by row.
// label maps the text sent by a button to its (short) label; nil uses the text itself.
func NewMenuQuickReply(rows [][]string, label func(string) string) *messaging_api.QuickReply {
	if label == nil {
		label = func(s string) string { return s }
	}

	var items []QuickReplyItem
	for _, row := range rows {
		for _, text := range row {
			items = append(items, QuickReplyItem{Action: NewMessageAction(label(text), text)})
		}
	}
	if len(items) == 0 {
		return nil
	}
	return NewQuickReply(items)
}

// NewTextMessageWithMenu creates a text message carrying the menu as quick reply.
func NewTextMessageWithMenu(text string, rows [][]string, label func(string) string) *messaging_api.TextMessage {
	msg := NewTextMessage(text)
	msg.QuickReply = NewMenuQuickReply(rows, label)
	return msg
}

// CapMessages keeps at most MaxReplyMessages messages. When trimming, the last
// message is kept so a trailing menu prompt is not lost.
func CapMessages(msgs []messaging_api.MessageInterface) []messaging_api.MessageInterface {
	if len(msgs) <= MaxReplyMessages {
		return msgs
	}
	out := append([]messaging_api.MessageInterface{}, msgs[:MaxReplyMessages-1]...)
	return append(out, msgs[len(msgs)-1])
}

// TruncateRunes shortens text to at most maxRunes runes, ending with "..." when cut.
func TruncateRunes(text string, maxRunes int) string {
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	if maxRunes <= 3 {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-3]) + "..."
}
