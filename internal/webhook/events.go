package webhook

import (
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"github.com/garyellow/moodle-linebot-go/internal/dialogue"
)

// inbound is a webhook event reduced to what the dialogue needs.
type inbound struct {
	kind         string // metrics label: message, follow
	chatID       string
	text         string
	replyToken   string
	eventID      string
	isRedelivery bool
}

// toInbound extracts a dialogue input from an event. Only one-to-one chats are
// served; group and room events, non-text messages and other event types are skipped.
func toInbound(event webhook.EventInterface) (inbound, bool) {
	switch e := event.(type) {
	case webhook.MessageEvent:
		chatID := userChatID(e.Source)
		if chatID == "" {
			return inbound{}, false
		}
		text, ok := e.Message.(webhook.TextMessageContent)
		if !ok {
			return inbound{}, false
		}
		return inbound{
			kind:         "message",
			chatID:       chatID,
			text:         text.Text,
			replyToken:   e.ReplyToken,
			eventID:      e.WebhookEventId,
			isRedelivery: redelivered(e.DeliveryContext),
		}, true

	case webhook.FollowEvent:
		chatID := userChatID(e.Source)
		if chatID == "" {
			return inbound{}, false
		}
		return inbound{
			kind:         "follow",
			chatID:       chatID,
			text:         dialogue.CommandStart,
			replyToken:   e.ReplyToken,
			eventID:      e.WebhookEventId,
			isRedelivery: redelivered(e.DeliveryContext),
		}, true
	}
	return inbound{}, false
}

// userChatID returns the user id of a one-to-one chat source, or "" for groups and rooms.
func userChatID(source webhook.SourceInterface) string {
	if s, ok := source.(webhook.UserSource); ok {
		return s.UserId
	}
	return ""
}

func redelivered(ctx *webhook.DeliveryContext) bool {
	return ctx != nil && ctx.IsRedelivery
}

// groupByChat splits events per chat keeping their original order.
func groupByChat(events []inbound) [][]inbound {
	var order []string
	byChat := make(map[string][]inbound)
	for _, ev := range events {
		if _, seen := byChat[ev.chatID]; !seen {
			order = append(order, ev.chatID)
		}
		byChat[ev.chatID] = append(byChat[ev.chatID], ev)
	}

	groups := make([][]inbound, 0, len(order))
	for _, id := range order {
		groups = append(groups, byChat[id])
	}
	return groups
}
