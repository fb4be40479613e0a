package webhook

import (
	"fmt"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// Messenger sends messages back to LINE.
type Messenger interface {
	Reply(replyToken string, messages []messaging_api.MessageInterface) error
	ShowLoading(chatID string, seconds int32) error
}

// lineMessenger is the Messenger backed by the Messaging API client.
type lineMessenger struct {
	api *messaging_api.MessagingApiAPI
}

// NewLineMessenger creates a Messenger using the channel access token.
func NewLineMessenger(channelToken string) (Messenger, error) {
	api, err := messaging_api.NewMessagingApiAPI(channelToken)
	if err != nil {
		return nil, fmt.Errorf("create messaging API client: %w", err)
	}
	return &lineMessenger{api: api}, nil
}

func (m *lineMessenger) Reply(replyToken string, messages []messaging_api.MessageInterface) error {
	_, err := m.api.ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages:   messages,
	})
	return err
}

// ShowLoading shows the typing indicator. LINE accepts 5-60 seconds in steps of 5.
func (m *lineMessenger) ShowLoading(chatID string, seconds int32) error {
	_, err := m.api.ShowLoadingAnimation(&messaging_api.ShowLoadingAnimationRequest{
		ChatId:         chatID,
		LoadingSeconds: seconds,
	})
	return err
}
