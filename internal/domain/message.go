package domain

import "time"

// ChatType classifies the conversation context.
type ChatType string

const (
	ChatTypeDM    ChatType = "dm"
	ChatTypeGroup ChatType = "group"
)

// InboundMessage is an utterance received from a channel.
type InboundMessage struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channelId"`
	From      string    `json:"from"`
	FromName  string    `json:"fromName,omitempty"`
	ChatID    string    `json:"chatId"`
	ChatType  ChatType  `json:"chatType"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
	ReplyToID string    `json:"replyToId,omitempty"`
}

// SessionKey derives the conversation key for this message. With
// perSender set, each sender gets a separate history in shared chats.
func (m InboundMessage) SessionKey(perSender bool) SessionKey {
	key := SessionKey{ChannelID: m.ChannelID, ChatID: m.ChatID}
	if perSender || m.ChatType == ChatTypeDM {
		key.SenderID = m.From
	}
	return key
}

// OutboundMessage is a reply to be sent via a channel.
type OutboundMessage struct {
	ChannelID string `json:"channelId"`
	To        string `json:"to"`
	Body      string `json:"body"`
	ReplyToID string `json:"replyToId,omitempty"`
}
