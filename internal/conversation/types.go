// Package conversation tracks the single active conversation per chat.
package conversation

import (
	"errors"
	"time"
)

// HistoryLimit caps the conversations shown by the history command.
const HistoryLimit = 5

var ErrConversationNotFound = errors.New("conversation not found")

// ChatRef identifies one chat of one bot on one transport.
type ChatRef struct {
	BotID     string
	Transport string
	ChatKey   string
}

// Meta describes the end user a conversation is created for.
type Meta struct {
	UserID     string
	Username   string
	DifyUserID string
}

// Conversation is a persisted exchange with the upstream assistant.
type Conversation struct {
	ID                 string    `json:"id"`
	BotID              string    `json:"bot_id"`
	Transport          string    `json:"transport"`
	ChatKey            string    `json:"chat_key"`
	UserID             string    `json:"user_id"`
	Username           string    `json:"username,omitempty"`
	DifyUserID         string    `json:"dify_user_id"`
	DifyConversationID string    `json:"dify_conversation_id,omitempty"`
	Title              string    `json:"title,omitempty"`
	IsActive           bool      `json:"is_active"`
	MessageCount       int       `json:"message_count"`
	LastMessageAt      time.Time `json:"last_message_at,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Ref returns the chat the conversation belongs to.
func (c Conversation) Ref() ChatRef {
	return ChatRef{BotID: c.BotID, Transport: c.Transport, ChatKey: c.ChatKey}
}
