package message

import (
	"context"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single persisted conversation message.
type Message struct {
	ID                string         `json:"id"`
	ConversationID    string         `json:"conversation_id"`
	Role              string         `json:"role"`
	Content           string         `json:"content"`
	DifyMessageID     string         `json:"dify_message_id,omitempty"`
	PlatformMessageID string         `json:"platform_message_id,omitempty"`
	TokensUsed        *int32         `json:"tokens_used,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}

// PersistInput is the input for persisting a message.
type PersistInput struct {
	ConversationID    string
	Role              string
	Content           string
	DifyMessageID     string
	PlatformMessageID string
	TokensUsed        *int32
	Metadata          map[string]any
}

// Writer defines write behavior needed by the relay.
type Writer interface {
	Persist(ctx context.Context, input PersistInput) (Message, error)
}

// Service defines message read/write behavior.
type Service interface {
	Writer
	List(ctx context.Context, conversationID string, limit, offset int32) ([]Message, error)
}
