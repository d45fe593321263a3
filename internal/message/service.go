package message

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	dbpkg "github.com/plugbot/plugbot/internal/db"
	"github.com/plugbot/plugbot/internal/db/sqlc"
)

// Queries is the subset of sqlc queries the service needs.
type Queries interface {
	CreateMessage(ctx context.Context, arg sqlc.CreateMessageParams) (sqlc.Message, error)
	ListConversationMessages(ctx context.Context, arg sqlc.ListConversationMessagesParams) ([]sqlc.Message, error)
}

// DBService persists and reads conversation messages.
type DBService struct {
	queries Queries
	logger  *slog.Logger
}

// NewService creates a message service.
func NewService(log *slog.Logger, queries Queries) *DBService {
	if log == nil {
		log = slog.Default()
	}
	return &DBService{
		queries: queries,
		logger:  log.With(slog.String("service", "message")),
	}
}

// Persist writes a single message with one INSERT.
func (s *DBService) Persist(ctx context.Context, input PersistInput) (Message, error) {
	pgConversationID, err := dbpkg.ParseUUID(input.ConversationID)
	if err != nil {
		return Message{}, fmt.Errorf("invalid conversation id: %w", err)
	}
	if input.Role != RoleUser && input.Role != RoleAssistant {
		return Message{}, fmt.Errorf("invalid message role %q", input.Role)
	}
	metaBytes, err := json.Marshal(nonNilMap(input.Metadata))
	if err != nil {
		return Message{}, fmt.Errorf("marshal message metadata: %w", err)
	}

	row, err := s.queries.CreateMessage(ctx, sqlc.CreateMessageParams{
		ID:                dbpkg.NewUUID(),
		ConversationID:    pgConversationID,
		Role:              input.Role,
		Content:           input.Content,
		DifyMessageID:     dbpkg.Text(input.DifyMessageID),
		PlatformMessageID: dbpkg.Text(input.PlatformMessageID),
		TokensUsed:        dbpkg.Int4(input.TokensUsed),
		Metadata:          metaBytes,
	})
	if err != nil {
		return Message{}, err
	}
	return s.toMessage(row), nil
}

// List returns messages of a conversation, oldest first.
func (s *DBService) List(ctx context.Context, conversationID string, limit, offset int32) ([]Message, error) {
	pgConversationID, err := dbpkg.ParseUUID(conversationID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.queries.ListConversationMessages(ctx, sqlc.ListConversationMessagesParams{
		ConversationID: pgConversationID,
		Limit:          limit,
		Offset:         offset,
	})
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(rows))
	for _, row := range rows {
		out = append(out, s.toMessage(row))
	}
	return out, nil
}

func (s *DBService) toMessage(row sqlc.Message) Message {
	msg := Message{
		ID:                dbpkg.UUIDString(row.ID),
		ConversationID:    dbpkg.UUIDString(row.ConversationID),
		Role:              row.Role,
		Content:           row.Content,
		DifyMessageID:     dbpkg.TextValue(row.DifyMessageID),
		PlatformMessageID: dbpkg.TextValue(row.PlatformMessageID),
		TokensUsed:        dbpkg.Int4Value(row.TokensUsed),
		CreatedAt:         dbpkg.TimeValue(row.CreatedAt),
	}
	if len(row.Metadata) > 0 {
		var meta map[string]any
		if err := json.Unmarshal(row.Metadata, &meta); err != nil {
			s.logger.Warn("decode message metadata failed", slog.String("message_id", msg.ID), slog.Any("error", err))
		} else if len(meta) > 0 {
			msg.Metadata = meta
		}
	}
	return msg
}

func nonNilMap(in map[string]any) map[string]any {
	if in == nil {
		return map[string]any{}
	}
	return in
}
