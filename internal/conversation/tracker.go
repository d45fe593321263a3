package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	dbpkg "github.com/plugbot/plugbot/internal/db"
	"github.com/plugbot/plugbot/internal/db/sqlc"
)

// Store is the subset of sqlc queries the tracker needs. *sqlc.Queries satisfies it.
type Store interface {
	GetActiveConversation(ctx context.Context, arg sqlc.GetActiveConversationParams) (sqlc.Conversation, error)
	GetConversationByID(ctx context.Context, id pgtype.UUID) (sqlc.Conversation, error)
	CreateConversation(ctx context.Context, arg sqlc.CreateConversationParams) (sqlc.Conversation, error)
	DeactivateChatConversations(ctx context.Context, arg sqlc.DeactivateChatConversationsParams) (int64, error)
	ActivateConversation(ctx context.Context, id pgtype.UUID) (sqlc.Conversation, error)
	DeleteConversation(ctx context.Context, id pgtype.UUID) error
	DeleteConversationMessages(ctx context.Context, conversationID pgtype.UUID) error
	ListChatConversations(ctx context.Context, arg sqlc.ListChatConversationsParams) ([]sqlc.Conversation, error)
	ListBotConversations(ctx context.Context, arg sqlc.ListBotConversationsParams) ([]sqlc.Conversation, error)
	BindDifyConversation(ctx context.Context, arg sqlc.BindDifyConversationParams) error
	RecordConversationExchange(ctx context.Context, arg sqlc.RecordConversationExchangeParams) error
}

// Tracker keeps at most one active conversation per chat. Writes for the
// same chat are serialized in-process; the partial unique index on
// (bot_id, transport, chat_key) WHERE is_active guards other processes.
type Tracker struct {
	store  Store
	logger *slog.Logger

	mu    sync.Mutex
	locks map[ChatRef]*chatLock
}

type chatLock struct {
	mu   sync.Mutex
	refs int
}

func NewTracker(log *slog.Logger, store Store) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{
		store:  store,
		logger: log.With(slog.String("service", "conversation")),
		locks:  make(map[ChatRef]*chatLock),
	}
}

func (t *Tracker) lock(ref ChatRef) func() {
	t.mu.Lock()
	l, ok := t.locks[ref]
	if !ok {
		l = &chatLock{}
		t.locks[ref] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, ref)
		}
		t.mu.Unlock()
	}
}

// GetOrCreateActive returns the active conversation for ref, creating it lazily.
func (t *Tracker) GetOrCreateActive(ctx context.Context, ref ChatRef, meta Meta) (Conversation, error) {
	unlock := t.lock(ref)
	defer unlock()

	params, err := activeParams(ref)
	if err != nil {
		return Conversation{}, err
	}
	row, err := t.store.GetActiveConversation(ctx, params)
	if err == nil {
		return toConversation(row), nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, fmt.Errorf("get active conversation: %w", err)
	}

	row, err = t.store.CreateConversation(ctx, sqlc.CreateConversationParams{
		ID:         dbpkg.NewUUID(),
		BotID:      params.BotID,
		Transport:  ref.Transport,
		ChatKey:    ref.ChatKey,
		UserID:     meta.UserID,
		Username:   meta.Username,
		DifyUserID: meta.DifyUserID,
	})
	if dbpkg.IsUniqueViolation(err) {
		// Another process created it first.
		row, err = t.store.GetActiveConversation(ctx, params)
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	t.logger.Info("conversation created",
		slog.String("bot_id", ref.BotID),
		slog.String("transport", ref.Transport),
		slog.String("chat_key", ref.ChatKey),
		slog.String("conversation_id", dbpkg.UUIDString(row.ID)),
	)
	return toConversation(row), nil
}

// DeactivateActive ends the active conversation. It reports whether one existed.
func (t *Tracker) DeactivateActive(ctx context.Context, ref ChatRef) (bool, error) {
	unlock := t.lock(ref)
	defer unlock()

	params, err := activeParams(ref)
	if err != nil {
		return false, err
	}
	n, err := t.store.DeactivateChatConversations(ctx, sqlc.DeactivateChatConversationsParams(params))
	if err != nil {
		return false, fmt.Errorf("deactivate conversation: %w", err)
	}
	return n > 0, nil
}

// ClearActive deletes the active conversation and its messages. It reports
// false, deleting nothing, when there is no active conversation.
func (t *Tracker) ClearActive(ctx context.Context, ref ChatRef) (bool, error) {
	unlock := t.lock(ref)
	defer unlock()

	params, err := activeParams(ref)
	if err != nil {
		return false, err
	}
	row, err := t.store.GetActiveConversation(ctx, params)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get active conversation: %w", err)
	}
	if err := t.store.DeleteConversationMessages(ctx, row.ID); err != nil {
		return false, fmt.Errorf("delete conversation messages: %w", err)
	}
	if err := t.store.DeleteConversation(ctx, row.ID); err != nil {
		return false, fmt.Errorf("delete conversation: %w", err)
	}
	return true, nil
}

// SwitchTo makes conversationID the active conversation of ref. The
// conversation must belong to the same chat.
func (t *Tracker) SwitchTo(ctx context.Context, ref ChatRef, conversationID string) (Conversation, error) {
	unlock := t.lock(ref)
	defer unlock()

	id, err := dbpkg.ParseUUID(conversationID)
	if err != nil {
		return Conversation{}, ErrConversationNotFound
	}
	row, err := t.store.GetConversationByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	if toConversation(row).Ref() != ref {
		return Conversation{}, ErrConversationNotFound
	}
	params, err := activeParams(ref)
	if err != nil {
		return Conversation{}, err
	}
	if _, err := t.store.DeactivateChatConversations(ctx, sqlc.DeactivateChatConversationsParams(params)); err != nil {
		return Conversation{}, fmt.Errorf("deactivate conversations: %w", err)
	}
	row, err = t.store.ActivateConversation(ctx, id)
	if err != nil {
		return Conversation{}, fmt.Errorf("activate conversation: %w", err)
	}
	return toConversation(row), nil
}

// History lists the most recently updated conversations of ref.
func (t *Tracker) History(ctx context.Context, ref ChatRef) ([]Conversation, error) {
	params, err := activeParams(ref)
	if err != nil {
		return nil, err
	}
	rows, err := t.store.ListChatConversations(ctx, sqlc.ListChatConversationsParams{
		BotID:     params.BotID,
		Transport: ref.Transport,
		ChatKey:   ref.ChatKey,
		Limit:     HistoryLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return toConversations(rows), nil
}

// Delete removes a conversation and its messages, active or not.
func (t *Tracker) Delete(ctx context.Context, conversationID string) error {
	conv, err := t.Get(ctx, conversationID)
	if err != nil {
		return err
	}
	unlock := t.lock(conv.Ref())
	defer unlock()

	id, err := dbpkg.ParseUUID(conv.ID)
	if err != nil {
		return ErrConversationNotFound
	}
	if err := t.store.DeleteConversationMessages(ctx, id); err != nil {
		return fmt.Errorf("delete conversation messages: %w", err)
	}
	if err := t.store.DeleteConversation(ctx, id); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	t.logger.Info("conversation deleted", slog.String("conversation_id", conv.ID), slog.String("bot_id", conv.BotID))
	return nil
}

// Get loads one conversation.
func (t *Tracker) Get(ctx context.Context, conversationID string) (Conversation, error) {
	id, err := dbpkg.ParseUUID(conversationID)
	if err != nil {
		return Conversation{}, ErrConversationNotFound
	}
	row, err := t.store.GetConversationByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return Conversation{}, err
	}
	return toConversation(row), nil
}

// ListByBot pages through all conversations of a bot, most recent first.
func (t *Tracker) ListByBot(ctx context.Context, botID string, limit, offset int32) ([]Conversation, error) {
	id, err := dbpkg.ParseUUID(botID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := t.store.ListBotConversations(ctx, sqlc.ListBotConversationsParams{BotID: id, Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	return toConversations(rows), nil
}

// BindUpstream records the upstream conversation id. An id already bound is kept.
func (t *Tracker) BindUpstream(ctx context.Context, conversationID, upstreamID string) error {
	id, err := dbpkg.ParseUUID(conversationID)
	if err != nil {
		return err
	}
	return t.store.BindDifyConversation(ctx, sqlc.BindDifyConversationParams{ID: id, DifyConversationID: dbpkg.Text(upstreamID)})
}

// RecordExchange counts a user/assistant pair and stamps last_message_at.
func (t *Tracker) RecordExchange(ctx context.Context, conversationID string, at time.Time) error {
	id, err := dbpkg.ParseUUID(conversationID)
	if err != nil {
		return err
	}
	return t.store.RecordConversationExchange(ctx, sqlc.RecordConversationExchangeParams{ID: id, LastMessageAt: dbpkg.Timestamptz(at)})
}

func activeParams(ref ChatRef) (sqlc.GetActiveConversationParams, error) {
	botID, err := dbpkg.ParseUUID(ref.BotID)
	if err != nil {
		return sqlc.GetActiveConversationParams{}, err
	}
	return sqlc.GetActiveConversationParams{BotID: botID, Transport: ref.Transport, ChatKey: ref.ChatKey}, nil
}

func toConversations(rows []sqlc.Conversation) []Conversation {
	out := make([]Conversation, 0, len(rows))
	for _, row := range rows {
		out = append(out, toConversation(row))
	}
	return out
}

func toConversation(row sqlc.Conversation) Conversation {
	return Conversation{
		ID:                 dbpkg.UUIDString(row.ID),
		BotID:              dbpkg.UUIDString(row.BotID),
		Transport:          row.Transport,
		ChatKey:            row.ChatKey,
		UserID:             row.UserID,
		Username:           row.Username,
		DifyUserID:         row.DifyUserID,
		DifyConversationID: dbpkg.TextValue(row.DifyConversationID),
		Title:              dbpkg.TextValue(row.Title),
		IsActive:           row.IsActive,
		MessageCount:       int(row.MessageCount),
		LastMessageAt:      dbpkg.TimeValue(row.LastMessageAt),
		CreatedAt:          dbpkg.TimeValue(row.CreatedAt),
		UpdatedAt:          dbpkg.TimeValue(row.UpdatedAt),
	}
}
