package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/plugbot/plugbot/internal/conversation"
	"github.com/plugbot/plugbot/internal/message"
)

// ConversationStore is the part of the conversation tracker exposed over HTTP.
type ConversationStore interface {
	Get(ctx context.Context, conversationID string) (conversation.Conversation, error)
	ListByBot(ctx context.Context, botID string, limit, offset int32) ([]conversation.Conversation, error)
	Delete(ctx context.Context, conversationID string) error
}

// MessageLister pages through persisted messages.
type MessageLister interface {
	List(ctx context.Context, conversationID string, limit, offset int32) ([]message.Message, error)
}

// ConversationsHandler serves conversation and message routes.
type ConversationsHandler struct {
	bots          BotService
	conversations ConversationStore
	messages      MessageLister
	logger        *slog.Logger
}

type ConversationListResponse struct {
	Items []conversation.Conversation `json:"items"`
}

type MessageListResponse struct {
	Conversation conversation.Conversation `json:"conversation"`
	Items        []message.Message         `json:"items"`
}

func NewConversationsHandler(log *slog.Logger, botService BotService, conversations ConversationStore, messages MessageLister) *ConversationsHandler {
	return &ConversationsHandler{
		bots:          botService,
		conversations: conversations,
		messages:      messages,
		logger:        log.With(slog.String("handler", "conversations")),
	}
}

func (h *ConversationsHandler) Register(e *echo.Echo) {
	e.GET("/api/bots/:id/conversations", h.ListByBot)
	e.GET("/api/conversations/:id", h.Get)
	e.DELETE("/api/conversations/:id", h.Delete)
	e.GET("/api/conversations/:id/messages", h.ListMessages)
}

func (h *ConversationsHandler) Get(c echo.Context) error {
	conv, err := h.conversations.Get(c.Request().Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		return conversationError(err)
	}
	return c.JSON(http.StatusOK, conv)
}

// Delete removes a conversation with its messages. Deleting the active
// conversation makes the next message in that chat start a fresh one.
func (h *ConversationsHandler) Delete(c echo.Context) error {
	conversationID := strings.TrimSpace(c.Param("id"))
	if err := h.conversations.Delete(c.Request().Context(), conversationID); err != nil {
		return conversationError(err)
	}
	h.logger.Info("conversation deleted via api", slog.String("conversation_id", conversationID))
	return c.NoContent(http.StatusNoContent)
}

func conversationError(err error) error {
	if errors.Is(err, conversation.ErrConversationNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

// ListByBot returns the bot's conversations, most recent first.
func (h *ConversationsHandler) ListByBot(c echo.Context) error {
	botID, err := botIDParam(c)
	if err != nil {
		return err
	}
	limit, offset, err := pageParams(c, 50)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if _, err := h.bots.Get(ctx, botID); err != nil {
		return botError(err)
	}
	items, err := h.conversations.ListByBot(ctx, botID, limit, offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []conversation.Conversation{}
	}
	return c.JSON(http.StatusOK, ConversationListResponse{Items: items})
}

// ListMessages returns a conversation's messages, oldest first.
func (h *ConversationsHandler) ListMessages(c echo.Context) error {
	conversationID := strings.TrimSpace(c.Param("id"))
	if conversationID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "conversation id is required")
	}
	limit, offset, err := pageParams(c, 100)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	conv, err := h.conversations.Get(ctx, conversationID)
	if err != nil {
		return conversationError(err)
	}
	items, err := h.messages.List(ctx, conversationID, limit, offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []message.Message{}
	}
	return c.JSON(http.StatusOK, MessageListResponse{Conversation: conv, Items: items})
}

func pageParams(c echo.Context, defaultLimit int32) (int32, int32, error) {
	limit := defaultLimit
	if raw := strings.TrimSpace(c.QueryParam("limit")); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || v <= 0 {
			return 0, 0, echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = int32(v)
	}
	var offset int32
	if raw := strings.TrimSpace(c.QueryParam("offset")); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || v < 0 {
			return 0, 0, echo.NewHTTPError(http.StatusBadRequest, "invalid offset")
		}
		offset = int32(v)
	}
	return limit, offset, nil
}
