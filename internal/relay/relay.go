// Package relay forwards one user turn to the upstream chat application and
// streams the answer back into the chat as a progressively edited message.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	"github.com/plugbot/plugbot/internal/bots"
	"github.com/plugbot/plugbot/internal/channel"
	"github.com/plugbot/plugbot/internal/config"
	"github.com/plugbot/plugbot/internal/conversation"
	"github.com/plugbot/plugbot/internal/dify"
	"github.com/plugbot/plugbot/internal/i18n"
	"github.com/plugbot/plugbot/internal/message"
	"github.com/plugbot/plugbot/internal/telemetry"
)

const sendTimeout = 15 * time.Second

// EventStream is a pull-based upstream response.
type EventStream interface {
	Next() (dify.Event, error)
	Close() error
}

// Upstream opens a chat response for a bot.
type Upstream interface {
	Chat(ctx context.Context, bot bots.Bot, req dify.ChatRequest) EventStream
}

// ConversationRecorder updates conversation bookkeeping after an exchange.
type ConversationRecorder interface {
	BindUpstream(ctx context.Context, conversationID, upstreamID string) error
	RecordExchange(ctx context.Context, conversationID string, at time.Time) error
}

// Turn is one user message to relay. Content is what gets persisted as the
// user message and defaults to Prompt.
type Turn struct {
	Bot               bots.Bot
	Conversation      conversation.Conversation
	Prompt            string
	Content           string
	Files             []dify.File
	Metadata          map[string]any
	ChatKey           string
	UserID            string
	Lang              string
	PlatformMessageID string
	Markdown          bool
}

// Result summarizes a finished turn.
type Result struct {
	Text           string
	ConversationID string
	MessageID      string
	Edits          int
}

// Relay runs turns. It is safe for concurrent use.
type Relay struct {
	messages      message.Writer
	conversations ConversationRecorder
	upstream      Upstream
	catalog       *i18n.Catalog
	editEvery     int
	placeholder   string
	logger        *slog.Logger
	now           func() time.Time
}

// New creates a Relay.
func New(log *slog.Logger, messages message.Writer, conversations ConversationRecorder, upstream Upstream, catalog *i18n.Catalog, cfg config.RelayConfig) *Relay {
	if log == nil {
		log = slog.Default()
	}
	editEvery := cfg.EditEveryChars
	if editEvery <= 0 {
		editEvery = config.DefaultEditEveryChars
	}
	placeholder := cfg.Placeholder
	if placeholder == "" {
		placeholder = config.DefaultPlaceholder
	}
	return &Relay{
		messages:      messages,
		conversations: conversations,
		upstream:      upstream,
		catalog:       catalog,
		editEvery:     editEvery,
		placeholder:   placeholder,
		logger:        log.With(slog.String("service", "relay")),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// turnState is the single-pass view of the outgoing message.
type turnState struct {
	buf          strings.Builder
	messageID    string
	sendFailed   bool
	lastShown    string
	lastBoundary int
	edits        int
	upstreamConv string
}

// Relay persists the user message, consumes the upstream stream and keeps
// the chat message in sync with the accumulated answer.
func (r *Relay) Relay(ctx context.Context, sender channel.Sender, turn Turn) (Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "relay.turn",
		attribute.String("bot_id", turn.Bot.ID),
		attribute.String("conversation_id", turn.Conversation.ID),
		attribute.Bool("streaming", turn.Bot.Streaming()),
		attribute.Int("files", len(turn.Files)),
	)
	defer span.End()
	log := r.logger.With(slog.String("bot_id", turn.Bot.ID), slog.String("chat_key", turn.ChatKey))

	content := turn.Content
	if content == "" {
		content = turn.Prompt
	}
	if _, err := r.messages.Persist(ctx, message.PersistInput{
		ConversationID:    turn.Conversation.ID,
		Role:              message.RoleUser,
		Content:           content,
		PlatformMessageID: turn.PlatformMessageID,
		Metadata:          turn.Metadata,
	}); err != nil {
		telemetry.RecordError(span, err)
		telemetry.RecordTurn("error")
		return Result{}, fmt.Errorf("persist user message: %w", err)
	}

	if err := sender.Typing(ctx, turn.ChatKey); err != nil {
		log.Debug("typing indicator failed", slog.Any("error", err))
	}

	mode := dify.ResponseModeStreaming
	if !turn.Bot.Streaming() {
		mode = dify.ResponseModeBlocking
	}
	req := dify.ChatRequest{
		Inputs:           map[string]any{},
		Query:            turn.Prompt,
		ResponseMode:     mode,
		User:             turn.UserID,
		ConversationID:   turn.Conversation.DifyConversationID,
		AutoGenerateName: turn.Bot.AutoGenerateTitle,
		Files:            turn.Files,
	}
	start := time.Now()
	stream := r.upstream.Chat(ctx, turn.Bot, req)
	defer stream.Close()

	st := &turnState{upstreamConv: turn.Conversation.DifyConversationID}
	first := true
	for {
		ev, err := stream.Next()
		if first {
			telemetry.ObserveUpstream(start)
			first = false
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			ev = dify.Event{Kind: dify.EventError, Message: err.Error()}
		}
		switch ev.Kind {
		case dify.EventMessage:
			st.buf.WriteString(ev.Answer)
			if turn.Bot.Streaming() {
				r.onFragment(ctx, sender, turn, st, log)
			}
		case dify.EventMessageEnd:
			if err := r.finishExchange(ctx, turn, st, ev); err != nil {
				log.Error("record exchange failed", slog.Any("error", err))
				telemetry.RecordError(span, err)
			}
		case dify.EventError:
			msg := strings.TrimSpace(ev.Message)
			if msg == "" {
				msg = r.catalog.T(turn.Lang, "errors.generic_error", nil)
			}
			log.Warn("upstream error", slog.String("message", msg))
			r.send(ctx, sender, turn, r.catalog.T(turn.Lang, "errors.dify_error", map[string]string{"message": msg}), false)
			telemetry.RecordError(span, errors.New(msg))
			telemetry.RecordTurn("upstream_error")
			return Result{ConversationID: st.upstreamConv, MessageID: st.messageID, Edits: st.edits}, nil
		}
	}

	text := st.buf.String()
	switch {
	case text == "":
		r.send(ctx, sender, turn, r.catalog.T(turn.Lang, "bot.no_response", nil), false)
		telemetry.RecordTurn("empty")
	case !turn.Bot.Streaming() || st.messageID == "":
		if id, ok := r.send(ctx, sender, turn, text, turn.Markdown); ok {
			st.messageID = id
		}
		telemetry.RecordTurn("ok")
	default:
		if text != st.lastShown {
			r.edit(ctx, sender, turn, st, text, log)
		}
		telemetry.RecordTurn("ok")
	}
	return Result{Text: text, ConversationID: st.upstreamConv, MessageID: st.messageID, Edits: st.edits}, nil
}

// onFragment sends the first fragment as a new message and afterwards edits
// it whenever the answer crosses the next editEvery boundary.
func (r *Relay) onFragment(ctx context.Context, sender channel.Sender, turn Turn, st *turnState, log *slog.Logger) {
	text := st.buf.String()
	boundary := utf8.RuneCountInString(text) / r.editEvery
	if st.messageID == "" {
		if st.sendFailed {
			return
		}
		shown := text
		if shown == "" {
			shown = r.placeholder
		}
		id, ok := r.send(ctx, sender, turn, shown, turn.Markdown)
		if !ok {
			st.sendFailed = true
			return
		}
		st.messageID = id
		st.lastShown = text
		st.lastBoundary = boundary
		return
	}
	if boundary <= st.lastBoundary || text == st.lastShown {
		return
	}
	st.lastBoundary = boundary
	r.edit(ctx, sender, turn, st, text, log)
}

func (r *Relay) finishExchange(ctx context.Context, turn Turn, st *turnState, ev dify.Event) error {
	convID := turn.Conversation.ID
	if st.upstreamConv == "" && ev.ConversationID != "" {
		if err := r.conversations.BindUpstream(ctx, convID, ev.ConversationID); err != nil {
			return fmt.Errorf("bind upstream conversation: %w", err)
		}
		st.upstreamConv = ev.ConversationID
	}
	var tokens *int32
	if ev.Usage != nil {
		n := int32(ev.Usage.TotalTokens)
		tokens = &n
	}
	if _, err := r.messages.Persist(ctx, message.PersistInput{
		ConversationID: convID,
		Role:           message.RoleAssistant,
		Content:        st.buf.String(),
		DifyMessageID:  ev.MessageID,
		TokensUsed:     tokens,
	}); err != nil {
		return fmt.Errorf("persist assistant message: %w", err)
	}
	if err := r.conversations.RecordExchange(ctx, convID, r.now()); err != nil {
		return fmt.Errorf("record exchange: %w", err)
	}
	return nil
}

func (r *Relay) send(ctx context.Context, sender channel.Sender, turn Turn, text string, markdown bool) (string, bool) {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	res, err := sender.Send(sendCtx, turn.ChatKey, channel.OutboundText{Text: text, Markdown: markdown})
	if err != nil {
		r.logger.Warn("send failed",
			slog.String("bot_id", turn.Bot.ID),
			slog.String("chat_key", turn.ChatKey),
			slog.Any("error", err),
		)
		return "", false
	}
	return res.MessageID, true
}

func (r *Relay) edit(ctx context.Context, sender channel.Sender, turn Turn, st *turnState, text string, log *slog.Logger) {
	editCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	res := sender.Edit(editCtx, turn.ChatKey, st.messageID, channel.OutboundText{Text: text, Markdown: turn.Markdown})
	telemetry.RecordEdit(string(res.Status))
	switch res.Status {
	case channel.EditOK, channel.EditNotModified:
		st.lastShown = text
		st.edits++
	default:
		log.Warn("edit failed", slog.Any("error", res.Err))
	}
}
