// Package inbound routes platform events through the auth gate, the
// conversation tracker and the stream relay.
package inbound

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/plugbot/plugbot/internal/authgate"
	"github.com/plugbot/plugbot/internal/bots"
	"github.com/plugbot/plugbot/internal/channel"
	"github.com/plugbot/plugbot/internal/conversation"
	"github.com/plugbot/plugbot/internal/dify"
	"github.com/plugbot/plugbot/internal/i18n"
	"github.com/plugbot/plugbot/internal/media"
	"github.com/plugbot/plugbot/internal/relay"
	"github.com/plugbot/plugbot/internal/session"
)

const replyTimeout = 15 * time.Second

// BotSource loads the current bot row for every event.
type BotSource interface {
	Get(ctx context.Context, id string) (bots.Bot, error)
}

// Gate decides whether an end user may talk to the bot.
type Gate interface {
	Check(ctx context.Context, bot bots.Bot, req authgate.Request, reply authgate.Reply) (bool, error)
	Logout(ctx context.Context, botID, userID string) error
}

// Conversations is the subset of *conversation.Tracker used here.
type Conversations interface {
	GetOrCreateActive(ctx context.Context, ref conversation.ChatRef, meta conversation.Meta) (conversation.Conversation, error)
	DeactivateActive(ctx context.Context, ref conversation.ChatRef) (bool, error)
	ClearActive(ctx context.Context, ref conversation.ChatRef) (bool, error)
	SwitchTo(ctx context.Context, ref conversation.ChatRef, conversationID string) (conversation.Conversation, error)
	History(ctx context.Context, ref conversation.ChatRef) ([]conversation.Conversation, error)
}

// Relayer runs one turn against the upstream assistant.
type Relayer interface {
	Relay(ctx context.Context, sender channel.Sender, turn relay.Turn) (relay.Result, error)
}

// Uploader stores attachments in the bot's upstream app.
type Uploader interface {
	Upload(ctx context.Context, bot bots.Bot, user, filename, mimeType string, data []byte) (dify.UploadedFile, error)
}

// Fetcher downloads platform attachments.
type Fetcher interface {
	Fetch(ctx context.Context, url string, size int64) (media.Download, error)
	MaxBytes() int64
}

// Processor implements channel.InboundHandler.
type Processor struct {
	bots          BotSource
	gate          Gate
	conversations Conversations
	relay         Relayer
	uploader      Uploader
	fetcher       Fetcher
	sessions      session.Store
	catalog       *i18n.Catalog
	logger        *slog.Logger
}

func NewProcessor(
	log *slog.Logger,
	botSource BotSource,
	gate Gate,
	conversations Conversations,
	relayer Relayer,
	uploader Uploader,
	fetcher Fetcher,
	sessions session.Store,
	catalog *i18n.Catalog,
) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		bots:          botSource,
		gate:          gate,
		conversations: conversations,
		relay:         relayer,
		uploader:      uploader,
		fetcher:       fetcher,
		sessions:      sessions,
		catalog:       catalog,
		logger:        log.With(slog.String("component", "inbound")),
	}
}

// turnCtx carries the per-event values shared by the handlers.
type turnCtx struct {
	bot    bots.Bot
	event  channel.InboundEvent
	sender channel.Sender
	lang   string
	log    *slog.Logger
}

// markdown reports whether the bot renders rich text on the event's transport.
func (t turnCtx) markdown() bool {
	switch t.event.Transport {
	case channel.TransportTelegram:
		return t.bot.TelegramMarkdownEnabled
	case channel.TransportDiscord:
		return t.bot.DiscordMarkdownEnabled
	}
	return false
}

func (t turnCtx) ref() conversation.ChatRef {
	return conversation.ChatRef{BotID: t.bot.ID, Transport: t.event.Transport.String(), ChatKey: t.event.ChatKey}
}

// HandleInbound processes one event. Panics and errors end the turn with an
// apology; the unit keeps running.
func (p *Processor) HandleInbound(ctx context.Context, sender channel.Sender, event channel.InboundEvent) (err error) {
	log := p.logger.With(
		slog.String("bot_id", event.BotID),
		slog.String("transport", event.Transport.String()),
		slog.String("chat_key", event.ChatKey),
	)
	lang := p.catalog.Default()
	defer func() {
		if r := recover(); r != nil {
			log.Error("inbound panic", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			p.reply(ctx, sender, event.ChatKey, p.catalog.T(lang, "bot.error_occurred", nil), log)
			err = nil
		}
	}()

	bot, err := p.bots.Get(ctx, event.BotID)
	if err != nil {
		return fmt.Errorf("load bot: %w", err)
	}
	lang = p.language(ctx, bot.ID, event)
	t := turnCtx{bot: bot, event: event, sender: sender, lang: lang, log: log}

	switch {
	case event.Callback != nil:
		err = p.handleCallback(ctx, t)
	case event.IsCommand && isKnownCommand(event.Command):
		err = p.handleCommand(ctx, t)
	default:
		err = p.handleMessage(ctx, t)
	}
	if err != nil {
		p.reply(ctx, sender, event.ChatKey, p.catalog.T(lang, "bot.error_occurred", nil), log)
		return err
	}
	return nil
}

// language resolves the stored preference, then the platform locale.
func (p *Processor) language(ctx context.Context, botID string, event channel.InboundEvent) string {
	if stored, ok, err := p.sessions.Get(ctx, session.LangKey(botID, event.UserID)); err == nil && ok {
		if code, ok := p.catalog.Normalize(stored); ok {
			return code
		}
	}
	if code, ok := p.catalog.Normalize(event.Lang); ok {
		return code
	}
	return p.catalog.Default()
}

// allowed runs the auth gate for text-less interactions.
func (p *Processor) allowed(ctx context.Context, t turnCtx, text string) (bool, error) {
	return p.gate.Check(ctx, t.bot, authgate.Request{UserID: t.event.UserID, Lang: t.lang, Text: text}, p.replier(t))
}

func (p *Processor) replier(t turnCtx) authgate.Reply {
	return func(ctx context.Context, text string) error {
		sendCtx, cancel := context.WithTimeout(ctx, replyTimeout)
		defer cancel()
		_, err := t.sender.Send(sendCtx, t.event.ChatKey, channel.OutboundText{Text: text})
		return err
	}
}

func (p *Processor) handleMessage(ctx context.Context, t turnCtx) error {
	event := t.event
	gateText := event.Text
	if len(event.Attachments) > 0 {
		gateText = ""
	}
	ok, err := p.allowed(ctx, t, gateText)
	if err != nil {
		if errors.Is(err, authgate.ErrMailNotConfigured) {
			return nil
		}
		return fmt.Errorf("auth gate: %w", err)
	}
	if !ok {
		return nil
	}
	if len(event.Attachments) > 0 && !t.bot.EnableFileUpload {
		p.reply(ctx, t.sender, event.ChatKey, p.catalog.T(t.lang, "bot.file_upload_disabled", nil), t.log)
		return nil
	}

	difyUser := event.Transport.String() + "_" + event.UserID
	conv, err := p.conversations.GetOrCreateActive(ctx, t.ref(), conversation.Meta{
		UserID:     event.UserID,
		Username:   event.Username,
		DifyUserID: difyUser,
	})
	if err != nil {
		return fmt.Errorf("resolve conversation: %w", err)
	}

	turn := relay.Turn{
		Bot:               t.bot,
		Conversation:      conv,
		Prompt:            event.Text,
		ChatKey:           event.ChatKey,
		UserID:            event.UserID,
		Lang:              t.lang,
		PlatformMessageID: event.MessageID,
		Markdown:          t.markdown(),
	}
	if len(event.Attachments) > 0 {
		handled, err := p.prepareFiles(ctx, t, difyUser, &turn)
		if err != nil || handled {
			return err
		}
	}

	result, err := p.relay.Relay(ctx, t.sender, turn)
	if err != nil {
		return fmt.Errorf("relay turn: %w", err)
	}
	t.log.Debug("turn finished",
		slog.String("conversation_id", conv.ID),
		slog.Int("edits", result.Edits),
		slog.Int("answer_len", len(result.Text)),
	)
	return nil
}

// prepareFiles downloads and uploads the event's attachments and fills the
// turn's files, prompt and persisted content. It reports handled=true when
// the user has already been answered.
func (p *Processor) prepareFiles(ctx context.Context, t turnCtx, difyUser string, turn *relay.Turn) (bool, error) {
	maxBytes := p.fetcher.MaxBytes()
	for _, att := range t.event.Attachments {
		if err := media.CheckSize(att.Size, maxBytes); err != nil {
			p.replyTooLarge(ctx, t, maxBytes)
			return true, nil
		}
	}

	var (
		files    []dify.File
		labels   []string
		meta     []map[string]any
		allImage = true
	)
	for _, att := range t.event.Attachments {
		download, err := p.fetcher.Fetch(ctx, att.URL, att.Size)
		if err != nil {
			if errors.Is(err, media.ErrAssetTooLarge) {
				p.replyTooLarge(ctx, t, maxBytes)
				return true, nil
			}
			return false, fmt.Errorf("download attachment: %w", err)
		}
		mime := strings.TrimSpace(att.MimeType)
		if mime == "" {
			mime = download.Mime
		}
		uploaded, err := p.uploader.Upload(ctx, t.bot, difyUser, att.Name, mime, download.Data)
		if err != nil {
			return false, fmt.Errorf("upload attachment: %w", err)
		}
		file := dify.LocalFile(uploaded.ID, mime)
		files = append(files, file)
		meta = append(meta, map[string]any{"file_name": att.Name, "type": file.Type})
		if file.Type == "image" {
			labels = append(labels, p.catalog.T(t.lang, "bot.uploaded_photo", nil))
		} else {
			allImage = false
			labels = append(labels, p.catalog.T(t.lang, "bot.uploaded_file", map[string]string{"filename": att.Name}))
		}
	}

	turn.Files = files
	turn.Metadata = meta[0]
	if len(meta) > 1 {
		turn.Metadata = map[string]any{"files": meta}
	}
	caption := strings.TrimSpace(t.event.Text)
	turn.Content = strings.Join(labels, "\n")
	if caption != "" {
		turn.Content += "\n" + caption
		turn.Prompt = caption
	} else if allImage {
		turn.Prompt = p.catalog.T(t.lang, "bot.analyze_image", nil)
	} else {
		turn.Prompt = p.catalog.T(t.lang, "bot.analyze_file", nil)
	}
	return false, nil
}

func (p *Processor) replyTooLarge(ctx context.Context, t turnCtx, maxBytes int64) {
	text := p.catalog.T(t.lang, "bot.file_size_exceeded", map[string]string{
		"max_mb": fmt.Sprint(media.MaxMB(maxBytes)),
	})
	p.reply(ctx, t.sender, t.event.ChatKey, text, t.log)
}

func (p *Processor) reply(ctx context.Context, sender channel.Sender, chatKey, text string, log *slog.Logger) {
	p.send(ctx, sender, chatKey, channel.OutboundText{Text: text}, log)
}

func (p *Processor) send(ctx context.Context, sender channel.Sender, chatKey string, msg channel.OutboundText, log *slog.Logger) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), replyTimeout)
	defer cancel()
	if _, err := sender.Send(sendCtx, chatKey, msg); err != nil {
		log.Warn("reply failed", slog.Any("error", err))
	}
}
