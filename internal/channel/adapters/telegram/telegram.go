// Package telegram runs a bot over Telegram long polling.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/plugbot/plugbot/internal/bots"
	"github.com/plugbot/plugbot/internal/channel"
	"github.com/plugbot/plugbot/internal/markdown"
)

const (
	telegramMaxMessageLength = 4096
	pollTimeoutSeconds       = 30

	// CommandPrefix starts every bot command.
	CommandPrefix = "/"
)

// Options tweak how the adapter reaches the Bot API.
type Options struct {
	APIEndpoint string
	HTTPClient  *http.Client
}

// Adapter is one bot's Telegram unit.
type Adapter struct {
	bot    bots.Bot
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	api      *tgbotapi.BotAPI
	updates  tgbotapi.UpdatesChannel
	done     chan struct{}
	inflight sync.WaitGroup
}

var setLoggerOnce sync.Once

// NewAdapter creates an adapter for bot.
func NewAdapter(log *slog.Logger, bot bots.Bot, opts Options) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	if opts.APIEndpoint == "" {
		opts.APIEndpoint = tgbotapi.APIEndpoint
	}
	if opts.HTTPClient == nil {
		// Long polls hold the connection for pollTimeoutSeconds.
		opts.HTTPClient = &http.Client{Timeout: (pollTimeoutSeconds + 15) * time.Second}
	}
	logger := log.With(slog.String("adapter", "telegram"), slog.String("bot_id", bot.ID))
	setLoggerOnce.Do(func() {
		_ = tgbotapi.SetLogger(&slogBotLogger{log: log.With(slog.String("adapter", "telegram"))})
	})
	return &Adapter{bot: bot, opts: opts, logger: logger}
}

// Factory builds adapters for the channel manager.
func Factory(log *slog.Logger, bot bots.Bot) (channel.PlatformAdapter, error) {
	if !bot.HasTelegram() {
		return nil, fmt.Errorf("telegram bot token is empty")
	}
	return NewAdapter(log, bot, Options{}), nil
}

func (a *Adapter) Transport() channel.Transport {
	return channel.TransportTelegram
}

// Initialize validates the token with getMe.
func (a *Adapter) Initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	api, err := tgbotapi.NewBotAPIWithClient(strings.TrimSpace(a.bot.TelegramBotToken), a.opts.APIEndpoint, a.opts.HTTPClient)
	if err != nil {
		a.logger.Error("create bot failed", slog.Any("error", err))
		return err
	}
	a.mu.Lock()
	a.api = api
	a.mu.Unlock()
	a.logger.Info("initialized", slog.String("username", api.Self.UserName))
	return nil
}

func (a *Adapter) client() (*tgbotapi.BotAPI, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.api == nil {
		return nil, channel.ErrNotRunning
	}
	return a.api, nil
}

// Listen starts long polling. Every update is handled in its own goroutine.
func (a *Adapter) Listen(ctx context.Context, handler channel.InboundHandler) error {
	api, err := a.client()
	if err != nil {
		return err
	}
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = pollTimeoutSeconds
	updates := api.GetUpdatesChan(updateConfig)
	done := make(chan struct{})

	a.mu.Lock()
	a.updates = updates
	a.done = done
	a.mu.Unlock()

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					a.logger.Info("updates channel closed")
					return
				}
				event, ok := a.toEvent(api, update)
				if !ok {
					continue
				}
				a.inflight.Add(1)
				go func() {
					defer a.inflight.Done()
					if err := handler.HandleInbound(ctx, a, event); err != nil {
						a.logger.Error("handle inbound failed", slog.String("chat_key", event.ChatKey), slog.Any("error", err))
					}
				}()
			}
		}
	}()
	a.logger.Info("polling started")
	return nil
}

// Stop ends polling and waits for in-flight turns, bounded by ctx.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	api, updates, done := a.api, a.updates, a.done
	a.updates = nil
	a.mu.Unlock()
	if api == nil || updates == nil {
		return nil
	}
	a.logger.Info("stop")
	api.StopReceivingUpdates()

	finished := make(chan struct{})
	go func() {
		// Drain so the library's polling goroutine can exit; otherwise the
		// in-flight getUpdates keeps the session and a restart with the same
		// token gets "Conflict: terminated by other getUpdates request".
		for range updates {
		}
		<-done
		a.inflight.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("telegram stop: %w", ctx.Err())
	}
}

func (a *Adapter) toEvent(api *tgbotapi.BotAPI, update tgbotapi.Update) (channel.InboundEvent, bool) {
	if cq := update.CallbackQuery; cq != nil {
		if _, err := api.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
			a.logger.Warn("answer callback failed", slog.Any("error", err))
		}
		if cq.Message == nil || cq.Message.Chat == nil || cq.From == nil {
			return channel.InboundEvent{}, false
		}
		return channel.InboundEvent{
			ChatKey:  strconv.FormatInt(cq.Message.Chat.ID, 10),
			UserID:   strconv.FormatInt(cq.From.ID, 10),
			Username: cq.From.UserName,
			Lang:     cq.From.LanguageCode,
			Callback: &channel.Callback{
				ID:        cq.ID,
				Data:      cq.Data,
				MessageID: strconv.Itoa(cq.Message.MessageID),
			},
		}, true
	}

	msg := update.Message
	if msg == nil || msg.Chat == nil || msg.From == nil || msg.From.IsBot {
		return channel.InboundEvent{}, false
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		text = strings.TrimSpace(msg.Caption)
	}
	attachments := a.collectAttachments(api, msg)
	if text == "" && len(attachments) == 0 {
		return channel.InboundEvent{}, false
	}
	event := channel.InboundEvent{
		ChatKey:     strconv.FormatInt(msg.Chat.ID, 10),
		UserID:      strconv.FormatInt(msg.From.ID, 10),
		Username:    msg.From.UserName,
		Lang:        msg.From.LanguageCode,
		MessageID:   strconv.Itoa(msg.MessageID),
		Text:        text,
		Attachments: attachments,
		ReceivedAt:  time.Unix(int64(msg.Date), 0).UTC(),
	}
	if len(attachments) == 0 {
		if cmd, args, ok := channel.SplitCommand(text, CommandPrefix); ok {
			event.IsCommand = true
			event.Command = cmd
			event.Args = args
		}
	}
	a.logger.Debug("inbound received",
		slog.String("chat_key", event.ChatKey),
		slog.String("user_id", event.UserID),
		slog.Bool("command", event.IsCommand),
		slog.Int("attachments", len(attachments)),
	)
	return event, true
}

func (a *Adapter) collectAttachments(api *tgbotapi.BotAPI, msg *tgbotapi.Message) []channel.Attachment {
	var out []channel.Attachment
	if len(msg.Photo) > 0 {
		photo := pickTelegramPhoto(msg.Photo)
		out = append(out, a.buildAttachment(api, photo.FileID, "photo_"+photo.FileID+".jpg", "image/jpeg", int64(photo.FileSize)))
	}
	if msg.Document != nil {
		name := strings.TrimSpace(msg.Document.FileName)
		if name == "" {
			name = "document_" + msg.Document.FileID
		}
		out = append(out, a.buildAttachment(api, msg.Document.FileID, name, msg.Document.MimeType, int64(msg.Document.FileSize)))
	}
	return out
}

func (a *Adapter) buildAttachment(api *tgbotapi.BotAPI, fileID, name, mime string, size int64) channel.Attachment {
	att := channel.Attachment{Name: name, MimeType: strings.TrimSpace(mime), Size: size}
	url, err := api.GetFileDirectURL(fileID)
	if err != nil {
		a.logger.Warn("resolve file url failed", slog.Any("error", err))
		return att
	}
	att.URL = url
	return att
}

func pickTelegramPhoto(items []tgbotapi.PhotoSize) tgbotapi.PhotoSize {
	best := items[0]
	for _, item := range items[1:] {
		if item.FileSize > best.FileSize {
			best = item
			continue
		}
		if item.Width*item.Height > best.Width*best.Height {
			best = item
		}
	}
	return best
}

// Send delivers text, rendering Markdown to HTML when asked. A rejected
// HTML body is retried once as plain text.
func (a *Adapter) Send(ctx context.Context, chatKey string, msg channel.OutboundText) (channel.SendResult, error) {
	if err := ctx.Err(); err != nil {
		return channel.SendResult{}, err
	}
	api, err := a.client()
	if err != nil {
		return channel.SendResult{}, err
	}
	chatID, err := parseChatID(chatKey)
	if err != nil {
		return channel.SendResult{}, err
	}
	body, parseMode := a.render(msg)
	out := tgbotapi.NewMessage(chatID, body)
	out.ParseMode = parseMode
	if len(msg.Buttons) > 0 {
		out.ReplyMarkup = inlineKeyboard(msg.Buttons)
	}
	sent, err := api.Send(out)
	if err != nil && parseMode != "" && isTelegramParseError(err) {
		a.logger.Debug("html rejected, retrying as plain text", slog.Any("error", err))
		out.Text = plainText(msg.Text)
		out.ParseMode = ""
		sent, err = api.Send(out)
	}
	if err != nil {
		return channel.SendResult{}, fmt.Errorf("telegram send: %w", err)
	}
	return channel.SendResult{MessageID: strconv.Itoa(sent.MessageID)}, nil
}

// Edit replaces the text of a sent message.
func (a *Adapter) Edit(ctx context.Context, chatKey, messageID string, msg channel.OutboundText) channel.EditResult {
	if err := ctx.Err(); err != nil {
		return channel.EditResult{Status: channel.EditError, Err: err}
	}
	api, err := a.client()
	if err != nil {
		return channel.EditResult{Status: channel.EditError, Err: err}
	}
	chatID, err := parseChatID(chatKey)
	if err != nil {
		return channel.EditResult{Status: channel.EditError, Err: err}
	}
	id, err := strconv.Atoi(strings.TrimSpace(messageID))
	if err != nil {
		return channel.EditResult{Status: channel.EditError, Err: fmt.Errorf("invalid message id %q", messageID)}
	}
	body, parseMode := a.render(msg)
	edit := tgbotapi.NewEditMessageText(chatID, id, body)
	edit.ParseMode = parseMode
	_, err = api.Send(edit)
	if err != nil && parseMode != "" && isTelegramParseError(err) {
		edit.Text = plainText(msg.Text)
		edit.ParseMode = ""
		_, err = api.Send(edit)
	}
	switch {
	case err == nil:
		return channel.EditResult{Status: channel.EditOK}
	case isTelegramMessageNotModified(err):
		return channel.EditResult{Status: channel.EditNotModified}
	default:
		return channel.EditResult{Status: channel.EditError, Err: fmt.Errorf("telegram edit: %w", err)}
	}
}

// Typing shows the typing indicator.
func (a *Adapter) Typing(ctx context.Context, chatKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	api, err := a.client()
	if err != nil {
		return err
	}
	chatID, err := parseChatID(chatKey)
	if err != nil {
		return err
	}
	_, err = api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
	return err
}

// render returns the body and parse mode for msg. Rendering failures fall
// back to plain text.
func (a *Adapter) render(msg channel.OutboundText) (string, string) {
	text := plainText(msg.Text)
	if !msg.Markdown {
		return text, ""
	}
	html, err := markdown.ToTelegramHTML(text)
	if err != nil || utf8.RuneCountInString(html) > telegramMaxMessageLength {
		if err != nil {
			a.logger.Debug("markdown render failed", slog.Any("error", err))
		}
		return text, ""
	}
	return html, tgbotapi.ModeHTML
}

func plainText(text string) string {
	return channel.Truncate(sanitizeTelegramText(text), telegramMaxMessageLength)
}

func inlineKeyboard(buttons []channel.Button) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, b := range buttons {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func parseChatID(chatKey string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(chatKey), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram chat key must be numeric: %q", chatKey)
	}
	return id, nil
}

// sanitizeTelegramText ensures text is valid UTF-8 for the Telegram API.
// Streaming chunk boundaries can split multi-byte characters.
func sanitizeTelegramText(text string) string {
	if utf8.ValidString(text) {
		return text
	}
	return strings.ToValidUTF8(text, "")
}

func telegramAPIError(err error) (int, string, bool) {
	var ptr *tgbotapi.Error
	if errors.As(err, &ptr) && ptr != nil {
		return ptr.Code, ptr.Message, true
	}
	var val tgbotapi.Error
	if errors.As(err, &val) {
		return val.Code, val.Message, true
	}
	return 0, "", false
}

func isTelegramMessageNotModified(err error) bool {
	if err == nil {
		return false
	}
	if code, msg, ok := telegramAPIError(err); ok {
		return code == http.StatusBadRequest && strings.Contains(msg, "message is not modified")
	}
	return strings.Contains(err.Error(), "message is not modified")
}

func isTelegramParseError(err error) bool {
	if err == nil {
		return false
	}
	if code, msg, ok := telegramAPIError(err); ok {
		return code == http.StatusBadRequest && strings.Contains(msg, "can't parse entities")
	}
	return strings.Contains(err.Error(), "can't parse entities")
}
