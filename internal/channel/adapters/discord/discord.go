// Package discord connects bots to the Discord gateway.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/plugbot/plugbot/internal/bots"
	"github.com/plugbot/plugbot/internal/channel"
	"github.com/plugbot/plugbot/internal/markdown"
)

const (
	discordMaxMessageLength = 2000
	inboundDedupTTL         = time.Minute
	maxButtonsPerRow        = 5
	maxButtonRows           = 5
)

// CommandPrefix starts bot commands in Discord messages.
const CommandPrefix = "!"

const gatewayIntents = discordgo.IntentsGuildMessages |
	discordgo.IntentsDirectMessages |
	discordgo.IntentsMessageContent

// restSession is the REST surface used for outbound traffic.
type restSession interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEdit(channelID, messageID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
}

// Adapter runs one bot's gateway session.
type Adapter struct {
	bot    bots.Bot
	logger *slog.Logger

	mu       sync.Mutex
	session  *discordgo.Session
	rest     restSession
	selfID   string
	removers []func()
	seen     map[string]time.Time
	inflight sync.WaitGroup
}

// NewAdapter returns an adapter for bot. Call Initialize before use.
func NewAdapter(log *slog.Logger, bot bots.Bot) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		bot:    bot,
		logger: log.With(slog.String("adapter", "discord"), slog.String("bot_id", bot.ID)),
		seen:   make(map[string]time.Time),
	}
}

// Factory satisfies channel.AdapterFactory.
func Factory(log *slog.Logger, bot bots.Bot) (channel.PlatformAdapter, error) {
	if strings.TrimSpace(bot.DiscordBotToken) == "" {
		return nil, fmt.Errorf("discord bot token is required")
	}
	return NewAdapter(log, bot), nil
}

func (a *Adapter) Transport() channel.Transport {
	return channel.TransportDiscord
}

// Initialize creates the session and validates the token over REST.
func (a *Adapter) Initialize(ctx context.Context) error {
	session, err := discordgo.New("Bot " + strings.TrimSpace(a.bot.DiscordBotToken))
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = gatewayIntents
	me, err := session.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord token check: %w", err)
	}
	a.mu.Lock()
	a.session = session
	a.rest = session
	a.selfID = me.ID
	a.mu.Unlock()
	a.logger.Info("authorized", slog.String("username", me.Username))
	return nil
}

func (a *Adapter) client() (restSession, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.rest == nil {
		return nil, channel.ErrNotRunning
	}
	return a.rest, nil
}

// Listen registers gateway handlers and opens the websocket.
func (a *Adapter) Listen(ctx context.Context, handler channel.InboundHandler) error {
	a.mu.Lock()
	session := a.session
	a.mu.Unlock()
	if session == nil {
		return channel.ErrNotRunning
	}

	dispatch := func(event channel.InboundEvent) {
		a.inflight.Add(1)
		go func() {
			defer a.inflight.Done()
			if err := handler.HandleInbound(ctx, a, event); err != nil {
				a.logger.Error("handle inbound failed", slog.String("chat_key", event.ChatKey), slog.Any("error", err))
			}
		}()
	}

	removeMessages := session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		if ctx.Err() != nil {
			return
		}
		if event, ok := a.messageEvent(m); ok {
			dispatch(event)
		}
	})
	removeInteractions := session.AddHandler(func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
		if ctx.Err() != nil {
			return
		}
		if event, ok := a.interactionEvent(ctx, i); ok {
			dispatch(event)
		}
	})
	a.mu.Lock()
	a.removers = append(a.removers, removeMessages, removeInteractions)
	a.mu.Unlock()

	if err := session.Open(); err != nil {
		removeMessages()
		removeInteractions()
		return fmt.Errorf("discord open connection: %w", err)
	}
	a.logger.Info("gateway connected")
	return nil
}

// Stop closes the gateway and waits for in-flight turns, bounded by ctx.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	session := a.session
	removers := a.removers
	a.session = nil
	a.removers = nil
	a.mu.Unlock()
	if session == nil {
		return nil
	}
	a.logger.Info("stop")
	for _, remove := range removers {
		remove()
	}
	closeErr := session.Close()

	finished := make(chan struct{})
	go func() {
		a.inflight.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
		return fmt.Errorf("discord stop: %w", ctx.Err())
	}
	a.mu.Lock()
	a.rest = nil
	a.mu.Unlock()
	return closeErr
}

func (a *Adapter) messageEvent(m *discordgo.MessageCreate) (channel.InboundEvent, bool) {
	if m == nil || m.Message == nil || m.Author == nil || m.Author.Bot {
		return channel.InboundEvent{}, false
	}
	a.mu.Lock()
	selfID := a.selfID
	a.mu.Unlock()
	if m.Author.ID == selfID {
		return channel.InboundEvent{}, false
	}
	if a.isDuplicateInbound(m.ID) {
		return channel.InboundEvent{}, false
	}
	text := strings.TrimSpace(m.Content)
	attachments := collectAttachments(m.Message)
	if text == "" && len(attachments) == 0 {
		return channel.InboundEvent{}, false
	}
	receivedAt := m.Timestamp.UTC()
	if m.Timestamp.IsZero() {
		receivedAt = time.Now().UTC()
	}
	event := channel.InboundEvent{
		ChatKey:     m.ChannelID,
		UserID:      m.Author.ID,
		Username:    m.Author.Username,
		Lang:        m.Author.Locale,
		MessageID:   m.ID,
		Text:        text,
		Attachments: attachments,
		ReceivedAt:  receivedAt,
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

// interactionEvent acknowledges a button press and turns it into a callback.
func (a *Adapter) interactionEvent(ctx context.Context, i *discordgo.InteractionCreate) (channel.InboundEvent, bool) {
	if i == nil || i.Interaction == nil || i.Type != discordgo.InteractionMessageComponent {
		return channel.InboundEvent{}, false
	}
	user := i.User
	if i.Member != nil && i.Member.User != nil {
		user = i.Member.User
	}
	if user == nil || user.Bot {
		return channel.InboundEvent{}, false
	}
	if rest, err := a.client(); err == nil {
		err := rest.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredMessageUpdate,
		}, discordgo.WithContext(ctx))
		if err != nil {
			a.logger.Warn("acknowledge interaction failed", slog.Any("error", err))
		}
	}
	messageID := ""
	if i.Message != nil {
		messageID = i.Message.ID
	}
	return channel.InboundEvent{
		ChatKey:  i.ChannelID,
		UserID:   user.ID,
		Username: user.Username,
		Lang:     string(i.Locale),
		Callback: &channel.Callback{
			ID:        i.ID,
			Data:      i.MessageComponentData().CustomID,
			MessageID: messageID,
		},
		ReceivedAt: time.Now().UTC(),
	}, true
}

func collectAttachments(msg *discordgo.Message) []channel.Attachment {
	if msg == nil || len(msg.Attachments) == 0 {
		return nil
	}
	out := make([]channel.Attachment, 0, len(msg.Attachments))
	for _, att := range msg.Attachments {
		if att == nil {
			continue
		}
		out = append(out, channel.Attachment{
			Name:     att.Filename,
			MimeType: att.ContentType,
			Size:     int64(att.Size),
			URL:      att.URL,
		})
	}
	return out
}

func (a *Adapter) isDuplicateInbound(messageID string) bool {
	if strings.TrimSpace(messageID) == "" {
		return false
	}
	now := time.Now().UTC()
	expireBefore := now.Add(-inboundDedupTTL)

	a.mu.Lock()
	defer a.mu.Unlock()
	for key, seenAt := range a.seen {
		if seenAt.Before(expireBefore) {
			delete(a.seen, key)
		}
	}
	if _, ok := a.seen[messageID]; ok {
		return true
	}
	a.seen[messageID] = now
	return false
}

// Send posts a message, attaching buttons as component rows.
func (a *Adapter) Send(ctx context.Context, chatKey string, msg channel.OutboundText) (channel.SendResult, error) {
	if err := ctx.Err(); err != nil {
		return channel.SendResult{}, err
	}
	rest, err := a.client()
	if err != nil {
		return channel.SendResult{}, err
	}
	channelID := strings.TrimSpace(chatKey)
	if channelID == "" {
		return channel.SendResult{}, fmt.Errorf("discord target is required")
	}
	sent, err := rest.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content:    a.render(msg),
		Components: components(msg.Buttons),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return channel.SendResult{}, fmt.Errorf("discord send: %w", err)
	}
	return channel.SendResult{MessageID: sent.ID}, nil
}

// Edit replaces a message's content. Discord accepts identical content, so
// not-modified is never reported.
func (a *Adapter) Edit(ctx context.Context, chatKey, messageID string, msg channel.OutboundText) channel.EditResult {
	if err := ctx.Err(); err != nil {
		return channel.EditResult{Status: channel.EditError, Err: err}
	}
	rest, err := a.client()
	if err != nil {
		return channel.EditResult{Status: channel.EditError, Err: err}
	}
	if _, err := rest.ChannelMessageEdit(chatKey, messageID, a.render(msg), discordgo.WithContext(ctx)); err != nil {
		if isUnknownMessage(err) {
			return channel.EditResult{Status: channel.EditError, Err: fmt.Errorf("discord edit: message %s is gone: %w", messageID, err)}
		}
		return channel.EditResult{Status: channel.EditError, Err: fmt.Errorf("discord edit: %w", err)}
	}
	return channel.EditResult{Status: channel.EditOK}
}

// Typing triggers the typing indicator.
func (a *Adapter) Typing(ctx context.Context, chatKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rest, err := a.client()
	if err != nil {
		return err
	}
	return rest.ChannelTyping(chatKey, discordgo.WithContext(ctx))
}

// render keeps Markdown when asked and escapes it otherwise.
func (a *Adapter) render(msg channel.OutboundText) string {
	text := msg.Text
	if !msg.Markdown {
		text = markdown.EscapeDiscord(text)
	}
	return channel.Truncate(text, discordMaxMessageLength)
}

func components(buttons []channel.Button) []discordgo.MessageComponent {
	if len(buttons) == 0 {
		return nil
	}
	var rows []discordgo.MessageComponent
	for start := 0; start < len(buttons) && len(rows) < maxButtonRows; start += maxButtonsPerRow {
		end := min(start+maxButtonsPerRow, len(buttons))
		row := discordgo.ActionsRow{}
		for _, b := range buttons[start:end] {
			row.Components = append(row.Components, discordgo.Button{
				Label:    channel.Truncate(b.Label, 80),
				Style:    discordgo.SecondaryButton,
				CustomID: b.Data,
			})
		}
		rows = append(rows, row)
	}
	return rows
}

func isUnknownMessage(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) || restErr.Response == nil {
		return false
	}
	return restErr.Response.StatusCode == http.StatusNotFound
}
