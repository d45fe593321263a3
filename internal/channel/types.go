// Package channel runs one platform unit per (bot, transport) and defines the
// contract between platform adapters and the inbound processor.
package channel

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Transport identifies a messaging platform.
type Transport string

const (
	TransportTelegram Transport = "telegram"
	TransportDiscord  Transport = "discord"
)

// String returns the transport as a plain string.
func (t Transport) String() string {
	return string(t)
}

// ParseTransport normalizes a user-supplied transport name.
func ParseTransport(raw string) (Transport, error) {
	switch Transport(strings.ToLower(strings.TrimSpace(raw))) {
	case TransportTelegram:
		return TransportTelegram, nil
	case TransportDiscord:
		return TransportDiscord, nil
	default:
		return "", ErrUnknownTransport
	}
}

var (
	ErrUnknownTransport = errors.New("unknown transport")
	ErrInitializeFailed = errors.New("adapter initialization failed")
	ErrNoTransport      = errors.New("bot has no transport credentials")
	ErrNotRunning       = errors.New("adapter is not running")
)

// UnitKey identifies a running unit in the manager registry.
type UnitKey struct {
	BotID     string
	Transport Transport
}

// Attachment is a file referenced by an inbound message. URL is directly
// downloadable; Size is as reported by the platform (0 when unknown).
type Attachment struct {
	Name     string
	MimeType string
	Size     int64
	URL      string
}

// Callback is a button press.
type Callback struct {
	ID        string
	Data      string
	MessageID string
}

// InboundEvent is a normalized message, command, or button press.
type InboundEvent struct {
	Transport   Transport
	BotID       string
	ChatKey     string
	UserID      string
	Username    string
	Lang        string
	MessageID   string
	Text        string
	Attachments []Attachment
	IsCommand   bool
	Command     string
	Args        []string
	Callback    *Callback
	ReceivedAt  time.Time
}

// Button is an inline button carrying callback data.
type Button struct {
	Label string
	Data  string
}

// OutboundText is a reply. Markdown asks the adapter for rich rendering;
// adapters fall back to plain text when rendering or the platform rejects it.
type OutboundText struct {
	Text     string
	Markdown bool
	Buttons  []Button
}

// SendResult identifies a sent message so it can be edited later.
type SendResult struct {
	MessageID string
}

type EditStatus string

const (
	EditOK          EditStatus = "ok"
	EditNotModified EditStatus = "not_modified"
	EditError       EditStatus = "error"
)

// EditResult reports the outcome of an edit. Err is set only for EditError.
type EditResult struct {
	Status EditStatus
	Err    error
}

// Sender is the outbound half of an adapter.
type Sender interface {
	Send(ctx context.Context, chatKey string, msg OutboundText) (SendResult, error)
	Edit(ctx context.Context, chatKey, messageID string, msg OutboundText) EditResult
	Typing(ctx context.Context, chatKey string) error
}

// InboundHandler processes one inbound event. Replies go through sender.
type InboundHandler interface {
	HandleInbound(ctx context.Context, sender Sender, event InboundEvent) error
}

// InboundHandlerFunc adapts a function to InboundHandler.
type InboundHandlerFunc func(ctx context.Context, sender Sender, event InboundEvent) error

func (f InboundHandlerFunc) HandleInbound(ctx context.Context, sender Sender, event InboundEvent) error {
	return f(ctx, sender, event)
}

// PlatformAdapter is one transport connection for one bot.
//
// Initialize validates credentials and connects. Listen starts delivering
// events to handler in background goroutines bound to ctx and returns once
// delivery has begun. Stop ends delivery and waits for it, bounded by ctx.
type PlatformAdapter interface {
	Sender
	Transport() Transport
	Initialize(ctx context.Context) error
	Listen(ctx context.Context, handler InboundHandler) error
	Stop(ctx context.Context) error
}

// UnitStatus is the per-transport running state of a bot.
type UnitStatus struct {
	BotID           string `json:"bot_id"`
	TelegramRunning bool   `json:"is_telegram_running"`
	DiscordRunning  bool   `json:"is_discord_running"`
	Running         bool   `json:"is_running"`
}

// SplitCommand parses "/cmd@bot a b" or "!cmd a b" into ("cmd", ["a","b"]).
// ok is false when text does not start with prefix.
func SplitCommand(text, prefix string) (string, []string, bool) {
	text = strings.TrimSpace(text)
	if prefix == "" || !strings.HasPrefix(text, prefix) {
		return "", nil, false
	}
	fields := strings.Fields(strings.TrimPrefix(text, prefix))
	if len(fields) == 0 {
		return "", nil, false
	}
	cmd := fields[0]
	if at := strings.Index(cmd, "@"); at >= 0 {
		cmd = cmd[:at]
	}
	if cmd == "" {
		return "", nil, false
	}
	return strings.ToLower(cmd), fields[1:], true
}

// Truncate cuts text to max runes, marking the cut with "...".
func Truncate(text string, max int) string {
	if max <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
