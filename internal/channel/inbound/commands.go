package inbound

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/plugbot/plugbot/internal/channel"
	"github.com/plugbot/plugbot/internal/conversation"
	"github.com/plugbot/plugbot/internal/session"
)

const (
	callbackConversation = "conv_"
	callbackLanguage     = "lang_"
	historyTimeLayout    = "2006-01-02 15:04"
)

var knownCommands = map[string]bool{
	"start":    true,
	"help":     true,
	"new":      true,
	"clear":    true,
	"history":  true,
	"logout":   true,
	"language": true,
	"lang":     true,
}

func isKnownCommand(cmd string) bool {
	return knownCommands[cmd]
}

func (p *Processor) handleCommand(ctx context.Context, t turnCtx) error {
	switch t.event.Command {
	case "start", "help":
		return p.cmdWelcome(ctx, t)
	case "logout":
		if err := p.gate.Logout(ctx, t.bot.ID, t.event.UserID); err != nil {
			return fmt.Errorf("logout: %w", err)
		}
		p.reply(ctx, t.sender, t.event.ChatKey, p.catalog.T(t.lang, "bot.logout_success", nil), t.log)
		return nil
	case "language", "lang":
		return p.cmdLanguage(ctx, t)
	}

	// The remaining commands touch conversations and sit behind the gate.
	ok, err := p.allowed(ctx, t, "")
	if err != nil || !ok {
		return err
	}
	switch t.event.Command {
	case "new":
		if _, err := p.conversations.DeactivateActive(ctx, t.ref()); err != nil {
			return fmt.Errorf("start new conversation: %w", err)
		}
		p.reply(ctx, t.sender, t.event.ChatKey, p.catalog.T(t.lang, "bot.new_conversation", nil), t.log)
	case "clear":
		cleared, err := p.conversations.ClearActive(ctx, t.ref())
		if err != nil {
			return fmt.Errorf("clear conversation: %w", err)
		}
		key := "bot.conversation_cleared"
		if !cleared {
			key = "bot.nothing_to_clear"
		}
		p.reply(ctx, t.sender, t.event.ChatKey, p.catalog.T(t.lang, key, nil), t.log)
	case "history":
		return p.cmdHistory(ctx, t)
	}
	return nil
}

func (p *Processor) cmdWelcome(ctx context.Context, t turnCtx) error {
	vars := map[string]string{"bot_name": t.bot.Name, "description": t.bot.Description}
	key := "bot.welcome"
	if strings.TrimSpace(t.bot.Description) == "" {
		key = "bot.welcome_no_desc"
	}
	p.send(ctx, t.sender, t.event.ChatKey, channel.OutboundText{Text: p.catalog.T(t.lang, key, vars), Markdown: t.markdown()}, t.log)
	return nil
}

func (p *Processor) cmdLanguage(ctx context.Context, t turnCtx) error {
	if len(t.event.Args) > 0 {
		return p.setLanguage(ctx, t, t.event.Args[0], "")
	}
	languages := p.catalog.Languages()
	buttons := make([]channel.Button, 0, len(languages))
	for _, l := range languages {
		buttons = append(buttons, channel.Button{Label: l.Name, Data: callbackLanguage + l.Code})
	}
	p.send(ctx, t.sender, t.event.ChatKey, channel.OutboundText{
		Text:    p.catalog.T(t.lang, "bot.choose_language", nil),
		Buttons: buttons,
	}, t.log)
	return nil
}

func (p *Processor) cmdHistory(ctx context.Context, t turnCtx) error {
	items, err := p.conversations.History(ctx, t.ref())
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	if len(items) == 0 {
		p.reply(ctx, t.sender, t.event.ChatKey, p.catalog.T(t.lang, "bot.no_history", nil), t.log)
		return nil
	}
	buttons := make([]channel.Button, 0, len(items))
	for _, conv := range items {
		status := p.catalog.T(t.lang, "conversation.status_inactive", nil)
		if conv.IsActive {
			status = p.catalog.T(t.lang, "conversation.status_active", nil)
		}
		title := strings.TrimSpace(conv.Title)
		if title == "" {
			title = p.catalog.T(t.lang, "bot.untitled_conversation", nil) + " " + conv.CreatedAt.Format(historyTimeLayout)
		}
		buttons = append(buttons, channel.Button{
			Label: channel.Truncate(status+" "+title, 60),
			Data:  callbackConversation + conv.ID,
		})
	}
	p.send(ctx, t.sender, t.event.ChatKey, channel.OutboundText{
		Text:    p.catalog.T(t.lang, "bot.recent_conversations", nil),
		Buttons: buttons,
	}, t.log)
	return nil
}

func (p *Processor) handleCallback(ctx context.Context, t turnCtx) error {
	data := strings.TrimSpace(t.event.Callback.Data)
	switch {
	case strings.HasPrefix(data, callbackLanguage):
		return p.setLanguage(ctx, t, strings.TrimPrefix(data, callbackLanguage), t.event.Callback.MessageID)
	case strings.HasPrefix(data, callbackConversation):
		ok, err := p.allowed(ctx, t, "")
		if err != nil || !ok {
			return err
		}
		return p.switchConversation(ctx, t, strings.TrimPrefix(data, callbackConversation))
	default:
		t.log.Debug("unknown callback", slog.String("data", data))
		return nil
	}
}

// setLanguage stores the preference and confirms in the new language,
// editing messageID when the choice came from a button.
func (p *Processor) setLanguage(ctx context.Context, t turnCtx, requested, messageID string) error {
	code, ok := p.catalog.Normalize(requested)
	if !ok {
		p.reply(ctx, t.sender, t.event.ChatKey, p.catalog.T(t.lang, "bot.language_unknown", map[string]string{"language": requested}), t.log)
		return nil
	}
	if err := p.sessions.Set(ctx, session.LangKey(t.bot.ID, t.event.UserID), code, 0); err != nil {
		return fmt.Errorf("store language: %w", err)
	}
	name := code
	for _, l := range p.catalog.Languages() {
		if l.Code == code {
			name = l.Name
			break
		}
	}
	p.confirm(ctx, t, messageID, p.catalog.T(code, "bot.language_set", map[string]string{"language": name}))
	return nil
}

func (p *Processor) switchConversation(ctx context.Context, t turnCtx, conversationID string) error {
	conv, err := p.conversations.SwitchTo(ctx, t.ref(), conversationID)
	if errors.Is(err, conversation.ErrConversationNotFound) {
		p.confirm(ctx, t, t.event.Callback.MessageID, p.catalog.T(t.lang, "bot.conversation_not_found", nil))
		return nil
	}
	if err != nil {
		return fmt.Errorf("switch conversation: %w", err)
	}
	title := strings.TrimSpace(conv.Title)
	if title == "" {
		title = p.catalog.T(t.lang, "bot.untitled_conversation", nil)
	}
	p.confirm(ctx, t, t.event.Callback.MessageID, p.catalog.T(t.lang, "bot.switched_conversation", map[string]string{"title": title}))
	return nil
}

// confirm edits the message carrying the buttons, or sends a new one.
func (p *Processor) confirm(ctx context.Context, t turnCtx, messageID, text string) {
	if messageID != "" {
		editCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), replyTimeout)
		res := t.sender.Edit(editCtx, t.event.ChatKey, messageID, channel.OutboundText{Text: text})
		cancel()
		if res.Status != channel.EditError {
			return
		}
		t.log.Debug("confirmation edit failed", slog.Any("error", res.Err))
	}
	p.reply(ctx, t.sender, t.event.ChatKey, text, t.log)
}
