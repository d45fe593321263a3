package discord

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/plugbot/plugbot/internal/bots"
	"github.com/plugbot/plugbot/internal/channel"
)

type fakeRest struct {
	mu        sync.Mutex
	sent      []*discordgo.MessageSend
	edits     []string
	typing    int
	responded int
	editErr   error
}

func (f *fakeRest) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, data)
	return &discordgo.Message{ID: "msg-1", ChannelID: channelID}, nil
}

func (f *fakeRest) ChannelMessageEdit(_, _, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editErr != nil {
		return nil, f.editErr
	}
	f.edits = append(f.edits, content)
	return &discordgo.Message{ID: "msg-1"}, nil
}

func (f *fakeRest) ChannelTyping(string, ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing++
	return nil
}

func (f *fakeRest) InteractionRespond(*discordgo.Interaction, *discordgo.InteractionResponse, ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responded++
	return nil
}

func newTestAdapter(bot bots.Bot) (*Adapter, *fakeRest) {
	rest := &fakeRest{}
	a := NewAdapter(nil, bot)
	a.rest = rest
	a.selfID = "self"
	return a, rest
}

func userMessage(id, content string) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{Message: &discordgo.Message{
		ID:        id,
		ChannelID: "chan-1",
		Content:   content,
		Author:    &discordgo.User{ID: "u-1", Username: "alice"},
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}}
}

func TestFactoryRequiresToken(t *testing.T) {
	t.Parallel()

	if _, err := Factory(nil, bots.Bot{ID: "b"}); err == nil {
		t.Fatalf("expected error without token")
	}
	adapter, err := Factory(nil, bots.Bot{ID: "b", DiscordBotToken: "tok"})
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	if adapter.Transport() != channel.TransportDiscord {
		t.Fatalf("unexpected transport %v", adapter.Transport())
	}
}

func TestMessageEventParsesCommand(t *testing.T) {
	t.Parallel()

	a, _ := newTestAdapter(bots.Bot{ID: "b"})
	ev, ok := a.messageEvent(userMessage("1", "!switch abc"))
	if !ok {
		t.Fatalf("expected event")
	}
	if !ev.IsCommand || ev.Command != "switch" || len(ev.Args) != 1 || ev.Args[0] != "abc" {
		t.Fatalf("unexpected command parse %+v", ev)
	}
	if ev.ChatKey != "chan-1" || ev.UserID != "u-1" || ev.Username != "alice" {
		t.Fatalf("unexpected identity %+v", ev)
	}
	if !ev.ReceivedAt.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Fatalf("unexpected timestamp %v", ev.ReceivedAt)
	}
}

func TestMessageEventSkipsBotsSelfAndDuplicates(t *testing.T) {
	t.Parallel()

	a, _ := newTestAdapter(bots.Bot{ID: "b"})

	fromBot := userMessage("1", "hi")
	fromBot.Author.Bot = true
	if _, ok := a.messageEvent(fromBot); ok {
		t.Fatalf("bot authors must be skipped")
	}

	fromSelf := userMessage("2", "hi")
	fromSelf.Author.ID = "self"
	if _, ok := a.messageEvent(fromSelf); ok {
		t.Fatalf("own messages must be skipped")
	}

	if _, ok := a.messageEvent(userMessage("3", "hello")); !ok {
		t.Fatalf("first delivery should pass")
	}
	if _, ok := a.messageEvent(userMessage("3", "hello")); ok {
		t.Fatalf("redelivered message should be dropped")
	}
	if _, ok := a.messageEvent(userMessage("4", "   ")); ok {
		t.Fatalf("blank messages should be skipped")
	}
}

func TestMessageEventAttachments(t *testing.T) {
	t.Parallel()

	a, _ := newTestAdapter(bots.Bot{ID: "b"})
	m := userMessage("1", "!look")
	m.Attachments = []*discordgo.MessageAttachment{{
		Filename:    "cat.png",
		ContentType: "image/png",
		Size:        1024,
		URL:         "https://cdn.example/cat.png",
	}}
	ev, ok := a.messageEvent(m)
	if !ok {
		t.Fatalf("expected event")
	}
	if ev.IsCommand {
		t.Fatalf("text with attachments is a prompt")
	}
	if len(ev.Attachments) != 1 || ev.Attachments[0].MimeType != "image/png" || ev.Attachments[0].Size != 1024 {
		t.Fatalf("unexpected attachments %+v", ev.Attachments)
	}
}

func TestInteractionEventBecomesCallback(t *testing.T) {
	t.Parallel()

	a, rest := newTestAdapter(bots.Bot{ID: "b"})
	ev, ok := a.interactionEvent(context.Background(), &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		ID:        "int-1",
		Type:      discordgo.InteractionMessageComponent,
		ChannelID: "chan-1",
		Locale:    discordgo.Russian,
		Member:    &discordgo.Member{User: &discordgo.User{ID: "u-1", Username: "alice"}},
		Message:   &discordgo.Message{ID: "msg-9"},
		Data:      discordgo.MessageComponentInteractionData{CustomID: "lang_ru"},
	}})
	if !ok || ev.Callback == nil {
		t.Fatalf("expected callback event, got %+v", ev)
	}
	if ev.Callback.Data != "lang_ru" || ev.Callback.MessageID != "msg-9" || ev.UserID != "u-1" || ev.Lang != "ru" {
		t.Fatalf("unexpected callback %+v / %+v", ev, ev.Callback)
	}
	if rest.responded != 1 {
		t.Fatalf("interaction should be acknowledged")
	}

	if _, ok := a.interactionEvent(context.Background(), &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type: discordgo.InteractionApplicationCommand,
	}}); ok {
		t.Fatalf("only component interactions are callbacks")
	}
}

func TestSendEscapesMarkdownWhenNotRequested(t *testing.T) {
	t.Parallel()

	a, rest := newTestAdapter(bots.Bot{ID: "b", DiscordMarkdownEnabled: true})
	res, err := a.Send(context.Background(), "chan-1", channel.OutboundText{Text: "**hi**"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.MessageID != "msg-1" {
		t.Fatalf("unexpected id %q", res.MessageID)
	}
	if got := rest.sent[0].Content; got != `\*\*hi\*\*` {
		t.Fatalf("expected escaped markdown, got %q", got)
	}
}

func TestSendKeepsMarkdownWhenEnabled(t *testing.T) {
	t.Parallel()

	a, rest := newTestAdapter(bots.Bot{ID: "b", DiscordMarkdownEnabled: true})
	if _, err := a.Send(context.Background(), "chan-1", channel.OutboundText{Text: "**hi**", Markdown: true}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := rest.sent[0].Content; got != "**hi**" {
		t.Fatalf("expected raw markdown, got %q", got)
	}
}

func TestSendTruncatesAndBuildsButtons(t *testing.T) {
	t.Parallel()

	a, rest := newTestAdapter(bots.Bot{ID: "b", DiscordMarkdownEnabled: true})
	buttons := make([]channel.Button, 7)
	for i := range buttons {
		buttons[i] = channel.Button{Label: "c", Data: "conv_" + string(rune('a'+i))}
	}
	_, err := a.Send(context.Background(), "chan-1", channel.OutboundText{
		Text:     strings.Repeat("x", 2500),
		Markdown: true,
		Buttons:  buttons,
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	sent := rest.sent[0]
	if n := len([]rune(sent.Content)); n != discordMaxMessageLength {
		t.Fatalf("expected %d runes, got %d", discordMaxMessageLength, n)
	}
	if len(sent.Components) != 2 {
		t.Fatalf("expected two rows, got %d", len(sent.Components))
	}
	first := sent.Components[0].(discordgo.ActionsRow)
	second := sent.Components[1].(discordgo.ActionsRow)
	if len(first.Components) != 5 || len(second.Components) != 2 {
		t.Fatalf("unexpected row sizes %d/%d", len(first.Components), len(second.Components))
	}
	if first.Components[0].(discordgo.Button).CustomID != "conv_a" {
		t.Fatalf("unexpected custom id")
	}
}

func TestEditAndTyping(t *testing.T) {
	t.Parallel()

	a, rest := newTestAdapter(bots.Bot{ID: "b", DiscordMarkdownEnabled: true})
	if res := a.Edit(context.Background(), "chan-1", "msg-1", channel.OutboundText{Text: "new", Markdown: true}); res.Status != channel.EditOK {
		t.Fatalf("expected ok, got %+v", res)
	}
	if len(rest.edits) != 1 || rest.edits[0] != "new" {
		t.Fatalf("unexpected edits %v", rest.edits)
	}
	if err := a.Typing(context.Background(), "chan-1"); err != nil || rest.typing != 1 {
		t.Fatalf("typing: %v (%d)", err, rest.typing)
	}

	rest.editErr = errors.New("boom")
	if res := a.Edit(context.Background(), "chan-1", "msg-1", channel.OutboundText{Text: "x"}); res.Status != channel.EditError || res.Err == nil {
		t.Fatalf("expected error, got %+v", res)
	}
}

func TestOutboundBeforeInitialize(t *testing.T) {
	t.Parallel()

	a := NewAdapter(nil, bots.Bot{ID: "b"})
	if _, err := a.Send(context.Background(), "chan-1", channel.OutboundText{Text: "x"}); !errors.Is(err, channel.ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
	if err := a.Stop(context.Background()); err != nil {
		t.Fatalf("stop without session should be a no-op: %v", err)
	}
}
