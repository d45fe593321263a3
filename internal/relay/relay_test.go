package relay

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/plugbot/plugbot/internal/bots"
	"github.com/plugbot/plugbot/internal/channel"
	"github.com/plugbot/plugbot/internal/config"
	"github.com/plugbot/plugbot/internal/conversation"
	"github.com/plugbot/plugbot/internal/dify"
	"github.com/plugbot/plugbot/internal/i18n"
	"github.com/plugbot/plugbot/internal/message"
)

type fakeSender struct {
	mu         sync.Mutex
	sends      []channel.OutboundText
	edits      []string
	editStatus channel.EditStatus
}

func (f *fakeSender) Send(_ context.Context, _ string, msg channel.OutboundText) (channel.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, msg)
	return channel.SendResult{MessageID: "m-1"}, nil
}

func (f *fakeSender) Edit(_ context.Context, _ string, messageID string, msg channel.OutboundText) channel.EditResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	if messageID != "m-1" {
		return channel.EditResult{Status: channel.EditError, Err: errors.New("unknown message")}
	}
	f.edits = append(f.edits, msg.Text)
	if f.editStatus != "" {
		return channel.EditResult{Status: f.editStatus}
	}
	return channel.EditResult{Status: channel.EditOK}
}

func (f *fakeSender) Typing(context.Context, string) error { return nil }

type fakeStream struct {
	events []dify.Event
	closed bool
}

func (s *fakeStream) Next() (dify.Event, error) {
	if len(s.events) == 0 {
		return dify.Event{}, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

type fakeUpstream struct {
	stream *fakeStream
	calls  int
	req    dify.ChatRequest
}

func (u *fakeUpstream) Chat(_ context.Context, _ bots.Bot, req dify.ChatRequest) EventStream {
	u.calls++
	u.req = req
	return u.stream
}

type fakeWriter struct {
	persisted []message.PersistInput
	err       error
}

func (w *fakeWriter) Persist(_ context.Context, in message.PersistInput) (message.Message, error) {
	if w.err != nil {
		return message.Message{}, w.err
	}
	w.persisted = append(w.persisted, in)
	return message.Message{ConversationID: in.ConversationID, Role: in.Role, Content: in.Content}, nil
}

// fakeConversations mirrors the bookkeeping of the tracker.
type fakeConversations struct {
	upstreamID    string
	messageCount  int
	lastMessageAt time.Time
}

func (f *fakeConversations) BindUpstream(_ context.Context, _ string, upstreamID string) error {
	if f.upstreamID == "" {
		f.upstreamID = upstreamID
	}
	return nil
}

func (f *fakeConversations) RecordExchange(_ context.Context, _ string, at time.Time) error {
	f.messageCount += 2
	f.lastMessageAt = at
	return nil
}

type harness struct {
	relay    *Relay
	sender   *fakeSender
	upstream *fakeUpstream
	writer   *fakeWriter
	convs    *fakeConversations
}

func newHarness(t *testing.T, events ...dify.Event) *harness {
	t.Helper()
	catalog, err := i18n.Load("en")
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	h := &harness{
		sender:   &fakeSender{},
		upstream: &fakeUpstream{stream: &fakeStream{events: events}},
		writer:   &fakeWriter{},
		convs:    &fakeConversations{},
	}
	h.relay = New(nil, h.writer, h.convs, h.upstream, catalog, config.RelayConfig{EditEveryChars: 20})
	return h
}

func streamingTurn() Turn {
	return Turn{
		Bot:          bots.Bot{ID: "bot-1", ResponseMode: bots.ResponseModeStreaming},
		Conversation: conversation.Conversation{ID: "conv-1"},
		Prompt:       "hi",
		ChatKey:      "42",
		UserID:       "telegram_7",
		Lang:         "en",
	}
}

func fragment(s string) dify.Event {
	return dify.Event{Kind: dify.EventMessage, Answer: s}
}

func TestRelayStreamsFragmentsAndRecordsExchange(t *testing.T) {
	t.Parallel()

	h := newHarness(t,
		fragment("Hel"),
		fragment("lo"),
		dify.Event{Kind: dify.EventMessageEnd, ConversationID: "c1", MessageID: "dm-1", Usage: &dify.Usage{TotalTokens: 12}},
	)
	res, err := h.relay.Relay(context.Background(), h.sender, streamingTurn())
	if err != nil {
		t.Fatalf("relay: %v", err)
	}

	if res.Text != "Hello" || res.ConversationID != "c1" {
		t.Fatalf("unexpected result %+v", res)
	}
	if h.convs.upstreamID != "c1" {
		t.Fatalf("upstream conversation not bound, got %q", h.convs.upstreamID)
	}
	if h.convs.messageCount != 2 || h.convs.lastMessageAt.IsZero() {
		t.Fatalf("expected count +2 and last_message_at set, got %+v", h.convs)
	}
	if len(h.sender.sends) != 1 || h.sender.sends[0].Text != "Hel" {
		t.Fatalf("expected first fragment sent once, got %+v", h.sender.sends)
	}
	if len(h.sender.edits) != 1 || h.sender.edits[0] != "Hello" {
		t.Fatalf("expected final edit to Hello, got %v", h.sender.edits)
	}

	if len(h.writer.persisted) != 2 {
		t.Fatalf("expected user and assistant messages, got %+v", h.writer.persisted)
	}
	user, assistant := h.writer.persisted[0], h.writer.persisted[1]
	if user.Role != message.RoleUser || user.Content != "hi" {
		t.Fatalf("unexpected user message %+v", user)
	}
	if assistant.Role != message.RoleAssistant || assistant.Content != "Hello" || assistant.DifyMessageID != "dm-1" {
		t.Fatalf("unexpected assistant message %+v", assistant)
	}
	if assistant.TokensUsed == nil || *assistant.TokensUsed != 12 {
		t.Fatalf("expected token usage, got %v", assistant.TokensUsed)
	}
	if !h.upstream.stream.closed {
		t.Fatalf("stream should be closed")
	}
}

func TestRelayNoIntermediateEditBelowThreshold(t *testing.T) {
	t.Parallel()

	// 6 + 11 + 2 = 19 characters, one short of the first boundary.
	h := newHarness(t, fragment("Hello "), fragment("world, how "), fragment("ar"))
	res, err := h.relay.Relay(context.Background(), h.sender, streamingTurn())
	if err != nil {
		t.Fatalf("relay: %v", err)
	}
	if len([]rune(res.Text)) != 19 {
		t.Fatalf("unexpected text %q", res.Text)
	}
	if len(h.sender.sends) != 1 {
		t.Fatalf("expected a single send, got %d", len(h.sender.sends))
	}
	if len(h.sender.edits) != 1 || h.sender.edits[0] != res.Text {
		t.Fatalf("expected only the final edit, got %v", h.sender.edits)
	}
}

func TestRelayEditsOnBoundaryCrossing(t *testing.T) {
	t.Parallel()

	h := newHarness(t, fragment("0123456789"), fragment("0123456789"), fragment("x"))
	if _, err := h.relay.Relay(context.Background(), h.sender, streamingTurn()); err != nil {
		t.Fatalf("relay: %v", err)
	}
	want := []string{"01234567890123456789", "01234567890123456789x"}
	if len(h.sender.edits) != len(want) || h.sender.edits[0] != want[0] || h.sender.edits[1] != want[1] {
		t.Fatalf("unexpected edits %v", h.sender.edits)
	}
}

func TestRelayPlaceholderForEmptyFirstFragment(t *testing.T) {
	t.Parallel()

	h := newHarness(t, fragment(""), fragment("Hi"))
	if _, err := h.relay.Relay(context.Background(), h.sender, streamingTurn()); err != nil {
		t.Fatalf("relay: %v", err)
	}
	if len(h.sender.sends) != 1 || h.sender.sends[0].Text != config.DefaultPlaceholder {
		t.Fatalf("expected placeholder send, got %+v", h.sender.sends)
	}
	if len(h.sender.edits) != 1 || h.sender.edits[0] != "Hi" {
		t.Fatalf("expected final edit, got %v", h.sender.edits)
	}
}

func TestRelayBlockingSendsOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(t, fragment("Hello there"), dify.Event{Kind: dify.EventMessageEnd, ConversationID: "c2"})
	turn := streamingTurn()
	turn.Bot.ResponseMode = bots.ResponseModeBlocking
	turn.Markdown = true
	if _, err := h.relay.Relay(context.Background(), h.sender, turn); err != nil {
		t.Fatalf("relay: %v", err)
	}
	if h.upstream.req.ResponseMode != dify.ResponseModeBlocking {
		t.Fatalf("expected blocking request, got %q", h.upstream.req.ResponseMode)
	}
	if len(h.sender.sends) != 1 || h.sender.sends[0].Text != "Hello there" || !h.sender.sends[0].Markdown {
		t.Fatalf("expected one markdown send, got %+v", h.sender.sends)
	}
	if len(h.sender.edits) != 0 {
		t.Fatalf("blocking mode must not edit, got %v", h.sender.edits)
	}
}

func TestRelayUpstreamErrorAbortsTurn(t *testing.T) {
	t.Parallel()

	h := newHarness(t, fragment("partial"), dify.Event{Kind: dify.EventError, Message: "Error from Dify API: 500"}, fragment("ignored"))
	res, err := h.relay.Relay(context.Background(), h.sender, streamingTurn())
	if err != nil {
		t.Fatalf("relay: %v", err)
	}
	last := h.sender.sends[len(h.sender.sends)-1]
	if last.Text != "❌ Error from Dify API: 500" {
		t.Fatalf("unexpected error reply %q", last.Text)
	}
	if res.Text != "" {
		t.Fatalf("aborted turn should not report text, got %q", res.Text)
	}
	if len(h.writer.persisted) != 1 {
		t.Fatalf("only the user message may be persisted, got %+v", h.writer.persisted)
	}
	if h.convs.messageCount != 0 {
		t.Fatalf("aborted turn must not count messages")
	}
}

func TestRelayEmptyStreamRepliesNoResponse(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	if _, err := h.relay.Relay(context.Background(), h.sender, streamingTurn()); err != nil {
		t.Fatalf("relay: %v", err)
	}
	if len(h.sender.sends) != 1 || h.sender.sends[0].Text != "🤔 No response from the assistant." {
		t.Fatalf("unexpected reply %+v", h.sender.sends)
	}
}

func TestRelayNotModifiedIsSwallowed(t *testing.T) {
	t.Parallel()

	h := newHarness(t, fragment("Hel"), fragment("lo"))
	h.sender.editStatus = channel.EditNotModified
	res, err := h.relay.Relay(context.Background(), h.sender, streamingTurn())
	if err != nil {
		t.Fatalf("relay: %v", err)
	}
	if res.Edits != 1 {
		t.Fatalf("not-modified edit should count as applied, got %d", res.Edits)
	}
}

func TestRelayPersistsUserMessageBeforeUpstream(t *testing.T) {
	t.Parallel()

	h := newHarness(t, fragment("never"))
	h.writer.err = errors.New("db down")
	if _, err := h.relay.Relay(context.Background(), h.sender, streamingTurn()); err == nil {
		t.Fatalf("expected persist error")
	}
	if h.upstream.calls != 0 {
		t.Fatalf("upstream must not be called when the user message cannot be stored")
	}
}

func TestRelayKeepsExistingUpstreamConversation(t *testing.T) {
	t.Parallel()

	h := newHarness(t, fragment("ok"), dify.Event{Kind: dify.EventMessageEnd, ConversationID: "other"})
	turn := streamingTurn()
	turn.Conversation.DifyConversationID = "c-existing"
	res, err := h.relay.Relay(context.Background(), h.sender, turn)
	if err != nil {
		t.Fatalf("relay: %v", err)
	}
	if h.upstream.req.ConversationID != "c-existing" {
		t.Fatalf("request should continue the upstream conversation, got %q", h.upstream.req.ConversationID)
	}
	if h.convs.upstreamID != "" || res.ConversationID != "c-existing" {
		t.Fatalf("existing upstream id must be kept, got %q / %q", h.convs.upstreamID, res.ConversationID)
	}
}
