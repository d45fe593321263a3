package channel

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/plugbot/plugbot/internal/bots"
	"github.com/plugbot/plugbot/internal/config"
)

type fakeAdapter struct {
	transport Transport
	initErr   error
	listening atomic.Bool
	stopped   atomic.Int32
	handler   InboundHandler
	hangStop  bool
}

func (f *fakeAdapter) Transport() Transport { return f.transport }

func (f *fakeAdapter) Initialize(context.Context) error { return f.initErr }

func (f *fakeAdapter) Listen(_ context.Context, handler InboundHandler) error {
	f.handler = handler
	f.listening.Store(true)
	return nil
}

func (f *fakeAdapter) Stop(ctx context.Context) error {
	f.listening.Store(false)
	f.stopped.Add(1)
	if f.hangStop {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (f *fakeAdapter) Send(context.Context, string, OutboundText) (SendResult, error) {
	return SendResult{MessageID: "1"}, nil
}

func (f *fakeAdapter) Edit(context.Context, string, string, OutboundText) EditResult {
	return EditResult{Status: EditOK}
}

func (f *fakeAdapter) Typing(context.Context, string) error { return nil }

type fakeHealth struct {
	mu      sync.Mutex
	updates []bots.HealthUpdate
}

func (f *fakeHealth) UpdateHealth(_ context.Context, _ string, update bots.HealthUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, update)
	return nil
}

func (f *fakeHealth) last() bots.HealthUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.updates) == 0 {
		return bots.HealthUpdate{}
	}
	return f.updates[len(f.updates)-1]
}

type adapterRecorder struct {
	mu       sync.Mutex
	created  []*fakeAdapter
	initErrs map[Transport]error
	hangStop bool
}

func (r *adapterRecorder) factory(t Transport) AdapterFactory {
	return func(_ *slog.Logger, _ bots.Bot) (PlatformAdapter, error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		a := &fakeAdapter{transport: t, initErr: r.initErrs[t], hangStop: r.hangStop}
		r.created = append(r.created, a)
		return a, nil
	}
}

func (r *adapterRecorder) listening() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.created {
		if a.listening.Load() {
			n++
		}
	}
	return n
}

func newTestManager(t *testing.T, rec *adapterRecorder, health HealthWriter, handler InboundHandler) *Manager {
	t.Helper()
	reg := NewRegistry()
	reg.MustRegister(TransportTelegram, rec.factory(TransportTelegram))
	reg.MustRegister(TransportDiscord, rec.factory(TransportDiscord))
	return NewManager(slog.Default(), reg, health, handler, config.ChannelConfig{})
}

func telegramBot() bots.Bot {
	return bots.Bot{ID: "bot-1", TelegramBotToken: "123:abc", IsActive: true}
}

func TestManagerStartTwiceKeepsOneUnit(t *testing.T) {
	t.Parallel()

	rec := &adapterRecorder{}
	m := newTestManager(t, rec, &fakeHealth{}, nil)
	ctx := context.Background()

	if err := m.Start(ctx, telegramBot()); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := m.Start(ctx, telegramBot()); err != nil {
		t.Fatalf("second start: %v", err)
	}

	if got := rec.listening(); got != 1 {
		t.Fatalf("expected exactly one listening unit, got %d", got)
	}
	if len(m.units) != 1 {
		t.Fatalf("expected one registered unit, got %d", len(m.units))
	}
	if rec.created[0].stopped.Load() != 1 {
		t.Fatalf("expected the first unit to be stopped on replace")
	}
	if st := m.Status("bot-1"); !st.TelegramRunning || st.DiscordRunning || !st.Running {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestManagerConcurrentStartsKeepOneUnit(t *testing.T) {
	t.Parallel()

	rec := &adapterRecorder{}
	m := newTestManager(t, rec, &fakeHealth{}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Start(context.Background(), telegramBot())
		}()
	}
	wg.Wait()

	if got := rec.listening(); got != 1 {
		t.Fatalf("expected exactly one listening unit, got %d", got)
	}
}

func TestManagerInitializeFailureRegistersNothing(t *testing.T) {
	t.Parallel()

	rec := &adapterRecorder{initErrs: map[Transport]error{TransportTelegram: errors.New("unauthorized")}}
	health := &fakeHealth{}
	m := newTestManager(t, rec, health, nil)

	err := m.Start(context.Background(), telegramBot())
	if !errors.Is(err, ErrInitializeFailed) {
		t.Fatalf("expected ErrInitializeFailed, got %v", err)
	}
	if m.Status("bot-1").Running {
		t.Fatalf("failed unit must not be running")
	}
	last := health.last()
	if last.Status != bots.HealthUnhealthy {
		t.Fatalf("expected unhealthy, got %q", last.Status)
	}
	if last.TelegramConnected == nil || *last.TelegramConnected {
		t.Fatalf("expected telegram disconnected, got %+v", last)
	}
	if last.DiscordConnected != nil {
		t.Fatalf("discord flag should be untouched")
	}
}

func TestManagerPartialFailureKeepsHealthyTransport(t *testing.T) {
	t.Parallel()

	rec := &adapterRecorder{initErrs: map[Transport]error{TransportDiscord: errors.New("bad token")}}
	m := newTestManager(t, rec, &fakeHealth{}, nil)
	bot := telegramBot()
	bot.DiscordBotToken = "discord-token"

	if err := m.Start(context.Background(), bot); err == nil {
		t.Fatalf("expected error for discord")
	}
	st := m.Status(bot.ID)
	if !st.TelegramRunning || st.DiscordRunning {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestManagerStartWithoutCredentials(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, &adapterRecorder{}, &fakeHealth{}, nil)
	if err := m.Start(context.Background(), bots.Bot{ID: "empty"}); !errors.Is(err, ErrNoTransport) {
		t.Fatalf("expected ErrNoTransport, got %v", err)
	}
}

func TestManagerStopIsIdempotent(t *testing.T) {
	t.Parallel()

	rec := &adapterRecorder{}
	health := &fakeHealth{}
	m := newTestManager(t, rec, health, nil)
	ctx := context.Background()

	if err := m.Start(ctx, telegramBot()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Stop(ctx, "bot-1"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := m.Stop(ctx, "bot-1"); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if rec.created[0].stopped.Load() != 1 {
		t.Fatalf("adapter should be stopped exactly once")
	}
	if m.Status("bot-1").Running {
		t.Fatalf("bot should not be running")
	}
	last := health.last()
	if last.TelegramConnected == nil || *last.TelegramConnected || last.DiscordConnected == nil || *last.DiscordConnected {
		t.Fatalf("expected both transports disconnected, got %+v", last)
	}
}

func TestManagerStopAll(t *testing.T) {
	t.Parallel()

	rec := &adapterRecorder{}
	m := newTestManager(t, rec, &fakeHealth{}, nil)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		bot := telegramBot()
		bot.ID = id
		if err := m.Start(ctx, bot); err != nil {
			t.Fatalf("start %s: %v", id, err)
		}
	}
	if err := m.StopAll(ctx); err != nil {
		t.Fatalf("stop all: %v", err)
	}
	if got := rec.listening(); got != 0 {
		t.Fatalf("expected no listening units, got %d", got)
	}
	if len(m.Running()) != 0 {
		t.Fatalf("expected no running bots")
	}
}

func TestManagerDispatchStampsEvents(t *testing.T) {
	t.Parallel()

	rec := &adapterRecorder{}
	var got InboundEvent
	handler := InboundHandlerFunc(func(_ context.Context, _ Sender, event InboundEvent) error {
		got = event
		return nil
	})
	m := newTestManager(t, rec, &fakeHealth{}, handler)
	if err := m.Start(context.Background(), telegramBot()); err != nil {
		t.Fatalf("start: %v", err)
	}

	a := rec.created[0]
	if err := a.handler.HandleInbound(context.Background(), a, InboundEvent{ChatKey: "42", Text: "hi"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got.BotID != "bot-1" || got.Transport != TransportTelegram || got.ReceivedAt.IsZero() {
		t.Fatalf("event not stamped: %+v", got)
	}
}

func TestSplitCommand(t *testing.T) {
	t.Parallel()

	cmd, args, ok := SplitCommand("/lang@my_bot ru", "/")
	if !ok || cmd != "lang" || len(args) != 1 || args[0] != "ru" {
		t.Fatalf("unexpected parse %q %v %v", cmd, args, ok)
	}
	if _, _, ok := SplitCommand("hello", "/"); ok {
		t.Fatalf("plain text is not a command")
	}
	if cmd, _, ok := SplitCommand("!NEW", "!"); !ok || cmd != "new" {
		t.Fatalf("unexpected parse %q %v", cmd, ok)
	}
	if _, _, ok := SplitCommand("/", "/"); ok {
		t.Fatalf("bare prefix is not a command")
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	if got := Truncate("привет мир", 7); got != "прив..." {
		t.Fatalf("unexpected truncate %q", got)
	}
	if got := Truncate("short", 10); got != "short" {
		t.Fatalf("unexpected truncate %q", got)
	}
}

func TestManagerStopWaitIsBounded(t *testing.T) {
	t.Parallel()

	rec := &adapterRecorder{hangStop: true}
	reg := NewRegistry()
	reg.MustRegister(TransportTelegram, rec.factory(TransportTelegram))
	health := &fakeHealth{}
	m := NewManager(slog.Default(), reg, health, nil, config.ChannelConfig{StopTimeout: "50ms"})

	if err := m.Start(context.Background(), telegramBot()); err != nil {
		t.Fatalf("start: %v", err)
	}
	began := time.Now()
	err := m.Stop(context.Background(), "bot-1")
	elapsed := time.Since(began)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected a timeout error, got %v", err)
	}
	if elapsed < 40*time.Millisecond || elapsed > 2*time.Second {
		t.Fatalf("stop should wait about the stop timeout, took %s", elapsed)
	}
	if st := m.Status("bot-1"); st.Running || st.TelegramRunning {
		t.Fatalf("unit must not be reported running after a timed out stop: %+v", st)
	}
	if last := health.last(); last.TelegramConnected == nil || *last.TelegramConnected {
		t.Fatalf("disconnection should be persisted, got %+v", last)
	}
}

func TestManagerReleasesBotLocks(t *testing.T) {
	t.Parallel()

	rec := &adapterRecorder{}
	m := newTestManager(t, rec, &fakeHealth{}, nil)
	ctx := context.Background()
	if err := m.Start(ctx, telegramBot()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Restart(ctx, telegramBot()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if err := m.Stop(ctx, "bot-1"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	if len(m.botLocks) != 0 {
		t.Fatalf("expected no lingering bot locks, got %d", len(m.botLocks))
	}
}
