package healthcheck

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/plugbot/plugbot/internal/bots"
	"github.com/plugbot/plugbot/internal/channel"
	"github.com/plugbot/plugbot/internal/config"
)

type fakeStore struct {
	mu      sync.Mutex
	bots    []bots.Bot
	listErr error
	updates map[string]bots.HealthUpdate
}

func (f *fakeStore) ListActive(context.Context) ([]bots.Bot, error) {
	return f.bots, f.listErr
}

func (f *fakeStore) UpdateHealth(_ context.Context, botID string, update bots.HealthUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updates == nil {
		f.updates = map[string]bots.HealthUpdate{}
	}
	f.updates[botID] = update
	return nil
}

type staticChecker map[string][]CheckResult

func (s staticChecker) ListChecks(_ context.Context, bot bots.Bot) []CheckResult {
	return s[bot.ID]
}

type fakeUnits map[string]channel.UnitStatus

func (f fakeUnits) Status(botID string) channel.UnitStatus {
	return f[botID]
}

func TestOverall(t *testing.T) {
	t.Parallel()

	if got := Overall(nil); got != bots.HealthUnknown {
		t.Fatalf("empty results should be unknown, got %s", got)
	}
	if got := Overall([]CheckResult{{Status: StatusOK}, {Status: StatusWarn}}); got != bots.HealthHealthy {
		t.Fatalf("warnings should stay healthy, got %s", got)
	}
	if got := Overall([]CheckResult{{Status: StatusOK}, {Status: StatusError}}); got != bots.HealthUnhealthy {
		t.Fatalf("errors should be unhealthy, got %s", got)
	}
}

func TestRunnerCombinesCheckers(t *testing.T) {
	t.Parallel()

	r := NewRunner(
		staticChecker{"b": {{ID: "one", Status: StatusOK}}},
		nil,
		staticChecker{"b": {{ID: "two", Status: StatusError}}},
	)
	items := r.ListChecks(context.Background(), bots.Bot{ID: "b"})
	if len(items) != 2 || items[0].ID != "one" || items[1].ID != "two" {
		t.Fatalf("unexpected items %+v", items)
	}
}

func TestSweepPersistsStatusAndFlags(t *testing.T) {
	t.Parallel()

	store := &fakeStore{bots: []bots.Bot{
		{ID: "healthy", TelegramBotToken: "t"},
		{ID: "broken", DiscordBotToken: "d"},
	}}
	checker := staticChecker{
		"healthy": {{Status: StatusOK}},
		"broken":  {{Status: StatusError}},
	}
	units := fakeUnits{"healthy": {BotID: "healthy", TelegramRunning: true, Running: true}}
	s := NewSweeper(nil, store, checker, units, config.HealthConfig{})
	fixed := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	if err := s.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	healthy := store.updates["healthy"]
	if healthy.Status != bots.HealthHealthy || !healthy.CheckedAt.Equal(fixed) {
		t.Fatalf("unexpected update %+v", healthy)
	}
	if healthy.TelegramConnected == nil || !*healthy.TelegramConnected || healthy.DiscordConnected != nil {
		t.Fatalf("only the telegram flag should be written, got %+v", healthy)
	}
	broken := store.updates["broken"]
	if broken.Status != bots.HealthUnhealthy || broken.DiscordConnected == nil || *broken.DiscordConnected {
		t.Fatalf("unexpected update %+v", broken)
	}
}

func TestSweepListFailure(t *testing.T) {
	t.Parallel()

	store := &fakeStore{listErr: errors.New("db down")}
	s := NewSweeper(nil, store, staticChecker{}, nil, config.HealthConfig{})
	if err := s.Sweep(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSweeperRejectsBadSchedule(t *testing.T) {
	t.Parallel()

	s := NewSweeper(nil, &fakeStore{}, staticChecker{}, nil, config.HealthConfig{Schedule: "not a schedule"})
	if err := s.Start(); err == nil {
		t.Fatalf("expected schedule error")
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

type countingPruner struct {
	calls int
	err   error
}

func (p *countingPruner) PruneExpired(context.Context) (int64, error) {
	p.calls++
	return 3, p.err
}

func TestSweepPrunesExpiredCodes(t *testing.T) {
	t.Parallel()

	pruner := &countingPruner{}
	s := NewSweeper(nil, &fakeStore{}, staticChecker{}, nil, config.HealthConfig{})
	s.SetCodePruner(pruner)
	if err := s.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if pruner.calls != 1 {
		t.Fatalf("expected one prune, got %d", pruner.calls)
	}

	pruner.err = errors.New("db down")
	if err := s.Sweep(context.Background()); err == nil {
		t.Fatalf("expected prune error to surface")
	}
}
