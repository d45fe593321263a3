package healthcheck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/plugbot/plugbot/internal/bots"
	"github.com/plugbot/plugbot/internal/channel"
	"github.com/plugbot/plugbot/internal/config"
)

const sweepTimeout = time.Minute

// BotStore lists bots and persists their health.
type BotStore interface {
	ListActive(ctx context.Context) ([]bots.Bot, error)
	UpdateHealth(ctx context.Context, botID string, update bots.HealthUpdate) error
}

// UnitObserver reports which transports of a bot are running.
type UnitObserver interface {
	Status(botID string) channel.UnitStatus
}

// CodePruner removes one-time codes that expired.
type CodePruner interface {
	PruneExpired(ctx context.Context) (int64, error)
}

// Sweeper periodically checks every active bot.
type Sweeper struct {
	store    BotStore
	checker  Checker
	units    UnitObserver
	pruner   CodePruner
	schedule string
	logger   *slog.Logger
	cron     *cron.Cron
	now      func() time.Time
}

func NewSweeper(log *slog.Logger, store BotStore, checker Checker, units UnitObserver, cfg config.HealthConfig) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	schedule := strings.TrimSpace(cfg.Schedule)
	if schedule == "" {
		schedule = config.DefaultHealthSchedule
	}
	logger := log.With(slog.String("service", "healthcheck"))
	cl := cronLogger{logger: logger}
	return &Sweeper{
		store:    store,
		checker:  checker,
		units:    units,
		schedule: schedule,
		logger:   logger,
		cron:     cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetCodePruner makes every sweep also drop expired one-time codes.
func (s *Sweeper) SetCodePruner(p CodePruner) {
	s.pruner = p
}

// Start registers the sweep job and starts the scheduler.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		if err := s.Sweep(ctx); err != nil {
			s.logger.Warn("health sweep finished with errors", slog.Any("error", err))
		}
	}); err != nil {
		return fmt.Errorf("schedule health sweep %q: %w", s.schedule, err)
	}
	s.cron.Start()
	s.logger.Info("health sweep scheduled", slog.String("schedule", s.schedule))
	return nil
}

// Stop halts the scheduler and waits for a running sweep, bounded by ctx.
func (s *Sweeper) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sweep checks every active bot once and writes the result.
func (s *Sweeper) Sweep(ctx context.Context) error {
	items, err := s.store.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active bots: %w", err)
	}
	var errs []error
	for _, bot := range items {
		if err := s.CheckBot(ctx, bot); err != nil {
			errs = append(errs, err)
		}
	}
	if s.pruner != nil {
		if _, err := s.pruner.PruneExpired(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CheckBot evaluates one bot and persists its health.
func (s *Sweeper) CheckBot(ctx context.Context, bot bots.Bot) error {
	results := s.checker.ListChecks(ctx, bot)
	status := Overall(results)
	update := bots.HealthUpdate{Status: status, CheckedAt: s.now()}
	if s.units != nil {
		unit := s.units.Status(bot.ID)
		if bot.HasTelegram() {
			update.TelegramConnected = &unit.TelegramRunning
		}
		if bot.HasDiscord() {
			update.DiscordConnected = &unit.DiscordRunning
		}
	}
	if err := s.store.UpdateHealth(ctx, bot.ID, update); err != nil {
		return fmt.Errorf("update health of bot %s: %w", bot.ID, err)
	}
	if status == bots.HealthUnhealthy {
		s.logger.Warn("bot unhealthy", slog.String("bot_id", bot.ID), slog.Int("checks", len(results)))
	} else {
		s.logger.Debug("bot checked", slog.String("bot_id", bot.ID), slog.String("status", status))
	}
	return nil
}

// cronLogger routes scheduler logs into slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
