package channel

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/plugbot/plugbot/internal/bots"
)

// BotStore is the persistence side of bot lifecycle orchestration.
type BotStore interface {
	Get(ctx context.Context, botID string) (bots.Bot, error)
	ListActive(ctx context.Context) ([]bots.Bot, error)
	Update(ctx context.Context, botID string, req bots.UpdateBotRequest) (bots.UpdateResult, error)
	Delete(ctx context.Context, botID string) error
}

// Controller controls runtime units.
type Controller interface {
	Start(ctx context.Context, bot bots.Bot) error
	Stop(ctx context.Context, botID string) error
	Restart(ctx context.Context, bot bots.Bot) error
	Status(botID string) UnitStatus
}

// Lifecycle coordinates persisted bot changes with running units.
type Lifecycle struct {
	store      BotStore
	controller Controller
	logger     *slog.Logger
}

// NewLifecycle creates a lifecycle coordinator from storage and unit controller.
func NewLifecycle(log *slog.Logger, store BotStore, controller Controller) *Lifecycle {
	if log == nil {
		log = slog.Default()
	}
	return &Lifecycle{
		store:      store,
		controller: controller,
		logger:     log.With(slog.String("component", "lifecycle")),
	}
}

// StartBot loads the bot and starts its units.
func (l *Lifecycle) StartBot(ctx context.Context, botID string) (UnitStatus, error) {
	bot, err := l.store.Get(ctx, botID)
	if err != nil {
		return UnitStatus{}, err
	}
	if err := l.controller.Start(ctx, bot); err != nil {
		return l.controller.Status(botID), err
	}
	return l.controller.Status(botID), nil
}

// StopBot stops the bot's units.
func (l *Lifecycle) StopBot(ctx context.Context, botID string) (UnitStatus, error) {
	if _, err := l.store.Get(ctx, botID); err != nil {
		return UnitStatus{}, err
	}
	if err := l.controller.Stop(ctx, botID); err != nil {
		return l.controller.Status(botID), err
	}
	return l.controller.Status(botID), nil
}

// RestartBot reloads the bot so fresh credentials are used, then restarts it.
func (l *Lifecycle) RestartBot(ctx context.Context, botID string) (UnitStatus, error) {
	bot, err := l.store.Get(ctx, botID)
	if err != nil {
		return UnitStatus{}, err
	}
	if err := l.controller.Restart(ctx, bot); err != nil {
		return l.controller.Status(botID), err
	}
	return l.controller.Status(botID), nil
}

// UpdateBot persists the update. A running bot is restarted when credentials
// changed and stopped when it was deactivated.
func (l *Lifecycle) UpdateBot(ctx context.Context, botID string, req bots.UpdateBotRequest) (bots.Bot, error) {
	result, err := l.store.Update(ctx, botID, req)
	if err != nil {
		return bots.Bot{}, err
	}
	if !l.controller.Status(botID).Running {
		return result.Bot, nil
	}
	switch {
	case !result.Bot.IsActive:
		if err := l.controller.Stop(ctx, botID); err != nil {
			return result.Bot, fmt.Errorf("stop deactivated bot: %w", err)
		}
	case result.CredentialsChanged:
		l.logger.Info("credentials changed, restarting", slog.String("bot_id", botID))
		if err := l.controller.Restart(ctx, result.Bot); err != nil {
			return result.Bot, fmt.Errorf("restart bot: %w", err)
		}
	}
	return result.Bot, nil
}

// DeleteBot stops the bot's units, then deletes it.
func (l *Lifecycle) DeleteBot(ctx context.Context, botID string) error {
	if _, err := l.store.Get(ctx, botID); err != nil {
		return err
	}
	if err := l.controller.Stop(ctx, botID); err != nil {
		l.logger.Warn("stop before delete failed", slog.String("bot_id", botID), slog.Any("error", err))
	}
	return l.store.Delete(ctx, botID)
}

// StartActive starts every active bot. Failures are logged and skipped.
func (l *Lifecycle) StartActive(ctx context.Context) error {
	items, err := l.store.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active bots: %w", err)
	}
	started := 0
	for _, bot := range items {
		if !bot.HasTelegram() && !bot.HasDiscord() {
			continue
		}
		if err := l.controller.Start(ctx, bot); err != nil {
			l.logger.Error("auto start failed", slog.String("bot_id", bot.ID), slog.Any("error", err))
			continue
		}
		started++
	}
	l.logger.Info("active bots started", slog.Int("started", started), slog.Int("active", len(items)))
	return nil
}
