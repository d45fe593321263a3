package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/plugbot/plugbot/internal/bots"
	"github.com/plugbot/plugbot/internal/telemetry"
)

type unit struct {
	key       UnitKey
	adapter   PlatformAdapter
	cancel    context.CancelFunc
	startedAt time.Time
}

// ConnectionStatus describes the last known state of one unit.
type ConnectionStatus struct {
	BotID     string    `json:"bot_id"`
	Transport Transport `json:"transport"`
	Running   bool      `json:"running"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (m *Manager) startUnit(ctx context.Context, bot bots.Bot, transport Transport) error {
	key := UnitKey{BotID: bot.ID, Transport: transport}

	// Replace any running unit for the same key.
	if err := m.stopUnit(ctx, key); err != nil {
		m.logger.Warn("replace unit: stop failed",
			slog.String("bot_id", key.BotID),
			slog.String("transport", transport.String()),
			slog.Any("error", err),
		)
	}

	factory, ok := m.registry.Get(transport)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTransport, transport)
	}
	adapter, err := factory(m.logger, bot)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInitializeFailed, transport, err)
	}

	m.logger.Info("adapter start", slog.String("bot_id", key.BotID), slog.String("transport", transport.String()))
	if err := adapter.Initialize(ctx); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInitializeFailed, transport, err)
	}

	// Units outlive the request that started them.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if err := adapter.Listen(runCtx, m.dispatch(key)); err != nil {
		cancel()
		m.shutdownAdapter(adapter, key)
		return fmt.Errorf("%w: %s: listen: %w", ErrInitializeFailed, transport, err)
	}

	m.mu.Lock()
	if existing, ok := m.units[key]; ok && existing != nil {
		// Lost a race with another start for the same key; keep the winner.
		m.mu.Unlock()
		cancel()
		m.shutdownAdapter(adapter, key)
		return nil
	}
	m.units[key] = &unit{key: key, adapter: adapter, cancel: cancel, startedAt: time.Now().UTC()}
	m.mu.Unlock()
	telemetry.UnitStarted(transport.String())
	return nil
}

// stopUnit removes the unit from the registry first so no caller can observe
// a stopping unit as running.
func (m *Manager) stopUnit(ctx context.Context, key UnitKey) error {
	m.mu.Lock()
	u := m.units[key]
	delete(m.units, key)
	m.mu.Unlock()
	if u == nil {
		return nil
	}
	m.logger.Info("adapter stop", slog.String("bot_id", key.BotID), slog.String("transport", key.Transport.String()))
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.stopTimeout)
	defer cancel()
	u.cancel()
	err := u.adapter.Stop(stopCtx)
	telemetry.UnitStopped(key.Transport.String())
	m.markStatus(key, false, nil)
	if err != nil {
		return fmt.Errorf("stop %s: %w", key.Transport, err)
	}
	return nil
}

func (m *Manager) shutdownAdapter(adapter PlatformAdapter, key UnitKey) {
	ctx, cancel := context.WithTimeout(context.Background(), m.stopTimeout)
	defer cancel()
	if err := adapter.Stop(ctx); err != nil {
		m.logger.Warn("adapter cleanup failed",
			slog.String("bot_id", key.BotID),
			slog.String("transport", key.Transport.String()),
			slog.Any("error", err),
		)
	}
}

// dispatch wraps the inbound handler so every event carries the unit's key.
func (m *Manager) dispatch(key UnitKey) InboundHandler {
	return InboundHandlerFunc(func(ctx context.Context, sender Sender, event InboundEvent) error {
		event.BotID = key.BotID
		event.Transport = key.Transport
		if event.ReceivedAt.IsZero() {
			event.ReceivedAt = time.Now().UTC()
		}
		if m.handler == nil {
			return nil
		}
		return m.handler.HandleInbound(ctx, sender, event)
	})
}

func (m *Manager) markStatus(key UnitKey, running bool, checkErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	previous, hasPrevious := m.statuses[key]
	status := ConnectionStatus{
		BotID:     key.BotID,
		Transport: key.Transport,
		Running:   running,
		UpdatedAt: time.Now().UTC(),
	}
	if checkErr != nil {
		status.LastError = checkErr.Error()
	}
	m.statuses[key] = status
	if checkErr != nil && (!hasPrevious || previous.LastError != status.LastError || previous.Running != status.Running) {
		m.logger.Warn(
			"connection health check failed",
			slog.String("bot_id", key.BotID),
			slog.String("transport", key.Transport.String()),
			slog.Any("error", checkErr),
		)
	}
	if running && hasPrevious && strings.TrimSpace(previous.LastError) != "" {
		m.logger.Info(
			"connection health recovered",
			slog.String("bot_id", key.BotID),
			slog.String("transport", key.Transport.String()),
		)
	}
}

// persistHealth writes connectivity for the transports in results. A
// transport absent from results keeps its stored flag.
func (m *Manager) persistHealth(ctx context.Context, botID, status string, results map[Transport]bool) {
	if m.health == nil {
		return
	}
	update := bots.HealthUpdate{Status: status, CheckedAt: time.Now().UTC()}
	if v, ok := results[TransportTelegram]; ok {
		update.TelegramConnected = &v
	}
	if v, ok := results[TransportDiscord]; ok {
		update.DiscordConnected = &v
	}
	if err := m.health.UpdateHealth(context.WithoutCancel(ctx), botID, update); err != nil {
		m.logger.Warn("persist health failed", slog.String("bot_id", botID), slog.Any("error", err))
	}
}
