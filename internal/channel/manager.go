package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/plugbot/plugbot/internal/bots"
	"github.com/plugbot/plugbot/internal/config"
)

// HealthWriter persists connectivity and health fields of a bot.
type HealthWriter interface {
	UpdateHealth(ctx context.Context, botID string, update bots.HealthUpdate) error
}

// Manager owns the running units. At most one unit exists per
// (bot, transport); lifecycle calls for the same bot are serialized.
type Manager struct {
	registry    *Registry
	health      HealthWriter
	handler     InboundHandler
	stopTimeout time.Duration
	logger      *slog.Logger

	mu       sync.Mutex
	units    map[UnitKey]*unit
	statuses map[UnitKey]ConnectionStatus

	locksMu  sync.Mutex
	botLocks map[string]*botLock
}

type botLock struct {
	mu   sync.Mutex
	refs int
}

// NewManager creates a Manager. handler receives every inbound event from
// every unit.
func NewManager(log *slog.Logger, registry *Registry, health HealthWriter, handler InboundHandler, cfg config.ChannelConfig) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if registry == nil {
		registry = NewRegistry()
	}
	stopTimeout := cfg.StopTimeoutDuration()
	if stopTimeout <= 0 {
		stopTimeout = 10 * time.Second
	}
	return &Manager{
		registry:    registry,
		health:      health,
		handler:     handler,
		stopTimeout: stopTimeout,
		logger:      log.With(slog.String("component", "channel")),
		units:       map[UnitKey]*unit{},
		statuses:    map[UnitKey]ConnectionStatus{},
		botLocks:    map[string]*botLock{},
	}
}

// Registry returns the adapter registry used by this manager.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// lockBot serializes lifecycle calls for one bot. Entries are dropped once
// no caller holds or waits on them.
func (m *Manager) lockBot(botID string) func() {
	m.locksMu.Lock()
	l, ok := m.botLocks[botID]
	if !ok {
		l = &botLock{}
		m.botLocks[botID] = l
	}
	l.refs++
	m.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.botLocks, botID)
		}
		m.locksMu.Unlock()
	}
}

// Start launches a unit for every transport the bot has credentials for,
// replacing units that are already running. Transports that fail to
// initialize are reported in the returned error and leave nothing registered.
func (m *Manager) Start(ctx context.Context, bot bots.Bot) error {
	transports := m.registry.TransportsFor(bot)
	if len(transports) == 0 {
		m.persistHealth(ctx, bot.ID, bots.HealthUnhealthy, nil)
		return ErrNoTransport
	}
	unlock := m.lockBot(bot.ID)
	defer unlock()

	results := map[Transport]bool{}
	var errs []error
	for _, t := range transports {
		key := UnitKey{BotID: bot.ID, Transport: t}
		if err := m.startUnit(ctx, bot, t); err != nil {
			results[t] = false
			errs = append(errs, err)
			m.markStatus(key, false, err)
			continue
		}
		results[t] = true
		m.markStatus(key, true, nil)
	}
	status := bots.HealthHealthy
	if len(errs) > 0 {
		status = bots.HealthUnhealthy
	}
	m.persistHealth(ctx, bot.ID, status, results)
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	m.logger.Info("bot started", slog.String("bot_id", bot.ID), slog.Int("units", len(transports)))
	return nil
}

// Stop stops every unit of the bot, waiting up to the stop timeout for each.
// Stopping a bot with no units is a no-op that still persists disconnection.
func (m *Manager) Stop(ctx context.Context, botID string) error {
	unlock := m.lockBot(botID)
	defer unlock()
	return m.stopBotLocked(ctx, botID)
}

func (m *Manager) stopBotLocked(ctx context.Context, botID string) error {
	var errs []error
	for _, t := range []Transport{TransportTelegram, TransportDiscord} {
		if err := m.stopUnit(ctx, UnitKey{BotID: botID, Transport: t}); err != nil {
			errs = append(errs, err)
		}
	}
	m.persistHealth(ctx, botID, bots.HealthUnknown, map[Transport]bool{
		TransportTelegram: false,
		TransportDiscord:  false,
	})
	if len(errs) > 0 {
		return fmt.Errorf("stop bot %s: %w", botID, errors.Join(errs...))
	}
	return nil
}

// Restart stops then starts the bot.
func (m *Manager) Restart(ctx context.Context, bot bots.Bot) error {
	unlock := m.lockBot(bot.ID)
	if err := m.stopBotLocked(ctx, bot.ID); err != nil {
		m.logger.Warn("restart: stop failed", slog.String("bot_id", bot.ID), slog.Any("error", err))
	}
	unlock()
	return m.Start(ctx, bot)
}

// Status reports which transports of the bot are running.
func (m *Manager) Status(botID string) UnitStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, tg := m.units[UnitKey{BotID: botID, Transport: TransportTelegram}]
	_, dc := m.units[UnitKey{BotID: botID, Transport: TransportDiscord}]
	return UnitStatus{
		BotID:           botID,
		TelegramRunning: tg,
		DiscordRunning:  dc,
		Running:         tg || dc,
	}
}

// Running returns the ids of bots with at least one unit, sorted.
func (m *Manager) Running() []string {
	m.mu.Lock()
	seen := map[string]struct{}{}
	for key := range m.units {
		seen[key.BotID] = struct{}{}
	}
	m.mu.Unlock()
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Connections returns the last recorded status of every unit.
func (m *Manager) Connections() []ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ConnectionStatus, 0, len(m.statuses))
	for _, s := range m.statuses {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BotID != out[j].BotID {
			return out[i].BotID < out[j].BotID
		}
		return out[i].Transport < out[j].Transport
	})
	return out
}

// ConnectionStatusesByBot returns the recorded unit statuses of one bot.
func (m *Manager) ConnectionStatusesByBot(botID string) []ConnectionStatus {
	var out []ConnectionStatus
	for _, s := range m.Connections() {
		if s.BotID == botID {
			out = append(out, s)
		}
	}
	return out
}

// StopAll stops every running bot concurrently.
func (m *Manager) StopAll(ctx context.Context) error {
	ids := m.Running()
	if len(ids) == 0 {
		return nil
	}
	m.logger.Info("stopping all bots", slog.Int("count", len(ids)))
	var g errgroup.Group
	for _, id := range ids {
		g.Go(func() error {
			return m.Stop(ctx, id)
		})
	}
	return g.Wait()
}
