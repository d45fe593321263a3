// Package channelchecker reports the connection state of a bot's transports.
package channelchecker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/plugbot/plugbot/internal/bots"
	"github.com/plugbot/plugbot/internal/channel"
	"github.com/plugbot/plugbot/internal/healthcheck"
)

const checkTypeChannelConnection = "channel.connection"

// ConnectionObserver reads runtime channel connection statuses.
type ConnectionObserver interface {
	ConnectionStatusesByBot(botID string) []channel.ConnectionStatus
}

// Checker evaluates channel connection health checks.
type Checker struct {
	logger   *slog.Logger
	observer ConnectionObserver
}

// NewChecker creates a channel health checker.
func NewChecker(log *slog.Logger, observer ConnectionObserver) *Checker {
	if log == nil {
		log = slog.Default()
	}
	return &Checker{
		logger:   log.With(slog.String("checker", "healthcheck_channel")),
		observer: observer,
	}
}

// ListChecks yields one check per transport the bot has credentials for.
func (c *Checker) ListChecks(ctx context.Context, bot bots.Bot) []healthcheck.CheckResult {
	if err := ctx.Err(); err != nil {
		return []healthcheck.CheckResult{}
	}
	if c.observer == nil {
		c.logger.Warn("channel healthcheck dependency is unavailable", slog.String("bot_id", bot.ID))
		return []healthcheck.CheckResult{{
			ID:      checkTypeChannelConnection + ".service",
			Type:    checkTypeChannelConnection,
			Status:  healthcheck.StatusWarn,
			Summary: "Channel checker service is not available.",
			Detail:  "connection observer is nil",
		}}
	}

	byTransport := map[channel.Transport]channel.ConnectionStatus{}
	for _, s := range c.observer.ConnectionStatusesByBot(bot.ID) {
		byTransport[s.Transport] = s
	}

	var wanted []channel.Transport
	if bot.HasTelegram() {
		wanted = append(wanted, channel.TransportTelegram)
	}
	if bot.HasDiscord() {
		wanted = append(wanted, channel.TransportDiscord)
	}

	checks := make([]healthcheck.CheckResult, 0, len(wanted))
	for _, transport := range wanted {
		status, seen := byTransport[transport]
		item := healthcheck.CheckResult{
			ID:       checkTypeChannelConnection + "." + transport.String(),
			Type:     checkTypeChannelConnection,
			Subtitle: transport.String(),
			Status:   healthcheck.StatusError,
			Summary:  fmt.Sprintf("Channel %s connection is down.", transport),
			Metadata: map[string]any{
				"transport": transport.String(),
				"running":   status.Running,
			},
		}
		if seen && status.UpdatedAt.Unix() > 0 {
			item.Metadata["updated_at"] = status.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z")
		}
		switch {
		case status.Running:
			item.Status = healthcheck.StatusOK
			item.Summary = fmt.Sprintf("Channel %s is connected.", transport)
		case strings.TrimSpace(status.LastError) != "":
			item.Summary = fmt.Sprintf("Channel %s connection failed.", transport)
			item.Detail = strings.TrimSpace(status.LastError)
		case !seen:
			item.Summary = fmt.Sprintf("Channel %s has not been started.", transport)
		}
		checks = append(checks, item)
	}
	return checks
}
