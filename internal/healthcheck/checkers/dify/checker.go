// Package difychecker probes each bot's upstream Dify app.
package difychecker

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/plugbot/plugbot/internal/bots"
	"github.com/plugbot/plugbot/internal/healthcheck"
)

const (
	checkTypeDifyUpstream = "dify.upstream"
	defaultCheckTimeout   = 8 * time.Second
)

// Prober calls the upstream health endpoint of a bot.
type Prober interface {
	Health(ctx context.Context, bot bots.Bot) error
}

// Checker evaluates upstream reachability.
type Checker struct {
	logger  *slog.Logger
	prober  Prober
	timeout time.Duration
}

// NewChecker creates a Dify health checker.
func NewChecker(log *slog.Logger, prober Prober) *Checker {
	if log == nil {
		log = slog.Default()
	}
	return &Checker{
		logger:  log.With(slog.String("checker", "healthcheck_dify")),
		prober:  prober,
		timeout: defaultCheckTimeout,
	}
}

func (c *Checker) ListChecks(ctx context.Context, bot bots.Bot) []healthcheck.CheckResult {
	endpoint := strings.TrimSpace(bot.DifyEndpoint)
	item := healthcheck.CheckResult{
		ID:       checkTypeDifyUpstream,
		Type:     checkTypeDifyUpstream,
		Subtitle: endpoint,
		Status:   healthcheck.StatusError,
		Metadata: map[string]any{"endpoint": endpoint},
	}
	if c.prober == nil {
		item.Status = healthcheck.StatusWarn
		item.Summary = "Dify checker service is not available."
		return []healthcheck.CheckResult{item}
	}
	if endpoint == "" {
		item.Summary = "Dify endpoint is not configured."
		return []healthcheck.CheckResult{item}
	}

	probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	started := time.Now()
	err := c.prober.Health(probeCtx, bot)
	item.Metadata["latency_ms"] = time.Since(started).Milliseconds()
	if err != nil {
		c.logger.Warn("dify healthcheck failed", slog.String("bot_id", bot.ID), slog.Any("error", err))
		item.Summary = "Dify API is not reachable."
		item.Detail = err.Error()
		return []healthcheck.CheckResult{item}
	}
	item.Status = healthcheck.StatusOK
	item.Summary = "Dify API is reachable."
	return []healthcheck.CheckResult{item}
}
