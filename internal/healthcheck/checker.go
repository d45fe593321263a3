// Package healthcheck evaluates bot health and persists the outcome.
package healthcheck

import (
	"context"

	"github.com/plugbot/plugbot/internal/bots"
)

const (
	// StatusOK indicates check passed.
	StatusOK = "ok"
	// StatusWarn indicates check completed with warning.
	StatusWarn = "warn"
	// StatusError indicates check failed.
	StatusError = "error"
	// StatusUnknown indicates check result is not yet known.
	StatusUnknown = "unknown"
)

// CheckResult is one runtime check item produced by a checker.
type CheckResult struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Subtitle string         `json:"subtitle,omitempty"`
	Status   string         `json:"status"`
	Summary  string         `json:"summary"`
	Detail   string         `json:"detail,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Checker evaluates one or more runtime checks for a bot.
type Checker interface {
	ListChecks(ctx context.Context, bot bots.Bot) []CheckResult
}

// Overall folds check results into a bot health status. Any error makes the
// bot unhealthy; no results at all leave it unknown.
func Overall(results []CheckResult) string {
	if len(results) == 0 {
		return bots.HealthUnknown
	}
	for _, r := range results {
		if r.Status == StatusError {
			return bots.HealthUnhealthy
		}
	}
	return bots.HealthHealthy
}
