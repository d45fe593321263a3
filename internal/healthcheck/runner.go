package healthcheck

import (
	"context"

	"github.com/plugbot/plugbot/internal/bots"
)

// Runner fans a bot out to every registered checker.
type Runner struct {
	checkers []Checker
}

func NewRunner(checkers ...Checker) *Runner {
	return &Runner{checkers: checkers}
}

// ListChecks evaluates all checkers in registration order.
func (r *Runner) ListChecks(ctx context.Context, bot bots.Bot) []CheckResult {
	if r == nil {
		return []CheckResult{}
	}
	out := []CheckResult{}
	for _, c := range r.checkers {
		if c == nil {
			continue
		}
		out = append(out, c.ListChecks(ctx, bot)...)
	}
	return out
}
