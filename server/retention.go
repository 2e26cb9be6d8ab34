package server

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// retentionCronParser accepts standard 5-field cron expressions
// (minute hour dom month dow). Schedules always evaluate in UTC.
var retentionCronParser = cron.NewParser(
	cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow,
)

// ParseRetentionSchedule validates a retention cron expression. Timezone
// prefixes are rejected so operators cannot accidentally schedule prunes in
// local time.
func ParseRetentionSchedule(expr string) (cron.Schedule, error) {
	clean := strings.TrimSpace(expr)
	if clean == "" {
		return nil, fmt.Errorf("cron expression is required")
	}

	upper := strings.ToUpper(clean)
	if strings.Contains(upper, "CRON_TZ=") || strings.Contains(upper, "TZ=") {
		return nil, fmt.Errorf("cron expression must be UTC-only (timezone prefixes are not allowed)")
	}

	schedule, err := retentionCronParser.Parse(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return schedule, nil
}

// Pruner periodically deletes old non-favorite history records on a cron
// schedule. Favorites are never pruned.
type Pruner struct {
	stories  StoryStore
	schedule cron.Schedule
	maxAge   time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewPruner creates a Pruner that removes non-favorite records older than
// maxAge. The expression is a standard 5-field cron schedule evaluated in UTC.
func NewPruner(stories StoryStore, expr string, maxAge time.Duration, logger *slog.Logger) (*Pruner, error) {
	if stories == nil {
		return nil, fmt.Errorf("retention pruner requires a story store")
	}
	if maxAge <= 0 {
		return nil, fmt.Errorf("retention max age must be positive")
	}
	schedule, err := ParseRetentionSchedule(expr)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{
		stories:  stories,
		schedule: schedule,
		maxAge:   maxAge,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Run blocks until the context is cancelled, pruning at each scheduled
// tick. Prune failures are logged and do not stop the loop.
func (p *Pruner) Run(ctx context.Context) {
	for {
		next := p.schedule.Next(p.now().UTC())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		p.pruneOnce(ctx)
	}
}

func (p *Pruner) pruneOnce(ctx context.Context) {
	cutoff := p.now().UTC().Add(-p.maxAge)
	removed, err := p.stories.PruneOlderThan(ctx, cutoff)
	if err != nil {
		p.logger.Warn("history retention prune failed", "error", err)
		return
	}
	if removed > 0 {
		p.logger.Info("history retention prune completed", "removed", removed, "cutoff", cutoff)
	}
}
