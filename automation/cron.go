package automation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// CronRunner binds date-based automation rules carrying cron schedules to a
// cron scheduler. Each scheduled fire processes the rule's date-based event
// and then drains any pending automations that came due.
type CronRunner struct {
	engine *Engine
	cron   *cron.Cron
	logger *slog.Logger
}

// NewCronRunner returns a runner with an unstarted cron scheduler. A nil
// logger falls back to slog.Default().
func NewCronRunner(engine *Engine, logger *slog.Logger) *CronRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &CronRunner{
		engine: engine,
		cron:   cron.New(),
		logger: logger,
	}
}

// Register adds cron entries for every active date-based rule that declares
// a schedule. Rules without schedules fire only through explicit
// ProcessDateBasedTrigger calls. Returns the number of registered entries.
func (c *CronRunner) Register(ctx context.Context) (int, error) {
	registered := 0
	for _, r := range c.engine.Rules() {
		if !r.Active || r.Trigger.Type != TriggerDateBased || r.Trigger.Schedule == "" {
			continue
		}
		event := r.Trigger.Event
		ruleID := r.ID
		_, err := c.cron.AddFunc(r.Trigger.Schedule, func() {
			results := c.engine.ProcessDateBasedTrigger(ctx, event, map[string]any{
				"scheduled": true,
				"ruleId":    ruleID,
			})
			for _, res := range results {
				if !res.Success {
					c.logger.Warn("scheduled automation reported errors",
						slog.String("rule_id", ruleID),
						slog.Any("errors", res.Errors))
				}
			}
			c.engine.ProcessPendingAutomations(ctx)
		})
		if err != nil {
			return registered, fmt.Errorf("rule %s: invalid schedule %q: %w", r.ID, r.Trigger.Schedule, err)
		}
		registered++
	}
	return registered, nil
}

// Start begins cron dispatch in its own goroutine.
func (c *CronRunner) Start() {
	c.cron.Start()
	c.logger.Info("automation cron runner started", slog.Int("entries", len(c.cron.Entries())))
}

// Stop halts cron dispatch and waits for running jobs to finish.
func (c *CronRunner) Stop() {
	<-c.cron.Stop().Done()
	c.logger.Info("automation cron runner stopped")
}
