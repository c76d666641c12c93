package automation

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// defaultDrainInterval is how often the scheduler polls the pending queue.
const defaultDrainInterval = 30 * time.Second

// Scheduler drains the engine's pending-automation queue on a fixed tick.
// Delayed actions only fire when a drain runs, so a long-lived process
// should keep exactly one scheduler started; short-lived callers can skip
// the scheduler and call ProcessPendingAutomations directly.
type Scheduler struct {
	engine   *Engine
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler returns a stopped scheduler. A non-positive interval falls
// back to the default. A nil logger falls back to slog.Default().
func NewScheduler(engine *Engine, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = defaultDrainInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		engine:   engine,
		interval: interval,
		logger:   logger,
	}
}

// Start launches the drain loop. Starting a running scheduler is a no-op.
// The loop exits when ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx, s.done)
	s.logger.Info("automation scheduler started", slog.Duration("interval", s.interval))
}

// Stop halts the drain loop and waits for it to exit. Stopping a stopped
// scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("automation scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			records := s.engine.ProcessPendingAutomations(ctx)
			if len(records) > 0 {
				s.logger.Debug("drained pending automations", slog.Int("count", len(records)))
			}
		}
	}
}
