package application

import (
	"context"
	"log"
	"time"
)

// Scheduler invokes the engine on a fixed period until its context is
// cancelled. Each cycle is contained; a failing cycle never stops the
// loop.
type Scheduler struct {
	engine *Engine
	period time.Duration
	logger *log.Logger
}

// NewScheduler constructs a Scheduler.
func NewScheduler(engine *Engine, period time.Duration, logger *log.Logger) *Scheduler {
	if period <= 0 {
		period = 10 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{engine: engine, period: period, logger: logger}
}

// Start begins the decision loop.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil || s.engine == nil {
		return
	}
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status := s.engine.RunCycle(ctx)
			if status.Error != "" {
				s.logger.Printf("control schedule: cycle %s error: %s", status.CycleID, status.Error)
			}
		}
	}
}
