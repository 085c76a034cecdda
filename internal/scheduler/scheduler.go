// Package scheduler is the single tick source for the session. Every
// repeating job in the coordinator registers here and receives a handle
// that cancels exactly that job; Stop cancels everything at teardown so
// no timer can fire against a torn-down session.
package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Handle identifies one registered repeating job
type Handle cron.EntryID

// Scheduler wraps a seconds-resolution cron engine
type Scheduler struct {
	engine *cron.Cron
	log    *zap.Logger
}

// New creates a scheduler; jobs do not run until Start is called
func New(log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		engine: cron.New(cron.WithSeconds()),
		log:    log,
	}
}

// Every registers fn to run once per interval. Sub-second intervals are
// rounded up to one second, the engine's resolution.
func (s *Scheduler) Every(interval time.Duration, fn func()) (Handle, error) {
	if interval < time.Second {
		interval = time.Second
	}
	id, err := s.engine.AddFunc(fmt.Sprintf("@every %s", interval), fn)
	if err != nil {
		return 0, fmt.Errorf("failed to register job: %w", err)
	}
	s.log.Debug("Job registered",
		zap.Duration("interval", interval),
		zap.Int("entry_id", int(id)),
	)
	return Handle(id), nil
}

// Cancel removes one job; the handle is dead afterwards
func (s *Scheduler) Cancel(h Handle) {
	s.engine.Remove(cron.EntryID(h))
}

// Start begins dispatching ticks
func (s *Scheduler) Start() {
	s.engine.Start()
	s.log.Info("Scheduler started")
}

// Stop cancels all jobs and waits for running ones to finish
func (s *Scheduler) Stop() {
	ctx := s.engine.Stop()
	<-ctx.Done()
	s.log.Info("Scheduler stopped")
}
