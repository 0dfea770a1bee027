// Package scheduler fires the periodic refresh trigger.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"alertsync/internal/alerts"
	"alertsync/internal/config"
)

// Refresher runs one refresh cycle. *alerts.Orchestrator satisfies it.
type Refresher interface {
	Refresh(ctx context.Context, trigger alerts.Trigger) (bool, error)
}

// cronParser accepts standard 5-field expressions, 6-field expressions with
// seconds and descriptors such as "@every 1m".
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// SpecFromConfig returns the cron spec for cfg: Schedule when set,
// otherwise "@every <interval>".
func SpecFromConfig(cfg config.SyncConfig) (string, error) {
	if cfg.Schedule != "" {
		if _, err := cronParser.Parse(cfg.Schedule); err != nil {
			return "", fmt.Errorf("invalid sync schedule %q: %w", cfg.Schedule, err)
		}
		return cfg.Schedule, nil
	}
	interval, err := cfg.PollInterval()
	if err != nil {
		return "", err
	}
	return "@every " + interval.String(), nil
}

// Scheduler triggers periodic refreshes on a cron schedule.
type Scheduler struct {
	refresher Refresher
	spec      string
	logger    alerts.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

// New validates spec and creates a stopped Scheduler.
func New(refresher Refresher, spec string, logger alerts.Logger) (*Scheduler, error) {
	if _, err := cronParser.Parse(spec); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	if logger == nil {
		logger = alerts.NewNopLogger()
	}
	return &Scheduler{refresher: refresher, spec: spec, logger: logger}, nil
}

// Start registers the periodic trigger and starts the ticker. Refreshes run
// with a context derived from ctx, cancelled by Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errors.New("scheduler already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New(cron.WithParser(cronParser))
	if _, err := c.AddFunc(s.spec, func() { s.Tick(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("scheduling refresh: %w", err)
	}

	c.Start()
	s.cron = c
	s.cancel = cancel
	s.logger.Info("periodic refresh scheduled", "schedule", s.spec)
	return nil
}

// Tick fires one periodic trigger.
func (s *Scheduler) Tick(ctx context.Context) {
	ran, err := s.refresher.Refresh(ctx, alerts.TriggerPeriodic)
	switch {
	case !ran:
		s.logger.Debug("periodic refresh skipped, one already in flight")
	case err != nil:
		s.logger.Warn("periodic refresh failed", "error", err)
	}
}

// Stop halts the ticker, cancels a running refresh and waits for it to
// return. Stop on a stopped Scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	done := c.Stop()
	cancel()
	<-done.Done()
}
