package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-co-op/gocron"

	"github.com/i474232898/weather-station-sync/internal/logger"
	"github.com/i474232898/weather-station-sync/internal/session"
	"github.com/i474232898/weather-station-sync/internal/weather"
)

// Refresher is the part of a session the scheduler drives.
type Refresher interface {
	Refresh(ctx context.Context) error
	RefreshPopup(ctx context.Context) error
}

// Scheduler periodically re-syncs observations and the location popup for
// the current selection.
type Scheduler struct {
	scheduler *gocron.Scheduler
	target    Refresher
	interval  time.Duration
	timeout   time.Duration
	logger    *log.Logger
}

// New creates a new Scheduler. A non-positive interval disables it.
func New(target Refresher, interval time.Duration, logger *log.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		target:    target,
		interval:  interval,
		timeout:   2 * time.Minute,
		logger:    logger,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
// The first tick fires one interval after Start.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		s.logger.Info("scheduler disabled; no refresh interval configured")
		return nil
	}

	_, err := s.scheduler.Every(s.interval).WaitForSchedule().Do(s.tick)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.logger.Info("scheduler started", "interval", s.interval)
	return nil
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	err := s.target.Refresh(ctx)
	switch {
	case errors.Is(err, session.ErrNoSelection):
		s.logger.Debug("scheduler: nothing selected, tick skipped")
		return
	case err != nil:
		logger.Error(s.logger, err, "scheduler: observation refresh failed")
	}

	if err := s.target.RefreshPopup(ctx); err != nil && !errors.Is(err, weather.ErrMissingCoordinates) {
		logger.Error(s.logger, err, "scheduler: popup refresh failed")
	}
	s.logger.Debug("scheduler: refresh completed", "took", time.Since(start).Round(time.Millisecond))
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
