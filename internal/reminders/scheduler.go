package reminders

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// DefaultSchedule rescans once a minute so day counts roll over on time.
const DefaultSchedule = "@every 1m"

// Scheduler periodically rescans reminders and notifies when the set changes.
type Scheduler struct {
	engine   *Engine
	notifier Notifier
	schedule string
	cron     *cron.Cron
	jobID    cron.EntryID
	timeout  time.Duration

	mu      sync.Mutex
	last    []byte
	current []Reminder
	logger  *log.Entry
}

// NewScheduler creates a scheduler. An empty schedule uses DefaultSchedule.
func NewScheduler(engine *Engine, notifier Notifier, schedule string) *Scheduler {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Scheduler{
		engine:   engine,
		notifier: notifier,
		schedule: schedule,
		cron:     cron.New(),
		timeout:  30 * time.Second,
		logger:   log.WithField("component", "reminder-scheduler"),
	}
}

// Start runs one scan immediately and then schedules the rescan.
func (s *Scheduler) Start(ctx context.Context) error {
	var err error
	s.jobID, err = s.cron.AddFunc(s.schedule, func() {
		if _, err := s.Scan(ctx); err != nil {
			s.logger.WithError(err).Error("Reminder rescan failed")
		}
	})
	if err != nil {
		return fmt.Errorf("error scheduling reminder rescan: %w", err)
	}

	if _, err := s.Scan(ctx); err != nil {
		s.logger.WithError(err).Warn("Initial reminder scan failed")
	}
	s.cron.Start()
	s.logger.WithField("schedule", s.schedule).Info("Reminder scheduler started")
	return nil
}

// Stop halts the cron loop and waits for a running scan to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	if s.notifier != nil {
		s.notifier.Close()
	}
	s.logger.Info("Reminder scheduler stopped")
}

// Scan evaluates reminders once and notifies when the result differs from
// the previous scan. It reports whether a notification was sent.
func (s *Scheduler) Scan(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rs, err := s.engine.Upcoming(ctx)
	if err != nil {
		return false, err
	}
	fingerprint, err := json.Marshal(rs)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	changed := string(fingerprint) != string(s.last)
	s.last = fingerprint
	s.current = rs
	s.mu.Unlock()

	if !changed || s.notifier == nil {
		return changed, nil
	}
	if err := s.notifier.Notify(rs); err != nil {
		return true, fmt.Errorf("notifying reminders: %w", err)
	}
	return true, nil
}

// Current returns the reminders from the latest scan.
func (s *Scheduler) Current() []Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}
