package report

import (
	"context"
	"fmt"
	"time"

	logger "github.com/sirupsen/logrus"

	"pyramidtracker/src/model"
)

type reportNotifier interface {
	DailyReport(report *model.DailyReport)
}

// Scheduler fires the daily report at a configured local wall-clock time in
// the reporting timezone and hands the result to the notifier.
type Scheduler struct {
	service *Service
	notify  reportNotifier
	hour    int
	minute  int
}

func NewScheduler(service *Service, notify reportNotifier, config Config) (*Scheduler, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(config.DailyAt, "%d:%d", &hour, &minute); err != nil {
		return nil, fmt.Errorf("parse report time %q: %w", config.DailyAt, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return nil, fmt.Errorf("report time %q out of range", config.DailyAt)
	}

	return &Scheduler{
		service: service,
		notify:  notify,
		hour:    hour,
		minute:  minute,
	}, nil
}

// Start runs the scheduler loop until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	logger.WithFields(map[string]interface{}{
		"at":       fmt.Sprintf("%02d:%02d", s.hour, s.minute),
		"timezone": s.service.Location().String(),
	}).Info("Daily report scheduler started")

	for {
		wait := time.Until(s.nextFire(s.service.now()))

		select {
		case <-ctx.Done():
			logger.Info("Daily report scheduler stopped")
			return
		case <-time.After(wait):
			s.run(ctx)
		}
	}
}

func (s *Scheduler) run(ctx context.Context) {
	date := s.service.Today()

	report, err := s.service.GenerateAndStore(ctx, date)
	if err != nil {
		logger.WithField("date", date).
			WithError(err).Error("Scheduled daily report failed")
		return
	}

	s.notify.DailyReport(report)
}

// nextFire returns the next occurrence of the configured wall-clock time in
// the reporting timezone, strictly after now.
func (s *Scheduler) nextFire(now time.Time) time.Time {
	local := now.In(s.service.Location())
	fire := time.Date(local.Year(), local.Month(), local.Day(), s.hour, s.minute, 0, 0, s.service.Location())
	if !fire.After(local) {
		fire = fire.AddDate(0, 0, 1)
	}
	return fire
}
