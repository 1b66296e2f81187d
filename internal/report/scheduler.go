package report

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/crmops/chatwatch/pkg/logger"
	"github.com/crmops/chatwatch/pkg/metrics"
)

const (
	pollInterval  = time.Minute
	fireCooldown  = time.Hour
	errorCooldown = 5 * time.Minute
)

// Notifier delivers the formatted report.
type Notifier interface {
	SendSummary(ctx context.Context, html string) error
}

// Scheduler fires the daily report once per calendar day when local time
// crosses the trigger time. Last-fired state is in-memory only: a process
// restart may cause at most one extra fire, which is acceptable.
type Scheduler struct {
	aggregator *Aggregator
	notifier   Notifier
	hour       int
	minute     int
	loc        *time.Location
	logger     *logger.Logger

	lastFired string
	now       func() time.Time
}

// NewScheduler creates the report scheduler. triggerTime is "HH:MM" in
// the given timezone.
func NewScheduler(agg *Aggregator, notifier Notifier, triggerTime, timezone string, log *logger.Logger) (*Scheduler, error) {
	hour, minute, err := parseTriggerTime(triggerTime)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid report timezone %q: %w", timezone, err)
	}
	return &Scheduler{
		aggregator: agg,
		notifier:   notifier,
		hour:       hour,
		minute:     minute,
		loc:        loc,
		logger:     log,
		now:        time.Now,
	}, nil
}

func parseTriggerTime(s string) (int, int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid report time %q, want HH:MM", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid report hour %q", parts[0])
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid report minute %q", parts[1])
	}
	return hour, minute, nil
}

// shouldFire reports whether the trigger time has been crossed today and
// the report has not fired yet today.
func (s *Scheduler) shouldFire(now time.Time) bool {
	if now.Hour() < s.hour || (now.Hour() == s.hour && now.Minute() < s.minute) {
		return false
	}
	return s.lastFired != now.Format("2006-01-02")
}

// Run polls once a minute until ctx is cancelled. Failures in one run are
// caught so one bad day cannot kill the loop.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("report scheduler started",
		zap.String("trigger", fmt.Sprintf("%02d:%02d", s.hour, s.minute)),
		zap.String("timezone", s.loc.String()),
	)

	for {
		now := s.now().In(s.loc)
		wait := pollInterval

		if s.shouldFire(now) {
			if err := s.fire(ctx, now); err != nil {
				metrics.ReportRunsTotal.WithLabelValues("error").Inc()
				s.logger.Error("report run failed", zap.Error(err))
				wait = errorCooldown
			} else {
				metrics.ReportRunsTotal.WithLabelValues("ok").Inc()
				s.lastFired = now.Format("2006-01-02")
				wait = fireCooldown
			}
		}

		select {
		case <-ctx.Done():
			s.logger.Info("report scheduler stopped")
			return
		case <-time.After(wait):
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, now time.Time) error {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	s.logger.Info("daily report run started", zap.String("day", day.Format("2006-01-02")))

	dialogs, err := s.aggregator.CollectToday(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to collect today's dialogs: %w", err)
	}
	if len(dialogs) == 0 {
		s.logger.Info("no dialogs today, skipping report delivery")
		return nil
	}

	result := s.aggregator.Aggregate(ctx, day, dialogs)
	if err := s.notifier.SendSummary(ctx, Format(result)); err != nil {
		return fmt.Errorf("failed to deliver report: %w", err)
	}

	s.logger.Info("daily report delivered",
		zap.Int("inquiries", result.TotalInquiries),
		zap.Int("orders_created", result.OrdersCreated),
	)
	return nil
}
