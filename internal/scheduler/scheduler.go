package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Default configuration values.
const (
	DefaultCronExpr = "5 0 * * *"
	DefaultTimezone = "America/Los_Angeles"
	defaultTimeout  = 5 * time.Minute
)

// Sweeper сбрасывает QUOTA ошибки во всех активных runs.
// resetAt — момент сброса квоты: ошибки до него уже неактуальны.
// Реализуется orchestrator.Supervisor.
type Sweeper interface {
	RetryQuotaErrorsAll(ctx context.Context, resetAt time.Time) (int, error)
}

// Leader решает, какой процесс выполняет sweep. Реализуется repo.AdvisoryLock.
type Leader interface {
	TryLead(ctx context.Context) (bool, error)
}

// Scheduler запускает Sweeper по cron-выражению.
type Scheduler struct {
	sweeper  Sweeper
	leader   Leader
	expr     string
	schedule cron.Schedule
	loc      *time.Location
	timeout  time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// Config — конфигурация Scheduler.
type Config struct {
	Sweeper Sweeper

	// Leader — выбор лидера между процессами (опционально).
	// Без него sweep выполняет каждый процесс.
	Leader Leader

	// CronExpr — расписание сброса (default: "5 0 * * *").
	CronExpr string

	// Timezone — часовой пояс расписания (default: America/Los_Angeles).
	Timezone string

	// Timeout — ограничение на один sweep (default: 5m).
	Timeout time.Duration

	// Now — источник времени (для тестов). Default: time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// New создаёт Scheduler. Возвращает ошибку для невалидного выражения или timezone.
func New(cfg Config) (*Scheduler, error) {
	if cfg.CronExpr == "" {
		cfg.CronExpr = DefaultCronExpr
	}
	if cfg.Timezone == "" {
		cfg.Timezone = DefaultTimezone
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	schedule, err := cronParser.Parse(cfg.CronExpr)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", cfg.CronExpr, err)
	}

	loc, err := loadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	return &Scheduler{
		sweeper:  cfg.Sweeper,
		leader:   cfg.Leader,
		expr:     cfg.CronExpr,
		schedule: schedule,
		loc:      loc,
		timeout:  cfg.Timeout,
		now:      cfg.Now,
		logger:   logger,
	}, nil
}

// Next возвращает время следующего sweep.
func (s *Scheduler) Next() time.Time {
	return s.schedule.Next(s.now().In(s.loc))
}

// Run выполняет sweep по расписанию до отмены ctx.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("quota reset scheduler started",
		"cron", s.expr,
		"timezone", s.loc.String(),
		"next", s.Next(),
	)

	for {
		wait := s.Next().Sub(s.now())
		if wait < 0 {
			wait = 0
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("quota reset scheduler stopped")
			return nil
		case <-timer.C:
		}

		if err := s.Tick(ctx); err != nil {
			s.logger.Error("quota reset sweep failed", "error", err)
		}
	}
}

// Tick выполняет один sweep.
// QUOTA ошибки, записанные до полуночи текущего дня (в Timezone), сбрасываются
// независимо от cool-down.
// Ошибки отдельных runs не останавливают обработку остальных.
func (s *Scheduler) Tick(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if s.leader != nil {
		ok, err := s.leader.TryLead(ctx)
		if err != nil {
			return fmt.Errorf("leader election: %w", err)
		}
		if !ok {
			s.logger.Info("quota reset sweep skipped, not the leader")
			return nil
		}
	}

	start := s.now()
	resetAt := quotaResetAt(start, s.loc)
	n, err := s.sweeper.RetryQuotaErrorsAll(ctx, resetAt)

	s.logger.Info("quota reset sweep completed",
		"reset", n,
		"reset_at", resetAt,
		"duration", s.now().Sub(start),
		"failed", err != nil,
	)

	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	return nil
}
