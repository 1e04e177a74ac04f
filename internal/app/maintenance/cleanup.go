package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	iauth "github.com/examcell/smartboard/internal/auth"
	"github.com/examcell/smartboard/internal/services"
	"github.com/examcell/smartboard/pkg/logger"
)

const (
	defaultAuditRetentionDays = 180
	defaultSessionSpec        = "@hourly"
	defaultAuditSpec          = "@daily"
	defaultRateStoreSpec      = "@every 5m"
)

// RateSweeper drops expired rate limit counters.
type RateSweeper interface {
	Sweep() int
}

// Cleaner coordinates background maintenance: purging expired or revoked
// refresh sessions, pruning old audit logs and sweeping rate limit counters.
// Reset codes are never swept; they are replaced on issue and on consume.
type Cleaner struct {
	sessions  *iauth.SessionService
	audit     *services.AuditService
	rates     RateSweeper
	cron      *cron.Cron
	log       *zap.Logger
	retention int

	sessionSchedule string
	auditSchedule   string
	rateSchedule    string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithAuditRetentionDays adjusts how long audit logs are retained before cleanup.
func WithAuditRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithSessionSchedule overrides the cron expression for session cleanup.
func WithSessionSchedule(schedule string) Option {
	return func(cleaner *Cleaner) {
		if schedule != "" {
			cleaner.sessionSchedule = schedule
		}
	}
}

// WithAuditSchedule overrides the cron expression for audit retention enforcement.
func WithAuditSchedule(schedule string) Option {
	return func(cleaner *Cleaner) {
		if schedule != "" {
			cleaner.auditSchedule = schedule
		}
	}
}

// WithRateSweeper registers the rate limit store to sweep on schedule.
func WithRateSweeper(rates RateSweeper, schedule string) Option {
	return func(cleaner *Cleaner) {
		cleaner.rates = rates
		if schedule != "" {
			cleaner.rateSchedule = schedule
		}
	}
}

// NewCleaner constructs a Cleaner. Any nil dependency results in the
// corresponding cleanup job being skipped.
func NewCleaner(sessions *iauth.SessionService, audit *services.AuditService, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		sessions:        sessions,
		audit:           audit,
		retention:       defaultAuditRetentionDays,
		sessionSchedule: defaultSessionSpec,
		auditSchedule:   defaultAuditSpec,
		rateSchedule:    defaultRateStoreSpec,
		log:             logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return cleaner
}

// Start registers cleanup jobs with the cron scheduler and launches it.
func (c *Cleaner) Start() error {
	if c.sessions != nil {
		if _, err := c.cron.AddFunc(c.sessionSchedule, func() {
			removed, err := c.sessions.CleanupExpired(context.Background())
			if err != nil {
				c.log.Warn("session cleanup failed", zap.Error(err))
				return
			}
			c.log.Debug("sessions cleaned", zap.Int64("removed", removed))
		}); err != nil {
			return err
		}
	}

	if c.audit != nil && c.retention > 0 {
		if _, err := c.cron.AddFunc(c.auditSchedule, func() {
			if _, err := c.audit.CleanupOlderThan(context.Background(), c.retention); err != nil {
				c.log.Warn("audit cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.rates != nil {
		if _, err := c.cron.AddFunc(c.rateSchedule, func() {
			c.rates.Sweep()
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// Jobs returns the number of scheduled jobs.
func (c *Cleaner) Jobs() int {
	return len(c.cron.Entries())
}

// RunOnce executes all configured cleanup routines sequentially. Primarily used in tests
// and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.sessions != nil {
		if _, err := c.sessions.CleanupExpired(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.audit != nil && c.retention > 0 {
		if _, err := c.audit.CleanupOlderThan(ctx, c.retention); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.rates != nil {
		c.rates.Sweep()
	}

	return errs
}

// WaitStopped blocks until running jobs finish or timeout elapses.
func (c *Cleaner) WaitStopped(timeout time.Duration) {
	select {
	case <-c.Stop().Done():
	case <-time.After(timeout):
	}
}
