package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/cloudsuite/cloudauth/internal/cache"
	"github.com/cloudsuite/cloudauth/pkg/logger"
)

const defaultPurgeSpec = "@hourly"

// Cleaner periodically purges expired session rows from the database-backed
// cache store. Redis and the in-memory store expire keys on their own, so the
// job only runs when the database store is in use.
type Cleaner struct {
	store *cache.DatabaseStore
	cron  *cron.Cron
	log   *zap.Logger

	purgeSchedule string
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

// WithSchedule overrides the cron specification for the purge job.
func WithSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.purgeSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner. A nil store disables the purge job.
func NewCleaner(store *cache.DatabaseStore, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		store:         store,
		purgeSchedule: defaultPurgeSpec,
		log:           logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers the purge job with the cron scheduler and launches it.
func (c *Cleaner) Start() error {
	if c.store == nil {
		return nil
	}

	if _, err := c.cron.AddFunc(c.purgeSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		purged, err := c.store.PurgeExpired(ctx)
		if err != nil {
			c.log.Warn("session purge failed", zap.Error(err))
			return
		}
		if purged > 0 {
			c.log.Info("purged expired sessions", zap.Int64("rows", purged))
		}
	}); err != nil {
		return err
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

// RunOnce executes the purge immediately. Used by tests and during shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	if c.store != nil {
		if _, err := c.store.PurgeExpired(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}
