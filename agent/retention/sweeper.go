// Package retention periodically deletes audit records that outlived their
// tenant's retention window. Session state needs no sweep; Redis TTLs expire
// it on their own.
package retention

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	tenantx "github.com/frontdesk-ai/frontdesk/agent/tenant"
)

const (
	defaultCron        = "0 4 * * *" // daily, off-peak
	defaultConcurrency = 4
	sweepTimeout       = 10 * time.Minute
)

// Purger deletes one tenant's audit records older than the cutoff.
type Purger interface {
	PurgeBefore(ctx context.Context, tenantID string, cutoff time.Time) (int64, error)
}

type Config struct {
	Cron        string `envconfig:"CRON" split_words:"true" default:"0 4 * * *"`
	Concurrency int    `envconfig:"CONCURRENCY" split_words:"true" default:"4"`
}

// Sweeper owns the scheduled purge job.
type Sweeper struct {
	tenants     tenantx.Registry
	purger      Purger
	scheduler   gocron.Scheduler
	cron        string
	concurrency int
	now         func() time.Time
}

func NewSweeper(tenants tenantx.Registry, purger Purger, cfg Config) (*Sweeper, error) {
	if tenants == nil {
		return nil, errors.New("tenant registry is required")
	}
	if purger == nil {
		return nil, errors.New("purger is required")
	}

	cron := cfg.Cron
	if cron == "" {
		cron = defaultCron
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	return &Sweeper{
		tenants:     tenants,
		purger:      purger,
		scheduler:   scheduler,
		cron:        cron,
		concurrency: concurrency,
		now:         time.Now,
	}, nil
}

// Start schedules the sweep and begins running it. Call Stop to shut down.
func (s *Sweeper) Start() error {
	_, err := s.scheduler.NewJob(
		gocron.CronJob(s.cron, false),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
			defer cancel()
			if err := s.SweepOnce(ctx); err != nil {
				log.Error().Err(err).Msg("retention_sweep_failed")
			}
		}),
		gocron.WithName("retention_sweep"),
	)
	if err != nil {
		return fmt.Errorf("schedule retention sweep: %w", err)
	}

	s.scheduler.Start()
	log.Info().Str("cron", s.cron).Msg("retention_sweep_scheduled")
	return nil
}

func (s *Sweeper) Stop() error {
	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("shutdown retention scheduler: %w", err)
	}
	return nil
}

// SweepOnce purges every active tenant's expired records, fanning out with a
// bounded worker group. A tenant with a zero retention window keeps records
// forever and is skipped.
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	policies, err := s.tenants.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list retention policies: %w", err)
	}

	now := s.now()
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(s.concurrency)

	for _, policy := range policies {
		if policy.RetentionDays <= 0 {
			continue
		}
		policy := policy
		group.Go(func() error {
			cutoff := now.AddDate(0, 0, -policy.RetentionDays)
			purged, err := s.purger.PurgeBefore(ctx, policy.TenantID, cutoff)
			if err != nil {
				return fmt.Errorf("purge tenant %s: %w", policy.TenantID, err)
			}
			if purged > 0 {
				log.Info().
					Str("tenant_id", policy.TenantID).
					Int64("purged", purged).
					Time("cutoff", cutoff).
					Msg("retention_purged")
			}
			return nil
		})
	}

	return group.Wait()
}
