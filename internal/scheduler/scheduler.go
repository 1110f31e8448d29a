// Package scheduler runs the cron-triggered background sweeps SPEC_FULL.md
// §5 names as "long-running work that must not block request handlers": the
// leave reminder/auto-invalidation sweep (C7, §4.6) and the cover-assignment
// backfill (C8, §4.7), one tick per configured tenant. Grounded on the
// teacher's own cron-based Scheduler (robfig/cron/v3, a mutex-guarded
// running flag, Start/Stop/RunNow), generalized from its single
// recurring-invoice job to this module's two sweeps.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/schoolsuite/absence-cover-duty/internal/leaves"
	"github.com/schoolsuite/absence-cover-duty/internal/webhookingress"
)

// Config holds scheduler configuration. Schedules are standard 5-field cron
// expressions (robfig/cron's WithSeconds is not used here, since neither
// sweep needs sub-minute resolution).
type Config struct {
	// ReminderSweepSchedule drives internal/leaves.RunReminderSweep. Must
	// fire at least once every 24h per SPEC_FULL.md §4.6's reminder
	// interval; the teacher's equivalent ran daily at 06:00.
	ReminderSweepSchedule string
	// BackfillSchedule drives internal/webhookingress.Backfill, a lower-
	// frequency safety net for leaves whose webhook arrived before the
	// schedule catalog did.
	BackfillSchedule string
	Enabled          bool
}

// DefaultConfig returns default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		ReminderSweepSchedule: "0 6 * * *",  // 06:00 daily
		BackfillSchedule:      "30 6 * * *", // 06:30 daily, after the reminder sweep
		Enabled:               true,
	}
}

// Scheduler manages the reminder-sweep and backfill background jobs.
type Scheduler struct {
	cron     *cron.Cron
	repo     Repository
	leaves   *leaves.Engine
	webhooks *webhookingress.Engine
	config   Config
	log      zerolog.Logger

	mu      sync.Mutex
	running bool
}

// NewScheduler creates a new scheduler instance. webhooks may be nil if this
// process doesn't run the schedule service's webhook-ingress side (in which
// case only the reminder sweep is scheduled).
func NewScheduler(repo Repository, leavesEngine *leaves.Engine, webhooks *webhookingress.Engine, config Config, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		repo:     repo,
		leaves:   leavesEngine,
		webhooks: webhooks,
		config:   config,
		log:      log.With().Str("component", "scheduler").Logger(),
	}
}

// Start registers and starts the cron jobs.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler: already running")
	}
	if !s.config.Enabled {
		s.log.Info().Msg("scheduler disabled")
		return nil
	}

	if _, err := s.cron.AddFunc(s.config.ReminderSweepSchedule, s.runReminderSweep); err != nil {
		return fmt.Errorf("scheduler: add reminder sweep job: %w", err)
	}
	if s.webhooks != nil {
		if _, err := s.cron.AddFunc(s.config.BackfillSchedule, s.runBackfill); err != nil {
			return fmt.Errorf("scheduler: add backfill job: %w", err)
		}
	}

	s.cron.Start()
	s.running = true
	s.log.Info().
		Str("reminder_schedule", s.config.ReminderSweepSchedule).
		Str("backfill_schedule", s.config.BackfillSchedule).
		Msg("scheduler started")
	return nil
}

// Stop stops the scheduler gracefully, returning a context that is done once
// every in-flight job has finished (the returned context is
// cron.Cron.Stop's own).
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	ctx := s.cron.Stop()
	s.running = false
	s.log.Info().Msg("scheduler stopped")
	return ctx
}

// IsRunning returns whether the scheduler is currently running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RunReminderSweepNow manually triggers the reminder sweep, e.g. from an
// admin endpoint or a test.
func (s *Scheduler) RunReminderSweepNow() {
	s.runReminderSweep()
}

// RunBackfillNow manually triggers the backfill sweep.
func (s *Scheduler) RunBackfillNow() {
	s.runBackfill()
}

func (s *Scheduler) runReminderSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	tenants, err := s.repo.ListActiveTenants(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("reminder sweep: failed to list active tenants")
		return
	}

	var invalidated, reminded, failed int
	for _, tenantID := range tenants {
		select {
		case <-ctx.Done():
			s.log.Warn().Msg("reminder sweep: shutdown signal received mid-scan")
			return
		default:
		}

		outcomes, err := s.leaves.RunReminderSweep(ctx, tenantID)
		if err != nil {
			s.log.Error().Err(err).Str("tenant_id", tenantID.String()).Msg("reminder sweep: tenant scan failed")
			continue
		}
		for _, o := range outcomes {
			switch {
			case o.Err != nil:
				failed++
				s.log.Warn().Err(o.Err).Str("tenant_id", tenantID.String()).Str("leave_id", o.LeaveID.String()).Msg("reminder sweep: row failed")
			case o.Action == "invalidated":
				invalidated++
			case o.Action == "reminded":
				reminded++
			}
		}
	}

	s.log.Info().
		Int("tenants", len(tenants)).
		Int("invalidated", invalidated).
		Int("reminded", reminded).
		Int("failed", failed).
		Msg("reminder sweep complete")
}

func (s *Scheduler) runBackfill() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	tenants, err := s.repo.ListActiveTenants(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("backfill: failed to list active tenants")
		return
	}

	for _, tenantID := range tenants {
		select {
		case <-ctx.Done():
			s.log.Warn().Msg("backfill: shutdown signal received mid-scan")
			return
		default:
		}

		summary, err := s.webhooks.Backfill(ctx, tenantID)
		if err != nil {
			s.log.Error().Err(err).Str("tenant_id", tenantID.String()).Msg("backfill: tenant pass failed")
			continue
		}
		s.log.Info().
			Str("tenant_id", tenantID.String()).
			Int("considered", summary.Considered).
			Int("assigned", summary.Assigned).
			Int("failed", summary.Failed).
			Msg("backfill pass complete")
	}
}
