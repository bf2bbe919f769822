package lifecycle

import (
	"context"
	"time"

	"github.com/gatherly/lifecycle-service/internal/domain"
	"github.com/gatherly/lifecycle-service/internal/pkg/logger"
)

// Sweeper converges stored event status with reality on a schedule, and
// fans out reminders for events starting soon. It owns scheduling only; the
// actual transitions live in the repository so they stay testable and can be
// invoked directly ("run one sweep now").
type Sweeper struct {
	repo domain.LifecycleRepository

	sweepInterval    time.Duration
	reminderInterval time.Duration
	lookahead        time.Duration

	now func() time.Time
}

func New(repo domain.LifecycleRepository, sweepInterval, reminderInterval, lookahead time.Duration) *Sweeper {
	return &Sweeper{
		repo:             repo,
		sweepInterval:    sweepInterval,
		reminderInterval: reminderInterval,
		lookahead:        lookahead,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// Start launches both schedules in background goroutines. The sweep also
// runs once immediately to catch events that expired while the process was
// down. Failures are logged and retried on the next tick, never fatal.
func (s *Sweeper) Start(ctx context.Context) {
	go s.runSweeps(ctx)
	go s.runReminders(ctx)
}

func (s *Sweeper) runSweeps(ctx context.Context) {
	log := logger.Logger.With().Str("component", "lifecycle_sweeper").Logger()

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	s.SweepOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("stopped")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

func (s *Sweeper) runReminders(ctx context.Context) {
	log := logger.Logger.With().Str("component", "reminder_dispatch").Logger()

	ticker := time.NewTicker(s.reminderInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("stopped")
			return
		case <-ticker.C:
			s.RemindOnce(ctx)
		}
	}
}

// SweepOnce runs a single expiry pass and returns the number of events
// transitioned to completed.
func (s *Sweeper) SweepOnce(ctx context.Context) int64 {
	log := logger.Logger.With().Str("component", "lifecycle_sweeper").Logger()

	count, err := s.repo.SweepExpiredEvents(ctx, s.now())
	if err != nil {
		log.Warn().Err(err).Msg("sweep failed; will retry on next tick")
		return 0
	}
	if count > 0 {
		log.Info().Int64("swept", count).Msg("expired events completed")
	}
	return count
}

// RemindOnce runs a single reminder pass.
func (s *Sweeper) RemindOnce(ctx context.Context) int64 {
	log := logger.Logger.With().Str("component", "reminder_dispatch").Logger()

	count, err := s.repo.DispatchReminders(ctx, s.now(), s.lookahead)
	if err != nil {
		log.Warn().Err(err).Msg("reminder dispatch failed; will retry on next tick")
		return 0
	}
	if count > 0 {
		log.Info().Int64("reminders", count).Msg("reminders enqueued")
	}
	return count
}
