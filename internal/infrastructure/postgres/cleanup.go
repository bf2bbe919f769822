package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/gatherly/lifecycle-service/internal/pkg/logger"
)

const sentOutboxRetention = 7 * 24 * time.Hour

// StartOutboxCleanup periodically deletes delivered outbox rows so the table
// does not grow without bound. Dead rows are kept for inspection.
func (r *Repository) StartOutboxCleanup(ctx context.Context) {
	go func() {
		log := logger.Logger.With().Str("component", "outbox_cleanup").Logger()
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()

		// Run once immediately on startup
		r.cleanupSentOutbox(ctx)

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("stopped")
				return
			case <-ticker.C:
				r.cleanupSentOutbox(ctx)
			}
		}
	}()
}

func (r *Repository) cleanupSentOutbox(ctx context.Context) {
	result, err := r.pool.Exec(ctx,
		`DELETE FROM outbox WHERE status = 'sent' AND occurred_at < NOW() - $1::interval`,
		fmt.Sprintf("%f seconds", sentOutboxRetention.Seconds()),
	)
	if err != nil {
		logger.Logger.Warn().Err(err).Msg("outbox cleanup failed")
		return
	}

	rowsAffected := result.RowsAffected()
	if rowsAffected > 0 {
		logger.Logger.Info().Int64("deleted", rowsAffected).Msg("sent outbox rows cleaned up")
	}
}
