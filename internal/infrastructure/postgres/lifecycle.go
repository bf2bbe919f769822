package postgres

import (
	"context"
	"time"

	"github.com/gatherly/lifecycle-service/internal/pkg/logger"
	"github.com/google/uuid"
)

// SweepExpiredEvents bulk-transitions expired live events to completed, so
// stored status converges with effective status and browse/review paths can
// keep filtering on the stored value. Terminal rows are never touched.
//
// A join racing the sweep on a just-expired event may land either way; that
// is accepted (eventual consistency, not strict).
func (r *Repository) SweepExpiredEvents(ctx context.Context, now time.Time) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		UPDATE events
		SET status = 'completed', updated_at = NOW()
		WHERE date < $1 AND status IN ('open', 'full')
		RETURNING id, host_id, title
	`, now)
	if err != nil {
		return 0, err
	}

	type swept struct {
		ID     uuid.UUID
		HostID uuid.UUID
		Title  string
	}
	var events []swept
	for rows.Next() {
		var s swept
		if err := rows.Scan(&s.ID, &s.HostID, &s.Title); err == nil {
			events = append(events, s)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	traceID := "sweep:" + uuid.NewString()
	for _, s := range events {
		if err := insertOutboxTx(ctx, tx, traceID, "notify.event_completed", map[string]any{
			"event_id": s.ID,
			"host_id":  s.HostID,
			"title":    s.Title,
		}); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return int64(len(events)), nil
}

// DispatchReminders enqueues one reminder per current participant of every
// open event starting within the lookahead window. There is no dedup across
// invocations: a participant whose event stays inside the window on the next
// run gets reminded again. Individual enqueue failures are logged and do not
// abort the batch.
func (r *Repository) DispatchReminders(ctx context.Context, now time.Time, lookahead time.Duration) (int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT e.id, e.title, e.date, p.user_id
		FROM events e
		JOIN participants p ON p.event_id = e.id
		WHERE e.status = 'open'
		  AND e.date > $1
		  AND e.date <= $2
		ORDER BY e.date ASC
	`, now, now.Add(lookahead))
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	type reminder struct {
		EventID uuid.UUID
		Title   string
		Date    time.Time
		UserID  uuid.UUID
	}
	var reminders []reminder
	for rows.Next() {
		var rm reminder
		if err := rows.Scan(&rm.EventID, &rm.Title, &rm.Date, &rm.UserID); err != nil {
			return 0, err
		}
		reminders = append(reminders, rm)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	log := logger.Logger.With().Str("component", "reminder_dispatch").Logger()
	traceID := "reminder:" + uuid.NewString()

	var sent int64
	for _, rm := range reminders {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO outbox (id, message_id, trace_id, routing_key, payload, occurred_at, status, attempt, next_retry_at)
			VALUES ($1, $2, $3, 'notify.event_reminder',
			        jsonb_build_object('event_id', $4::uuid, 'user_id', $5::uuid, 'title', $6::text, 'date', $7::timestamptz),
			        NOW(), 'pending', 0, NOW())
		`, uuid.New(), uuid.New(), traceID, rm.EventID, rm.UserID, rm.Title, rm.Date)
		if err != nil {
			log.Warn().Err(err).
				Str("event_id", rm.EventID.String()).
				Str("user_id", rm.UserID.String()).
				Msg("reminder enqueue failed; continuing")
			continue
		}
		sent++
	}
	return sent, nil
}
