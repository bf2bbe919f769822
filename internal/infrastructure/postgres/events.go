package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/gatherly/lifecycle-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func (r *Repository) CreateEvent(ctx context.Context, e *domain.Event) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO events (id, host_id, title, description, category, location, latitude, longitude,
		                    date, max_participants, price_cents, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 'open', NOW(), NOW())
		RETURNING created_at, updated_at
	`, e.ID, e.HostID, e.Title, e.Description, e.Category, e.Location, e.Latitude, e.Longitude,
		e.Date, e.MaxParticipants, e.PriceCents,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
}

func (r *Repository) GetEvent(ctx context.Context, eventID uuid.UUID) (*domain.Event, error) {
	ev, err := scanEventRow(r.pool.QueryRow(ctx, `
		SELECT `+eventColumns+`
		FROM events e
		WHERE e.id = $1
	`, eventID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEventNotFound
		}
		return nil, err
	}
	return ev, nil
}

// CancelEvent is the host/admin terminal transition. Cancelling an already
// cancelled event is an idempotent no-op; a completed event stays completed.
func (r *Repository) CancelEvent(ctx context.Context, traceID string, eventID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ev, err := lockEvent(ctx, tx, eventID)
	if err != nil {
		return err
	}

	switch ev.Status {
	case domain.StatusCancelled:
		return tx.Commit(ctx)
	case domain.StatusCompleted:
		return fmt.Errorf("%w (status: %s)", domain.ErrEventNotOpen, ev.Status)
	}

	_, err = tx.Exec(ctx, `UPDATE events SET status = 'cancelled', updated_at = NOW() WHERE id = $1`, eventID)
	if err != nil {
		return err
	}

	// One cancellation notice per current participant
	rows, err := tx.Query(ctx, `SELECT user_id FROM participants WHERE event_id = $1`, eventID)
	if err != nil {
		return err
	}
	var userIDs []uuid.UUID
	for rows.Next() {
		var uid uuid.UUID
		if err := rows.Scan(&uid); err == nil {
			userIDs = append(userIDs, uid)
		}
	}
	rows.Close()

	for _, uid := range userIDs {
		if err := insertOutboxTx(ctx, tx, traceID, "notify.event_cancelled", map[string]any{
			"event_id": eventID,
			"user_id":  uid,
			"title":    ev.Title,
			"date":     ev.Date,
		}); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// ListEvents is the browse path: only live stored statuses appear. The
// sweeper keeps this filter honest for expired rows.
func (r *Repository) ListEvents(ctx context.Context, f domain.EventFilter, limit int, cursor *domain.KeysetCursor) ([]domain.Event, *domain.KeysetCursor, error) {
	limit = clampLimit(limit)
	where := "WHERE e.status IN ('open', 'full')"
	args := []any{}
	argN := 1

	if f.Category != "" {
		where += fmt.Sprintf(" AND e.category = $%d", argN)
		args = append(args, f.Category)
		argN++
	}
	if f.Location != "" {
		where += fmt.Sprintf(" AND e.location = $%d", argN)
		args = append(args, f.Location)
		argN++
	}
	if f.From != nil {
		where += fmt.Sprintf(" AND e.date >= $%d", argN)
		args = append(args, *f.From)
		argN++
	}
	if f.To != nil {
		where += fmt.Sprintf(" AND e.date <= $%d", argN)
		args = append(args, *f.To)
		argN++
	}
	if cursor != nil {
		where += fmt.Sprintf(" AND (e.created_at, e.id) < ($%d, $%d)", argN, argN+1)
		args = append(args, cursor.CreatedAt, cursor.ID)
		argN += 2
	}

	return r.listEvents(ctx, where, args, limit)
}

// ListHostEvents returns all of a host's events regardless of status.
func (r *Repository) ListHostEvents(ctx context.Context, hostID uuid.UUID, limit int, cursor *domain.KeysetCursor) ([]domain.Event, *domain.KeysetCursor, error) {
	limit = clampLimit(limit)
	where := "WHERE e.host_id = $1"
	args := []any{hostID}
	if cursor != nil {
		where += " AND (e.created_at, e.id) < ($2, $3)"
		args = append(args, cursor.CreatedAt, cursor.ID)
	}
	return r.listEvents(ctx, where, args, limit)
}

func (r *Repository) listEvents(ctx context.Context, where string, args []any, limit int) ([]domain.Event, *domain.KeysetCursor, error) {
	q := fmt.Sprintf(`
		SELECT `+eventColumns+`
		FROM events e
		%s
		ORDER BY e.created_at DESC, e.id DESC
		LIMIT %d
	`, where, limit+1)

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		ev, err := scanEventRow(rows)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var next *domain.KeysetCursor
	if len(out) > limit {
		last := out[limit-1]
		next = &domain.KeysetCursor{CreatedAt: last.CreatedAt, ID: last.ID}
		out = out[:limit]
	}
	return out, next, nil
}

const eventColumns = `e.id, e.host_id, e.title, e.description, e.category, e.location,
		       e.latitude, e.longitude, e.date, e.max_participants, e.price_cents,
		       e.status, e.created_at, e.updated_at,
		       (SELECT count(*) FROM participants p WHERE p.event_id = e.id) AS participant_count`

func scanEventRow(row pgx.Row) (*domain.Event, error) {
	var ev domain.Event
	var status string
	err := row.Scan(
		&ev.ID, &ev.HostID, &ev.Title, &ev.Description, &ev.Category, &ev.Location,
		&ev.Latitude, &ev.Longitude, &ev.Date, &ev.MaxParticipants, &ev.PriceCents,
		&status, &ev.CreatedAt, &ev.UpdatedAt, &ev.ParticipantCount,
	)
	if err != nil {
		return nil, err
	}
	ev.Status = domain.EventStatus(status)
	return &ev, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}
