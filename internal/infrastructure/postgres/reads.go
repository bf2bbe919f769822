package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/gatherly/lifecycle-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// GetParticipation answers "is this user in this event"; absence is not an
// error, the zero Participation is returned.
func (r *Repository) GetParticipation(ctx context.Context, eventID, userID uuid.UUID) (domain.Participation, error) {
	var p domain.Participation
	var status string
	err := r.pool.QueryRow(ctx, `
		SELECT joined_at, attended, payment_status
		FROM participants
		WHERE event_id = $1 AND user_id = $2
	`, eventID, userID).Scan(&p.JoinedAt, &p.Attended, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Participation{}, nil
		}
		return domain.Participation{}, err
	}
	p.IsParticipant = true
	p.PaymentStatus = domain.PaymentStatus(status)
	return p, nil
}

// ListParticipants orders by join time, oldest first.
func (r *Repository) ListParticipants(ctx context.Context, eventID uuid.UUID, limit int, cursor *domain.KeysetCursor) ([]domain.Participant, *domain.KeysetCursor, error) {
	limit = clampLimit(limit)
	where := "WHERE event_id = $1"
	args := []any{eventID}

	// ASC cursor: start after (joined_at, id)
	if cursor != nil {
		where += " AND (joined_at, id) > ($2, $3)"
		args = append(args, cursor.CreatedAt, cursor.ID)
	}

	q := fmt.Sprintf(`
		SELECT id, event_id, user_id, joined_at, attended, payment_status, amount_paid_cents, payment_ref
		FROM participants
		%s
		ORDER BY joined_at ASC, id ASC
		LIMIT %d
	`, where, limit+1)

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var out []domain.Participant
	for rows.Next() {
		var p domain.Participant
		var status string
		if err := rows.Scan(
			&p.ID, &p.EventID, &p.UserID, &p.JoinedAt, &p.Attended,
			&status, &p.AmountPaidCents, &p.PaymentRef,
		); err != nil {
			return nil, nil, err
		}
		p.PaymentStatus = domain.PaymentStatus(status)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var next *domain.KeysetCursor
	if len(out) > limit {
		last := out[limit-1]
		next = &domain.KeysetCursor{CreatedAt: last.JoinedAt, ID: last.ID}
		out = out[:limit]
	}
	return out, next, nil
}

// ListJoinedEvents returns the events a user holds a seat in, optionally
// split by event date relative to the database clock.
func (r *Repository) ListJoinedEvents(ctx context.Context, userID uuid.UUID, f domain.JoinedFilter, limit int, cursor *domain.KeysetCursor) ([]domain.Event, *domain.KeysetCursor, error) {
	limit = clampLimit(limit)
	where := "WHERE e.id IN (SELECT event_id FROM participants WHERE user_id = $1)"
	args := []any{userID}
	argN := 2

	switch f {
	case domain.JoinedUpcoming:
		where += " AND e.date >= NOW()"
	case domain.JoinedPast:
		where += " AND e.date < NOW()"
	}

	if cursor != nil {
		where += fmt.Sprintf(" AND (e.created_at, e.id) < ($%d, $%d)", argN, argN+1)
		args = append(args, cursor.CreatedAt, cursor.ID)
	}

	return r.listEvents(ctx, where, args, limit)
}
