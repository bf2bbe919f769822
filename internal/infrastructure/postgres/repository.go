package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/gatherly/lifecycle-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// -------------------------
// Locking policy:
// Every mutation of the join relationship locks the events row first
// (SELECT ... FOR UPDATE) and only then touches participants. The event row
// acts as the per-event capacity mutex, so two concurrent last-seat joins
// serialize on it and the second one observes the first one's insert.
// -------------------------

// Join executes the full join transaction. Precondition order is fixed:
// event exists, requester is not the host, stored status is open, no existing
// participant row, live count below capacity. The stored (not effective)
// status gates the join, so an expired-but-unswept event still accepts joins.
func (r *Repository) Join(ctx context.Context, traceID string, eventID, userID uuid.UUID) (*domain.Participant, *domain.Event, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// 1) Lock the event row (per-event capacity mutex)
	ev, err := lockEvent(ctx, tx, eventID)
	if err != nil {
		return nil, nil, err
	}

	// 2) Host cannot take a seat in their own event
	if ev.HostID == userID {
		return nil, nil, domain.ErrOwnEvent
	}

	// 3) Stored status must be open
	if ev.Status != domain.StatusOpen {
		return nil, nil, fmt.Errorf("%w (status: %s)", domain.ErrEventNotOpen, ev.Status)
	}

	// 4) Unique join
	var exists bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM participants WHERE event_id = $1 AND user_id = $2)
	`, eventID, userID).Scan(&exists)
	if err != nil {
		return nil, nil, err
	}
	if exists {
		return nil, nil, domain.ErrAlreadyJoined
	}

	// 5) Capacity
	var count int
	err = tx.QueryRow(ctx, `SELECT count(*) FROM participants WHERE event_id = $1`, eventID).Scan(&count)
	if err != nil {
		return nil, nil, err
	}
	if count >= ev.MaxParticipants {
		return nil, nil, domain.ErrEventFull
	}

	// 6) Insert the seat. Free events settle immediately; priced events start
	// pending until the payment collaborator reports an outcome.
	p := &domain.Participant{
		ID:            uuid.New(),
		EventID:       eventID,
		UserID:        userID,
		PaymentStatus: domain.PaymentPending,
	}
	if ev.Free() {
		p.PaymentStatus = domain.PaymentCompleted
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO participants (id, event_id, user_id, joined_at, attended, payment_status, amount_paid_cents)
		VALUES ($1, $2, $3, NOW(), FALSE, $4, 0)
		RETURNING joined_at
	`, p.ID, eventID, userID, string(p.PaymentStatus)).Scan(&p.JoinedAt)
	if err != nil {
		return nil, nil, err
	}

	// 7) Flip open -> full when the seat just taken was the last one
	ev.ParticipantCount = count + 1
	if ev.ParticipantCount >= ev.MaxParticipants {
		_, err = tx.Exec(ctx, `UPDATE events SET status = 'full', updated_at = NOW() WHERE id = $1`, eventID)
		if err != nil {
			return nil, nil, err
		}
		ev.Status = domain.StatusFull
	}

	// 8) Booking confirmation, via outbox (best effort downstream, never
	// blocks or fails the join)
	if err := insertOutboxTx(ctx, tx, traceID, "notify.booking_confirmed", map[string]any{
		"event_id": eventID,
		"user_id":  userID,
		"title":    ev.Title,
		"date":     ev.Date,
	}); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	return p, ev, nil
}

// Leave deletes the participant row and reverts a full event to open. The
// status revert is unconditional: a seat was just freed, so full cannot hold.
func (r *Repository) Leave(ctx context.Context, traceID string, eventID, userID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Lock the event row first (same order as Join). A missing event implies
	// a missing participant row.
	ev, err := lockEvent(ctx, tx, eventID)
	if err != nil {
		if errors.Is(err, domain.ErrEventNotFound) {
			return domain.ErrNotJoined
		}
		return err
	}

	tag, err := tx.Exec(ctx, `DELETE FROM participants WHERE event_id = $1 AND user_id = $2`, eventID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotJoined
	}

	if ev.Status == domain.StatusFull {
		_, err = tx.Exec(ctx, `UPDATE events SET status = 'open', updated_at = NOW() WHERE id = $1`, eventID)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// lockEvent reads and row-locks an event inside tx.
func lockEvent(ctx context.Context, tx pgx.Tx, eventID uuid.UUID) (*domain.Event, error) {
	var ev domain.Event
	var status string
	err := tx.QueryRow(ctx, `
		SELECT id, host_id, title, description, category, location, latitude, longitude,
		       date, max_participants, price_cents, status, created_at, updated_at
		FROM events
		WHERE id = $1
		FOR UPDATE
	`, eventID).Scan(
		&ev.ID, &ev.HostID, &ev.Title, &ev.Description, &ev.Category, &ev.Location,
		&ev.Latitude, &ev.Longitude, &ev.Date, &ev.MaxParticipants, &ev.PriceCents,
		&status, &ev.CreatedAt, &ev.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEventNotFound
		}
		return nil, err
	}
	ev.Status = domain.EventStatus(status)
	return &ev, nil
}
