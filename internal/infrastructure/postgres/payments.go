package postgres

import (
	"context"

	"github.com/gatherly/lifecycle-service/internal/domain"
	"github.com/gatherly/lifecycle-service/internal/pkg/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ReconcilePaymentOutcome applies a terminal payment result reported
// out-of-band by the payment collaborator.
//
// Success upserts the participant row: this is the only path besides Join
// that can create one, used when payment settles before the seat was
// reserved. Delivery is at-least-once, so the upsert is keyed on the unique
// (event_id, user_id) pair: a redelivered success neither duplicates the row
// nor double-counts capacity.
//
// Failure only records payment_status = failed on an existing row. It never
// deletes the row and never touches capacity.
func (r *Repository) ReconcilePaymentOutcome(ctx context.Context, traceID string, outcome domain.PaymentOutcome, eventID, userID uuid.UUID, amountCents int64, paymentRef string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := r.ReconcilePaymentOutcomeTx(ctx, tx, traceID, outcome, eventID, userID, amountCents, paymentRef); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ReconcilePaymentOutcomeTx is called from the consumer inside a
// ProcessOnce(...) transaction, so the dedupe fence and the reconcile commit
// or roll back together.
func (r *Repository) ReconcilePaymentOutcomeTx(ctx context.Context, tx pgx.Tx, traceID string, outcome domain.PaymentOutcome, eventID, userID uuid.UUID, amountCents int64, paymentRef string) error {
	ev, err := lockEvent(ctx, tx, eventID)
	if err != nil {
		return err
	}

	if outcome == domain.PaymentOutcomeFailure {
		tag, err := tx.Exec(ctx, `
			UPDATE participants
			SET payment_status = 'failed',
			    payment_ref = $3
			WHERE event_id = $1 AND user_id = $2
			  AND (payment_ref IS NULL OR payment_ref = $3)
		`, eventID, userID, paymentRef)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			// A failed payment never reserved a seat; nothing to mark.
			logger.Logger.Info().
				Str("event_id", eventID.String()).
				Str("user_id", userID.String()).
				Str("payment_ref", paymentRef).
				Msg("payment failure for unknown participant ignored")
		}
		return nil
	}

	var created bool
	err = tx.QueryRow(ctx, `
		SELECT NOT EXISTS(SELECT 1 FROM participants WHERE event_id = $1 AND user_id = $2)
	`, eventID, userID).Scan(&created)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO participants (id, event_id, user_id, joined_at, attended, payment_status, amount_paid_cents, payment_ref)
		VALUES ($1, $2, $3, NOW(), FALSE, 'completed', $4, $5)
		ON CONFLICT (event_id, user_id) DO UPDATE
		SET payment_status = 'completed',
		    amount_paid_cents = EXCLUDED.amount_paid_cents,
		    payment_ref = EXCLUDED.payment_ref
	`, uuid.New(), eventID, userID, amountCents, paymentRef)
	if err != nil {
		return err
	}

	// Re-check capacity; the settled payment may have taken the last seat.
	var count int
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM participants WHERE event_id = $1`, eventID).Scan(&count); err != nil {
		return err
	}
	if count >= ev.MaxParticipants && ev.Status == domain.StatusOpen {
		if _, err := tx.Exec(ctx, `UPDATE events SET status = 'full', updated_at = NOW() WHERE id = $1`, eventID); err != nil {
			return err
		}
	}

	// Confirmation only for a seat created by this reconciliation; the Join
	// path already confirmed seats it created.
	if created {
		if err := insertOutboxTx(ctx, tx, traceID, "notify.booking_confirmed", map[string]any{
			"event_id":    eventID,
			"user_id":     userID,
			"title":       ev.Title,
			"date":        ev.Date,
			"payment_ref": paymentRef,
		}); err != nil {
			return err
		}
	}

	return nil
}
