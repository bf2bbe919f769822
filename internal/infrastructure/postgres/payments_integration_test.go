//go:build integration
// +build integration

package postgres_test

import (
	"context"
	"testing"

	"github.com/gatherly/lifecycle-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcile_SuccessSettlesPendingSeat(t *testing.T) {
	repo, pool := setupRepo(t)
	ctx := context.Background()

	ev := makeEvent(t, repo, uuid.New(), 5, 2000)
	u1 := uuid.New()
	p, _, err := repo.Join(ctx, "t1", ev.ID, u1)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentPending, p.PaymentStatus)
	confirmedBefore := outboxCount(t, pool, "notify.booking_confirmed")

	err = repo.ReconcilePaymentOutcome(ctx, "t2", domain.PaymentOutcomeSuccess, ev.ID, u1, 2000, "pi_1")
	require.NoError(t, err)

	var status string
	var amount int64
	var ref *string
	require.NoError(t, pool.QueryRow(ctx, `
		SELECT payment_status, amount_paid_cents, payment_ref
		FROM participants WHERE event_id = $1 AND user_id = $2
	`, ev.ID, u1).Scan(&status, &amount, &ref))
	assert.Equal(t, "completed", status)
	assert.Equal(t, int64(2000), amount)
	require.NotNil(t, ref)
	assert.Equal(t, "pi_1", *ref)

	// the seat existed already: no extra confirmation
	assert.Equal(t, confirmedBefore, outboxCount(t, pool, "notify.booking_confirmed"))

	// redelivery under a fresh message id: upsert keeps one row
	err = repo.ReconcilePaymentOutcome(ctx, "t3", domain.PaymentOutcomeSuccess, ev.ID, u1, 2000, "pi_1")
	require.NoError(t, err)

	var rows int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT count(*) FROM participants WHERE event_id = $1 AND user_id = $2`, ev.ID, u1).Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestReconcile_SuccessCreatesSeatAndFlipsFull(t *testing.T) {
	repo, pool := setupRepo(t)
	ctx := context.Background()

	// capacity 1, nobody joined yet: the settled payment itself reserves the
	// last seat and flips the event
	ev := makeEvent(t, repo, uuid.New(), 1, 2000)
	u1 := uuid.New()

	err := repo.ReconcilePaymentOutcome(ctx, "t1", domain.PaymentOutcomeSuccess, ev.ID, u1, 2000, "pi_2")
	require.NoError(t, err)

	var status string
	require.NoError(t, pool.QueryRow(ctx, `SELECT status FROM events WHERE id = $1`, ev.ID).Scan(&status))
	assert.Equal(t, "full", status)

	// a created seat gets its confirmation
	assert.Equal(t, 1, outboxCount(t, pool, "notify.booking_confirmed"))

	p, err := repo.GetParticipation(ctx, ev.ID, u1)
	require.NoError(t, err)
	assert.True(t, p.IsParticipant)
	assert.Equal(t, domain.PaymentCompleted, p.PaymentStatus)
}

func TestReconcile_FailureNeverCreatesOrDeletesSeat(t *testing.T) {
	repo, pool := setupRepo(t)
	ctx := context.Background()

	ev := makeEvent(t, repo, uuid.New(), 5, 2000)
	stranger := uuid.New()

	// failure for someone who never joined: logged no-op
	err := repo.ReconcilePaymentOutcome(ctx, "t1", domain.PaymentOutcomeFailure, ev.ID, stranger, 2000, "pi_3")
	require.NoError(t, err)

	p, err := repo.GetParticipation(ctx, ev.ID, stranger)
	require.NoError(t, err)
	assert.False(t, p.IsParticipant)

	// failure for an existing pending seat: marks failed, keeps the row
	u1 := uuid.New()
	_, _, err = repo.Join(ctx, "t2", ev.ID, u1)
	require.NoError(t, err)

	err = repo.ReconcilePaymentOutcome(ctx, "t3", domain.PaymentOutcomeFailure, ev.ID, u1, 2000, "pi_4")
	require.NoError(t, err)

	var status string
	require.NoError(t, pool.QueryRow(ctx, `
		SELECT payment_status FROM participants WHERE event_id = $1 AND user_id = $2
	`, ev.ID, u1).Scan(&status))
	assert.Equal(t, "failed", status)

	// unknown event propagates
	err = repo.ReconcilePaymentOutcome(ctx, "t4", domain.PaymentOutcomeSuccess, uuid.New(), u1, 2000, "pi_5")
	assert.ErrorIs(t, err, domain.ErrEventNotFound)
}

func TestProcessOnce_FencesDuplicateDeliveries(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	ev := makeEvent(t, repo, uuid.New(), 5, 2000)
	u1 := uuid.New()

	apply := func(msgID string) (bool, error) {
		return repo.ProcessOnce(ctx, msgID, "payment_outcomes", func(tx pgx.Tx) error {
			return repo.ReconcilePaymentOutcomeTx(ctx, tx, "t1",
				domain.PaymentOutcomeSuccess, ev.ID, u1, 2000, "pi_6")
		})
	}

	processed, err := apply("msg-1")
	require.NoError(t, err)
	assert.True(t, processed)

	// exact redelivery is fenced out
	processed, err = apply("msg-1")
	require.NoError(t, err)
	assert.False(t, processed)

	// a failing handler does not burn the message id
	boomID := "msg-2"
	_, err = repo.ProcessOnce(ctx, boomID, "payment_outcomes", func(tx pgx.Tx) error {
		return assert.AnError
	})
	require.Error(t, err)

	processed, err = apply(boomID)
	require.NoError(t, err)
	assert.True(t, processed)
}
