package postgres

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// insertOutboxTx stages a notification for the background publisher in the
// same transaction as the business write, so the message exists iff the write
// committed.
func insertOutboxTx(ctx context.Context, tx pgx.Tx, traceID, routingKey string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO outbox (id, message_id, trace_id, routing_key, payload, occurred_at, status, attempt, next_retry_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), 'pending', 0, NOW())
	`, uuid.New(), uuid.New(), traceID, routingKey, body)
	return err
}
