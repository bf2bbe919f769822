package postgres

import (
	"context"
	"fmt"

	"github.com/gatherly/lifecycle-service/internal/domain"
	"github.com/google/uuid"
)

// CreateReview gates on the lifecycle: the event's stored status must be
// completed and the reviewer must hold a participant row.
func (r *Repository) CreateReview(ctx context.Context, rv *domain.Review) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ev, err := lockEvent(ctx, tx, rv.EventID)
	if err != nil {
		return err
	}
	if ev.Status != domain.StatusCompleted {
		return domain.ErrNotCompleted
	}

	var joined bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM participants WHERE event_id = $1 AND user_id = $2)
	`, rv.EventID, rv.UserID).Scan(&joined)
	if err != nil {
		return err
	}
	if !joined {
		return domain.ErrNotJoined
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO reviews (id, event_id, user_id, rating, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (event_id, user_id) DO NOTHING
	`, rv.ID, rv.EventID, rv.UserID, rv.Rating, rv.Comment)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyReviewed
	}

	return tx.Commit(ctx)
}

func (r *Repository) ListReviews(ctx context.Context, eventID uuid.UUID, limit int, cursor *domain.KeysetCursor) ([]domain.Review, *domain.KeysetCursor, error) {
	limit = clampLimit(limit)
	where := "WHERE event_id = $1"
	args := []any{eventID}
	if cursor != nil {
		where += " AND (created_at, id) < ($2, $3)"
		args = append(args, cursor.CreatedAt, cursor.ID)
	}

	q := fmt.Sprintf(`
		SELECT id, event_id, user_id, rating, comment, created_at
		FROM reviews
		%s
		ORDER BY created_at DESC, id DESC
		LIMIT %d
	`, where, limit+1)

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var out []domain.Review
	for rows.Next() {
		var rv domain.Review
		if err := rows.Scan(&rv.ID, &rv.EventID, &rv.UserID, &rv.Rating, &rv.Comment, &rv.CreatedAt); err != nil {
			return nil, nil, err
		}
		out = append(out, rv)
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
