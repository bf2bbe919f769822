package audit

import (
	"context"

	appCtx "github.com/gatherly/lifecycle-service/internal/pkg/context"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Logger provides structured audit logging for business events
type Logger struct {
	log zerolog.Logger
}

// New creates a new audit logger
func New(log zerolog.Logger) *Logger {
	return &Logger{
		log: log.With().Bool("audit", true).Logger(),
	}
}

// JoinCreated logs when a user takes a seat in an event
func (l *Logger) JoinCreated(ctx context.Context, eventID, userID uuid.UUID, eventStatus string) {
	l.log.Info().
		Str("action", "join_created").
		Str("event_id", eventID.String()).
		Str("user_id", userID.String()).
		Str("event_status", eventStatus).
		Str("trace_id", getTraceID(ctx)).
		Msg("User joined event")
}

// LeaveRecorded logs when a user gives up their seat
func (l *Logger) LeaveRecorded(ctx context.Context, eventID, userID uuid.UUID) {
	l.log.Info().
		Str("action", "leave_recorded").
		Str("event_id", eventID.String()).
		Str("user_id", userID.String()).
		Str("trace_id", getTraceID(ctx)).
		Msg("User left event")
}

// EventCreated logs when a host opens a new event
func (l *Logger) EventCreated(ctx context.Context, eventID, hostID uuid.UUID) {
	l.log.Info().
		Str("action", "event_created").
		Str("event_id", eventID.String()).
		Str("host_id", hostID.String()).
		Str("trace_id", getTraceID(ctx)).
		Msg("Event created")
}

// EventCancelled logs the terminal host/admin cancellation
func (l *Logger) EventCancelled(ctx context.Context, eventID, actorID uuid.UUID) {
	l.log.Warn().
		Str("action", "event_cancelled").
		Str("event_id", eventID.String()).
		Str("actor_user_id", actorID.String()).
		Str("trace_id", getTraceID(ctx)).
		Msg("Event cancelled")
}

// ReviewCreated logs a post-completion review
func (l *Logger) ReviewCreated(ctx context.Context, eventID, userID uuid.UUID, rating int) {
	l.log.Info().
		Str("action", "review_created").
		Str("event_id", eventID.String()).
		Str("user_id", userID.String()).
		Int("rating", rating).
		Str("trace_id", getTraceID(ctx)).
		Msg("Review created")
}

// getTraceID extracts the request id from context if available
func getTraceID(ctx context.Context) string {
	return appCtx.GetRequestID(ctx)
}
