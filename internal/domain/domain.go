package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type EventStatus string

const (
	StatusOpen      EventStatus = "open"
	StatusFull      EventStatus = "full"
	StatusCancelled EventStatus = "cancelled"
	StatusCompleted EventStatus = "completed"
)

// Terminal reports whether the status is final. Terminal statuses are never
// overwritten by participation changes or by the sweeper.
func (s EventStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

var (
	ErrEventNotFound = errors.New("event not found")
	ErrEventNotOpen  = errors.New("event is not open")
	ErrEventFull     = errors.New("event is full")
	ErrOwnEvent      = errors.New("cannot join own event")
	ErrAlreadyJoined = errors.New("already joined event")
	ErrNotJoined     = errors.New("event not joined")

	ErrForbidden = errors.New("forbidden")

	ErrAlreadyReviewed = errors.New("event already reviewed")
	ErrInvalidRating   = errors.New("rating must be between 1 and 5")
	ErrNotCompleted    = errors.New("event is not completed")

	ErrCacheMiss = errors.New("cache miss")
)

type Event struct {
	ID     uuid.UUID
	HostID uuid.UUID

	Title       string
	Description string
	Category    string
	Location    string
	Latitude    *float64
	Longitude   *float64

	Date            time.Time
	MaxParticipants int
	PriceCents      int64

	Status EventStatus

	CreatedAt time.Time
	UpdatedAt time.Time

	// ParticipantCount is the live seat count at read time. It is populated by
	// read queries, not stored on the event row.
	ParticipantCount int
}

// Free reports whether joining requires no payment.
func (e *Event) Free() bool { return e.PriceCents == 0 }

type Participant struct {
	ID uuid.UUID

	EventID uuid.UUID
	UserID  uuid.UUID

	JoinedAt time.Time
	Attended bool

	PaymentStatus   PaymentStatus
	AmountPaidCents int64
	PaymentRef      *string
}

type Review struct {
	ID      uuid.UUID
	EventID uuid.UUID
	UserID  uuid.UUID
	Rating  int
	Comment string

	CreatedAt time.Time
}

// Participation is the read-side answer to "is this user in this event".
// Zero values are returned when no record exists.
type Participation struct {
	IsParticipant bool
	JoinedAt      time.Time
	Attended      bool
	PaymentStatus PaymentStatus
}

// PaymentOutcome is a terminal result reported by the payment collaborator.
type PaymentOutcome string

const (
	PaymentOutcomeSuccess PaymentOutcome = "success"
	PaymentOutcomeFailure PaymentOutcome = "failure"
)

// EventFilter narrows browse reads. Zero fields are ignored.
type EventFilter struct {
	Category string
	Location string
	From     *time.Time
	To       *time.Time
}

// JoinedFilter selects a user's joined events by event date relative to now.
type JoinedFilter string

const (
	JoinedAll      JoinedFilter = ""
	JoinedUpcoming JoinedFilter = "upcoming"
	JoinedPast     JoinedFilter = "past"
)

type KeysetCursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// EventRepository covers event rows and the join relationship. All write
// operations are transactional; Join and Leave serialize per event so that
// concurrent last-seat joins cannot oversell capacity.
type EventRepository interface {
	CreateEvent(ctx context.Context, e *Event) error
	GetEvent(ctx context.Context, eventID uuid.UUID) (*Event, error)
	ListEvents(ctx context.Context, f EventFilter, limit int, cursor *KeysetCursor) ([]Event, *KeysetCursor, error)
	ListHostEvents(ctx context.Context, hostID uuid.UUID, limit int, cursor *KeysetCursor) ([]Event, *KeysetCursor, error)
	CancelEvent(ctx context.Context, traceID string, eventID uuid.UUID) error

	Join(ctx context.Context, traceID string, eventID, userID uuid.UUID) (*Participant, *Event, error)
	Leave(ctx context.Context, traceID string, eventID, userID uuid.UUID) error
	ReconcilePaymentOutcome(ctx context.Context, traceID string, outcome PaymentOutcome, eventID, userID uuid.UUID, amountCents int64, paymentRef string) error

	GetParticipation(ctx context.Context, eventID, userID uuid.UUID) (Participation, error)
	ListParticipants(ctx context.Context, eventID uuid.UUID, limit int, cursor *KeysetCursor) ([]Participant, *KeysetCursor, error)
	ListJoinedEvents(ctx context.Context, userID uuid.UUID, f JoinedFilter, limit int, cursor *KeysetCursor) ([]Event, *KeysetCursor, error)

	CreateReview(ctx context.Context, rv *Review) error
	ListReviews(ctx context.Context, eventID uuid.UUID, limit int, cursor *KeysetCursor) ([]Review, *KeysetCursor, error)
}

// LifecycleRepository is the sweeper's view of storage.
type LifecycleRepository interface {
	SweepExpiredEvents(ctx context.Context, now time.Time) (int64, error)
	DispatchReminders(ctx context.Context, now time.Time, lookahead time.Duration) (int64, error)
}

type CacheRepository interface {
	GetEventStatus(ctx context.Context, eventID uuid.UUID) (EventStatus, error)
	SetEventStatus(ctx context.Context, eventID uuid.UUID, status EventStatus) error
	InvalidateEventStatus(ctx context.Context, eventID uuid.UUID) error

	AllowRequest(ctx context.Context, ip string, limit int, window time.Duration) (bool, error)
}
