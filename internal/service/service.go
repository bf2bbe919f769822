package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gatherly/lifecycle-service/internal/audit"
	"github.com/gatherly/lifecycle-service/internal/domain"
	"github.com/google/uuid"
)

// ParticipationService orchestrates every mutation of the join relationship
// and the host-facing event lifecycle. The repository owns transactional
// consistency; this layer owns eligibility ordering, role guards, and the
// stored-vs-effective status split on reads.
type ParticipationService struct {
	repo  domain.EventRepository
	cache domain.CacheRepository
	audit *audit.Logger

	now func() time.Time
}

func NewParticipationService(repo domain.EventRepository, cache domain.CacheRepository, aud *audit.Logger) *ParticipationService {
	return &ParticipationService{
		repo:  repo,
		cache: cache,
		audit: aud,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// EventView pairs the stored row with the status actually presented to
// callers. The two fields never share storage; EffectiveStatus is always
// computed through domain.ResolveStatus.
type EventView struct {
	domain.Event
	EffectiveStatus domain.EventStatus
}

func (s *ParticipationService) view(e domain.Event) EventView {
	return EventView{Event: e, EffectiveStatus: domain.ResolveStatus(&e, s.now())}
}

func isPrivileged(role string) bool {
	r := strings.ToLower(strings.TrimSpace(role))
	return r == "admin" || r == "moderator"
}

// Join reserves a seat. The cache fast-fail only short-circuits terminal
// events; every real decision happens inside the repository transaction
// against the stored status.
func (s *ParticipationService) Join(ctx context.Context, traceID string, eventID, userID uuid.UUID) (*domain.Participant, EventView, error) {
	if s.cache != nil {
		status, err := s.cache.GetEventStatus(ctx, eventID)
		if err == nil && status.Terminal() {
			return nil, EventView{}, fmt.Errorf("%w (status: %s)", domain.ErrEventNotOpen, status)
		}
		// cache miss or redis trouble: fall through to the database
	}

	p, ev, err := s.repo.Join(ctx, traceID, eventID, userID)
	if err != nil {
		return nil, EventView{}, err
	}

	if s.cache != nil {
		_ = s.cache.SetEventStatus(ctx, eventID, ev.Status)
	}
	if s.audit != nil {
		s.audit.JoinCreated(ctx, eventID, userID, string(ev.Status))
	}
	return p, s.view(*ev), nil
}

// Leave releases the caller's seat.
func (s *ParticipationService) Leave(ctx context.Context, traceID string, eventID, userID uuid.UUID) error {
	if err := s.repo.Leave(ctx, traceID, eventID, userID); err != nil {
		return err
	}
	if s.cache != nil {
		_ = s.cache.InvalidateEventStatus(ctx, eventID)
	}
	if s.audit != nil {
		s.audit.LeaveRecorded(ctx, eventID, userID)
	}
	return nil
}

func (s *ParticipationService) GetParticipation(ctx context.Context, eventID, userID uuid.UUID) (domain.Participation, error) {
	return s.repo.GetParticipation(ctx, eventID, userID)
}

func (s *ParticipationService) ListParticipants(ctx context.Context, eventID uuid.UUID, limit int, cursor *domain.KeysetCursor) ([]domain.Participant, *domain.KeysetCursor, error) {
	if _, err := s.repo.GetEvent(ctx, eventID); err != nil {
		return nil, nil, err
	}
	return s.repo.ListParticipants(ctx, eventID, limit, cursor)
}

func (s *ParticipationService) ListJoinedEvents(ctx context.Context, userID uuid.UUID, f domain.JoinedFilter, limit int, cursor *domain.KeysetCursor) ([]EventView, *domain.KeysetCursor, error) {
	events, next, err := s.repo.ListJoinedEvents(ctx, userID, f, limit, cursor)
	if err != nil {
		return nil, nil, err
	}
	return s.views(events), next, nil
}

// CreateEventInput carries the host-supplied fields.
type CreateEventInput struct {
	Title           string
	Description     string
	Category        string
	Location        string
	Latitude        *float64
	Longitude       *float64
	Date            time.Time
	MaxParticipants int
	PriceCents      int64
}

var ErrValidation = errors.New("validation failed")

func (in *CreateEventInput) validate(now time.Time) error {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Category = strings.TrimSpace(in.Category)
	in.Location = strings.TrimSpace(in.Location)

	switch {
	case in.Title == "" || len(in.Title) > 120:
		return fmt.Errorf("%w: title is required and must be <= 120 chars", ErrValidation)
	case in.Description == "" || len(in.Description) > 4000:
		return fmt.Errorf("%w: description is required and must be <= 4000 chars", ErrValidation)
	case in.Category == "" || len(in.Category) > 80:
		return fmt.Errorf("%w: category is required and must be <= 80 chars", ErrValidation)
	case in.Location == "" || len(in.Location) > 120:
		return fmt.Errorf("%w: location is required and must be <= 120 chars", ErrValidation)
	case in.Date.IsZero() || !in.Date.After(now):
		return fmt.Errorf("%w: date must be in the future", ErrValidation)
	case in.MaxParticipants < 1:
		return fmt.Errorf("%w: max_participants must be >= 1", ErrValidation)
	case in.PriceCents < 0:
		return fmt.Errorf("%w: price_cents must be >= 0 (0 means free)", ErrValidation)
	}
	return nil
}

func (s *ParticipationService) CreateEvent(ctx context.Context, hostID uuid.UUID, in CreateEventInput) (EventView, error) {
	if err := in.validate(s.now()); err != nil {
		return EventView{}, err
	}

	ev := &domain.Event{
		ID:              uuid.New(),
		HostID:          hostID,
		Title:           in.Title,
		Description:     in.Description,
		Category:        in.Category,
		Location:        in.Location,
		Latitude:        in.Latitude,
		Longitude:       in.Longitude,
		Date:            in.Date.UTC(),
		MaxParticipants: in.MaxParticipants,
		PriceCents:      in.PriceCents,
		Status:          domain.StatusOpen,
	}
	if err := s.repo.CreateEvent(ctx, ev); err != nil {
		return EventView{}, err
	}

	if s.cache != nil {
		_ = s.cache.SetEventStatus(ctx, ev.ID, ev.Status)
	}
	if s.audit != nil {
		s.audit.EventCreated(ctx, ev.ID, hostID)
	}
	return s.view(*ev), nil
}

// CancelEvent is restricted to the event's host and privileged roles.
func (s *ParticipationService) CancelEvent(ctx context.Context, traceID string, eventID, actorID uuid.UUID, role string) error {
	ev, err := s.repo.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	if ev.HostID != actorID && !isPrivileged(role) {
		return domain.ErrForbidden
	}

	if err := s.repo.CancelEvent(ctx, traceID, eventID); err != nil {
		return err
	}
	if s.cache != nil {
		_ = s.cache.SetEventStatus(ctx, eventID, domain.StatusCancelled)
	}
	if s.audit != nil {
		s.audit.EventCancelled(ctx, eventID, actorID)
	}
	return nil
}

func (s *ParticipationService) GetEvent(ctx context.Context, eventID uuid.UUID) (EventView, error) {
	ev, err := s.repo.GetEvent(ctx, eventID)
	if err != nil {
		return EventView{}, err
	}
	return s.view(*ev), nil
}

func (s *ParticipationService) ListEvents(ctx context.Context, f domain.EventFilter, limit int, cursor *domain.KeysetCursor) ([]EventView, *domain.KeysetCursor, error) {
	events, next, err := s.repo.ListEvents(ctx, f, limit, cursor)
	if err != nil {
		return nil, nil, err
	}
	return s.views(events), next, nil
}

func (s *ParticipationService) ListHostEvents(ctx context.Context, hostID uuid.UUID, limit int, cursor *domain.KeysetCursor) ([]EventView, *domain.KeysetCursor, error) {
	events, next, err := s.repo.ListHostEvents(ctx, hostID, limit, cursor)
	if err != nil {
		return nil, nil, err
	}
	return s.views(events), next, nil
}

func (s *ParticipationService) views(events []domain.Event) []EventView {
	out := make([]EventView, 0, len(events))
	for _, e := range events {
		out = append(out, s.view(e))
	}
	return out
}

// CreateReview validates the rating range before the repository enforces the
// completed-event and participant gates.
func (s *ParticipationService) CreateReview(ctx context.Context, eventID, userID uuid.UUID, rating int, comment string) (*domain.Review, error) {
	if rating < 1 || rating > 5 {
		return nil, domain.ErrInvalidRating
	}

	rv := &domain.Review{
		ID:      uuid.New(),
		EventID: eventID,
		UserID:  userID,
		Rating:  rating,
		Comment: strings.TrimSpace(comment),
	}
	if err := s.repo.CreateReview(ctx, rv); err != nil {
		return nil, err
	}
	if s.audit != nil {
		s.audit.ReviewCreated(ctx, eventID, userID, rating)
	}
	return rv, nil
}

func (s *ParticipationService) ListReviews(ctx context.Context, eventID uuid.UUID, limit int, cursor *domain.KeysetCursor) ([]domain.Review, *domain.KeysetCursor, error) {
	return s.repo.ListReviews(ctx, eventID, limit, cursor)
}
