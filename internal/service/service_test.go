package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/gatherly/lifecycle-service/internal/domain"
	"github.com/gatherly/lifecycle-service/internal/service"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockRepo struct{ mock.Mock }

func (m *MockRepo) CreateEvent(ctx context.Context, e *domain.Event) error {
	return m.Called(ctx, e).Error(0)
}
func (m *MockRepo) GetEvent(ctx context.Context, eventID uuid.UUID) (*domain.Event, error) {
	args := m.Called(ctx, eventID)
	var ev *domain.Event
	if v := args.Get(0); v != nil {
		ev = v.(*domain.Event)
	}
	return ev, args.Error(1)
}
func (m *MockRepo) ListEvents(ctx context.Context, f domain.EventFilter, limit int, c *domain.KeysetCursor) ([]domain.Event, *domain.KeysetCursor, error) {
	args := m.Called(ctx, f, limit, c)
	return eventsArg(args.Get(0)), cursorArg(args.Get(1)), args.Error(2)
}
func (m *MockRepo) ListHostEvents(ctx context.Context, hostID uuid.UUID, limit int, c *domain.KeysetCursor) ([]domain.Event, *domain.KeysetCursor, error) {
	args := m.Called(ctx, hostID, limit, c)
	return eventsArg(args.Get(0)), cursorArg(args.Get(1)), args.Error(2)
}
func (m *MockRepo) CancelEvent(ctx context.Context, traceID string, eventID uuid.UUID) error {
	return m.Called(ctx, traceID, eventID).Error(0)
}
func (m *MockRepo) Join(ctx context.Context, traceID string, eventID, userID uuid.UUID) (*domain.Participant, *domain.Event, error) {
	args := m.Called(ctx, traceID, eventID, userID)
	var p *domain.Participant
	if v := args.Get(0); v != nil {
		p = v.(*domain.Participant)
	}
	var ev *domain.Event
	if v := args.Get(1); v != nil {
		ev = v.(*domain.Event)
	}
	return p, ev, args.Error(2)
}
func (m *MockRepo) Leave(ctx context.Context, traceID string, eventID, userID uuid.UUID) error {
	return m.Called(ctx, traceID, eventID, userID).Error(0)
}
func (m *MockRepo) ReconcilePaymentOutcome(ctx context.Context, traceID string, outcome domain.PaymentOutcome, eventID, userID uuid.UUID, amountCents int64, paymentRef string) error {
	return m.Called(ctx, traceID, outcome, eventID, userID, amountCents, paymentRef).Error(0)
}
func (m *MockRepo) GetParticipation(ctx context.Context, eventID, userID uuid.UUID) (domain.Participation, error) {
	args := m.Called(ctx, eventID, userID)
	return args.Get(0).(domain.Participation), args.Error(1)
}
func (m *MockRepo) ListParticipants(ctx context.Context, eventID uuid.UUID, limit int, c *domain.KeysetCursor) ([]domain.Participant, *domain.KeysetCursor, error) {
	args := m.Called(ctx, eventID, limit, c)
	var recs []domain.Participant
	if v := args.Get(0); v != nil {
		recs = v.([]domain.Participant)
	}
	return recs, cursorArg(args.Get(1)), args.Error(2)
}
func (m *MockRepo) ListJoinedEvents(ctx context.Context, userID uuid.UUID, f domain.JoinedFilter, limit int, c *domain.KeysetCursor) ([]domain.Event, *domain.KeysetCursor, error) {
	args := m.Called(ctx, userID, f, limit, c)
	return eventsArg(args.Get(0)), cursorArg(args.Get(1)), args.Error(2)
}
func (m *MockRepo) CreateReview(ctx context.Context, rv *domain.Review) error {
	return m.Called(ctx, rv).Error(0)
}
func (m *MockRepo) ListReviews(ctx context.Context, eventID uuid.UUID, limit int, c *domain.KeysetCursor) ([]domain.Review, *domain.KeysetCursor, error) {
	args := m.Called(ctx, eventID, limit, c)
	var recs []domain.Review
	if v := args.Get(0); v != nil {
		recs = v.([]domain.Review)
	}
	return recs, cursorArg(args.Get(1)), args.Error(2)
}

func eventsArg(v any) []domain.Event {
	if v == nil {
		return nil
	}
	return v.([]domain.Event)
}

func cursorArg(v any) *domain.KeysetCursor {
	if v == nil {
		return nil
	}
	return v.(*domain.KeysetCursor)
}

type MockCache struct{ mock.Mock }

func (m *MockCache) GetEventStatus(ctx context.Context, eventID uuid.UUID) (domain.EventStatus, error) {
	args := m.Called(ctx, eventID)
	return args.Get(0).(domain.EventStatus), args.Error(1)
}
func (m *MockCache) SetEventStatus(ctx context.Context, eventID uuid.UUID, status domain.EventStatus) error {
	return m.Called(ctx, eventID, status).Error(0)
}
func (m *MockCache) InvalidateEventStatus(ctx context.Context, eventID uuid.UUID) error {
	return m.Called(ctx, eventID).Error(0)
}
func (m *MockCache) AllowRequest(ctx context.Context, ip string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, ip, limit, window)
	return args.Bool(0), args.Error(1)
}

func futureEvent(hostID uuid.UUID, status domain.EventStatus) *domain.Event {
	return &domain.Event{
		ID:              uuid.New(),
		HostID:          hostID,
		Title:           "Dinner",
		Description:     "desc",
		Category:        "food",
		Location:        "Berlin",
		Date:            time.Now().Add(48 * time.Hour),
		MaxParticipants: 4,
		Status:          status,
	}
}

func TestParticipationService_Join_Success(t *testing.T) {
	repo := new(MockRepo)
	cache := new(MockCache)
	svc := service.NewParticipationService(repo, cache, nil)
	ctx := context.Background()

	userID := uuid.New()
	ev := futureEvent(uuid.New(), domain.StatusOpen)
	ev.ParticipantCount = 1
	p := &domain.Participant{ID: uuid.New(), EventID: ev.ID, UserID: userID, PaymentStatus: domain.PaymentCompleted}

	cache.On("GetEventStatus", ctx, ev.ID).Return(domain.EventStatus(""), domain.ErrCacheMiss)
	repo.On("Join", ctx, "trace", ev.ID, userID).Return(p, ev, nil)
	cache.On("SetEventStatus", ctx, ev.ID, domain.StatusOpen).Return(nil)

	got, view, err := svc.Join(ctx, "trace", ev.ID, userID)
	assert.NoError(t, err)
	assert.Equal(t, p, got)
	assert.Equal(t, domain.StatusOpen, view.EffectiveStatus)
	repo.AssertExpectations(t)
	cache.AssertExpectations(t)
}

func TestParticipationService_Join_CacheFastFailTerminal(t *testing.T) {
	repo := new(MockRepo)
	cache := new(MockCache)
	svc := service.NewParticipationService(repo, cache, nil)
	ctx := context.Background()

	eventID := uuid.New()
	cache.On("GetEventStatus", ctx, eventID).Return(domain.StatusCancelled, nil)

	_, _, err := svc.Join(ctx, "trace", eventID, uuid.New())
	assert.ErrorIs(t, err, domain.ErrEventNotOpen)
	repo.AssertNotCalled(t, "Join", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestParticipationService_Join_CachedOpenDoesNotShortCircuit(t *testing.T) {
	repo := new(MockRepo)
	cache := new(MockCache)
	svc := service.NewParticipationService(repo, cache, nil)
	ctx := context.Background()

	eventID := uuid.New()
	userID := uuid.New()

	// Cached "open" is only a hint; the repository still decides.
	cache.On("GetEventStatus", ctx, eventID).Return(domain.StatusOpen, nil)
	repo.On("Join", ctx, "trace", eventID, userID).Return(nil, nil, domain.ErrEventFull)

	_, _, err := svc.Join(ctx, "trace", eventID, userID)
	assert.ErrorIs(t, err, domain.ErrEventFull)
	repo.AssertExpectations(t)
}

func TestParticipationService_Leave_InvalidatesCache(t *testing.T) {
	repo := new(MockRepo)
	cache := new(MockCache)
	svc := service.NewParticipationService(repo, cache, nil)
	ctx := context.Background()

	eventID := uuid.New()
	userID := uuid.New()

	repo.On("Leave", ctx, "trace", eventID, userID).Return(nil)
	cache.On("InvalidateEventStatus", ctx, eventID).Return(nil)

	err := svc.Leave(ctx, "trace", eventID, userID)
	assert.NoError(t, err)
	repo.AssertExpectations(t)
	cache.AssertExpectations(t)
}

func TestParticipationService_CancelEvent_Guard(t *testing.T) {
	ctx := context.Background()
	hostID := uuid.New()
	otherID := uuid.New()

	t.Run("non-host is forbidden", func(t *testing.T) {
		repo := new(MockRepo)
		svc := service.NewParticipationService(repo, nil, nil)

		ev := futureEvent(hostID, domain.StatusOpen)
		repo.On("GetEvent", ctx, ev.ID).Return(ev, nil).Once()

		err := svc.CancelEvent(ctx, "trace", ev.ID, otherID, "user")
		assert.ErrorIs(t, err, domain.ErrForbidden)
		repo.AssertNotCalled(t, "CancelEvent", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("host may cancel", func(t *testing.T) {
		repo := new(MockRepo)
		svc := service.NewParticipationService(repo, nil, nil)

		ev := futureEvent(hostID, domain.StatusOpen)
		repo.On("GetEvent", ctx, ev.ID).Return(ev, nil).Once()
		repo.On("CancelEvent", ctx, "trace", ev.ID).Return(nil).Once()

		err := svc.CancelEvent(ctx, "trace", ev.ID, hostID, "user")
		assert.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("admin bypasses host check", func(t *testing.T) {
		repo := new(MockRepo)
		svc := service.NewParticipationService(repo, nil, nil)

		ev := futureEvent(hostID, domain.StatusOpen)
		repo.On("GetEvent", ctx, ev.ID).Return(ev, nil).Once()
		repo.On("CancelEvent", ctx, "trace", ev.ID).Return(nil).Once()

		err := svc.CancelEvent(ctx, "trace", ev.ID, otherID, "admin")
		assert.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("missing event propagates", func(t *testing.T) {
		repo := new(MockRepo)
		svc := service.NewParticipationService(repo, nil, nil)

		eventID := uuid.New()
		repo.On("GetEvent", ctx, eventID).Return(nil, domain.ErrEventNotFound).Once()

		err := svc.CancelEvent(ctx, "trace", eventID, hostID, "user")
		assert.ErrorIs(t, err, domain.ErrEventNotFound)
	})
}

func TestParticipationService_CreateEvent_Validation(t *testing.T) {
	ctx := context.Background()
	hostID := uuid.New()

	valid := func() service.CreateEventInput {
		return service.CreateEventInput{
			Title:           "Dinner",
			Description:     "A nice dinner",
			Category:        "food",
			Location:        "Berlin",
			Date:            time.Now().Add(48 * time.Hour),
			MaxParticipants: 4,
			PriceCents:      0,
		}
	}

	cases := []struct {
		name   string
		mutate func(*service.CreateEventInput)
	}{
		{"empty title", func(in *service.CreateEventInput) { in.Title = "  " }},
		{"empty description", func(in *service.CreateEventInput) { in.Description = "" }},
		{"past date", func(in *service.CreateEventInput) { in.Date = time.Now().Add(-time.Hour) }},
		{"zero capacity", func(in *service.CreateEventInput) { in.MaxParticipants = 0 }},
		{"negative price", func(in *service.CreateEventInput) { in.PriceCents = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := new(MockRepo)
			svc := service.NewParticipationService(repo, nil, nil)

			in := valid()
			tc.mutate(&in)

			_, err := svc.CreateEvent(ctx, hostID, in)
			assert.ErrorIs(t, err, service.ErrValidation)
			repo.AssertNotCalled(t, "CreateEvent", mock.Anything, mock.Anything)
		})
	}

	t.Run("valid input inserts with status open", func(t *testing.T) {
		repo := new(MockRepo)
		svc := service.NewParticipationService(repo, nil, nil)

		repo.On("CreateEvent", ctx, mock.MatchedBy(func(e *domain.Event) bool {
			return e.Status == domain.StatusOpen && e.HostID == hostID && e.Title == "Dinner"
		})).Return(nil).Once()

		view, err := svc.CreateEvent(ctx, hostID, valid())
		assert.NoError(t, err)
		assert.Equal(t, domain.StatusOpen, view.EffectiveStatus)
		repo.AssertExpectations(t)
	})
}

func TestParticipationService_CreateReview_RatingRange(t *testing.T) {
	ctx := context.Background()
	eventID := uuid.New()
	userID := uuid.New()

	for _, rating := range []int{0, -1, 6} {
		repo := new(MockRepo)
		svc := service.NewParticipationService(repo, nil, nil)

		_, err := svc.CreateReview(ctx, eventID, userID, rating, "great")
		assert.ErrorIs(t, err, domain.ErrInvalidRating)
		repo.AssertNotCalled(t, "CreateReview", mock.Anything, mock.Anything)
	}

	repo := new(MockRepo)
	svc := service.NewParticipationService(repo, nil, nil)
	repo.On("CreateReview", ctx, mock.MatchedBy(func(rv *domain.Review) bool {
		return rv.EventID == eventID && rv.UserID == userID && rv.Rating == 5
	})).Return(nil).Once()

	rv, err := svc.CreateReview(ctx, eventID, userID, 5, "  great  ")
	assert.NoError(t, err)
	assert.Equal(t, "great", rv.Comment)
	repo.AssertExpectations(t)
}

func TestParticipationService_GetEvent_ResolvesEffectiveStatus(t *testing.T) {
	repo := new(MockRepo)
	svc := service.NewParticipationService(repo, nil, nil)
	ctx := context.Background()

	// Stored open but already past: reads present completed.
	ev := futureEvent(uuid.New(), domain.StatusOpen)
	ev.Date = time.Now().Add(-2 * time.Hour)
	repo.On("GetEvent", ctx, ev.ID).Return(ev, nil)

	view, err := svc.GetEvent(ctx, ev.ID)
	assert.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, view.Status)
	assert.Equal(t, domain.StatusCompleted, view.EffectiveStatus)
}
