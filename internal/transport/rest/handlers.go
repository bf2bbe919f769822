package rest

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gatherly/lifecycle-service/internal/domain"
	appCtx "github.com/gatherly/lifecycle-service/internal/pkg/context"
	"github.com/gatherly/lifecycle-service/internal/service"
	"github.com/gatherly/lifecycle-service/internal/transport/rest/response"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
)

type Handler struct {
	svc *service.ParticipationService
}

func NewHandler(svc *service.ParticipationService) *Handler {
	return &Handler{svc: svc}
}

// eventJSON is the wire shape of an event. Status is the effective status;
// the stored value is an implementation detail callers never see.
type eventJSON struct {
	ID               uuid.UUID `json:"id"`
	HostID           uuid.UUID `json:"host_id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Category         string    `json:"category"`
	Location         string    `json:"location"`
	Latitude         *float64  `json:"latitude,omitempty"`
	Longitude        *float64  `json:"longitude,omitempty"`
	Date             time.Time `json:"date"`
	MaxParticipants  int       `json:"max_participants"`
	PriceCents       int64     `json:"price_cents"`
	Status           string    `json:"status"`
	ParticipantCount int       `json:"participant_count"`
	CreatedAt        time.Time `json:"created_at"`
}

func toEventJSON(v service.EventView) eventJSON {
	return eventJSON{
		ID:               v.ID,
		HostID:           v.HostID,
		Title:            v.Title,
		Description:      v.Description,
		Category:         v.Category,
		Location:         v.Location,
		Latitude:         v.Latitude,
		Longitude:        v.Longitude,
		Date:             v.Date,
		MaxParticipants:  v.MaxParticipants,
		PriceCents:       v.PriceCents,
		Status:           string(v.EffectiveStatus),
		ParticipantCount: v.ParticipantCount,
		CreatedAt:        v.CreatedAt,
	}
}

func toEventListJSON(views []service.EventView) []eventJSON {
	out := make([]eventJSON, 0, len(views))
	for _, v := range views {
		out = append(out, toEventJSON(v))
	}
	return out
}

func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	auth, ok := GetAuth(r.Context())
	if !ok {
		fail(w, r, http.StatusUnauthorized, "auth.unauthorized", "unauthorized", nil)
		return
	}

	var req struct {
		Title           string   `json:"title"`
		Description     string   `json:"description"`
		Category        string   `json:"category"`
		Location        string   `json:"location"`
		Latitude        *float64 `json:"latitude"`
		Longitude       *float64 `json:"longitude"`
		Date            string   `json:"date"`
		MaxParticipants int      `json:"max_participants"`
		PriceCents      int64    `json:"price_cents"`
	}
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid body", nil)
		return
	}

	date, err := time.Parse(time.RFC3339, strings.TrimSpace(req.Date))
	if err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid date", map[string]string{
			"date": "must be RFC3339",
		})
		return
	}

	view, err := h.svc.CreateEvent(r.Context(), auth.UserID, service.CreateEventInput{
		Title:           req.Title,
		Description:     req.Description,
		Category:        req.Category,
		Location:        req.Location,
		Latitude:        req.Latitude,
		Longitude:       req.Longitude,
		Date:            date,
		MaxParticipants: req.MaxParticipants,
		PriceCents:      req.PriceCents,
	})
	if err != nil {
		handleErr(w, r, err)
		return
	}

	response.Data(w, http.StatusCreated, toEventJSON(view))
}

func (h *Handler) CancelEvent(w http.ResponseWriter, r *http.Request) {
	eventID, err := uuid.Parse(chi.URLParam(r, "eventID"))
	if err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid eventID", nil)
		return
	}
	auth, ok := GetAuth(r.Context())
	if !ok {
		fail(w, r, http.StatusUnauthorized, "auth.unauthorized", "unauthorized", nil)
		return
	}

	if err := h.svc.CancelEvent(r.Context(), traceID(r), eventID, auth.UserID, auth.Role); err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	eventID, err := uuid.Parse(chi.URLParam(r, "eventID"))
	if err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid eventID", nil)
		return
	}

	view, err := h.svc.GetEvent(r.Context(), eventID)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, toEventJSON(view))
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := parseLimit(q.Get("limit"))
	cur, err := decodeCursor(q.Get("cursor"))
	if err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid cursor", nil)
		return
	}

	f := domain.EventFilter{
		Category: strings.TrimSpace(q.Get("category")),
		Location: strings.TrimSpace(q.Get("location")),
	}
	if s := strings.TrimSpace(q.Get("from")); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			fail(w, r, http.StatusBadRequest, "request.invalid", "invalid from", nil)
			return
		}
		tt := t.UTC()
		f.From = &tt
	}
	if s := strings.TrimSpace(q.Get("to")); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			fail(w, r, http.StatusBadRequest, "request.invalid", "invalid to", nil)
			return
		}
		tt := t.UTC()
		f.To = &tt
	}

	items, next, err := h.svc.ListEvents(r.Context(), f, limit, cur)
	if err != nil {
		handleErr(w, r, err)
		return
	}

	response.Data(w, http.StatusOK, map[string]any{
		"items":       toEventListJSON(items),
		"next_cursor": encodeCursor(next),
	})
}

func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	eventID, err := uuid.Parse(chi.URLParam(r, "eventID"))
	if err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid eventID", map[string]string{
			"event_id": "must be a valid uuid",
		})
		return
	}
	auth, ok := GetAuth(r.Context())
	if !ok {
		fail(w, r, http.StatusUnauthorized, "auth.unauthorized", "unauthorized", nil)
		return
	}

	p, view, err := h.svc.Join(r.Context(), traceID(r), eventID, auth.UserID)
	if err != nil {
		handleErr(w, r, err)
		return
	}

	response.Data(w, http.StatusCreated, map[string]any{
		"event_id":       p.EventID,
		"user_id":        p.UserID,
		"joined_at":      p.JoinedAt,
		"payment_status": p.PaymentStatus,
		"event_status":   view.EffectiveStatus,
	})
}

func (h *Handler) Leave(w http.ResponseWriter, r *http.Request) {
	eventID, err := uuid.Parse(chi.URLParam(r, "eventID"))
	if err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid eventID", nil)
		return
	}
	auth, ok := GetAuth(r.Context())
	if !ok {
		fail(w, r, http.StatusUnauthorized, "auth.unauthorized", "unauthorized", nil)
		return
	}

	if err := h.svc.Leave(r.Context(), traceID(r), eventID, auth.UserID); err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, map[string]string{"status": "left"})
}

func (h *Handler) GetMyParticipation(w http.ResponseWriter, r *http.Request) {
	eventID, err := uuid.Parse(chi.URLParam(r, "eventID"))
	if err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid eventID", nil)
		return
	}
	auth, ok := GetAuth(r.Context())
	if !ok {
		fail(w, r, http.StatusUnauthorized, "auth.unauthorized", "unauthorized", nil)
		return
	}

	p, err := h.svc.GetParticipation(r.Context(), eventID, auth.UserID)
	if err != nil {
		handleErr(w, r, err)
		return
	}

	body := map[string]any{
		"is_participant": p.IsParticipant,
	}
	if p.IsParticipant {
		body["joined_at"] = p.JoinedAt
		body["attended"] = p.Attended
		body["payment_status"] = p.PaymentStatus
	}
	response.Data(w, http.StatusOK, body)
}

func (h *Handler) Participants(w http.ResponseWriter, r *http.Request) {
	eventID, err := uuid.Parse(chi.URLParam(r, "eventID"))
	if err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid eventID", nil)
		return
	}

	limit := parseLimit(r.URL.Query().Get("limit"))
	cur, err := decodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid cursor", nil)
		return
	}

	items, next, err := h.svc.ListParticipants(r.Context(), eventID, limit, cur)
	if err != nil {
		handleErr(w, r, err)
		return
	}

	out := make([]map[string]any, 0, len(items))
	for _, p := range items {
		out = append(out, map[string]any{
			"user_id":   p.UserID,
			"joined_at": p.JoinedAt,
			"attended":  p.Attended,
		})
	}
	response.Data(w, http.StatusOK, map[string]any{
		"items":       out,
		"next_cursor": encodeCursor(next),
	})
}

func (h *Handler) MeEvents(w http.ResponseWriter, r *http.Request) {
	auth, ok := GetAuth(r.Context())
	if !ok {
		fail(w, r, http.StatusUnauthorized, "auth.unauthorized", "unauthorized", nil)
		return
	}

	limit := parseLimit(r.URL.Query().Get("limit"))
	cur, err := decodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid cursor", nil)
		return
	}

	var f domain.JoinedFilter
	switch v := strings.TrimSpace(r.URL.Query().Get("filter")); v {
	case "", "all":
		f = domain.JoinedAll
	case "upcoming":
		f = domain.JoinedUpcoming
	case "past":
		f = domain.JoinedPast
	default:
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid filter", map[string]string{
			"filter": "must be one of: all, upcoming, past",
		})
		return
	}

	items, next, err := h.svc.ListJoinedEvents(r.Context(), auth.UserID, f, limit, cur)
	if err != nil {
		handleErr(w, r, err)
		return
	}

	response.Data(w, http.StatusOK, map[string]any{
		"items":       toEventListJSON(items),
		"next_cursor": encodeCursor(next),
	})
}

func (h *Handler) HostEvents(w http.ResponseWriter, r *http.Request) {
	auth, ok := GetAuth(r.Context())
	if !ok {
		fail(w, r, http.StatusUnauthorized, "auth.unauthorized", "unauthorized", nil)
		return
	}

	limit := parseLimit(r.URL.Query().Get("limit"))
	cur, err := decodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid cursor", nil)
		return
	}

	items, next, err := h.svc.ListHostEvents(r.Context(), auth.UserID, limit, cur)
	if err != nil {
		handleErr(w, r, err)
		return
	}

	response.Data(w, http.StatusOK, map[string]any{
		"items":       toEventListJSON(items),
		"next_cursor": encodeCursor(next),
	})
}

func (h *Handler) CreateReview(w http.ResponseWriter, r *http.Request) {
	eventID, err := uuid.Parse(chi.URLParam(r, "eventID"))
	if err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid eventID", nil)
		return
	}
	auth, ok := GetAuth(r.Context())
	if !ok {
		fail(w, r, http.StatusUnauthorized, "auth.unauthorized", "unauthorized", nil)
		return
	}

	var req struct {
		Rating  int    `json:"rating"`
		Comment string `json:"comment"`
	}
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid body", nil)
		return
	}

	rv, err := h.svc.CreateReview(r.Context(), eventID, auth.UserID, req.Rating, req.Comment)
	if err != nil {
		handleErr(w, r, err)
		return
	}

	response.Data(w, http.StatusCreated, map[string]any{
		"id":       rv.ID,
		"event_id": rv.EventID,
		"rating":   rv.Rating,
		"comment":  rv.Comment,
	})
}

func (h *Handler) ListReviews(w http.ResponseWriter, r *http.Request) {
	eventID, err := uuid.Parse(chi.URLParam(r, "eventID"))
	if err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid eventID", nil)
		return
	}

	limit := parseLimit(r.URL.Query().Get("limit"))
	cur, err := decodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid cursor", nil)
		return
	}

	items, next, err := h.svc.ListReviews(r.Context(), eventID, limit, cur)
	if err != nil {
		handleErr(w, r, err)
		return
	}

	out := make([]map[string]any, 0, len(items))
	for _, rv := range items {
		out = append(out, map[string]any{
			"id":         rv.ID,
			"user_id":    rv.UserID,
			"rating":     rv.Rating,
			"comment":    rv.Comment,
			"created_at": rv.CreatedAt,
		})
	}
	response.Data(w, http.StatusOK, map[string]any{
		"items":       out,
		"next_cursor": encodeCursor(next),
	})
}

func handleErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		fail(w, r, http.StatusBadRequest, "request.invalid", err.Error(), nil)

	case errors.Is(err, domain.ErrEventNotFound):
		fail(w, r, http.StatusNotFound, "event.not_found", err.Error(), nil)
	case errors.Is(err, domain.ErrNotJoined):
		fail(w, r, http.StatusNotFound, "participation.not_found", err.Error(), nil)

	case errors.Is(err, domain.ErrEventFull):
		fail(w, r, http.StatusConflict, "event.full", err.Error(), nil)
	case errors.Is(err, domain.ErrEventNotOpen):
		fail(w, r, http.StatusConflict, "event.not_open", err.Error(), nil)
	case errors.Is(err, domain.ErrAlreadyJoined):
		fail(w, r, http.StatusConflict, "participation.already_joined", err.Error(), nil)
	case errors.Is(err, domain.ErrOwnEvent):
		fail(w, r, http.StatusConflict, "participation.own_event", err.Error(), nil)
	case errors.Is(err, domain.ErrAlreadyReviewed):
		fail(w, r, http.StatusConflict, "review.already_exists", err.Error(), nil)
	case errors.Is(err, domain.ErrNotCompleted):
		fail(w, r, http.StatusConflict, "review.event_not_completed", err.Error(), nil)
	case errors.Is(err, domain.ErrInvalidRating):
		fail(w, r, http.StatusUnprocessableEntity, "review.invalid_rating", err.Error(), nil)

	case errors.Is(err, domain.ErrForbidden):
		fail(w, r, http.StatusForbidden, "auth.forbidden", err.Error(), nil)

	default:
		// do not leak internal details
		fail(w, r, http.StatusInternalServerError, "internal", "internal error", nil)
	}
}

func fail(w http.ResponseWriter, r *http.Request, status int, code, message string, meta map[string]string) {
	reqID := appCtx.GetRequestID(r.Context())
	if reqID == "" {
		reqID = "no-request-id"
	}
	response.Fail(w, status, code, message, meta, reqID)
}

func traceID(r *http.Request) string {
	if rid := appCtx.GetRequestID(r.Context()); rid != "" {
		return rid
	}
	return "no-request-id"
}

func parseLimit(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 20
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 20
	}
	if n < 1 {
		return 1
	}
	if n > 100 {
		return 100
	}
	return n
}
