package rest

import (
	"net/http"
	"time"

	"github.com/gatherly/lifecycle-service/internal/domain"
	"github.com/gatherly/lifecycle-service/internal/security"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type RouterDeps struct {
	Cache     domain.CacheRepository
	Handler   *Handler
	Verifier  security.AccessTokenVerifier
	JWTIssuer string

	RateLimitEnabled bool
	RateLimit        int
	RateLimitWindow  time.Duration
}

func NewRouter(d RouterDeps) http.Handler {
	if d.Cache == nil {
		panic("rest.NewRouter: nil cache")
	}
	if d.Handler == nil {
		panic("rest.NewRouter: nil handler")
	}
	if d.Verifier == nil {
		panic("rest.NewRouter: nil verifier")
	}

	r := chi.NewRouter()

	// Request ID + structured access log
	r.Use(RequestID)
	r.Use(HTTPLogger)

	// Panic recovery
	r.Use(middleware.Recoverer)

	// Cross-cutting
	if d.RateLimitEnabled {
		r.Use(RateLimitMiddleware(d.Cache, d.RateLimit, d.RateLimitWindow))
	}
	r.Use(SecurityHeaders)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(d.Verifier, AuthOptions{ExpectedIssuer: d.JWTIssuer}))

		// discovery
		r.Get("/events", d.Handler.ListEvents)
		r.Get("/events/{eventID}", d.Handler.GetEvent)

		// host operations
		r.Post("/events", d.Handler.CreateEvent)
		r.Post("/events/{eventID}/cancel", d.Handler.CancelEvent)

		// participation
		r.Post("/events/{eventID}/join", d.Handler.Join)
		r.Delete("/events/{eventID}/join", d.Handler.Leave)
		r.Get("/events/{eventID}/participation", d.Handler.GetMyParticipation)
		r.Get("/events/{eventID}/participants", d.Handler.Participants)

		// reviews
		r.Post("/events/{eventID}/reviews", d.Handler.CreateReview)
		r.Get("/events/{eventID}/reviews", d.Handler.ListReviews)

		// me
		r.Get("/me/events", d.Handler.MeEvents)
		r.Get("/me/hosted", d.Handler.HostEvents)
	})

	return r
}
