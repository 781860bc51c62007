package api

import (
	"net/http"

	"github.com/onnwee/commons/internal/middleware"
)

// Handlers are the route groups served by NewRouter.
type Handlers struct {
	Profiles      *ProfileHandlers
	Organizations *OrganizationHandlers
	Projects      *ProjectHandlers
	Events        *EventHandlers
	Health        *HealthHandlers

	// Metrics serves GET /metrics when set.
	Metrics http.Handler

	// WriteLimit wraps registration and admin writes when set.
	WriteLimit func(http.Handler) http.Handler

	// Idempotency wraps the same writes, inside WriteLimit, when set.
	Idempotency func(http.Handler) http.Handler
}

// NewRouter registers every route. Authentication must run before the
// router so that writes see the user id.
func NewRouter(h Handlers) *http.ServeMux {
	mux := http.NewServeMux()

	write := func(fn http.HandlerFunc) http.Handler {
		var next http.Handler = fn
		if h.Idempotency != nil {
			next = h.Idempotency(next)
		}
		if h.WriteLimit != nil {
			next = h.WriteLimit(next)
		}
		return middleware.RequireAuth(next)
	}

	mux.HandleFunc("GET /health", h.Health.Health)
	mux.HandleFunc("GET /ready", h.Health.Ready)
	if h.Metrics != nil {
		mux.Handle("GET /metrics", h.Metrics)
	}

	mux.HandleFunc("GET /profiles/{username}", h.Profiles.GetProfile)
	mux.HandleFunc("GET /organizations/{slug}", h.Organizations.GetOrganization)
	mux.HandleFunc("GET /projects/{slug}", h.Projects.GetProject)

	mux.HandleFunc("GET /events/{slug}", h.Events.GetEvent)
	mux.HandleFunc("GET /events/{slug}/eligibility", h.Events.GetEligibility)
	mux.Handle("GET /events/{slug}/audit", middleware.RequireAuth(http.HandlerFunc(h.Events.GetAuditLog)))
	mux.Handle("POST /events/{slug}/participants", write(h.Events.Register))
	mux.Handle("DELETE /events/{slug}/participants", write(h.Events.Leave))
	mux.Handle("POST /events/{slug}/waiting-list", write(h.Events.JoinWaitingList))
	mux.Handle("POST /events/{slug}/publish", write(h.Events.Publish))
	mux.Handle("POST /events/{slug}/cancel", write(h.Events.Cancel))

	return mux
}
