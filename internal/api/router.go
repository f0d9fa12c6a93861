package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/harishm17/study-buddy/internal/api/middleware"
	"github.com/harishm17/study-buddy/internal/api/response"
	"github.com/harishm17/study-buddy/internal/metrics"
	"github.com/harishm17/study-buddy/pkg/models"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth    *mw.InternalAuth
	Metrics *metrics.Metrics

	HealthHandler http.HandlerFunc
	GetJobHandler http.HandlerFunc
	// JobHandlers has one POST handler per job type.
	JobHandlers map[models.JobType]http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger(deps.Metrics))
	r.Use(mw.Recovery)

	// Public
	r.Get("/health", orNotImplemented(deps.HealthHandler))
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	// Dispatcher deliveries and job polling
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)

		for _, jobType := range models.JobTypes {
			r.Post(jobType.Endpoint(), orNotImplemented(deps.JobHandlers[jobType]))
		}
		r.Get("/jobs/{jobID}", orNotImplemented(deps.GetJobHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
