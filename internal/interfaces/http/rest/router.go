// Package rest exposes the family tree over a JSON HTTP API.
package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ersonp/kin-core/internal/application/handlers"
	"github.com/ersonp/kin-core/internal/infrastructure/config"
)

// Router creates and configures the HTTP router.
type Router struct {
	persons       *handlers.PersonHandler
	relationships *handlers.RelationshipHandler
	suggestions   *handlers.SuggestionHandler
	cfg           config.ServerConfig
	logger        *zap.Logger
}

// NewRouter creates a new router instance.
func NewRouter(
	persons *handlers.PersonHandler,
	relationships *handlers.RelationshipHandler,
	suggestions *handlers.SuggestionHandler,
	cfg config.ServerConfig,
	logger *zap.Logger,
) *Router {
	return &Router{
		persons:       persons,
		relationships: relationships,
		suggestions:   suggestions,
		cfg:           cfg,
		logger:        logger,
	}
}

// Setup configures all routes and middleware.
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(Logger(rt.logger))

	origins := rt.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	router.Get("/health", rt.healthCheck)
	router.Handle("/metrics", promhttp.Handler())

	limiter := NewRateLimiter(rt.cfg.RateLimit, rt.cfg.Burst)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(limiter.Middleware)

		r.Route("/persons", func(r chi.Router) {
			r.Get("/", rt.listPersons)
			r.Post("/", rt.createPerson)
			r.Get("/{personID}", rt.getPerson)
			r.Put("/{personID}", rt.updatePerson)
			r.Delete("/{personID}", rt.deletePerson)

			r.Get("/{personID}/relations", rt.listRelations)
			r.Post("/{personID}/relations", rt.relate)
			r.Get("/{personID}/suggestions", rt.getSuggestions)
			r.Post("/{personID}/suggestions/apply", rt.applySuggestions)
		})

		r.Route("/relationships", func(r chi.Router) {
			r.Get("/", rt.resolveAll)
			r.Post("/", rt.createRelationship)
			r.Post("/direction", rt.resolveDirection)
			r.Post("/validate", rt.validateRelationship)
			r.Delete("/{relationshipID}", rt.deleteRelationship)
		})
	})

	return router
}

func (rt *Router) healthCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// respondError writes err with its mapped status. Server-side failures are logged.
func (rt *Router) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		rt.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", chimiddleware.GetReqID(r.Context())),
			zap.Error(err))
	}
	writeJSON(w, status, errorBody(err, status))
}

// respondBadRequest rejects a malformed request.
func (rt *Router) respondBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
}
