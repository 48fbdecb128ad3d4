// Package httpapi implements the REST API of the grouping service.
package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/rafaeljc/grouper/internal/event"
	"github.com/rafaeljc/grouper/internal/grouper"
	"github.com/rafaeljc/grouper/internal/groupingconfig"
	"github.com/rafaeljc/grouper/internal/store"
)

// defaultMaxBodyBytes bounds event payloads when the caller does not configure a limit.
const defaultMaxBodyBytes = 1 << 20

// GroupingService is the use-case surface consumed by the handlers.
// *grouper.Service implements it.
type GroupingService interface {
	GroupEvent(ctx context.Context, projectID int64, ev *event.Event) (*grouper.Result, error)
	ProjectConfig(ctx context.Context, projectID int64) (groupingconfig.GroupingConfig, error)
	ProjectOptions(ctx context.Context, projectID int64) (*store.ProjectOptions, error)
	SetProjectOption(ctx context.Context, projectID int64, key, value string) error
	DeleteProjectOption(ctx context.Context, projectID int64, key string) (bool, error)
	Configurations() []grouper.ConfigurationInfo
}

var _ GroupingService = (*grouper.Service)(nil)

// API holds the dependencies and the router of the REST API.
type API struct {
	// Router is the Chi multiplexer that handles HTTP requests.
	Router *chi.Mux

	grouping GroupingService

	// apiKeyHash is the hex SHA-256 of the accepted API key.
	apiKeyHash string

	// skipAuth disables authentication. Only for tests and local development.
	skipAuth bool

	maxBodyBytes int64
}

// Options configures an API.
type Options struct {
	APIKeyHash   string
	SkipAuth     bool
	MaxBodyBytes int64
}

// NewAPI creates a new API instance. It panics if svc is nil or if
// authentication is enabled without a key hash.
func NewAPI(svc GroupingService, opts Options) *API {
	if svc == nil {
		panic("httpapi: grouping service cannot be nil")
	}
	if !opts.SkipAuth && opts.APIKeyHash == "" {
		panic("httpapi: apiKeyHash cannot be empty when authentication is enabled")
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}

	api := &API{
		Router:       chi.NewRouter(),
		grouping:     svc,
		apiKeyHash:   opts.APIKeyHash,
		skipAuth:     opts.SkipAuth,
		maxBodyBytes: opts.MaxBodyBytes,
	}

	api.configureRoutes()
	return api
}

func (a *API) configureRoutes() {
	a.Router.Use(middleware.RequestID)
	a.Router.Use(middleware.RealIP)
	a.Router.Use(RequestLogger)
	a.Router.Use(Metrics)
	a.Router.Use(middleware.Recoverer)
	a.Router.Use(render.SetContentType(render.ContentTypeJSON))

	a.Router.Get("/health", a.handleHealthCheck)

	a.Router.Route("/api/v1", func(r chi.Router) {
		r.Use(a.authenticateAPIKey)

		r.Get("/grouping-configs", a.handleListConfigurations)

		r.Route("/projects/{projectID}", func(r chi.Router) {
			r.Use(scopeProject)

			r.Post("/events/grouping", a.handleGroupEvent)
			r.Get("/grouping-config", a.handleGetProjectConfig)

			r.Route("/options", func(r chi.Router) {
				r.Get("/", a.handleListOptions)
				r.Put("/{key}", a.handlePutOption)
				r.Delete("/{key}", a.handleDeleteOption)
			})
		})
	})
}

func (a *API) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{"status": "ok"})
}
