package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RouterOptions holds the optional pieces of the router.
type RouterOptions struct {
	// RateLimiter throttles /api. Nil disables limiting.
	RateLimiter *RateLimiter

	// Metrics is served on /metrics when set.
	Metrics http.Handler
}

// NewRouter mounts the API on a chi router.
func NewRouter(api *API, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(api.logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", api.Health)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		if opts.RateLimiter != nil {
			r.Use(opts.RateLimiter.Middleware)
		}

		r.Get("/types", api.ListTypes)
		r.Route("/types/{name}", func(r chi.Router) {
			r.Get("/", api.GetType)
			r.Get("/connected", api.Connected)
			r.Get("/related", api.Related)
			r.Get("/connectable", api.Connectable)
		})

		r.Get("/items", api.Items)
		r.Get("/users", api.Users)
	})

	return r
}
