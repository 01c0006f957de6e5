// Package server provides HTTP server initialization and lifecycle management
// for the p2p API.
package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/scrypster/p2p/internal/config"
	"github.com/scrypster/p2p/web/handlers"
)

// securityHeadersMiddleware adds security headers to all HTTP responses.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// Handler builds the full HTTP handler for app.
func Handler(cfg *config.Config, app *App) http.Handler {
	api := handlers.NewAPI(app.Registry, app.Host, app.Logger)
	api.SetBreaker(app.Guard)

	limiter := handlers.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	app.Logger.Debug("api rate limit", "per_second", float64(limiter.Limit()), "burst", cfg.RateLimit.Burst)

	opts := handlers.RouterOptions{RateLimiter: limiter}
	if cfg.Server.EnableMetrics {
		opts.Metrics = app.Metrics.Handler()
	}

	return securityHeadersMiddleware(handlers.NewRouter(api, opts))
}

// Start listens on cfg.Address() and serves until ctx is cancelled.
// Returns the actual address being listened on (useful for testing with port 0).
func Start(ctx context.Context, cfg *config.Config, app *App) (string, error) {
	if cfg.Types.Watch {
		if err := app.WatchTypes(cfg.Types.ConnectionTypesPath); err != nil {
			return "", err
		}
	}

	server := &http.Server{
		Addr:         cfg.Address(),
		Handler:      Handler(cfg, app),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return "", err
	}
	actualAddr := listener.Addr().String()

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			app.Logger.Error("server error", "error", err)
		}
	}()

	// Handle graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			app.Logger.Error("server shutdown error", "error", err)
		}
	}()

	return actualAddr, nil
}
