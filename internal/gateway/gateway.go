// ABOUTME: Gateway wiring: routes, verification modes per route, HTTP server lifecycle
// ABOUTME: Composes the auth middleware, stores, and rate limiter into one handler

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/2389/chat-gateway/internal/auth"
	"github.com/2389/chat-gateway/internal/config"
	"github.com/2389/chat-gateway/internal/ratelimit"
	"github.com/2389/chat-gateway/internal/store"
)

// DefaultAPIKeyLimit is the advisory usage limit assigned to newly issued
// principal API keys.
const DefaultAPIKeyLimit = 1000

// Gateway owns the HTTP surface of the service: it resolves a principal on
// every request via the auth middleware and invokes the stores with that
// principal's identity as a mandatory filter.
type Gateway struct {
	store        store.Store
	codec        *auth.Codec
	middleware   *auth.Middleware
	limiter      *ratelimit.Limiter
	logger       *slog.Logger
	autoRegister bool

	httpServer *http.Server
}

// New creates a Gateway from configuration and an opened store.
func New(cfg *config.Config, st store.Store, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	codec, err := auth.NewCodec(
		[]byte(cfg.Auth.JWTSecret),
		cfg.Auth.AccessTokenTTL,
		cfg.Auth.RefreshTokenTTL,
		cfg.Auth.APIKeyTTL,
	)
	if err != nil {
		return nil, fmt.Errorf("creating token codec: %w", err)
	}

	limiter := ratelimit.New(cfg.RateLimit.Window, cfg.RateLimit.MaxRequests)

	staticKeys := make(map[string]auth.StaticKey, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		staticKeys[k.Key] = auth.StaticKey{Name: k.Name, Disabled: k.Disabled}
	}

	g := &Gateway{
		store:        st,
		codec:        codec,
		middleware:   auth.NewMiddleware(st, codec, limiter, staticKeys, logger),
		limiter:      limiter,
		logger:       logger.With("component", "gateway"),
		autoRegister: cfg.Auth.AutoRegister,
	}

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return g, nil
}

// Handler builds the route table. Each route picks its verification mode
// here, at registration time; handlers never inspect credentials themselves.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()

	token := g.middleware.RequireToken
	dual := g.middleware.RequireDual
	admin := auth.RequireAdmin()

	// Health endpoint - no auth required
	mux.HandleFunc("/health", g.handleHealth)

	// Auth endpoints
	mux.HandleFunc("/api/auth/login", g.handleLogin)
	mux.HandleFunc("/api/auth/refresh", g.handleRefresh)
	mux.Handle("/api/auth/logout", token(http.HandlerFunc(g.handleLogout)))
	mux.Handle("/api/auth/validate", dual(http.HandlerFunc(g.handleValidate)))
	mux.Handle("/api/auth/me", token(http.HandlerFunc(g.handleMe)))
	mux.Handle("/api/auth/apikey", token(http.HandlerFunc(g.handleIssueAPIKey)))

	// Session endpoints serve both human (token) and machine (key) callers
	mux.Handle("/api/sessions", dual(http.HandlerFunc(g.handleSessions)))
	mux.Handle("/api/sessions/", dual(http.HandlerFunc(g.handleSessionRoutes)))

	// Admin endpoints
	mux.Handle("/api/admin/principals", token(admin(http.HandlerFunc(g.handleListPrincipals))))
	mux.Handle("/api/admin/principals/", token(admin(http.HandlerFunc(g.handlePrincipalRoutes))))

	return g.logRequests(mux)
}

// Serve runs the HTTP server until the context is cancelled, then shuts
// down gracefully.
func (g *Gateway) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		g.logger.Info("HTTP server listening", "addr", g.httpServer.Addr)
		if err := g.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	g.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := g.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}

	g.limiter.Close()
	return nil
}

// handleHealth handles GET /health requests.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusRecorder captures the response code for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// logRequests wraps the mux with structured request logging.
func (g *Gateway) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		level := slog.LevelInfo
		if rec.status >= 500 {
			level = slog.LevelError
		} else if rec.status >= 400 {
			level = slog.LevelWarn
		}

		g.logger.Log(r.Context(), level, "request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
		)
	})
}
