// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package api contains the REST API for keyhive.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	v1 "github.com/stacklok/keyhive/pkg/api/v1"
	"github.com/stacklok/keyhive/pkg/audit"
	"github.com/stacklok/keyhive/pkg/auth"
	"github.com/stacklok/keyhive/pkg/auth/oauth"
	"github.com/stacklok/keyhive/pkg/config"
	"github.com/stacklok/keyhive/pkg/logger"
	"github.com/stacklok/keyhive/pkg/sharing"
	"github.com/stacklok/keyhive/pkg/storage"
	"github.com/stacklok/keyhive/pkg/telemetry"
	"github.com/stacklok/keyhive/pkg/vault"
)

const (
	middlewareTimeout = 60 * time.Second
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 15 * time.Second
	writeTimeout      = 60 * time.Second
	idleTimeout       = 90 * time.Second
	shutdownTimeout   = 30 * time.Second

	// defaultBodyLimit caps request bodies on routers whose payloads are
	// always small. The passwords router sets its own caps because import
	// documents are legitimately large.
	defaultBodyLimit = 10 << 10
)

// Deps are the services the API serves.
type Deps struct {
	Auth      auth.Manager
	Vault     vault.Manager
	Shares    sharing.Manager
	Audit     storage.AuditStore
	Providers []oauth.Provider

	// Pinger is checked by the health endpoint, normally the database.
	Pinger interface {
		Ping(ctx context.Context) error
	}
}

// NewHandler assembles the full route tree.
func NewHandler(cfg *config.Config, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		loggingMiddleware,
		middleware.Recoverer,
		middleware.Timeout(middlewareTimeout),
		audit.RequestInfoMiddleware,
		telemetry.Middleware,
		corsMiddleware(cfg.FrontendOrigin),
		headersMiddleware,
	)

	authn := auth.Middleware(deps.Auth)
	authLimit := newRateLimiter(authRateBudget, rateWindow).middleware
	apiLimit := newRateLimiter(apiRateBudget, rateWindow).middleware
	bodyCap := maxBytesMiddleware(defaultBodyLimit)

	cookies := v1.CookieConfig{
		Secure:     cfg.Production(),
		MaxAge:     int(cfg.RefreshTokenTTL.Seconds()),
		RedirectTo: cfg.FrontendOrigin,
	}

	routers := map[string]http.Handler{
		"/api/health": v1.HealthcheckRouter(deps.Pinger),
		"/metrics":    telemetry.Handler(),
		"/api/auth": withMiddleware(
			v1.AuthRouter(deps.Auth, deps.Providers, cookies, authn),
			authLimit, bodyCap,
		),
		"/api/passwords": withMiddleware(
			v1.EntriesRouter(deps.Vault),
			authn, apiLimit,
		),
		"/api/collections": withMiddleware(
			v1.CollectionsRouter(deps.Vault),
			authn, apiLimit, bodyCap,
		),
		"/api/tags": withMiddleware(
			v1.TagsRouter(deps.Vault),
			authn, apiLimit, bodyCap,
		),
		"/api/shares": withMiddleware(
			v1.SharesRouter(deps.Shares, authn),
			apiLimit, bodyCap,
		),
		"/api/audit": withMiddleware(
			v1.AuditRouter(deps.Audit),
			authn, apiLimit,
		),
	}
	for prefix, router := range routers {
		r.Mount(prefix, router)
	}

	return r
}

// withMiddleware wraps a router with handler-level middleware, outermost
// first.
func withMiddleware(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Serve runs the API server until the context is cancelled, then shuts
// down gracefully.
func Serve(ctx context.Context, cfg *config.Config, deps Deps) error {
	srv := &http.Server{
		BaseContext:       func(net.Listener) context.Context { return ctx },
		Addr:              cfg.ListenAddr(),
		Handler:           NewHandler(cfg, deps),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("http server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("http server stopped")
	return nil
}
