// Epivault - Versioned Epidemiological Signal Storage and Transforms
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/epivault

// Package api provides the ops HTTP surface: health, metrics, and the
// cached metadata summary. Ingestion and series reads are library calls
// on the database package, not HTTP endpoints.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/epivault/internal/config"
	"github.com/tomtom215/epivault/internal/database"
	"github.com/tomtom215/epivault/internal/logging"
)

// Store is the slice of *database.DB the router serves from.
type Store interface {
	Ping(ctx context.Context) error
	ServeCached(ctx context.Context, maxAge time.Duration) ([]byte, error)
}

// Router builds the ops HTTP handler.
type Router struct {
	store Store
	cfg   *config.Config
}

// NewRouter creates the ops router.
func NewRouter(store Store, cfg *config.Config) *Router {
	return &Router{store: store, cfg: cfg}
}

// Handler returns the assembled chi handler.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(correlationID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(rt.cfg.Server.Timeout))

	r.Get("/healthz", rt.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/api/v1/metadata", rt.handleMetadata)

	return r
}

// correlationID attaches a correlation id to each request's context so
// downstream log lines can be tied back to the request.
func correlationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.ContextWithNewCorrelationID(r.Context())
		w.Header().Set("X-Correlation-ID", logging.CorrelationIDFromContext(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := rt.store.Ping(r.Context()); err != nil {
		logger := logging.Ctx(r.Context())
		logger.Error().Err(err).Msg("Health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMetadata serves the cached summary blob. An empty or stale cache
// is reported as unavailable rather than recomputed inline: the blob can
// take long enough to rebuild that an HTTP handler is the wrong place,
// and the background refresher already owns recomputation.
func (rt *Router) handleMetadata(w http.ResponseWriter, r *http.Request) {
	blob, err := rt.store.ServeCached(r.Context(), rt.cfg.Metadata.MaxAge)
	if err != nil {
		if errors.Is(err, database.ErrCacheEmpty) || errors.Is(err, database.ErrCacheStale) {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": "metadata cache not ready",
			})
			return
		}
		logger := logging.Ctx(r.Context())
		logger.Error().Err(err).Msg("Failed to read metadata cache")
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "internal error",
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(blob); err != nil {
		logger := logging.Ctx(r.Context())
		logger.Warn().Err(err).Msg("Failed to write metadata response")
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Warn().Err(err).Msg("Failed to encode JSON response")
	}
}
