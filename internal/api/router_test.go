// Epivault - Versioned Epidemiological Signal Storage and Transforms
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/epivault

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tomtom215/epivault/internal/config"
	"github.com/tomtom215/epivault/internal/database"
)

type mockStore struct {
	pingErr  error
	blob     []byte
	cacheErr error
}

func (m *mockStore) Ping(ctx context.Context) error { return m.pingErr }

func (m *mockStore) ServeCached(ctx context.Context, maxAge time.Duration) ([]byte, error) {
	return m.blob, m.cacheErr
}

func testConfig() *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{Timeout: 30 * time.Second},
		Metadata: config.MetadataConfig{MaxAge: time.Hour},
	}
}

func TestHealthzOK(t *testing.T) {
	t.Parallel()

	handler := NewRouter(&mockStore{}, testConfig()).Handler()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-Correlation-ID") == "" {
		t.Error("missing correlation id header")
	}
}

func TestHealthzUnavailableWhenPingFails(t *testing.T) {
	t.Parallel()

	handler := NewRouter(&mockStore{pingErr: errors.New("closed")}, testConfig()).Handler()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	handler := NewRouter(&mockStore{}, testConfig()).Handler()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Error("empty metrics body")
	}
}

func TestMetadataServesCachedBlob(t *testing.T) {
	t.Parallel()

	blob := []byte(`[{"data_source":"src","signal":"cases"}]`)
	handler := NewRouter(&mockStore{blob: blob}, testConfig()).Handler()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/metadata", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != string(blob) {
		t.Errorf("body = %s, want raw cached blob", rec.Body.String())
	}
}

func TestMetadataUnavailableOnCacheMiss(t *testing.T) {
	t.Parallel()

	for _, cacheErr := range []error{database.ErrCacheEmpty, database.ErrCacheStale} {
		handler := NewRouter(&mockStore{cacheErr: cacheErr}, testConfig()).Handler()
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/metadata", nil))

		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%v: status = %d, want 503", cacheErr, rec.Code)
		}
	}
}

func TestMetadataInternalError(t *testing.T) {
	t.Parallel()

	handler := NewRouter(&mockStore{cacheErr: errors.New("io failure")}, testConfig()).Handler()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/metadata", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
