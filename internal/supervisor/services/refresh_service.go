// Epivault - Versioned Epidemiological Signal Storage and Transforms
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/epivault

package services

import (
	"context"
	"time"

	"github.com/tomtom215/epivault/internal/logging"
)

// CacheUpdater matches the database methods the refresher drives.
// Satisfied by *database.DB.
type CacheUpdater interface {
	UpdateCache(ctx context.Context) error
}

// MetadataRefreshService recomputes the metadata summary cache on an
// interval. A failed refresh is logged and retried at the next tick
// rather than crashing the service: readers fall back to live
// computation while the cache is stale, so a transient failure costs
// latency, not correctness.
type MetadataRefreshService struct {
	db       CacheUpdater
	interval time.Duration
	name     string
}

// NewMetadataRefreshService creates the refresher. interval should sit
// comfortably below the cache's configured max age.
func NewMetadataRefreshService(db CacheUpdater, interval time.Duration) *MetadataRefreshService {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &MetadataRefreshService{
		db:       db,
		interval: interval,
		name:     "metadata-refresher",
	}
}

// Serve implements suture.Service. Refreshes once immediately so a
// fresh process does not wait a full interval to populate the cache,
// then ticks until canceled.
func (s *MetadataRefreshService) Serve(ctx context.Context) error {
	s.refresh(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

func (s *MetadataRefreshService) refresh(ctx context.Context) {
	if err := s.db.UpdateCache(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		logging.Warn().Err(err).Msg("Metadata cache refresh failed; will retry next tick")
	}
}

// String implements fmt.Stringer; suture uses it in log messages.
func (s *MetadataRefreshService) String() string {
	return s.name
}
