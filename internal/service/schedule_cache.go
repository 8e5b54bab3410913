package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"anime-notifier/internal/models"
	"anime-notifier/internal/timeutil"
)

// DefaultStaleness is how long a cached snapshot may be trusted.
const DefaultStaleness = time.Hour

// ScheduleCache is a time-bounded cache over the schedule source.
type ScheduleCache struct {
	source    ScheduleSource
	store     SnapshotStore
	staleness time.Duration
	now       timeutil.Clock
	logger    *zap.Logger
}

// NewScheduleCache creates a new ScheduleCache.
func NewScheduleCache(source ScheduleSource, store SnapshotStore, staleness time.Duration, clock timeutil.Clock, logger *zap.Logger) *ScheduleCache {
	if staleness <= 0 {
		staleness = DefaultStaleness
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleCache{
		source:    source,
		store:     store,
		staleness: staleness,
		now:       timeutil.OrDefault(clock),
		logger:    logger,
	}
}

// GetCached returns the stored snapshot without contacting the source, fresh or not.
func (c *ScheduleCache) GetCached(ctx context.Context, showID int) (*models.ScheduleSnapshot, bool, error) {
	snap, ok, err := c.store.GetSnapshot(ctx, showID)
	if err != nil {
		return nil, false, fmt.Errorf("read cached schedule for show %d: %w", showID, err)
	}
	return snap, ok, nil
}

// IsFresh reports whether snap may be used for notification decisions.
func (c *ScheduleCache) IsFresh(snap *models.ScheduleSnapshot) bool {
	if snap == nil {
		return false
	}
	return c.now().Sub(snap.FetchedAt) < c.staleness
}

// GetSchedule returns a fresh snapshot, fetching from the source when the
// cached one is missing or stale. A failed fetch is returned even when a
// stale snapshot exists.
func (c *ScheduleCache) GetSchedule(ctx context.Context, showID int) (*models.ScheduleSnapshot, error) {
	cached, ok, err := c.GetCached(ctx, showID)
	if err != nil {
		return nil, err
	}
	if ok && c.IsFresh(cached) {
		c.logger.Debug("schedule cache hit", zap.Int("show_id", showID), zap.Time("fetched_at", cached.FetchedAt))
		return cached, nil
	}

	c.logger.Debug("schedule cache miss", zap.Int("show_id", showID), zap.Bool("stale", ok))
	return c.Refresh(ctx, showID)
}

// Refresh fetches the schedule from the source and overwrites the cache.
func (c *ScheduleCache) Refresh(ctx context.Context, showID int) (*models.ScheduleSnapshot, error) {
	snap, err := c.source.FetchSchedule(ctx, showID)
	if err != nil {
		return nil, err
	}
	snap.FetchedAt = c.now()

	if err := c.Store(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// Store writes snap to the cache as-is.
func (c *ScheduleCache) Store(ctx context.Context, snap *models.ScheduleSnapshot) error {
	if err := c.store.UpsertSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("cache schedule for show %d: %w", snap.ShowID, err)
	}
	return nil
}
