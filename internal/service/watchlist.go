package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"anime-notifier/internal/models"
)

// WatchlistStore is the subset of the watch store used by user actions.
type WatchlistStore interface {
	Create(ctx context.Context, entry *models.WatchEntry) error
	Get(ctx context.Context, userID string, showID int) (*models.WatchEntry, error)
	ListByUser(ctx context.Context, userID string) ([]models.WatchEntry, error)
	SetEpisode(ctx context.Context, userID string, showID, episode int) error
	SetDeliveryTarget(ctx context.Context, userID, target string) (int64, error)
	Delete(ctx context.Context, userID string, showID int) error
}

// ScheduleLookup resolves schedules for user-facing views.
type ScheduleLookup interface {
	GetSchedule(ctx context.Context, showID int) (*models.ScheduleSnapshot, error)
	GetCached(ctx context.Context, showID int) (*models.ScheduleSnapshot, bool, error)
}

// WatchView is a watch entry joined with its last known schedule.
type WatchView struct {
	Entry    models.WatchEntry        `json:"entry"`
	Schedule *models.ScheduleSnapshot `json:"schedule,omitempty"`
}

// Watchlist manages users' watch entries
type Watchlist struct {
	store     WatchlistStore
	schedules ScheduleLookup
	logger    *zap.Logger
}

// NewWatchlist creates a new Watchlist
func NewWatchlist(store WatchlistStore, schedules ScheduleLookup, logger *zap.Logger) *Watchlist {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watchlist{store: store, schedules: schedules, logger: logger}
}

// Add starts watching a show for a user. The show must exist upstream; the
// lookup also warms the schedule cache. Returns models.ErrConflict when the
// user already watches the show.
func (w *Watchlist) Add(ctx context.Context, userID string, showID int, target string) (*models.WatchEntry, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	snap, err := w.schedules.GetSchedule(ctx, showID)
	if err != nil {
		return nil, fmt.Errorf("look up show %d: %w", showID, err)
	}

	entry := &models.WatchEntry{
		UserID:         userID,
		ShowID:         showID,
		ShowTitle:      snap.Title,
		DeliveryTarget: strings.TrimSpace(target),
	}
	if err := w.store.Create(ctx, entry); err != nil {
		return nil, err
	}

	w.logger.Info("watch entry added",
		zap.String("user_id", userID),
		zap.Int("show_id", showID),
		zap.String("title", snap.Title),
	)
	return entry, nil
}

// Remove stops watching a show.
func (w *Watchlist) Remove(ctx context.Context, userID string, showID int) error {
	if err := w.store.Delete(ctx, userID, showID); err != nil {
		return err
	}
	w.logger.Info("watch entry removed", zap.String("user_id", userID), zap.Int("show_id", showID))
	return nil
}

// List returns a user's entries with whatever schedule is cached for each.
// Missing or unreadable cache rows leave Schedule nil.
func (w *Watchlist) List(ctx context.Context, userID string) ([]WatchView, error) {
	entries, err := w.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list watch entries: %w", err)
	}

	views := make([]WatchView, 0, len(entries))
	for _, entry := range entries {
		view := WatchView{Entry: entry}
		snap, ok, err := w.schedules.GetCached(ctx, entry.ShowID)
		if err != nil {
			w.logger.Warn("failed to read cached schedule", zap.Int("show_id", entry.ShowID), zap.Error(err))
		} else if ok {
			view.Schedule = snap
		}
		views = append(views, view)
	}
	return views, nil
}

// Upcoming returns the user's shows that have a scheduled next episode,
// soonest first.
func (w *Watchlist) Upcoming(ctx context.Context, userID string) ([]WatchView, error) {
	views, err := w.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	upcoming := views[:0]
	for _, v := range views {
		if v.Schedule.HasNextEpisode() {
			upcoming = append(upcoming, v)
		}
	}
	sort.SliceStable(upcoming, func(i, j int) bool {
		return *upcoming[i].Schedule.NextEpisodeAiringAt < *upcoming[j].Schedule.NextEpisodeAiringAt
	})
	return upcoming, nil
}

// SetChannel routes all of a user's notifications to target. It fails with
// models.ErrNotFound when the user watches nothing.
func (w *Watchlist) SetChannel(ctx context.Context, userID, target string) (int64, error) {
	n, err := w.store.SetDeliveryTarget(ctx, userID, strings.TrimSpace(target))
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("user %s has no watch entries: %w", userID, models.ErrNotFound)
	}
	return n, nil
}

// SetEpisode records the episode a user has already seen.
func (w *Watchlist) SetEpisode(ctx context.Context, userID string, showID, episode int) error {
	return w.store.SetEpisode(ctx, userID, showID, episode)
}

// Schedule returns the fresh schedule for a show.
func (w *Watchlist) Schedule(ctx context.Context, showID int) (*models.ScheduleSnapshot, error) {
	return w.schedules.GetSchedule(ctx, showID)
}
