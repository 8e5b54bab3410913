package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"anime-notifier/internal/models"
	"anime-notifier/internal/notify"
	"anime-notifier/internal/timeutil"
)

// DefaultWindow is how long after airing an episode is still announced.
const DefaultWindow = 2 * time.Hour

// PassResult summarises one reconciliation pass.
type PassResult struct {
	PassID              string        `json:"pass_id"`
	StartedAt           time.Time     `json:"started_at"`
	Duration            time.Duration `json:"duration"`
	Entries             int           `json:"entries"`
	ShowsChecked        int           `json:"shows_checked"`
	ShowsSkipped        int           `json:"shows_skipped"`
	ShowsFailed         int           `json:"shows_failed"`
	NotificationsSent   int           `json:"notifications_sent"`
	NotificationsFailed int           `json:"notifications_failed"`
	EntriesAdvanced     int           `json:"entries_advanced"`
}

// ReconcilerOptions tunes a Reconciler.
type ReconcilerOptions struct {
	Window time.Duration
	// RefreshAfterPass refetches each show from the source once its watchers
	// are processed instead of re-storing the snapshot in hand.
	RefreshAfterPass bool
	Clock            timeutil.Clock
	Logger           *zap.Logger
}

// Reconciler compares watch state against airing schedules and notifies
// watchers of newly aired episodes.
type Reconciler struct {
	watches          WatchStore
	schedules        ScheduleProvider
	notifier         Notifier
	window           time.Duration
	refreshAfterPass bool
	now              timeutil.Clock
	logger           *zap.Logger
}

// NewReconciler creates a new Reconciler
func NewReconciler(watches WatchStore, schedules ScheduleProvider, notifier Notifier, opts ReconcilerOptions) *Reconciler {
	window := opts.Window
	if window <= 0 {
		window = DefaultWindow
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		watches:          watches,
		schedules:        schedules,
		notifier:         notifier,
		window:           window,
		refreshAfterPass: opts.RefreshAfterPass,
		now:              timeutil.OrDefault(opts.Clock),
		logger:           logger,
	}
}

// Window returns the configured notification window.
func (r *Reconciler) Window() time.Duration {
	return r.window
}

// InWindow reports whether an episode airing at airingAt (epoch seconds) is
// due for notification at now: it has aired and did so less than window ago.
func InWindow(now time.Time, airingAt int64, window time.Duration) bool {
	airedSecondsAgo := now.Unix() - airingAt
	return airedSecondsAgo >= 0 && airedSecondsAgo < int64(window/time.Second)
}

// RunPass runs one reconciliation pass over every watched show. Only a failure
// to read watch state fails the pass; per-show failures are logged and counted.
// Passes may overlap: entries already advanced by another pass are skipped.
func (r *Reconciler) RunPass(ctx context.Context) (*PassResult, error) {
	result := &PassResult{
		PassID:    uuid.NewString(),
		StartedAt: r.now(),
	}
	logger := r.logger.With(zap.String("pass_id", result.PassID))
	start := time.Now()
	defer func() { result.Duration = time.Since(start) }()

	entries, err := r.watches.ListAll(ctx)
	if err != nil {
		logger.Error("reconciliation pass aborted: cannot read watch state", zap.Error(err))
		return nil, fmt.Errorf("list watch entries: %w", err)
	}
	result.Entries = len(entries)

	showIDs, watchers := groupByShow(entries)
	logger.Info("reconciliation pass started",
		zap.Int("entries", len(entries)),
		zap.Int("shows", len(showIDs)),
	)

	for _, showID := range showIDs {
		if err := ctx.Err(); err != nil {
			logger.Warn("reconciliation pass interrupted", zap.Error(err))
			return result, err
		}
		r.reconcileShow(ctx, logger.With(zap.Int("show_id", showID)), showID, watchers[showID], result)
	}

	logger.Info("reconciliation pass completed",
		zap.Int("shows_checked", result.ShowsChecked),
		zap.Int("shows_skipped", result.ShowsSkipped),
		zap.Int("shows_failed", result.ShowsFailed),
		zap.Int("notified", result.NotificationsSent),
		zap.Int("delivery_failed", result.NotificationsFailed),
		zap.Int("advanced", result.EntriesAdvanced),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

// groupByShow returns distinct show ids in first-seen order and the entries per show.
func groupByShow(entries []models.WatchEntry) ([]int, map[int][]models.WatchEntry) {
	var order []int
	byShow := make(map[int][]models.WatchEntry)
	for _, entry := range entries {
		if _, seen := byShow[entry.ShowID]; !seen {
			order = append(order, entry.ShowID)
		}
		byShow[entry.ShowID] = append(byShow[entry.ShowID], entry)
	}
	return order, byShow
}

// reconcileShow runs fetch, window check, notify and advance for one show, in that order.
func (r *Reconciler) reconcileShow(ctx context.Context, logger *zap.Logger, showID int, watchers []models.WatchEntry, result *PassResult) {
	snap, err := r.schedules.GetSchedule(ctx, showID)
	if err != nil {
		result.ShowsFailed++
		switch {
		case errors.Is(err, models.ErrNotFound):
			logger.Warn("show not found upstream, skipping", zap.Error(err))
		case errors.Is(err, models.ErrUpstreamUnavailable):
			logger.Warn("schedule source unavailable, retrying next pass", zap.Error(err))
		default:
			logger.Error("failed to resolve schedule", zap.Error(err))
		}
		return
	}
	result.ShowsChecked++

	if r.showIsDue(logger, snap) {
		episode := *snap.NextEpisodeNumber
		for _, watcher := range watchers {
			r.notifyWatcher(ctx, logger, snap, episode, watcher, result)
		}
	} else {
		result.ShowsSkipped++
	}

	r.updateCache(ctx, logger, snap)
}

func (r *Reconciler) showIsDue(logger *zap.Logger, snap *models.ScheduleSnapshot) bool {
	if !snap.HasNextEpisode() {
		logger.Debug("no upcoming episode", zap.String("title", snap.Title), zap.String("status", snap.Status))
		return false
	}

	now := r.now()
	airingAt := *snap.NextEpisodeAiringAt
	if !InWindow(now, airingAt, r.window) {
		logger.Debug("episode outside notification window",
			zap.String("title", snap.Title),
			zap.Int("episode", *snap.NextEpisodeNumber),
			zap.Int64("aired_seconds_ago", now.Unix()-airingAt),
			zap.Duration("window", r.window),
		)
		return false
	}
	return true
}

// notifyWatcher delivers and then advances the entry. The entry advances even
// when delivery failed so an unreachable target is not retried forever.
func (r *Reconciler) notifyWatcher(ctx context.Context, logger *zap.Logger, snap *models.ScheduleSnapshot, episode int, watcher models.WatchEntry, result *PassResult) {
	if episode <= watcher.LastNotifiedEpisode {
		return
	}
	logger = logger.With(
		zap.String("user_id", watcher.UserID),
		zap.Int("episode", episode),
		zap.Int("last_notified", watcher.LastNotifiedEpisode),
	)

	delivery := r.notifier.Deliver(ctx, notify.Notification{
		UserID:        watcher.UserID,
		Snapshot:      snap,
		Episode:       episode,
		PrimaryTarget: watcher.DeliveryTarget,
	})
	if delivery.Succeeded {
		result.NotificationsSent++
		logger.Info("watcher notified", zap.String("target_used", delivery.TargetUsed))
	} else {
		result.NotificationsFailed++
		logger.Warn("notification not delivered, advancing anyway", zap.Error(models.ErrDeliveryFailed))
	}

	advanced, err := r.watches.AdvanceEpisode(ctx, watcher.UserID, watcher.ShowID, episode)
	if err != nil {
		logger.Error("failed to advance watch entry", zap.Error(err))
		return
	}
	if advanced {
		result.EntriesAdvanced++
	} else {
		logger.Debug("entry already at or past episode")
	}
}

func (r *Reconciler) updateCache(ctx context.Context, logger *zap.Logger, snap *models.ScheduleSnapshot) {
	if r.refreshAfterPass {
		if _, err := r.schedules.Refresh(ctx, snap.ShowID); err != nil {
			logger.Warn("failed to refresh cached schedule", zap.Error(err))
		}
		return
	}
	if err := r.schedules.Store(ctx, snap); err != nil {
		logger.Warn("failed to store cached schedule", zap.Error(err))
	}
}
