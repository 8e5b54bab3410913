package service

import (
	"context"

	"anime-notifier/internal/models"
	"anime-notifier/internal/notify"
)

// ScheduleSource fetches live schedules from the upstream catalog.
type ScheduleSource interface {
	FetchSchedule(ctx context.Context, showID int) (*models.ScheduleSnapshot, error)
}

// SnapshotStore persists schedule snapshots by show id. Upserts replace the
// whole snapshot atomically.
type SnapshotStore interface {
	GetSnapshot(ctx context.Context, showID int) (*models.ScheduleSnapshot, bool, error)
	UpsertSnapshot(ctx context.Context, snap *models.ScheduleSnapshot) error
}

// WatchStore is the watch state the reconciler reads and advances.
type WatchStore interface {
	ListAll(ctx context.Context) ([]models.WatchEntry, error)
	AdvanceEpisode(ctx context.Context, userID string, showID, episode int) (bool, error)
}

// ScheduleProvider resolves schedules for the reconciler.
type ScheduleProvider interface {
	GetSchedule(ctx context.Context, showID int) (*models.ScheduleSnapshot, error)
	Refresh(ctx context.Context, showID int) (*models.ScheduleSnapshot, error)
	Store(ctx context.Context, snap *models.ScheduleSnapshot) error
}

// Notifier delivers one episode alert. Failures are reported in the result,
// not as errors.
type Notifier interface {
	Deliver(ctx context.Context, n notify.Notification) models.DeliveryResult
}

// PassRunner runs one reconciliation pass.
type PassRunner interface {
	RunPass(ctx context.Context) (*PassResult, error)
}
