package repository

import (
	"context"
	"database/sql"
	"errors"

	"anime-notifier/internal/models"
)

// ScheduleCacheRepository stores schedule snapshots keyed by show id.
type ScheduleCacheRepository struct {
	db *DB
}

// NewScheduleCacheRepository creates a new ScheduleCacheRepository.
func NewScheduleCacheRepository(db *DB) *ScheduleCacheRepository {
	return &ScheduleCacheRepository{db: db}
}

// GetSnapshot returns the cached snapshot for a show.
func (r *ScheduleCacheRepository) GetSnapshot(ctx context.Context, showID int) (*models.ScheduleSnapshot, bool, error) {
	var (
		snap     models.ScheduleSnapshot
		total    sql.NullInt64
		next     sql.NullInt64
		airingAt sql.NullInt64
	)
	err := r.db.queryRow(ctx, `
		SELECT show_id, title, total_episodes, status, next_episode, next_airing_at, cover_image, site_url, fetched_at
		FROM schedule_cache
		WHERE show_id = ?
	`, showID).Scan(
		&snap.ShowID, &snap.Title, &total, &snap.Status, &next, &airingAt,
		&snap.CoverImage, &snap.SiteURL, &snap.FetchedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if total.Valid {
		v := int(total.Int64)
		snap.TotalEpisodes = &v
	}
	if next.Valid && airingAt.Valid {
		v := int(next.Int64)
		at := airingAt.Int64
		snap.NextEpisodeNumber = &v
		snap.NextEpisodeAiringAt = &at
	}
	return &snap, true, nil
}

// UpsertSnapshot writes the whole snapshot in one statement.
func (r *ScheduleCacheRepository) UpsertSnapshot(ctx context.Context, snap *models.ScheduleSnapshot) error {
	var total, next, airingAt sql.NullInt64
	if snap.TotalEpisodes != nil {
		total = sql.NullInt64{Int64: int64(*snap.TotalEpisodes), Valid: true}
	}
	if snap.HasNextEpisode() {
		next = sql.NullInt64{Int64: int64(*snap.NextEpisodeNumber), Valid: true}
		airingAt = sql.NullInt64{Int64: *snap.NextEpisodeAiringAt, Valid: true}
	}

	_, err := r.db.exec(ctx, `
		INSERT INTO schedule_cache (show_id, title, total_episodes, status, next_episode, next_airing_at, cover_image, site_url, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (show_id) DO UPDATE SET
			title = excluded.title,
			total_episodes = excluded.total_episodes,
			status = excluded.status,
			next_episode = excluded.next_episode,
			next_airing_at = excluded.next_airing_at,
			cover_image = excluded.cover_image,
			site_url = excluded.site_url,
			fetched_at = excluded.fetched_at
	`, snap.ShowID, snap.Title, total, snap.Status, next, airingAt, snap.CoverImage, snap.SiteURL, snap.FetchedAt.UTC())
	return err
}
