package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"anime-notifier/internal/models"
	"anime-notifier/internal/timeutil"
)

const watchColumns = `id, user_id, show_id, show_title, last_notified_episode, delivery_target, last_checked_at, created_at`

// WatchRepository handles WatchEntry database operations
type WatchRepository struct {
	db *DB
}

// NewWatchRepository creates a new WatchRepository
func NewWatchRepository(db *DB) *WatchRepository {
	return &WatchRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWatch(row rowScanner) (*models.WatchEntry, error) {
	var (
		entry   models.WatchEntry
		target  sql.NullString
		checked sql.NullTime
	)
	err := row.Scan(
		&entry.ID, &entry.UserID, &entry.ShowID, &entry.ShowTitle,
		&entry.LastNotifiedEpisode, &target, &checked, &entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	entry.DeliveryTarget = target.String
	if checked.Valid {
		t := checked.Time
		entry.LastCheckedAt = &t
	}
	return &entry, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Create inserts a new watch entry. It returns models.ErrConflict when the
// user already watches the show.
func (r *WatchRepository) Create(ctx context.Context, entry *models.WatchEntry) error {
	if entry.LastNotifiedEpisode < 0 {
		return fmt.Errorf("negative episode %d", entry.LastNotifiedEpisode)
	}
	now := timeutil.Now().UTC()
	err := r.db.queryRow(ctx, `
		INSERT INTO watch_entries (user_id, show_id, show_title, last_notified_episode, delivery_target, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, show_id) DO NOTHING
		RETURNING id
	`, entry.UserID, entry.ShowID, entry.ShowTitle, entry.LastNotifiedEpisode, nullString(entry.DeliveryTarget), now).Scan(&entry.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("user %s show %d: %w", entry.UserID, entry.ShowID, models.ErrConflict)
	}
	if err != nil {
		return err
	}
	entry.CreatedAt = now
	return nil
}

// Get retrieves the entry for a user and show.
func (r *WatchRepository) Get(ctx context.Context, userID string, showID int) (*models.WatchEntry, error) {
	row := r.db.queryRow(ctx, `
		SELECT `+watchColumns+`
		FROM watch_entries WHERE user_id = ? AND show_id = ?
	`, userID, showID)
	entry, err := scanWatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s show %d: %w", userID, showID, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ListAll retrieves every watch entry.
func (r *WatchRepository) ListAll(ctx context.Context) ([]models.WatchEntry, error) {
	return r.list(ctx, `SELECT `+watchColumns+` FROM watch_entries ORDER BY id`)
}

// ListByUser retrieves a user's watch entries, newest first.
func (r *WatchRepository) ListByUser(ctx context.Context, userID string) ([]models.WatchEntry, error) {
	return r.list(ctx, `SELECT `+watchColumns+` FROM watch_entries WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
}

func (r *WatchRepository) list(ctx context.Context, query string, args ...any) ([]models.WatchEntry, error) {
	rows, err := r.db.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.WatchEntry
	for rows.Next() {
		entry, err := scanWatch(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// AdvanceEpisode moves last_notified_episode forward to episode. It never moves
// it backwards: the row is only touched when the stored value is lower. The
// returned bool reports whether the row advanced.
func (r *WatchRepository) AdvanceEpisode(ctx context.Context, userID string, showID, episode int) (bool, error) {
	result, err := r.db.exec(ctx, `
		UPDATE watch_entries
		SET last_notified_episode = ?, last_checked_at = ?
		WHERE user_id = ? AND show_id = ? AND last_notified_episode < ?
	`, episode, timeutil.Now().UTC(), userID, showID, episode)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetEpisode records an explicit episode chosen by the user.
func (r *WatchRepository) SetEpisode(ctx context.Context, userID string, showID, episode int) error {
	if episode < 0 {
		return fmt.Errorf("negative episode %d", episode)
	}
	result, err := r.db.exec(ctx, `
		UPDATE watch_entries SET last_notified_episode = ? WHERE user_id = ? AND show_id = ?
	`, episode, userID, showID)
	if err != nil {
		return err
	}
	return requireAffected(result, userID, showID)
}

// SetDeliveryTarget points all of a user's entries at target. An empty
// target clears it. It returns the number of entries updated.
func (r *WatchRepository) SetDeliveryTarget(ctx context.Context, userID, target string) (int64, error) {
	result, err := r.db.exec(ctx, `
		UPDATE watch_entries SET delivery_target = ? WHERE user_id = ?
	`, nullString(target), userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Delete removes a user's entry for a show.
func (r *WatchRepository) Delete(ctx context.Context, userID string, showID int) error {
	result, err := r.db.exec(ctx, `DELETE FROM watch_entries WHERE user_id = ? AND show_id = ?`, userID, showID)
	if err != nil {
		return err
	}
	return requireAffected(result, userID, showID)
}

func requireAffected(result sql.Result, userID string, showID int) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("user %s show %d: %w", userID, showID, models.ErrNotFound)
	}
	return nil
}
