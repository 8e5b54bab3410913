package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anime-notifier/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.InitSchema(context.Background()))
	return db
}

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }

func TestWatchCreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewWatchRepository(newTestDB(t))

	entry := &models.WatchEntry{UserID: "100", ShowID: 42, ShowTitle: "Frieren", DeliveryTarget: "-1001"}
	require.NoError(t, repo.Create(ctx, entry))
	assert.NotZero(t, entry.ID)

	got, err := repo.Get(ctx, "100", 42)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, got.ID)
	assert.Equal(t, "Frieren", got.ShowTitle)
	assert.Equal(t, 0, got.LastNotifiedEpisode)
	assert.Equal(t, "-1001", got.DeliveryTarget)
	assert.Nil(t, got.LastCheckedAt)
}

func TestWatchCreateDuplicateConflicts(t *testing.T) {
	ctx := context.Background()
	repo := NewWatchRepository(newTestDB(t))

	require.NoError(t, repo.Create(ctx, &models.WatchEntry{UserID: "1", ShowID: 5}))
	err := repo.Create(ctx, &models.WatchEntry{UserID: "1", ShowID: 5})
	assert.ErrorIs(t, err, models.ErrConflict)

	// same show for a different user is fine
	require.NoError(t, repo.Create(ctx, &models.WatchEntry{UserID: "2", ShowID: 5}))

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestWatchGetMissing(t *testing.T) {
	repo := NewWatchRepository(newTestDB(t))
	_, err := repo.Get(context.Background(), "nobody", 1)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestWatchListByUser(t *testing.T) {
	ctx := context.Background()
	repo := NewWatchRepository(newTestDB(t))

	require.NoError(t, repo.Create(ctx, &models.WatchEntry{UserID: "a", ShowID: 1}))
	require.NoError(t, repo.Create(ctx, &models.WatchEntry{UserID: "a", ShowID: 2}))
	require.NoError(t, repo.Create(ctx, &models.WatchEntry{UserID: "b", ShowID: 1}))

	entries, err := repo.ListByUser(ctx, "a")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 2, entries[0].ShowID)

	none, err := repo.ListByUser(ctx, "c")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestWatchAdvanceEpisodeOnlyMovesForward(t *testing.T) {
	ctx := context.Background()
	repo := NewWatchRepository(newTestDB(t))
	require.NoError(t, repo.Create(ctx, &models.WatchEntry{UserID: "u", ShowID: 9, LastNotifiedEpisode: 3}))

	advanced, err := repo.AdvanceEpisode(ctx, "u", 9, 3)
	require.NoError(t, err)
	assert.False(t, advanced)

	advanced, err = repo.AdvanceEpisode(ctx, "u", 9, 4)
	require.NoError(t, err)
	assert.True(t, advanced)

	advanced, err = repo.AdvanceEpisode(ctx, "u", 9, 2)
	require.NoError(t, err)
	assert.False(t, advanced)

	got, err := repo.Get(ctx, "u", 9)
	require.NoError(t, err)
	assert.Equal(t, 4, got.LastNotifiedEpisode)
	assert.NotNil(t, got.LastCheckedAt)
}

func TestWatchSetEpisodeAndTarget(t *testing.T) {
	ctx := context.Background()
	repo := NewWatchRepository(newTestDB(t))
	require.NoError(t, repo.Create(ctx, &models.WatchEntry{UserID: "u", ShowID: 1, LastNotifiedEpisode: 5}))
	require.NoError(t, repo.Create(ctx, &models.WatchEntry{UserID: "u", ShowID: 2}))

	require.NoError(t, repo.SetEpisode(ctx, "u", 1, 2))
	got, err := repo.Get(ctx, "u", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, got.LastNotifiedEpisode)

	assert.ErrorIs(t, repo.SetEpisode(ctx, "u", 99, 1), models.ErrNotFound)
	assert.Error(t, repo.SetEpisode(ctx, "u", 1, -1))

	n, err := repo.SetDeliveryTarget(ctx, "u", "-100200")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	got, err = repo.Get(ctx, "u", 2)
	require.NoError(t, err)
	assert.Equal(t, "-100200", got.DeliveryTarget)

	_, err = repo.SetDeliveryTarget(ctx, "u", "")
	require.NoError(t, err)
	got, err = repo.Get(ctx, "u", 2)
	require.NoError(t, err)
	assert.False(t, got.HasTarget())
}

func TestWatchDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewWatchRepository(newTestDB(t))
	require.NoError(t, repo.Create(ctx, &models.WatchEntry{UserID: "u", ShowID: 1}))

	require.NoError(t, repo.Delete(ctx, "u", 1))
	assert.ErrorIs(t, repo.Delete(ctx, "u", 1), models.ErrNotFound)
	_, err := repo.Get(ctx, "u", 1)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

// For any sequence of advance attempts, the stored episode equals the
// maximum of the starting value and every attempted episode.
func TestWatchAdvanceEpisodeMonotonic(t *testing.T) {
	ctx := context.Background()
	repo := NewWatchRepository(newTestDB(t))

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	run := 0
	properties.Property("last_notified_episode never decreases", prop.ForAll(
		func(start int, attempts []int) bool {
			run++
			userID := fmt.Sprintf("prop-%d", run)
			if err := repo.Create(ctx, &models.WatchEntry{UserID: userID, ShowID: 1, LastNotifiedEpisode: start}); err != nil {
				return false
			}

			want := start
			prev := start
			for _, ep := range attempts {
				if _, err := repo.AdvanceEpisode(ctx, userID, 1, ep); err != nil {
					return false
				}
				if ep > want {
					want = ep
				}
				got, err := repo.Get(ctx, userID, 1)
				if err != nil || got.LastNotifiedEpisode < prev {
					return false
				}
				prev = got.LastNotifiedEpisode
			}
			return prev == want
		},
		gen.IntRange(0, 50),
		gen.SliceOfN(8, gen.IntRange(0, 60)),
	))

	properties.TestingRun(t)
}

func TestScheduleCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewScheduleCacheRepository(newTestDB(t))

	_, ok, err := repo.GetSnapshot(ctx, 42)
	require.NoError(t, err)
	assert.False(t, ok)

	fetched := time.Date(2024, 10, 5, 12, 0, 0, 0, time.UTC)
	snap := &models.ScheduleSnapshot{
		ShowID:              42,
		Title:               "Frieren",
		TotalEpisodes:       intPtr(28),
		Status:              "RELEASING",
		NextEpisodeNumber:   intPtr(4),
		NextEpisodeAiringAt: int64Ptr(1728129600),
		CoverImage:          "https://img",
		SiteURL:             "https://anilist.co/anime/42",
		FetchedAt:           fetched,
	}
	require.NoError(t, repo.UpsertSnapshot(ctx, snap))

	got, ok, err := repo.GetSnapshot(ctx, 42)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Frieren", got.Title)
	assert.Equal(t, 28, *got.TotalEpisodes)
	assert.Equal(t, 4, *got.NextEpisodeNumber)
	assert.Equal(t, int64(1728129600), *got.NextEpisodeAiringAt)
	assert.True(t, fetched.Equal(got.FetchedAt))

	// overwrite with a finished show: optional fields must clear
	finished := &models.ScheduleSnapshot{ShowID: 42, Title: "Frieren", Status: "FINISHED", FetchedAt: fetched.Add(time.Hour)}
	require.NoError(t, repo.UpsertSnapshot(ctx, finished))

	got, ok, err = repo.GetSnapshot(ctx, 42)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "FINISHED", got.Status)
	assert.Nil(t, got.TotalEpisodes)
	assert.False(t, got.HasNextEpisode())
	assert.True(t, fetched.Add(time.Hour).Equal(got.FetchedAt))
}

func TestRebind(t *testing.T) {
	pg := &DB{dialect: DialectPostgres}
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", pg.rebind("SELECT * FROM t WHERE a = ? AND b = ?"))

	lite := &DB{dialect: DialectSQLite}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("oracle", "x")
	assert.Error(t, err)
}

func TestInitSchemaIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.InitSchema(context.Background()))
}

func TestBackupTo(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	require.NoError(t, NewWatchRepository(db).Create(ctx, &models.WatchEntry{UserID: "u", ShowID: 1}))

	target := filepath.Join(t.TempDir(), "backup.db")
	require.NoError(t, db.BackupTo(ctx, target))

	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	copyDB, err := NewSQLiteDB(target)
	require.NoError(t, err)
	defer copyDB.Close()
	entries, err := NewWatchRepository(copyDB).ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
