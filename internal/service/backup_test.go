package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anime-notifier/internal/models"
	"anime-notifier/internal/repository"
)

func writeFile(path string) error {
	return os.WriteFile(path, []byte("backup"), 0o644)
}

func TestBackupService_WritesRealDatabaseCopy(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	require.NoError(t, repository.NewWatchRepository(db).Create(ctx, &models.WatchEntry{UserID: "1", ShowID: 42}))

	svc := NewBackupService(db, filepath.Join(t.TempDir(), "backups"), 4, nil)
	path, err := svc.Backup(ctx)
	require.NoError(t, err)

	copyDB, err := repository.NewSQLiteDB(path)
	require.NoError(t, err)
	defer copyDB.Close()
	entries, err := repository.NewWatchRepository(copyDB).ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 42, entries[0].ShowID)

	last, err := svc.GetLastBackupTime()
	require.NoError(t, err)
	assert.False(t, last.IsZero())
}

func TestBackupService_KeepsNewest(t *testing.T) {
	dir := t.TempDir()
	svc := NewBackupService(&fileWriter{}, dir, 2, nil)

	base := time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC)
	var paths []string
	for i := 0; i < 4; i++ {
		at := base.Add(time.Duration(i) * 24 * time.Hour)
		svc.now = func() time.Time { return at }
		path, err := svc.Backup(context.Background())
		require.NoError(t, err)
		paths = append(paths, path)
	}

	backups, err := svc.listBackups()
	require.NoError(t, err)
	assert.Equal(t, paths[2:], backups)
}

func TestBackupService_SameSecondOverwrites(t *testing.T) {
	svc := NewBackupService(&fileWriter{}, t.TempDir(), 4, nil)
	at := time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return at }

	first, err := svc.Backup(context.Background())
	require.NoError(t, err)
	second, err := svc.Backup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestBackupService_NoBackupsYet(t *testing.T) {
	svc := NewBackupService(&fileWriter{}, filepath.Join(t.TempDir(), "missing"), 0, nil)
	last, err := svc.GetLastBackupTime()
	require.NoError(t, err)
	assert.True(t, last.IsZero())
	assert.NoError(t, svc.CleanOldBackups())
}
