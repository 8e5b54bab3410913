package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"anime-notifier/internal/timeutil"
)

const (
	backupPrefix      = "watch_state_"
	backupSuffix      = ".db"
	defaultMaxBackups = 4
)

// SnapshotWriter writes a consistent copy of the watch store to a file.
type SnapshotWriter interface {
	BackupTo(ctx context.Context, path string) error
}

// BackupService keeps rotating copies of the watch state database.
type BackupService struct {
	db         SnapshotWriter
	backupDir  string
	maxBackups int
	now        timeutil.Clock
	logger     *zap.Logger
}

// NewBackupService creates a new BackupService. maxBackups <= 0 keeps the last four.
func NewBackupService(db SnapshotWriter, backupDir string, maxBackups int, logger *zap.Logger) *BackupService {
	if maxBackups <= 0 {
		maxBackups = defaultMaxBackups
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BackupService{
		db:         db,
		backupDir:  backupDir,
		maxBackups: maxBackups,
		now:        timeutil.Now,
		logger:     logger,
	}
}

// Backup writes a new backup and prunes old ones. It returns the backup path.
func (b *BackupService) Backup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(b.backupDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := backupPrefix + b.now().Format("2006-01-02_150405") + backupSuffix
	backupPath := filepath.Join(b.backupDir, name)

	// VACUUM INTO refuses to overwrite
	if err := os.Remove(backupPath); err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to replace backup %s: %w", backupPath, err)
	}
	if err := b.db.BackupTo(ctx, backupPath); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}

	if err := b.CleanOldBackups(); err != nil {
		b.logger.Warn("failed to clean old backups", zap.Error(err))
	}
	return backupPath, nil
}

// GetLastBackupTime returns the modification time of the newest backup, or
// the zero time when none exist.
func (b *BackupService) GetLastBackupTime() (time.Time, error) {
	backups, err := b.listBackups()
	if err != nil {
		return time.Time{}, err
	}
	if len(backups) == 0 {
		return time.Time{}, nil
	}

	info, err := os.Stat(backups[len(backups)-1])
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to stat backup file: %w", err)
	}
	return info.ModTime(), nil
}

// CleanOldBackups removes all but the newest maxBackups backups.
func (b *BackupService) CleanOldBackups() error {
	backups, err := b.listBackups()
	if err != nil {
		return err
	}
	if len(backups) <= b.maxBackups {
		return nil
	}
	for _, backup := range backups[:len(backups)-b.maxBackups] {
		if err := os.Remove(backup); err != nil {
			return fmt.Errorf("failed to delete old backup %s: %w", backup, err)
		}
	}
	return nil
}

// listBackups returns backup files oldest first; names sort by timestamp.
func (b *BackupService) listBackups() ([]string, error) {
	entries, err := os.ReadDir(b.backupDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var backups []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && strings.HasPrefix(name, backupPrefix) && strings.HasSuffix(name, backupSuffix) {
			backups = append(backups, filepath.Join(b.backupDir, name))
		}
	}
	sort.Strings(backups)
	return backups, nil
}
