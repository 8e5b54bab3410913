package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"anime-notifier/internal/models"
	"anime-notifier/internal/notify"
	"anime-notifier/internal/repository"
)

var testNow = time.Unix(1_700_000_000, 0)

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }

// airingSnapshot builds a snapshot whose next episode aired airedAgo before testNow.
func airingSnapshot(showID, episode int, airedAgo time.Duration) *models.ScheduleSnapshot {
	return &models.ScheduleSnapshot{
		ShowID:              showID,
		Title:               fmt.Sprintf("Show %d", showID),
		Status:              "RELEASING",
		NextEpisodeNumber:   intPtr(episode),
		NextEpisodeAiringAt: int64Ptr(testNow.Add(-airedAgo).Unix()),
	}
}

// fakeSource serves canned schedules and counts fetches per show.
type fakeSource struct {
	mu        sync.Mutex
	snapshots map[int]*models.ScheduleSnapshot
	errs      map[int]error
	calls     map[int]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		snapshots: make(map[int]*models.ScheduleSnapshot),
		errs:      make(map[int]error),
		calls:     make(map[int]int),
	}
}

func (f *fakeSource) set(snap *models.ScheduleSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots[snap.ShowID] = snap
}

func (f *fakeSource) fail(showID int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[showID] = err
}

func (f *fakeSource) callCount(showID int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[showID]
}

func (f *fakeSource) FetchSchedule(_ context.Context, showID int) (*models.ScheduleSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[showID]++
	if err := f.errs[showID]; err != nil {
		return nil, err
	}
	snap, ok := f.snapshots[showID]
	if !ok {
		return nil, fmt.Errorf("show %d: %w", showID, models.ErrNotFound)
	}
	cp := *snap
	return &cp, nil
}

// memSnapshotStore is an in-memory SnapshotStore.
type memSnapshotStore struct {
	mu        sync.Mutex
	snapshots map[int]models.ScheduleSnapshot
	upsertErr error
}

func newMemSnapshotStore() *memSnapshotStore {
	return &memSnapshotStore{snapshots: make(map[int]models.ScheduleSnapshot)}
}

func (m *memSnapshotStore) GetSnapshot(_ context.Context, showID int) (*models.ScheduleSnapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snapshots[showID]
	if !ok {
		return nil, false, nil
	}
	return &snap, true, nil
}

func (m *memSnapshotStore) UpsertSnapshot(_ context.Context, snap *models.ScheduleSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.snapshots[snap.ShowID] = *snap
	return nil
}

// memWatchStore is an in-memory WatchStore with conditional advance.
type memWatchStore struct {
	mu      sync.Mutex
	entries []models.WatchEntry
	listErr error
	advErr  error
}

func (m *memWatchStore) add(userID string, showID, lastNotified int, target string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, models.WatchEntry{
		ID:                  int64(len(m.entries) + 1),
		UserID:              userID,
		ShowID:              showID,
		LastNotifiedEpisode: lastNotified,
		DeliveryTarget:      target,
	})
}

func (m *memWatchStore) episode(userID string, showID int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.UserID == userID && e.ShowID == showID {
			return e.LastNotifiedEpisode
		}
	}
	return -1
}

func (m *memWatchStore) ListAll(context.Context) ([]models.WatchEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := append([]models.WatchEntry(nil), m.entries...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memWatchStore) AdvanceEpisode(_ context.Context, userID string, showID, episode int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.advErr != nil {
		return false, m.advErr
	}
	for i := range m.entries {
		e := &m.entries[i]
		if e.UserID == userID && e.ShowID == showID && e.LastNotifiedEpisode < episode {
			e.LastNotifiedEpisode = episode
			checked := testNow
			e.LastCheckedAt = &checked
			return true, nil
		}
	}
	return false, nil
}

// recordingNotifier records every notification; users in failFor get
// Succeeded=false.
type recordingNotifier struct {
	mu      sync.Mutex
	sent    []notify.Notification
	failFor map[string]bool
}

func (r *recordingNotifier) Deliver(_ context.Context, n notify.Notification) models.DeliveryResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	if r.failFor[n.UserID] {
		return models.DeliveryResult{TargetUsed: models.TargetDirect, Succeeded: false}
	}
	if n.PrimaryTarget != "" {
		return models.DeliveryResult{TargetUsed: models.TargetPrimary, Succeeded: true}
	}
	return models.DeliveryResult{TargetUsed: models.TargetDirect, Succeeded: true}
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func (r *recordingNotifier) usersNotified() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var users []string
	for _, n := range r.sent {
		users = append(users, n.UserID)
	}
	sort.Strings(users)
	return users
}

func newTestDB(t *testing.T) *repository.DB {
	t.Helper()
	db, err := repository.NewSQLiteDB(filepath.Join(t.TempDir(), "watch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.InitSchema(context.Background()))
	return db
}
