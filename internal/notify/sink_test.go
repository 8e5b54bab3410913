package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"anime-notifier/internal/models"
)

type sentMessage struct {
	target string
	userID string
	text   string
}

// fakeTransport records sends and fails the paths it is told to.
type fakeTransport struct {
	mu          sync.Mutex
	failTarget  bool
	failDirect  bool
	targetSends []sentMessage
	directSends []sentMessage
}

func (f *fakeTransport) SendToTarget(_ context.Context, target, userID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targetSends = append(f.targetSends, sentMessage{target: target, userID: userID, text: text})
	if f.failTarget {
		return errors.New("chat not found")
	}
	return nil
}

func (f *fakeTransport) SendToUser(_ context.Context, userID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.directSends = append(f.directSends, sentMessage{userID: userID, text: text})
	if f.failDirect {
		return errors.New("bot was blocked by the user")
	}
	return nil
}

func testNotification(target string) Notification {
	total := 12
	return Notification{
		UserID: "1001",
		Snapshot: &models.ScheduleSnapshot{
			ShowID:        42,
			Title:         "Test Show",
			TotalEpisodes: &total,
			SiteURL:       "https://anilist.co/anime/42",
		},
		Episode:       4,
		PrimaryTarget: target,
	}
}

func TestSink_PrimaryTargetSucceeds(t *testing.T) {
	transport := &fakeTransport{}
	sink := NewSink(transport, nil)

	result := sink.Deliver(context.Background(), testNotification("-100123"))

	assert.Equal(t, models.DeliveryResult{TargetUsed: models.TargetPrimary, Succeeded: true}, result)
	assert.Len(t, transport.targetSends, 1)
	assert.Empty(t, transport.directSends)
	assert.Equal(t, "-100123", transport.targetSends[0].target)
	assert.Equal(t, "1001", transport.targetSends[0].userID)
	assert.Contains(t, transport.targetSends[0].text, "Episode 4 of 12")
}

func TestSink_NoTargetGoesDirect(t *testing.T) {
	transport := &fakeTransport{}
	sink := NewSink(transport, nil)

	result := sink.Deliver(context.Background(), testNotification(""))

	assert.Equal(t, models.DeliveryResult{TargetUsed: models.TargetDirect, Succeeded: true}, result)
	assert.Empty(t, transport.targetSends)
	assert.Len(t, transport.directSends, 1)
}

func TestSink_FallsBackToDirect(t *testing.T) {
	transport := &fakeTransport{failTarget: true}
	core, logs := observer.New(zapcore.WarnLevel)
	sink := NewSink(transport, zap.New(core))

	result := sink.Deliver(context.Background(), testNotification("-100123"))

	assert.Equal(t, models.DeliveryResult{TargetUsed: models.TargetDirect, Succeeded: true}, result)
	assert.Len(t, transport.targetSends, 1)
	assert.Len(t, transport.directSends, 1)
	assert.Equal(t, 1, logs.FilterMessageSnippet("falling back").Len())
}

func TestSink_BothPathsFail(t *testing.T) {
	transport := &fakeTransport{failTarget: true, failDirect: true}
	core, logs := observer.New(zapcore.ErrorLevel)
	sink := NewSink(transport, zap.New(core))

	result := sink.Deliver(context.Background(), testNotification("-100123"))

	assert.False(t, result.Succeeded)
	assert.Len(t, transport.directSends, 1)

	entries := logs.FilterMessage("failed to deliver notification").All()
	if assert.Len(t, entries, 1) {
		errField, ok := entries[0].ContextMap()["error"].(string)
		assert.True(t, ok)
		assert.Contains(t, errField, models.ErrDeliveryFailed.Error())
		assert.Contains(t, errField, "chat not found")
		assert.Contains(t, errField, "bot was blocked")
	}
}

func TestSink_WhitespaceTargetIsAbsent(t *testing.T) {
	transport := &fakeTransport{}
	sink := NewSink(transport, nil)

	result := sink.Deliver(context.Background(), testNotification("   "))

	assert.Equal(t, models.TargetDirect, result.TargetUsed)
	assert.Empty(t, transport.targetSends)
}
