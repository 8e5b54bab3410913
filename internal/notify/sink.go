package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"anime-notifier/internal/models"
)

// Transport sends rendered messages. Both paths fail independently.
type Transport interface {
	// SendToTarget posts to a channel-like target, mentioning userID.
	SendToTarget(ctx context.Context, target, userID, text string) error
	// SendToUser messages the user directly.
	SendToUser(ctx context.Context, userID, text string) error
}

// Notification is one episode alert for one watcher.
type Notification struct {
	UserID        string
	Snapshot      *models.ScheduleSnapshot
	Episode       int
	PrimaryTarget string
}

// Sink delivers notifications, falling back from the primary target to a
// direct message.
type Sink struct {
	transport Transport
	logger    *zap.Logger
}

// NewSink creates a new Sink
func NewSink(transport Transport, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{transport: transport, logger: logger}
}

// Deliver sends n to its primary target when set, otherwise or on failure
// directly to the user. It never returns an error: when both paths fail the
// result has Succeeded=false and the failure is logged.
func (s *Sink) Deliver(ctx context.Context, n Notification) models.DeliveryResult {
	logger := s.logger.With(
		zap.String("user_id", n.UserID),
		zap.Int("episode", n.Episode),
	)
	if n.Snapshot != nil {
		logger = logger.With(zap.Int("show_id", n.Snapshot.ShowID))
	}
	text := FormatEpisodeAlert(n.Snapshot, n.Episode)

	var primaryErr error
	if target := strings.TrimSpace(n.PrimaryTarget); target != "" {
		primaryErr = s.transport.SendToTarget(ctx, target, n.UserID, text)
		if primaryErr == nil {
			return models.DeliveryResult{TargetUsed: models.TargetPrimary, Succeeded: true}
		}
		logger.Warn("failed to deliver to target, falling back to direct message",
			zap.String("target", target),
			zap.Error(primaryErr),
		)
	}

	directErr := s.transport.SendToUser(ctx, n.UserID, text)
	if directErr == nil {
		return models.DeliveryResult{TargetUsed: models.TargetDirect, Succeeded: true}
	}

	err := fmt.Errorf("%w: %w", models.ErrDeliveryFailed, errors.Join(primaryErr, directErr))
	logger.Error("failed to deliver notification", zap.Error(err))
	return models.DeliveryResult{TargetUsed: models.TargetDirect, Succeeded: false}
}
