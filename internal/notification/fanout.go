// Package notification projects trail events into per-recipient notification
// rows and manages their read/mute state.
package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/archject/portal-access/internal/domain"
	"github.com/archject/portal-access/internal/metrics"
	"github.com/archject/portal-access/internal/repository"
)

const defaultListLimit = 50

// Fanout derives notifications from trail events. Inserts are synchronous;
// a per-recipient failure is logged and counted, and retried at most once
// when Retry is enabled.
type Fanout struct {
	repo    repository.NotificationRepository
	metrics *metrics.Metrics
	logger  *zap.Logger

	// Retry enables a single retry of a failed per-recipient insert.
	Retry bool
}

func NewFanout(repo repository.NotificationRepository, m *metrics.Metrics, logger *zap.Logger, retry bool) *Fanout {
	return &Fanout{repo: repo, metrics: m, logger: logger, Retry: retry}
}

// Derive computes the recipient set for an event and inserts one row per
// recipient. The actor never notifies themselves. Returns the rows that were
// successfully inserted.
func (f *Fanout) Derive(ctx context.Context, event domain.TrailEvent) ([]domain.DecisionNotification, error) {
	recipients := recipientSet(event)
	if len(recipients) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	referenceID := uuid.NewString()
	var created []domain.DecisionNotification
	for _, userID := range recipients {
		n := domain.DecisionNotification{
			ID:          uuid.NewString(),
			TenantID:    event.TenantID,
			UserID:      userID,
			DecisionID:  event.DecisionID,
			Type:        event.Type,
			ReferenceID: referenceID,
			Payload:     event.Payload,
			CreatedAt:   now,
		}
		if err := f.insert(ctx, n); err != nil {
			f.metrics.FanoutFailures.Inc()
			f.log().Error("notification fan-out insert failed",
				zap.Int64("tenant_id", event.TenantID),
				zap.String("user_id", userID),
				zap.String("decision_id", event.DecisionID),
				zap.Error(err),
			)
			continue
		}
		created = append(created, n)
	}
	return created, nil
}

func (f *Fanout) insert(ctx context.Context, n domain.DecisionNotification) error {
	err := f.repo.Insert(ctx, n)
	if err != nil && f.Retry {
		err = f.repo.Insert(ctx, n)
	}
	return err
}

// ListForUser returns the recipient's notifications, newest first.
func (f *Fanout) ListForUser(ctx context.Context, tenantID int64, userID string, limit, offset int) ([]domain.DecisionNotification, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	out, err := f.repo.ListForUser(ctx, tenantID, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return out, nil
}

// Get loads a single notification.
func (f *Fanout) Get(ctx context.Context, tenantID int64, id string) (domain.DecisionNotification, error) {
	out, err := f.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return domain.DecisionNotification{}, fmt.Errorf("get notification: %w", err)
	}
	return out, nil
}

// MarkRead transitions read_at from null to now. Already-read rows are left
// untouched; read_at never reverts.
func (f *Fanout) MarkRead(ctx context.Context, tenantID int64, id string) error {
	if err := f.repo.MarkRead(ctx, tenantID, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// MarkAllRead marks every unread notification for the recipient.
func (f *Fanout) MarkAllRead(ctx context.Context, tenantID int64, userID string) error {
	if err := f.repo.MarkAllRead(ctx, tenantID, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark all read: %w", err)
	}
	return nil
}

// Mute suppresses active delivery for the given duration. A zero duration
// mutes indefinitely; a negative duration is rejected rather than being
// collapsed into an indefinite mute. The row stays visible in history
// either way.
func (f *Fanout) Mute(ctx context.Context, tenantID int64, id string, duration time.Duration) error {
	if duration < 0 {
		return fmt.Errorf("mute notification: negative duration %s", duration)
	}
	now := time.Now().UTC()
	var until *time.Time
	if duration > 0 {
		u := now.Add(duration)
		until = &u
	}
	if err := f.repo.Mute(ctx, tenantID, id, now, until); err != nil {
		return fmt.Errorf("mute notification: %w", err)
	}
	return nil
}

func (f *Fanout) log() *zap.Logger {
	if f != nil && f.logger != nil {
		return f.logger
	}
	return zap.L()
}

// recipientSet is owner + assignees + mentions, deduplicated, minus the actor.
func recipientSet(event domain.TrailEvent) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(id string) {
		if id == "" || id == event.ActorID {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	add(event.OwnerID)
	for _, id := range event.Assignees {
		add(id)
	}
	for _, id := range event.Mentions {
		add(id)
	}
	return out
}
