package notification_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/archject/portal-access/internal/domain"
	"github.com/archject/portal-access/internal/metrics"
	"github.com/archject/portal-access/internal/notification"
	"github.com/archject/portal-access/internal/repository"
)

type memoryNotificationRepo struct {
	rows     map[string]*domain.DecisionNotification
	order    []string
	failures int // fail this many inserts before succeeding
	inserts  int
}

func newMemoryNotificationRepo() *memoryNotificationRepo {
	return &memoryNotificationRepo{rows: map[string]*domain.DecisionNotification{}}
}

func (m *memoryNotificationRepo) Insert(ctx context.Context, n domain.DecisionNotification) error {
	m.inserts++
	if m.failures > 0 {
		m.failures--
		return fmt.Errorf("insert failed")
	}
	cp := n
	m.rows[n.ID] = &cp
	m.order = append(m.order, n.ID)
	return nil
}

func (m *memoryNotificationRepo) ListForUser(ctx context.Context, tenantID int64, userID string, limit, offset int) ([]domain.DecisionNotification, error) {
	var out []domain.DecisionNotification
	for _, id := range m.order {
		n := m.rows[id]
		if n.TenantID == tenantID && n.UserID == userID {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (m *memoryNotificationRepo) GetByID(ctx context.Context, tenantID int64, id string) (domain.DecisionNotification, error) {
	n, ok := m.rows[id]
	if !ok {
		return domain.DecisionNotification{}, repository.ErrNotFound
	}
	return *n, nil
}

func (m *memoryNotificationRepo) MarkRead(ctx context.Context, tenantID int64, id string, now time.Time) error {
	if n, ok := m.rows[id]; ok && n.ReadAt == nil {
		n.ReadAt = &now
	}
	return nil
}

func (m *memoryNotificationRepo) MarkAllRead(ctx context.Context, tenantID int64, userID string, now time.Time) error {
	for _, n := range m.rows {
		if n.UserID == userID && n.ReadAt == nil {
			n.ReadAt = &now
		}
	}
	return nil
}

func (m *memoryNotificationRepo) Mute(ctx context.Context, tenantID int64, id string, mutedAt time.Time, mutedUntil *time.Time) error {
	if n, ok := m.rows[id]; ok {
		n.MutedAt = &mutedAt
		n.MutedUntil = mutedUntil
	}
	return nil
}

func newFanout(repo repository.NotificationRepository, retry bool) *notification.Fanout {
	return notification.NewFanout(repo, metrics.New(), zap.NewNop(), retry)
}

func commentEvent() domain.TrailEvent {
	return domain.TrailEvent{
		Type:       domain.NotificationComment,
		TenantID:   1,
		DecisionID: "decision-1",
		ActorID:    "client-9",
		OwnerID:    "owner-1",
		Assignees:  []string{"staff-2", "owner-1"},
		Mentions:   []string{"staff-3", "client-9"},
		Payload:    map[string]any{"comment_id": "c-1"},
	}
}

func TestDeriveFansOutToDedupedRecipients(t *testing.T) {
	repo := newMemoryNotificationRepo()
	fanout := newFanout(repo, false)

	created, err := fanout.Derive(context.Background(), commentEvent())
	require.NoError(t, err)

	// owner-1 deduped across owner/assignees; actor client-9 excluded.
	require.Len(t, created, 3)
	recipients := map[string]bool{}
	for _, n := range created {
		recipients[n.UserID] = true
		require.Equal(t, domain.NotificationComment, n.Type)
		require.Equal(t, "decision-1", n.DecisionID)
		require.Nil(t, n.ReadAt)
	}
	require.True(t, recipients["owner-1"])
	require.True(t, recipients["staff-2"])
	require.True(t, recipients["staff-3"])

	// All rows of one event share a reference id.
	require.Equal(t, created[0].ReferenceID, created[1].ReferenceID)
}

func TestDeriveSkipsFailedInsertsWithoutRetry(t *testing.T) {
	repo := newMemoryNotificationRepo()
	repo.failures = 1
	fanout := newFanout(repo, false)

	created, err := fanout.Derive(context.Background(), commentEvent())
	require.NoError(t, err)
	require.Len(t, created, 2, "failed recipient dropped, others delivered")
}

func TestDeriveRetriesOnceWhenEnabled(t *testing.T) {
	repo := newMemoryNotificationRepo()
	repo.failures = 1
	fanout := newFanout(repo, true)

	created, err := fanout.Derive(context.Background(), commentEvent())
	require.NoError(t, err)
	require.Len(t, created, 3, "single retry recovers the failed insert")
	require.Equal(t, 4, repo.inserts)
}

func TestMarkReadIsMonotonic(t *testing.T) {
	repo := newMemoryNotificationRepo()
	fanout := newFanout(repo, false)
	ctx := context.Background()

	created, err := fanout.Derive(ctx, commentEvent())
	require.NoError(t, err)
	id := created[0].ID

	require.NoError(t, fanout.MarkRead(ctx, 1, id))
	first, err := repo.GetByID(ctx, 1, id)
	require.NoError(t, err)
	require.NotNil(t, first.ReadAt)

	time.Sleep(2 * time.Millisecond)
	require.NoError(t, fanout.MarkRead(ctx, 1, id))
	second, err := repo.GetByID(ctx, 1, id)
	require.NoError(t, err)
	require.Equal(t, first.ReadAt, second.ReadAt, "read_at never moves once set")
}

func TestMuteDurationAndIndefinite(t *testing.T) {
	repo := newMemoryNotificationRepo()
	fanout := newFanout(repo, false)
	ctx := context.Background()

	created, err := fanout.Derive(ctx, commentEvent())
	require.NoError(t, err)
	timed, indefinite := created[0].ID, created[1].ID

	require.NoError(t, fanout.Mute(ctx, 1, timed, 30*time.Minute))
	n, err := repo.GetByID(ctx, 1, timed)
	require.NoError(t, err)
	require.True(t, n.Suppressed(time.Now()))
	require.False(t, n.Suppressed(time.Now().Add(time.Hour)), "timed mute lapses")

	require.NoError(t, fanout.Mute(ctx, 1, indefinite, 0))
	n, err = repo.GetByID(ctx, 1, indefinite)
	require.NoError(t, err)
	require.Nil(t, n.MutedUntil)
	require.True(t, n.Suppressed(time.Now().Add(1000*time.Hour)), "indefinite mute never lapses")
}

func TestMuteRejectsNegativeDuration(t *testing.T) {
	repo := newMemoryNotificationRepo()
	fanout := newFanout(repo, false)
	ctx := context.Background()

	created, err := fanout.Derive(ctx, commentEvent())
	require.NoError(t, err)
	id := created[0].ID

	err = fanout.Mute(ctx, 1, id, -time.Minute)
	require.Error(t, err, "a negative duration must not silently become indefinite")

	n, err := repo.GetByID(ctx, 1, id)
	require.NoError(t, err)
	require.Nil(t, n.MutedAt, "rejected mute leaves the row untouched")
}
