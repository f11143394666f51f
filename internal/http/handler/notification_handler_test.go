package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/archject/portal-access/internal/domain"
	httpHandler "github.com/archject/portal-access/internal/http/handler"
	"github.com/archject/portal-access/internal/metrics"
	"github.com/archject/portal-access/internal/notification"
	"github.com/archject/portal-access/internal/repository"
)

type memoryNotificationRepo struct {
	rows map[string]*domain.DecisionNotification
}

func newMemoryNotificationRepo() *memoryNotificationRepo {
	return &memoryNotificationRepo{rows: map[string]*domain.DecisionNotification{}}
}

func (m *memoryNotificationRepo) Insert(ctx context.Context, n domain.DecisionNotification) error {
	cp := n
	m.rows[n.ID] = &cp
	return nil
}

func (m *memoryNotificationRepo) ListForUser(ctx context.Context, tenantID int64, userID string, limit, offset int) ([]domain.DecisionNotification, error) {
	var out []domain.DecisionNotification
	for _, n := range m.rows {
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

func newNotificationHandler(repo *memoryNotificationRepo) *httpHandler.NotificationHandler {
	fanout := notification.NewFanout(repo, metrics.New(), zap.NewNop(), false)
	return httpHandler.NewNotificationHandler(fanout)
}

func seedNotification(repo *memoryNotificationRepo, id string) {
	repo.rows[id] = &domain.DecisionNotification{
		ID:         id,
		TenantID:   1,
		UserID:     "owner-1",
		DecisionID: "decision-1",
		Type:       domain.NotificationComment,
		CreatedAt:  time.Now().UTC(),
	}
}

func TestMuteHandlerRejectsNegativeDuration(t *testing.T) {
	repo := newMemoryNotificationRepo()
	seedNotification(repo, "n-1")
	h := newNotificationHandler(repo)

	w := doRequest(h.Mute, http.MethodPost, "/notifications/n-1/mute",
		[]byte(`{"duration_seconds":-60}`),
		func(c *gin.Context) {
			c.Params = gin.Params{{Key: "id", Value: "n-1"}}
		})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "invalid_request", body["error"])
	require.Nil(t, repo.rows["n-1"].MutedAt, "rejected request leaves the row untouched")
}

func TestMuteHandlerEmptyBodyMutesIndefinitely(t *testing.T) {
	repo := newMemoryNotificationRepo()
	seedNotification(repo, "n-1")
	h := newNotificationHandler(repo)

	w := doRequest(h.Mute, http.MethodPost, "/notifications/n-1/mute", nil,
		func(c *gin.Context) {
			c.Params = gin.Params{{Key: "id", Value: "n-1"}}
		})
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, repo.rows["n-1"].MutedAt)
	require.Nil(t, repo.rows["n-1"].MutedUntil)
}
