// Package audit maintains the append-only trail of security- and
// compliance-relevant state transitions.
package audit

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/archject/portal-access/internal/domain"
	"github.com/archject/portal-access/internal/repository"
)

const (
	defaultQueryLimit = 50
	maxQueryLimit     = 500
)

// Trail appends immutable entries and serves paginated reads. Entry ids are
// ULIDs: lexicographic order matches creation order, which gives the stable
// tie-break for entries sharing a timestamp.
type Trail struct {
	repo   repository.AuditRepository
	logger *zap.Logger
}

func NewTrail(repo repository.AuditRepository, logger *zap.Logger) *Trail {
	return &Trail{repo: repo, logger: logger}
}

// Append records one entry. The id and timestamp are assigned here so callers
// cannot backdate or collide entries.
func (t *Trail) Append(ctx context.Context, tenantID int64, actorID string, action domain.AuditAction, details map[string]any) error {
	now := time.Now().UTC()
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return fmt.Errorf("generate audit id: %w", err)
	}
	entry := domain.AuditLogEntry{
		ID:        id.String(),
		TenantID:  tenantID,
		ActorID:   actorID,
		Action:    action,
		Details:   details,
		Timestamp: now,
	}
	if err := t.repo.Append(ctx, entry); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// Record is Append for paths where an audit failure must not fail the
// operation it documents; the error is logged and counted instead.
func (t *Trail) Record(ctx context.Context, tenantID int64, actorID string, action domain.AuditAction, details map[string]any) {
	if err := t.Append(ctx, tenantID, actorID, action, details); err != nil {
		t.log().Error("audit append failed",
			zap.Int64("tenant_id", tenantID),
			zap.String("action", string(action)),
			zap.Error(err),
		)
	}
}

// Query returns entries matching the filter, newest first, with the limit
// defaulted and capped.
func (t *Trail) Query(ctx context.Context, q domain.AuditQuery) ([]domain.AuditLogEntry, error) {
	if q.Limit <= 0 {
		q.Limit = defaultQueryLimit
	}
	if q.Limit > maxQueryLimit {
		q.Limit = maxQueryLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	entries, err := t.repo.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query audit trail: %w", err)
	}
	return entries, nil
}

func (t *Trail) log() *zap.Logger {
	if t != nil && t.logger != nil {
		return t.logger
	}
	return zap.L()
}
