package audit_test

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/archject/portal-access/internal/audit"
	"github.com/archject/portal-access/internal/domain"
)

type memoryAuditRepo struct {
	entries   []domain.AuditLogEntry
	lastQuery domain.AuditQuery
}

func (m *memoryAuditRepo) Append(ctx context.Context, entry domain.AuditLogEntry) error {
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memoryAuditRepo) Query(ctx context.Context, q domain.AuditQuery) ([]domain.AuditLogEntry, error) {
	m.lastQuery = q
	var out []domain.AuditLogEntry
	for _, e := range m.entries {
		if q.TenantID != 0 && e.TenantID != q.TenantID {
			continue
		}
		if q.ActorID != "" && e.ActorID != q.ActorID {
			continue
		}
		if q.Action != "" && e.Action != q.Action {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func TestAppendAssignsSortableIDs(t *testing.T) {
	repo := &memoryAuditRepo{}
	trail := audit.NewTrail(repo, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, trail.Append(ctx, 1, "staff-1", domain.AuditLinkGenerated, map[string]any{"n": i}))
	}
	require.Len(t, repo.entries, 10)

	ids := make([]string, 0, len(repo.entries))
	for _, e := range repo.entries {
		require.Len(t, e.ID, 26)
		require.False(t, e.Timestamp.IsZero())
		ids = append(ids, e.ID)
	}
	// ULIDs assigned in insertion order sort in insertion order, which is the
	// tie-break for entries sharing a timestamp.
	require.True(t, sort.StringsAreSorted(ids))
}

func TestQueryFiltersAndCapsLimit(t *testing.T) {
	repo := &memoryAuditRepo{}
	trail := audit.NewTrail(repo, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, trail.Append(ctx, 1, "staff-1", domain.AuditLinkGenerated, nil))
	require.NoError(t, trail.Append(ctx, 1, "staff-2", domain.AuditLinkRevoked, nil))
	require.NoError(t, trail.Append(ctx, 2, "staff-1", domain.AuditLinkGenerated, nil))

	entries, err := trail.Query(ctx, domain.AuditQuery{TenantID: 1, ActorID: "staff-1"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, domain.AuditLinkGenerated, entries[0].Action)
	require.Equal(t, 50, repo.lastQuery.Limit, "default limit applied")

	_, err = trail.Query(ctx, domain.AuditQuery{TenantID: 1, Limit: 10_000, Offset: -3})
	require.NoError(t, err)
	require.Equal(t, 500, repo.lastQuery.Limit, "limit capped")
	require.Equal(t, 0, repo.lastQuery.Offset)
}

func TestQueryByTimeRangePassesThrough(t *testing.T) {
	repo := &memoryAuditRepo{}
	trail := audit.NewTrail(repo, zap.NewNop())

	from := time.Now().Add(-time.Hour)
	to := time.Now()
	_, err := trail.Query(context.Background(), domain.AuditQuery{TenantID: 1, From: from, To: to})
	require.NoError(t, err)
	require.Equal(t, from, repo.lastQuery.From)
	require.Equal(t, to, repo.lastQuery.To)
}
