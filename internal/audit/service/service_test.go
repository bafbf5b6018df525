package service

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/flightclub/internal/actor"
	auditdomain "github.com/smallbiznis/flightclub/internal/audit/domain"
	"github.com/smallbiznis/flightclub/internal/audit/repository"
	"github.com/smallbiznis/flightclub/internal/clock"
	"github.com/smallbiznis/flightclub/internal/dbtest"
	obscontext "github.com/smallbiznis/flightclub/internal/observability/context"
	"github.com/smallbiznis/flightclub/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestService(t *testing.T) (auditdomain.Service, *clock.FakeClock) {
	t.Helper()
	db := dbtest.Open(t)
	clk := clock.NewFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	svc := NewService(Params{
		DB:    db,
		Log:   zaptest.NewLogger(t),
		GenID: dbtest.Node(t),
		Repo:  repository.Provide(),
		Clock: clk,
	})
	return svc, clk
}

func TestAuditLogRecordsActorAndRequest(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	by := actor.User("77", actor.RoleTreasurer)

	err := svc.AuditLog(ctx, nil, by, auditdomain.ActionFlightCharged, auditdomain.TargetTypeFlight, "41", map[string]any{
		"amount": "-225",
		"":       "dropped",
	})
	require.NoError(t, err)

	res, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, res.AuditLogs, 1)

	entry := res.AuditLogs[0]
	assert.Equal(t, actor.TypeUser, entry.ActorType)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "77", *entry.ActorID)
	require.NotNil(t, entry.TargetID)
	assert.Equal(t, "41", *entry.TargetID)
	require.NotNil(t, entry.RequestID)
	assert.Equal(t, "req-1", *entry.RequestID)
	assert.Equal(t, "-225", entry.Metadata["amount"])
	assert.Equal(t, actor.RoleTreasurer, entry.Metadata["actor_roles"])
	assert.NotContains(t, entry.Metadata, "")
}

func TestAuditLogRejectsEmptyAction(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.AuditLog(context.Background(), nil, actor.System(), " ", auditdomain.TargetTypeFlight, "41", nil)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestListFiltersAndPages(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()
	by := actor.User("77", actor.RoleTreasurer)

	for _, target := range []string{"41", "42", "43"} {
		clk.Advance(time.Minute)
		require.NoError(t, svc.AuditLog(ctx, nil, by, auditdomain.ActionFlightCharged, auditdomain.TargetTypeFlight, target, nil))
	}
	clk.Advance(time.Minute)
	require.NoError(t, svc.AuditLog(ctx, nil, by, auditdomain.ActionEntryReversed, auditdomain.TargetTypeTransaction, "900", nil))

	first, err := svc.List(ctx, auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageSize: 2},
		Action:     auditdomain.ActionFlightCharged,
	})
	require.NoError(t, err)
	require.Len(t, first.AuditLogs, 2)
	assert.True(t, first.HasMore)
	assert.Equal(t, "43", *first.AuditLogs[0].TargetID)
	assert.Equal(t, "42", *first.AuditLogs[1].TargetID)

	second, err := svc.List(ctx, auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageSize: 2, PageToken: first.NextPageToken},
		Action:     auditdomain.ActionFlightCharged,
	})
	require.NoError(t, err)
	require.Len(t, second.AuditLogs, 1)
	assert.False(t, second.HasMore)
	assert.Equal(t, "41", *second.AuditLogs[0].TargetID)

	byTarget, err := svc.List(ctx, auditdomain.ListAuditLogRequest{TargetType: auditdomain.TargetTypeTransaction})
	require.NoError(t, err)
	require.Len(t, byTarget.AuditLogs, 1)
	assert.Equal(t, auditdomain.ActionEntryReversed, byTarget.AuditLogs[0].Action)
}

func TestListValidatesInput(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	start := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)

	_, err := svc.List(ctx, auditdomain.ListAuditLogRequest{StartAt: &start, EndAt: &end})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidTimeRange)

	_, err = svc.List(ctx, auditdomain.ListAuditLogRequest{Pagination: pagination.Pagination{PageToken: "%%%"}})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidPageToken)
}
