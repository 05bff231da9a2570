package db_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/g960059/persterm/internal/db"
	"github.com/g960059/persterm/internal/model"
	"github.com/g960059/persterm/internal/testutil"
)

func TestInsertAndListAuditEvents(t *testing.T) {
	store, ctx := testutil.NewStore(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	events := []model.AuditEvent{
		{EventID: "e1", At: base, Kind: model.AuditLifecycle, Message: "Extension activated"},
		{EventID: "e2", At: base.Add(time.Second), Kind: model.AuditSessionCreated, Terminal: "api", Message: "Created terminal: api", Workspace: "/work"},
		{EventID: "e3", At: base.Add(1500 * time.Millisecond), Kind: model.AuditCommandSent, Terminal: "api", Message: "Executed command in api: make run"},
		{EventID: "e4", At: base.Add(2 * time.Second), Kind: model.AuditSummary, Message: "Terminals created: 1, skipped: 0"},
	}
	for _, ev := range events {
		require.NoError(t, store.InsertAuditEvent(ctx, ev))
	}

	all, err := store.ListAuditEvents(ctx, db.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "e1", all[0].EventID, "oldest first")
	assert.Equal(t, "e4", all[3].EventID)
	assert.Equal(t, base.Add(time.Second), all[1].At)
	assert.Equal(t, "/work", all[1].Workspace)
	assert.Equal(t, model.AuditSessionCreated, all[1].Kind)

	latest, err := store.ListAuditEvents(ctx, db.AuditFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, []string{"e3", "e4"}, []string{latest[0].EventID, latest[1].EventID})

	api, err := store.ListAuditEvents(ctx, db.AuditFilter{Terminal: "api"})
	require.NoError(t, err)
	assert.Len(t, api, 2)

	sent, err := store.ListAuditEvents(ctx, db.AuditFilter{Terminal: "api", Kind: model.AuditCommandSent})
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, "Executed command in api: make run", sent[0].Message)
}

func TestInsertAuditEventValidation(t *testing.T) {
	store, ctx := testutil.NewStore(t)

	err := store.InsertAuditEvent(ctx, model.AuditEvent{Kind: model.AuditLifecycle, Message: "x"})
	assert.Error(t, err)

	ev := model.AuditEvent{EventID: "dup", Kind: model.AuditLifecycle, Message: "x"}
	require.NoError(t, store.InsertAuditEvent(ctx, ev))
	err = store.InsertAuditEvent(ctx, ev)
	assert.True(t, errors.Is(err, db.ErrDuplicate), "got %v", err)
}

func TestPasses(t *testing.T) {
	store, ctx := testutil.NewStore(t)

	_, err := store.LatestPass(ctx)
	assert.ErrorIs(t, err, db.ErrNotFound)

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	result := model.ReconcileResult{
		Created: 2,
		Reused:  1,
		Outcomes: []model.CommandOutcome{
			{Status: model.CommandSent},
			{Status: model.CommandSent},
			{Status: model.CommandSkippedRestricted},
		},
		Terminals: []model.TerminalOutcome{{ExecutionSkipped: true}},
	}
	require.NoError(t, store.InsertPass(ctx, result.Summarize("p1", "/work", start, start.Add(time.Second))))
	require.NoError(t, store.InsertPass(ctx, model.PassSummary{PassID: "p2", StartedAt: start.Add(time.Minute), FinishedAt: start.Add(time.Minute)}))

	passes, err := store.ListPasses(ctx, 10)
	require.NoError(t, err)
	require.Len(t, passes, 2)
	assert.Equal(t, "p2", passes[0].PassID, "newest first")

	p1 := passes[1]
	assert.Equal(t, 2, p1.Created)
	assert.Equal(t, 1, p1.Reused)
	assert.Equal(t, 2, p1.Sent)
	assert.Equal(t, 1, p1.Restricted)
	assert.Equal(t, 1, p1.ExecutionSkipped)
	assert.Equal(t, "/work", p1.Workspace)
	assert.Equal(t, start.Add(time.Second), p1.FinishedAt)

	latest, err := store.LatestPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, "p2", latest.PassID)

	assert.ErrorIs(t, store.InsertPass(ctx, model.PassSummary{PassID: "p2", StartedAt: start, FinishedAt: start}), db.ErrDuplicate)
}

func TestPurgeBefore(t *testing.T) {
	store, ctx := testutil.NewStore(t)
	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.InsertAuditEvent(ctx, model.AuditEvent{EventID: "old", At: old, Kind: model.AuditLifecycle, Message: "a"}))
	require.NoError(t, store.InsertAuditEvent(ctx, model.AuditEvent{EventID: "new", At: recent, Kind: model.AuditLifecycle, Message: "b"}))
	require.NoError(t, store.InsertPass(ctx, model.PassSummary{PassID: "p-old", StartedAt: old, FinishedAt: old}))

	n, err := store.PurgeBefore(ctx, recent.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	events, err := store.CountRows(ctx, "audit_events")
	require.NoError(t, err)
	assert.Equal(t, int64(1), events)
	passes, err := store.CountRows(ctx, "passes")
	require.NoError(t, err)
	assert.Equal(t, int64(0), passes)

	_, err = store.CountRows(ctx, "sqlite_master")
	assert.Error(t, err)
}
