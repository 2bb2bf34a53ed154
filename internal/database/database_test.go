package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtb-technology/reportflow/internal/llm"
	"github.com/mtb-technology/reportflow/internal/report"
	"github.com/mtb-technology/reportflow/internal/stage"
	"github.com/mtb-technology/reportflow/internal/types"
	"github.com/mtb-technology/reportflow/internal/version"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "reportflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, NewMigrator(db).Migrate(context.Background()))
	return db
}

func TestOpenEnablesWAL(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "wal.db"))
	require.NoError(t, err)
	defer db.Close()

	var mode string
	require.NoError(t, db.Conn().QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	m := NewMigrator(db)
	require.NoError(t, m.Migrate(ctx))

	version, err := m.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}

func TestHealth(t *testing.T) {
	db := openTestDB(t)

	status := db.Health(context.Background())
	assert.Equal(t, types.HealthStateHealthy, status.State)
}

func TestReportDAORoundTrip(t *testing.T) {
	db := openTestDB(t)
	dao := NewReportDAO(db)
	ctx := context.Background()

	r := report.New("Pension Advice 2026", map[string]any{
		"client":  "Jansen BV",
		"sources": []any{"intake.pdf", "annual-statement.pdf"},
	})
	r.StageStates[stage.StageGeneration] = stage.RunState{Status: stage.StageStatusCompleted}
	r.StageResults[stage.StageGeneration] = report.StageResult{
		StageID:        stage.StageGeneration,
		Output:         "concept text",
		ConceptVersion: 1,
		TokenUsage:     llm.TokenUsage{PromptTokens: 120, CompletionTokens: 800, TotalTokens: 920},
		Duration:       3 * time.Second,
		CompletedAt:    time.Now(),
	}
	r.LatestConceptVersion = 1

	require.NoError(t, dao.Create(ctx, r))

	got, err := dao.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
	assert.Equal(t, "Pension Advice 2026", got.Title)
	assert.Equal(t, types.ReportStatusDraft, got.Status)
	assert.Equal(t, "Jansen BV", got.DossierData["client"])
	assert.Equal(t, stage.StageStatusCompleted, got.StageStates.Get(stage.StageGeneration).Status)
	assert.Equal(t, "concept text", got.StageResults[stage.StageGeneration].Output)
	assert.Equal(t, 920, got.StageResults[stage.StageGeneration].TokenUsage.TotalTokens)
	assert.Equal(t, 1, got.LatestConceptVersion)
}

func TestReportDAOGetNotFound(t *testing.T) {
	db := openTestDB(t)
	dao := NewReportDAO(db)

	_, err := dao.Get(context.Background(), types.NewID())
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.NewError(types.REPORT_NOT_FOUND, "")))
}

func TestReportDAOUpdate(t *testing.T) {
	db := openTestDB(t)
	dao := NewReportDAO(db)
	ctx := context.Background()

	r := report.New("Draft", nil)
	require.NoError(t, dao.Create(ctx, r))

	r.Status = types.ReportStatusProcessing
	r.CurrentStage = stage.StageCompletenessCheck
	require.NoError(t, dao.Update(ctx, r))

	got, err := dao.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ReportStatusProcessing, got.Status)
	assert.Equal(t, stage.StageCompletenessCheck, got.CurrentStage)

	missing := report.New("never stored", nil)
	err = dao.Update(ctx, missing)
	assert.True(t, errors.Is(err, types.NewError(types.REPORT_NOT_FOUND, "")))
}

func TestReportDAOListOrdersNewestFirst(t *testing.T) {
	db := openTestDB(t)
	dao := NewReportDAO(db)
	ctx := context.Background()

	older := report.New("older", nil)
	older.CreatedAt = time.Now().Add(-time.Hour)
	newer := report.New("newer", nil)

	require.NoError(t, dao.Create(ctx, older))
	require.NoError(t, dao.Create(ctx, newer))

	all, err := dao.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "newer", all[0].Title)
	assert.Equal(t, "older", all[1].Title)
}

func TestReportDAODelete(t *testing.T) {
	db := openTestDB(t)
	dao := NewReportDAO(db)
	ctx := context.Background()

	r := report.New("to delete", nil)
	require.NoError(t, dao.Create(ctx, r))
	require.NoError(t, dao.Delete(ctx, r.ID))

	_, err := dao.Get(ctx, r.ID)
	assert.True(t, errors.Is(err, types.NewError(types.REPORT_NOT_FOUND, "")))

	err = dao.Delete(ctx, r.ID)
	assert.True(t, errors.Is(err, types.NewError(types.REPORT_NOT_FOUND, "")))
}

func TestSnapshotDAOArchivesAndRestores(t *testing.T) {
	db := openTestDB(t)
	dao := NewSnapshotDAO(db)
	ctx := context.Background()

	store := version.NewStore(version.WithArchiver(dao))
	reportID := types.NewID()

	first, err := store.RecordSnapshot(reportID, stage.StageGeneration, "first concept", 0, "initial generation")
	require.NoError(t, err)
	second, err := store.RecordSnapshot(reportID, stage.StageEditor, "edited concept", first.Version, "")
	require.NoError(t, err)
	assert.Equal(t, 2, second.Version)

	// A fresh store restored from the same database sees the full chain.
	restored := version.NewStore(version.WithArchiver(dao))
	require.NoError(t, restored.Restore(ctx))

	latest, err := restored.Latest(reportID)
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)
	assert.Equal(t, "edited concept", latest.Content)

	chain := restored.Chain(reportID)
	require.Len(t, chain.Snapshots, 2)
	assert.Equal(t, "first concept", chain.Snapshots[0].Content)
	assert.Equal(t, first.Version, chain.Snapshots[1].DerivedFrom)
}
