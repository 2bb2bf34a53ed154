package version

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtb-technology/reportflow/internal/stage"
	"github.com/mtb-technology/reportflow/internal/types"
)

func TestRecordSnapshotAssignsSequentialVersions(t *testing.T) {
	store := NewStore()
	reportID := types.NewID()

	first, err := store.RecordSnapshot(reportID, stage.StageGeneration, "draft one", 0, "initial draft")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Version)

	second, err := store.RecordSnapshot(reportID, stage.StageEditor, "draft two", first.Version, "merged review")
	require.NoError(t, err)
	assert.Equal(t, 2, second.Version)
	assert.Equal(t, 1, second.DerivedFrom)

	latest, err := store.Latest(reportID)
	require.NoError(t, err)
	assert.Equal(t, second, latest)
}

func TestLatestAlwaysPointsAtMaxAfterRecord(t *testing.T) {
	store := NewStore()
	reportID := types.NewID()

	for i := 1; i <= 5; i++ {
		snapshot, err := store.RecordSnapshot(reportID, stage.StageGeneration,
			fmt.Sprintf("draft %d", i), 0, "")
		require.NoError(t, err)
		assert.Equal(t, i, snapshot.Version)

		latest, err := store.Latest(reportID)
		require.NoError(t, err)
		assert.Equal(t, i, latest.Version)
	}
}

func TestRecordSnapshotValidation(t *testing.T) {
	store := NewStore()
	reportID := types.NewID()

	_, err := store.RecordSnapshot("", stage.StageGeneration, "content", 0, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.NewError(types.REPORT_INVALID, "")))

	_, err = store.RecordSnapshot(reportID, stage.StageGeneration, "", 0, "")
	require.Error(t, err)

	// Derived-from must reference an existing version.
	_, err = store.RecordSnapshot(reportID, stage.StageGeneration, "content", 7, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.NewError(types.VERSION_NOT_FOUND, "")))
}

func TestStepBackRepointsWithoutDeleting(t *testing.T) {
	store := NewStore()
	reportID := types.NewID()

	gen, err := store.RecordSnapshot(reportID, stage.StageGeneration, "generated", 0, "")
	require.NoError(t, err)
	edited, err := store.RecordSnapshot(reportID, stage.StageEditor, "edited", gen.Version, "")
	require.NoError(t, err)

	back, err := store.StepBack(reportID, stage.StageGeneration)
	require.NoError(t, err)
	assert.Equal(t, gen.Version, back.Version)

	latest, err := store.Latest(reportID)
	require.NoError(t, err)
	assert.Equal(t, gen.Version, latest.Version)

	// The newer snapshot survives and stays addressable.
	kept, err := store.Snapshot(reportID, edited.Version)
	require.NoError(t, err)
	assert.Equal(t, "edited", kept.Content)
}

func TestRecordAfterStepBackAssignsBeyondPreviousMax(t *testing.T) {
	store := NewStore()
	reportID := types.NewID()

	_, err := store.RecordSnapshot(reportID, stage.StageGeneration, "v1", 0, "")
	require.NoError(t, err)
	_, err = store.RecordSnapshot(reportID, stage.StageEditor, "v2", 1, "")
	require.NoError(t, err)

	_, err = store.StepBack(reportID, stage.StageGeneration)
	require.NoError(t, err)

	// Versions never regress: the store assigns past the historical max,
	// not past the stepped-back latest pointer.
	next, err := store.RecordSnapshot(reportID, stage.StageEditor, "v3", 1, "")
	require.NoError(t, err)
	assert.Equal(t, 3, next.Version)
}

func TestStepBackRequiresOlderSnapshot(t *testing.T) {
	store := NewStore()
	reportID := types.NewID()

	_, err := store.StepBack(reportID, stage.StageGeneration)
	require.Error(t, err)

	_, err = store.RecordSnapshot(reportID, stage.StageGeneration, "only", 0, "")
	require.NoError(t, err)

	// The sole snapshot is the latest itself; nothing older to step to.
	_, err = store.StepBack(reportID, stage.StageGeneration)
	require.Error(t, err)
}

func TestPromoteRepointsToNewestStageSnapshot(t *testing.T) {
	store := NewStore()
	reportID := types.NewID()

	_, err := store.RecordSnapshot(reportID, stage.StageGeneration, "v1", 0, "")
	require.NoError(t, err)
	editedA, err := store.RecordSnapshot(reportID, stage.StageEditor, "v2", 1, "")
	require.NoError(t, err)
	_, err = store.StepBack(reportID, stage.StageGeneration)
	require.NoError(t, err)

	promoted, err := store.Promote(reportID, stage.StageEditor)
	require.NoError(t, err)
	assert.Equal(t, editedA.Version, promoted.Version)

	latest, err := store.Latest(reportID)
	require.NoError(t, err)
	assert.Equal(t, "v2", latest.Content)
}

func TestPromoteUnknownStageFails(t *testing.T) {
	store := NewStore()
	reportID := types.NewID()

	_, err := store.RecordSnapshot(reportID, stage.StageGeneration, "v1", 0, "")
	require.NoError(t, err)

	_, err = store.Promote(reportID, stage.StageExecutiveBriefing)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.NewError(types.VERSION_NOT_FOUND, "")))
}

func TestHistoryIsAppendOnly(t *testing.T) {
	store := NewStore()
	reportID := types.NewID()

	_, err := store.RecordSnapshot(reportID, stage.StageGeneration, "v1", 0, "")
	require.NoError(t, err)
	_, err = store.RecordSnapshot(reportID, stage.StageEditor, "v2", 1, "")
	require.NoError(t, err)
	_, err = store.StepBack(reportID, stage.StageGeneration)
	require.NoError(t, err)
	_, err = store.Promote(reportID, stage.StageEditor)
	require.NoError(t, err)

	chain := store.Chain(reportID)
	require.Len(t, chain.History, 4)
	assert.Equal(t, ActionRecorded, chain.History[0].Action)
	assert.Equal(t, ActionRecorded, chain.History[1].Action)
	assert.Equal(t, ActionStepBack, chain.History[2].Action)
	assert.Equal(t, ActionPromoted, chain.History[3].Action)

	// Snapshots stay intact and ordered.
	require.Len(t, chain.Snapshots, 2)
	assert.Equal(t, 1, chain.Snapshots[0].Version)
	assert.Equal(t, 2, chain.Snapshots[1].Version)
	assert.Equal(t, 2, chain.Latest)
}

func TestConcurrentRecordsOnOneReport(t *testing.T) {
	store := NewStore()
	reportID := types.NewID()

	const writers = 20
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func(n int) {
			defer wg.Done()
			_, err := store.RecordSnapshot(reportID, stage.StageGeneration,
				fmt.Sprintf("draft %d", n), 0, "")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	chain := store.Chain(reportID)
	require.Len(t, chain.Snapshots, writers)

	// Per-report serialization: versions are dense 1..N with latest at max.
	for i, snapshot := range chain.Snapshots {
		assert.Equal(t, i+1, snapshot.Version)
	}
	assert.Equal(t, writers, chain.Latest)
}

func TestCrossReportChainsIndependent(t *testing.T) {
	store := NewStore()
	reportA := types.NewID()
	reportB := types.NewID()

	_, err := store.RecordSnapshot(reportA, stage.StageGeneration, "a1", 0, "")
	require.NoError(t, err)
	b1, err := store.RecordSnapshot(reportB, stage.StageGeneration, "b1", 0, "")
	require.NoError(t, err)

	assert.Equal(t, 1, b1.Version, "chains number independently")
}

// memoryArchive is an in-memory Archiver for restore tests.
type memoryArchive struct {
	saved []ConceptSnapshot
}

func (a *memoryArchive) Save(_ context.Context, snapshot ConceptSnapshot) error {
	a.saved = append(a.saved, snapshot)
	return nil
}

func (a *memoryArchive) LoadAll(_ context.Context) ([]ConceptSnapshot, error) {
	return append([]ConceptSnapshot(nil), a.saved...), nil
}

func TestRestoreRebuildsHistory(t *testing.T) {
	archive := &memoryArchive{}
	reportID := types.NewID()

	original := NewStore(WithArchiver(archive))
	_, err := original.RecordSnapshot(reportID, stage.StageGeneration, "v1", 0, "initial draft")
	require.NoError(t, err)
	_, err = original.RecordSnapshot(reportID, stage.StageEditor, "v2", 1, "applied review")
	require.NoError(t, err)

	restored := NewStore(WithArchiver(archive))
	require.NoError(t, restored.Restore(context.Background()))

	chain := restored.Chain(reportID)
	require.Len(t, chain.Snapshots, 2)
	assert.Equal(t, 2, chain.Latest)

	// One recorded entry per snapshot, in version order.
	require.Len(t, chain.History, 2)
	assert.Equal(t, ActionRecorded, chain.History[0].Action)
	assert.Equal(t, 1, chain.History[0].Version)
	assert.Equal(t, stage.StageGeneration, chain.History[0].StageID)
	assert.Equal(t, "initial draft", chain.History[0].Description)
	assert.Equal(t, ActionRecorded, chain.History[1].Action)
	assert.Equal(t, 2, chain.History[1].Version)

	// The restored chain keeps numbering where the original left off.
	third, err := restored.RecordSnapshot(reportID, stage.StageGeneration, "v3", 2, "")
	require.NoError(t, err)
	assert.Equal(t, 3, third.Version)
	assert.Len(t, restored.Chain(reportID).History, 3)
}
