package version

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mtb-technology/reportflow/internal/stage"
	"github.com/mtb-technology/reportflow/internal/types"
)

// Archiver persists snapshots as they are recorded so the chain survives
// restarts. The store remains authoritative for version numbering and the
// latest pointer.
type Archiver interface {
	Save(ctx context.Context, snapshot ConceptSnapshot) error
	LoadAll(ctx context.Context) ([]ConceptSnapshot, error)
}

// Store holds concept version chains for all reports. Writes to one report
// are serialized by a per-report mutex; writes to different reports do not
// coordinate with each other.
//
// The store is the only assigner of version numbers. After RecordSnapshot
// the latest pointer always equals the maximum version in the chain;
// StepBack and Promote repoint latest to an existing snapshot without
// deleting or renumbering anything.
type Store struct {
	mu     sync.RWMutex
	chains map[types.ID]*chainState

	archive Archiver
	now     func() time.Time
}

// StoreOption is a functional option for configuring a Store.
type StoreOption func(*Store)

// WithArchiver configures write-through snapshot persistence.
func WithArchiver(archive Archiver) StoreOption {
	return func(s *Store) {
		s.archive = archive
	}
}

type chainState struct {
	mu        sync.Mutex
	latest    int
	snapshots map[int]ConceptSnapshot
	history   []HistoryEntry
}

// NewStore creates an empty version store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		chains: make(map[types.ID]*chainState),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Restore loads previously archived snapshots into memory. Latest pointers
// are rebuilt to the maximum version per report and the history trail is
// reconstructed as one recorded entry per snapshot in version order.
// Step-back and promote actions are not archived, so repoint history from
// before the restart is not recovered. Call once at startup, before the
// store is shared.
func (s *Store) Restore(ctx context.Context) error {
	if s.archive == nil {
		return nil
	}

	snapshots, err := s.archive.LoadAll(ctx)
	if err != nil {
		return err
	}

	sort.Slice(snapshots, func(i, j int) bool {
		if snapshots[i].ReportID != snapshots[j].ReportID {
			return snapshots[i].ReportID < snapshots[j].ReportID
		}
		return snapshots[i].Version < snapshots[j].Version
	})

	for _, snapshot := range snapshots {
		state := s.chain(snapshot.ReportID)
		state.mu.Lock()
		state.snapshots[snapshot.Version] = snapshot
		if snapshot.Version > state.latest {
			state.latest = snapshot.Version
		}
		state.history = append(state.history, HistoryEntry{
			Action:      ActionRecorded,
			Version:     snapshot.Version,
			StageID:     snapshot.StageID,
			Description: snapshot.Description,
			OccurredAt:  snapshot.CreatedAt,
		})
		state.mu.Unlock()
	}
	return nil
}

// chain returns the chain state for a report, creating it on first use.
func (s *Store) chain(reportID types.ID) *chainState {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, exists := s.chains[reportID]
	if !exists {
		state = &chainState{snapshots: make(map[int]ConceptSnapshot)}
		s.chains[reportID] = state
	}
	return state
}

// RecordSnapshot appends a new immutable snapshot to the report's chain.
// The version is assigned by the store as max+1 and the latest pointer is
// advanced to it. derivedFrom, when non-zero, must reference an existing
// version.
func (s *Store) RecordSnapshot(reportID types.ID, stageID stage.StageID, content string, derivedFrom int, description string) (ConceptSnapshot, error) {
	if reportID.IsZero() {
		return ConceptSnapshot{}, types.NewError(types.REPORT_INVALID, "report id is required")
	}
	if content == "" {
		return ConceptSnapshot{}, types.NewError(types.VERSION_CONFLICT, "snapshot content cannot be empty")
	}

	state := s.chain(reportID)
	state.mu.Lock()
	defer state.mu.Unlock()

	if derivedFrom != 0 {
		if _, exists := state.snapshots[derivedFrom]; !exists {
			return ConceptSnapshot{}, types.NewError(types.VERSION_NOT_FOUND,
				fmt.Sprintf("derived-from version %d does not exist for report %s", derivedFrom, reportID))
		}
	}

	next := state.maxVersion() + 1
	snapshot := ConceptSnapshot{
		Version:     next,
		ReportID:    reportID,
		StageID:     stageID,
		Content:     content,
		DerivedFrom: derivedFrom,
		Description: description,
		CreatedAt:   s.now(),
	}

	if s.archive != nil {
		if err := s.archive.Save(context.Background(), snapshot); err != nil {
			return ConceptSnapshot{}, err
		}
	}

	state.snapshots[next] = snapshot
	state.latest = next
	state.history = append(state.history, HistoryEntry{
		Action:      ActionRecorded,
		Version:     next,
		StageID:     stageID,
		Description: description,
		OccurredAt:  snapshot.CreatedAt,
	})
	return snapshot, nil
}

// Latest returns the snapshot the latest pointer currently designates.
func (s *Store) Latest(reportID types.ID) (ConceptSnapshot, error) {
	state := s.chain(reportID)
	state.mu.Lock()
	defer state.mu.Unlock()

	if state.latest == 0 {
		return ConceptSnapshot{}, types.NewError(types.VERSION_NOT_FOUND,
			fmt.Sprintf("report %s has no concept versions", reportID))
	}
	return state.snapshots[state.latest], nil
}

// Snapshot returns one specific version.
func (s *Store) Snapshot(reportID types.ID, version int) (ConceptSnapshot, error) {
	state := s.chain(reportID)
	state.mu.Lock()
	defer state.mu.Unlock()

	snapshot, exists := state.snapshots[version]
	if !exists {
		return ConceptSnapshot{}, types.NewError(types.VERSION_NOT_FOUND,
			fmt.Sprintf("version %d does not exist for report %s", version, reportID))
	}
	return snapshot, nil
}

// StepBack repoints the latest pointer to the most recent snapshot produced
// by targetStageID that is older than the current latest. Nothing is
// deleted; a subsequent RecordSnapshot still assigns max+1.
func (s *Store) StepBack(reportID types.ID, targetStageID stage.StageID) (ConceptSnapshot, error) {
	state := s.chain(reportID)
	state.mu.Lock()
	defer state.mu.Unlock()

	if state.latest == 0 {
		return ConceptSnapshot{}, types.NewError(types.VERSION_NOT_FOUND,
			fmt.Sprintf("report %s has no concept versions", reportID))
	}

	target := 0
	for v, snapshot := range state.snapshots {
		if snapshot.StageID == targetStageID && v < state.latest && v > target {
			target = v
		}
	}
	if target == 0 {
		return ConceptSnapshot{}, types.NewError(types.VERSION_NOT_FOUND,
			fmt.Sprintf("no snapshot from stage %s precedes the current latest for report %s", targetStageID, reportID))
	}

	state.latest = target
	snapshot := state.snapshots[target]
	state.history = append(state.history, HistoryEntry{
		Action:     ActionStepBack,
		Version:    target,
		StageID:    targetStageID,
		OccurredAt: s.now(),
	})
	return snapshot, nil
}

// Promote repoints the latest pointer to the newest snapshot produced by
// stageID, regardless of where latest currently points.
func (s *Store) Promote(reportID types.ID, stageID stage.StageID) (ConceptSnapshot, error) {
	state := s.chain(reportID)
	state.mu.Lock()
	defer state.mu.Unlock()

	target := 0
	for v, snapshot := range state.snapshots {
		if snapshot.StageID == stageID && v > target {
			target = v
		}
	}
	if target == 0 {
		return ConceptSnapshot{}, types.NewError(types.VERSION_NOT_FOUND,
			fmt.Sprintf("no snapshot from stage %s exists for report %s", stageID, reportID))
	}

	state.latest = target
	snapshot := state.snapshots[target]
	state.history = append(state.history, HistoryEntry{
		Action:     ActionPromoted,
		Version:    target,
		StageID:    stageID,
		OccurredAt: s.now(),
	})
	return snapshot, nil
}

// Chain returns a copy of the full chain for inspection: snapshots sorted
// by version, history in occurrence order.
func (s *Store) Chain(reportID types.ID) Chain {
	state := s.chain(reportID)
	state.mu.Lock()
	defer state.mu.Unlock()

	snapshots := make([]ConceptSnapshot, 0, len(state.snapshots))
	for _, snapshot := range state.snapshots {
		snapshots = append(snapshots, snapshot)
	}
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Version < snapshots[j].Version
	})

	history := make([]HistoryEntry, len(state.history))
	copy(history, state.history)

	return Chain{
		ReportID:  reportID,
		Latest:    state.latest,
		Snapshots: snapshots,
		History:   history,
	}
}

// maxVersion returns the highest version in the chain, zero when empty.
// Must be called with the chain mutex held.
func (c *chainState) maxVersion() int {
	max := 0
	for v := range c.snapshots {
		if v > max {
			max = v
		}
	}
	return max
}
