package report

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mtb-technology/reportflow/internal/stage"
	"github.com/mtb-technology/reportflow/internal/types"
)

// MemoryRepository is an in-memory Repository for tests and embedding.
// Reports are deep-copied on the way in and out so callers never share
// mutable state with the store.
type MemoryRepository struct {
	mu      sync.RWMutex
	reports map[types.ID]*Report
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		reports: make(map[types.ID]*Report),
	}
}

// Create stores a new report.
func (m *MemoryRepository) Create(ctx context.Context, r *Report) error {
	if r == nil || r.ID.IsZero() {
		return types.NewError(types.REPORT_INVALID, "report requires an id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.reports[r.ID]; exists {
		return types.NewError(types.REPORT_INVALID,
			fmt.Sprintf("report %s already exists", r.ID))
	}
	m.reports[r.ID] = copyReport(r)
	return nil
}

// Get retrieves a report by ID.
func (m *MemoryRepository) Get(ctx context.Context, id types.ID) (*Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored, exists := m.reports[id]
	if !exists {
		return nil, types.NewError(types.REPORT_NOT_FOUND,
			fmt.Sprintf("report %s not found", id))
	}
	return copyReport(stored), nil
}

// Update replaces the stored report and bumps its UpdatedAt.
func (m *MemoryRepository) Update(ctx context.Context, r *Report) error {
	if r == nil || r.ID.IsZero() {
		return types.NewError(types.REPORT_INVALID, "report requires an id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.reports[r.ID]; !exists {
		return types.NewError(types.REPORT_NOT_FOUND,
			fmt.Sprintf("report %s not found", r.ID))
	}
	updated := copyReport(r)
	updated.UpdatedAt = time.Now()
	m.reports[r.ID] = updated
	return nil
}

// List returns all reports, newest first.
func (m *MemoryRepository) List(ctx context.Context) ([]*Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Report, 0, len(m.reports))
	for _, stored := range m.reports {
		out = append(out, copyReport(stored))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Delete removes a report by ID.
func (m *MemoryRepository) Delete(ctx context.Context, id types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.reports[id]; !exists {
		return types.NewError(types.REPORT_NOT_FOUND,
			fmt.Sprintf("report %s not found", id))
	}
	delete(m.reports, id)
	return nil
}

// copyReport deep-copies the maps so the store and callers stay isolated.
func copyReport(r *Report) *Report {
	dup := *r

	if r.DossierData != nil {
		dup.DossierData = make(map[string]any, len(r.DossierData))
		for k, v := range r.DossierData {
			dup.DossierData[k] = v
		}
	}
	if r.StageStates != nil {
		dup.StageStates = make(stage.RunStates, len(r.StageStates))
		for k, v := range r.StageStates {
			dup.StageStates[k] = v
		}
	}
	if r.StageResults != nil {
		dup.StageResults = make(map[stage.StageID]StageResult, len(r.StageResults))
		for k, v := range r.StageResults {
			dup.StageResults[k] = v
		}
	}
	return &dup
}
