package report

import (
	"context"

	"github.com/mtb-technology/reportflow/internal/types"
)

// Repository is the persistence contract for reports. The pipeline core
// depends only on this interface; the SQLite DAO and the in-memory
// implementation both satisfy it.
type Repository interface {
	// Create stores a new report. Storing an existing ID is an error.
	Create(ctx context.Context, r *Report) error

	// Get retrieves a report by ID, returning REPORT_NOT_FOUND when absent.
	Get(ctx context.Context, id types.ID) (*Report, error)

	// Update replaces the stored report. Updating a missing ID is an error.
	Update(ctx context.Context, r *Report) error

	// List returns all reports, newest first.
	List(ctx context.Context) ([]*Report, error)

	// Delete removes a report by ID.
	Delete(ctx context.Context, id types.ID) error
}
