package database

import (
	"context"
	"database/sql"

	"github.com/mtb-technology/reportflow/internal/types"
	"github.com/mtb-technology/reportflow/internal/version"
)

// SnapshotDAO archives concept snapshots to SQLite. Rows are append-only;
// the version store never updates or deletes an archived snapshot.
type SnapshotDAO struct {
	db *DB
}

// NewSnapshotDAO creates a snapshot DAO on the given database.
func NewSnapshotDAO(db *DB) *SnapshotDAO {
	return &SnapshotDAO{db: db}
}

var _ version.Archiver = (*SnapshotDAO)(nil)

// Save persists one snapshot.
func (d *SnapshotDAO) Save(ctx context.Context, snapshot version.ConceptSnapshot) error {
	query := `
		INSERT INTO concept_snapshots (
			report_id, version, stage_id, content, derived_from, description, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := d.db.conn.ExecContext(ctx, query,
		snapshot.ReportID,
		snapshot.Version,
		snapshot.StageID,
		snapshot.Content,
		snapshot.DerivedFrom,
		snapshot.Description,
		snapshot.CreatedAt,
	)
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to save snapshot", err)
	}
	return nil
}

// LoadAll returns every archived snapshot, oldest first.
func (d *SnapshotDAO) LoadAll(ctx context.Context) ([]version.ConceptSnapshot, error) {
	query := `
		SELECT report_id, version, stage_id, content, derived_from, description, created_at
		FROM concept_snapshots
		ORDER BY report_id, version
	`
	rows, err := d.db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to load snapshots", err)
	}
	defer rows.Close()

	var out []version.ConceptSnapshot
	for rows.Next() {
		var snapshot version.ConceptSnapshot
		var description sql.NullString

		if err := rows.Scan(
			&snapshot.ReportID,
			&snapshot.Version,
			&snapshot.StageID,
			&snapshot.Content,
			&snapshot.DerivedFrom,
			&description,
			&snapshot.CreatedAt,
		); err != nil {
			return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to scan snapshot", err)
		}
		snapshot.Description = description.String
		out = append(out, snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to iterate snapshots", err)
	}
	return out, nil
}
