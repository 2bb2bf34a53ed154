package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mtb-technology/reportflow/internal/report"
	"github.com/mtb-technology/reportflow/internal/stage"
	"github.com/mtb-technology/reportflow/internal/types"
)

// ReportDAO is the SQLite-backed report.Repository implementation. Nested
// structures (dossier, stage states, stage results) are stored as JSON
// columns, mirroring how the rest of the system treats them as documents.
type ReportDAO struct {
	db *DB
}

// NewReportDAO creates a report DAO on the given database.
func NewReportDAO(db *DB) *ReportDAO {
	return &ReportDAO{db: db}
}

var _ report.Repository = (*ReportDAO)(nil)

// Create stores a new report.
func (d *ReportDAO) Create(ctx context.Context, r *report.Report) error {
	if r == nil || r.ID.IsZero() {
		return types.NewError(types.REPORT_INVALID, "report requires an id")
	}

	dossier, states, results, err := marshalReportColumns(r)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO reports (
			id, title, status, dossier_data, current_stage, stage_states,
			stage_results, latest_concept_version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = d.db.conn.ExecContext(ctx, query,
		r.ID,
		r.Title,
		r.Status,
		dossier,
		r.CurrentStage,
		states,
		results,
		r.LatestConceptVersion,
		r.CreatedAt,
		r.UpdatedAt,
	)
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to create report", err)
	}
	return nil
}

// Get retrieves a report by ID.
func (d *ReportDAO) Get(ctx context.Context, id types.ID) (*report.Report, error) {
	query := `
		SELECT id, title, status, dossier_data, current_stage, stage_states,
			stage_results, latest_concept_version, created_at, updated_at
		FROM reports
		WHERE id = ?
	`

	var r report.Report
	var dossier, states, results sql.NullString

	err := d.db.conn.QueryRowContext(ctx, query, id).Scan(
		&r.ID,
		&r.Title,
		&r.Status,
		&dossier,
		&r.CurrentStage,
		&states,
		&results,
		&r.LatestConceptVersion,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, types.NewError(types.REPORT_NOT_FOUND, fmt.Sprintf("report %s not found", id))
	}
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to get report", err)
	}

	if err := unmarshalReportColumns(&r, dossier, states, results); err != nil {
		return nil, err
	}
	return &r, nil
}

// Update replaces the stored report.
func (d *ReportDAO) Update(ctx context.Context, r *report.Report) error {
	if r == nil || r.ID.IsZero() {
		return types.NewError(types.REPORT_INVALID, "report requires an id")
	}

	dossier, states, results, err := marshalReportColumns(r)
	if err != nil {
		return err
	}

	query := `
		UPDATE reports SET
			title = ?, status = ?, dossier_data = ?, current_stage = ?,
			stage_states = ?, stage_results = ?, latest_concept_version = ?,
			updated_at = ?
		WHERE id = ?
	`
	res, err := d.db.conn.ExecContext(ctx, query,
		r.Title,
		r.Status,
		dossier,
		r.CurrentStage,
		states,
		results,
		r.LatestConceptVersion,
		time.Now(),
		r.ID,
	)
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to update report", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to check update result", err)
	}
	if affected == 0 {
		return types.NewError(types.REPORT_NOT_FOUND, fmt.Sprintf("report %s not found", r.ID))
	}
	return nil
}

// List returns all reports, newest first.
func (d *ReportDAO) List(ctx context.Context) ([]*report.Report, error) {
	query := `
		SELECT id, title, status, dossier_data, current_stage, stage_states,
			stage_results, latest_concept_version, created_at, updated_at
		FROM reports
		ORDER BY created_at DESC
	`
	rows, err := d.db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to list reports", err)
	}
	defer rows.Close()

	var out []*report.Report
	for rows.Next() {
		var r report.Report
		var dossier, states, results sql.NullString

		if err := rows.Scan(
			&r.ID,
			&r.Title,
			&r.Status,
			&dossier,
			&r.CurrentStage,
			&states,
			&results,
			&r.LatestConceptVersion,
			&r.CreatedAt,
			&r.UpdatedAt,
		); err != nil {
			return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to scan report", err)
		}
		if err := unmarshalReportColumns(&r, dossier, states, results); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to iterate reports", err)
	}
	return out, nil
}

// Delete removes a report by ID.
func (d *ReportDAO) Delete(ctx context.Context, id types.ID) error {
	res, err := d.db.conn.ExecContext(ctx, "DELETE FROM reports WHERE id = ?", id)
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to delete report", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to check delete result", err)
	}
	if affected == 0 {
		return types.NewError(types.REPORT_NOT_FOUND, fmt.Sprintf("report %s not found", id))
	}
	return nil
}

func marshalReportColumns(r *report.Report) (dossier, states, results string, err error) {
	if r.DossierData != nil {
		raw, err := json.Marshal(r.DossierData)
		if err != nil {
			return "", "", "", types.WrapError(types.DB_QUERY_FAILED, "failed to marshal dossier data", err)
		}
		dossier = string(raw)
	}
	if r.StageStates != nil {
		raw, err := json.Marshal(r.StageStates)
		if err != nil {
			return "", "", "", types.WrapError(types.DB_QUERY_FAILED, "failed to marshal stage states", err)
		}
		states = string(raw)
	}
	if r.StageResults != nil {
		raw, err := json.Marshal(r.StageResults)
		if err != nil {
			return "", "", "", types.WrapError(types.DB_QUERY_FAILED, "failed to marshal stage results", err)
		}
		results = string(raw)
	}
	return dossier, states, results, nil
}

func unmarshalReportColumns(r *report.Report, dossier, states, results sql.NullString) error {
	if dossier.Valid && dossier.String != "" {
		if err := json.Unmarshal([]byte(dossier.String), &r.DossierData); err != nil {
			return types.WrapError(types.DB_QUERY_FAILED, "failed to unmarshal dossier data", err)
		}
	}
	if states.Valid && states.String != "" {
		if err := json.Unmarshal([]byte(states.String), &r.StageStates); err != nil {
			return types.WrapError(types.DB_QUERY_FAILED, "failed to unmarshal stage states", err)
		}
	}
	if results.Valid && results.String != "" {
		if err := json.Unmarshal([]byte(results.String), &r.StageResults); err != nil {
			return types.WrapError(types.DB_QUERY_FAILED, "failed to unmarshal stage results", err)
		}
	}
	if r.StageStates == nil {
		r.StageStates = make(stage.RunStates)
	}
	if r.StageResults == nil {
		r.StageResults = make(map[stage.StageID]report.StageResult)
	}
	return nil
}
