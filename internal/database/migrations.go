package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mtb-technology/reportflow/internal/types"
)

// migration represents a single schema migration.
type migration struct {
	version int
	name    string
	up      string
}

// getMigrations returns all available migrations in order.
func getMigrations() []migration {
	return []migration{
		{
			version: 1,
			name:    "reports_table",
			up: `
CREATE TABLE IF NOT EXISTS reports (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	status TEXT NOT NULL,
	dossier_data TEXT,
	current_stage TEXT,
	stage_states TEXT,
	stage_results TEXT,
	latest_concept_version INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reports_status ON reports(status);
CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at);
`,
		},
		{
			version: 2,
			name:    "concept_snapshots_table",
			up: `
CREATE TABLE IF NOT EXISTS concept_snapshots (
	report_id TEXT NOT NULL,
	version INTEGER NOT NULL,
	stage_id TEXT NOT NULL,
	content TEXT NOT NULL,
	derived_from INTEGER NOT NULL DEFAULT 0,
	description TEXT,
	created_at TIMESTAMP NOT NULL,
	PRIMARY KEY (report_id, version)
);
`,
		},
	}
}

// Migrator applies pending schema migrations.
type Migrator struct {
	db *DB
}

// NewMigrator creates a migrator for the given database.
func NewMigrator(db *DB) *Migrator {
	return &Migrator{db: db}
}

// Migrate applies all pending migrations in order, tracking progress in a
// schema_migrations table. Each migration runs in its own transaction.
func (m *Migrator) Migrate(ctx context.Context) error {
	if err := m.ensureMigrationsTable(ctx); err != nil {
		return err
	}

	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return err
	}

	for _, mig := range getMigrations() {
		if mig.version <= current {
			continue
		}
		err := m.db.WithTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, mig.up); err != nil {
				return types.WrapError(types.DB_MIGRATION_FAILED,
					fmt.Sprintf("migration %d (%s) failed", mig.version, mig.name), err)
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, CURRENT_TIMESTAMP)",
				mig.version, mig.name)
			if err != nil {
				return types.WrapError(types.DB_MIGRATION_FAILED,
					fmt.Sprintf("recording migration %d failed", mig.version), err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// CurrentVersion returns the highest applied migration version.
func (m *Migrator) CurrentVersion(ctx context.Context) (int, error) {
	if err := m.ensureMigrationsTable(ctx); err != nil {
		return 0, err
	}

	var version sql.NullInt64
	err := m.db.conn.QueryRowContext(ctx,
		"SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, types.WrapError(types.DB_MIGRATION_FAILED, "failed to read schema version", err)
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}

func (m *Migrator) ensureMigrationsTable(ctx context.Context) error {
	_, err := m.db.conn.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	applied_at TIMESTAMP NOT NULL
);`)
	if err != nil {
		return types.WrapError(types.DB_MIGRATION_FAILED, "failed to create migrations table", err)
	}
	return nil
}
