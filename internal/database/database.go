package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mtb-technology/reportflow/internal/types"
)

// DB wraps the SQLite database connection with additional functionality.
type DB struct {
	conn *sql.DB
	path string
}

// Config holds database configuration options.
type Config struct {
	Path            string        // Database file path
	MaxOpenConns    int           // Maximum number of open connections
	MaxIdleConns    int           // Maximum number of idle connections
	ConnMaxLifetime time.Duration // Maximum connection lifetime
	BusyTimeout     time.Duration // SQLite busy timeout
}

// DefaultConfig returns sensible defaults for database configuration.
func DefaultConfig(path string) Config {
	return Config{
		Path:            path,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		BusyTimeout:     5 * time.Second,
	}
}

// Open creates a new database connection with WAL mode, foreign keys, and
// a busy timeout for better concurrency.
func Open(path string) (*DB, error) {
	return OpenWithConfig(DefaultConfig(path))
}

// OpenWithConfig creates a new database connection with custom configuration.
func OpenWithConfig(cfg Config) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=%d",
		cfg.Path,
		int(cfg.BusyTimeout.Milliseconds()),
	)

	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, types.WrapError(types.DB_OPEN_FAILED, "failed to open database", err)
	}

	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, types.WrapError(types.DB_OPEN_FAILED, "failed to ping database", err)
	}

	db := &DB{
		conn: conn,
		path: cfg.Path,
	}

	var journalMode string
	if err := db.conn.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		conn.Close()
		return nil, types.WrapError(types.DB_OPEN_FAILED, "failed to verify journal mode", err)
	}
	if journalMode != "wal" {
		conn.Close()
		return nil, types.NewError(types.DB_OPEN_FAILED,
			fmt.Sprintf("WAL mode not enabled (got %s)", journalMode))
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	return db.conn.Close()
}

// Conn returns the underlying sql.DB connection.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Health performs a health check on the database connection.
func (db *DB) Health(ctx context.Context) types.HealthStatus {
	if err := db.conn.PingContext(ctx); err != nil {
		return types.Unhealthy(fmt.Sprintf("ping failed: %v", err))
	}

	var result int
	if err := db.conn.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return types.Unhealthy(fmt.Sprintf("query failed: %v", err))
	}
	return types.Healthy("database reachable")
}

// WithTx executes fn within a transaction, rolling back on error.
func (db *DB) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to begin transaction", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return types.WrapError(types.DB_QUERY_FAILED,
				fmt.Sprintf("rollback failed after error: %v", err), rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to commit transaction", err)
	}
	return nil
}
