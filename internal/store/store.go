// Package store persists connections, operations and metric samples in a
// local SQLite database.
package store

import (
	"context"
	"embed"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/rileyhilliard/dgxops/internal/errors"
	"github.com/rileyhilliard/dgxops/internal/logger"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	// ErrNotFound is wrapped by every lookup that matches no row.
	ErrNotFound = stderrors.New("record not found")

	// ErrStaleVersion is returned when an operation update was computed
	// from a version that has since been superseded.
	ErrStaleVersion = stderrors.New("record changed since it was read")
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Store provides access to all repositories.
type Store struct {
	db          *sqlx.DB
	log         logger.Logger
	Connections ConnectionRepository
	Operations  OperationRepository
	Metrics     MetricsRepository
}

// Open connects to the database at path, creating it if needed, and
// applies pending migrations.
func Open(ctx context.Context, path string, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.Noop()
	}

	if path != MemoryPath && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, storeError(err, "Can't create the database directory")
		}
	}

	db, err := sqlx.ConnectContext(ctx, "sqlite", dsn(path))
	if err != nil {
		return nil, storeError(err, "Failed to open database "+path)
	}

	// SQLite works best with a single connection; it also keeps an
	// in-memory database alive for the life of the pool.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := runMigrations(db, log); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		db:          db,
		log:         log,
		Connections: NewConnectionRepository(db),
		Operations:  NewOperationRepository(db),
		Metrics:     NewMetricsRepository(db),
	}, nil
}

func dsn(path string) string {
	pragmas := "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"
	if path == MemoryPath {
		return "file::memory:?" + pragmas
	}
	if strings.HasPrefix(path, "file:") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return path + sep + pragmas
	}
	return "file:" + path + "?" + pragmas + "&_pragma=journal_mode(WAL)"
}

// runMigrations applies the embedded schema. The migrate instance is not
// closed: its driver would close the shared *sql.DB with it.
func runMigrations(db *sqlx.DB, log logger.Logger) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return storeError(err, "Failed to load migrations")
	}

	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return storeError(err, "Failed to prepare migrations")
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return storeError(err, "Failed to prepare migrations")
	}

	if err := m.Up(); err != nil && !stderrors.Is(err, migrate.ErrNoChange) {
		return storeError(err, "Failed to run migrations")
	}

	version, _, _ := m.Version()
	log.Debug("database schema at version %d", version)
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// DeleteConnection removes a connection. Without force it refuses when
// operations or metric history still reference the connection; with force
// those rows are removed in the same transaction.
func (s *Store) DeleteConnection(ctx context.Context, id string, force bool) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return storeError(err, "Failed to start transaction")
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.GetContext(ctx, &exists, `SELECT COUNT(*) FROM connections WHERE id = ?`, id); err != nil {
		return storeError(err, "Failed to look up connection")
	}
	if exists == 0 {
		return notFound("Connection", id)
	}

	var ops, samples int
	if err := tx.GetContext(ctx, &ops, `SELECT COUNT(*) FROM operations WHERE connection_id = ?`, id); err != nil {
		return storeError(err, "Failed to count operations")
	}
	if err := tx.GetContext(ctx, &samples, `SELECT COUNT(*) FROM metric_samples WHERE connection_id = ?`, id); err != nil {
		return storeError(err, "Failed to count metric samples")
	}

	if !force && (ops > 0 || samples > 0) {
		return errors.New(errors.ErrState,
			fmt.Sprintf("Connection still has %d operation(s) and %d metric sample(s)", ops, samples),
			"Delete with force to remove its history too")
	}

	for _, q := range []string{
		`DELETE FROM operations WHERE connection_id = ?`,
		`DELETE FROM metric_samples WHERE connection_id = ?`,
		`DELETE FROM connections WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return storeError(err, "Failed to delete connection")
		}
	}

	if err := tx.Commit(); err != nil {
		return storeError(err, "Failed to commit delete")
	}
	if force && (ops > 0 || samples > 0) {
		s.log.Info("deleted connection %s with %d operation(s) and %d sample(s)", id, ops, samples)
	}
	return nil
}

func storeError(err error, msg string) error {
	return errors.WrapWithCode(err, errors.ErrStore, msg, "Check the database path and disk space")
}

func notFound(kind, id string) error {
	return errors.WrapWithCode(ErrNotFound, errors.ErrNotFound,
		fmt.Sprintf("%s '%s' not found", kind, id), "")
}
