package records

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/packforge/packforge/pkg/manifest"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store implements the installation record ledger on SQLite: per-generation
// workload install intents and per-pack usage-marker sets. Every mutation
// touches a single row and is idempotent, so partial-crash recovery can see
// exactly which markers were applied.
type Store struct {
	db   *sql.DB
	path string
}

// Config holds record store configuration.
type Config struct {
	// Path is the SQLite database path, or ":memory:" for tests.
	Path string
}

// NewStore creates a record store instance. Call Init before use.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return &Store{path: cfg.Path}, nil
}

// Init opens the database and enables WAL mode.
func (s *Store) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// An in-memory database exists per connection; pin the pool to one.
	if s.path == ":memory:" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *Store) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (s *Store) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}

// AddWorkload records the install intent for a workload. Re-adding an
// existing intent is a no-op.
func (s *Store) AddWorkload(ctx context.Context, gen manifest.Generation, id manifest.WorkloadID) error {
	query := `
		INSERT INTO installed_workloads (generation, workload_id)
		VALUES (?, ?)
		ON CONFLICT (generation, workload_id) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, string(gen), string(id)); err != nil {
		return fmt.Errorf("failed to add workload record: %w", err)
	}
	return nil
}

// RemoveWorkload removes the install intent for a workload. Removing an
// absent intent is a no-op.
func (s *Store) RemoveWorkload(ctx context.Context, gen manifest.Generation, id manifest.WorkloadID) error {
	query := `DELETE FROM installed_workloads WHERE generation = ? AND workload_id = ?`
	if _, err := s.db.ExecContext(ctx, query, string(gen), string(id)); err != nil {
		return fmt.Errorf("failed to remove workload record: %w", err)
	}
	return nil
}

// InstalledWorkloads returns the generation's recorded workloads.
func (s *Store) InstalledWorkloads(ctx context.Context, gen manifest.Generation) ([]manifest.WorkloadID, error) {
	query := `
		SELECT workload_id FROM installed_workloads
		WHERE generation = ?
		ORDER BY workload_id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, string(gen))
	if err != nil {
		return nil, fmt.Errorf("failed to list workload records: %w", err)
	}
	defer rows.Close()

	ids := []manifest.WorkloadID{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan workload record: %w", err)
		}
		ids = append(ids, manifest.WorkloadID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workload records: %w", err)
	}

	return ids, nil
}

// Generations returns every generation holding any record.
func (s *Store) Generations(ctx context.Context) ([]manifest.Generation, error) {
	query := `
		SELECT generation FROM installed_workloads
		UNION
		SELECT generation FROM pack_markers
		ORDER BY generation ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list generations: %w", err)
	}
	defer rows.Close()

	gens := []manifest.Generation{}
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, fmt.Errorf("failed to scan generation: %w", err)
		}
		gens = append(gens, manifest.Generation(g))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating generations: %w", err)
	}

	return gens, nil
}

// AddPackMarker records that the generation requires the pack. Idempotent.
func (s *Store) AddPackMarker(ctx context.Context, gen manifest.Generation, pkg manifest.ConcretePackage) error {
	query := `
		INSERT INTO pack_markers (generation, pack_id, pack_version)
		VALUES (?, ?, ?)
		ON CONFLICT (generation, pack_id, pack_version) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, string(gen), pkg.ID, pkg.Version); err != nil {
		return fmt.Errorf("failed to add pack marker: %w", err)
	}
	return nil
}

// RemovePackMarker removes the generation's marker for the pack. Idempotent.
func (s *Store) RemovePackMarker(ctx context.Context, gen manifest.Generation, pkg manifest.ConcretePackage) error {
	query := `DELETE FROM pack_markers WHERE generation = ? AND pack_id = ? AND pack_version = ?`
	if _, err := s.db.ExecContext(ctx, query, string(gen), pkg.ID, pkg.Version); err != nil {
		return fmt.Errorf("failed to remove pack marker: %w", err)
	}
	return nil
}

// PackMarkers returns the generations whose marker sets contain the pack.
func (s *Store) PackMarkers(ctx context.Context, pkg manifest.ConcretePackage) ([]manifest.Generation, error) {
	query := `
		SELECT generation FROM pack_markers
		WHERE pack_id = ? AND pack_version = ?
		ORDER BY generation ASC
	`

	rows, err := s.db.QueryContext(ctx, query, pkg.ID, pkg.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to list pack markers: %w", err)
	}
	defer rows.Close()

	gens := []manifest.Generation{}
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, fmt.Errorf("failed to scan pack marker: %w", err)
		}
		gens = append(gens, manifest.Generation(g))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pack markers: %w", err)
	}

	return gens, nil
}

// GenerationPackMarkers returns the generation's full marker set.
func (s *Store) GenerationPackMarkers(ctx context.Context, gen manifest.Generation) ([]manifest.ConcretePackage, error) {
	query := `
		SELECT pack_id, pack_version FROM pack_markers
		WHERE generation = ?
		ORDER BY pack_id, pack_version ASC
	`

	rows, err := s.db.QueryContext(ctx, query, string(gen))
	if err != nil {
		return nil, fmt.Errorf("failed to list generation pack markers: %w", err)
	}
	defer rows.Close()

	pkgs := []manifest.ConcretePackage{}
	for rows.Next() {
		var pkg manifest.ConcretePackage
		if err := rows.Scan(&pkg.ID, &pkg.Version); err != nil {
			return nil, fmt.Errorf("failed to scan pack marker: %w", err)
		}
		pkgs = append(pkgs, pkg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pack markers: %w", err)
	}

	return pkgs, nil
}

// DropGeneration removes every record the generation holds, atomically.
func (s *Store) DropGeneration(ctx context.Context, gen manifest.Generation) error {
	txn, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = txn.Rollback() }()

	if _, err := txn.ExecContext(ctx, `DELETE FROM installed_workloads WHERE generation = ?`, string(gen)); err != nil {
		return fmt.Errorf("failed to drop workload records: %w", err)
	}
	if _, err := txn.ExecContext(ctx, `DELETE FROM pack_markers WHERE generation = ?`, string(gen)); err != nil {
		return fmt.Errorf("failed to drop pack markers: %w", err)
	}

	if err := txn.Commit(); err != nil {
		return fmt.Errorf("failed to commit generation drop: %w", err)
	}
	return nil
}
