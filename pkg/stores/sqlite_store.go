package stores

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
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	return &SQLiteStore{
		path: cfg.Path,
	}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	// Open database with SQLite-specific connection parameters
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection and set PRAGMAs
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Ensure foreign keys are enabled (connection-level setting)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	// Create migration source from embedded FS
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	// Create database driver
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	// Create migration instance
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	// Run migrations
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// BeginTx starts a new transaction
func (s *SQLiteStore) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
}

// CommitTx commits a transaction
func (s *SQLiteStore) CommitTx(tx *sql.Tx) error {
	return tx.Commit()
}

// RollbackTx rolls back a transaction
func (s *SQLiteStore) RollbackTx(tx *sql.Tx) error {
	return tx.Rollback()
}

// CreateApp creates a new app record
func (s *SQLiteStore) CreateApp(ctx context.Context, app *App) error {
	query := `
		INSERT INTO apps (id, status, config, exposed, domain, open_count, last_opened_at, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if app.Config == "" {
		app.Config = "{}"
	}
	if app.Version == 0 {
		app.Version = 1
	}
	now := time.Now().UTC()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	if app.UpdatedAt.IsZero() {
		app.UpdatedAt = now
	}

	_, err := s.db.ExecContext(ctx, query,
		app.ID,
		app.Status,
		app.Config,
		app.Exposed,
		app.Domain,
		app.OpenCount,
		app.LastOpenedAt,
		app.Version,
		app.CreatedAt,
		app.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}

	return nil
}

// GetApp retrieves an app by ID
func (s *SQLiteStore) GetApp(ctx context.Context, id string) (*App, error) {
	query := `
		SELECT id, status, config, exposed, domain, open_count, last_opened_at, version, created_at, updated_at
		FROM apps
		WHERE id = ?
	`

	app := &App{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&app.ID,
		&app.Status,
		&app.Config,
		&app.Exposed,
		&app.Domain,
		&app.OpenCount,
		&app.LastOpenedAt,
		&app.Version,
		&app.CreatedAt,
		&app.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("app %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get app: %w", err)
	}

	return app, nil
}

// ListApps lists all app records ordered by ID
func (s *SQLiteStore) ListApps(ctx context.Context) ([]*App, error) {
	query := `
		SELECT id, status, config, exposed, domain, open_count, last_opened_at, version, created_at, updated_at
		FROM apps
		ORDER BY id ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list apps: %w", err)
	}
	defer rows.Close()

	apps := []*App{}
	for rows.Next() {
		app := &App{}
		err := rows.Scan(
			&app.ID,
			&app.Status,
			&app.Config,
			&app.Exposed,
			&app.Domain,
			&app.OpenCount,
			&app.LastOpenedAt,
			&app.Version,
			&app.CreatedAt,
			&app.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan app: %w", err)
		}
		apps = append(apps, app)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating apps: %w", err)
	}

	return apps, nil
}

// UpdateAppStatus updates the status of an app and bumps its version counter
func (s *SQLiteStore) UpdateAppStatus(ctx context.Context, id string, status AppStatus) error {
	query := `
		UPDATE apps
		SET status = ?, version = version + 1, updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update app status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("app %s: %w", id, ErrNotFound)
	}

	return nil
}

// ReinstallApp refreshes the config, exposure flag and domain of an
// existing record and moves it back to installing. Both writes run in one
// transaction so the runner can never observe a reinstalled status with
// the old configuration still attached.
func (s *SQLiteStore) ReinstallApp(ctx context.Context, id string, config string, exposed bool, domain *string) error {
	if config == "" {
		config = "{}"
	}

	tx, err := s.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin reinstall: %w", err)
	}

	now := time.Now().UTC()

	result, err := tx.ExecContext(ctx, `
		UPDATE apps
		SET config = ?, exposed = ?, domain = ?, version = version + 1, updated_at = ?
		WHERE id = ?
	`, config, exposed, domain, now, id)
	if err != nil {
		_ = s.RollbackTx(tx)
		return fmt.Errorf("failed to set app config: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		_ = s.RollbackTx(tx)
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		_ = s.RollbackTx(tx)
		return fmt.Errorf("app %s: %w", id, ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE apps
		SET status = ?, version = version + 1, updated_at = ?
		WHERE id = ?
	`, AppStatusInstalling, now, id); err != nil {
		_ = s.RollbackTx(tx)
		return fmt.Errorf("failed to update app status: %w", err)
	}

	if err := s.CommitTx(tx); err != nil {
		return fmt.Errorf("failed to commit reinstall: %w", err)
	}

	return nil
}

// RecordAppOpen increments the open counter and stamps the last open time
func (s *SQLiteStore) RecordAppOpen(ctx context.Context, id string) error {
	query := `
		UPDATE apps
		SET open_count = open_count + 1, last_opened_at = ?, version = version + 1, updated_at = ?
		WHERE id = ?
	`

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, query, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to record app open: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("app %s: %w", id, ErrNotFound)
	}

	return nil
}

// GetSystemStatus retrieves the platform-wide status. A missing row reads
// as RUNNING, matching the migration's seeded default.
func (s *SQLiteStore) GetSystemStatus(ctx context.Context) (SystemStatus, error) {
	query := `SELECT status FROM system_status WHERE key = ?`

	var status SystemStatus
	err := s.db.QueryRowContext(ctx, query, systemKey).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return SystemStatusRunning, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get system status: %w", err)
	}

	return status, nil
}

// SetSystemStatus writes the platform-wide status
func (s *SQLiteStore) SetSystemStatus(ctx context.Context, status SystemStatus) error {
	query := `
		INSERT INTO system_status (key, status, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at
	`

	if _, err := s.db.ExecContext(ctx, query, systemKey, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to set system status: %w", err)
	}

	return nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}
