// Package database provides the PostgreSQL audit archive of finished
// analysis sessions and its migrations.
package database

import (
	"context"
	stdsql "database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver for database/sql
)

//go:embed migrations
var migrationsFS embed.FS

const migrationsDir = "migrations"

// Client owns the archive connection pool. The schema is migrated to the
// embedded version before a Client is returned.
type Client struct {
	db            *stdsql.DB
	schemaVersion uint
}

// DB returns the underlying pool.
func (c *Client) DB() *stdsql.DB {
	return c.db
}

// SchemaVersion is the migration version applied when the client opened.
func (c *Client) SchemaVersion() uint {
	return c.schemaVersion
}

// Close closes the connection pool.
func (c *Client) Close() error {
	return c.db.Close()
}

// NewClient connects using cfg, applies pool limits and migrates the schema.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	db, err := stdsql.Open("pgx", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	cfg.applyPool(db)
	return open(ctx, db, cfg.Database)
}

// NewClientFromDSN connects with a raw connection string, keeping the
// driver's default pool limits. Used by tests against throwaway databases.
func NewClientFromDSN(ctx context.Context, dsn, database string) (*Client, error) {
	db, err := stdsql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return open(ctx, db, database)
}

func open(ctx context.Context, db *stdsql.DB, database string) (*Client, error) {
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	version, err := migrateUp(db, database)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("Archive schema ready", "database", database, "schema_version", version)

	return &Client{db: db, schemaVersion: version}, nil
}

// migrateUp applies pending embedded migrations and returns the resulting
// schema version.
func migrateUp(db *stdsql.DB, database string) (uint, error) {
	if ok, err := hasEmbeddedMigrations(); err != nil {
		return 0, err
	} else if !ok {
		return 0, errors.New("no embedded migration files found, binary may be built incorrectly")
	}

	sourceDriver, err := iofs.New(migrationsFS, migrationsDir)
	if err != nil {
		return 0, fmt.Errorf("failed to create migration source: %w", err)
	}
	// Close only the source driver. m.Close() would also close the shared *sql.DB.
	defer func() { _ = sourceDriver.Close() }()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return 0, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, database, driver)
	if err != nil {
		return 0, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("schema version %d is dirty", version)
	}
	return version, nil
}

func hasEmbeddedMigrations() (bool, error) {
	matches, err := fs.Glob(migrationsFS, migrationsDir+"/*.up.sql")
	if err != nil {
		return false, fmt.Errorf("failed to read embedded migrations: %w", err)
	}
	return len(matches) > 0, nil
}
