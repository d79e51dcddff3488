// Package testutil provides testing utilities for the DRIMS backend.
// It includes testcontainers for PostgreSQL, sqlmock helpers,
// mock factories, and common test fixtures.
package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer wraps a testcontainers PostgreSQL instance
type PostgresContainer struct {
	*postgres.PostgresContainer
	DSN string
}

// PostgresContainerConfig configures the test PostgreSQL container
type PostgresContainerConfig struct {
	Database string
	Username string
	Password string
	Image    string // Optional: defaults to postgres:15-alpine
}

// DefaultPostgresConfig returns sensible defaults for test containers
func DefaultPostgresConfig() PostgresContainerConfig {
	return PostgresContainerConfig{
		Database: "drims_test",
		Username: "test",
		Password: "test",
		Image:    "postgres:15-alpine",
	}
}

// NewPostgresContainer creates a new PostgreSQL test container.
//
// Usage:
//
//	func TestMain(m *testing.M) {
//	    ctx := context.Background()
//	    container, err := testutil.NewPostgresContainer(ctx, testutil.DefaultPostgresConfig())
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer container.Terminate(ctx)
//
//	    // Run tests
//	    code := m.Run()
//	    os.Exit(code)
//	}
func NewPostgresContainer(ctx context.Context, cfg PostgresContainerConfig) (*PostgresContainer, error) {
	if cfg.Image == "" {
		cfg.Image = "postgres:15-alpine"
	}
	if cfg.Database == "" {
		cfg.Database = "drims_test"
	}
	if cfg.Username == "" {
		cfg.Username = "test"
	}
	if cfg.Password == "" {
		cfg.Password = "test"
	}

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage(cfg.Image),
		postgres.WithDatabase(cfg.Database),
		postgres.WithUsername(cfg.Username),
		postgres.WithPassword(cfg.Password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	return &PostgresContainer{
		PostgresContainer: container,
		DSN:               dsn,
	}, nil
}

// Connect returns a sqlx.DB connection to the container
func (c *PostgresContainer) Connect(ctx context.Context) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", c.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test database: %w", err)
	}
	return db, nil
}

// Terminate stops and removes the container
func (c *PostgresContainer) Terminate(ctx context.Context) error {
	return c.PostgresContainer.Terminate(ctx)
}

// CreateCoreSchema creates the inventory and relief tables used by
// integration tests. This mirrors the production migrations.
func (c *PostgresContainer) CreateCoreSchema(ctx context.Context, db *sqlx.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS fr_warehouse (
			id BIGSERIAL PRIMARY KEY,
			warehouse_name VARCHAR(255) NOT NULL,
			region_code VARCHAR(20),
			status_code CHAR(1) NOT NULL DEFAULT 'A',
			create_by_id BIGINT NOT NULL DEFAULT 0,
			create_dtime TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			update_by_id BIGINT NOT NULL DEFAULT 0,
			update_dtime TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			version_nbr INT NOT NULL DEFAULT 1
		);

		CREATE TABLE IF NOT EXISTS relief_item (
			id BIGSERIAL PRIMARY KEY,
			item_name VARCHAR(255) NOT NULL,
			uom_code VARCHAR(20) NOT NULL,
			can_expire_flag BOOLEAN NOT NULL DEFAULT FALSE,
			batch_tracked_flag BOOLEAN NOT NULL DEFAULT TRUE,
			status_code CHAR(1) NOT NULL DEFAULT 'A',
			create_by_id BIGINT NOT NULL DEFAULT 0,
			create_dtime TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			update_by_id BIGINT NOT NULL DEFAULT 0,
			update_dtime TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			version_nbr INT NOT NULL DEFAULT 1
		);

		CREATE TABLE IF NOT EXISTS fr_inventory (
			id BIGSERIAL PRIMARY KEY,
			warehouse_id BIGINT NOT NULL REFERENCES fr_warehouse(id),
			item_id BIGINT NOT NULL REFERENCES relief_item(id),
			usable_qty NUMERIC(14,3) NOT NULL DEFAULT 0,
			reserved_qty NUMERIC(14,3) NOT NULL DEFAULT 0,
			status_code CHAR(1) NOT NULL DEFAULT 'A',
			create_by_id BIGINT NOT NULL DEFAULT 0,
			create_dtime TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			update_by_id BIGINT NOT NULL DEFAULT 0,
			update_dtime TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			version_nbr INT NOT NULL DEFAULT 1,
			UNIQUE (warehouse_id, item_id)
		);

		CREATE TABLE IF NOT EXISTS item_batch (
			id BIGSERIAL PRIMARY KEY,
			inventory_id BIGINT NOT NULL REFERENCES fr_inventory(id),
			item_id BIGINT NOT NULL REFERENCES relief_item(id),
			batch_no VARCHAR(100),
			batch_date DATE,
			expiry_date DATE,
			usable_qty NUMERIC(14,3) NOT NULL DEFAULT 0,
			reserved_qty NUMERIC(14,3) NOT NULL DEFAULT 0,
			defective_qty NUMERIC(14,3) NOT NULL DEFAULT 0,
			expired_qty NUMERIC(14,3) NOT NULL DEFAULT 0,
			uom_code VARCHAR(20) NOT NULL,
			size_spec VARCHAR(100),
			avg_unit_value NUMERIC(14,2),
			verified_flag BOOLEAN NOT NULL DEFAULT FALSE,
			status_code CHAR(1) NOT NULL DEFAULT 'A',
			create_by_id BIGINT NOT NULL DEFAULT 0,
			create_dtime TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			update_by_id BIGINT NOT NULL DEFAULT 0,
			update_dtime TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			version_nbr INT NOT NULL DEFAULT 1,
			CONSTRAINT item_batch_reserved_within_usable CHECK (reserved_qty <= usable_qty),
			CONSTRAINT item_batch_qty_non_negative CHECK (
				usable_qty >= 0 AND reserved_qty >= 0 AND defective_qty >= 0 AND expired_qty >= 0
			),
			CONSTRAINT item_batch_expiry_after_batch_date CHECK (
				expiry_date IS NULL OR batch_date IS NULL OR expiry_date > batch_date
			)
		);

		CREATE TABLE IF NOT EXISTS relief_request (
			id BIGSERIAL PRIMARY KEY,
			requestor_name VARCHAR(255) NOT NULL,
			region_code VARCHAR(20),
			status_code VARCHAR(10) NOT NULL DEFAULT 'OPEN',
			create_by_id BIGINT NOT NULL DEFAULT 0,
			create_dtime TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			update_by_id BIGINT NOT NULL DEFAULT 0,
			update_dtime TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			version_nbr INT NOT NULL DEFAULT 1
		);

		CREATE TABLE IF NOT EXISTS relief_request_item (
			id BIGSERIAL PRIMARY KEY,
			reliefreq_id BIGINT NOT NULL REFERENCES relief_request(id),
			item_id BIGINT NOT NULL REFERENCES relief_item(id),
			requested_qty NUMERIC(14,3) NOT NULL,
			issue_qty NUMERIC(14,3) NOT NULL DEFAULT 0,
			uom_code VARCHAR(20) NOT NULL,
			create_by_id BIGINT NOT NULL DEFAULT 0,
			create_dtime TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			update_by_id BIGINT NOT NULL DEFAULT 0,
			update_dtime TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			version_nbr INT NOT NULL DEFAULT 1,
			UNIQUE (reliefreq_id, item_id)
		);

		CREATE TABLE IF NOT EXISTS relief_package (
			id BIGSERIAL PRIMARY KEY,
			reliefreq_id BIGINT NOT NULL REFERENCES relief_request(id),
			status_code VARCHAR(10) NOT NULL DEFAULT 'DRAFT',
			dispatch_dtime TIMESTAMPTZ,
			create_by_id BIGINT NOT NULL DEFAULT 0,
			create_dtime TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			update_by_id BIGINT NOT NULL DEFAULT 0,
			update_dtime TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			version_nbr INT NOT NULL DEFAULT 1
		);

		CREATE TABLE IF NOT EXISTS relief_package_item (
			id BIGSERIAL PRIMARY KEY,
			reliefpkg_id BIGINT NOT NULL REFERENCES relief_package(id),
			fr_inventory_id BIGINT NOT NULL REFERENCES fr_inventory(id),
			batch_id BIGINT NOT NULL REFERENCES item_batch(id),
			item_id BIGINT NOT NULL REFERENCES relief_item(id),
			allocated_qty NUMERIC(14,3) NOT NULL,
			uom_code VARCHAR(20) NOT NULL,
			create_by_id BIGINT NOT NULL DEFAULT 0,
			create_dtime TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			update_by_id BIGINT NOT NULL DEFAULT 0,
			update_dtime TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			version_nbr INT NOT NULL DEFAULT 1,
			CONSTRAINT relief_package_item_plan_key UNIQUE (reliefpkg_id, fr_inventory_id, batch_id, item_id)
		);

		CREATE TABLE IF NOT EXISTS app_user (
			id BIGSERIAL PRIMARY KEY,
			user_name VARCHAR(100) UNIQUE NOT NULL,
			display_name VARCHAR(255) NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			role_code VARCHAR(20) NOT NULL DEFAULT 'OPERATOR',
			status_code CHAR(1) NOT NULL DEFAULT 'A',
			create_dtime TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			update_dtime TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			version_nbr INT NOT NULL DEFAULT 1
		);
	`

	_, err := db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to create core schema: %w", err)
	}

	return nil
}
