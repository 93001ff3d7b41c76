package store

import (
	"context"
	stdsql "database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver for database/sql

	"github.com/medcode-ai/opnote/pkg/assembler"
)

//go:embed migrations
var migrationsFS embed.FS

// PostgresStore is the production ArtifactStore.
type PostgresStore struct {
	db *stdsql.DB
}

// NewPostgresStore opens a connection pool, runs pending migrations, and
// verifies connectivity.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	db, err := stdsql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

// runMigrations applies the embedded migrations.
func runMigrations(db *stdsql.DB) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Save implements ArtifactStore with an upsert on case ID.
func (s *PostgresStore) Save(ctx context.Context, output assembler.CaseOutput) error {
	payload, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("failed to marshal case output: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO case_outputs (case_id, output, created_at, updated_at)
		 VALUES ($1, $2, now(), now())
		 ON CONFLICT (case_id) DO UPDATE SET output = EXCLUDED.output, updated_at = now()`,
		output.CaseID, payload)
	if err != nil {
		return fmt.Errorf("failed to save case output: %w", err)
	}
	return nil
}

// Get implements ArtifactStore.
func (s *PostgresStore) Get(ctx context.Context, caseID string) (*StoredOutput, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT case_id, output, created_at, updated_at FROM case_outputs WHERE case_id = $1`,
		caseID)

	var stored StoredOutput
	var payload []byte
	if err := row.Scan(&stored.CaseID, &payload, &stored.CreatedAt, &stored.UpdatedAt); err != nil {
		if errors.Is(err, stdsql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load case output: %w", err)
	}
	if err := json.Unmarshal(payload, &stored.Output); err != nil {
		return nil, fmt.Errorf("failed to unmarshal case output: %w", err)
	}
	return &stored, nil
}

// List implements ArtifactStore, newest first.
func (s *PostgresStore) List(ctx context.Context, limit int) ([]StoredOutput, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT case_id, output, created_at, updated_at FROM case_outputs
		 ORDER BY updated_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list case outputs: %w", err)
	}
	defer rows.Close()

	var outputs []StoredOutput
	for rows.Next() {
		var stored StoredOutput
		var payload []byte
		if err := rows.Scan(&stored.CaseID, &payload, &stored.CreatedAt, &stored.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan case output: %w", err)
		}
		if err := json.Unmarshal(payload, &stored.Output); err != nil {
			return nil, fmt.Errorf("failed to unmarshal case output: %w", err)
		}
		outputs = append(outputs, stored)
	}
	return outputs, rows.Err()
}

// DB returns the underlying pool for health checks.
func (s *PostgresStore) DB() *stdsql.DB {
	return s.db
}

// Close implements ArtifactStore.
func (s *PostgresStore) Close() {
	s.db.Close()
}
