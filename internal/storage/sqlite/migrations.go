package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// Migrate runs database migrations, applying any not yet recorded in
// schema_migrations.
func (s *DB) Migrate() error {
	ctx := context.Background()

	if err := s.createMigrationsTable(ctx); err != nil {
		return err
	}

	migrations := []migration{
		{version: 1, name: "jobs_and_payloads", up: migrateV1},
		{version: 2, name: "request_log_and_blocks", up: migrateV2},
		{version: 3, name: "pipeline_runs", up: migrateV3},
	}

	for _, m := range migrations {
		if err := s.runMigration(ctx, m); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
		}
	}

	return nil
}

type migration struct {
	version int
	name    string
	up      func(context.Context, *sql.Tx) error
}

func (s *DB) createMigrationsTable(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at INTEGER NOT NULL
	)`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

func (s *DB) runMigration(ctx context.Context, m migration) error {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.version).Scan(&count)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil // Already applied
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := m.up(ctx, tx); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, strftime('%s', 'now'))",
		m.version, m.name)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// migrateV1 creates the job store's core tables: jobs (one row per
// organisation number, tracking its current stage/status) and
// stage_payloads (the JSON blob each completed stage hands to the next).
func migrateV1(ctx context.Context, tx *sql.Tx) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			org_nr TEXT PRIMARY KEY,
			stage TEXT NOT NULL,
			status TEXT NOT NULL,
			priority INTEGER NOT NULL DEFAULT 0,
			attempts INTEGER NOT NULL DEFAULT 0,
			last_attempt INTEGER,
			error TEXT,
			cool_down_until INTEGER,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,

		// ClaimNext pulls pending jobs for a stage, highest priority and
		// oldest first; this index is the job store's sole ordering source
		// of truth, so no in-memory priority queue duplicates it.
		`CREATE INDEX IF NOT EXISTS idx_jobs_claim ON jobs(stage, status, priority DESC, created_at ASC)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_cooldown ON jobs(cool_down_until) WHERE cool_down_until IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status)`,

		`CREATE TABLE IF NOT EXISTS stage_payloads (
			org_nr TEXT NOT NULL,
			stage TEXT NOT NULL,
			payload TEXT NOT NULL,
			written_at INTEGER NOT NULL,
			PRIMARY KEY (org_nr, stage),
			FOREIGN KEY (org_nr) REFERENCES jobs(org_nr) ON DELETE CASCADE
		)`,
	}

	for _, query := range queries {
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w\nQuery: %s", err, query)
		}
	}
	return nil
}

// migrateV2 creates the politeness audit trail: request_log (one row per
// fetch attempt) and block_events (one row per time a host was judged to
// be blocking this client).
func migrateV2(ctx context.Context, tx *sql.Tx) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS request_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			org_nr TEXT,
			host TEXT NOT NULL,
			url TEXT NOT NULL,
			status_code INTEGER,
			outcome TEXT NOT NULL,
			attempt INTEGER NOT NULL,
			duration_ms INTEGER,
			requested_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_request_log_host ON request_log(host, requested_at)`,
		`CREATE INDEX IF NOT EXISTS idx_request_log_org ON request_log(org_nr)`,

		`CREATE TABLE IF NOT EXISTS block_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			host TEXT NOT NULL,
			org_nr TEXT,
			reason TEXT,
			detected_at INTEGER NOT NULL,
			cooldown_until INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_block_events_host ON block_events(host, detected_at DESC)`,
	}

	for _, query := range queries {
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w\nQuery: %s", err, query)
		}
	}
	return nil
}

// migrateV3 creates pipeline_runs, laid out for one row per `run`
// invocation. No code in this repository inserts into or reads from it.
func migrateV3(ctx context.Context, tx *sql.Tx) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS pipeline_runs (
			id TEXT PRIMARY KEY,
			started_at INTEGER NOT NULL,
			finished_at INTEGER,
			jobs_seeded INTEGER NOT NULL DEFAULT 0,
			jobs_completed INTEGER NOT NULL DEFAULT 0,
			jobs_failed INTEGER NOT NULL DEFAULT 0,
			jobs_blocked INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'running'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pipeline_runs_started ON pipeline_runs(started_at DESC)`,
	}

	for _, query := range queries {
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w\nQuery: %s", err, query)
		}
	}
	return nil
}
