package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"
	"maragu.dev/goqite"
	_ "modernc.org/sqlite"
)

// Config configures the durable job store's SQLite connection. The
// Graph Sink's goqite-backed queue shares the same database file and
// connection, so its schema is initialized here too.
type Config struct {
	Path           string
	Environment    string // "development" enables ResetOnStartup
	ResetOnStartup bool
	BusyTimeoutMS  int
	CacheSizeMB    int
	WALMode        bool
}

// DB manages the SQLite database connection backing the job store and
// the goqite-based graph-sink queue.
type DB struct {
	db     *sql.DB
	logger arbor.ILogger
	config *Config
}

// Open creates a new SQLite database connection, applies pragmas, sets
// up the goqite queue schema, and runs the job-store migrations.
func Open(logger arbor.ILogger, config *Config) (*DB, error) {
	dir := filepath.Dir(config.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	if config.ResetOnStartup {
		if config.Environment != "development" {
			logger.Warn().
				Str("environment", config.Environment).
				Msg("reset_on_startup is enabled but environment is not 'development' - ignoring reset request for safety")
		} else {
			if err := resetDatabase(logger, config.Path); err != nil {
				return nil, fmt.Errorf("failed to reset database: %w", err)
			}
		}
	}

	logger.Debug().Str("path", config.Path).Msg("Opening database connection")

	// modernc.org/sqlite uses "sqlite" driver name (not "sqlite3")
	db, err := sql.Open("sqlite", config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	logger.Debug().Msg("Database connection opened, configuring connection pool")

	// SQLite doesn't handle concurrent writers well; this store serializes
	// all writes through a single connection and relies on WAL for readers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &DB{
		db:     db,
		logger: logger,
		config: config,
	}

	logger.Debug().Msg("Initializing goqite queue schema")

	if err := goqite.Setup(context.Background(), db); err != nil {
		errMsg := err.Error()
		if strings.Contains(errMsg, "table goqite already exists") {
			logger.Debug().Msg("goqite queue schema already exists (skipping initialization)")
		} else {
			db.Close()
			return nil, fmt.Errorf("failed to initialize goqite schema: %w", err)
		}
	} else {
		logger.Info().Msg("goqite queue schema initialized")
	}

	if err := s.configure(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	logger.Info().Str("path", config.Path).Msg("SQLite job store initialized")
	return s, nil
}

// configure sets up SQLite pragmas and settings.
func (s *DB) configure() error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA cache_size = -%d", s.config.CacheSizeMB*1024), // Negative for KB
		fmt.Sprintf("PRAGMA busy_timeout = %d", s.config.BusyTimeoutMS),
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}

	if s.config.WALMode {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}

	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	if s.config.WALMode {
		var journalMode string
		if err := s.db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to verify journal mode")
		} else {
			s.logger.Info().
				Str("journal_mode", journalMode).
				Int("busy_timeout_ms", s.config.BusyTimeoutMS).
				Int("cache_size_mb", s.config.CacheSizeMB).
				Msg("SQLite configuration applied")
		}
	}

	return nil
}

// Raw returns the underlying database connection.
func (s *DB) Raw() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *DB) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// BeginTx starts a new transaction.
func (s *DB) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}

// Ping verifies the database connection.
func (s *DB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// resetDatabase deletes the database file and all associated files (WAL, SHM).
// Only called in the development environment.
func resetDatabase(logger arbor.ILogger, dbPath string) error {
	logger.Warn().Str("path", dbPath).Msg("Resetting database (deleting all data)")

	if err := os.Remove(dbPath); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete database file: %w", err)
		}
	} else {
		logger.Info().Str("path", dbPath).Msg("Deleted database file")
	}

	for _, suffix := range []string{"-wal", "-shm"} {
		p := dbPath + suffix
		if err := os.Remove(p); err != nil {
			if !os.IsNotExist(err) {
				logger.Warn().Err(err).Str("path", p).Msg("Failed to delete auxiliary database file")
			}
		} else {
			logger.Debug().Str("path", p).Msg("Deleted auxiliary database file")
		}
	}

	logger.Info().Msg("Database reset complete - starting with clean database")
	return nil
}
