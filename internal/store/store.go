package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema versions, stored in PRAGMA user_version:
//
//	1 - events and command_responses
//	2 - command_responses.accepted, rejected commands are recorded
const schemaVersion = 2

// upgrades[v] moves a database from version v-1 to v.
var upgrades = map[int][]string{
	2: {`ALTER TABLE command_responses ADD COLUMN accepted INTEGER NOT NULL DEFAULT 1`},
}

// ErrDuplicateCommand is returned by Append when the command id already
// has a recorded response. Nothing is written in that case.
var ErrDuplicateCommand = errors.New("command already recorded")

// ErrSchemaTooNew is returned by Open for a database written by a newer
// build than this one.
var ErrSchemaTooNew = errors.New("database schema is newer than supported")

// Store is the SQLite event log. WAL mode lets readers run while the
// sequencer appends.
type Store struct {
	db *sql.DB
}

// Open creates or opens the event log at path and brings its schema to
// the current version. Opening an up to date log changes nothing.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	// One connection: SQLite has a single writer and pragmas are
	// per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := prepare(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("open event log %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func prepare(ctx context.Context, db *sql.DB) error {
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}

	version, err := userVersion(ctx, db)
	if err != nil {
		return err
	}
	switch {
	case version > schemaVersion:
		return fmt.Errorf("%w: version %d, supported %d", ErrSchemaTooNew, version, schemaVersion)
	case version == schemaVersion:
		return nil
	case version == 0:
		return install(ctx, db)
	default:
		return upgrade(ctx, db, version)
	}
}

func userVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read user_version: %w", err)
	}
	return v, nil
}

// install creates the current schema on an empty database.
func install(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("install schema: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("install schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("install schema: set user_version: %w", err)
	}
	return tx.Commit()
}

// upgrade applies every step after from in one transaction.
func upgrade(ctx context.Context, db *sql.DB, from int) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("upgrade schema: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	for v := from + 1; v <= schemaVersion; v++ {
		for _, stmt := range upgrades[v] {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("upgrade schema to %d: %w", v, err)
			}
		}
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("upgrade schema: set user_version: %w", err)
	}
	return tx.Commit()
}

// pragma reads a pragma as text. Used by tests.
func (s *Store) pragma(ctx context.Context, name string) (string, error) {
	var value string
	if err := s.db.QueryRowContext(ctx, "PRAGMA "+name).Scan(&value); err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	return value, nil
}
