// Package journal records install, uninstall and upgrade operations in a
// local SQLite database so `risset history` can show what happened when.
package journal

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/csound-plugins/risset/internal/errors"
)

// Operations recorded in the journal.
const (
	OpInstall   = "install"
	OpUninstall = "uninstall"
	OpUpgrade   = "upgrade"
)

// Entry is one recorded operation.
type Entry struct {
	ID        string
	Time      time.Time
	Operation string
	Plugin    string
	Version   string
	Platform  string
	Detail    string
}

// Store is the journal database. The tool runs single-threaded and
// database/sql serializes access, so no additional locking is applied.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the journal database at path.
// Use ":memory:" for an in-memory journal.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindIO, "could not open journal database %s", path)
	}
	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.KindIO, "could not initialize journal schema")
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS history (
		id TEXT PRIMARY KEY,
		time INTEGER NOT NULL,
		operation TEXT NOT NULL,
		plugin TEXT NOT NULL,
		version TEXT NOT NULL,
		platform TEXT NOT NULL,
		detail TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_history_plugin ON history(plugin);
	CREATE INDEX IF NOT EXISTS idx_history_time ON history(time);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record appends one operation to the journal.
func (s *Store) Record(ctx context.Context, operation, plugin, version, platformID, detail string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO history (id, time, operation, plugin, version, platform, detail) VALUES (?, ?, ?, ?, ?, ?, ?)",
		uuid.NewString(), time.Now().Unix(), operation, plugin, version, platformID, detail,
	)
	if err != nil {
		return errors.Wrap(err, errors.KindIO, "could not record journal entry")
	}
	return nil
}

// List returns entries most recent first. An empty plugin matches all
// plugins; a limit of 0 returns everything.
func (s *Store) List(ctx context.Context, plugin string, limit int) ([]Entry, error) {
	query := "SELECT id, time, operation, plugin, version, platform, detail FROM history"
	args := []any{}
	if plugin != "" {
		query += " WHERE plugin = ?"
		args = append(args, plugin)
	}
	query += " ORDER BY time DESC, rowid DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindIO, "could not query journal")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var unix int64
		if err := rows.Scan(&e.ID, &unix, &e.Operation, &e.Plugin, &e.Version, &e.Platform, &e.Detail); err != nil {
			return nil, errors.Wrap(err, errors.KindIO, "could not scan journal entry")
		}
		e.Time = time.Unix(unix, 0)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.KindIO, "could not iterate journal entries")
	}
	return entries, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
