package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/invoice-rpa/internal/model"
)

// SQLiteTracker is a Tracker backed by a single SQLite file.
type SQLiteTracker[R any] struct {
	db   *sql.DB
	path string
	t    table[R]
}

var (
	_ DownloadStore = (*SQLiteTracker[model.DownloadRecord])(nil)
	_ DocumentStore = (*SQLiteTracker[model.DocumentRecord])(nil)
)

// OpenSQLiteDownloads opens (creating if needed) the download tracking
// database at path and migrates it.
func OpenSQLiteDownloads(ctx context.Context, path string) (*SQLiteTracker[model.DownloadRecord], error) {
	return openSQLite(ctx, path, downloads)
}

// OpenSQLiteDocuments opens (creating if needed) the document tracking
// database at path and migrates it.
func OpenSQLiteDocuments(ctx context.Context, path string) (*SQLiteTracker[model.DocumentRecord], error) {
	return openSQLite(ctx, path, documents)
}

func openSQLite[R any](ctx context.Context, path string, t table[R]) (*SQLiteTracker[R], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, eris.Wrapf(err, "sqlite: create dir for %s", path)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One writer per file; extra connections only contend for the lock.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	s := &SQLiteTracker[R]{db: db, path: path, t: t}
	if err := s.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}
	return s, nil
}

// Path returns the database file path.
func (s *SQLiteTracker[R]) Path() string { return s.path }

func (s *SQLiteTracker[R]) Migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	numero_documento TEXT NOT NULL,
	emisor           TEXT NOT NULL,
	valor_total      TEXT NOT NULL,
	%s               TEXT NOT NULL,
	downloaded_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (numero_documento, emisor, valor_total)
);`, s.t.sqliteName, s.t.payload)
	_, err := s.db.ExecContext(ctx, ddl)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteTracker[R]) Close() error {
	return s.db.Close()
}

func (s *SQLiteTracker[R]) Has(ctx context.Context, id model.Identity) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM `+s.t.sqliteName+` WHERE numero_documento = ? AND emisor = ? AND valor_total = ? LIMIT 1`,
		id.DocumentNumber, id.Issuer, id.TotalValue,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: lookup %s", id)
	}
	return true, nil
}

func (s *SQLiteTracker[R]) Record(ctx context.Context, rec R) (bool, error) {
	id, payload, at := s.t.split(rec)
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO `+s.t.sqliteName+` (numero_documento, emisor, valor_total, `+s.t.payload+`, downloaded_at)
		 VALUES (?, ?, ?, ?, ?)`,
		id.DocumentNumber, id.Issuer, id.TotalValue, payload, stamp(at),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: record %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n == 1, nil
}

func (s *SQLiteTracker[R]) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+s.t.sqliteName).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "sqlite: count")
	}
	return n, nil
}

func (s *SQLiteTracker[R]) List(ctx context.Context, limit int) ([]R, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT numero_documento, emisor, valor_total, `+s.t.payload+`, downloaded_at
		 FROM `+s.t.sqliteName+`
		 ORDER BY downloaded_at DESC, numero_documento
		 LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list")
	}
	defer rows.Close() //nolint:errcheck

	var out []R
	for rows.Next() {
		var (
			id      model.Identity
			payload string
			at      time.Time
		)
		if err := rows.Scan(&id.DocumentNumber, &id.Issuer, &id.TotalValue, &payload, &at); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		out = append(out, s.t.join(id, payload, at))
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate records")
}

func (s *SQLiteTracker[R]) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+s.t.sqliteName)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: clear")
	}
	n, err := res.RowsAffected()
	return n, eris.Wrap(err, "sqlite: rows affected")
}
