package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/invoice-rpa/internal/db"
	"github.com/sells-group/invoice-rpa/internal/model"
)

// PostgresTracker is a Tracker backed by a table in a shared Postgres
// database. Both trackers can share one pool; Close on a tracker does not
// close a shared pool.
type PostgresTracker[R any] struct {
	pool db.Pool
	t    table[R]
}

var (
	_ DownloadStore = (*PostgresTracker[model.DownloadRecord])(nil)
	_ DocumentStore = (*PostgresTracker[model.DocumentRecord])(nil)
)

// NewPostgresDownloads returns the download tracker on pool.
func NewPostgresDownloads(pool db.Pool) *PostgresTracker[model.DownloadRecord] {
	return &PostgresTracker[model.DownloadRecord]{pool: pool, t: downloads}
}

// NewPostgresDocuments returns the document tracker on pool.
func NewPostgresDocuments(pool db.Pool) *PostgresTracker[model.DocumentRecord] {
	return &PostgresTracker[model.DocumentRecord]{pool: pool, t: documents}
}

func (s *PostgresTracker[R]) Migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	numero_documento TEXT NOT NULL,
	emisor           TEXT NOT NULL,
	valor_total      TEXT NOT NULL,
	%s               TEXT NOT NULL,
	downloaded_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (numero_documento, emisor, valor_total)
);`, s.t.pgName, s.t.payload)
	_, err := s.pool.Exec(ctx, ddl)
	return eris.Wrapf(err, "postgres: migrate %s", s.t.pgName)
}

func (s *PostgresTracker[R]) Close() error { return nil }

func (s *PostgresTracker[R]) Has(ctx context.Context, id model.Identity) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+s.t.pgName+` WHERE numero_documento = $1 AND emisor = $2 AND valor_total = $3)`,
		id.DocumentNumber, id.Issuer, id.TotalValue,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: lookup %s", id)
	}
	return exists, nil
}

func (s *PostgresTracker[R]) Record(ctx context.Context, rec R) (bool, error) {
	id, payload, at := s.t.split(rec)
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.t.pgName+` (numero_documento, emisor, valor_total, `+s.t.payload+`, downloaded_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (numero_documento, emisor, valor_total) DO NOTHING`,
		id.DocumentNumber, id.Issuer, id.TotalValue, payload, stamp(at),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: record %s", id)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresTracker[R]) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+s.t.pgName).Scan(&n); err != nil {
		return 0, eris.Wrapf(err, "postgres: count %s", s.t.pgName)
	}
	return n, nil
}

func (s *PostgresTracker[R]) List(ctx context.Context, limit int) ([]R, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT numero_documento, emisor, valor_total, `+s.t.payload+`, downloaded_at
		 FROM `+s.t.pgName+`
		 ORDER BY downloaded_at DESC, numero_documento
		 LIMIT $1`, lim)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list %s", s.t.pgName)
	}
	defer rows.Close()

	var out []R
	for rows.Next() {
		var (
			id      model.Identity
			payload string
			at      time.Time
		)
		if err := rows.Scan(&id.DocumentNumber, &id.Issuer, &id.TotalValue, &payload, &at); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		out = append(out, s.t.join(id, payload, at))
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate records")
}

func (s *PostgresTracker[R]) Clear(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+s.t.pgName)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: clear %s", s.t.pgName)
	}
	return tag.RowsAffected(), nil
}
