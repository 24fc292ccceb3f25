// Package store persists the two tracking tables: downloaded archives and
// ingested documents. Both are keyed by invoice identity and written with
// insert-or-ignore, so repeating a write is harmless.
package store

import (
	"context"
	"time"

	"github.com/sells-group/invoice-rpa/internal/model"
)

// Tracker is one tracking table.
type Tracker[R any] interface {
	// Migrate creates the table if it does not exist.
	Migrate(ctx context.Context) error
	// Has reports whether a record exists for id.
	Has(ctx context.Context, id model.Identity) (bool, error)
	// Record inserts rec unless its identity is already present. inserted
	// is false when the record existed.
	Record(ctx context.Context, rec R) (inserted bool, err error)
	// Count returns the number of records.
	Count(ctx context.Context) (int, error)
	// List returns the most recent records first. limit <= 0 returns all.
	List(ctx context.Context, limit int) ([]R, error)
	// Clear deletes every record and returns how many were removed.
	Clear(ctx context.Context) (int64, error)
	Close() error
}

// DownloadStore tracks archives already downloaded from the portal.
type DownloadStore = Tracker[model.DownloadRecord]

// DocumentStore tracks documents ingested from the document area.
type DocumentStore = Tracker[model.DocumentRecord]

// table describes how a record type maps onto its tracking table.
type table[R any] struct {
	sqliteName string
	pgName     string
	payload    string
	split      func(R) (model.Identity, string, time.Time)
	join       func(model.Identity, string, time.Time) R
}

// Database file names inside the download and document areas.
const (
	DownloadDBName = "invoices.db"
	DocumentDBName = "invoices_xml.db"
)

var downloads = table[model.DownloadRecord]{
	sqliteName: "downloaded_invoices",
	pgName:     "invoice_downloads",
	payload:    "filename",
	split: func(r model.DownloadRecord) (model.Identity, string, time.Time) {
		return r.Identity, r.Filename, r.DownloadedAt
	},
	join: func(id model.Identity, payload string, at time.Time) model.DownloadRecord {
		return model.DownloadRecord{Identity: id, Filename: payload, DownloadedAt: at}
	},
}

var documents = table[model.DocumentRecord]{
	sqliteName: "downloaded_invoices",
	pgName:     "invoice_documents",
	payload:    "xml_content",
	split: func(r model.DocumentRecord) (model.Identity, string, time.Time) {
		return r.Identity, r.Content, r.DownloadedAt
	},
	join: func(id model.Identity, payload string, at time.Time) model.DocumentRecord {
		return model.DocumentRecord{Identity: id, Content: payload, DownloadedAt: at}
	},
}

func stamp(at time.Time) time.Time {
	if at.IsZero() {
		return time.Now().UTC()
	}
	return at.UTC()
}
