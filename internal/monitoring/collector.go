// Package monitoring reports the state of the tracking stores and the two
// file areas.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/invoice-rpa/internal/extract"
	"github.com/sells-group/invoice-rpa/internal/ingest"
	"github.com/sells-group/invoice-rpa/internal/store"
)

// Snapshot is a point-in-time view of the tracking state.
type Snapshot struct {
	DownloadRecords  int        `json:"download_records" yaml:"download_records"`
	DocumentRecords  int        `json:"document_records" yaml:"document_records"`
	PendingArchives  int        `json:"pending_archives" yaml:"pending_archives"`
	PendingDocuments int        `json:"pending_documents" yaml:"pending_documents"`
	LastDownloadAt   *time.Time `json:"last_download_at,omitempty" yaml:"last_download_at,omitempty"`
	LastIngestAt     *time.Time `json:"last_ingest_at,omitempty" yaml:"last_ingest_at,omitempty"`
	CollectedAt      time.Time  `json:"collected_at" yaml:"collected_at"`
}

// Collector gathers a Snapshot from both stores and both areas.
type Collector struct {
	downloads   store.DownloadStore
	documents   store.DocumentStore
	downloadDir string
	documentDir string
}

// NewCollector creates a new Collector.
func NewCollector(downloads store.DownloadStore, documents store.DocumentStore, downloadDir, documentDir string) *Collector {
	return &Collector{
		downloads:   downloads,
		documents:   documents,
		downloadDir: downloadDir,
		documentDir: documentDir,
	}
}

// Collect reads everything in parallel. Any failing read fails the snapshot.
func (c *Collector) Collect(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{CollectedAt: time.Now().UTC()}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		n, err := c.downloads.Count(gctx)
		if err != nil {
			return eris.Wrap(err, "monitoring: count downloads")
		}
		snap.DownloadRecords = n

		latest, err := c.downloads.List(gctx, 1)
		if err != nil {
			return eris.Wrap(err, "monitoring: latest download")
		}
		if len(latest) > 0 {
			at := latest[0].DownloadedAt
			snap.LastDownloadAt = &at
		}
		return nil
	})

	g.Go(func() error {
		n, err := c.documents.Count(gctx)
		if err != nil {
			return eris.Wrap(err, "monitoring: count documents")
		}
		snap.DocumentRecords = n

		latest, err := c.documents.List(gctx, 1)
		if err != nil {
			return eris.Wrap(err, "monitoring: latest document")
		}
		if len(latest) > 0 {
			at := latest[0].DownloadedAt
			snap.LastIngestAt = &at
		}
		return nil
	})

	g.Go(func() error {
		n, err := extract.Pending(c.downloadDir)
		if err != nil {
			return eris.Wrap(err, "monitoring: pending archives")
		}
		snap.PendingArchives = n
		return nil
	})

	g.Go(func() error {
		n, err := ingest.Pending(c.documentDir)
		if err != nil {
			return eris.Wrap(err, "monitoring: pending documents")
		}
		snap.PendingDocuments = n
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}
