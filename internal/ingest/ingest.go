// Package ingest records documents from the document area in the document
// tracking store and clears them from disk.
package ingest

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/invoice-rpa/internal/model"
	"github.com/sells-group/invoice-rpa/internal/resilience"
)

// Recorder stores a document record with insert-or-ignore semantics.
type Recorder interface {
	Record(ctx context.Context, rec model.DocumentRecord) (bool, error)
}

// Pipeline sweeps the document area once per Run.
type Pipeline struct {
	documentDir string
	store       Recorder
	retry       resilience.RetryConfig
	now         func() time.Time
	log         *zap.Logger
}

// New returns a Pipeline ingesting documentDir into store.
func New(documentDir string, store Recorder) *Pipeline {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("ingest.pipeline", "record_document")
	return &Pipeline{
		documentDir: documentDir,
		store:       store,
		retry:       retry,
		now:         time.Now,
		log:         zap.L().With(zap.String("component", "ingest.pipeline")),
	}
}

// WithRetry overrides the retry policy for document-record writes.
func (p *Pipeline) WithRetry(cfg resilience.RetryConfig) *Pipeline {
	if cfg.OnRetry == nil {
		cfg.OnRetry = p.retry.OnRetry
	}
	p.retry = cfg
	return p
}

// Run ingests every document currently in the area. A file is deleted only
// after its record write returned without error, so a crash in between
// leaves the file for the next sweep, which then finds the record already
// present and just deletes it.
func (p *Pipeline) Run(ctx context.Context) (model.SweepStats, error) {
	var stats model.SweepStats

	if err := os.MkdirAll(p.documentDir, 0o755); err != nil {
		return stats, eris.Wrapf(err, "ingest: create %s", p.documentDir)
	}
	entries, err := os.ReadDir(p.documentDir)
	if err != nil {
		return stats, eris.Wrap(err, "ingest: list documents")
	}

	for _, e := range entries {
		if !e.Type().IsRegular() || !model.HasExt(e.Name(), model.DocumentExt) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return stats, eris.Wrap(err, "ingest: cancelled")
		}

		stats.Seen++
		log := p.log.With(zap.String("document", e.Name()))

		id, ok := model.ParseDocumentName(e.Name())
		if !ok {
			stats.Skipped++
			log.Warn("document name does not encode an invoice identity, keeping it")
			continue
		}

		inserted, err := p.ingestOne(ctx, filepath.Join(p.documentDir, e.Name()), id)
		if err != nil {
			stats.Failed++
			log.Error("document ingestion failed, keeping it", zap.Error(err))
			continue
		}
		stats.Succeeded++
		if inserted {
			log.Info("document ingested", zap.Stringer("invoice", id))
		} else {
			log.Info("document already recorded, removed leftover file", zap.Stringer("invoice", id))
		}
	}

	p.log.Info("ingestion sweep done",
		zap.Int("seen", stats.Seen),
		zap.Int("ingested", stats.Succeeded),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}

func (p *Pipeline) ingestOne(ctx context.Context, path string, id model.Identity) (bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return false, eris.Wrap(err, "ingest: read document")
	}
	content, err := decodeDocument(raw)
	if err != nil {
		return false, err
	}

	rec := model.DocumentRecord{
		Identity:     id,
		Content:      content,
		DownloadedAt: p.now().UTC(),
	}
	inserted, err := resilience.DoVal(ctx, p.retry, func(ctx context.Context) (bool, error) {
		return p.store.Record(ctx, rec)
	})
	if err != nil {
		return false, eris.Wrapf(err, "ingest: record %s", id)
	}

	if err := os.Remove(path); err != nil {
		return inserted, eris.Wrap(err, "ingest: delete document")
	}
	return inserted, nil
}

// Pending counts the documents waiting in the document area.
func Pending(documentDir string) (int, error) {
	entries, err := os.ReadDir(documentDir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrap(err, "ingest: list documents")
	}
	n := 0
	for _, e := range entries {
		if e.Type().IsRegular() && model.HasExt(e.Name(), model.DocumentExt) {
			n++
		}
	}
	return n, nil
}
