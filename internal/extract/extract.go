// Package extract turns downloaded archives into documents: each archive in
// the download area is unpacked, its first XML payload moved to the document
// area under the archive's base name, and the archive deleted.
package extract

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/invoice-rpa/internal/archive"
	"github.com/sells-group/invoice-rpa/internal/download"
	"github.com/sells-group/invoice-rpa/internal/model"
)

// scratchPattern names the per-archive unpack dirs created in the download
// area. The leading dot keeps them out of directory listings of archives.
const scratchPattern = ".extract-*"

// ErrDocumentExists is returned when the document area already holds a
// document under the archive's name. The archive is kept for a later sweep.
var ErrDocumentExists = eris.New("extract: document already pending")

// Pipeline sweeps the download area once per Run.
type Pipeline struct {
	downloadDir string
	documentDir string
	move        func(src, dest string) error
	log         *zap.Logger
}

// New returns a Pipeline moving payloads from downloadDir to documentDir.
func New(downloadDir, documentDir string) *Pipeline {
	return &Pipeline{
		downloadDir: downloadDir,
		documentDir: documentDir,
		move:        download.Move,
		log:         zap.L().With(zap.String("component", "extract.pipeline")),
	}
}

// Run processes every archive currently in the download area. Failures are
// per archive: the archive stays in place and the sweep moves on. The
// returned error is set only when the areas themselves are unusable or ctx
// is done.
func (p *Pipeline) Run(ctx context.Context) (model.SweepStats, error) {
	var stats model.SweepStats

	for _, dir := range []string{p.downloadDir, p.documentDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return stats, eris.Wrapf(err, "extract: create %s", dir)
		}
	}

	entries, err := os.ReadDir(p.downloadDir)
	if err != nil {
		return stats, eris.Wrap(err, "extract: list archives")
	}

	for _, e := range entries {
		if !e.Type().IsRegular() || !model.HasExt(e.Name(), model.ArchiveExt) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return stats, eris.Wrap(err, "extract: cancelled")
		}

		stats.Seen++
		path := filepath.Join(p.downloadDir, e.Name())
		log := p.log.With(zap.String("archive", e.Name()))

		doc, err := p.extractOne(path)
		switch {
		case err == nil:
			stats.Succeeded++
			log.Info("archive extracted", zap.String("document", filepath.Base(doc)))
		case eris.Is(err, archive.ErrNoPayload):
			stats.Skipped++
			log.Warn("archive has no XML payload, keeping it")
		default:
			stats.Failed++
			log.Error("archive extraction failed, keeping it", zap.Error(err))
		}
	}

	p.log.Info("extraction sweep done",
		zap.Int("seen", stats.Seen),
		zap.Int("extracted", stats.Succeeded),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}

// extractOne unpacks path into a fresh scratch dir, moves the payload and
// deletes the archive. The archive is removed only after the move, and a
// document still waiting for ingestion is never replaced.
func (p *Pipeline) extractOne(path string) (string, error) {
	dest := filepath.Join(p.documentDir, model.DocumentName(filepath.Base(path)))
	if _, err := os.Lstat(dest); err == nil {
		return "", eris.Wrapf(ErrDocumentExists, "extract: %s", filepath.Base(dest))
	} else if !os.IsNotExist(err) {
		return "", eris.Wrapf(err, "extract: stat %s", filepath.Base(dest))
	}

	scratch, err := os.MkdirTemp(p.downloadDir, scratchPattern)
	if err != nil {
		return "", eris.Wrap(err, "extract: create scratch dir")
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			p.log.Warn("could not remove scratch dir", zap.String("dir", scratch), zap.Error(err))
		}
	}()

	if _, err := archive.Extract(path, scratch); err != nil {
		return "", err
	}

	payload, err := archive.FindFirst(scratch, model.DocumentExt)
	if err != nil {
		return "", err
	}

	if err := p.move(payload, dest); err != nil {
		return "", eris.Wrap(err, "extract: move payload")
	}

	if err := os.Remove(path); err != nil {
		return dest, eris.Wrap(err, "extract: delete archive")
	}
	return dest, nil
}

// Pending counts the archives waiting in the download area.
func Pending(downloadDir string) (int, error) {
	entries, err := os.ReadDir(downloadDir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrap(err, "extract: list archives")
	}
	n := 0
	for _, e := range entries {
		if e.Type().IsRegular() && model.HasExt(e.Name(), model.ArchiveExt) {
			n++
		}
	}
	return n, nil
}
