// Package scrape drains the paginated invoice table, downloading one archive
// per row not yet recorded.
package scrape

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/invoice-rpa/internal/download"
	"github.com/sells-group/invoice-rpa/internal/model"
	"github.com/sells-group/invoice-rpa/internal/page"
	"github.com/sells-group/invoice-rpa/internal/resilience"
)

// Fixed column positions of the received-invoices table.
const (
	colDocumentNumber = 1
	colIssuer         = 2
	colTotal          = 8
	minCells          = colTotal + 1

	// The row's action menu is its 4th button.
	actionsButton = 3
)

// Selectors locates the table, its cells, and the per-row controls.
type Selectors struct {
	Row      page.Selector
	Cell     page.Selector
	Button   page.Selector
	Download page.Selector
	Close    page.Selector
	Next     page.Selector
}

// DefaultSelectors returns the selectors of the portal's react-table grid.
func DefaultSelectors() Selectors {
	return Selectors{
		Row:      page.CSS("div.rt-tr-group"),
		Cell:     page.CSS("div.rt-td"),
		Button:   page.CSS("button"),
		Download: page.CSS(".descargar"),
		Close:    page.CSS("button.btn.btn-light.pull-right"),
		Next:     page.XPath(`//button[contains(text(), 'Siguiente') and not(@disabled)]`),
	}
}

// Outcome is the result of processing one row.
type Outcome int

const (
	// OutcomeMalformed rows lack the expected cells and are skipped silently.
	OutcomeMalformed Outcome = iota
	// OutcomeDuplicate rows were recorded by an earlier download.
	OutcomeDuplicate
	// OutcomeDownloaded rows produced an archive and a record.
	OutcomeDownloaded
	// OutcomeFailed rows hit a row-level error.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeMalformed:
		return "malformed"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeDownloaded:
		return "downloaded"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DedupStore answers whether an identity was already downloaded and records
// new downloads.
type DedupStore interface {
	Has(ctx context.Context, id model.Identity) (bool, error)
	Record(ctx context.Context, rec model.DownloadRecord) (bool, error)
}

// ArchiveWatcher detects the archive a download click produces.
type ArchiveWatcher interface {
	Dir() string
	Snapshot() (download.Baseline, error)
	AwaitNewArchive(ctx context.Context, timeout time.Duration, baseline download.Baseline) (string, error)
}

// RowTimeouts bounds the waits of a single row.
type RowTimeouts struct {
	Element  time.Duration
	Download time.Duration
}

// RowProcessor downloads the archive behind one table row.
type RowProcessor struct {
	page     page.Page
	store    DedupStore
	watcher  ArchiveWatcher
	sel      Selectors
	timeouts RowTimeouts
	retry    resilience.RetryConfig
	now      func() time.Time
	log      *zap.Logger
}

// NewRowProcessor wires a RowProcessor with the default selectors.
func NewRowProcessor(p page.Page, st DedupStore, w ArchiveWatcher, t RowTimeouts) *RowProcessor {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("scrape.row", "record_download")
	return &RowProcessor{
		page:     p,
		store:    st,
		watcher:  w,
		sel:      DefaultSelectors(),
		timeouts: t,
		retry:    retry,
		now:      time.Now,
		log:      zap.L().With(zap.String("component", "scrape.row")),
	}
}

// WithSelectors overrides the table selectors.
func (rp *RowProcessor) WithSelectors(sel Selectors) *RowProcessor {
	rp.sel = sel
	return rp
}

// WithRetry overrides the retry policy for download-record writes.
func (rp *RowProcessor) WithRetry(cfg resilience.RetryConfig) *RowProcessor {
	if cfg.OnRetry == nil {
		cfg.OnRetry = rp.retry.OnRetry
	}
	rp.retry = cfg
	return rp
}

// Process handles one row. The error is non-nil only with OutcomeFailed.
func (rp *RowProcessor) Process(ctx context.Context, row page.Element) (Outcome, error) {
	id, ok, err := rp.identity(ctx, row)
	if err != nil {
		return OutcomeFailed, err
	}
	if !ok {
		return OutcomeMalformed, nil
	}
	log := rp.log.With(zap.Stringer("invoice", id))

	seen, err := rp.store.Has(ctx, id)
	if err != nil {
		return OutcomeFailed, eris.Wrapf(err, "scrape: dedup lookup %s", id)
	}
	if seen {
		log.Debug("already downloaded, skipping")
		return OutcomeDuplicate, nil
	}

	baseline, err := rp.watcher.Snapshot()
	if err != nil {
		return OutcomeFailed, eris.Wrap(err, "scrape: snapshot downloads")
	}

	if err := rp.openActions(ctx, row); err != nil {
		return OutcomeFailed, eris.Wrapf(err, "scrape: open actions for %s", id)
	}
	defer rp.dismiss(ctx, log)

	dl, err := rp.page.WaitClickable(ctx, rp.sel.Download, rp.timeouts.Element)
	if err != nil {
		return OutcomeFailed, eris.Wrapf(err, "scrape: download control for %s", id)
	}
	if err := rp.page.Click(ctx, dl); err != nil {
		return OutcomeFailed, eris.Wrapf(err, "scrape: click download for %s", id)
	}

	got, err := rp.watcher.AwaitNewArchive(ctx, rp.timeouts.Download, baseline)
	if err != nil {
		return OutcomeFailed, eris.Wrapf(err, "scrape: await archive for %s", id)
	}

	final, err := download.SafeRename(got, filepath.Join(rp.watcher.Dir(), id.ArchiveName()))
	if err != nil {
		return OutcomeFailed, eris.Wrapf(err, "scrape: rename archive for %s", id)
	}

	rec := model.DownloadRecord{
		Identity:     id,
		Filename:     filepath.Base(final),
		DownloadedAt: rp.now().UTC(),
	}
	inserted, err := resilience.DoVal(ctx, rp.retry, func(ctx context.Context) (bool, error) {
		return rp.store.Record(ctx, rec)
	})
	if err != nil {
		return OutcomeFailed, eris.Wrapf(err, "scrape: record download for %s", id)
	}
	if !inserted {
		log.Warn("download already recorded by a concurrent writer", zap.String("file", rec.Filename))
	}

	log.Info("invoice downloaded", zap.String("file", rec.Filename))
	return OutcomeDownloaded, nil
}

// identity reads the row's fixed cells. ok is false for rows too short to
// hold an invoice or without a document number.
func (rp *RowProcessor) identity(ctx context.Context, row page.Element) (model.Identity, bool, error) {
	cells, err := rp.page.FindIn(ctx, row, rp.sel.Cell)
	if err != nil {
		return model.Identity{}, false, eris.Wrap(err, "scrape: read cells")
	}
	if len(cells) < minCells {
		return model.Identity{}, false, nil
	}

	var text [minCells]string
	for _, col := range []int{colDocumentNumber, colIssuer, colTotal} {
		s, err := rp.page.Text(ctx, cells[col])
		if err != nil {
			return model.Identity{}, false, eris.Wrapf(err, "scrape: read cell %d", col)
		}
		text[col] = s
	}

	id := model.NewIdentity(text[colDocumentNumber], text[colIssuer], text[colTotal])
	if strings.TrimSpace(id.DocumentNumber) == "" {
		return model.Identity{}, false, nil
	}
	return id, true, nil
}

func (rp *RowProcessor) openActions(ctx context.Context, row page.Element) error {
	buttons, err := rp.page.FindIn(ctx, row, rp.sel.Button)
	if err != nil {
		return err
	}
	if len(buttons) <= actionsButton {
		return eris.Errorf("scrape: row has %d buttons, want at least %d", len(buttons), actionsButton+1)
	}
	return rp.page.Click(ctx, buttons[actionsButton])
}

// dismiss closes the actions dialog. Failure only costs a log line; the next
// row's own clicks re-establish state.
func (rp *RowProcessor) dismiss(ctx context.Context, log *zap.Logger) {
	el, err := rp.page.WaitClickable(ctx, rp.sel.Close, rp.timeouts.Element)
	if err == nil {
		err = rp.page.Click(ctx, el)
	}
	if err != nil {
		log.Debug("could not dismiss actions dialog", zap.Error(err))
	}
}
