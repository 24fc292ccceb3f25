package scrape

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/invoice-rpa/internal/model"
	"github.com/sells-group/invoice-rpa/internal/page"
	"github.com/sells-group/invoice-rpa/internal/poll"
)

// ErrEmptyResultSet is returned when the table shows no invoice rows at all.
var ErrEmptyResultSet = eris.New("scrape: no invoice rows found")

// Processor handles one table row.
type Processor interface {
	Process(ctx context.Context, row page.Element) (Outcome, error)
}

// DriverConfig bounds the table waits.
type DriverConfig struct {
	// TableTimeout bounds the wait for the first data row.
	TableTimeout time.Duration
	// PollInterval is the row-check cadence while waiting for the table.
	PollInterval time.Duration
	// PageSettle is the pause after moving to the next page.
	PageSettle time.Duration
	// MaxPages stops pagination after this many pages. Zero is unbounded.
	MaxPages int
}

// DefaultDriverConfig returns the portal's usual timings.
func DefaultDriverConfig() DriverConfig {
	return DriverConfig{
		TableTimeout: 20 * time.Second,
		PollInterval: time.Second,
		PageSettle:   3 * time.Second,
	}
}

// Driver walks every page of the table and hands each row to a Processor.
type Driver struct {
	page   page.Page
	rows   Processor
	sel    Selectors
	cfg    DriverConfig
	onPage func(model.ScrapeStats)
	log    *zap.Logger
}

// NewDriver returns a Driver using the default selectors.
func NewDriver(p page.Page, rows Processor, cfg DriverConfig) *Driver {
	return &Driver{
		page: p,
		rows: rows,
		sel:  DefaultSelectors(),
		cfg:  cfg,
		log:  zap.L().With(zap.String("component", "scrape.driver")),
	}
}

// WithSelectors overrides the table selectors.
func (d *Driver) WithSelectors(sel Selectors) *Driver {
	d.sel = sel
	return d
}

// OnPage registers a callback invoked with the running totals after each page.
func (d *Driver) OnPage(fn func(model.ScrapeStats)) *Driver {
	d.onPage = fn
	return d
}

// Run drains the table. Row-level failures are counted; a missing table,
// a failed next-page lookup, or ctx cancellation ends the run with an error
// alongside the stats gathered so far.
func (d *Driver) Run(ctx context.Context) (model.ScrapeStats, error) {
	var stats model.ScrapeStats

	err := poll.Until(ctx, d.cfg.PollInterval, d.cfg.TableTimeout, func(ctx context.Context) (bool, error) {
		rows, err := d.dataRows(ctx)
		return len(rows) > 0, err
	})
	if eris.Is(err, poll.ErrTimeout) {
		return stats, eris.Wrapf(ErrEmptyResultSet, "scrape: waited %s", d.cfg.TableTimeout)
	}
	if err != nil {
		return stats, eris.Wrap(err, "scrape: wait for table")
	}

	for {
		stats.Pages++
		rows, err := d.dataRows(ctx)
		if err != nil {
			return stats, eris.Wrapf(err, "scrape: list rows on page %d", stats.Pages)
		}
		d.log.Info("processing page", zap.Int("page", stats.Pages), zap.Int("rows", len(rows)))

		for i, row := range rows {
			if err := ctx.Err(); err != nil {
				return stats, eris.Wrap(err, "scrape: cancelled")
			}
			stats.Rows++
			outcome, err := d.rows.Process(ctx, row)
			switch outcome {
			case OutcomeMalformed:
				stats.Malformed++
			case OutcomeDuplicate:
				stats.Duplicates++
			case OutcomeDownloaded:
				stats.Attempted++
				stats.Succeeded++
			case OutcomeFailed:
				stats.Attempted++
				stats.Failed++
				d.log.Warn("row failed",
					zap.Int("page", stats.Pages), zap.Int("row", i), zap.Error(err))
			}
		}

		if d.onPage != nil {
			d.onPage(stats)
		}

		if d.cfg.MaxPages > 0 && stats.Pages >= d.cfg.MaxPages {
			d.log.Warn("page limit reached, stopping", zap.Int("max_pages", d.cfg.MaxPages))
			break
		}

		next, lookup, err := d.page.Find(ctx, d.sel.Next)
		if err != nil {
			return stats, eris.Wrap(err, "scrape: look up next page")
		}
		if lookup == page.NotFound {
			break
		}
		if err := d.page.Click(ctx, next); err != nil {
			return stats, eris.Wrap(err, "scrape: go to next page")
		}
		if err := poll.Sleep(ctx, d.cfg.PageSettle); err != nil {
			return stats, eris.Wrap(err, "scrape: cancelled")
		}
	}

	d.log.Info("table drained",
		zap.Int("pages", stats.Pages),
		zap.Int("downloaded", stats.Succeeded),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}

// dataRows lists the rows with visible text. The grid pads short pages with
// empty placeholder rows.
func (d *Driver) dataRows(ctx context.Context) ([]page.Element, error) {
	all, err := d.page.FindAll(ctx, d.sel.Row)
	if err != nil {
		return nil, err
	}
	rows := all[:0]
	for _, r := range all {
		text, err := d.page.Text(ctx, r)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(text) != "" {
			rows = append(rows, r)
		}
	}
	return rows, nil
}
