// Package pipeline runs a complete import: browser session, table scrape,
// archive extraction, and document ingestion, in that order.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/invoice-rpa/internal/config"
	"github.com/sells-group/invoice-rpa/internal/download"
	"github.com/sells-group/invoice-rpa/internal/erp"
	"github.com/sells-group/invoice-rpa/internal/extract"
	"github.com/sells-group/invoice-rpa/internal/ingest"
	"github.com/sells-group/invoice-rpa/internal/model"
	"github.com/sells-group/invoice-rpa/internal/page"
	"github.com/sells-group/invoice-rpa/internal/resilience"
	"github.com/sells-group/invoice-rpa/internal/scrape"
	"github.com/sells-group/invoice-rpa/internal/store"
)

// Fatal causes, one per phase. Result.Error starts with one of these.
var (
	ErrBrowser  = eris.New("pipeline: failed to set up browser")
	ErrLogin    = eris.New("pipeline: failed to login to ERP")
	ErrNavigate = eris.New("pipeline: failed to navigate to invoices")
	ErrRows     = eris.New("pipeline: failed to process invoice rows")
	ErrExtract  = eris.New("pipeline: failed to extract XML files")
	ErrIngest   = eris.New("pipeline: failed to import XML to database")
)

// Launcher starts a browser page. release shuts it down and is called once
// the run no longer needs the page.
type Launcher func(ctx context.Context) (p page.Page, release func(), err error)

// Progress checkpoints, in run order.
const (
	progressBrowser  = 5
	progressLogin    = 10
	progressNavigate = 20
	progressRows     = 30
	progressExtract  = 70
	progressIngest   = 90
	progressDone     = 100
)

// Pipeline runs one import per Run call.
type Pipeline struct {
	cfg       *config.Config
	launch    Launcher
	downloads store.DownloadStore
	documents store.DocumentStore
	reporter  Reporter
	newID     func() string
}

// New creates a Pipeline. The stores stay owned by the caller.
func New(cfg *config.Config, launch Launcher, downloads store.DownloadStore, documents store.DocumentStore, reporter Reporter) *Pipeline {
	if reporter == nil {
		reporter = Discard{}
	}
	return &Pipeline{
		cfg:       cfg,
		launch:    launch,
		downloads: downloads,
		documents: documents,
		reporter:  reporter,
		newID:     func() string { return uuid.New().String() },
	}
}

// Run executes every phase and reports the outcome. The returned Result is
// also handed to the reporter. A phase error ends the run; row-level and
// file-level failures only show up in the stats.
func (p *Pipeline) Run(ctx context.Context) model.Result {
	run := &runState{runID: p.newID(), reporter: p.reporter}
	run.log = zap.L().With(zap.String("component", "pipeline"), zap.String("run_id", run.runID))
	run.log.Info("pipeline: starting import")

	err := p.run(ctx, run)

	result := model.Result{Success: err == nil, RunID: run.runID, Stats: run.stats}
	if err != nil {
		result.Error = err.Error()
		run.log.Error("pipeline: import failed", zap.Error(err))
	} else {
		run.log.Info("pipeline: import complete",
			zap.Int("downloaded", run.stats.SuccessfulImports),
			zap.Int("ingested", run.stats.DocumentsIngested),
		)
	}
	p.reporter.Result(result)
	return result
}

func (p *Pipeline) run(ctx context.Context, run *runState) error {
	retry := resilience.FromSettings(p.cfg.Retry.MaxAttempts, p.cfg.Retry.InitialBackoffMs)
	t := p.cfg.Timeouts

	run.step(model.StepBrowser, progressBrowser)
	pg, release, err := p.launch(ctx)
	if err != nil {
		return eris.Wrap(err, ErrBrowser.Error())
	}
	// The browser is only needed through the scrape; the sweeps run offline.
	released := false
	closeBrowser := func() {
		if !released {
			released = true
			release()
		}
	}
	defer closeBrowser()

	session := erp.NewSession(pg,
		erp.Credentials{URL: p.cfg.ERP.URL, Username: p.cfg.ERP.Username, Password: p.cfg.ERP.Password},
		erp.Timeouts{Element: t.Element(), Module: t.Navigation(), Frame: t.Frame()},
	)

	run.step(model.StepLogin, progressLogin)
	if err := run.phase("login", func() error { return session.Login(ctx) }); err != nil {
		return eris.Wrap(atLocation(ctx, pg, err), ErrLogin.Error())
	}

	run.step(model.StepNavigate, progressNavigate)
	if err := run.phase("navigate", func() error { return session.OpenInvoices(ctx) }); err != nil {
		return eris.Wrap(atLocation(ctx, pg, err), ErrNavigate.Error())
	}

	run.step(model.StepRows, progressRows)
	watcher := download.NewWatcher(p.cfg.Paths.DownloadDir, download.WithInterval(t.PollInterval()))
	rows := scrape.NewRowProcessor(pg, p.downloads, watcher,
		scrape.RowTimeouts{Element: t.Element(), Download: t.Download()},
	).WithRetry(retry)
	driver := scrape.NewDriver(pg, rows, scrape.DriverConfig{
		TableTimeout: t.Table(),
		PollInterval: t.PollInterval(),
		PageSettle:   t.PageSettle(),
		MaxPages:     p.cfg.Scrape.MaxPages,
	}).OnPage(func(sc model.ScrapeStats) {
		run.stats.MergeScrape(sc)
		run.step(model.StepRows, progressRows)
	})
	err = run.phase("rows", func() error {
		sc, err := driver.Run(ctx)
		run.stats.MergeScrape(sc)
		return err
	})
	if err != nil {
		err = atLocation(ctx, pg, err)
	}
	closeBrowser()
	if err != nil {
		return eris.Wrap(err, ErrRows.Error())
	}

	run.step(model.StepExtract, progressExtract)
	err = run.phase("extract", func() error {
		sw, err := extract.New(p.cfg.Paths.DownloadDir, p.cfg.Paths.DocumentDir).Run(ctx)
		run.stats.MergeExtract(sw)
		return err
	})
	if err != nil {
		return eris.Wrap(err, ErrExtract.Error())
	}

	run.step(model.StepIngest, progressIngest)
	err = run.phase("ingest", func() error {
		sw, err := ingest.New(p.cfg.Paths.DocumentDir, p.documents).WithRetry(retry).Run(ctx)
		run.stats.MergeIngest(sw)
		return err
	})
	if err != nil {
		return eris.Wrap(err, ErrIngest.Error())
	}

	run.step(model.StepComplete, progressDone)
	return nil
}

// atLocation tags a browser-phase failure with the page's URL.
func atLocation(ctx context.Context, pg page.Page, err error) error {
	url, lerr := pg.Location(ctx)
	if lerr != nil || url == "" {
		return err
	}
	return eris.Wrapf(err, "page at %s", url)
}

// runState carries one run's identity and counters between phases.
type runState struct {
	runID    string
	stats    model.Stats
	reporter Reporter
	log      *zap.Logger
}

func (r *runState) step(name string, progress int) {
	r.log.Info("pipeline: progress", zap.Int("progress", progress), zap.String("step", name))
	r.reporter.Progress(model.Progress{RunID: r.runID, Step: name, Progress: progress, Stats: r.stats})
}

// phase runs fn and logs its duration and outcome.
func (r *runState) phase(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	duration := time.Since(start).Milliseconds()
	if err != nil {
		r.log.Error("pipeline: phase failed",
			zap.String("phase", name),
			zap.Int64("duration_ms", duration),
			zap.Error(err),
		)
		return err
	}
	r.log.Info("pipeline: phase complete",
		zap.String("phase", name),
		zap.Int64("duration_ms", duration),
	)
	return nil
}
