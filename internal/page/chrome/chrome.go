// Package chrome implements page.Page on a Chrome tab driven over the
// DevTools protocol with chromedp.
package chrome

import (
	"context"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/invoice-rpa/internal/page"
	"github.com/sells-group/invoice-rpa/internal/resilience"
)

// Options configures the browser process.
type Options struct {
	Headless     bool
	ExecPath     string
	DownloadDir  string
	WindowWidth  int
	WindowHeight int
	UserAgent    string
}

// Page is a page.Page backed by a single chromedp tab.
type Page struct {
	tab   context.Context
	frame *cdp.Node
}

var _ page.Page = (*Page)(nil)

type element struct {
	node *cdp.Node
}

func (e element) Handle() string { return e.node.FullXPath() }

// Launch starts Chrome, opens a tab with downloads routed to opts.DownloadDir
// and returns the page plus a release func that shuts the browser down.
func Launch(ctx context.Context, opts Options) (*Page, func(), error) {
	log := zap.L().With(zap.String("component", "page.chrome"))

	downloadDir, err := filepath.Abs(opts.DownloadDir)
	if err != nil {
		return nil, nil, eris.Wrap(err, "chrome: resolve download dir")
	}

	width, height := opts.WindowWidth, opts.WindowHeight
	if width <= 0 || height <= 0 {
		width, height = 1920, 1080
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("ignore-certificate-errors", true),
		chromedp.Flag("safebrowsing-disable-download-protection", true),
		chromedp.WindowSize(width, height),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	release := func() {
		tabCancel()
		allocCancel()
		log.Info("browser closed")
	}

	// The first Run starts the browser process.
	err = chromedp.Run(tabCtx,
		browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllow).
			WithDownloadPath(downloadDir).
			WithEventsEnabled(true),
	)
	if err != nil {
		release()
		return nil, nil, eris.Wrap(err, "chrome: start browser")
	}

	log.Info("browser started",
		zap.Bool("headless", opts.Headless),
		zap.String("download_dir", downloadDir),
	)
	return &Page{tab: tabCtx}, release, nil
}

// run executes actions on the tab while honoring ctx's deadline and
// cancellation. Cancelling the derived context never closes the tab.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.tab)
	defer cancel()
	if dl, ok := ctx.Deadline(); ok {
		var dlCancel context.CancelFunc
		runCtx, dlCancel = context.WithDeadline(runCtx, dl)
		defer dlCancel()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

// query builds the chromedp query options for sel, scoped to the current frame.
func (p *Page) query(sel page.Selector, single bool, extra ...chromedp.QueryOption) []chromedp.QueryOption {
	var opts []chromedp.QueryOption
	switch sel.By {
	case page.ByXPath:
		opts = append(opts, chromedp.BySearch)
	case page.ByID:
		opts = append(opts, chromedp.ByID)
	default:
		if single {
			opts = append(opts, chromedp.ByQuery)
		} else {
			opts = append(opts, chromedp.ByQueryAll)
		}
	}
	if p.frame != nil {
		opts = append(opts, chromedp.FromNode(p.frame))
	}
	return append(opts, extra...)
}

func nodeOf(el page.Element) (*cdp.Node, error) {
	e, ok := el.(element)
	if !ok || e.node == nil {
		return nil, eris.Errorf("chrome: foreign element %T", el)
	}
	return e.node, nil
}

func wrapNodes(nodes []*cdp.Node) []page.Element {
	out := make([]page.Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, element{node: n})
	}
	return out
}

func (p *Page) Find(ctx context.Context, sel page.Selector) (page.Element, page.Lookup, error) {
	var nodes []*cdp.Node
	if err := p.run(ctx, chromedp.Nodes(sel.Query, &nodes, p.query(sel, false, chromedp.AtLeast(0))...)); err != nil {
		return nil, page.NotFound, eris.Wrapf(err, "chrome: find %s", sel)
	}
	if len(nodes) == 0 {
		return nil, page.NotFound, nil
	}
	return element{node: nodes[0]}, page.Found, nil
}

func (p *Page) FindAll(ctx context.Context, sel page.Selector) ([]page.Element, error) {
	var nodes []*cdp.Node
	if err := p.run(ctx, chromedp.Nodes(sel.Query, &nodes, p.query(sel, false, chromedp.AtLeast(0))...)); err != nil {
		return nil, eris.Wrapf(err, "chrome: find all %s", sel)
	}
	return wrapNodes(nodes), nil
}

func (p *Page) FindIn(ctx context.Context, parent page.Element, sel page.Selector) ([]page.Element, error) {
	pn, err := nodeOf(parent)
	if err != nil {
		return nil, err
	}
	var nodes []*cdp.Node
	opts := []chromedp.QueryOption{chromedp.ByQueryAll, chromedp.FromNode(pn), chromedp.AtLeast(0)}
	if sel.By == page.ByXPath {
		opts[0] = chromedp.BySearch
	}
	if err := p.run(ctx, chromedp.Nodes(sel.Query, &nodes, opts...)); err != nil {
		return nil, eris.Wrapf(err, "chrome: find %s in row", sel)
	}
	return wrapNodes(nodes), nil
}

func (p *Page) WaitClickable(ctx context.Context, sel page.Selector, timeout time.Duration) (page.Element, error) {
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var nodes []*cdp.Node
	err := p.run(wctx,
		chromedp.WaitVisible(sel.Query, p.query(sel, true)...),
		chromedp.WaitEnabled(sel.Query, p.query(sel, true)...),
		chromedp.Nodes(sel.Query, &nodes, p.query(sel, true)...),
	)
	if err != nil {
		if wctx.Err() != nil && ctx.Err() == nil {
			return nil, eris.Wrapf(page.ErrNotClickable, "chrome: %s after %s", sel, timeout)
		}
		return nil, eris.Wrapf(err, "chrome: wait clickable %s", sel)
	}
	if len(nodes) == 0 {
		return nil, eris.Wrapf(page.ErrNotClickable, "chrome: %s matched nothing", sel)
	}
	return element{node: nodes[0]}, nil
}

func (p *Page) Click(ctx context.Context, el page.Element) error {
	n, err := nodeOf(el)
	if err != nil {
		return err
	}
	ids := []cdp.NodeID{n.NodeID}
	err = p.run(ctx,
		chromedp.ScrollIntoView(ids, chromedp.ByNodeID),
		chromedp.MouseClickNode(n),
	)
	if err == nil {
		return nil
	}

	// Overlays and animated menus sometimes swallow synthetic mouse events;
	// a DOM click still reaches the handler.
	zap.L().Debug("chrome: mouse click failed, falling back to DOM click",
		zap.String("node", n.FullXPath()), zap.Error(err))
	if jsErr := p.run(ctx, domClick(n)); jsErr != nil {
		return eris.Wrapf(jsErr, "chrome: click %s", n.FullXPath())
	}
	return nil
}

func domClick(n *cdp.Node) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		obj, err := dom.ResolveNode().WithNodeID(n.NodeID).Do(ctx)
		if err != nil {
			return err
		}
		_, exc, err := runtime.CallFunctionOn(`function() { this.click(); }`).
			WithObjectID(obj.ObjectID).
			Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return exc
		}
		return nil
	}
}

func (p *Page) Text(ctx context.Context, el page.Element) (string, error) {
	n, err := nodeOf(el)
	if err != nil {
		return "", err
	}
	var text string
	if err := p.run(ctx, chromedp.Text([]cdp.NodeID{n.NodeID}, &text, chromedp.ByNodeID)); err != nil {
		return "", eris.Wrap(err, "chrome: read text")
	}
	return text, nil
}

func (p *Page) Type(ctx context.Context, el page.Element, text string) error {
	n, err := nodeOf(el)
	if err != nil {
		return err
	}
	if err := p.run(ctx, chromedp.SendKeys([]cdp.NodeID{n.NodeID}, text, chromedp.ByNodeID)); err != nil {
		return eris.Wrap(err, "chrome: type")
	}
	return nil
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	p.frame = nil
	cfg := resilience.DefaultRetryConfig()
	cfg.OnRetry = resilience.RetryLogger("chrome", "navigate")
	err := resilience.Do(ctx, cfg, func(ctx context.Context) error {
		return p.run(ctx, chromedp.Navigate(url))
	})
	return eris.Wrapf(err, "chrome: navigate %s", url)
}

func (p *Page) EnterFrame(ctx context.Context, sel page.Selector, timeout time.Duration) error {
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	p.frame = nil
	var frames []*cdp.Node
	if err := p.run(wctx, chromedp.Nodes(sel.Query, &frames, p.query(sel, true)...)); err != nil {
		return eris.Wrapf(err, "chrome: enter frame %s", sel)
	}
	if len(frames) == 0 {
		return eris.Errorf("chrome: frame %s not found", sel)
	}
	p.frame = frames[0]
	return nil
}

func (p *Page) Location(ctx context.Context) (string, error) {
	var url string
	if err := p.run(ctx, chromedp.Location(&url)); err != nil {
		return "", eris.Wrap(err, "chrome: location")
	}
	return url, nil
}
