// Package pagetest provides an in-memory invoice portal implementing
// page.Page for tests.
package pagetest

import (
	"archive/zip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/invoice-rpa/internal/page"
)

// Row is one table row. Cells are the row's cell texts; a row with no cells
// (or only blank cells) behaves like the table's placeholder padding.
type Row struct {
	Cells []string
	// Buttons is the number of buttons rendered in the row. Zero means 4.
	Buttons int
}

// InvoiceRow builds a 9-cell row with the identity fields at their columns.
func InvoiceRow(doc, issuer, total string) Row {
	cells := make([]string, 9)
	for i := range cells {
		cells[i] = fmt.Sprintf("c%d", i)
	}
	cells[1], cells[2], cells[8] = doc, issuer, total
	return Row{Cells: cells}
}

// Selectors tells the portal which queries address which of its elements.
type Selectors struct {
	Row      page.Selector
	Cell     page.Selector
	Button   page.Selector
	Download page.Selector
	Close    page.Selector
	Next     page.Selector
}

// Portal simulates the received-invoices table: pages of rows, a per-row
// actions menu whose download control drops a zip into DownloadDir, and a
// "next" control present on every page but the last.
type Portal struct {
	Sel         Selectors
	Pages       [][]Row
	DownloadDir string

	// Static elements (login form, menus) that are present and clickable.
	Present map[page.Selector]bool
	// Frames that EnterFrame accepts.
	Frames map[page.Selector]bool

	// NoDownload lists document numbers whose download never lands.
	NoDownload map[string]bool
	// NoControl lists document numbers whose actions menu never shows a
	// clickable download control.
	NoControl map[string]bool
	// EmptyArchive lists document numbers whose zip has no XML payload.
	EmptyArchive map[string]bool
	// PartialFor keeps a .crdownload marker next to the zip for this long.
	PartialFor time.Duration
	// NextErr, when set, is returned by Find for the next control.
	NextErr error
	// CloseErr, when set, makes the dismiss control unclickable.
	CloseErr error

	mu        sync.Mutex
	current   int
	open      *Row
	frame     page.Selector
	frameWait time.Duration
	inFrame   bool
	downloads int
	clicks    []string
	typed     map[string]string
	visited   []string
}

var _ page.Page = (*Portal)(nil)

type kind int

const (
	kindStatic kind = iota
	kindRow
	kindCell
	kindButton
	kindDownload
	kindClose
	kindNext
)

type element struct {
	kind kind
	page int
	row  int
	idx  int
	sel  page.Selector
}

func (e element) Handle() string {
	return fmt.Sprintf("%d/%d/%d/%d/%s", e.kind, e.page, e.row, e.idx, e.sel)
}

// Downloads returns how many download controls were clicked.
func (p *Portal) Downloads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.downloads
}

// Clicks returns the handles of clicked static elements, in order.
func (p *Portal) Clicks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicks...)
}

// Typed returns the text typed into the element matched by sel.
func (p *Portal) Typed(sel page.Selector) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.typed[sel.String()]
}

// Visited returns the URLs passed to Navigate.
func (p *Portal) Visited() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.visited...)
}

// FrameWait returns the timeout passed to the last EnterFrame call.
func (p *Portal) FrameWait() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frameWait
}

// CurrentPage returns the zero-based index of the displayed page.
func (p *Portal) CurrentPage() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Reset returns the table to its first page, as a fresh session would see it.
func (p *Portal) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = 0
	p.open = nil
	p.inFrame = false
}

func (p *Portal) rows() []Row {
	if p.current < len(p.Pages) {
		return p.Pages[p.current]
	}
	return nil
}

func (p *Portal) Find(ctx context.Context, sel page.Selector) (page.Element, page.Lookup, error) {
	if err := ctx.Err(); err != nil {
		return nil, page.NotFound, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case sel == p.Sel.Next:
		if p.NextErr != nil {
			return nil, page.NotFound, p.NextErr
		}
		if p.current < len(p.Pages)-1 {
			return element{kind: kindNext, page: p.current, sel: sel}, page.Found, nil
		}
		return nil, page.NotFound, nil
	case p.Present[sel]:
		return element{kind: kindStatic, sel: sel}, page.Found, nil
	}
	return nil, page.NotFound, nil
}

func (p *Portal) FindAll(ctx context.Context, sel page.Selector) ([]page.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if sel == p.Sel.Row {
		rows := p.rows()
		out := make([]page.Element, 0, len(rows))
		for i := range rows {
			out = append(out, element{kind: kindRow, page: p.current, row: i, sel: sel})
		}
		return out, nil
	}
	if p.Present[sel] {
		return []page.Element{element{kind: kindStatic, sel: sel}}, nil
	}
	return nil, nil
}

func (p *Portal) FindIn(ctx context.Context, parent page.Element, sel page.Selector) ([]page.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	row, err := p.rowOf(parent)
	if err != nil {
		return nil, err
	}
	e := parent.(element)

	var out []page.Element
	switch sel {
	case p.Sel.Cell:
		for i := range row.Cells {
			out = append(out, element{kind: kindCell, page: e.page, row: e.row, idx: i, sel: sel})
		}
	case p.Sel.Button:
		n := row.Buttons
		if n == 0 {
			n = 4
		}
		for i := 0; i < n; i++ {
			out = append(out, element{kind: kindButton, page: e.page, row: e.row, idx: i, sel: sel})
		}
	}
	return out, nil
}

func (p *Portal) rowOf(el page.Element) (*Row, error) {
	e, ok := el.(element)
	if !ok {
		return nil, eris.Errorf("pagetest: foreign element %T", el)
	}
	if e.page != p.current {
		return nil, eris.Errorf("pagetest: stale element from page %d", e.page)
	}
	rows := p.rows()
	if e.row < 0 || e.row >= len(rows) {
		return nil, eris.Errorf("pagetest: no row %d", e.row)
	}
	return &rows[e.row], nil
}

func (p *Portal) WaitClickable(ctx context.Context, sel page.Selector, timeout time.Duration) (page.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case sel == p.Sel.Download && p.open != nil && !p.NoControl[p.open.Cells[1]]:
		return element{kind: kindDownload, page: p.current, sel: sel}, nil
	case sel == p.Sel.Close && p.open != nil && p.CloseErr == nil:
		return element{kind: kindClose, page: p.current, sel: sel}, nil
	case p.Present[sel]:
		return element{kind: kindStatic, sel: sel}, nil
	}
	return nil, eris.Wrapf(page.ErrNotClickable, "pagetest: %s after %s", sel, timeout)
}

func (p *Portal) Click(ctx context.Context, el page.Element) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := el.(element)
	if !ok {
		return eris.Errorf("pagetest: foreign element %T", el)
	}
	switch e.kind {
	case kindButton:
		row, err := p.rowOf(el)
		if err != nil {
			return err
		}
		if e.idx == 3 {
			p.open = row
		}
	case kindDownload:
		if p.open == nil {
			return eris.New("pagetest: download menu closed")
		}
		p.downloads++
		return p.drop(*p.open)
	case kindClose:
		p.open = nil
	case kindNext:
		if e.page != p.current {
			return eris.New("pagetest: stale next control")
		}
		p.current++
		p.open = nil
	default:
		p.clicks = append(p.clicks, e.sel.String())
	}
	return nil
}

// drop writes the archive the portal would serve for row.
func (p *Portal) drop(row Row) error {
	doc := row.Cells[1]
	if p.NoDownload[doc] {
		return nil
	}
	name := fmt.Sprintf("comprobante_%03d.zip", p.downloads)
	path := filepath.Join(p.DownloadDir, name)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	zw := zip.NewWriter(f)
	if !p.EmptyArchive[doc] {
		w, err := zw.Create("comprobante/" + doc + ".xml")
		if err != nil {
			_ = f.Close()
			return err
		}
		if _, err := fmt.Fprintf(w, "<Invoice><ID>%s</ID><Total>%s</Total></Invoice>", doc, row.Cells[8]); err != nil {
			_ = f.Close()
			return err
		}
	} else if _, err := zw.Create("readme.txt"); err != nil {
		_ = f.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	if p.PartialFor > 0 {
		marker := path + ".crdownload"
		if err := os.WriteFile(marker, nil, 0o644); err != nil {
			return err
		}
		time.AfterFunc(p.PartialFor, func() { _ = os.Remove(marker) })
	}
	return nil
}

func (p *Portal) Text(ctx context.Context, el page.Element) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := el.(element)
	if !ok {
		return "", eris.Errorf("pagetest: foreign element %T", el)
	}
	switch e.kind {
	case kindRow, kindCell:
		row, err := p.rowOf(el)
		if err != nil {
			return "", err
		}
		if e.kind == kindRow {
			return strings.Join(row.Cells, " "), nil
		}
		return row.Cells[e.idx], nil
	case kindNext:
		return "Siguiente", nil
	}
	return "", nil
}

func (p *Portal) Type(ctx context.Context, el page.Element, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := el.(element)
	if !ok {
		return eris.Errorf("pagetest: foreign element %T", el)
	}
	if p.typed == nil {
		p.typed = make(map[string]string)
	}
	p.typed[e.sel.String()] += text
	return nil
}

func (p *Portal) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visited = append(p.visited, url)
	p.inFrame = false
	return nil
}

func (p *Portal) EnterFrame(ctx context.Context, sel page.Selector, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frameWait = timeout
	if !p.Frames[sel] {
		return eris.Errorf("pagetest: frame %s not found", sel)
	}
	p.frame, p.inFrame = sel, true
	return nil
}

func (p *Portal) Location(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.visited) == 0 {
		return "about:blank", nil
	}
	return p.visited[len(p.visited)-1], nil
}
