// Package page defines the browser capability the scraping core depends on.
// The core never assumes how elements are located; it only names selectors
// and acts on the opaque handles a Page returns.
package page

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

// By selects how a Selector's query is interpreted.
type By int

const (
	// ByCSS treats the query as a CSS selector.
	ByCSS By = iota
	// ByXPath treats the query as an XPath expression.
	ByXPath
	// ByID treats the query as an element id.
	ByID
)

func (b By) String() string {
	switch b {
	case ByCSS:
		return "css"
	case ByXPath:
		return "xpath"
	case ByID:
		return "id"
	default:
		return "unknown"
	}
}

// Selector names an element or set of elements.
type Selector struct {
	By    By
	Query string
}

// CSS returns a CSS selector.
func CSS(q string) Selector { return Selector{By: ByCSS, Query: q} }

// XPath returns an XPath selector.
func XPath(q string) Selector { return Selector{By: ByXPath, Query: q} }

// ID returns an element-id selector.
func ID(id string) Selector { return Selector{By: ByID, Query: id} }

func (s Selector) String() string { return s.By.String() + ":" + s.Query }

// Lookup is the outcome of a single-element search that did not fail.
type Lookup int

const (
	// NotFound means no element matched. It is an answer, not a failure.
	NotFound Lookup = iota
	// Found means an element matched.
	Found
)

func (l Lookup) String() string {
	if l == Found {
		return "found"
	}
	return "not_found"
}

// ErrNotClickable is returned when an element does not become interactable
// within its timeout.
var ErrNotClickable = eris.New("page: element not clickable before deadline")

// Element is an opaque handle issued by a Page. Only the issuing Page can act
// on it.
type Element interface {
	Handle() string
}

// Page is the browser capability consumed by the scraping pipeline.
type Page interface {
	// Find looks up the first element matching sel without waiting.
	// A nil error with NotFound means "absent"; a non-nil error means the
	// automation itself failed.
	Find(ctx context.Context, sel Selector) (Element, Lookup, error)

	// FindAll returns every element matching sel without waiting.
	FindAll(ctx context.Context, sel Selector) ([]Element, error)

	// FindIn returns every element matching sel inside parent.
	FindIn(ctx context.Context, parent Element, sel Selector) ([]Element, error)

	// WaitClickable waits until an element matching sel is visible and
	// enabled. Exceeding timeout returns ErrNotClickable.
	WaitClickable(ctx context.Context, sel Selector, timeout time.Duration) (Element, error)

	// Click scrolls el into view and clicks it.
	Click(ctx context.Context, el Element) error

	// Text returns the visible text of el.
	Text(ctx context.Context, el Element) (string, error)

	// Type sends keystrokes to el.
	Type(ctx context.Context, el Element, text string) error

	// Navigate loads url in the top-level frame and resets any frame scope.
	Navigate(ctx context.Context, url string) error

	// EnterFrame scopes subsequent lookups to the iframe matching sel.
	EnterFrame(ctx context.Context, sel Selector, timeout time.Duration) error

	// Location returns the current top-level URL.
	Location(ctx context.Context) (string, error)
}
