// Package erp drives the portal from a blank tab to the received-invoices
// table: login, menu navigation, and the table frame.
package erp

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/invoice-rpa/internal/page"
)

var (
	// ErrLogin is returned when the credential form cannot be completed.
	ErrLogin = eris.New("erp: failed to login")
	// ErrNavigate is returned when the invoice table cannot be reached.
	ErrNavigate = eris.New("erp: failed to navigate to invoices")
)

// StepError ties a bootstrap failure to the step that failed. errors.Is
// matches it against ErrLogin or ErrNavigate.
type StepError struct {
	Step error
	Err  error
}

func (e *StepError) Error() string { return e.Step.Error() + ": " + e.Err.Error() }

func (e *StepError) Unwrap() error { return e.Err }

func (e *StepError) Is(target error) bool { return target == e.Step }

func loginErr(err error) error { return &StepError{Step: ErrLogin, Err: err} }

func navigateErr(err error) error { return &StepError{Step: ErrNavigate, Err: err} }

// Credentials for the portal.
type Credentials struct {
	URL      string
	Username string
	Password string
}

// Timeouts bounds each wait of the bootstrap.
type Timeouts struct {
	// Element bounds form fields and menu buttons.
	Element time.Duration
	// Module bounds the first menu entry, which appears only after the
	// post-login dashboard finishes loading.
	Module time.Duration
	// Frame bounds the wait for the invoice table frame.
	Frame time.Duration
}

// DefaultTimeouts matches the portal's observed load times.
func DefaultTimeouts() Timeouts {
	return Timeouts{Element: 5 * time.Second, Module: 60 * time.Second, Frame: 15 * time.Second}
}

// Selectors locates the portal's login and menu elements.
type Selectors struct {
	Username  page.Selector
	Password  page.Selector
	Next      page.Selector
	Submit    page.Selector
	Module    page.Selector
	Reception page.Selector
	Received  page.Selector
	Frame     page.Selector
}

// DefaultSelectors returns the selectors of the electronic-invoicing portal.
func DefaultSelectors() Selectors {
	return Selectors{
		Username:  page.ID("txtUsuario"),
		Password:  page.ID("txtContrasena"),
		Next:      page.ID("btnSiguiente"),
		Submit:    page.ID("btnIngresar"),
		Module:    page.ID("mod-FE"),
		Reception: page.XPath(`//button[contains(., 'Recepción')]`),
		Received:  page.XPath(`//button[contains(., 'Documentos recibidos')]`),
		Frame:     page.ID("pagina1"),
	}
}

// Session walks a Page through the portal.
type Session struct {
	page     page.Page
	creds    Credentials
	timeouts Timeouts
	sel      Selectors
	log      *zap.Logger
}

// NewSession returns a Session using the default selectors.
func NewSession(p page.Page, creds Credentials, timeouts Timeouts) *Session {
	return &Session{
		page:     p,
		creds:    creds,
		timeouts: timeouts,
		sel:      DefaultSelectors(),
		log:      zap.L().With(zap.String("component", "erp.session")),
	}
}

// WithSelectors overrides the portal selectors.
func (s *Session) WithSelectors(sel Selectors) *Session {
	s.sel = sel
	return s
}

// Login loads the portal and submits the two-step credential form.
func (s *Session) Login(ctx context.Context) error {
	if err := s.page.Navigate(ctx, s.creds.URL); err != nil {
		return loginErr(eris.Wrap(err, "open portal"))
	}

	if err := s.fill(ctx, s.sel.Username, s.creds.Username); err != nil {
		return loginErr(err)
	}
	if err := s.fill(ctx, s.sel.Password, s.creds.Password); err != nil {
		return loginErr(err)
	}

	next, lookup, err := s.page.Find(ctx, s.sel.Next)
	if err != nil {
		return loginErr(err)
	}
	if lookup == page.NotFound {
		return loginErr(eris.Errorf("erp: %s missing", s.sel.Next))
	}
	if err := s.page.Click(ctx, next); err != nil {
		return loginErr(err)
	}

	if err := s.click(ctx, s.sel.Submit, s.timeouts.Element); err != nil {
		return loginErr(err)
	}

	s.log.Info("logged in", zap.String("user", s.creds.Username))
	return nil
}

// OpenInvoices navigates the menu to the received documents and scopes the
// page to the table frame.
func (s *Session) OpenInvoices(ctx context.Context) error {
	if err := s.click(ctx, s.sel.Module, s.timeouts.Module); err != nil {
		return navigateErr(err)
	}

	// Some accounts land directly on the reception menu.
	if err := s.click(ctx, s.sel.Reception, s.timeouts.Element); err != nil {
		if ctx.Err() != nil {
			return navigateErr(err)
		}
		s.log.Info("reception menu not shown, continuing", zap.Error(err))
	}

	if err := s.click(ctx, s.sel.Received, s.timeouts.Element); err != nil {
		return navigateErr(err)
	}

	if err := s.page.EnterFrame(ctx, s.sel.Frame, s.timeouts.Frame); err != nil {
		return navigateErr(err)
	}

	s.log.Info("invoice table frame ready")
	return nil
}

func (s *Session) fill(ctx context.Context, sel page.Selector, text string) error {
	el, err := s.page.WaitClickable(ctx, sel, s.timeouts.Element)
	if err != nil {
		return err
	}
	return s.page.Type(ctx, el, text)
}

func (s *Session) click(ctx context.Context, sel page.Selector, timeout time.Duration) error {
	el, err := s.page.WaitClickable(ctx, sel, timeout)
	if err != nil {
		return err
	}
	return s.page.Click(ctx, el)
}
