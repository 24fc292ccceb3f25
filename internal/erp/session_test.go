package erp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/invoice-rpa/internal/page"
	"github.com/sells-group/invoice-rpa/internal/page/pagetest"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func portalWith(present ...page.Selector) *pagetest.Portal {
	p := &pagetest.Portal{
		Present: make(map[page.Selector]bool),
		Frames:  map[page.Selector]bool{DefaultSelectors().Frame: true},
	}
	for _, s := range present {
		p.Present[s] = true
	}
	return p
}

func fullPortal() *pagetest.Portal {
	sel := DefaultSelectors()
	return portalWith(sel.Username, sel.Password, sel.Next, sel.Submit,
		sel.Module, sel.Reception, sel.Received)
}

var creds = Credentials{URL: "https://erp.example.com", Username: "ana", Password: "s3cret"}

func shortTimeouts() Timeouts {
	return Timeouts{Element: 10 * time.Millisecond, Module: 10 * time.Millisecond, Frame: 30 * time.Millisecond}
}

func TestLogin(t *testing.T) {
	t.Parallel()
	p := fullPortal()
	s := NewSession(p, creds, shortTimeouts())

	require.NoError(t, s.Login(context.Background()))

	sel := DefaultSelectors()
	assert.Equal(t, []string{creds.URL}, p.Visited())
	assert.Equal(t, "ana", p.Typed(sel.Username))
	assert.Equal(t, "s3cret", p.Typed(sel.Password))
	assert.Equal(t, []string{sel.Next.String(), sel.Submit.String()}, p.Clicks())
}

func TestLogin_MissingSubmit(t *testing.T) {
	t.Parallel()
	sel := DefaultSelectors()
	p := portalWith(sel.Username, sel.Password, sel.Next)

	err := NewSession(p, creds, shortTimeouts()).Login(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLogin))
	assert.True(t, errors.Is(err, page.ErrNotClickable))
	assert.False(t, errors.Is(err, ErrNavigate))
}

func TestLogin_MissingNextButton(t *testing.T) {
	t.Parallel()
	sel := DefaultSelectors()
	p := portalWith(sel.Username, sel.Password, sel.Submit)

	err := NewSession(p, creds, shortTimeouts()).Login(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLogin))
	assert.Contains(t, err.Error(), "btnSiguiente")
}

func TestOpenInvoices(t *testing.T) {
	t.Parallel()
	p := fullPortal()
	s := NewSession(p, creds, shortTimeouts())

	require.NoError(t, s.OpenInvoices(context.Background()))

	sel := DefaultSelectors()
	assert.Equal(t, []string{sel.Module.String(), sel.Reception.String(), sel.Received.String()}, p.Clicks())
}

func TestOpenInvoices_WaitsForFrameWithFrameTimeout(t *testing.T) {
	t.Parallel()
	p := fullPortal()

	require.NoError(t, NewSession(p, creds, shortTimeouts()).OpenInvoices(context.Background()))
	assert.Equal(t, 30*time.Millisecond, p.FrameWait())
}

func TestDefaultTimeouts(t *testing.T) {
	t.Parallel()
	d := DefaultTimeouts()
	assert.Equal(t, 15*time.Second, d.Frame)
	assert.Equal(t, 60*time.Second, d.Module)
	assert.Positive(t, d.Element)
}

func TestOpenInvoices_ReceptionOptional(t *testing.T) {
	t.Parallel()
	sel := DefaultSelectors()
	p := portalWith(sel.Module, sel.Received)

	require.NoError(t, NewSession(p, creds, shortTimeouts()).OpenInvoices(context.Background()))
	assert.Equal(t, []string{sel.Module.String(), sel.Received.String()}, p.Clicks())
}

func TestOpenInvoices_Failures(t *testing.T) {
	t.Parallel()
	sel := DefaultSelectors()
	tests := []struct {
		name   string
		portal *pagetest.Portal
	}{
		{"no module", portalWith(sel.Received)},
		{"no received documents", portalWith(sel.Module)},
		{"no frame", func() *pagetest.Portal {
			p := portalWith(sel.Module, sel.Received)
			p.Frames = nil
			return p
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := NewSession(tt.portal, creds, shortTimeouts()).OpenInvoices(context.Background())
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrNavigate))
		})
	}
}

func TestOpenInvoices_CancelledDuringReception(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewSession(fullPortal(), creds, shortTimeouts()).OpenInvoices(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNavigate))
}
