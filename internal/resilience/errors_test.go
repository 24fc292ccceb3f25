package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("invalid input"), false},
		{"explicit", Transient(errors.New("x")), true},
		{"wrapped explicit", eris.Wrap(Transient(errors.New("x")), "store: insert"), true},
		{"sqlite locked", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"sqlite busy upper", errors.New("SQLITE_BUSY"), true},
		{"nav reset", errors.New("page load error net::ERR_CONNECTION_RESET"), true},
		{"econnreset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"timeout", &net.DNSError{IsTimeout: true, Err: "timeout"}, true},
		{"constraint", errors.New("UNIQUE constraint failed"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestTransientNil(t *testing.T) {
	t.Parallel()
	assert.NoError(t, Transient(nil))
}
