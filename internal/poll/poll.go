// Package poll implements bounded, cancellable polling. Every wait in the
// pipeline (table rows, downloads, page settling) goes through here so that a
// deadline or a cancelled context always ends it.
package poll

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// ErrTimeout is returned when a condition is not met before the deadline.
var ErrTimeout = eris.New("poll: timed out")

// Condition reports whether the awaited state has been reached. A non-nil
// error stops polling immediately.
type Condition func(ctx context.Context) (bool, error)

// Until evaluates cond immediately and then once per interval until it
// reports true, returns an error, or timeout elapses. Parent cancellation is
// returned as-is; an expired deadline is returned as ErrTimeout. A
// non-positive timeout checks cond exactly once.
func Until(ctx context.Context, interval, timeout time.Duration, cond Condition) error {
	if interval <= 0 {
		interval = time.Second
	}
	if timeout <= 0 {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "poll: cancelled")
		}
		done, err := cond(ctx)
		if err != nil {
			return err
		}
		if !done {
			return ErrTimeout
		}
		return nil
	}

	pctx := ctx
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	lim := rate.NewLimiter(rate.Every(interval), 1)
	for {
		if err := lim.Wait(ctx); err != nil {
			// Wait refuses early when the next tick would overrun the deadline.
			if pctx.Err() != nil {
				return eris.Wrap(pctx.Err(), "poll: cancelled")
			}
			return ErrTimeout
		}

		done, err := cond(ctx)
		if err != nil {
			if ctx.Err() != nil && pctx.Err() == nil {
				return ErrTimeout
			}
			return err
		}
		if done {
			return nil
		}
	}
}

// Sleep pauses for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "poll: sleep interrupted")
	case <-timer.C:
		return nil
	}
}
