// Package download detects browser-initiated archive downloads landing in a
// directory and moves them to their canonical names.
package download

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/invoice-rpa/internal/model"
	"github.com/sells-group/invoice-rpa/internal/poll"
)

// ErrTimeout is returned when no completed archive appears before the deadline.
var ErrTimeout = eris.New("download: no new archive before deadline")

// DefaultPartialExts are the in-progress markers browsers leave while writing.
var DefaultPartialExts = []string{".crdownload", ".part", ".tmp"}

// Baseline is the set of archive paths present before a download was triggered.
type Baseline map[string]struct{}

// Contains reports whether path was already present.
func (b Baseline) Contains(path string) bool {
	_, ok := b[path]
	return ok
}

// Watcher polls a directory for newly completed archives.
type Watcher struct {
	dir         string
	interval    time.Duration
	archiveExt  string
	partialExts []string
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithInterval sets the poll interval (default 1s).
func WithInterval(d time.Duration) Option {
	return func(w *Watcher) { w.interval = d }
}

// WithPartialExts overrides the in-progress marker extensions.
func WithPartialExts(exts ...string) Option {
	return func(w *Watcher) { w.partialExts = exts }
}

// NewWatcher creates a Watcher over dir for .zip archives.
func NewWatcher(dir string, opts ...Option) *Watcher {
	w := &Watcher{
		dir:         dir,
		interval:    time.Second,
		archiveExt:  model.ArchiveExt,
		partialExts: DefaultPartialExts,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string { return w.dir }

// Snapshot records the archives currently present. Take it before the action
// that triggers a download.
func (w *Watcher) Snapshot() (Baseline, error) {
	archives, _, err := w.scan()
	if err != nil {
		return nil, err
	}
	b := make(Baseline, len(archives))
	for _, a := range archives {
		b[a.path] = struct{}{}
	}
	return b, nil
}

// AwaitNewArchive waits until an archive outside baseline exists and no
// partial-download marker is present in the same listing. When several new
// archives qualify, the most recently modified wins.
func (w *Watcher) AwaitNewArchive(ctx context.Context, timeout time.Duration, baseline Baseline) (string, error) {
	log := zap.L().With(zap.String("component", "download.watcher"), zap.String("dir", w.dir))

	var found string
	err := poll.Until(ctx, w.interval, timeout, func(context.Context) (bool, error) {
		archives, partials, err := w.scan()
		if err != nil {
			return false, err
		}
		if partials > 0 {
			return false, nil
		}

		var newest archive
		for _, a := range archives {
			if baseline.Contains(a.path) {
				continue
			}
			if newest.path == "" || a.modTime.After(newest.modTime) {
				newest = a
			}
		}
		if newest.path == "" {
			return false, nil
		}
		found = newest.path
		return true, nil
	})
	if err != nil {
		if eris.Is(err, poll.ErrTimeout) {
			return "", eris.Wrapf(ErrTimeout, "download: waited %s", timeout)
		}
		return "", eris.Wrap(err, "download: await archive")
	}

	log.Debug("archive download complete", zap.String("path", found))
	return found, nil
}

type archive struct {
	path    string
	modTime time.Time
}

// scan lists completed archives and counts partial-download markers in one
// directory read.
func (w *Watcher) scan() ([]archive, int, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, 0, eris.Wrapf(err, "download: read dir %s", w.dir)
	}

	var archives []archive
	var partials int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if w.isPartial(name) {
			partials++
			continue
		}
		if !model.HasExt(name, w.archiveExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Renamed or removed between ReadDir and Info.
			continue
		}
		archives = append(archives, archive{path: filepath.Join(w.dir, name), modTime: info.ModTime()})
	}
	return archives, partials, nil
}

func (w *Watcher) isPartial(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range w.partialExts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
