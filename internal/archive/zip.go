// Package archive unpacks downloaded zip archives and locates their payload.
package archive

import (
	"archive/zip"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/invoice-rpa/internal/model"
)

var (
	// ErrZipSlip is returned for entries that would land outside the target dir.
	ErrZipSlip = eris.New("archive: entry escapes extraction dir")
	// ErrNoPayload is returned when an unpacked archive holds no file with the
	// wanted extension.
	ErrNoPayload = eris.New("archive: no payload found")
)

// maxEntrySize caps a single unpacked entry. Invoice payloads are kilobytes.
const maxEntrySize = 256 << 20

// Extract unpacks every entry of zipPath under destDir and returns the paths
// of the extracted files. Any unsafe entry aborts the extraction.
func Extract(zipPath, destDir string) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if errors.Is(err, zip.ErrInsecurePath) {
		r.Close() //nolint:errcheck
		return nil, eris.Wrapf(ErrZipSlip, "archive: %s", filepath.Base(zipPath))
	}
	if err != nil {
		return nil, eris.Wrapf(err, "archive: open %s", filepath.Base(zipPath))
	}
	defer r.Close() //nolint:errcheck

	var extracted []string
	for _, f := range r.File {
		path, err := extractEntry(f, destDir)
		if err != nil {
			return extracted, err
		}
		if path != "" {
			extracted = append(extracted, path)
		}
	}
	return extracted, nil
}

// extractEntry writes f under destDir. Directories return an empty path.
func extractEntry(f *zip.File, destDir string) (string, error) {
	destPath := filepath.Join(destDir, f.Name)
	if !strings.HasPrefix(filepath.Clean(destPath), filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", eris.Wrapf(ErrZipSlip, "archive: entry %q", f.Name)
	}

	if f.FileInfo().IsDir() {
		return "", eris.Wrap(os.MkdirAll(destPath, 0o755), "archive: create directory")
	}
	if !f.Mode().IsRegular() {
		// Symlinks and devices never carry a payload.
		return "", nil
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", eris.Wrap(err, "archive: create parent directory")
	}

	rc, err := f.Open()
	if err != nil {
		return "", eris.Wrapf(err, "archive: open entry %q", f.Name)
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", eris.Wrap(err, "archive: create file")
	}

	n, err := io.Copy(out, io.LimitReader(rc, maxEntrySize+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", eris.Wrapf(err, "archive: write entry %q", f.Name)
	}
	if n > maxEntrySize {
		return "", eris.Errorf("archive: entry %q exceeds %d bytes", f.Name, maxEntrySize)
	}
	return destPath, nil
}

// FindFirst walks root depth-first in lexical order and returns the first
// regular file whose extension matches ext, case-insensitively.
func FindFirst(root, ext string) (string, error) {
	var found string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && model.HasExt(d.Name(), ext) {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", eris.Wrapf(err, "archive: walk %s", root)
	}
	if found == "" {
		return "", eris.Wrapf(ErrNoPayload, "archive: no %s under %s", ext, filepath.Base(root))
	}
	return found, nil
}
