package download

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/sys/unix"
)

// maxSuffix bounds the collision search so a pathological directory cannot
// spin forever.
const maxSuffix = 10000

// SafeRename moves src to dest. When dest exists it tries dest_1, dest_2, ...
// (suffix before the extension) and uses the first free name. Returns the
// final path.
func SafeRename(src, dest string) (string, error) {
	if src == dest {
		return dest, nil
	}

	ext := filepath.Ext(dest)
	base := strings.TrimSuffix(dest, ext)

	candidate := dest
	for n := 1; ; n++ {
		_, err := os.Lstat(candidate)
		if os.IsNotExist(err) {
			if err := os.Rename(src, candidate); err != nil {
				return "", eris.Wrapf(err, "download: rename %s to %s", filepath.Base(src), filepath.Base(candidate))
			}
			return candidate, nil
		}
		if err != nil {
			return "", eris.Wrapf(err, "download: stat %s", candidate)
		}
		if n > maxSuffix {
			return "", eris.Errorf("download: no free name for %s", filepath.Base(dest))
		}
		candidate = fmt.Sprintf("%s_%d%s", base, n, ext)
	}
}

// Move renames src to dest, replacing dest. When the two paths sit on
// different filesystems it copies and then removes src.
func Move(src, dest string) error {
	err := os.Rename(src, dest)
	if err == nil {
		return nil
	}
	if !errors.Is(err, unix.EXDEV) {
		return eris.Wrapf(err, "download: move %s", filepath.Base(src))
	}

	if err := copyFile(src, dest); err != nil {
		_ = os.Remove(dest)
		return eris.Wrapf(err, "download: copy %s across devices", filepath.Base(src))
	}
	return eris.Wrapf(os.Remove(src), "download: remove %s after copy", filepath.Base(src))
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close() //nolint:errcheck
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close() //nolint:errcheck
		return err
	}
	return out.Close()
}
