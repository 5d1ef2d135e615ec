package bridge

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DefaultFileMode is applied to documents written by WriteFile.
const DefaultFileMode os.FileMode = 0o644

// WriteFile atomically writes r to path: content goes to a temporary file in
// the destination directory which is renamed into place only after a
// successful sync. No partial file is left behind on failure.
func WriteFile(ctx context.Context, path string, r io.Reader, perm os.FileMode) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(path) == "" {
		return 0, NewError(KindValidation, "output path is required", nil)
	}
	if r == nil {
		return 0, NewError(KindValidation, "output reader is required", nil)
	}
	if perm == 0 {
		perm = DefaultFileMode
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".pdfbridge-*")
	if err != nil {
		return 0, NewError(KindIO, "create temporary output file failed", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	size, err := io.Copy(tmp, r)
	if err != nil {
		return 0, NewError(KindIO, "write output file failed", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return 0, NewError(KindIO, "set output file mode failed", err)
	}
	if err := tmp.Sync(); err != nil {
		return 0, NewError(KindIO, "sync output file failed", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, NewError(KindIO, "close output file failed", err)
	}
	if err := ctx.Err(); err != nil {
		return 0, NewError(KindCanceled, "output write canceled", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, NewError(KindIO, "move output file into place failed", err)
	}
	return size, nil
}
