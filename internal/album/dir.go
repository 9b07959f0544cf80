package album

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"
)

// DirSink copies finished files into a local directory.
type DirSink struct {
	dir    string
	prefix string
	now    func() time.Time
}

// NewDirSink saves into dir, naming files after title.
func NewDirSink(dir, title string) *DirSink {
	prefix := Slug(title)
	if prefix == "" {
		prefix = "subtitle-stitch"
	}
	return &DirSink{dir: dir, prefix: prefix, now: time.Now}
}

// Save atomically copies path into the album directory.
func (s *DirSink) Save(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}

	src, err := os.Open(path) //nolint:gosec // composite output path
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}
	defer src.Close()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", classify(err)
	}
	if err := checkWritable(s.dir); err != nil {
		return "", classify(err)
	}

	name := fmt.Sprintf("%s-%s%s", s.prefix, s.now().Format("20060102-150405.000"), filepath.Ext(path))
	dest := filepath.Join(s.dir, name)
	if err := atomic.WriteFile(dest, src); err != nil {
		return "", classify(err)
	}

	slog.Info("saved to album", "path", dest)
	return dest, nil
}

// checkWritable surfaces permission errors as *fs.PathError, which the
// atomic writer flattens into plain strings.
func checkWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".write-check-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

func classify(err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %w", ErrStorageFailure, err)
}
