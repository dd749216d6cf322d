// Package output copies kept images into an output directory.
package output

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Copier writes kept images to dir/<basename>.
type Copier struct {
	dir    string
	logger *zap.Logger
}

// Option configures a Copier.
type Option func(*Copier)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Copier) { c.logger = l }
}

// NewCopier returns a Copier for dir. The directory is created on first copy.
func NewCopier(dir string, opts ...Option) *Copier {
	c := &Copier{dir: dir, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dir returns the output directory.
func (c *Copier) Dir() string { return c.dir }

// CopyAll copies every path and returns the number copied. A source that is
// already the destination is skipped.
func (c *Copier) CopyAll(ctx context.Context, paths []string) (int, error) {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return 0, fmt.Errorf("create output dir: %w", err)
	}
	n := 0
	for _, src := range paths {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		dst := filepath.Join(c.dir, filepath.Base(src))
		same, err := samePath(src, dst)
		if err != nil {
			return n, err
		}
		if same {
			c.logger.Debug("skip copy onto itself", zap.String("path", src))
			continue
		}
		if err := copyFile(src, dst); err != nil {
			return n, err
		}
		n++
	}
	c.logger.Info("copied kept images", zap.String("dir", c.dir), zap.Int("count", n))
	return n, nil
}

func samePath(src, dst string) (bool, error) {
	si, err := os.Stat(src)
	if err != nil {
		return false, err
	}
	di, err := os.Stat(dst)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return os.SameFile(si, di), nil
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err := io.Copy(tmp, in); err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dst, err)
	}
	return os.Rename(tmp.Name(), dst)
}
