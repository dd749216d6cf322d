// Package scan lists the image files of target and comparison directories.
package scan

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultExtensions are the image formats the decoders understand.
var DefaultExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff", ".webp"}

// Options controls a directory listing.
type Options struct {
	// Recursive descends into subdirectories. The default lists only the
	// directory's own entries.
	Recursive bool
	// Extensions filters by file extension, case-insensitive, with or without
	// the leading dot. Empty allows every file.
	Extensions []string
}

// Dir returns the absolute paths of regular files in dir that pass opts,
// sorted lexicographically.
func Dir(ctx context.Context, dir string, opts Options) ([]string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return nil, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", absDir)
	}

	var paths []string
	err = filepath.WalkDir(absDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != absDir && !opts.Recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if !ExtensionAllowed(path, opts.Extensions) {
			return nil
		}
		// Resolve symlinks so only regular files are listed
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// Dirs concatenates the listings of dirs in argument order.
func Dirs(ctx context.Context, dirs []string, opts Options) ([]string, error) {
	var all []string
	for _, d := range dirs {
		paths, err := Dir(ctx, d, opts)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", d, err)
		}
		all = append(all, paths...)
	}
	return all, nil
}

// ExtensionAllowed reports whether path's extension is in allowed. An empty
// allowed list accepts everything.
func ExtensionAllowed(path string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == ext {
			return true
		}
	}
	return false
}
