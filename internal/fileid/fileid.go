// Package fileid derives the stable identity under which an image's embedding is cached.
package fileid

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hyperjump/imgdedup/internal/models"
	"golang.org/x/sync/errgroup"
)

const (
	pathPrefix    = "path:"
	contentPrefix = "sha256:"
)

// KeyMode selects how an image path is turned into a cache identifier.
type KeyMode string

const (
	// KeyContent hashes the file bytes. Renames and copies share one entry.
	KeyContent KeyMode = "content"
	// KeyPath hashes the cleaned absolute path.
	KeyPath KeyMode = "path"
	// KeyFilename uses the bare file name. Same-named files in different
	// directories collide.
	KeyFilename KeyMode = "filename"
)

// PathID returns a stable ID for the given absolute path.
// Same path always yields the same ID.
func PathID(absolutePath string) string {
	normalized := filepath.Clean(absolutePath)
	hash := sha256.Sum256([]byte(normalized))
	return pathPrefix + hex.EncodeToString(hash[:])
}

// ContentID returns the sha256 of the file at path.
func ContentID(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return contentPrefix + hex.EncodeToString(h.Sum(nil)), nil
}

// FilenameID returns the base name of path.
func FilenameID(path string) string {
	return filepath.Base(path)
}

// Keyer maps image paths to identifiers.
type Keyer struct {
	mode KeyMode
}

// NewKeyer returns a Keyer for mode.
func NewKeyer(mode KeyMode) (*Keyer, error) {
	switch mode {
	case KeyContent, KeyPath, KeyFilename:
		return &Keyer{mode: mode}, nil
	default:
		return nil, fmt.Errorf("unknown cache key mode %q (supported: content, path, filename)", mode)
	}
}

// Mode returns the key mode.
func (k *Keyer) Mode() KeyMode { return k.mode }

// ID returns the identifier for path.
func (k *Keyer) ID(path string) (string, error) {
	switch k.mode {
	case KeyFilename:
		return FilenameID(path), nil
	case KeyPath:
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("absolute path: %w", err)
		}
		return PathID(abs), nil
	default:
		return ContentID(path)
	}
}

// IDs returns identifiers for paths in the same order. Content hashing runs on
// up to workers goroutines; each writes a distinct slot. A path that cannot be
// identified fails with *models.ImageError.
func (k *Keyer) IDs(ctx context.Context, paths []string, workers int) ([]string, error) {
	ids := make([]string, len(paths))
	if workers <= 0 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			id, err := k.ID(p)
			if err != nil {
				return models.NewImageError(p, err)
			}
			ids[i] = id
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ids, nil
}
