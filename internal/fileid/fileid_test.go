package fileid

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/imgdedup/internal/models"
)

func TestPathID(t *testing.T) {
	// Deterministic: same path gives same ID
	id1 := PathID("/foo/bar.jpg")
	id2 := PathID("/foo/bar.jpg")
	if id1 != id2 {
		t.Errorf("same path should give same ID: %q vs %q", id1, id2)
	}
	if !strings.HasPrefix(id1, pathPrefix) {
		t.Errorf("ID should have prefix %q: got %q", pathPrefix, id1)
	}
}

func TestPathID_differentDirectoriesSameName(t *testing.T) {
	if PathID("/a/img.jpg") == PathID("/b/img.jpg") {
		t.Error("same file name in different directories must not collide")
	}
}

func TestPathID_normalized(t *testing.T) {
	id1 := PathID("/foo/bar")
	id2 := PathID("/foo/bar/")
	id3 := PathID("/foo/./bar")
	if id1 != id2 {
		t.Errorf("paths differing only by trailing slash should match: %q vs %q", id1, id2)
	}
	if id1 != id3 {
		t.Errorf("paths with . should normalize: %q vs %q", id1, id3)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestKeyer_modes(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "x", "img.jpg")
	b := filepath.Join(dir, "y", "img.jpg")
	c := filepath.Join(dir, "y", "copy.jpg")
	writeFile(t, a, "pixels-1")
	writeFile(t, b, "pixels-2")
	writeFile(t, c, "pixels-1")

	tests := []struct {
		mode         KeyMode
		aEqualsB     bool
		aEqualsCopy  bool
		expectPrefix string
	}{
		{KeyFilename, true, false, "img.jpg"},
		{KeyPath, false, false, pathPrefix},
		{KeyContent, false, true, contentPrefix},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			k, err := NewKeyer(tt.mode)
			if err != nil {
				t.Fatal(err)
			}
			ids, err := k.IDs(context.Background(), []string{a, b, c}, 2)
			if err != nil {
				t.Fatal(err)
			}
			if (ids[0] == ids[1]) != tt.aEqualsB {
				t.Errorf("a==b: got %v, want %v (%q, %q)", ids[0] == ids[1], tt.aEqualsB, ids[0], ids[1])
			}
			if (ids[0] == ids[2]) != tt.aEqualsCopy {
				t.Errorf("a==copy: got %v, want %v", ids[0] == ids[2], tt.aEqualsCopy)
			}
			if !strings.HasPrefix(ids[0], tt.expectPrefix) {
				t.Errorf("id %q should start with %q", ids[0], tt.expectPrefix)
			}
		})
	}
}

func TestKeyer_unknownMode(t *testing.T) {
	if _, err := NewKeyer("inode"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestKeyer_contentMissingFile(t *testing.T) {
	k, _ := NewKeyer(KeyContent)
	missing := filepath.Join(t.TempDir(), "nope.jpg")
	_, err := k.IDs(context.Background(), []string{missing}, 1)
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, models.ErrProviderFailure) {
		t.Errorf("missing file should count as a provider failure, got %v", err)
	}
	var ie *models.ImageError
	if !errors.As(err, &ie) || ie.Path != missing {
		t.Errorf("error should name %s, got %v", missing, err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("cause should be reachable, got %v", err)
	}
}
