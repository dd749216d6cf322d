package e2e

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/hyperjump/imgdedup/internal/cache"
	"github.com/hyperjump/imgdedup/internal/dedup"
	"github.com/hyperjump/imgdedup/internal/fileid"
	"github.com/hyperjump/imgdedup/internal/scan"
)

const corpusScenes = 20

func newOrchestrator(t *testing.T, dir string) *dedup.Orchestrator {
	t.Helper()
	backend, err := cache.NewBackend(cache.BackendFiles, filepath.Join(dir, "cache"), cache.CompressionZstd)
	if err != nil {
		t.Fatal(err)
	}
	c := cache.New(backend)
	t.Cleanup(func() { c.Close() })
	keyer, err := fileid.NewKeyer(fileid.KeyContent)
	if err != nil {
		t.Fatal(err)
	}
	provider, err := NewThumbnailProvider(8)
	if err != nil {
		t.Fatal(err)
	}
	orch, err := dedup.New(c, provider, keyer, dedup.WithBatchSize(7), dedup.WithChunkSize(6), dedup.WithWorkers(3))
	if err != nil {
		t.Fatal(err)
	}
	return orch
}

func basenames(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = filepath.Base(p)
	}
	return out
}

func TestE2E_SelfKeepsOneImagePerScene(t *testing.T) {
	corpus := BuildCorpus(corpusScenes)
	dir := t.TempDir()
	photos := filepath.Join(dir, "photos")
	if _, err := corpus.WriteImages(photos, namesOf(corpus)); err != nil {
		t.Fatal(err)
	}
	orch := newOrchestrator(t, dir)
	ctx := context.Background()

	targets, err := scan.Dir(ctx, photos, scan.Options{Extensions: scan.DefaultExtensions})
	if err != nil {
		t.Fatal(err)
	}
	if len(targets) != len(corpus.Images) {
		t.Fatalf("scan found %d images, want %d", len(targets), len(corpus.Images))
	}

	res, err := orch.Run(ctx, dedup.Request{Targets: targets, Self: true})
	if err != nil {
		t.Fatalf("self run: %v", err)
	}
	if got := basenames(res.Keep); !reflect.DeepEqual(got, corpus.Originals()) {
		t.Errorf("keep = %v\nwant %v", got, corpus.Originals())
	}
	if got := basenames(res.Dropped); !reflect.DeepEqual(got, corpus.Variants()) {
		t.Errorf("dropped = %v\nwant %v", got, corpus.Variants())
	}
	for _, p := range res.Pairs {
		dup, orig := filepath.Base(p.Duplicate), filepath.Base(p.Original)
		if corpus.SceneOf(dup) != corpus.SceneOf(orig) {
			t.Errorf("%s paired with %s from another scene", dup, orig)
		}
	}
	// Byte-identical copies share one content key.
	copies := 0
	for _, img := range corpus.Images {
		if img.Variant == VariantCopy {
			copies++
		}
	}
	if want := len(corpus.Images) - copies; res.Stats.Computed != want {
		t.Errorf("computed = %d, want %d", res.Stats.Computed, want)
	}

	again, err := orch.Run(ctx, dedup.Request{Targets: targets, Self: true})
	if err != nil {
		t.Fatalf("repeat run: %v", err)
	}
	if again.Stats.Computed != 0 {
		t.Errorf("repeat: computed = %d, want 0", again.Stats.Computed)
	}
	if !reflect.DeepEqual(again.Keep, res.Keep) {
		t.Errorf("repeat: keep changed to %v", again.Keep)
	}
}

func TestE2E_CrossDropsScenesInArchive(t *testing.T) {
	corpus := BuildCorpus(corpusScenes)
	dir := t.TempDir()
	photos := filepath.Join(dir, "photos")
	archive := filepath.Join(dir, "archive")

	targets, err := corpus.WriteImages(photos, corpus.Originals())
	if err != nil {
		t.Fatal(err)
	}
	// The archive holds the variants of even scenes only.
	var archived []string
	inArchive := make(map[int]bool)
	for _, name := range corpus.Variants() {
		if s := corpus.SceneOf(name); s%2 == 0 {
			archived = append(archived, name)
			inArchive[s] = true
		}
	}
	comps, err := corpus.WriteImages(archive, archived)
	if err != nil {
		t.Fatal(err)
	}
	var wantKeep, wantDropped []string
	for _, name := range corpus.Originals() {
		if inArchive[corpus.SceneOf(name)] {
			wantDropped = append(wantDropped, name)
		} else {
			wantKeep = append(wantKeep, name)
		}
	}

	orch := newOrchestrator(t, dir)
	res, err := orch.Run(context.Background(), dedup.Request{Targets: targets, Comparisons: comps})
	if err != nil {
		t.Fatalf("cross run: %v", err)
	}
	if got := basenames(res.Keep); !reflect.DeepEqual(got, wantKeep) {
		t.Errorf("keep = %v\nwant %v", got, wantKeep)
	}
	if got := basenames(res.Dropped); !reflect.DeepEqual(got, wantDropped) {
		t.Errorf("dropped = %v\nwant %v", got, wantDropped)
	}
	for _, p := range res.Pairs {
		if filepath.Dir(p.Original) != archive {
			t.Errorf("%s matched %s outside the archive", p.Duplicate, p.Original)
		}
	}
}
