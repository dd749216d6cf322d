package e2e

import (
	"sort"
	"strings"
	"testing"
)

func TestBuildCorpus_SizeAndOrder(t *testing.T) {
	c := BuildCorpus(10)
	if len(c.Originals()) != 10 {
		t.Fatalf("originals = %d, want 10", len(c.Originals()))
	}
	if len(c.Images) != len(c.Originals())+len(c.Variants()) {
		t.Errorf("images = %d, want originals plus variants", len(c.Images))
	}
	if !sort.SliceIsSorted(c.Images, func(i, j int) bool { return c.Images[i].Name < c.Images[j].Name }) {
		t.Error("images are not in name order")
	}
	seen := make(map[int]bool)
	for _, img := range c.Images {
		if !seen[img.Scene] && img.Variant != VariantOriginal {
			t.Errorf("%s sorts before the original of scene %d", img.Name, img.Scene)
		}
		seen[img.Scene] = true
	}
}

func TestBuildCorpus_EveryVariantPresent(t *testing.T) {
	c := BuildCorpus(5)
	kinds := make(map[Variant]int)
	for _, img := range c.Images {
		kinds[img.Variant]++
	}
	for _, v := range []Variant{VariantOriginal, VariantCopy, VariantBMP, VariantTIFF, VariantBrighter} {
		if kinds[v] == 0 {
			t.Errorf("no %s images in corpus", v)
		}
	}
}

func TestBuildCorpus_NamesAreUnique(t *testing.T) {
	c := BuildCorpus(12)
	names := make(map[string]bool)
	for _, img := range c.Images {
		if names[img.Name] {
			t.Errorf("duplicate name %s", img.Name)
		}
		names[img.Name] = true
		if c.SceneOf(img.Name) != img.Scene {
			t.Errorf("SceneOf(%s) = %d, want %d", img.Name, c.SceneOf(img.Name), img.Scene)
		}
	}
	if c.SceneOf("missing.png") != -1 {
		t.Error("SceneOf(missing) should be -1")
	}
}

func TestImageName_Extension(t *testing.T) {
	tests := []struct {
		v    Variant
		want string
	}{
		{VariantOriginal, ".png"},
		{VariantCopy, ".png"},
		{VariantBrighter, ".png"},
		{VariantBMP, ".bmp"},
		{VariantTIFF, ".tiff"},
	}
	for _, tt := range tests {
		if got := imageName(3, 1, tt.v); !strings.HasSuffix(got, tt.want) {
			t.Errorf("imageName(%s) = %s, want suffix %s", tt.v, got, tt.want)
		}
	}
}
