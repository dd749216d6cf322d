// Package e2e provides end-to-end tests over a generated image corpus with known duplicates.
package e2e

import (
	"fmt"
	"sort"
)

// Variant names how a corpus image is derived from its scene.
type Variant string

const (
	// VariantOriginal is the scene encoded as PNG. It sorts first within its scene.
	VariantOriginal Variant = "original"
	// VariantCopy is a byte-identical copy of the original.
	VariantCopy Variant = "copy"
	// VariantBMP re-encodes the scene pixels as BMP.
	VariantBMP Variant = "bmp"
	// VariantTIFF re-encodes the scene pixels as TIFF.
	VariantTIFF Variant = "tiff"
	// VariantBrighter lifts every channel slightly before encoding as PNG.
	VariantBrighter Variant = "brighter"
)

// CorpusImage is one file of the corpus.
type CorpusImage struct {
	Name    string
	Scene   int
	Variant Variant
}

// Corpus holds the images generated from a number of distinct scenes.
type Corpus struct {
	Scenes int
	Images []CorpusImage
}

// variantsFor cycles the near-duplicate kinds over scenes so each kind appears.
var variantsFor = [][]Variant{
	{VariantCopy},
	{VariantBMP},
	{VariantTIFF, VariantBrighter},
	{},
	{VariantCopy, VariantBMP, VariantTIFF, VariantBrighter},
}

// BuildCorpus returns a corpus of the given number of scenes. Every scene has
// an original and zero or more near-duplicate variants; names sort by scene,
// then original first.
func BuildCorpus(scenes int) *Corpus {
	c := &Corpus{Scenes: scenes}
	for s := 0; s < scenes; s++ {
		c.Images = append(c.Images, CorpusImage{Name: imageName(s, 0, VariantOriginal), Scene: s, Variant: VariantOriginal})
		for i, v := range variantsFor[s%len(variantsFor)] {
			c.Images = append(c.Images, CorpusImage{Name: imageName(s, i+1, v), Scene: s, Variant: v})
		}
	}
	sort.Slice(c.Images, func(i, j int) bool { return c.Images[i].Name < c.Images[j].Name })
	return c
}

func imageName(scene, order int, v Variant) string {
	ext := "png"
	switch v {
	case VariantBMP:
		ext = "bmp"
	case VariantTIFF:
		ext = "tiff"
	}
	return fmt.Sprintf("scene-%02d-%d-%s.%s", scene, order, v, ext)
}

// Originals returns the names of the original images in name order.
func (c *Corpus) Originals() []string {
	var out []string
	for _, img := range c.Images {
		if img.Variant == VariantOriginal {
			out = append(out, img.Name)
		}
	}
	return out
}

// Variants returns the names of every non-original image in name order.
func (c *Corpus) Variants() []string {
	var out []string
	for _, img := range c.Images {
		if img.Variant != VariantOriginal {
			out = append(out, img.Name)
		}
	}
	return out
}

// SceneOf returns the scene of the named image, or -1.
func (c *Corpus) SceneOf(name string) int {
	for _, img := range c.Images {
		if img.Name == name {
			return img.Scene
		}
	}
	return -1
}
