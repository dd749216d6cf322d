package e2e

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/hyperjump/imgdedup/internal/imageprep"
	"github.com/hyperjump/imgdedup/pkg/utils"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

const (
	sceneSize = 32
	sceneGrid = 4
	// brighten is added to every channel of VariantBrighter.
	brighten = 6
)

// SceneImage renders scene s as a grid of random opaque colour blocks.
func SceneImage(s int) *image.RGBA {
	r := rand.New(rand.NewSource(int64(s) + 1))
	img := image.NewRGBA(image.Rect(0, 0, sceneSize, sceneSize))
	cell := sceneSize / sceneGrid
	for gy := 0; gy < sceneGrid; gy++ {
		for gx := 0; gx < sceneGrid; gx++ {
			c := color.RGBA{R: uint8(r.Intn(256)), G: uint8(r.Intn(256)), B: uint8(r.Intn(256)), A: 255}
			for y := gy * cell; y < (gy+1)*cell; y++ {
				for x := gx * cell; x < (gx+1)*cell; x++ {
					img.SetRGBA(x, y, c)
				}
			}
		}
	}
	return img
}

func brighter(src *image.RGBA) *image.RGBA {
	out := image.NewRGBA(src.Bounds())
	for i, v := range src.Pix {
		if i%4 == 3 {
			out.Pix[i] = v
			continue
		}
		out.Pix[i] = uint8(min(int(v)+brighten, 255))
	}
	return out
}

// EncodeImage returns the file bytes of img as a corpus image.
func EncodeImage(img CorpusImage) ([]byte, error) {
	scene := SceneImage(img.Scene)
	var buf bytes.Buffer
	var err error
	switch img.Variant {
	case VariantOriginal, VariantCopy:
		err = png.Encode(&buf, scene)
	case VariantBMP:
		err = bmp.Encode(&buf, scene)
	case VariantTIFF:
		err = tiff.Encode(&buf, scene, nil)
	case VariantBrighter:
		err = png.Encode(&buf, brighter(scene))
	default:
		err = fmt.Errorf("unknown variant %q", img.Variant)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteImages writes the named corpus images into dir and returns their paths
// in the given order.
func (c *Corpus) WriteImages(dir string, names []string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	byName := make(map[string]CorpusImage, len(c.Images))
	for _, img := range c.Images {
		byName[img.Name] = img
	}
	paths := make([]string, 0, len(names))
	for _, n := range names {
		img, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("%s is not in the corpus", n)
		}
		data, err := EncodeImage(img)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", n, err)
		}
		p := filepath.Join(dir, n)
		if err := os.WriteFile(p, data, 0644); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// ThumbnailProvider embeds an image as its normalised thumbnail pixels, so
// re-encodings of the same pixels land on the same vector.
type ThumbnailProvider struct {
	prep *imageprep.Preprocessor
}

// NewThumbnailProvider returns a provider over size by size thumbnails.
func NewThumbnailProvider(size int) (*ThumbnailProvider, error) {
	prep, err := imageprep.New(size)
	if err != nil {
		return nil, err
	}
	return &ThumbnailProvider{prep: prep}, nil
}

// EmbedBatch returns one unit vector per path.
func (p *ThumbnailProvider) EmbedBatch(ctx context.Context, paths []string) ([][]float32, error) {
	row := p.prep.RowLen()
	buf := make([]float32, len(paths)*row)
	if err := p.prep.LoadBatch(ctx, paths, buf); err != nil {
		return nil, err
	}
	out := make([][]float32, len(paths))
	for i := range out {
		out[i] = buf[i*row : (i+1)*row : (i+1)*row]
		utils.NormalizeL2(out[i])
	}
	return out, nil
}

// Dimensions returns 3*size*size.
func (p *ThumbnailProvider) Dimensions() int { return p.prep.RowLen() }

// Close is a no-op.
func (p *ThumbnailProvider) Close() error { return nil }
