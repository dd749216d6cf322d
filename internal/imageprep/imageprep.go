// Package imageprep turns image files into model input tensors: decode,
// nearest-neighbour resize to a square, scale to [0,1], normalise per channel
// and lay out channel-first.
package imageprep

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"
)

// ImageNet channel statistics.
var (
	DefaultMean = [3]float32{0.485, 0.456, 0.406}
	DefaultStd  = [3]float32{0.229, 0.224, 0.225}
)

// Preprocessor converts images into CHW float32 rows of a batch tensor.
type Preprocessor struct {
	size    int
	mean    [3]float32
	std     [3]float32
	workers int
}

// Option configures a Preprocessor.
type Option func(*Preprocessor)

// WithWorkers bounds the number of images decoded concurrently.
func WithWorkers(n int) Option {
	return func(p *Preprocessor) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithNormalization overrides the per-channel mean and std.
func WithNormalization(mean, std [3]float32) Option {
	return func(p *Preprocessor) {
		p.mean = mean
		p.std = std
	}
}

// New returns a Preprocessor producing size×size inputs.
func New(size int, opts ...Option) (*Preprocessor, error) {
	if size <= 0 {
		return nil, fmt.Errorf("image size must be positive, got %d", size)
	}
	p := &Preprocessor{size: size, mean: DefaultMean, std: DefaultStd, workers: 1}
	for _, opt := range opts {
		opt(p)
	}
	for c := 0; c < 3; c++ {
		if p.std[c] == 0 {
			return nil, fmt.Errorf("channel %d std must be non-zero", c)
		}
	}
	return p, nil
}

// Size returns the square edge length.
func (p *Preprocessor) Size() int { return p.size }

// RowLen is the number of floats one image occupies: 3*size*size.
func (p *Preprocessor) RowLen() int { return 3 * p.size * p.size }

// Load decodes the file at path into dst, which must hold RowLen floats.
func (p *Preprocessor) Load(path string, dst []float32) error {
	if len(dst) != p.RowLen() {
		return fmt.Errorf("destination holds %d floats, need %d", len(dst), p.RowLen())
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	p.Fill(img, dst)
	return nil
}

// Fill resizes img and writes its normalised CHW values into dst. Colour is
// sampled as straight (non-premultiplied) RGB, so a transparent pixel keeps its
// colour channels.
func (p *Preprocessor) Fill(img image.Image, dst []float32) {
	src := toNRGBA(img)
	b := src.Bounds()
	sw, sh := b.Dx(), b.Dy()
	s := p.size
	plane := s * s
	var black [3]uint8
	for y := 0; y < s; y++ {
		for x := 0; x < s; x++ {
			px := black[:]
			if sw > 0 && sh > 0 {
				// Nearest source pixel to the destination pixel centre.
				sx := b.Min.X + (2*x+1)*sw/(2*s)
				sy := b.Min.Y + (2*y+1)*sh/(2*s)
				off := src.PixOffset(sx, sy)
				px = src.Pix[off : off+3 : off+3]
			}
			i := y*s + x
			for c := 0; c < 3; c++ {
				v := float32(px[c]) / 255
				dst[c*plane+i] = (v - p.mean[c]) / p.std[c]
			}
		}
	}
}

func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok {
		return n
	}
	b := img.Bounds()
	n := image.NewNRGBA(b)
	draw.Draw(n, b, img, b.Min, draw.Src)
	return n
}

// LoadBatch fills one row of dst per path, concurrently. Row i of dst belongs
// to paths[i] alone. The first failure cancels the rest and is returned.
func (p *Preprocessor) LoadBatch(ctx context.Context, paths []string, dst []float32) error {
	row := p.RowLen()
	if len(dst) < len(paths)*row {
		return fmt.Errorf("destination holds %d floats, need %d", len(dst), len(paths)*row)
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return p.Load(path, dst[i*row:(i+1)*row])
		})
	}
	return g.Wait()
}
