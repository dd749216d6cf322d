package imageprep

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string, w, h int, c color.Color) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestNew_Validation(t *testing.T) {
	_, err := New(0)
	assert.Error(t, err)
	_, err = New(4, WithNormalization([3]float32{}, [3]float32{1, 0, 1}))
	assert.Error(t, err)

	p, err := New(4)
	require.NoError(t, err)
	assert.Equal(t, 48, p.RowLen())
}

func TestLoad_NormalisesChannelFirst(t *testing.T) {
	path := filepath.Join(t.TempDir(), "red.png")
	writePNG(t, path, 10, 7, color.RGBA{R: 255, G: 0, B: 51, A: 255})

	p, err := New(4, WithNormalization([3]float32{0, 0, 0}, [3]float32{1, 1, 1}))
	require.NoError(t, err)
	dst := make([]float32, p.RowLen())
	require.NoError(t, p.Load(path, dst))

	plane := 16
	for i := 0; i < plane; i++ {
		assert.InDelta(t, 1.0, dst[i], 1e-6)
		assert.InDelta(t, 0.0, dst[plane+i], 1e-6)
		assert.InDelta(t, 0.2, dst[2*plane+i], 1e-6)
	}
}

func TestLoad_TranslucentKeepsColour(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 255, G: 0, B: 51, A: uint8(x * 60)})
		}
	}
	path := filepath.Join(t.TempDir(), "translucent.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	p, err := New(4, WithNormalization([3]float32{0, 0, 0}, [3]float32{1, 1, 1}))
	require.NoError(t, err)
	dst := make([]float32, p.RowLen())
	require.NoError(t, p.Load(path, dst))

	plane := 16
	for i := 0; i < plane; i++ {
		assert.InDelta(t, 1.0, dst[i], 1e-6, "red at %d", i)
		assert.InDelta(t, 0.0, dst[plane+i], 1e-6, "green at %d", i)
		assert.InDelta(t, 0.2, dst[2*plane+i], 1e-6, "blue at %d", i)
	}
}

func TestFill_NearestNeighbour(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 8; x++ {
			c := color.RGBA{R: 255, A: 255}
			if x >= 4 {
				c = color.RGBA{B: 255, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	p, err := New(4, WithNormalization([3]float32{0, 0, 0}, [3]float32{1, 1, 1}))
	require.NoError(t, err)
	dst := make([]float32, p.RowLen())
	p.Fill(img, dst)

	plane := 16
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			i := y*4 + x
			wantRed := float32(0)
			if x < 2 {
				wantRed = 1
			}
			assert.InDelta(t, wantRed, dst[i], 1e-6, "red at (%d,%d)", x, y)
			assert.InDelta(t, 1-wantRed, dst[2*plane+i], 1e-6, "blue at (%d,%d)", x, y)
		}
	}
}

func TestLoad_MeanStd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "black.png")
	writePNG(t, path, 3, 3, color.RGBA{A: 255})

	p, err := New(2)
	require.NoError(t, err)
	dst := make([]float32, p.RowLen())
	require.NoError(t, p.Load(path, dst))
	assert.InDelta(t, -0.485/0.229, dst[0], 1e-5)
	assert.InDelta(t, -0.456/0.224, dst[4], 1e-5)
	assert.InDelta(t, -0.406/0.225, dst[8], 1e-5)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	p, err := New(2)
	require.NoError(t, err)

	assert.Error(t, p.Load(filepath.Join(dir, "missing.png"), make([]float32, p.RowLen())))

	bogus := filepath.Join(dir, "bogus.png")
	require.NoError(t, os.WriteFile(bogus, []byte("not an image"), 0644))
	assert.Error(t, p.Load(bogus, make([]float32, p.RowLen())))

	assert.Error(t, p.Load(bogus, make([]float32, 1)))
}

func TestLoadBatch(t *testing.T) {
	dir := t.TempDir()
	white := filepath.Join(dir, "white.png")
	black := filepath.Join(dir, "black.png")
	writePNG(t, white, 5, 5, color.White)
	writePNG(t, black, 5, 5, color.Black)

	p, err := New(2, WithWorkers(4), WithNormalization([3]float32{}, [3]float32{1, 1, 1}))
	require.NoError(t, err)
	dst := make([]float32, 2*p.RowLen())
	require.NoError(t, p.LoadBatch(context.Background(), []string{white, black}, dst))

	for _, v := range dst[:p.RowLen()] {
		assert.InDelta(t, 1.0, v, 1e-6)
	}
	for _, v := range dst[p.RowLen():] {
		assert.InDelta(t, 0.0, v, 1e-6)
	}
}

func TestLoadBatch_FailsOnAnyImage(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.png")
	writePNG(t, good, 2, 2, color.White)

	p, err := New(2, WithWorkers(2))
	require.NoError(t, err)
	dst := make([]float32, 2*p.RowLen())
	err = p.LoadBatch(context.Background(), []string{good, filepath.Join(dir, "gone.png")}, dst)
	assert.Error(t, err)
}
