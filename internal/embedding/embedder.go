// Package embedding turns image files into L2-normalised feature vectors.
package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/imgdedup/internal/imageprep"
)

// Provider produces one fixed-dimension, L2-normalised vector per image path,
// in input order. A failure on any image fails the whole call.
type Provider interface {
	EmbedBatch(ctx context.Context, paths []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// ONNXConfig describes an image feature-extractor model.
type ONNXConfig struct {
	ModelPath    string
	LibraryPath  string
	InputName    string
	OutputName   string
	Dimensions   int
	ImageSize    int
	BatchSize    int
	IntraThreads int
	Workers      int
}

func (c ONNXConfig) validate() error {
	switch {
	case c.ModelPath == "":
		return fmt.Errorf("model path is required")
	case c.Dimensions <= 0:
		return fmt.Errorf("dimensions must be positive, got %d", c.Dimensions)
	case c.BatchSize <= 0:
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	return nil
}

func (c ONNXConfig) preprocessor() (*imageprep.Preprocessor, error) {
	return imageprep.New(c.ImageSize, imageprep.WithWorkers(c.Workers))
}
