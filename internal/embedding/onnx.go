//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/hyperjump/imgdedup/internal/imageprep"
	"github.com/hyperjump/imgdedup/pkg/utils"
	ort "github.com/yalue/onnxruntime_go"
)

var (
	ortOnce sync.Once
	ortErr  error
)

func initRuntime(libraryPath string) error {
	ortOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		ortErr = ort.InitializeEnvironment()
	})
	return ortErr
}

// ONNXProvider runs an image feature extractor through ONNX Runtime. It
// requires CGO and the onnxruntime shared library. Input and output tensors
// are allocated once at [BatchSize,3,S,S] and [BatchSize,Dimensions]; a short
// final batch leaves the trailing rows unused.
type ONNXProvider struct {
	cfg          ONNXConfig
	prep         *imageprep.Preprocessor
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	mu           sync.Mutex
}

// NewONNXProvider loads the model at cfg.ModelPath.
func NewONNXProvider(cfg ONNXConfig) (*ONNXProvider, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	prep, err := cfg.preprocessor()
	if err != nil {
		return nil, err
	}
	if err := initRuntime(cfg.LibraryPath); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}

	size := int64(cfg.ImageSize)
	batch := int64(cfg.BatchSize)
	inputTensor, err := ort.NewTensor(ort.NewShape(batch, 3, size, size), make([]float32, cfg.BatchSize*prep.RowLen()))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	outputTensor, err := ort.NewTensor(ort.NewShape(batch, int64(cfg.Dimensions)), make([]float32, cfg.BatchSize*cfg.Dimensions))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	var opts *ort.SessionOptions
	if cfg.IntraThreads > 0 {
		opts, err = ort.NewSessionOptions()
		if err != nil {
			inputTensor.Destroy()
			outputTensor.Destroy()
			return nil, fmt.Errorf("failed to create session options: %w", err)
		}
		defer opts.Destroy()
		if err := opts.SetIntraOpNumThreads(cfg.IntraThreads); err != nil {
			inputTensor.Destroy()
			outputTensor.Destroy()
			return nil, fmt.Errorf("failed to set intra-op threads: %w", err)
		}
	}

	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		opts,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &ONNXProvider{
		cfg:          cfg,
		prep:         prep,
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

// EmbedBatch splits paths into model-sized batches and runs each in turn.
func (p *ONNXProvider) EmbedBatch(ctx context.Context, paths []string) ([][]float32, error) {
	out := make([][]float32, 0, len(paths))
	for start := 0; start < len(paths); start += p.cfg.BatchSize {
		end := min(start+p.cfg.BatchSize, len(paths))
		vecs, err := p.run(ctx, paths[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (p *ONNXProvider) run(ctx context.Context, paths []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	input := p.inputTensor.GetData()
	if err := p.prep.LoadBatch(ctx, paths, input); err != nil {
		return nil, err
	}
	if err := p.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	output := p.outputTensor.GetData()
	dim := p.cfg.Dimensions
	vecs := make([][]float32, len(paths))
	for i := range paths {
		v := make([]float32, dim)
		copy(v, output[i*dim:(i+1)*dim])
		utils.NormalizeL2(v)
		vecs[i] = v
	}
	return vecs, nil
}

// Dimensions returns the embedding dimension.
func (p *ONNXProvider) Dimensions() int {
	return p.cfg.Dimensions
}

// Close destroys the session and tensors.
func (p *ONNXProvider) Close() error {
	var err error
	if p.session != nil {
		err = p.session.Destroy()
		p.session = nil
	}
	if p.inputTensor != nil {
		_ = p.inputTensor.Destroy()
		p.inputTensor = nil
	}
	if p.outputTensor != nil {
		_ = p.outputTensor.Destroy()
		p.outputTensor = nil
	}
	return err
}
