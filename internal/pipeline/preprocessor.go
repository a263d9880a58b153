package pipeline

import (
	"context"
	"fmt"

	"part-identifier/internal/config"
	"part-identifier/internal/opencv/safe"
	"part-identifier/internal/processing/chain"
	"part-identifier/internal/processing/filters"
)

// Preprocessor turns a decoded photo into the binary buffer handed to the
// recognizer: grayscale, deskew, CLAHE, adaptive threshold, morphological
// gradient, median. It holds only immutable configuration and may be shared
// by concurrent runs.
type Preprocessor struct {
	chain    *chain.ProcessingChain
	gradient *filters.MorphGradient
}

// NewPreprocessor validates cfg and builds the stage chain. Close releases
// the structuring element.
func NewPreprocessor(cfg config.Preprocess, opts ...chain.Option) (*Preprocessor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	gradient, err := filters.NewMorphGradient(cfg.Morphology.Shape, cfg.Morphology.Size, cfg.Morphology.Iterations)
	if err != nil {
		return nil, err
	}

	steps := []chain.ProcessingStep{
		filters.NewGrayscaleConverter(),
		filters.NewDeskew(cfg.Deskew.Epsilon, cfg.Deskew.DarkForeground),
		filters.NewCLAHEFilter(cfg.CLAHE.ClipLimit, cfg.CLAHE.TileGrid),
		filters.NewAdaptiveThreshold(cfg.Threshold.BlockSize, cfg.Threshold.Offset),
		gradient,
		filters.NewMedianFilter(cfg.Median.KernelSize),
	}

	pc, err := chain.NewProcessingChain(steps, opts...)
	if err != nil {
		gradient.Close()
		return nil, fmt.Errorf("build processing chain: %w", err)
	}

	return &Preprocessor{chain: pc, gradient: gradient}, nil
}

// Process returns a new 1-channel binary buffer of the same size as input.
// input is neither modified nor closed.
func (p *Preprocessor) Process(ctx context.Context, input *safe.Mat) (*safe.Mat, error) {
	return p.chain.Execute(ctx, input)
}

// ProcessObserved is Process with observer called after every stage.
func (p *Preprocessor) ProcessObserved(ctx context.Context, input *safe.Mat, observer chain.Observer) (*safe.Mat, error) {
	return p.chain.ExecuteObserved(ctx, input, observer)
}

func (p *Preprocessor) StageNames() []string {
	return p.chain.GetStepNames()
}

func (p *Preprocessor) Close() error {
	return p.gradient.Close()
}
