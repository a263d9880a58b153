package filters

import (
	"fmt"
	"math"

	"part-identifier/internal/opencv/safe"
	"part-identifier/internal/processing"

	"gocv.io/x/gocv"
)

const (
	DefaultThresholdBlockSize = 21
	DefaultThresholdOffset    = 5.0

	// Foreground and Background are the only values a binarized buffer holds.
	Foreground uint8 = 255
	Background uint8 = 0
)

// AdaptiveThreshold binarizes against a Gaussian-weighted local mean minus
// Offset. Pixels darker than their local threshold become Foreground.
type AdaptiveThreshold struct {
	BlockSize int
	Offset    float64
}

func NewAdaptiveThreshold(blockSize int, offset float64) *AdaptiveThreshold {
	return &AdaptiveThreshold{BlockSize: blockSize, Offset: offset}
}

func (a *AdaptiveThreshold) Name() string {
	return "adaptive_threshold"
}

func (a *AdaptiveThreshold) Produces() processing.State {
	return processing.StateBinarized
}

func (a *AdaptiveThreshold) Validate() error {
	if a.BlockSize <= 1 || a.BlockSize%2 == 0 {
		return processing.InvalidConfiguration("threshold block size must be odd and greater than 1, got %d", a.BlockSize)
	}
	if math.IsNaN(a.Offset) || math.IsInf(a.Offset, 0) {
		return processing.InvalidConfiguration("threshold offset must be finite, got %v", a.Offset)
	}
	return nil
}

func (a *AdaptiveThreshold) Apply(input *safe.Mat) (*safe.Mat, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if err := safe.ValidateGray8(input, "adaptive threshold"); err != nil {
		return nil, processing.InvalidImage(err)
	}

	dst, err := safe.NewTaggedMat(input.Rows(), input.Cols(), gocv.MatTypeCV8UC1, a.Produces().String())
	if err != nil {
		return nil, fmt.Errorf("failed to create destination Mat: %w", err)
	}

	srcMat := input.GetMat()
	dstMat := dst.GetMat()
	err = gocv.AdaptiveThreshold(srcMat, &dstMat, float32(Foreground), gocv.AdaptiveThresholdGaussian,
		gocv.ThresholdBinaryInv, a.BlockSize, float32(a.Offset))

	return checked(dst, "adaptive threshold", err)
}
