package filters

import (
	"fmt"

	"part-identifier/internal/opencv/safe"
	"part-identifier/internal/processing"

	"gocv.io/x/gocv"
)

const DefaultMedianKernelSize = 3

// MedianFilter removes impulse noise left behind by the gradient.
type MedianFilter struct {
	KernelSize int
}

func NewMedianFilter(kernelSize int) *MedianFilter {
	return &MedianFilter{KernelSize: kernelSize}
}

func (m *MedianFilter) Name() string {
	return "median_filter"
}

func (m *MedianFilter) Produces() processing.State {
	return processing.StateDenoised
}

func (m *MedianFilter) Validate() error {
	if m.KernelSize <= 1 || m.KernelSize%2 == 0 {
		return processing.InvalidConfiguration("median kernel size must be odd and greater than 1, got %d", m.KernelSize)
	}
	return nil
}

func (m *MedianFilter) Apply(input *safe.Mat) (*safe.Mat, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := safe.ValidateGray8(input, "median filter"); err != nil {
		return nil, processing.InvalidImage(err)
	}

	result, err := safe.NewTaggedMat(input.Rows(), input.Cols(), input.Type(), m.Produces().String())
	if err != nil {
		return nil, fmt.Errorf("failed to create result Mat: %w", err)
	}

	srcMat := input.GetMat()
	resultMat := result.GetMat()
	err = gocv.MedianBlur(srcMat, &resultMat, m.KernelSize)

	return checked(result, "median blur", err)
}
