package filters

import (
	"fmt"
	"image"
	"math"

	"part-identifier/internal/opencv/safe"
	"part-identifier/internal/processing"

	"gocv.io/x/gocv"
)

const (
	DefaultCLAHEClipLimit = 2.0
	DefaultCLAHETileGrid  = 8
)

// CLAHEFilter equalizes contrast per tile with a bounded histogram clip.
type CLAHEFilter struct {
	ClipLimit float64
	// TileGrid is the number of tiles along each axis.
	TileGrid int
}

func NewCLAHEFilter(clipLimit float64, tileGrid int) *CLAHEFilter {
	return &CLAHEFilter{ClipLimit: clipLimit, TileGrid: tileGrid}
}

func (c *CLAHEFilter) Name() string {
	return "clahe_filter"
}

func (c *CLAHEFilter) Produces() processing.State {
	return processing.StateEqualized
}

func (c *CLAHEFilter) Validate() error {
	if math.IsNaN(c.ClipLimit) || c.ClipLimit <= 0 {
		return processing.InvalidConfiguration("clahe clip limit must be positive, got %v", c.ClipLimit)
	}
	if c.TileGrid < 1 {
		return processing.InvalidConfiguration("clahe tile grid must be at least 1, got %d", c.TileGrid)
	}
	return nil
}

func (c *CLAHEFilter) Apply(input *safe.Mat) (*safe.Mat, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := safe.ValidateGray8(input, "clahe"); err != nil {
		return nil, processing.InvalidImage(err)
	}

	dst, err := safe.NewTaggedMat(input.Rows(), input.Cols(), input.Type(), c.Produces().String())
	if err != nil {
		return nil, fmt.Errorf("failed to create destination Mat: %w", err)
	}

	clahe := gocv.NewCLAHEWithParams(c.ClipLimit, image.Point{X: c.TileGrid, Y: c.TileGrid})
	defer clahe.Close()

	srcMat := input.GetMat()
	dstMat := dst.GetMat()
	err = clahe.Apply(srcMat, &dstMat)

	return checked(dst, "clahe", err)
}
