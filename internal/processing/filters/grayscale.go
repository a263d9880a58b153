package filters

import (
	"fmt"

	"part-identifier/internal/opencv/safe"
	"part-identifier/internal/processing"

	"gocv.io/x/gocv"
)

// GrayscaleConverter reduces a color buffer to a single luminance channel.
type GrayscaleConverter struct{}

func NewGrayscaleConverter() *GrayscaleConverter {
	return &GrayscaleConverter{}
}

func (g *GrayscaleConverter) Name() string {
	return "grayscale_converter"
}

func (g *GrayscaleConverter) Produces() processing.State {
	return processing.StateGrayscaled
}

func (g *GrayscaleConverter) Validate() error {
	return nil
}

// Apply returns a new 8-bit single-channel buffer. Single-channel input is
// copied; BGR and BGRA input is weighted with the ITU-R BT.601 luma
// coefficients OpenCV uses.
func (g *GrayscaleConverter) Apply(input *safe.Mat) (*safe.Mat, error) {
	if err := safe.ValidateMatForOperation(input, "grayscale conversion"); err != nil {
		return nil, processing.InvalidImage(err)
	}

	if input.Depth() != 8 {
		return nil, processing.InvalidImage(fmt.Errorf("unsupported bit depth for grayscale conversion: %d", input.Depth()))
	}

	if input.Channels() == 1 {
		out, err := input.Clone()
		if err != nil {
			return nil, processing.InvalidImage(err)
		}
		return out.WithTag(g.Produces().String()), nil
	}

	return g.convertToGrayscale(input)
}

func (g *GrayscaleConverter) convertToGrayscale(src *safe.Mat) (*safe.Mat, error) {
	var code gocv.ColorConversionCode
	switch src.Channels() {
	case 3:
		code = gocv.ColorBGRToGray
	case 4:
		code = gocv.ColorBGRAToGray
	default:
		return nil, processing.InvalidImage(fmt.Errorf("unsupported channel count for grayscale conversion: %d", src.Channels()))
	}

	dst, err := safe.NewTaggedMat(src.Rows(), src.Cols(), gocv.MatTypeCV8UC1, g.Produces().String())
	if err != nil {
		return nil, fmt.Errorf("destination Mat creation failed: %w", err)
	}

	srcMat := src.GetMat()
	dstMat := dst.GetMat()
	err = gocv.CvtColor(srcMat, &dstMat, code)

	return checked(dst, "color conversion", err)
}
