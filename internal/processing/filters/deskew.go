package filters

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"part-identifier/internal/opencv/safe"
	"part-identifier/internal/processing"

	"gocv.io/x/gocv"
)

const (
	// DefaultSkewEpsilon is the smallest |mu02| for which skew is measurable.
	DefaultSkewEpsilon = 0.01
)

// background fills pixels the shear exposes at the frame edges.
var background = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// SkewEstimate holds the central moments behind a skew measurement.
type SkewEstimate struct {
	Mu02       float64
	Mu11       float64
	Skew       float64
	Degenerate bool
}

// Angle returns the shear angle in degrees.
func (e SkewEstimate) Angle() float64 {
	return math.Atan(e.Skew) * 180 / math.Pi
}

// Deskew removes a global horizontal shear estimated from second-order
// central moments.
type Deskew struct {
	Epsilon float64
	// DarkForeground treats dark pixels as mass (moments over 255-I), which
	// matches dark print on a light label.
	DarkForeground bool
}

func NewDeskew(epsilon float64, darkForeground bool) *Deskew {
	return &Deskew{Epsilon: epsilon, DarkForeground: darkForeground}
}

func (d *Deskew) Name() string {
	return "deskew"
}

func (d *Deskew) Produces() processing.State {
	return processing.StateDeskewed
}

func (d *Deskew) Validate() error {
	if math.IsNaN(d.Epsilon) || d.Epsilon <= 0 {
		return processing.InvalidConfiguration("skew epsilon must be positive, got %v", d.Epsilon)
	}
	return nil
}

// Estimate computes skew = mu11/mu02. An image whose |mu02| is below Epsilon
// is reported as Degenerate with zero skew.
func (d *Deskew) Estimate(src *safe.Mat) (SkewEstimate, error) {
	if err := safe.ValidateGray8(src, "skew estimation"); err != nil {
		return SkewEstimate{}, processing.InvalidImage(err)
	}

	srcMat := src.GetMat()
	var moments map[string]float64
	if d.DarkForeground {
		ink := gocv.NewMat()
		defer ink.Close()
		if err := gocv.BitwiseNot(srcMat, &ink); err != nil {
			return SkewEstimate{}, processing.InvalidImage(fmt.Errorf("invert: %w", err))
		}
		moments = gocv.Moments(ink, false)
	} else {
		moments = gocv.Moments(srcMat, false)
	}

	est := SkewEstimate{
		Mu02: moments["mu02"],
		Mu11: moments["mu11"],
	}
	if math.Abs(est.Mu02) < d.Epsilon {
		est.Degenerate = true
		return est, nil
	}

	est.Skew = est.Mu11 / est.Mu02
	return est, nil
}

func (d *Deskew) Apply(input *safe.Mat) (*safe.Mat, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	est, err := d.Estimate(input)
	if err != nil {
		return nil, err
	}

	if est.Degenerate {
		out, err := input.Clone()
		if err != nil {
			return nil, processing.InvalidImage(err)
		}
		return out.WithTag(d.Produces().String()), nil
	}

	return Shear(input, est.Skew, d.Produces().String())
}

// ShearMatrix builds the 2x3 inverse map of a horizontal shear centred on the
// vertical midpoint of an image with the given number of rows:
//
//	[1 skew -0.5*skew*rows]
//	[0    1              0]
func ShearMatrix(skew float64, rows int) (gocv.Mat, error) {
	m := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV64F)
	if m.Empty() {
		m.Close()
		return m, fmt.Errorf("failed to allocate affine matrix")
	}

	m.SetDoubleAt(0, 0, 1)
	m.SetDoubleAt(0, 1, skew)
	m.SetDoubleAt(0, 2, -0.5*skew*float64(rows))
	m.SetDoubleAt(1, 0, 0)
	m.SetDoubleAt(1, 1, 1)
	m.SetDoubleAt(1, 2, 0)

	return m, nil
}

// Shear resamples src through ShearMatrix(skew) with linear interpolation.
// Output has the input's size; exposed borders are white.
func Shear(src *safe.Mat, skew float64, tag string) (*safe.Mat, error) {
	if err := safe.ValidateGray8(src, "shear"); err != nil {
		return nil, processing.InvalidImage(err)
	}

	rows, cols := src.Rows(), src.Cols()

	transform, err := ShearMatrix(skew, rows)
	if err != nil {
		return nil, err
	}
	defer transform.Close()

	dst, err := safe.NewTaggedMat(rows, cols, src.Type(), tag)
	if err != nil {
		return nil, fmt.Errorf("failed to create destination Mat: %w", err)
	}

	srcMat := src.GetMat()
	dstMat := dst.GetMat()
	// The matrix maps destination coordinates to source coordinates.
	err = gocv.WarpAffineWithParams(srcMat, &dstMat, transform, image.Point{X: cols, Y: rows},
		gocv.InterpolationLinear|gocv.WarpInverseMap, gocv.BorderConstant, background)

	return checked(dst, "shear warp", err)
}
