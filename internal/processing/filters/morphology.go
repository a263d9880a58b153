package filters

import (
	"fmt"
	"image"
	"strings"

	"part-identifier/internal/opencv/safe"
	"part-identifier/internal/processing"

	"gocv.io/x/gocv"
)

const (
	DefaultMorphShape      = "rect"
	DefaultMorphSize       = 3
	DefaultMorphIterations = 1
)

// ParseMorphShape maps a configuration name to an OpenCV structuring element
// shape.
func ParseMorphShape(name string) (gocv.MorphShape, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "rect", "rectangle", "square":
		return gocv.MorphRect, nil
	case "cross":
		return gocv.MorphCross, nil
	case "ellipse":
		return gocv.MorphEllipse, nil
	default:
		return 0, processing.InvalidConfiguration("unknown structuring element shape %q", name)
	}
}

// MorphGradient extracts dilation minus erosion with reflected borders. The
// structuring element is built once and only read afterwards, so a single
// MorphGradient can serve concurrent pipelines. Close releases it.
type MorphGradient struct {
	Shape      string
	Size       int
	Iterations int

	kernel gocv.Mat
	built  bool
}

func NewMorphGradient(shape string, size, iterations int) (*MorphGradient, error) {
	m := &MorphGradient{Shape: shape, Size: size, Iterations: iterations}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	cvShape, _ := ParseMorphShape(shape)
	m.kernel = gocv.GetStructuringElement(cvShape, image.Point{X: size, Y: size})
	if m.kernel.Empty() {
		m.kernel.Close()
		return nil, fmt.Errorf("failed to build %dx%d %s structuring element", size, size, shape)
	}
	m.built = true

	return m, nil
}

func (m *MorphGradient) Name() string {
	return "morphological_gradient"
}

func (m *MorphGradient) Produces() processing.State {
	return processing.StateGradiented
}

func (m *MorphGradient) Validate() error {
	if _, err := ParseMorphShape(m.Shape); err != nil {
		return err
	}
	if m.Size < 1 || m.Size%2 == 0 {
		return processing.InvalidConfiguration("structuring element size must be odd and positive, got %d", m.Size)
	}
	if m.Iterations < 1 {
		return processing.InvalidConfiguration("morphology iterations must be at least 1, got %d", m.Iterations)
	}
	return nil
}

// Kernel returns a copy of the structuring element.
func (m *MorphGradient) Kernel() gocv.Mat {
	if !m.built {
		return gocv.NewMat()
	}
	return m.kernel.Clone()
}

func (m *MorphGradient) Apply(input *safe.Mat) (*safe.Mat, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if !m.built {
		return nil, fmt.Errorf("morphological gradient used without a structuring element")
	}
	if err := safe.ValidateGray8(input, "morphological gradient"); err != nil {
		return nil, processing.InvalidImage(err)
	}

	dst, err := safe.NewTaggedMat(input.Rows(), input.Cols(), input.Type(), m.Produces().String())
	if err != nil {
		return nil, fmt.Errorf("failed to create destination Mat: %w", err)
	}

	srcMat := input.GetMat()
	dstMat := dst.GetMat()
	err = gocv.MorphologyExWithParams(srcMat, &dstMat, gocv.MorphGradient, m.kernel, m.Iterations, gocv.BorderReflect)

	return checked(dst, "morphological gradient", err)
}

func (m *MorphGradient) Close() error {
	if !m.built {
		return nil
	}
	m.built = false
	return m.kernel.Close()
}
