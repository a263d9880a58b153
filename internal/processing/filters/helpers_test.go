package filters

import (
	"testing"

	"part-identifier/internal/opencv/safe"

	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func newGray(t *testing.T, width, height int, fill uint8) *safe.Mat {
	t.Helper()
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(float64(fill), 0, 0, 0), height, width, gocv.MatTypeCV8UC1)
	out, err := safe.Adopt(m, "test")
	require.NoError(t, err)
	t.Cleanup(out.Close)
	return out
}

// fillRect paints the half-open rectangle [x0,x1) x [y0,y1).
func fillRect(t *testing.T, m *safe.Mat, x0, y0, x1, y1 int, value uint8) {
	t.Helper()
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			require.NoError(t, m.SetUCharAt(y, x, value))
		}
	}
}

// patterned returns a deterministic non-flat grayscale buffer.
func patterned(t *testing.T, width, height int) *safe.Mat {
	t.Helper()
	m := newGray(t, width, height, 0)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			require.NoError(t, m.SetUCharAt(y, x, uint8((x*7+y*13+(x*y)%17)%256)))
		}
	}
	return m
}

func countNonZero(m *safe.Mat) int {
	return gocv.CountNonZero(m.GetMat())
}

func closeAfter(t *testing.T, m *safe.Mat) *safe.Mat {
	t.Helper()
	t.Cleanup(m.Close)
	return m
}
