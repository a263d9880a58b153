package filters

import (
	"math"
	"testing"

	"part-identifier/internal/processing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const skewTolerance = 1e-2

func TestDeskewValidate(t *testing.T) {
	assert.NoError(t, NewDeskew(DefaultSkewEpsilon, true).Validate())
	assert.ErrorIs(t, NewDeskew(0, true).Validate(), processing.ErrInvalidConfiguration)
	assert.ErrorIs(t, NewDeskew(-1, true).Validate(), processing.ErrInvalidConfiguration)
	assert.ErrorIs(t, NewDeskew(math.NaN(), true).Validate(), processing.ErrInvalidConfiguration)
}

func TestShearMatrix(t *testing.T) {
	m, err := ShearMatrix(0.25, 100)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, 2, m.Rows())
	assert.Equal(t, 3, m.Cols())
	assert.Equal(t, 1.0, m.GetDoubleAt(0, 0))
	assert.Equal(t, 0.25, m.GetDoubleAt(0, 1))
	assert.Equal(t, -12.5, m.GetDoubleAt(0, 2))
	assert.Equal(t, 0.0, m.GetDoubleAt(1, 0))
	assert.Equal(t, 1.0, m.GetDoubleAt(1, 1))
	assert.Equal(t, 0.0, m.GetDoubleAt(1, 2))
}

func TestDeskewDegenerateIsIdentity(t *testing.T) {
	d := NewDeskew(DefaultSkewEpsilon, true)
	blank := newGray(t, 64, 48, 255)

	est, err := d.Estimate(blank)
	require.NoError(t, err)
	assert.True(t, est.Degenerate)
	assert.Zero(t, est.Skew)

	out, err := d.Apply(blank)
	require.NoError(t, err)
	defer out.Close()
	assert.Equal(t, blank.Bytes(), out.Bytes())
}

func TestDeskewEstimatesKnownShear(t *testing.T) {
	d := NewDeskew(DefaultSkewEpsilon, true)

	for _, degrees := range []float64{-8, 5, 12} {
		want := math.Tan(degrees * math.Pi / 180)

		upright := newGray(t, 224, 224, 255)
		fillRect(t, upright, 100, 40, 124, 184, 0)

		uprightEst, err := d.Estimate(upright)
		require.NoError(t, err)
		assert.InDelta(t, 0, uprightEst.Skew, skewTolerance)

		// The inverse of a correction by -want is a forward shear by want.
		sheared, err := Shear(upright, -want, "sheared")
		require.NoError(t, err)
		closeAfter(t, sheared)

		est, err := d.Estimate(sheared)
		require.NoError(t, err)
		require.False(t, est.Degenerate)
		assert.InDelta(t, want, est.Skew, skewTolerance, "shear of %v degrees", degrees)
		assert.InDelta(t, degrees, est.Angle(), 1)

		corrected, err := d.Apply(sheared)
		require.NoError(t, err)
		closeAfter(t, corrected)
		assert.Equal(t, sheared.Width(), corrected.Width())
		assert.Equal(t, sheared.Height(), corrected.Height())

		residual, err := d.Estimate(corrected)
		require.NoError(t, err)
		assert.InDelta(t, 0, residual.Skew, skewTolerance, "residual after correcting %v degrees", degrees)
	}
}

func TestDeskewBrightForeground(t *testing.T) {
	d := NewDeskew(DefaultSkewEpsilon, false)
	want := math.Tan(7 * math.Pi / 180)

	// White bar on black, shifted row by row so no white border is introduced.
	const size = 160
	sheared := newGray(t, size, size, 0)
	for y := 30; y < 130; y++ {
		shift := int(math.Round(want * float64(y-size/2)))
		fillRect(t, sheared, 70+shift, y, 90+shift, y+1, 255)
	}

	est, err := d.Estimate(sheared)
	require.NoError(t, err)
	assert.InDelta(t, want, est.Skew, skewTolerance)

	black := newGray(t, 8, 8, 0)
	est, err = d.Estimate(black)
	require.NoError(t, err)
	assert.True(t, est.Degenerate)
}

func TestDeskewFillsExposedBorderWhite(t *testing.T) {
	src := newGray(t, 40, 40, 0)

	out, err := Shear(src, 0.5, "sheared")
	require.NoError(t, err)
	defer out.Close()

	// Top-left maps to source x = -10 and bottom-right to x = 48.5, both
	// outside the frame.
	v, err := out.GetUCharAt(0, 0)
	require.NoError(t, err)
	assert.Equal(t, uint8(255), v)

	v, err = out.GetUCharAt(39, 39)
	require.NoError(t, err)
	assert.Equal(t, uint8(255), v)

	v, err = out.GetUCharAt(20, 20)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), v)
}

func TestDeskewRejectsMissingImage(t *testing.T) {
	_, err := NewDeskew(DefaultSkewEpsilon, true).Estimate(nil)
	assert.ErrorIs(t, err, processing.ErrInvalidImage)
}
